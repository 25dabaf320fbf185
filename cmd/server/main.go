package main

import (
	"log"

	"github.com/spf13/cobra"
)

var configFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "relaychat",
	Short: "Real-time message relay over WebSocket",
	Long: `RelayChat relays direct messages between logged-in users over WebSocket,
tracking presence, delivery and read receipts, edits and deletions.

If no subcommand is specified, the server is started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (TOML)")
}
