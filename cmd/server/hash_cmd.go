package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/server"
)

var storeHash bool

// hashPasswordCmd prints a bcrypt hash, optionally storing it for a login in
// the configured credentials database.
var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <login> <password>",
	Short: "Hash a password for the credentials database",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		login, password := args[0], args[1]

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}

		if !storeHash {
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		}

		cfg, err := server.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.CredentialsDB == "" {
			return fmt.Errorf("no credentials database configured (set credentials_db or CREDENTIALS_DB)")
		}

		store, err := auth.OpenSQLite(cfg.CredentialsDB)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Put(context.Background(), login, hash); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored credentials for %s in %s\n", login, cfg.CredentialsDB)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
	hashPasswordCmd.Flags().BoolVar(&storeHash, "store", false, "Write the hash to the configured credentials database")
}
