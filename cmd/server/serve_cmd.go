package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/relaychat/internal/server"
)

const shutdownTimeout = 10 * time.Second

var servePort string

// serveCmd runs the relay HTTP and WebSocket server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long:  "Start the HTTP server with the /ws WebSocket endpoint, health check, test page and metrics.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePort, "port", "", "Listen address, overrides config (e.g. :8080)")
}

func runServe(_ *cobra.Command, _ []string) error {
	fmt.Println("Starting RelayChat Server...")

	cfg, err := server.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if servePort != "" {
		cfg.Port = servePort
	}
	server.SetConfig(cfg)

	relay, err := server.NewRelay(cfg)
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}
	relay.StartHub()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(relay))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = relay.Close(shutdownTimeout)
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-stop:
		log.Printf("Received %s, shutting down", sig)
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("Error during HTTP shutdown: %v", err)
	}
	return relay.Close(shutdownTimeout)
}
