// Package server constructs and starts the relay HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/dispatch"
	"github.com/Tyrowin/relaychat/internal/metrics"
	"github.com/Tyrowin/relaychat/internal/registry"
)

// Relay bundles the hub with the stores it was built from.
type Relay struct {
	Hub     *Hub
	Metrics *metrics.Metrics

	closer io.Closer
}

// NewRelay builds a relay from cfg, or from the active configuration when
// cfg is nil. Credentials live in SQLite when cfg.CredentialsDB is set and
// in memory otherwise.
func NewRelay(cfg *Config) (*Relay, error) {
	if cfg == nil {
		active := currentConfig()
		cfg = &active
	}

	var (
		authenticator auth.Authenticator
		closer        io.Closer
	)
	if cfg.CredentialsDB != "" {
		store, err := auth.OpenSQLite(cfg.CredentialsDB)
		if err != nil {
			return nil, fmt.Errorf("open credentials store: %w", err)
		}
		authenticator, closer = store, store
		log.Printf("Using credentials database %s", cfg.CredentialsDB)
	} else {
		authenticator = auth.NewMemoryStore()
		log.Println("Using in-memory credentials")
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	relay := NewRelayWithServices(&dispatch.Services{
		Auth:    authenticator,
		Metrics: m,
	})
	relay.closer = closer
	return relay, nil
}

// NewRelayWithServices builds a relay around svc, filling in empty
// registries.
func NewRelayWithServices(svc *dispatch.Services) *Relay {
	if svc.Users == nil {
		svc.Users = registry.NewUserRegistry()
	}
	if svc.Messages == nil {
		svc.Messages = registry.NewMessageStore()
	}
	if svc.Connections == nil {
		svc.Connections = registry.NewConnectionRegistry()
	}
	if svc.Auth == nil {
		svc.Auth = auth.NewMemoryStore()
	}
	return &Relay{Hub: NewHub(svc), Metrics: svc.Metrics}
}

// StartHub starts the relay's hub in a separate goroutine.
// This should be called before starting the HTTP server.
func (r *Relay) StartHub() {
	go r.Hub.Run()
	log.Println("Hub started and ready to manage WebSocket connections")
}

// Close shuts the hub down and releases the credentials store.
func (r *Relay) Close(timeout time.Duration) error {
	err := r.Hub.Shutdown(timeout)
	if r.closer != nil {
		if cerr := r.closer.Close(); cerr != nil {
			log.Printf("Error closing credentials store: %v", cerr)
			if err == nil {
				err = cerr
			}
		}
	}
	return err
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns an error if the server fails to start.
func StartServer(server *http.Server) error {
	fmt.Printf("Server listening on port %s\n", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}
