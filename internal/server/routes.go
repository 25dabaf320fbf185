// Package server wires HTTP handlers into a ServeMux for the relay
// via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// It sets up handlers for health check, WebSocket endpoint, and test page,
// plus /metrics when the relay exports metrics.
func SetupRoutes(relay *Relay) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler(relay.Hub))
	mux.HandleFunc("/ws", WebSocketHandler(relay.Hub))
	mux.HandleFunc("/test", TestPageHandler)
	if relay.Metrics != nil {
		mux.Handle("/metrics", relay.Metrics.Handler())
	}
	return mux
}
