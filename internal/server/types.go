// Package server defines shared types and utility helpers that are reused
// across client and hub logic.
package server

import "strings"

// SessionState is the lifecycle stage of a client session.
type SessionState int

const (
	// StateOpen means the socket is live and no user is bound.
	StateOpen SessionState = iota
	// StateAuthenticated means a logged-in user is bound.
	StateAuthenticated
	// StateClosed is terminal.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// inboundFrame is a raw frame read from a client, queued for the hub.
type inboundFrame struct {
	client *Client
	raw    []byte
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
