// Package server implements the HTTP and WebSocket side of the relay.
//
// A single Hub goroutine owns the user, connection and message registries and
// handles every inbound frame in turn. Each Client is one session: its read
// pump forwards raw frames to the hub and its write pump drains the outgoing
// queue. Configuration, origin checks, routing and the HTTP handlers live in
// their own files.
package server
