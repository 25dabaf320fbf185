// Package registry holds the process-wide in-memory indexes the relay
// routes against: known users, live connections, and the message history.
//
// All three are created once at startup and passed to the dispatcher
// explicitly. Mutations happen on the hub goroutine; the internal locks
// exist so HTTP-side readers (health, metrics) can observe them.
package registry
