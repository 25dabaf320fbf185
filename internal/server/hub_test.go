package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewHub verifies that NewHub returns a hub with usable channels and no
// clients.
func TestNewHub(t *testing.T) {
	hub := newTestHub(t)

	assert.NotNil(t, hub.GetRegisterChan())
	assert.NotNil(t, hub.GetUnregisterChan())
	assert.Equal(t, 0, hub.ClientCount())
	assert.NotNil(t, hub.Services().Connections)
}

// TestHubRunAndShutdown verifies that the event loop stops on Shutdown.
func TestHubRunAndShutdown(t *testing.T) {
	hub := newTestHub(t)
	go hub.Run()

	require.NoError(t, hub.Shutdown(time.Second))

	select {
	case <-hub.done:
	default:
		t.Fatal("Run did not return")
	}
}

// TestHubSkipsNilRegistration verifies a nil client does not stop the loop.
func TestHubSkipsNilRegistration(t *testing.T) {
	hub := newTestHub(t)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	hub.GetRegisterChan() <- nil

	c := NewClient(nil, hub, "10.0.0.1:1000")
	hub.GetRegisterChan() <- c
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.GetUnregisterChan() <- c
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

// TestHubProcessesSubmittedFrames verifies frames queued by read pumps are
// handled on the hub goroutine.
func TestHubProcessesSubmittedFrames(t *testing.T) {
	hub := newTestHub(t)
	go hub.Run()
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	c := NewClient(nil, hub, "10.0.0.1:1000")
	hub.GetRegisterChan() <- c
	require.True(t, hub.submit(c, []byte(`{"id":"1","type":"set-active","payload":null}`)))

	select {
	case data := <-c.GetSendChan():
		assert.Contains(t, string(data), `"id":"1"`)
		assert.Contains(t, string(data), `"type":"error"`)
	case <-time.After(time.Second):
		t.Fatal("no response")
	}
}

// TestSubmitAfterShutdown verifies read pumps are released once the hub is gone.
func TestSubmitAfterShutdown(t *testing.T) {
	hub := newTestHub(t)
	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))

	c := NewClient(nil, hub, "10.0.0.1:1000")
	assert.False(t, hub.submit(c, []byte(`{}`)))
	hub.leave(c)
}
