// Package testhelpers provides common utilities for testing the relay server.
//
// It wraps httptest servers, plain HTTP requests and WebSocket clients that
// speak the relay envelope protocol, so integration tests in other packages
// do not repeat the dialing and framing boilerplate.
package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// TestOrigin is an origin allowed by the default configuration.
const TestOrigin = "http://localhost:8080"

// ReadTimeout bounds every envelope read in tests.
const ReadTimeout = 2 * time.Second

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// WebSocketURL turns an httptest server URL into its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket dials url with an allowed Origin header.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url presenting origin. An empty origin
// sends no Origin header.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Dial connects to url and registers cleanup with t.
func Dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	require.NoError(t, err, "dial %s", url)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendRequest writes one request envelope.
func SendRequest(conn *websocket.Conn, id, typ string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return conn.WriteJSON(protocol.Envelope{ID: &id, Type: typ, Payload: raw})
}

// SendRawMessage sends a raw byte message over the WebSocket connection.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// ReadEnvelope reads the next envelope, waiting at most ReadTimeout.
func ReadEnvelope(conn *websocket.Conn) (protocol.Envelope, error) {
	if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return protocol.Envelope{}, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.Decode(data)
}

// Expect reads the next envelope and requires it to have type typ.
func Expect(t *testing.T, conn *websocket.Conn, typ string) protocol.Envelope {
	t.Helper()
	env, err := ReadEnvelope(conn)
	require.NoError(t, err, "waiting for %s", typ)
	require.Equal(t, typ, env.Type, "unexpected envelope: %s", string(env.Payload))
	return env
}

// ExpectNothing requires that no envelope arrives within wait.
func ExpectNothing(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", string(data))
}

// Call sends a request and returns its response, requiring the echoed id.
func Call(t *testing.T, conn *websocket.Conn, id, typ string, payload any) protocol.Envelope {
	t.Helper()
	require.NoError(t, SendRequest(conn, id, typ, payload))
	env, err := ReadEnvelope(conn)
	require.NoError(t, err, "waiting for response to %s", typ)
	require.NotNil(t, env.ID, "response to %s has no id", typ)
	require.Equal(t, id, *env.ID)
	return env
}

// Login logs conn in as login with password "pw-"+login.
func Login(t *testing.T, conn *websocket.Conn, login string) {
	t.Helper()
	env := Call(t, conn, "login-"+login, protocol.TypeLogin, protocol.AuthRequest{
		User: &protocol.UserCredentials{Login: login, Password: "pw-" + login},
	})
	require.Equal(t, protocol.TypeLogin, env.Type, "login failed: %s", string(env.Payload))
}

// Payload decodes env's payload into a T.
func Payload[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v), "payload %s", string(env.Payload))
	return v
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
