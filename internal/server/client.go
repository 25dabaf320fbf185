// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/relaychat/internal/dispatch"
	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/registry"
)

// Client is one relay session. It owns the WebSocket connection and its
// outgoing queue, and is the registry.Peer through which the hub delivers
// pushes to this connection.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	session        *registry.Connection
	closed         bool
	maxMessageSize int64
	rateLimiter    *rate.Limiter
	rateLimit      RateLimitConfig
}

// NewClient creates a new Client instance with the provided WebSocket connection,
// hub reference, and client address. The client's send channel is buffered
// to handle message queuing.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	c := &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
	}
	c.session = registry.NewConnection(uuid.NewString(), addr, c)
	return c
}

// newRateLimiter returns a token bucket holding burst tokens and gaining one
// token per refill interval. A non-positive setting disables limiting.
func newRateLimiter(cfg RateLimitConfig) *rate.Limiter {
	if cfg.Burst <= 0 || cfg.RefillInterval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(cfg.RefillInterval), cfg.Burst)
}

// ID returns the connection id used in the connection registry.
func (c *Client) ID() string {
	return c.session.ID
}

// Login returns the login bound to this session, or "" when none is.
func (c *Client) Login() string {
	return c.session.Login()
}

// State reports where the session is in its lifecycle.
func (c *Client) State() SessionState {
	switch {
	case c.closed:
		return StateClosed
	case c.session.Authenticated():
		return StateAuthenticated
	default:
		return StateOpen
	}
}

// GetSendChan returns the client's send channel for reading outgoing messages.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// HandleIncoming decodes one raw frame, runs it through the router and
// writes the response. Pushes produced by the handler are delivered before
// the response is queued. Must be called from the hub goroutine.
func (c *Client) HandleIncoming(raw []byte) {
	log.Printf("Received message from %s: %s", c.addr, string(raw))

	env, err := protocol.Decode(raw)
	if err == nil && protocol.IsServerOnly(env.Type) {
		err = protocol.ErrTypeInvalid
	}
	if err != nil {
		log.Printf("Invalid message from %s: %v", c.addr, err)
		c.hub.services.Metrics.RecordRejectedFrame()
		c.respond(protocol.ErrorEnvelope(env.ID, protocol.ErrTypeInvalid))
		return
	}

	outbox := &dispatch.Outbox{}
	result, err := c.hub.router.Route(c.hub.ctx, c.session, env, outbox)
	c.hub.deliver(outbox)
	c.hub.services.Metrics.RecordRequest(env.Type, protocol.Code(err))
	c.hub.recordConnections()

	if err != nil {
		c.respond(protocol.ErrorEnvelope(env.ID, err))
		return
	}

	response, err := protocol.NewEnvelope(env.ID, env.Type, result)
	if err != nil {
		log.Printf("Error encoding %s response for %s: %v", env.Type, c.addr, err)
		c.respond(protocol.ErrorEnvelope(env.ID, protocol.ErrInternal))
		return
	}
	c.respond(response)
}

// PushEvent sends a server-initiated envelope to this client without going
// through the router. Push types that mirror a client request are relabelled
// to the request type.
func (c *Client) PushEvent(env protocol.Envelope) {
	env.ID = nil
	env.Type = protocol.WireType(env.Type)
	c.respond(env)
}

// respond encodes env and queues it for the write pump.
func (c *Client) respond(env protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		log.Printf("Error encoding %s envelope for %s: %v", env.Type, c.addr, err)
		return
	}
	log.Printf("Sending message to %s: %s", c.addr, string(data))
	c.enqueue(data)
}

// enqueue queues data without blocking the hub. A client whose buffer is
// full is treated as gone.
func (c *Client) enqueue(data []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("Send buffer full for %s; closing connection", c.addr)
		if c.conn != nil {
			c.closeConnection()
		}
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Client %s disconnected: %v", c.addr, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c.addr, err)
		return true
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
		c.hub.services.Metrics.RecordRejectedFrame()
		return false
	}
	return true
}

// readPump forwards frames to the hub. Transport close and read errors both
// end here and go through the same unregister path.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		if !c.hub.submit(c, rawMessage) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection for %s: %v", c.addr, err)
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}
