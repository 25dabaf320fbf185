// Package server coordinates client registration, request handling, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/dispatch"
)

// Hub is the single owner of the user, connection and message registries.
// Registration, unregistration and every inbound frame are handled one at a
// time on the Run goroutine, so handlers never race each other.
type Hub struct {
	services   *dispatch.Services
	router     *dispatch.Router
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub over the given services. The returned Hub is ready
// to manage WebSocket connections once Run is started.
func NewHub(services *dispatch.Services) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		services:   services,
		router:     dispatch.New(services),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, 64),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Services returns the registries and collaborators the hub routes against.
func (h *Hub) Services() *dispatch.Services {
	return h.services
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop. It should be called in a separate
// goroutine and returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			if !h.open(client) {
				continue
			}
			if client.conn == nil {
				continue
			}

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.close(client)

		case frame := <-h.inbound:
			if frame.client.closed {
				continue
			}
			frame.client.HandleIncoming(frame.raw)
		}
	}
}

// open registers client in the hub and the connection registry.
func (h *Hub) open(client *Client) bool {
	if err := h.services.Connections.Register(client.session); err != nil {
		log.Printf("Rejecting client %s: %v", client.addr, err)
		return false
	}

	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.recordConnections()
	log.Printf("Client registered from %s as %s. Total clients: %d", client.addr, client.ID(), clientCount)
	return true
}

// close runs the shared close/error cleanup: the bound user is logged out,
// peers are told, and the client's send queue is closed.
func (h *Hub) close(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	outbox := &dispatch.Outbox{}
	login := h.router.Disconnect(h.ctx, client.session, outbox)
	h.deliver(outbox)

	close(client.send)
	h.recordConnections()

	if login != "" {
		log.Printf("Client %s (%s) unregistered. Total clients: %d", client.addr, login, clientCount)
	} else {
		log.Printf("Client unregistered from %s. Total clients: %d", client.addr, clientCount)
	}
}

// deliver sends every queued push to its target session. Pushes go onto
// the target's send queue; nothing here re-enters the dispatcher.
func (h *Hub) deliver(outbox *dispatch.Outbox) {
	for _, push := range outbox.Drain() {
		if push.To == nil || push.To.Peer == nil {
			continue
		}
		push.To.Peer.PushEvent(push.Envelope)
		h.services.Metrics.RecordPush(push.Envelope.Type)
	}
}

// submit queues a raw frame for handling on the hub goroutine. It returns
// false once the hub is shutting down.
func (h *Hub) submit(client *Client, raw []byte) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbound <- inboundFrame{client: client, raw: raw}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// leave asks the hub to unregister client unless the hub is already gone.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) recordConnections() {
	h.services.Metrics.RecordConnections(h.services.Connections.Len(), h.services.Connections.AuthenticatedLen())
}

// shutdownClients gracefully closes all active client connections. The
// send queues are closed too so write pumps exit without waiting for a ping.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
		client.closed = true
		close(client.send)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

