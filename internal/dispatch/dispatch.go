// Package dispatch routes decoded request envelopes to the handler that owns
// their type. Handlers are grouped in families (auth, presence, messaging);
// the Router picks the family first and the family looks the handler up by
// type.
//
// Handlers never write to other connections directly. They queue pushes on
// the request's Outbox, which the session drains once the handler returns.
package dispatch

import (
	"context"
	"fmt"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/registry"
)

// Handler executes one request type.
type Handler interface {
	Type() string
	Handle(req *Request) (any, error)
}

// Push is a server-initiated envelope addressed to one connection.
type Push struct {
	To       *registry.Connection
	Envelope protocol.Envelope
}

// Outbox collects the pushes produced while handling one inbound frame.
type Outbox struct {
	pushes []Push
}

// Add queues a push.
func (o *Outbox) Add(p Push) {
	o.pushes = append(o.pushes, p)
}

// Len returns the number of queued pushes.
func (o *Outbox) Len() int {
	return len(o.pushes)
}

// Drain returns the queued pushes in order and empties the outbox.
func (o *Outbox) Drain() []Push {
	pushes := o.pushes
	o.pushes = nil
	return pushes
}

// Request is one envelope being handled on behalf of a connection.
type Request struct {
	Ctx      context.Context
	Envelope protocol.Envelope
	Conn     *registry.Connection

	internal bool
	outbox   *Outbox
	router   *Router
}

// Login returns the login bound to the originating connection.
func (r *Request) Login() string {
	if r.Conn == nil {
		return ""
	}
	return r.Conn.Login()
}

// Internal reports whether the request was synthesized by the server.
func (r *Request) Internal() bool {
	return r.internal
}

// Push queues env for delivery to conn.
func (r *Request) Push(conn *registry.Connection, env protocol.Envelope) {
	if conn == nil {
		return
	}
	r.outbox.Add(Push{To: conn, Envelope: env})
}

// PushPayload builds a server-initiated envelope and queues it for conn.
func (r *Request) PushPayload(conn *registry.Connection, typ string, payload any) error {
	env, err := protocol.NewPush(typ, payload)
	if err != nil {
		return err
	}
	r.Push(conn, env)
	return nil
}

// Forward runs a server-synthesized request of type typ through the same
// router and outbox as r.
func (r *Request) Forward(typ string, payload any) (any, error) {
	env, err := protocol.NewPush(typ, payload)
	if err != nil {
		return nil, err
	}
	sub := &Request{
		Ctx:      r.Ctx,
		Envelope: env,
		Conn:     r.Conn,
		internal: true,
		outbox:   r.outbox,
		router:   r.router,
	}
	return r.router.dispatch(sub)
}

// Dispatcher is one family of handlers keyed by request type.
type Dispatcher struct {
	family   string
	handlers map[string]Handler
}

// NewDispatcher builds a family. Two handlers claiming the same type is a
// programming error and panics.
func NewDispatcher(family string, handlers ...Handler) *Dispatcher {
	d := &Dispatcher{family: family, handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		if _, dup := d.handlers[h.Type()]; dup {
			panic(fmt.Sprintf("dispatch: %s family registers %q twice", family, h.Type()))
		}
		d.handlers[h.Type()] = h
	}
	return d
}

// Family returns the family name.
func (d *Dispatcher) Family() string {
	return d.family
}

// Owns reports whether the family has a handler for typ.
func (d *Dispatcher) Owns(typ string) bool {
	_, ok := d.handlers[typ]
	return ok
}

// Dispatch runs the handler for the request's type.
func (d *Dispatcher) Dispatch(req *Request) (any, error) {
	h, ok := d.handlers[req.Envelope.Type]
	if !ok {
		return nil, protocol.ErrTypeInvalid
	}
	return h.Handle(req)
}

// Router picks the family that owns a request type.
type Router struct {
	families []*Dispatcher
	owner    map[string]*Dispatcher
	svc      *Services
}

// NewRouter builds a router over the given families.
func NewRouter(svc *Services, families ...*Dispatcher) *Router {
	r := &Router{families: families, owner: make(map[string]*Dispatcher), svc: svc}
	for _, f := range families {
		for typ := range f.handlers {
			if prev, dup := r.owner[typ]; dup {
				panic(fmt.Sprintf("dispatch: %q owned by both %s and %s", typ, prev.family, f.family))
			}
			r.owner[typ] = f
		}
	}
	return r
}

// Families returns the families in registration order.
func (r *Router) Families() []*Dispatcher {
	return r.families
}

// Route handles a client envelope for conn, queueing any pushes on outbox.
// An unowned type yields protocol.ErrTypeInvalid.
func (r *Router) Route(ctx context.Context, conn *registry.Connection, env protocol.Envelope, outbox *Outbox) (any, error) {
	return r.dispatch(&Request{
		Ctx:      ctx,
		Envelope: env,
		Conn:     conn,
		outbox:   outbox,
		router:   r,
	})
}

func (r *Router) dispatch(req *Request) (any, error) {
	family, ok := r.owner[req.Envelope.Type]
	if !ok {
		return nil, protocol.ErrTypeInvalid
	}
	return family.Dispatch(req)
}
