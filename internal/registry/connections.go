package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

var (
	// ErrDuplicateConnection is returned when registering an id twice.
	ErrDuplicateConnection = errors.New("connection already registered")
	// ErrConnectionNotFound is returned for ids that are not registered.
	ErrConnectionNotFound = errors.New("connection not found")
)

// Peer is the send side of a session. Pushes to another connection go
// through it without passing the dispatcher.
type Peer interface {
	PushEvent(env protocol.Envelope)
}

// Connection is a live transport connection, optionally bound to one user.
// The binding is owned by the ConnectionRegistry; Login and Authenticated
// are safe to call from any goroutine.
type Connection struct {
	ID   string
	Addr string
	Peer Peer

	mu    sync.RWMutex
	login string
	seq   uint64
}

// NewConnection creates an unbound connection.
func NewConnection(id, addr string, peer Peer) *Connection {
	return &Connection{ID: id, Addr: addr, Peer: peer}
}

// Login returns the bound user login, or "" when unbound.
func (c *Connection) Login() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.login
}

func (c *Connection) setLogin(login string) {
	c.mu.Lock()
	c.login = login
	c.mu.Unlock()
}

// Authenticated reports whether a user is bound.
func (c *Connection) Authenticated() bool {
	return c.Login() != ""
}

// ConnectionRegistry indexes live connections by id and by bound login.
// At most one connection is bound to a login; the last bind wins.
type ConnectionRegistry struct {
	mu      sync.RWMutex
	byID    map[string]*Connection
	byLogin map[string]*Connection
	nextSeq uint64
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byID:    make(map[string]*Connection),
		byLogin: make(map[string]*Connection),
	}
}

// Register adds an unbound connection.
func (r *ConnectionRegistry) Register(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[c.ID]; ok {
		return ErrDuplicateConnection
	}
	r.nextSeq++
	c.seq = r.nextSeq
	r.byID[c.ID] = c
	return nil
}

// Unregister removes the connection and its login binding. It returns the
// removed connection, if any.
func (r *ConnectionRegistry) Unregister(id string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	r.unbindLocked(c)
	return c, true
}

// ByID looks a connection up by id.
func (r *ConnectionRegistry) ByID(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	return c, ok
}

// ByLogin returns the connection currently bound to login.
func (r *ConnectionRegistry) ByLogin(login string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byLogin[login]
	return c, ok
}

// Bind attaches login to the connection id. A different connection already
// bound to login is unbound and returned as superseded.
func (r *ConnectionRegistry) Bind(id, login string) (superseded *Connection, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	if prev, ok := r.byLogin[login]; ok && prev != c {
		prev.setLogin("")
		superseded = prev
	}
	r.unbindLocked(c)
	c.setLogin(login)
	r.byLogin[login] = c
	return superseded, nil
}

// Unbind clears the user binding of id and returns the login it had.
func (r *ConnectionRegistry) Unbind(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return ""
	}
	login := c.Login()
	r.unbindLocked(c)
	return login
}

func (r *ConnectionRegistry) unbindLocked(c *Connection) {
	login := c.Login()
	if login == "" {
		return
	}
	if r.byLogin[login] == c {
		delete(r.byLogin, login)
	}
	c.setLogin("")
}

// AllAuthenticated returns every bound connection in registration order.
func (r *ConnectionRegistry) AllAuthenticated() []*Connection {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byLogin))
	for _, c := range r.byLogin {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].seq < conns[j].seq })
	return conns
}

// Len returns the number of live connections.
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// AuthenticatedLen returns the number of bound connections.
func (r *ConnectionRegistry) AuthenticatedLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byLogin)
}
