package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/metrics"
	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/registry"
)

// Services are the collaborators every handler works against. They are
// created once at startup and shared by all families.
type Services struct {
	Users       *registry.UserRegistry
	Messages    *registry.MessageStore
	Connections *registry.ConnectionRegistry
	Auth        auth.Authenticator
	Metrics     *metrics.Metrics

	// Now and NewID default to time.Now and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

func (s *Services) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Services) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// New builds the router with the auth, presence and messaging families.
func New(svc *Services) *Router {
	return NewRouter(svc,
		NewDispatcher("auth",
			&loginHandler{svc: svc},
			&logoutHandler{svc: svc},
			&externalPresenceHandler{svc: svc, typ: protocol.TypeExternalLogin},
			&externalPresenceHandler{svc: svc, typ: protocol.TypeExternalLogout},
		),
		NewDispatcher("presence",
			&presenceHandler{svc: svc, typ: protocol.TypeSetActive, active: true},
			&presenceHandler{svc: svc, typ: protocol.TypeSetInactive, active: false},
		),
		NewDispatcher("messaging",
			&sendHandler{svc: svc},
			&deleteHandler{svc: svc},
			&historyHandler{svc: svc},
			&editHandler{svc: svc},
			&readHandler{svc: svc},
		),
	)
}

// Disconnect releases conn after its transport closed or failed: the bound
// user is logged out, remaining peers get an external-logout push, and the
// connection leaves the registry. It returns the login that was bound.
func (r *Router) Disconnect(ctx context.Context, conn *registry.Connection, outbox *Outbox) string {
	svc := r.svc
	login := svc.Connections.Unbind(conn.ID)
	svc.Connections.Unregister(conn.ID)
	if login == "" {
		return ""
	}

	if err := svc.Users.SetLogined(login, false); err != nil {
		log.Printf("Error logging out %s on disconnect: %v", login, err)
	}

	req := &Request{Ctx: ctx, Conn: conn, outbox: outbox, router: r}
	if _, err := req.Forward(protocol.TypeExternalLogout, protocol.UserResult{
		User: protocol.UserState{Login: login, IsLogined: false},
	}); err != nil {
		log.Printf("Error broadcasting logout of %s: %v", login, err)
	}
	return login
}
