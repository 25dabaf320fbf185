package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/registry"
)

type fixture struct {
	svc    *Services
	router *Router
	tick   int
	ids    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.svc = &Services{
		Users:       registry.NewUserRegistry(),
		Messages:    registry.NewMessageStore(),
		Connections: registry.NewConnectionRegistry(),
		Auth:        auth.NewMemoryStoreWithCost(bcrypt.MinCost),
		Now: func() time.Time {
			f.tick++
			return base.Add(time.Duration(f.tick) * time.Second)
		},
		NewID: func() string {
			f.ids++
			return fmt.Sprintf("msg-%d", f.ids)
		},
	}
	f.router = New(f.svc)
	return f
}

func (f *fixture) connect(t *testing.T, id string) *registry.Connection {
	t.Helper()
	conn := registry.NewConnection(id, "127.0.0.1:0", nil)
	require.NoError(t, f.svc.Connections.Register(conn))
	return conn
}

// do routes one request and returns its result, queued pushes and error.
func (f *fixture) do(t *testing.T, conn *registry.Connection, typ string, payload any) (any, []Push, error) {
	t.Helper()
	id := "req"
	env, err := protocol.NewEnvelope(&id, typ, payload)
	require.NoError(t, err)

	outbox := &Outbox{}
	result, err := f.router.Route(context.Background(), conn, env, outbox)
	return result, outbox.Drain(), err
}

func (f *fixture) login(t *testing.T, conn *registry.Connection, login string) []Push {
	t.Helper()
	_, pushes, err := f.do(t, conn, protocol.TypeLogin, credentials(login, "pw-"+login))
	require.NoError(t, err)
	return pushes
}

func (f *fixture) send(t *testing.T, conn *registry.Connection, to, text string) (protocol.MessageView, []Push) {
	t.Helper()
	result, pushes, err := f.do(t, conn, protocol.TypeSendMessage, map[string]any{
		"message": map[string]string{"to": to, "text": text},
	})
	require.NoError(t, err)
	return result.(protocol.MessageResult).Message, pushes
}

func credentials(login, password string) map[string]any {
	return map[string]any{"user": map[string]string{"login": login, "password": password}}
}

func byID(id string) map[string]any {
	return map[string]any{"message": map[string]string{"id": id}}
}

func decodePush[T any](t *testing.T, p Push) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(p.Envelope.Payload, &v))
	return v
}
