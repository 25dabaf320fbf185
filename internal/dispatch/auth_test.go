package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

func TestLoginBindsAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	bob := f.connect(t, "c-bob")
	carol := f.connect(t, "c-carol")
	anon := f.connect(t, "c-anon")
	alice := f.connect(t, "c-alice")
	f.login(t, bob, "bob")
	f.login(t, carol, "carol")

	result, pushes, err := f.do(t, alice, protocol.TypeLogin, credentials("alice", "pw"))
	require.NoError(t, err)
	assert.Equal(t, protocol.UserResult{User: protocol.UserState{Login: "alice", IsLogined: true}}, result)

	u, ok := f.svc.Users.Get("alice")
	require.True(t, ok)
	assert.True(t, u.IsLogined)
	got, ok := f.svc.Connections.ByLogin("alice")
	require.True(t, ok)
	assert.Same(t, alice, got)

	require.Len(t, pushes, 2, "every other authenticated connection gets one push")
	targets := map[string]bool{}
	for _, p := range pushes {
		assert.Equal(t, protocol.TypeExternalLogin, p.Envelope.Type)
		assert.Nil(t, p.Envelope.ID)
		targets[p.To.ID] = true
		payload := decodePush[protocol.UserResult](t, p)
		assert.Equal(t, "alice", payload.User.Login)
	}
	assert.True(t, targets["c-bob"])
	assert.True(t, targets["c-carol"])
	assert.False(t, targets[anon.ID])
}

func TestLoginLastLoginWins(t *testing.T) {
	f := newFixture(t)
	first := f.connect(t, "c1")
	second := f.connect(t, "c2")
	observer := f.connect(t, "c3")
	f.login(t, first, "u")
	f.login(t, observer, "watcher")

	pushes := f.login(t, second, "u")

	got, ok := f.svc.Connections.ByLogin("u")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.False(t, first.Authenticated(), "superseded connection loses its binding")

	require.Len(t, pushes, 1)
	assert.Same(t, observer, pushes[0].To)
	assert.Equal(t, protocol.TypeExternalLogin, pushes[0].Envelope.Type)
}

func TestLoginErrors(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, "c1")
	f.login(t, conn, "alice")

	other := f.connect(t, "c2")
	_, _, err := f.do(t, other, protocol.TypeLogin, credentials("alice", "wrong"))
	assert.ErrorIs(t, err, protocol.ErrInvalidCredentials)
	assert.False(t, other.Authenticated())

	_, _, err = f.do(t, conn, protocol.TypeLogin, credentials("alice", "pw-alice"))
	assert.ErrorIs(t, err, protocol.ErrAlreadyAuthorized)

	for name, payload := range map[string]any{
		"null payload":   nil,
		"missing user":   map[string]any{},
		"empty login":    credentials("", "pw"),
		"empty password": credentials("bob", ""),
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.do(t, other, protocol.TypeLogin, payload)
			assert.ErrorIs(t, err, protocol.ErrPayloadInvalid)
		})
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	alice := f.connect(t, "c1")
	bob := f.connect(t, "c2")
	f.login(t, alice, "alice")
	f.login(t, bob, "bob")

	_, _, err := f.do(t, alice, protocol.TypeLogout, credentials("bob", "pw-bob"))
	assert.ErrorIs(t, err, protocol.ErrNotAuthorized, "cannot log out someone else")

	_, _, err = f.do(t, alice, protocol.TypeLogout, credentials("alice", "bad"))
	assert.ErrorIs(t, err, protocol.ErrInvalidCredentials)

	result, pushes, err := f.do(t, alice, protocol.TypeLogout, credentials("alice", "pw-alice"))
	require.NoError(t, err)
	assert.Equal(t, protocol.UserResult{User: protocol.UserState{Login: "alice"}}, result)
	assert.False(t, alice.Authenticated())

	u, _ := f.svc.Users.Get("alice")
	assert.False(t, u.IsLogined)

	require.Len(t, pushes, 1)
	assert.Same(t, bob, pushes[0].To)
	assert.Equal(t, protocol.TypeExternalLogout, pushes[0].Envelope.Type)

	_, _, err = f.do(t, alice, protocol.TypeLogout, credentials("alice", "pw-alice"))
	assert.ErrorIs(t, err, protocol.ErrNotAuthorized)
}

func TestDisconnectLogsOutAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	alice := f.connect(t, "c1")
	bob := f.connect(t, "c2")
	f.login(t, alice, "alice")
	f.login(t, bob, "bob")

	outbox := &Outbox{}
	login := f.router.Disconnect(context.Background(), alice, outbox)
	assert.Equal(t, "alice", login)

	_, ok := f.svc.Connections.ByID("c1")
	assert.False(t, ok)
	u, _ := f.svc.Users.Get("alice")
	assert.False(t, u.IsLogined)

	pushes := outbox.Drain()
	require.Len(t, pushes, 1)
	assert.Same(t, bob, pushes[0].To)
	assert.Equal(t, protocol.TypeExternalLogout, pushes[0].Envelope.Type)
}

func TestDisconnectUnauthenticated(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, "c1")

	outbox := &Outbox{}
	assert.Equal(t, "", f.router.Disconnect(context.Background(), conn, outbox))
	assert.Equal(t, 0, outbox.Len())
	assert.Equal(t, 0, f.svc.Connections.Len())
}

func TestDisconnectSupersededKeepsUserOnline(t *testing.T) {
	f := newFixture(t)
	stale := f.connect(t, "c1")
	live := f.connect(t, "c2")
	f.login(t, stale, "alice")
	f.login(t, live, "alice")

	outbox := &Outbox{}
	assert.Equal(t, "", f.router.Disconnect(context.Background(), stale, outbox))
	assert.Equal(t, 0, outbox.Len())

	u, _ := f.svc.Users.Get("alice")
	assert.True(t, u.IsLogined)
	got, ok := f.svc.Connections.ByLogin("alice")
	require.True(t, ok)
	assert.Same(t, live, got)
}

func TestPresenceToggle(t *testing.T) {
	f := newFixture(t)
	alice := f.connect(t, "c1")
	bob := f.connect(t, "c2")
	f.login(t, alice, "alice")
	f.login(t, bob, "bob")

	result, pushes, err := f.do(t, alice, protocol.TypeSetInactive, nil)
	require.NoError(t, err)
	assert.Empty(t, pushes)

	pr := result.(protocol.PresenceResult)
	assert.Equal(t, "alice", pr.User.Login)
	require.NotNil(t, pr.User.IsActive)
	assert.False(t, *pr.User.IsActive)
	require.Len(t, pr.Users, 1)
	assert.Equal(t, "bob", pr.Users[0].Login)

	result, _, err = f.do(t, alice, protocol.TypeSetActive, map[string]any{})
	require.NoError(t, err)
	assert.True(t, *result.(protocol.PresenceResult).User.IsActive)

	_, _, err = f.do(t, alice, protocol.TypeSetActive, "not an object")
	assert.ErrorIs(t, err, protocol.ErrPayloadInvalid)

	anon := f.connect(t, "c3")
	_, _, err = f.do(t, anon, protocol.TypeSetActive, nil)
	assert.ErrorIs(t, err, protocol.ErrNotAuthorized)
}
