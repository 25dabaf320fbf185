package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/dispatch"
	"github.com/Tyrowin/relaychat/internal/protocol"
)

// newTestHub builds a hub that is driven directly from the test goroutine.
func newTestHub(t *testing.T) *Hub {
	t.Helper()
	relay := NewRelayWithServices(&dispatch.Services{
		Auth: auth.NewMemoryStoreWithCost(bcrypt.MinCost),
	})
	return relay.Hub
}

// openClient registers a connection-less client, as the hub does on upgrade.
func openClient(t *testing.T, hub *Hub, addr string) *Client {
	t.Helper()
	c := NewClient(nil, hub, addr)
	require.True(t, hub.open(c))
	return c
}

func frame(t *testing.T, id, typ string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(protocol.Envelope{ID: &id, Type: typ, Payload: raw})
	require.NoError(t, err)
	return data
}

// next pops the next queued envelope for c.
func next(t *testing.T, c *Client) protocol.Envelope {
	t.Helper()
	select {
	case data, ok := <-c.GetSendChan():
		require.True(t, ok, "send queue closed")
		env, err := protocol.Decode(data)
		require.NoError(t, err)
		return env
	default:
		t.Fatal("no envelope queued")
		return protocol.Envelope{}
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	assert.Len(t, c.GetSendChan(), 0)
}

func loginClient(t *testing.T, c *Client, login string) {
	t.Helper()
	c.HandleIncoming(frame(t, "login-"+login, protocol.TypeLogin, protocol.AuthRequest{
		User: &protocol.UserCredentials{Login: login, Password: "pw-" + login},
	}))
	env := next(t, c)
	require.Equal(t, protocol.TypeLogin, env.Type, string(env.Payload))
}

func errorText(t *testing.T, env protocol.Envelope) string {
	t.Helper()
	require.Equal(t, protocol.TypeError, env.Type)
	var p protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p.Error
}

// drain discards everything queued for the given clients.
func drain(clients ...*Client) {
	for _, c := range clients {
		for len(c.send) > 0 {
			<-c.send
		}
	}
}

// TestHandleIncomingRejectsMalformedFrames verifies that frames that cannot
// be decoded get a type error and never reach a handler.
func TestHandleIncomingRejectsMalformedFrames(t *testing.T) {
	hub := newTestHub(t)
	c := openClient(t, hub, "10.0.0.1:1000")

	for _, raw := range []string{`not json`, `{"id":"1","payload":{}}`, `[]`} {
		c.HandleIncoming([]byte(raw))
		env := next(t, c)
		assert.Equal(t, protocol.ErrTypeInvalid.Error(), errorText(t, env), raw)
	}
	assert.Equal(t, StateOpen, c.State())
}

// TestHandleIncomingRejectsServerOnlyTypes verifies that clients cannot
// originate push types, including presence broadcasts.
func TestHandleIncomingRejectsServerOnlyTypes(t *testing.T) {
	hub := newTestHub(t)
	c := openClient(t, hub, "10.0.0.1:1000")
	peer := openClient(t, hub, "10.0.0.2:1000")
	loginClient(t, peer, "bob")

	for _, typ := range []string{
		protocol.TypeExternalLogin,
		protocol.TypeExternalLogout,
		protocol.TypeReceiveMessage,
		protocol.TypeDeliveredReceipt,
		protocol.TypeReadFromServer,
		protocol.TypeEditFromServer,
		protocol.TypeDeleteFromServer,
		protocol.TypeError,
	} {
		c.HandleIncoming(frame(t, "x", typ, protocol.UserResult{
			User: protocol.UserState{Login: "mallory", IsLogined: true},
		}))
		env := next(t, c)
		require.NotNil(t, env.ID)
		assert.Equal(t, "x", *env.ID)
		assert.Equal(t, protocol.ErrTypeInvalid.Error(), errorText(t, env), typ)
	}
	assertEmpty(t, peer)
}

// TestHandleIncomingUnknownType verifies the response to a type no family owns.
func TestHandleIncomingUnknownType(t *testing.T) {
	hub := newTestHub(t)
	c := openClient(t, hub, "10.0.0.1:1000")

	c.HandleIncoming(frame(t, "7", "dance", nil))
	env := next(t, c)
	require.NotNil(t, env.ID)
	assert.Equal(t, "7", *env.ID)
	assert.Equal(t, protocol.ErrTypeInvalid.Error(), errorText(t, env))
}

// TestHandleIncomingEchoesRequest verifies that a response carries the
// request id and type.
func TestHandleIncomingEchoesRequest(t *testing.T) {
	hub := newTestHub(t)
	c := openClient(t, hub, "10.0.0.1:1000")

	c.HandleIncoming(frame(t, "req-42", protocol.TypeLogin, protocol.AuthRequest{
		User: &protocol.UserCredentials{Login: "alice", Password: "secret"},
	}))
	env := next(t, c)
	require.NotNil(t, env.ID)
	assert.Equal(t, "req-42", *env.ID)
	assert.Equal(t, protocol.TypeLogin, env.Type)

	var res protocol.UserResult
	require.NoError(t, json.Unmarshal(env.Payload, &res))
	assert.Equal(t, "alice", res.User.Login)
	assert.True(t, res.User.IsLogined)
}

// TestSessionStateTransitions walks a session through Open, Authenticated,
// Open again and Closed.
func TestSessionStateTransitions(t *testing.T) {
	hub := newTestHub(t)
	c := openClient(t, hub, "10.0.0.1:1000")
	assert.Equal(t, StateOpen, c.State())

	loginClient(t, c, "alice")
	assert.Equal(t, StateAuthenticated, c.State())
	assert.Equal(t, "alice", c.Login())

	c.HandleIncoming(frame(t, "2", protocol.TypeLogout, protocol.AuthRequest{
		User: &protocol.UserCredentials{Login: "alice", Password: "pw-alice"},
	}))
	assert.Equal(t, protocol.TypeLogout, next(t, c).Type)
	assert.Equal(t, StateOpen, c.State())

	hub.close(c)
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 0, hub.ClientCount())
}

// TestPushEventRelabelsServerTypes verifies that mirrored pushes go out under
// the request type and without an id.
func TestPushEventRelabelsServerTypes(t *testing.T) {
	hub := newTestHub(t)
	c := openClient(t, hub, "10.0.0.1:1000")

	cases := map[string]string{
		protocol.TypeReadFromServer:   protocol.TypeMarkRead,
		protocol.TypeDeleteFromServer: protocol.TypeDeleteMessage,
		protocol.TypeEditFromServer:   protocol.TypeEditMessage,
		protocol.TypeReceiveMessage:   protocol.TypeReceiveMessage,
		protocol.TypeExternalLogin:    protocol.TypeExternalLogin,
	}
	for in, want := range cases {
		id := "should-be-dropped"
		c.PushEvent(protocol.Envelope{ID: &id, Type: in, Payload: json.RawMessage(`{}`)})
		env := next(t, c)
		assert.Nil(t, env.ID, in)
		assert.Equal(t, want, env.Type, in)
	}
}

// TestPushesReachPeersBeforeResponse verifies a full send/read exchange at
// the session level.
func TestPushesReachPeersBeforeResponse(t *testing.T) {
	hub := newTestHub(t)
	alice := openClient(t, hub, "10.0.0.1:1000")
	bob := openClient(t, hub, "10.0.0.2:1000")
	loginClient(t, alice, "alice")
	loginClient(t, bob, "bob")
	drain(alice, bob)

	alice.HandleIncoming(frame(t, "s1", protocol.TypeSendMessage, protocol.MessageRequest{
		Message: &protocol.MessageInput{To: "bob", Text: "hi"},
	}))

	push := next(t, bob)
	assert.Nil(t, push.ID)
	assert.Equal(t, protocol.TypeReceiveMessage, push.Type)

	resp := next(t, alice)
	require.Equal(t, protocol.TypeSendMessage, resp.Type)
	var sent protocol.MessageResult
	require.NoError(t, json.Unmarshal(resp.Payload, &sent))
	assert.Equal(t, "hi", sent.Message.Text)
	require.NotNil(t, sent.Message.Status)
	assert.Equal(t, protocol.Flag(true), sent.Message.Status.IsDelivered)

	id := sent.Message.ID
	bob.HandleIncoming(frame(t, "r1", protocol.TypeMarkRead, protocol.MessageRequest{
		Message: &protocol.MessageInput{ID: &id},
	}))
	receipt := next(t, alice)
	assert.Nil(t, receipt.ID)
	assert.Equal(t, protocol.TypeMarkRead, receipt.Type)
	assert.Equal(t, protocol.TypeMarkRead, next(t, bob).Type)
}

// TestCloseLogsOutAndNotifiesPeers verifies the shared close path.
func TestCloseLogsOutAndNotifiesPeers(t *testing.T) {
	hub := newTestHub(t)
	alice := openClient(t, hub, "10.0.0.1:1000")
	bob := openClient(t, hub, "10.0.0.2:1000")
	loginClient(t, alice, "alice")
	loginClient(t, bob, "bob")
	drain(alice, bob)

	hub.close(alice)

	env := next(t, bob)
	assert.Equal(t, protocol.TypeExternalLogout, env.Type)
	var res protocol.UserResult
	require.NoError(t, json.Unmarshal(env.Payload, &res))
	assert.Equal(t, "alice", res.User.Login)
	assert.False(t, res.User.IsLogined)

	user, ok := hub.Services().Users.Get("alice")
	require.True(t, ok)
	assert.False(t, user.IsLogined)
	_, bound := hub.Services().Connections.ByLogin("alice")
	assert.False(t, bound)

	_, open := <-alice.GetSendChan()
	assert.False(t, open, "send queue should be closed")

	// A second close is a no-op.
	hub.close(alice)
	assertEmpty(t, bob)
}

// TestCloseOfAnonymousSessionIsSilent verifies that closing an
// unauthenticated session notifies nobody.
func TestCloseOfAnonymousSessionIsSilent(t *testing.T) {
	hub := newTestHub(t)
	anon := openClient(t, hub, "10.0.0.1:1000")
	bob := openClient(t, hub, "10.0.0.2:1000")
	loginClient(t, bob, "bob")
	drain(bob)

	hub.close(anon)
	assertEmpty(t, bob)
	assert.Equal(t, 1, hub.Services().Connections.Len())
}

// TestSupersededSessionFallsBackToOpen verifies last-login-wins: the older
// connection stays open but loses the user.
func TestSupersededSessionFallsBackToOpen(t *testing.T) {
	hub := newTestHub(t)
	first := openClient(t, hub, "10.0.0.1:1000")
	second := openClient(t, hub, "10.0.0.1:2000")
	bob := openClient(t, hub, "10.0.0.2:1000")
	loginClient(t, first, "alice")
	loginClient(t, bob, "bob")
	loginClient(t, second, "alice")
	drain(first, second, bob)

	assert.Equal(t, StateOpen, first.State())
	assert.Equal(t, StateAuthenticated, second.State())

	bob.HandleIncoming(frame(t, "s", protocol.TypeSendMessage, protocol.MessageRequest{
		Message: &protocol.MessageInput{To: "alice", Text: "which one?"},
	}))
	assert.Equal(t, protocol.TypeReceiveMessage, next(t, second).Type)
	assertEmpty(t, first)
}

// TestEnqueueAfterCloseIsDropped verifies that a closed session ignores pushes.
func TestEnqueueAfterCloseIsDropped(t *testing.T) {
	hub := newTestHub(t)
	c := openClient(t, hub, "10.0.0.1:1000")
	hub.close(c)

	assert.NotPanics(t, func() {
		c.PushEvent(protocol.Envelope{Type: protocol.TypeExternalLogin})
	})
}
