package dispatch

import (
	"errors"
	"fmt"
	"log"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/protocol"
)

func decodeCredentials(req *Request) (*protocol.UserCredentials, error) {
	var p protocol.AuthRequest
	if err := protocol.DecodePayload(req.Envelope, &p); err != nil {
		return nil, err
	}
	if p.User == nil || p.User.Login == "" || p.User.Password == "" {
		return nil, protocol.ErrPayloadInvalid
	}
	return p.User, nil
}

func verify(svc *Services, req *Request, creds *protocol.UserCredentials) error {
	ok, err := svc.Auth.Authenticate(req.Ctx, creds.Login, creds.Password)
	if errors.Is(err, auth.ErrEmptyCredentials) {
		return protocol.ErrPayloadInvalid
	}
	if err != nil {
		return fmt.Errorf("authenticate %s: %w", creds.Login, err)
	}
	if !ok {
		return protocol.ErrInvalidCredentials
	}
	return nil
}

type loginHandler struct {
	svc *Services
}

func (h *loginHandler) Type() string { return protocol.TypeLogin }

func (h *loginHandler) Handle(req *Request) (any, error) {
	creds, err := decodeCredentials(req)
	if err != nil {
		return nil, err
	}
	if req.Conn == nil {
		return nil, protocol.ErrNotAuthorized
	}
	if req.Conn.Authenticated() {
		return nil, protocol.ErrAlreadyAuthorized
	}
	if err := verify(h.svc, req, creds); err != nil {
		return nil, err
	}

	h.svc.Users.GetOrCreate(creds.Login)
	superseded, err := h.svc.Connections.Bind(req.Conn.ID, creds.Login)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", creds.Login, err)
	}
	if superseded != nil {
		log.Printf("Connection %s superseded by %s for user %s", superseded.ID, req.Conn.ID, creds.Login)
	}
	if err := h.svc.Users.SetLogined(creds.Login, true); err != nil {
		return nil, err
	}

	result := protocol.UserResult{User: protocol.UserState{Login: creds.Login, IsLogined: true}}
	if _, err := req.Forward(protocol.TypeExternalLogin, result); err != nil {
		log.Printf("Error broadcasting login of %s: %v", creds.Login, err)
	}
	return result, nil
}

type logoutHandler struct {
	svc *Services
}

func (h *logoutHandler) Type() string { return protocol.TypeLogout }

func (h *logoutHandler) Handle(req *Request) (any, error) {
	creds, err := decodeCredentials(req)
	if err != nil {
		return nil, err
	}
	if req.Login() == "" || req.Login() != creds.Login {
		return nil, protocol.ErrNotAuthorized
	}
	if err := verify(h.svc, req, creds); err != nil {
		return nil, err
	}

	h.svc.Connections.Unbind(req.Conn.ID)
	if err := h.svc.Users.SetLogined(creds.Login, false); err != nil {
		return nil, err
	}

	result := protocol.UserResult{User: protocol.UserState{Login: creds.Login, IsLogined: false}}
	if _, err := req.Forward(protocol.TypeExternalLogout, result); err != nil {
		log.Printf("Error broadcasting logout of %s: %v", creds.Login, err)
	}
	return result, nil
}

// externalPresenceHandler fans a login or logout out to every authenticated
// connection not bound to the user it concerns. It only serves requests
// synthesized by the server.
type externalPresenceHandler struct {
	svc *Services
	typ string
}

func (h *externalPresenceHandler) Type() string { return h.typ }

func (h *externalPresenceHandler) Handle(req *Request) (any, error) {
	if !req.Internal() {
		return nil, protocol.ErrTypeInvalid
	}

	var p protocol.UserResult
	if err := protocol.DecodePayload(req.Envelope, &p); err != nil {
		return nil, err
	}
	if p.User.Login == "" {
		return nil, protocol.ErrPayloadInvalid
	}

	notified := 0
	for _, conn := range h.svc.Connections.AllAuthenticated() {
		if conn.Login() == p.User.Login {
			continue
		}
		req.Push(conn, req.Envelope)
		notified++
	}
	return notified, nil
}
