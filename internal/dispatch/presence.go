package dispatch

import (
	"encoding/json"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

type presenceHandler struct {
	svc    *Services
	typ    string
	active bool
}

func (h *presenceHandler) Type() string { return h.typ }

// Handle toggles the caller's active flag and answers with the caller's new
// state plus the roster of every other known user.
func (h *presenceHandler) Handle(req *Request) (any, error) {
	if !emptyOrObject(req.Envelope.Payload) {
		return nil, protocol.ErrPayloadInvalid
	}
	login := req.Login()
	if login == "" {
		return nil, protocol.ErrNotAuthorized
	}
	if err := h.svc.Users.SetActive(login, h.active); err != nil {
		return nil, err
	}

	result := protocol.PresenceResult{Users: []protocol.UserState{}}
	for _, u := range h.svc.Users.All() {
		state := protocol.UserState{Login: u.Login, IsLogined: u.IsLogined, IsActive: protocol.Flag(u.IsActive)}
		if u.Login == login {
			result.User = state
			continue
		}
		result.Users = append(result.Users, state)
	}
	return result, nil
}

func emptyOrObject(raw json.RawMessage) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal(raw, &obj) == nil
}
