package dispatch

import (
	"fmt"
	"log"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/registry"
)

func view(m registry.Message) protocol.MessageView {
	return protocol.MessageView{
		ID:       m.ID,
		From:     m.From,
		To:       m.To,
		Text:     m.Text,
		Datetime: m.CreatedAt.UnixMilli(),
		Status: &protocol.Status{
			IsDelivered: protocol.Flag(m.Delivered),
			IsReaded:    protocol.Flag(m.Read),
			IsEdited:    protocol.Flag(m.Edited),
			IsDeleted:   protocol.Flag(m.Deleted),
		},
	}
}

func requireLogin(req *Request) (string, error) {
	login := req.Login()
	if login == "" {
		return "", protocol.ErrNotAuthorized
	}
	return login, nil
}

func decodeMessage(req *Request) (*protocol.MessageInput, error) {
	var p protocol.MessageRequest
	if err := protocol.DecodePayload(req.Envelope, &p); err != nil {
		return nil, err
	}
	if p.Message == nil {
		return nil, protocol.ErrPayloadInvalid
	}
	return p.Message, nil
}

// lookupLive returns the message addressed by in.ID, rejecting unknown and
// deleted ids alike.
func lookupLive(svc *Services, in *protocol.MessageInput) (registry.Message, error) {
	if in.ID == nil || *in.ID == "" {
		return registry.Message{}, protocol.ErrPayloadInvalid
	}
	msg, ok := svc.Messages.Get(*in.ID)
	if !ok || msg.Deleted {
		return registry.Message{}, protocol.ErrMessageIDInvalid
	}
	return msg, nil
}

// pushTo queues a push for login if it has a live connection.
func pushTo(svc *Services, req *Request, login, typ string, payload any) {
	conn, ok := svc.Connections.ByLogin(login)
	if !ok {
		return
	}
	if err := req.PushPayload(conn, typ, payload); err != nil {
		log.Printf("Error building %s push for %s: %v", typ, login, err)
	}
}

type sendHandler struct {
	svc *Services
}

func (h *sendHandler) Type() string { return protocol.TypeSendMessage }

func (h *sendHandler) Handle(req *Request) (any, error) {
	in, err := decodeMessage(req)
	if err != nil {
		return nil, err
	}
	if in.To == "" || in.Text == "" {
		return nil, protocol.ErrPayloadInvalid
	}
	from, err := requireLogin(req)
	if err != nil {
		return nil, err
	}
	if in.To == from {
		return nil, protocol.ErrSelfTarget
	}
	if !h.svc.Users.Exists(in.To) {
		return nil, protocol.ErrTargetNotFound
	}

	msg := registry.Message{
		ID:        h.svc.newID(),
		From:      from,
		To:        in.To,
		Text:      in.Text,
		CreatedAt: h.svc.now(),
	}
	if err := h.svc.Messages.Add(msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	h.svc.Metrics.RecordMessageStored()

	if conn, ok := h.svc.Connections.ByLogin(msg.To); ok {
		if err := h.svc.Messages.MarkDelivered(msg.ID); err != nil {
			return nil, err
		}
		msg.Delivered = true
		if err := req.PushPayload(conn, protocol.TypeReceiveMessage, protocol.MessageResult{Message: view(msg)}); err != nil {
			log.Printf("Error building receive push for %s: %v", msg.To, err)
		}
	}

	return protocol.MessageResult{Message: view(msg)}, nil
}

type deleteHandler struct {
	svc *Services
}

func (h *deleteHandler) Type() string { return protocol.TypeDeleteMessage }

func (h *deleteHandler) Handle(req *Request) (any, error) {
	in, err := decodeMessage(req)
	if err != nil {
		return nil, err
	}
	if in.ID == nil {
		return nil, protocol.ErrPayloadInvalid
	}
	login, err := requireLogin(req)
	if err != nil {
		return nil, err
	}

	msg, ok := h.svc.Messages.Get(*in.ID)
	if !ok {
		return nil, protocol.ErrMessageIDInvalid
	}
	if msg.From != login {
		return nil, protocol.ErrNotSender
	}
	if !h.svc.Messages.Delete(msg.ID) {
		return nil, protocol.ErrMessageIDInvalid
	}

	result := protocol.MessageResult{Message: protocol.MessageView{
		ID:     msg.ID,
		Status: &protocol.Status{IsDeleted: protocol.Flag(true)},
	}}
	pushTo(h.svc, req, msg.To, protocol.TypeDeleteFromServer, result)
	return result, nil
}

type editHandler struct {
	svc *Services
}

func (h *editHandler) Type() string { return protocol.TypeEditMessage }

func (h *editHandler) Handle(req *Request) (any, error) {
	in, err := decodeMessage(req)
	if err != nil {
		return nil, err
	}
	if in.Text == "" {
		return nil, protocol.ErrPayloadInvalid
	}
	login, err := requireLogin(req)
	if err != nil {
		return nil, err
	}
	msg, err := lookupLive(h.svc, in)
	if err != nil {
		return nil, err
	}
	if msg.From != login {
		return nil, protocol.ErrNotSender
	}
	if err := h.svc.Messages.Edit(msg.ID, in.Text); err != nil {
		return nil, protocol.ErrMessageIDInvalid
	}

	result := protocol.MessageResult{Message: protocol.MessageView{
		ID:     msg.ID,
		Text:   in.Text,
		Status: &protocol.Status{IsEdited: protocol.Flag(true)},
	}}
	pushTo(h.svc, req, msg.To, protocol.TypeEditFromServer, result)
	return result, nil
}

type readHandler struct {
	svc *Services
}

func (h *readHandler) Type() string { return protocol.TypeMarkRead }

func (h *readHandler) Handle(req *Request) (any, error) {
	in, err := decodeMessage(req)
	if err != nil {
		return nil, err
	}
	login, err := requireLogin(req)
	if err != nil {
		return nil, err
	}
	msg, err := lookupLive(h.svc, in)
	if err != nil {
		return nil, err
	}
	if msg.To != login {
		return nil, protocol.ErrNotRecipient
	}
	if err := h.svc.Messages.MarkRead(msg.ID); err != nil {
		return nil, protocol.ErrMessageIDInvalid
	}

	result := protocol.MessageResult{Message: protocol.MessageView{
		ID:     msg.ID,
		Status: &protocol.Status{IsReaded: protocol.Flag(true)},
	}}
	pushTo(h.svc, req, msg.From, protocol.TypeReadFromServer, result)
	return result, nil
}

type historyHandler struct {
	svc *Services
}

func (h *historyHandler) Type() string { return protocol.TypeHistoryQuery }

// Handle returns the conversation between the caller and a peer, oldest
// first. Inbound messages not yet delivered become delivered, and the peer
// gets one receipt per message if online.
func (h *historyHandler) Handle(req *Request) (any, error) {
	var p protocol.HistoryRequest
	if err := protocol.DecodePayload(req.Envelope, &p); err != nil {
		return nil, err
	}
	if p.User == nil || p.User.Login == "" {
		return nil, protocol.ErrPayloadInvalid
	}
	login, err := requireLogin(req)
	if err != nil {
		return nil, err
	}
	peer := p.User.Login
	if peer == login {
		return nil, protocol.ErrSelfTarget
	}

	sent := h.svc.Messages.Between(login, peer)
	received := h.svc.Messages.Between(peer, login)
	for i := range received {
		if received[i].Delivered {
			continue
		}
		if err := h.svc.Messages.MarkDelivered(received[i].ID); err != nil {
			continue
		}
		received[i].Delivered = true
		pushTo(h.svc, req, peer, protocol.TypeDeliveredReceipt, protocol.MessageResult{
			Message: protocol.MessageView{
				ID:     received[i].ID,
				Status: &protocol.Status{IsDelivered: protocol.Flag(true)},
			},
		})
	}

	all := append(sent, received...)
	registry.SortByCreation(all)

	result := protocol.HistoryResult{Messages: make([]protocol.MessageView, 0, len(all))}
	for _, m := range all {
		result.Messages = append(result.Messages, view(m))
	}
	return result, nil
}
