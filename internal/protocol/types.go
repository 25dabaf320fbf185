// Package protocol defines the envelope exchanged over a relay connection,
// the fixed set of type tags, payload shapes, and the error taxonomy shared
// by the dispatcher and the session layer.
package protocol

// Client-originated request types.
const (
	TypeLogin         = "login"
	TypeLogout        = "logout"
	TypeSetActive     = "set-active"
	TypeSetInactive   = "set-inactive"
	TypeSendMessage   = "send-message"
	TypeMarkRead      = "mark-read"
	TypeEditMessage   = "edit-message"
	TypeDeleteMessage = "delete-message"
	TypeHistoryQuery  = "history-query"
)

// Server-originated types. A client sending any of these gets ErrTypeInvalid.
const (
	TypeReceiveMessage   = "receive-message"
	TypeDeliveredReceipt = "delivered-receipt"
	TypeExternalLogin    = "external-login"
	TypeExternalLogout   = "external-logout"
	TypeReadFromServer   = "read-from-server"
	TypeDeleteFromServer = "delete-from-server"
	TypeEditFromServer   = "edit-from-server"
	TypeError            = "error"
)

var requestTypes = map[string]struct{}{
	TypeLogin:         {},
	TypeLogout:        {},
	TypeSetActive:     {},
	TypeSetInactive:   {},
	TypeSendMessage:   {},
	TypeMarkRead:      {},
	TypeEditMessage:   {},
	TypeDeleteMessage: {},
	TypeHistoryQuery:  {},
}

var serverOnly = map[string]struct{}{
	TypeReceiveMessage:   {},
	TypeDeliveredReceipt: {},
	TypeExternalLogin:    {},
	TypeExternalLogout:   {},
	TypeReadFromServer:   {},
	TypeDeleteFromServer: {},
	TypeEditFromServer:   {},
	TypeError:            {},
}

// IsServerOnly reports whether t may only be produced by the server.
func IsServerOnly(t string) bool {
	_, ok := serverOnly[t]
	return ok
}

// IsKnown reports whether t is one of the protocol's type tags.
func IsKnown(t string) bool {
	if _, ok := requestTypes[t]; ok {
		return true
	}
	return IsServerOnly(t)
}

// relabels maps "-from-server" push types to the request type the receiving
// client already understands.
var relabels = map[string]string{
	TypeReadFromServer:   TypeMarkRead,
	TypeDeleteFromServer: TypeDeleteMessage,
	TypeEditFromServer:   TypeEditMessage,
}

// WireType returns the type tag a push of type t carries on the wire.
func WireType(t string) string {
	if base, ok := relabels[t]; ok {
		return base
	}
	return t
}
