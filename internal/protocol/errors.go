package protocol

import "errors"

// Generic request errors.
var (
	// ErrTypeInvalid means no handler claims the request type, or the client
	// sent a server-only type.
	ErrTypeInvalid = errors.New("incorrect type parameters")
	// ErrPayloadInvalid means the payload is malformed for its type.
	ErrPayloadInvalid = errors.New("incorrect payload parameters")
)

// Auth errors.
var (
	ErrInvalidCredentials = errors.New("incorrect password")
	ErrNotAuthorized      = errors.New("the user was not authorized")
	ErrAlreadyAuthorized  = errors.New("a user is already authorized on this connection")
)

// Messaging errors.
var (
	ErrSelfTarget       = errors.New("sender and recipient logins are the same")
	ErrTargetNotFound   = errors.New("the user with the specified login does not exist")
	ErrMessageIDInvalid = errors.New("incorrect message id")
	ErrNotSender        = errors.New("user not sender cannot be executed")
	ErrNotRecipient     = errors.New("user not recipient cannot be executed")
)

// ErrInternal is reported to clients in place of errors that are not part
// of the taxonomy above.
var ErrInternal = errors.New("internal server error")

var codes = []struct {
	err  error
	code string
}{
	{ErrTypeInvalid, "type_invalid"},
	{ErrPayloadInvalid, "payload_invalid"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrNotAuthorized, "not_authorized"},
	{ErrAlreadyAuthorized, "already_authorized"},
	{ErrSelfTarget, "self_target"},
	{ErrTargetNotFound, "target_not_found"},
	{ErrMessageIDInvalid, "record_not_found"},
	{ErrNotSender, "not_owner"},
	{ErrNotRecipient, "not_owner"},
}

// Code classifies err for metrics. nil maps to "ok".
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// Reason returns the client-facing text for err.
func Reason(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.err.Error()
		}
	}
	return ErrInternal.Error()
}
