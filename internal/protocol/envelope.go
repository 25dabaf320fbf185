package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the {id, type, payload} unit exchanged in both directions.
// ID is nil for server-initiated pushes.
type Envelope struct {
	ID      *string         `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorPayload is the payload of an envelope of type "error".
type ErrorPayload struct {
	Error string `json:"error"`
}

// Decode parses a raw frame into an Envelope. A frame without a type is
// rejected.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("decode envelope: %w", ErrTypeInvalid)
	}
	return env, nil
}

// NewEnvelope builds an envelope around any JSON-encodable payload.
func NewEnvelope(id *string, typ string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Envelope{ID: id, Type: typ, Payload: raw}, nil
}

// NewPush builds a server-initiated envelope.
func NewPush(typ string, payload any) (Envelope, error) {
	return NewEnvelope(nil, typ, payload)
}

// ErrorEnvelope builds the response sent when a request fails. The original
// request id is echoed back.
func ErrorEnvelope(id *string, err error) Envelope {
	raw, _ := json.Marshal(ErrorPayload{Error: Reason(err)})
	return Envelope{ID: id, Type: TypeError, Payload: raw}
}

// Encode serialises an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	if env.Payload == nil {
		env.Payload = json.RawMessage("null")
	}
	return json.Marshal(env)
}

// DecodePayload unmarshals an envelope payload into dst. A missing or
// non-object payload is reported as ErrPayloadInvalid.
func DecodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return ErrPayloadInvalid
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return ErrPayloadInvalid
	}
	return nil
}
