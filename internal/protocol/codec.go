package protocol

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// NewEnvelope wraps payload in an envelope stamped with the current time.
func NewEnvelope(t MessageType, payload any) (Envelope, error) {
	env := Envelope{
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// MustEnvelope is NewEnvelope for payload types known to marshal cleanly.
// It panics on marshal failure and is intended for package-internal payload
// structs, never for caller-supplied values.
func MustEnvelope(t MessageType, payload any) Envelope {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Encode serializes an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses and validates an inbound frame.
//
// The type field is peeked cheaply before the full unmarshal so frames with
// an unknown type are rejected without decoding their payload. Returns
// ErrMalformed or ErrUnknownType for recoverable protocol errors.
func Decode(data []byte) (Envelope, error) {
	if !gjson.ValidBytes(data) {
		return Envelope{}, ErrMalformed
	}

	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	mt := MessageType(typ.String())
	if !mt.Valid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, typ.String())
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return env, nil
}

// DecodePayload unmarshals an envelope payload into a typed struct.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: empty %s payload", ErrMalformed, env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
	}
	return nil
}
