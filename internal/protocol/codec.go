package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode wraps payload in an envelope of type t.
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("protocol: encode envelope with empty type")
	}
	if payload == nil {
		return nil, fmt.Errorf("protocol: encode %q with nil payload", t)
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %q: %w", t, err)
	}
	return json.Marshal(Envelope{T: t, P: pb})
}

// DecodeEnvelope parses the outer envelope and leaves the payload raw.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("protocol: decode empty envelope")
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if e.T == "" {
		return Envelope{}, fmt.Errorf("protocol: envelope without type")
	}
	return e, nil
}

// DecodePayload unmarshals the payload of env into T. Messages that carry no
// data (surrender, request_hint) may omit the payload; T is then zero.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 || string(env.P) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(env.P, &out); err != nil {
		return out, fmt.Errorf("protocol: decode %q payload: %w", env.T, err)
	}
	return out, nil
}
