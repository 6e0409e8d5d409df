// Package wire defines the FlashFood gateway wire protocol: the event
// envelope, typed payloads for every event the sync engine speaks, and
// boundary validation for inbound payloads.
package wire

import (
	"encoding/json"
	"fmt"
)

// Envelope is the framing for every gateway event, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode wraps a payload in an Envelope and marshals it.
func Encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %s payload: %w", event, err)
	}
	env := Envelope{Event: event, Data: data}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %s envelope: %w", event, err)
	}
	return b, nil
}

// Decode parses raw bytes into an Envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("wire: envelope missing event name")
	}
	return env, nil
}
