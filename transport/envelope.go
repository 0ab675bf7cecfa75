package transport

import (
	"encoding/json"
	"fmt"
)

// Envelope is the generic wire-message wrapper used by the enterprise
// transport. Every frame sent to or received from the enterprise service is
// an Envelope; the feature field routes it to the right consumer.
type Envelope struct {
	Type    string          `json:"type"`
	Feature string          `json:"feature"`
	Data    json.RawMessage `json:"data"`
}

// NewEnvelope builds an Envelope for the given type and feature, marshalling
// the payload into the data field.
func NewEnvelope(msgType, feature string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal envelope data: %w", err)
	}
	return Envelope{Type: msgType, Feature: feature, Data: data}, nil
}

// Marshal serializes the envelope to its wire form.
func (e Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// ParseEnvelope parses a raw frame into an Envelope. It returns an error if
// the frame is not a valid envelope or is missing the feature field.
func ParseEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("failed to parse envelope: %w", err)
	}
	if e.Feature == "" {
		return Envelope{}, fmt.Errorf("envelope missing feature field")
	}
	return e, nil
}
