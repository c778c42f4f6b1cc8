package auth

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Envelope wraps an auth payload with the plugin name that produced it, so
// the receiving PCC can reject a mismatched plugin before handing the
// payload to its own Provider. This never crosses a language boundary (an
// AUTH frame is only ever exchanged between two instances of this client
// library and a compatible server), so it uses encoding/gob rather than a
// wire format meant for external interoperability.
type Envelope struct {
	PluginName string
	Payload    []byte
}

// EncodeEnvelope gob-encodes e for the AUTH frame body.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("auth: encode envelope: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeEnvelope reverses EncodeEnvelope.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var e Envelope
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&e); err != nil {
		return Envelope{}, fmt.Errorf("auth: decode envelope: %w", err)
	}
	return e, nil
}
