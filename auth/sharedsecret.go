package auth

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/kolbv/ledgerclient/errs"
)

// SharedSecretFactory implements a minimal two-message challenge/response
// handshake: the client sends its secret once on connect, and treats the
// server's gob-encoded reply as success only if it decodes with OK set;
// anything else fails with errs.Unauthorized. It exists mainly to give
// the Envelope/gob codec and the Provider interface a concrete, testable
// implementation beyond NoopFactory; production deployments would plug in
// something backed by TLS client certs or a token service instead.
type SharedSecretFactory struct {
	Secret []byte
}

func (f SharedSecretFactory) PluginName() string { return "shared-secret" }

func (f SharedSecretFactory) NewProvider(addr string, complete CompletionFunc) Provider {
	return &sharedSecretProvider{secret: f.Secret, complete: complete}
}

type sharedSecretChallenge struct {
	Secret []byte
}

type sharedSecretReply struct {
	OK bool
}

type sharedSecretProvider struct {
	secret   []byte
	complete CompletionFunc
	sent     bool
}

func (p *sharedSecretProvider) Init(send SendFunc) {
	payload, err := encodeGob(sharedSecretChallenge{Secret: p.secret})
	if err != nil {
		p.complete(errs.Unauthorized)
		return
	}
	p.sent = true
	if err := send(payload); err != nil {
		p.complete(errs.Unauthorized)
	}
}

func (p *sharedSecretProvider) Process(payload []byte, send SendFunc) {
	if !p.sent {
		p.complete(errs.Unauthorized)
		return
	}
	var reply sharedSecretReply
	if err := decodeGob(payload, &reply); err != nil || !reply.OK {
		p.complete(errs.Unauthorized)
		return
	}
	p.complete(errs.OK)
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("auth: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeGob(body []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(v); err != nil {
		return fmt.Errorf("auth: decode: %w", err)
	}
	return nil
}
