package auth

import "github.com/kolbv/ledgerclient/errs"

// NoopFactory produces providers that complete the handshake immediately
// with no wire traffic, for servers that don't require authentication.
type NoopFactory struct{}

func (NoopFactory) PluginName() string { return "noop" }

func (NoopFactory) NewProvider(addr string, complete CompletionFunc) Provider {
	return noopProvider{complete: complete}
}

type noopProvider struct {
	complete CompletionFunc
}

func (p noopProvider) Init(send SendFunc) {
	p.complete(errs.OK)
}

func (p noopProvider) Process(payload []byte, send SendFunc) {
	// A no-auth connection should never receive an AUTH frame; if the
	// server sends one anyway there's nothing to reply with.
}
