package auth

import "github.com/kolbv/ledgerclient/errs"

// SendFunc pushes an auth payload out over the wire, framed with the AUTH
// opcode by the caller (the conn package).
type SendFunc func(payload []byte) error

// CompletionFunc reports the outcome of the handshake exactly once. code
// is errs.OK on success.
type CompletionFunc func(code errs.Code)

// Provider drives one side of an authentication handshake for a single
// connection. Init is called once, immediately after the TCP connection
// succeeds; Process is called once per inbound AUTH frame.
type Provider interface {
	// Init starts the handshake, optionally sending an initial payload via
	// send. A provider with nothing to send on connect (e.g. NoopFactory's)
	// may call send zero times and complete immediately.
	Init(send SendFunc)

	// Process handles one inbound AUTH payload (already unwrapped from its
	// Envelope), replying via send as needed.
	Process(payload []byte, send SendFunc)
}

// ProviderFactory mints a fresh Provider per connection and names the
// plugin for the wire-level compatibility check.
type ProviderFactory interface {
	// PluginName identifies this provider on the wire. An inbound
	// Envelope whose PluginName differs fails the connection with
	// errs.Unauthorized before the payload ever reaches Process.
	PluginName() string

	// NewProvider builds a Provider bound to addr, reporting completion
	// through complete exactly once.
	NewProvider(addr string, complete CompletionFunc) Provider
}
