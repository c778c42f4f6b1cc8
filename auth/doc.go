// Package auth defines the pluggable authentication handshake exchanged
// over the AUTH opcode, and the wire envelope used to frame it.
//
// Providers are per-connection: a Factory mints a fresh Provider for each
// PCC, which drives the handshake purely through the send callback handed
// to init/process and reports completion through the completion callback
// supplied by Factory.NewProvider. Neither Provider implementation here
// talks to the network directly; the conn package owns framing and
// transitions the connection state once the completion callback fires.
package auth
