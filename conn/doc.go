// Package conn implements the Per-Connection Client (PCC): one instance per
// TCP connection to one server. A PCC owns the connection-state machine, a
// queue of operations submitted while not yet connected, frame encoding and
// decoding, a per-connection completion registry, and response dispatch.
//
// The read loop and connect goroutine are the idiomatic-Go stand-in for a
// shared I/O reactor: Go's netpoller already multiplexes socket readiness
// across goroutines, so no separate reactor abstraction is introduced (each
// PCC simply blocks its own read loop goroutine on the network). User
// callbacks are never invoked from these goroutines directly; they are
// always handed to the ordered executor keyed by ledger id, splitting the
// reader goroutine from per-request delivery.
package conn
