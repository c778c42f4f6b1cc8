// Package timer implements the shared periodic reaper used to scan
// completion deadlines and auth timeouts across every live connection,
// instead of each connection keeping its own goroutine and ticker.
//
// It is a lightweight single-level timing wheel: a time.Ticker firing every
// tickDuration, with registered reap functions spread evenly across
// tickCount buckets so a large fleet of connections doesn't all get scanned
// on the same tick. Nothing in the retrieved reference material implements
// a timing wheel, so this is built directly from the client tick
// duration/client tick count configuration keys the wire protocol
// describes, in the ticker-goroutine style the rest of this module uses
// for background work (see DESIGN.md).
package timer
