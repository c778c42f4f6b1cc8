// Package registry implements the per-connection Completion Registry: the
// correlation tables mapping a (ledger, entry) request key to the pending
// completion it should resolve, plus a deadline index for timeout scanning.
//
// Two independently thread-safe tables are kept, exactly mirroring the
// asymmetric key semantics the wire protocol requires: at most one
// in-flight add per key (the add table is a plain unique map), and any
// number of concurrent reads per key, resolved in submission order (the
// read table is a map of insertion-ordered queues).
package registry
