// Package client implements the Client Facade (CF): the top-level object
// applications use. It maintains the address-to-pool mapping and owns the
// shared infrastructure a Config wires up (ordered executor, timer wheel,
// auth provider factory, stats sink), exposing AddEntry, ReadEntry,
// ReadEntryAndFence, ClosePeers and Close.
package client
