// Package pool implements the Per-Server Pool (PSP): N Per-Connection
// Clients (conn.PCC) for one server address, selected by a caller-supplied
// routing key so repeated operations for the same key land on the same
// PCC.
package pool
