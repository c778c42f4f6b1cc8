// Package wire implements the on-the-wire framing for the ledger client
// networking core: packet headers, opcodes, status codes, and the
// length-prefixed frame codec shared by every operation the client issues.
//
// Every frame is:
//
//	u32 total_length_excluding_this_field | u32 packet_header | body
//
// The packet header packs a protocol version (8 bits), an opcode (8 bits)
// and flags (16 bits) into a single uint32. Bodies are opcode-specific and
// are encoded/decoded by the Encode*/Decode* helpers in this package.
package wire
