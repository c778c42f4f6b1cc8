package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
)

// MasterKeyLength is the fixed width of the opaque master key token clients
// present on write/fence operations.
const MasterKeyLength = 20

// DefaultMaxFrameLength is the default inbound frame size ceiling (~110 MiB).
const DefaultMaxFrameLength = 110 * 1024 * 1024

// ErrFrameTooLarge is returned by ReadFrame when a frame's declared length
// exceeds the configured maximum.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum frame length")

// ErrShortMasterKey is returned when a master key of the wrong width is supplied.
var ErrShortMasterKey = errors.New("wire: master key has wrong length")

// WriteFrame writes `u32 length | u32 header | body` to conn in a single
// scatter write via net.Buffers, avoiding a separate header-then-body
// syscall pair.
func WriteFrame(conn net.Conn, header PacketHeader, body []byte) error {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint32(prefix[0:4], uint32(4+len(body)))
	binary.BigEndian.PutUint32(prefix[4:8], header.Encode())

	buffers := net.Buffers{prefix, body}
	_, err := buffers.WriteTo(conn)
	return err
}

// ReadFrame reads one frame from conn. buf is reused as scratch space when
// large enough; a fresh buffer is allocated otherwise. maxFrameLength bounds
// the accepted body+header size (ErrFrameTooLarge otherwise).
func ReadFrame(conn net.Conn, buf []byte, maxFrameLength int) (PacketHeader, []byte, error) {
	if len(buf) < 4 {
		buf = make([]byte, 4)
	}

	if _, err := io.ReadFull(conn, buf[:4]); err != nil {
		return PacketHeader{}, nil, err
	}
	length := binary.BigEndian.Uint32(buf[:4])

	if maxFrameLength > 0 && int(length) > maxFrameLength {
		// The frame body is not discarded, so the stream is out of sync
		// after this error; the conn read loop tears the connection down.
		return PacketHeader{}, nil, ErrFrameTooLarge
	}
	if length < 4 {
		return PacketHeader{}, nil, errors.New("wire: frame shorter than header")
	}

	if len(buf) < int(length) {
		buf = make([]byte, length)
	}

	if _, err := io.ReadFull(conn, buf[:length]); err != nil {
		return PacketHeader{}, nil, err
	}

	header := DecodeHeader(binary.BigEndian.Uint32(buf[:4]))
	body := buf[4:length]
	return header, body, nil
}

// EncodeAddRequest builds the ADD_ENTRY request body: masterKey | payload.
func EncodeAddRequest(masterKey, payload []byte) ([]byte, error) {
	if len(masterKey) != MasterKeyLength {
		return nil, ErrShortMasterKey
	}
	body := make([]byte, 0, len(masterKey)+len(payload))
	body = append(body, masterKey...)
	body = append(body, payload...)
	return body, nil
}

// DecodeAddRequest splits an ADD_ENTRY request body back into its parts.
func DecodeAddRequest(body []byte) (masterKey, payload []byte, err error) {
	if len(body) < MasterKeyLength {
		return nil, nil, errors.New("wire: add request truncated")
	}
	return body[:MasterKeyLength], body[MasterKeyLength:], nil
}

// EncodeReadRequest builds the READ_ENTRY request body: ledger | entry [| masterKey].
func EncodeReadRequest(ledger LedgerID, entry EntryID, masterKey []byte) ([]byte, error) {
	size := 16
	if masterKey != nil {
		if len(masterKey) != MasterKeyLength {
			return nil, ErrShortMasterKey
		}
		size += MasterKeyLength
	}
	body := make([]byte, size)
	binary.BigEndian.PutUint64(body[0:8], ledger)
	binary.BigEndian.PutUint64(body[8:16], entry)
	if masterKey != nil {
		copy(body[16:], masterKey)
	}
	return body, nil
}

// DecodeReadRequest parses a READ_ENTRY request body. masterKey is nil unless
// the caller passed expectFencing and enough bytes were present.
func DecodeReadRequest(body []byte, expectFencing bool) (ledger LedgerID, entry EntryID, masterKey []byte, err error) {
	if len(body) < 16 {
		return 0, 0, nil, errors.New("wire: read request truncated")
	}
	ledger = binary.BigEndian.Uint64(body[0:8])
	entry = binary.BigEndian.Uint64(body[8:16])
	if expectFencing {
		if len(body) < 16+MasterKeyLength {
			return 0, 0, nil, errors.New("wire: fencing read request missing master key")
		}
		masterKey = body[16 : 16+MasterKeyLength]
	}
	return ledger, entry, masterKey, nil
}

// EncodeTrimRequest builds the TRIM request body: ledger | last_entry.
func EncodeTrimRequest(ledger LedgerID, lastEntry EntryID) []byte {
	body := make([]byte, 16)
	binary.BigEndian.PutUint64(body[0:8], ledger)
	binary.BigEndian.PutUint64(body[8:16], lastEntry)
	return body
}

// DecodeTrimRequest parses a TRIM request body.
func DecodeTrimRequest(body []byte) (ledger LedgerID, lastEntry EntryID, err error) {
	if len(body) < 16 {
		return 0, 0, errors.New("wire: trim request truncated")
	}
	return binary.BigEndian.Uint64(body[0:8]), binary.BigEndian.Uint64(body[8:16]), nil
}

// EncodeResponse builds an ADD_ENTRY/READ_ENTRY response body:
// status | ledger | entry | body.
func EncodeResponse(status Status, ledger LedgerID, entry EntryID, payload []byte) []byte {
	out := make([]byte, 20+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint64(out[4:12], ledger)
	binary.BigEndian.PutUint64(out[12:20], entry)
	copy(out[20:], payload)
	return out
}

// DecodeResponse parses an ADD_ENTRY/READ_ENTRY response body.
func DecodeResponse(body []byte) (status Status, ledger LedgerID, entry EntryID, payload []byte, err error) {
	if len(body) < 20 {
		return 0, 0, 0, nil, errors.New("wire: response truncated")
	}
	status = Status(binary.BigEndian.Uint32(body[0:4]))
	ledger = binary.BigEndian.Uint64(body[4:12])
	entry = binary.BigEndian.Uint64(body[12:20])
	payload = body[20:]
	return status, ledger, entry, payload, nil
}
