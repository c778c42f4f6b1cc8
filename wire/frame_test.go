package wire

import (
	"bytes"
	"net"
	"testing"
	"time"
)

// pipeConn adapts net.Pipe into something the frame codec can read/write
// with real deadlines, exercising the codec against a real net.Conn
// implementation instead of a byte buffer.
func newPipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func TestFrameRoundTripAddEntry(t *testing.T) {
	client, server := newPipe(t)

	masterKey := bytes.Repeat([]byte{0xAB}, MasterKeyLength)
	payload := []byte("hi")
	body, err := EncodeAddRequest(masterKey, payload)
	if err != nil {
		t.Fatalf("EncodeAddRequest: %v", err)
	}
	header := NewHeader(OpAddEntry, FlagNone)

	done := make(chan error, 1)
	go func() { done <- WriteFrame(client, header, body) }()

	gotHeader, gotBody, err := ReadFrame(server, nil, DefaultMaxFrameLength)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if gotHeader != header {
		t.Fatalf("header mismatch: want %+v got %+v", header, gotHeader)
	}

	gotKey, gotPayload, err := DecodeAddRequest(gotBody)
	if err != nil {
		t.Fatalf("DecodeAddRequest: %v", err)
	}
	if !bytes.Equal(gotKey, masterKey) || !bytes.Equal(gotPayload, payload) {
		t.Fatalf("payload mismatch: key=%x payload=%q", gotKey, gotPayload)
	}
}

func TestFrameRoundTripResponse(t *testing.T) {
	client, server := newPipe(t)

	body := EncodeResponse(StatusOK, 5, 42, []byte("hello"))
	header := NewHeader(OpReadEntry, FlagNone)

	go func() { _ = WriteFrame(client, header, body) }()

	_, gotBody, err := ReadFrame(server, make([]byte, 64), DefaultMaxFrameLength)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	status, ledger, entry, payload, err := DecodeResponse(gotBody)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if status != StatusOK || ledger != 5 || entry != 42 || string(payload) != "hello" {
		t.Fatalf("unexpected decode: %v %v %v %q", status, ledger, entry, payload)
	}
}

func TestReadFrameRejectsOversized(t *testing.T) {
	client, server := newPipe(t)

	body := make([]byte, 100)
	go func() { _ = WriteFrame(client, NewHeader(OpTrim, FlagNone), body) }()

	_, _, err := ReadFrame(server, nil, 50)
	if err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameAtExactMaxLength(t *testing.T) {
	client, server := newPipe(t)

	// total frame length (4 header + body) equals the max exactly.
	body := make([]byte, 46)
	frameLen := 4 + len(body)

	go func() { _ = WriteFrame(client, NewHeader(OpTrim, FlagNone), body) }()

	_, gotBody, err := ReadFrame(server, nil, frameLen)
	if err != nil {
		t.Fatalf("expected frame at exactly max length to parse, got %v", err)
	}
	if len(gotBody) != len(body) {
		t.Fatalf("expected body length %d, got %d", len(body), len(gotBody))
	}
}

func TestTrimRequestRoundTrip(t *testing.T) {
	body := EncodeTrimRequest(9, 99)
	ledger, last, err := DecodeTrimRequest(body)
	if err != nil {
		t.Fatalf("DecodeTrimRequest: %v", err)
	}
	if ledger != 9 || last != 99 {
		t.Fatalf("unexpected trim decode: %v %v", ledger, last)
	}
}

func TestReadRequestRoundTripWithFencing(t *testing.T) {
	masterKey := bytes.Repeat([]byte{0x01}, MasterKeyLength)
	body, err := EncodeReadRequest(1, LastAddConfirmed, masterKey)
	if err != nil {
		t.Fatalf("EncodeReadRequest: %v", err)
	}
	ledger, entry, key, err := DecodeReadRequest(body, true)
	if err != nil {
		t.Fatalf("DecodeReadRequest: %v", err)
	}
	if ledger != 1 || entry != LastAddConfirmed || !bytes.Equal(key, masterKey) {
		t.Fatalf("unexpected decode: %v %v %x", ledger, entry, key)
	}
}

func TestReadFrameTimeout(t *testing.T) {
	_, server := newPipe(t)
	_ = server.SetReadDeadline(time.Now().Add(10 * time.Millisecond))

	_, _, err := ReadFrame(server, nil, DefaultMaxFrameLength)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}
