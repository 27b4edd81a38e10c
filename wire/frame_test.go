package wire

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello chunk data")
	if err := WriteFrame(&buf, TypeChunk, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	f, rerr := ReadFrame(&buf)
	if rerr != nil {
		t.Fatalf("ReadFrame: %v", rerr)
	}
	if f.Type != TypeChunk {
		t.Fatalf("expected TypeChunk, got %v", f.Type)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Fatalf("payload mismatch: %q != %q", f.Payload, payload)
	}
}

func TestReadFrameRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0, byte(TypeHello), 0, 0, 0, 0})
	_, rerr := ReadFrame(&buf)
	if rerr == nil || !rerr.Disconnect {
		t.Fatalf("expected a disconnect-worthy magic mismatch error")
	}
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, TypeChunk, nil)
	raw := buf.Bytes()
	// Corrupt the length field to something absurd.
	raw[5], raw[6], raw[7], raw[8] = 0x7F, 0xFF, 0xFF, 0xFF
	_, rerr := ReadFrame(bytes.NewReader(raw))
	if rerr == nil || !rerr.Disconnect {
		t.Fatalf("expected a disconnect-worthy oversize length error")
	}
}

func TestReadFrameDetectsChecksumCorruption(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, TypeChunk, []byte("payload")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF
	_, rerr := ReadFrame(bytes.NewReader(raw))
	if rerr == nil {
		t.Fatalf("expected checksum mismatch to be reported")
	}
	if rerr.Disconnect {
		t.Fatalf("checksum mismatch alone should not force a disconnect")
	}
}

func TestWriteFrameRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	huge := make([]byte, MaxFramePayloadBytes+1)
	if err := WriteFrame(&buf, TypeChunk, huge); err == nil {
		t.Fatalf("expected oversize payload to be rejected")
	}
}
