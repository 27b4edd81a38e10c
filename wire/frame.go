// Package wire implements the yoopd-to-yoopd transport protocol (spec
// §4.5): a length-prefixed, checksummed frame codec; a self-describing
// tagged-record payload format; the Hello/AuthProof handshake; and the
// message set a transfer or sync session exchanges.
package wire

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sanchxt/yoop-sub002/yerr"
)

const (
	// FrameMagic identifies a yoopd frame stream; any other value on the
	// wire means we are not talking to a yoopd peer.
	FrameMagic uint32 = 0x596F6F70 // "Yoop"

	// FrameHeaderBytes is magic(4) + type(1) + length(4).
	FrameHeaderBytes = 9
	// ChecksumBytes is the truncated-SHA-256 trailer length.
	ChecksumBytes = 4

	// MaxFramePayloadBytes bounds a single frame's payload so a
	// malicious or buggy peer can't make us allocate unbounded memory
	// from a forged length field. Large file chunks are split across
	// multiple Chunk messages well under this bound (see fileio).
	MaxFramePayloadBytes = 4 << 20 // 4 MiB
)

// Type identifies a frame's payload kind.
type Type byte

const (
	TypeHello Type = iota + 1
	TypeHelloAck
	TypeAuthProof
	TypeManifest
	TypeManifestAck
	TypeResumeRequest
	TypeResumeAck
	TypeChunk
	TypeChunkAck
	TypeKeepAlive
	TypeCancel
	TypeReject
	TypeBye
	TypeSyncControl
	TypeSyncIndex
)

func (t Type) String() string {
	switch t {
	case TypeHello:
		return "Hello"
	case TypeHelloAck:
		return "HelloAck"
	case TypeAuthProof:
		return "AuthProof"
	case TypeManifest:
		return "Manifest"
	case TypeManifestAck:
		return "ManifestAck"
	case TypeResumeRequest:
		return "ResumeRequest"
	case TypeResumeAck:
		return "ResumeAck"
	case TypeChunk:
		return "Chunk"
	case TypeChunkAck:
		return "ChunkAck"
	case TypeKeepAlive:
		return "KeepAlive"
	case TypeCancel:
		return "Cancel"
	case TypeReject:
		return "Reject"
	case TypeBye:
		return "Bye"
	case TypeSyncControl:
		return "SyncControl"
	case TypeSyncIndex:
		return "SyncIndex"
	default:
		return fmt.Sprintf("Type(%d)", byte(t))
	}
}

// Frame is one decoded unit of the transport stream.
type Frame struct {
	Type    Type
	Payload []byte
}

// ReadError reports whether the caller should treat a malformed frame
// as a hard disconnect or just a dropped/ignored message, mirroring the
// transport-layer policy surface the handshake and session loop need.
type ReadError struct {
	Err        error
	Disconnect bool
}

func (e *ReadError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
func (e *ReadError) Unwrap() error { return e.Err }

func checksum4(payload []byte) [ChecksumBytes]byte {
	sum := sha256.Sum256(payload)
	var out [ChecksumBytes]byte
	copy(out[:], sum[:ChecksumBytes])
	return out
}

// WriteFrame writes one length-prefixed, checksummed frame to w.
func WriteFrame(w io.Writer, typ Type, payload []byte) error {
	if len(payload) > MaxFramePayloadBytes {
		return yerr.New(yerr.KindProtocolError, "frame payload exceeds maximum size")
	}
	var hdr [FrameHeaderBytes]byte
	binary.BigEndian.PutUint32(hdr[0:4], FrameMagic)
	hdr[4] = byte(typ)
	binary.BigEndian.PutUint32(hdr[5:9], uint32(len(payload)))

	if _, err := w.Write(hdr[:]); err != nil {
		return yerr.Wrap(yerr.KindConnectionLost, "failed to write frame header", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return yerr.Wrap(yerr.KindConnectionLost, "failed to write frame payload", err)
		}
	}
	c4 := checksum4(payload)
	if _, err := w.Write(c4[:]); err != nil {
		return yerr.Wrap(yerr.KindConnectionLost, "failed to write frame checksum", err)
	}
	return nil
}

// ReadFrame reads exactly one frame from r.
//
// Policy, mirroring the frame discipline this is grounded on: magic
// mismatch or oversize length is a hard disconnect (the stream can no
// longer be trusted to be framed correctly); a checksum mismatch is
// reported but does not necessarily require disconnecting, since the
// frame boundary itself was still well-formed.
func ReadFrame(r io.Reader) (*Frame, *ReadError) {
	var hdr [FrameHeaderBytes]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, &ReadError{Err: err, Disconnect: true}
	}
	magic := binary.BigEndian.Uint32(hdr[0:4])
	if magic != FrameMagic {
		return nil, &ReadError{Err: fmt.Errorf("wire: frame magic mismatch"), Disconnect: true}
	}
	typ := Type(hdr[4])
	length := binary.BigEndian.Uint32(hdr[5:9])
	if length > MaxFramePayloadBytes {
		return nil, &ReadError{Err: fmt.Errorf("wire: frame length %d exceeds maximum", length), Disconnect: true}
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, &ReadError{Err: err, Disconnect: true}
		}
	}
	var gotC4 [ChecksumBytes]byte
	if _, err := io.ReadFull(r, gotC4[:]); err != nil {
		return nil, &ReadError{Err: err, Disconnect: true}
	}
	wantC4 := checksum4(payload)
	if !bytes.Equal(gotC4[:], wantC4[:]) {
		return nil, &ReadError{Err: fmt.Errorf("wire: frame checksum mismatch"), Disconnect: false}
	}
	return &Frame{Type: typ, Payload: payload}, nil
}
