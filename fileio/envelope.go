package fileio

import "github.com/sanchxt/yoop-sub002/yerr"

// Chunk-on-the-wire envelope: a single leading flag byte says whether
// the rest of the payload is zstd-compressed, so a receiver never has
// to guess from content alone (referenced from wire.Chunk.Data).
const (
	envelopeRaw  byte = 0
	envelopeZstd byte = 1
)

// EncodeEnvelope wraps plaintext chunk data for the wire, compressing it
// first when compress is true.
func EncodeEnvelope(data []byte, compress bool) ([]byte, error) {
	if !compress {
		return append([]byte{envelopeRaw}, data...), nil
	}
	compressed, err := Compress(data)
	if err != nil {
		return nil, err
	}
	return append([]byte{envelopeZstd}, compressed...), nil
}

// DecodeEnvelope reverses EncodeEnvelope, returning plaintext chunk data.
func DecodeEnvelope(wire []byte) ([]byte, error) {
	if len(wire) == 0 {
		return nil, yerr.New(yerr.KindProtocolError, "empty chunk envelope")
	}
	flag, body := wire[0], wire[1:]
	switch flag {
	case envelopeRaw:
		return body, nil
	case envelopeZstd:
		return Decompress(body)
	default:
		return nil, yerr.New(yerr.KindProtocolError, "unknown chunk envelope flag")
	}
}
