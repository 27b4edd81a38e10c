package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"io"

	"github.com/cespare/xxhash/v2"
)

// ChunkChecksum returns the xxHash64 of a chunk's plaintext bytes, hex
// encoded. It is cheap enough to compute per chunk on every transfer
// (spec §4.6's "weak" chunk integrity check).
func ChunkChecksum(data []byte) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], xxhash.Sum64(data))
	return hex.EncodeToString(buf[:])
}

// StrongFileHash incrementally computes the SHA-256 of an entire file's
// content as chunks stream through, independent of chunk boundaries or
// arrival order (spec §4.6's "strong" whole-file integrity check).
//
// Because chunks may arrive out of order over multiple parallel streams,
// callers must Write in file-offset order; the resumable writer does
// this by buffering out-of-order chunks until the hash's cursor reaches
// them (see fileio.ResumableWriter).
type StrongFileHash struct {
	h hash.Hash
}

func NewStrongFileHash() *StrongFileHash {
	return &StrongFileHash{h: sha256.New()}
}

func (s *StrongFileHash) Write(p []byte) (int, error) { return s.h.Write(p) }

func (s *StrongFileHash) Sum() string { return hex.EncodeToString(s.h.Sum(nil)) }

// HashReader returns the hex SHA-256 of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentHash64 returns the raw xxHash64 of everything read from r, used
// for the sync engine's content-based change detection (spec §4.9): a
// fast, non-cryptographic fingerprint, distinct from the per-chunk
// ChunkChecksum and the strong whole-file StrongFileHash above.
func ContentHash64(r io.Reader) (uint64, error) {
	h := xxhash.New()
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
