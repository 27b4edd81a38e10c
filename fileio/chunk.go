package fileio

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sanchxt/yoop-sub002/identity"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// ChunkSize is the fixed read/write unit for file transfer (spec §4.6).
// 1 MiB balances per-chunk protocol overhead against responsive
// progress reporting and resumability granularity.
const ChunkSize = 1 << 20

// PlainChunk is one piece of file content read off disk, before the
// compression decision has been applied.
type PlainChunk struct {
	Index    uint32
	Offset   uint64
	Data     []byte
	Checksum string // xxHash64 of Data, hex
}

// ChunkReader reads a file sequentially in ChunkSize pieces.
type ChunkReader struct {
	f     *os.File
	index uint32
}

func OpenChunkReader(path string) (*ChunkReader, error) {
	f, err := os.Open(path) // #nosec G304 -- path validated by caller via SafeJoin
	if err != nil {
		if os.IsNotExist(err) {
			return nil, yerr.WithFields(yerr.KindFileNotFound, "file not found", map[string]any{"path": path})
		}
		if os.IsPermission(err) {
			return nil, yerr.WithFields(yerr.KindPermissionDenied, "permission denied", map[string]any{"path": path})
		}
		return nil, yerr.Wrap(yerr.KindInternal, "failed to open file for reading", err)
	}
	return &ChunkReader{f: f}, nil
}

// Next reads the next chunk, or returns io.EOF when the file is
// exhausted.
func (r *ChunkReader) Next() (PlainChunk, error) {
	offset, err := r.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return PlainChunk{}, yerr.Wrap(yerr.KindInternal, "failed to query file offset", err)
	}
	buf := make([]byte, ChunkSize)
	n, err := io.ReadFull(r.f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return PlainChunk{}, yerr.Wrap(yerr.KindInternal, "failed to read chunk", err)
	}
	if n == 0 {
		return PlainChunk{}, io.EOF
	}
	data := buf[:n]
	c := PlainChunk{
		Index:    r.index,
		Offset:   uint64(offset),
		Data:     data,
		Checksum: identity.ChunkChecksum(data),
	}
	r.index++
	return c, nil
}

func (r *ChunkReader) Close() error { return r.f.Close() }

// SeekTo repositions the reader at a resumed transfer's offset, which
// must fall on a chunk boundary (the sender only ever acks whole
// chunks, so a valid resume offset is always a multiple of ChunkSize).
func (r *ChunkReader) SeekTo(offset uint64) error {
	if offset%ChunkSize != 0 {
		return yerr.WithFields(yerr.KindResumeMismatch, "resume offset is not chunk-aligned", map[string]any{"offset": offset})
	}
	if _, err := r.f.Seek(int64(offset), io.SeekStart); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to seek chunk reader", err)
	}
	r.index = uint32(offset / ChunkSize)
	return nil
}

// SafeJoin joins a user-supplied relative path onto root, rejecting any
// path that would escape root (absolute paths and ".." components are
// caught by the Clean-then-prefix check below): the analog of the teacher's
// os.DirFS-scoped reads, generalized from read-only to write-safe.
func SafeJoin(root, relative string) (string, error) {
	if relative == "" || relative == "." {
		return "", yerr.WithFields(yerr.KindInvalidPath, "empty relative path", map[string]any{"path": relative})
	}
	normalized := filepath.ToSlash(relative)
	clean := filepath.Clean(normalized)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, `..\`) {
		return "", yerr.WithFields(yerr.KindInvalidPath, "path escapes transfer root", map[string]any{"path": relative})
	}
	return filepath.Join(root, clean), nil
}
