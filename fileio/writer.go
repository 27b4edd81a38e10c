package fileio

import (
	"errors"
	"io"
	"os"
	"syscall"

	"github.com/sanchxt/yoop-sub002/identity"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// ChunkWriter is the common surface SequentialWriter and ResumableWriter
// both satisfy, so a caller that doesn't care which mode is in use (the
// transfer receiver picks one based on negotiated parallel streams) can
// hold either behind one interface.
type ChunkWriter interface {
	WriteChunk(c PlainChunk) error
	StrongHash() string
	Close() error
}

// SequentialWriter writes chunks to disk in strictly increasing offset
// order (parallel_streams == 1, per DESIGN.md's Open Question #1
// decision): it can therefore feed the incremental whole-file hash as
// bytes land, with no reordering buffer.
type SequentialWriter struct {
	f        *os.File
	expected uint64
	hash     *identity.StrongFileHash
}

func NewSequentialWriter(path string) (*SequentialWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) // #nosec G304 -- path validated by SafeJoin
	if err != nil {
		if os.IsPermission(err) {
			return nil, yerr.WithFields(yerr.KindPermissionDenied, "permission denied creating file", map[string]any{"path": path})
		}
		return nil, yerr.Wrap(yerr.KindInternal, "failed to create file", err)
	}
	return &SequentialWriter{f: f, hash: identity.NewStrongFileHash()}, nil
}

// WriteChunk appends c, which must arrive in order (offset ==
// bytes written so far).
func (w *SequentialWriter) WriteChunk(c PlainChunk) error {
	if c.Offset != w.expected {
		return yerr.WithFields(yerr.KindProtocolError, "out-of-order chunk for sequential writer",
			map[string]any{"expected_offset": w.expected, "got_offset": c.Offset})
	}
	n, err := w.f.Write(c.Data)
	if err != nil {
		return classifyWriteErr(err)
	}
	if _, err := w.hash.Write(c.Data); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to update file hash", err)
	}
	w.expected += uint64(n)
	return nil
}

func (w *SequentialWriter) StrongHash() string { return w.hash.Sum() }

func (w *SequentialWriter) Close() error { return w.f.Close() }

// ResumableWriter writes chunks at arbitrary offsets via WriteAt,
// supporting parallel streams and mid-transfer resume. Because chunks
// can arrive out of order, the whole-file strong hash can only advance
// up to the highest *contiguous* offset received; chunks past a gap are
// buffered in pending until the gap closes.
type ResumableWriter struct {
	f        *os.File
	hash     *identity.StrongFileHash
	hashed   uint64 // bytes fed into hash so far, always contiguous from 0
	pending  map[uint64]PlainChunk
	received map[uint64]bool
}

func NewResumableWriter(path string, resumeFrom uint64) (*ResumableWriter, error) {
	flags := os.O_CREATE | os.O_RDWR
	f, err := os.OpenFile(path, flags, 0o644) // #nosec G304 -- path validated by SafeJoin
	if err != nil {
		if os.IsPermission(err) {
			return nil, yerr.WithFields(yerr.KindPermissionDenied, "permission denied creating file", map[string]any{"path": path})
		}
		return nil, yerr.Wrap(yerr.KindInternal, "failed to create file", err)
	}
	hash := identity.NewStrongFileHash()
	if resumeFrom > 0 {
		if err := seedHashFromDisk(f, hash, resumeFrom); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &ResumableWriter{
		f:        f,
		hash:     hash,
		hashed:   resumeFrom,
		pending:  make(map[uint64]PlainChunk),
		received: make(map[uint64]bool),
	}, nil
}

// seedHashFromDisk feeds the already-durable prefix [0, n) of a resumed
// file into hash, so StrongHash() reflects the whole file rather than
// only the bytes received in this process's lifetime.
func seedHashFromDisk(f *os.File, hash *identity.StrongFileHash, n uint64) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to seek resumed file for hashing", err)
	}
	if _, err := io.CopyN(hash, f, int64(n)); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to hash already-durable bytes on resume", err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to restore file position after resume hashing", err)
	}
	return nil
}

// WriteChunk writes c at its declared offset and advances the
// contiguous hash cursor as far as currently-buffered chunks allow.
func (w *ResumableWriter) WriteChunk(c PlainChunk) error {
	if w.received[c.Offset] {
		return nil // duplicate chunk (retransmit), already durable
	}
	if _, err := w.f.WriteAt(c.Data, int64(c.Offset)); err != nil {
		return classifyWriteErr(err)
	}
	w.received[c.Offset] = true
	w.pending[c.Offset] = c
	w.drainContiguous()
	return nil
}

func (w *ResumableWriter) drainContiguous() {
	for {
		c, ok := w.pending[w.hashed]
		if !ok {
			return
		}
		w.hash.Write(c.Data)
		w.hashed += uint64(len(c.Data))
		delete(w.pending, c.Offset)
	}
}

// HashComplete reports whether every byte up to totalSize has been fed
// into the strong hash (i.e. no gaps remain).
func (w *ResumableWriter) HashComplete(totalSize uint64) bool { return w.hashed >= totalSize }

func (w *ResumableWriter) StrongHash() string { return w.hash.Sum() }

func (w *ResumableWriter) Close() error { return w.f.Close() }

func classifyWriteErr(err error) error {
	if os.IsPermission(err) {
		return yerr.Wrap(yerr.KindPermissionDenied, "permission denied writing file", err)
	}
	if errors.Is(err, syscall.ENOSPC) {
		return yerr.Wrap(yerr.KindInsufficientSpace, "no space left on device", err)
	}
	return yerr.Wrap(yerr.KindInternal, "failed to write file", err)
}
