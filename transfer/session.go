package transfer

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sanchxt/yoop-sub002/fileio"
	"github.com/sanchxt/yoop-sub002/identity"
	"github.com/sanchxt/yoop-sub002/wire"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// DefaultKeepAliveInterval is T_keepalive: how often an idle session
// emits a KeepAlive frame. The peer gives up after 3x this interval
// with no frame received (spec §4.7).
const DefaultKeepAliveInterval = 15 * time.Second

// frameWriter serializes frame writes across the keepalive goroutine and
// whichever goroutine is dispatching protocol messages, since wire.
// WriteFrame issues multiple conn.Write calls per frame and two
// concurrent callers could otherwise interleave their bytes.
type frameWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *frameWriter) Write(typ wire.Type, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return wire.WriteFrame(w.conn, typ, payload)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// keepAliveLoop sends a KeepAlive frame every interval until ctx is
// cancelled, at which point it returns nil (errgroup.WithContext
// cancels ctx as soon as the companion worker goroutine finishes, which
// is how this loop is stopped once a transfer completes).
func keepAliveLoop(ctx context.Context, w *frameWriter, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Write(wire.TypeKeepAlive, nil); err != nil {
				return yerr.Wrap(yerr.KindConnectionLost, "failed to send keepalive", err)
			}
		}
	}
}

// closeOnCancel mirrors the teacher's peer.Run pattern: since a blocking
// read on conn can't observe ctx directly, a side goroutine closes the
// connection when ctx is done, which unblocks the read with an error.
func closeOnCancel(ctx context.Context, conn net.Conn) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// SendFile names one file on local disk to transfer, plus the relative
// path it will be announced under.
type SendFile struct {
	AbsPath string
	RelPath string
}

// SenderConfig configures a single outbound transfer session.
type SenderConfig struct {
	TransferID        uuid.UUID
	Code              string
	Files             []SendFile
	Compression       fileio.CompressionMode
	ParallelStreams   uint32
	ChunkTimeout      time.Duration
	MaxChunkRetries   int
	KeepAliveInterval time.Duration
}

// Sender drives the sender side of a transfer session state machine
// (spec §4.7): Preparing -> Waiting -> Connected -> Transferring ->
// (Completed | Cancelled | Failed). The caller is expected to have
// already completed the wire handshake on conn.
type Sender struct {
	conn     net.Conn
	w        *frameWriter
	cfg      SenderConfig
	progress *ProgressWatch

	mu    sync.Mutex
	state State
}

func NewSender(conn net.Conn, cfg SenderConfig) *Sender {
	if cfg.ParallelStreams == 0 {
		cfg.ParallelStreams = DefaultParallelStreams
	}
	var total uint64
	for _, f := range cfg.Files {
		if fi, err := os.Stat(f.AbsPath); err == nil {
			total += uint64(fi.Size())
		}
	}
	return &Sender{
		conn: conn,
		w:    &frameWriter{conn: conn},
		cfg:  cfg,
		progress: NewProgressWatch(Progress{
			State:      StatePreparing,
			TotalFiles: len(cfg.Files),
			TotalBytes: total,
			StartedAt:  time.Now(),
		}),
	}
}

func (s *Sender) Progress() *ProgressWatch { return s.progress }

func (s *Sender) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sender) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.progress.Update(func(p *Progress) { p.State = st })
}

// Run executes the whole session to completion, cancellation, or
// failure.
func (s *Sender) Run(ctx context.Context) error {
	defer closeOnCancel(ctx, s.conn)()

	s.setState(StateWaiting)
	s.setState(StateConnected)

	manifest, err := s.buildManifest()
	if err != nil {
		s.setState(StateFailed)
		return err
	}
	if err := s.w.Write(wire.TypeManifest, manifest.Encode()); err != nil {
		s.setState(StateFailed)
		return yerr.Wrap(yerr.KindConnectionLost, "failed to send manifest", err)
	}

	resumeOffsets, err := s.negotiate(ctx, manifest)
	if err != nil {
		if errors.Is(err, yerr.TransferCancelled) {
			s.setState(StateCancelled)
		} else {
			s.setState(StateFailed)
		}
		return err
	}

	s.setState(StateTransferring)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return keepAliveLoop(gctx, s.w, s.cfg.KeepAliveInterval) })
	g.Go(func() error { return s.transferAllFiles(gctx, manifest, resumeOffsets) })
	if err := g.Wait(); err != nil {
		if errors.Is(err, yerr.TransferCancelled) {
			s.setState(StateCancelled)
		} else {
			s.setState(StateFailed)
		}
		return err
	}

	s.setState(StateCompleted)
	return nil
}

func (s *Sender) buildManifest() (wire.Manifest, error) {
	entries := make([]wire.ManifestEntry, 0, len(s.cfg.Files))
	for _, f := range s.cfg.Files {
		fi, err := os.Stat(f.AbsPath)
		if err != nil {
			return wire.Manifest{}, yerr.Wrap(yerr.KindFileNotFound, "failed to stat file for manifest", err)
		}
		fh, err := os.Open(f.AbsPath) // #nosec G304 -- operator-selected send list
		if err != nil {
			return wire.Manifest{}, yerr.Wrap(yerr.KindFileNotFound, "failed to open file for hashing", err)
		}
		hash, err := identity.HashReader(fh)
		fh.Close()
		if err != nil {
			return wire.Manifest{}, yerr.Wrap(yerr.KindInternal, "failed to hash file", err)
		}
		entries = append(entries, wire.ManifestEntry{Path: f.RelPath, Size: uint64(fi.Size()), Hash: hash})
	}
	compression := string(s.cfg.Compression)
	if compression == "" {
		compression = string(fileio.CompressionAuto)
	}
	return wire.Manifest{
		TransferID:      s.cfg.TransferID,
		Entries:         entries,
		Compression:     compression,
		ParallelStreams: s.cfg.ParallelStreams,
	}, nil
}

// negotiate handles the post-Manifest exchange: zero or more
// ResumeRequests from the receiver (one per file it wants to resume),
// terminated by a ManifestAck that signals the receiver is ready for
// chunks to start flowing.
func (s *Sender) negotiate(ctx context.Context, manifest wire.Manifest) (map[string]uint64, error) {
	sizes := make(map[string]uint64, len(manifest.Entries))
	for _, e := range manifest.Entries {
		sizes[e.Path] = e.Size
	}
	resumeOffsets := make(map[string]uint64)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(wire.HandshakeTimeout))
		frame, rerr := wire.ReadFrame(s.conn)
		if rerr != nil {
			return nil, yerr.Wrap(yerr.KindConnectionLost, "failed to read manifest response", rerr)
		}
		switch frame.Type {
		case wire.TypeResumeRequest:
			req, err := wire.DecodeResumeRequest(frame.Payload)
			if err != nil {
				continue
			}
			offset := req.Offset
			size := sizes[req.FilePath]
			accepted := req.TransferID == manifest.TransferID && offset <= size
			if !accepted {
				offset = 0
			}
			ack := wire.ResumeAck{Accepted: accepted, Offset: offset}
			if err := s.w.Write(wire.TypeResumeAck, ack.Encode()); err != nil {
				return nil, yerr.Wrap(yerr.KindConnectionLost, "failed to send resume ack", err)
			}
			if accepted {
				resumeOffsets[req.FilePath] = offset
			}
		case wire.TypeManifestAck:
			ack, err := wire.DecodeManifestAck(frame.Payload)
			if err != nil {
				return nil, yerr.Wrap(yerr.KindProtocolError, "malformed manifest ack", err)
			}
			if !ack.Accepted {
				return nil, yerr.New(yerr.KindTransferRejected, "receiver rejected manifest: "+ack.Reason)
			}
			_ = s.conn.SetReadDeadline(time.Time{})
			return resumeOffsets, nil
		case wire.TypeReject:
			rej, _ := wire.DecodeReject(frame.Payload)
			return nil, yerr.New(yerr.KindConnectionRejected, "receiver rejected session: "+rej.Message)
		case wire.TypeCancel:
			return nil, yerr.New(yerr.KindTransferCancelled, "receiver cancelled before transfer began")
		default:
			continue
		}
	}
}

func (s *Sender) transferAllFiles(ctx context.Context, manifest wire.Manifest, resumeOffsets map[string]uint64) error {
	for idx, entry := range manifest.Entries {
		f := s.cfg.Files[idx]
		if err := s.transferFile(ctx, idx, f, entry, resumeOffsets[entry.Path]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) transferFile(ctx context.Context, idx int, f SendFile, entry wire.ManifestEntry, resumeOffset uint64) error {
	reader, err := fileio.OpenChunkReader(f.AbsPath)
	if err != nil {
		return err
	}
	defer reader.Close()
	if resumeOffset > 0 {
		if err := reader.SeekTo(resumeOffset); err != nil {
			return err
		}
	}

	s.progress.Update(func(p *Progress) {
		p.CurrentFileIndex = idx
		p.CurrentFileName = entry.Path
		p.FileTotalBytes = entry.Size
		p.FileBytesTransferred = resumeOffset
	})

	decision := fileio.ShouldCompressFile(f.RelPath, s.cfg.Compression)
	sched := NewScheduler(int(s.cfg.ParallelStreams), s.cfg.ChunkTimeout, s.cfg.MaxChunkRetries)

	acks := make(chan wire.ChunkAck, int(s.cfg.ParallelStreams)+1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readChunkAcks(gctx, acks) })
	g.Go(func() error {
		return s.dispatchChunks(gctx, reader, idx, s.cfg.TransferID, entry, decision, sched, acks)
	})
	return g.Wait()
}

func (s *Sender) readChunkAcks(ctx context.Context, acks chan<- wire.ChunkAck) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(3 * effectiveKeepAlive(s.cfg.KeepAliveInterval)))
		frame, rerr := wire.ReadFrame(s.conn)
		if rerr != nil {
			if isTimeout(rerr.Err) {
				return yerr.New(yerr.KindKeepAliveFailed, "no frame received within keepalive window")
			}
			return yerr.Wrap(yerr.KindConnectionLost, "connection lost while awaiting chunk acks", rerr)
		}
		switch frame.Type {
		case wire.TypeChunkAck:
			ack, err := wire.DecodeChunkAck(frame.Payload)
			if err != nil {
				continue
			}
			select {
			case acks <- ack:
			case <-ctx.Done():
				return nil
			}
		case wire.TypeKeepAlive:
			continue
		case wire.TypeCancel:
			return yerr.New(yerr.KindTransferCancelled, "receiver cancelled the transfer")
		case wire.TypeBye:
			return io.EOF
		default:
			continue
		}
	}
}

func effectiveKeepAlive(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultKeepAliveInterval
	}
	return d
}

func (s *Sender) dispatchChunks(ctx context.Context, reader *fileio.ChunkReader, idx int, transferID uuid.UUID, entry wire.ManifestEntry, decision fileio.Decision, sched *Scheduler, acks <-chan wire.ChunkAck) error {
	outstanding := make(map[uint32]wire.Chunk)
	doneSending := false
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	send := func(c wire.Chunk) error {
		if err := s.w.Write(wire.TypeChunk, c.Encode()); err != nil {
			return yerr.Wrap(yerr.KindConnectionLost, "failed to send chunk", err)
		}
		outstanding[c.Index] = c
		sched.Track(ChunkRef{FileIndex: idx, ChunkIndex: c.Index}, time.Now())
		return nil
	}

	for {
		for !doneSending && sched.HasRoom() {
			plain, err := reader.Next()
			if errors.Is(err, io.EOF) {
				doneSending = true
				break
			}
			if err != nil {
				return err
			}
			compress := decision == fileio.DecisionCompress ||
				(decision == fileio.DecisionTestFirstChunk && plain.Index == 0)
			envelope, err := fileio.EncodeEnvelope(plain.Data, compress)
			if err != nil {
				return yerr.Wrap(yerr.KindInternal, "failed to build chunk envelope", err)
			}
			c := wire.Chunk{
				TransferID: transferID,
				FilePath:   entry.Path,
				Index:      plain.Index,
				Offset:     plain.Offset,
				Checksum:   plain.Checksum,
				Data:       envelope,
			}
			if err := send(c); err != nil {
				return err
			}
		}

		if doneSending && sched.Outstanding() == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ack, ok := <-acks:
			if !ok {
				return yerr.Wrap(yerr.KindConnectionLost, "chunk ack stream closed", io.ErrClosedPipe)
			}
			sched.Ack(ChunkRef{FileIndex: idx, ChunkIndex: ack.Index})
			if ack.Accepted {
				if c, ok := outstanding[ack.Index]; ok {
					s.progress.Update(func(p *Progress) {
						p.FileBytesTransferred += uint64(len(c.Data))
						p.TotalBytesTransferred += uint64(len(c.Data))
					})
				}
				delete(outstanding, ack.Index)
			} else if c, ok := outstanding[ack.Index]; ok {
				// checksum mismatch on the receiver: resend immediately.
				if err := send(c); err != nil {
					return err
				}
			}
		case now := <-ticker.C:
			retransmit, failed := sched.CheckTimeouts(now)
			if len(failed) > 0 {
				return yerr.New(yerr.KindConnectionLost, "chunk retransmit limit exceeded")
			}
			for _, ref := range retransmit {
				if c, ok := outstanding[ref.ChunkIndex]; ok {
					if err := s.w.Write(wire.TypeChunk, c.Encode()); err != nil {
						return yerr.Wrap(yerr.KindConnectionLost, "failed to retransmit chunk", err)
					}
				}
			}
		}
	}
}
