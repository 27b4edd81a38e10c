package transfer

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sanchxt/yoop-sub002/fileio"
	"github.com/sanchxt/yoop-sub002/identity"
	"github.com/sanchxt/yoop-sub002/resume"
	"github.com/sanchxt/yoop-sub002/wire"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// ReceiverConfig configures a single inbound transfer session.
type ReceiverConfig struct {
	OutputDir         string
	SenderDeviceName  string
	SenderDeviceID    uuid.UUID
	Code              string
	KeepAliveInterval time.Duration
}

// AcceptDecision is the caller's (trust-layer-driven) verdict on whether
// to accept an incoming manifest.
type AcceptDecision struct {
	Accept bool
	Reason string
}

// ManifestDecider is consulted once per incoming manifest so the
// receiver itself never has to know about trust levels or prompts.
type ManifestDecider func(manifest wire.Manifest) AcceptDecision

// Receiver drives the receiver side of a transfer session state machine
// (spec §4.7): Preparing -> Waiting -> Connected -> [Resuming ->]
// Accepting -> Transferring -> (Completed | Cancelled | Failed).
type Receiver struct {
	conn      net.Conn
	w         *frameWriter
	cfg       ReceiverConfig
	resumeMgr *resume.Manager
	progress  *ProgressWatch

	mu    sync.Mutex
	state State
}

func NewReceiver(conn net.Conn, cfg ReceiverConfig, resumeMgr *resume.Manager) *Receiver {
	return &Receiver{
		conn:      conn,
		w:         &frameWriter{conn: conn},
		cfg:       cfg,
		resumeMgr: resumeMgr,
		progress:  NewProgressWatch(Progress{State: StatePreparing, StartedAt: time.Now()}),
	}
}

func (r *Receiver) Progress() *ProgressWatch { return r.progress }

func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Receiver) setState(st State) {
	r.mu.Lock()
	r.state = st
	r.mu.Unlock()
	r.progress.Update(func(p *Progress) { p.State = st })
}

// Run executes the whole session to completion, cancellation, or
// failure. decide is consulted once the manifest has been read.
func (r *Receiver) Run(ctx context.Context, decide ManifestDecider) error {
	defer closeOnCancel(ctx, r.conn)()

	r.setState(StateWaiting)
	r.setState(StateConnected)

	_ = r.conn.SetReadDeadline(time.Now().Add(wire.HandshakeTimeout))
	frame, rerr := wire.ReadFrame(r.conn)
	if rerr != nil {
		r.setState(StateFailed)
		return yerr.Wrap(yerr.KindConnectionLost, "failed to read manifest", rerr)
	}
	if frame.Type != wire.TypeManifest {
		r.setState(StateFailed)
		return yerr.New(yerr.KindUnexpectedMessage, "expected manifest, got "+frame.Type.String())
	}
	manifest, err := wire.DecodeManifest(frame.Payload)
	if err != nil {
		r.setState(StateFailed)
		return yerr.Wrap(yerr.KindProtocolError, "malformed manifest", err)
	}

	verdict := decide(manifest)
	if !verdict.Accept {
		_ = r.w.Write(wire.TypeManifestAck, wire.ManifestAck{Accepted: false, Reason: verdict.Reason}.Encode())
		r.setState(StateCancelled)
		return yerr.New(yerr.KindTransferRejected, "manifest rejected: "+verdict.Reason)
	}

	state, err := r.resumeMgr.Load(manifest.TransferID)
	if err != nil {
		r.setState(StateFailed)
		return err
	}
	resumeOffsets := make(map[string]uint64)
	if state != nil {
		r.setState(StateResuming)
		if err := r.negotiateResume(manifest, state, resumeOffsets); err != nil {
			r.setState(StateFailed)
			return err
		}
	} else {
		state = resume.New(manifest.TransferID, r.cfg.Code, fileEntriesFromManifest(manifest),
			r.cfg.SenderDeviceName, r.cfg.SenderDeviceID, r.cfg.OutputDir)
	}

	r.setState(StateAccepting)
	if err := r.w.Write(wire.TypeManifestAck, wire.ManifestAck{Accepted: true}.Encode()); err != nil {
		r.setState(StateFailed)
		return yerr.Wrap(yerr.KindConnectionLost, "failed to send manifest ack", err)
	}
	_ = r.conn.SetReadDeadline(time.Time{})

	r.progress.Update(func(p *Progress) { p.TotalFiles = len(manifest.Entries); p.TotalBytes = state.TotalBytes })
	r.setState(StateTransferring)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return keepAliveLoop(gctx, r.w, r.cfg.KeepAliveInterval) })
	g.Go(func() error { return r.receiveAllFiles(gctx, manifest, resumeOffsets, state) })
	if err := g.Wait(); err != nil {
		_ = r.resumeMgr.Save(state)
		if errors.Is(err, yerr.TransferCancelled) {
			r.setState(StateCancelled)
		} else {
			r.setState(StateFailed)
		}
		return err
	}

	r.setState(StateCompleted)
	return r.resumeMgr.Delete(manifest.TransferID)
}

// negotiateResume sends a ResumeRequest for every file the existing
// ResumeState has partial (but not complete) progress for, using the
// longest contiguous completed-chunk prefix as the resume point: chunks
// past a gap would otherwise be re-requested from byte 0 by the sender,
// which is correct but wasteful, so gaps simply aren't resumed.
func (r *Receiver) negotiateResume(manifest wire.Manifest, state *resume.State, resumeOffsets map[string]uint64) error {
	for idx, entry := range manifest.Entries {
		if state.IsFileCompleted(idx) {
			continue
		}
		prefix := contiguousPrefixLen(state.GetCompletedChunks(idx))
		if prefix == 0 {
			continue
		}
		offset := uint64(prefix) * fileio.ChunkSize
		req := wire.ResumeRequest{TransferID: manifest.TransferID, FilePath: entry.Path, Offset: offset}
		if err := r.w.Write(wire.TypeResumeRequest, req.Encode()); err != nil {
			return yerr.Wrap(yerr.KindConnectionLost, "failed to send resume request", err)
		}
		_ = r.conn.SetReadDeadline(time.Now().Add(wire.HandshakeTimeout))
		frame, rerr := wire.ReadFrame(r.conn)
		if rerr != nil {
			return yerr.Wrap(yerr.KindConnectionLost, "failed to read resume ack", rerr)
		}
		if frame.Type != wire.TypeResumeAck {
			return yerr.New(yerr.KindUnexpectedMessage, "expected resume ack, got "+frame.Type.String())
		}
		ack, err := wire.DecodeResumeAck(frame.Payload)
		if err != nil {
			return yerr.Wrap(yerr.KindProtocolError, "malformed resume ack", err)
		}
		if ack.Accepted {
			resumeOffsets[entry.Path] = ack.Offset
		}
	}
	return nil
}

func contiguousPrefixLen(sorted []uint32) int {
	n := 0
	for _, idx := range sorted {
		if idx != uint32(n) {
			break
		}
		n++
	}
	return n
}

func fileEntriesFromManifest(m wire.Manifest) []resume.FileEntry {
	out := make([]resume.FileEntry, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = resume.FileEntry{RelativePath: e.Path, Size: e.Size}
	}
	return out
}

func (r *Receiver) receiveAllFiles(ctx context.Context, manifest wire.Manifest, resumeOffsets map[string]uint64, state *resume.State) error {
	for idx, entry := range manifest.Entries {
		if state.IsFileCompleted(idx) {
			continue
		}
		if err := r.receiveFile(ctx, idx, entry, resumeOffsets[entry.Path], manifest.ParallelStreams, state); err != nil {
			return err
		}
	}
	return nil
}

func (r *Receiver) receiveFile(ctx context.Context, idx int, entry wire.ManifestEntry, resumeOffset uint64, parallel uint32, state *resume.State) error {
	destPath, err := fileio.SafeJoin(r.cfg.OutputDir, entry.Path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to create output directory", err)
	}

	var writer fileio.ChunkWriter
	if resumeOffset > 0 || parallel > 1 {
		writer, err = fileio.NewResumableWriter(destPath, resumeOffset)
	} else {
		writer, err = fileio.NewSequentialWriter(destPath)
	}
	if err != nil {
		return err
	}
	defer writer.Close()

	r.progress.Update(func(p *Progress) {
		p.CurrentFileIndex = idx
		p.CurrentFileName = entry.Path
		p.FileTotalBytes = entry.Size
		p.FileBytesTransferred = resumeOffset
	})

	totalChunks := (entry.Size + fileio.ChunkSize - 1) / fileio.ChunkSize
	for uint64(len(state.GetCompletedChunks(idx))) < totalChunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		_ = r.conn.SetReadDeadline(time.Now().Add(3 * effectiveKeepAlive(r.cfg.KeepAliveInterval)))
		frame, rerr := wire.ReadFrame(r.conn)
		if rerr != nil {
			if isTimeout(rerr.Err) {
				return yerr.New(yerr.KindKeepAliveFailed, "no frame received within keepalive window")
			}
			return yerr.Wrap(yerr.KindConnectionLost, "connection lost while receiving chunks", rerr)
		}

		switch frame.Type {
		case wire.TypeChunk:
			c, err := wire.DecodeChunk(frame.Payload)
			if err != nil {
				continue
			}
			if c.FilePath != entry.Path {
				continue // stray chunk for a different (already-finalized) file
			}
			plain, err := fileio.DecodeEnvelope(c.Data)
			if err == nil && identity.ChunkChecksum(plain) == c.Checksum {
				if werr := writer.WriteChunk(fileio.PlainChunk{Index: c.Index, Offset: c.Offset, Data: plain}); werr != nil {
					return werr
				}
				state.MarkChunkCompleted(idx, c.Index, uint64(len(plain)))
				r.progress.Update(func(p *Progress) {
					p.FileBytesTransferred += uint64(len(plain))
					p.TotalBytesTransferred += uint64(len(plain))
				})
				_ = r.w.Write(wire.TypeChunkAck, wire.ChunkAck{Index: c.Index, Accepted: true}.Encode())
			} else {
				_ = r.w.Write(wire.TypeChunkAck, wire.ChunkAck{Index: c.Index, Accepted: false}.Encode())
			}
		case wire.TypeKeepAlive:
			continue
		case wire.TypeCancel:
			return yerr.New(yerr.KindTransferCancelled, "sender cancelled the transfer")
		case wire.TypeBye:
			return io.EOF
		default:
			continue
		}
	}

	gotHash := writer.StrongHash()
	if entry.Hash != "" && gotHash != entry.Hash {
		return yerr.WithFields(yerr.KindChecksumMismatch, "received file hash does not match manifest", map[string]any{
			"path": entry.Path,
			"want": entry.Hash,
			"got":  gotHash,
		})
	}

	state.MarkFileCompleted(idx, gotHash)
	return nil
}
