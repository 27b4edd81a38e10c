package syncengine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sanchxt/yoop-sub002/identity"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// EventKind tags a SyncEvent's payload (spec §4.9 "Events").
type EventKind int

const (
	EventConnected EventKind = iota
	EventIndexExchanged
	EventReconcileStart
	EventFileSending
	EventFileSent
	EventFileReceiving
	EventFileReceived
	EventFileDeleted
	EventConflict
	EventError
	EventStats
)

// SyncEvent is one lazily-delivered notification from a running sync
// session. Only the fields relevant to Kind are populated.
type SyncEvent struct {
	Kind        EventKind
	Path        string
	Resolution  string
	LocalCount  int
	RemoteCount int
	OpsCount    int
	Err         error
	Stats       Stats
}

// Stats accumulates counters for one sync session (spec §4.9, mirroring
// the original SyncStats).
type Stats struct {
	Duration      time.Duration
	FilesSent     uint64
	FilesReceived uint64
	BytesSent     uint64
	BytesReceived uint64
	Conflicts     uint64
	Errors        uint64
}

func (s Stats) TotalOperations() uint64 { return s.FilesSent + s.FilesReceived }
func (s Stats) TotalBytes() uint64      { return s.BytesSent + s.BytesReceived }

// Transport is the engine's view of the underlying transfer session: it
// knows nothing about wire framing or TCP, only how to push one sync
// operation to the peer. session's wireTransport (sync.go) is the concrete
// implementation, backed by transfer.Sender for Create/Modify and control frames for
// Delete/Rename.
type Transport interface {
	SendCreate(path, absPath string) error
	SendModify(path, absPath string) error
	SendDelete(path string) error
	SendRename(fromPath, toPath string) error
}

// Engine drives one side of a bidirectional sync session: it builds the
// local index, reconciles it against a peer-supplied remote index,
// applies the resulting plan through a Transport, and — once the initial
// reconciliation settles — forwards live filesystem changes the same way.
type Engine struct {
	cfg       Config
	transport Transport
	suppress  *EchoSuppressor
	events    chan SyncEvent
	cache     *IndexCache

	mu       sync.Mutex
	previous Index
	stats    Stats
}

func NewEngine(cfg Config, transport Transport) *Engine {
	return &Engine{
		cfg:       cfg,
		transport: transport,
		suppress:  NewEchoSuppressor(),
		events:    make(chan SyncEvent, 16),
	}
}

// NewEngineWithCache is NewEngine plus a persisted "previous" index: on
// construction it loads whatever was last saved for cfg.SyncRoot (a no-op
// if this root has never synced before), and every Reconcile call saves
// the new snapshot back, so a restarted process still tells "peer just
// created this" apart from "I deleted this since we last synced".
func NewEngineWithCache(cfg Config, transport Transport, cache *IndexCache) (*Engine, error) {
	e := NewEngine(cfg, transport)
	e.cache = cache
	if cache != nil {
		idx, ok, err := cache.Load(cfg.SyncRoot)
		if err != nil {
			return nil, err
		}
		if ok {
			e.previous = idx
		}
	}
	return e, nil
}

// Events returns the bounded event stream (spec §5: "a single bounded
// channel, default capacity 16").
func (e *Engine) Events() <-chan SyncEvent { return e.events }

func (e *Engine) emit(ev SyncEvent) {
	select {
	case e.events <- ev:
	default:
		// A slow consumer backs up the bounded channel; drop rather than
		// block the sync loop, same tradeoff as ProgressWatch.
	}
}

// BuildLocalIndex walks the sync root, ready to be exchanged with the
// peer before reconciliation.
func (e *Engine) BuildLocalIndex() (Index, error) {
	return BuildIndex(e.cfg)
}

// Reconcile computes and applies the plan to converge remote with the
// local index just built, emitting the Events the spec names along the
// way. It returns the local index used, which the engine also keeps (and
// saves to its cache, if any) as the next round's `previous`.
func (e *Engine) Reconcile(ctx context.Context, local, remote Index) (Index, error) {
	e.emit(SyncEvent{Kind: EventIndexExchanged, LocalCount: len(local), RemoteCount: len(remote)})

	e.mu.Lock()
	previous := e.previous
	e.mu.Unlock()

	ops, conflicts := Reconcile(local, remote, previous, e.cfg)
	e.emit(SyncEvent{Kind: EventReconcileStart, OpsCount: len(ops)})

	for _, c := range conflicts {
		if err := e.resolveConflict(c); err != nil {
			e.recordError(err)
		}
	}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return local, err
		}
		if err := e.apply(op); err != nil {
			e.recordError(err)
		}
	}

	e.mu.Lock()
	e.previous = local
	e.mu.Unlock()

	if e.cache != nil {
		if err := e.cache.Save(e.cfg.SyncRoot, local); err != nil {
			e.recordError(err)
		}
	}
	return local, nil
}

func (e *Engine) resolveConflict(c Conflict) error {
	winner := Resolve(c, e.cfg.Resolution)
	e.emit(SyncEvent{Kind: EventConflict, Path: c.Path, Resolution: resolutionLabel(winner)})
	e.mu.Lock()
	e.stats.Conflicts++
	e.mu.Unlock()

	absPath := filepath.Join(e.cfg.SyncRoot, c.Path)
	switch winner {
	case WinnerLocal:
		return e.sendFile(OpModify, c.Path, absPath)
	case WinnerRemote:
		return nil // the peer's own reconcile will push its version to us
	case WinnerBoth:
		renamed := LoserRenamePath(c.Path, "peer", time.Now())
		renamedAbs := filepath.Join(e.cfg.SyncRoot, renamed)
		if err := os.Rename(absPath, renamedAbs); err != nil {
			return yerr.Wrap(yerr.KindInternal, "failed to rename conflicting file aside", err)
		}
		return e.sendFile(OpCreate, renamed, renamedAbs)
	}
	return nil
}

func resolutionLabel(winner Winner) string {
	switch {
	case winner == WinnerBoth:
		return "keep_both"
	case winner == WinnerLocal:
		return "local_wins"
	default:
		return "remote_wins"
	}
}

func (e *Engine) apply(op Op) error {
	absPath := filepath.Join(e.cfg.SyncRoot, op.Path)
	switch op.Kind {
	case OpCreate:
		return e.sendFile(OpCreate, op.Path, absPath)
	case OpModify:
		return e.sendFile(OpModify, op.Path, absPath)
	case OpDelete:
		if !e.cfg.SyncDeletions {
			return nil
		}
		e.emit(SyncEvent{Kind: EventFileDeleted, Path: op.Path})
		return e.transport.SendDelete(op.Path)
	case OpRename:
		return e.transport.SendRename(op.FromPath, op.Path)
	}
	return nil
}

func (e *Engine) sendFile(kind OpKind, path, absPath string) error {
	e.emit(SyncEvent{Kind: EventFileSending, Path: path})

	info, err := os.Stat(absPath)
	if err != nil {
		return yerr.Wrap(yerr.KindFileNotFound, "failed to stat file for sync send", err)
	}
	var hash uint64
	if f, ferr := os.Open(absPath); ferr == nil { // #nosec G304 -- absPath is joined from the configured sync root
		hash, _ = identity.ContentHash64(f)
		f.Close()
	}
	e.suppress.Seed(path, hash)

	var sendErr error
	if kind == OpCreate {
		sendErr = e.transport.SendCreate(path, absPath)
	} else {
		sendErr = e.transport.SendModify(path, absPath)
	}
	if sendErr != nil {
		return sendErr
	}

	e.mu.Lock()
	e.stats.FilesSent++
	e.stats.BytesSent += uint64(info.Size())
	e.mu.Unlock()
	e.emit(SyncEvent{Kind: EventFileSent, Path: path})
	return nil
}

func (e *Engine) recordError(err error) {
	e.mu.Lock()
	e.stats.Errors++
	e.mu.Unlock()
	e.emit(SyncEvent{Kind: EventError, Err: err})
}

// Stats returns a snapshot of the session's accumulated counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// RunLive watches the sync root after initial reconciliation, forwarding
// each debounced, non-echoed local change to the peer until ctx is
// cancelled.
func (e *Engine) RunLive(ctx context.Context) error {
	w, err := NewWatcher(e.cfg, e.suppress)
	if err != nil {
		return err
	}

	watchErr := make(chan error, 1)
	go func() { watchErr <- w.Run(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return <-watchErr
		case op, ok := <-w.Ops():
			if !ok {
				return <-watchErr
			}
			if err := e.apply(op); err != nil {
				e.recordError(err)
			}
		}
	}
}
