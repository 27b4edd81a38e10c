package syncengine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sanchxt/yoop-sub002/identity"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// echoWindow is how long a write-intent entry survives before it is
// considered stale and no longer suppresses the watcher's own echo.
const echoWindow = 5 * time.Second

// EchoSuppressor prevents the live watcher from re-emitting an op for a
// path this engine just wrote to disk itself (spec §4.9 invariant: "no
// outgoing operation is emitted for a path the engine just wrote
// locally"). The sender of a remote update seeds the suppressor with the
// written content's hash before the OS-level write lands, so the
// subsequent fsnotify event (which always arrives after the write) is
// recognized as an echo and dropped.
type EchoSuppressor struct {
	mu      sync.Mutex
	intents map[string]echoIntent
}

type echoIntent struct {
	hash uint64
	at   time.Time
}

func NewEchoSuppressor() *EchoSuppressor {
	return &EchoSuppressor{intents: make(map[string]echoIntent)}
}

// Seed records that path is about to be written locally with the given
// content hash, so the next matching filesystem event is suppressed.
func (e *EchoSuppressor) Seed(path string, hash uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intents[path] = echoIntent{hash: hash, at: time.Now()}
}

// ShouldSuppress reports whether the given (path, hash) observation
// matches a recent Seed call, consuming the intent if so.
func (e *EchoSuppressor) ShouldSuppress(path string, hash uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	intent, ok := e.intents[path]
	if !ok {
		return false
	}
	delete(e.intents, path)
	if time.Since(intent.at) > echoWindow {
		return false
	}
	return intent.hash == hash
}

// Watcher subscribes to filesystem changes under a sync root and
// produces a debounced stream of Ops.
type Watcher struct {
	cfg       Config
	fsw       *fsnotify.Watcher
	suppress  *EchoSuppressor
	out       chan Op
	pending   map[string]*time.Timer
	pendingMu sync.Mutex
}

func NewWatcher(cfg Config, suppress *EchoSuppressor) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to create filesystem watcher", err)
	}
	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		suppress: suppress,
		out:      make(chan Op, 16),
		pending:  make(map[string]*time.Timer),
	}
	if err := filepath.WalkDir(cfg.SyncRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	}); err != nil {
		_ = fsw.Close()
		return nil, yerr.Wrap(yerr.KindInternal, "failed to register watch paths", err)
	}
	return w, nil
}

// Ops returns the channel of debounced, non-echoed operations.
func (w *Watcher) Ops() <-chan Op { return w.out }

// Run drains the underlying fsnotify event stream until ctx is
// cancelled, coalescing rapid-fire events per path within the configured
// debounce window before emitting a single Op.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	defer close(w.out)

	debounce := w.cfg.DebounceInterval
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.scheduleDebounced(ev, debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			return yerr.Wrap(yerr.KindInternal, "filesystem watcher error", err)
		}
	}
}

func (w *Watcher) scheduleDebounced(ev fsnotify.Event, debounce time.Duration) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if t, ok := w.pending[ev.Name]; ok {
		t.Stop()
	}
	w.pending[ev.Name] = time.AfterFunc(debounce, func() {
		w.pendingMu.Lock()
		delete(w.pending, ev.Name)
		w.pendingMu.Unlock()
		w.emit(ev)
	})
}

func (w *Watcher) emit(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.cfg.SyncRoot, ev.Name)
	if err != nil {
		return
	}
	rel = normalizePath(rel)
	if isExcluded(rel, w.cfg.ExcludePatterns) {
		return
	}

	if ev.Op&fsnotify.Remove != 0 || ev.Op&fsnotify.Rename != 0 {
		w.out <- Op{Kind: OpDelete, Path: rel}
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return // file vanished between the event and the stat, treat as settled
	}
	if info.IsDir() {
		if ev.Op&fsnotify.Create != 0 {
			_ = w.fsw.Add(ev.Name)
			w.out <- Op{Kind: OpCreate, Path: rel, EntryKind: EntryDirectory}
		}
		return
	}

	f, err := os.Open(ev.Name) // #nosec G304 -- path originates from this watcher's own registered sync root
	if err != nil {
		return
	}
	hash, err := identity.ContentHash64(f)
	f.Close()
	if err != nil {
		return
	}

	if w.suppress.ShouldSuppress(rel, hash) {
		return
	}

	kind := OpModify
	if ev.Op&fsnotify.Create != 0 {
		kind = OpCreate
	}
	w.out <- Op{Kind: kind, Path: rel, EntryKind: EntryFile, Size: uint64(info.Size()), ContentHash: hash}
}
