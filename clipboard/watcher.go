package clipboard

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often Watcher polls the OS clipboard absent
// an explicit interval (spec §4.10).
const DefaultPollInterval = 500 * time.Millisecond

// Change is one detected clipboard transition.
type Change struct {
	Content   Content
	Hash      uint64
	Timestamp time.Time
}

// Watcher polls an Access at a fixed interval and emits a Change
// whenever the observed hash differs from the last one seen. SeedHash
// lets a caller that is about to perform its own write mark that hash as
// already-known, so the watcher's next poll doesn't report that write
// as a new local change (echo suppression).
type Watcher struct {
	access       Access
	pollInterval time.Duration
	lastHash     atomic.Uint64
}

// NewWatcher builds a Watcher with the default poll interval.
func NewWatcher(access Access) *Watcher {
	return NewWatcherWithInterval(access, DefaultPollInterval)
}

// NewWatcherWithInterval builds a Watcher with a custom poll interval.
func NewWatcherWithInterval(access Access, interval time.Duration) *Watcher {
	return &Watcher{access: access, pollInterval: interval}
}

// SeedHash records hash as already-observed, so a matching poll result
// is treated as unchanged rather than a new Change.
func (w *Watcher) SeedHash(hash uint64) {
	w.lastHash.Store(hash)
}

// LastHash returns the most recently observed (or seeded) hash.
func (w *Watcher) LastHash() uint64 {
	return w.lastHash.Load()
}

// Run polls until ctx is cancelled, sending each detected Change to out.
// A slow consumer is never blocked indefinitely: out should be buffered
// (spec §5 bounds every session's event channel at 16) and Run drops a
// Change rather than stalling the poll loop on a full channel.
func (w *Watcher) Run(ctx context.Context, out chan<- Change) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			content, err := w.access.Read()
			if err != nil {
				continue // a transient read failure (e.g. empty clipboard) just skips this tick
			}
			if content.Empty() {
				continue
			}
			hash := content.Hash()
			if hash == w.lastHash.Swap(hash) {
				continue
			}
			change := Change{Content: content, Hash: hash, Timestamp: time.Now()}
			select {
			case out <- change:
			default:
			}
		}
	}
}
