package clipboard

import "time"

// Bridge couples a live Watcher to the Access used to apply remote
// updates, so a caller never has to remember to seed the watcher itself.
// ApplyRemote writes content to the OS clipboard and seeds the watcher's
// last-seen hash first, so the watcher's next poll sees its own write as
// already-known rather than a fresh local change to propagate back out.
type Bridge struct {
	access  Access
	watcher *Watcher
}

// NewBridge builds a Bridge around access, creating its own Watcher at
// the default poll interval.
func NewBridge(access Access) *Bridge {
	return &Bridge{access: access, watcher: NewWatcher(access)}
}

// NewBridgeWithInterval builds a Bridge whose Watcher polls at interval
// instead of DefaultPollInterval.
func NewBridgeWithInterval(access Access, interval time.Duration) *Bridge {
	return &Bridge{access: access, watcher: NewWatcherWithInterval(access, interval)}
}

// Watcher returns the underlying Watcher, for callers that need Run/
// Changes directly (e.g. to wire into a session's event loop).
func (b *Bridge) Watcher() *Watcher { return b.watcher }

// ApplyRemote writes content (received from a peer) to the local OS
// clipboard without the watcher reporting it back as a local change.
func (b *Bridge) ApplyRemote(content Content, holdTimeout time.Duration) error {
	b.watcher.SeedHash(content.Hash())
	return b.access.WriteAndWait(content, holdTimeout)
}
