// Package syncengine implements the bidirectional directory synchronizer
// layered on top of a transfer session (spec §4.9): directory indexing,
// reconciliation, conflict detection/resolution, and a live filesystem
// watcher.
package syncengine

import "time"

// Config tunes one sync session. The zero value is not ready to use;
// call DefaultConfig to get sane defaults for a given root.
type Config struct {
	SyncRoot         string
	ExcludePatterns  []string
	FollowSymlinks   bool
	SyncDeletions    bool
	DebounceInterval time.Duration
	MaxFileSize      uint64 // 0 = unlimited
	Resolution       ResolutionStrategy
}

// defaultExcludePatterns mirrors the hard-coded VCS/OS junk list every
// sync root excludes regardless of user configuration.
var defaultExcludePatterns = []string{
	".git", ".DS_Store", "Thumbs.db", "*.swp", "*.tmp",
}

func DefaultConfig(syncRoot string) Config {
	return Config{
		SyncRoot:         syncRoot,
		ExcludePatterns:  append([]string(nil), defaultExcludePatterns...),
		FollowSymlinks:   false,
		SyncDeletions:    true,
		DebounceInterval: 100 * time.Millisecond,
		MaxFileSize:      0,
		Resolution:       ResolutionNewerWins,
	}
}
