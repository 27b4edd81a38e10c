package syncengine

import "time"

// ResolutionStrategy picks a winner when the same path diverges on both
// sides of a sync session.
type ResolutionStrategy int

const (
	ResolutionNewerWins ResolutionStrategy = iota
	ResolutionLargerWins
	ResolutionLocalWins
	ResolutionRemoteWins
	ResolutionKeepBoth
)

// ConflictVersion is one side's view of a diverged path.
type ConflictVersion struct {
	Size        uint64
	ContentHash uint64
	ModTime     *time.Time
}

// Conflict is a path whose content differs on both sides as of the last
// reconciliation.
type Conflict struct {
	Path   string
	Local  ConflictVersion
	Remote ConflictVersion
}

// Winner identifies which side's content should be kept.
type Winner int

const (
	WinnerLocal Winner = iota
	WinnerRemote
	WinnerBoth // KeepBoth: both are kept, the loser renamed aside
)

// Resolve applies strategy to c and returns the winner. For KeepBoth,
// Winner is meaningless on its own — the caller renames the loser (see
// LoserRenamePath) and keeps both copies.
func Resolve(c Conflict, strategy ResolutionStrategy) Winner {
	switch strategy {
	case ResolutionLocalWins:
		return WinnerLocal
	case ResolutionRemoteWins:
		return WinnerRemote
	case ResolutionLargerWins:
		if c.Local.Size >= c.Remote.Size {
			return WinnerLocal
		}
		return WinnerRemote
	case ResolutionKeepBoth:
		return WinnerBoth
	case ResolutionNewerWins:
		fallthrough
	default:
		if c.Local.ModTime == nil || c.Remote.ModTime == nil {
			return WinnerBoth // spec: fall back to KeepBoth when neither side has mtime
		}
		if c.Local.ModTime.Equal(*c.Remote.ModTime) {
			if c.Local.ContentHash >= c.Remote.ContentHash {
				return WinnerLocal
			}
			return WinnerRemote
		}
		if c.Local.ModTime.After(*c.Remote.ModTime) {
			return WinnerLocal
		}
		return WinnerRemote
	}
}

// LoserRenamePath renames the given path aside for a KeepBoth
// resolution, per spec: "path.conflict-<peer>-<timestamp>".
func LoserRenamePath(path, peerName string, at time.Time) string {
	return path + ".conflict-" + peerName + "-" + at.UTC().Format("20060102T150405")
}
