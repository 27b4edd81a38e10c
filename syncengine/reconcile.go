package syncengine

import "time"

// Reconcile computes the operations the local side must send to the
// peer to converge the peer's copy (remote) with local, given previous —
// the last index snapshot this engine observed for the same root before
// the current one. previous lets a path's disappearance from local be
// told apart from a path the peer simply hasn't created yet: if previous
// had the path, local deleted it; if previous never had it, the peer is
// the one who must still create it (handled when the peer runs its own
// Reconcile in the other direction), so nothing is emitted here.
//
// Paths present on both sides with the same content hash are left alone.
// Paths present on both sides with differing hashes are reported as
// conflicts rather than ops — the caller resolves them (see conflict.go)
// before deciding what, if anything, to send.
func Reconcile(local, remote, previous Index, cfg Config) (ops []Op, conflicts []Conflict) {
	for path, le := range local {
		re, onRemote := remote[path]
		if !onRemote {
			ops = append(ops, Op{
				Kind:        OpCreate,
				Path:        path,
				EntryKind:   le.Kind,
				Size:        le.Size,
				ContentHash: le.ContentHash,
			})
			continue
		}
		if le.Kind == EntryDirectory || re.Kind == EntryDirectory {
			continue // directories carry no content to reconcile
		}
		if le.ContentHash == re.ContentHash {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Path: path,
			Local: ConflictVersion{
				Size: le.Size, ContentHash: le.ContentHash, ModTime: modTimeOrNil(le),
			},
			Remote: ConflictVersion{
				Size: re.Size, ContentHash: re.ContentHash, ModTime: modTimeOrNil(re),
			},
		})
	}

	if !cfg.SyncDeletions {
		return ops, conflicts
	}
	for path := range remote {
		if _, stillLocal := local[path]; stillLocal {
			continue
		}
		if _, existedBefore := previous[path]; !existedBefore {
			continue // peer created it; peer's own reconcile will emit the Create, not us
		}
		ops = append(ops, Op{Kind: OpDelete, Path: path})
	}
	return ops, conflicts
}

func modTimeOrNil(e Entry) *time.Time {
	if e.ModTime.IsZero() {
		return nil
	}
	t := e.ModTime
	return &t
}
