package syncengine

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sanchxt/yoop-sub002/identity"
	"github.com/sanchxt/yoop-sub002/yerr"
)

// EntryKind distinguishes the three filesystem entry types the engine
// tracks.
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryDirectory
	EntrySymlink
)

// Entry is one path's state as of the last index build.
type Entry struct {
	Path        string
	Kind        EntryKind
	Size        uint64
	ContentHash uint64 // 0 for directories
	ModTime     time.Time
}

// Index maps a normalized, forward-slash relative path to its entry.
type Index map[string]Entry

// normalizePath converts an OS-native relative path to the engine's
// canonical forward-slash form, matching the original implementation's
// RelativePath normalization so indices built on Windows and Unix peers
// compare equal.
func normalizePath(p string) string {
	return strings.ReplaceAll(p, string(filepath.Separator), "/")
}

// isExcluded reports whether rel (already normalized) matches any
// configured or hard-coded exclude pattern. Patterns are matched against
// the final path segment, gitignore-glob-style, via path.Match semantics.
func isExcluded(rel string, patterns []string) bool {
	base := rel
	if idx := strings.LastIndex(rel, "/"); idx >= 0 {
		base = rel[idx+1:]
	}
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// BuildIndex walks cfg.SyncRoot and produces a snapshot of every included
// path's kind, size, content hash, and mtime.
func BuildIndex(cfg Config) (Index, error) {
	if cfg.SyncRoot == "" {
		return nil, yerr.New(yerr.KindInvalidConfig, "sync root is required")
	}
	idx := make(Index)

	err := filepath.WalkDir(cfg.SyncRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == cfg.SyncRoot {
			return nil
		}
		rel, err := filepath.Rel(cfg.SyncRoot, path)
		if err != nil {
			return err
		}
		rel = normalizePath(rel)
		if isExcluded(rel, cfg.ExcludePatterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.Type()&fs.ModeSymlink != 0 {
			if !cfg.FollowSymlinks {
				idx[rel] = Entry{Path: rel, Kind: EntrySymlink, ModTime: info.ModTime()}
				return nil
			}
			// Following: stat through the link and fall through to the
			// regular file/dir handling below using the resolved info.
			resolved, statErr := os.Stat(path)
			if statErr != nil {
				return nil // broken symlink target, skip silently
			}
			info = resolved
		}

		if info.IsDir() {
			idx[rel] = Entry{Path: rel, Kind: EntryDirectory, ModTime: info.ModTime()}
			return nil
		}

		size := uint64(info.Size())
		if cfg.MaxFileSize > 0 && size > cfg.MaxFileSize {
			return nil
		}
		hash, err := hashFile(path)
		if err != nil {
			return nil // unreadable file (permissions, race with deletion): skip rather than abort the whole walk
		}
		idx[rel] = Entry{Path: rel, Kind: EntryFile, Size: size, ContentHash: hash, ModTime: info.ModTime()}
		return nil
	})
	if err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to walk sync root", err)
	}
	return idx, nil
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from a WalkDir rooted at the configured sync directory
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return identity.ContentHash64(f)
}
