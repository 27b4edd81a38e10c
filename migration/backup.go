package migration

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sanchxt/yoop-sub002/yerr"
)

const backupRetention = 5

func backupsDir(dataDir string) string {
	return filepath.Join(dataDir, "backups")
}

// createBackup copies every top-level file in dataDir (skipping the
// backups directory itself) into a new timestamped subdirectory, named
// per spec §6's on-disk layout: backups/<timestamp>_<from>_to_<to>/.
func createBackup(dataDir string, from, to Version, at time.Time) (string, error) {
	id := at.UTC().Format("20060102T150405") + "_" + from.String() + "_to_" + to.String()
	dest := filepath.Join(backupsDir(dataDir), id)
	if err := os.MkdirAll(dest, 0o700); err != nil {
		return "", yerr.Wrap(yerr.KindConfigError, "failed to create backup directory", err)
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return "", yerr.Wrap(yerr.KindConfigError, "failed to list data directory for backup", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue // "backups" itself, and resume/ are handled by their own lifecycle
		}
		if err := copyFile(filepath.Join(dataDir, entry.Name()), filepath.Join(dest, entry.Name())); err != nil {
			return "", err
		}
	}
	return id, nil
}

// restoreBackup overwrites dataDir's top-level files with the contents
// of the named backup, used when a migration step fails partway through.
func restoreBackup(dataDir, backupID string) error {
	src := filepath.Join(backupsDir(dataDir), backupID)
	entries, err := os.ReadDir(src)
	if err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to read backup for restore", err)
	}
	for _, entry := range entries {
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dataDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// pruneBackups keeps only the newest backupRetention backup directories
// (spec §4.11: "retention = 5"), deleting the rest by lexical/timestamp
// order since backup IDs are timestamp-prefixed.
func pruneBackups(dataDir string) error {
	dir := backupsDir(dataDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return yerr.Wrap(yerr.KindConfigError, "failed to list backups for retention", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // timestamp-prefixed names sort chronologically
	if len(names) <= backupRetention {
		return nil
	}
	for _, old := range names[:len(names)-backupRetention] {
		if strings.Contains(old, "..") { // defensive: never traverse out of backupsDir
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, old)); err != nil {
			return yerr.Wrap(yerr.KindConfigError, "failed to prune old backup", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 -- src is enumerated from the operator's own data directory
	if err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to open file for backup", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to stat file for backup", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()) // #nosec G304 -- dst is derived from the operator's own data directory
	if err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to create backup copy", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to copy file for backup", err)
	}
	return out.Sync()
}
