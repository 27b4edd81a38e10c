package migration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// HistoryEntry records one migration run (distinct from the top-level
// transfer history package: this is the migration subsystem's own
// append log, embedded directly in migration_state.json).
type HistoryEntry struct {
	FromVersion       Version   `json:"from_version"`
	ToVersion         Version   `json:"to_version"`
	Timestamp         time.Time `json:"timestamp"`
	BackupID          string    `json:"backup_id"`
	Success           bool      `json:"success"`
	MigrationsApplied []string  `json:"migrations_applied"`
}

// State is the durable record of schema version + migration history,
// stored at migration_state.json under the data directory.
type State struct {
	Version       int            `json:"version"`
	SchemaVersion Version        `json:"schema_version"`
	AppVersion    Version        `json:"app_version"`
	LastMigration *time.Time     `json:"last_migration,omitempty"`
	History       []HistoryEntry `json:"history"`
}

const stateFormatVersion = 1

func statePath(dataDir string) string {
	return filepath.Join(dataDir, "migration_state.json")
}

// NewState builds a fresh State for a data directory that has never
// recorded a schema version before — both schema and app start at
// appVersion, since there is nothing to migrate yet.
func NewState(appVersion Version) State {
	return State{Version: stateFormatVersion, SchemaVersion: appVersion, AppVersion: appVersion}
}

// LoadState reads migration_state.json, or returns a fresh State seeded
// at appVersion if the file does not exist yet (first run).
func LoadState(dataDir string, appVersion Version) (State, error) {
	raw, err := os.ReadFile(statePath(dataDir)) // #nosec G304 -- operator-configured data dir
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(appVersion), nil
		}
		return State{}, yerr.Wrap(yerr.KindConfigError, "failed to read migration state", err)
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, yerr.Wrap(yerr.KindConfigError, "failed to parse migration state", err)
	}
	return s, nil
}

// Save writes the state atomically (temp file + rename).
func (s State) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to create data directory", err)
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to encode migration state", err)
	}
	b = append(b, '\n')

	path := statePath(dataDir)
	tmp, err := os.CreateTemp(dataDir, ".migration-state-*.tmp")
	if err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to create temp migration state file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return yerr.Wrap(yerr.KindConfigError, "failed to write migration state", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return yerr.Wrap(yerr.KindConfigError, "failed to fsync migration state", err)
	}
	if err := tmp.Close(); err != nil {
		return yerr.Wrap(yerr.KindConfigError, "failed to close migration state", err)
	}
	return os.Rename(tmpPath, path)
}

// AddHistoryEntry records one migration run and advances SchemaVersion
// to match, mirroring the source's add_history_entry.
func (s *State) AddHistoryEntry(e HistoryEntry) {
	now := e.Timestamp
	s.LastMigration = &now
	s.SchemaVersion = e.ToVersion
	s.History = append(s.History, e)
}

// LatestBackup returns the backup_id of the most recent successful
// migration run, if any.
func (s State) LatestBackup() (string, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Success {
			return s.History[i].BackupID, true
		}
	}
	return "", false
}
