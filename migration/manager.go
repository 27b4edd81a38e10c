package migration

import (
	"sort"
	"time"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// Manager owns the ordered set of known migrations and drives the
// startup backup-then-migrate-then-record state machine (spec §4.11).
type Manager struct {
	migrations []Migration
}

// NewManager builds a Manager over the given migrations, which need not
// already be in order — NewManager sorts them by FromVersion before chaining.
func NewManager(migrations ...Migration) *Manager {
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].FromVersion().Less(sorted[j].FromVersion())
	})
	return &Manager{migrations: sorted}
}

// Run brings dataDir's on-disk state from its stored schema version up
// to appVersion. It is a no-op if the stored version already matches.
// On success it returns the updated State (already persisted); on
// failure it restores the pre-migration backup and returns the error.
func (m *Manager) Run(dataDir string, appVersion Version) (State, error) {
	state, err := LoadState(dataDir, appVersion)
	if err != nil {
		return State{}, err
	}
	if state.SchemaVersion.Equal(appVersion) {
		return state, nil
	}

	pending := m.pendingChain(state.SchemaVersion, appVersion)
	if len(pending) == 0 {
		// No migration bridges the stored version to appVersion; accept
		// the gap silently rather than blocking startup (e.g. a schema
		// version ahead of what this build knows about).
		return state, nil
	}

	from := state.SchemaVersion
	now := time.Now().UTC()
	backupID, err := createBackup(dataDir, from, appVersion, now)
	if err != nil {
		return State{}, err
	}

	applied := make([]string, 0, len(pending))
	for _, mig := range pending {
		if err := mig.Up(dataDir); err != nil {
			restoreErr := restoreBackup(dataDir, backupID)
			entry := HistoryEntry{
				FromVersion: from, ToVersion: mig.ToVersion(), Timestamp: now,
				BackupID: backupID, Success: false, MigrationsApplied: applied,
			}
			state.AddHistoryEntry(entry)
			state.SchemaVersion = from
			_ = state.Save(dataDir)
			if restoreErr != nil {
				return State{}, yerr.Wrap(yerr.KindInternal, "migration failed and backup restore also failed", restoreErr)
			}
			return State{}, yerr.Wrap(yerr.KindConfigError, "migration "+mig.ID()+" failed, state restored from backup", err)
		}
		applied = append(applied, mig.ID())
	}

	state.AddHistoryEntry(HistoryEntry{
		FromVersion: from, ToVersion: appVersion, Timestamp: now,
		BackupID: backupID, Success: true, MigrationsApplied: applied,
	})
	if err := state.Save(dataDir); err != nil {
		return State{}, err
	}
	if err := pruneBackups(dataDir); err != nil {
		return state, err
	}
	return state, nil
}

// pendingChain walks m.migrations from `from`, following each
// migration's ToVersion as the next FromVersion, until it reaches `to`
// or runs out of chain. Returns nil if no unbroken chain exists.
func (m *Manager) pendingChain(from, to Version) []Migration {
	if from.Equal(to) {
		return nil
	}
	var chain []Migration
	cur := from
	for {
		next := m.findFrom(cur)
		if next == nil {
			return nil // chain broken before reaching `to`
		}
		chain = append(chain, next)
		cur = next.ToVersion()
		if cur.Equal(to) {
			return chain
		}
	}
}

func (m *Manager) findFrom(v Version) Migration {
	for _, mig := range m.migrations {
		if mig.FromVersion().Equal(v) {
			return mig
		}
	}
	return nil
}
