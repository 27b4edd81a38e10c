package resume

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// DefaultRetention is how long a ResumeState survives before
// cleanup_expired removes it (spec §4.8).
const DefaultRetention = 7 * 24 * time.Hour

// DefaultDir returns the conventional resume-state directory under a
// Yoop data directory: one JSON document per transfer.
func DefaultDir(dataDir string) string {
	return filepath.Join(dataDir, "resume")
}

// Manager persists ResumeState documents as one file per transfer_id,
// atomically (temp file + rename) and guarded by a cross-process flock,
// the same discipline trust.Store uses for its single database file.
type Manager struct {
	dir string
	mu  sync.Mutex
}

func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to create resume state directory", err)
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) pathFor(id uuid.UUID) string {
	return filepath.Join(m.dir, id.String()+".json")
}

// Save writes state atomically, overwriting any existing document for
// the same transfer_id.
func (m *Manager) Save(state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.pathFor(state.TransferID)
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to acquire resume state lock", err)
	}
	defer lock.Unlock()

	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to encode resume state", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(m.dir, ".resume-*.tmp")
	if err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to create temp resume file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return yerr.Wrap(yerr.KindInternal, "failed to write resume state", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return yerr.Wrap(yerr.KindInternal, "failed to fsync resume state", err)
	}
	if err := tmp.Close(); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to close resume temp file", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to chmod resume state", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to install resume state", err)
	}
	return nil
}

// Load returns the state for transferID, or (nil, nil) if no such
// document exists (an optional lookup, per spec §4.8).
func (m *Manager) Load(transferID uuid.UUID) (*State, error) {
	raw, err := os.ReadFile(m.pathFor(transferID)) // #nosec G304 -- operator-configured data dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, yerr.Wrap(yerr.KindInternal, "failed to read resume state", err)
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to parse resume state", err)
	}
	return &s, nil
}

// List returns every persisted state, newest-first by updated_at.
func (m *Manager) List() ([]*State, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to list resume state directory", err)
	}
	var states []*State
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		s, err := m.Load(id)
		if err != nil || s == nil {
			continue
		}
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].UpdatedAt.After(states[j].UpdatedAt) })
	return states, nil
}

// FindByCode returns the most recently updated state advertising code,
// or (nil, nil) if none matches.
func (m *Manager) FindByCode(code string) (*State, error) {
	states, err := m.List()
	if err != nil {
		return nil, err
	}
	for _, s := range states {
		if s.Code == code {
			return s, nil
		}
	}
	return nil, nil
}

// Delete removes the state for transferID. Deleting a nonexistent
// transfer is not an error.
func (m *Manager) Delete(transferID uuid.UUID) error {
	err := os.Remove(m.pathFor(transferID))
	if err != nil && !os.IsNotExist(err) {
		return yerr.Wrap(yerr.KindInternal, "failed to delete resume state", err)
	}
	return nil
}

// CleanupExpired deletes every state whose updated_at is older than
// retention and returns how many were removed.
func (m *Manager) CleanupExpired(retention time.Duration) (int, error) {
	states, err := m.List()
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	removed := 0
	for _, s := range states {
		if s.Expired(now, retention) {
			if err := m.Delete(s.TransferID); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
