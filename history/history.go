// Package history implements the append-only transfer log (spec §4.11):
// one record per completed or failed transfer, persisted atomically and
// guarded across processes the same way the trust store is.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// Direction tags which side of a transfer this device was on.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

func (d Direction) String() string { return string(d) }

// State is the terminal outcome of a transfer.
type State string

const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

func (s State) String() string { return string(s) }

// FileRecord summarizes one file's outcome within a transfer.
type FileRecord struct {
	Name    string `json:"name"`
	Size    uint64 `json:"size"`
	Success bool   `json:"success"`
}

// Entry is one completed or failed transfer.
type Entry struct {
	ID               uuid.UUID    `json:"id"`
	Timestamp        time.Time    `json:"timestamp"`
	Direction        Direction    `json:"direction"`
	PeerName         string       `json:"device_name"`
	PeerID           *uuid.UUID   `json:"device_id,omitempty"`
	Code             string       `json:"share_code"`
	Files            []FileRecord `json:"files"`
	TotalBytes       uint64       `json:"total_bytes"`
	BytesTransferred uint64       `json:"bytes_transferred"`
	State            State        `json:"state"`
	DurationSecs     float64      `json:"duration_secs"`
	SpeedBps         *float64     `json:"speed_bps,omitempty"`
	OutputDir        *string      `json:"output_dir,omitempty"`
	ErrorMessage     *string      `json:"error_message,omitempty"`
}

// FormattedTimestamp renders Timestamp the way CLI listings display it.
func (e Entry) FormattedTimestamp() string {
	return e.Timestamp.Local().Format("2006-01-02 15:04")
}

const schemaVersion = 1

type logFile struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// Store is the loaded, lockable history log. New entries are prepended
// (most recent first), matching the CLI's index-0-is-latest listing.
type Store struct {
	path string
	mu   sync.Mutex
	log  logFile
}

// DefaultPath returns the conventional location of history.json under a
// Yoop data directory.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "history.json")
}

// Load reads path, creating an empty store if it does not exist yet.
func Load(path string) (*Store, error) {
	s := &Store{path: path, log: logFile{Version: schemaVersion}}
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-configured data dir
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, yerr.Wrap(yerr.KindInternal, "failed to read history log", err)
	}
	if err := json.Unmarshal(raw, &s.log); err != nil {
		return nil, yerr.Wrap(yerr.KindInternal, "failed to parse history log", err)
	}
	if s.log.Version == 0 {
		s.log.Version = schemaVersion
	}
	return s, nil
}

// Append records a new entry at the front of the log and persists it,
// trimming to maxEntries if that is positive.
func (s *Store) Append(e Entry, maxEntries int) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.log.Entries = append([]Entry{e}, s.log.Entries...)
	if maxEntries > 0 && len(s.log.Entries) > maxEntries {
		s.log.Entries = s.log.Entries[:maxEntries]
	}
	s.mu.Unlock()
	return s.save()
}

// List returns up to limit entries, most recent first. limit <= 0 means
// unlimited.
func (s *Store) List(limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.log.Entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	copy(out, s.log.Entries[:n])
	return out
}

// Get returns the entry at index (0 = most recent), or false if out of
// range.
func (s *Store) Get(index int) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.log.Entries) {
		return Entry{}, false
	}
	return s.log.Entries[index], true
}

// Len returns the total number of recorded entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log.Entries)
}

// Clear removes every entry from the log.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.log.Entries = nil
	s.mu.Unlock()
	return s.save()
}

// save persists the log atomically (temp file + rename), guarded by a
// cross-process flock — the same discipline as trust.Store.save, since
// both are single-document-per-process-group state under the data dir.
func (s *Store) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to create history directory", err)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to acquire history lock", err)
	}
	defer lock.Unlock()

	b, err := json.MarshalIndent(s.log, "", "  ")
	if err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to encode history log", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, ".history-*.tmp")
	if err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to create temp history file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return yerr.Wrap(yerr.KindInternal, "failed to write history log", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return yerr.Wrap(yerr.KindInternal, "failed to fsync history log", err)
	}
	if err := tmp.Close(); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to close history log", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to chmod history log", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to rename history log into place", err)
	}
	return nil
}
