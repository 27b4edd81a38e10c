// Package trust implements the on-disk trusted-device database (spec
// §4.3): the record of devices this one has exchanged keys with via
// TOFU, their trust level, and last-seen bookkeeping.
package trust

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// Level is how much a device is trusted, beyond the baseline "we've
// TOFU'd its key" fact.
type Level string

const (
	LevelNormal Level = "normal"
	LevelPinned Level = "pinned"
	LevelBlocked Level = "blocked"
)

// Device is one entry in the trust database.
type Device struct {
	DeviceID      string    `json:"device_id"`
	DeviceName    string    `json:"device_name"`
	PublicKey     string    `json:"public_key"` // base64 Ed25519 public key
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	TransferCount uint64    `json:"transfer_count"`
	TrustedAt     time.Time `json:"trusted_at"`
	TrustLevel    Level     `json:"trust_level"`
}

const schemaVersion = 1

type database struct {
	Version int      `json:"version"`
	Devices []Device `json:"devices"`
}

// Store is the loaded, lockable trust database. It serializes writers
// both within the process (mu) and across processes (flock on a
// sibling ".lock" file), matching the resume manager's save discipline.
type Store struct {
	path string
	mu   sync.Mutex
	db   database
}

// DefaultPath returns the conventional location of trust.json under a
// Yoop data directory.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "trust.json")
}

// Load reads path, creating an empty store if it does not exist yet.
func Load(path string) (*Store, error) {
	s := &Store{path: path, db: database{Version: schemaVersion}}
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-configured data dir
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, yerr.Wrap(yerr.KindTrustDbError, "failed to read trust store", err)
	}
	if err := json.Unmarshal(raw, &s.db); err != nil {
		return nil, yerr.Wrap(yerr.KindTrustDbError, "failed to parse trust store", err)
	}
	if s.db.Version == 0 {
		s.db.Version = schemaVersion
	}
	return s, nil
}

// List returns a copy of all known devices.
func (s *Store) List() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Device, len(s.db.Devices))
	copy(out, s.db.Devices)
	return out
}

// FindByID returns the device with the given id, if any.
func (s *Store) FindByID(deviceID string) (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.db.Devices {
		if d.DeviceID == deviceID {
			return d, true
		}
	}
	return Device{}, false
}

// FindByName returns the first device whose name matches, case
// insensitively.
func (s *Store) FindByName(name string) (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.db.Devices {
		if strings.EqualFold(d.DeviceName, name) {
			return d, true
		}
	}
	return Device{}, false
}

// Add inserts a new trusted device, or replaces the existing entry for
// the same device_id (insert-or-replace-by-id, matching the TOFU flow:
// a device re-pairing after wiping its own keystore still gets one row).
func (s *Store) Add(d Device) error {
	s.mu.Lock()
	if d.FirstSeen.IsZero() {
		d.FirstSeen = nowUTC()
	}
	if d.TrustedAt.IsZero() {
		d.TrustedAt = nowUTC()
	}
	if d.TrustLevel == "" {
		d.TrustLevel = LevelNormal
	}
	kept := s.db.Devices[:0:0]
	for _, existing := range s.db.Devices {
		if existing.DeviceID != d.DeviceID {
			kept = append(kept, existing)
		}
	}
	s.db.Devices = append(kept, d)
	s.mu.Unlock()
	return s.save()
}

// Remove deletes the device with the given id, if present.
func (s *Store) Remove(deviceID string) error {
	s.mu.Lock()
	kept := s.db.Devices[:0:0]
	for _, existing := range s.db.Devices {
		if existing.DeviceID != deviceID {
			kept = append(kept, existing)
		}
	}
	s.db.Devices = kept
	s.mu.Unlock()
	return s.save()
}

// SetTrustLevel updates the trust level of an existing device.
func (s *Store) SetTrustLevel(deviceID string, level Level) error {
	s.mu.Lock()
	found := false
	for i := range s.db.Devices {
		if s.db.Devices[i].DeviceID == deviceID {
			s.db.Devices[i].TrustLevel = level
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return yerr.WithFields(yerr.KindDeviceNotTrusted, "no such device in trust store",
			map[string]any{"device_id": deviceID})
	}
	return s.save()
}

// IsTrusted reports whether deviceID is known and not blocked.
func (s *Store) IsTrusted(deviceID string) bool {
	d, ok := s.FindByID(deviceID)
	return ok && d.TrustLevel != LevelBlocked
}

// VerifyKey reports whether the recorded public key for deviceID
// matches publicKeyB64 exactly. Returns false (not an error) if the
// device is unknown: the caller distinguishes "unknown" from
// "known but key changed" via FindByID.
func (s *Store) VerifyKey(deviceID, publicKeyB64 string) bool {
	d, ok := s.FindByID(deviceID)
	if !ok {
		return false
	}
	return d.PublicKey == publicKeyB64
}

// UpdateLastSeen bumps last_seen and increments transfer_count for an
// existing device.
func (s *Store) UpdateLastSeen(deviceID string) error {
	s.mu.Lock()
	found := false
	for i := range s.db.Devices {
		if s.db.Devices[i].DeviceID == deviceID {
			s.db.Devices[i].LastSeen = nowUTC()
			s.db.Devices[i].TransferCount++
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return yerr.WithFields(yerr.KindDeviceNotTrusted, "no such device in trust store",
			map[string]any{"device_id": deviceID})
	}
	return s.save()
}

// Clear removes every device from the store.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.db.Devices = nil
	s.mu.Unlock()
	return s.save()
}

// save persists the store atomically (temp file + rename), guarded by a
// cross-process flock so two yoopd instances sharing a data directory
// never interleave writes.
func (s *Store) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return yerr.Wrap(yerr.KindTrustDbError, "failed to create trust store directory", err)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return yerr.Wrap(yerr.KindTrustDbError, "failed to acquire trust store lock", err)
	}
	defer lock.Unlock()

	b, err := json.MarshalIndent(s.db, "", "  ")
	if err != nil {
		return yerr.Wrap(yerr.KindInternal, "failed to encode trust store", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, ".trust-*.tmp")
	if err != nil {
		return yerr.Wrap(yerr.KindTrustDbError, "failed to create temp trust file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return yerr.Wrap(yerr.KindTrustDbError, "failed to write trust store", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return yerr.Wrap(yerr.KindTrustDbError, "failed to fsync trust store", err)
	}
	if err := tmp.Close(); err != nil {
		return yerr.Wrap(yerr.KindTrustDbError, "failed to close trust store", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return yerr.Wrap(yerr.KindTrustDbError, "failed to chmod trust store", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return yerr.Wrap(yerr.KindTrustDbError, "failed to rename trust store into place", err)
	}
	return nil
}

func nowUTC() time.Time { return time.Now().UTC() }

func (l Level) String() string { return string(l) }

// ParseLevel validates a trust level string from config/CLI input.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelNormal, LevelPinned, LevelBlocked:
		return Level(s), nil
	default:
		return "", yerr.New(yerr.KindInvalidConfig, fmt.Sprintf("invalid trust level %q", s))
	}
}
