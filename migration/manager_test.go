package migration

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type recordingMigration struct {
	from, to Version
	id       string
	upErr    error
	upCalls  *int
}

func (m recordingMigration) FromVersion() Version { return m.from }
func (m recordingMigration) ToVersion() Version    { return m.to }
func (m recordingMigration) Description() string   { return m.id }
func (m recordingMigration) ID() string            { return m.id }
func (m recordingMigration) Up(dataDir string) error {
	if m.upCalls != nil {
		*m.upCalls++
	}
	return m.upErr
}
func (m recordingMigration) Down(dataDir string) error { return nil }

func TestManagerRunIsNoopWhenAlreadyAtAppVersion(t *testing.T) {
	dataDir := t.TempDir()
	mgr := NewManager()
	state, err := mgr.Run(dataDir, NewVersion(0, 1, 0))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !state.SchemaVersion.Equal(NewVersion(0, 1, 0)) {
		t.Fatalf("expected fresh state seeded at app version")
	}
	if _, err := os.Stat(filepath.Join(dataDir, "migration_state.json")); err == nil {
		t.Fatalf("expected no state file written for a no-op run")
	}
}

func TestManagerAppliesChainAndRecordsHistory(t *testing.T) {
	dataDir := t.TempDir()

	initial := NewState(NewVersion(0, 1, 0))
	if err := initial.Save(dataDir); err != nil {
		t.Fatalf("seed Save: %v", err)
	}

	calls := 0
	mig := recordingMigration{from: NewVersion(0, 1, 0), to: NewVersion(0, 2, 0), id: "step1", upCalls: &calls}
	mgr := NewManager(mig)

	state, err := mgr.Run(dataDir, NewVersion(0, 2, 0))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected migration Up to be called once, got %d", calls)
	}
	if !state.SchemaVersion.Equal(NewVersion(0, 2, 0)) {
		t.Fatalf("expected schema version advanced to 0.2.0, got %s", state.SchemaVersion)
	}
	if len(state.History) != 1 || !state.History[0].Success {
		t.Fatalf("expected one successful history entry, got %+v", state.History)
	}

	reloaded, err := LoadState(dataDir, NewVersion(0, 2, 0))
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !reloaded.SchemaVersion.Equal(NewVersion(0, 2, 0)) {
		t.Fatalf("expected persisted schema version 0.2.0, got %s", reloaded.SchemaVersion)
	}
}

func TestManagerRestoresBackupOnFailure(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "trust.json"), []byte(`{"version":1,"devices":[]}`), 0o600); err != nil {
		t.Fatalf("seed trust.json: %v", err)
	}
	initial := NewState(NewVersion(0, 1, 0))
	if err := initial.Save(dataDir); err != nil {
		t.Fatalf("seed Save: %v", err)
	}

	failing := recordingMigration{from: NewVersion(0, 1, 0), to: NewVersion(0, 2, 0), id: "broken", upErr: errors.New("boom")}
	mgr := NewManager(failing)

	if _, err := mgr.Run(dataDir, NewVersion(0, 2, 0)); err == nil {
		t.Fatalf("expected Run to fail when a migration's Up fails")
	}

	restored, err := os.ReadFile(filepath.Join(dataDir, "trust.json"))
	if err != nil {
		t.Fatalf("expected trust.json to survive restore: %v", err)
	}
	if string(restored) != `{"version":1,"devices":[]}` {
		t.Fatalf("expected trust.json content to be restored from backup, got %q", restored)
	}
}

func TestManagerPendingChainBreaksOnGap(t *testing.T) {
	dataDir := t.TempDir()
	// No migration bridges 0.1.0 -> 0.3.0: pendingChain should come up
	// empty and Run should leave schema_version untouched rather than error.
	mgr := NewManager(recordingMigration{from: NewVersion(0, 5, 0), to: NewVersion(0, 6, 0), id: "unrelated"})

	initial := NewState(NewVersion(0, 1, 0))
	if err := initial.Save(dataDir); err != nil {
		t.Fatalf("seed Save: %v", err)
	}

	state, err := mgr.Run(dataDir, NewVersion(0, 3, 0))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !state.SchemaVersion.Equal(NewVersion(0, 1, 0)) {
		t.Fatalf("expected schema version to stay at 0.1.0 when no chain bridges the gap, got %s", state.SchemaVersion)
	}
}
