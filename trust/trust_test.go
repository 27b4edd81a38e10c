package trust

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trust.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestAddThenFindByIDAndName(t *testing.T) {
	s := newTestStore(t)
	dev := Device{DeviceID: "dev-1", DeviceName: "Kitchen-Mac", PublicKey: "abc123"}
	if err := s.Add(dev); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, ok := s.FindByID("dev-1")
	if !ok {
		t.Fatalf("expected to find dev-1")
	}
	if got.TrustLevel != LevelNormal {
		t.Fatalf("expected default trust level normal, got %q", got.TrustLevel)
	}

	got, ok = s.FindByName("kitchen-mac")
	if !ok {
		t.Fatalf("expected case-insensitive name match")
	}
	if got.DeviceID != "dev-1" {
		t.Fatalf("wrong device returned by name lookup")
	}
}

func TestAddReplacesExistingByID(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add(Device{DeviceID: "dev-1", DeviceName: "old-name", PublicKey: "key-a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(Device{DeviceID: "dev-1", DeviceName: "new-name", PublicKey: "key-b"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(s.List()) != 1 {
		t.Fatalf("expected exactly one device after re-add, got %d", len(s.List()))
	}
	got, _ := s.FindByID("dev-1")
	if got.DeviceName != "new-name" || got.PublicKey != "key-b" {
		t.Fatalf("re-add did not replace fields: %+v", got)
	}
}

func TestVerifyKeyAndIsTrusted(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add(Device{DeviceID: "dev-1", PublicKey: "key-a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !s.VerifyKey("dev-1", "key-a") {
		t.Fatalf("expected key to verify")
	}
	if s.VerifyKey("dev-1", "key-b") {
		t.Fatalf("expected mismatched key to fail verification")
	}
	if s.VerifyKey("unknown", "key-a") {
		t.Fatalf("unknown device should not verify")
	}
	if !s.IsTrusted("dev-1") {
		t.Fatalf("expected normal-level device to be trusted")
	}
	if err := s.SetTrustLevel("dev-1", LevelBlocked); err != nil {
		t.Fatalf("SetTrustLevel: %v", err)
	}
	if s.IsTrusted("dev-1") {
		t.Fatalf("blocked device should not be trusted")
	}
}

func TestUpdateLastSeenIncrementsTransferCount(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add(Device{DeviceID: "dev-1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.UpdateLastSeen("dev-1"); err != nil {
			t.Fatalf("UpdateLastSeen: %v", err)
		}
	}
	got, _ := s.FindByID("dev-1")
	if got.TransferCount != 3 {
		t.Fatalf("expected transfer_count 3, got %d", got.TransferCount)
	}
}

func TestUpdateLastSeenUnknownDeviceErrors(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateLastSeen("ghost"); err == nil {
		t.Fatalf("expected error for unknown device")
	}
}

func TestRemoveAndClear(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add(Device{DeviceID: "dev-1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(Device{DeviceID: "dev-2"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Remove("dev-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := s.FindByID("dev-1"); ok {
		t.Fatalf("dev-1 should be gone")
	}
	if len(s.List()) != 1 {
		t.Fatalf("expected one device remaining")
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(s.List()) != 0 {
		t.Fatalf("expected empty store after Clear")
	}
}

func TestStorePersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.json")
	s1, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s1.Add(Device{DeviceID: "dev-1", DeviceName: "laptop", PublicKey: "key-a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s2, err := Load(path)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	got, ok := s2.FindByID("dev-1")
	if !ok {
		t.Fatalf("expected dev-1 to survive reload")
	}
	if got.DeviceName != "laptop" {
		t.Fatalf("unexpected device name after reload: %q", got.DeviceName)
	}
}

func TestParseLevel(t *testing.T) {
	for _, ok := range []Level{LevelNormal, LevelPinned, LevelBlocked} {
		if _, err := ParseLevel(string(ok)); err != nil {
			t.Fatalf("ParseLevel(%q): %v", ok, err)
		}
	}
	if _, err := ParseLevel("superadmin"); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}
