package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestV0_1ToV0_2UpAddsUpdateSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	initial := "[general]\ndevice_name = \"Test Device\"\n\n[network]\nport = 52525\n"
	if err := os.WriteFile(path, []byte(initial), 0o600); err != nil {
		t.Fatalf("seed config.toml: %v", err)
	}

	mig := V0_1ToV0_2{}
	if err := mig.Up(dir); err != nil {
		t.Fatalf("Up: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config.toml: %v", err)
	}
	content := string(got)
	for _, want := range []string{"[update]", "auto_check", "check_interval", "notify"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected migrated config to contain %q, got:\n%s", want, content)
		}
	}
}

func TestV0_1ToV0_2UpIsNoopWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	mig := V0_1ToV0_2{}
	if err := mig.Up(dir); err != nil {
		t.Fatalf("expected Up to be a no-op when config.toml doesn't exist, got %v", err)
	}
}

func TestV0_1ToV0_2DownRemovesUpdateSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	withUpdate := "[general]\ndevice_name = \"Test Device\"\n\n[update]\nauto_check = false\ncheck_interval = \"86400s\"\nnotify = true\n"
	if err := os.WriteFile(path, []byte(withUpdate), 0o600); err != nil {
		t.Fatalf("seed config.toml: %v", err)
	}

	mig := V0_1ToV0_2{}
	if err := mig.Down(dir); err != nil {
		t.Fatalf("Down: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config.toml: %v", err)
	}
	if strings.Contains(string(got), "[update]") {
		t.Fatalf("expected [update] section to be removed, got:\n%s", got)
	}
}

func TestV0_1ToV0_2Metadata(t *testing.T) {
	mig := V0_1ToV0_2{}
	if mig.FromVersion() != NewVersion(0, 1, 0) {
		t.Fatalf("unexpected FromVersion: %s", mig.FromVersion())
	}
	if mig.ToVersion() != NewVersion(0, 2, 0) {
		t.Fatalf("unexpected ToVersion: %s", mig.ToVersion())
	}
	if mig.ID() != "0_1_to_0_2" {
		t.Fatalf("unexpected ID: %s", mig.ID())
	}
}
