package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("expected DefaultConfig to be valid, got %v", err)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.General.DeviceName = "laptop-2"
	cfg.Network.Port = 60000
	cfg.Transfer.Compression = "always"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.General.DeviceName != "laptop-2" {
		t.Fatalf("expected device_name laptop-2, got %q", loaded.General.DeviceName)
	}
	if loaded.Network.Port != 60000 {
		t.Fatalf("expected port 60000, got %d", loaded.Network.Port)
	}
	if loaded.Transfer.Compression != "always" {
		t.Fatalf("expected compression always, got %q", loaded.Transfer.Compression)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected defaults for a missing file to validate, got %v", err)
	}
}

func TestValidateRejectsBadPortRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network.TransferPortStart = 100
	cfg.Network.TransferPortEnd = 50
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an inverted transfer port range to fail validation")
	}
}

func TestValidateRejectsBadCompressionMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transfer.Compression = "sometimes"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an invalid compression mode to fail validation")
	}
}

func TestValidateRequiresPinHashWhenPinRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.RequirePin = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected require_pin without pin_hash to fail validation")
	}
	hash, err := HashPIN("1234")
	if err != nil {
		t.Fatalf("HashPIN: %v", err)
	}
	cfg.Security.PinHash = hash
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected a configured pin_hash to validate, got %v", err)
	}
}
