// Package config implements Yoop's user configuration file (spec §6's
// configuration table): load/save config.toml, defaults, and
// validation, in the teacher's struct-plus-free-function style.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sanchxt/yoop-sub002/fileio"
)

type GeneralConfig struct {
	DeviceName     string `toml:"device_name"`
	DefaultExpire  string `toml:"default_expire"` // duration string, e.g. "10m"
}

type NetworkConfig struct {
	Port              int    `toml:"port"`
	TransferPortStart int    `toml:"transfer_port_start"`
	TransferPortEnd   int    `toml:"transfer_port_end"`
}

type TransferConfig struct {
	ChunkSize       uint64 `toml:"chunk_size"`
	ParallelChunks  int    `toml:"parallel_chunks"`
	VerifyChecksum  bool   `toml:"verify_checksum"`
	Compression     string `toml:"compression"`
}

type SecurityConfig struct {
	RequirePin      bool   `toml:"require_pin"`
	PinHash         string `toml:"pin_hash"`
	RequireApproval bool   `toml:"require_approval"`
}

type HistoryConfig struct {
	MaxEntries int `toml:"max_entries"`
}

type UpdateConfig struct {
	AutoCheck      bool   `toml:"auto_check"`
	CheckInterval  string `toml:"check_interval"` // duration string, e.g. "86400s"
	Notify         bool   `toml:"notify"`
	PackageManager string `toml:"package_manager"`
}

// Config is the full parsed configuration (spec §6's authoritative TOML
// section/key table).
type Config struct {
	General  GeneralConfig  `toml:"general"`
	Network  NetworkConfig  `toml:"network"`
	Transfer TransferConfig `toml:"transfer"`
	Security SecurityConfig `toml:"security"`
	History  HistoryConfig  `toml:"history"`
	Update   UpdateConfig   `toml:"update"`
}

// DefaultDataDir returns the conventional per-user data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".yoop"
	}
	return filepath.Join(home, ".yoop")
}

// DefaultPath returns the conventional location of config.toml under a
// Yoop data directory.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			DeviceName:    defaultDeviceName(),
			DefaultExpire: "10m",
		},
		Network: NetworkConfig{
			Port:              52525,
			TransferPortStart: 52530,
			TransferPortEnd:   52540,
		},
		Transfer: TransferConfig{
			ChunkSize:      256 * 1024,
			ParallelChunks: 4,
			VerifyChecksum: true,
			Compression:    string(fileio.CompressionAuto),
		},
		Security: SecurityConfig{
			RequirePin:      false,
			RequireApproval: false,
		},
		History: HistoryConfig{
			MaxEntries: 100,
		},
		Update: UpdateConfig{
			AutoCheck:     false,
			CheckInterval: "86400s",
			Notify:        true,
		},
	}
}

func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "yoop-device"
	}
	return host
}

// Load reads config.toml from path, returning DefaultConfig() if the
// file does not exist yet.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("stat config: %w", err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as TOML, creating parent directories as
// needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// Validate checks cfg against the authoritative constraints from spec
// §6, in the same "one function, one error per violated field" style as
// the teacher's node.ValidateConfig.
func Validate(cfg Config) error {
	if cfg.General.DeviceName == "" {
		return errors.New("general.device_name is required")
	}
	if _, err := time.ParseDuration(cfg.General.DefaultExpire); err != nil {
		return fmt.Errorf("invalid general.default_expire: %w", err)
	}
	if cfg.Network.Port <= 0 || cfg.Network.Port > 65535 {
		return fmt.Errorf("invalid network.port %d", cfg.Network.Port)
	}
	if cfg.Network.TransferPortStart <= 0 || cfg.Network.TransferPortEnd <= 0 {
		return errors.New("network.transfer_port_start and transfer_port_end are required")
	}
	if cfg.Network.TransferPortStart > cfg.Network.TransferPortEnd {
		return errors.New("network.transfer_port_start must be <= transfer_port_end")
	}
	if cfg.Transfer.ChunkSize == 0 {
		return errors.New("transfer.chunk_size must be > 0")
	}
	if cfg.Transfer.ParallelChunks <= 0 {
		return errors.New("transfer.parallel_chunks must be > 0")
	}
	if _, err := fileio.ParseCompressionMode(cfg.Transfer.Compression); err != nil {
		return fmt.Errorf("invalid transfer.compression: %w", err)
	}
	if cfg.Security.RequirePin && cfg.Security.PinHash == "" {
		return errors.New("security.require_pin is set but no pin_hash is configured")
	}
	if cfg.History.MaxEntries < 0 {
		return errors.New("history.max_entries must be >= 0")
	}
	if cfg.Update.AutoCheck {
		if _, err := time.ParseDuration(cfg.Update.CheckInterval); err != nil {
			return fmt.Errorf("invalid update.check_interval: %w", err)
		}
	}
	return nil
}
