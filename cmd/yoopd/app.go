package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sanchxt/yoop-sub002/config"
	"github.com/sanchxt/yoop-sub002/history"
	"github.com/sanchxt/yoop-sub002/identity"
	"github.com/sanchxt/yoop-sub002/metrics"
	"github.com/sanchxt/yoop-sub002/migration"
	"github.com/sanchxt/yoop-sub002/resume"
	"github.com/sanchxt/yoop-sub002/session"
	"github.com/sanchxt/yoop-sub002/trust"
)

// currentVersion is this build's semver, compared against migration_state.json's
// schema version at startup and reported by the version command.
var currentVersion = migration.NewVersion(0, 2, 0)

// app bundles every long-lived dependency the subcommands share, built
// once in PersistentPreRunE.
type app struct {
	dataDir string
	cfg     config.Config
	log     *slog.Logger

	identity  *identity.Identity
	trust     *trust.Store
	resumeMgr *resume.Manager
	history   *history.Store
	metrics   *metrics.Metrics

	node *session.Node
}

func newApp(dataDir string, logLevel string) (*app, error) {
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	cfg, err := config.Load(config.DefaultPath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(logLevel)}))

	migrations := migration.NewManager(migration.V0_1ToV0_2{})
	if _, err := migrations.Run(dataDir, currentVersion); err != nil {
		return nil, fmt.Errorf("run pending migrations: %w", err)
	}

	id, err := identity.LoadOrGenerate(filepath.Join(dataDir, "identity.json"), cfg.General.DeviceName)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	trustStore, err := trust.Load(trust.DefaultPath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("load trust store: %w", err)
	}

	resumeMgr, err := resume.NewManager(resume.DefaultDir(dataDir))
	if err != nil {
		return nil, fmt.Errorf("open resume manager: %w", err)
	}

	historyStore, err := history.Load(history.DefaultPath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	a := &app{
		dataDir:   dataDir,
		cfg:       cfg,
		log:       log,
		identity:  id,
		trust:     trustStore,
		resumeMgr: resumeMgr,
		history:   historyStore,
		metrics:   metrics.New(),
	}
	a.node = &session.Node{Identity: id, Trust: trustStore, Log: log}
	return a, nil
}

func parseLogLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
