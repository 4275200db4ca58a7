package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dreamware/msscs/internal/audit"
	"github.com/dreamware/msscs/internal/blockstore"
	"github.com/dreamware/msscs/internal/coldstore"
	"github.com/dreamware/msscs/internal/config"
	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/fileengine"
	"github.com/dreamware/msscs/internal/identity"
	"github.com/dreamware/msscs/internal/manifest"
	"github.com/dreamware/msscs/internal/placement"
)

func identityPath(dataDir string) string       { return filepath.Join(dataDir, "identity.bin") }
func manifestPath(dataDir string) string       { return filepath.Join(dataDir, "manifest.json") }
func descriptorPath(dataDir string) string     { return filepath.Join(dataDir, "descriptors.json") }
func blocksSnapshotPath(dataDir string) string { return filepath.Join(dataDir, "blocks.json") }
func configPath(dataDir string) string         { return filepath.Join(dataDir, "config.yaml") }

// runtime bundles one invocation's worth of engine components, loaded from
// a single on-disk data directory. Every subcommand opens one, does its
// work, and closes it.
type runtime struct {
	cfg      *config.Config
	dataDir  string
	store    *blockstore.Store
	place    *placement.Placement
	man      *manifest.Manifest
	engine   *fileengine.Engine
	unlocked *identity.UnlockedIdentity
	audit    audit.Logger
	logger   *logrus.Logger
}

func newLogger(level string) *logrus.Logger {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return l
}

// loadConfig reads data-dir/config.yaml if present, else falls back to
// config.Default() with DataDir overridden.
func loadConfig(dataDir string) *config.Config {
	if cfg, err := config.Load(configPath(dataDir)); err == nil {
		cfg.DataDir = dataDir
		return cfg
	}
	cfg := config.Default()
	cfg.DataDir = dataDir
	return cfg
}

// buildRouter assembles the routing layer a runtime publishes and fetches
// through: a bare LoopbackRouter when no cold tier is configured, or that
// same LoopbackRouter backstopped by internal/coldstore's durable
// S3-compatible tier when cold.Enabled (§4.F/§4.G "Placement provider of
// last resort"). A real libp2p/DHT transport would replace LoopbackRouter
// here without touching the cold-tier wiring.
func buildRouter(cold config.ColdTierConfig) (placement.Router, error) {
	primary := placement.Router(placement.LoopbackRouter{})
	if !cold.Enabled {
		return primary, nil
	}

	client, err := coldstore.NewClient(context.Background(), cold)
	if err != nil {
		return nil, fmt.Errorf("vault: cold tier: %w", err)
	}
	store := coldstore.New(client, cold.Bucket)
	return placement.FallbackRouter{Primary: primary, Cold: coldstore.NewRouterAdapter(store)}, nil
}

// openRuntime unlocks the identity at dataDir under passphrase and wires
// every component a FileEngine needs, restoring the BlockStore's prior
// contents from its on-disk snapshot (blocks.json — see (*runtime).close).
func openRuntime(dataDir, passphrase string) (*runtime, error) {
	cfg := loadConfig(dataDir)

	idRaw, err := os.ReadFile(identityPath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("vault: no identity at %s (run 'vault init-identity' first): %w", identityPath(dataDir), engine.ErrInvalidArgs)
	}
	rec, err := identity.UnmarshalIdentity(idRaw)
	if err != nil {
		return nil, fmt.Errorf("vault: %s: %w", identityPath(dataDir), engine.ErrIdentityCorrupt)
	}
	unlocked, err := rec.Unlock(passphrase)
	if err != nil {
		return nil, err
	}

	store := blockstore.New(cfg.Storage.MaxCacheBytes)
	if raw, readErr := os.ReadFile(blocksSnapshotPath(dataDir)); readErr == nil {
		var records []blockstore.BlockRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("vault: decode %s: %w", blocksSnapshotPath(dataDir), err)
		}
		if err := store.Import(records); err != nil {
			return nil, fmt.Errorf("vault: restore blocks: %w", err)
		}
	} else if !os.IsNotExist(readErr) {
		return nil, fmt.Errorf("vault: read %s: %w", blocksSnapshotPath(dataDir), readErr)
	}

	man, err := manifest.Load(manifestPath(dataDir))
	if err != nil {
		return nil, err
	}

	router, err := buildRouter(cfg.Storage.ColdTier)
	if err != nil {
		return nil, err
	}

	reliability := placement.NewReliability(cfg.Placement.RedisAddr)
	place := placement.New(router, store, reliability, nil, cfg.Placement)

	logger := newLogger(cfg.LogLevel)
	auditLogger, err := audit.NewLoggerFromConfig(cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("vault: audit sink: %w", err)
	}

	eng, err := fileengine.New(unlocked, store, place, man, descriptorPath(dataDir), cfg.Pipeline, logger)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		dataDir:  dataDir,
		store:    store,
		place:    place,
		man:      man,
		engine:   eng,
		unlocked: unlocked,
		audit:    auditLogger,
		logger:   logger,
	}, nil
}

// persistBlocks snapshots the BlockStore to blocks.json via the same
// write-tmp/fsync/rename discipline manifest.Manifest uses for
// manifest.json. The BlockStore itself (§4.F) keeps no disk copy of its
// own — durability there is ordinarily replication to peers — so a
// single-node CLI invocation must flush it explicitly before exit or every
// block placed during this process would vanish with it.
func (rt *runtime) persistBlocks() error {
	records := rt.store.Export()
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: encode blocks: %w", err)
	}

	path := blocksSnapshotPath(rt.dataDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("vault: create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("vault: open %s: %w", tmp, err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return fmt.Errorf("vault: write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("vault: fsync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("vault: close %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// close flushes the BlockStore snapshot, closes the audit sink, and wipes
// the unlocked identity's secret key material from memory. Persistence
// failures are logged rather than propagated: by the time close runs, the
// command's own result has already been decided and returned.
func (rt *runtime) close() {
	defer rt.unlocked.Lock()
	if err := rt.audit.Close(); err != nil {
		rt.logger.WithError(err).Warn("vault: closing audit sink failed")
	}
	if err := rt.persistBlocks(); err != nil {
		rt.logger.WithError(err).Error("vault: persisting block snapshot failed")
	}
}

// readPassphrase resolves the identity passphrase from (in order) the
// --passphrase flag, the VAULT_PASSPHRASE environment variable, or an
// interactive stdin prompt.
func readPassphrase(cmd *cobra.Command) (string, error) {
	if flagVal, _ := cmd.Flags().GetString("passphrase"); flagVal != "" {
		return flagVal, nil
	}
	if env := os.Getenv("VAULT_PASSPHRASE"); env != "" {
		return env, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "passphrase: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", fmt.Errorf("vault: read passphrase: %w", engine.ErrInvalidArgs)
	}
	return scanner.Text(), nil
}
