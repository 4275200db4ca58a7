// Package config loads the storage core's YAML configuration and watches it
// for live changes to the tunables that are safe to change without a
// restart (replication factor, cache budget, retry budget). It mirrors the
// split the gateway's config.Config/config.BackendConfig made between
// static identity/backend settings and the narrower set of fields a
// hot-reload loop is allowed to touch.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration object for one engine instance.
type Config struct {
	DataDir   string `yaml:"data_dir"`
	LogLevel  string `yaml:"log_level"`
	ListenAddr string `yaml:"listen_addr"`

	Storage    StorageConfig    `yaml:"storage"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Placement  PlacementConfig  `yaml:"placement"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	Audit      AuditConfig      `yaml:"audit"`
	KeyManager KeyManagerConfig `yaml:"key_manager"`
}

// StorageConfig governs the local content-addressed block store.
type StorageConfig struct {
	MaxCacheBytes int64  `yaml:"max_cache_bytes"`
	RedisAddr     string `yaml:"redis_addr"`
	ColdTier      ColdTierConfig `yaml:"cold_tier"`
}

// ColdTierConfig configures the optional S3-compatible durable backend
// (internal/coldstore), adapted from the gateway's BackendConfig.
type ColdTierConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Bucket       string `yaml:"bucket"`
	UseSSL       bool   `yaml:"use_ssl"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// PipelineConfig governs the chunking/crypto/erasure/secret-share pipeline.
type PipelineConfig struct {
	ChunkSize          int  `yaml:"chunk_size"`
	ErasureK           int  `yaml:"erasure_k"`
	ErasureM           int  `yaml:"erasure_m"`
	ShareThreshold     int  `yaml:"share_threshold"`
	ShareTotal         int  `yaml:"share_total"`
	CompressionEnabled bool `yaml:"compression_enabled"`
}

// PlacementConfig governs dispersal to, and reconstruction from, the
// abstract peer-routing layer.
type PlacementConfig struct {
	ReplicationFactor     int           `yaml:"replication_factor"`
	FetchTimeout          time.Duration `yaml:"fetch_timeout"`
	ProviderLookupTimeout time.Duration `yaml:"provider_lookup_timeout"`
	RetryAttempts         int           `yaml:"retry_attempts"`
	RetryBaseDelay        time.Duration `yaml:"retry_base_delay"`
	RedisAddr             string        `yaml:"redis_addr"`
	PeerTagAllow          string        `yaml:"peer_tag_allow"`
	GeoDiversityEnabled   bool          `yaml:"geo_diversity_enabled"`
}

// HardwareConfig gates AES-NI/ARMv8 crypto acceleration detection, kept
// from internal/crypto/hardware.go's config surface unchanged.
type HardwareConfig struct {
	EnableAESNI    bool `yaml:"enable_aes_ni"`
	EnableARMv8AES bool `yaml:"enable_armv8_aes"`
}

// AuditConfig governs the audit-event sink, adapted from internal/audit.
type AuditConfig struct {
	Enabled            bool            `yaml:"enabled"`
	Sink               AuditSinkConfig `yaml:"sink"`
	MaxEvents          int             `yaml:"max_events"`
	RedactMetadataKeys []string        `yaml:"redact_metadata_keys"`
}

// AuditSinkConfig selects and configures the audit event writer.
type AuditSinkConfig struct {
	Type          string            `yaml:"type"` // "stdout", "file", "http"
	Endpoint      string            `yaml:"endpoint"`
	Headers       map[string]string `yaml:"headers"`
	FilePath      string            `yaml:"file_path"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval time.Duration     `yaml:"flush_interval"`
	RetryCount    int               `yaml:"retry_count"`
	RetryBackoff  time.Duration     `yaml:"retry_backoff"`
}

// KeyManagerConfig configures the optional external-KMS custody of the
// sealed identity record, adapted from internal/crypto/keymanager.go.
type KeyManagerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // e.g. "kmip"
	Endpoint string `yaml:"endpoint"`
	KeyID    string `yaml:"key_id"`
}

// Default returns the recommended configuration from spec §4 and §8's
// scenario defaults: 64 KiB chunks, (K,M)=(10,4), (T,N)=(3,5).
func Default() *Config {
	return &Config{
		DataDir:    "./data",
		LogLevel:   "info",
		ListenAddr: "127.0.0.1:9090",
		Storage: StorageConfig{
			MaxCacheBytes: 256 << 20,
		},
		Pipeline: PipelineConfig{
			ChunkSize:          64 << 10,
			ErasureK:           10,
			ErasureM:           4,
			ShareThreshold:     3,
			ShareTotal:         5,
			CompressionEnabled: true,
		},
		Placement: PlacementConfig{
			ReplicationFactor:     3,
			FetchTimeout:          10 * time.Second,
			ProviderLookupTimeout: 5 * time.Second,
			RetryAttempts:         3,
			RetryBaseDelay:        100 * time.Millisecond,
		},
		Hardware: HardwareConfig{
			EnableAESNI:    true,
			EnableARMv8AES: true,
		},
		Audit: AuditConfig{
			Enabled:   true,
			Sink:      AuditSinkConfig{Type: "stdout"},
			MaxEvents: 10000,
		},
	}
}

// Load reads and parses a YAML config file, filling unset fields from
// Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the invariants the pipeline depends on (§4.D, §4.E).
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.ErasureK < 1 || p.ErasureM < 1 || p.ErasureK+p.ErasureM > 255 {
		return fmt.Errorf("config: invalid erasure parameters K=%d M=%d", p.ErasureK, p.ErasureM)
	}
	if p.ShareThreshold < 2 || p.ShareThreshold > p.ShareTotal || p.ShareTotal > 255 {
		return fmt.Errorf("config: invalid share parameters T=%d N=%d", p.ShareThreshold, p.ShareTotal)
	}
	if p.ChunkSize <= 0 {
		return fmt.Errorf("config: chunk_size must be positive")
	}
	if c.Storage.MaxCacheBytes < 0 {
		return fmt.Errorf("config: max_cache_bytes must be non-negative")
	}
	return nil
}

// Watcher reloads safe-to-change tunables from a config file whenever it
// changes on disk, following the teacher's fsnotify-driven config reload
// pattern. Unsafe fields (data directory, chunk size, erasure parameters —
// anything that would make already-written content undecodable) are frozen
// at the value observed on the first Load and never propagated by reload.
type Watcher struct {
	mu     sync.RWMutex
	path   string
	logger *logrus.Logger
	cur    *Config
	fsw    *fsnotify.Watcher
	onLoad func(*Config)
}

// WatchFile starts watching path for changes, invoking onChange with the
// current Config after every successful reload triggered by a write to or
// creation of the file; only safe-to-change fields are applied. The returned
// Watcher must be closed by the caller.
func WatchFile(path string, logger *logrus.Logger, onChange func(*Config)) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w := &Watcher{path: path, logger: logger, cur: initial, fsw: fsw, onLoad: onChange}
	go w.loop()
	return w, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			next, err := Load(w.path)
			if err != nil {
				if w.logger != nil {
					w.logger.WithError(err).Warn("config: reload failed, keeping previous configuration")
				}
				continue
			}
			w.applySafeFields(next)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.WithError(err).Warn("config: watcher error")
			}
		}
	}
}

// applySafeFields merges only the fields it is safe to change live into the
// running configuration: replication factor, cache budget, retry budget,
// audit/log tunables. Pipeline shape (chunk size, K/M, T/N) is immutable
// for the process lifetime because changing it would make in-flight and
// already-stored content undecodable under the new parameters.
func (w *Watcher) applySafeFields(next *Config) {
	w.mu.Lock()
	merged := *w.cur
	merged.LogLevel = next.LogLevel
	merged.Storage.MaxCacheBytes = next.Storage.MaxCacheBytes
	merged.Placement.ReplicationFactor = next.Placement.ReplicationFactor
	merged.Placement.RetryAttempts = next.Placement.RetryAttempts
	merged.Placement.RetryBaseDelay = next.Placement.RetryBaseDelay
	merged.Placement.GeoDiversityEnabled = next.Placement.GeoDiversityEnabled
	merged.Audit = next.Audit
	w.cur = &merged
	w.mu.Unlock()

	if w.onLoad != nil {
		w.onLoad(&merged)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
