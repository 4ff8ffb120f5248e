// Package config handles configuration loading and validation for mirrorgate.
//
// Configuration is read from TOML by default; JSON and YAML are selected by
// file extension. A missing file yields DefaultConfig. Environment variables
// prefixed MIRRORGATE_ override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joeshaw/envdecode"

	"mirrorgate/internal/presentation"
	"mirrorgate/internal/store"
)

// Version is the current configuration version.
const Version = 1

// Config holds all mirrorgate configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	Identity     IdentityConfig     `toml:"identity" json:"identity" yaml:"identity"`
	Storage      StorageConfig      `toml:"storage" json:"storage" yaml:"storage"`
	Session      SessionConfig      `toml:"session" json:"session" yaml:"session"`
	Presentation PresentationConfig `toml:"presentation" json:"presentation" yaml:"presentation"`
	Logging      LoggingConfig      `toml:"logging" json:"logging" yaml:"logging"`
	Telemetry    TelemetryConfig    `toml:"telemetry" json:"telemetry" yaml:"telemetry"`
}

// IdentityConfig controls fingerprinting and the stored record.
type IdentityConfig struct {
	// Digest is "sha256" or "sha3-256".
	Digest string `toml:"digest" json:"digest" yaml:"digest" env:"MIRRORGATE_DIGEST"`

	// StorageKey is the key the identity record is stored under.
	StorageKey string `toml:"storage_key" json:"storage_key" yaml:"storage_key" env:"MIRRORGATE_STORAGE_KEY"`
}

// StorageConfig selects the durable backend.
type StorageConfig struct {
	// Type is "sqlite", "redis" or "memory".
	Type string `toml:"type" json:"type" yaml:"type" env:"MIRRORGATE_STORAGE_TYPE"`

	// Path is the sqlite database file.
	Path string `toml:"path" json:"path" yaml:"path" env:"MIRRORGATE_STORAGE_PATH"`

	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`

	RedisAddr string `toml:"redis_addr" json:"redis_addr" yaml:"redis_addr" env:"MIRRORGATE_REDIS_ADDR"`
	RedisDB   int    `toml:"redis_db" json:"redis_db" yaml:"redis_db" env:"MIRRORGATE_REDIS_DB"`
	KeyPrefix string `toml:"key_prefix" json:"key_prefix" yaml:"key_prefix" env:"MIRRORGATE_REDIS_KEY_PREFIX"`
}

// SessionConfig controls a single verification session.
type SessionConfig struct {
	// ObserveDwellMs is how long the observation stage lasts before input opens.
	ObserveDwellMs int `toml:"observe_dwell_ms" json:"observe_dwell_ms" yaml:"observe_dwell_ms" env:"MIRRORGATE_OBSERVE_DWELL_MS"`

	// HashTimeoutMs bounds fingerprint computation.
	HashTimeoutMs int `toml:"hash_timeout_ms" json:"hash_timeout_ms" yaml:"hash_timeout_ms" env:"MIRRORGATE_HASH_TIMEOUT_MS"`

	// ScoreSeed seeds the fallback score. 0 seeds from the clock.
	ScoreSeed int64 `toml:"score_seed" json:"score_seed" yaml:"score_seed" env:"MIRRORGATE_SCORE_SEED"`

	// FrameRate is the ambient render rate in frames per second.
	FrameRate int `toml:"frame_rate" json:"frame_rate" yaml:"frame_rate"`

	// Screen is the display resolution ("WxH") bound into the device
	// signature. Empty reads the framebuffer size.
	Screen string `toml:"screen" json:"screen" yaml:"screen" env:"MIRRORGATE_SCREEN"`
}

// PresentationConfig overrides stage durations, keyed by stage name.
type PresentationConfig struct {
	StageDurationsMs map[string]int `toml:"stage_durations_ms" json:"stage_durations_ms" yaml:"stage_durations_ms"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level" env:"MIRRORGATE_LOG_LEVEL"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format" env:"MIRRORGATE_LOG_FORMAT"`

	// Output is "stderr", "stdout", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output" env:"MIRRORGATE_LOG_OUTPUT"`

	// FilePath is the log file used by the "file" and "both" outputs.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path" env:"MIRRORGATE_LOG_PATH"`

	MaxSizeMB  int  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	Compress   bool `toml:"compress" json:"compress" yaml:"compress"`

	// MaxAgeDays prunes rotated files older than this many days. 0 keeps
	// them until MaxBackups removes them.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days" env:"MIRRORGATE_LOG_MAX_AGE_DAYS"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	// OTLPEndpoint is the OTLP gRPC collector. Empty disables export.
	OTLPEndpoint string `toml:"otlp_endpoint" json:"otlp_endpoint" yaml:"otlp_endpoint" env:"MIRRORGATE_OTLP_ENDPOINT"`

	Insecure    bool    `toml:"insecure" json:"insecure" yaml:"insecure" env:"MIRRORGATE_OTLP_INSECURE"`
	SampleRate  float64 `toml:"sample_rate" json:"sample_rate" yaml:"sample_rate" env:"MIRRORGATE_TRACE_SAMPLE_RATE"`
	ServiceName string  `toml:"service_name" json:"service_name" yaml:"service_name"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dataDir := DataDir()

	return &Config{
		Version: Version,
		Identity: IdentityConfig{
			Digest:     "sha256",
			StorageKey: "mirrorgate.identity",
		},
		Storage: StorageConfig{
			Type:          store.TypeSQLite,
			Path:          filepath.Join(dataDir, "identity.db"),
			BusyTimeoutMs: 5000,
			RedisAddr:     "localhost:6379",
			KeyPrefix:     store.DefaultKeyPrefix,
		},
		Session: SessionConfig{
			ObserveDwellMs: 3500,
			HashTimeoutMs:  2000,
			FrameRate:      30,
		},
		Presentation: PresentationConfig{
			StageDurationsMs: map[string]int{},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(dataDir, "logs", "mirrorgate.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   true,
		},
		Telemetry: TelemetryConfig{
			SampleRate:  1.0,
			ServiceName: "mirrorgate",
		},
	}
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	if p := FindConfigFile(); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the configuration from path, applies environment overrides
// and validates the result. An empty path uses ConfigPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	return NewLoader(path).Load()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured paths live in.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Storage.Type == store.TypeSQLite || c.Storage.Type == "" {
		dirs = append(dirs, filepath.Dir(c.Storage.Path))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies MIRRORGATE_* environment variables on top of
// the current values. Variables that are unset leave fields untouched.
func (c *Config) ApplyEnvOverrides() error {
	for _, target := range []any{&c.Identity, &c.Storage, &c.Session, &c.Logging, &c.Telemetry} {
		if err := envdecode.Decode(target); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return fmt.Errorf("environment overrides: %w", err)
		}
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Presentation.StageDurationsMs = make(map[string]int, len(c.Presentation.StageDurationsMs))
	for k, v := range c.Presentation.StageDurationsMs {
		clone.Presentation.StageDurationsMs[k] = v
	}
	return &clone
}

// StoreOptions converts the storage section for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Type:        c.Storage.Type,
		Path:        expandPath(c.Storage.Path),
		BusyTimeout: millis(c.Storage.BusyTimeoutMs),
		RedisAddr:   c.Storage.RedisAddr,
		RedisDB:     c.Storage.RedisDB,
		KeyPrefix:   c.Storage.KeyPrefix,
	}
}

// ObserveDwell returns the observation dwell.
func (c *Config) ObserveDwell() time.Duration { return millis(c.Session.ObserveDwellMs) }

// HashTimeout returns the fingerprint timeout.
func (c *Config) HashTimeout() time.Duration { return millis(c.Session.HashTimeoutMs) }

// FrameInterval returns the time between ambient frames.
func (c *Config) FrameInterval() time.Duration {
	if c.Session.FrameRate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.Session.FrameRate)
}

// StageDurations returns the default stage durations with configured
// overrides applied. Unknown stage names are skipped; Validate reports them.
func (c *Config) StageDurations() map[presentation.StageKind]time.Duration {
	out := make(map[presentation.StageKind]time.Duration, len(presentation.DefaultDurations))
	for k, v := range presentation.DefaultDurations {
		out[k] = v
	}
	for name, ms := range c.Presentation.StageDurationsMs {
		kind, err := presentation.ParseStageKind(name)
		if err != nil {
			continue
		}
		out[kind] = millis(ms)
	}
	return out
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
