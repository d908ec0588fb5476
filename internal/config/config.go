// Package config handles configuration loading and validation for docsession.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds the Session Manager's tunables (§6.6).
type Config struct {
	// SessionsDir is the root directory under which every session's WAL,
	// baseline, checkpoints, and index.json live.
	SessionsDir string `toml:"sessions_dir" yaml:"sessions_dir"`

	// CompactionThreshold is the total WAL entry count above which a
	// checkpoint is forced regardless of CheckpointInterval (§4.1).
	CompactionThreshold int `toml:"compaction_threshold" yaml:"compaction_threshold"`

	// CheckpointInterval is the number of WAL entries since the last
	// checkpoint that triggers an automatic new one (§4.1).
	CheckpointInterval int `toml:"checkpoint_interval" yaml:"checkpoint_interval"`

	// AutoSave, when true, writes the rendered .docx back to SourcePath
	// after every mutating operation instead of only on explicit Save.
	AutoSave bool `toml:"auto_save" yaml:"auto_save"`

	// Debug raises the logger's minimum level to debug and includes
	// source position in every record.
	Debug bool `toml:"debug" yaml:"debug"`

	// DebounceMillis is the external-change tracker's stabilization
	// window (§4.5) before a burst of file writes is reconciled.
	DebounceMillis int `toml:"debounce_ms" yaml:"debounce_ms"`

	// SimilarityThreshold is the minimum Levenshtein ratio for the fuzzy
	// diff pass to treat two elements as Modified rather than a
	// Removed/Added pair (§4.5).
	SimilarityThreshold float64 `toml:"similarity_threshold" yaml:"similarity_threshold"`

	// ActivityDBPath is the SQLite file backing internal/activitystore, a
	// non-authoritative projection of WAL history. Empty disables it.
	ActivityDBPath string `toml:"activity_db_path" yaml:"activity_db_path"`
}

// DefaultConfig returns a configuration with sensible defaults (§6.6).
func DefaultConfig() *Config {
	return &Config{
		SessionsDir:         filepath.Join(PlatformDataDir(), "sessions"),
		CompactionThreshold: 50,
		CheckpointInterval:  10,
		AutoSave:            false,
		Debug:               false,
		DebounceMillis:      500,
		SimilarityThreshold: 0.6,
		ActivityDBPath:      filepath.Join(PlatformDataDir(), "activity.db"),
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from path, falling back to defaults for a
// missing file, then applies environment overrides. An empty path uses
// ConfigPath. The format is selected by extension: ".yaml"/".yml" decode
// as YAML, everything else as TOML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies the DOCSESSION_* environment variables listed
// in §6.6 on top of whatever Config already holds.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DOCSESSION_SESSIONS_DIR"); v != "" {
		c.SessionsDir = v
	}
	if v := os.Getenv("DOCSESSION_COMPACTION_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CompactionThreshold = n
		}
	}
	if v := os.Getenv("DOCSESSION_CHECKPOINT_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CheckpointInterval = n
		}
	}
	if v := os.Getenv("DOCSESSION_AUTO_SAVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoSave = b
		}
	}
	if v := os.Getenv("DOCSESSION_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
	if v := os.Getenv("DOCSESSION_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DebounceMillis = n
		}
	}
	if v := os.Getenv("DOCSESSION_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("DOCSESSION_ACTIVITY_DB_PATH"); v != "" {
		c.ActivityDBPath = v
	}
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.SessionsDir == "" {
		return errors.New("config: sessions_dir is required")
	}
	if c.CompactionThreshold < 1 {
		return errors.New("config: compaction_threshold must be at least 1")
	}
	if c.CheckpointInterval < 1 {
		return errors.New("config: checkpoint_interval must be at least 1")
	}
	if c.DebounceMillis < 0 {
		return errors.New("config: debounce_ms must not be negative")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return errors.New("config: similarity_threshold must be between 0 and 1")
	}
	return nil
}

// EnsureDirectories creates the sessions directory if it doesn't exist.
func (c *Config) EnsureDirectories() error {
	if c.SessionsDir == "" {
		return nil
	}
	return os.MkdirAll(c.SessionsDir, 0o700)
}
