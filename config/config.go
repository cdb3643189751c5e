// Package config loads and validates the runtime configuration for the
// refresh job. Values come from an optional config file overlaid with
// STATCAST_-prefixed environment variables; every key has a working default,
// so a bare binary runs without any configuration at all.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dbacks-analysis/statcast-refresh/dataset"
	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure from this package.
var ErrInvalidConfig = errors.New("config: invalid configuration")

const envPrefix = "STATCAST"

// Config is the full runtime configuration, grouped by concern.
type Config struct {
	Dataset DatasetConfig `mapstructure:"dataset"`
	Refresh RefreshConfig `mapstructure:"refresh"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Mirror  MirrorConfig  `mapstructure:"mirror"`
	Log     LogConfig     `mapstructure:"log"`
}

// DatasetConfig describes the canonical CSV file and its integrity checks.
type DatasetConfig struct {
	// Path is the canonical dataset file. Backups and the temp candidate
	// are created as siblings, so the directory must be writable.
	Path string `mapstructure:"path"`

	// RequiredColumns must all be present for a candidate dataset to pass
	// verification.
	RequiredColumns []string `mapstructure:"required_columns"`

	// MinRows is the sanity floor: a verified dataset must have at least
	// this many rows. Guards against a truncated fetch replacing a good
	// file.
	MinRows int `mapstructure:"min_rows"`
}

// RefreshConfig controls update cadence and the correction window.
type RefreshConfig struct {
	// MinDaysBetweenUpdates gates how often a refresh actually runs.
	// Zero disables the gate.
	MinDaysBetweenUpdates int `mapstructure:"min_days_between_updates"`

	// LookbackDays is how far before the watermark the fetch window starts,
	// so late-arriving upstream corrections are re-captured.
	LookbackDays int `mapstructure:"lookback_days"`

	// SeasonStart bounds the fetch window on the left. Either "MM-DD"
	// (resolved against the current year) or a full "YYYY-MM-DD".
	SeasonStart string `mapstructure:"season_start"`

	// RetentionCount is how many timestamped backups survive pruning.
	RetentionCount int `mapstructure:"retention_count"`
}

// FetchConfig describes the upstream Statcast CSV export.
type FetchConfig struct {
	Team    string        `mapstructure:"team"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// ChunkDays caps the span of a single export request; the upstream
	// endpoint degrades on long ranges.
	ChunkDays int `mapstructure:"chunk_days"`
}

// CacheConfig controls the local fetch-response cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// MirrorConfig controls the optional Postgres mirror of the committed data.
type MirrorConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	DSN       string `mapstructure:"dsn"`
	Table     string `mapstructure:"table"`
	BatchSize int    `mapstructure:"batch_size"`
}

// LogConfig selects the logger profile.
type LogConfig struct {
	// Development switches to the human-readable console encoder at debug
	// level.
	Development bool `mapstructure:"development"`
}

// Load reads configuration from the file at path overlaid with STATCAST_*
// environment variables. An empty path skips the file and uses defaults and
// environment only; a non-empty path that cannot be read is an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataset.path", "./dbacks_team_statcast.csv")
	v.SetDefault("dataset.required_columns", dataset.DefaultRequiredColumns)
	v.SetDefault("dataset.min_rows", 100)

	v.SetDefault("refresh.min_days_between_updates", 7)
	v.SetDefault("refresh.lookback_days", 14)
	v.SetDefault("refresh.season_start", "03-20")
	v.SetDefault("refresh.retention_count", 2)

	v.SetDefault("fetch.team", "AZ")
	v.SetDefault("fetch.base_url", "https://baseballsavant.mlb.com/statcast_search/csv")
	v.SetDefault("fetch.timeout", 2*time.Minute)
	v.SetDefault("fetch.chunk_days", 6)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", "./.statcast-cache")
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.dsn", "")
	v.SetDefault("mirror.table", "statcast_pitches")
	v.SetDefault("mirror.batch_size", 500)

	v.SetDefault("log.development", false)
}

// Validate checks that all fields contain sane values.
func (c Config) Validate() error {
	if c.Dataset.Path == "" {
		return fmt.Errorf("%w: dataset.path must not be empty", ErrInvalidConfig)
	}
	if len(c.Dataset.RequiredColumns) == 0 {
		return fmt.Errorf("%w: dataset.required_columns must not be empty", ErrInvalidConfig)
	}
	if c.Dataset.MinRows <= 0 {
		return fmt.Errorf("%w: dataset.min_rows must be positive, got %d", ErrInvalidConfig, c.Dataset.MinRows)
	}

	if c.Refresh.MinDaysBetweenUpdates < 0 {
		return fmt.Errorf("%w: refresh.min_days_between_updates must not be negative, got %d",
			ErrInvalidConfig, c.Refresh.MinDaysBetweenUpdates)
	}
	if c.Refresh.LookbackDays < 0 {
		return fmt.Errorf("%w: refresh.lookback_days must not be negative, got %d",
			ErrInvalidConfig, c.Refresh.LookbackDays)
	}
	if !validSeasonStart(c.Refresh.SeasonStart) {
		return fmt.Errorf("%w: refresh.season_start %q must be MM-DD or YYYY-MM-DD",
			ErrInvalidConfig, c.Refresh.SeasonStart)
	}
	if c.Refresh.RetentionCount < 0 {
		return fmt.Errorf("%w: refresh.retention_count must not be negative, got %d",
			ErrInvalidConfig, c.Refresh.RetentionCount)
	}

	if c.Fetch.Team == "" {
		return fmt.Errorf("%w: fetch.team must not be empty", ErrInvalidConfig)
	}
	if c.Fetch.BaseURL == "" {
		return fmt.Errorf("%w: fetch.base_url must not be empty", ErrInvalidConfig)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("%w: fetch.timeout must be positive", ErrInvalidConfig)
	}
	if c.Fetch.ChunkDays <= 0 {
		return fmt.Errorf("%w: fetch.chunk_days must be positive, got %d", ErrInvalidConfig, c.Fetch.ChunkDays)
	}

	if c.Cache.Enabled {
		if c.Cache.Path == "" {
			return fmt.Errorf("%w: cache.path must not be empty when the cache is enabled", ErrInvalidConfig)
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("%w: cache.ttl must be positive when the cache is enabled", ErrInvalidConfig)
		}
	}

	if c.Mirror.Enabled {
		if c.Mirror.DSN == "" {
			return fmt.Errorf("%w: mirror.dsn must not be empty when the mirror is enabled", ErrInvalidConfig)
		}
		if c.Mirror.Table == "" {
			return fmt.Errorf("%w: mirror.table must not be empty when the mirror is enabled", ErrInvalidConfig)
		}
		if c.Mirror.BatchSize <= 0 {
			return fmt.Errorf("%w: mirror.batch_size must be positive, got %d", ErrInvalidConfig, c.Mirror.BatchSize)
		}
	}

	return nil
}

// validSeasonStart accepts "MM-DD" or a full "YYYY-MM-DD" date.
func validSeasonStart(s string) bool {
	if _, err := time.Parse("01-02", s); err == nil {
		return true
	}
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}
