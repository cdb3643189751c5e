package cache

import (
	"github.com/dbacks-analysis/statcast-refresh/pkg/logger"
)

// Config holds the tunable parameters for a [PebbleCache] instance.
// Use functional [Option] values with [Open] rather than constructing
// a Config directly.
type Config struct {
	// BlockCacheSize is the Pebble block-cache capacity in bytes. The
	// cache holds modest CSV payloads, so the default is deliberately
	// small.
	BlockCacheSize int64

	// SyncWrites controls whether each write is synced to stable storage.
	// A lost cache entry only costs a refetch, so the default is false.
	SyncWrites bool

	// Logger receives structured operational log messages.
	// If not set, the global logger.Default() is used.
	Logger logger.Logger
}

// DefaultConfig returns a Config sized for a single-team fetch cache.
func DefaultConfig() *Config {
	return &Config{
		BlockCacheSize: 16 << 20, // 16 MB
	}
}

// Option is a functional option applied to [Config] during [Open].
type Option func(*Config)

// WithBlockCacheSize sets the Pebble block-cache capacity in bytes.
func WithBlockCacheSize(size int64) Option {
	return func(c *Config) { c.BlockCacheSize = size }
}

// WithSyncWrites enables per-write durability (fsync).
func WithSyncWrites(sync bool) Option {
	return func(c *Config) { c.SyncWrites = sync }
}

// WithLogger sets a custom logger for the cache.
// If not set, the global logger.Default() is used.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
