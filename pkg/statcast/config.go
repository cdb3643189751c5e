package statcast

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dbacks-analysis/statcast-refresh/cache"
	"github.com/dbacks-analysis/statcast-refresh/pkg/logger"
)

// DefaultBaseURL is the Baseball Savant statcast search CSV export.
const DefaultBaseURL = "https://baseballsavant.mlb.com/statcast_search/csv"

const defaultUserAgent = "statcast-refresh/0.1"

// Config holds all configuration for a Client instance.
type Config struct {
	// BaseURL is the CSV export endpoint. Overridable for tests.
	BaseURL string

	// Timeout bounds a single export request.
	Timeout time.Duration

	// ChunkDays caps the span of one request; the export endpoint slows
	// down and eventually times out on long date ranges.
	ChunkDays int

	// Cache, when set, stores raw chunk payloads so repeated fetches of
	// the same window skip the network.
	Cache cache.Store

	// CacheTTL is how long a cached payload counts as fresh.
	CacheTTL time.Duration

	// UserAgent identifies this client to the upstream service.
	UserAgent string

	// Logger is the structured logger. Falls back to logger.Default() if nil.
	Logger logger.Logger
}

// Option is a functional option for configuring a Client.
type Option func(*Config)

// DefaultConfig returns a production-ready configuration pointed at
// Baseball Savant.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   2 * time.Minute,
		ChunkDays: 6,
		CacheTTL:  24 * time.Hour,
		UserAgent: defaultUserAgent,
	}
}

// validate checks that all Config fields contain sane values.
func (c *Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: BaseURL %q is not an absolute URL", ErrInvalidConfig, c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: Timeout must be positive", ErrInvalidConfig)
	}
	if c.ChunkDays <= 0 {
		return fmt.Errorf("%w: ChunkDays must be positive, got %d", ErrInvalidConfig, c.ChunkDays)
	}
	if c.Cache != nil && c.CacheTTL <= 0 {
		return fmt.Errorf("%w: CacheTTL must be positive when a cache is set", ErrInvalidConfig)
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	return nil
}

// WithBaseURL points the client at a different export endpoint.
func WithBaseURL(u string) Option {
	return func(c *Config) { c.BaseURL = u }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithChunkDays sets the maximum span in days of a single request.
func WithChunkDays(n int) Option {
	return func(c *Config) { c.ChunkDays = n }
}

// WithCache attaches a payload cache.
func WithCache(s cache.Store) Option {
	return func(c *Config) { c.Cache = s }
}

// WithCacheTTL sets how long cached payloads count as fresh.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Config) { c.CacheTTL = d }
}

// WithUserAgent sets the User-Agent header sent upstream.
func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}

// WithLogger sets a custom logger for the client.
// If not set, the global logger.Default() is used.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
