// Package refresh implements the dataset refresh pipeline: decide whether a
// run is due, compute the fetch window, pull fresh rows, merge them with the
// preserved part of the canonical CSV, and commit the result crash-safely.
// After a commit it prunes old backups and optionally mirrors the refreshed
// window to Postgres.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/dbacks-analysis/statcast-refresh/cache"
	"github.com/dbacks-analysis/statcast-refresh/dataset"
	"github.com/dbacks-analysis/statcast-refresh/pkg/logger"
)

// Fetcher retrieves pitch rows for an inclusive date window. Implemented by
// the statcast client; tests use stubs.
type Fetcher interface {
	Fetch(ctx context.Context, start, end time.Time, team string) (*dataset.Dataset, error)
}

// Mirror receives the merged dataset after a successful commit. Implemented
// by the mirror package's Postgres sink.
type Mirror interface {
	Sync(ctx context.Context, ds *dataset.Dataset, fetchStart time.Time) error
}

// Config holds all settings for a Refresher instance.
type Config struct {
	// DatasetPath is the canonical CSV file the pipeline maintains.
	DatasetPath string

	// Team is the Statcast team abbreviation whose pitches are fetched.
	Team string

	// Fetcher retrieves pitch rows for the fetch window. Required.
	Fetcher Fetcher

	// MinDaysBetweenUpdates gates the run: a refresh proceeds only once the
	// watermark is at least this many days old.
	MinDaysBetweenUpdates int

	// LookbackDays reopens the fetch window this many days before the
	// watermark to capture late-arriving corrections.
	LookbackDays int

	// SeasonStart bounds the window: "MM-DD" resolved against the current
	// year, or a full "YYYY-MM-DD" date.
	SeasonStart string

	// RetentionCount is how many backup files survive pruning.
	RetentionCount int

	// Verify configures the checks a candidate dataset must pass before it
	// replaces the canonical file.
	Verify dataset.VerifyConfig

	// Cache, when set, has expired entries pruned after each run.
	Cache cache.Store

	// CacheTTL is the age beyond which cache entries are pruned.
	CacheTTL time.Duration

	// Mirror, when set, receives the merged dataset after a commit.
	Mirror Mirror

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time

	// Logger is the structured logger. Falls back to logger.Default() if nil.
	Logger logger.Logger
}

// Option is a functional option for configuring a Refresher.
type Option func(*Config)

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		DatasetPath:           "dbacks_team_statcast.csv",
		Team:                  "AZ",
		MinDaysBetweenUpdates: 7,
		LookbackDays:          14,
		SeasonStart:           "03-20",
		RetentionCount:        2,
		Verify:                dataset.DefaultVerifyConfig(),
		CacheTTL:              24 * time.Hour,
		Now:                   time.Now,
	}
}

func (c *Config) validate() error {
	if c.DatasetPath == "" {
		return fmt.Errorf("%w: dataset path must not be empty", ErrInvalidConfig)
	}
	if c.Team == "" {
		return fmt.Errorf("%w: team must not be empty", ErrInvalidConfig)
	}
	if c.Fetcher == nil {
		return ErrNoFetcher
	}
	if c.MinDaysBetweenUpdates < 0 {
		return fmt.Errorf("%w: min days between updates must not be negative, got %d", ErrInvalidConfig, c.MinDaysBetweenUpdates)
	}
	if c.LookbackDays < 0 {
		return fmt.Errorf("%w: lookback days must not be negative, got %d", ErrInvalidConfig, c.LookbackDays)
	}
	if c.RetentionCount < 0 {
		return fmt.Errorf("%w: retention count must not be negative, got %d", ErrInvalidConfig, c.RetentionCount)
	}
	if _, err := ResolveSeasonStart(c.SeasonStart, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Cache != nil && c.CacheTTL <= 0 {
		return fmt.Errorf("%w: cache ttl must be positive when a cache is attached", ErrInvalidConfig)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// WithDatasetPath sets the canonical CSV file to maintain.
func WithDatasetPath(path string) Option {
	return func(c *Config) { c.DatasetPath = path }
}

// WithTeam sets the Statcast team abbreviation.
func WithTeam(team string) Option {
	return func(c *Config) { c.Team = team }
}

// WithFetcher sets the row source for fetch windows.
func WithFetcher(f Fetcher) Option {
	return func(c *Config) { c.Fetcher = f }
}

// WithMinDaysBetweenUpdates sets the update gate threshold in days.
func WithMinDaysBetweenUpdates(n int) Option {
	return func(c *Config) { c.MinDaysBetweenUpdates = n }
}

// WithLookbackDays sets how many days before the watermark a window reopens.
func WithLookbackDays(n int) Option {
	return func(c *Config) { c.LookbackDays = n }
}

// WithSeasonStart sets the earliest window date, "MM-DD" or "YYYY-MM-DD".
func WithSeasonStart(s string) Option {
	return func(c *Config) { c.SeasonStart = s }
}

// WithRetentionCount sets how many backups survive pruning.
func WithRetentionCount(n int) Option {
	return func(c *Config) { c.RetentionCount = n }
}

// WithVerifyConfig sets the checks a candidate dataset must pass.
func WithVerifyConfig(vc dataset.VerifyConfig) Option {
	return func(c *Config) { c.Verify = vc }
}

// WithCache attaches a cache store for post-run expiry pruning.
func WithCache(store cache.Store) Option {
	return func(c *Config) { c.Cache = store }
}

// WithCacheTTL sets the age beyond which cache entries are pruned.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Config) { c.CacheTTL = ttl }
}

// WithMirror attaches a sink that receives committed datasets.
func WithMirror(m Mirror) Option {
	return func(c *Config) { c.Mirror = m }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}

// WithLogger sets a structured logger for the refresher.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Refresher orchestrates one refresh run end to end.
type Refresher struct {
	cfg    *Config
	logger logger.Logger

	mu sync.Mutex
}

// New creates a Refresher with the given options applied over DefaultConfig.
func New(opts ...Option) (*Refresher, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With("component", "refresh")

	return &Refresher{cfg: cfg, logger: log}, nil
}

// Run executes one refresh and returns its report. The report is always
// non-nil; on failure it carries the failing stage alongside the returned
// error. Run is safe for concurrent use, runs are serialized.
func (r *Refresher) Run(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := &Report{}
	if err := r.run(ctx, report); err != nil {
		report.setError(err)
		return report, err
	}
	return report, nil
}

func (r *Refresher) run(ctx context.Context, report *Report) error {
	now := r.cfg.Now()
	today := dateOf(now)

	recovered, err := Reconcile(r.cfg.DatasetPath, r.logger)
	if err != nil {
		return stageErr(KindWrite, err)
	}
	report.Recovered = recovered

	current, err := r.snapshot()
	if err != nil {
		return stageErr(KindMerge, err)
	}
	report.RowsBefore = current.Len()

	watermark, hasWatermark := current.Watermark()
	if !ShouldRun(watermark, hasWatermark, r.cfg.MinDaysBetweenUpdates, today) {
		report.Skipped = true
		report.RowsAfter = current.Len()
		report.NextUpdate = dateOf(watermark).AddDate(0, 0, r.cfg.MinDaysBetweenUpdates).Format(time.DateOnly)
		r.logger.Info("refresh not due",
			"watermark", watermark.Format(time.DateOnly),
			"days_since", daysBetween(watermark, today),
			"min_days", r.cfg.MinDaysBetweenUpdates)
		return nil
	}

	seasonStart, err := ResolveSeasonStart(r.cfg.SeasonStart, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	window := ComputeWindow(watermark, hasWatermark, seasonStart, r.cfg.LookbackDays, today)
	report.setWindow(window)
	if hasWatermark {
		r.logger.Info("refresh due",
			"watermark", watermark.Format(time.DateOnly),
			"days_since", daysBetween(watermark, today),
			"window", window.String())
	} else {
		r.logger.Info("no watermark, full season load", "window", window.String())
	}

	fetched := dataset.New()
	if window.Empty() {
		r.logger.Info("window is empty, skipping fetch", "window", window.String())
	} else {
		fetched, err = r.cfg.Fetcher.Fetch(ctx, window.Start, window.End, r.cfg.Team)
		if err != nil {
			return stageErr(KindFetch, err)
		}
		r.logger.Info("fetch complete", "rows", fetched.Len(), "window", window.String())
	}

	merged, stats := Merge(current, fetched, window.Start)
	report.applyMergeStats(stats)
	r.logger.Info("merge complete",
		"rows_before", stats.RowsBefore,
		"rows_after", stats.RowsAfter,
		"rows_added", stats.RowsAdded,
		"rows_removed", stats.RowsRemoved,
		"duplicates_dropped", stats.DuplicatesDropped)

	cm := NewCommitManager(r.cfg.DatasetPath, r.cfg.Verify, r.logger, r.cfg.Now)
	if err := cm.Commit(merged); err != nil {
		return err
	}
	report.Committed = true
	report.setCoverage(merged.DateRange())
	report.NextUpdate = today.AddDate(0, 0, r.cfg.MinDaysBetweenUpdates).Format(time.DateOnly)

	report.BackupsPruned = PruneBackups(r.cfg.DatasetPath, r.cfg.RetentionCount, r.logger)
	r.pruneCache(now)
	r.syncMirror(ctx, merged, window.Start)

	return nil
}

// snapshot reads the canonical file once, at the start of the run. This is
// the run's only view of the old data. A missing file means a first run; an
// unreadable one aborts before anything is staged.
func (r *Refresher) snapshot() (*dataset.Dataset, error) {
	current, err := dataset.ReadFile(r.cfg.DatasetPath)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Info("no existing dataset", "path", r.cfg.DatasetPath)
		return dataset.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return current, nil
}

func (r *Refresher) pruneCache(now time.Time) {
	if r.cfg.Cache == nil {
		return
	}
	n, err := r.cfg.Cache.PruneExpired(now.Add(-r.cfg.CacheTTL))
	if err != nil {
		r.logger.Warn("cache prune failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("pruned expired cache entries", "entries", n)
	}
}

// syncMirror pushes the committed dataset to the mirror. Mirror failures are
// logged and swallowed; the canonical commit already succeeded.
func (r *Refresher) syncMirror(ctx context.Context, ds *dataset.Dataset, fetchStart time.Time) {
	if r.cfg.Mirror == nil {
		return
	}
	if err := r.cfg.Mirror.Sync(ctx, ds, fetchStart); err != nil {
		r.logger.Warn("mirror sync failed", "error", err)
		return
	}
	r.logger.Info("mirror synced", "fetch_start", fetchStart.Format(time.DateOnly))
}
