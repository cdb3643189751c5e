package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dbacks-analysis/statcast-refresh/cache"
	"github.com/dbacks-analysis/statcast-refresh/config"
	"github.com/dbacks-analysis/statcast-refresh/dataset"
	"github.com/dbacks-analysis/statcast-refresh/mirror"
	"github.com/dbacks-analysis/statcast-refresh/pkg/logger"
	"github.com/dbacks-analysis/statcast-refresh/pkg/statcast"
	"github.com/dbacks-analysis/statcast-refresh/refresh"
)

// Exit codes: 0 success or gate skip, 1 handled failure, 2 rollback failure
// (the canonical file needs operator attention).
const (
	exitFailure  = 1
	exitRollback = 2
)

func main() {
	logger.SetDefault(logger.MustProduction())
	defer logger.SyncDefault()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("STATCAST_CONFIG"))
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	if cfg.Log.Development {
		logger.SetDefault(logger.MustDevelopment())
	}

	var store cache.Store
	if cfg.Cache.Enabled {
		pc, err := cache.Open(cfg.Cache.Path, cache.WithLogger(logger.Default()))
		if err != nil {
			logger.Fatal("failed to open cache", "path", cfg.Cache.Path, "error", err)
		}
		defer pc.Close()
		store = pc
	}

	clientOpts := []statcast.Option{
		statcast.WithBaseURL(cfg.Fetch.BaseURL),
		statcast.WithTimeout(cfg.Fetch.Timeout),
		statcast.WithChunkDays(cfg.Fetch.ChunkDays),
		statcast.WithLogger(logger.Default()),
	}
	if store != nil {
		clientOpts = append(clientOpts,
			statcast.WithCache(store),
			statcast.WithCacheTTL(cfg.Cache.TTL),
		)
	}
	client, err := statcast.NewClient(clientOpts...)
	if err != nil {
		logger.Fatal("failed to create statcast client", "error", err)
	}

	opts := []refresh.Option{
		refresh.WithDatasetPath(cfg.Dataset.Path),
		refresh.WithTeam(cfg.Fetch.Team),
		refresh.WithFetcher(client),
		refresh.WithMinDaysBetweenUpdates(cfg.Refresh.MinDaysBetweenUpdates),
		refresh.WithLookbackDays(cfg.Refresh.LookbackDays),
		refresh.WithSeasonStart(cfg.Refresh.SeasonStart),
		refresh.WithRetentionCount(cfg.Refresh.RetentionCount),
		refresh.WithVerifyConfig(dataset.VerifyConfig{
			RequiredColumns: cfg.Dataset.RequiredColumns,
			MinRows:         cfg.Dataset.MinRows,
		}),
		refresh.WithLogger(logger.Default()),
	}
	if store != nil {
		opts = append(opts, refresh.WithCache(store), refresh.WithCacheTTL(cfg.Cache.TTL))
	}

	if cfg.Mirror.Enabled {
		m, err := mirror.Open(ctx, cfg.Mirror.DSN,
			mirror.WithTable(cfg.Mirror.Table),
			mirror.WithBatchSize(cfg.Mirror.BatchSize),
			mirror.WithLogger(logger.Default()),
		)
		if err != nil {
			logger.Fatal("failed to open mirror", "error", err)
		}
		defer m.Close()
		if err := m.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to ensure mirror schema", "error", err)
		}
		opts = append(opts, refresh.WithMirror(m))
	}

	r, err := refresh.New(opts...)
	if err != nil {
		logger.Fatal("failed to create refresher", "error", err)
	}

	report, runErr := r.Run(ctx)
	printReport(report)

	if runErr != nil {
		code := exitFailure
		var rb *refresh.RollbackError
		if errors.As(runErr, &rb) {
			code = exitRollback
		}
		logger.Default().Error("refresh failed", "error", runErr)
		logger.SyncDefault()
		os.Exit(code)
	}
}

func printReport(r *refresh.Report) {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		logger.Default().Error("failed to encode report", "error", err)
		return
	}
	fmt.Println(string(out))
}
