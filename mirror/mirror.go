// Package mirror replicates committed datasets into a Postgres table for
// SQL analysis. The CSV file stays canonical; the mirror is a best-effort
// copy and its failures never fail a refresh run.
//
// Rows are keyed by the composite pitch key. The four key columns land in
// typed columns, every other CSV column rides along in a jsonb payload, so
// schema changes upstream never require a migration here.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dbacks-analysis/statcast-refresh/dataset"
	"github.com/dbacks-analysis/statcast-refresh/pkg/logger"
)

// ErrInvalidConfig reports an unusable mirror configuration.
var ErrInvalidConfig = errors.New("mirror: invalid configuration")

// Config holds all settings for a Mirror instance.
type Config struct {
	// Table is the target table name.
	Table string

	// BatchSize bounds how many inserts ride in one batch round trip.
	BatchSize int

	// Logger is the structured logger. Falls back to logger.Default() if nil.
	Logger logger.Logger
}

// Option is a functional option for configuring a Mirror.
type Option func(*Config)

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Table:     "statcast_pitches",
		BatchSize: 500,
	}
}

func (c *Config) validate() error {
	if c.Table == "" {
		return fmt.Errorf("%w: table must not be empty", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	return nil
}

// WithTable sets the target table name.
func WithTable(name string) Option {
	return func(c *Config) { c.Table = name }
}

// WithBatchSize bounds how many inserts ride in one batch round trip.
func WithBatchSize(n int) Option {
	return func(c *Config) { c.BatchSize = n }
}

// WithLogger sets a structured logger for the mirror.
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Mirror pushes committed datasets into one Postgres table.
type Mirror struct {
	cfg    *Config
	pool   *pgxpool.Pool
	table  string
	logger logger.Logger
}

// Open connects to Postgres and verifies the connection with a ping.
func Open(ctx context.Context, dsn string, opts ...Option) (*Mirror, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("%w: dsn must not be empty", ErrInvalidConfig)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With("component", "mirror")

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("mirror: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("mirror: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("mirror: ping: %w", err)
	}

	m := &Mirror{
		cfg:    cfg,
		pool:   pool,
		table:  pgx.Identifier{cfg.Table}.Sanitize(),
		logger: log,
	}
	log.Info("mirror opened", "table", cfg.Table)
	return m, nil
}

// Close releases the connection pool.
func (m *Mirror) Close() {
	m.pool.Close()
	m.logger.Info("mirror closed")
}

// EnsureSchema creates the target table and its date index when absent.
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, createTableSQL(m.table)); err != nil {
		return fmt.Errorf("mirror: create table: %w", err)
	}
	idx := pgx.Identifier{m.cfg.Table + "_game_date_idx"}.Sanitize()
	if _, err := m.pool.Exec(ctx, createIndexSQL(idx, m.table)); err != nil {
		return fmt.Errorf("mirror: create index: %w", err)
	}
	return nil
}

// Sync replaces the refreshed window in the mirror table: inside one
// transaction it deletes every row dated fetchStart or later, then inserts
// the dataset's rows from that window. Conflicting keys are skipped, so a
// replayed sync is idempotent.
func (m *Mirror) Sync(ctx context.Context, ds *dataset.Dataset, fetchStart time.Time) error {
	rows := windowRows(ds, fetchStart)

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("mirror: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, deleteWindowSQL(m.table), fetchStart)
	if err != nil {
		return fmt.Errorf("mirror: delete window: %w", err)
	}
	deleted := tag.RowsAffected()

	inserted := 0
	insert := insertRowSQL(m.table)
	for i := 0; i < len(rows); i += m.cfg.BatchSize {
		j := i + m.cfg.BatchSize
		if j > len(rows) {
			j = len(rows)
		}

		b := &pgx.Batch{}
		for _, r := range rows[i:j] {
			b.Queue(insert, rowArgs(ds, r)...)
		}

		br := tx.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("mirror: insert batch: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("mirror: close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("mirror: commit: %w", err)
	}

	m.logger.Info("window mirrored",
		"fetch_start", fetchStart.Format(time.DateOnly),
		"deleted", deleted,
		"inserted", inserted)
	return nil
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	game_pk       bigint  NOT NULL,
	at_bat_number integer NOT NULL,
	pitch_number  integer NOT NULL,
	game_date     date    NOT NULL,
	payload       jsonb   NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (game_pk, at_bat_number, pitch_number)
)`, table)
}

func createIndexSQL(index, table string) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (game_date)`, index, table)
}

func deleteWindowSQL(table string) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE game_date >= $1`, table)
}

func insertRowSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (game_pk, at_bat_number, pitch_number, game_date, payload)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (game_pk, at_bat_number, pitch_number) DO NOTHING`, table)
}

// windowRows returns the dataset rows dated fetchStart or later, the slice
// of the dataset a sync replaces.
func windowRows(ds *dataset.Dataset, fetchStart time.Time) []dataset.Record {
	rows := make([]dataset.Record, 0, ds.Len())
	for _, r := range ds.Rows {
		if !r.GameDate.Before(fetchStart) {
			rows = append(rows, r)
		}
	}
	return rows
}

// rowArgs builds the insert arguments for one record: the typed key and
// date, then the remaining columns as a jsonb payload.
func rowArgs(ds *dataset.Dataset, r dataset.Record) []any {
	return []any{r.GamePK, r.AtBatNumber, r.PitchNumber, r.GameDate, payloadFor(ds, r)}
}

// payloadFor maps every non-key column to its raw value. Values that are
// already typed columns stay out of the payload.
func payloadFor(ds *dataset.Dataset, r dataset.Record) map[string]string {
	payload := make(map[string]string, len(ds.Columns))
	for i, col := range ds.Columns {
		switch col {
		case dataset.ColGameDate, dataset.ColGamePK, dataset.ColAtBatNumber, dataset.ColPitchNumber:
			continue
		}
		if i < len(r.Fields) {
			payload[col] = r.Fields[i]
		}
	}
	return payload
}
