package cache

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/dbacks-analysis/statcast-refresh/pkg/logger"
)

// Compile-time interface check.
var _ Store = (*PebbleCache)(nil)

// PebbleCache is a production [Store] backed by Pebble. It is safe for
// concurrent use — Pebble handles its own internal synchronisation.
type PebbleCache struct {
	db *pebble.DB

	writeOpts *pebble.WriteOptions
	path      string
	logger    logger.Logger

	// closed + mu guard against use-after-close. Individual operations
	// take an RLock (allowing full concurrency). Close takes the write
	// lock, draining in-flight operations before teardown.
	closed atomic.Bool
	mu     sync.RWMutex
}

// Open creates or opens a Pebble-backed cache at path with the given
// options. The caller must call Close when done to release all resources.
func Open(path string, opts ...Option) (*PebbleCache, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(cfg)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With("component", "cache")

	blockCache := pebble.NewCache(cfg.BlockCacheSize)
	defer blockCache.Unref()

	db, err := pebble.Open(path, &pebble.Options{Cache: blockCache})
	if err != nil {
		return nil, fmt.Errorf("cache: failed to open %s: %w", path, err)
	}

	writeOpts := pebble.NoSync
	if cfg.SyncWrites {
		writeOpts = pebble.Sync
	}

	c := &PebbleCache{
		db:        db,
		writeOpts: writeOpts,
		path:      path,
		logger:    log,
	}

	log.Info("cache opened", "path", path)
	return c, nil
}

// ---------------------------------------------------------------------------
// Store implementation
// ---------------------------------------------------------------------------

func (c *PebbleCache) Get(key string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed.Load() {
		return Entry{}, ErrClosed
	}
	if key == "" {
		return Entry{}, ErrEmptyKey
	}

	val, closer, err := c.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("cache: get failed: %w", err)
	}
	defer closer.Close()

	// Copy — the returned slice is only valid until closer.Close().
	out := make([]byte, len(val))
	copy(out, val)
	return decodeEntry(out)
}

func (c *PebbleCache) Put(key string, e Entry) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}

	if err := c.db.Set([]byte(key), encodeEntry(e), c.writeOpts); err != nil {
		return fmt.Errorf("cache: put failed: %w", err)
	}
	return nil
}

func (c *PebbleCache) Delete(key string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}

	if err := c.db.Delete([]byte(key), c.writeOpts); err != nil {
		return fmt.Errorf("cache: delete failed: %w", err)
	}
	return nil
}

func (c *PebbleCache) PruneExpired(cutoff time.Time) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed.Load() {
		return 0, ErrClosed
	}

	iter, err := c.db.NewIter(nil)
	if err != nil {
		return 0, fmt.Errorf("cache: new iterator failed: %w", err)
	}

	var stale [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			iter.Close()
			return 0, fmt.Errorf("cache: iterate failed: %w", err)
		}

		e, err := decodeEntry(val)
		if err != nil || e.FetchedAt.Before(cutoff) {
			k := make([]byte, len(iter.Key()))
			copy(k, iter.Key())
			stale = append(stale, k)
		}
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return 0, fmt.Errorf("cache: iterate failed: %w", err)
	}
	iter.Close()

	if len(stale) == 0 {
		return 0, nil
	}

	batch := c.db.NewBatch()
	defer batch.Close()
	for _, k := range stale {
		if err := batch.Delete(k, nil); err != nil {
			return 0, fmt.Errorf("cache: batch delete failed: %w", err)
		}
	}
	if err := batch.Commit(c.writeOpts); err != nil {
		return 0, fmt.Errorf("cache: batch commit failed: %w", err)
	}

	c.logger.Debug("pruned expired entries", "count", len(stale), "cutoff", cutoff)
	return len(stale), nil
}

func (c *PebbleCache) Len() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed.Load() {
		return 0, ErrClosed
	}

	iter, err := c.db.NewIter(nil)
	if err != nil {
		return 0, fmt.Errorf("cache: new iterator failed: %w", err)
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("cache: iterate failed: %w", err)
	}
	return n, nil
}

// Close performs a graceful shutdown. It acquires an exclusive lock so
// all in-flight operations complete before teardown.
func (c *PebbleCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	c.closed.Store(true)

	if err := c.db.Flush(); err != nil {
		c.logger.Error("flush failed during shutdown", "error", err)
	}

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("cache: close failed: %w", err)
	}

	c.logger.Info("cache closed", "path", c.path)
	return nil
}
