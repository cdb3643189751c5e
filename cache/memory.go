package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemoryCache)(nil)

// MemoryCache is a fully functional, thread-safe, in-memory implementation
// of [Store]. It requires no external dependencies — ideal for unit tests
// and for running with the on-disk cache disabled.
//
//	store := cache.NewMemory()
//	defer store.Close()
type MemoryCache struct {
	mu     sync.RWMutex
	data   map[string]Entry
	closed atomic.Bool
}

// NewMemory creates an empty MemoryCache.
func NewMemory() *MemoryCache {
	return &MemoryCache{data: make(map[string]Entry)}
}

// ---------------------------------------------------------------------------
// Store implementation
// ---------------------------------------------------------------------------

func (m *MemoryCache) Get(key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return Entry{}, ErrClosed
	}
	if key == "" {
		return Entry{}, ErrEmptyKey
	}

	e, ok := m.data[key]
	if !ok {
		return Entry{}, ErrNotFound
	}

	out := make([]byte, len(e.Payload))
	copy(out, e.Payload)
	return Entry{FetchedAt: e.FetchedAt, Payload: out}, nil
}

func (m *MemoryCache) Put(key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}

	p := make([]byte, len(e.Payload))
	copy(p, e.Payload)
	m.data[key] = Entry{FetchedAt: e.FetchedAt, Payload: p}
	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}

	delete(m.data, key)
	return nil
}

func (m *MemoryCache) PruneExpired(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return 0, ErrClosed
	}

	n := 0
	for k, e := range m.data {
		if e.FetchedAt.Before(cutoff) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryCache) Len() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return 0, ErrClosed
	}
	return len(m.data), nil
}

func (m *MemoryCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	m.closed.Store(true)
	m.data = nil
	return nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// Reset clears all entries without closing the store.
func (m *MemoryCache) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return
	}
	m.data = make(map[string]Entry)
}
