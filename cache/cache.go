// Package cache provides the local fetch-response cache that makes aborted
// or repeated refresh runs cheap: upstream CSV payloads are stored under a
// deterministic key together with their fetch time, so a re-run inside the
// freshness window never touches the network.
//
// The primary interface is [Store], satisfied by [PebbleCache] (production)
// and [MemoryCache] (testing). Create instances with [Open] or [NewMemory]
// and inject them into consumers via functional options.
package cache

import (
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// Sentinel errors returned by Store implementations.
var (
	ErrClosed       = errors.New("cache: cache is closed")
	ErrNotFound     = errors.New("cache: key not found")
	ErrEmptyKey     = errors.New("cache: key must not be empty")
	ErrCorruptEntry = errors.New("cache: corrupt entry")
)

// Entry is one cached upstream response. FetchedAt drives freshness
// decisions; the payload is opaque to the cache.
type Entry struct {
	FetchedAt time.Time
	Payload   []byte
}

// Store defines the contract for all cache operations.
// All methods are safe for concurrent use by multiple goroutines.
type Store interface {
	// Get retrieves the entry stored under key.
	// Returns ErrNotFound if the key does not exist.
	Get(key string) (Entry, error)

	// Put stores an entry under key, replacing any previous one.
	Put(key string, e Entry) error

	// Delete removes a key. Deleting a non-existent key is not an error.
	Delete(key string) error

	// PruneExpired removes every entry fetched before cutoff and reports
	// how many were removed. Entries that fail to decode are removed too.
	PruneExpired(cutoff time.Time) (int, error)

	// Len returns the number of stored entries.
	Len() (int, error)

	// Close releases all resources. After Close returns, every other
	// method returns ErrClosed.
	io.Closer
}

// entryHeaderSize is the length of the fetch-time prefix on stored values:
// 8 bytes of big-endian unix seconds, followed by the payload.
const entryHeaderSize = 8

func encodeEntry(e Entry) []byte {
	buf := make([]byte, entryHeaderSize+len(e.Payload))
	binary.BigEndian.PutUint64(buf, uint64(e.FetchedAt.Unix()))
	copy(buf[entryHeaderSize:], e.Payload)
	return buf
}

func decodeEntry(b []byte) (Entry, error) {
	if len(b) < entryHeaderSize {
		return Entry{}, ErrCorruptEntry
	}
	return Entry{
		FetchedAt: time.Unix(int64(binary.BigEndian.Uint64(b)), 0).UTC(),
		Payload:   b[entryHeaderSize:],
	}, nil
}
