// Package statcast fetches pitch-level CSV data for one team from the
// Baseball Savant statcast search export. Long windows are split into
// chunked requests, and raw payloads are cached locally so an aborted run
// can be retried without hammering the upstream service.
package statcast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dbacks-analysis/statcast-refresh/cache"
	"github.com/dbacks-analysis/statcast-refresh/dataset"
	"github.com/dbacks-analysis/statcast-refresh/pkg/logger"
)

// Client downloads statcast pitch data over the CSV export endpoint.
type Client struct {
	cfg        *Config
	httpClient *http.Client
	cache      cache.Store
	logger     logger.Logger

	now func() time.Time
}

// NewClient creates a Client with the given functional options applied over
// DefaultConfig. Returns an error if the resulting config is invalid.
func NewClient(opts ...Option) (*Client, error) {
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
	log = log.With("component", "statcast")

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cfg.Cache,
		logger:     log,
		now:        time.Now,
	}, nil
}

// Fetch retrieves every pitch for team with a game date between start and
// end inclusive. Zero rows is a valid outcome: the export returns an empty
// payload for windows with no games, and the result is an empty dataset.
func (c *Client) Fetch(ctx context.Context, start, end time.Time, team string) (*dataset.Dataset, error) {
	if team == "" {
		return nil, ErrEmptyTeam
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s after %s",
			ErrInvalidWindow, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	result := dataset.New()
	windows := splitWindow(start, end, c.cfg.ChunkDays)
	for _, w := range windows {
		chunk, err := c.fetchChunk(ctx, w.start, w.end, team)
		if err != nil {
			return nil, err
		}
		result.Append(chunk)
	}

	c.logger.Info("fetch complete",
		"team", team,
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
		"requests", len(windows),
		"rows", result.Len(),
	)
	return result, nil
}

type window struct {
	start, end time.Time
}

// splitWindow cuts [start, end] into consecutive inclusive sub-windows of at
// most chunkDays days.
func splitWindow(start, end time.Time, chunkDays int) []window {
	var out []window
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, chunkDays) {
		ce := cur.AddDate(0, 0, chunkDays-1)
		if ce.After(end) {
			ce = end
		}
		out = append(out, window{start: cur, end: ce})
	}
	return out
}

// fetchChunk returns one sub-window of data, from cache when a fresh entry
// exists, otherwise from the network. Only payloads that parse are cached.
func (c *Client) fetchChunk(ctx context.Context, start, end time.Time, team string) (*dataset.Dataset, error) {
	key := cacheKey(team, start, end)

	if c.cache != nil {
		e, err := c.cache.Get(key)
		switch {
		case err == nil && c.now().Sub(e.FetchedAt) <= c.cfg.CacheTTL:
			ds, perr := parsePayload(e.Payload)
			if perr == nil {
				c.logger.Debug("cache hit", "key", key, "rows", ds.Len())
				return ds, nil
			}
			c.logger.Warn("discarding unparseable cache entry", "key", key, "error", perr)
			_ = c.cache.Delete(key)
		case err != nil && !errors.Is(err, cache.ErrNotFound):
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
	}

	body, err := c.download(ctx, start, end, team)
	if err != nil {
		return nil, err
	}

	ds, err := parsePayload(body)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Put(key, cache.Entry{FetchedAt: c.now(), Payload: body}); err != nil {
			c.logger.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return ds, nil
}

func (c *Client) download(ctx context.Context, start, end time.Time, team string) ([]byte, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	q := u.Query()
	q.Set("all", "true")
	q.Set("type", "details")
	q.Set("player_type", "pitcher")
	q.Set("game_date_gt", start.Format(time.DateOnly))
	q.Set("game_date_lt", end.Format(time.DateOnly))
	q.Set("team", team)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &RequestError{URL: u.String(), Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{URL: u.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{URL: u.String(), Err: err}
	}
	return body, nil
}

// parsePayload decodes a raw export payload. An entirely empty payload means
// no games in the window and decodes to an empty dataset.
func parsePayload(b []byte) (*dataset.Dataset, error) {
	ds, err := dataset.Read(bytes.NewReader(b))
	if err != nil {
		if errors.Is(err, dataset.ErrEmptyFile) {
			return dataset.New(), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return ds, nil
}

func cacheKey(team string, start, end time.Time) string {
	return fmt.Sprintf("statcast:v1:%s:%s:%s",
		team, start.Format(time.DateOnly), end.Format(time.DateOnly))
}
