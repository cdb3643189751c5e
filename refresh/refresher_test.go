package refresh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dbacks-analysis/statcast-refresh/cache"
	"github.com/dbacks-analysis/statcast-refresh/dataset"
	"github.com/dbacks-analysis/statcast-refresh/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	ds    *dataset.Dataset
	err   error
	calls []Window
}

func (s *stubFetcher) Fetch(_ context.Context, start, end time.Time, team string) (*dataset.Dataset, error) {
	s.calls = append(s.calls, Window{Start: start, End: end})
	if s.err != nil {
		return nil, s.err
	}
	if s.ds == nil {
		return dataset.New(), nil
	}
	return s.ds, nil
}

type stubMirror struct {
	calls      int
	rows       int
	fetchStart time.Time
	err        error
}

func (m *stubMirror) Sync(_ context.Context, ds *dataset.Dataset, fetchStart time.Time) error {
	m.calls++
	m.rows = ds.Len()
	m.fetchStart = fetchStart
	return m.err
}

func newTestRefresher(t *testing.T, path string, f Fetcher, now time.Time, opts ...Option) *Refresher {
	t.Helper()
	base := []Option{
		WithDatasetPath(path),
		WithFetcher(f),
		WithVerifyConfig(dataset.VerifyConfig{MinRows: 1}),
		WithNow(func() time.Time { return now }),
		WithLogger(logger.Nop()),
	}
	r, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return r
}

func TestRunFirstLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{ds: ds(t,
		"2025-06-12,700001,1,1,FF",
		"2025-06-13,700002,1,1,SL",
	)}

	report, err := newTestRefresher(t, path, f, now).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Skipped)
	assert.True(t, report.Committed)
	require.Len(t, f.calls, 1)
	assert.Equal(t, day(t, "2025-03-20"), f.calls[0].Start, "no watermark means a full season load")
	assert.Equal(t, day(t, "2025-06-14"), f.calls[0].End)

	require.NotNil(t, report.Window)
	assert.Equal(t, "2025-03-20", report.Window.Start)
	assert.Equal(t, "2025-06-14", report.Window.End)
	assert.Equal(t, 0, report.RowsBefore)
	assert.Equal(t, 2, report.RowsAfter)
	assert.Equal(t, 2, report.RowsAdded)
	assert.Equal(t, "2025-06-12", report.CoverageStart)
	assert.Equal(t, "2025-06-13", report.CoverageEnd)
	assert.Equal(t, "2025-06-21", report.NextUpdate)
	assert.Nil(t, report.Error)

	got, err := dataset.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
}

func TestRunGateSkip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	seedFile(t, path, csvText("2025-06-12,700001,1,1,FF"))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{}

	report, err := newTestRefresher(t, path, f, now).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Skipped)
	assert.False(t, report.Committed)
	assert.Empty(t, f.calls)
	assert.Equal(t, 1, report.RowsBefore)
	assert.Equal(t, "2025-06-19", report.NextUpdate)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a skipped run must not touch the dataset")
}

func TestRunRefreshWithLookback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	seedFile(t, path, csvText(
		"2025-04-01,700000,1,1,FF",
		"2025-06-01,700001,1,1,FF",
	))
	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{ds: ds(t,
		"2025-06-01,700001,1,1,ST",
		"2025-06-10,700002,1,1,SL",
	)}

	report, err := newTestRefresher(t, path, f, now).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, f.calls, 1)
	assert.Equal(t, day(t, "2025-05-18"), f.calls[0].Start, "window opens lookback days before the watermark")
	assert.Equal(t, day(t, "2025-06-14"), f.calls[0].End)

	got, err := dataset.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())
	pitchIdx := got.ColumnIndex("pitch_type")
	assert.Equal(t, "ST", got.Rows[1].Fields[pitchIdx], "the corrected row replaced the stale one")

	assert.Equal(t, 2, report.RowsAdded)
	assert.Equal(t, 1, report.RowsRemoved)
	assert.True(t, report.Committed)

	matches, err := filepath.Glob(BackupPattern(path))
	require.NoError(t, err)
	assert.Empty(t, matches, "a successful run leaves no backup behind")
}

func TestRunEmptyFetchRemovesWindowRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	seedFile(t, path, csvText(
		"2025-04-01,700000,1,1,FF",
		"2025-06-01,700001,1,1,FF",
	))
	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{}

	report, err := newTestRefresher(t, path, f, now).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Committed)
	assert.Equal(t, 0, report.RowsFetched)
	assert.Equal(t, 1, report.RowsAfter)
	assert.Equal(t, 1, report.RowsRemoved)

	got, err := dataset.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, 700000, got.Rows[0].GamePK)
}

func TestRunFetchErrorLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	seedFile(t, path, csvText("2025-06-01,700001,1,1,FF"))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{err: errors.New("savant unreachable")}

	report, err := newTestRefresher(t, path, f, now).Run(context.Background())
	require.Error(t, err)

	var tagged *Error
	require.ErrorAs(t, err, &tagged)
	assert.Equal(t, KindFetch, tagged.Kind)

	require.NotNil(t, report.Error)
	assert.Equal(t, "fetch", report.Error.Kind)
	assert.False(t, report.Committed)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	matches, err := filepath.Glob(BackupPattern(path))
	require.NoError(t, err)
	assert.Empty(t, matches, "a fetch failure aborts before anything is staged")
}

func TestRunVerificationFloorRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	seedFile(t, path, csvText("2025-06-01,700001,1,1,FF"))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{ds: ds(t,
		"2025-06-02,700002,1,1,SL",
		"2025-06-03,700003,1,1,CH",
	)}

	report, err := newTestRefresher(t, path, f, now,
		WithVerifyConfig(dataset.VerifyConfig{MinRows: 5}),
	).Run(context.Background())
	require.Error(t, err)

	var vErr *VerificationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, dataset.ReasonRowCountBelowFloor, vErr.Result.Reason)

	require.NotNil(t, report.Error)
	assert.Equal(t, "verification", report.Error.Kind)
	assert.False(t, report.Committed)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a failed verification must not change canonical bytes")
}

func TestRunReconcileRestoresMissingCanonical(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	backup := BackupFilePath(path, time.Date(2025, 6, 12, 20, 0, 0, 0, time.UTC))
	seedFile(t, backup, csvText("2025-06-12,700001,1,1,FF"))

	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{}

	report, err := newTestRefresher(t, path, f, now).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Recovered)
	assert.True(t, report.Skipped, "the restored watermark is fresh enough to skip")

	got, err := dataset.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())

	matches, err := filepath.Glob(BackupPattern(path))
	require.NoError(t, err)
	assert.Empty(t, matches, "the restored backup was consumed")
}

func TestRunOffSeasonSkipsFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	seedFile(t, path, csvText("2024-09-29,600001,1,1,FF"))

	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{}

	report, err := newTestRefresher(t, path, f, now).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.calls, "an inverted window must not hit the network")
	assert.True(t, report.Committed)
	assert.Equal(t, 1, report.RowsAfter)
	assert.Equal(t, 0, report.RowsRemoved)

	got, err := dataset.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}

func TestRunTwiceSecondIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{ds: ds(t, "2025-06-13,700001,1,1,FF")}
	r := newTestRefresher(t, path, f, now)

	first, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, first.Committed)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	second, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	require.Len(t, f.calls, 1, "the gate stops the second fetch")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunPrunesLeftoverBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	seedFile(t, path, csvText("2025-06-01,700001,1,1,FF"))
	seedBackups(t, dir,
		"20250501_080000", "20250508_080000", "20250515_080000", "20250522_080000")

	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{ds: ds(t, "2025-06-10,700002,1,1,SL")}

	report, err := newTestRefresher(t, path, f, now).Run(context.Background())
	require.NoError(t, err)

	require.True(t, report.Committed)
	assert.Equal(t, 2, report.BackupsPruned)

	matches, err := filepath.Glob(BackupPattern(path))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "data_backup_20250515_080000.csv"),
		filepath.Join(dir, "data_backup_20250522_080000.csv"),
	}, matches)
}

func TestRunPrunesExpiredCacheEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)

	store := cache.NewMemory()
	defer store.Close()
	require.NoError(t, store.Put("stale", cache.Entry{FetchedAt: now.Add(-48 * time.Hour), Payload: []byte("x")}))
	require.NoError(t, store.Put("fresh", cache.Entry{FetchedAt: now.Add(-time.Hour), Payload: []byte("y")}))

	f := &stubFetcher{ds: ds(t, "2025-06-13,700001,1,1,FF")}
	report, err := newTestRefresher(t, path, f, now, WithCache(store)).Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Committed)

	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "entries past the ttl are swept after a run")
}

func TestRunMirrorsCommittedDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{ds: ds(t, "2025-06-13,700001,1,1,FF")}
	m := &stubMirror{}

	report, err := newTestRefresher(t, path, f, now, WithMirror(m)).Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Committed)

	assert.Equal(t, 1, m.calls)
	assert.Equal(t, 1, m.rows)
	assert.Equal(t, day(t, "2025-03-20"), m.fetchStart)
}

func TestRunMirrorFailureDoesNotFailRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{ds: ds(t, "2025-06-13,700001,1,1,FF")}
	m := &stubMirror{err: errors.New("pg down")}

	report, err := newTestRefresher(t, path, f, now, WithMirror(m)).Run(context.Background())
	require.NoError(t, err, "the canonical commit already succeeded")
	assert.True(t, report.Committed)
	assert.Nil(t, report.Error)
}

func TestRunMirrorSkippedOnFailedCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	now := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f := &stubFetcher{ds: ds(t, "2025-06-13,700001,1,1,FF")}
	m := &stubMirror{}

	_, err := newTestRefresher(t, path, f, now,
		WithMirror(m),
		WithVerifyConfig(dataset.VerifyConfig{MinRows: 50}),
	).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, m.calls)
}

func TestNewValidation(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, ErrNoFetcher)

	f := &stubFetcher{}

	_, err = New(WithFetcher(f), WithSeasonStart("bogus"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithFetcher(f), WithLookbackDays(-1))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithFetcher(f), WithTeam(""))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(WithFetcher(f), WithCache(cache.NewMemory()), WithCacheTTL(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// Season-scale end to end
// ---------------------------------------------------------------------------

const fullHeader = "pitch_type,game_date,player_name,batter,pitcher,game_pk,at_bat_number,pitch_number"

func gameRows(date string, pk, pitches int, pitchType string) []string {
	rows := make([]string, 0, pitches)
	for p := 0; p < pitches; p++ {
		rows = append(rows, fmt.Sprintf(`%s,%s,"Gallen, Zac",668678,682998,%d,%d,%d`,
			pitchType, date, pk, p/5+1, p%5+1))
	}
	return rows
}

func fullDataset(t *testing.T, rows []string) *dataset.Dataset {
	t.Helper()
	d, err := dataset.Read(strings.NewReader(fullHeader + "\n" + strings.Join(rows, "\n") + "\n"))
	require.NoError(t, err)
	return d
}

func TestRunSeasonScale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	verify := dataset.VerifyConfig{RequiredColumns: dataset.DefaultRequiredColumns, MinRows: 100}

	gameDate := func(g int) string {
		return time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, g*3).Format(time.DateOnly)
	}

	// Initial load: 25 games, 40 pitches each.
	var season []string
	for g := 0; g < 25; g++ {
		season = append(season, gameRows(gameDate(g), 778000+g, 40, "FF")...)
	}

	now1 := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)
	f1 := &stubFetcher{ds: fullDataset(t, season)}
	report1, err := newTestRefresher(t, path, f1, now1, WithVerifyConfig(verify)).Run(context.Background())
	require.NoError(t, err)
	require.True(t, report1.Committed)
	assert.Equal(t, 1000, report1.RowsAfter)

	// Corrections pass ten days later: the five games inside the lookback
	// window come back retyped, plus one new game.
	var corrections []string
	for g := 20; g < 25; g++ {
		corrections = append(corrections, gameRows(gameDate(g), 778000+g, 40, "SL")...)
	}
	corrections = append(corrections, gameRows("2025-06-20", 778025, 40, "CH")...)

	now2 := time.Date(2025, 6, 24, 8, 0, 0, 0, time.UTC)
	f2 := &stubFetcher{ds: fullDataset(t, corrections)}
	report2, err := newTestRefresher(t, path, f2, now2, WithVerifyConfig(verify)).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, f2.calls, 1)
	assert.Equal(t, day(t, "2025-05-29"), f2.calls[0].Start, "watermark 06-12 minus 14 days")
	assert.Equal(t, day(t, "2025-06-24"), f2.calls[0].End)

	assert.Equal(t, 1000, report2.RowsBefore)
	assert.Equal(t, 240, report2.RowsFetched)
	assert.Equal(t, 1040, report2.RowsAfter)
	assert.Equal(t, 240, report2.RowsAdded)
	assert.Equal(t, 200, report2.RowsRemoved)
	assert.Equal(t, 0, report2.DuplicatesDropped)
	assert.Equal(t, "2025-04-01", report2.CoverageStart)
	assert.Equal(t, "2025-06-20", report2.CoverageEnd)

	got, err := dataset.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1040, got.Len())

	// Rows stay sorted, keys stay unique, and the window rows carry the
	// corrected type.
	keys := make(map[dataset.Key]bool, got.Len())
	for i, r := range got.Rows {
		if i > 0 {
			assert.False(t, r.GameDate.Before(got.Rows[i-1].GameDate), "row %d out of order", i)
		}
		assert.False(t, keys[r.Key()], "duplicate key at row %d: %+v", i, r.Key())
		keys[r.Key()] = true
	}
	pitchIdx := got.ColumnIndex("pitch_type")
	counts := map[string]int{}
	for _, r := range got.Rows {
		counts[r.Fields[pitchIdx]]++
	}
	assert.Equal(t, 800, counts["FF"])
	assert.Equal(t, 200, counts["SL"])
	assert.Equal(t, 40, counts["CH"])

	matches, err := filepath.Glob(BackupPattern(path))
	require.NoError(t, err)
	assert.Empty(t, matches, "both committed runs cleaned up their backups")
}
