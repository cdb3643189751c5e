package refresh

import (
	"time"

	"github.com/dbacks-analysis/statcast-refresh/dataset"
)

// MergeStats summarizes what a merge did to the dataset.
type MergeStats struct {
	// RowsBefore and RowsAfter are the dataset sizes either side of the merge.
	RowsBefore int
	RowsAfter  int

	// RowsFetched is the size of the freshly fetched dataset.
	RowsFetched int

	// RowsAdded counts fetched rows that survived deduplication.
	RowsAdded int

	// RowsRemoved counts old rows that did not make it into the result:
	// the replaced window plus any stale row a fresh one displaced.
	RowsRemoved int

	// DuplicatesDropped counts rows discarded because another row carried
	// the same composite key.
	DuplicatesDropped int
}

// Merge replaces every current row dated fetchStart or later with the
// fetched rows. Rows in the replaced window that the fetch no longer returns
// are dropped; upstream deletions propagate as authoritative removals. The
// result is sorted by (game_date, game_pk, at_bat_number, pitch_number) and
// deduplicated on the composite key, keeping the freshest occurrence.
func Merge(current, fetched *dataset.Dataset, fetchStart time.Time) (*dataset.Dataset, MergeStats) {
	stats := MergeStats{
		RowsBefore:  current.Len(),
		RowsFetched: fetched.Len(),
	}

	merged := dataset.New()
	merged.Columns = append(merged.Columns, current.Columns...)
	for _, r := range current.Rows {
		if r.GameDate.Before(fetchStart) {
			merged.Rows = append(merged.Rows, r)
		}
	}
	preserved := merged.Len()
	discarded := stats.RowsBefore - preserved

	merged.Append(fetched)
	concat := merged.Len()

	merged.Sort()
	merged.Dedup()

	stats.RowsAfter = merged.Len()
	stats.DuplicatesDropped = concat - stats.RowsAfter

	// Fetched rows all date from fetchStart onward, so rows before it are
	// exactly the preserved survivors.
	preservedKept := 0
	for _, r := range merged.Rows {
		if !r.GameDate.Before(fetchStart) {
			break
		}
		preservedKept++
	}
	stats.RowsAdded = stats.RowsAfter - preservedKept
	stats.RowsRemoved = discarded + (preserved - preservedKept)

	return merged, stats
}
