// Package dataset provides the in-memory model for the per-pitch CSV
// dataset: typed row keys over verbatim column data, ordering, duplicate
// removal, watermark derivation, and integrity verification.
//
// A [Dataset] carries an ordered column list (the CSV header) and rows whose
// raw field values stay aligned to that list, so columns the pipeline never
// interprets survive a refresh byte for byte. The four key columns are
// additionally parsed into typed fields at load time.
package dataset

import (
	"errors"
	"sort"
	"time"
)

// Key columns. game_date orders the dataset; the other three form the
// composite row identity.
const (
	ColGameDate    = "game_date"
	ColGamePK      = "game_pk"
	ColAtBatNumber = "at_bat_number"
	ColPitchNumber = "pitch_number"
)

// DefaultRequiredColumns lists the columns every valid dataset must carry:
// the analysis columns plus the composite key.
var DefaultRequiredColumns = []string{
	"pitch_type",
	ColGameDate,
	"player_name",
	"batter",
	"pitcher",
	ColGamePK,
	ColAtBatNumber,
	ColPitchNumber,
}

// Sentinel errors returned when decoding CSV data.
var (
	ErrEmptyFile         = errors.New("dataset: file has no header row")
	ErrMissingKeyColumns = errors.New("dataset: missing key columns")
	ErrInvalidGameDate   = errors.New("dataset: invalid game_date")
	ErrInvalidKeyField   = errors.New("dataset: invalid key field")
)

// Key is the composite identity of a single pitch. Unique across a dataset
// after deduplication.
type Key struct {
	GamePK      int
	AtBatNumber int
	PitchNumber int
}

// Record is one pitch event. The typed fields are parsed from the key
// columns; Fields holds every column value verbatim, key columns included,
// aligned to the owning [Dataset] column list.
type Record struct {
	GameDate    time.Time
	GamePK      int
	AtBatNumber int
	PitchNumber int

	Fields []string
}

// Key returns the composite identity of the record.
func (r Record) Key() Key {
	return Key{GamePK: r.GamePK, AtBatNumber: r.AtBatNumber, PitchNumber: r.PitchNumber}
}

// Dataset is an ordered collection of pitch records with a shared column
// list. The zero value is unusable; construct with [New] or a reader.
type Dataset struct {
	Columns []string
	Rows    []Record
}

// New creates an empty dataset with the given columns.
func New(columns ...string) *Dataset {
	return &Dataset{Columns: columns}
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// ColumnIndex returns the position of the named column, or -1 if absent.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column is present.
func (d *Dataset) HasColumn(name string) bool { return d.ColumnIndex(name) >= 0 }

// Watermark returns the latest game date across all rows. The second return
// is false when the dataset has no rows.
func (d *Dataset) Watermark() (time.Time, bool) {
	if len(d.Rows) == 0 {
		return time.Time{}, false
	}
	max := d.Rows[0].GameDate
	for _, r := range d.Rows[1:] {
		if r.GameDate.After(max) {
			max = r.GameDate
		}
	}
	return max, true
}

// DateRange returns the earliest and latest game dates across all rows.
// ok is false when the dataset has no rows.
func (d *Dataset) DateRange() (first, last time.Time, ok bool) {
	if len(d.Rows) == 0 {
		return time.Time{}, time.Time{}, false
	}
	first, last = d.Rows[0].GameDate, d.Rows[0].GameDate
	for _, r := range d.Rows[1:] {
		if r.GameDate.Before(first) {
			first = r.GameDate
		}
		if r.GameDate.After(last) {
			last = r.GameDate
		}
	}
	return first, last, true
}

// Append concatenates other onto d with column-union semantics: columns only
// other has are appended after d's columns in their original order, existing
// rows are padded with empty values, and other's rows are re-projected onto
// the union. Mirrors a pandas outer concat.
func (d *Dataset) Append(other *Dataset) {
	if other == nil || (len(other.Columns) == 0 && len(other.Rows) == 0) {
		return
	}

	index := make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		index[c] = i
	}

	before := len(d.Columns)
	for _, c := range other.Columns {
		if _, ok := index[c]; !ok {
			index[c] = len(d.Columns)
			d.Columns = append(d.Columns, c)
		}
	}

	// New columns land at the end, so existing rows only need padding.
	if len(d.Columns) > before {
		for i := range d.Rows {
			padded := make([]string, len(d.Columns))
			copy(padded, d.Rows[i].Fields)
			d.Rows[i].Fields = padded
		}
	}

	pos := make([]int, len(other.Columns))
	for j, c := range other.Columns {
		pos[j] = index[c]
	}

	for _, r := range other.Rows {
		fields := make([]string, len(d.Columns))
		for j, v := range r.Fields {
			fields[pos[j]] = v
		}
		r.Fields = fields
		d.Rows = append(d.Rows, r)
	}
}

// Sort orders rows ascending by (game_date, game_pk, at_bat_number,
// pitch_number). The sort is stable, so rows appended later stay after
// earlier rows with an identical key; [Dataset.Dedup] relies on that to let
// freshly fetched rows win over stale ones.
func (d *Dataset) Sort() {
	sort.SliceStable(d.Rows, func(i, j int) bool {
		a, b := d.Rows[i], d.Rows[j]
		if !a.GameDate.Equal(b.GameDate) {
			return a.GameDate.Before(b.GameDate)
		}
		if a.GamePK != b.GamePK {
			return a.GamePK < b.GamePK
		}
		if a.AtBatNumber != b.AtBatNumber {
			return a.AtBatNumber < b.AtBatNumber
		}
		return a.PitchNumber < b.PitchNumber
	})
}

// Dedup removes rows that share a composite key, keeping the last occurrence
// in current row order. Returns the number of rows dropped.
func (d *Dataset) Dedup() int {
	last := make(map[Key]int, len(d.Rows))
	for i, r := range d.Rows {
		last[r.Key()] = i
	}
	if len(last) == len(d.Rows) {
		return 0
	}

	kept := make([]Record, 0, len(last))
	for i, r := range d.Rows {
		if last[r.Key()] == i {
			kept = append(kept, r)
		}
	}
	dropped := len(d.Rows) - len(kept)
	d.Rows = kept
	return dropped
}
