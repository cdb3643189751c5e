package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Read decodes a CSV stream into a Dataset. The first row is the header;
// the four key columns must be present and every row's key fields must
// parse, since the rest of the pipeline relies on typed keys.
func Read(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}

	columns := make([]string, len(header))
	for i, c := range header {
		columns[i] = strings.TrimSpace(c)
	}
	// Spreadsheet round-trips prepend a BOM to the first cell.
	columns[0] = strings.TrimPrefix(columns[0], "\uFEFF")

	dateIdx := indexOf(columns, ColGameDate)
	pkIdx := indexOf(columns, ColGamePK)
	abIdx := indexOf(columns, ColAtBatNumber)
	pitchIdx := indexOf(columns, ColPitchNumber)

	var missing []string
	if dateIdx < 0 {
		missing = append(missing, ColGameDate)
	}
	if pkIdx < 0 {
		missing = append(missing, ColGamePK)
	}
	if abIdx < 0 {
		missing = append(missing, ColAtBatNumber)
	}
	if pitchIdx < 0 {
		missing = append(missing, ColPitchNumber)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingKeyColumns, missing)
	}

	ds := &Dataset{Columns: columns}
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: row %d: %w", row, err)
		}

		gd, err := time.Parse(time.DateOnly, strings.TrimSpace(rec[dateIdx]))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %q", ErrInvalidGameDate, row, rec[dateIdx])
		}

		pk, err := parseKeyField(rec[pkIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %q", ErrInvalidKeyField, row, ColGamePK, rec[pkIdx])
		}
		ab, err := parseKeyField(rec[abIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %q", ErrInvalidKeyField, row, ColAtBatNumber, rec[abIdx])
		}
		pitch, err := parseKeyField(rec[pitchIdx])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d %s: %q", ErrInvalidKeyField, row, ColPitchNumber, rec[pitchIdx])
		}

		ds.Rows = append(ds.Rows, Record{
			GameDate:    gd,
			GamePK:      pk,
			AtBatNumber: ab,
			PitchNumber: pitch,
			Fields:      rec,
		})
	}

	return ds, nil
}

// ReadFile decodes the CSV file at path.
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	ds, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("dataset: %s: %w", path, err)
	}
	return ds, nil
}

// Write encodes the dataset as CSV: header row first, then every row's raw
// fields verbatim. A dataset with no columns produces no output.
func Write(w io.Writer, ds *Dataset) error {
	if len(ds.Columns) == 0 {
		return nil
	}

	bw := bufio.NewWriterSize(w, 1<<20)
	cw := csv.NewWriter(bw)

	if err := cw.Write(ds.Columns); err != nil {
		return fmt.Errorf("dataset: write header: %w", err)
	}
	for i, r := range ds.Rows {
		if err := cw.Write(r.Fields); err != nil {
			return fmt.Errorf("dataset: write row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("dataset: flush csv: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("dataset: flush buffer: %w", err)
	}
	return nil
}

// WriteFile encodes the dataset to the file at path, fsyncing before close
// so a following rename publishes fully durable bytes.
func WriteFile(path string, ds *Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dataset: create %s: %w", path, err)
	}

	if err := Write(f, ds); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("dataset: sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("dataset: close %s: %w", path, err)
	}
	return nil
}

// parseKeyField coerces a CSV cell into an int key component. Export data
// occasionally types integral columns as floats ("7.0"), so both forms are
// accepted.
func parseKeyField(v string) (int, error) {
	s := strings.TrimSpace(v)
	if n, err := cast.ToIntE(s); err == nil {
		return n, nil
	}
	f, err := cast.ToFloat64E(s)
	if err != nil {
		return 0, err
	}
	n := int(f)
	if float64(n) != f {
		return 0, fmt.Errorf("not an integral value: %s", s)
	}
	return n, nil
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}
