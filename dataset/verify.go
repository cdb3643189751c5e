package dataset

import (
	"errors"
	"fmt"
)

// CheckReason identifies which integrity check a dataset failed.
type CheckReason string

const (
	ReasonNone               CheckReason = ""
	ReasonUnreadable         CheckReason = "unreadable"
	ReasonEmptyDataset       CheckReason = "empty_dataset"
	ReasonMissingColumns     CheckReason = "missing_columns"
	ReasonInvalidGameDate    CheckReason = "invalid_game_date"
	ReasonRowCountBelowFloor CheckReason = "row_count_below_floor"
)

// VerifyConfig holds the integrity thresholds. Zero values disable the
// corresponding check; use [DefaultVerifyConfig] for the standard set.
type VerifyConfig struct {
	// RequiredColumns must all be present in the dataset's column list.
	RequiredColumns []string

	// MinRows is the sanity floor on the row count. A refresh should never
	// shrink the dataset below any plausible size, so a tiny candidate
	// almost always means a truncated fetch.
	MinRows int
}

// DefaultVerifyConfig returns the standard thresholds: the default required
// columns and a 100-row floor.
func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{
		RequiredColumns: DefaultRequiredColumns,
		MinRows:         100,
	}
}

// ValidationResult reports the outcome of a verification pass.
type ValidationResult struct {
	OK     bool
	Reason CheckReason
	Detail string
}

func (v ValidationResult) String() string {
	if v.OK {
		return fmt.Sprintf("ok: %s", v.Detail)
	}
	return fmt.Sprintf("%s: %s", v.Reason, v.Detail)
}

// Verify runs the integrity checks against an in-memory dataset, in order:
// non-empty, required columns present, every row has a valid game date, row
// count at or above the floor. The first failing check decides the result.
func Verify(ds *Dataset, cfg VerifyConfig) ValidationResult {
	if ds == nil || ds.Len() == 0 {
		return ValidationResult{Reason: ReasonEmptyDataset, Detail: "dataset has no rows"}
	}

	var missing []string
	for _, c := range cfg.RequiredColumns {
		if !ds.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return ValidationResult{
			Reason: ReasonMissingColumns,
			Detail: fmt.Sprintf("missing required columns: %v", missing),
		}
	}

	for i, r := range ds.Rows {
		if r.GameDate.IsZero() {
			return ValidationResult{
				Reason: ReasonInvalidGameDate,
				Detail: fmt.Sprintf("row %d has no valid game_date", i),
			}
		}
	}

	if ds.Len() < cfg.MinRows {
		return ValidationResult{
			Reason: ReasonRowCountBelowFloor,
			Detail: fmt.Sprintf("suspiciously low row count: %d (floor %d)", ds.Len(), cfg.MinRows),
		}
	}

	return ValidationResult{
		OK:     true,
		Detail: fmt.Sprintf("%d rows, %d columns", ds.Len(), len(ds.Columns)),
	}
}

// VerifyFile reads and verifies the CSV file at path. Decode failures map
// onto the matching check reason, so callers see one reason vocabulary
// whether the problem was found while parsing or while checking.
func VerifyFile(path string, cfg VerifyConfig) ValidationResult {
	ds, err := ReadFile(path)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyFile):
			return ValidationResult{Reason: ReasonEmptyDataset, Detail: err.Error()}
		case errors.Is(err, ErrMissingKeyColumns):
			return ValidationResult{Reason: ReasonMissingColumns, Detail: err.Error()}
		case errors.Is(err, ErrInvalidGameDate):
			return ValidationResult{Reason: ReasonInvalidGameDate, Detail: err.Error()}
		default:
			return ValidationResult{Reason: ReasonUnreadable, Detail: err.Error()}
		}
	}
	return Verify(ds, cfg)
}
