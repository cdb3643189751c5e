package refresh

import (
	"errors"
	"time"
)

// Report is the machine-readable summary of one refresh run, printed as
// JSON by the CLI. Dates are formatted YYYY-MM-DD.
type Report struct {
	// Skipped is set when the update gate declined the run.
	Skipped bool `json:"skipped"`

	// Recovered is set when a missing canonical file was restored from a
	// backup before the run.
	Recovered bool `json:"recovered"`

	Window *WindowReport `json:"window,omitempty"`

	RowsBefore        int `json:"rowsBefore"`
	RowsAfter         int `json:"rowsAfter"`
	RowsFetched       int `json:"rowsFetched"`
	RowsAdded         int `json:"rowsAdded"`
	RowsRemoved       int `json:"rowsRemoved"`
	DuplicatesDropped int `json:"duplicatesDropped"`

	Committed     bool   `json:"committed"`
	CoverageStart string `json:"coverageStart,omitempty"`
	CoverageEnd   string `json:"coverageEnd,omitempty"`
	NextUpdate    string `json:"nextUpdate,omitempty"`
	BackupsPruned int    `json:"backupsPruned"`

	Error *ErrorReport `json:"error,omitempty"`
}

// WindowReport is the fetch window a run used.
type WindowReport struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ErrorReport carries the failing stage and message of an unsuccessful run.
type ErrorReport struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (r *Report) setWindow(w Window) {
	r.Window = &WindowReport{
		Start: w.Start.Format(time.DateOnly),
		End:   w.End.Format(time.DateOnly),
	}
}

func (r *Report) setCoverage(first, last time.Time, ok bool) {
	if !ok {
		return
	}
	r.CoverageStart = first.Format(time.DateOnly)
	r.CoverageEnd = last.Format(time.DateOnly)
}

func (r *Report) applyMergeStats(s MergeStats) {
	r.RowsBefore = s.RowsBefore
	r.RowsAfter = s.RowsAfter
	r.RowsFetched = s.RowsFetched
	r.RowsAdded = s.RowsAdded
	r.RowsRemoved = s.RowsRemoved
	r.DuplicatesDropped = s.DuplicatesDropped
}

func (r *Report) setError(err error) {
	if err == nil {
		return
	}
	kind := "internal"
	var tagged *Error
	if errors.As(err, &tagged) {
		kind = string(tagged.Kind)
	}
	r.Error = &ErrorReport{Kind: kind, Message: err.Error()}
}
