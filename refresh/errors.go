package refresh

import (
	"errors"
	"fmt"

	"github.com/dbacks-analysis/statcast-refresh/dataset"
)

// Sentinel errors for the refresh package.
var (
	ErrInvalidConfig = errors.New("refresh: invalid configuration")
	ErrNoFetcher     = errors.New("refresh: no fetcher configured")
)

// Kind identifies the pipeline stage that produced a failure.
type Kind string

const (
	KindFetch        Kind = "fetch"
	KindMerge        Kind = "merge"
	KindWrite        Kind = "write"
	KindVerification Kind = "verification"
	KindRollback     Kind = "rollback"
)

// Error tags a pipeline failure with the stage that produced it.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("refresh: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// VerificationError reports a dataset that failed its integrity checks.
type VerificationError struct {
	Result dataset.ValidationResult
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("refresh: verification failed: %s", e.Result)
}

// RollbackError reports a commit failure whose rollback also failed. Cause
// is the original commit error, RestoreErr the error that interrupted the
// restore. The canonical file may be missing or stale when this is returned.
type RollbackError struct {
	Cause      error
	RestoreErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("refresh: rollback failed: %v (after: %v)", e.RestoreErr, e.Cause)
}

func (e *RollbackError) Unwrap() error {
	return e.Cause
}

// stageErr wraps err with the stage kind unless it is already tagged.
func stageErr(kind Kind, err error) error {
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}
