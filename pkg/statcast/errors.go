package statcast

import (
	"errors"
	"fmt"
)

// Sentinel errors for the statcast package.
var (
	ErrInvalidConfig    = errors.New("statcast: invalid configuration")
	ErrInvalidWindow    = errors.New("statcast: fetch window end precedes start")
	ErrEmptyTeam        = errors.New("statcast: team must not be empty")
	ErrMalformedPayload = errors.New("statcast: malformed csv payload")
)

// RequestError wraps an upstream HTTP failure with the request URL.
// StatusCode is zero when the request never produced a response.
type RequestError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("statcast: request %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("statcast: request %s failed: status %d", e.URL, e.StatusCode)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
