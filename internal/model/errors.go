package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBusy is returned when a run is requested while another is active.
	ErrBusy = errors.New("a run is already in progress")
	// ErrSourceUnavailable marks a source that could not be reached at all.
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrNotFound          = errors.New("not found")
	// ErrInvalidTransition is returned for a status change the workflow forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict is returned when a row changed underneath an update.
	ErrConflict = errors.New("concurrent update")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}
