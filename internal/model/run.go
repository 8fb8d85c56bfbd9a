package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RunStatus is the ledger outcome of an ingestion run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Management selects what happens to un-triaged inbox listings before a run.
type Management string

const (
	ManageAdd     Management = "add"
	ManageArchive Management = "archive"
	ManageDelete  Management = "delete"
)

// ParseManagement validates a housekeeping option; empty means add.
func ParseManagement(s string) (Management, bool) {
	switch Management(s) {
	case "", ManageAdd:
		return ManageAdd, true
	case ManageArchive, ManageDelete:
		return Management(s), true
	}
	return "", false
}

// Run is one ledger row describing an ingestion run.
type Run struct {
	ID              string     `db:"id" json:"id"`
	Owner           string     `db:"owner" json:"owner"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	FinishedAt      *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	SourceFilter    string     `db:"source_filter" json:"source_filter"`
	RequestedWindow string     `db:"requested_window" json:"requested_window"`
	NewRecordCount  int        `db:"new_record_count" json:"new_record_count"`
	Status          RunStatus  `db:"status" json:"status"`
	Error           string     `db:"error_message" json:"error,omitempty"`
}

// RunRequest is what a caller asks the orchestrator to do.
type RunRequest struct {
	Sources     []Source      // empty means every enabled source
	Window      time.Duration // zero means each source's configured lookback
	WindowLabel string        // human label recorded in the ledger, e.g. "Past Week"
	Management  Management
	Owner       string
}

var windowUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
	"mo": 30 * 24 * time.Hour, "month": 30 * 24 * time.Hour, "months": 30 * 24 * time.Hour,
}

// ParseWindow reads a look-back window such as "36h", "7d", "2 weeks" or
// "1 month". A month counts as 30 days. Empty means no window.
func ParseWindow(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("window %q is negative", s)
		}
		return d, nil
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, fmt.Errorf("window %q: missing amount", s)
	}
	unit, ok := windowUnits[strings.TrimSpace(s[i:])]
	if !ok {
		return 0, fmt.Errorf("window %q: unknown unit", s)
	}
	return time.Duration(n) * unit, nil
}
