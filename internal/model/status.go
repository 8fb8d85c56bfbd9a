package model

import "fmt"

// Status is the workflow state of a listing.
type Status string

const (
	StatusInbox        Status = "inbox"
	StatusWantToApply  Status = "want_to_apply"
	StatusApplied      Status = "applied"
	StatusInterviewing Status = "interviewing"
	StatusRejected     Status = "rejected"
	StatusOffer        Status = "offer"
	StatusArchived     Status = "archived"
)

var allStatuses = []Status{
	StatusInbox, StatusWantToApply, StatusApplied, StatusInterviewing,
	StatusRejected, StatusOffer, StatusArchived,
}

// progressed statuses can move freely between each other.
var progressed = map[Status]bool{
	StatusApplied:      true,
	StatusInterviewing: true,
	StatusOffer:        true,
	StatusRejected:     true,
}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Statuses returns every known status in display order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// CanTransition reports whether a listing may move from one status to another.
// Setting the current status again is always allowed and changes nothing.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusInbox:
		return to == StatusWantToApply || to == StatusApplied || to == StatusArchived
	case StatusWantToApply:
		return to == StatusApplied
	case StatusArchived:
		return to == StatusInbox
	}
	if progressed[from] {
		return progressed[to] || to == StatusArchived
	}
	return false
}
