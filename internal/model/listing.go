package model

import (
	"context"
	"time"
)

// Source identifies where a listing was ingested from.
type Source string

const (
	SourceLinkedIn   Source = "linkedin"
	SourceIndeed     Source = "indeed"
	SourceGreenhouse Source = "greenhouse"
	SourceLever      Source = "lever"
)

// AllSources lists every source in invocation order. Earlier sources win when
// two of them report the same origin URL in one run.
var AllSources = []Source{SourceLinkedIn, SourceIndeed, SourceGreenhouse, SourceLever}

// ParseSource maps a user supplied name to a Source.
func ParseSource(s string) (Source, bool) {
	for _, src := range AllSources {
		if string(src) == s {
			return src, true
		}
	}
	return "", false
}

// Unified representation of a job listing from any source.
type Listing struct {
	ID              int64      `db:"id" json:"id"`
	Owner           string     `db:"owner" json:"owner"`
	OriginURL       string     `db:"origin_url" json:"origin_url"` // natural key within an owner
	Title           string     `db:"title" json:"title"`
	Company         string     `db:"company" json:"company"`
	Location        string     `db:"location" json:"location"`
	PostedDate      string     `db:"posted_date" json:"posted_date"` // best effort, YYYY-MM-DD when known
	Description     string     `db:"description" json:"description,omitempty"`
	Source          Source     `db:"source" json:"source"`
	Status          Status     `db:"status" json:"status"`
	LoadedAt        time.Time  `db:"loaded_at" json:"loaded_at"`
	ApplicationDate *time.Time `db:"application_date" json:"application_date,omitempty"`
	RunID           string     `db:"run_id" json:"run_id"`
}

// Search is one keyword/location combination to query a source with.
type Search struct {
	Keywords string
	Location string
	Remote   bool
}

// Query is the immutable fetch request handed to a source for one run.
type Query struct {
	Searches []Search
	Lookback time.Duration // only listings posted within this window are wanted
	Pages    int
}

// KeySet holds origin URLs already present in the store.
type KeySet map[string]struct{}

// NewKeySet builds a KeySet from the given keys.
func NewKeySet(keys ...string) KeySet {
	ks := make(KeySet, len(keys))
	for _, k := range keys {
		ks[k] = struct{}{}
	}
	return ks
}

func (ks KeySet) Has(key string) bool {
	_, ok := ks[key]
	return ok
}

func (ks KeySet) Add(key string) { ks[key] = struct{}{} }

func (ks KeySet) Len() int { return len(ks) }

// ListingSource fetches listings from one external source.
// A source that is entirely unreachable returns an error wrapping
// ErrSourceUnavailable; a source with nothing new returns an empty slice.
type ListingSource interface {
	Name() Source
	Fetch(ctx context.Context, q Query, known KeySet) ([]Listing, error)
}

// ListingFilter narrows a fetched batch to the listings worth keeping,
// preserving their order.
type ListingFilter interface {
	Apply(listings []Listing) []Listing
}

// Notifier announces the outcome of a finished run.
type Notifier interface {
	Notify(run Run, listings []Listing) error
}
