package ingest

import (
	"context"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
)

// ListingStore is the listing side of the store used during a run.
type ListingStore interface {
	KnownKeys(ctx context.Context, owner string) (model.KeySet, error)
	InsertBatch(ctx context.Context, owner, runID string, loadedAt time.Time, listings []model.Listing) (int, error)
	ArchiveInbox(ctx context.Context, owner string) (int64, error)
	DeleteInbox(ctx context.Context, owner string) (int64, error)
}

// RunStore persists the run ledger.
type RunStore interface {
	CreateRun(ctx context.Context, run model.Run) error
	FinalizeRun(ctx context.Context, id string, count int, finishedAt time.Time) error
	FailRun(ctx context.Context, id, reason string, finishedAt time.Time) error
}

// Store is everything a run needs from persistence.
type Store interface {
	ListingStore
	RunStore
}
