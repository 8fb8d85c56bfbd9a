package store

import (
	"context"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
)

// NopStore is a no-op store used in dry-run mode. It knows no listings, so
// every fetched listing looks new, and it discards everything it is given.
type NopStore struct{}

func NewNopStore() *NopStore { return &NopStore{} }

func (s *NopStore) KnownKeys(context.Context, string) (model.KeySet, error) {
	return model.NewKeySet(), nil
}

// InsertBatch reports every listing as inserted without storing it.
func (s *NopStore) InsertBatch(_ context.Context, _, _ string, _ time.Time, listings []model.Listing) (int, error) {
	return len(listings), nil
}

func (s *NopStore) ArchiveInbox(context.Context, string) (int64, error) { return 0, nil }
func (s *NopStore) DeleteInbox(context.Context, string) (int64, error)  { return 0, nil }
func (s *NopStore) CreateRun(context.Context, model.Run) error          { return nil }
func (s *NopStore) FinalizeRun(context.Context, string, int, time.Time) error {
	return nil
}
func (s *NopStore) FailRun(context.Context, string, string, time.Time) error { return nil }
