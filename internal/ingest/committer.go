package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
)

// Committer persists the deduplicated batch of a run, all or nothing.
type Committer struct {
	listings ListingStore
	now      func() time.Time
}

func NewCommitter(listings ListingStore) *Committer {
	return &Committer{
		listings: listings,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Commit writes batch as new inbox listings tagged with runID and returns how
// many rows were inserted. On error nothing from the batch is stored.
func (c *Committer) Commit(ctx context.Context, owner, runID string, batch []model.Listing) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	n, err := c.listings.InsertBatch(ctx, owner, runID, c.now(), batch)
	if err != nil {
		return 0, fmt.Errorf("commit %d listings: %w", len(batch), err)
	}
	return n, nil
}
