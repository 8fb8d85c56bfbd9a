package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobinbox/internal/model"
)

// Ledger records one row per run: created before any fetch, closed exactly
// once with either the new record count or the failure.
type Ledger struct {
	runs  RunStore
	newID func() string
	now   func() time.Time
}

func NewLedger(runs RunStore) *Ledger {
	return &Ledger{
		runs:  runs,
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a ledger row with a zero count.
func (l *Ledger) Create(ctx context.Context, owner, sourceFilter, window string) (model.Run, error) {
	run := model.Run{
		ID:              l.newID(),
		Owner:           owner,
		StartedAt:       l.now(),
		SourceFilter:    sourceFilter,
		RequestedWindow: window,
		Status:          model.RunRunning,
	}
	if err := l.runs.CreateRun(ctx, run); err != nil {
		return model.Run{}, fmt.Errorf("ledger create: %w", err)
	}
	return run, nil
}

// Finalize records a successful run. count may be zero.
func (l *Ledger) Finalize(ctx context.Context, runID string, count int) error {
	if err := l.runs.FinalizeRun(ctx, runID, count, l.now()); err != nil {
		return fmt.Errorf("ledger finalize: %w", err)
	}
	return nil
}

// Fail records a failed run; its count stays zero.
func (l *Ledger) Fail(ctx context.Context, runID string, cause error) error {
	if err := l.runs.FailRun(ctx, runID, cause.Error(), l.now()); err != nil {
		return fmt.Errorf("ledger fail: %w", err)
	}
	return nil
}
