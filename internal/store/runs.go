package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
)

const runColumns = `id, owner, started_at, finished_at, source_filter, requested_window,
	new_record_count, status, error_message`

// CreateRun inserts a ledger row for a run that is starting.
func (s *Store) CreateRun(ctx context.Context, run model.Run) error {
	q := s.db.Rebind(`INSERT INTO runs
		(id, owner, started_at, source_filter, requested_window, new_record_count, status)
		VALUES (?, ?, ?, ?, ?, 0, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		run.ID, run.Owner, run.StartedAt, run.SourceFilter, run.RequestedWindow, string(model.RunRunning))
	if err != nil {
		return fmt.Errorf("creating run %s: %w", run.ID, err)
	}
	return nil
}

// FinalizeRun records the number of new listings of a successful run.
// A run can only be finalized once.
func (s *Store) FinalizeRun(ctx context.Context, id string, count int, finishedAt time.Time) error {
	q := s.db.Rebind(`UPDATE runs SET new_record_count = ?, status = ?, finished_at = ?
		WHERE id = ? AND status = ?`)
	return s.closeRun(ctx, id, q, count, string(model.RunSucceeded), finishedAt, id, string(model.RunRunning))
}

// FailRun marks a run failed with a zero count.
func (s *Store) FailRun(ctx context.Context, id, reason string, finishedAt time.Time) error {
	q := s.db.Rebind(`UPDATE runs SET new_record_count = 0, status = ?, finished_at = ?, error_message = ?
		WHERE id = ? AND status = ?`)
	return s.closeRun(ctx, id, q, string(model.RunFailed), finishedAt, reason, id, string(model.RunRunning))
}

func (s *Store) closeRun(ctx context.Context, id, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("closing run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("closing run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not running: %w", id, model.ErrNotFound)
	}
	return nil
}

// GetRun loads one ledger row.
func (s *Store) GetRun(ctx context.Context, id string) (model.Run, error) {
	var run model.Run
	q := s.db.Rebind("SELECT " + runColumns + " FROM runs WHERE id = ?")
	err := s.db.GetContext(ctx, &run, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, fmt.Errorf("run %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Run{}, fmt.Errorf("loading run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs of owner, newest first.
func (s *Store) ListRuns(ctx context.Context, owner string, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := []model.Run{}
	q := s.db.Rebind("SELECT " + runColumns + " FROM runs WHERE owner = ? ORDER BY started_at DESC LIMIT ?")
	if err := s.db.SelectContext(ctx, &runs, q, owner, limit); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}
