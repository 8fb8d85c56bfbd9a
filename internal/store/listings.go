package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
)

const listingColumns = `id, owner, origin_url, title, company, location, posted_date, description,
	source, status, loaded_at, application_date, run_id`

const insertListingSQL = `INSERT INTO listings
	(owner, origin_url, title, company, location, posted_date, description, source, status, loaded_at, run_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (owner, origin_url) DO NOTHING`

// ListFilter narrows ListListings. Zero values mean no restriction.
type ListFilter struct {
	Status model.Status
	Limit  int
}

// KnownKeys returns every origin URL stored for owner.
func (s *Store) KnownKeys(ctx context.Context, owner string) (model.KeySet, error) {
	var urls []string
	q := s.db.Rebind("SELECT origin_url FROM listings WHERE owner = ?")
	if err := s.db.SelectContext(ctx, &urls, q, owner); err != nil {
		return nil, fmt.Errorf("reading known keys: %w", err)
	}
	return model.NewKeySet(urls...), nil
}

// InsertBatch stores listings in one transaction, tagged with runID and
// loadedAt and placed in the inbox. Rows whose origin URL already exists for
// owner are skipped. Any error rolls back the whole batch. It returns the
// number of rows actually inserted.
func (s *Store) InsertBatch(ctx context.Context, owner, runID string, loadedAt time.Time, listings []model.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, s.db.Rebind(insertListingSQL))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, l := range listings {
		res, err := stmt.ExecContext(ctx,
			owner, l.OriginURL, l.Title, l.Company, l.Location, l.PostedDate,
			l.Description, string(l.Source), string(model.StatusInbox), loadedAt, runID,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting %s: %w", l.OriginURL, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("inserting %s: %w", l.OriginURL, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert batch: %w", err)
	}
	return inserted, nil
}

// ArchiveInbox moves every inbox listing of owner to archived.
func (s *Store) ArchiveInbox(ctx context.Context, owner string) (int64, error) {
	q := s.db.Rebind("UPDATE listings SET status = ? WHERE owner = ? AND status = ?")
	res, err := s.db.ExecContext(ctx, q, string(model.StatusArchived), owner, string(model.StatusInbox))
	if err != nil {
		return 0, fmt.Errorf("archiving inbox: %w", err)
	}
	return res.RowsAffected()
}

// DeleteInbox removes every inbox listing of owner. Other statuses are untouched.
func (s *Store) DeleteInbox(ctx context.Context, owner string) (int64, error) {
	q := s.db.Rebind("DELETE FROM listings WHERE owner = ? AND status = ?")
	res, err := s.db.ExecContext(ctx, q, owner, string(model.StatusInbox))
	if err != nil {
		return 0, fmt.Errorf("deleting inbox: %w", err)
	}
	return res.RowsAffected()
}

// GetListing loads a single listing.
func (s *Store) GetListing(ctx context.Context, owner string, id int64) (model.Listing, error) {
	var l model.Listing
	q := s.db.Rebind("SELECT " + listingColumns + " FROM listings WHERE owner = ? AND id = ?")
	err := s.db.GetContext(ctx, &l, q, owner, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Listing{}, fmt.Errorf("listing %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Listing{}, fmt.Errorf("loading listing %d: %w", id, err)
	}
	return l, nil
}

// UpdateStatus moves a listing to a new workflow status. The first move into
// applied stamps the application date with now; later moves never change it.
// The update only applies if the status is still the one that was read.
func (s *Store) UpdateStatus(ctx context.Context, owner string, id int64, to model.Status, now time.Time) (model.Listing, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Listing{}, fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	var cur model.Listing
	q := s.db.Rebind("SELECT " + listingColumns + " FROM listings WHERE owner = ? AND id = ?")
	err = tx.GetContext(ctx, &cur, q, owner, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Listing{}, fmt.Errorf("listing %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Listing{}, fmt.Errorf("loading listing %d: %w", id, err)
	}

	if !model.CanTransition(cur.Status, to) {
		return model.Listing{}, fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, cur.Status, to)
	}
	if cur.Status == to {
		return cur, nil
	}

	var res sql.Result
	if to == model.StatusApplied {
		q = s.db.Rebind(`UPDATE listings SET status = ?, application_date = COALESCE(application_date, ?)
			WHERE owner = ? AND id = ? AND status = ?`)
		res, err = tx.ExecContext(ctx, q, string(to), now, owner, id, string(cur.Status))
	} else {
		q = s.db.Rebind("UPDATE listings SET status = ? WHERE owner = ? AND id = ? AND status = ?")
		res, err = tx.ExecContext(ctx, q, string(to), owner, id, string(cur.Status))
	}
	if err != nil {
		return model.Listing{}, fmt.Errorf("updating listing %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Listing{}, fmt.Errorf("updating listing %d: %w", id, err)
	}
	if n == 0 {
		return model.Listing{}, fmt.Errorf("listing %d: %w", id, model.ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return model.Listing{}, fmt.Errorf("commit status update: %w", err)
	}

	cur.Status = to
	if to == model.StatusApplied && cur.ApplicationDate == nil {
		cur.ApplicationDate = &now
	}
	return cur, nil
}

// ResetApplicationDate clears the application date so the next move into
// applied stamps it again.
func (s *Store) ResetApplicationDate(ctx context.Context, owner string, id int64) error {
	q := s.db.Rebind("UPDATE listings SET application_date = NULL WHERE owner = ? AND id = ?")
	res, err := s.db.ExecContext(ctx, q, owner, id)
	if err != nil {
		return fmt.Errorf("resetting application date for %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resetting application date for %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("listing %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// ListListings returns listings of owner, newest first.
func (s *Store) ListListings(ctx context.Context, owner string, f ListFilter) ([]model.Listing, error) {
	q := "SELECT " + listingColumns + " FROM listings WHERE owner = ?"
	args := []any{owner}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, string(f.Status))
	}
	q += " ORDER BY loaded_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	listings := []model.Listing{}
	if err := s.db.SelectContext(ctx, &listings, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("listing listings: %w", err)
	}
	return listings, nil
}

// CountByStatus returns the number of listings of owner per status.
func (s *Store) CountByStatus(ctx context.Context, owner string) (map[model.Status]int, error) {
	var rows []struct {
		Status model.Status `db:"status"`
		N      int          `db:"n"`
	}
	q := s.db.Rebind("SELECT status, COUNT(*) AS n FROM listings WHERE owner = ? GROUP BY status")
	if err := s.db.SelectContext(ctx, &rows, q, owner); err != nil {
		return nil, fmt.Errorf("counting listings: %w", err)
	}

	counts := make(map[model.Status]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}
