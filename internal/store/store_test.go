package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
)

const owner = "alice"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), "sqlite://"+dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sample(urls ...string) []model.Listing {
	out := make([]model.Listing, 0, len(urls))
	for _, u := range urls {
		out = append(out, model.Listing{
			OriginURL: u,
			Title:     "Engineer " + u,
			Company:   "Acme",
			Source:    model.SourceLinkedIn,
		})
	}
	return out
}

func mustCreateRun(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.CreateRun(context.Background(), model.Run{
		ID: id, Owner: owner, StartedAt: time.Now().UTC(), SourceFilter: "all", RequestedWindow: "Past Week",
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url        string
		wantDriver string
		wantPrefix string
	}{
		{"postgres://u:p@db/jobs", "pgx", "postgres://u:p@db/jobs"},
		{"postgresql://db/jobs", "pgx", "postgresql://db/jobs"},
		{"sqlite:///var/lib/jobs.db", "sqlite", "/var/lib/jobs.db?"},
		{"jobs.db", "sqlite", "jobs.db?"},
		{"", "sqlite", "jobinbox.db?"},
		{"sqlite://x.db?cache=shared", "sqlite", "x.db?cache=shared&"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, dsn, _ := parseURL(tt.url)
			if driver != tt.wantDriver {
				t.Errorf("driver = %q, want %q", driver, tt.wantDriver)
			}
			if len(dsn) < len(tt.wantPrefix) || dsn[:len(tt.wantPrefix)] != tt.wantPrefix {
				t.Errorf("dsn = %q, want prefix %q", dsn, tt.wantPrefix)
			}
		})
	}
}

func TestInsertBatch_IdempotentReingestion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateRun(t, s, "run-1")
	mustCreateRun(t, s, "run-2")

	n, err := s.InsertBatch(ctx, owner, "run-1", time.Now().UTC(), sample("u1", "u2"))
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != 2 {
		t.Fatalf("first insert = %d, want 2", n)
	}

	n, err = s.InsertBatch(ctx, owner, "run-2", time.Now().UTC(), sample("u1", "u2"))
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != 0 {
		t.Fatalf("second insert = %d, want 0", n)
	}

	listings, err := s.ListListings(ctx, owner, ListFilter{})
	if err != nil {
		t.Fatalf("ListListings: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 stored listings, got %d", len(listings))
	}
	for _, l := range listings {
		if l.RunID != "run-1" {
			t.Errorf("listing %s run = %q, want run-1", l.OriginURL, l.RunID)
		}
		if l.Status != model.StatusInbox {
			t.Errorf("listing %s status = %q, want inbox", l.OriginURL, l.Status)
		}
		if l.ApplicationDate != nil {
			t.Errorf("listing %s has application date", l.OriginURL)
		}
	}
}

func TestInsertBatch_OwnerScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertBatch(ctx, "alice", "r", time.Now().UTC(), sample("u1")); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	n, err := s.InsertBatch(ctx, "bob", "r", time.Now().UTC(), sample("u1"))
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != 1 {
		t.Fatalf("other owner insert = %d, want 1", n)
	}

	keys, err := s.KnownKeys(ctx, "bob")
	if err != nil {
		t.Fatalf("KnownKeys: %v", err)
	}
	if keys.Len() != 1 || !keys.Has("u1") {
		t.Fatalf("KnownKeys(bob) = %v", keys)
	}
}

func TestInsertBatch_Empty(t *testing.T) {
	s := newTestStore(t)
	n, err := s.InsertBatch(context.Background(), owner, "r", time.Now(), nil)
	if err != nil || n != 0 {
		t.Fatalf("InsertBatch(nil) = %d, %v", n, err)
	}
}

func TestArchiveAndDeleteInbox(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertBatch(ctx, owner, "r", time.Now().UTC(), sample("u1", "u2", "u3")); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	listings, _ := s.ListListings(ctx, owner, ListFilter{})
	var applied int64
	for _, l := range listings {
		if l.OriginURL == "u3" {
			applied = l.ID
		}
	}
	if _, err := s.UpdateStatus(ctx, owner, applied, model.StatusApplied, time.Now().UTC()); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	n, err := s.ArchiveInbox(ctx, owner)
	if err != nil {
		t.Fatalf("ArchiveInbox: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d, want 2", n)
	}

	counts, err := s.CountByStatus(ctx, owner)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[model.StatusArchived] != 2 || counts[model.StatusApplied] != 1 || counts[model.StatusInbox] != 0 {
		t.Fatalf("counts = %v", counts)
	}

	// Move one back to the inbox, then delete the inbox.
	archived, _ := s.ListListings(ctx, owner, ListFilter{Status: model.StatusArchived, Limit: 1})
	if _, err := s.UpdateStatus(ctx, owner, archived[0].ID, model.StatusInbox, time.Now().UTC()); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	n, err = s.DeleteInbox(ctx, owner)
	if err != nil {
		t.Fatalf("DeleteInbox: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d, want 1", n)
	}
	keys, _ := s.KnownKeys(ctx, owner)
	if keys.Len() != 2 {
		t.Fatalf("expected 2 remaining keys, got %d", keys.Len())
	}
}

func TestUpdateStatus_ApplicationDateWrittenOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertBatch(ctx, owner, "r", time.Now().UTC(), sample("u1")); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	listings, _ := s.ListListings(ctx, owner, ListFilter{})
	id := listings[0].ID

	t1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l, err := s.UpdateStatus(ctx, owner, id, model.StatusApplied, t1)
	if err != nil {
		t.Fatalf("UpdateStatus applied: %v", err)
	}
	if l.ApplicationDate == nil || !l.ApplicationDate.Equal(t1) {
		t.Fatalf("ApplicationDate = %v, want %v", l.ApplicationDate, t1)
	}

	if _, err := s.UpdateStatus(ctx, owner, id, model.StatusInterviewing, t1.Add(time.Hour)); err != nil {
		t.Fatalf("UpdateStatus interviewing: %v", err)
	}
	t3 := t1.Add(48 * time.Hour)
	l, err = s.UpdateStatus(ctx, owner, id, model.StatusApplied, t3)
	if err != nil {
		t.Fatalf("UpdateStatus applied again: %v", err)
	}
	if l.ApplicationDate == nil || !l.ApplicationDate.Equal(t1) {
		t.Fatalf("ApplicationDate = %v, want unchanged %v", l.ApplicationDate, t1)
	}

	stored, err := s.GetListing(ctx, owner, id)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if stored.ApplicationDate == nil || !stored.ApplicationDate.Equal(t1) {
		t.Fatalf("stored ApplicationDate = %v, want %v", stored.ApplicationDate, t1)
	}

	// Only an explicit reset clears it.
	if err := s.ResetApplicationDate(ctx, owner, id); err != nil {
		t.Fatalf("ResetApplicationDate: %v", err)
	}
	stored, _ = s.GetListing(ctx, owner, id)
	if stored.ApplicationDate != nil {
		t.Fatalf("ApplicationDate = %v after reset, want nil", stored.ApplicationDate)
	}
}

func TestUpdateStatus_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertBatch(ctx, owner, "r", time.Now().UTC(), sample("u1")); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	listings, _ := s.ListListings(ctx, owner, ListFilter{})
	id := listings[0].ID

	if _, err := s.UpdateStatus(ctx, owner, id, model.StatusOffer, time.Now()); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("inbox->offer err = %v, want ErrInvalidTransition", err)
	}
	if _, err := s.UpdateStatus(ctx, owner, 9999, model.StatusApplied, time.Now()); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing listing err = %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateStatus(ctx, "bob", id, model.StatusApplied, time.Now()); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("other owner err = %v, want ErrNotFound", err)
	}
	if err := s.ResetApplicationDate(ctx, owner, 9999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("reset missing err = %v, want ErrNotFound", err)
	}

	l, err := s.UpdateStatus(ctx, owner, id, model.StatusInbox, time.Now())
	if err != nil || l.Status != model.StatusInbox {
		t.Errorf("same status update = %v, %v", l.Status, err)
	}
}

func TestRunLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateRun(t, s, "run-ok")
	mustCreateRun(t, s, "run-bad")

	run, err := s.GetRun(ctx, "run-ok")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != model.RunRunning || run.NewRecordCount != 0 || run.FinishedAt != nil {
		t.Fatalf("new run = %+v", run)
	}

	if err := s.FinalizeRun(ctx, "run-ok", 7, time.Now().UTC()); err != nil {
		t.Fatalf("FinalizeRun: %v", err)
	}
	if err := s.FinalizeRun(ctx, "run-ok", 9, time.Now().UTC()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("second FinalizeRun err = %v, want ErrNotFound", err)
	}
	if err := s.FailRun(ctx, "run-bad", "commit: disk full", time.Now().UTC()); err != nil {
		t.Fatalf("FailRun: %v", err)
	}

	run, _ = s.GetRun(ctx, "run-ok")
	if run.Status != model.RunSucceeded || run.NewRecordCount != 7 || run.FinishedAt == nil {
		t.Fatalf("finalized run = %+v", run)
	}
	run, _ = s.GetRun(ctx, "run-bad")
	if run.Status != model.RunFailed || run.NewRecordCount != 0 || run.Error != "commit: disk full" {
		t.Fatalf("failed run = %+v", run)
	}

	runs, err := s.ListRuns(ctx, owner, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if _, err := s.GetRun(ctx, "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetRun(nope) err = %v", err)
	}
}

func TestListListingsAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertBatch(ctx, owner, "r1", time.Now().UTC().Add(-time.Hour), sample("u1", "u2")); err != nil {
		t.Fatalf("InsertBatch r1: %v", err)
	}
	if _, err := s.InsertBatch(ctx, owner, "r2", time.Now().UTC(), sample("u3")); err != nil {
		t.Fatalf("InsertBatch r2: %v", err)
	}
	if _, err := s.InsertBatch(ctx, "bob", "r3", time.Now().UTC(), sample("u9")); err != nil {
		t.Fatalf("InsertBatch bob: %v", err)
	}

	all, err := s.ListListings(ctx, owner, ListFilter{})
	if err != nil {
		t.Fatalf("ListListings: %v", err)
	}
	if len(all) != 3 || all[0].OriginURL != "u3" {
		t.Fatalf("listings = %d, first %q; want 3 newest first", len(all), all[0].OriginURL)
	}

	if _, err := s.UpdateStatus(ctx, owner, all[1].ID, model.StatusWantToApply, time.Now()); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	wanted, err := s.ListListings(ctx, owner, ListFilter{Status: model.StatusWantToApply})
	if err != nil {
		t.Fatalf("ListListings by status: %v", err)
	}
	if len(wanted) != 1 || wanted[0].ID != all[1].ID {
		t.Fatalf("want_to_apply listings = %+v", wanted)
	}

	limited, _ := s.ListListings(ctx, owner, ListFilter{Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("limited listings = %d, want 2", len(limited))
	}

	counts, err := s.CountByStatus(ctx, owner)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[model.StatusInbox] != 2 || counts[model.StatusWantToApply] != 1 || len(counts) != 2 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestParseURL_SQLiteTransactionsAreImmediate(t *testing.T) {
	_, dsn, _ := parseURL("sqlite://jobs.db")
	for _, want := range []string{"_txlock=immediate", "busy_timeout(5000)", "journal_mode(WAL)"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestUpdateStatus_DuringInsertBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertBatch(ctx, owner, "seed", time.Now().UTC(), sample("tracked")); err != nil {
		t.Fatalf("InsertBatch seed: %v", err)
	}
	listings, _ := s.ListListings(ctx, owner, ListFilter{})
	id := listings[0].ID

	done := make(chan error, 1)
	go func() {
		for b := range 8 {
			urls := make([]string, 500)
			for i := range urls {
				urls[i] = fmt.Sprintf("batch-%d-%d", b, i)
			}
			if _, err := s.InsertBatch(ctx, owner, fmt.Sprintf("run-%d", b), time.Now().UTC(), sample(urls...)); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	next := map[model.Status]model.Status{model.StatusInbox: model.StatusArchived, model.StatusArchived: model.StatusInbox}
	cur := model.StatusInbox
	updates := 0
	for {
		l, err := s.UpdateStatus(ctx, owner, id, next[cur], time.Now())
		if err != nil {
			t.Fatalf("UpdateStatus after %d updates: %v", updates, err)
		}
		cur = l.Status
		updates++

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("InsertBatch: %v", err)
			}
			return
		default:
		}
	}
}
