package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory Store with per-call failure injection.
type memStore struct {
	mu       sync.Mutex
	listings []model.Listing
	runs     map[string]model.Run
	calls    []string

	errCreate   error
	errKnown    error
	errInsert   error
	errArchive  error
	panicKnown  bool
	insertLimit int // when > 0, only this many rows are inserted per batch
}

func newMemStore() *memStore {
	return &memStore{runs: map[string]model.Run{}}
}

func (m *memStore) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *memStore) KnownKeys(_ context.Context, owner string) (model.KeySet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("known")
	if m.panicKnown {
		panic("boom")
	}
	if m.errKnown != nil {
		return nil, m.errKnown
	}
	ks := model.NewKeySet()
	for _, l := range m.listings {
		if l.Owner == owner {
			ks.Add(l.OriginURL)
		}
	}
	return ks, nil
}

func (m *memStore) InsertBatch(_ context.Context, owner, runID string, loadedAt time.Time, batch []model.Listing) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("insert")
	if m.errInsert != nil {
		return 0, m.errInsert
	}
	n := 0
	for _, l := range batch {
		if m.insertLimit > 0 && n == m.insertLimit {
			break
		}
		if m.has(owner, l.OriginURL) {
			continue
		}
		l.Owner = owner
		l.RunID = runID
		l.LoadedAt = loadedAt
		l.Status = model.StatusInbox
		l.ID = int64(len(m.listings) + 1)
		m.listings = append(m.listings, l)
		n++
	}
	return n, nil
}

func (m *memStore) has(owner, url string) bool {
	for _, l := range m.listings {
		if l.Owner == owner && l.OriginURL == url {
			return true
		}
	}
	return false
}

func (m *memStore) ArchiveInbox(_ context.Context, owner string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("archive")
	if m.errArchive != nil {
		return 0, m.errArchive
	}
	var n int64
	for i := range m.listings {
		if m.listings[i].Owner == owner && m.listings[i].Status == model.StatusInbox {
			m.listings[i].Status = model.StatusArchived
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteInbox(_ context.Context, owner string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("delete")
	kept := m.listings[:0]
	var n int64
	for _, l := range m.listings {
		if l.Owner == owner && l.Status == model.StatusInbox {
			n++
			continue
		}
		kept = append(kept, l)
	}
	m.listings = kept
	return n, nil
}

func (m *memStore) CreateRun(_ context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("create_run")
	if m.errCreate != nil {
		return m.errCreate
	}
	m.runs[run.ID] = run
	return nil
}

func (m *memStore) FinalizeRun(_ context.Context, id string, count int, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("finalize_run")
	return m.close(id, model.RunSucceeded, count, "", finishedAt)
}

func (m *memStore) FailRun(_ context.Context, id, reason string, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("fail_run")
	return m.close(id, model.RunFailed, 0, reason, finishedAt)
}

func (m *memStore) close(id string, st model.RunStatus, count int, reason string, at time.Time) error {
	run, ok := m.runs[id]
	if !ok || run.Status != model.RunRunning {
		return model.ErrNotFound
	}
	run.Status = st
	run.NewRecordCount = count
	run.Error = reason
	run.FinishedAt = &at
	m.runs[id] = run
	return nil
}

func (m *memStore) run(id string) model.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

func (m *memStore) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listings)
}

// fakePoller returns a fixed batch, minus known keys, or an error.
type fakePoller struct {
	name     model.Source
	listings []model.Listing
	err      error
	panics   bool
	block    chan struct{} // when set, Poll waits for it or ctx

	mu      sync.Mutex
	queries []model.Query
}

func (f *fakePoller) Name() model.Source { return f.name }

func (f *fakePoller) Poll(ctx context.Context, q model.Query, known model.KeySet) ([]model.Listing, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panics {
		panic("adapter exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Listing
	for _, l := range f.listings {
		if !known.Has(l.OriginURL) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakePoller) lastQuery() model.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func listing(src model.Source, url, title string) model.Listing {
	return model.Listing{OriginURL: url, Title: title, Company: "Acme", Source: src}
}

var errDB = errors.New("database is locked")
