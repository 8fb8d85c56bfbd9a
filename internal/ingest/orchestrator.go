package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobinbox/internal/dedup"
	"github.com/amishk599/jobinbox/internal/metrics"
	"github.com/amishk599/jobinbox/internal/model"
	"github.com/amishk599/jobinbox/internal/status"
)

// ErrInvalidRequest is returned for a run request that names unknown
// sources or housekeeping options.
var ErrInvalidRequest = errors.New("invalid run request")

// Poller fetches and filters listings for one source.
type Poller interface {
	Name() model.Source
	Poll(ctx context.Context, q model.Query, known model.KeySet) ([]model.Listing, error)
}

// Options wires an Orchestrator.
type Options struct {
	Pollers     []Poller                     // in precedence order
	Queries     map[model.Source]model.Query // per-source defaults
	Store       Store
	Tracker     *status.Tracker
	Notifier    model.Notifier // optional
	Metrics     *metrics.Metrics
	Owner       string // used when a request names none
	Concurrency int    // sources fetched at once, default 2
	Logger      *slog.Logger
}

// Orchestrator runs the ingestion pipeline, one run at a time:
// housekeeping, ledger row, fetch, dedup, commit, finalize.
type Orchestrator struct {
	pollers     []Poller
	queries     map[model.Source]model.Query
	store       Store
	ledger      *Ledger
	committer   *Committer
	tracker     *status.Tracker
	notifier    model.Notifier
	metrics     *metrics.Metrics
	owner       string
	concurrency int
	logger      *slog.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
	now     func() time.Time
}

// New creates an Orchestrator. Runs started with Start are cancelled when
// ctx is.
func New(ctx context.Context, opts Options) *Orchestrator {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = status.NewTracker()
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 2
	}
	return &Orchestrator{
		pollers:     opts.Pollers,
		queries:     opts.Queries,
		store:       opts.Store,
		ledger:      NewLedger(opts.Store),
		committer:   NewCommitter(opts.Store),
		tracker:     tracker,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		owner:       opts.Owner,
		concurrency: concurrency,
		logger:      opts.Logger,
		baseCtx:     ctx,
		now:         time.Now,
	}
}

// Start launches a run in the background and returns immediately.
// It returns model.ErrBusy if a run is already active.
func (o *Orchestrator) Start(req model.RunRequest) error {
	req, err := o.normalize(req)
	if err != nil {
		return err
	}
	if !o.tracker.TryStart(firstState(req.Management), "Starting...") {
		return model.ErrBusy
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(o.baseCtx, req)
	}()
	return nil
}

// Run executes a run on the calling goroutine and returns its outcome.
// It returns model.ErrBusy if a run is already active.
func (o *Orchestrator) Run(ctx context.Context, req model.RunRequest) (status.Result, error) {
	req, err := o.normalize(req)
	if err != nil {
		return status.Result{}, err
	}
	if !o.tracker.TryStart(firstState(req.Management), "Starting...") {
		return status.Result{}, model.ErrBusy
	}
	return o.execute(ctx, req), nil
}

// Status returns the current run state.
func (o *Orchestrator) Status() status.Snapshot {
	return o.tracker.Snapshot()
}

// Wait blocks until the background run, if any, has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Sources lists the enabled sources in precedence order.
func (o *Orchestrator) Sources() []model.Source {
	out := make([]model.Source, len(o.pollers))
	for i, p := range o.pollers {
		out[i] = p.Name()
	}
	return out
}

func (o *Orchestrator) normalize(req model.RunRequest) (model.RunRequest, error) {
	mgmt, ok := model.ParseManagement(string(req.Management))
	if !ok {
		return req, fmt.Errorf("%w: unknown management option %q", ErrInvalidRequest, req.Management)
	}
	req.Management = mgmt

	enabled := make(map[model.Source]bool, len(o.pollers))
	for _, p := range o.pollers {
		enabled[p.Name()] = true
	}
	for _, src := range req.Sources {
		if !enabled[src] {
			return req, fmt.Errorf("%w: source %q is not enabled", ErrInvalidRequest, src)
		}
	}
	if req.Window < 0 {
		return req, fmt.Errorf("%w: negative window", ErrInvalidRequest)
	}
	if req.WindowLabel == "" && req.Window > 0 {
		req.WindowLabel = req.Window.String()
	}
	if req.Owner == "" {
		req.Owner = o.owner
	}
	return req, nil
}

// execute drives one run to completion. The tracker is always returned to
// idle, including when a step panics.
func (o *Orchestrator) execute(ctx context.Context, req model.RunRequest) (res status.Result) {
	started := o.now()
	o.metrics.RunStarted()
	res.Status = model.RunFailed

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("run panicked", "run_id", res.RunID, "panic", r)
			o.fail(ctx, &res, fmt.Errorf("panic: %v", r))
		}
		res.FinishedAt = o.now().UTC()
		o.metrics.RunFinished(res.Status, res.FinishedAt.Sub(started), res.NewRecords)
		o.tracker.Finish(res)
	}()

	committed, n, err := o.pipeline(ctx, req, &res)
	if err != nil {
		o.fail(ctx, &res, err)
		return res
	}

	res.Status = model.RunSucceeded
	res.NewRecords = n
	o.logger.Info("run complete",
		"run_id", res.RunID,
		"sources", sourceFilter(req.Sources),
		"new", res.NewRecords,
		"took", o.now().Sub(started).Round(time.Millisecond),
	)
	o.notify(req, res, committed)
	return res
}

// firstState is where a run begins: housekeeping only when there is some.
func firstState(m model.Management) status.State {
	if m == model.ManageArchive || m == model.ManageDelete {
		return status.Housekeeping
	}
	return status.CreatingRun
}

func (o *Orchestrator) fail(ctx context.Context, res *status.Result, err error) {
	res.Status = model.RunFailed
	res.NewRecords = 0
	res.Error = err.Error()
	o.tracker.Set(status.Failed, "An error occurred: "+err.Error())
	o.logger.Error("run failed", "run_id", res.RunID, "error", err)

	if res.RunID == "" {
		return
	}
	if ferr := o.ledger.Fail(context.WithoutCancel(ctx), res.RunID, err); ferr != nil {
		o.logger.Error("recording run failure", "run_id", res.RunID, "error", ferr)
	}
}

// pipeline performs the ordered steps of a run and returns the batch handed
// to the store along with the number of rows it inserted. Store writes are
// not cancelled with ctx so a run that is interrupted can still be recorded
// as failed.
func (o *Orchestrator) pipeline(ctx context.Context, req model.RunRequest, res *status.Result) ([]model.Listing, int, error) {
	storeCtx := context.WithoutCancel(ctx)

	switch req.Management {
	case model.ManageArchive:
		o.tracker.Set(status.Housekeeping, "Archiving old jobs...")
		n, err := o.store.ArchiveInbox(storeCtx, req.Owner)
		if err != nil {
			return nil, 0, fmt.Errorf("archiving inbox: %w", err)
		}
		o.logger.Info("archived inbox", "listings", n)
	case model.ManageDelete:
		o.tracker.Set(status.Housekeeping, "Deleting old jobs...")
		n, err := o.store.DeleteInbox(storeCtx, req.Owner)
		if err != nil {
			return nil, 0, fmt.Errorf("deleting inbox: %w", err)
		}
		o.logger.Info("deleted inbox", "listings", n)
	}

	o.tracker.Set(status.CreatingRun, "Creating scrape history record...")
	run, err := o.ledger.Create(storeCtx, req.Owner, sourceFilter(req.Sources), req.WindowLabel)
	if err != nil {
		return nil, 0, err
	}
	res.RunID = run.ID

	known, err := o.store.KnownKeys(storeCtx, req.Owner)
	if err != nil {
		return nil, 0, fmt.Errorf("reading known listings: %w", err)
	}
	o.logger.Debug("known listings loaded", "run_id", run.ID, "count", known.Len())

	batches := o.fetchAll(ctx, req, known)
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("run cancelled: %w", err)
	}

	o.tracker.Set(status.FilteringDedup, "Removing duplicates...")
	merged := dedup.Merge(known, batches...)

	o.tracker.Set(status.Committing, "Combining and saving new jobs...")
	n, err := o.committer.Commit(storeCtx, req.Owner, run.ID, merged)
	if err != nil {
		return nil, 0, err
	}

	o.tracker.Set(status.Finalizing, fmt.Sprintf("Scraping complete. Added %d new jobs.", n))
	if err := o.ledger.Finalize(storeCtx, run.ID, n); err != nil {
		return nil, 0, err
	}
	return merged, n, nil
}

// fetchAll polls the requested sources concurrently. Results are kept in
// source order so earlier sources win deduplication. A failing source
// contributes nothing.
func (o *Orchestrator) fetchAll(ctx context.Context, req model.RunRequest, known model.KeySet) [][]model.Listing {
	pollers := o.selected(req.Sources)
	batches := make([][]model.Listing, len(pollers))

	names := make([]string, len(pollers))
	for i, p := range pollers {
		names[i] = string(p.Name())
	}
	o.tracker.Set(status.Fetching, "Scraping "+strings.Join(names, ", ")+"...")

	var done atomic.Int32
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, p := range pollers {
		q := o.queryFor(p.Name(), req.Window)
		g.Go(func() error {
			listings, err := o.pollSafely(ctx, p, q, known)
			if err != nil {
				o.metrics.SourceFailed(p.Name())
				o.logger.Error("source failed", "source", p.Name(), "error", err)
			} else {
				o.metrics.SourceFetched(p.Name(), len(listings))
				batches[i] = listings
			}
			o.tracker.Set(status.Fetching, fmt.Sprintf("Scraping... %d of %d sources done", done.Add(1), len(pollers)))
			return nil
		})
	}
	g.Wait()
	return batches
}

// pollSafely turns a panicking source into a source error.
func (o *Orchestrator) pollSafely(ctx context.Context, p Poller, q model.Query, known model.KeySet) (listings []model.Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", p.Name(), r)
		}
	}()
	return p.Poll(ctx, q, known)
}

func (o *Orchestrator) selected(sources []model.Source) []Poller {
	if len(sources) == 0 {
		return o.pollers
	}
	want := make(map[model.Source]bool, len(sources))
	for _, s := range sources {
		want[s] = true
	}
	var out []Poller
	for _, p := range o.pollers {
		if want[p.Name()] {
			out = append(out, p)
		}
	}
	return out
}

// queryFor returns the configured query for src, with the requested window
// replacing its lookback when one was given.
func (o *Orchestrator) queryFor(src model.Source, window time.Duration) model.Query {
	q := o.queries[src]
	if window > 0 {
		q.Lookback = window
	}
	return q
}

func (o *Orchestrator) notify(req model.RunRequest, res status.Result, committed []model.Listing) {
	if o.notifier == nil || len(committed) == 0 {
		return
	}
	run := model.Run{
		ID:              res.RunID,
		Owner:           req.Owner,
		SourceFilter:    sourceFilter(req.Sources),
		RequestedWindow: req.WindowLabel,
		NewRecordCount:  res.NewRecords,
		Status:          res.Status,
	}
	if err := o.notifier.Notify(run, committed); err != nil {
		o.logger.Error("notification failed", "run_id", res.RunID, "error", err)
	}
}

func sourceFilter(sources []model.Source) string {
	if len(sources) == 0 {
		return "all"
	}
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return strings.Join(names, ",")
}
