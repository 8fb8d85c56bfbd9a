package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/amishk599/jobinbox/internal/model"
)

// Starter launches a background run. It returns model.ErrBusy while another
// run is active.
type Starter interface {
	Start(req model.RunRequest) error
}

// Entry is one cron expression and the run it triggers.
type Entry struct {
	Spec    string // standard five field cron expression or a descriptor like @daily
	Request model.RunRequest
}

// Scheduler owns the main loop: it triggers runs on cron schedules until the
// context is cancelled. A tick that lands while a run is active is skipped.
type Scheduler struct {
	starter    Starter
	entries    []Entry
	runOnStart bool
	cron       *cron.Cron
	logger     *slog.Logger
}

// NewScheduler validates every entry and registers it.
func NewScheduler(starter Starter, entries []Entry, runOnStart bool, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		starter:    starter,
		entries:    entries,
		runOnStart: runOnStart,
		cron:       cron.New(),
		logger:     logger,
	}
	for i, e := range entries {
		req := e.Request
		if _, err := s.cron.AddFunc(e.Spec, func() { s.trigger(req) }); err != nil {
			return nil, fmt.Errorf("schedule[%d] %q: %w", i, e.Spec, err)
		}
	}
	return s, nil
}

// Run starts the cron loop, optionally firing the first entry right away.
// It returns nil when ctx is cancelled, after any in-flight trigger returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler", "entries", len(s.entries))

	if s.runOnStart && len(s.entries) > 0 {
		s.trigger(s.entries[0].Request)
	}

	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Debug("next scheduled run", "entry", e.ID, "at", e.Next)
	}

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) trigger(req model.RunRequest) {
	err := s.starter.Start(req)
	switch {
	case err == nil:
		s.logger.Info("scheduled run started", "sources", req.Sources, "manage", req.Management)
	case errors.Is(err, model.ErrBusy):
		s.logger.Warn("skipping scheduled run, previous run still active")
	default:
		s.logger.Error("scheduled run rejected", "error", err)
	}
}
