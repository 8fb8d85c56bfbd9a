// Package status holds the process-wide view of the ingestion run in flight.
package status

import (
	"sync"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
)

// State is a step of the run state machine.
type State string

const (
	Idle           State = "idle"
	Housekeeping   State = "housekeeping"
	CreatingRun    State = "creating_run"
	Fetching       State = "fetching"
	FilteringDedup State = "filtering_dedup"
	Committing     State = "committing"
	Finalizing     State = "finalizing"
	Failed         State = "failed"
)

// IdleMessage is shown whenever no run is active.
const IdleMessage = "Idle"

// Result summarises the last finished run.
type Result struct {
	RunID      string          `json:"run_id,omitempty"`
	Status     model.RunStatus `json:"status"`
	NewRecords int             `json:"new_records"`
	Error      string          `json:"error,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Snapshot is a consistent copy of the tracker state.
type Snapshot struct {
	Running    bool    `json:"is_running"`
	State      State   `json:"state"`
	Message    string  `json:"message"`
	LastResult *Result `json:"last_result,omitempty"`
}

// Tracker guards against overlapping runs and publishes progress.
// The active run is its only writer; any number of goroutines may read it.
type Tracker struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{State: Idle, Message: IdleMessage}}
}

// TryStart marks a run as active in its first state. It returns false,
// changing nothing, if a run is already active.
func (t *Tracker) TryStart(state State, msg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Running {
		return false
	}
	t.snap.Running = true
	t.snap.State = state
	t.snap.Message = msg
	return true
}

// Set publishes the current step of the active run.
func (t *Tracker) Set(state State, msg string) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Message = msg
	t.mu.Unlock()
}

// Finish returns the tracker to idle and records the outcome.
func (t *Tracker) Finish(res Result) {
	t.mu.Lock()
	t.snap = Snapshot{State: Idle, Message: IdleMessage, LastResult: &res}
	t.mu.Unlock()
}

// Snapshot returns a copy safe to hand to other goroutines.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.snap
	if s.LastResult != nil {
		r := *s.LastResult
		s.LastResult = &r
	}
	return s
}
