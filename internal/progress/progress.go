// Package progress renders the state of a run while it executes in the
// foreground.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobinbox/internal/model"
	"github.com/amishk599/jobinbox/internal/status"
)

// PollInterval is how often the status is sampled.
const PollInterval = 150 * time.Millisecond

// RunFunc executes a run to completion.
type RunFunc func(ctx context.Context) (status.Result, error)

// SnapshotFunc reports the state of the run in flight.
type SnapshotFunc func() status.Snapshot

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	stateStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

type runDoneMsg struct {
	result status.Result
	err    error
}

type pollMsg struct{}

type runModel struct {
	spinner  spinner.Model
	run      RunFunc
	snapshot SnapshotFunc
	ctx      context.Context
	cancel   context.CancelFunc

	state      status.State
	message    string
	cancelling bool
	result     status.Result
	err        error
	done       bool
}

func newModel(ctx context.Context, run RunFunc, snapshot SnapshotFunc) runModel {
	ctx, cancel := context.WithCancel(ctx)
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle
	return runModel{
		spinner:  s,
		run:      run,
		snapshot: snapshot,
		ctx:      ctx,
		cancel:   cancel,
		message:  "Starting...",
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(m.doRun(), m.spinner.Tick, poll())
}

func (m runModel) doRun() tea.Cmd {
	run, ctx := m.run, m.ctx
	return func() tea.Msg {
		res, err := run(ctx)
		return runDoneMsg{result: res, err: err}
	}
}

func poll() tea.Cmd {
	return tea.Tick(PollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runDoneMsg:
		m.result = msg.result
		m.err = msg.err
		m.done = true
		m.cancel()
		return m, tea.Quit
	case pollMsg:
		snap := m.snapshot()
		if snap.Running {
			m.state = snap.State
			m.message = snap.Message
		}
		return m, poll()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.cancelling {
			// The run keeps going until it has recorded itself as failed.
			m.cancelling = true
			m.cancel()
		}
	}
	return m, nil
}

func (m runModel) View() string {
	if m.done {
		return summary(m.result, m.err) + "\n"
	}
	msg := m.message
	if m.cancelling {
		msg = "Cancelling..."
	}
	line := fmt.Sprintf("%s %s", m.spinner.View(), msg)
	if m.state != "" {
		line += stateStyle.Render(fmt.Sprintf("  [%s]", m.state))
	}
	return line + "\n"
}

func summary(res status.Result, err error) string {
	switch {
	case err != nil:
		return failStyle.Render("✗ ") + err.Error()
	case res.Status == model.RunFailed:
		return failStyle.Render("✗ ") + "Run failed: " + res.Error
	default:
		return okStyle.Render("✓ ") + fmt.Sprintf("Scraping complete. Added %d new jobs.", res.NewRecords)
	}
}

// Run executes run while showing a spinner and the current step. It renders
// inline, without the alternate screen. Ctrl+C cancels the run.
func Run(ctx context.Context, run RunFunc, snapshot SnapshotFunc) (status.Result, error) {
	p := tea.NewProgram(newModel(ctx, run, snapshot))
	final, err := p.Run()
	if err != nil {
		return status.Result{}, err
	}
	m, ok := final.(runModel)
	if !ok {
		return status.Result{}, errors.New("unexpected progress model")
	}
	return m.result, m.err
}

// Plain executes run and logs each change of step. It is used when output is
// not a terminal.
func Plain(ctx context.Context, run RunFunc, snapshot SnapshotFunc, logger *slog.Logger) (status.Result, error) {
	type outcome struct {
		res status.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := run(ctx)
		done <- outcome{res, err}
	}()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case o := <-done:
			return o.res, o.err
		case <-ticker.C:
			snap := snapshot()
			if snap.Running && snap.Message != last {
				last = snap.Message
				logger.Info(snap.Message, "state", snap.State)
			}
		}
	}
}
