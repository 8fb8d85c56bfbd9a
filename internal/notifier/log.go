package notifier

import (
	"log/slog"

	"github.com/amishk599/jobinbox/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes the outcome of a run and its new listings to a logger.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs one summary line and one line per listing. It never fails.
func (n *LogNotifier) Notify(run model.Run, listings []model.Listing) error {
	n.logger.Info("run finished",
		"run_id", run.ID,
		"owner", run.Owner,
		"sources", run.SourceFilter,
		"new", run.NewRecordCount,
	)
	for _, l := range listings {
		args := []any{"source", l.Source, "company", l.Company, "title", l.Title, "location", l.Location, "url", l.OriginURL}
		if l.PostedDate != "" {
			args = append(args, "posted", l.PostedDate)
		}
		n.logger.Info("new listing", args...)
	}
	return nil
}
