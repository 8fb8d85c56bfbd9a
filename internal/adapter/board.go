package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amishk599/jobinbox/internal/model"
)

// Board is one company job board on a hosted applicant tracking system.
type Board struct {
	Token   string // board token or company slug in the ATS URL
	Company string // display name stored on each listing
}

// fetchBoards runs fetch for every board. A failing board is logged and
// skipped; the source is unavailable only when all boards fail.
func fetchBoards(ctx context.Context, src model.Source, boards []Board, logger *slog.Logger,
	fetch func(ctx context.Context, b Board) ([]model.Listing, error)) ([]model.Listing, error) {
	var (
		listings []model.Listing
		failed   int
	)
	for _, b := range boards {
		got, err := fetch(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s fetch: %w", src, ctx.Err())
			}
			failed++
			logger.Warn("board fetch failed", "source", src, "board", b.Token, "error", err)
			continue
		}
		listings = append(listings, got...)
	}
	if len(boards) > 0 && failed == len(boards) {
		return nil, fmt.Errorf("%s: all %d boards failed: %w", src, failed, model.ErrSourceUnavailable)
	}
	return listings, nil
}
