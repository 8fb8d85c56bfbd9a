package poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amishk599/jobinbox/internal/model"
)

// SourcePoller owns the per-source half of a run: fetch, then filter.
// Deduplication across sources and persistence happen after all sources report.
type SourcePoller struct {
	source model.ListingSource
	filter model.ListingFilter
	logger *slog.Logger
}

// NewSourcePoller wires a source with the filter applied to its results.
// A nil filter keeps everything.
func NewSourcePoller(source model.ListingSource, filter model.ListingFilter, logger *slog.Logger) *SourcePoller {
	return &SourcePoller{
		source: source,
		filter: filter,
		logger: logger,
	}
}

func (p *SourcePoller) Name() model.Source { return p.source.Name() }

// Poll fetches listings for q and returns those that pass the filter.
func (p *SourcePoller) Poll(ctx context.Context, q model.Query, known model.KeySet) ([]model.Listing, error) {
	listings, err := p.source.Fetch(ctx, q, known)
	if err != nil {
		return nil, fmt.Errorf("polling %s: %w", p.source.Name(), err)
	}

	matched := listings
	if p.filter != nil {
		matched = p.filter.Apply(listings)
	}

	p.logger.Info("polled source",
		"source", p.source.Name(),
		"fetched", len(listings),
		"matched", len(matched),
	)

	return matched, nil
}
