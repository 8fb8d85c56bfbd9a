package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
)

const leverBaseURL = "https://api.lever.co/v0/postings"

// Ensure LeverAdapter implements model.ListingSource.
var _ model.ListingSource = (*LeverAdapter)(nil)

// leverCategories represents the categories object in a Lever job.
type leverCategories struct {
	Location     string   `json:"location"`
	AllLocations []string `json:"allLocations"`
}

// leverJob represents a single job in the Lever API response.
type leverJob struct {
	ID               string          `json:"id"`
	Text             string          `json:"text"`
	DescriptionPlain string          `json:"descriptionPlain"`
	Categories       leverCategories `json:"categories"`
	CreatedAt        int64           `json:"createdAt"` // unix milliseconds
	WorkplaceType    string          `json:"workplaceType"`
	HostedURL        string          `json:"hostedUrl"`
}

// LeverAdapter fetches listings from Lever public posting pages.
type LeverAdapter struct {
	boards  []Board
	client  *Client
	baseURL string
	now     func() time.Time
	logger  *slog.Logger
}

// NewLeverAdapter creates a source covering the given boards.
func NewLeverAdapter(boards []Board, client *Client, logger *slog.Logger) *LeverAdapter {
	return &LeverAdapter{
		boards:  boards,
		client:  client,
		baseURL: leverBaseURL,
		now:     time.Now,
		logger:  logger,
	}
}

func (a *LeverAdapter) Name() model.Source { return model.SourceLever }

func (a *LeverAdapter) Fetch(ctx context.Context, q model.Query, known model.KeySet) ([]model.Listing, error) {
	cutoff := cutoffDay(a.now(), q.Lookback)
	return fetchBoards(ctx, model.SourceLever, a.boards, a.logger, func(ctx context.Context, b Board) ([]model.Listing, error) {
		return a.fetchBoard(ctx, b, cutoff, known)
	})
}

func (a *LeverAdapter) fetchBoard(ctx context.Context, b Board, cutoff time.Time, known model.KeySet) ([]model.Listing, error) {
	url := fmt.Sprintf("%s/%s?mode=json", a.baseURL, b.Token)
	body, err := a.client.Get(ctx, model.SourceLever, url)
	if err != nil {
		return nil, err
	}

	var leverJobs []leverJob
	if err := json.Unmarshal(body, &leverJobs); err != nil {
		return nil, fmt.Errorf("lever fetch for %s: %w", b.Token, err)
	}

	listings := make([]model.Listing, 0, len(leverJobs))
	for _, lj := range leverJobs {
		if lj.HostedURL == "" || known.Has(lj.HostedURL) {
			continue
		}

		var posted string
		if lj.CreatedAt > 0 {
			t := time.UnixMilli(lj.CreatedAt).UTC()
			if t.Before(cutoff) {
				continue
			}
			posted = t.Format(time.DateOnly)
		}

		// Prefer allLocations if available, fall back to location.
		location := lj.Categories.Location
		if len(lj.Categories.AllLocations) > 0 {
			location = strings.Join(lj.Categories.AllLocations, ", ")
		}
		if lj.WorkplaceType == "remote" && !strings.Contains(strings.ToLower(location), "remote") {
			location = strings.TrimPrefix(location+", Remote", ", ")
		}

		listings = append(listings, model.Listing{
			OriginURL:   lj.HostedURL,
			Title:       lj.Text,
			Company:     b.Company,
			Location:    location,
			PostedDate:  posted,
			Description: strings.TrimSpace(lj.DescriptionPlain),
			Source:      model.SourceLever,
		})
	}
	return listings, nil
}
