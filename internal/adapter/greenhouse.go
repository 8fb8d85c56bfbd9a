package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// Ensure GreenhouseAdapter implements model.ListingSource.
var _ model.ListingSource = (*GreenhouseAdapter)(nil)

// greenhouseJob represents a single job in the Greenhouse API response.
type greenhouseJob struct {
	ID             int64              `json:"id"`
	Title          string             `json:"title"`
	Location       greenhouseLocation `json:"location"`
	AbsoluteURL    string             `json:"absolute_url"`
	Content        string             `json:"content"` // HTML, entity-encoded
	UpdatedAt      string             `json:"updated_at"`
	FirstPublished string             `json:"first_published"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

// greenhouseResponse is the top-level Greenhouse jobs API response.
type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// GreenhouseAdapter fetches listings from Greenhouse public job boards.
type GreenhouseAdapter struct {
	boards  []Board
	client  *Client
	baseURL string
	now     func() time.Time
	logger  *slog.Logger
}

// NewGreenhouseAdapter creates a source covering the given boards.
func NewGreenhouseAdapter(boards []Board, client *Client, logger *slog.Logger) *GreenhouseAdapter {
	return &GreenhouseAdapter{
		boards:  boards,
		client:  client,
		baseURL: greenhouseBaseURL,
		now:     time.Now,
		logger:  logger,
	}
}

func (a *GreenhouseAdapter) Name() model.Source { return model.SourceGreenhouse }

// Fetch returns the postings of every board published within q.Lookback
// whose URL is not already known.
func (a *GreenhouseAdapter) Fetch(ctx context.Context, q model.Query, known model.KeySet) ([]model.Listing, error) {
	cutoff := cutoffDay(a.now(), q.Lookback)
	return fetchBoards(ctx, model.SourceGreenhouse, a.boards, a.logger, func(ctx context.Context, b Board) ([]model.Listing, error) {
		return a.fetchBoard(ctx, b, cutoff, known)
	})
}

func (a *GreenhouseAdapter) fetchBoard(ctx context.Context, b Board, cutoff time.Time, known model.KeySet) ([]model.Listing, error) {
	url := fmt.Sprintf("%s/%s/jobs?content=true", a.baseURL, b.Token)
	body, err := a.client.Get(ctx, model.SourceGreenhouse, url)
	if err != nil {
		return nil, err
	}

	var ghResp greenhouseResponse
	if err := json.Unmarshal(body, &ghResp); err != nil {
		return nil, fmt.Errorf("greenhouse fetch for %s: %w", b.Token, err)
	}

	listings := make([]model.Listing, 0, len(ghResp.Jobs))
	for _, gj := range ghResp.Jobs {
		if gj.AbsoluteURL == "" || known.Has(gj.AbsoluteURL) {
			continue
		}

		// Prefer the first publication date; updated_at moves on every edit.
		stamp := gj.FirstPublished
		if stamp == "" {
			stamp = gj.UpdatedAt
		}
		var posted string
		if t, err := time.Parse(time.RFC3339, stamp); err == nil {
			if t.Before(cutoff) {
				continue
			}
			posted = t.UTC().Format(time.DateOnly)
		}

		listings = append(listings, model.Listing{
			OriginURL:   gj.AbsoluteURL,
			Title:       gj.Title,
			Company:     b.Company,
			Location:    gj.Location.Name,
			PostedDate:  posted,
			Description: extractText(gj.Content),
			Source:      model.SourceGreenhouse,
		})
	}
	return listings, nil
}
