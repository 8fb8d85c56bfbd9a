package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobinbox/internal/model"
)

const (
	linkedInSearchURL = "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search"
	linkedInViewURL   = "https://www.linkedin.com/jobs/view/"
	linkedInPageSize  = 25
)

// Ensure LinkedInAdapter implements model.ListingSource.
var _ model.ListingSource = (*LinkedInAdapter)(nil)

// LinkedInOptions tunes the LinkedIn guest search.
type LinkedInOptions struct {
	GeoID             string // optional LinkedIn geoId narrowing the location
	FetchDescriptions bool   // fetch each new listing's detail page
}

// LinkedInAdapter scrapes the LinkedIn guest job search.
type LinkedInAdapter struct {
	client    *Client
	searchURL string
	opts      LinkedInOptions
	now       func() time.Time
	logger    *slog.Logger
}

// NewLinkedInAdapter creates a LinkedIn source using client for every request.
func NewLinkedInAdapter(client *Client, opts LinkedInOptions, logger *slog.Logger) *LinkedInAdapter {
	return &LinkedInAdapter{
		client:    client,
		searchURL: linkedInSearchURL,
		opts:      opts,
		now:       time.Now,
		logger:    logger,
	}
}

func (a *LinkedInAdapter) Name() model.Source { return model.SourceLinkedIn }

// linkedInCard is one result card from a search page.
type linkedInCard struct {
	title    string
	company  string
	location string
	url      string
	date     string
}

// Fetch walks q.Pages result pages for every search. Pages that fail are
// logged and skipped; only when every page fails is the source reported as
// unavailable. Cards already known, duplicated by title and company, or
// posted before the lookback window are dropped.
func (a *LinkedInAdapter) Fetch(ctx context.Context, q model.Query, known model.KeySet) ([]model.Listing, error) {
	searches := q.Searches
	if len(searches) == 0 {
		searches = []model.Search{{}}
	}
	pages := q.Pages
	if pages < 1 {
		pages = 1
	}
	cutoff := cutoffDay(a.now(), q.Lookback)

	var (
		listings  []model.Listing
		seen      = make(map[string]bool)
		attempted int
		failed    int
	)
	for _, s := range searches {
		for page := 0; page < pages; page++ {
			attempted++
			body, err := a.client.Get(ctx, model.SourceLinkedIn, a.pageURL(s, q.Lookback, page))
			if err != nil {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("linkedin fetch: %w", ctx.Err())
				}
				failed++
				a.logger.Warn("linkedin page failed", "keywords", s.Keywords, "page", page, "error", err)
				continue
			}

			cards, err := parseLinkedInCards(body)
			if err != nil {
				failed++
				a.logger.Warn("linkedin page unparseable", "keywords", s.Keywords, "page", page, "error", err)
				continue
			}
			if len(cards) == 0 {
				break
			}

			for _, c := range cards {
				key := c.title + "\x00" + c.company
				if seen[key] || c.url == "" || known.Has(c.url) {
					continue
				}
				seen[key] = true

				posted, err := time.Parse(time.DateOnly, c.date)
				if err != nil || posted.Before(cutoff) {
					continue
				}

				listings = append(listings, model.Listing{
					OriginURL:  c.url,
					Title:      c.title,
					Company:    c.company,
					Location:   c.location,
					PostedDate: c.date,
					Source:     model.SourceLinkedIn,
				})
			}
		}
	}

	if attempted > 0 && failed == attempted {
		return nil, fmt.Errorf("linkedin: all %d pages failed: %w", attempted, model.ErrSourceUnavailable)
	}

	if a.opts.FetchDescriptions {
		// A listing without its description would slip past the description
		// and language filters, so it is dropped.
		kept := listings[:0]
		for _, l := range listings {
			desc, err := a.fetchDescription(ctx, l.OriginURL)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, fmt.Errorf("linkedin fetch: %w", err)
				}
				a.logger.Warn("linkedin description failed, dropping listing", "url", l.OriginURL, "error", err)
				continue
			}
			l.Description = desc
			kept = append(kept, l)
		}
		listings = kept
	}

	a.logger.Debug("linkedin fetch complete", "pages", attempted, "failed_pages", failed, "listings", len(listings))
	return listings, nil
}

func (a *LinkedInAdapter) pageURL(s model.Search, lookback time.Duration, page int) string {
	v := url.Values{}
	v.Set("keywords", s.Keywords)
	v.Set("location", s.Location)
	if s.Remote {
		v.Set("f_WT", "2")
	}
	if a.opts.GeoID != "" {
		v.Set("geoId", a.opts.GeoID)
	}
	if lookback > 0 {
		v.Set("f_TPR", "r"+strconv.Itoa(int(lookback.Seconds())))
	}
	v.Set("start", strconv.Itoa(page*linkedInPageSize))
	return a.searchURL + "?" + v.Encode()
}

func (a *LinkedInAdapter) fetchDescription(ctx context.Context, jobURL string) (string, error) {
	body, err := a.client.Get(ctx, model.SourceLinkedIn, jobURL)
	if err != nil {
		return "", err
	}
	return parseLinkedInDescription(body)
}

func parseLinkedInCards(body []byte) ([]linkedInCard, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var cards []linkedInCard
	doc.Find("div.base-search-card__info").Each(func(_ int, info *goquery.Selection) {
		card := linkedInCard{
			title:    strings.TrimSpace(info.Find("h3").First().Text()),
			company:  strings.TrimSpace(info.Find("a.hidden-nested-link").First().Text()),
			location: strings.TrimSpace(info.Find("span.job-search-card__location").First().Text()),
			url:      linkedInJobURL(info.Parent()),
		}
		if t := info.Find("time.job-search-card__listdate").First(); t.Length() > 0 {
			card.date = t.AttrOr("datetime", "")
		} else {
			card.date = info.Find("time.job-search-card__listdate--new").First().AttrOr("datetime", "")
		}
		cards = append(cards, card)
	})
	return cards, nil
}

// linkedInJobURL derives the canonical view URL from the card's entity URN,
// falling back to the card link without its tracking query.
func linkedInJobURL(card *goquery.Selection) string {
	if urn, ok := card.Attr("data-entity-urn"); ok {
		if id := urn[strings.LastIndex(urn, ":")+1:]; id != "" {
			return linkedInViewURL + id + "/"
		}
	}
	href, ok := card.Find("a.base-card__full-link").First().Attr("href")
	if !ok {
		return ""
	}
	if i := strings.Index(href, "?"); i >= 0 {
		href = href[:i]
	}
	return href
}

var linkedInSkip = map[string]bool{"span": true, "a": true}

func parseLinkedInDescription(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse detail page: %w", err)
	}
	sel := doc.Find("div.description__text.description__text--rich").First()
	if sel.Length() == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n, linkedInSkip)
	}
	text := strings.NewReplacer("Show more", "", "Show less", "").Replace(b.String())
	return tidyLines(text), nil
}
