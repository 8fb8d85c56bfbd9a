package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
)

func linkedInCardHTML(id, title, company, date, dateClass string) string {
	return fmt.Sprintf(`<li><div class="base-card" data-entity-urn="urn:li:jobPosting:%s">
  <a class="base-card__full-link" href="https://www.linkedin.com/jobs/view/x-%s?refId=abc"></a>
  <div class="base-search-card__info">
    <h3 class="base-search-card__title"> %s </h3>
    <h4 class="base-search-card__subtitle"><a class="hidden-nested-link" href="#">%s</a></h4>
    <div class="base-search-card__metadata">
      <span class="job-search-card__location">Toronto, ON</span>
      <time class="%s" datetime="%s">recently</time>
    </div>
  </div>
</div></li>`, id, id, title, company, dateClass, date)
}

const linkedInDescriptionHTML = `<html><body>
<div class="description__text description__text--rich">
  <section><p>We build <strong>reliable</strong> systems.</p>
  <ul><li>Go</li><li>SQL</li></ul>
  <span>tracking</span><a href="#">apply</a>
  <button>Show more</button></section>
</div></body></html>`

func newTestLinkedIn(srv *httptest.Server, fetchDescriptions bool) *LinkedInAdapter {
	a := NewLinkedInAdapter(newTestClient(srv), LinkedInOptions{FetchDescriptions: fetchDescriptions}, discardLogger())
	a.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestLinkedIn_Fetch(t *testing.T) {
	firstPage := strings.Join([]string{
		linkedInCardHTML("101", "Backend Engineer", "Acme", "2026-03-08", "job-search-card__listdate"),
		linkedInCardHTML("102", "Backend Engineer", "Acme", "2026-03-08", "job-search-card__listdate"), // same title+company
		linkedInCardHTML("103", "Data Engineer", "Globex", "2026-03-09", "job-search-card__listdate--new"),
		linkedInCardHTML("104", "Old Engineer", "Initech", "2026-01-01", "job-search-card__listdate"),
		linkedInCardHTML("105", "Known Engineer", "Hooli", "2026-03-09", "job-search-card__listdate"),
		linkedInCardHTML("106", "Undated Engineer", "Umbrella", "", "job-search-card__listdate"),
	}, "\n")

	var detailCalls atomic.Int32
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/jobs-guest/"):
			if r.URL.Query().Get("start") == "0" {
				gotQuery = r.URL.RawQuery
				w.Write([]byte(firstPage))
				return
			}
			w.Write([]byte(""))
		case strings.HasPrefix(r.URL.Path, "/jobs/view/"):
			detailCalls.Add(1)
			w.Write([]byte(linkedInDescriptionHTML))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := newTestLinkedIn(srv, true)
	q := model.Query{
		Searches: []model.Search{{Keywords: "engineer", Location: "Toronto", Remote: true}},
		Lookback: 7 * 24 * time.Hour,
		Pages:    3,
	}
	known := model.NewKeySet("https://www.linkedin.com/jobs/view/105/")

	listings, err := a.Fetch(context.Background(), q, known)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d: %+v", len(listings), listings)
	}

	l := listings[0]
	if l.OriginURL != "https://www.linkedin.com/jobs/view/101/" {
		t.Errorf("OriginURL = %q", l.OriginURL)
	}
	if l.Title != "Backend Engineer" || l.Company != "Acme" || l.Location != "Toronto, ON" {
		t.Errorf("listing = %+v", l)
	}
	if l.PostedDate != "2026-03-08" || l.Source != model.SourceLinkedIn {
		t.Errorf("PostedDate/Source = %q/%q", l.PostedDate, l.Source)
	}
	if l.Description != "We build reliable systems.\n- Go\n- SQL" {
		t.Errorf("Description = %q", l.Description)
	}
	if listings[1].OriginURL != "https://www.linkedin.com/jobs/view/103/" {
		t.Errorf("second OriginURL = %q", listings[1].OriginURL)
	}
	if c := detailCalls.Load(); c != 2 {
		t.Errorf("detail calls = %d, want 2 (known listings are not fetched)", c)
	}

	for _, want := range []string{"keywords=engineer", "location=Toronto", "f_WT=2", "f_TPR=r604800", "start=0"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestLinkedIn_SkipsFailedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("start") {
		case "0":
			w.WriteHeader(http.StatusForbidden)
		case "25":
			w.Write([]byte(linkedInCardHTML("201", "SRE", "Acme", "2026-03-09", "job-search-card__listdate")))
		default:
			w.Write([]byte(""))
		}
	}))
	defer srv.Close()

	listings, err := newTestLinkedIn(srv, false).Fetch(context.Background(), model.Query{Pages: 3}, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(listings) != 1 || listings[0].Description != "" {
		t.Fatalf("listings = %+v", listings)
	}
}

func TestLinkedIn_AllPagesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestLinkedIn(srv, false).Fetch(context.Background(), model.Query{Pages: 2}, nil)
	if !errors.Is(err, model.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestLinkedIn_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(""))
	}))
	defer srv.Close()

	listings, err := newTestLinkedIn(srv, true).Fetch(context.Background(), model.Query{Pages: 5}, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("expected no listings, got %d", len(listings))
	}
}

func TestLinkedInJobURL_FallsBackToLink(t *testing.T) {
	page := `<div class="base-card"><a class="base-card__full-link" href="https://www.linkedin.com/jobs/view/abc-9?trk=x"></a>
<div class="base-search-card__info"><h3>T</h3></div></div>`
	cards, err := parseLinkedInCards([]byte(page))
	if err != nil {
		t.Fatalf("parseLinkedInCards: %v", err)
	}
	if len(cards) != 1 || cards[0].url != "https://www.linkedin.com/jobs/view/abc-9" {
		t.Fatalf("cards = %+v", cards)
	}
}

func TestLinkedIn_DropsListingWhenDescriptionFails(t *testing.T) {
	page := linkedInCardHTML("301", "Go Engineer", "Acme", "2026-03-09", "job-search-card__listdate") +
		linkedInCardHTML("302", "Rust Engineer", "Globex", "2026-03-09", "job-search-card__listdate")

	var brokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/jobs-guest/"):
			if r.URL.Query().Get("start") == "0" {
				w.Write([]byte(page))
			}
		case r.URL.Path == "/jobs/view/301/":
			brokenCalls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		case r.URL.Path == "/jobs/view/302/":
			w.Write([]byte(linkedInDescriptionHTML))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	listings, err := newTestLinkedIn(srv, true).Fetch(context.Background(), model.Query{Pages: 1, Lookback: 7 * 24 * time.Hour}, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(listings) != 1 || listings[0].OriginURL != "https://www.linkedin.com/jobs/view/302/" {
		t.Fatalf("listings = %+v, want only 302", listings)
	}
	if listings[0].Description == "" {
		t.Error("kept listing has no description")
	}
	if c := brokenCalls.Load(); c != 3 {
		t.Errorf("detail attempts for 301 = %d, want 3", c)
	}
}
