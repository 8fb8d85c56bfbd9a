package adapter

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobinbox/internal/model"
	"github.com/amishk599/jobinbox/internal/retry"
)

// Ensure IndeedAdapter implements model.ListingSource.
var _ model.ListingSource = (*IndeedAdapter)(nil)

// IndeedOptions locates the JobFunnel binary and its working files.
type IndeedOptions struct {
	Binary             string         // JobFunnel executable, "funnel" by default
	WorkDir            string         // directory for the temporary settings file
	MasterCSV          string         // CSV JobFunnel writes its results to
	CacheFolder        string
	LogFile            string
	BlockListFile      string
	DuplicatesListFile string
	Search             map[string]any // passed through as the "search" section
	Delay              map[string]any // passed through as the "delay" section
}

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// IndeedAdapter collects Indeed listings by driving the JobFunnel CLI and
// reading the CSV it produces.
type IndeedAdapter struct {
	opts   IndeedOptions
	run    CommandRunner
	policy retry.Policy
	logger *slog.Logger
}

// NewIndeedAdapter creates an Indeed source. The JobFunnel run is retried per
// policy when it exits with an error.
func NewIndeedAdapter(opts IndeedOptions, policy retry.Policy, logger *slog.Logger) *IndeedAdapter {
	if opts.Binary == "" {
		opts.Binary = "funnel"
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &IndeedAdapter{
		opts:   opts,
		run:    execRunner,
		policy: policy,
		logger: logger,
	}
}

func (a *IndeedAdapter) Name() model.Source { return model.SourceIndeed }

// Fetch runs JobFunnel once and returns the CSV rows whose link is not known.
func (a *IndeedAdapter) Fetch(ctx context.Context, q model.Query, known model.KeySet) ([]model.Listing, error) {
	for _, path := range []string{a.opts.BlockListFile, a.opts.DuplicatesListFile} {
		if err := cleanseJSONFile(path); err != nil {
			return nil, fmt.Errorf("indeed: %w", err)
		}
	}

	settings, err := a.writeSettings(q)
	if err != nil {
		return nil, fmt.Errorf("indeed: %w", err)
	}
	defer os.Remove(settings)

	err = retry.Do(ctx, a.policy, a.logger, "indeed jobfunnel", func(ctx context.Context) error {
		out, err := a.run(ctx, a.opts.Binary, "load", "-s", settings)
		if err == nil {
			return nil
		}
		if errors.Is(err, exec.ErrNotFound) {
			return retry.Permanent(fmt.Errorf("%s not installed: %w", a.opts.Binary, err))
		}
		a.logger.Debug("jobfunnel output", "output", string(out))
		return fmt.Errorf("jobfunnel run: %w", err)
	})
	if err != nil {
		return nil, fmt.Errorf("indeed: %w: %w", model.ErrSourceUnavailable, err)
	}

	listings, err := readJobFunnelCSV(a.opts.MasterCSV, known)
	if err != nil {
		return nil, fmt.Errorf("indeed: %w", err)
	}
	a.logger.Debug("indeed fetch complete", "listings", len(listings))
	return listings, nil
}

// writeSettings renders the JobFunnel settings file for this run.
func (a *IndeedAdapter) writeSettings(q model.Query) (string, error) {
	search := make(map[string]any, len(a.opts.Search)+1)
	for k, v := range a.opts.Search {
		search[k] = v
	}
	if q.Lookback > 0 {
		search["max_listing_days"] = lookbackDays(q.Lookback)
	}

	doc := map[string]any{
		"master_csv_file":      a.opts.MasterCSV,
		"cache_folder":         a.opts.CacheFolder,
		"log_file":             a.opts.LogFile,
		"block_list_file":      a.opts.BlockListFile,
		"duplicates_list_file": a.opts.DuplicatesListFile,
		"search":               search,
		"delay":                a.opts.Delay,
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render settings: %w", err)
	}

	f, err := os.CreateTemp(a.opts.WorkDir, "indeed-settings-*.yaml")
	if err != nil {
		return "", fmt.Errorf("create settings file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write settings file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write settings file: %w", err)
	}
	return f.Name(), nil
}

// lookbackDays rounds a window up to whole days, at least one.
func lookbackDays(d time.Duration) int {
	days := int(math.Ceil(d.Hours() / 24))
	if days < 1 {
		days = 1
	}
	return days
}

// cleanseJSONFile makes sure path holds valid JSON, resetting it to an empty
// object when it is missing or corrupt. JobFunnel refuses to start otherwise.
func cleanseJSONFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err == nil && json.Valid(data) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		return fmt.Errorf("reset %s: %w", path, err)
	}
	return nil
}

// readJobFunnelCSV maps the JobFunnel master CSV to listings. A missing file
// means JobFunnel found nothing.
func readJobFunnelCSV(path string, known model.KeySet) ([]model.Listing, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []model.Listing{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []model.Listing{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	if _, ok := col["link"]; !ok {
		return nil, fmt.Errorf("%s has no link column", path)
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	listings := []model.Listing{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		link := field(rec, "link")
		if link == "" || known.Has(link) {
			continue
		}
		listings = append(listings, model.Listing{
			OriginURL:   link,
			Title:       field(rec, "title"),
			Company:     field(rec, "company"),
			Location:    field(rec, "location"),
			PostedDate:  field(rec, "date"),
			Description: field(rec, "blurb"),
			Source:      model.SourceIndeed,
		})
	}
	return listings, nil
}
