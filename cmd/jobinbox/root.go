package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobinbox/internal/adapter"
	"github.com/amishk599/jobinbox/internal/config"
	"github.com/amishk599/jobinbox/internal/filter"
	"github.com/amishk599/jobinbox/internal/ingest"
	"github.com/amishk599/jobinbox/internal/metrics"
	"github.com/amishk599/jobinbox/internal/model"
	"github.com/amishk599/jobinbox/internal/notifier"
	"github.com/amishk599/jobinbox/internal/poller"
	"github.com/amishk599/jobinbox/internal/ratelimit"
	"github.com/amishk599/jobinbox/internal/retry"
	"github.com/amishk599/jobinbox/internal/status"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobinbox",
	Short: "Collect job listings into one inbox",
	Long:  "jobinbox pulls listings from LinkedIn, Indeed, Greenhouse and Lever, filters and deduplicates them, and tracks your applications.",
	// Default to `serve` so that `jobinbox` with no args runs the service.
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBINBOX_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: --config flag > JOBINBOX_CONFIG env var > "./config.yaml".
// DATABASE_URL, JOBINBOX_ADDR and JOBINBOX_OWNER override the file.
func loadConfig(path string) (*config.Config, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(env.ResolvePath(path))
	if err != nil {
		return nil, err
	}
	env.Apply(cfg)
	return cfg, nil
}

// mustLoadConfig loads the config or exits, logging the reason.
func mustLoadConfig(logger *slog.Logger) *config.Config {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func retryPolicy(cfg *config.Config) retry.Policy {
	p := retry.Fixed(cfg.Retry.Attempts, cfg.Retry.Delay)
	p.Multiplier = cfg.Retry.Multiplier
	p.Jitter = cfg.Retry.Jitter
	return p
}

func setupNotifier(cfg *config.Config, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		httpClient := &http.Client{Timeout: 30 * time.Second}
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, retryPolicy(cfg), logger)
	case "none":
		return nil
	default:
		return notifier.NewLogNotifier(logger)
	}
}

func toBoards(in []config.BoardConfig) []adapter.Board {
	out := make([]adapter.Board, len(in))
	for i, b := range in {
		out[i] = adapter.Board{Token: b.Token, Company: b.Company}
	}
	return out
}

// createSource builds the adapter for an enabled source.
func createSource(cfg *config.Config, src model.Source, client *adapter.Client, logger *slog.Logger) (model.ListingSource, error) {
	switch src {
	case model.SourceLinkedIn:
		li := cfg.Sources.LinkedIn
		return adapter.NewLinkedInAdapter(client, adapter.LinkedInOptions{
			GeoID:             li.GeoID,
			FetchDescriptions: li.FetchDescriptions,
		}, logger), nil
	case model.SourceIndeed:
		in := cfg.Sources.Indeed
		return adapter.NewIndeedAdapter(adapter.IndeedOptions{
			Binary:             in.Binary,
			WorkDir:            in.WorkDir,
			MasterCSV:          in.MasterCSV,
			CacheFolder:        in.CacheFolder,
			LogFile:            in.LogFile,
			BlockListFile:      in.BlockListFile,
			DuplicatesListFile: in.DuplicatesListFile,
			Search:             in.Search,
			Delay:              in.Delay,
		}, retryPolicy(cfg), logger), nil
	case model.SourceGreenhouse:
		return adapter.NewGreenhouseAdapter(toBoards(cfg.Sources.Greenhouse.Boards), client, logger), nil
	case model.SourceLever:
		return adapter.NewLeverAdapter(toBoards(cfg.Sources.Lever.Boards), client, logger), nil
	}
	return nil, fmt.Errorf("unsupported source %q", src)
}

// buildPollers wires every enabled source with its filter, in precedence order.
func buildPollers(cfg *config.Config, logger *slog.Logger) ([]ingest.Poller, error) {
	limiter := ratelimit.NewSourceLimiter(cfg.RateLimit.MinDelay, cfg.RateLimit.SourceOverrides)
	client, err := adapter.NewClient(adapter.ClientOptions{
		Timeout: cfg.HTTP.Timeout,
		Headers: cfg.HTTP.Headers,
		Proxy:   cfg.HTTP.Proxy,
		Limiter: limiter,
		Retry:   retryPolicy(cfg),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	var pollers []ingest.Poller
	for _, src := range cfg.EnabledSources() {
		source, err := createSource(cfg, src, client, logger)
		if err != nil {
			return nil, err
		}
		p := poller.NewSourcePoller(source, filter.New(cfg.FiltersFor(src)), logger)
		pollers = append(pollers, p)
		logger.Debug("registered source", "source", src, "min_delay", limiter.DelayFor(src))
	}
	return pollers, nil
}

// newOrchestrator assembles the run pipeline on top of st.
func newOrchestrator(ctx context.Context, cfg *config.Config, st ingest.Store, m *metrics.Metrics, logger *slog.Logger) (*ingest.Orchestrator, error) {
	pollers, err := buildPollers(cfg, logger)
	if err != nil {
		return nil, err
	}
	return ingest.New(ctx, ingest.Options{
		Pollers:     pollers,
		Queries:     cfg.Queries(),
		Store:       st,
		Tracker:     status.NewTracker(),
		Notifier:    setupNotifier(cfg, logger),
		Metrics:     m,
		Owner:       cfg.Owner,
		Concurrency: cfg.FetchConcurrency,
		Logger:      logger,
	}), nil
}
