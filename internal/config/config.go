package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobinbox/internal/filter"
	"github.com/amishk599/jobinbox/internal/model"
)

const (
	defaultDatabaseURL = "sqlite://jobinbox.db"
	defaultOwner       = "default"
	defaultAddr        = ":8080"
	defaultLookback    = 7 * 24 * time.Hour
	defaultPages       = 3
	slackWebhookPrefix = "https://hooks.slack.com/"
)

// Config is the root configuration for jobinbox.
type Config struct {
	Database         DatabaseConfig
	Owner            string `validate:"required"`
	HTTP             HTTPConfig
	Retry            RetryConfig
	RateLimit        RateLimitConfig
	FetchConcurrency int `validate:"gte=1,lte=8"`
	Filters          filter.Rules
	Sources          SourcesConfig
	Notification     NotificationConfig
	Schedule         ScheduleConfig
	Server           ServerConfig
}

type DatabaseConfig struct {
	URL string `validate:"required"`
}

// HTTPConfig applies to every request a source makes.
type HTTPConfig struct {
	Timeout time.Duration `validate:"gt=0"`
	Headers map[string]string
	Proxy   string `validate:"omitempty,url"`
}

// RetryConfig controls retries of transient source and webhook failures.
type RetryConfig struct {
	Attempts   int           `validate:"gte=1,lte=10"`
	Delay      time.Duration `validate:"gte=0"`
	Multiplier float64       `validate:"gte=0"`
	Jitter     float64       `validate:"gte=0,lte=1"`
}

// RateLimitConfig spaces out requests to the same source.
type RateLimitConfig struct {
	MinDelay        time.Duration
	SourceOverrides map[model.Source]time.Duration
}

// MinDelayFor returns the configured delay for src, falling back to MinDelay.
func (r RateLimitConfig) MinDelayFor(src model.Source) time.Duration {
	if d, ok := r.SourceOverrides[src]; ok {
		return d
	}
	return r.MinDelay
}

// SourcesConfig holds one section per source.
type SourcesConfig struct {
	LinkedIn   LinkedInConfig
	Indeed     IndeedConfig
	Greenhouse BoardsConfig
	Lever      BoardsConfig
}

type LinkedInConfig struct {
	Enabled           bool
	Searches          []model.Search
	Pages             int           `validate:"gte=1,lte=40"`
	Lookback          time.Duration `validate:"gt=0"`
	GeoID             string
	FetchDescriptions bool
	Filters           *filter.Rules // replaces the global rules when set
}

// IndeedConfig drives the external JobFunnel scraper.
type IndeedConfig struct {
	Enabled            bool
	Binary             string
	WorkDir            string
	MasterCSV          string `validate:"required_if=Enabled true"`
	CacheFolder        string
	LogFile            string
	BlockListFile      string
	DuplicatesListFile string
	Search             map[string]any
	Delay              map[string]any
	Lookback           time.Duration `validate:"gt=0"`
	Filters            *filter.Rules
}

// BoardsConfig lists the company boards of a hosted ATS.
type BoardsConfig struct {
	Enabled  bool
	Boards   []BoardConfig `validate:"dive"`
	Lookback time.Duration `validate:"gt=0"`
	Filters  *filter.Rules
}

type BoardConfig struct {
	Token   string `yaml:"token" validate:"required"`
	Company string `yaml:"company"`
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type       string `yaml:"type" validate:"omitempty,oneof=log slack none"`
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

// ScheduleConfig triggers runs from serve on a cron expression.
type ScheduleConfig struct {
	Cron       string
	RunOnStart bool
	Request    model.RunRequest
}

type ServerConfig struct {
	Addr        string `validate:"required"`
	CORSOrigins []string
}

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Owner            string             `yaml:"owner"`
	HTTP             rawHTTPConfig      `yaml:"http"`
	Retry            rawRetryConfig     `yaml:"retry"`
	RateLimit        rawRateLimitConfig `yaml:"rate_limit"`
	FetchConcurrency int                `yaml:"fetch_concurrency"`
	Filters          filter.Rules       `yaml:"filters"`
	Sources          rawSourcesConfig   `yaml:"sources"`
	Notification     NotificationConfig `yaml:"notification"`
	Schedule         rawScheduleConfig  `yaml:"schedule"`
	Server           struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
}

type rawHTTPConfig struct {
	Timeout string            `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
	Proxy   string            `yaml:"proxy"`
}

type rawRetryConfig struct {
	Attempts   int     `yaml:"attempts"`
	Delay      string  `yaml:"delay"`
	Multiplier float64 `yaml:"multiplier"`
	Jitter     float64 `yaml:"jitter"`
}

type rawRateLimitConfig struct {
	MinDelay        string            `yaml:"min_delay"`
	SourceOverrides map[string]string `yaml:"source_overrides"`
}

type rawSourcesConfig struct {
	LinkedIn   rawLinkedInConfig `yaml:"linkedin"`
	Indeed     rawIndeedConfig   `yaml:"indeed"`
	Greenhouse rawBoardsConfig   `yaml:"greenhouse"`
	Lever      rawBoardsConfig   `yaml:"lever"`
}

type rawSearch struct {
	Keywords string `yaml:"keywords"`
	Location string `yaml:"location"`
	Remote   bool   `yaml:"remote"`
}

type rawLinkedInConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Searches          []rawSearch   `yaml:"searches"`
	Pages             int           `yaml:"pages"`
	Lookback          string        `yaml:"lookback"`
	GeoID             string        `yaml:"geo_id"`
	FetchDescriptions bool          `yaml:"fetch_descriptions"`
	Filters           *filter.Rules `yaml:"filters"`
}

type rawIndeedConfig struct {
	Enabled            bool           `yaml:"enabled"`
	Binary             string         `yaml:"binary"`
	WorkDir            string         `yaml:"work_dir"`
	MasterCSV          string         `yaml:"master_csv_file"`
	CacheFolder        string         `yaml:"cache_folder"`
	LogFile            string         `yaml:"log_file"`
	BlockListFile      string         `yaml:"block_list_file"`
	DuplicatesListFile string         `yaml:"duplicates_list_file"`
	Search             map[string]any `yaml:"search"`
	Delay              map[string]any `yaml:"delay"`
	Lookback           string         `yaml:"lookback"`
	Filters            *filter.Rules  `yaml:"filters"`
}

type rawBoardsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Boards   []BoardConfig `yaml:"boards"`
	Lookback string        `yaml:"lookback"`
	Filters  *filter.Rules `yaml:"filters"`
}

type rawScheduleConfig struct {
	Cron       string   `yaml:"cron"`
	RunOnStart bool     `yaml:"run_on_start"`
	Sources    []string `yaml:"sources"`
	Window     string   `yaml:"window"`
	Management string   `yaml:"management"`
}

// Load reads and parses the YAML config file at path, applies defaults,
// validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg, err := build(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func build(raw rawConfig) (*Config, error) {
	cfg := &Config{
		Database:         DatabaseConfig{URL: orDefault(raw.Database.URL, defaultDatabaseURL)},
		Owner:            orDefault(raw.Owner, defaultOwner),
		FetchConcurrency: raw.FetchConcurrency,
		Filters:          raw.Filters,
		Notification:     raw.Notification,
		Server: ServerConfig{
			Addr:        orDefault(raw.Server.Addr, defaultAddr),
			CORSOrigins: raw.Server.CORSOrigins,
		},
	}
	if cfg.FetchConcurrency == 0 {
		cfg.FetchConcurrency = 2
	}
	if cfg.Notification.Type == "" {
		cfg.Notification.Type = "log"
	}

	var err error
	cfg.HTTP = HTTPConfig{Headers: raw.HTTP.Headers, Proxy: raw.HTTP.Proxy}
	if cfg.HTTP.Timeout, err = parseDuration("http.timeout", raw.HTTP.Timeout, 30*time.Second); err != nil {
		return nil, err
	}

	cfg.Retry = RetryConfig{Attempts: raw.Retry.Attempts, Multiplier: raw.Retry.Multiplier, Jitter: raw.Retry.Jitter}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.Delay, err = parseDuration("retry.delay", raw.Retry.Delay, time.Second); err != nil {
		return nil, err
	}

	if cfg.RateLimit.MinDelay, err = parseDuration("rate_limit.min_delay", raw.RateLimit.MinDelay, 2*time.Second); err != nil {
		return nil, err
	}
	cfg.RateLimit.SourceOverrides = make(map[model.Source]time.Duration)
	for name, v := range raw.RateLimit.SourceOverrides {
		src, ok := model.ParseSource(name)
		if !ok {
			return nil, fmt.Errorf("rate_limit.source_overrides: unknown source %q", name)
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse rate_limit.source_overrides[%q]: %w", name, err)
		}
		cfg.RateLimit.SourceOverrides[src] = d
	}

	if err := buildSources(cfg, raw.Sources); err != nil {
		return nil, err
	}
	if err := buildSchedule(cfg, raw.Schedule); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildSources(cfg *Config, raw rawSourcesConfig) error {
	var err error

	li := raw.LinkedIn
	cfg.Sources.LinkedIn = LinkedInConfig{
		Enabled:           li.Enabled,
		Pages:             li.Pages,
		GeoID:             li.GeoID,
		FetchDescriptions: li.FetchDescriptions,
		Filters:           li.Filters,
	}
	if cfg.Sources.LinkedIn.Pages == 0 {
		cfg.Sources.LinkedIn.Pages = defaultPages
	}
	for _, s := range li.Searches {
		cfg.Sources.LinkedIn.Searches = append(cfg.Sources.LinkedIn.Searches, model.Search(s))
	}
	if cfg.Sources.LinkedIn.Lookback, err = parseWindow("sources.linkedin.lookback", li.Lookback); err != nil {
		return err
	}

	in := raw.Indeed
	cfg.Sources.Indeed = IndeedConfig{
		Enabled:            in.Enabled,
		Binary:             in.Binary,
		WorkDir:            in.WorkDir,
		MasterCSV:          in.MasterCSV,
		CacheFolder:        in.CacheFolder,
		LogFile:            in.LogFile,
		BlockListFile:      in.BlockListFile,
		DuplicatesListFile: in.DuplicatesListFile,
		Search:             in.Search,
		Delay:              in.Delay,
		Filters:            in.Filters,
	}
	if cfg.Sources.Indeed.Lookback, err = parseWindow("sources.indeed.lookback", in.Lookback); err != nil {
		return err
	}

	if cfg.Sources.Greenhouse, err = buildBoards("greenhouse", raw.Greenhouse); err != nil {
		return err
	}
	if cfg.Sources.Lever, err = buildBoards("lever", raw.Lever); err != nil {
		return err
	}
	return nil
}

func buildBoards(name string, raw rawBoardsConfig) (BoardsConfig, error) {
	b := BoardsConfig{Enabled: raw.Enabled, Filters: raw.Filters}
	for _, board := range raw.Boards {
		if board.Company == "" {
			board.Company = board.Token
		}
		b.Boards = append(b.Boards, board)
	}
	var err error
	b.Lookback, err = parseWindow("sources."+name+".lookback", raw.Lookback)
	return b, err
}

func buildSchedule(cfg *Config, raw rawScheduleConfig) error {
	cfg.Schedule = ScheduleConfig{Cron: strings.TrimSpace(raw.Cron), RunOnStart: raw.RunOnStart}

	req := &cfg.Schedule.Request
	for _, name := range raw.Sources {
		src, ok := model.ParseSource(name)
		if !ok {
			return fmt.Errorf("schedule.sources: unknown source %q", name)
		}
		req.Sources = append(req.Sources, src)
	}
	window, err := model.ParseWindow(raw.Window)
	if err != nil {
		return fmt.Errorf("parse schedule.window: %w", err)
	}
	req.Window = window
	req.WindowLabel = raw.Window

	mgmt, ok := model.ParseManagement(raw.Management)
	if !ok {
		return fmt.Errorf("schedule.management: unknown option %q", raw.Management)
	}
	req.Management = mgmt
	return nil
}

// Validate checks field constraints and cross-field rules.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if len(cfg.EnabledSources()) == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}
	if cfg.Sources.LinkedIn.Enabled && len(cfg.Sources.LinkedIn.Searches) == 0 {
		return fmt.Errorf("sources.linkedin.searches must not be empty when linkedin is enabled")
	}
	for name, b := range map[string]BoardsConfig{"greenhouse": cfg.Sources.Greenhouse, "lever": cfg.Sources.Lever} {
		if b.Enabled && len(b.Boards) == 0 {
			return fmt.Errorf("sources.%s.boards must not be empty when %s is enabled", name, name)
		}
	}

	if cfg.Notification.Type == "slack" {
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, slackWebhookPrefix) {
			return fmt.Errorf("notification.webhook_url must start with %s", slackWebhookPrefix)
		}
	}
	return nil
}

// EnabledSources lists enabled sources in precedence order.
func (c *Config) EnabledSources() []model.Source {
	enabled := map[model.Source]bool{
		model.SourceLinkedIn:   c.Sources.LinkedIn.Enabled,
		model.SourceIndeed:     c.Sources.Indeed.Enabled,
		model.SourceGreenhouse: c.Sources.Greenhouse.Enabled,
		model.SourceLever:      c.Sources.Lever.Enabled,
	}
	var out []model.Source
	for _, src := range model.AllSources {
		if enabled[src] {
			out = append(out, src)
		}
	}
	return out
}

// FiltersFor returns the rules applied to src: its own section's rules when
// present, otherwise the global ones.
func (c *Config) FiltersFor(src model.Source) filter.Rules {
	var override *filter.Rules
	switch src {
	case model.SourceLinkedIn:
		override = c.Sources.LinkedIn.Filters
	case model.SourceIndeed:
		override = c.Sources.Indeed.Filters
	case model.SourceGreenhouse:
		override = c.Sources.Greenhouse.Filters
	case model.SourceLever:
		override = c.Sources.Lever.Filters
	}
	if override != nil {
		return *override
	}
	return c.Filters
}

// Query returns the default fetch request for src.
func (c *Config) Query(src model.Source) model.Query {
	switch src {
	case model.SourceLinkedIn:
		li := c.Sources.LinkedIn
		return model.Query{Searches: li.Searches, Lookback: li.Lookback, Pages: li.Pages}
	case model.SourceIndeed:
		return model.Query{Lookback: c.Sources.Indeed.Lookback}
	case model.SourceGreenhouse:
		return model.Query{Lookback: c.Sources.Greenhouse.Lookback}
	case model.SourceLever:
		return model.Query{Lookback: c.Sources.Lever.Lookback}
	}
	return model.Query{Lookback: defaultLookback}
}

// Queries returns the default query of every enabled source.
func (c *Config) Queries() map[model.Source]model.Query {
	out := make(map[model.Source]model.Query)
	for _, src := range c.EnabledSources() {
		out[src] = c.Query(src)
	}
	return out
}

func parseDuration(field, v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, v, err)
	}
	return d, nil
}

// parseWindow accepts the same forms as a run window, e.g. "7d" or "2 weeks".
func parseWindow(field, v string) (time.Duration, error) {
	if v == "" {
		return defaultLookback, nil
	}
	d, err := model.ParseWindow(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
