package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
	"github.com/amishk599/jobinbox/internal/retry"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// maxListed caps how many listings are spelled out in one message.
const maxListed = 10

// SlackNotifier posts a run summary to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	policy     retry.Policy
	timeout    time.Duration
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts one message per run.
// Rate limited and 5xx responses are retried according to policy.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, policy retry.Policy, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		policy:     policy,
		timeout:    30 * time.Second,
		logger:     logger,
	}
}

// Notify sends a single Block Kit message listing up to ten new listings.
// Runs with nothing new are not announced.
func (s *SlackNotifier) Notify(run model.Run, listings []model.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	body, err := json.Marshal(buildPayload(run, listings))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err = retry.Do(ctx, s.policy, s.logger, "slack", func(ctx context.Context) error {
		return s.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	s.logger.Info("slack message sent", "run_id", run.ID, "listings", len(listings))
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: time.Duration(secs) * time.Second,
		}
	}
	return nil
}

// Block Kit payload types.

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style,omitempty"`
}

// SendTestMessage sends a sample run summary to verify the integration works.
func SendTestMessage(n model.Notifier) error {
	run := model.Run{
		ID:             "test-run",
		Owner:          "default",
		SourceFilter:   "all",
		NewRecordCount: 1,
		Status:         model.RunSucceeded,
	}
	listing := model.Listing{
		OriginURL:  "https://www.linkedin.com/jobs/view/0/",
		Title:      "Test Notification: Integration Verified",
		Company:    "jobinbox",
		Location:   "Everywhere",
		PostedDate: time.Now().Format(time.DateOnly),
		Source:     model.SourceLinkedIn,
	}
	return n.Notify(run, []model.Listing{listing})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func buildPayload(run model.Run, listings []model.Listing) slackPayload {
	headline := fmt.Sprintf("%d new job listings", run.NewRecordCount)
	if run.NewRecordCount == 1 {
		headline = "1 new job listing"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "📥 " + headline},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Sources:*\n" + run.SourceFilter},
				{Type: "mrkdwn", Text: "*Window:*\n" + orDefault(run.RequestedWindow, "Configured")},
			},
		},
		{Type: "divider"},
	}

	shown := listings
	if len(shown) > maxListed {
		shown = shown[:maxListed]
	}
	for _, l := range shown {
		line := fmt.Sprintf("*<%s|%s>*\n%s · %s · %s", l.OriginURL, l.Title, capitalize(l.Company), orDefault(l.Location, "Unknown"), capitalize(string(l.Source)))
		if l.PostedDate != "" {
			line += " · posted " + l.PostedDate
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: line},
		})
	}

	if rest := len(listings) - len(shown); rest > 0 {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("_…and %d more in your inbox_", rest)},
		})
	}

	return slackPayload{Text: headline, Blocks: blocks}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
