package adapter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/amishk599/jobinbox/internal/model"
	"github.com/amishk599/jobinbox/internal/ratelimit"
	"github.com/amishk599/jobinbox/internal/retry"
)

const maxBodyBytes = 10 << 20

// ClientOptions configures the HTTP client shared by all web sources.
type ClientOptions struct {
	Timeout time.Duration
	Headers map[string]string
	Proxy   string // optional proxy URL for every source request
	Limiter *ratelimit.SourceLimiter
	Retry   retry.Policy
	Logger  *slog.Logger
}

// Client issues GET requests on behalf of a source. Every attempt waits on
// the source's rate limiter; transient failures are retried per the policy.
type Client struct {
	http    *http.Client
	headers map[string]string
	limiter *ratelimit.SourceLimiter
	policy  retry.Policy
	logger  *slog.Logger
}

// NewClient builds a Client from opts.
func NewClient(opts ClientOptions) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", opts.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		http:    &http.Client{Timeout: timeout, Transport: transport},
		headers: opts.Headers,
		limiter: opts.Limiter,
		policy:  opts.Retry,
		logger:  logger,
	}, nil
}

// Get fetches rawURL and returns the response body. Non-200 responses are
// returned as *model.HTTPError.
func (c *Client) Get(ctx context.Context, src model.Source, rawURL string) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, c.policy, c.logger, string(src)+" GET", func(ctx context.Context) error {
		b, err := c.getOnce(ctx, src, rawURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) getOnce(ctx context.Context, src model.Source, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, src); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%s request %s: %w", src, rawURL, err))
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s fetch %s: %w", src, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s fetch %s: unexpected status %d", src, rawURL, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s read %s: %w", src, rawURL, err)
	}
	return body, nil
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
