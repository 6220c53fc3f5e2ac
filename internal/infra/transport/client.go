package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/syncgate/internal/sync/metrics"
)

// Request describes one outbound call to the remote API.
type Request struct {
	Method string
	Path   string
	Body   any
}

// Fingerprint returns a stable identity for the request, used as a cache key.
func (r *Request) Fingerprint() string {
	var body string
	if r.Body != nil {
		if raw, err := json.Marshal(r.Body); err == nil {
			body = string(raw)
		}
	}
	return fmt.Sprintf("%s %s %s", r.Method, r.Path, body)
}

// Response carries the status and raw body of a successful call.
type Response struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Decode unmarshals the response body into out.
func (r *Response) Decode(out any) error {
	return json.Unmarshal(r.Body, out)
}

// APIError is a terminal remote failure: a non-2xx response that survived
// the retry budget. It is the only error class integration code is
// expected to catch and translate into user-visible messaging.
type APIError struct {
	Status int
	Body   map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote returned %d", e.Status)
}

// newAPIError parses the response body if possible and falls back to an
// empty object. Constructing the error can itself never fail.
func newAPIError(status int, raw []byte) *APIError {
	body := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}
	return &APIError{Status: status, Body: body}
}

// RetryConfig bounds the retry policy around each call.
type RetryConfig struct {
	Attempts     int           `yaml:"attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	Attempts:     3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// Client is the retrying transport. Every attempt passes through the rate
// limiter first, so retries respect the request budget too.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *Limiter
	cfg     RetryConfig
	onRetry func(attempt int, err error)
	log     *slog.Logger
}

// NewClient creates a client for the remote API at baseURL.
func NewClient(baseURL string, timeout time.Duration, limiter *Limiter, cfg RetryConfig, log *slog.Logger) *Client {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultRetryConfig.Attempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: limiter,
		cfg:     cfg,
		log:     log,
	}
}

// SetOnRetry registers a callback invoked after each failed attempt,
// before the next one is scheduled. Useful for backoff telemetry.
func (c *Client) SetOnRetry(fn func(attempt int, err error)) {
	c.onRetry = fn
}

// Send executes the request with rate limiting and bounded retry.
// A 429 response and transport-level failures are retried with capped
// exponential backoff; any other non-2xx becomes a terminal *APIError.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	backoff := retry.WithCappedDuration(c.cfg.MaxDelay, retry.NewExponential(c.cfg.InitialDelay))
	backoff = retry.WithMaxRetries(uint64(c.cfg.Attempts-1), backoff)

	attempt := 0
	var resp *Response

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		r, err := c.attempt(ctx, req)
		if err == nil {
			metrics.RequestAttempts.WithLabelValues("success").Inc()
			resp = r
			return nil
		}

		if !isRetryable(err) {
			metrics.RequestAttempts.WithLabelValues("terminal").Inc()
			return err
		}

		metrics.RequestAttempts.WithLabelValues("retryable").Inc()
		c.log.Debug("attempt failed, will retry",
			"attempt", attempt, "remaining", c.cfg.Attempts-attempt, "error", err)
		if c.onRetry != nil && attempt < c.cfg.Attempts {
			c.onRetry(attempt, err)
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s failed after %d attempt(s): %w", req.Method, req.Path, attempt, err)
	}
	return resp, nil
}

// attempt makes a single rate-limited HTTP call.
func (c *Client) attempt(ctx context.Context, req *Request) (*Response, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("remote call: %w", err)
	}
	defer httpResp.Body.Close()
	metrics.RequestLatency.Observe(time.Since(start).Seconds())

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, newAPIError(httpResp.StatusCode, raw)
	}

	return &Response{Status: httpResp.StatusCode, Body: raw}, nil
}

// isRetryable classifies an attempt failure. Too-many-requests and
// transport-level errors are transient; context cancellation and every
// other remote status are terminal.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests
	}
	return true
}
