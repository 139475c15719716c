// Package transport provides the bearer-authenticated JSON HTTP client
// shared by the SDK's API, ingestion, and collector clients.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
)

const (
	defaultMaxAttempts = 3
	defaultRetryBase   = time.Second
	defaultRetryCap    = 30 * time.Second
	defaultTimeout     = 30 * time.Second
)

// Client posts and fetches JSON against one base URL with a fixed bearer
// token. Transient failures (429, 5xx, network errors) are retried with
// randomized exponential backoff; the final error propagates to the caller.
type Client struct {
	baseURL     string
	authToken   string
	httpClient  *http.Client
	maxAttempts int
	retryBase   time.Duration
	retryCap    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if c == nil || hc == nil {
			return
		}
		c.httpClient = hc
	}
}

// WithTimeout sets the per-call timeout on the underlying HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c == nil || timeout <= 0 {
			return
		}
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// WithMaxAttempts sets the total number of attempts per call.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if c == nil || n < 1 {
			return
		}
		c.maxAttempts = n
	}
}

// WithRetryBackoff sets the base and cap of the retry backoff.
func WithRetryBackoff(base, cap time.Duration) Option {
	return func(c *Client) {
		if c == nil {
			return
		}
		if base > 0 {
			c.retryBase = base
		}
		if cap > 0 {
			c.retryCap = cap
		}
	}
}

// NewClient constructs a Client for the given base URL and bearer token.
func NewClient(baseURL, authToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		authToken:   strings.TrimSpace(authToken),
		httpClient:  &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		retryBase:   defaultRetryBase,
		retryCap:    defaultRetryCap,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Error formats the API error string.
func (e *APIError) Error() string {
	if e == nil {
		return "transport: api error <nil>"
	}
	msg := strings.TrimSpace(string(e.Body))
	if msg == "" {
		return fmt.Sprintf("transport: api error (%s)", e.Status)
	}
	return fmt.Sprintf("transport: api error (%s): %s", e.Status, msg)
}

// Get issues a GET to path and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with the JSON-encoded body and decodes the response
// into out when out is non-nil.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c == nil {
		return errors.New("transport: nil client")
	}
	if ctx == nil {
		return errors.New("transport: nil context")
	}

	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("transport: encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryDelay(c.retryBase, c.retryCap, attempt-1)
			clog.FromContext(ctx).With("method", method).
				With("path", path).
				With("attempt", attempt+1).
				With("backoff", delay).
				Warnf("retrying after transient failure: %v", lastErr)
			if err := sleepWithContext(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = c.once(ctx, method, path, encoded, out)
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("transport: new request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("transport: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       respBody,
		}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("transport: decode response: %w", err)
	}
	return nil
}

func shouldRetry(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Network-level failures are worth another attempt.
	return true
}

func retryDelay(base, cap time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = defaultRetryBase
	}
	delay := base << attempt
	if cap > 0 && delay > cap {
		delay = cap
	}
	// Randomize within [delay/2, delay] to avoid herding.
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
