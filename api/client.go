// Package api is a thin client over the Evalsight REST API: datasets,
// trace views, trace search, and recorded test runs.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/stellarlinkco/evalsight-go/internal/env"
	"github.com/stellarlinkco/evalsight-go/internal/transport"
)

// DefaultEndpoint is the hosted Evalsight API.
const DefaultEndpoint = "https://api.evalsight.com"

const defaultTimeout = 10 * time.Second

// Client reads from the Evalsight REST API.
type Client struct {
	http *transport.Client
}

// Option configures a Client.
type Option func(*options)

type options struct {
	apiKey     string
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

// WithAPIKey overrides the EVALSIGHT_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithEndpoint overrides the API base URL.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithTimeout overrides the default 10s per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHTTPClient supplies the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// NewClient builds a Client. The API key falls back to EVALSIGHT_API_KEY
// and the endpoint to EVALSIGHT_API_ENDPOINT.
func NewClient(opts ...Option) (*Client, error) {
	o := options{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	if o.apiKey == "" {
		o.apiKey = env.APIKey.Get()
	}
	if o.apiKey == "" {
		return nil, fmt.Errorf("api: no API key provided; set %s or use WithAPIKey", env.APIKey)
	}
	if o.endpoint == "" {
		o.endpoint = env.APIEndpoint.Get()
	}
	if o.endpoint == "" {
		o.endpoint = DefaultEndpoint
	}

	topts := []transport.Option{transport.WithTimeout(o.timeout)}
	if o.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(o.httpClient))
	}
	return &Client{http: transport.NewClient(o.endpoint, o.apiKey, topts...)}, nil
}

// ListDatasets returns all datasets visible to the API key.
func (c *Client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	var resp struct {
		Datasets []Dataset `json:"datasets"`
	}
	if err := c.http.Get(ctx, "/datasets", &resp); err != nil {
		return nil, fmt.Errorf("api: list datasets: %w", err)
	}
	return resp.Datasets, nil
}

// DatasetItems returns the items of the named dataset.
func (c *Client) DatasetItems(ctx context.Context, name string) ([]DatasetItem, error) {
	if name == "" {
		return nil, errors.New("api: dataset name is required")
	}
	var resp struct {
		Items []DatasetItem `json:"items"`
	}
	if err := c.http.Get(ctx, "/datasets/"+url.PathEscape(name)+"/items", &resp); err != nil {
		return nil, fmt.Errorf("api: dataset %s items: %w", name, err)
	}
	return resp.Items, nil
}

// ListViews returns the saved trace views.
func (c *Client) ListViews(ctx context.Context) ([]View, error) {
	var resp struct {
		Views []View `json:"views"`
	}
	if err := c.http.Get(ctx, "/views", &resp); err != nil {
		return nil, fmt.Errorf("api: list views: %w", err)
	}
	return resp.Views, nil
}

// TracesFromView pages traces from a view. An empty cursor starts from
// the first page.
func (c *Client) TracesFromView(ctx context.Context, viewID string, pageSize int, cursor string) (*TracesPage, error) {
	if viewID == "" {
		return nil, errors.New("api: view id is required")
	}
	q := url.Values{}
	q.Set("pageSize", fmt.Sprint(pageSize))
	q.Set("cursor", cursor)

	var page TracesPage
	path := "/views/" + url.PathEscape(viewID) + "/traces?" + q.Encode()
	if err := c.http.Get(ctx, path, &page); err != nil {
		return nil, fmt.Errorf("api: traces from view %s: %w", viewID, err)
	}
	return &page, nil
}

// SearchTraces searches traces by time window, event filters, and free
// text.
func (c *Client) SearchTraces(ctx context.Context, req SearchTracesRequest) (*TracesPage, error) {
	if (req.RelativeTimeFilter == nil) == (req.AbsoluteTimeFilter == nil) {
		return nil, errors.New("api: exactly one of RelativeTimeFilter or AbsoluteTimeFilter is required")
	}

	// The wire format carries a single polymorphic timeFilter object.
	body := struct {
		SearchTracesRequest
		TimeFilter any `json:"timeFilter"`
	}{SearchTracesRequest: req}
	if req.RelativeTimeFilter != nil {
		body.TimeFilter = req.RelativeTimeFilter
	} else {
		body.TimeFilter = req.AbsoluteTimeFilter
	}

	var page TracesPage
	if err := c.http.Post(ctx, "/traces/search", body, &page); err != nil {
		return nil, fmt.Errorf("api: search traces: %w", err)
	}
	return &page, nil
}

// TestRuns lists the recorded runs of a test suite.
func (c *Client) TestRuns(ctx context.Context, testExternalID string) ([]TestRun, error) {
	if testExternalID == "" {
		return nil, errors.New("api: test suite id is required")
	}
	var resp struct {
		Runs []TestRun `json:"runs"`
	}
	path := "/testing/local/tests/" + url.PathEscape(testExternalID) + "/runs"
	if err := c.http.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("api: runs for %s: %w", testExternalID, err)
	}
	return resp.Runs, nil
}

// TestRunResultIDs lists the result ids recorded for a run.
func (c *Client) TestRunResultIDs(ctx context.Context, runID string) ([]string, error) {
	if runID == "" {
		return nil, errors.New("api: run id is required")
	}
	var resp struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := c.http.Get(ctx, "/testing/local/runs/"+url.PathEscape(runID)+"/results", &resp); err != nil {
		return nil, fmt.Errorf("api: results for run %s: %w", runID, err)
	}
	ids := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		ids[i] = r.ID
	}
	return ids, nil
}

// TestResult fetches one result with its events and evaluations.
func (c *Client) TestResult(ctx context.Context, resultID string) (*TestResult, error) {
	if resultID == "" {
		return nil, errors.New("api: result id is required")
	}
	var resp struct {
		TestCaseResult TestResult `json:"testCaseResult"`
	}
	if err := c.http.Get(ctx, "/testing/local/results/"+url.PathEscape(resultID), &resp); err != nil {
		return nil, fmt.Errorf("api: result %s: %w", resultID, err)
	}
	return &resp.TestCaseResult, nil
}
