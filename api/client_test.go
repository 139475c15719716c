package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(WithAPIKey("test-key"), WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("EVALSIGHT_API_KEY", "")

	if _, err := NewClient(WithEndpoint("http://localhost")); err == nil {
		t.Fatal("expected error without API key")
	}
	if _, err := NewClient(WithAPIKey("k"), WithEndpoint("http://localhost")); err != nil {
		t.Fatalf("NewClient with explicit key: %v", err)
	}

	t.Setenv("EVALSIGHT_API_KEY", "from-env")
	if _, err := NewClient(WithEndpoint("http://localhost")); err != nil {
		t.Fatalf("NewClient with env key: %v", err)
	}
}

func TestListDatasets(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/datasets" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{"datasets":[{"id":"d1","name":"support-tickets"}]}`))
	})

	datasets, err := c.ListDatasets(context.Background())
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(datasets) != 1 || datasets[0].Name != "support-tickets" {
		t.Errorf("datasets = %+v", datasets)
	}
}

func TestDatasetItemsEscapesName(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/datasets/my%20set/items" {
			t.Errorf("path = %s", r.URL.EscapedPath())
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"i1","data":{"q":"hello"}}]}`))
	})

	items, err := c.DatasetItems(context.Background(), "my set")
	if err != nil {
		t.Fatalf("DatasetItems: %v", err)
	}
	if len(items) != 1 || items[0].ID != "i1" {
		t.Errorf("items = %+v", items)
	}
}

func TestTracesFromViewPaging(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/views/v1/traces" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("pageSize"); got != "25" {
			t.Errorf("pageSize = %q", got)
		}
		if got := r.URL.Query().Get("cursor"); got != "abc" {
			t.Errorf("cursor = %q", got)
		}
		_, _ = w.Write([]byte(`{"nextCursor":"def","traces":[{"id":"t1","events":[]}]}`))
	})

	page, err := c.TracesFromView(context.Background(), "v1", 25, "abc")
	if err != nil {
		t.Fatalf("TracesFromView: %v", err)
	}
	if page.NextCursor != "def" || len(page.Traces) != 1 {
		t.Errorf("page = %+v", page)
	}
}

func TestSearchTraces(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/traces/search" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		tf, _ := body["timeFilter"].(map[string]any)
		if tf["type"] != "relative" || tf["hours"] != 2.0 {
			t.Errorf("timeFilter = %v", tf)
		}
		if body["query"] != "refund" {
			t.Errorf("query = %v", body["query"])
		}
		_, _ = w.Write([]byte(`{"traces":[]}`))
	})

	tf := NewRelativeTimeFilter()
	tf.Hours = 2
	if _, err := c.SearchTraces(context.Background(), SearchTracesRequest{
		PageSize:           50,
		RelativeTimeFilter: tf,
		Query:              "refund",
	}); err != nil {
		t.Fatalf("SearchTraces: %v", err)
	}

	if _, err := c.SearchTraces(context.Background(), SearchTracesRequest{PageSize: 50}); err == nil {
		t.Error("expected error without a time filter")
	}
	if _, err := c.SearchTraces(context.Background(), SearchTracesRequest{
		PageSize:           50,
		RelativeTimeFilter: tf,
		AbsoluteTimeFilter: NewAbsoluteTimeFilter("a", "b"),
	}); err == nil {
		t.Error("expected error with both time filters")
	}
}

func TestTestRunsAndResults(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/testing/local/tests/my-suite/runs":
			_, _ = w.Write([]byte(`{"runs":[{"id":"run-1"},{"id":"run-2"}]}`))
		case "/testing/local/runs/run-1/results":
			_, _ = w.Write([]byte(`{"results":[{"id":"res-1"}]}`))
		case "/testing/local/results/res-1":
			_, _ = w.Write([]byte(`{"testCaseResult":{
				"id":"res-1","runId":"run-1","hash":"h1",
				"durationMs":12.5,
				"body":{"q":"hi"},"output":"\"hello\"",
				"evaluations":[{"evaluatorId":"e1","score":1,"passed":true}]
			}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	runs, err := c.TestRuns(ctx, "my-suite")
	if err != nil {
		t.Fatalf("TestRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-1" {
		t.Errorf("runs = %+v", runs)
	}

	ids, err := c.TestRunResultIDs(ctx, "run-1")
	if err != nil {
		t.Fatalf("TestRunResultIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "res-1" {
		t.Errorf("ids = %v", ids)
	}

	res, err := c.TestResult(ctx, "res-1")
	if err != nil {
		t.Fatalf("TestResult: %v", err)
	}
	if res.Hash != "h1" || res.DurationMs == nil || *res.DurationMs != 12.5 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Evaluations) != 1 || res.Evaluations[0].EvaluatorID != "e1" {
		t.Errorf("evaluations = %+v", res.Evaluations)
	}
	if res.Evaluations[0].Passed == nil || !*res.Evaluations[0].Passed {
		t.Errorf("passed = %v", res.Evaluations[0].Passed)
	}
}
