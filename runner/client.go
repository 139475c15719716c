package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/stellarlinkco/evalsight-go/internal/env"
	"github.com/stellarlinkco/evalsight-go/internal/transport"
)

// collectorClient posts run telemetry to the local collector hosted by
// the companion CLI. When no collector address is configured the runner
// is in debug mode: every post degrades to a local log line.
type collectorClient struct {
	http    *transport.Client
	enabled bool
}

func newCollectorClient(ctx context.Context, addr string) *collectorClient {
	if addr == "" {
		addr = env.CLIServerAddress.Get()
	}
	if addr == "" {
		clog.FromContext(ctx).Warn(
			"running in debug mode: no collector is configured, results will not be reported; " +
				"run under `evalsight serve` and set " + string(env.CLIServerAddress))
		return &collectorClient{}
	}
	return &collectorClient{
		enabled: true,
		http: transport.NewClient(addr, env.CLIServerToken.Get(),
			transport.WithTimeout(30*time.Second)),
	}
}

func (c *collectorClient) cliActive() bool {
	return c.enabled
}

type startRequest struct {
	TestExternalID        string         `json:"testExternalId"`
	GridSearchRunGroupID  string         `json:"gridSearchRunGroupId,omitempty"`
	GridSearchParamsCombo map[string]any `json:"gridSearchParamsCombo,omitempty"`
}

type idResponse struct {
	ID string `json:"id"`
}

// start registers a new run and returns its server-issued id.
func (c *collectorClient) start(ctx context.Context, testID, gridGroupID string, combo map[string]any) (string, error) {
	req := startRequest{
		TestExternalID:        testID,
		GridSearchRunGroupID:  gridGroupID,
		GridSearchParamsCombo: combo,
	}
	if !c.enabled {
		c.debug(ctx, "/start", req)
		return "", nil
	}
	var resp idResponse
	if err := c.http.Post(ctx, "/start", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

type gridsRequest struct {
	TestExternalID   string           `json:"testExternalId"`
	GridSearchParams map[string][]any `json:"gridSearchParams"`
}

// grids registers a grid-search run group and returns its id.
func (c *collectorClient) grids(ctx context.Context, testID string, params map[string][]any) (string, error) {
	req := gridsRequest{TestExternalID: testID, GridSearchParams: params}
	if !c.enabled {
		c.debug(ctx, "/grids", req)
		return "", nil
	}
	var resp idResponse
	if err := c.http.Post(ctx, "/grids", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

type resultPayload struct {
	TestExternalID     string          `json:"testExternalId"`
	RunID              string          `json:"runId,omitempty"`
	TestCaseHash       string          `json:"testCaseHash"`
	TestCaseBody       json.RawMessage `json:"testCaseBody"`
	TestCaseOutput     json.RawMessage `json:"testCaseOutput"`
	TestCaseDurationMs float64         `json:"testCaseDurationMs"`
}

func (c *collectorClient) postResult(ctx context.Context, payload resultPayload) error {
	if !c.enabled {
		c.debug(ctx, "/results", payload)
		return nil
	}
	return c.http.Post(ctx, "/results", payload, nil)
}

type evalPayload struct {
	TestExternalID      string          `json:"testExternalId"`
	RunID               string          `json:"runId,omitempty"`
	TestCaseHash        string          `json:"testCaseHash"`
	EvaluatorExternalID string          `json:"evaluatorExternalId"`
	Score               float64         `json:"score"`
	Threshold           *Threshold      `json:"threshold,omitempty"`
	Metadata            map[string]any  `json:"metadata,omitempty"`
	Assertions          json.RawMessage `json:"assertions,omitempty"`
}

func (c *collectorClient) postEval(ctx context.Context, payload evalPayload) error {
	if !c.enabled {
		c.debug(ctx, "/evals", payload)
		return nil
	}
	return c.http.Post(ctx, "/evals", payload, nil)
}

type errorPayload struct {
	TestExternalID      string       `json:"testExternalId"`
	RunID               string       `json:"runId,omitempty"`
	TestCaseHash        string       `json:"testCaseHash,omitempty"`
	EvaluatorExternalID string       `json:"evaluatorExternalId,omitempty"`
	Error               errorDetails `json:"error"`
}

type errorDetails struct {
	Name       string `json:"name"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace"`
}

// postError reports a test-case or evaluator failure. Failures to report
// are logged locally and swallowed; the error path must never cascade.
func (c *collectorClient) postError(ctx context.Context, testID, runID, testCaseHash, evaluatorID string, cause error) {
	log := clog.FromContext(ctx).With("test_id", testID).
		With("test_case_hash", testCaseHash).
		With("evaluator_id", evaluatorID)

	if !c.enabled {
		log.Errorf("test failure (unreported, debug mode): %v", cause)
		return
	}

	payload := errorPayload{
		TestExternalID:      testID,
		RunID:               runID,
		TestCaseHash:        testCaseHash,
		EvaluatorExternalID: evaluatorID,
		Error: errorDetails{
			Name:       errorName(cause),
			Message:    errorMessage(cause),
			Stacktrace: string(debug.Stack()),
		},
	}
	if err := c.http.Post(ctx, "/errors", payload, nil); err != nil {
		log.Warnf("failed to report error (%v): original error: %v", err, cause)
	}
}

// end closes a run. Always attempted; its own failure is only logged.
func (c *collectorClient) end(ctx context.Context, testID, runID string) {
	payload := map[string]string{"testExternalId": testID, "runId": runID}
	if !c.enabled {
		c.debug(ctx, "/end", payload)
		return
	}
	if err := c.http.Post(ctx, "/end", payload, nil); err != nil {
		clog.FromContext(ctx).With("test_id", testID).With("run_id", runID).
			Warnf("failed to end run: %v", err)
	}
}

func (c *collectorClient) debug(ctx context.Context, path string, payload any) {
	encoded, _ := json.Marshal(payload)
	clog.FromContext(ctx).Debugf("%s: %s", path, encoded)
}

// toJSON serializes an arbitrary test case or output for reporting.
// Non-serializable values degrade to their string rendering.
func toJSON(v any) json.RawMessage {
	encoded, err := json.Marshal(v)
	if err != nil {
		encoded, _ = json.Marshal(fmt.Sprint(v))
	}
	return encoded
}
