package api

import "encoding/json"

// Dataset is a managed dataset summary.
type Dataset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// DatasetItem is one row of a dataset.
type DatasetItem struct {
	ID         string          `json:"id"`
	RevisionID string          `json:"revisionId,omitempty"`
	Splits     []string        `json:"splits,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// View is a saved trace view.
type View struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event is a single ingested event within a trace.
type Event struct {
	ID         string         `json:"id"`
	TraceID    string         `json:"traceId"`
	Message    string         `json:"message"`
	Timestamp  string         `json:"timestamp"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Trace is an ordered group of events sharing a trace id.
type Trace struct {
	ID     string  `json:"id"`
	Events []Event `json:"events"`
}

// TracesPage is one page of traces plus the cursor for the next page.
// An empty NextCursor means the last page.
type TracesPage struct {
	NextCursor string  `json:"nextCursor,omitempty"`
	Traces     []Trace `json:"traces"`
}

// RelativeTimeFilter selects traces within a trailing window.
type RelativeTimeFilter struct {
	Type    string  `json:"type"`
	Seconds float64 `json:"seconds,omitempty"`
	Minutes float64 `json:"minutes,omitempty"`
	Hours   float64 `json:"hours,omitempty"`
	Days    float64 `json:"days,omitempty"`
	Weeks   float64 `json:"weeks,omitempty"`
	Months  float64 `json:"months,omitempty"`
	Years   float64 `json:"years,omitempty"`
}

// NewRelativeTimeFilter fills in the wire discriminator.
func NewRelativeTimeFilter() *RelativeTimeFilter {
	return &RelativeTimeFilter{Type: "relative"}
}

// AbsoluteTimeFilter selects traces between two RFC 3339 timestamps.
type AbsoluteTimeFilter struct {
	Type  string `json:"type"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// NewAbsoluteTimeFilter fills in the wire discriminator.
func NewAbsoluteTimeFilter(start, end string) *AbsoluteTimeFilter {
	return &AbsoluteTimeFilter{Type: "absolute", Start: start, End: end}
}

// EventFilter matches a single event property.
type EventFilter struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Operator string `json:"operator"`
}

// TraceFilter matches traces whose events satisfy the given filters.
type TraceFilter struct {
	Operator     string        `json:"operator"`
	EventFilters []EventFilter `json:"eventFilters"`
}

// SearchTracesRequest is the body of a trace search. Exactly one of
// RelativeTimeFilter or AbsoluteTimeFilter must be set.
type SearchTracesRequest struct {
	PageSize           int                 `json:"pageSize"`
	RelativeTimeFilter *RelativeTimeFilter `json:"-"`
	AbsoluteTimeFilter *AbsoluteTimeFilter `json:"-"`
	TraceFilters       []TraceFilter       `json:"traceFilters,omitempty"`
	Query              string              `json:"query,omitempty"`
	Cursor             string              `json:"cursor,omitempty"`
}

// TestRun is a completed run of a test suite.
type TestRun struct {
	ID string `json:"id"`
}

// Threshold mirrors the pass criteria attached to an evaluation.
type Threshold struct {
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
}

// Assertion is one criterion checked by an evaluator.
type Assertion struct {
	Criterion string         `json:"criterion"`
	Passed    bool           `json:"passed"`
	Required  bool           `json:"required"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Evaluation is an evaluator's verdict attached to a test result.
type Evaluation struct {
	EvaluatorID string         `json:"evaluatorId"`
	Score       float64        `json:"score"`
	Passed      *bool          `json:"passed,omitempty"`
	Threshold   *Threshold     `json:"threshold,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Assertions  []Assertion    `json:"assertions,omitempty"`
}

// TestResult is one test case's recorded outcome, including its events
// and evaluations.
type TestResult struct {
	ID          string          `json:"id"`
	RunID       string          `json:"runId"`
	Hash        string          `json:"hash"`
	DurationMs  *float64        `json:"durationMs,omitempty"`
	Body        json.RawMessage `json:"body"`
	Output      json.RawMessage `json:"output"`
	Events      []Event         `json:"events,omitempty"`
	Evaluations []Evaluation    `json:"evaluations,omitempty"`
}
