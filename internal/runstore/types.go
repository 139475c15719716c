package runstore

import (
	"encoding/json"
	"time"
)

// GridGroupRecord is a registered grid-search run group.
type GridGroupRecord struct {
	ID             string
	TestExternalID string
	Params         map[string][]any
	CreatedAt      time.Time
}

// RunRecord is one run of a test suite.
type RunRecord struct {
	ID             string
	TestExternalID string
	GridGroupID    string
	GridCombo      map[string]any
	StartedAt      time.Time
	EndedAt        *time.Time
}

// ResultRecord is one test case's reported outcome.
type ResultRecord struct {
	ID           string
	RunID        string
	TestCaseHash string
	Body         json.RawMessage
	Output       json.RawMessage
	DurationMs   float64
	CreatedAt    time.Time
}

// EvalRecord is one evaluator verdict.
type EvalRecord struct {
	ID                  string
	RunID               string
	TestCaseHash        string
	EvaluatorExternalID string
	Score               float64
	Threshold           json.RawMessage
	Metadata            json.RawMessage
	Assertions          json.RawMessage
	CreatedAt           time.Time
}

// ErrorRecord is one reported failure.
type ErrorRecord struct {
	ID                  string
	RunID               string
	TestCaseHash        string
	EvaluatorExternalID string
	Name                string
	Message             string
	Stacktrace          string
	CreatedAt           time.Time
}
