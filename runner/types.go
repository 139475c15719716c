package runner

import "context"

// TestCase is a user-defined test case. Hash must be deterministic and
// unique within one suite invocation; it identifies the case in every
// report sent to the platform.
type TestCase interface {
	Hash() string
}

// Evaluator scores the output a suite's function produced for one test
// case. Evaluators run independently per test case, gated by a
// per-evaluator concurrency ceiling. Returning a nil Evaluation (and nil
// error) means there is nothing to report for that case.
type Evaluator[T TestCase, O any] interface {
	// ID uniquely identifies this evaluator within a suite.
	ID() string

	// MaxConcurrency bounds how many Evaluate calls run at once across
	// test cases. Values <= 0 fall back to DefaultMaxEvaluatorConcurrency.
	MaxConcurrency() int64

	Evaluate(ctx context.Context, testCase T, output O) (*Evaluation, error)
}

// Threshold is the pass/fail comparison bounds for an evaluation score.
type Threshold struct {
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
}

// Assertion is one structured check inside an evaluation.
type Assertion struct {
	Criterion string         `json:"criterion"`
	Passed    bool           `json:"passed"`
	Required  bool           `json:"required"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Evaluation is the result of running one evaluator against one test
// case's output.
type Evaluation struct {
	Score      float64        `json:"score"`
	Threshold  *Threshold     `json:"threshold,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Assertions []Assertion    `json:"assertions,omitempty"`
}

// Passed evaluates the score against the threshold. It returns nil when
// no threshold bounds are set.
func (e *Evaluation) Passed() *bool {
	if e == nil || e.Threshold == nil {
		return nil
	}

	checked := false
	passed := true
	if v := e.Threshold.LT; v != nil {
		checked = true
		passed = passed && e.Score < *v
	}
	if v := e.Threshold.LTE; v != nil {
		checked = true
		passed = passed && e.Score <= *v
	}
	if v := e.Threshold.GT; v != nil {
		checked = true
		passed = passed && e.Score > *v
	}
	if v := e.Threshold.GTE; v != nil {
		checked = true
		passed = passed && e.Score >= *v
	}
	if !checked {
		return nil
	}
	return &passed
}

// Suite describes one test-suite invocation.
type Suite[T TestCase, O any] struct {
	// ID is the external id of the test suite on the platform.
	ID string

	TestCases []T

	// Fn produces the output under test for one test case.
	Fn func(ctx context.Context, testCase T) (O, error)

	Evaluators []Evaluator[T, O]

	// BeforeEvaluatorsHook, when set, runs after Fn and before any
	// evaluator for each test case, inside the same concurrency ceiling
	// as Fn. Its duration is not counted in the test case duration.
	BeforeEvaluatorsHook func(ctx context.Context, testCase T, output O) error

	// MaxTestCaseConcurrency bounds how many test cases run at once
	// (default DefaultMaxTestCaseConcurrency).
	MaxTestCaseConcurrency int64

	// GridSearchParams, when set, repeats the whole run once per
	// Cartesian-product combination of the value lists. Combinations run
	// concurrently.
	GridSearchParams map[string][]any

	// CollectorAddress overrides EVALSIGHT_CLI_SERVER_ADDRESS. When both
	// are empty the runner executes in debug mode: telemetry is logged
	// locally instead of being sent.
	CollectorAddress string
}
