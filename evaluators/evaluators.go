// Package evaluators ships ready-made evaluators for common scoring
// patterns: substring presence, exact match, JSON validity, and an
// LLM-backed judge.
package evaluators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stellarlinkco/evalsight-go/runner"
)

// HasAllSubstrings scores 1 when every expected substring appears in the
// output and 0 otherwise, with one assertion per substring.
type HasAllSubstrings[T runner.TestCase, O any] struct {
	// EvaluatorID identifies this evaluator on the platform.
	EvaluatorID string

	// Substrings extracts the expected substrings from a test case.
	Substrings func(T) []string

	// OutputText extracts the searchable text from an output.
	OutputText func(O) string

	// Concurrency bounds concurrent Evaluate calls. Zero uses the
	// runner default.
	Concurrency int64
}

func (e HasAllSubstrings[T, O]) ID() string            { return e.EvaluatorID }
func (e HasAllSubstrings[T, O]) MaxConcurrency() int64 { return e.Concurrency }

func (e HasAllSubstrings[T, O]) Evaluate(_ context.Context, tc T, output O) (*runner.Evaluation, error) {
	if e.Substrings == nil || e.OutputText == nil {
		return nil, fmt.Errorf("evaluators: %s: Substrings and OutputText are required", e.EvaluatorID)
	}

	text := e.OutputText(output)
	expected := e.Substrings(tc)

	score := 1.0
	assertions := make([]runner.Assertion, 0, len(expected))
	for _, sub := range expected {
		found := strings.Contains(text, sub)
		if !found {
			score = 0
		}
		assertions = append(assertions, runner.Assertion{
			Criterion: sub,
			Passed:    found,
			Required:  true,
		})
	}

	return &runner.Evaluation{
		Score:      score,
		Threshold:  &runner.Threshold{GTE: ptr(1.0)},
		Assertions: assertions,
	}, nil
}

// IsEquals scores 1 when the actual output equals the expected value.
type IsEquals[T runner.TestCase, O any] struct {
	EvaluatorID string
	Expected    func(T) string
	Actual      func(O) string
	Concurrency int64
}

func (e IsEquals[T, O]) ID() string            { return e.EvaluatorID }
func (e IsEquals[T, O]) MaxConcurrency() int64 { return e.Concurrency }

func (e IsEquals[T, O]) Evaluate(_ context.Context, tc T, output O) (*runner.Evaluation, error) {
	if e.Expected == nil || e.Actual == nil {
		return nil, fmt.Errorf("evaluators: %s: Expected and Actual are required", e.EvaluatorID)
	}

	expected := e.Expected(tc)
	actual := e.Actual(output)

	score := 0.0
	if expected == actual {
		score = 1
	}
	return &runner.Evaluation{
		Score:     score,
		Threshold: &runner.Threshold{GTE: ptr(1.0)},
		Metadata: map[string]any{
			"expectedOutput": expected,
			"actualOutput":   actual,
		},
	}, nil
}

// IsValidJSON scores 1 when the output parses as JSON.
type IsValidJSON[T runner.TestCase, O any] struct {
	EvaluatorID string
	OutputText  func(O) string
	Concurrency int64
}

func (e IsValidJSON[T, O]) ID() string            { return e.EvaluatorID }
func (e IsValidJSON[T, O]) MaxConcurrency() int64 { return e.Concurrency }

func (e IsValidJSON[T, O]) Evaluate(_ context.Context, _ T, output O) (*runner.Evaluation, error) {
	if e.OutputText == nil {
		return nil, errors.New("evaluators: " + e.EvaluatorID + ": OutputText is required")
	}

	score := 0.0
	if json.Valid([]byte(e.OutputText(output))) {
		score = 1
	}
	return &runner.Evaluation{
		Score:     score,
		Threshold: &runner.Threshold{GTE: ptr(1.0)},
	}, nil
}

func ptr[V any](v V) *V { return &v }
