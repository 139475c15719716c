// Package runner executes test suites against user-supplied functions and
// evaluators with bounded concurrency, reporting results, evaluations,
// and failures to a collector while isolating every per-case and
// per-evaluator failure from its siblings.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/stellarlinkco/evalsight-go/internal/runcontext"
)

const (
	// DefaultMaxTestCaseConcurrency bounds concurrent test cases when the
	// suite does not set its own ceiling.
	DefaultMaxTestCaseConcurrency = 10

	// DefaultMaxEvaluatorConcurrency bounds concurrent Evaluate calls for
	// evaluators that do not set their own ceiling.
	DefaultMaxEvaluatorConcurrency = 10
)

// RunTestSuite validates the suite, registers a run, executes every test
// case, and closes the run. Validation failures abort before any network
// call. A /start failure aborts the suite; all other failures are
// isolated per test case or per evaluator and reported through the error
// path. The call blocks until the suite settles.
func RunTestSuite[T TestCase, O any](ctx context.Context, suite Suite[T, O]) error {
	if ctx == nil {
		return errors.New("runner: nil context")
	}
	if err := validateSuite(suite); err != nil {
		return err
	}

	rc := newRunContext(ctx, suite)

	if suite.GridSearchParams == nil {
		return rc.runForCombo(ctx, "", nil)
	}

	groupID, err := rc.client.grids(ctx, suite.ID, suite.GridSearchParams)
	if err != nil {
		// All subsequent requests would fail without a registered grid
		// group, so the whole grid run aborts here.
		return fmt.Errorf("runner: register grid search: %w", err)
	}

	combos := gridCombos(suite.GridSearchParams)
	errs := make([]error, len(combos))
	var wg sync.WaitGroup
	for i, combo := range combos {
		i, combo := i, combo
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = rc.runForCombo(ctx, groupID, combo)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func validateSuite[T TestCase, O any](suite Suite[T, O]) error {
	if suite.ID == "" {
		return errors.New("runner: missing test suite id")
	}
	if suite.Fn == nil {
		return fmt.Errorf("runner: [%s] no test function provided", suite.ID)
	}
	if len(suite.TestCases) == 0 {
		return fmt.Errorf("runner: [%s] no test cases provided", suite.ID)
	}

	hashes := make(map[string]struct{}, len(suite.TestCases))
	for _, tc := range suite.TestCases {
		h := tc.Hash()
		if h == "" {
			return fmt.Errorf("runner: [%s] test case with empty hash", suite.ID)
		}
		if _, ok := hashes[h]; ok {
			return fmt.Errorf("runner: [%s] duplicate test case hash %q", suite.ID, h)
		}
		hashes[h] = struct{}{}
	}

	ids := make(map[string]struct{}, len(suite.Evaluators))
	for _, ev := range suite.Evaluators {
		id := ev.ID()
		if id == "" {
			return fmt.Errorf("runner: [%s] evaluator with empty id", suite.ID)
		}
		if _, ok := ids[id]; ok {
			return fmt.Errorf("runner: [%s] duplicate evaluator id %q", suite.ID, id)
		}
		ids[id] = struct{}{}
	}

	for key, values := range suite.GridSearchParams {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("runner: [%s] grid search param with empty name", suite.ID)
		}
		if len(values) == 0 {
			return fmt.Errorf("runner: [%s] grid search param %q has no values", suite.ID, key)
		}
	}
	return nil
}

// runContext holds the per-invocation state: the collector client and the
// two families of semaphores. Keeping these on the invocation (rather
// than in process-wide registries) lets independent suites run in one
// process without sharing gates.
type runContext[T TestCase, O any] struct {
	suite    Suite[T, O]
	client   *collectorClient
	caseSem  *semaphore.Weighted
	evalSems map[string]*semaphore.Weighted
}

func newRunContext[T TestCase, O any](ctx context.Context, suite Suite[T, O]) *runContext[T, O] {
	caseLimit := suite.MaxTestCaseConcurrency
	if caseLimit <= 0 {
		caseLimit = DefaultMaxTestCaseConcurrency
	}

	evalSems := make(map[string]*semaphore.Weighted, len(suite.Evaluators))
	for _, ev := range suite.Evaluators {
		limit := ev.MaxConcurrency()
		if limit <= 0 {
			limit = DefaultMaxEvaluatorConcurrency
		}
		evalSems[ev.ID()] = semaphore.NewWeighted(limit)
	}

	return &runContext[T, O]{
		suite:    suite,
		client:   newCollectorClient(ctx, suite.CollectorAddress),
		caseSem:  semaphore.NewWeighted(caseLimit),
		evalSems: evalSems,
	}
}

// runForCombo executes one start→test cases→end sequence. combo is nil
// outside grid-search runs.
func (rc *runContext[T, O]) runForCombo(ctx context.Context, gridGroupID string, combo map[string]any) error {
	runID, err := rc.client.start(ctx, rc.suite.ID, gridGroupID, combo)
	if err != nil {
		// No point running test cases against a run that was never
		// registered. The collector has already surfaced the HTTP error
		// on its side, so no duplicate error report is sent.
		return fmt.Errorf("runner: start run: %w", err)
	}

	var wg sync.WaitGroup
	for _, tc := range rc.suite.TestCases {
		tc := tc
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc.runTestCase(ctx, runID, tc)
		}()
	}
	wg.Wait()

	// The run is always closed, no matter how many cases failed.
	rc.client.end(ctx, rc.suite.ID, runID)
	return nil
}

func (rc *runContext[T, O]) runTestCase(ctx context.Context, runID string, tc T) {
	hash := tc.Hash()
	tcCtx := runcontext.With(ctx, runcontext.TestRun{
		TestExternalID: rc.suite.ID,
		RunID:          runID,
		TestCaseHash:   hash,
	})

	output, durationMs, err := rc.invokeFn(tcCtx, tc)
	if err != nil {
		rc.client.postError(ctx, rc.suite.ID, runID, hash, "", err)
		return
	}

	err = rc.client.postResult(ctx, resultPayload{
		TestExternalID:     rc.suite.ID,
		RunID:              runID,
		TestCaseHash:       hash,
		TestCaseBody:       toJSON(tc),
		TestCaseOutput:     toJSON(output),
		TestCaseDurationMs: durationMs,
	})
	if err != nil {
		rc.client.postError(ctx, rc.suite.ID, runID, hash, "", err)
		return
	}

	// All evaluators for one test case run concurrently with each other,
	// each gated only by its own semaphore.
	var wg sync.WaitGroup
	for _, ev := range rc.suite.Evaluators {
		ev := ev
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc.runEvaluator(tcCtx, runID, tc, output, ev)
		}()
	}
	wg.Wait()
}

// invokeFn runs the suite function and the before-evaluators hook under
// the test-case semaphore. The returned duration covers the function
// only: the timer starts after the semaphore is acquired and stops before
// the hook runs.
func (rc *runContext[T, O]) invokeFn(ctx context.Context, tc T) (output O, durationMs float64, err error) {
	if err = rc.caseSem.Acquire(ctx, 1); err != nil {
		return output, 0, err
	}
	defer rc.caseSem.Release(1)

	start := time.Now()
	output, err = callFn(ctx, rc.suite.Fn, tc)
	durationMs = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		return output, durationMs, err
	}

	if hook := rc.suite.BeforeEvaluatorsHook; hook != nil {
		if err = callHook(ctx, hook, tc, output); err != nil {
			return output, durationMs, err
		}
	}
	return output, durationMs, nil
}

func (rc *runContext[T, O]) runEvaluator(ctx context.Context, runID string, tc T, output O, ev Evaluator[T, O]) {
	hash := tc.Hash()
	evalCtx := runcontext.With(ctx, runcontext.TestRun{
		TestExternalID: rc.suite.ID,
		RunID:          runID,
		TestCaseHash:   hash,
		EvaluatorID:    ev.ID(),
	})

	evaluation, err := rc.evaluate(evalCtx, tc, output, ev)
	if err != nil {
		rc.client.postError(ctx, rc.suite.ID, runID, hash, ev.ID(), err)
		return
	}
	if evaluation == nil {
		return
	}

	err = rc.client.postEval(ctx, evalPayload{
		TestExternalID:      rc.suite.ID,
		RunID:               runID,
		TestCaseHash:        hash,
		EvaluatorExternalID: ev.ID(),
		Score:               evaluation.Score,
		Threshold:           evaluation.Threshold,
		Metadata:            evaluation.Metadata,
		Assertions:          marshalAssertions(evaluation.Assertions),
	})
	if err != nil {
		rc.client.postError(ctx, rc.suite.ID, runID, hash, ev.ID(), err)
	}
}

func (rc *runContext[T, O]) evaluate(ctx context.Context, tc T, output O, ev Evaluator[T, O]) (*Evaluation, error) {
	sem := rc.evalSems[ev.ID()]
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer sem.Release(1)
	return callEvaluator(ctx, ev, tc, output)
}

func marshalAssertions(assertions []Assertion) []byte {
	if len(assertions) == 0 {
		return nil
	}
	return toJSON(assertions)
}

// callFn invokes the user function, converting a panic into an error so
// one test case cannot take down the suite.
func callFn[T TestCase, O any](ctx context.Context, fn func(context.Context, T) (O, error), tc T) (output O, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("runner: test function panicked: %v", r)
		}
	}()
	return fn(ctx, tc)
}

func callHook[T TestCase, O any](ctx context.Context, hook func(context.Context, T, O) error, tc T, output O) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("runner: before-evaluators hook panicked: %v", r)
		}
	}()
	return hook(ctx, tc, output)
}

func callEvaluator[T TestCase, O any](ctx context.Context, ev Evaluator[T, O], tc T, output O) (evaluation *Evaluation, err error) {
	defer func() {
		if r := recover(); r != nil {
			evaluation = nil
			err = fmt.Errorf("runner: evaluator %q panicked: %v", ev.ID(), r)
		}
	}()
	return ev.Evaluate(ctx, tc, output)
}

// errorName derives a short type name for an error, mirroring how the
// platform displays exception classes.
func errorName(err error) string {
	name := fmt.Sprintf("%T", err)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
