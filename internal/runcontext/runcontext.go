// Package runcontext carries the active test-run identity through a
// context so tracing can correlate events with test-case results.
package runcontext

import "context"

// TestRun identifies the test case currently executing.
type TestRun struct {
	TestExternalID string
	RunID          string
	TestCaseHash   string
	EvaluatorID    string
}

type ctxKey struct{}

// With returns a context carrying the given test-run identity.
func With(ctx context.Context, tr TestRun) context.Context {
	return context.WithValue(ctx, ctxKey{}, tr)
}

// From returns the test-run identity carried by ctx, if any.
func From(ctx context.Context) (TestRun, bool) {
	tr, ok := ctx.Value(ctxKey{}).(TestRun)
	return tr, ok
}
