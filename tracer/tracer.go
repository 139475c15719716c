// Package tracer sends ingestion events to Evalsight. Events are
// dispatched by a background worker so hot paths never block on the
// network; send failures are logged and dropped, never surfaced to the
// instrumented code.
package tracer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"github.com/stellarlinkco/evalsight-go/internal/env"
	"github.com/stellarlinkco/evalsight-go/internal/runcontext"
	"github.com/stellarlinkco/evalsight-go/internal/transport"
)

// DefaultEndpoint is the hosted ingestion endpoint.
const DefaultEndpoint = "https://ingest.evalsight.com"

const (
	defaultTimeout    = 5 * time.Second
	defaultBufferSize = 256
)

type event struct {
	Message    string         `json:"message"`
	TraceID    string         `json:"traceId,omitempty"`
	Timestamp  string         `json:"timestamp"`
	Properties map[string]any `json:"properties,omitempty"`
}

type queued struct {
	ev    event
	flush chan struct{}
}

// Tracer posts events for one logical trace.
type Tracer struct {
	client  *transport.Client
	timeout time.Duration

	mu      sync.Mutex
	traceID string
	props   map[string]any
	spans   []string

	queue  chan queued
	done   chan struct{}
	closed bool
}

// Option configures a Tracer.
type Option func(*options)

type options struct {
	ingestionKey string
	endpoint     string
	traceID      string
	properties   map[string]any
	timeout      time.Duration
	bufferSize   int
}

// WithIngestionKey overrides the EVALSIGHT_INGESTION_KEY environment
// variable.
func WithIngestionKey(key string) Option {
	return func(o *options) { o.ingestionKey = key }
}

// WithEndpoint overrides the ingestion base URL.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithTraceID sets the trace id attached to every event. Defaults to a
// random UUID.
func WithTraceID(id string) Option {
	return func(o *options) { o.traceID = id }
}

// WithProperties sets base properties merged into every event.
func WithProperties(props map[string]any) Option {
	return func(o *options) { o.properties = props }
}

// WithTimeout overrides the default 5s per-event send timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithBufferSize overrides the dispatch queue capacity.
func WithBufferSize(n int) Option {
	return func(o *options) { o.bufferSize = n }
}

// New builds a Tracer and starts its dispatch worker. The ingestion key
// falls back to EVALSIGHT_INGESTION_KEY and the endpoint to
// EVALSIGHT_INGESTION_ENDPOINT.
func New(opts ...Option) (*Tracer, error) {
	o := options{timeout: defaultTimeout, bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}

	if o.ingestionKey == "" {
		o.ingestionKey = env.IngestionKey.Get()
	}
	if o.ingestionKey == "" {
		return nil, errors.New("tracer: no ingestion key provided; set " +
			string(env.IngestionKey) + " or use WithIngestionKey")
	}
	if o.endpoint == "" {
		o.endpoint = env.IngestionEndpoint.Get()
	}
	if o.endpoint == "" {
		o.endpoint = DefaultEndpoint
	}
	if o.traceID == "" {
		o.traceID = uuid.NewString()
	}
	if o.bufferSize <= 0 {
		o.bufferSize = defaultBufferSize
	}

	props := make(map[string]any, len(o.properties))
	for k, v := range o.properties {
		props[k] = v
	}

	t := &Tracer{
		client:  transport.NewClient(o.endpoint, o.ingestionKey, transport.WithTimeout(o.timeout)),
		timeout: o.timeout,
		traceID: o.traceID,
		props:   props,
		queue:   make(chan queued, o.bufferSize),
		done:    make(chan struct{}),
	}
	go t.dispatch()
	return t, nil
}

// TraceID returns the current trace id.
func (t *Tracer) TraceID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.traceID
}

// SetTraceID switches subsequent events to a new trace.
func (t *Tracer) SetTraceID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.traceID = id
}

// UpdateProperties merges the given properties into the base set.
func (t *Tracer) UpdateProperties(props map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range props {
		t.props[k] = v
	}
}

// EventOption customizes a single event.
type EventOption func(*event)

// WithEventTraceID overrides the tracer's trace id for one event.
func WithEventTraceID(id string) EventOption {
	return func(e *event) { e.TraceID = id }
}

// WithTimestamp overrides the event timestamp. Defaults to now.
func WithTimestamp(ts time.Time) EventOption {
	return func(e *event) { e.Timestamp = ts.UTC().Format(time.RFC3339Nano) }
}

// WithEventProperties merges properties into the event. They win over
// the tracer's base properties.
func WithEventProperties(props map[string]any) EventOption {
	return func(e *event) {
		for k, v := range props {
			e.Properties[k] = v
		}
	}
}

// SendEvent enqueues one event for delivery. It never blocks on the
// network; when the queue is full the event is dropped with a log line.
// When a test run is active on ctx, the run id and test case hash are
// attached so the platform can correlate the trace with the result.
func (t *Tracer) SendEvent(ctx context.Context, message string, opts ...EventOption) {
	ev := t.buildEvent(ctx, message, opts...)

	select {
	case t.queue <- queued{ev: ev}:
	default:
		clog.FromContext(ctx).Warnf("tracer: queue full, dropping event %q", message)
	}
}

func (t *Tracer) buildEvent(ctx context.Context, message string, opts ...EventOption) event {
	t.mu.Lock()
	props := make(map[string]any, len(t.props)+4)
	for k, v := range t.props {
		props[k] = v
	}
	if n := len(t.spans); n > 0 {
		props["spanId"] = t.spans[n-1]
		if n > 1 {
			props["parentSpanId"] = t.spans[n-2]
		}
	}
	traceID := t.traceID
	t.mu.Unlock()

	if tr, ok := runcontext.From(ctx); ok {
		props["testExternalId"] = tr.TestExternalID
		props["runId"] = tr.RunID
		props["testCaseHash"] = tr.TestCaseHash
		if tr.EvaluatorID != "" {
			props["evaluatorExternalId"] = tr.EvaluatorID
		}
	}

	ev := event{
		Message:    message,
		TraceID:    traceID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Properties: props,
	}
	for _, opt := range opts {
		opt(&ev)
	}
	return ev
}

// StartSpan pushes a new span id onto the tracer's span stack and
// returns it with a function that pops it. Events sent between the two
// carry the span id, nested spans carry their parent's id as well.
func (t *Tracer) StartSpan() (string, func()) {
	id := uuid.NewString()

	t.mu.Lock()
	t.spans = append(t.spans, id)
	t.mu.Unlock()

	return id, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i := len(t.spans) - 1; i >= 0; i-- {
			if t.spans[i] == id {
				t.spans = append(t.spans[:i], t.spans[i+1:]...)
				return
			}
		}
	}
}

// Flush blocks until every event enqueued before the call has been
// delivered or dropped.
func (t *Tracer) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	select {
	case t.queue <- queued{flush: marker}:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return nil
	}

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return nil
	}
}

// Close flushes pending events and stops the dispatch worker. The
// tracer must not be used after Close.
func (t *Tracer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	close(t.queue)
	<-t.done
}

func (t *Tracer) dispatch() {
	defer close(t.done)
	for q := range t.queue {
		if q.flush != nil {
			close(q.flush)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		err := t.client.Post(ctx, "/", q.ev, nil)
		cancel()
		if err != nil {
			clog.FromContext(context.Background()).
				Warnf("tracer: failed to send event %q: %v", q.ev.Message, err)
		}
	}
}
