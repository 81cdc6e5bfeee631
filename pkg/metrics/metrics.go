// Package metrics defines the observability abstractions used by covidash.
//
// Concrete backends live in subpackages (prometheus, otel). Components depend
// only on Recorder and Tracer, so tests and minimal deployments run on the
// no-op implementations.
package metrics

import (
	"context"
	"time"
)

// Refresh outcomes, used as the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Recorder records metrics about snapshot refreshes and exports.
type Recorder interface {
	// RecordRefresh records one refresh attempt.
	RecordRefresh(ctx context.Context, status string, duration time.Duration)
	// RecordRowsRead records the number of raw rows read for a metric table.
	RecordRowsRead(ctx context.Context, metric string, rows int)
	// RecordPublished records the diagnostics of a published snapshot.
	// joinGaps is keyed by the set of metrics a dropped key was present in (e.g. "confirmed+death").
	RecordPublished(ctx context.Context, records int, joinGaps map[string]int, divisionEdgeCases int)
	// RecordExport records one exporter run.
	RecordExport(ctx context.Context, exporter string, status string, duration time.Duration)
}

// Tracer abstracts distributed tracing of refreshes and pipeline stages.
type Tracer interface {
	// StartSpan starts a span and returns the derived context and a function ending the span.
	StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func())
	// RecordError records an error in the current span.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent records an event in the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}

// NoOpRecorder is a Recorder that does nothing. It is used when metrics are disabled or during testing.
type NoOpRecorder struct{}

// NewNoOpRecorder creates a new instance of NoOpRecorder.
func NewNoOpRecorder() Recorder {
	return &NoOpRecorder{}
}

func (r *NoOpRecorder) RecordRefresh(ctx context.Context, status string, duration time.Duration) {}

func (r *NoOpRecorder) RecordRowsRead(ctx context.Context, metric string, rows int) {}

func (r *NoOpRecorder) RecordPublished(ctx context.Context, records int, joinGaps map[string]int, divisionEdgeCases int) {
}

func (r *NoOpRecorder) RecordExport(ctx context.Context, exporter string, status string, duration time.Duration) {
}

var _ Recorder = (*NoOpRecorder)(nil)

// NoOpTracer is a Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {}

var _ Tracer = (*NoOpTracer)(nil)
