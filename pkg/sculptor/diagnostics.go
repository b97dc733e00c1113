package sculptor

import (
	"context"
	"sync"
	"time"
)

// Diagnostic records one non-fatal data-quality event: a field the model
// returned that failed coercion and was replaced by its default or the null
// sentinel. Diagnostics flow through a side channel so batch callers can
// audit quality without error values polluting the extracted records.
type Diagnostic struct {
	// RequestID correlates diagnostics from a single extraction call.
	RequestID string

	// Field is the schema field that failed coercion.
	Field string

	// Value is the raw value the model returned for the field.
	Value any

	// Message describes why the value was rejected.
	Message string

	// Time is when the failure was observed.
	Time time.Time
}

// DiagnosticSink receives coercion diagnostics as they happen.
// Implement this to integrate with logging or metrics backends.
//
// Sinks are called from worker goroutines during batch extraction and
// should be non-blocking or handle their own synchronization.
type DiagnosticSink interface {
	OnDiagnostic(ctx context.Context, d Diagnostic)
}

// DiagnosticFunc is a convenience type for using a function as a DiagnosticSink.
type DiagnosticFunc func(ctx context.Context, d Diagnostic)

// OnDiagnostic implements DiagnosticSink.
func (f DiagnosticFunc) OnDiagnostic(ctx context.Context, d Diagnostic) {
	f(ctx, d)
}

// MultiSink fans one diagnostic out to multiple sinks.
type MultiSink struct {
	sinks []DiagnosticSink
}

// NewMultiSink creates a sink that dispatches to every given sink.
func NewMultiSink(sinks ...DiagnosticSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// OnDiagnostic dispatches the diagnostic to all registered sinks.
func (m *MultiSink) OnDiagnostic(ctx context.Context, d Diagnostic) {
	for _, s := range m.sinks {
		s.OnDiagnostic(ctx, d)
	}
}

// Add adds a sink to the multi-sink.
func (m *MultiSink) Add(s DiagnosticSink) {
	m.sinks = append(m.sinks, s)
}

// Collector accumulates diagnostics in memory for post-run inspection.
// Safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	diags []Diagnostic
}

// OnDiagnostic implements DiagnosticSink.
func (c *Collector) OnDiagnostic(_ context.Context, d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = append(c.diags, d)
}

// Diagnostics returns a copy of everything collected so far.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.diags))
	copy(out, c.diags)
	return out
}

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.diags)
}
