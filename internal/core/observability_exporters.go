package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

type observedBackendKey struct{}

// withObservedBackend tags the context with the router mode serving the
// operation, so recorders can split local and remote outcomes.
func withObservedBackend(ctx context.Context, mode BackendMode) context.Context {
	return context.WithValue(ctx, observedBackendKey{}, string(mode))
}

// observedBackend returns the backend tag, or "untagged" for operations that
// did not pass through the service instrumentation.
func observedBackend(ctx context.Context) string {
	if backend, ok := ctx.Value(observedBackendKey{}).(string); ok && backend != "" {
		return backend
	}
	return "untagged"
}

// OperationStats aggregates the outcomes of one operation against one backend.
type OperationStats struct {
	Completed       int64   `json:"completed"`
	Failed          int64   `json:"failed"`
	TotalDurationMS float64 `json:"total_duration_ms"`
	MaxDurationMS   float64 `json:"max_duration_ms"`
}

// ExpvarMetricsSnapshot is a point-in-time copy of the recorded stats, keyed
// backend then operation.
type ExpvarMetricsSnapshot struct {
	Backends   map[string]map[string]OperationStats `json:"backends"`
	RecordedAt time.Time                            `json:"recorded_at"`
}

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per-backend, per-operation counters and
// timing aggregates via expvar. It is the zero-dependency MetricsRecorder for
// deployments without a scrape endpoint; the prometheus recorder covers the
// rest.
type ExpvarMetricsRecorder struct {
	name  string
	mu    sync.Mutex
	stats map[string]map[string]*OperationStats
}

// NewExpvarMetricsRecorder constructs a recorder published under name. An
// empty name gets a unique generated one, keeping parallel tests from
// colliding on the expvar namespace.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("costcore_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name:  name,
		stats: make(map[string]map[string]*OperationStats),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe records one completed operation under the backend tagged on ctx.
func (r *ExpvarMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	backend := observedBackend(ctx)
	ms := float64(duration) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	ops, ok := r.stats[backend]
	if !ok {
		ops = make(map[string]*OperationStats)
		r.stats[backend] = ops
	}
	st, ok := ops[operation]
	if !ok {
		st = &OperationStats{}
		ops[operation] = st
	}
	if success {
		st.Completed++
	} else {
		st.Failed++
	}
	st.TotalDurationMS += ms
	if ms > st.MaxDurationMS {
		st.MaxDurationMS = ms
	}
}

// Snapshot returns an immutable copy of the aggregated stats.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	backends := make(map[string]map[string]OperationStats, len(r.stats))
	for backend, ops := range r.stats {
		cpy := make(map[string]OperationStats, len(ops))
		for op, st := range ops {
			cpy[op] = *st
		}
		backends[backend] = cpy
	}
	return ExpvarMetricsSnapshot{Backends: backends, RecordedAt: time.Now().UTC()}
}

// TraceEvent is one finished operation span as emitted by JSONTraceTracer.
type TraceEvent struct {
	Operation  string    `json:"operation"`
	Backend    string    `json:"backend"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
}

// JSONTraceTracer writes one JSON line per finished span and retains events
// for inspection. A nil writer keeps events in memory only.
type JSONTraceTracer struct {
	mu     sync.Mutex
	events []TraceEvent
	enc    *json.Encoder
}

// NewJSONTracer constructs a tracer emitting spans as JSON lines to w.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Events returns a copy of all recorded spans.
func (t *JSONTraceTracer) Events() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.events))
	copy(out, t.events)
	return out
}

// Start implements Tracer. The backend tag is captured at span start, before
// the operation can switch router modes.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{
		tracer:    t,
		operation: operation,
		backend:   observedBackend(ctx),
		started:   time.Now().UTC(),
	}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	backend   string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	event := TraceEvent{
		Operation:  s.operation,
		Backend:    s.backend,
		OK:         err == nil,
		StartedAt:  s.started,
		DurationMS: float64(time.Now().UTC().Sub(s.started)) / float64(time.Millisecond),
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.tracer.mu.Lock()
	s.tracer.events = append(s.tracer.events, event)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(event)
	}
	s.tracer.mu.Unlock()
}
