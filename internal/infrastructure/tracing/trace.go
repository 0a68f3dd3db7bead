package tracing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/id"
)

const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"

	spanBuffer = 1000
	// maxIDLength bounds client-supplied ids that end up in logs and records
	maxIDLength = 128
)

// Span is one request from the proxy's point of view. Fields are attached as
// typed zap fields and end up on the access log line.
type Span struct {
	TraceID  id.TraceID
	SpanID   id.SpanID
	ParentID id.SpanID
	Name     string

	start    time.Time
	duration time.Duration
	status   int
	err      error
	fields   []zap.Field
}

// Tracer hands finished spans to a background collector that logs them
type Tracer struct {
	logger  *zap.Logger
	spans   chan *Span
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New creates a tracer and starts its collector
func New(logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		logger: logger,
		spans:  make(chan *Span, spanBuffer),
		done:   make(chan struct{}),
	}
	go t.collect()
	return t
}

// StartSpan creates a span, continuing the trace found in ctx if any
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = id.NewTraceID()
	}

	span := &Span{
		TraceID:  traceID,
		SpanID:   id.NewSpanID(),
		ParentID: GetSpanID(ctx),
		Name:     name,
		start:    time.Now(),
	}

	ctx = WithTraceID(ctx, traceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// Add attaches fields to the span
func (s *Span) Add(fields ...zap.Field) {
	s.fields = append(s.fields, fields...)
}

// End closes the span with the response status and an optional error
func (s *Span) End(status int, err error) {
	s.duration = time.Since(s.start)
	s.status = status
	s.err = err
}

// Duration is zero until End is called
func (s *Span) Duration() time.Duration {
	return s.duration
}

func (t *Tracer) collect() {
	defer close(t.done)
	for span := range t.spans {
		t.log(span)
	}
}

// log writes the access line: 5xx and errors at Error, 4xx at Warn, the rest
// at Info
func (t *Tracer) log(span *Span) {
	fields := make([]zap.Field, 0, len(span.fields)+6)
	fields = append(fields,
		zap.String("trace_id", span.TraceID.String()),
		zap.String("span_id", span.SpanID.String()),
		zap.String("operation", span.Name),
		zap.Int("status", span.status),
		zap.Duration("duration", span.duration),
	)
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID.String()))
	}
	fields = append(fields, span.fields...)

	switch {
	case span.err != nil || span.status >= 500:
		if span.err != nil {
			fields = append(fields, zap.Error(span.err))
		}
		t.logger.Error("Request failed", fields...)
	case span.status >= 400:
		t.logger.Warn("Request rejected", fields...)
	default:
		t.logger.Info("Request completed", fields...)
	}
}

// Submit sends a finished span to the collector. Spans are dropped when the
// buffer is full or the tracer is closed.
func (t *Tracer) Submit(span *Span) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return
	}

	select {
	case t.spans <- span:
	default:
		if t.dropped.Add(1) == 1 {
			t.logger.Warn("Span buffer full, dropping spans", zap.String("trace_id", span.TraceID.String()))
		}
	}
}

// Dropped returns how many spans were discarded because the buffer was full
func (t *Tracer) Dropped() uint64 {
	return t.dropped.Load()
}

// Close stops the collector after logging buffered spans
func (t *Tracer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.spans)
	t.mu.Unlock()

	<-t.done
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// WithTraceID returns a context carrying traceID
func WithTraceID(ctx context.Context, traceID id.TraceID) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from context
func GetTraceID(ctx context.Context) id.TraceID {
	if traceID, ok := ctx.Value(traceIDKey).(id.TraceID); ok {
		return traceID
	}
	return ""
}

// GetSpanID retrieves the span ID from context
func GetSpanID(ctx context.Context) id.SpanID {
	if spanID, ok := ctx.Value(spanIDKey).(id.SpanID); ok {
		return spanID
	}
	return ""
}

// validID accepts client-supplied ids made of printable ASCII
func validID(s string) bool {
	if s == "" || len(s) > maxIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
