package monitoring

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// TraceID identifies a request across all its spans
type TraceID string

// SpanID identifies one operation within a trace
type SpanID string

// SpanStatus marks how a span ended
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

type traceContextKey struct{}

// ginTraceKey is where TracingMiddleware stores the request span.
const ginTraceKey = "trace_context"

// TraceContext holds one span of tracing information
type TraceContext struct {
	TraceID     TraceID           `json:"trace_id"`
	SpanID      SpanID            `json:"span_id"`
	ParentID    *SpanID           `json:"parent_id,omitempty"`
	ServiceName string            `json:"service_name"`
	Operation   string            `json:"operation"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Duration    *time.Duration    `json:"duration,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Error       string            `json:"error,omitempty"`
	Status      SpanStatus        `json:"status"`
}

// Tracer manages in-process request and pipeline tracing. Spans are logged
// on completion rather than exported; the trace IDs in the logs are what
// operators correlate on.
type Tracer struct {
	serviceName string
	logger      *Logger
	spans       map[SpanID]*TraceContext
	spansMutex  sync.RWMutex
}

// NewTracer returns a tracer that emits spans through logger
func NewTracer(serviceName string, logger *Logger) *Tracer {
	return &Tracer{
		serviceName: serviceName,
		logger:      logger,
		spans:       make(map[SpanID]*TraceContext),
	}
}

// StartSpan starts a new trace span. The span inherits the trace ID of any
// span already on the context and records that span as its parent.
func (t *Tracer) StartSpan(ctx context.Context, operation string, opts ...SpanOption) (*TraceContext, context.Context) {
	parent := spanFromContext(ctx)

	span := &TraceContext{
		SpanID:      SpanID(randomHex(8)),
		ServiceName: t.serviceName,
		Operation:   operation,
		StartTime:   time.Now(),
		Tags:        make(map[string]string),
		Status:      SpanStatusOK,
	}

	if parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = &parent.SpanID
	} else {
		span.TraceID = TraceID(randomHex(16))
	}

	for _, opt := range opts {
		opt(span)
	}

	t.spansMutex.Lock()
	t.spans[span.SpanID] = span
	t.spansMutex.Unlock()

	return span, context.WithValue(ctx, traceContextKey{}, span)
}

// EndSpan ends a trace span and logs it.
func (t *Tracer) EndSpan(span *TraceContext, err error) {
	endTime := time.Now()
	duration := endTime.Sub(span.StartTime)

	span.EndTime = &endTime
	span.Duration = &duration

	if err != nil {
		span.Error = err.Error()
		span.Status = SpanStatusError
	}

	t.logSpan(span)

	t.spansMutex.Lock()
	delete(t.spans, span.SpanID)
	t.spansMutex.Unlock()
}

// SetTag attaches a key/value pair to an open span
func (t *Tracer) SetTag(span *TraceContext, key, value string) {
	if span.Tags == nil {
		span.Tags = make(map[string]string)
	}
	span.Tags[key] = value
}

// SpanOption mutates a span at start time
type SpanOption func(*TraceContext)

// WithTag tags the span as it is created
func WithTag(key, value string) SpanOption {
	return func(span *TraceContext) {
		if span.Tags == nil {
			span.Tags = make(map[string]string)
		}
		span.Tags[key] = value
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func spanFromContext(ctx context.Context) *TraceContext {
	if span, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return span
	}
	return nil
}

func (t *Tracer) logSpan(span *TraceContext) {
	fields := []any{
		"trace_id", span.TraceID,
		"span_id", span.SpanID,
		"service", span.ServiceName,
		"operation", span.Operation,
		"status", span.Status,
	}

	if span.ParentID != nil {
		fields = append(fields, "parent_id", *span.ParentID)
	}
	if span.Duration != nil {
		fields = append(fields, "duration_ms", span.Duration.Milliseconds())
	}
	if span.Error != "" {
		fields = append(fields, "error", span.Error)
	}
	for k, v := range span.Tags {
		fields = append(fields, "tag_"+k, v)
	}

	t.logger.Info("Trace Span", fields...)
}

// TracingMiddleware creates Gin middleware that opens a span per request
func TracingMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		operation := c.Request.Method + " " + c.Request.URL.Path

		span, ctx := tracer.StartSpan(c.Request.Context(), operation,
			WithTag("http.method", c.Request.Method),
			WithTag("client_ip", c.ClientIP()),
		)

		c.Set(ginTraceKey, span)
		c.Header("X-Trace-ID", string(span.TraceID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		tracer.SetTag(span, "http.status_code", fmt.Sprintf("%d", c.Writer.Status()))

		var spanErr error
		if len(c.Errors) > 0 {
			spanErr = fmt.Errorf("request errors: %v", c.Errors)
		}

		tracer.EndSpan(span, spanErr)
	}
}

// GetSpanFromGinContext extracts the request span from a Gin context
func GetSpanFromGinContext(c *gin.Context) *TraceContext {
	if span, exists := c.Get(ginTraceKey); exists {
		if traceSpan, ok := span.(*TraceContext); ok {
			return traceSpan
		}
	}
	return nil
}

// GetSpanCount reports how many spans are currently open
func (t *Tracer) GetSpanCount() int {
	t.spansMutex.RLock()
	defer t.spansMutex.RUnlock()
	return len(t.spans)
}

// TraceFunction runs fn inside its own span. Used to scope pipeline stages
// like corpus enrichment and model fitting under the request span.
func TraceFunction(ctx context.Context, tracer *Tracer, operation string, fn func(context.Context) error) error {
	span, spanCtx := tracer.StartSpan(ctx, operation)

	defer func() {
		if r := recover(); r != nil {
			tracer.SetTag(span, "panic", "true")
			tracer.EndSpan(span, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err := fn(spanCtx)
	tracer.EndSpan(span, err)

	return err
}

// Process-wide tracer, set once at startup
var globalTracer *Tracer

// InitGlobalTracer installs the process-wide tracer
func InitGlobalTracer(serviceName string, logger *Logger) {
	globalTracer = NewTracer(serviceName, logger)
}

// GetGlobalTracer returns the process-wide tracer
func GetGlobalTracer() *Tracer {
	return globalTracer
}
