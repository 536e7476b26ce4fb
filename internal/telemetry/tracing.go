package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	// Trace operation names
	TracePoolCheck      = "phpfpm.pool.check"
	TraceFastCGIRequest = "phpfpm.fastcgi.request"

	// Attribute keys
	AttrSocketPath   = "phpfpm.socket.path"
	AttrStatusPath   = "phpfpm.status.path"
	AttrVerdict      = "phpfpm.check.verdict"
	AttrErrorType    = "phpfpm.error.type"
	AttrResponseSize = "phpfpm.response.bytes"
)

// TraceHelper provides helper methods for creating traces
type TraceHelper struct {
	tracer oteltrace.Tracer
}

// NewTraceHelper creates a new trace helper
func NewTraceHelper(serviceName string) *TraceHelper {
	return &TraceHelper{
		tracer: otel.Tracer(serviceName),
	}
}

// StartSpan starts a new tracing span with common attributes
func (th *TraceHelper) StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return th.tracer.Start(ctx, operationName, oteltrace.WithAttributes(attrs...))
}

// RecordError records an error on the span
func (th *TraceHelper) RecordError(span oteltrace.Span, err error, description string) {
	if err != nil {
		span.SetStatus(codes.Error, description)
		span.RecordError(err, oteltrace.WithAttributes(
			attribute.String(AttrErrorType, description),
		))
	}
}

// SetSpanSuccess marks span as successful
func (th *TraceHelper) SetSpanSuccess(span oteltrace.Span) {
	span.SetStatus(codes.Ok, "Success")
}

// TraceFastCGIRequestFunc traces one FastCGI status exchange
func (th *TraceHelper) TraceFastCGIRequestFunc(ctx context.Context, socketPath, statusPath string, fn func(context.Context) error) error {
	ctx, span := th.StartSpan(ctx, TraceFastCGIRequest,
		attribute.String(AttrSocketPath, socketPath),
		attribute.String(AttrStatusPath, statusPath),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int64("duration_ms", duration.Milliseconds()),
	)

	if err != nil {
		th.RecordError(span, err, "fastcgi request failed")
		return err
	}

	th.SetSpanSuccess(span)
	return nil
}

// TracePoolCheckFunc traces a full check pipeline and records the verdict
func (th *TraceHelper) TracePoolCheckFunc(ctx context.Context, socketPath string, fn func(context.Context) (string, error)) error {
	ctx, span := th.StartSpan(ctx, TracePoolCheck,
		attribute.String(AttrSocketPath, socketPath),
	)
	defer span.End()

	start := time.Now()
	verdict, err := fn(ctx)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int64("duration_ms", duration.Milliseconds()),
		attribute.String(AttrVerdict, verdict),
	)

	if err != nil {
		th.RecordError(span, err, "pool check failed")
		return err
	}

	th.SetSpanSuccess(span)
	return nil
}
