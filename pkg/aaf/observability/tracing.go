package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span.
const TracerName = "aaf"

var tracer = otel.Tracer(TracerName)

// SpanManager handles span lifecycle for runs and nodes.
// Use NewSpanManager for OpenTelemetry or NoopSpanManager when disabled.
type SpanManager interface {
	// StartRunSpan starts the span covering a whole run.
	StartRunSpan(ctx context.Context, graph, runID string) (context.Context, trace.Span)

	// StartNodeSpan starts a child span for one node execution.
	StartNodeSpan(ctx context.Context, nodeID string, iteration int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, recording err if non-nil.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the span in ctx.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager using the global tracer provider.
func NewSpanManager() SpanManager {
	return otelSpanManager{}
}

// NewSpanManagerFromProvider returns a SpanManager starting spans on tp
// instead of the global provider.
func NewSpanManagerFromProvider(tp trace.TracerProvider) SpanManager {
	return otelSpanManager{tracer: tp.Tracer(TracerName)}
}

func (m otelSpanManager) StartRunSpan(ctx context.Context, graph, runID string) (context.Context, trace.Span) {
	if m.tracer == nil {
		return StartRunSpan(ctx, graph, runID)
	}
	return startRunSpan(ctx, m.tracer, graph, runID)
}

func (m otelSpanManager) StartNodeSpan(ctx context.Context, nodeID string, iteration int) (context.Context, trace.Span) {
	if m.tracer == nil {
		return StartNodeSpan(ctx, nodeID, iteration)
	}
	return startNodeSpan(ctx, m.tracer, nodeID, iteration)
}

func (otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartRunSpan starts an "aaf.run" span on the global tracer.
func StartRunSpan(ctx context.Context, graph, runID string) (context.Context, trace.Span) {
	return startRunSpan(ctx, tracer, graph, runID)
}

func startRunSpan(ctx context.Context, t trace.Tracer, graph, runID string) (context.Context, trace.Span) {
	return t.Start(ctx, "aaf.run",
		trace.WithAttributes(
			attribute.String("graph.name", graph),
			attribute.String("run.id", runID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartNodeSpan starts an "aaf.node.<id>" span on the global tracer.
func StartNodeSpan(ctx context.Context, nodeID string, iteration int) (context.Context, trace.Span) {
	return startNodeSpan(ctx, tracer, nodeID, iteration)
}

func startNodeSpan(ctx context.Context, t trace.Tracer, nodeID string, iteration int) (context.Context, trace.Span) {
	return t.Start(ctx, "aaf.node."+nodeID,
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
			attribute.Int("node.iteration", iteration),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError sets the span status from err and ends it.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the recording span in ctx, if any.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
