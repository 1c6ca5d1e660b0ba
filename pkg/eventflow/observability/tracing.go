package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the eventflow tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("eventflow")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartBroadcastSpan starts a span covering one broadcast.
	StartBroadcastSpan(ctx context.Context, scopeName, eventName string) (context.Context, trace.Span)

	// StartTierSpan starts a span for one priority tier.
	// The tier span should be a child of the broadcast span.
	StartTierSpan(ctx context.Context, priority string) (context.Context, trace.Span)

	// StartTransitionSpan starts a span for a state transition.
	StartTransitionSpan(ctx context.Context, from, to string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartBroadcastSpan(ctx context.Context, scopeName, eventName string) (context.Context, trace.Span) {
	return StartBroadcastSpan(ctx, scopeName, eventName)
}

func (m *otelSpanManager) StartTierSpan(ctx context.Context, priority string) (context.Context, trace.Span) {
	return StartTierSpan(ctx, priority)
}

func (m *otelSpanManager) StartTransitionSpan(ctx context.Context, from, to string) (context.Context, trace.Span) {
	return StartTransitionSpan(ctx, from, to)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartBroadcastSpan starts a span for a broadcast using the global tracer.
func StartBroadcastSpan(ctx context.Context, scopeName, eventName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventflow.broadcast",
		trace.WithAttributes(
			attribute.String("scope.name", scopeName),
			attribute.String("event.name", eventName),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartTierSpan starts a span for a priority tier using the global tracer.
func StartTierSpan(ctx context.Context, priority string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventflow.tier."+priority,
		trace.WithAttributes(
			attribute.String("tier.priority", priority),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartTransitionSpan starts a span for a state transition using the global tracer.
func StartTransitionSpan(ctx context.Context, from, to string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventflow.transition",
		trace.WithAttributes(
			attribute.String("state.from", from),
			attribute.String("state.to", to),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
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

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
