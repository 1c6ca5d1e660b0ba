package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTracingTest installs an in-memory tracer provider for the test.
func setupTracingTest(t *testing.T) *tracetest.InMemoryExporter {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("eventflow")

	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		tracer = otel.Tracer("eventflow")
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	})
	return exporter
}

func attrString(attrs []attribute.KeyValue, key string) string {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.AsString()
		}
	}
	return ""
}

func TestSpanManager_BroadcastAndTier(t *testing.T) {
	exporter := setupTracingTest(t)
	sm := NewSpanManager()

	ctx, broadcast := sm.StartBroadcastSpan(context.Background(), "EventManager", "Tick")
	_, tier := sm.StartTierSpan(ctx, "HIGH")
	sm.EndSpanWithError(tier, nil)
	sm.EndSpanWithError(broadcast, errors.New("tier timed out"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	tierSpan, broadcastSpan := spans[0], spans[1]
	assert.Equal(t, "eventflow.tier.HIGH", tierSpan.Name)
	assert.Equal(t, "HIGH", attrString(tierSpan.Attributes, "tier.priority"))
	assert.Equal(t, codes.Ok, tierSpan.Status.Code)
	assert.Equal(t, broadcastSpan.SpanContext.SpanID(), tierSpan.Parent.SpanID())

	assert.Equal(t, "eventflow.broadcast", broadcastSpan.Name)
	assert.Equal(t, "EventManager", attrString(broadcastSpan.Attributes, "scope.name"))
	assert.Equal(t, "Tick", attrString(broadcastSpan.Attributes, "event.name"))
	assert.Equal(t, codes.Error, broadcastSpan.Status.Code)
	require.NotEmpty(t, broadcastSpan.Events)
	assert.Equal(t, "exception", broadcastSpan.Events[0].Name)
}

func TestStartTransitionSpan(t *testing.T) {
	exporter := setupTracingTest(t)

	_, span := NewSpanManager().StartTransitionSpan(context.Background(), "IDLE", "RUNNING")
	EndSpanWithError(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "eventflow.transition", spans[0].Name)
	assert.Equal(t, "IDLE", attrString(spans[0].Attributes, "state.from"))
	assert.Equal(t, "RUNNING", attrString(spans[0].Attributes, "state.to"))
}

func TestAddSpanEvent(t *testing.T) {
	exporter := setupTracingTest(t)

	ctx, span := StartBroadcastSpan(context.Background(), "s", "e")
	AddSpanEvent(ctx, "intercepted", attribute.String("priority", "LOW"))
	EndSpanWithError(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "intercepted", spans[0].Events[0].Name)
}

func TestAddSpanEvent_NoSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		AddSpanEvent(context.Background(), "nothing")
	})
}

func TestEndSpanWithError_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		EndSpanWithError(nil, errors.New("x"))
	})
}

func TestNoopSpanManager(t *testing.T) {
	var sm SpanManager = NoopSpanManager{}
	ctx := context.Background()

	got, span := sm.StartBroadcastSpan(ctx, "s", "e")
	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())

	_, span = sm.StartTierSpan(ctx, "LOW")
	assert.Equal(t, trace.SpanContext{}, span.SpanContext())

	got, span = sm.StartTransitionSpan(ctx, "a", "b")
	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())

	assert.NotPanics(t, func() {
		sm.EndSpanWithError(span, errors.New("x"))
		sm.AddSpanEvent(ctx, "x")
	})
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	assert.NotPanics(t, func() {
		ctx := context.Background()
		m.RecordBroadcast(ctx, "e", true, 0, nil)
		m.RecordListener(ctx, "LOW", "parallel", 0, errors.New("x"))
		m.RecordFlowDrop(ctx, "LOW")
		m.RecordTransition(ctx, "a", "b", true)
	})
}
