package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records eventflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordBroadcast records a finished broadcast.
	RecordBroadcast(ctx context.Context, eventName string, cancelled bool, duration time.Duration, err error)

	// RecordListener records one listener invocation.
	// mode is "parallel" or "blocking".
	RecordListener(ctx context.Context, priority, mode string, duration time.Duration, err error)

	// RecordFlowDrop records an event dropped from a full tier channel.
	RecordFlowDrop(ctx context.Context, priority string)

	// RecordTransition records a state transition attempt.
	RecordTransition(ctx context.Context, from, to string, vetoed bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	broadcasts       metric.Int64Counter
	broadcastLatency metric.Float64Histogram
	cancelled        metric.Int64Counter
	listenerLatency  metric.Float64Histogram
	listenerFailures metric.Int64Counter
	flowDropped      metric.Int64Counter
	transitions      metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventflow")

	broadcasts, err := meter.Int64Counter("eventflow.broadcasts",
		metric.WithDescription("Number of broadcasts"),
	)
	if err != nil {
		return nil, err
	}

	broadcastLatency, err := meter.Float64Histogram("eventflow.broadcast.latency_ms",
		metric.WithDescription("Broadcast latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cancelled, err := meter.Int64Counter("eventflow.broadcast.cancelled",
		metric.WithDescription("Number of broadcasts that ended cancelled"),
	)
	if err != nil {
		return nil, err
	}

	listenerLatency, err := meter.Float64Histogram("eventflow.listener.latency_ms",
		metric.WithDescription("Listener latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	listenerFailures, err := meter.Int64Counter("eventflow.listener.failures",
		metric.WithDescription("Number of listener failures and timeouts"),
	)
	if err != nil {
		return nil, err
	}

	flowDropped, err := meter.Int64Counter("eventflow.flow.dropped",
		metric.WithDescription("Number of events dropped from full tier channels"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter("eventflow.state.transitions",
		metric.WithDescription("Number of state transition attempts"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		broadcasts:       broadcasts,
		broadcastLatency: broadcastLatency,
		cancelled:        cancelled,
		listenerLatency:  listenerLatency,
		listenerFailures: listenerFailures,
		flowDropped:      flowDropped,
		transitions:      transitions,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel
// meter provider. Falls back to NoopMetrics if instruments cannot be created.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordBroadcast records a broadcast.
func (m *otelMetrics) RecordBroadcast(ctx context.Context, eventName string, cancelled bool, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("event", eventName),
		attribute.Bool("success", err == nil),
	}
	m.broadcasts.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.broadcastLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if cancelled {
		m.cancelled.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventName)))
	}
}

// RecordListener records a listener invocation.
func (m *otelMetrics) RecordListener(ctx context.Context, priority, mode string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("priority", priority),
		attribute.String("mode", mode),
	}
	m.listenerLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.listenerFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordFlowDrop records a dropped flow event.
func (m *otelMetrics) RecordFlowDrop(ctx context.Context, priority string) {
	m.flowDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("priority", priority)))
}

// RecordTransition records a state transition attempt.
func (m *otelMetrics) RecordTransition(ctx context.Context, from, to string, vetoed bool) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.Bool("vetoed", vetoed),
	))
}
