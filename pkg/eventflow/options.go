package eventflow

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/eventflow/pkg/eventflow/config"
	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
)

type dispatcherOptions struct {
	cfg             *config.Config
	blockingTimeout time.Duration
	eventTimeout    time.Duration
	logger          *slog.Logger
	metrics         observability.MetricsRecorder
	spans           observability.SpanManager
}

// Option configures a Dispatcher.
type Option func(*dispatcherOptions)

// WithBlockingTimeout sets the per-listener budget for blocking listeners.
// Default: 30s, or timeout.blocking from configuration.
//
// A blocking listener still running when its budget ends is abandoned and
// reported as a *ListenerError wrapping ErrListenerTimeout.
func WithBlockingTimeout(d time.Duration) Option {
	return func(o *dispatcherOptions) {
		if d > 0 {
			o.blockingTimeout = d
		}
	}
}

// WithEventTimeout sets the budget for all blocking listeners of one tier.
// Default: three times the blocking timeout, or timeout.event from
// configuration.
func WithEventTimeout(d time.Duration) Option {
	return func(o *dispatcherOptions) {
		if d > 0 {
			o.eventTimeout = d
		}
	}
}

// WithConfig reads timeouts from cfg instead of the process configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *dispatcherOptions) {
		o.cfg = &cfg
	}
}

// WithLogger sets the logger for broadcast diagnostics.
// Default: the scope's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *dispatcherOptions) {
		o.logger = logger
	}
}

// WithMetrics enables metrics collection.
//
// Example:
//
//	d := eventflow.NewDispatcher(nil, eventflow.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *dispatcherOptions) {
		o.metrics = m
	}
}

// WithSpanManager enables tracing of broadcasts and tiers.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(o *dispatcherOptions) {
		o.spans = sm
	}
}
