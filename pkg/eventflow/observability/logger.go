// Package observability provides logging, metrics, and tracing for eventflow.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds dispatcher context to a logger.
// Returns a new logger with scope and event fields. The broadcast helpers
// below expect a logger built this way and do not repeat the event name.
//
// Example:
//
//	logger := EnrichLogger(base, "EventManager", "PlayerJoined")
//	LogBroadcastStart(logger) // includes scope and event
func EnrichLogger(logger *slog.Logger, scopeName, eventName string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("scope", scopeName),
		slog.String("event", eventName),
	)
}

// LogBroadcastStart logs the start of a broadcast.
func LogBroadcastStart(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Debug("broadcast starting")
}

// LogIntercepted logs that a tier intercepted the event.
func LogIntercepted(logger *slog.Logger, priority string, cancelled bool) {
	if logger == nil {
		return
	}
	logger.Debug("event intercepted",
		slog.String("priority", priority),
		slog.Bool("cancelled", cancelled),
	)
}

// LogBroadcastComplete logs the end of a broadcast that did not fail.
func LogBroadcastComplete(logger *slog.Logger, cancelled bool, durationMs float64) {
	if logger == nil {
		return
	}
	if cancelled {
		logger.Debug("broadcast cancelled",
			slog.Float64("duration_ms", durationMs),
		)
		return
	}
	logger.Debug("broadcast completed",
		slog.Float64("duration_ms", durationMs),
	)
}

// LogBroadcastError logs a broadcast that failed as a whole.
func LogBroadcastError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Error("broadcast failed",
		slog.String("error", err.Error()),
	)
}

// LogFlowDrop logs an event that could not be placed on a full tier channel.
func LogFlowDrop(logger *slog.Logger, priority string) {
	if logger == nil {
		return
	}
	logger.Debug("flow buffer full, event dropped",
		slog.String("priority", priority),
	)
}

// LogTransition logs a state transition attempt.
func LogTransition(logger *slog.Logger, from, to string, vetoed bool) {
	if logger == nil {
		return
	}
	if vetoed {
		logger.Debug("state transition vetoed",
			slog.String("from", from),
			slog.String("to", to),
		)
		return
	}
	logger.Debug("state transition",
		slog.String("from", from),
		slog.String("to", to),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
