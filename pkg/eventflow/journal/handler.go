package journal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventflow/pkg/eventflow"
	"github.com/randalmurphal/eventflow/pkg/eventflow/scope"
	"github.com/randalmurphal/eventflow/pkg/eventflow/state"
)

// Classify returns the kind of a reported failure. Panics win over
// timeouts, which win over the wrapper the failure arrived in.
func Classify(err error) Kind {
	var (
		pe *scope.PanicError
		ie *state.InterceptorError
		le *eventflow.ListenerError
	)
	switch {
	case errors.As(err, &pe):
		return KindPanic
	case errors.Is(err, eventflow.ErrListenerTimeout), errors.Is(err, eventflow.ErrTierTimeout):
		return KindTimeout
	case errors.As(err, &ie):
		return KindInterceptor
	case errors.As(err, &le):
		return KindListener
	default:
		return KindOther
	}
}

// NewEntry builds the entry recorded for err reported on scopeName.
func NewEntry(err error, scopeName string) Entry {
	e := Entry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Scope:     scopeName,
		Kind:      Classify(err),
		Message:   err.Error(),
	}
	var le *eventflow.ListenerError
	if errors.As(err, &le) {
		e.Event = le.Event
		e.Priority = le.Priority.String()
	}
	return e
}

// FailureHandler records every failure in store and then passes it to next.
// A nil next stops after recording. A failed write is logged and does not
// stop next from running.
func FailureHandler(store Store, next scope.FailureHandler) scope.FailureHandler {
	return func(ctx context.Context, err error, logger *slog.Logger, scopeName string) {
		if recErr := store.Record(NewEntry(err, scopeName)); recErr != nil && logger != nil {
			logger.Warn("failed to journal failure",
				slog.String("scope", scopeName),
				slog.String("error", recErr.Error()),
			)
		}
		if next != nil {
			next(ctx, err, logger, scopeName)
		}
	}
}
