package eventflow

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for broadcasting.
var (
	// ErrListenerTimeout indicates a blocking listener exceeded its budget.
	ErrListenerTimeout = errors.New("listener timed out")

	// ErrTierTimeout indicates the blocking listeners of one tier exceeded
	// the tier budget as a whole.
	ErrTierTimeout = errors.New("tier timed out")

	// ErrDispatcherClosed indicates Broadcast was called after Cancel.
	ErrDispatcherClosed = errors.New("dispatcher closed")

	// ErrInvalidPriority indicates a listener was registered on an unknown tier.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrNilEvent indicates Broadcast was called with a nil event.
	ErrNilEvent = errors.New("event cannot be nil")
)

// Listener modes as reported in ListenerError and metrics.
const (
	ModeParallel = "parallel"
	ModeBlocking = "blocking"
)

// ListenerError wraps a listener failure with the tier it ran on.
// It is reported to the dispatcher scope's failure handler, never returned
// from Broadcast.
type ListenerError struct {
	// Priority is the tier the listener was registered on.
	Priority Priority
	// Mode is ModeParallel or ModeBlocking.
	Mode string
	// Event is the name of the event being delivered.
	Event string
	// Err is the underlying error, ErrListenerTimeout or a *scope.PanicError.
	Err error
}

// Error implements the error interface.
func (e *ListenerError) Error() string {
	return fmt.Sprintf("%s listener on %s for %s: %v", e.Mode, e.Priority, e.Event, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ListenerError) Unwrap() error {
	return e.Err
}

// TierTimeoutError is returned from Broadcast when a tier's blocking
// listeners did not all finish within the tier budget.
type TierTimeoutError struct {
	// Priority is the tier that ran out of time.
	Priority Priority
	// Timeout is the tier budget.
	Timeout time.Duration
	// Completed is the number of blocking listeners that finished.
	Completed int
	// Total is the number of blocking listeners on the tier.
	Total int
}

// Error implements the error interface.
func (e *TierTimeoutError) Error() string {
	return fmt.Sprintf("tier %s timed out after %s (%d/%d listeners completed)",
		e.Priority, e.Timeout, e.Completed, e.Total)
}

// Unwrap returns ErrTierTimeout for errors.Is support.
func (e *TierTimeoutError) Unwrap() error {
	return ErrTierTimeout
}
