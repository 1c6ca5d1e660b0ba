package eventflow

import (
	"reflect"
	"sync/atomic"
)

// Event is anything that can be broadcast through a Dispatcher.
//
// Embed BaseEvent (or CancellableEvent) to satisfy it:
//
//	type PlayerJoined struct {
//	    eventflow.BaseEvent
//	    Name string
//	}
type Event interface {
	// Intercept stops propagation of the event to lower priority tiers.
	Intercept()
	// IsIntercepted reports whether any listener intercepted the event.
	IsIntercepted() bool
}

// Cancellable is an Event whose outcome can be vetoed by a listener.
// The cancelled state is what Broadcast reports back to the publisher.
type Cancellable interface {
	Event
	// Cancel marks the event cancelled.
	Cancel()
	// IsCancelled reports whether the event was cancelled.
	IsCancelled() bool
}

// Named lets an event choose the name used in logs, metrics and spans.
// Events that don't implement it are labelled with their Go type name.
type Named interface {
	EventName() string
}

// BaseEvent implements Event. The zero value is ready to use.
type BaseEvent struct {
	intercepted atomic.Bool
}

// Intercept implements Event.
func (e *BaseEvent) Intercept() {
	e.intercepted.Store(true)
}

// IsIntercepted implements Event.
func (e *BaseEvent) IsIntercepted() bool {
	return e.intercepted.Load()
}

// CancellableEvent implements Cancellable. The zero value is ready to use.
type CancellableEvent struct {
	BaseEvent
	cancelled atomic.Bool

	// OnCancel, if set, runs synchronously inside Cancel after the flag is set.
	OnCancel func()
}

// Cancel implements Cancellable.
func (e *CancellableEvent) Cancel() {
	e.cancelled.Store(true)
	if e.OnCancel != nil {
		e.OnCancel()
	}
}

// IsCancelled implements Cancellable.
func (e *CancellableEvent) IsCancelled() bool {
	return e.cancelled.Load()
}

// isCancelled reports whether evt is cancellable and currently cancelled.
func isCancelled(evt Event) bool {
	c, ok := evt.(Cancellable)
	return ok && c.IsCancelled()
}

// EventName returns the label used for evt in diagnostics.
func EventName(evt Event) string {
	if evt == nil {
		return "<nil>"
	}
	if n, ok := evt.(Named); ok {
		return n.EventName()
	}
	t := reflect.TypeOf(evt)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

// Priority selects the tier a listener is registered on.
// Tiers are visited from Highest to Lowest.
type Priority int

const (
	Highest Priority = iota
	High
	Normal
	Low
	Lowest
)

var priorityNames = [...]string{"HIGHEST", "HIGH", "NORMAL", "LOW", "LOWEST"}

// String returns the upper-case tier name.
func (p Priority) String() string {
	if p.valid() {
		return priorityNames[p]
	}
	return "UNKNOWN"
}

func (p Priority) valid() bool {
	return p >= Highest && p <= Lowest
}

// Priorities returns every tier in broadcast order.
func Priorities() []Priority {
	return []Priority{Highest, High, Normal, Low, Lowest}
}
