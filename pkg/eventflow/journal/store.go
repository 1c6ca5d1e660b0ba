// Package journal records listener and interceptor failures reported to a
// scope so they can be inspected after the fact.
//
// A journal only keeps failure reports. Events and state transitions are
// never stored and cannot be replayed from it.
//
//	store, err := journal.NewSQLiteStore("failures.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	s := scope.New("EventManager",
//	    scope.WithFailureHandler(journal.FailureHandler(store, scope.DefaultFailureHandler)))
package journal

import (
	"errors"
	"time"
)

// Kind classifies a failure.
type Kind string

// Failure kinds.
const (
	KindListener    Kind = "listener"
	KindTimeout     Kind = "timeout"
	KindPanic       Kind = "panic"
	KindInterceptor Kind = "interceptor"
	KindOther       Kind = "other"
)

// Entry is one recorded failure.
type Entry struct {
	ID        string
	Sequence  int64
	Timestamp time.Time
	Scope     string
	Kind      Kind
	// Event is the event name for listener failures, empty otherwise.
	Event string
	// Priority is the tier for listener failures, empty otherwise.
	Priority string
	Message  string
}

// Store persists failure entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Record appends e. Sequence is assigned by the store.
	Record(e Entry) error

	// List returns entries of the given kind in recording order.
	// An empty kind lists everything.
	List(kind Kind) ([]Entry, error)

	// Count returns the number of entries of the given kind.
	// An empty kind counts everything.
	Count(kind Kind) (int, error)

	// Close releases any resources (connections, files).
	Close() error
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("journal store closed")
