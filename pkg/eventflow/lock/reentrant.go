// Package lock provides a context-scoped reentrant mutex.
//
// Goroutines have no identity in Go, so re-entrancy is tracked on the
// context.Context a logical task carries: holding the lock tags the context,
// and any call that passes that context (or one derived from it) back in
// runs without re-acquiring.
package lock

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// ReentrantMutex is a mutual exclusion lock that a task may re-enter through
// its context. The zero value is not usable; call New.
type ReentrantMutex struct {
	sem *semaphore.Weighted
}

// heldKey tags a context holding a specific mutex.
type heldKey struct {
	m *ReentrantMutex
}

// New returns an unlocked ReentrantMutex.
func New() *ReentrantMutex {
	return &ReentrantMutex{sem: semaphore.NewWeighted(1)}
}

// Held reports whether ctx carries the marker for m.
func Held(ctx context.Context, m *ReentrantMutex) bool {
	return ctx.Value(heldKey{m}) != nil
}

// Do runs fn while holding m.
//
// If ctx already holds m, fn runs directly with ctx. Otherwise Do waits for
// the lock (giving up with ctx's error if ctx ends first), runs fn with a
// context tagged as holding m, and releases the lock on every exit path.
// Errors and panics from fn propagate unchanged.
func (m *ReentrantMutex) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := With(ctx, m, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// With is Do for functions that return a value.
func With[T any](ctx context.Context, m *ReentrantMutex, fn func(ctx context.Context) (T, error)) (T, error) {
	if Held(ctx, m) {
		return fn(ctx)
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		var zero T
		return zero, err
	}
	defer m.sem.Release(1)

	return fn(context.WithValue(ctx, heldKey{m}, struct{}{}))
}
