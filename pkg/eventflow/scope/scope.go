// Package scope provides a supervising task group for eventflow.
//
// A Scope owns the goroutines it spawns. Cancelling a scope cancels every
// task spawned on it and on its children. A failing task never cancels its
// siblings: the failure is reported once to the scope's FailureHandler and
// the rest of the group keeps running.
//
// Example:
//
//	s := scope.New("orders", scope.WithLogger(logger))
//	defer s.Cancel()
//
//	task := s.Spawn(func(ctx context.Context) error {
//	    return process(ctx)
//	})
//	_ = task.Join(ctx)
package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// FailureHandler receives every uncaught failure of a task spawned on a scope.
// ctx is the failing task's context.
type FailureHandler func(ctx context.Context, err error, logger *slog.Logger, scopeName string)

// DefaultFailureHandler logs the failure at error level.
func DefaultFailureHandler(_ context.Context, err error, logger *slog.Logger, scopeName string) {
	logger.Error("caught failure",
		slog.String("scope", scopeName),
		slog.String("error", err.Error()),
	)
}

// Scope is a cancellable group of tasks with centralized failure reporting.
type Scope struct {
	name    string
	ctx     context.Context
	cancel  context.CancelFunc
	group   errgroup.Group
	parent  *Scope
	handler FailureHandler
	logger  *slog.Logger

	onClosed   func()
	cancelOnce sync.Once
}

// Option configures a Scope.
type Option func(*Scope)

// WithParent bounds the new scope's lifetime by parent.
// The parent's failure handler is not inherited; use Child for that.
func WithParent(parent *Scope) Option {
	return func(s *Scope) {
		s.parent = parent
	}
}

// WithContext sets the root context the scope derives from.
// Ignored when WithParent is also given.
func WithContext(ctx context.Context) Option {
	return func(s *Scope) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// WithFailureHandler sets the handler for uncaught task failures.
func WithFailureHandler(h FailureHandler) Option {
	return func(s *Scope) {
		if h != nil {
			s.handler = h
		}
	}
}

// WithLogger sets the logger passed to the failure handler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scope) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOnClosed registers a callback run once when the scope is cancelled.
func WithOnClosed(fn func()) Option {
	return func(s *Scope) {
		s.onClosed = fn
	}
}

// New creates a scope named name.
func New(name string, opts ...Option) *Scope {
	if name == "" {
		name = "UnnamedModule"
	}
	s := &Scope{
		name:    name,
		ctx:     context.Background(),
		handler: DefaultFailureHandler,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	parentCtx := s.ctx
	if s.parent != nil {
		parentCtx = s.parent.ctx
	}
	s.ctx, s.cancel = context.WithCancel(parentCtx)
	return s
}

// Child creates a scope whose lifetime is bounded by s.
// Failures in the child are reported through s's handler.
func (s *Scope) Child(name string) *Scope {
	child := New(s.name+"."+name, WithParent(s), WithLogger(s.logger))
	child.handler = func(ctx context.Context, err error, _ *slog.Logger, scopeName string) {
		s.report(ctx, err, scopeName)
	}
	return child
}

// Name returns the scope name used in diagnostics.
func (s *Scope) Name() string {
	return s.name
}

// Context returns the scope context. It is done once the scope is cancelled.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Logger returns the logger handed to the failure handler.
func (s *Scope) Logger() *slog.Logger {
	return s.logger
}

// Err returns a non-nil error once the scope has been cancelled.
func (s *Scope) Err() error {
	return s.ctx.Err()
}

// Spawn runs fn on a new goroutine supervised by the scope. It never blocks.
//
// A non-nil error returned by fn, or a panic inside fn, is reported to the
// failure handler exactly once. Spawning on a cancelled scope returns a task
// that is already finished with context.Canceled; fn is not run.
func (s *Scope) Spawn(fn func(ctx context.Context) error) *Task {
	t := newTask()
	if err := s.ctx.Err(); err != nil {
		t.finish(err)
		return t
	}

	s.group.Go(func() error {
		err := s.run(fn)
		if err != nil && !s.cancelledBy(err) {
			s.report(s.ctx, err, s.name)
		}
		t.finish(err)
		return nil
	})
	return t
}

func (s *Scope) run(fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				Scope: s.name,
				Value: r,
				Stack: string(debug.Stack()),
			}
		}
	}()
	return fn(s.ctx)
}

// cancelledBy reports whether err is just the scope's own cancellation
// surfacing through the task.
func (s *Scope) cancelledBy(err error) bool {
	return s.ctx.Err() != nil && errors.Is(err, context.Canceled)
}

// Report hands err to the scope's failure handler as if a task had failed.
func (s *Scope) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	s.report(ctx, err, s.name)
}

func (s *Scope) report(ctx context.Context, err error, scopeName string) {
	defer func() {
		// A panicking failure handler must not take the process down.
		if r := recover(); r != nil {
			s.logger.Error("failure handler panicked",
				slog.String("scope", scopeName),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	s.handler(ctx, err, s.logger, scopeName)
}

// Wait blocks until every task spawned on this scope has returned.
// Tasks of child scopes are not included.
func (s *Scope) Wait() {
	_ = s.group.Wait()
}

// Cancel cancels the scope and every task spawned on it or on its children.
// It is safe to call more than once.
func (s *Scope) Cancel() {
	s.cancelOnce.Do(func() {
		s.cancel()
		if s.onClosed != nil {
			s.onClosed()
		}
	})
}

// Dispose is Cancel under the lifecycle name callers usually look for.
func (s *Scope) Dispose() {
	s.Cancel()
}
