package scope

import (
	"context"
	"fmt"
)

// Task is a handle to work spawned on a Scope.
type Task struct {
	done chan struct{}
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Done returns a channel closed when the task has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task's error. Only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Join waits for the task to finish or for ctx to end.
// It returns the task's own error, or ctx's error if ctx ended first.
func (t *Task) Join(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PanicError captures a panic raised inside a spawned task.
type PanicError struct {
	// Scope is the name of the scope the task ran on.
	Scope string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task on %s panicked: %v", e.Scope, e.Value)
}
