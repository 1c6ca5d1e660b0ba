package state

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStates indicates New was called without any state instance.
	ErrNoStates = errors.New("no states given")

	// ErrDuplicateState indicates two instances share a state key.
	ErrDuplicateState = errors.New("duplicate state")

	// ErrUnknownState indicates Transition was given a key with no instance.
	ErrUnknownState = errors.New("unknown state")

	// ErrNotInitialized indicates SetState was called before Init.
	ErrNotInitialized = errors.New("controller not initialized")

	// ErrAlreadyInitialized indicates Init was called twice.
	ErrAlreadyInitialized = errors.New("controller already initialized")
)

// HookError wraps a failing StartState or EndState hook.
type HookError struct {
	// State is the key of the instance whose hook failed, formatted with %v.
	State string
	// Hook is "StartState" or "EndState".
	Hook string
	// Err is the error returned by the hook.
	Err error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return fmt.Sprintf("state %s: %s: %v", e.State, e.Hook, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *HookError) Unwrap() error {
	return e.Err
}

// InterceptorError wraps an interceptor failure. It is reported to the
// controller's scope and never returned from SetState.
type InterceptorError struct {
	// Handle is the registration that failed.
	Handle Handle
	// When is the phase the interceptor ran in.
	When When
	// Before and After are the transition's state keys, formatted with %v.
	Before, After string
	// Err is the returned error or a *scope.PanicError.
	Err error
}

// Error implements the error interface.
func (e *InterceptorError) Error() string {
	return fmt.Sprintf("interceptor %s (%s %s -> %s): %v", e.Handle, e.When, e.Before, e.After, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *InterceptorError) Unwrap() error {
	return e.Err
}
