// Package state provides a generic state controller.
//
// A Controller holds one current instance out of a fixed set of state
// instances, each identified by a comparable key. Transitions run the exit
// hook of the old instance and the entry hook of the new one, and can be
// watched by observers or vetoed by interceptors registered on the
// controller.
//
//	type Phase int
//
//	type Door interface {
//	    state.WithState[Phase]
//	    Open() error
//	}
//
//	ctrl, err := state.New(s, house, &closed{}, &opened{})
//	_ = ctrl.Init(ctx)
//	_, err = ctrl.Transition(ctx, PhaseOpen)
package state

import (
	"context"

	"github.com/google/uuid"
)

// WithState is implemented by every state instance managed by a Controller.
type WithState[S comparable] interface {
	// State returns the key identifying this instance.
	State() S
	// StartState runs when the instance becomes current.
	StartState(ctx context.Context) error
	// EndState runs when the instance stops being current.
	EndState(ctx context.Context) error
}

// Base provides the key and no-op hooks. Embed it and override what you need.
type Base[S comparable] struct {
	Key S
}

// State implements WithState.
func (b Base[S]) State() S { return b.Key }

// StartState implements WithState.
func (Base[S]) StartState(context.Context) error { return nil }

// EndState implements WithState.
func (Base[S]) EndState(context.Context) error { return nil }

// When selects the phase of a transition an observer or interceptor runs in.
type When int

const (
	// BeforeUpdate runs before the hooks. Interceptors here can veto.
	BeforeUpdate When = iota
	// AfterUpdate runs once the new state is current. Vetoes are ignored.
	AfterUpdate
)

func (w When) String() string {
	switch w {
	case BeforeUpdate:
		return "BEFORE_UPDATE"
	case AfterUpdate:
		return "AFTER_UPDATE"
	default:
		return "UNKNOWN"
	}
}

// Handle identifies a registered observer or interceptor.
type Handle uuid.UUID

// NewHandle returns a fresh random Handle.
func NewHandle() Handle {
	return Handle(uuid.New())
}

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// Observer is notified of a transition. Observers run detached on the
// controller's scope and are never awaited.
type Observer[S comparable, C any] func(ctx context.Context, parent C, before, after S)

// Interceptor runs as part of a transition and may veto it by returning true.
// An error is reported to the scope and counts as no veto.
type Interceptor[S comparable, C any] func(ctx context.Context, parent C, before, after S) (bool, error)

// RegisterOption configures an observer or interceptor registration.
type RegisterOption func(*registration)

type registration struct {
	handle Handle
	set    bool
}

// WithHandle registers under h instead of a fresh handle. A registration
// already stored under h is replaced in place.
func WithHandle(h Handle) RegisterOption {
	return func(r *registration) {
		r.handle = h
		r.set = true
	}
}

func resolveHandle(opts []RegisterOption) Handle {
	var r registration
	for _, opt := range opts {
		opt(&r)
	}
	if r.set {
		return r.handle
	}
	return NewHandle()
}
