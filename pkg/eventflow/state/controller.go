package state

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/randalmurphal/eventflow/pkg/eventflow/lock"
	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
	"github.com/randalmurphal/eventflow/pkg/eventflow/scope"
)

type observerEntry[S comparable, C any] struct {
	when When
	fn   Observer[S, C]
}

type interceptorEntry[S comparable, C any] struct {
	when When
	fn   Interceptor[S, C]
}

// Controller switches between a fixed set of state instances.
//
// S is the state key, I the instance type and C the parent value handed to
// observers and interceptors. Transitions are serialized: concurrent SetState
// calls run one at a time, and a hook that calls SetState with the context it
// was given re-enters instead of deadlocking.
type Controller[S comparable, I WithState[S], C any] struct {
	scope  *scope.Scope
	parent C
	states []I

	current     atomic.Pointer[I]
	initialized atomic.Bool
	mu          *lock.ReentrantMutex

	regMu        sync.Mutex
	observers    *orderedmap.OrderedMap[Handle, observerEntry[S, C]]
	interceptors *orderedmap.OrderedMap[Handle, interceptorEntry[S, C]]

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// New creates a controller over states. The first instance is the initial
// state; call Init before the first transition.
func New[S comparable, I WithState[S], C any](s *scope.Scope, parent C, states ...I) (*Controller[S, I, C], error) {
	if len(states) == 0 {
		return nil, ErrNoStates
	}
	seen := make(map[S]struct{}, len(states))
	for _, st := range states {
		key := st.State()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateState, key)
		}
		seen[key] = struct{}{}
	}
	if s == nil {
		s = scope.New("StateController")
	}

	c := &Controller[S, I, C]{
		scope:        s,
		parent:       parent,
		states:       append([]I(nil), states...),
		mu:           lock.New(),
		observers:    orderedmap.New[Handle, observerEntry[S, C]](),
		interceptors: orderedmap.New[Handle, interceptorEntry[S, C]](),
		logger:       s.Logger(),
		metrics:      observability.NoopMetrics{},
		spans:        observability.NoopSpanManager{},
	}
	first := c.states[0]
	c.current.Store(&first)
	return c, nil
}

// Option configures a Controller.
type Option func(*settings)

type settings struct {
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// WithLogger sets the logger for transition diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithMetrics records every transition attempt.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *settings) { s.metrics = m }
}

// WithSpanManager traces every transition.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(s *settings) { s.spans = sm }
}

// Configure applies opts. Call it before Init; it is not synchronized with
// running transitions.
func (c *Controller[S, I, C]) Configure(opts ...Option) *Controller[S, I, C] {
	st := settings{logger: c.logger, metrics: c.metrics, spans: c.spans}
	for _, opt := range opts {
		opt(&st)
	}
	if st.logger != nil {
		c.logger = st.logger
	}
	if st.metrics != nil {
		c.metrics = st.metrics
	}
	if st.spans != nil {
		c.spans = st.spans
	}
	return c
}

// Scope returns the scope observers and interceptors run on.
func (c *Controller[S, I, C]) Scope() *scope.Scope {
	return c.scope
}

// Init runs the initial state's entry hook. It must be called exactly once.
func (c *Controller[S, I, C]) Init(ctx context.Context) error {
	return c.mu.Do(ctx, func(ctx context.Context) error {
		if c.initialized.Load() {
			return ErrAlreadyInitialized
		}
		// Marked first so the entry hook may already transition.
		c.initialized.Store(true)
		cur := *c.current.Load()
		if err := cur.StartState(ctx); err != nil {
			c.initialized.Store(false)
			return &HookError{State: fmt.Sprint(cur.State()), Hook: "StartState", Err: err}
		}
		return nil
	})
}

// CurrentState returns the key of the current instance.
func (c *Controller[S, I, C]) CurrentState() S {
	return (*c.current.Load()).State()
}

// StateInstance returns the current instance.
func (c *Controller[S, I, C]) StateInstance() I {
	return *c.current.Load()
}

// States returns the instances the controller was built with.
func (c *Controller[S, I, C]) States() []I {
	return append([]I(nil), c.states...)
}

// Transition is SetState with the instance registered for key s.
func (c *Controller[S, I, C]) Transition(ctx context.Context, s S) (I, error) {
	for _, st := range c.states {
		if st.State() == s {
			return c.SetState(ctx, st)
		}
	}
	var zero I
	return zero, fmt.Errorf("%w: %v", ErrUnknownState, s)
}

// SetState makes after the current instance and returns the instance that
// was current before the call.
//
// BeforeUpdate interceptors run first, one at a time in registration order.
// If any of them vetoes, the transition is abandoned: no hooks run and no
// AfterUpdate callback fires. Otherwise the old instance's EndState runs,
// after becomes current, its StartState runs, then AfterUpdate interceptors
// (vetoes ignored) and observers.
//
// A failing EndState leaves the old instance current. A failing StartState
// leaves after current; in both cases a *HookError is returned and
// AfterUpdate callbacks are skipped.
func (c *Controller[S, I, C]) SetState(ctx context.Context, after I) (I, error) {
	return lock.With(ctx, c.mu, func(ctx context.Context) (I, error) {
		before := *c.current.Load()
		if !c.initialized.Load() {
			return before, ErrNotInitialized
		}

		from, to := before.State(), after.State()
		fromName, toName := fmt.Sprint(from), fmt.Sprint(to)
		start := time.Now()

		ctx, span := c.spans.StartTransitionSpan(ctx, fromName, toName)
		var err error
		defer func() { c.spans.EndSpanWithError(span, err) }()

		var vetoed bool
		vetoed, err = c.intercept(ctx, BeforeUpdate, from, to)
		if err != nil {
			return before, err
		}
		c.notify(BeforeUpdate, from, to)

		c.metrics.RecordTransition(ctx, fromName, toName, vetoed)
		observability.LogTransition(c.logger, fromName, toName, vetoed)
		if vetoed {
			c.spans.AddSpanEvent(ctx, "vetoed")
			return before, nil
		}

		if err = before.EndState(ctx); err != nil {
			err = &HookError{State: fromName, Hook: "EndState", Err: err}
			return before, err
		}
		c.current.Store(&after)
		if err = after.StartState(ctx); err != nil {
			err = &HookError{State: toName, Hook: "StartState", Err: err}
			return before, err
		}

		if _, err = c.intercept(ctx, AfterUpdate, from, to); err != nil {
			return before, err
		}
		c.notify(AfterUpdate, from, to)

		c.logger.Debug("state transition completed",
			slog.String("from", fromName),
			slog.String("to", toName),
			slog.Duration("duration", time.Since(start)),
		)
		return before, nil
	})
}

// intercept runs the interceptors registered for when, each spawned and
// joined before the next. The only error returned is ctx's.
func (c *Controller[S, I, C]) intercept(ctx context.Context, when When, from, to S) (bool, error) {
	var vetoed bool
	for h, fn := range c.interceptorsFor(when) {
		var veto bool
		task := c.scope.Spawn(func(scopeCtx context.Context) error {
			ictx, cancel := joinedContext(ctx, scopeCtx)
			defer cancel()

			v, err := c.callInterceptor(ictx, fn, from, to)
			if err != nil {
				return &InterceptorError{
					Handle: h,
					When:   when,
					Before: fmt.Sprint(from),
					After:  fmt.Sprint(to),
					Err:    err,
				}
			}
			veto = v
			return nil
		})
		if err := task.Join(ctx); err != nil && ctx.Err() != nil {
			return vetoed, ctx.Err()
		}
		vetoed = vetoed || veto
	}
	return vetoed, nil
}

func (c *Controller[S, I, C]) callInterceptor(ctx context.Context, fn Interceptor[S, C], from, to S) (veto bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			veto = false
			err = &scope.PanicError{Scope: c.scope.Name(), Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn(ctx, c.parent, from, to)
}

// notify spawns the observers registered for when without waiting.
func (c *Controller[S, I, C]) notify(when When, from, to S) {
	for _, fn := range c.observersFor(when) {
		c.scope.Spawn(func(ctx context.Context) error {
			fn(ctx, c.parent, from, to)
			return nil
		})
	}
}

func (c *Controller[S, I, C]) interceptorsFor(when When) func(yield func(Handle, Interceptor[S, C]) bool) {
	c.regMu.Lock()
	var (
		handles []Handle
		fns     []Interceptor[S, C]
	)
	for pair := c.interceptors.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.when == when {
			handles = append(handles, pair.Key)
			fns = append(fns, pair.Value.fn)
		}
	}
	c.regMu.Unlock()

	return func(yield func(Handle, Interceptor[S, C]) bool) {
		for i := range handles {
			if !yield(handles[i], fns[i]) {
				return
			}
		}
	}
}

func (c *Controller[S, I, C]) observersFor(when When) []Observer[S, C] {
	c.regMu.Lock()
	defer c.regMu.Unlock()

	var fns []Observer[S, C]
	for pair := c.observers.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.when == when {
			fns = append(fns, pair.Value.fn)
		}
	}
	return fns
}

// ObserveStateChange registers fn to be notified of transitions in phase when.
//
// Funcs cannot be compared, so registering the same fn twice adds two
// entries. To replace a registration, pass its Handle back with WithHandle.
func (c *Controller[S, I, C]) ObserveStateChange(when When, fn Observer[S, C], opts ...RegisterOption) Handle {
	h := resolveHandle(opts)
	c.regMu.Lock()
	defer c.regMu.Unlock()
	c.observers.Set(h, observerEntry[S, C]{when: when, fn: fn})
	return h
}

// InterceptStateChange registers fn to run as part of transitions in phase
// when. Only BeforeUpdate interceptors can veto.
//
// As with ObserveStateChange, the same fn registered twice runs twice unless
// the second registration reuses the first Handle through WithHandle.
func (c *Controller[S, I, C]) InterceptStateChange(when When, fn Interceptor[S, C], opts ...RegisterOption) Handle {
	h := resolveHandle(opts)
	c.regMu.Lock()
	defer c.regMu.Unlock()
	c.interceptors.Set(h, interceptorEntry[S, C]{when: when, fn: fn})
	return h
}

// Observe registers an observer that does not need the state keys.
func (c *Controller[S, I, C]) Observe(when When, fn func(ctx context.Context, parent C), opts ...RegisterOption) Handle {
	return c.ObserveStateChange(when, func(ctx context.Context, parent C, _, _ S) {
		fn(ctx, parent)
	}, opts...)
}

// Intercept registers a veto that does not need the state keys.
func (c *Controller[S, I, C]) Intercept(when When, fn func(ctx context.Context, parent C) bool, opts ...RegisterOption) Handle {
	return c.InterceptStateChange(when, func(ctx context.Context, parent C, _, _ S) (bool, error) {
		return fn(ctx, parent), nil
	}, opts...)
}

// Block registers fn to run serially as part of transitions without ever
// vetoing them.
func (c *Controller[S, I, C]) Block(when When, fn func(ctx context.Context, parent C) error, opts ...RegisterOption) Handle {
	return c.InterceptStateChange(when, func(ctx context.Context, parent C, _, _ S) (bool, error) {
		return false, fn(ctx, parent)
	}, opts...)
}

// Remove unregisters the observer or interceptor stored under h.
// It reports whether anything was removed.
func (c *Controller[S, I, C]) Remove(h Handle) bool {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	_, inObservers := c.observers.Delete(h)
	_, inInterceptors := c.interceptors.Delete(h)
	return inObservers || inInterceptors
}

// ClearObservers removes every observer.
func (c *Controller[S, I, C]) ClearObservers() {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	c.observers = orderedmap.New[Handle, observerEntry[S, C]]()
}

// ClearInterceptors removes every interceptor.
func (c *Controller[S, I, C]) ClearInterceptors() {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	c.interceptors = orderedmap.New[Handle, interceptorEntry[S, C]]()
}

// joinedContext keeps the values of valueCtx (including the transition's
// lock marker) and ends when either valueCtx or scopeCtx ends.
func joinedContext(valueCtx, scopeCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(valueCtx)
	stop := context.AfterFunc(scopeCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
