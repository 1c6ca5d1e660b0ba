package eventflow

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/eventflow/pkg/eventflow/config"
	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
	"github.com/randalmurphal/eventflow/pkg/eventflow/scope"
)

// DefaultBlockingTimeout is the per-listener budget for blocking listeners
// when neither configuration nor options set one.
const DefaultBlockingTimeout = 30 * time.Second

// FlowBufferSize is the capacity of each tier's flow channel.
const FlowBufferSize = 64

// Listener receives broadcast events.
//
// Parallel listeners must not rely on Intercept or Cancel: they race with
// each other and with the blocking listeners of their tier. A returned error
// is reported to the dispatcher's scope and never reaches the publisher.
type Listener func(ctx context.Context, evt Event) error

type tier struct {
	priority Priority
	parallel *haxmap.Map[uint64, Listener]

	mu       sync.RWMutex
	blocking []Listener

	ch chan Event
}

func newTier(p Priority) *tier {
	return &tier{
		priority: p,
		parallel: haxmap.New[uint64, Listener](),
		ch:       make(chan Event, FlowBufferSize),
	}
}

func (t *tier) blockingListeners() []Listener {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.blocking
}

// Dispatcher delivers events to listeners grouped into priority tiers.
//
// Tiers are visited from Highest to Lowest. On each tier the parallel
// listeners are spawned without waiting, the event is offered to the tier's
// Flow channel, and the blocking listeners run one after another in
// registration order. A blocking listener that intercepts the event stops
// delivery to lower tiers.
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	scope *scope.Scope
	tiers [len(priorityNames)]*tier

	blockingTimeout time.Duration
	eventTimeout    time.Duration

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	nextID atomic.Uint64
}

// NewDispatcher creates a dispatcher whose listeners run on s.
// A nil s gets a fresh scope named "EventManager".
//
// Timeouts come from the process configuration (see config.Process) unless
// set with WithConfig, WithBlockingTimeout or WithEventTimeout.
func NewDispatcher(s *scope.Scope, opts ...Option) *Dispatcher {
	if s == nil {
		s = scope.New("EventManager")
	}

	o := dispatcherOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = s.Logger()
	}

	var cfg config.Config
	if o.cfg != nil {
		cfg = *o.cfg
	} else {
		var err error
		cfg, err = config.Process()
		if err != nil {
			logger.Warn("loading dispatcher configuration",
				slog.String("error", err.Error()))
		}
	}

	blocking := o.blockingTimeout
	if blocking <= 0 {
		blocking = cfg.Millis(config.KeyBlockingTimeout, DefaultBlockingTimeout)
	}
	event := o.eventTimeout
	if event <= 0 {
		event = cfg.Millis(config.KeyEventTimeout, 3*blocking)
	}

	d := &Dispatcher{
		scope:           s,
		blockingTimeout: blocking,
		eventTimeout:    event,
		logger:          logger,
		metrics:         o.metrics,
		spans:           o.spans,
	}
	if d.metrics == nil {
		d.metrics = observability.NoopMetrics{}
	}
	if d.spans == nil {
		d.spans = observability.NoopSpanManager{}
	}
	for _, p := range Priorities() {
		d.tiers[p] = newTier(p)
	}
	return d
}

// Scope returns the scope listeners are spawned on.
func (d *Dispatcher) Scope() *scope.Scope {
	return d.scope
}

// BlockingTimeout returns the per-listener budget for blocking listeners.
func (d *Dispatcher) BlockingTimeout() time.Duration {
	return d.blockingTimeout
}

// EventTimeout returns the budget for one tier's blocking listeners.
func (d *Dispatcher) EventTimeout() time.Duration {
	return d.eventTimeout
}

// Cancel cancels the dispatcher's scope. In-flight listeners see their
// context cancelled and later broadcasts fail with ErrDispatcherClosed.
func (d *Dispatcher) Cancel() {
	d.scope.Cancel()
}

func (d *Dispatcher) tier(p Priority) (*tier, error) {
	if !p.valid() {
		return nil, ErrInvalidPriority
	}
	return d.tiers[p], nil
}

// Register adds a parallel listener to tier p.
func (d *Dispatcher) Register(p Priority, l Listener) error {
	t, err := d.tier(p)
	if err != nil {
		return err
	}
	t.parallel.Set(d.nextID.Add(1), l)
	return nil
}

// RegisterBlocking adds a blocking listener to tier p. Blocking listeners
// run in registration order and may intercept or cancel the event.
func (d *Dispatcher) RegisterBlocking(p Priority, l Listener) error {
	t, err := d.tier(p)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.blocking = append(t.blocking, l)
	t.mu.Unlock()
	return nil
}

// Flow returns the events offered to tier p's channel.
//
// The sequence ends when ctx is done, the dispatcher is cancelled or the
// consumer stops ranging. Each call starts a new sequence over the same
// channel, so concurrent consumers compete for events.
//
// The channel holds FlowBufferSize events. When it is full, a broadcast
// waits up to the blocking timeout for room and then drops the event for
// this tier; the drop is logged and recorded as a flow drop metric.
func (d *Dispatcher) Flow(ctx context.Context, p Priority) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		t, err := d.tier(p)
		if err != nil {
			return
		}
		closed := d.scope.Context().Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-closed:
				return
			case evt := <-t.ch:
				if !yield(evt) {
					return
				}
			}
		}
	}
}

// Broadcast delivers evt to every tier until a blocking listener intercepts
// it, and reports whether evt ended up cancelled.
//
// Listener failures and per-listener timeouts are reported to the scope and
// do not fail the broadcast. Broadcast returns an error only when a tier's
// blocking listeners exceed the tier budget (*TierTimeoutError), when ctx
// ends, or when the dispatcher has been cancelled.
func (d *Dispatcher) Broadcast(ctx context.Context, evt Event) (bool, error) {
	if evt == nil {
		return false, ErrNilEvent
	}
	if d.scope.Err() != nil {
		return false, ErrDispatcherClosed
	}

	name := EventName(evt)
	logger := observability.EnrichLogger(d.logger, d.scope.Name(), name)
	done := observability.TimedOperation()
	start := time.Now()

	ctx, span := d.spans.StartBroadcastSpan(ctx, d.scope.Name(), name)
	observability.LogBroadcastStart(logger)

	cancelled, err := d.propagate(ctx, evt, name, logger)

	d.spans.EndSpanWithError(span, err)
	d.metrics.RecordBroadcast(ctx, name, cancelled, time.Since(start), err)
	if err != nil {
		observability.LogBroadcastError(logger, err)
	} else {
		observability.LogBroadcastComplete(logger, cancelled, done())
	}
	return cancelled, err
}

func (d *Dispatcher) propagate(ctx context.Context, evt Event, name string, logger *slog.Logger) (bool, error) {
	var intercepted, cancelled bool
	for _, t := range d.tiers {
		if err := ctx.Err(); err != nil {
			return cancelled, err
		}

		d.fanOut(ctx, t, evt, name, logger)

		i, c, err := d.runBlocking(ctx, t, evt, name)
		// Sticky: a later listener clearing a flag does not undo it.
		intercepted = intercepted || i
		cancelled = cancelled || c
		if err != nil {
			return cancelled, err
		}

		if intercepted {
			observability.LogIntercepted(logger, t.priority.String(), cancelled)
			d.spans.AddSpanEvent(ctx, "intercepted",
				attribute.String("priority", t.priority.String()),
				attribute.Bool("cancelled", cancelled),
			)
			return cancelled, nil
		}
	}
	return cancelled, nil
}

// fanOut spawns the tier's parallel listeners and the flow send.
func (d *Dispatcher) fanOut(ctx context.Context, t *tier, evt Event, name string, logger *slog.Logger) {
	t.parallel.ForEach(func(_ uint64, l Listener) bool {
		d.scope.Spawn(func(scopeCtx context.Context) error {
			lctx, cancel := listenerContext(ctx, scopeCtx, 0)
			defer cancel()

			start := time.Now()
			err := d.invoke(lctx, t.priority, ModeParallel, l, evt, name)
			d.metrics.RecordListener(lctx, t.priority.String(), ModeParallel, time.Since(start), err)
			return err
		})
		return true
	})

	d.scope.Spawn(func(scopeCtx context.Context) error {
		d.send(scopeCtx, t, evt, logger)
		return nil
	})
}

// send offers evt to the tier channel, waiting at most blockingTimeout for
// room before dropping it.
func (d *Dispatcher) send(ctx context.Context, t *tier, evt Event, logger *slog.Logger) {
	select {
	case t.ch <- evt:
		return
	default:
	}

	timer := time.NewTimer(d.blockingTimeout)
	defer timer.Stop()

	select {
	case t.ch <- evt:
	case <-timer.C:
		observability.LogFlowDrop(logger, t.priority.String())
		d.metrics.RecordFlowDrop(ctx, t.priority.String())
	case <-ctx.Done():
	}
}

// runBlocking runs the tier's blocking listeners one at a time under the
// tier budget and reports the flags observed after each of them.
func (d *Dispatcher) runBlocking(ctx context.Context, t *tier, evt Event, name string) (intercepted, cancelled bool, err error) {
	listeners := t.blockingListeners()
	if len(listeners) == 0 {
		return false, false, nil
	}

	tierCtx, cancel := context.WithTimeout(ctx, d.eventTimeout)
	defer cancel()

	tierCtx, span := d.spans.StartTierSpan(tierCtx, t.priority.String())
	defer func() { d.spans.EndSpanWithError(span, err) }()

	for i, l := range listeners {
		task := d.scope.Spawn(func(scopeCtx context.Context) error {
			return d.callBlocking(tierCtx, scopeCtx, t.priority, l, evt, name)
		})

		select {
		case <-task.Done():
		case <-tierCtx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return intercepted, cancelled, ctxErr
			}
			return intercepted, cancelled, &TierTimeoutError{
				Priority:  t.priority,
				Timeout:   d.eventTimeout,
				Completed: i,
				Total:     len(listeners),
			}
		}

		intercepted = intercepted || evt.IsIntercepted()
		cancelled = cancelled || isCancelled(evt)
	}
	return intercepted, cancelled, nil
}

// callBlocking runs one blocking listener and returns once it finished or
// its budget ran out. A listener that ignores its context keeps running on
// its own goroutine; its result is discarded.
func (d *Dispatcher) callBlocking(valueCtx, scopeCtx context.Context, p Priority, l Listener, evt Event, name string) error {
	lctx, cancel := listenerContext(valueCtx, scopeCtx, d.blockingTimeout)
	defer cancel()

	start := time.Now()
	result := make(chan error, 1)
	go func() {
		result <- d.invoke(lctx, p, ModeBlocking, l, evt, name)
	}()

	var err error
	select {
	case err = <-result:
		if err != nil && lctx.Err() != nil && errors.Is(err, lctx.Err()) {
			err = d.expired(lctx, p, name)
		}
	case <-lctx.Done():
		err = d.expired(lctx, p, name)
	}
	d.metrics.RecordListener(lctx, p.String(), ModeBlocking, time.Since(start), err)
	return err
}

// expired describes a blocking listener whose context ended before it
// returned. Scope cancellation keeps context.Canceled in the chain so the
// scope does not report its own shutdown.
func (d *Dispatcher) expired(lctx context.Context, p Priority, name string) error {
	cause := ErrListenerTimeout
	if errors.Is(lctx.Err(), context.Canceled) {
		cause = context.Canceled
	}
	return &ListenerError{Priority: p, Mode: ModeBlocking, Event: name, Err: cause}
}

// invoke calls l, turning a panic into a *scope.PanicError and wrapping any
// failure in a *ListenerError.
func (d *Dispatcher) invoke(ctx context.Context, p Priority, mode string, l Listener, evt Event, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &scope.PanicError{
				Scope: d.scope.Name(),
				Value: r,
				Stack: string(debug.Stack()),
			}
		}
		if err != nil {
			err = &ListenerError{Priority: p, Mode: mode, Event: name, Err: err}
		}
	}()
	return l(ctx, evt)
}

// listenerContext carries the values of valueCtx (trace spans, caller
// markers) but is cancelled by the scope rather than by the publisher, so
// detached listeners outlive the Broadcast call that started them.
// A positive timeout bounds it further.
func listenerContext(valueCtx, scopeCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(valueCtx)

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(base, timeout)
	} else {
		ctx, cancel = context.WithCancel(base)
	}
	stop := context.AfterFunc(scopeCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
