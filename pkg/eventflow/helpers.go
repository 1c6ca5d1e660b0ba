package eventflow

import "context"

// RegisterOf adds a parallel listener that only sees events of type T.
func RegisterOf[T Event](d *Dispatcher, p Priority, fn func(ctx context.Context, evt T) error) error {
	return d.Register(p, typed(fn))
}

// RegisterBlockingOf adds a blocking listener that only sees events of type T.
func RegisterBlockingOf[T Event](d *Dispatcher, p Priority, fn func(ctx context.Context, evt T) error) error {
	return d.RegisterBlocking(p, typed(fn))
}

func typed[T Event](fn func(ctx context.Context, evt T) error) Listener {
	return func(ctx context.Context, evt Event) error {
		if e, ok := evt.(T); ok {
			return fn(ctx, e)
		}
		return nil
	}
}

// NextEvent waits for the first event on tier p's flow accepted by filter.
// A nil filter accepts any event.
//
// It returns ctx's error if ctx ends first and ErrDispatcherClosed if the
// dispatcher is cancelled while waiting.
func NextEvent(ctx context.Context, d *Dispatcher, p Priority, filter func(Event) bool) (Event, error) {
	for evt := range d.Flow(ctx, p) {
		if filter == nil || filter(evt) {
			return evt, nil
		}
	}
	return nil, d.waitErr(ctx)
}

// NextEventOf is NextEvent restricted to events of type T.
func NextEventOf[T Event](ctx context.Context, d *Dispatcher, p Priority, filter func(T) bool) (T, error) {
	evt, err := NextEvent(ctx, d, p, func(evt Event) bool {
		e, ok := evt.(T)
		return ok && (filter == nil || filter(e))
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return evt.(T), nil
}

func (d *Dispatcher) waitErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.scope.Err() != nil {
		return ErrDispatcherClosed
	}
	return ErrInvalidPriority
}

// BroadcastAndThen broadcasts evt and, unless it was cancelled, runs
// ifNotCancelled. It reports whether evt was cancelled.
func BroadcastAndThen[E Event](ctx context.Context, d *Dispatcher, evt E, ifNotCancelled func(ctx context.Context, evt E) error) (bool, error) {
	cancelled, err := d.Broadcast(ctx, evt)
	if err != nil || cancelled {
		return cancelled, err
	}
	return false, ifNotCancelled(ctx, evt)
}

// BroadcastIfCancelled broadcasts evt and runs ifCancelled when it was
// cancelled. It reports whether evt was cancelled.
func BroadcastIfCancelled[E Event](ctx context.Context, d *Dispatcher, evt E, ifCancelled func(ctx context.Context, evt E) error) (bool, error) {
	cancelled, err := d.Broadcast(ctx, evt)
	if err != nil || !cancelled {
		return cancelled, err
	}
	return true, ifCancelled(ctx, evt)
}

// BroadcastEither broadcasts evt and runs exactly one of the two branches.
func BroadcastEither[E Event](ctx context.Context, d *Dispatcher, evt E, ifNotCancelled, ifCancelled func(ctx context.Context, evt E) error) error {
	cancelled, err := d.Broadcast(ctx, evt)
	if err != nil {
		return err
	}
	if cancelled {
		return ifCancelled(ctx, evt)
	}
	return ifNotCancelled(ctx, evt)
}
