/*
Package eventflow provides an in-process, priority-tiered event dispatcher.

# Overview

A Dispatcher holds five tiers, Highest to Lowest. Each tier has parallel
listeners (spawned and never awaited), blocking listeners (run one at a
time in registration order) and a bounded channel read through Flow.
Broadcast walks the tiers in order and stops after the first tier whose
blocking listeners intercepted the event.

	type PlayerJoined struct {
	    eventflow.CancellableEvent
	    Name string
	}

	d := eventflow.NewDispatcher(nil)
	defer d.Cancel()

	eventflow.RegisterBlockingOf(d, eventflow.Highest, func(ctx context.Context, e *PlayerJoined) error {
	    if banned(e.Name) {
	        e.Cancel()
	        e.Intercept()
	    }
	    return nil
	})

	cancelled, err := d.Broadcast(ctx, &PlayerJoined{Name: "steve"})

# Listeners

Listener failures never reach the publisher. Errors, panics and timeouts are
wrapped in *ListenerError and handed to the failure handler of the scope the
dispatcher runs on (see package scope).

Blocking listeners run under two budgets: each listener gets the blocking
timeout (default 30s) and all blocking listeners of a tier together get the
event timeout (default three times the blocking timeout). A listener that
outlives its own budget is abandoned and the tier moves on. A tier that
outlives its budget fails the broadcast with *TierTimeoutError.

# Flags

Intercepted and cancelled are sticky for a broadcast. They are sampled after
every blocking listener; once either is seen true it stays true for that
broadcast even if a later listener clears it. Parallel listeners race with
everything else and should treat events as read-only.

# Flow

Flow ranges over a tier's channel (capacity 64). The send is spawned like a
parallel listener and waits up to the blocking timeout for room before the
event is dropped for that tier:

	for evt := range d.Flow(ctx, eventflow.Normal) {
	    handle(evt)
	}

NextEvent and NextEventOf return the first matching event.

# Configuration

NewDispatcher reads timeout.blocking and timeout.event through
config.Process, so EVENTFLOW_TIMEOUT_BLOCKING=500 in the environment or a
.env file sets a 500ms listener budget. WithBlockingTimeout and
WithEventTimeout take precedence.

# Observability

WithMetrics and WithSpanManager attach OpenTelemetry instruments from
package observability. Both default to no-op implementations.
*/
package eventflow
