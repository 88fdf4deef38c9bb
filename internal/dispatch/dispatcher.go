// Package dispatch implements the ordered trigger-dispatch kernel.
//
// The Dispatcher is the sole owner of the trigger list. Modules interact with
// it only through Register and Remove - never by holding the slice. Dispatch
// evaluates triggers strictly in registration order: first registered wins,
// and a matched handler returning false falls through to the next trigger.
//
// Mutation is safe to interleave with an in-flight dispatch: Dispatch works
// on a snapshot, so a removal takes effect for the next dispatch while an
// event already mid-dispatch completes against the old list.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/trigger"
)

// Dispatcher owns the ordered, mutable trigger list.
type Dispatcher struct {
	log *slog.Logger

	mu       sync.RWMutex
	triggers []trigger.Trigger
}

// New creates an empty dispatcher.
func New(log *slog.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

// Register appends a trigger to the end of the list.
//
// Registration order is the evaluation order and the tie-break contract.
// A trigger whose key duplicates an earlier registration is accepted (the
// later one is simply shadowed for events the earlier one terminates) but
// logged, since a permanently unreachable trigger is usually a wiring bug.
func (d *Dispatcher) Register(t trigger.Trigger) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.triggers {
		if existing.Key() == t.Key() {
			d.log.Warn("trigger shadows an earlier registration with the same key",
				"key", t.Key())
			break
		}
	}
	d.triggers = append(d.triggers, t)
	d.log.Debug("trigger registered", "key", t.Key(), "total", len(d.triggers))
}

// Remove deletes a trigger by identity. Removing a trigger that was never
// registered (or was already removed) is a no-op.
func (d *Dispatcher) Remove(t trigger.Trigger) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, existing := range d.triggers {
		if existing == t {
			d.triggers = append(d.triggers[:i], d.triggers[i+1:]...)
			d.log.Debug("trigger removed", "key", t.Key(), "total", len(d.triggers))
			return
		}
	}
}

// Len returns the number of registered triggers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.triggers)
}

// Keys returns the trigger keys in evaluation order.
func (d *Dispatcher) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, len(d.triggers))
	for i, t := range d.triggers {
		keys[i] = t.Key()
	}
	return keys
}

// Dispatch evaluates msg against the trigger list in registration order.
//
// The first trigger whose predicate matches has its handler invoked. A
// handler returning true terminates dispatch; false (or an error, or a
// panic) lets evaluation continue to the next trigger - a single misbehaving
// rule never blocks the rest of the chain. A message matching no trigger is
// silently dropped.
//
// Returns true if some handler terminated dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *platform.Message) bool {
	d.mu.RLock()
	snapshot := make([]trigger.Trigger, len(d.triggers))
	copy(snapshot, d.triggers)
	d.mu.RUnlock()

	for _, t := range snapshot {
		if !t.Matches(msg) {
			continue
		}
		handled, err := d.invoke(ctx, t, msg)
		if err != nil {
			d.log.Error("trigger handler failed, continuing dispatch",
				"key", t.Key(), "message", msg.ID, "channel", msg.ChannelID, "error", err)
			continue
		}
		if handled {
			d.log.Debug("message handled", "key", t.Key(), "message", msg.ID)
			return true
		}
		d.log.Debug("handler declined ownership, continuing dispatch",
			"key", t.Key(), "message", msg.ID)
	}
	return false
}

// invoke runs a single handler with panic isolation.
func (d *Dispatcher) invoke(ctx context.Context, t trigger.Trigger, msg *platform.Message) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			handled = false
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return t.Handle(ctx, msg)
}
