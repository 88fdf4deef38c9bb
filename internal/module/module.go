// Package module defines the behavior-unit lifecycle: modules produce
// triggers asynchronously, the Registry drains and registers them, and a
// module observing a relevant configuration change can request its own
// replacement through the Registry's rebuild loop.
package module

import (
	"context"
	"sync/atomic"

	"github.com/houseofmisfits/willow/internal/trigger"
)

// Module is an independently-developed behavior unit.
//
// Triggers returns a lazy sequence: some triggers need a configuration
// round-trip before they can be constructed, so production is asynchronous
// and possibly empty. The channel must be closed when production completes.
// Nil items are skipped by the registry. A module may start background
// loops during production; those loops outlive the sequence and run until
// Close.
//
// Close clears the module's shutdown flag. Background loops poll the flag at
// every tick and exit promptly; no forced preemption.
type Module interface {
	Name() string
	Triggers(ctx context.Context) <-chan trigger.Trigger
	Close()
}

// Factory constructs a fresh module instance. Called once at startup and
// again on every rebuild of that module.
type Factory func() (Module, error)

// Rebuilder lets a module request its own replacement after a configuration
// change. The request is a message consumed by the registry's Run loop, not
// a reentrant mutation: the calling instance keeps serving in-flight
// dispatches until the registry retires it.
type Rebuilder interface {
	RequestRebuild(name string)
}

// Flag is the cooperative shutdown flag reconciliation loops poll at every
// tick. The zero value is open.
type Flag struct {
	closed atomic.Bool
}

// Open reports whether the owning module is still live.
func (f *Flag) Open() bool {
	return !f.closed.Load()
}

// Close marks the owning module retired. Idempotent.
func (f *Flag) Close() {
	f.closed.Store(true)
}
