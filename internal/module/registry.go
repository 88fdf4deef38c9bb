package module

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/houseofmisfits/willow/internal/dispatch"
	"github.com/houseofmisfits/willow/internal/trigger"
)

// Registry owns the module set and coordinates the Active → Retiring →
// Active replacement transition.
//
// Thread-safety model:
//   - Add: called during startup, safe from any goroutine
//   - RequestRebuild: safe from any goroutine (non-blocking send)
//   - Run: must be called from exactly one goroutine
type Registry struct {
	log        *slog.Logger
	dispatcher *dispatch.Dispatcher

	mu      sync.Mutex
	entries map[string]*entry

	rebuilds chan string
}

type entry struct {
	factory  Factory
	module   Module
	triggers []trigger.Trigger
}

// NewRegistry creates a registry registering triggers with d.
func NewRegistry(log *slog.Logger, d *dispatch.Dispatcher) *Registry {
	return &Registry{
		log:        log,
		dispatcher: d,
		entries:    make(map[string]*entry),
		rebuilds:   make(chan string, 16),
	}
}

// Add builds a module via its factory, drains its trigger sequence fully and
// registers each non-nil trigger with the dispatcher. The factory is kept so
// the module can be rebuilt later.
func (r *Registry) Add(ctx context.Context, name string, f Factory) error {
	mod, triggers, err := r.build(ctx, name, f)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.entries[name] = &entry{factory: f, module: mod, triggers: triggers}
	r.mu.Unlock()

	r.log.Debug("module added", "module", name, "triggers", len(triggers))
	return nil
}

// build constructs a module and drains its trigger sequence.
func (r *Registry) build(ctx context.Context, name string, f Factory) (Module, []trigger.Trigger, error) {
	mod, err := f()
	if err != nil {
		return nil, nil, fmt.Errorf("build module %s: %w", name, err)
	}

	var registered []trigger.Trigger
	for tr := range mod.Triggers(ctx) {
		if tr == nil {
			continue
		}
		r.dispatcher.Register(tr)
		registered = append(registered, tr)
	}
	return mod, registered, nil
}

// RequestRebuild queues a rebuild of the named module. Non-blocking: if the
// rebuild queue is full the request is dropped with a warning (a queued
// rebuild for the same module makes the drop harmless - the fresh instance
// reads current configuration anyway).
func (r *Registry) RequestRebuild(name string) {
	select {
	case r.rebuilds <- name:
	default:
		r.log.Warn("rebuild queue full, dropping request", "module", name)
	}
}

// Run consumes rebuild requests until ctx is cancelled. Blocks; callers run
// it on its own goroutine.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case name := <-r.rebuilds:
			if err := r.rebuild(ctx, name); err != nil {
				r.log.Error("module rebuild failed", "module", name, "error", err)
			}
		}
	}
}

// rebuild retires the named module's current instance and replaces it with a
// fresh one from the same factory. Trigger removal takes effect for the next
// dispatch; an event mid-dispatch against the old triggers completes
// normally against its snapshot.
func (r *Registry) rebuild(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown module %q", name)
	}

	r.log.Info("rebuilding module", "module", name)
	for _, tr := range e.triggers {
		r.dispatcher.Remove(tr)
	}
	e.module.Close()

	mod, triggers, err := r.build(ctx, name, e.factory)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.entries[name] = &entry{factory: e.factory, module: mod, triggers: triggers}
	r.mu.Unlock()

	r.log.Debug("module rebuilt", "module", name, "triggers", len(triggers))
	return nil
}

// Module returns the live instance of a module, or nil if absent. Intended
// for tests and the CLI status surface.
func (r *Registry) Module(name string) Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		return e.module
	}
	return nil
}

// Close retires every module. Used at process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, e := range r.entries {
		e.module.Close()
		r.log.Debug("module closed", "module", name)
	}
}
