// Package client ties the platform gateway, the dispatcher, and the module
// registry together into the bot's run loop.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/houseofmisfits/willow/internal/dispatch"
	"github.com/houseofmisfits/willow/internal/module"
	"github.com/houseofmisfits/willow/internal/platform"
)

// ErrRestartRequested is returned from Run after a confirmed restart
// command. The process exits with a distinct code so its supervisor
// resurrects it instead of treating the exit as a crash.
var ErrRestartRequested = errors.New("restart requested")

// Core is the bot's event loop. Inbound messages are enqueued by the
// gateway goroutine and dispatched in arrival order; each message's trigger
// chain runs on its own goroutine so one slow handler (a confirmation
// prompt waiting on its reply, say) never stalls the queue.
type Core struct {
	log        *slog.Logger
	dispatcher *dispatch.Dispatcher
	registry   *module.Registry
	queue      *messageQueue

	wg      sync.WaitGroup
	restart atomic.Bool
	cancel  context.CancelFunc
	mu      sync.Mutex
}

// New creates a core around an already-populated registry.
func New(log *slog.Logger, d *dispatch.Dispatcher, reg *module.Registry) *Core {
	return &Core{
		log:        log,
		dispatcher: d,
		registry:   reg,
		queue:      newMessageQueue(),
	}
}

// Submit enqueues an inbound message for dispatch. Safe from any goroutine.
// Returns false once the core is shutting down.
func (c *Core) Submit(msg *platform.Message) bool {
	return c.queue.Enqueue(msg)
}

// QueueLen reports the number of messages awaiting dispatch.
func (c *Core) QueueLen() int {
	return c.queue.Len()
}

// RequestRestart asks the run loop to shut down and report
// ErrRestartRequested. Safe from any goroutine; a no-op before Run starts.
func (c *Core) RequestRestart() {
	c.restart.Store(true)
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run dispatches queued messages until ctx is cancelled or a restart is
// requested. In-flight handlers are drained before modules close, so a
// handler never observes a closed store.
func (c *Core) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	c.log.Info("core starting")

	regDone := make(chan struct{})
	go func() {
		defer close(regDone)
		c.registry.Run(ctx)
	}()

	for {
		msg, ok := c.queue.TryDequeue()
		if ok {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.dispatcher.Dispatch(ctx, msg)
			}()
			continue
		}

		select {
		case <-ctx.Done():
			c.log.Info("core stopping", "pending", c.queue.Len())
			c.queue.Close()
			c.wg.Wait()
			<-regDone
			c.registry.Close()
			if c.restart.Load() {
				return ErrRestartRequested
			}
			return ctx.Err()

		case <-c.queue.Wait():
			// Signal received, or queue closed; loop back to TryDequeue.
		}
	}
}
