// Package venting deletes messages from the venting channel after a
// configurable TTL, so vented content stays ephemeral.
//
// The module is one instantiation of the reconciliation-loop pattern: a
// short-period sweep executes scheduled deletions, and a long-period rescan
// re-reads recent channel history to pick up messages that arrived while the
// process was down. Scheduled-deletion state is in-memory only; the rescan
// is the recovery mechanism, not persistence.
//
// Changing venting_channel or venting_deletion_seconds retires this instance
// and builds a fresh one via the registry. Deletions scheduled by the retired
// instance are intentionally abandoned; the new instance's rescan picks the
// messages up again.
package venting

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/houseofmisfits/willow/internal/module"
	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/store"
	"github.com/houseofmisfits/willow/internal/trigger"
)

// Name is the module's registry name.
const Name = "venting"

// Dynamic configuration keys.
const (
	ChannelKey = "venting_channel"
	TTLKey     = "venting_deletion_seconds"

	defaultTTLSeconds = 300
)

const (
	sweepInterval  = time.Second
	rescanInterval = 10 * time.Minute
	rescanLimit    = 200
)

// Module tracks scheduled deletions for the venting channel.
type Module struct {
	log     *slog.Logger
	client  platform.Client
	store   *store.Store
	clock   clock.Clock
	rebuild module.Rebuilder

	flag    module.Flag
	channel platform.ChannelID
	ttl     time.Duration
	unsubs  []func()

	mu        sync.Mutex
	scheduled map[platform.MessageID]time.Time // message id -> expireAt
}

// Factory returns a module factory closing over the module's collaborators.
func Factory(log *slog.Logger, client platform.Client, st *store.Store, clk clock.Clock, rebuild module.Rebuilder) module.Factory {
	return func() (module.Module, error) {
		return &Module{
			log:       log.With("module", Name),
			client:    client,
			store:     st,
			clock:     clk,
			rebuild:   rebuild,
			scheduled: make(map[platform.MessageID]time.Time),
		}, nil
	}
}

func (m *Module) Name() string { return Name }

// Triggers produces the venting channel trigger once configuration has been
// read, and starts the sweep/rescan loop. With no venting channel configured
// the sequence is empty and the module retires itself immediately.
func (m *Module) Triggers(ctx context.Context) <-chan trigger.Trigger {
	out := make(chan trigger.Trigger)
	go func() {
		defer close(out)

		m.unsubs = append(m.unsubs,
			m.store.OnChange(ChannelKey, m.onConfigChange),
			m.store.OnChange(TTLKey, m.onConfigChange))

		channel, ok, err := m.store.Lookup(ctx, ChannelKey)
		if err != nil {
			m.log.Error("could not read venting channel", "error", err)
			m.flag.Close()
			return
		}
		if !ok {
			m.log.Warn("venting channel is not set, venting module will not work")
			m.flag.Close()
			return
		}
		m.channel = platform.ChannelID(channel)
		m.ttl = m.readTTL(ctx)

		go m.runLoop(ctx)
		out <- trigger.NewChannel(m.channel, m.process)
	}()
	return out
}

// Close retires the module; the loop exits at its next tick and the config
// subscriptions are withdrawn.
func (m *Module) Close() {
	m.flag.Close()
	for _, unsub := range m.unsubs {
		unsub()
	}
}

func (m *Module) readTTL(ctx context.Context) time.Duration {
	raw, err := m.store.Get(ctx, TTLKey, strconv.Itoa(defaultTTLSeconds))
	if err != nil {
		m.log.Error("could not read deletion TTL, using default", "error", err)
		return defaultTTLSeconds * time.Second
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		m.log.Warn("invalid deletion TTL, using default", "value", raw)
		return defaultTTLSeconds * time.Second
	}
	return time.Duration(secs) * time.Second
}

// onConfigChange requests a rebuild so the fresh instance re-reads
// configuration. A retired instance ignores late notifications.
func (m *Module) onConfigChange(key, value string) {
	if !m.flag.Open() {
		return
	}
	if value == "" {
		return
	}
	m.log.Info("configuration changed, requesting rebuild", "key", key)
	m.rebuild.RequestRebuild(Name)
}

// process is the qualifying-event handler: schedule the message for deletion
// TTL after its platform timestamp. Reprocessing a known message is a no-op.
// Always falls through so later triggers can also see venting traffic.
func (m *Module) process(ctx context.Context, msg *platform.Message) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scheduled[msg.ID]; ok {
		return false, nil
	}
	expireAt := msg.Timestamp.Add(m.ttl)
	m.scheduled[msg.ID] = expireAt
	m.log.Debug("message scheduled for deletion", "message", msg.ID, "expire_at", expireAt)
	return false, nil
}

// runLoop is the reconciliation loop: 1s sweep ticks and 10m rescan ticks.
// An initial rescan repairs the gap between messages arriving and this
// instance coming live.
func (m *Module) runLoop(ctx context.Context) {
	m.rescan(ctx)

	sweep := m.clock.NewTicker(sweepInterval)
	defer sweep.Stop()
	rescan := m.clock.NewTicker(rescanInterval)
	defer rescan.Stop()

	for m.flag.Open() {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C():
			m.sweep(ctx)
		case <-rescan.C():
			m.rescan(ctx)
		}
	}
}

// sweep attempts every due deletion exactly once. Success and failure both
// clear the record: a failed delete is logged and accepted as best-effort
// (the message was usually deleted by someone else already).
func (m *Module) sweep(ctx context.Context) {
	now := m.clock.Now()

	m.mu.Lock()
	var due []platform.MessageID
	for id, expireAt := range m.scheduled {
		if !now.Before(expireAt) {
			due = append(due, id)
		}
	}
	m.mu.Unlock()

	for _, id := range due {
		m.log.Debug("deleting message", "message", id)
		if err := m.client.DeleteMessage(ctx, m.channel, id); err != nil {
			m.log.Debug("unable to delete message", "message", id, "error", err)
		}
		m.mu.Lock()
		delete(m.scheduled, id)
		m.mu.Unlock()
	}
}

// rescan re-reads recent channel history and re-submits every untracked
// message through the normal scheduling path.
func (m *Module) rescan(ctx context.Context) {
	m.log.Debug("scanning for missed messages")
	history, err := m.client.History(ctx, m.channel, rescanLimit)
	if err != nil {
		m.log.Warn("could not fetch history for rescan", "error", err)
		return
	}
	for _, msg := range history {
		m.mu.Lock()
		_, tracked := m.scheduled[msg.ID]
		m.mu.Unlock()
		if tracked {
			continue
		}
		m.log.Debug("found unscheduled message, adding to queue", "message", msg.ID)
		if _, err := m.process(ctx, msg); err != nil {
			m.log.Warn("could not schedule rescanned message", "message", msg.ID, "error", err)
		}
	}
}

// trackedCount reports the number of scheduled deletions. Test hook.
func (m *Module) trackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scheduled)
}
