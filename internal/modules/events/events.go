// Package events rotates the daily event channel and tracks participation.
//
// One channel is "active" per calendar day, chosen from the persisted
// day-schedule table. Messages posted there inside the configured time-of-day
// window record the author as a participant (once per day) and grant the
// participant role. At the 02:00 reset boundary the module swaps the channel
// trigger, clears the role from everyone holding it and re-derives the new
// day's state from persisted records, so a restart mid-day loses nothing.
//
// This is the second instantiation of the reconciliation-loop pattern: the
// daily reset plus a 2h rescan over the active channel's history that replays
// any qualifying message missed while disconnected.
//
// Backdating: the event admin can re-target participation and role state to
// a past date. While backdating is active, new qualifying events are still
// persisted but never grant the live role, keeping the "who is active today"
// view intact.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/houseofmisfits/willow/internal/module"
	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/store"
	"github.com/houseofmisfits/willow/internal/trigger"
)

// Name is the module's registry name.
const Name = "events"

// Dynamic configuration keys.
const (
	RoleKey        = "participant_role"
	TimezoneKey    = "event_timezone"
	WindowStartKey = "event_window_start"
	WindowEndKey   = "event_window_end"

	defaultTimezone    = "America/New_York"
	defaultWindowStart = "06:00"
	defaultWindowEnd   = "18:00"
)

const (
	resetHour          = 2
	dailyCheckInterval = 10 * time.Second
	rescanInterval     = 2 * time.Hour
	rescanLimit        = 200
)

// Registrar is the dispatcher surface the module uses for its daily trigger
// hot-swap. The dispatcher owns the list; the module only registers and
// removes.
type Registrar interface {
	Register(t trigger.Trigger)
	Remove(t trigger.Trigger)
}

// Module implements the daily rotation.
type Module struct {
	log       *slog.Logger
	client    platform.Client
	store     *store.Store
	clock     clock.Clock
	rebuild   module.Rebuilder
	registrar Registrar
	auth      *module.Authorizer

	flag   module.Flag
	loc    *time.Location
	window Window
	unsubs []func()

	mu       sync.Mutex
	current  *trigger.Channel // today's channel trigger, nil when unconfigured
	resetAt  time.Time
	backdate string // YYYY-MM-DD being backdated, "" when live
}

// Factory returns a module factory closing over the module's collaborators.
func Factory(log *slog.Logger, client platform.Client, st *store.Store, clk clock.Clock,
	rebuild module.Rebuilder, registrar Registrar, auth *module.Authorizer) module.Factory {
	return func() (module.Module, error) {
		return &Module{
			log:       log.With("module", Name),
			client:    client,
			store:     st,
			clock:     clk,
			rebuild:   rebuild,
			registrar: registrar,
			auth:      auth,
			loc:       time.UTC,
		}, nil
	}
}

func (m *Module) Name() string { return Name }

// Triggers yields today's channel trigger (when configured) and the event
// admin command, then starts the daily and rescan loops.
func (m *Module) Triggers(ctx context.Context) <-chan trigger.Trigger {
	out := make(chan trigger.Trigger)
	go func() {
		defer close(out)

		for _, key := range []string{RoleKey, TimezoneKey, WindowStartKey, WindowEndKey} {
			m.unsubs = append(m.unsubs, m.store.OnChange(key, m.onConfigChange))
		}

		m.loadSettings(ctx)
		m.scheduleNextReset()

		if tr := m.installToday(ctx); tr != nil {
			out <- tr
		}

		prefix, err := m.store.Get(ctx, store.PrefixKey, store.DefaultPrefix)
		if err != nil {
			m.log.Error("could not read command prefix", "error", err)
			prefix = store.DefaultPrefix
		}
		out <- trigger.NewCommand(prefix, m.handleAdmin, "event")

		go m.runDaily(ctx)
		go m.runRescan(ctx)
	}()
	return out
}

// Close retires the module, withdraws its self-registered trigger and its
// config subscriptions. The trigger removal is advisory: an event
// mid-dispatch completes against its snapshot.
func (m *Module) Close() {
	m.flag.Close()
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.mu.Lock()
	tr := m.current
	m.current = nil
	m.mu.Unlock()
	if tr != nil {
		m.registrar.Remove(tr)
	}
}

func (m *Module) loadSettings(ctx context.Context) {
	tz, err := m.store.Get(ctx, TimezoneKey, defaultTimezone)
	if err == nil {
		if loc, locErr := time.LoadLocation(tz); locErr == nil {
			m.loc = loc
		} else {
			m.log.Warn("invalid event timezone, using UTC", "timezone", tz, "error", locErr)
		}
	} else {
		m.log.Error("could not read event timezone", "error", err)
	}

	startRaw, err := m.store.Get(ctx, WindowStartKey, defaultWindowStart)
	if err != nil {
		startRaw = defaultWindowStart
	}
	endRaw, err := m.store.Get(ctx, WindowEndKey, defaultWindowEnd)
	if err != nil {
		endRaw = defaultWindowEnd
	}
	window, err := ParseWindow(startRaw, endRaw)
	if err != nil {
		m.log.Warn("invalid event window, using default", "start", startRaw, "end", endRaw, "error", err)
		window, _ = ParseWindow(defaultWindowStart, defaultWindowEnd)
	}
	m.window = window
}

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

// today returns the current date in the reference zone.
func (m *Module) today() time.Time {
	return m.clock.Now().In(m.loc)
}

// installToday looks up today's configured channel and, when present, builds
// the channel trigger and re-derives today's grants from persisted
// participation. Returns nil when no rotation is configured for today.
func (m *Module) installToday(ctx context.Context) trigger.Trigger {
	day := dayIndex(m.today().Weekday())
	ch, ok, err := m.store.ChannelFor(ctx, day)
	if err != nil {
		m.log.Error("could not read day schedule", "error", err)
		return nil
	}
	if !ok {
		m.log.Debug("no event configured for today, not adding a trigger", "day", dayNames[day])
		return nil
	}

	tr := trigger.NewChannel(ch, m.process)
	m.mu.Lock()
	m.current = tr
	m.mu.Unlock()

	m.rederive(ctx)
	return tr
}

// rederive grants the participant role to everyone already recorded for
// today. Grants are idempotent, so replaying after a mid-day restart is safe.
func (m *Module) rederive(ctx context.Context) {
	role, ok := m.roleID(ctx)
	if !ok {
		return
	}
	date := m.today().Format(store.DateLayout)
	parts, err := m.store.Participants(ctx, date)
	if err != nil {
		m.log.Error("could not read participants", "date", date, "error", err)
		return
	}
	for _, p := range parts {
		if err := m.client.GrantRole(ctx, p.Member, role); err != nil {
			m.log.Warn("could not re-grant participant role", "member", p.Member, "error", err)
		}
	}
}

func (m *Module) roleID(ctx context.Context) (platform.RoleID, bool) {
	val, ok, err := m.store.Lookup(ctx, RoleKey)
	if err != nil {
		m.log.Error("could not read participant role", "error", err)
		return "", false
	}
	if !ok {
		m.log.Warn("participant role is not set")
		return "", false
	}
	return platform.RoleID(val), true
}

// process is the qualifying-event handler for the active channel.
//
// Bot authors never qualify; the guard lives here rather than in the trigger
// so the rescan path is covered too. Outside the time-of-day window the event
// is not-matched and falls through. Inside, the author is persisted at most
// once per calendar day; the role grant is skipped for duplicates and while
// backdating is active.
func (m *Module) process(ctx context.Context, msg *platform.Message) (bool, error) {
	if msg.AuthorBot {
		return false, nil
	}
	local := msg.Timestamp.In(m.loc)
	if !m.window.Contains(local) {
		return false, nil
	}

	date := local.Format(store.DateLayout)
	added, err := m.store.AddParticipant(ctx, date, msg.Author, msg.ID)
	if err != nil {
		return false, err
	}
	if !added {
		return true, nil
	}
	m.log.Debug("participant recorded", "member", msg.Author, "date", date)

	m.mu.Lock()
	backdating := m.backdate != ""
	m.mu.Unlock()
	if backdating {
		m.log.Debug("backdating active, not granting live role", "member", msg.Author)
		return true, nil
	}

	role, ok := m.roleID(ctx)
	if !ok {
		return true, nil
	}
	if err := m.client.GrantRole(ctx, msg.Author, role); err != nil {
		m.log.Warn("could not grant participant role", "member", msg.Author, "error", err)
	}
	return true, nil
}

// rotate performs the daily reset: swap the trigger, clear yesterday's role
// holders, install today's channel and participation, recompute the next
// reset timestamp.
func (m *Module) rotate(ctx context.Context) {
	m.log.Info("daily event reset")

	m.mu.Lock()
	old := m.current
	m.current = nil
	m.mu.Unlock()
	if old != nil {
		m.registrar.Remove(old)
	}

	m.clearParticipantRole(ctx)

	if tr := m.installToday(ctx); tr != nil {
		m.registrar.Register(tr)
	}
	m.scheduleNextReset()
}

// resetTrigger re-installs today's trigger after a schedule change, without
// touching role state. Entry point for the event admin commands.
func (m *Module) resetTrigger(ctx context.Context) {
	m.mu.Lock()
	old := m.current
	m.current = nil
	m.mu.Unlock()
	if old != nil {
		m.registrar.Remove(old)
	}
	if tr := m.installToday(ctx); tr != nil {
		m.registrar.Register(tr)
	}
}

// clearParticipantRole revokes the participant role from every current
// holder. Errors are logged per member and do not stop the reset.
func (m *Module) clearParticipantRole(ctx context.Context) {
	role, ok := m.roleID(ctx)
	if !ok {
		return
	}
	members, err := m.client.RoleMembers(ctx, role)
	if err != nil {
		m.log.Error("could not list role holders", "role", role, "error", err)
		return
	}
	for _, member := range members {
		if err := m.client.RevokeRole(ctx, member, role); err != nil {
			m.log.Warn("could not revoke participant role", "member", member, "error", err)
		}
	}
}

// scheduleNextReset sets the reset boundary to tomorrow 02:00 in the
// reference zone.
func (m *Module) scheduleNextReset() {
	now := m.today()
	next := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, m.loc).AddDate(0, 0, 1)
	m.mu.Lock()
	m.resetAt = next
	m.mu.Unlock()
	m.log.Debug("next daily reset scheduled", "at", next)
}

// runDaily polls the reset boundary every tick and rotates when it elapses.
func (m *Module) runDaily(ctx context.Context) {
	t := m.clock.NewTicker(dailyCheckInterval)
	defer t.Stop()
	for m.flag.Open() {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
		}
		if !m.flag.Open() {
			return
		}
		m.mu.Lock()
		due := !m.clock.Now().Before(m.resetAt)
		m.mu.Unlock()
		if due {
			m.rotate(ctx)
		}
	}
}

// runRescan periodically replays the active channel's recent history through
// the normal qualifying-event path, recovering from connectivity gaps.
func (m *Module) runRescan(ctx context.Context) {
	t := m.clock.NewTicker(rescanInterval)
	defer t.Stop()
	for m.flag.Open() {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
		}
		if !m.flag.Open() {
			return
		}
		m.rescanParticipants(ctx)
	}
}

func (m *Module) rescanParticipants(ctx context.Context) {
	m.mu.Lock()
	tr := m.current
	m.mu.Unlock()
	if tr == nil {
		return
	}
	m.log.Debug("rescanning event channel for missed participants")
	history, err := m.client.History(ctx, tr.ChannelID(), rescanLimit)
	if err != nil {
		m.log.Warn("could not fetch history for rescan", "error", err)
		return
	}
	for _, msg := range history {
		// Replay through the normal path; participation dedup makes this
		// idempotent for already-recorded members.
		if _, err := m.process(ctx, msg); err != nil {
			m.log.Warn("could not replay message", "message", msg.ID, "error", err)
		}
	}
}
