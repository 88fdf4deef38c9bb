// Package harness runs end-to-end scenarios against a fully wired bot:
// real store and dispatcher, fake platform client, fake clock. A scenario
// seeds configuration and role state, feeds a sequence of inbound messages
// through the dispatcher, and snapshots the platform-call transcript for
// golden comparison.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"

	"github.com/houseofmisfits/willow/internal/dispatch"
	"github.com/houseofmisfits/willow/internal/module"
	"github.com/houseofmisfits/willow/internal/modules/admin"
	"github.com/houseofmisfits/willow/internal/modules/dmrelay"
	"github.com/houseofmisfits/willow/internal/modules/events"
	"github.com/houseofmisfits/willow/internal/modules/support"
	"github.com/houseofmisfits/willow/internal/modules/venting"
	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/store"
	"github.com/houseofmisfits/willow/internal/testutil"
)

// baseTime anchors every scenario: a Monday at noon UTC. Step times are
// minutes-of-day on this date, so windows and day-schedule lookups are
// deterministic.
var baseTime = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

// Result captures a scenario execution.
type Result struct {
	// Transcript is every platform call the bot made, in order.
	Transcript []string

	// Restarts counts confirmed restart requests.
	Restarts int
}

// Run executes a scenario and returns its transcript.
//
// Dispatch is synchronous: each step's trigger chain completes before the
// next step starts, so transcripts are deterministic. The fake clock never
// advances, which keeps every reconciliation loop parked.
func Run(scenario *Scenario, dir string) (*Result, error) {
	log := slog.New(slog.DiscardHandler)

	st, err := store.Open(filepath.Join(dir, "harness.db"), log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for key, value := range scenario.Config {
		if err := st.Set(ctx, key, value); err != nil {
			return nil, fmt.Errorf("seed config %s: %w", key, err)
		}
	}
	for day, ch := range scenario.Schedule {
		idx, err := dayIndexOf(day)
		if err != nil {
			return nil, err
		}
		if err := st.SetDayChannel(ctx, idx, platform.ChannelID(ch)); err != nil {
			return nil, fmt.Errorf("seed schedule %s: %w", day, err)
		}
	}

	client := testutil.NewFakeClient()
	for role, members := range scenario.Roles {
		ids := make([]platform.MemberID, len(members))
		for i, m := range members {
			ids[i] = platform.MemberID(m)
		}
		client.SeedRole(platform.RoleID(role), ids...)
	}

	clk := fakeclock.NewFakeClock(baseTime)
	d := dispatch.New(log)
	registry := module.NewRegistry(log, d)
	defer registry.Close()

	result := &Result{}
	auth := module.NewAuthorizer(client, adminRoleIDs(scenario))
	level := &slog.LevelVar{}

	factories := map[string]module.Factory{
		venting.Name: venting.Factory(log, client, st, clk, registry),
		events.Name:  events.Factory(log, client, st, clk, registry, d, auth),
		admin.Name:   admin.Factory(log, client, st, clk, auth, level, func() { result.Restarts++ }),
		dmrelay.Name: dmrelay.Factory(log, client, adminRoleIDs(scenario)),
		support.Name: support.Factory(log, client, st),
	}
	for _, name := range scenario.Modules {
		f, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown module %q", name)
		}
		if err := registry.Add(ctx, name, f); err != nil {
			return nil, fmt.Errorf("add module %s: %w", name, err)
		}
	}

	for i, step := range scenario.Steps {
		msg, err := step.message(i)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		d.Dispatch(ctx, msg)
	}

	result.Transcript = client.Transcript()
	return result, nil
}

func adminRoleIDs(s *Scenario) []platform.RoleID {
	out := make([]platform.RoleID, len(s.AdminRoles))
	for i, r := range s.AdminRoles {
		out[i] = platform.RoleID(r)
	}
	return out
}

var dayIndexes = map[string]int{
	"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6,
}

func dayIndexOf(day string) (int, error) {
	idx, ok := dayIndexes[day]
	if !ok {
		return 0, fmt.Errorf("unknown day %q", day)
	}
	return idx, nil
}
