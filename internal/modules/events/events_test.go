package events

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/houseofmisfits/willow/internal/dispatch"
	"github.com/houseofmisfits/willow/internal/module"
	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/store"
	"github.com/houseofmisfits/willow/internal/testutil"
	"github.com/houseofmisfits/willow/internal/trigger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type nopRebuilder struct{}

func (nopRebuilder) RequestRebuild(string) {}

const (
	eventRole = platform.RoleID("role-participant")
	adminRole = platform.RoleID("role-admin")
	admin     = platform.MemberID("admin-1")
)

// monday is a Monday noon in the reference zone (UTC in tests).
var monday = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

type fixture struct {
	m      *Module
	client *testutil.FakeClient
	clk    *fakeclock.FakeClock
	st     *store.Store
	d      *dispatch.Dispatcher
}

func setup(t *testing.T) *fixture {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	st, err := store.Open(t.TempDir()+"/test.db", log)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Set(context.Background(), RoleKey, string(eventRole)))

	client := testutil.NewFakeClient()
	client.SeedRole(adminRole, admin)
	clk := fakeclock.NewFakeClock(monday)
	d := dispatch.New(log)

	window, err := ParseWindow("06:00", "18:00")
	require.NoError(t, err)

	m := &Module{
		log:       log,
		client:    client,
		store:     st,
		clock:     clk,
		rebuild:   nopRebuilder{},
		registrar: d,
		auth:      module.NewAuthorizer(client, []platform.RoleID{adminRole}),
		loc:       time.UTC,
		window:    window,
	}
	m.scheduleNextReset()
	return &fixture{m: m, client: client, clk: clk, st: st, d: d}
}

func grantCount(client *testutil.FakeClient) int {
	n := 0
	for _, line := range client.Transcript() {
		if strings.HasPrefix(line, "grant ") {
			n++
		}
	}
	return n
}

func TestProcess_RecordsAndGrants(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	handled, err := f.m.process(ctx, testutil.Msg("m-1", "chan-a", "member-1", "hi", monday))
	require.NoError(t, err)
	assert.True(t, handled)

	ok, err := f.st.HasParticipant(ctx, "2026-08-24", "member-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.client.HasRole("member-1", eventRole))
}

func TestProcess_BotAuthorsNeverQualify(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	handled, err := f.m.process(ctx, testutil.BotMsg("m-1", "chan-a", "bot-1", "Event for mon set to <#chan-a>.", monday))
	require.NoError(t, err)
	assert.False(t, handled, "bot messages fall through")

	ok, err := f.st.HasParticipant(ctx, "2026-08-24", "bot-1")
	require.NoError(t, err)
	assert.False(t, ok, "bot authors leave no participation record")
	assert.False(t, f.client.HasRole("bot-1", eventRole))
}

func TestRescan_SkipsBotAuthors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.st.SetDayChannel(ctx, 0, "chan-a"))
	require.NotNil(t, f.m.installToday(ctx))

	// Channel history includes the bot's own replies.
	f.client.SetHistory("chan-a",
		testutil.BotMsg("m-1", "chan-a", "bot-1", "Participants for 2026-08-24:", monday),
		testutil.Msg("m-2", "chan-a", "member-1", "hi", monday))

	f.m.rescanParticipants(ctx)

	parts, err := f.st.Participants(ctx, "2026-08-24")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.False(t, f.client.HasRole("bot-1", eventRole))
	assert.True(t, f.client.HasRole("member-1", eventRole))
}

func TestProcess_WindowEnforcement(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	day := monday.Truncate(24 * time.Hour)

	early := day.Add(5*time.Hour + 59*time.Minute)
	handled, err := f.m.process(ctx, testutil.Msg("m-1", "chan-a", "member-1", "hi", early))
	require.NoError(t, err)
	assert.False(t, handled, "05:59 is outside the window and falls through")

	onOpen := day.Add(6 * time.Hour)
	handled, err = f.m.process(ctx, testutil.Msg("m-2", "chan-a", "member-1", "hi", onOpen))
	require.NoError(t, err)
	assert.True(t, handled, "06:00 is inside the window")

	late := day.Add(18*time.Hour + time.Minute)
	handled, err = f.m.process(ctx, testutil.Msg("m-3", "chan-a", "member-2", "hi", late))
	require.NoError(t, err)
	assert.False(t, handled, "18:01 is outside the window")

	ok, err := f.st.HasParticipant(ctx, "2026-08-24", "member-2")
	require.NoError(t, err)
	assert.False(t, ok, "out-of-window events leave no record")
}

func TestProcess_DedupPerDay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, id := range []platform.MessageID{"m-1", "m-2"} {
		handled, err := f.m.process(ctx, testutil.Msg(id, "chan-a", "member-1", "hi", monday))
		require.NoError(t, err)
		assert.True(t, handled)
	}

	parts, err := f.st.Participants(ctx, "2026-08-24")
	require.NoError(t, err)
	assert.Len(t, parts, 1)
	assert.Equal(t, 1, grantCount(f.client), "at most one role grant per member per day")
}

func TestBackdating_PersistsWithoutGranting(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.m.enterBackdate(ctx, "2026-08-20")

	handled, err := f.m.process(ctx, testutil.Msg("m-1", "chan-a", "member-1", "hi", monday))
	require.NoError(t, err)
	assert.True(t, handled)

	ok, err := f.st.HasParticipant(ctx, "2026-08-24", "member-1")
	require.NoError(t, err)
	assert.True(t, ok, "participation is still persisted while backdating")
	assert.False(t, f.client.HasRole("member-1", eventRole), "live role must not be granted while backdating")

	// Leaving backdating restores normal behavior.
	f.m.exitBackdate(ctx)
	assert.True(t, f.client.HasRole("member-1", eventRole), "exitBackdate re-derives today's grants")

	handled, err = f.m.process(ctx, testutil.Msg("m-2", "chan-a", "member-2", "hi", monday))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, f.client.HasRole("member-2", eventRole))
}

func TestBackdate_RetargetsRoleState(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.st.AddParticipant(ctx, "2026-08-20", "old-member", "m-0")
	require.NoError(t, err)
	f.client.SeedRole(eventRole, "today-member")

	f.m.enterBackdate(ctx, "2026-08-20")

	assert.False(t, f.client.HasRole("today-member", eventRole), "current holders cleared")
	assert.True(t, f.client.HasRole("old-member", eventRole), "past date's participants granted")
}

func TestInstallToday_RotationCorrectness(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Monday -> chan-a, Tuesday -> unset.
	require.NoError(t, f.st.SetDayChannel(ctx, 0, "chan-a"))

	tr := f.m.installToday(ctx)
	require.NotNil(t, tr)
	assert.Equal(t, "channel:chan-a", tr.Key())

	// Advance to Tuesday past the reset boundary and rotate.
	f.d.Register(tr)
	f.clk.Increment(15 * time.Hour) // Tuesday 03:00
	f.m.rotate(ctx)

	assert.Equal(t, 0, f.d.Len(), "no trigger installed for an unconfigured day")
	f.m.mu.Lock()
	assert.Nil(t, f.m.current)
	f.m.mu.Unlock()
}

func TestRotate_ClearsPreviousHolders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.client.SeedRole(eventRole, "member-1", "member-2")

	f.m.rotate(ctx)

	assert.False(t, f.client.HasRole("member-1", eventRole))
	assert.False(t, f.client.HasRole("member-2", eventRole))
}

func TestInstallToday_RederivesMidDayRestart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.st.SetDayChannel(ctx, 0, "chan-a"))
	_, err := f.st.AddParticipant(ctx, "2026-08-24", "member-1", "m-1")
	require.NoError(t, err)

	tr := f.m.installToday(ctx)
	require.NotNil(t, tr)
	assert.True(t, f.client.HasRole("member-1", eventRole), "restart mid-day restores grants from persisted records")
}

func TestRescan_ReplaysMissedParticipants(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.st.SetDayChannel(ctx, 0, "chan-a"))
	require.NotNil(t, f.m.installToday(ctx))

	recorded := testutil.Msg("m-1", "chan-a", "member-1", "hi", monday)
	_, err := f.m.process(ctx, recorded)
	require.NoError(t, err)

	missed := testutil.Msg("m-2", "chan-a", "member-2", "hi", monday.Add(time.Minute))
	outside := testutil.Msg("m-3", "chan-a", "member-3", "late", monday.Add(7*time.Hour)) // 19:00
	f.client.SetHistory("chan-a", outside, missed, recorded)

	f.m.rescanParticipants(ctx)

	parts, err := f.st.Participants(ctx, "2026-08-24")
	require.NoError(t, err)
	require.Len(t, parts, 2, "missed member replayed, window still enforced, no duplicates")
	assert.True(t, f.client.HasRole("member-2", eventRole))
	assert.False(t, f.client.HasRole("member-3", eventRole))
}

func TestTriggers_Lifecycle(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.st.SetDayChannel(ctx, 0, "chan-a"))

	var keys []string
	for tr := range f.m.Triggers(ctx) {
		keys = append(keys, tr.Key())
	}
	require.Len(t, keys, 2)
	assert.Equal(t, "channel:chan-a", keys[0])
	assert.Equal(t, "command:.event", keys[1])

	cancel()
	f.m.Close()
	assert.False(t, f.m.flag.Open())
}

func TestTriggers_NoChannelToday(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var keys []string
	for tr := range f.m.Triggers(ctx) {
		keys = append(keys, tr.Key())
	}
	// Only the admin command; no channel trigger, handler absent.
	require.Len(t, keys, 1)
	assert.Equal(t, "command:.event", keys[0])
	cancel()
	f.m.Close()
}

var _ trigger.Trigger = (*trigger.Channel)(nil)
