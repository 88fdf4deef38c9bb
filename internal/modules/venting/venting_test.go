package venting

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/houseofmisfits/willow/internal/module"
	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/store"
	"github.com/houseofmisfits/willow/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type nopRebuilder struct{}

func (nopRebuilder) RequestRebuild(string) {}

// recordingRebuilder records rebuild requests.
type recordingRebuilder struct {
	requests chan string
}

func (r *recordingRebuilder) RequestRebuild(name string) {
	r.requests <- name
}

var start = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Module, *testutil.FakeClient, *fakeclock.FakeClock, *store.Store) {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	st, err := store.Open(t.TempDir()+"/test.db", log)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	client := testutil.NewFakeClient()
	clk := fakeclock.NewFakeClock(start)
	m := &Module{
		log:       log,
		client:    client,
		store:     st,
		clock:     clk,
		rebuild:   nopRebuilder{},
		channel:   "vent-chan",
		ttl:       300 * time.Second,
		scheduled: make(map[platform.MessageID]time.Time),
	}
	return m, client, clk, st
}

func TestProcess_SchedulesOnceAndFallsThrough(t *testing.T) {
	m, _, _, _ := setup(t)
	msg := testutil.Msg("m-1", "vent-chan", "author", "hello", start)

	handled, err := m.process(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, handled, "venting handler must fall through")
	assert.Equal(t, 1, m.trackedCount())

	// Resubmitting the same id is a no-op.
	_, err = m.process(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 1, m.trackedCount())
}

func TestSweep_DeletesOnlyExpired(t *testing.T) {
	m, client, clk, _ := setup(t)
	ctx := context.Background()

	_, err := m.process(ctx, testutil.Msg("old", "vent-chan", "a", "x", start))
	require.NoError(t, err)
	_, err = m.process(ctx, testutil.Msg("new", "vent-chan", "a", "y", start.Add(200*time.Second)))
	require.NoError(t, err)

	clk.Increment(301 * time.Second)
	m.sweep(ctx)

	assert.Equal(t, []platform.MessageID{"old"}, client.Deleted())
	assert.Equal(t, 1, m.trackedCount())

	clk.Increment(200 * time.Second)
	m.sweep(ctx)
	assert.Equal(t, []platform.MessageID{"old", "new"}, client.Deleted())
	assert.Equal(t, 0, m.trackedCount())
}

func TestSweep_FailedDeleteStillClears(t *testing.T) {
	m, client, clk, _ := setup(t)
	ctx := context.Background()

	client.DeleteErr["gone"] = errors.New("message already deleted")
	_, err := m.process(ctx, testutil.Msg("gone", "vent-chan", "a", "x", start))
	require.NoError(t, err)

	clk.Increment(301 * time.Second)
	m.sweep(ctx)

	// At-most-once: the record is cleared despite the failure, no retry.
	assert.Equal(t, 0, m.trackedCount())
	assert.Empty(t, client.Deleted())

	clk.Increment(time.Second)
	m.sweep(ctx)
	assert.Empty(t, client.Deleted())
}

func TestRescan_RecoversMissedMessages(t *testing.T) {
	m, client, _, _ := setup(t)
	ctx := context.Background()

	tracked := testutil.Msg("tracked", "vent-chan", "a", "x", start)
	missed := testutil.Msg("missed", "vent-chan", "b", "y", start)
	_, err := m.process(ctx, tracked)
	require.NoError(t, err)
	client.SetHistory("vent-chan", missed, tracked)

	m.rescan(ctx)

	assert.Equal(t, 2, m.trackedCount(), "missed message recovered, tracked not duplicated")
}

func TestRescan_HistoryErrorKeepsState(t *testing.T) {
	m, client, _, _ := setup(t)
	ctx := context.Background()

	_, err := m.process(ctx, testutil.Msg("m-1", "vent-chan", "a", "x", start))
	require.NoError(t, err)
	client.HistoryErr = errors.New("permission lost")

	m.rescan(ctx)
	assert.Equal(t, 1, m.trackedCount())
}

func TestTriggers_NoChannelConfigured(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	st, err := store.Open(t.TempDir()+"/test.db", log)
	require.NoError(t, err)
	defer st.Close()

	f := Factory(log, testutil.NewFakeClient(), st, fakeclock.NewFakeClock(start), nopRebuilder{})
	mod, err := f()
	require.NoError(t, err)

	var got int
	for range mod.Triggers(context.Background()) {
		got++
	}
	assert.Equal(t, 0, got)
	assert.False(t, mod.(*Module).flag.Open(), "module retires itself when unconfigured")
}

func TestTriggers_FullLifecycle(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	st, err := store.Open(t.TempDir()+"/test.db", log)
	require.NoError(t, err)
	defer st.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, st.Set(ctx, ChannelKey, "vent-chan"))
	client := testutil.NewFakeClient()
	// A message that predates startup: only the initial rescan can find it.
	expired := testutil.Msg("missed", "vent-chan", "a", "x", start.Add(-400*time.Second))
	client.SetHistory("vent-chan", expired)

	clk := fakeclock.NewFakeClock(start)
	f := Factory(log, client, st, clk, nopRebuilder{})
	mod, err := f()
	require.NoError(t, err)

	var triggers int
	for range mod.Triggers(ctx) {
		triggers++
	}
	require.Equal(t, 1, triggers)

	// One sweep tick: the rescanned message is already past its TTL.
	clk.WaitForNWatchersAndIncrement(time.Second, 2)
	require.Eventually(t, func() bool {
		return len(client.Deleted()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []platform.MessageID{"missed"}, client.Deleted())

	mod.Close()
	cancel()
}

func TestConfigChange_RequestsRebuild(t *testing.T) {
	m, _, _, _ := setup(t)
	rb := &recordingRebuilder{requests: make(chan string, 1)}
	m.rebuild = rb

	m.onConfigChange(ChannelKey, "new-chan")

	select {
	case name := <-rb.requests:
		assert.Equal(t, Name, name)
	default:
		t.Fatal("expected a rebuild request")
	}
}

func TestConfigChange_IgnoredAfterClose(t *testing.T) {
	m, _, _, _ := setup(t)
	rb := &recordingRebuilder{requests: make(chan string, 1)}
	m.rebuild = rb
	m.flag.Close()

	m.onConfigChange(ChannelKey, "new-chan")

	select {
	case <-rb.requests:
		t.Fatal("retired instance must ignore config changes")
	default:
	}
}

func TestClose_WithdrawsConfigSubscriptions(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	st, err := store.Open(t.TempDir()+"/test.db", log)
	require.NoError(t, err)
	defer st.Close()
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, st.Set(ctx, ChannelKey, "vent-chan"))
	rb := &recordingRebuilder{requests: make(chan string, 1)}
	f := Factory(log, testutil.NewFakeClient(), st, fakeclock.NewFakeClock(start), rb)
	mod, err := f()
	require.NoError(t, err)

	for range mod.Triggers(ctx) {
	}
	cancel()
	mod.Close()

	require.NoError(t, st.Set(context.Background(), ChannelKey, "other-chan"))
	time.Sleep(50 * time.Millisecond)
	select {
	case <-rb.requests:
		t.Fatal("closed instance must be unsubscribed from config changes")
	default:
	}
}

var _ module.Module = (*Module)(nil)
