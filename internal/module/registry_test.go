package module

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/houseofmisfits/willow/internal/dispatch"
	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/trigger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeModule struct {
	name     string
	triggers []trigger.Trigger
	flag     Flag
	builds   *atomic.Int32
}

func (m *fakeModule) Name() string { return m.name }

func (m *fakeModule) Triggers(ctx context.Context) <-chan trigger.Trigger {
	ch := make(chan trigger.Trigger)
	go func() {
		defer close(ch)
		for _, tr := range m.triggers {
			ch <- tr
		}
	}()
	return ch
}

func (m *fakeModule) Close() { m.flag.Close() }

func newRegistry(t *testing.T) (*Registry, *dispatch.Dispatcher) {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	d := dispatch.New(log)
	return NewRegistry(log, d), d
}

func TestRegistry_AddDrainsAndRegisters(t *testing.T) {
	r, d := newRegistry(t)

	tr := trigger.NewChannel("chan-1", func(ctx context.Context, msg *platform.Message) (bool, error) {
		return true, nil
	})
	var builds atomic.Int32
	err := r.Add(context.Background(), "venting", func() (Module, error) {
		builds.Add(1)
		return &fakeModule{name: "venting", triggers: []trigger.Trigger{nil, tr}, builds: &builds}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, d.Len(), "nil items are skipped, real triggers registered")
	assert.Equal(t, int32(1), builds.Load())
	assert.NotNil(t, r.Module("venting"))
}

func TestRegistry_AddFactoryError(t *testing.T) {
	r, _ := newRegistry(t)

	err := r.Add(context.Background(), "broken", func() (Module, error) {
		return nil, errors.New("config unavailable")
	})

	require.Error(t, err)
	assert.Nil(t, r.Module("broken"))
}

func TestRegistry_RebuildReplacesInstance(t *testing.T) {
	r, d := newRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var builds atomic.Int32
	var instances []*fakeModule
	factory := func() (Module, error) {
		builds.Add(1)
		tr := trigger.NewChannel("chan-1", func(ctx context.Context, msg *platform.Message) (bool, error) {
			return true, nil
		})
		m := &fakeModule{name: "venting", triggers: []trigger.Trigger{tr}, builds: &builds}
		instances = append(instances, m)
		return m, nil
	}
	require.NoError(t, r.Add(ctx, "venting", factory))

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	r.RequestRebuild("venting")

	require.Eventually(t, func() bool {
		return builds.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	// Old instance retired, trigger count unchanged (old removed, new added).
	assert.False(t, instances[0].flag.Open())
	assert.True(t, instances[1].flag.Open())
	assert.Equal(t, 1, d.Len())
}

func TestRegistry_RebuildUnknownModule(t *testing.T) {
	r, _ := newRegistry(t)
	err := r.rebuild(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestRegistry_CloseRetiresAll(t *testing.T) {
	r, _ := newRegistry(t)
	var builds atomic.Int32
	m := &fakeModule{name: "a", builds: &builds}
	require.NoError(t, r.Add(context.Background(), "a", func() (Module, error) {
		return m, nil
	}))

	r.Close()
	assert.False(t, m.flag.Open())
}

func TestFlag(t *testing.T) {
	var f Flag
	assert.True(t, f.Open())
	f.Close()
	assert.False(t, f.Open())
	f.Close()
	assert.False(t, f.Open())
}
