package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houseofmisfits/willow/internal/platform"
	"github.com/houseofmisfits/willow/internal/testutil"
)

var ts = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func TestQueue_FIFO(t *testing.T) {
	q := newMessageQueue()
	for _, id := range []platform.MessageID{"a", "b", "c"} {
		require.True(t, q.Enqueue(testutil.Msg(id, "ch", "m", "x", ts)))
	}
	assert.Equal(t, 3, q.Len())

	var got []platform.MessageID
	for {
		msg, ok := q.TryDequeue()
		if !ok {
			break
		}
		got = append(got, msg.ID)
	}
	assert.Equal(t, []platform.MessageID{"a", "b", "c"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_TryDequeueEmpty(t *testing.T) {
	q := newMessageQueue()
	msg, ok := q.TryDequeue()
	assert.Nil(t, msg)
	assert.False(t, ok)
}

func TestQueue_EnqueueSignalsWaiter(t *testing.T) {
	q := newMessageQueue()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-q.Wait()
	}()
	require.True(t, q.Enqueue(testutil.Msg("a", "ch", "m", "x", ts)))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not signalled")
	}
}

func TestQueue_CloseRejectsEnqueueAndWakesWaiters(t *testing.T) {
	q := newMessageQueue()
	q.Close()
	assert.False(t, q.Enqueue(testutil.Msg("a", "ch", "m", "x", ts)))

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("closed queue did not wake waiter")
	}

	q.Close() // idempotent
}
