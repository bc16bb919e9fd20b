package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"git.handmade.network/hmn/discuss/src/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	seen []Invalidation
}

func (r *recorder) handle(inv Invalidation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, inv)
}

func (r *recorder) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, inv := range r.seen {
		if inv.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last() Invalidation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[len(r.seen)-1]
}

func testBus() *Bus {
	b := NewBus("discuss.test")
	b.Reconnect.Min = 5 * time.Millisecond
	b.Reconnect.Max = 20 * time.Millisecond
	return b
}

func TestBus(t *testing.T) {
	hub := NewLoopback()
	a, b := testBus(), testBus()
	var recA, recB recorder

	running := jobs.Jobs{a.Run(hub.Dial, recA.handle), b.Run(hub.Dial, recB.handle)}
	defer running.CancelAndWait(time.Second)

	require.Eventually(t, func() bool { return a.Connected() && b.Connected() }, time.Second, time.Millisecond)
	assert.Equal(t, 1, recA.count(KindResync))
	assert.Equal(t, 1, recB.count(KindResync))

	require.Nil(t, a.Publish(context.Background(), "vote", 5))

	require.Equal(t, 1, recB.count("vote"))
	inv := recB.last()
	assert.Equal(t, 5, inv.TopicID)
	assert.Equal(t, a.Origin, inv.Origin)
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, 0, recA.count("vote"), "own invalidations are not delivered back")

	t.Run("reconnects and resyncs", func(t *testing.T) {
		hub.DropAll()
		require.Eventually(t, func() bool {
			return recA.count(KindResync) == 2 && recB.count(KindResync) == 2
		}, time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return a.Connected() }, time.Second, time.Millisecond)

		require.Nil(t, a.Publish(context.Background(), "edit", 6))
		assert.Equal(t, 1, recB.count("edit"))
	})
}

func TestBusDialFailure(t *testing.T) {
	hub := NewLoopback()
	bus := testBus()
	var attempts atomic.Int32
	dial := func() (Transport, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		return hub.Dial()
	}

	assert.ErrorIs(t, bus.Publish(context.Background(), "vote", 1), ErrDisconnected)

	var rec recorder
	job := bus.Run(dial, rec.handle)
	require.Eventually(t, bus.Connected, time.Second, time.Millisecond)
	assert.EqualValues(t, 3, attempts.Load())
	assert.Equal(t, 1, rec.count(KindResync))

	job.Cancel()
	select {
	case <-job.Finished():
	case <-time.After(time.Second):
		t.Fatal("listener did not shut down")
	}
	assert.False(t, bus.Connected())
}

func TestBusCancelDuringBackoff(t *testing.T) {
	bus := NewBus("discuss.test")
	bus.Reconnect.Min = time.Hour
	bus.Reconnect.Max = time.Hour

	var attempts atomic.Int32
	dial := func() (Transport, error) {
		attempts.Add(1)
		return nil, errors.New("connection refused")
	}

	job := bus.Run(dial, func(Invalidation) {})
	require.Eventually(t, func() bool { return attempts.Load() == 1 }, time.Second, time.Millisecond)

	job.Cancel()
	select {
	case <-job.Finished():
	case <-time.After(time.Second):
		t.Fatal("listener kept sleeping after cancel")
	}
	assert.EqualValues(t, 1, attempts.Load())
}
