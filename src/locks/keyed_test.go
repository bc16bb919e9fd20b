package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutualExclusion(t *testing.T) {
	locks := NewKeyed[int]()
	ctx := context.Background()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(ctx, 7)
			if !assert.Nil(t, err) {
				return
			}
			defer unlock()

			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.Len(), "entries should be cleaned up")
}

func TestKeyedIndependentKeys(t *testing.T) {
	locks := NewKeyed[string]()
	ctx := context.Background()

	unlockA, err := locks.Lock(ctx, "topic:1")
	require.Nil(t, err)
	defer unlockA()

	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := locks.Lock(tctx, "topic:2")
	require.Nil(t, err, "a different key should not block")
	unlockB()
}

func TestKeyedContext(t *testing.T) {
	locks := NewKeyed[int]()
	ctx := context.Background()

	unlock, err := locks.Lock(ctx, 1)
	require.Nil(t, err)

	t.Run("gives up on deadline", func(t *testing.T) {
		tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := locks.Lock(tctx, 1)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, locks.Len())

	unlock2, err := locks.Lock(ctx, 1)
	require.Nil(t, err)
	unlock2()
}

func TestKeyedWaiterGetsLock(t *testing.T) {
	locks := NewKeyed[int]()
	ctx := context.Background()

	unlock, err := locks.Lock(ctx, 3)
	require.Nil(t, err)

	acquired := make(chan struct{})
	go func() {
		unlock2, err := locks.Lock(ctx, 3)
		if err == nil {
			close(acquired)
			unlock2()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never got the lock")
	}
}
