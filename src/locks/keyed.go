/*
Package locks provides mutual exclusion per key, such as per topic or per
(reply, user) pair. Waiting for a lock respects context cancellation, so a
request that times out while queued gives up without side effects.
*/
package locks

import (
	"context"
	"sync"
)

type entry struct {
	ch   chan struct{} // holds one token while the lock is held
	refs int           // holders plus waiters
}

// A set of mutexes indexed by key. Entries exist only while someone holds or
// waits for them. The zero value is ready to use.
type Keyed[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

func NewKeyed[K comparable]() *Keyed[K] {
	return &Keyed[K]{}
}

/*
Acquires the lock for key, blocking until it is free or ctx is done. On
success the returned function releases the lock and must be called exactly
once. On failure the error is ctx.Err() and nothing is held.
*/
func (k *Keyed[K]) Lock(ctx context.Context, key K) (unlock func(), err error) {
	e := k.ref(key)

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.unref(key, e)
		})
	}, nil
}

// The number of keys currently held or waited on.
func (k *Keyed[K]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *Keyed[K]) ref(key K) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.entries == nil {
		k.entries = make(map[K]*entry)
	}
	e, ok := k.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed[K]) unref(key K, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
