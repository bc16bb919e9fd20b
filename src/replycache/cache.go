/*
Package replycache keeps built reply trees in memory, bounded by the number of
topics. Entries never expire on their own; mutations remove them through
Invalidate.

Concurrent misses for the same topic share a single build. Each topic carries
a generation that Invalidate advances. A build only populates the cache if the
generation it started under is still current when it finishes, and callers
arriving after an invalidation never join a build that started before it. So
once Invalidate returns, no reader can observe a tree built from older rows.
*/
package replycache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"git.handmade.network/hmn/discuss/src/logging"
	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/oops"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Produces the ordered replies of one topic.
type BuildFunc func(ctx context.Context) ([]models.Reply, error)

type Stats struct {
	Topics        int    `json:"topics"`
	Capacity      int    `json:"capacity"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Builds        uint64 `json:"builds"`
	Coalesced     uint64 `json:"coalesced"`
	Discarded     uint64 `json:"discarded"`
	Evictions     uint64 `json:"evictions"`
	Invalidations uint64 `json:"invalidations"`
}

// Topics with callers inside GetOrBuild. Generations only need tracking while
// someone could still be holding an old one. Generation numbers come from a
// cache-wide counter, so a generation is never reused even after the entry
// is dropped and recreated.
type inflight struct {
	gen     uint64
	callers int
}

type Cache struct {
	capacity int
	lru      *lru.Cache[int, *models.CachedTree]
	group    singleflight.Group

	mu       sync.Mutex
	inflight map[int]*inflight
	epoch    uint64
	removing bool // set while entries are removed on purpose, so they are not counted as evictions

	version atomic.Uint64

	hits, misses, builds, coalesced, discarded, evictions, invalidations atomic.Uint64
}

func New(maxTopics int) (*Cache, error) {
	c := &Cache{
		capacity: maxTopics,
		inflight: map[int]*inflight{},
	}
	l, err := lru.NewWithEvict[int, *models.CachedTree](maxTopics, c.onEvict)
	if err != nil {
		return nil, oops.New(err, "failed to create reply cache")
	}
	c.lru = l
	return c, nil
}

// Runs on the goroutine that modified the LRU, which always holds c.mu.
func (c *Cache) onEvict(topicID int, tree *models.CachedTree) {
	if c.removing {
		return
	}
	c.evictions.Add(1)
	logging.Debug().Int("topic", topicID).Uint64("version", tree.Version).Msg("evicted reply tree")
}

func (c *Cache) Get(topicID int) (*models.CachedTree, bool) {
	tree, ok := c.lru.Get(topicID)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return tree, ok
}

// Stores tree unconditionally. Prefer GetOrBuild, which guards against
// storing trees that an invalidation has already made stale.
func (c *Cache) Put(topicID int, tree *models.CachedTree) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(topicID, tree)
}

func (c *Cache) Invalidate(topicID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.inflight[topicID]; ok {
		c.epoch++
		st.gen = c.epoch
	}
	c.removing = true
	c.lru.Remove(topicID)
	c.removing = false
	c.invalidations.Add(1)
}

func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, st := range c.inflight {
		c.epoch++
		st.gen = c.epoch
	}
	c.removing = true
	c.lru.Purge()
	c.removing = false
	c.invalidations.Add(1)
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

/*
Returns the cached tree for the topic, building it on a miss. Builds run
detached from the caller's cancellation so that other callers sharing the
build are unaffected; each caller still stops waiting when its own ctx ends.
*/
func (c *Cache) GetOrBuild(ctx context.Context, topicID int, build BuildFunc) (*models.CachedTree, error) {
	if tree, ok := c.Get(topicID); ok {
		return tree, nil
	}

	gen := c.join(topicID)
	defer c.leave(topicID)

	key := fmt.Sprintf("%d:%d", topicID, gen)
	buildCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		c.builds.Add(1)
		replies, err := build(buildCtx)
		if err != nil {
			return nil, err
		}
		tree := models.NewCachedTree(topicID, c.version.Add(1), replies)
		c.putIfCurrent(topicID, gen, tree)
		return tree, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.coalesced.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.CachedTree), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) join(topicID int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.inflight[topicID]
	if !ok {
		c.epoch++
		st = &inflight{gen: c.epoch}
		c.inflight[topicID] = st
	}
	st.callers++
	return st.gen
}

func (c *Cache) leave(topicID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.inflight[topicID]
	st.callers--
	if st.callers == 0 {
		delete(c.inflight, topicID)
	}
}

func (c *Cache) putIfCurrent(topicID int, gen uint64, tree *models.CachedTree) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A missing entry means every caller gave up and an invalidation could
	// have gone unrecorded, so the tree cannot be trusted either.
	if st, ok := c.inflight[topicID]; !ok || st.gen != gen {
		c.discarded.Add(1)
		logging.Debug().Int("topic", topicID).Msg("discarded reply tree built before an invalidation")
		return
	}
	c.lru.Add(topicID, tree)
}

func (c *Cache) Stats() Stats {
	return Stats{
		Topics:        c.Len(),
		Capacity:      c.capacity,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Builds:        c.builds.Load(),
		Coalesced:     c.coalesced.Load(),
		Discarded:     c.discarded.Load(),
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
