package identity

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"git.handmade.network/hmn/discuss/src/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var users = []models.User{
	{ID: 1, Username: "ben", DisplayName: "Ben Visness", Role: models.RoleAdmin},
	{ID: 2, Username: "asaf", Role: models.RoleMember},
}

func TestStatic(t *testing.T) {
	authors, err := NewStatic(users...).ResolveAuthors(context.Background(), []int{1, 2, 3})
	require.Nil(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "Ben Visness", authors[1].Name)
	assert.True(t, authors[1].IsStaff)
	assert.Equal(t, "asaf", authors[2].Name, "falls back to username")
	assert.False(t, authors[2].IsStaff)
}

type countingResolver struct {
	Resolver
	calls atomic.Int32
}

func (r *countingResolver) ResolveAuthors(ctx context.Context, ids []int) (map[int]models.Author, error) {
	r.calls.Add(1)
	return r.Resolver.ResolveAuthors(ctx, ids)
}

func TestRedisCacheUnavailable(t *testing.T) {
	next := &countingResolver{Resolver: NewStatic(users...)}
	c := &RedisCache{
		Client: redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 50 * time.Millisecond,
			MaxRetries:  -1,
		}),
		Next:   next,
		TTL:    time.Minute,
		Prefix: "test:author:",
	}
	defer c.Client.Close()

	authors, err := c.ResolveAuthors(context.Background(), []int{1, 2})
	require.Nil(t, err)
	assert.Len(t, authors, 2)
	assert.EqualValues(t, 1, next.calls.Load())
}

// Runs against a real Redis when DISCUSS_TEST_REDIS is set to its address.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("DISCUSS_TEST_REDIS")
	if addr == "" {
		t.Skip("DISCUSS_TEST_REDIS not set")
	}

	ctx := context.Background()
	next := &countingResolver{Resolver: NewStatic(users...)}
	c := &RedisCache{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Next:   next,
		TTL:    time.Minute,
		Prefix: "test:author:" + t.Name() + ":",
	}
	defer c.Client.Close()
	require.Nil(t, c.Client.Del(ctx, c.key(1), c.key(2), c.key(3)).Err())

	first, err := c.ResolveAuthors(ctx, []int{1, 2, 3})
	require.Nil(t, err)
	second, err := c.ResolveAuthors(ctx, []int{1, 2})
	require.Nil(t, err)

	assert.Equal(t, first[1], second[1])
	assert.Equal(t, first[2], second[2])
	assert.EqualValues(t, 1, next.calls.Load(), "second lookup is served from redis")
}
