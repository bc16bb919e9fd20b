package identity

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"git.handmade.network/hmn/discuss/src/logging"
	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/oops"
	"github.com/redis/go-redis/v9"
)

/*
A read-through cache in front of another Resolver. Entries expire after TTL.

Redis being unavailable is not fatal: lookups fall through to the underlying
resolver and a warning is logged.
*/
type RedisCache struct {
	Client *redis.Client
	Next   Resolver
	TTL    time.Duration
	Prefix string
}

func (c *RedisCache) key(id int) string {
	return c.Prefix + strconv.Itoa(id)
}

func (c *RedisCache) ResolveAuthors(ctx context.Context, ids []int) (map[int]models.Author, error) {
	result := make(map[int]models.Author, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	missing, err := c.fetchCached(ctx, ids, result)
	if err != nil {
		logging.ExtractLogger(ctx).Warn().Err(err).Msg("author cache unavailable, falling back")
		missing = ids
	}
	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := c.Next.ResolveAuthors(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, author := range fetched {
		result[id] = author
	}

	if err := c.store(ctx, fetched); err != nil {
		logging.ExtractLogger(ctx).Warn().Err(err).Msg("failed to fill author cache")
	}
	return result, nil
}

// Fills result from the cache and returns the ids it could not find.
func (c *RedisCache) fetchCached(ctx context.Context, ids []int, result map[int]models.Author) ([]int, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}

	values, err := c.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, oops.New(err, "failed to read cached authors")
	}

	var missing []int
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var author models.Author
		if err := json.Unmarshal([]byte(raw), &author); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		result[ids[i]] = author
	}
	return missing, nil
}

func (c *RedisCache) store(ctx context.Context, authors map[int]models.Author) error {
	if len(authors) == 0 {
		return nil
	}
	_, err := c.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for id, author := range authors {
			b, err := json.Marshal(author)
			if err != nil {
				return err
			}
			pipe.Set(ctx, c.key(id), b, c.TTL)
		}
		return nil
	})
	if err != nil {
		return oops.New(err, "failed to cache authors")
	}
	return nil
}
