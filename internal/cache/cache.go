package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-path accelerator, never authoritative. Every key is tracked
// in a per-prefix index set so bulk invalidation does not scan the keyspace.
type Cache interface {
	Set(ctx context.Context, prefix, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, prefix, key string) ([]byte, error)
	InvalidatePrefix(ctx context.Context, prefixes ...string) error
}

type redisCache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) Cache {
	return &redisCache{rdb: rdb}
}

func fullKey(prefix, key string) string { return prefix + ":" + key }

func indexKey(prefix string) string { return fmt.Sprintf("cacheidx:{%s}", prefix) }

func (c *redisCache) Set(ctx context.Context, prefix, key string, value []byte, ttl time.Duration) error {
	k := fullKey(prefix, key)
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, k, value, ttl)
	pipe.SAdd(ctx, indexKey(prefix), k)
	// index outlives members slightly; stale index entries just DEL nothing
	pipe.Expire(ctx, indexKey(prefix), ttl+time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisCache) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, fullKey(prefix, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (c *redisCache) InvalidatePrefix(ctx context.Context, prefixes ...string) error {
	for _, prefix := range prefixes {
		idx := indexKey(prefix)
		members, err := c.rdb.SMembers(ctx, idx).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if len(members) > 0 {
			if err := c.rdb.Del(ctx, members...).Err(); err != nil {
				return err
			}
		}
		if err := c.rdb.Del(ctx, idx).Err(); err != nil {
			return err
		}
	}
	return nil
}
