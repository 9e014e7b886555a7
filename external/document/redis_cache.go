package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/kikitori/internal/document"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "kikitori:ocr:"

type RedisTextCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTextCache(client *redis.Client, ttl time.Duration) document.TextCache {
	return &RedisTextCache{client: client, ttl: ttl}
}

func (c *RedisTextCache) Get(ctx context.Context, ref document.ObjectRef) (string, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(ref)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get %s: %w", ref.String(), err)
	}
	return val, true, nil
}

func (c *RedisTextCache) Set(ctx context.Context, ref document.ObjectRef, text string) error {
	if err := c.client.Set(ctx, cacheKey(ref), text, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", ref.String(), err)
	}
	return nil
}

func cacheKey(ref document.ObjectRef) string {
	return cacheKeyPrefix + ref.Bucket + "/" + ref.Key
}
