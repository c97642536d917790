package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/fieldops/internal/cache"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL  = 5 * time.Minute
	cacheKeyPrefix   = "fieldops:cache:"
	scanBatchSize    = 200
	maxPatchAttempts = 3
)

var _ cache.QueryCache = (*QueryCache)(nil)

// QueryCache is a JSON query cache with a fixed TTL per entry.
type QueryCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewQueryCache(client *goredis.Client, ttl time.Duration) (*QueryCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &QueryCache{client: client, ttl: ttl}, nil
}

func (c *QueryCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		// A stale or foreign value is treated as a miss and dropped.
		_ = c.client.Del(ctx, cacheKeyPrefix+key).Err()
		return false, nil
	}
	return true, nil
}

func (c *QueryCache) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	if err := c.client.Set(ctx, cacheKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

func (c *QueryCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	fullKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		fullKeys = append(fullKeys, cacheKeyPrefix+key)
	}
	if err := c.client.Del(ctx, fullKeys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache keys: %w", err)
	}
	return nil
}

func (c *QueryCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	pattern := cacheKeyPrefix + escapeGlob(prefix) + "*"

	var batch []string
	iter := c.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatchSize {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to invalidate cache prefix %s: %w", prefix, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache prefix %s: %w", prefix, err)
	}

	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to invalidate cache prefix %s: %w", prefix, err)
		}
	}
	return nil
}

func (c *QueryCache) Patch(ctx context.Context, key string, update func(raw []byte) ([]byte, error)) (bool, error) {
	fullKey := cacheKeyPrefix + key

	for attempt := 0; attempt < maxPatchAttempts; attempt++ {
		found := false
		err := c.client.Watch(ctx, func(tx *goredis.Tx) error {
			raw, err := tx.Get(ctx, fullKey).Bytes()
			if errors.Is(err, goredis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			found = true

			updated, err := update(raw)
			if err != nil {
				return err
			}

			ttl := tx.PTTL(ctx, fullKey).Val()
			if ttl <= 0 {
				ttl = c.ttl
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, fullKey, updated, ttl)
				return nil
			})
			return err
		}, fullKey)

		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to patch cache key %s: %w", key, err)
		}
		return found, nil
	}

	// Lost the race repeatedly; drop the entry so the next read refills it.
	if err := c.client.Del(ctx, fullKey).Err(); err != nil {
		return false, fmt.Errorf("failed to drop contended cache key %s: %w", key, err)
	}
	return false, nil
}

func escapeGlob(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return replacer.Replace(s)
}
