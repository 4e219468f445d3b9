// Package cache implements the namespaced Redis cache of spec §4.2. Every
// key is prefixed so invalidation-by-pattern never crosses a boundary it
// shouldn't, and every operation fails soft: a Redis outage degrades to
// cache misses and dropped writes, logged at WARN, never a request error.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrMiss is returned by Get when the key is absent (a cache miss, not a
// failure); callers should fall through to the source of truth.
var ErrMiss = errors.New("cache: miss")

// Cache wraps a go-redis client with the tenant-aware key conventions of
// spec §4.2 ("tenant:{tenant_id}:...", "tenant:subdomain:{sub}") and a
// uniform fail-soft policy on backend errors.
type Cache struct {
	rdb     *redis.Client
	timeout time.Duration
}

// New wraps an already-connected redis.Client. timeout bounds every
// individual cache operation so a slow Redis never stalls a request past
// its own budget (spec's CACHE_TIMEOUT_MS).
func New(rdb *redis.Client, timeout time.Duration) *Cache {
	return &Cache{rdb: rdb, timeout: timeout}
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// Get fetches the JSON value stored at key into dest. Returns ErrMiss on a
// cache miss or any backend failure — callers cannot distinguish the two,
// by design, since both resolve to "go read the source of truth".
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, err := c.rdb.Get(cctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		}
		return ErrMiss
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache value corrupt, treating as miss")
		return ErrMiss
	}
	return nil
}

// Set stores value as JSON at key with the given TTL. Failures are logged
// and swallowed: a dropped write just means the next Get is a miss.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, err := json.Marshal(value)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache marshal failed, dropping write")
		return
	}
	if err := c.rdb.Set(cctx, key, raw, ttl).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache set failed, dropping write")
	}
}

// Delete removes a single key, swallowing backend failures.
func (c *Cache) Delete(ctx context.Context, key string) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.rdb.Del(cctx, key).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}

// DeleteByPattern invalidates every key matching pattern (e.g.
// "tenant:{id}:*" after a tenant settings change), using SCAN rather than
// KEYS so invalidation never blocks the Redis event loop.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()

	iter := c.rdb.Scan(cctx, 0, pattern, 200).Iterator()
	var keys []string
	for iter.Next(cctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("pattern", pattern).Msg("cache scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(cctx, keys...).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("pattern", pattern).Msg("cache pattern delete failed")
	}
}

// Incr atomically increments key by 1, setting ttl on first creation. Used
// by the sliding-window rate limiter. A backend failure returns ok=false
// so callers can fail open rather than block traffic on a Redis outage.
func (c *Cache) Incr(ctx context.Context, key string, ttl time.Duration) (count int64, ok bool) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.rdb.Incr(cctx, key).Result()
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache incr failed")
		return 0, false
	}
	if n == 1 {
		// first increment in the window: arm expiry so the counter resets
		if err := c.rdb.Expire(cctx, key, ttl).Err(); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache expire-arm failed")
		}
	}
	return n, true
}
