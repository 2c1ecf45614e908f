// Package cache memoizes formatted query results per index generation. Keys
// embed the generation sequence, so a reopen never serves results computed
// against an older generation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/resilience"
)

const keyPrefix = "search:"

// Backend stores encoded results.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Purge drops every entry this cache wrote.
	Purge(ctx context.Context) error
}

// LRUBackend keeps results in process memory.
type LRUBackend struct {
	lru *expirable.LRU[string, []byte]
}

func NewLRU(size int, ttl time.Duration) *LRUBackend {
	return &LRUBackend{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (b *LRUBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := b.lru.Get(key)
	return v, ok, nil
}

func (b *LRUBackend) Set(_ context.Context, key string, value []byte) error {
	b.lru.Add(key, value)
	return nil
}

func (b *LRUBackend) Purge(context.Context) error {
	b.lru.Purge()
	return nil
}

// RedisBackend shares results between replicas. Calls go through a circuit
// breaker so an unavailable Redis degrades to uncached queries quickly.
type RedisBackend struct {
	client  *pkgredis.Client
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
}

func NewRedis(client *pkgredis.Client, ttl time.Duration, breaker *resilience.CircuitBreaker) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl, breaker: breaker}
}

type lookup struct {
	data  []byte
	found bool
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := resilience.ExecuteValue(b.breaker, func() (lookup, error) {
		data, found, err := b.client.GetBytes(ctx, key)
		return lookup{data: data, found: found}, err
	})
	return res.data, res.found, err
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	return b.breaker.Execute(func() error {
		return b.client.Set(ctx, key, value, b.ttl)
	})
}

func (b *RedisBackend) Purge(ctx context.Context) error {
	_, err := b.client.FlushByPattern(ctx, keyPrefix+"*")
	return err
}

// QueryCache coalesces concurrent identical queries and caches their
// results. A nil *QueryCache computes every request.
type QueryCache struct {
	backend Backend
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key derives a cache key from a generation content key, an operation name
// and the normalized request parts. Generations serving the same commit and
// auxiliary data share keys, in any process.
func Key(generation string, operation string, parts ...string) string {
	raw := fmt.Sprintf("%s|%s|%s", generation, operation, strings.Join(parts, "|"))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, generation, hash[:16])
}

func (c *QueryCache) get(ctx context.Context, key string, out any) bool {
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *QueryCache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	c.metrics.CacheHitsTotal.Inc()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMissesTotal.Inc()
}

// GetOrCompute returns the cached value for key, or runs compute once for
// all concurrent callers of the same key and caches its result. The bool
// reports a cache hit.
func GetOrCompute[T any](ctx context.Context, c *QueryCache, key string, compute func() (T, error)) (T, bool, error) {
	if c == nil {
		v, err := compute()
		return v, false, err
	}
	var cached T
	if c.get(ctx, key, &cached) {
		c.hit()
		return cached, true, nil
	}
	c.miss()
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		var again T
		if c.get(ctx, key, &again) {
			return again, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

// Invalidate drops all cached results, typically after a new generation is
// published.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.backend.Purge(ctx); err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated")
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}
