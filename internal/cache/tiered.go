// Package cache provides the two-tier store backing conversation sessions:
// a Redis fast tier and a durable tier that remains the source of truth.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ordena/pizzabot/internal/observability/metrics"
	"github.com/ordena/pizzabot/pkg/logging"
)

// ErrNotFound reports that no tier holds the key.
var ErrNotFound = errors.New("cache: entry not found")

// ErrDurableUnavailable wraps durable-tier failures so callers can decide
// whether to degrade or retry.
var ErrDurableUnavailable = errors.New("cache: durable tier unavailable")

// DurableStore is the authoritative backing store.
type DurableStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte, updatedAt time.Time) error
	Delete(ctx context.Context, key string) error
}

const defaultTTL = 30 * time.Minute

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// TieredCache reads through Redis into the durable tier and writes through
// the durable tier into Redis. A small in-process map shadows fast-tier
// writes so reads keep working while Redis is down.
type TieredCache struct {
	redis   *redis.Client
	durable DurableStore
	ttl     time.Duration
	logger  *logging.Logger
	metrics *metrics.CacheMetrics

	mu    sync.Mutex
	local map[string]localEntry

	sweepEvery time.Duration
	stop       chan struct{}
	done       chan struct{}
}

// Option configures a TieredCache.
type Option func(*TieredCache)

// WithTTL overrides the fast-tier TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *TieredCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithSweepInterval overrides how often expired in-process entries are purged.
func WithSweepInterval(every time.Duration) Option {
	return func(c *TieredCache) {
		if every > 0 {
			c.sweepEvery = every
		}
	}
}

// WithMetrics attaches cache metrics.
func WithMetrics(m *metrics.CacheMetrics) Option {
	return func(c *TieredCache) {
		c.metrics = m
	}
}

// New creates a TieredCache. The redis client may be nil, in which case only
// the in-process shadow and the durable tier are used.
func New(rdb *redis.Client, durable DurableStore, logger *logging.Logger, opts ...Option) *TieredCache {
	if durable == nil {
		panic("cache: durable store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &TieredCache{
		redis:      rdb,
		durable:    durable,
		ttl:        defaultTTL,
		logger:     logger,
		local:      make(map[string]localEntry),
		sweepEvery: 5 * time.Minute,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.sweepLoop()
	return c
}

// Read returns the value for key, consulting the fast tier first and backfilling
// it on a durable hit. A durable failure returns ErrDurableUnavailable unless a
// fast-tier value can serve the read.
func (c *TieredCache) Read(ctx context.Context, key string) ([]byte, error) {
	if value, ok := c.readFast(ctx, key); ok {
		c.metrics.ObserveHit("fast")
		return value, nil
	}

	value, err := c.durable.Read(ctx, key)
	if err == nil {
		c.metrics.ObserveHit("durable")
		c.writeFast(ctx, key, value)
		return value, nil
	}
	if errors.Is(err, ErrNotFound) {
		c.metrics.ObserveMiss()
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
}

// Write persists to the durable tier first, then refreshes the fast tier.
// A durable failure is returned loudly; the fast tier is never treated as
// authoritative.
func (c *TieredCache) Write(ctx context.Context, key string, value []byte, updatedAt time.Time) error {
	if err := c.durable.Write(ctx, key, value, updatedAt); err != nil {
		return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	c.writeFast(ctx, key, value)
	return nil
}

// WriteFast updates only the fast tier. Callers use it to keep serving a
// session whose durable write has been queued for retry.
func (c *TieredCache) WriteFast(ctx context.Context, key string, value []byte) {
	c.writeFast(ctx, key, value)
}

// WriteDurable retries the authoritative write without touching the fast tier,
// which already holds the value.
func (c *TieredCache) WriteDurable(ctx context.Context, key string, value []byte, updatedAt time.Time) error {
	if err := c.durable.Write(ctx, key, value, updatedAt); err != nil {
		return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	return nil
}

// Invalidate removes the key from every tier.
func (c *TieredCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.local, key)
	c.mu.Unlock()

	if c.redis != nil {
		if err := c.redis.Del(ctx, key).Err(); err != nil {
			c.metrics.ObserveFastTierError()
			c.logger.Warn("failed to invalidate fast tier", "key", key, "error", err)
		}
	}
	if err := c.durable.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrDurableUnavailable, err)
	}
	return nil
}

// Close stops the background sweeper.
func (c *TieredCache) Close() {
	close(c.stop)
	<-c.done
}

func (c *TieredCache) readFast(ctx context.Context, key string) ([]byte, bool) {
	if c.redis != nil {
		value, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			return value, true
		}
		if err != redis.Nil {
			c.metrics.ObserveFastTierError()
			c.logger.Warn("fast tier read failed, degrading to local shadow", "key", key, "error", err)
		} else {
			return nil, false
		}
	}

	// Lazy purge past TTL.
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.local, key)
		return nil, false
	}
	return entry.value, true
}

func (c *TieredCache) writeFast(ctx context.Context, key string, value []byte) {
	if c.redis != nil {
		if err := c.redis.Set(ctx, key, value, c.ttl).Err(); err != nil {
			c.metrics.ObserveFastTierError()
			c.logger.Warn("fast tier write failed", "key", key, "error", err)
		}
	}
	c.mu.Lock()
	c.local[key] = localEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *TieredCache) sweepLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *TieredCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.local {
		if now.After(entry.expiresAt) {
			delete(c.local, key)
		}
	}
}
