package travel

import (
	"context"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/models"
)

// CacheTTL is how long a travel estimate stays valid for a coordinate pair.
const CacheTTL = 24 * time.Hour

// coordinate rounding for cache keys; nearby origins share estimates.
const keyPrecision = 1e4

// Estimator is the minimal surface the cache wraps.
type Estimator interface {
	Estimate(ctx context.Context, origin, dest models.Coordinates, mode models.TransportMode) (time.Duration, error)
	EstimateBatch(ctx context.Context, origin models.Coordinates, dests map[string]models.Coordinates, mode models.TransportMode) (map[string]time.Duration, error)
}

// CacheConfig bounds the in-process tier.
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

type cachedEstimate struct {
	Duration time.Duration
	StoredAt time.Time
}

// Cache memoizes travel estimates in a bounded LRU with an optional shared
// Redis tier behind it. Keys round both coordinates and include the transport
// mode; a cached estimate for another mode serves as a fallback before
// calling out. The cache is explicitly constructed and injected, never a
// process-global.
type Cache struct {
	inner  Estimator
	local  *lru.Cache[string, cachedEstimate]
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	hits   func()
	misses func()
}

// NewCache wraps an estimator. The redis client may be nil for a purely
// in-process cache.
func NewCache(inner Estimator, rdb *redis.Client, cfg CacheConfig, logger *zap.Logger) (*Cache, error) {
	if cfg.Size <= 0 {
		cfg.Size = 4096
	}
	if cfg.TTL <= 0 {
		cfg.TTL = CacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	local, err := lru.New[string, cachedEstimate](cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("init travel cache: %w", err)
	}
	return &Cache{
		inner:  inner,
		local:  local,
		redis:  rdb,
		ttl:    cfg.TTL,
		logger: logger,
		hits:   func() {},
		misses: func() {},
	}, nil
}

// OnHit and OnMiss register metric callbacks.
func (c *Cache) OnHit(fn func())  { c.hits = fn }
func (c *Cache) OnMiss(fn func()) { c.misses = fn }

var fallbackModes = []models.TransportMode{
	models.TransportModeDriving,
	models.TransportModeTransit,
	models.TransportModeWalking,
}

// Estimate resolves one pair through the cache tiers.
func (c *Cache) Estimate(ctx context.Context, origin, dest models.Coordinates, mode models.TransportMode) (time.Duration, error) {
	if d, ok := c.lookup(ctx, origin, dest, mode); ok {
		c.hits()
		return d, nil
	}
	for _, other := range fallbackModes {
		if other == mode {
			continue
		}
		if d, ok := c.lookup(ctx, origin, dest, other); ok {
			c.hits()
			c.logger.Debug("travel cache cross-mode fallback",
				zap.String("wanted", string(mode)), zap.String("served", string(other)))
			return d, nil
		}
	}
	c.misses()

	d, err := c.inner.Estimate(ctx, origin, dest, mode)
	if err != nil {
		return 0, err
	}
	c.store(ctx, origin, dest, mode, d)
	return d, nil
}

// EstimateBatch serves cache hits locally and forwards only the misses.
func (c *Cache) EstimateBatch(ctx context.Context, origin models.Coordinates, dests map[string]models.Coordinates, mode models.TransportMode) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration, len(dests))
	missing := make(map[string]models.Coordinates)
	for id, dest := range dests {
		if d, ok := c.lookup(ctx, origin, dest, mode); ok {
			c.hits()
			out[id] = d
			continue
		}
		c.misses()
		missing[id] = dest
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.inner.EstimateBatch(ctx, origin, missing, mode)
	if err != nil {
		if len(out) > 0 {
			// Serve what the cache already had; the caller defaults the rest.
			c.logger.Warn("travel batch degraded, serving cached subset", zap.Error(err))
			return out, nil
		}
		return nil, err
	}
	for id, d := range fetched {
		out[id] = d
		c.store(ctx, origin, missing[id], mode, d)
	}
	return out, nil
}

func (c *Cache) lookup(ctx context.Context, origin, dest models.Coordinates, mode models.TransportMode) (time.Duration, bool) {
	key := cacheKey(origin, dest, mode)
	if entry, ok := c.local.Get(key); ok {
		if time.Since(entry.StoredAt) < c.ttl {
			return entry.Duration, true
		}
		c.local.Remove(key)
	}
	if c.redis == nil {
		return 0, false
	}
	minutes, err := c.redis.Get(ctx, key).Float64()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("travel cache redis lookup failed", zap.Error(err))
		}
		return 0, false
	}
	d := time.Duration(minutes * float64(time.Minute))
	c.local.Add(key, cachedEstimate{Duration: d, StoredAt: time.Now()})
	return d, true
}

func (c *Cache) store(ctx context.Context, origin, dest models.Coordinates, mode models.TransportMode, d time.Duration) {
	key := cacheKey(origin, dest, mode)
	c.local.Add(key, cachedEstimate{Duration: d, StoredAt: time.Now()})
	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, key, d.Minutes(), c.ttl).Err(); err != nil {
		c.logger.Debug("travel cache redis store failed", zap.Error(err))
	}
}

func cacheKey(origin, dest models.Coordinates, mode models.TransportMode) string {
	return fmt.Sprintf("travel:%s:%g,%g:%g,%g",
		mode,
		roundCoord(origin.Lat), roundCoord(origin.Lng),
		roundCoord(dest.Lat), roundCoord(dest.Lng))
}

func roundCoord(v float64) float64 {
	return math.Round(v*keyPrecision) / keyPrecision
}
