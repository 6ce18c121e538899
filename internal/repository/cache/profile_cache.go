package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"properpakistan-api/internal/domain"
	"properpakistan-api/pkg/logger"
	"properpakistan-api/pkg/metrics"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "profile:"

// redisProfileCache stores profiles as JSON with a TTL. Redis errors degrade to
// a direct load so a cache outage never blocks authentication.
type redisProfileCache struct {
	client  *redis.Client
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
}

func NewRedisProfileCache(client *redis.Client, ttl time.Duration, m *metrics.Metrics) domain.ProfileCache {
	return &redisProfileCache{client: client, ttl: ttl, metrics: m}
}

func (c *redisProfileCache) Get(ctx context.Context, id string, load func(ctx context.Context) (*domain.Profile, error)) (*domain.Profile, error) {
	key := keyPrefix + id

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p domain.Profile
		if jsonErr := json.Unmarshal(cached, &p); jsonErr == nil {
			c.metrics.Cache("hit")
			return &p, nil
		}
		c.metrics.Cache("error")
	case errors.Is(err, redis.Nil):
		c.metrics.Cache("miss")
	default:
		c.metrics.Cache("error")
		logger.Log.Warn("Profile cache read failed", "error", err)
	}

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		p, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(p); err == nil {
			if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
				logger.Log.Warn("Profile cache write failed", "error", err)
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*domain.Profile)
	return &p, nil
}

func (c *redisProfileCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		logger.Log.Warn("Profile cache invalidation failed", "user_id", id, "error", err)
	}
}

// memoryProfileCache is the in-process fallback when Redis is not configured.
type memoryProfileCache struct {
	entries *lru.LRU[string, domain.Profile]
	group   singleflight.Group
	metrics *metrics.Metrics
}

func NewMemoryProfileCache(size int, ttl time.Duration, m *metrics.Metrics) domain.ProfileCache {
	return &memoryProfileCache{
		entries: lru.NewLRU[string, domain.Profile](size, nil, ttl),
		metrics: m,
	}
}

func (c *memoryProfileCache) Get(ctx context.Context, id string, load func(ctx context.Context) (*domain.Profile, error)) (*domain.Profile, error) {
	if p, ok := c.entries.Get(id); ok {
		c.metrics.Cache("hit")
		return &p, nil
	}
	c.metrics.Cache("miss")

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		p, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.entries.Add(id, *p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*domain.Profile)
	return &p, nil
}

func (c *memoryProfileCache) Invalidate(_ context.Context, id string) {
	c.entries.Remove(id)
}
