package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisCache shares query vectors between processes. Lookups that fail are
// treated as misses so a Redis outage only costs an extra embedding call.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ VectorCache = (*RedisCache)(nil)

// NewRedisCache wraps an existing client
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(model, query string) string {
	return fmt.Sprintf("marketsync:qvec:%s:%016x", model, xxhash.Sum64String(query))
}

func (c *RedisCache) GetVector(ctx context.Context, model, query string) ([]float32, bool) {
	raw, err := c.client.Get(ctx, redisKey(model, query)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithField("model", model).Warnf("Redis get failed: %v", err)
		}
		return nil, false
	}
	if len(raw)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return v, true
}

func (c *RedisCache) SetVector(ctx context.Context, model, query string, vector []float32) {
	buf := make([]byte, 4*len(vector))
	for i, f := range vector {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	if err := c.client.Set(ctx, redisKey(model, query), buf, c.ttl).Err(); err != nil {
		log.WithField("model", model).Warnf("Redis set failed: %v", err)
	}
}

// Tiered checks the in-memory cache first, then Redis, filling L1 on an L2 hit
type Tiered struct {
	L1 *MemoryCache
	L2 VectorCache
}

var _ VectorCache = (*Tiered)(nil)

func (t *Tiered) GetVector(ctx context.Context, model, query string) ([]float32, bool) {
	if v, ok := t.L1.GetVector(ctx, model, query); ok {
		return v, true
	}
	if t.L2 == nil {
		return nil, false
	}
	v, ok := t.L2.GetVector(ctx, model, query)
	if ok {
		t.L1.SetVector(ctx, model, query, v)
	}
	return v, ok
}

func (t *Tiered) SetVector(ctx context.Context, model, query string, vector []float32) {
	t.L1.SetVector(ctx, model, query, vector)
	if t.L2 != nil {
		t.L2.SetVector(ctx, model, query, vector)
	}
}
