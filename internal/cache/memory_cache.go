package cache

import (
	"context"
	"sync"
	"time"

	"github.com/epeers/marketsync/internal/models"
)

// VectorCache stores query embeddings keyed by model and query text
type VectorCache interface {
	GetVector(ctx context.Context, model, query string) ([]float32, bool)
	SetVector(ctx context.Context, model, query string, vector []float32)
}

// DefaultMaxVectors caps the number of cached query vectors
const DefaultMaxVectors = 10000

// MemoryCache provides an in-memory L1 cache for query vectors and recent price history.
// Expired entries are dropped on read, and the vector map is bounded by maxVectors.
type MemoryCache struct {
	vectors    map[string]vectorEntry
	history    map[string]historyEntry
	vectorMu   sync.RWMutex
	historyMu  sync.RWMutex
	ttl        time.Duration
	maxVectors int
}

type vectorEntry struct {
	vector    []float32
	fetchedAt time.Time
}

type historyEntry struct {
	bars      []models.PriceBar
	limit     int
	fetchedAt time.Time
}

var _ VectorCache = (*MemoryCache)(nil)

// NewMemoryCache creates a new in-memory cache whose entries expire after ttl
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		vectors:    make(map[string]vectorEntry),
		history:    make(map[string]historyEntry),
		ttl:        ttl,
		maxVectors: DefaultMaxVectors,
	}
}

func vectorKey(model, query string) string {
	return model + "\x00" + query
}

// GetVector retrieves a cached query vector if fresh. An expired entry is removed.
func (c *MemoryCache) GetVector(_ context.Context, model, query string) ([]float32, bool) {
	key := vectorKey(model, query)

	c.vectorMu.RLock()
	entry, exists := c.vectors[key]
	c.vectorMu.RUnlock()
	if !exists {
		return nil, false
	}
	if c.expired(entry.fetchedAt, time.Now()) {
		c.vectorMu.Lock()
		if e, ok := c.vectors[key]; ok && c.expired(e.fetchedAt, time.Now()) {
			delete(c.vectors, key)
		}
		c.vectorMu.Unlock()
		return nil, false
	}
	return entry.vector, true
}

// SetVector caches a query vector. When the cache is full, expired entries
// are swept first and then the oldest entry is evicted.
func (c *MemoryCache) SetVector(_ context.Context, model, query string, vector []float32) {
	c.vectorMu.Lock()
	defer c.vectorMu.Unlock()

	key := vectorKey(model, query)
	now := time.Now()
	if _, exists := c.vectors[key]; !exists && len(c.vectors) >= c.maxVectors {
		c.evictVectors(now)
	}
	c.vectors[key] = vectorEntry{
		vector:    vector,
		fetchedAt: now,
	}
}

// evictVectors makes room for one entry. Caller holds vectorMu.
func (c *MemoryCache) evictVectors(now time.Time) {
	for key, e := range c.vectors {
		if c.expired(e.fetchedAt, now) {
			delete(c.vectors, key)
		}
	}
	for len(c.vectors) >= c.maxVectors {
		var (
			oldestKey string
			oldest    time.Time
		)
		for key, e := range c.vectors {
			if oldestKey == "" || e.fetchedAt.Before(oldest) {
				oldestKey, oldest = key, e.fetchedAt
			}
		}
		delete(c.vectors, oldestKey)
	}
}

func (c *MemoryCache) expired(fetchedAt, now time.Time) bool {
	return now.Sub(fetchedAt) > c.ttl
}

// GetHistory retrieves the cached recent bars for symbol if fresh and fetched with the same limit
func (c *MemoryCache) GetHistory(symbol string, limit int) ([]models.PriceBar, bool) {
	c.historyMu.RLock()
	entry, exists := c.history[symbol]
	c.historyMu.RUnlock()
	if !exists {
		return nil, false
	}
	if c.expired(entry.fetchedAt, time.Now()) {
		c.historyMu.Lock()
		if e, ok := c.history[symbol]; ok && c.expired(e.fetchedAt, time.Now()) {
			delete(c.history, symbol)
		}
		c.historyMu.Unlock()
		return nil, false
	}
	if entry.limit != limit {
		return nil, false
	}
	return entry.bars, true
}

// SetHistory caches the recent bars for symbol
func (c *MemoryCache) SetHistory(symbol string, limit int, bars []models.PriceBar) {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()

	c.history[symbol] = historyEntry{
		bars:      bars,
		limit:     limit,
		fetchedAt: time.Now(),
	}
}

// InvalidateHistory drops cached price history. Called after each sync run.
func (c *MemoryCache) InvalidateHistory() {
	c.historyMu.Lock()
	c.history = make(map[string]historyEntry)
	c.historyMu.Unlock()
}
