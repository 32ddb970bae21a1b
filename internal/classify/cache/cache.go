// Package cache provides the two-tier classification result cache: a small
// in-process tier for hot entries backed by an optional shared Redis tier.
//
// Redis is strictly an accelerator. Every Redis failure is logged and
// swallowed, so cache behavior degrades to local-only without surfacing
// errors to the classification path.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmolinaso/voxbridge/internal/classify"
)

const redisKeyPrefix = "classify_cache:"

// evictFraction is the share of oldest local entries dropped when the local
// tier is full.
const evictFraction = 0.2

type entry struct {
	result   classify.Result
	storedAt time.Time
}

// Cache is a bounded TTL cache of classification results. Safe for
// concurrent use.
type Cache struct {
	size   int
	ttl    time.Duration
	rdb    redis.Cmdable
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]entry
	order   []string // insertion order, oldest first
	hits    int64
	misses  int64
}

// Options configures a [Cache].
type Options struct {
	// Size bounds the local tier. Defaults to 1000.
	Size int

	// TTL applies to both tiers. Defaults to 1h.
	TTL time.Duration

	// Redis is the optional shared tier. Nil disables it.
	Redis redis.Cmdable

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// New builds a Cache.
func New(opts Options) *Cache {
	size := opts.Size
	if size <= 0 {
		size = 1000
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		size:    size,
		ttl:     ttl,
		rdb:     opts.Redis,
		logger:  logger,
		entries: make(map[string]entry, size),
	}
}

// Key derives the cache key for a classification request. The raw inputs
// never appear in Redis keys.
func Key(text, user, session string, useContext bool) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%t", text, user, session, useContext)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key, checking the local tier first and
// falling back to Redis. A Redis hit repopulates the local tier.
func (c *Cache) Get(ctx context.Context, key string) (classify.Result, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if time.Since(e.storedAt) < c.ttl {
			c.hits++
			c.mu.Unlock()
			return e.result, true
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, redisKeyPrefix+key).Result()
		if err == nil {
			var r classify.Result
			if jerr := json.Unmarshal([]byte(raw), &r); jerr == nil {
				c.storeLocal(key, r)
				c.mu.Lock()
				c.hits++
				c.mu.Unlock()
				return r, true
			}
		} else if err != redis.Nil {
			c.logger.Debug("cache redis get failed", "error", err)
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return classify.Result{}, false
}

// Put stores a result in both tiers.
func (c *Cache) Put(ctx context.Context, key string, result classify.Result) {
	c.storeLocal(key, result)

	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Debug("cache marshal failed", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("cache redis set failed", "error", err)
	}
}

func (c *Cache) storeLocal(key string, result classify.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.size {
		c.evictOldestLocked()
	}
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = entry{result: result, storedAt: time.Now()}
}

// evictOldestLocked drops the oldest fifth of the local tier.
func (c *Cache) evictOldestLocked() {
	n := int(float64(c.size) * evictFraction)
	if n < 1 {
		n = 1
	}
	removed := 0
	kept := c.order[:0]
	for _, key := range c.order {
		if removed < n {
			if _, ok := c.entries[key]; ok {
				delete(c.entries, key)
				removed++
				continue
			}
			// Already gone via TTL expiry; drop the stale order slot.
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	HitRate      float64 `json:"hit_rate"`
	LocalEntries int     `json:"local_entries"`
}

// Stats returns the aggregate counters. HitRate is hits/(hits+misses), zero
// before any lookup.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Hits: c.hits, Misses: c.misses, LocalEntries: len(c.entries)}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
