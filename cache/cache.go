// Package cache provides a generic in-process TTL store for upstream query results.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-dropship-gateway/internal/metrics"
)

type entry[T any] struct {
	data     T
	storedAt time.Time
}

// Cache maps keys to values valid for ttl after they were stored. Entries are
// replaced wholesale on Set and never mutated in place.
type Cache[T any] struct {
	ttl     time.Duration
	nowFunc func() time.Time
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]entry[T]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	TTLMillis int64 `json:"ttlMs"`
}

type Option func(*options)

type options struct {
	nowFunc func() time.Time
	metrics *metrics.Metrics
}

func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		o.nowFunc = now
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func New[T any](ttl time.Duration, opts ...Option) *Cache[T] {
	o := options{nowFunc: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		ttl:     ttl,
		nowFunc: o.nowFunc,
		metrics: o.metrics,
		entries: make(map[string]entry[T]),
	}
}

// Get returns the value for key if present and younger than the ttl.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.valid(e, c.nowFunc()) {
		c.hits.Add(1)
		c.metrics.CacheLookup(true)
		return e.data, true
	}
	if ok {
		c.mu.Lock()
		if current, still := c.entries[key]; still && !c.valid(current, c.nowFunc()) {
			delete(c.entries, key)
			c.evictions.Add(1)
		}
		c.mu.Unlock()
	}
	c.misses.Add(1)
	c.metrics.CacheLookup(false)
	var zero T
	return zero, false
}

func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	c.entries[key] = entry[T]{data: value, storedAt: c.nowFunc()}
	c.mu.Unlock()
}

func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge removes every entry.
func (c *Cache[T]) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]entry[T])
	c.mu.Unlock()
}

func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[T]) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		TTLMillis: c.ttl.Milliseconds(),
	}
}

// EvictExpired drops every expired entry and returns how many were removed.
func (c *Cache[T]) EvictExpired() int {
	now := c.nowFunc()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if !c.valid(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	c.evictions.Add(int64(removed))
	return removed
}

// Run evicts expired entries every ttl until ctx is done.
func (c *Cache[T]) Run(ctx context.Context) {
	if c.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.EvictExpired()
		}
	}
}

func (c *Cache[T]) valid(e entry[T], now time.Time) bool {
	return now.Sub(e.storedAt) < c.ttl
}
