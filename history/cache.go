package history

import (
	"context"
	"sync"
	"time"

	"github.com/liamcoop/rulespec/rules"
)

// CacheConfig holds configuration for series caching
type CacheConfig struct {
	// TTL is the time-to-live for a cached series.
	// Set to 0 for no expiration (invalidation on Record/Delete only)
	TTL time.Duration
}

type cachedSeries struct {
	samples  []Sample
	cachedAt time.Time
}

// load tracks backend reads of one key that are in flight. A write during
// the read marks it stale so the result is not cached.
type load struct {
	readers int
	stale   bool
}

// CachedStore wraps a Store and keeps the full series of recently read keys in
// memory. Windows are applied to the cached copy, so one backend query serves
// every window shape. Writes through the cache invalidate the key.
type CachedStore struct {
	backend Store
	config  CacheConfig
	entries map[string]cachedSeries
	loads   map[string]*load
	now     func() time.Time
	mu      sync.RWMutex
}

// NewCachedStore creates a caching decorator around backend
func NewCachedStore(backend Store, config CacheConfig) *CachedStore {
	return &CachedStore{
		backend: backend,
		config:  config,
		entries: make(map[string]cachedSeries),
		loads:   make(map[string]*load),
		now:     time.Now,
	}
}

func (c *CachedStore) expired(entry cachedSeries) bool {
	return c.config.TTL > 0 && c.now().Sub(entry.cachedAt) > c.config.TTL
}

func (c *CachedStore) lookup(key string) ([]Sample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.expired(entry) {
		return nil, false
	}
	return entry.samples, true
}

// begin registers a backend read of key
func (c *CachedStore) begin(key string) *load {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.loads[key]
	if !ok {
		l = &load{}
		c.loads[key] = l
	}
	l.readers++
	return l
}

// finish ends a backend read and caches samples unless the key was written
// while the read was in flight. A nil samples slice only ends the read.
func (c *CachedStore) finish(key string, l *load, samples []Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if samples != nil && !l.stale {
		c.entries[key] = cachedSeries{samples: samples, cachedAt: c.now()}
	}
	l.readers--
	if l.readers == 0 && c.loads[key] == l {
		delete(c.loads, key)
	}
	c.evictExpired()
}

// evictExpired drops every expired entry. Callers hold mu.
func (c *CachedStore) evictExpired() {
	if c.config.TTL <= 0 {
		return
	}
	for key, entry := range c.entries {
		if c.expired(entry) {
			delete(c.entries, key)
		}
	}
}

// Record writes through and invalidates key
func (c *CachedStore) Record(ctx context.Context, key string, sample Sample) error {
	if err := c.backend.Record(ctx, key, sample); err != nil {
		return err
	}
	c.Invalidate(key)
	return nil
}

// Series serves from cache when fresh, otherwise loads the full series
func (c *CachedStore) Series(ctx context.Context, key string, window rules.AnalysisWindow, now time.Time) ([]Sample, error) {
	samples, ok := c.lookup(key)
	if !ok {
		l := c.begin(key)
		loaded, err := c.backend.Series(ctx, key, rules.AllData(), now)
		if err != nil {
			c.finish(key, l, nil)
			return nil, err
		}
		if loaded == nil {
			loaded = []Sample{}
		}
		c.finish(key, l, loaded)
		samples = loaded
	}

	// ApplyWindow returns a copy, so the cached slice is never handed out
	return rules.ApplyWindow(window, samples, now), nil
}

// Keys is not cached
func (c *CachedStore) Keys(ctx context.Context) ([]string, error) {
	return c.backend.Keys(ctx)
}

// Delete removes the series and invalidates key
func (c *CachedStore) Delete(ctx context.Context, key string) error {
	defer c.Invalidate(key)
	return c.backend.Delete(ctx, key)
}

// Invalidate drops the cached series of key. Reads of key already in flight
// will not populate the cache.
func (c *CachedStore) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	if l, ok := c.loads[key]; ok {
		l.stale = true
		delete(c.loads, key)
	}
}

// InvalidateAll clears the cache
func (c *CachedStore) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.loads {
		l.stale = true
	}
	c.loads = make(map[string]*load)
	c.entries = make(map[string]cachedSeries)
}

// Len reports the number of cached series
func (c *CachedStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
