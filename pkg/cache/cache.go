// Package cache is a small in-process read cache used to keep hot config
// records (tenant settings, alert definitions) off the store on the event
// path. Entries serve fresh for TTL, then stale for a revalidation window
// while a single background reload runs, then disappear.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Options tunes one cache instance.
type Options struct {
	// TTL is how long a loaded value serves as fresh.
	TTL time.Duration
	// StaleWhileRevalidate extends the lifetime past TTL; a stale hit is
	// served immediately and one background reload is kicked off.
	StaleWhileRevalidate time.Duration
	// NegativeTTL caches loader misses. Zero disables negative caching.
	NegativeTTL time.Duration
	// MaxEntries bounds the cache; least recently used entries are evicted.
	// Zero means unbounded.
	MaxEntries int
}

// MetricsHooks receives cache events. Any hook may be nil.
type MetricsHooks struct {
	OnHit   func(labels map[string]string)
	OnMiss  func(labels map[string]string)
	OnStale func(labels map[string]string)
	OnStore func(labels map[string]string)
	OnError func(labels map[string]string)
}

func (h MetricsHooks) fire(hook func(map[string]string), key string) {
	if hook != nil {
		hook(map[string]string{"key": key})
	}
}

// Loader fetches the value for a key on miss. ok=false means the key does not
// exist upstream; err carries the reason either way.
type Loader func(ctx context.Context, key string) (interface{}, bool, error)

type record struct {
	key      string
	value    interface{}
	missErr  error
	miss     bool
	freshFor time.Time
	staleFor time.Time
}

// Cache is safe for concurrent use. Loads for the same key are collapsed into
// one upstream call.
type Cache struct {
	opts  Options
	hooks MetricsHooks
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List
}

// New builds an empty cache.
func New(opts Options, hooks MetricsHooks) *Cache {
	return &Cache{
		opts:    opts,
		hooks:   hooks,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Get returns the cached value for key, loading it on miss. A stale entry is
// returned immediately while one refresh runs in the background.
func (c *Cache) Get(ctx context.Context, key string, loader Loader) (interface{}, bool, error) {
	now := time.Now()

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		rec := el.Value.(*record)
		switch {
		case now.Before(rec.freshFor):
			c.lru.MoveToFront(el)
			c.mu.Unlock()
			c.hooks.fire(c.hooks.OnHit, key)
			if rec.miss {
				return nil, false, rec.missErr
			}
			return rec.value, true, nil

		case now.Before(rec.staleFor):
			c.lru.MoveToFront(el)
			c.mu.Unlock()
			c.hooks.fire(c.hooks.OnStale, key)
			go c.group.Do("revalidate:"+key, func() (interface{}, error) {
				v, ok, err := loader(context.WithoutCancel(ctx), key)
				c.put(key, v, ok, err)
				return nil, nil
			})
			if rec.miss {
				return nil, false, rec.missErr
			}
			return rec.value, true, nil

		default:
			c.evict(el)
		}
	}
	c.mu.Unlock()

	c.hooks.fire(c.hooks.OnMiss, key)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		val, ok, lerr := loader(ctx, key)
		c.put(key, val, ok, lerr)
		if !ok {
			return nil, &missError{err: lerr}
		}
		return val, nil
	})
	if err != nil {
		if me, ok := err.(*missError); ok {
			return nil, false, me.err
		}
		return nil, false, err
	}
	return v, true, nil
}

// Set installs a value directly, bypassing the loader.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	now := time.Now()
	c.install(&record{
		key:      key,
		value:    value,
		freshFor: now.Add(ttl),
		staleFor: now.Add(ttl + c.opts.StaleWhileRevalidate),
	})
}

// Peek returns the cached value without loading. Stale values are returned;
// misses and negatives are not.
func (c *Cache) Peek(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	rec := el.Value.(*record)
	if rec.miss || time.Now().After(rec.staleFor) {
		return nil, false
	}
	return rec.value, true
}

// Delete drops one key, typically after the underlying record was mutated.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.evict(el)
	}
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) put(key string, value interface{}, ok bool, err error) {
	now := time.Now()
	if !ok && c.opts.NegativeTTL <= 0 {
		c.hooks.fire(c.hooks.OnError, key)
		return
	}
	rec := &record{key: key}
	if ok {
		rec.value = value
		rec.freshFor = now.Add(c.opts.TTL)
		rec.staleFor = rec.freshFor.Add(c.opts.StaleWhileRevalidate)
	} else {
		rec.miss = true
		rec.missErr = err
		rec.freshFor = now.Add(c.opts.NegativeTTL)
		rec.staleFor = rec.freshFor
	}
	c.install(rec)
	c.hooks.fire(c.hooks.OnStore, key)
}

func (c *Cache) install(rec *record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[rec.key]; ok {
		el.Value = rec
		c.lru.MoveToFront(el)
		return
	}
	c.entries[rec.key] = c.lru.PushFront(rec)
	for c.opts.MaxEntries > 0 && c.lru.Len() > c.opts.MaxEntries {
		c.evict(c.lru.Back())
	}
}

// evict requires c.mu held.
func (c *Cache) evict(el *list.Element) {
	c.lru.Remove(el)
	delete(c.entries, el.Value.(*record).key)
}

type missError struct{ err error }

func (m *missError) Error() string {
	if m.err == nil {
		return "not found"
	}
	return m.err.Error()
}
