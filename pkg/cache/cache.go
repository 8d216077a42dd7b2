// Package cache provides a size-bounded, TTL-aware key/value store shared by
// the catalog, queue and playback layers for metadata lookups. Entries expire
// lazily on read and through a periodic sweep; eviction beyond capacity is
// least-recently-used.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// sweepBatchSize bounds how many entries a sweep pass examines while holding
// the write lock. Readers and writers interleave between batches.
const sweepBatchSize = 128

// Stats is a snapshot of cache accounting.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// Config controls cache construction.
type Config struct {
	Capacity      int
	DefaultTTL    time.Duration
	SweepInterval time.Duration
}

// Validate checks for invalid construction parameters.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be > 0, got %d", c.Capacity)
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("cache default TTL must be > 0, got %v", c.DefaultTTL)
	}
	return nil
}

type item[V any] struct {
	key        string
	value      V
	insertedAt time.Time
	ttl        time.Duration
}

func (it *item[V]) expired(now time.Time) bool {
	return now.After(it.insertedAt.Add(it.ttl))
}

// Cache is a generic TTL+LRU store safe for concurrent use.
type Cache[V any] struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	hits      int64
	misses    int64
	evictions int64

	stopSweep chan struct{}
	stopOnce  sync.Once
}

// New creates a cache. It fails only on invalid configuration.
func New[V any](cfg Config) (*Cache[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Cache[V]{
		cfg:       cfg,
		entries:   make(map[string]*list.Element),
		order:     list.New(),
		stopSweep: make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go c.sweepLoop()
	}

	return c, nil
}

// Get returns the value for key. Expired entries behave as a miss and are
// removed, counted as an eviction.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	it := elem.Value.(*item[V])
	if it.expired(now) {
		c.removeLocked(elem)
		c.evictions++
		c.misses++
		return zero, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return it.value, true
}

// Put inserts or replaces the value for key. A ttl of zero uses the
// configured default. Insertion beyond capacity evicts the least recently
// used entry.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		it := elem.Value.(*item[V])
		it.value = value
		it.insertedAt = time.Now()
		it.ttl = ttl
		c.order.MoveToFront(elem)
		return
	}

	for len(c.entries) >= c.cfg.Capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}

	it := &item[V]{key: key, value: value, insertedAt: time.Now(), ttl: ttl}
	c.entries[key] = c.order.PushFront(it)
}

// Invalidate removes key if present.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
}

// Stats returns current cache accounting.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}

// Close stops the background sweeper. The cache remains usable.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stopSweep)
	})
}

func (c *Cache[V]) removeLocked(elem *list.Element) {
	it := elem.Value.(*item[V])
	delete(c.entries, it.key)
	c.order.Remove(elem)
}

func (c *Cache[V]) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes expired entries in bounded batches so a full scan never
// holds the lock for the whole pass.
func (c *Cache[V]) sweep() {
	for {
		now := time.Now()
		removed := 0
		scanned := 0

		c.mu.Lock()
		elem := c.order.Back()
		for elem != nil && scanned < sweepBatchSize {
			prev := elem.Prev()
			it := elem.Value.(*item[V])
			if it.expired(now) {
				c.removeLocked(elem)
				c.evictions++
				removed++
			}
			elem = prev
			scanned++
		}
		done := elem == nil
		c.mu.Unlock()

		if done || removed == 0 {
			return
		}
	}
}
