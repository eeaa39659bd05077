package classify

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
)

// Cache is a fingerprint-keyed classification cache with LRU eviction
// and per-entry TTL. Hits return an independent copy so callers can
// mutate the result without poisoning the cache.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	key       string
	value     domain.Classification
	expiresAt time.Time
}

// NewCache creates a cache bounded by maxSize entries and ttl per entry.
func NewCache(maxSize int, ttl time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached classification for a fingerprint. Expired
// entries are removed on access and count as misses.
func (c *Cache) Get(fingerprint string) (domain.Classification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fingerprint]
	if !ok {
		c.misses.Add(1)
		return domain.Classification{}, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.removeLocked(el)
		c.misses.Add(1)
		return domain.Classification{}, false
	}
	c.order.MoveToFront(el)
	c.hits.Add(1)
	return entry.value.Clone(), true
}

// Put stores a classification under a fingerprint, evicting the least
// recently used entry when full.
func (c *Cache) Put(fingerprint string, value domain.Classification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[fingerprint]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value.Clone()
		entry.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		if back := c.order.Back(); back != nil {
			c.removeLocked(back)
			c.evictions.Add(1)
		}
	}
	el := c.order.PushFront(&cacheEntry{
		key:       fingerprint,
		value:     value.Clone(),
		expiresAt: c.now().Add(c.ttl),
	})
	c.entries[fingerprint] = el
}

// Invalidate drops one fingerprint.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[fingerprint]; ok {
		c.removeLocked(el)
	}
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

func (c *Cache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.entries, entry.key)
	c.order.Remove(el)
}

// CacheStats is a point-in-time snapshot of cache behavior.
type CacheStats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Stats reports current counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	size := c.order.Len()
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return CacheStats{
		Size:      size,
		MaxSize:   c.maxSize,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		HitRate:   rate,
	}
}
