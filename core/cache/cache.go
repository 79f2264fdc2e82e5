// Package cache provides LRU caching for resolved citation metadata.
package cache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"github.com/citekit/citelink/core/cite"
)

// Cache is a generic LRU cache interface.
type Cache[K comparable, V any] interface {
	// Get retrieves a value from the cache.
	Get(key K) (V, bool)

	// Put stores a value in the cache.
	Put(key K, value V)

	// Remove removes a value from the cache.
	Remove(key K)

	// Clear removes all entries from the cache.
	Clear()

	// Len returns the number of entries in the cache.
	Len() int

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	Size       int
	MaxSize    int
	TotalBytes int64
}

// Config contains cache configuration options.
type Config struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int

	// TTL is the time-to-live for entries (0 = no expiration).
	TTL time.Duration

	// OnEvict is called when an entry is evicted.
	OnEvict func(key, value interface{})
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize: 100,
		TTL:     0,
		OnEvict: nil,
	}
}

// entry represents a cache entry.
type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// lruCache is a thread-safe LRU cache implementation.
type lruCache[K comparable, V any] struct {
	mu        sync.RWMutex
	config    Config
	entries   map[K]*list.Element
	evictList *list.List
	stats     Stats
}

// NewLRUCache creates a new LRU cache with the given configuration.
func NewLRUCache[K comparable, V any](config Config) Cache[K, V] {
	return newLRU[K, V](config)
}

func newLRU[K comparable, V any](config Config) *lruCache[K, V] {
	if config.MaxSize < 0 {
		config.MaxSize = 0
	}

	return &lruCache[K, V]{
		config:    config,
		entries:   make(map[K]*list.Element),
		evictList: list.New(),
	}
}

// Get retrieves a value from the cache.
func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}

	// Check if expired
	e := ent.Value.(*entry[K, V])
	if c.config.TTL > 0 && time.Now().After(e.expiresAt) {
		c.removeElement(ent)
		c.stats.Misses++
		var zero V
		return zero, false
	}

	// Move to front (most recently used)
	c.evictList.MoveToFront(ent)
	c.stats.Hits++
	return e.value, true
}

// Put stores a value in the cache.
func (c *lruCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if entry already exists
	if ent, ok := c.entries[key]; ok {
		c.evictList.MoveToFront(ent)
		e := ent.Value.(*entry[K, V])
		e.value = value
		if c.config.TTL > 0 {
			e.expiresAt = time.Now().Add(c.config.TTL)
		}
		return
	}

	// Add new entry
	e := &entry[K, V]{
		key:   key,
		value: value,
	}
	if c.config.TTL > 0 {
		e.expiresAt = time.Now().Add(c.config.TTL)
	}

	ent := c.evictList.PushFront(e)
	c.entries[key] = ent

	// Evict oldest entry if necessary
	if c.config.MaxSize > 0 && c.evictList.Len() > c.config.MaxSize {
		c.removeOldest()
	}
}

// Remove removes a value from the cache.
func (c *lruCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		c.removeElement(ent)
	}
}

// Clear removes all entries from the cache.
func (c *lruCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*list.Element)
	c.evictList.Init()
	c.stats.Size = 0
}

// Len returns the number of entries in the cache.
func (c *lruCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.evictList.Len()
}

// Stats returns cache statistics.
func (c *lruCache[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Size = c.evictList.Len()
	s.MaxSize = c.config.MaxSize
	return s
}

// evictOldest removes the least recently used entry and reports whether
// one was removed.
func (c *lruCache[K, V]) evictOldest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.evictList.Len() == 0 {
		return false
	}
	c.removeOldest()
	return true
}

// removeOldest removes the oldest entry from the cache.
func (c *lruCache[K, V]) removeOldest() {
	ent := c.evictList.Back()
	if ent != nil {
		c.removeElement(ent)
		c.stats.Evictions++
	}
}

// removeElement removes an element from the cache.
func (c *lruCache[K, V]) removeElement(ent *list.Element) {
	c.evictList.Remove(ent)
	e := ent.Value.(*entry[K, V])
	delete(c.entries, e.key)

	if c.config.OnEvict != nil {
		c.config.OnEvict(e.key, e.value)
	}
}

// ItemCache is a specialized cache for resolved CSL items, keyed by the
// reference manager's item key.
type ItemCache struct {
	cache *BoundedCache[string, *cite.Item]
}

// NewItemCache creates a new item cache with the given entry and byte limits.
func NewItemCache(config Config, maxBytes int64) *ItemCache {
	return &ItemCache{
		cache: NewBoundedCache[string, *cite.Item](config, maxBytes, estimateItemBytes),
	}
}

// NewDefaultItemCache creates a new item cache with default configuration.
func NewDefaultItemCache() *ItemCache {
	config := DefaultConfig()
	config.MaxSize = 256 // CSL items are small JSON blobs, keep plenty
	return NewItemCache(config, 4<<20)
}

// Get retrieves an item from the cache by its key.
func (c *ItemCache) Get(key string) (*cite.Item, bool) {
	return c.cache.Get(key)
}

// Put stores an item in the cache.
func (c *ItemCache) Put(key string, item *cite.Item) {
	c.cache.Put(key, item)
}

// Remove removes an item from the cache.
func (c *ItemCache) Remove(key string) {
	c.cache.Remove(key)
}

// Clear removes all items from the cache.
func (c *ItemCache) Clear() {
	c.cache.Clear()
}

// Len returns the number of cached items.
func (c *ItemCache) Len() int {
	return c.cache.Len()
}

// Stats returns cache statistics.
func (c *ItemCache) Stats() Stats {
	return c.cache.Stats()
}

// jsonMarshalFunc is a variable that holds the JSON marshal function.
// It can be overridden in tests to simulate marshal errors.
var jsonMarshalFunc = json.Marshal

// estimateItemBytes estimates the byte size of a CSL item.
func estimateItemBytes(item *cite.Item) int64 {
	data, err := jsonMarshalFunc(item)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// BoundedCache is an LRU cache with a byte budget on top of the entry
// count limit. Entry sizes are tracked per key, and the LRU's eviction
// hook keeps the byte accounting in step no matter why an entry leaves
// (count eviction, TTL expiry, or explicit removal).
type BoundedCache[K comparable, V any] struct {
	cache    *lruCache[K, V]
	mu       sync.RWMutex
	maxBytes int64
	bytes    int64
	sizes    map[K]int64
	sizeFunc func(V) int64
}

// NewBoundedCache creates a new cache with both entry count and byte size limits.
func NewBoundedCache[K comparable, V any](config Config, maxBytes int64, sizeFunc func(V) int64) *BoundedCache[K, V] {
	b := &BoundedCache[K, V]{
		maxBytes: maxBytes,
		sizes:    make(map[K]int64),
		sizeFunc: sizeFunc,
	}
	// All mutation of the inner cache happens under b.mu, so the hook
	// may touch the accounting fields without further locking.
	onEvict := config.OnEvict
	config.OnEvict = func(key, value interface{}) {
		if k, ok := key.(K); ok {
			b.bytes -= b.sizes[k]
			delete(b.sizes, k)
		}
		if onEvict != nil {
			onEvict(key, value)
		}
	}
	b.cache = newLRU[K, V](config)
	return b
}

// Get retrieves a value from the cache. It takes the write lock because
// a TTL-expired entry is removed on access, which fires the evict hook.
func (c *BoundedCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Get(key)
}

// Put stores a value in the cache. Values larger than the whole byte
// budget are not cached; otherwise old entries are evicted until the
// value fits.
func (c *BoundedCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.sizeFunc(value)
	if c.maxBytes > 0 && size > c.maxBytes {
		return
	}
	if _, ok := c.sizes[key]; ok {
		// Replacing a key releases its old budget through the hook.
		c.cache.Remove(key)
	}
	for c.maxBytes > 0 && c.bytes+size > c.maxBytes && c.cache.evictOldest() {
	}
	c.cache.Put(key, value)
	c.sizes[key] = size
	c.bytes += size
}

// Remove removes a value from the cache.
func (c *BoundedCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(key)
}

// Clear removes all entries from the cache.
func (c *BoundedCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Clear()
	c.sizes = make(map[K]int64)
	c.bytes = 0
}

// Len returns the number of entries in the cache.
func (c *BoundedCache[K, V]) Len() int {
	return c.cache.Len()
}

// Stats returns cache statistics including byte size information.
func (c *BoundedCache[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.cache.Stats()
	stats.TotalBytes = c.bytes
	return stats
}
