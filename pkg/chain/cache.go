package chain

import (
	"time"

	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/Code-Hex/go-generics-cache/policy/lru"
)

const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 10 * time.Minute
)

// Cache is a bounded LRU with per-entry expiry. It is safe for concurrent use and
// is shared by the goroutines resolving keys for one transaction.
type Cache[K comparable, V any] struct {
	cache *cache.Cache[K, V]
	ttl   time.Duration
}

func NewCache[K comparable, V any](size int, ttl time.Duration) *Cache[K, V] {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache[K, V]{
		cache: cache.New(cache.AsLRU[K, V](lru.WithCapacity(size))),
		ttl:   ttl,
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.cache.Get(key)
}

func (c *Cache[K, V]) Set(key K, val V) {
	if c.ttl > 0 {
		c.cache.Set(key, val, cache.WithExpiration(c.ttl))
		return
	}
	c.cache.Set(key, val)
}

func (c *Cache[K, V]) Delete(key K) {
	c.cache.Delete(key)
}
