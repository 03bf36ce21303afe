package client

import (
	"net/http"
	"sync"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

var _ httpcache.Cache = (*PurgeableCache)(nil)

// PurgeableCache wraps an httpcache.Cache and remembers the keys it wrote so
// every cached response can be dropped when the session ends.
type PurgeableCache struct {
	inner httpcache.Cache

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewCache returns a disk backed cache when cacheDir is set, otherwise an in
// memory one.
func NewCache(cacheDir string) *PurgeableCache {
	var inner httpcache.Cache = httpcache.NewMemoryCache()
	if cacheDir != "" {
		inner = diskcache.New(cacheDir)
	}
	return &PurgeableCache{inner: inner, keys: make(map[string]struct{})}
}

func (c *PurgeableCache) Get(key string) ([]byte, bool) {
	return c.inner.Get(key)
}

func (c *PurgeableCache) Set(key string, value []byte) {
	c.mu.Lock()
	c.keys[key] = struct{}{}
	c.mu.Unlock()
	c.inner.Set(key, value)
}

func (c *PurgeableCache) Delete(key string) {
	c.mu.Lock()
	delete(c.keys, key)
	c.mu.Unlock()
	c.inner.Delete(key)
}

// Purge deletes every entry written through this cache and returns the count.
func (c *PurgeableCache) Purge() int {
	c.mu.Lock()
	keys := c.keys
	c.keys = make(map[string]struct{})
	c.mu.Unlock()

	for key := range keys {
		c.inner.Delete(key)
	}
	return len(keys)
}

// Len returns the number of tracked entries.
func (c *PurgeableCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

// NewCachingTransport caches responses in cache on top of base.
func NewCachingTransport(cache httpcache.Cache, base http.RoundTripper) http.RoundTripper {
	t := httpcache.NewTransport(cache)
	t.Transport = base
	return t
}
