// Package memory provides an unbounded in-memory cache backend.
package memory

import (
	"sync"
	"time"

	"github.com/crgwbr/knit/pkg/cache"
)

type item struct {
	entry     cache.Entry
	expiresAt time.Time
}

// Backend is a process-local cache with no eviction beyond TTL expiry.
// Suitable for small deployments or as the local store behind a mesh where
// peers bound the working set by virtue of their own TTLs.
type Backend struct {
	mu    sync.RWMutex
	items map[string]item
}

// New creates an empty Backend.
func New() *Backend {
	return &Backend{items: make(map[string]item)}
}

func (b *Backend) Get(key string) (cache.Entry, bool, error) {
	b.mu.RLock()
	it, ok := b.items[key]
	b.mu.RUnlock()
	if !ok {
		return cache.Entry{}, false, nil
	}
	if time.Now().After(it.expiresAt) {
		b.mu.Lock()
		delete(b.items, key)
		b.mu.Unlock()
		return cache.Entry{}, false, nil
	}
	return it.entry, true, nil
}

func (b *Backend) Set(key string, entry cache.Entry, ttl time.Duration) error {
	b.mu.Lock()
	b.items[key] = item{entry: entry, expiresAt: time.Now().Add(ttl)}
	b.mu.Unlock()
	return nil
}

func (b *Backend) Delete(key string) error {
	b.mu.Lock()
	delete(b.items, key)
	b.mu.Unlock()
	return nil
}
