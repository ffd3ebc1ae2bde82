// Package lruback provides a bounded cache backend backed by an LRU
// eviction policy, so the resident set stays capped regardless of how many
// distinct keys the proxy has ever seen.
package lruback

import (
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/crgwbr/knit/pkg/cache"
)

type item struct {
	entry     cache.Entry
	expiresAt time.Time
}

// Backend wraps a fixed-size hashicorp/golang-lru cache.
type Backend struct {
	cache *lru.Cache
}

// New creates a Backend holding at most size entries.
func New(size int) (*Backend, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Backend{cache: c}, nil
}

func (b *Backend) Get(key string) (cache.Entry, bool, error) {
	v, ok := b.cache.Get(key)
	if !ok {
		return cache.Entry{}, false, nil
	}
	it := v.(item)
	if time.Now().After(it.expiresAt) {
		b.cache.Remove(key)
		return cache.Entry{}, false, nil
	}
	return it.entry, true, nil
}

func (b *Backend) Set(key string, entry cache.Entry, ttl time.Duration) error {
	b.cache.Add(key, item{entry: entry, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (b *Backend) Delete(key string) error {
	b.cache.Remove(key)
	return nil
}
