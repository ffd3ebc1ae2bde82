// Package meshcache wraps a cache.Backend so that every local write is
// replicated to the mesh before it lands on disk or in memory.
package meshcache

import (
	"time"

	"github.com/crgwbr/knit/pkg/cache"
)

// Replicator fans a cache write out to mesh peers. *mesh.Server satisfies
// this.
type Replicator interface {
	ReplicateCacheEntry(key string, entry cache.Entry, ttl time.Duration)
}

// Cache decorates a backend with mesh replication. It is the path used by
// the proxy for locally-originated writes; writes arriving over the mesh go
// straight to the wrapped backend and never pass through here, which is
// what keeps replication from looping back on itself.
type Cache struct {
	backend cache.Backend
	mesh    Replicator
}

// New wraps backend with replication through mesh.
func New(backend cache.Backend, mesh Replicator) *Cache {
	return &Cache{backend: backend, mesh: mesh}
}

func (c *Cache) Get(key string) (cache.Entry, bool, error) {
	return c.backend.Get(key)
}

func (c *Cache) Delete(key string) error {
	return c.backend.Delete(key)
}

// Set broadcasts the entry to every known peer and then writes it locally.
// Broadcast is fire-and-forget: a slow or unreachable peer never delays or
// fails the local write.
func (c *Cache) Set(key string, entry cache.Entry, ttl time.Duration) error {
	if c.mesh != nil {
		c.mesh.ReplicateCacheEntry(key, entry, ttl)
	}
	return c.backend.Set(key, entry, ttl)
}
