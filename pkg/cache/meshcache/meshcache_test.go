package meshcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crgwbr/knit/pkg/cache"
	"github.com/crgwbr/knit/pkg/cache/memory"
)

type fakeReplicator struct {
	calls int
	key   string
	ttl   time.Duration

	// local, if set, is checked for the key at the moment of replication.
	local        cache.Backend
	storedBefore bool
}

func (f *fakeReplicator) ReplicateCacheEntry(key string, entry cache.Entry, ttl time.Duration) {
	f.calls++
	f.key = key
	f.ttl = ttl
	if f.local != nil {
		_, f.storedBefore, _ = f.local.Get(key)
	}
}

func TestSetReplicatesBeforeWriting(t *testing.T) {
	backend := memory.New()
	replicator := &fakeReplicator{local: backend}
	c := New(backend, replicator)

	require.NoError(t, c.Set("key", cache.Entry{Body: []byte("v")}, time.Minute))

	require.Equal(t, 1, replicator.calls)
	require.Equal(t, "key", replicator.key)
	require.False(t, replicator.storedBefore, "replication must happen before the local write")

	entry, hit, err := backend.Get("key")
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, []byte("v"), entry.Body)
}

func TestGetAndDeletePassThrough(t *testing.T) {
	backend := memory.New()
	c := New(backend, &fakeReplicator{})

	require.NoError(t, c.Set("key", cache.Entry{Body: []byte("v")}, time.Minute))
	_, hit, err := c.Get("key")
	require.NoError(t, err)
	require.True(t, hit)

	require.NoError(t, c.Delete("key"))
	_, hit, err = c.Get("key")
	require.NoError(t, err)
	require.False(t, hit)
}
