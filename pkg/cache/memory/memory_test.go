package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crgwbr/knit/pkg/cache"
)

func TestBackendGetSet(t *testing.T) {
	b := New()

	_, hit, err := b.Get("missing")
	require.NoError(t, err)
	require.False(t, hit)

	entry := cache.Entry{Body: []byte("hello"), StatusCode: 200}
	require.NoError(t, b.Set("key", entry, time.Minute))

	got, hit, err := b.Get("key")
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, entry.Body, got.Body)
}

func TestBackendExpires(t *testing.T) {
	b := New()
	require.NoError(t, b.Set("key", cache.Entry{}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, hit, err := b.Get("key")
	require.NoError(t, err)
	require.False(t, hit)
}

func TestBackendDelete(t *testing.T) {
	b := New()
	require.NoError(t, b.Set("key", cache.Entry{}, time.Minute))
	require.NoError(t, b.Delete("key"))

	_, hit, err := b.Get("key")
	require.NoError(t, err)
	require.False(t, hit)
}
