package boltstore

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crgwbr/knit/pkg/cache"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	b, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackendPersistsEntry(t *testing.T) {
	b := openTestBackend(t)

	entry := cache.Entry{
		Body:       []byte("payload"),
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
	}
	require.NoError(t, b.Set("key", entry, time.Minute))

	got, hit, err := b.Get("key")
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, entry.Body, got.Body)
	require.Equal(t, entry.StatusCode, got.StatusCode)
	require.Equal(t, "text/plain", got.Header.Get("Content-Type"))
}

func TestBackendExpires(t *testing.T) {
	b := openTestBackend(t)
	require.NoError(t, b.Set("key", cache.Entry{}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, hit, err := b.Get("key")
	require.NoError(t, err)
	require.False(t, hit)
}

func TestBackendDelete(t *testing.T) {
	b := openTestBackend(t)
	require.NoError(t, b.Set("key", cache.Entry{}, time.Minute))
	require.NoError(t, b.Delete("key"))

	_, hit, err := b.Get("key")
	require.NoError(t, err)
	require.False(t, hit)
}
