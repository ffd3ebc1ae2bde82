package proxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crgwbr/knit/pkg/cache/memory"
)

func newTestHandler(t *testing.T, origin *httptest.Server) *Handler {
	t.Helper()
	u, err := url.Parse(origin.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return NewHandler(Upstream{Scheme: "http", Host: u.Hostname(), Port: port}, memory.New(), zap.NewNop())
}

func TestServeHTTPCachesPublicResponse(t *testing.T) {
	hits := 0
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("origin response"))
	}))
	defer origin.Close()

	h := newTestHandler(t, origin)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/thing", nil)
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "origin response", rec.Body.String())
		require.Empty(t, rec.Header().Get("Connection"), "hop-by-hop header must not reach the client")
	}
	require.Equal(t, 1, hits, "second request should be served from cache")
}

func TestServeHTTPDoesNotCachePrivateResponse(t *testing.T) {
	hits := 0
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Cache-Control", "private")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("nope"))
	}))
	defer origin.Close()

	h := newTestHandler(t, origin)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/thing", nil)
		h.ServeHTTP(rec, req)
	}
	require.Equal(t, 2, hits, "private responses must never be served from cache")
}

func TestServeHTTPBypassesCacheForNonGet(t *testing.T) {
	hits := 0
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.WriteHeader(http.StatusOK)
	}))
	defer origin.Close()

	h := newTestHandler(t, origin)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/thing", nil)
	h.ServeHTTP(rec, req)
	require.Equal(t, 1, hits)
}

func TestServeHTTPOriginUnreachable(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u, err := url.Parse(origin.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	origin.Close() // close immediately so the port is refused

	h := NewHandler(Upstream{Scheme: "http", Host: u.Hostname(), Port: port}, memory.New(), zap.NewNop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
