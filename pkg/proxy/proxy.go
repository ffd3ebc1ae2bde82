// Package proxy implements the caching HTTP reverse proxy: it serves cache
// hits directly, forwards everything else to a single upstream, and decides
// what to cache from the upstream's Cache-Control response header.
package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crgwbr/knit/pkg/cache"
	"github.com/crgwbr/knit/pkg/metrics"
)

// ErrOriginUnreachable wraps any failure talking to the upstream.
var ErrOriginUnreachable = errors.New("proxy: origin unreachable")

// DefaultMaxBodyBytes bounds how large a response body may be before it is
// excluded from caching. Oversized responses are still proxied to the
// client in full; they are simply never written to the cache backend.
const DefaultMaxBodyBytes = 10 << 20 // 10 MiB

// Upstream is the single backend every request is forwarded to.
type Upstream struct {
	Scheme string
	Host   string
	Port   int
}

func (u Upstream) base() string {
	return fmt.Sprintf("%s://%s:%d", u.Scheme, u.Host, u.Port)
}

// Handler is the proxy's http.Handler.
type Handler struct {
	Backend      Upstream
	Cache        cache.Backend
	Client       *http.Client
	MaxBodyBytes int64
	Log          *zap.Logger

	mu           sync.RWMutex
	cacheMethods map[string]bool
	rules        []Rule
}

// NewHandler builds a Handler with the default cache methods and rules; use
// SetCacheMethods/SetCacheRules to override them from configuration.
func NewHandler(backend Upstream, c cache.Backend, log *zap.Logger) *Handler {
	h := &Handler{
		Backend:      backend,
		Cache:        c,
		Client:       &http.Client{CheckRedirect: neverFollowRedirects},
		MaxBodyBytes: DefaultMaxBodyBytes,
		Log:          log,
	}
	h.SetCacheMethods(nil)
	h.SetCacheRules(nil)
	return h
}

func neverFollowRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// SetCacheMethods sets which HTTP methods are eligible for caching. A nil
// or empty slice restores DefaultCacheMethods.
func (h *Handler) SetCacheMethods(methods []string) {
	if len(methods) == 0 {
		methods = DefaultCacheMethods
	}
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[strings.ToUpper(m)] = true
	}
	h.mu.Lock()
	h.cacheMethods = set
	h.mu.Unlock()
}

// SetCacheRules compiles and installs specs as the active cache-key rules.
// A nil or empty slice restores DefaultRules. Rules that fail to compile
// are skipped and logged.
func (h *Handler) SetCacheRules(specs []RuleSpec) {
	if len(specs) == 0 {
		specs = DefaultRules
	}
	rules := CompileRules(specs, func(spec RuleSpec, err error) {
		h.Log.Error("invalid cache rule pattern, skipping", zap.String("pattern", spec.Pattern), zap.Error(err))
	})
	h.mu.Lock()
	h.rules = rules
	h.mu.Unlock()
}

// ServeHTTP implements the proxy pipeline: derive a cache key, serve a hit
// directly, otherwise fetch from the backend, decide whether to cache the
// response, and write it to the client either way.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}()

	backendURL := h.assembleBackendURL(r)

	h.mu.RLock()
	methods, rules := h.cacheMethods, h.rules
	h.mu.RUnlock()

	key, cacheable := CacheKey(r, backendURL, rules, methods)

	if cacheable {
		entry, hit, err := h.Cache.Get(key)
		if err != nil {
			h.Log.Warn("cache lookup failed, falling through to origin", zap.Error(err))
		} else if hit {
			metrics.CacheResultTotal.WithLabelValues("hit").Inc()
			h.writeEntry(w, entry)
			return
		}
	}

	entry, err := h.fetchFromBackend(r, backendURL)
	if err != nil {
		h.Log.Error("origin fetch failed", zap.String("url", backendURL), zap.Error(err))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	if cacheable {
		h.maybeStore(key, entry)
		metrics.CacheResultTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.CacheResultTotal.WithLabelValues("bypass").Inc()
	}
	h.writeEntry(w, entry)
}

func (h *Handler) maybeStore(key string, entry cache.Entry) {
	if int64(len(entry.Body)) > h.MaxBodyBytes {
		h.Log.Debug("response exceeds max cacheable size, not caching", zap.String("key", key), zap.Int("bytes", len(entry.Body)))
		return
	}
	ttl := CacheTTL(entry.Header.Get("Cache-Control"))
	if ttl <= 0 {
		return
	}
	if err := h.Cache.Set(key, entry, time.Duration(ttl)*time.Second); err != nil {
		h.Log.Warn("cache store failed", zap.String("key", key), zap.Error(err))
	}
}

func (h *Handler) assembleBackendURL(r *http.Request) string {
	u := *r.URL
	u.Scheme = ""
	u.Host = ""
	return h.Backend.base() + u.String()
}

func (h *Handler) fetchFromBackend(r *http.Request, backendURL string) (cache.Entry, error) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, backendURL, r.Body)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("%w: %v", ErrOriginUnreachable, err)
	}
	req.Header = stripHopByHop(r.Header.Clone())
	req.Host = h.Backend.Host

	resp, err := h.Client.Do(req)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("%w: %v", ErrOriginUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("%w: %v", ErrOriginUnreachable, err)
	}

	return cache.Entry{
		Body:       body,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     stripHopByHop(resp.Header),
	}, nil
}

func (h *Handler) writeEntry(w http.ResponseWriter, entry cache.Entry) {
	dst := w.Header()
	for k, v := range entry.Header {
		dst[k] = v
	}
	w.WriteHeader(entry.StatusCode)
	_, _ = w.Write(entry.Body)
}
