// Package metrics holds the prometheus instruments shared by the mesh and
// proxy packages, and a small HTTP server to expose them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// PeerCount is the current size of the local mesh membership table.
	PeerCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "knit",
		Subsystem: "mesh",
		Name:      "peers",
		Help:      "Number of peers in the local membership table.",
	})

	// CacheResultTotal counts proxy requests by how the cache was used:
	// hit, miss, or bypass (not cacheable).
	CacheResultTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "knit",
		Subsystem: "proxy",
		Name:      "cache_result_total",
		Help:      "Proxy requests by cache result.",
	}, []string{"result"})

	// RequestDuration measures end-to-end latency of proxied requests.
	RequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "knit",
		Subsystem: "proxy",
		Name:      "request_duration_seconds",
		Help:      "Time to serve a proxied request, cache hit or miss.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(PeerCount, CacheResultTotal, RequestDuration)
}
