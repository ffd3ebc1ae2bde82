package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the metrics HTTP listener.
type Config struct {
	Enabled bool
	Host    string
	Port    int
}

// NewServer builds (but does not start) the metrics HTTP server.
func NewServer(cfg Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: mux,
	}
}
