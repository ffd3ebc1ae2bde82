package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/crgwbr/knit/cli/options"
	"github.com/crgwbr/knit/pkg/cache"
	"github.com/crgwbr/knit/pkg/cache/boltstore"
	"github.com/crgwbr/knit/pkg/cache/lruback"
	"github.com/crgwbr/knit/pkg/cache/memory"
	"github.com/crgwbr/knit/pkg/cache/meshcache"
	knitconfig "github.com/crgwbr/knit/pkg/config"
	"github.com/crgwbr/knit/pkg/mesh"
	"github.com/crgwbr/knit/pkg/metrics"
	"github.com/crgwbr/knit/pkg/proxy"
)

// NewCommands returns the 'run' command.
func NewCommands() []*cli.Command {
	flags := []cli.Flag{options.ConfigFile, options.Discover, options.Debug, options.ForceTimestampLogs}
	return []*cli.Command{
		{
			Name:      "run",
			Usage:     "Start the knit caching proxy and mesh server",
			UsageText: "knit run [--config-file file] [--discover host:port] [--debug] [--force-timestamp-logs]",
			Action:    runServer,
			Flags:     flags,
		},
	}
}

func newGraceContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	signal.Notify(stop, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()
	return ctx
}

func runServer(ctx *cli.Context) error {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.Exit(err, 1)
	}
	if d := ctx.String(options.Discover.Name); d != "" {
		cfg.Mesh.Discover = d
	}

	log, logCloser, err := options.HandleLoggingParams(ctx, cfg.Log)
	if err != nil {
		return cli.Exit(err, 1)
	}
	if logCloser != nil {
		defer func() { _ = logCloser() }()
	}
	defer func() { _ = log.Sync() }()

	grace := newGraceContext()

	backend, err := newCacheBackend(cfg.Cache)
	if err != nil {
		return cli.Exit(fmt.Errorf("cache backend: %w", err), 1)
	}
	if closer, ok := backend.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}

	meshSrv := mesh.NewServer(mesh.Config{
		Host:          cfg.Mesh.Host,
		AdvertiseHost: cfg.Mesh.AdvertiseHost,
		BasePort:      cfg.Mesh.BasePort,
		PortRange:     cfg.Mesh.PortRange,
		AcceptTimeout: cfg.Mesh.AcceptTimeout,
		DialTimeout:   cfg.Mesh.DialTimeout,
	}, log)
	meshSrv.SetCacheBackend(backend)

	if err := meshSrv.Listen(); err != nil {
		return cli.Exit(fmt.Errorf("mesh listen: %w", err), 1)
	}

	if cfg.Mesh.Discover != "" {
		if err := meshSrv.DiscoverMesh(grace, cfg.Mesh.Discover); err != nil {
			log.Warn("mesh discovery failed, starting alone", zap.Error(err))
		}
	}

	go func() {
		if err := meshSrv.Serve(grace); err != nil {
			log.Error("mesh server stopped", zap.Error(err))
		}
	}()

	proxyCache := meshcache.New(backend, meshSrv)
	handler := proxy.NewHandler(proxy.Upstream{
		Scheme: cfg.HTTP.Backend.Scheme,
		Host:   cfg.HTTP.Backend.Host,
		Port:   cfg.HTTP.Backend.Port,
	}, proxyCache, log)
	handler.SetCacheMethods(cfg.Cache.Methods)
	handler.SetCacheRules(toRuleSpecs(cfg.Cache.Rules))
	if cfg.Cache.MaxBodyBytes > 0 {
		handler.MaxBodyBytes = cfg.Cache.MaxBodyBytes
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Frontend.Host, cfg.HTTP.Frontend.Port),
		Handler: handler,
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(metrics.Config{Host: cfg.Metrics.Host, Port: cfg.Metrics.Port})
		go func() {
			log.Info("metrics listening", zap.String("address", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		log.Info("proxy listening",
			zap.String("address", httpSrv.Addr),
			zap.String("backend", fmt.Sprintf("%s://%s:%d", cfg.HTTP.Backend.Scheme, cfg.HTTP.Backend.Host, cfg.HTTP.Backend.Port)),
			zap.String("mesh_token", meshSrv.Token()),
			zap.String("mesh_address", meshSrv.Address()))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("proxy server stopped", zap.Error(err))
		}
	}()

	<-grace.Done()
	log.Info("shutting down")
	meshSrv.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func newCacheBackend(cfg knitconfig.Cache) (cache.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.New(), nil
	case "lru":
		return lruback.New(cfg.LRUSize)
	case "bolt":
		return boltstore.Open(cfg.BoltPath)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func toRuleSpecs(rules []knitconfig.Rule) []proxy.RuleSpec {
	specs := make([]proxy.RuleSpec, len(rules))
	for i, r := range rules {
		specs[i] = proxy.RuleSpec{Pattern: r.Pattern, Template: r.Template}
	}
	return specs
}
