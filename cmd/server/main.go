package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/moodmap/internal/adapter/boundary"
	"github.com/pscheid92/moodmap/internal/adapter/httpserver"
	"github.com/pscheid92/moodmap/internal/adapter/metrics"
	"github.com/pscheid92/moodmap/internal/adapter/redis"
	"github.com/pscheid92/moodmap/internal/adapter/socrata"
	"github.com/pscheid92/moodmap/internal/adapter/websocket"
	"github.com/pscheid92/moodmap/internal/aggregate"
	"github.com/pscheid92/moodmap/internal/app"
	"github.com/pscheid92/moodmap/internal/domain"
	"github.com/pscheid92/moodmap/internal/feed"
	"github.com/pscheid92/moodmap/internal/platform/config"
	"github.com/pscheid92/moodmap/internal/platform/logging"
)

const (
	shutdownTimeout     = 10 * time.Second
	redisConnectTimeout = 15 * time.Second
	cacheEvictInterval  = time.Minute
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupCache returns the Redis-backed cache when REDIS_URL is set and an
// in-process cache otherwise. cleanup releases whichever was built.
func setupCache(cfg *config.Config, clock clockwork.Clock, reg prometheus.Registerer) (domain.SnapshotCache, *goredis.Client, func()) {
	if cfg.RedisURL == "" {
		cache := feed.NewMemoryCache(clock)
		stop := cache.StartEvictionTimer(cacheEvictInterval)
		slog.Info("Using in-memory record cache")
		return cache, nil, stop
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, metrics.NewRedisMetrics(reg))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("Using Redis record cache")
	return redis.NewSnapshotCache(client), client, func() { _ = client.Close() }
}

func setupBoundaries(cfg *config.Config) *boundary.Index {
	if cfg.BoundaryPath == "" {
		slog.Info("No boundary file configured, choropleth and locate are disabled")
		return nil
	}
	idx, err := boundary.Load(cfg.BoundaryPath)
	if err != nil {
		slog.Error("Failed to load boundaries", "path", cfg.BoundaryPath, "error", err)
		os.Exit(1)
	}
	slog.Info("Boundaries loaded", "path", cfg.BoundaryPath, "neighborhoods", idx.Len())
	return idx
}

func newDatasetClient(cfg *config.Config, m *metrics.FeedMetrics) *socrata.Client {
	return socrata.NewClient(socrata.Config{
		BaseURL:           cfg.DatasetBaseURL,
		DatasetID:         cfg.DatasetID,
		FallbackDatasetID: cfg.DatasetID,
		CatalogURL:        cfg.CatalogURL,
		CatalogDomain:     cfg.CatalogDomain,
		CatalogQuery:      cfg.CatalogQuery,
		AppToken:          cfg.SocrataAppToken,
		RowLimit:          cfg.RowLimit,
		DiscoveryTimeout:  cfg.DiscoveryTimeout,
		RequestTimeout:    cfg.RequestTimeout,
		Location:          cfg.Location(),
	}, m)
}

func healthChecks(controller *app.Controller, redisClient *goredis.Client) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{{
		Name: "snapshot",
		Check: func(context.Context) error {
			_, err := controller.Snapshot()
			return err
		},
	}}
	if redisClient != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return checks
}

func runGracefulShutdown(srv *httpserver.Server, hub *websocket.Hub, stopTicker context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		stopTicker()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		hub.Stop()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "dataset", cfg.DatasetID)

	reg := metrics.NewRegistry()
	loc := cfg.Location()

	cache, redisClient, closeCache := setupCache(cfg, clock, reg)
	defer closeCache()

	boundaries := setupBoundaries(cfg)

	feedMetrics := metrics.NewFeedMetrics(reg)
	source := newDatasetClient(cfg, feedMetrics)
	fetcher := feed.NewFetcher(source, cache, clock, feed.Config{
		Namespace: cfg.CacheNamespace,
		TTL:       cfg.CacheTTL,
		Location:  loc,
	}, feedMetrics)

	hub := websocket.NewHub(cfg.MaxWebSocketConnections, metrics.NewWebSocketMetrics(reg))
	wsHandler := websocket.NewHandler(hub, websocket.NewCheckOrigin(cfg.AppURL, !cfg.IsProduction()))

	controller := app.NewController(fetcher, hub, clock, app.Config{
		DefaultWindowHours: cfg.DefaultWindowHours,
		MaxWindowHours:     cfg.MaxWindowHours,
		Aggregate:          aggregate.DefaultOptions(loc),
	}, metrics.NewRefreshMetrics(reg))

	tickerCtx, stopTicker := context.WithCancel(context.Background())
	go func() {
		if _, err := controller.RefreshCurrent(tickerCtx); err != nil {
			slog.Warn("Initial refresh failed, serving degraded until the next cycle", "error", err)
		}
		app.NewRefreshTicker(controller, clock, cfg.RefreshInterval).Run(tickerCtx)
	}()

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		Maps:         controller,
		Boundaries:   boundaries,
		WebSocket:    wsHandler,
		Metrics:      metrics.Handler(reg),
		HTTPMetrics:  metrics.NewHTTPMetrics(reg),
		HealthChecks: healthChecks(controller, redisClient),
		Clock:        clock,
	})

	done := runGracefulShutdown(srv, hub, stopTicker)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
