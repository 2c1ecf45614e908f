package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/auxiliary"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/generation"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/manager"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/service"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"index_dir", cfg.Index.Dir,
		"auxiliary_loader", cfg.Auxiliary.Loader,
		"cache", cfg.Cache.Kind,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	checker := health.NewChecker()

	var loader auxiliary.Loader
	switch cfg.Auxiliary.Loader {
	case "postgres":
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		checker.Register("postgres", health.PingCheck(pg.Ping, false))
		loader = auxiliary.NewPostgresLoader(pg)
	default:
		loader = auxiliary.NewFileLoader(cfg.Auxiliary.Dir)
	}
	store := auxiliary.NewStore(loader, cfg.Auxiliary.RefreshInterval, m)
	if _, err := store.Reload(ctx); err != nil {
		slog.Warn("initial auxiliary load failed, serving without auxiliary data", "error", err)
	}
	store.Start(ctx)

	queryCache, closeCache := newQueryCache(ctx, cfg, m, checker)
	defer closeCache()

	aggregator := analytics.NewAggregator()
	sinks := analytics.Sinks{aggregator}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector := analytics.NewBatchCollector(producer, 500, 5*time.Second)
		collector.Start(ctx)
		defer collector.Close()
		sinks = append(sinks, collector)
		slog.Info("search events publishing enabled", "topic", cfg.Kafka.Topics.SearchEvents)
	}

	mgr := manager.New(manager.Options{
		Dir: cfg.Index.Dir,
		Aux: store,
		Warm: func(ctx context.Context, g *generation.Generation) error {
			return service.Warm(ctx, g, cfg.Index.WarmupQuery)
		},
		OnPublish: func(g *generation.Generation) {
			// Only this process reads an in-process cache, and it no longer
			// serves the generations keyed in it. A shared cache keeps them
			// for replicas that have not reopened yet.
			if cfg.Cache.Kind != "lru" || queryCache == nil {
				return
			}
			if err := queryCache.Invalidate(ctx); err != nil {
				slog.Warn("purging result cache", "seq", g.Seq, "error", err)
			}
		},
		Metrics:  m,
		Interval: cfg.Index.ReopenInterval,
		Startup: resilience.RetryConfig{
			MaxAttempts:  cfg.Startup.MaxAttempts,
			InitialDelay: cfg.Startup.InitialDelay,
			MaxDelay:     cfg.Startup.MaxDelay,
		},
	})
	defer mgr.Close()
	if err := mgr.Open(ctx); err != nil {
		slog.Error("index not available yet, will keep retrying", "error", err)
	}
	mgr.Start(ctx)

	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		h, err := mgr.Acquire()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		defer h.Release()
		g := h.Generation()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %d, %d documents", g.Seq, g.NumDocs()),
		}
	})

	svc := service.New(mgr, queryCache, sinks, m, service.Config{
		DefaultTake:  cfg.Search.DefaultTake,
		MaxTake:      cfg.Search.MaxTake,
		QueryTimeout: cfg.Search.QueryTimeout,
	})
	h := handler.New(svc, queryCache)
	stats := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /search/stats", stats.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.Server.AllowOrigins
	chain = middleware.CORS(cors)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stopMetrics := func(context.Context) error { return nil }
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port, nil)
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if err := stopMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

// newQueryCache builds the configured result cache. A redis cache that
// cannot connect falls back to running uncached.
func newQueryCache(ctx context.Context, cfg *config.Config, m *metrics.Metrics, checker *health.Checker) (*cache.QueryCache, func()) {
	switch cfg.Cache.Kind {
	case "lru":
		slog.Info("in-process result cache enabled", "size", cfg.Cache.Size, "ttl", cfg.Cache.TTL)
		return cache.New(cache.NewLRU(cfg.Cache.Size, cfg.Cache.TTL), m), func() {}
	case "redis":
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
			return nil, func() {}
		}
		checker.Register("redis", health.PingCheck(client.Ping, false))
		breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		})
		slog.Info("redis result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Cache.TTL)
		return cache.New(cache.NewRedis(client, cfg.Cache.TTL, breaker), m), func() { client.Close() }
	default:
		slog.Info("result cache disabled")
		return nil, func() {}
	}
}
