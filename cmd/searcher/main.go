// Command searcher serves the search API over the latest published
// snapshot and swaps in new snapshots as they appear.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml] [-index site.dsidx]
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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/storage"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	indexFile := flag.String("index", "", "serve this snapshot file instead of the store's LATEST")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "storage", cfg.Storage.Type)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	store, err := storage.New(ctx, cfg.Storage, cfg.Snapshot.Dir)
	if err != nil {
		slog.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}
	holder := snapshot.NewHolder()
	loader := snapshot.NewLoader(store, holder, snapshot.LoaderConfig{Metrics: m})

	if *indexFile != "" {
		if _, err := loader.LoadFile(*indexFile); err != nil {
			slog.Error("failed to load index file", "path", *indexFile, "error", err)
			os.Exit(1)
		}
	} else {
		if _, err := loader.Reload(ctx); err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				slog.Error("failed to load initial snapshot", "error", err)
			} else {
				slog.Warn("no snapshot published yet, serving 503 until one appears")
			}
		}
		startReloaders(ctx, cfg, store, loader)
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using local cache only", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}
	queryCache := cache.New(cfg.Cache, redisClient, cfg.Redis, m)
	slog.Info("search cache enabled",
		"local_size", cfg.Cache.LocalSize,
		"redis", redisClient != nil,
		"redis_ttl", cfg.Redis.CacheTTL,
	)

	var collector *analytics.Collector
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, cfg.Analytics)
		collector.Start(ctx)
		defer collector.Close()
	}

	h := handler.New(handler.Options{
		Holder:    holder,
		Executor:  executor.New(cfg.Search),
		Cache:     queryCache,
		Collector: collector,
		Metrics:   m,
		Search:    cfg.Search,
	})

	checker := health.NewChecker()
	checker.Register("snapshot", h.SnapshotCheck())
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, false))
	}

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RateLimit(middleware.NewLimiter(cfg.RateLimit), m)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

// startReloaders runs every configured reload trigger in the background.
func startReloaders(ctx context.Context, cfg *config.Config, store storage.Store, loader *snapshot.Loader) {
	go loader.Poll(ctx, cfg.Snapshot.ReloadInterval)

	if fs, ok := store.(*storage.FileStore); ok && cfg.Snapshot.Watch {
		go func() {
			if err := loader.Watch(ctx, fs.Dir()); err != nil {
				slog.Error("snapshot watcher stopped", "error", err)
			}
		}()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		// Every searcher must see every announcement, so each instance
		// joins its own consumer group.
		group := fmt.Sprintf("%s-%s", cfg.Kafka.ConsumerGroup, uuid.NewString()[:8])
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SnapshotPublished, group, loader.HandleSnapshotPublished())
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("snapshot consumer stopped", "error", err)
			}
		}()
		slog.Info("listening for snapshot announcements", "topic", cfg.Kafka.Topics.SnapshotPublished, "group", group)
	}
}
