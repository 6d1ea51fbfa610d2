// Command indexer builds search snapshots from the configured document
// source, stores them and announces each one on Kafka.
//
// With -once it runs a single build and exits non-zero on failure;
// otherwise it builds at startup and then on the cron `schedule`.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml] [-once]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/storage"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	once := flag.Bool("once", false, "run one build and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer", "source", cfg.Source.Type, "storage", cfg.Storage.Type, "once", *once)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pg *postgres.Client
	if cfg.Source.Type == "postgres" {
		pg, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
	}
	reader, err := source.New(cfg.Source, pg)
	if err != nil {
		slog.Error("failed to create document source", "error", err)
		os.Exit(1)
	}

	store, err := storage.New(ctx, cfg.Storage, cfg.Snapshot.Dir)
	if err != nil {
		slog.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}

	var publisher kafka.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SnapshotPublished)
		defer producer.Close()
		publisher = producer
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled && !*once {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
	}

	pipeline := indexer.NewPipeline(indexer.PipelineConfig{
		Name:      cfg.Snapshot.Name,
		Compress:  cfg.Snapshot.Compress,
		Reader:    reader,
		Builder:   indexer.NewBuilder(cfg.Index),
		Store:     store,
		Publisher: publisher,
		Metrics:   m,
	})

	if *once {
		if _, err := pipeline.Run(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	if _, err := pipeline.Run(ctx); err != nil {
		slog.Warn("initial build failed, waiting for next schedule", "error", err)
	}
	if cfg.Schedule == "" {
		slog.Info("no schedule configured, exiting after initial build")
		return
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(cfg.Schedule, func() {
		// Errors are logged by the pipeline.
		_, _ = pipeline.Run(ctx)
	}); err != nil {
		slog.Error("invalid schedule", "schedule", cfg.Schedule, "error", err)
		os.Exit(1)
	}
	c.Start()
	slog.Info("indexer scheduled", "schedule", cfg.Schedule)

	<-ctx.Done()
	slog.Info("shutdown signal received")
	<-c.Stop().Done()
	slog.Info("indexer stopped")
}
