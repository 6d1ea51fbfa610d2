package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/storage"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/tracing"
)

// DocumentReader supplies the documents of one build.
type DocumentReader interface {
	Read(ctx context.Context) ([]Source, error)
}

// SnapshotPublished is announced on Kafka after a snapshot is stored and
// LATEST points at it.
type SnapshotPublished struct {
	BuildID   string    `json:"build_id"`
	Key       string    `json:"key"`
	Version   string    `json:"version"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	Bytes     int       `json:"bytes"`
	BuiltAt   time.Time `json:"built_at"`
}

// PipelineConfig wires a Pipeline. Publisher and Metrics are optional.
type PipelineConfig struct {
	Name      string
	Compress  bool
	Reader    DocumentReader
	Builder   *Builder
	Store     storage.Store
	Publisher kafka.Publisher
	Metrics   *metrics.Metrics
}

// Pipeline runs one complete build: read sources, build the index, encode
// it, store the snapshot, move LATEST and announce the new snapshot.
type Pipeline struct {
	cfg    PipelineConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Name == "" {
		cfg.Name = "site"
	}
	return &Pipeline{
		cfg:    cfg,
		logger: slog.Default().With("component", "build-pipeline"),
		now:    time.Now,
	}
}

// Run executes the pipeline once. Nothing is stored if reading or building
// fails. A failed announcement is logged but does not fail the run since
// searchers also poll the store.
func (p *Pipeline) Run(ctx context.Context) (*SnapshotPublished, error) {
	buildID := uuid.NewString()
	ctx, root := tracing.StartSpan(ctx, "index.build", buildID)
	start := p.now()

	event, err := p.run(ctx, buildID)
	root.EndWithError(err)
	root.Log(p.logger)

	elapsed := p.now().Sub(start).Seconds()
	if err != nil {
		p.cfg.Metrics.Build("error", elapsed, 0)
		p.logger.Error("build failed", "build_id", buildID, "error", err)
		return nil, err
	}
	p.cfg.Metrics.Build("ok", elapsed, event.Documents)
	p.logger.Info("snapshot published",
		"build_id", buildID,
		"key", event.Key,
		"version", event.Version,
		"documents", event.Documents,
		"terms", event.Terms,
		"bytes", event.Bytes,
	)
	return event, nil
}

func (p *Pipeline) run(ctx context.Context, buildID string) (*SnapshotPublished, error) {
	stageCtx, span := tracing.StartChildSpan(ctx, "read")
	docs, err := p.cfg.Reader.Read(stageCtx)
	span.SetAttr("documents", len(docs))
	span.EndWithError(err)
	if err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}

	_, span = tracing.StartChildSpan(ctx, "build")
	idx, err := p.cfg.Builder.Build(docs)
	if err == nil {
		span.SetAttr("terms", idx.NumTerms())
	}
	span.EndWithError(err)
	if err != nil {
		return nil, err
	}

	_, span = tracing.StartChildSpan(ctx, "encode")
	data, err := segment.Encode(idx)
	var version string
	ext := segment.Extension
	if err == nil {
		version = segment.Version(data)
		if p.cfg.Compress {
			data, err = segment.Compress(data)
			ext = segment.CompressedExtension
		}
	}
	span.SetAttr("bytes", len(data))
	span.EndWithError(err)
	if err != nil {
		return nil, err
	}

	builtAt := p.now().UTC()
	key := fmt.Sprintf("%s-%s-%s%s", p.cfg.Name, builtAt.Format("20060102T150405Z"), buildID[:8], ext)
	stageCtx, span = tracing.StartChildSpan(ctx, "store")
	span.SetAttr("key", key)
	err = p.cfg.Store.Put(stageCtx, key, data)
	if err == nil {
		err = p.cfg.Store.SetLatest(stageCtx, key)
	}
	span.EndWithError(err)
	if err != nil {
		return nil, fmt.Errorf("storing snapshot: %w", err)
	}

	event := &SnapshotPublished{
		BuildID:   buildID,
		Key:       key,
		Version:   version,
		Documents: idx.NumDocuments(),
		Terms:     idx.NumTerms(),
		Bytes:     len(data),
		BuiltAt:   builtAt,
	}
	if p.cfg.Publisher != nil {
		stageCtx, span = tracing.StartChildSpan(ctx, "publish")
		err := resilience.Retry(stageCtx, "publish-snapshot", resilience.RetryConfig{MaxAttempts: 3}, func() error {
			return p.cfg.Publisher.Publish(stageCtx, kafka.Event{Key: p.cfg.Name, Value: event})
		})
		span.EndWithError(err)
		if err != nil {
			p.logger.Warn("snapshot announcement failed", "key", key, "error", err)
		}
	}
	return event, nil
}
