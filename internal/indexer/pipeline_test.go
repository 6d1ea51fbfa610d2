package indexer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/storage"
)

type staticReader struct {
	docs []Source
	err  error
}

func (r staticReader) Read(context.Context) ([]Source, error) {
	return r.docs, r.err
}

type capturePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func TestPipelineRun(t *testing.T) {
	for _, compress := range []bool{false, true} {
		ctx := context.Background()
		store := storage.NewFileStore(t.TempDir())
		pub := &capturePublisher{}
		m := metrics.New(prometheus.NewRegistry())

		p := NewPipeline(PipelineConfig{
			Name:      "sdk",
			Compress:  compress,
			Reader:    staticReader{docs: sdkDocs()},
			Builder:   newTestBuilder(),
			Store:     store,
			Publisher: pub,
			Metrics:   m,
		})
		event, err := p.Run(ctx)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(event.Key, "sdk-"))
		assert.Equal(t, compress, strings.HasSuffix(event.Key, segment.CompressedExtension))
		assert.Equal(t, 2, event.Documents)

		latest, err := store.Latest(ctx)
		require.NoError(t, err)
		assert.Equal(t, event.Key, latest)

		raw, err := store.Get(ctx, latest)
		require.NoError(t, err)
		idx, version, err := segment.Load(raw)
		require.NoError(t, err)
		assert.Equal(t, event.Version, version)

		want, err := newTestBuilder().Build(sdkDocs())
		require.NoError(t, err)
		assert.True(t, index.Equal(want, idx))

		require.Len(t, pub.events, 1)
		assert.Equal(t, "sdk", pub.events[0].Key)
		assert.Equal(t, event, pub.events[0].Value)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildsTotal.WithLabelValues("ok")))
	}
}

func TestPipelineBuildErrorStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore(t.TempDir())
	pub := &capturePublisher{}
	docs := append(sdkDocs(), Source{Title: "Dup", Anchor: "#mouse", Kind: index.KindClass})

	_, err := NewPipeline(PipelineConfig{
		Reader:    staticReader{docs: docs},
		Builder:   newTestBuilder(),
		Store:     store,
		Publisher: pub,
	}).Run(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrBuild))

	_, err = store.Latest(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Empty(t, pub.events)
}

func TestPipelineReadError(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{
		Reader:  staticReader{err: errors.New("disk gone")},
		Builder: newTestBuilder(),
		Store:   storage.NewFileStore(t.TempDir()),
	}).Run(context.Background())
	assert.ErrorContains(t, err, "disk gone")
}

func TestPipelinePublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore(t.TempDir())
	event, err := NewPipeline(PipelineConfig{
		Reader:    staticReader{docs: sdkDocs()},
		Builder:   newTestBuilder(),
		Store:     store,
		Publisher: &capturePublisher{err: errors.New("broker down")},
	}).Run(ctx)
	require.NoError(t, err)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, event.Key, latest)
}
