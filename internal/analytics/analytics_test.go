package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

type batchPublisher struct {
	mu      sync.Mutex
	batches  [][]kafka.Event
	fail     int
	attempts int
}

func (p *batchPublisher) Publish(ctx context.Context, e kafka.Event) error {
	return p.PublishBatch(ctx, []kafka.Event{e})
}

func (p *batchPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.fail > 0 {
		p.fail--
		return errors.New("broker down")
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *batchPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func event(query string, terms []string, hits int) SearchEvent {
	return SearchEvent{
		Type:      TypeFor(hits),
		Query:     query,
		Terms:     terms,
		TotalHits: hits,
		LatencyMs: 1.5,
		Timestamp: time.Now().UTC(),
	}
}

func TestCollectorFlushesFullBatches(t *testing.T) {
	pub := &batchPublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{BatchSize: 2, FlushInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.Track(event("mouse click", []string{"mouse", "click"}, 1))
	c.Track(event("keyboard", []string{"keyboard"}, 1))
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	pub.mu.Lock()
	first := pub.batches[0][0]
	pub.mu.Unlock()
	assert.Equal(t, "mouse click", first.Key)
	assert.Equal(t, EventSearch, first.Value.(SearchEvent).Type)
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &batchPublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.Track(event("mouse", []string{"mouse"}, 0))
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorRetriesFailedBatch(t *testing.T) {
	pub := &batchPublisher{fail: 1}
	c := NewCollector(pub, config.AnalyticsConfig{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.Track(event("mouse", []string{"mouse"}, 1))
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorWaitsForTickerAfterFailure(t *testing.T) {
	pub := &batchPublisher{fail: 1000}
	c := NewCollector(pub, config.AnalyticsConfig{BatchSize: 2, FlushInterval: time.Hour})
	c.Start(context.Background())

	for i := 0; i < 22; i++ {
		c.Track(event("mouse", []string{"mouse"}, 1))
	}
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, 2, pub.attempts, "one size-triggered publish, then only the shutdown flush")
	assert.Equal(t, int64(16), c.Dropped(), "backlog capped at three batches")
}

func TestCollectorResumesAfterRecovery(t *testing.T) {
	pub := &batchPublisher{fail: 1}
	c := NewCollector(pub, config.AnalyticsConfig{BatchSize: 2, FlushInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.Track(event("mouse", []string{"mouse"}, 1))
	c.Track(event("keyboard", []string{"keyboard"}, 1))
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	c.Track(event("click", []string{"click"}, 1))
	c.Track(event("window", []string{"window"}, 1))
	require.Eventually(t, func() bool { return pub.count() == 4 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, c.Dropped())
}

func TestCollectorCloseFlushesBuffer(t *testing.T) {
	pub := &batchPublisher{}
	c := NewCollector(pub, config.AnalyticsConfig{BatchSize: 100, FlushInterval: time.Hour})
	c.Start(context.Background())
	for i := 0; i < 5; i++ {
		c.Track(event("mouse", []string{"mouse"}, 1))
	}
	c.Close()
	assert.Equal(t, 5, pub.count())

	c.Track(event("late", nil, 0))
	c.Close()
	assert.Equal(t, 5, pub.count())
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&batchPublisher{}, config.AnalyticsConfig{BufferSize: 1})
	c.Track(event("a", nil, 1))
	c.Track(event("b", nil, 1))
	assert.Equal(t, int64(1), c.Dropped())
	c.Close()

	var nilCollector *Collector
	nilCollector.Track(event("a", nil, 1))
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(event("Mouse click", []string{"mouse", "click"}, 2))
	agg.Record(event("click mouse", []string{"click", "mouse"}, 2))
	agg.Record(event("wizard", []string{"wizard"}, 0))
	partial := event("mouse wizard", []string{"mouse", "wizard"}, 1)
	partial.Partial = true
	partial.CacheTier = "local"
	agg.Record(partial)

	stats := agg.Stats()
	assert.Equal(t, int64(4), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, int64(1), stats.PartialCount)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(3), stats.CacheMisses)
	assert.Equal(t, 1.5, stats.P50LatencyMs)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, QueryCount{Query: "click mouse", Count: 2}, stats.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "wizard", Count: 1}}, stats.ZeroResultQueries)
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	value, err := json.Marshal(event("mouse", []string{"mouse"}, 1))
	require.NoError(t, err)

	require.NoError(t, handle(context.Background(), nil, value))
	require.NoError(t, handle(context.Background(), nil, []byte("{broken")))
	assert.Equal(t, int64(1), agg.Stats().TotalSearches)
}

type fakeHistory struct {
	snapshots []AggregatedStats
	missing   []QueryCount
	err       error
	limit     int
	since     time.Time
}

func (f *fakeHistory) ListSnapshots(_ context.Context, limit int) ([]AggregatedStats, error) {
	f.limit = limit
	return f.snapshots, f.err
}

func (f *fakeHistory) MissingContent(_ context.Context, since time.Time, limit int) ([]QueryCount, error) {
	f.since = since
	f.limit = limit
	return f.missing, f.err
}

func TestHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Record(event("mouse", []string{"mouse"}, 1))
	history := &fakeHistory{snapshots: []AggregatedStats{{TotalSearches: 7}}}
	h := NewHandler(agg, history)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalSearches)

	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?limit=3", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, history.limit)

	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	history.err = errors.New("db down")
	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	NewHandler(agg, nil).History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerMissing(t *testing.T) {
	history := &fakeHistory{missing: []QueryCount{{Query: "wizard", Count: 5}}}
	h := NewHandler(NewAggregator(), history)

	rec := httptest.NewRecorder()
	h.Missing(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/missing?hours=24&limit=5", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, history.limit)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), history.since, time.Minute)
	var body struct {
		Queries []QueryCount `json:"queries"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []QueryCount{{Query: "wizard", Count: 5}}, body.Queries)

	rec = httptest.NewRecorder()
	h.Missing(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/missing", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, history.limit)
	assert.WithinDuration(t, time.Now().Add(-168*time.Hour), history.since, time.Minute)

	rec = httptest.NewRecorder()
	h.Missing(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/missing?hours=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	history.err = errors.New("db down")
	rec = httptest.NewRecorder()
	h.Missing(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/missing", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	NewHandler(NewAggregator(), nil).Missing(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/missing", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
