package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

func sampleResult() *executor.SearchResult {
	return &executor.SearchResult{
		Query:     "mouse click",
		TotalHits: 1,
		Results: []ranker.Result{{
			Document: index.Document{ID: 0, Title: "Mouse", Anchor: "#mouse", Kind: index.KindClass},
			Score:    3,
		}},
	}
}

func counting(calls *atomic.Int64) func() (*executor.SearchResult, error) {
	return func() (*executor.SearchResult, error) {
		calls.Add(1)
		return sampleResult(), nil
	}
}

func newRemote(t *testing.T) (*pkgredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr(), CacheTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestKeyNormalization(t *testing.T) {
	norm := tokenizer.Default()
	a := Key("v1", parser.Parse("Mouse   click", norm), 10)
	b := Key("v1", parser.Parse("mouse click the", norm), 10)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Key("v2", parser.Parse("mouse click", norm), 10), "version is part of the key")
	assert.NotEqual(t, a, Key("v1", parser.Parse("mouse click", norm), 5), "limit is part of the key")
	assert.NotEqual(t, a, Key("v1", parser.Parse("mouse -click", norm), 10))
	assert.Contains(t, a, "docsearch:v1:")
}

func TestLocalTier(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(config.CacheConfig{LocalSize: 8, LocalTTL: time.Minute}, nil, config.RedisConfig{}, m)
	var calls atomic.Int64

	res, tier, err := c.GetOrCompute(context.Background(), "k", counting(&calls))
	require.NoError(t, err)
	assert.Equal(t, TierNone, tier)
	assert.Equal(t, 1, res.TotalHits)

	_, tier, err = c.GetOrCompute(context.Background(), "k", counting(&calls))
	require.NoError(t, err)
	assert.Equal(t, TierLocal, tier)
	assert.Equal(t, int64(1), calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.LocalHits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.LocalEntries)
	assert.False(t, stats.Remote)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues(TierLocal)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestRemoteTierSharedBetweenInstances(t *testing.T) {
	remote, mr := newRemote(t)
	redisCfg := config.RedisConfig{CacheTTL: time.Minute}
	first := New(config.CacheConfig{LocalSize: 8}, remote, redisCfg, nil)
	second := New(config.CacheConfig{LocalSize: 8}, remote, redisCfg, nil)
	var calls atomic.Int64

	_, _, err := first.GetOrCompute(context.Background(), "docsearch:v1:abc", counting(&calls))
	require.NoError(t, err)
	assert.True(t, mr.Exists("docsearch:v1:abc"))
	assert.Equal(t, time.Minute, mr.TTL("docsearch:v1:abc"))

	res, tier, err := second.GetOrCompute(context.Background(), "docsearch:v1:abc", counting(&calls))
	require.NoError(t, err)
	assert.Equal(t, TierRemote, tier)
	assert.Equal(t, "#mouse", res.Results[0].Document.Anchor)
	assert.Equal(t, int64(1), calls.Load())

	_, tier, err = second.GetOrCompute(context.Background(), "docsearch:v1:abc", counting(&calls))
	require.NoError(t, err)
	assert.Equal(t, TierLocal, tier, "remote hits are promoted")
}

func TestSingleflight(t *testing.T) {
	c := New(config.CacheConfig{LocalSize: 8}, nil, config.RedisConfig{}, nil)
	var calls atomic.Int64
	release := make(chan struct{})
	slow := func() (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return sampleResult(), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := c.GetOrCompute(context.Background(), "k", slow)
			assert.NoError(t, err)
			assert.Equal(t, 1, res.TotalHits)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int64(1), calls.Load())
}

func TestComputeErrorIsNotCached(t *testing.T) {
	c := New(config.CacheConfig{LocalSize: 8}, nil, config.RedisConfig{}, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "k", func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Stats().LocalEntries)
}

func TestRedisOutageFallsBackToCompute(t *testing.T) {
	remote, mr := newRemote(t)
	c := New(config.CacheConfig{LocalSize: 1}, remote, config.RedisConfig{CacheTTL: time.Minute}, nil)
	mr.Close()

	var calls atomic.Int64
	for i, key := range []string{"a", "b", "c", "d", "e", "f"} {
		res, tier, err := c.GetOrCompute(context.Background(), key, counting(&calls))
		require.NoError(t, err, "request %d", i)
		assert.Equal(t, TierNone, tier)
		assert.NotNil(t, res)
	}
	assert.Equal(t, int64(6), calls.Load())
	breaker := c.Stats().Breaker
	require.NotNil(t, breaker)
	assert.Equal(t, "open", breaker.State)
	assert.Positive(t, breaker.Rejected)
}

func TestRemoteMissesDoNotTripBreaker(t *testing.T) {
	remote, _ := newRemote(t)
	c := New(config.CacheConfig{LocalSize: 1}, remote, config.RedisConfig{CacheTTL: time.Minute}, nil)

	var calls atomic.Int64
	for i := 0; i < 10; i++ {
		_, tier, err := c.GetOrCompute(context.Background(), fmt.Sprintf("miss-%d", i), counting(&calls))
		require.NoError(t, err)
		assert.Equal(t, TierNone, tier)
	}
	assert.Equal(t, "closed", c.Stats().Breaker.State)
}

func TestInvalidate(t *testing.T) {
	remote, mr := newRemote(t)
	c := New(config.CacheConfig{LocalSize: 8}, remote, config.RedisConfig{}, nil)
	var calls atomic.Int64
	_, _, err := c.GetOrCompute(context.Background(), "docsearch:v1:x", counting(&calls))
	require.NoError(t, err)
	require.NoError(t, mr.Set("unrelated", "1"))

	require.NoError(t, c.Invalidate(context.Background()))
	assert.Equal(t, 0, c.Stats().LocalEntries)
	assert.False(t, mr.Exists("docsearch:v1:x"))
	assert.True(t, mr.Exists("unrelated"))
}
