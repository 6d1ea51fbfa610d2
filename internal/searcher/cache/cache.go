// Package cache memoizes search results in two tiers: an in-process
// expiring LRU and a shared Redis tier guarded by a circuit breaker.
// Keys embed the snapshot version, so swapping the index retires every
// older entry without an explicit flush.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

const keyPrefix = "docsearch:"

// Cache tiers reported by GetOrCompute.
const (
	TierLocal  = "local"
	TierRemote = "redis"
	TierNone   = ""
)

const remoteTimeout = 250 * time.Millisecond

// QueryCache holds search results. Cached results are shared between
// callers and must not be modified.
type QueryCache struct {
	local     *lru.LRU[string, *executor.SearchResult]
	remote    *pkgredis.Client
	remoteTTL time.Duration
	breaker   *resilience.CircuitBreaker
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger

	localHits  atomic.Int64
	remoteHits atomic.Int64
	misses     atomic.Int64
}

// Stats are the cache counters since start.
type Stats struct {
	LocalHits    int64                       `json:"local_hits"`
	RemoteHits   int64                       `json:"remote_hits"`
	Misses       int64                       `json:"misses"`
	LocalEntries int                         `json:"local_entries"`
	Remote       bool                        `json:"remote"`
	Breaker      *resilience.BreakerSnapshot `json:"breaker,omitempty"`
}

// New creates a QueryCache. remote may be nil to run with the local tier
// only.
func New(cfg config.CacheConfig, remote *pkgredis.Client, redisCfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	size := cfg.LocalSize
	if size <= 0 {
		size = 1024
	}
	c := &QueryCache{
		local:     lru.NewLRU[string, *executor.SearchResult](size, nil, cfg.LocalTTL),
		remote:    remote,
		remoteTTL: redisCfg.CacheTTL,
		metrics:   m,
		logger:    slog.Default().With("component", "query-cache"),
	}
	if remote != nil {
		c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			CallTimeout:      remoteTimeout,
			IsSuccessful: func(err error) bool {
				return err == nil || pkgredis.IsMiss(err)
			},
			OnStateChange: func(name string, to resilience.State) {
				m.BreakerState(name, int(to))
			},
		})
	}
	return c
}

// Key identifies the results of plan against one snapshot version. Queries
// that normalize to the same terms share a key.
func Key(version string, plan *parser.QueryPlan, limit int) string {
	raw := fmt.Sprintf("%d|%s|%s", limit, strings.Join(plan.Terms, " "), strings.Join(plan.ExcludeTerms, " "))
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, version, sum[:16])
}

type computed struct {
	result *executor.SearchResult
	tier   string
}

// GetOrCompute returns the cached result for key, or runs compute once
// for all concurrent callers asking for the same key. The tier reports
// where a hit came from; TierNone means compute ran. Errors from compute
// are returned and never cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, string, error) {
	if result, ok := c.local.Get(key); ok {
		c.localHits.Add(1)
		c.metrics.CacheHit(TierLocal)
		return result, TierLocal, nil
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.getRemote(ctx, key); ok {
			c.local.Add(key, result)
			return computed{result: result, tier: TierRemote}, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.local.Add(key, result)
		c.setRemote(ctx, key, result)
		return computed{result: result, tier: TierNone}, nil
	})
	if err != nil {
		return nil, TierNone, err
	}
	got := val.(computed)
	if got.tier == TierRemote {
		c.remoteHits.Add(1)
		c.metrics.CacheHit(TierRemote)
	} else {
		c.misses.Add(1)
		c.metrics.CacheMiss()
	}
	return got.result, got.tier, nil
}

func (c *QueryCache) getRemote(ctx context.Context, key string) (*executor.SearchResult, bool) {
	if c.remote == nil {
		return nil, false
	}
	data, err := resilience.Guard(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return c.remote.Get(ctx, key)
	})
	if pkgredis.IsMiss(err) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

func (c *QueryCache) setRemote(ctx context.Context, key string, result *executor.SearchResult) {
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.remote.Set(ctx, key, data, c.remoteTTL)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops every entry from both tiers.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	c.local.Purge()
	if c.remote == nil {
		return nil
	}
	deleted, err := c.remote.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() Stats {
	s := Stats{
		LocalHits:    c.localHits.Load(),
		RemoteHits:   c.remoteHits.Load(),
		Misses:       c.misses.Load(),
		LocalEntries: c.local.Len(),
		Remote:       c.remote != nil,
	}
	if c.breaker != nil {
		snap := c.breaker.Snapshot()
		s.Breaker = &snap
	}
	return s
}
