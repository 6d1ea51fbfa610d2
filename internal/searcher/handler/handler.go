// Package handler exposes the searcher over HTTP: the search endpoint, index
// and cache statistics, and the readiness check for the active snapshot.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/snapshot"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

// Options wires a Handler. Cache, Collector and Metrics are optional.
type Options struct {
	Holder    *snapshot.Holder
	Executor  *executor.Executor
	Cache     *cache.QueryCache
	Collector *analytics.Collector
	Metrics   *metrics.Metrics
	Search    config.SearchConfig
}

type Handler struct {
	holder       *snapshot.Holder
	executor     *executor.Executor
	cache        *cache.QueryCache
	collector    *analytics.Collector
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(opts Options) *Handler {
	exec := opts.Executor
	if exec == nil {
		exec = executor.New(opts.Search)
	}
	return &Handler{
		holder:       opts.Holder,
		executor:     exec,
		cache:        opts.Cache,
		collector:    opts.Collector,
		metrics:      opts.Metrics,
		defaultLimit: opts.Search.DefaultLimit,
		maxResults:   opts.Search.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type resultBody struct {
	ID      int     `json:"id"`
	Title   string  `json:"title"`
	Anchor  string  `json:"anchor"`
	Kind    string  `json:"kind"`
	Score   float64 `json:"score"`
	Partial bool    `json:"partial"`
}

type searchBody struct {
	Query     string       `json:"query"`
	Snapshot  string       `json:"snapshot"`
	TotalHits int          `json:"total_hits"`
	Partial   bool         `json:"partial"`
	Results   []resultBody `json:"results"`
	Cache     string       `json:"cache,omitempty"`
	TookMs    float64      `json:"took_ms"`
}

// Search answers GET /api/v1/search?q=...&limit=N. A blank q yields an
// empty result; limit defaults to the configured default and is clamped to
// the configured maximum.
//
// A word written as -word or NOT word removes matching pages instead of
// searching for them, so a query made only of exclusions (q=-click)
// returns no results. Search for the bare word to match it.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	params := r.URL.Query()
	if !params.Has("q") {
		h.writeError(w, apperrors.InvalidArgument("query parameter 'q' is required"))
		return
	}
	query := params.Get("q")

	limit, err := h.parseLimit(params.Get("limit"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	snap := h.holder.Current()
	if snap == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "no index loaded"))
		return
	}

	compute := func() (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, snap.Index, query, limit)
	}
	var result *executor.SearchResult
	tier := cache.TierNone
	plan := parser.Parse(query, snap.Index.Normalizer())
	if h.cache != nil && !plan.Empty() {
		result, tier, err = h.cache.GetOrCompute(ctx, cache.Key(snap.Version, plan, limit), compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.writeError(w, err)
		return
	}

	elapsed := time.Since(start)
	body := searchBody{
		Query:     query,
		Snapshot:  snap.Version,
		TotalHits: result.TotalHits,
		Partial:   result.Partial,
		Results:   make([]resultBody, 0, len(result.Results)),
		Cache:     tier,
		TookMs:    float64(elapsed.Microseconds()) / 1000,
	}
	for _, res := range result.Results {
		body.Results = append(body.Results, resultBody{
			ID:      res.Document.ID,
			Title:   res.Document.Title,
			Anchor:  res.Document.Anchor,
			Kind:    string(res.Document.Kind),
			Score:   res.Score,
			Partial: res.Partial,
		})
	}

	resultType := "exact"
	switch {
	case result.TotalHits == 0:
		resultType = "empty"
	case result.Partial:
		resultType = "partial"
	}
	cacheStatus := tier
	if cacheStatus == cache.TierNone {
		cacheStatus = "miss"
	}
	h.metrics.ObserveSearch(resultType, cacheStatus, elapsed.Seconds(), len(body.Results))

	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(body.Results),
		"partial", result.Partial,
		"cache", cacheStatus,
		"latency_ms", body.TookMs,
	)
	if !plan.Empty() {
		h.collector.Track(analytics.SearchEvent{
			Type:      analytics.TypeFor(result.TotalHits),
			Query:     query,
			Terms:     plan.Terms,
			TotalHits: result.TotalHits,
			Returned:  len(body.Results),
			Partial:   result.Partial,
			LatencyMs: body.TookMs,
			CacheTier: tier,
			Snapshot:  snap.Version,
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, apperrors.InvalidArgument("limit must be a positive integer")
	}
	if h.maxResults > 0 && limit > h.maxResults {
		limit = h.maxResults
	}
	return limit, nil
}

// IndexStats reports the active snapshot.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats := h.holder.Stats()
	if !stats.Loaded {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "no index loaded"))
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.LocalHits + stats.RemoteHits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.LocalHits+stats.RemoteHits) / float64(total)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"stats":    stats,
		"total":    total,
		"hit_rate": hitRate,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// SnapshotCheck reports down until an index has been loaded.
func (h *Handler) SnapshotCheck() health.Check {
	return func(context.Context) health.ComponentHealth {
		stats := h.holder.Stats()
		if !stats.Loaded {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no index loaded"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: stats.Key + " (" + strconv.Itoa(stats.Documents) + " documents)",
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := "internal error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
