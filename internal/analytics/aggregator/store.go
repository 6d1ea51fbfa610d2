// Package aggregator persists periodic snapshots of the search analytics
// totals to PostgreSQL so they survive restarts of the analytics service.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

// Store persists search stats snapshots. The headline counters get their
// own columns so docs maintainers can chart them in SQL; stats holds the
// full document served back by the history endpoint.
//
//	CREATE TABLE search_stats_snapshots (
//	    id                      BIGSERIAL PRIMARY KEY,
//	    total_searches          BIGINT NOT NULL,
//	    zero_result_count       BIGINT NOT NULL,
//	    partial_count           BIGINT NOT NULL,
//	    cache_hits              BIGINT NOT NULL,
//	    cache_misses            BIGINT NOT NULL,
//	    p95_latency_ms          DOUBLE PRECISION NOT NULL,
//	    top_zero_result_queries JSONB NOT NULL,
//	    stats                   JSONB NOT NULL,
//	    counting_since          TIMESTAMPTZ NOT NULL,
//	    captured_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
		now:    time.Now,
	}
}

const insertSnapshot = `INSERT INTO search_stats_snapshots
	(total_searches, zero_result_count, partial_count, cache_hits, cache_misses,
	 p95_latency_ms, top_zero_result_queries, stats, counting_since, captured_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	zero := stats.ZeroResultQueries
	if zero == nil {
		zero = []analytics.QueryCount{}
	}
	zeroJSON, err := json.Marshal(zero)
	if err != nil {
		return fmt.Errorf("marshaling zero-result queries: %w", err)
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx, insertSnapshot,
		stats.TotalSearches,
		stats.ZeroResultCount,
		stats.PartialCount,
		stats.CacheHits,
		stats.CacheMisses,
		stats.P95LatencyMs,
		zeroJSON,
		data,
		stats.Since.UTC(),
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving search stats snapshot: %w", err)
	}
	s.logger.Info("search stats snapshot saved",
		"total_searches", stats.TotalSearches,
		"zero_result_count", stats.ZeroResultCount,
		"partial_count", stats.PartialCount,
	)
	return nil
}

// LatestSnapshot returns nil, nil when nothing has been saved yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT stats FROM search_stats_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns the last limit snapshots, newest first. Rows that
// no longer decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT stats FROM search_stats_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.AggregatedStats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}
	return snapshots, rows.Err()
}

// Counts in a snapshot run from counting_since, so the same query repeats
// across snapshots of one aggregator run. MAX keeps the latest total of
// each run instead of adding them up.
const missingContentQuery = `SELECT q->>'query' AS query, MAX((q->>'count')::BIGINT) AS hits
	FROM search_stats_snapshots, jsonb_array_elements(top_zero_result_queries) AS q
	WHERE captured_at >= $1
	GROUP BY 1
	ORDER BY hits DESC, query
	LIMIT $2`

// MissingContent lists the queries that found nothing since the given
// time, most frequent first. They point at pages the docs do not have.
func (s *Store) MissingContent(ctx context.Context, since time.Time, limit int) ([]analytics.QueryCount, error) {
	rows, err := s.db.DB.QueryContext(ctx, missingContentQuery, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("querying zero-result queries: %w", err)
	}
	defer rows.Close()

	out := make([]analytics.QueryCount, 0, limit)
	for rows.Next() {
		var qc analytics.QueryCount
		if err := rows.Scan(&qc.Query, &qc.Count); err != nil {
			return nil, fmt.Errorf("scanning zero-result query: %w", err)
		}
		out = append(out, qc)
	}
	return out, rows.Err()
}

// StartPeriodicSave snapshots agg every interval, and once more when ctx
// is cancelled.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}
