// Package analytics records what users search for. The searcher tracks one
// SearchEvent per query through a Collector that batches them onto Kafka;
// the analytics service consumes them into an Aggregator that reports top
// queries, queries nothing answers, and latency percentiles.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
)

// SearchEvent describes one answered query.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	Partial   bool      `json:"partial"`
	LatencyMs float64   `json:"latency_ms"`
	CacheTier string    `json:"cache_tier,omitempty"`
	Snapshot  string    `json:"snapshot"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// TypeFor classifies a query by its hit count.
func TypeFor(totalHits int) EventType {
	if totalHits == 0 {
		return EventZeroResult
	}
	return EventSearch
}
