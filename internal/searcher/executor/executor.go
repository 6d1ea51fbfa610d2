// Package executor runs queries against an immutable index: an AND query
// first and, when that finds nothing for a multi-term query, an OR query
// whose results are flagged partial and down-weighted.
package executor

import (
	"context"
	"math"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

// DefaultPartialMatchFactor scales the score of OR-fallback results.
const DefaultPartialMatchFactor = 0.5

type SearchResult struct {
	Query     string          `json:"query"`
	TotalHits int             `json:"total_hits"`
	Partial   bool            `json:"partial"`
	Results   []ranker.Result `json:"results"`
	TermStats map[string]int  `json:"term_stats,omitempty"`
}

type Executor struct {
	partialFactor float64
}

func New(cfg config.SearchConfig) *Executor {
	factor := cfg.PartialMatchFactor
	if factor <= 0 || factor > 1 {
		factor = DefaultPartialMatchFactor
	}
	return &Executor{partialFactor: factor}
}

var defaultExecutor = &Executor{partialFactor: DefaultPartialMatchFactor}

// Search runs query against idx with the default partial-match factor and
// returns at most limit results.
func Search(idx *index.Index, query string, limit int) ([]ranker.Result, error) {
	res, err := defaultExecutor.Execute(context.Background(), idx, query, limit)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Execute tokenizes query with the index's own normalizer and ranks the
// matching documents by summed posting weight. limit must be positive.
// A query without searchable terms yields an empty result, not an error.
func (e *Executor) Execute(ctx context.Context, idx *index.Index, query string, limit int) (*SearchResult, error) {
	if limit <= 0 {
		return nil, apperrors.InvalidArgument("limit must be positive, got %d", limit)
	}
	if idx == nil {
		return nil, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "no index loaded")
	}
	plan := parser.Parse(query, idx.Normalizer())
	result := &SearchResult{
		Query:   query,
		Results: []ranker.Result{},
	}
	if plan.Empty() {
		return result, nil
	}

	postingsPerTerm := make(map[string]index.PostingList, len(plan.Terms))
	result.TermStats = make(map[string]int, len(plan.Terms))
	for _, term := range plan.Terms {
		postings := idx.Postings(term)
		postingsPerTerm[term] = postings
		result.TermStats[term] = len(postings)
	}
	excluded := make(map[int]struct{})
	for _, term := range plan.ExcludeTerms {
		for _, p := range idx.Postings(term) {
			excluded[p.DocID] = struct{}{}
		}
	}

	scores := intersect(plan.Terms, postingsPerTerm)
	dropExcluded(scores, excluded)
	if len(scores) == 0 && len(plan.Terms) > 1 {
		scores = union(plan.Terms, postingsPerTerm)
		dropExcluded(scores, excluded)
		for id, s := range scores {
			scores[id] = s * e.partialFactor
		}
		result.Partial = len(scores) > 0
	}

	result.TotalHits = len(scores)
	result.Results = ranker.Resolve(idx, ranker.TopK(scores, limit), result.Partial)
	logger.FromContext(ctx).Debug("query executed",
		"query", query,
		"terms", plan.Terms,
		"excluded", plan.ExcludeTerms,
		"candidates", result.TotalHits,
		"partial", result.Partial,
		"results", len(result.Results),
	)
	return result, nil
}

// intersect scores documents containing every term. It walks the shortest
// posting list and probes the others.
func intersect(terms []string, postingsPerTerm map[string]index.PostingList) map[int]float64 {
	shortest := ""
	shortestLen := math.MaxInt
	for _, term := range terms {
		if n := len(postingsPerTerm[term]); n < shortestLen {
			shortest, shortestLen = term, n
		}
	}
	scores := make(map[int]float64, shortestLen)
	if shortestLen == 0 {
		return scores
	}
	for _, p := range postingsPerTerm[shortest] {
		scores[p.DocID] = p.Weight
	}
	for _, term := range terms {
		if term == shortest {
			continue
		}
		weights := make(map[int]float64, len(postingsPerTerm[term]))
		for _, p := range postingsPerTerm[term] {
			weights[p.DocID] = p.Weight
		}
		for id := range scores {
			w, ok := weights[id]
			if !ok {
				delete(scores, id)
				continue
			}
			scores[id] += w
		}
	}
	return scores
}

// union scores documents containing any term. Terms are summed in query
// order so repeated queries produce bit-identical scores.
func union(terms []string, postingsPerTerm map[string]index.PostingList) map[int]float64 {
	scores := make(map[int]float64)
	for _, term := range terms {
		for _, p := range postingsPerTerm[term] {
			scores[p.DocID] += p.Weight
		}
	}
	return scores
}

func dropExcluded(scores map[int]float64, excluded map[int]struct{}) {
	for id := range excluded {
		delete(scores, id)
	}
}
