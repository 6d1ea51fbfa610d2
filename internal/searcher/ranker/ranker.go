// Package ranker orders scored documents: higher score first, ties broken
// by lower document id, so rankings are fully deterministic.
package ranker

import (
	"container/heap"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

// Result is one ranked document. Partial is set when the document matched
// only some of the query terms.
type Result struct {
	Document index.Document `json:"document"`
	Score    float64        `json:"score"`
	Partial  bool           `json:"partial"`
}

// ScoredDoc is an unresolved candidate.
type ScoredDoc struct {
	DocID int
	Score float64
}

// Better reports whether a ranks ahead of b.
func Better(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// TopK returns the best limit entries of scores in rank order. A limit
// below 1 returns every entry.
func TopK(scores map[int]float64, limit int) []ScoredDoc {
	if limit <= 0 || limit >= len(scores) {
		out := make([]ScoredDoc, 0, len(scores))
		for id, s := range scores {
			out = append(out, ScoredDoc{DocID: id, Score: s})
		}
		sort.Slice(out, func(i, j int) bool { return Better(out[i], out[j]) })
		return out
	}
	h := make(worstFirst, 0, limit+1)
	for id, s := range scores {
		heap.Push(&h, ScoredDoc{DocID: id, Score: s})
		if h.Len() > limit {
			heap.Pop(&h)
		}
	}
	out := make([]ScoredDoc, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(ScoredDoc)
	}
	return out
}

// Resolve attaches documents from idx to ranked candidates. Candidates
// whose id is not in idx are skipped.
func Resolve(idx *index.Index, ranked []ScoredDoc, partial bool) []Result {
	out := make([]Result, 0, len(ranked))
	for _, sd := range ranked {
		doc, ok := idx.Document(sd.DocID)
		if !ok {
			continue
		}
		out = append(out, Result{Document: doc, Score: sd.Score, Partial: partial})
	}
	return out
}

// worstFirst is a min-heap on rank: the root is the entry to evict.
type worstFirst []ScoredDoc

func (h worstFirst) Len() int { return len(h) }

func (h worstFirst) Less(i, j int) bool { return Better(h[j], h[i]) }

func (h worstFirst) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *worstFirst) Push(x any) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
