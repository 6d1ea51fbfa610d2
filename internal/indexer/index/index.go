// Package index holds the immutable two-table search index: a document
// table addressed by dense integer ids and a term table mapping normalized
// terms to postings. An Index never changes after New returns, so a single
// value can serve any number of concurrent readers without locking.
package index

import (
	"math"
	"slices"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

type Index struct {
	docs       []Document
	terms      map[string]PostingList
	analyzer   tokenizer.Config
	normalizer *tokenizer.Normalizer
}

// New validates the tables and returns an Index that owns private copies of
// them. Postings are stored sorted by document id. Structural violations are
// reported as ErrCorruptIndex.
func New(docs []Document, terms map[string]PostingList, analyzer tokenizer.Config) (*Index, error) {
	if err := validate(docs, terms); err != nil {
		return nil, err
	}
	norm := tokenizer.New(analyzer)
	idx := &Index{
		docs:       slices.Clone(docs),
		terms:      make(map[string]PostingList, len(terms)),
		analyzer:   norm.Config(),
		normalizer: norm,
	}
	for term, postings := range terms {
		sorted := slices.Clone(postings)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].DocID < sorted[j].DocID
		})
		idx.terms[term] = sorted
	}
	return idx, nil
}

func validate(docs []Document, terms map[string]PostingList) error {
	for i, d := range docs {
		if d.ID != i {
			return apperrors.Corrupt("document at position %d has id %d", i, d.ID)
		}
		if !d.Kind.Valid() {
			return apperrors.Corrupt("document %d has unknown kind %q", d.ID, d.Kind)
		}
	}
	for term, postings := range terms {
		if term == "" {
			return apperrors.Corrupt("empty term key")
		}
		if len(postings) == 0 {
			return apperrors.Corrupt("term %q has no postings", term)
		}
		seen := make(map[int]struct{}, len(postings))
		for _, p := range postings {
			if p.DocID < 0 || p.DocID >= len(docs) {
				return apperrors.Corrupt("term %q references missing document %d", term, p.DocID)
			}
			if _, dup := seen[p.DocID]; dup {
				return apperrors.Corrupt("term %q has duplicate posting for document %d", term, p.DocID)
			}
			if math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
				return apperrors.Corrupt("term %q has non-finite weight for document %d", term, p.DocID)
			}
			seen[p.DocID] = struct{}{}
		}
	}
	return nil
}

// Validate re-checks the structural invariants New enforced.
func (x *Index) Validate() error {
	return validate(x.docs, x.terms)
}

func (x *Index) NumDocuments() int {
	return len(x.docs)
}

func (x *Index) NumTerms() int {
	return len(x.terms)
}

// Document returns the document with the given id.
func (x *Index) Document(id int) (Document, bool) {
	if id < 0 || id >= len(x.docs) {
		return Document{}, false
	}
	return x.docs[id], true
}

// Documents returns a copy of the document table in id order.
func (x *Index) Documents() []Document {
	return slices.Clone(x.docs)
}

// Postings returns a copy of the postings for an already-normalized term,
// sorted by document id. Unknown terms yield nil.
func (x *Index) Postings(term string) PostingList {
	return slices.Clone(x.terms[term])
}

// DocFreq returns the number of documents containing term.
func (x *Index) DocFreq(term string) int {
	return len(x.terms[term])
}

// Terms returns every term key in sorted order.
func (x *Index) Terms() []string {
	out := make([]string, 0, len(x.terms))
	for term := range x.terms {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// Analyzer returns the normalization settings the index was built with.
func (x *Index) Analyzer() tokenizer.Config {
	cfg := x.analyzer
	cfg.StopWords = slices.Clone(cfg.StopWords)
	return cfg
}

// Normalizer returns the normalizer matching Analyzer. Queries must be
// tokenized with it or their terms will not match the term table.
func (x *Index) Normalizer() *tokenizer.Normalizer {
	return x.normalizer
}

// Equal reports whether a and b hold the same documents and the same
// postings per term, regardless of internal storage order.
func Equal(a, b *Index) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !slices.Equal(a.docs, b.docs) {
		return false
	}
	if len(a.terms) != len(b.terms) {
		return false
	}
	for term, pa := range a.terms {
		pb, ok := b.terms[term]
		if !ok || len(pa) != len(pb) {
			return false
		}
		weights := make(map[int]float64, len(pa))
		for _, p := range pa {
			weights[p.DocID] = p.Weight
		}
		for _, p := range pb {
			w, ok := weights[p.DocID]
			if !ok || w != p.Weight {
				return false
			}
		}
	}
	return true
}
