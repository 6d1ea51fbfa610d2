package indexer

import (
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Source is one document handed to the Builder.
type Source struct {
	Title  string     `json:"title"`
	Body   string     `json:"body"`
	Anchor string     `json:"anchor"`
	Kind   index.Kind `json:"kind"`
}

// Builder turns a batch of Sources into an immutable Index. A Builder holds
// no state between calls and can be reused.
type Builder struct {
	normalizer  *tokenizer.Normalizer
	titleWeight float64
	bodyWeight  float64
	logger      *slog.Logger
}

func NewBuilder(cfg config.IndexConfig) *Builder {
	titleWeight, bodyWeight := cfg.TitleWeight, cfg.BodyWeight
	if titleWeight <= 0 {
		titleWeight = 2
	}
	if bodyWeight <= 0 {
		bodyWeight = 1
	}
	return &Builder{
		normalizer: tokenizer.New(tokenizer.Config{
			MinLength: cfg.MinTokenLength,
			StopWords: cfg.StopWords,
			Stem:      cfg.Stem,
		}),
		titleWeight: titleWeight,
		bodyWeight:  bodyWeight,
		logger:      slog.Default().With("component", "index-builder"),
	}
}

// Build assigns ids in input order and records one posting per (term,
// document). Every title occurrence of a term adds the title weight and
// every body occurrence adds the body weight. Duplicate anchors, blank
// titles, empty anchors and unknown kinds fail with ErrBuild. docs is not
// modified.
func (b *Builder) Build(docs []Source) (*index.Index, error) {
	anchors := make(map[string]int, len(docs))
	table := make([]index.Document, 0, len(docs))
	weights := make(map[string]map[int]float64)

	for i, src := range docs {
		if strings.TrimSpace(src.Title) == "" {
			return nil, apperrors.Build("document %d (anchor %q) has an empty title", i, src.Anchor)
		}
		if src.Anchor == "" {
			return nil, apperrors.Build("document %d (%q) has an empty anchor", i, src.Title)
		}
		if prev, dup := anchors[src.Anchor]; dup {
			return nil, apperrors.Build("duplicate anchor %q (documents %d and %d)", src.Anchor, prev, i)
		}
		if !src.Kind.Valid() {
			return nil, apperrors.Build("document %d (%q) has unknown kind %q", i, src.Title, src.Kind)
		}
		anchors[src.Anchor] = i
		table = append(table, index.Document{
			ID:     i,
			Title:  src.Title,
			Anchor: src.Anchor,
			Kind:   src.Kind,
		})
		b.accumulate(weights, i, src.Title, b.titleWeight)
		b.accumulate(weights, i, src.Body, b.bodyWeight)
	}

	terms := make(map[string]index.PostingList, len(weights))
	for term, byDoc := range weights {
		postings := make(index.PostingList, 0, len(byDoc))
		for docID, w := range byDoc {
			postings = append(postings, index.Posting{DocID: docID, Weight: w})
		}
		terms[term] = postings
	}

	idx, err := index.New(table, terms, b.normalizer.Config())
	if err != nil {
		return nil, err
	}
	b.logger.Debug("index built",
		"documents", idx.NumDocuments(),
		"terms", idx.NumTerms(),
	)
	return idx, nil
}

func (b *Builder) accumulate(weights map[string]map[int]float64, docID int, text string, weight float64) {
	for _, token := range b.normalizer.Tokenize(text) {
		byDoc, ok := weights[token.Term]
		if !ok {
			byDoc = make(map[int]float64)
			weights[token.Term] = byDoc
		}
		byDoc[docID] += weight
	}
}
