// Package segment serializes an index.Index into the portable snapshot
// format and back. A snapshot is a single JSON document:
//
//	{"format":"docsearch-index","version":1,
//	 "analyzer":{"min_length":3,...},
//	 "documents":[{"id":0,"title":"Mouse","anchor":"#mouse","kind":"class"}],
//	 "terms":{"mouse":[[0,2]]}}
//
// Terms are emitted in sorted order and postings in document id order, so
// encoding the same index always yields the same bytes.
package segment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	farmhash "github.com/leemcloughlin/gofarmhash"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const (
	FormatName    = "docsearch-index"
	FormatVersion = 1
)

type snapshotFile struct {
	Format    string                 `json:"format"`
	Version   int                    `json:"version"`
	Analyzer  tokenizer.Config       `json:"analyzer"`
	Documents []index.Document       `json:"documents"`
	Terms     map[string][][]float64 `json:"terms"`
}

// decodedFile mirrors snapshotFile with nullable posting fields so a null
// is told apart from a zero.
type decodedFile struct {
	Format    string                  `json:"format"`
	Version   int                     `json:"version"`
	Analyzer  tokenizer.Config        `json:"analyzer"`
	Documents []index.Document        `json:"documents"`
	Terms     map[string][][]*float64 `json:"terms"`
}

// Encode renders idx in snapshot format version 1.
func Encode(idx *index.Index) ([]byte, error) {
	if idx == nil {
		return nil, fmt.Errorf("encoding snapshot: nil index")
	}
	file := snapshotFile{
		Format:    FormatName,
		Version:   FormatVersion,
		Analyzer:  idx.Analyzer(),
		Documents: idx.Documents(),
		Terms:     make(map[string][][]float64, idx.NumTerms()),
	}
	if file.Documents == nil {
		file.Documents = []index.Document{}
	}
	for _, term := range idx.Terms() {
		postings := idx.Postings(term)
		pairs := make([][]float64, len(postings))
		for i, p := range postings {
			pairs[i] = []float64{float64(p.DocID), p.Weight}
		}
		file.Terms[term] = pairs
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&file); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses snapshot bytes produced by Encode. Unknown fields are
// ignored. Any structural problem is reported as ErrCorruptIndex and no
// partial index is returned.
func Decode(data []byte) (*index.Index, error) {
	var file decodedFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, apperrors.Corrupt("parsing snapshot: %v", err)
	}
	if file.Format != FormatName {
		return nil, apperrors.Corrupt("unexpected format %q", file.Format)
	}
	if file.Version != FormatVersion {
		return nil, apperrors.Corrupt("unsupported snapshot version %d", file.Version)
	}
	if file.Documents == nil || file.Terms == nil {
		return nil, apperrors.Corrupt("snapshot is missing the document or term table")
	}
	if file.Analyzer.MinLength < 0 {
		return nil, apperrors.Corrupt("negative analyzer min_length %d", file.Analyzer.MinLength)
	}

	anchors := make(map[string]int, len(file.Documents))
	for _, d := range file.Documents {
		if prev, dup := anchors[d.Anchor]; dup {
			return nil, apperrors.Corrupt("documents %d and %d share anchor %q", prev, d.ID, d.Anchor)
		}
		anchors[d.Anchor] = d.ID
	}

	norm := tokenizer.New(file.Analyzer)
	terms := make(map[string]index.PostingList, len(file.Terms))
	for term, pairs := range file.Terms {
		if !norm.CanProduce(term) {
			return nil, apperrors.Corrupt("term %q cannot come from the stored analyzer", term)
		}
		postings := make(index.PostingList, 0, len(pairs))
		for _, pair := range pairs {
			if len(pair) != 2 {
				return nil, apperrors.Corrupt("term %q has a posting with %d fields", term, len(pair))
			}
			if pair[0] == nil || pair[1] == nil {
				return nil, apperrors.Corrupt("term %q has a posting with a null field", term)
			}
			id, weight := *pair[0], *pair[1]
			if id != math.Trunc(id) || id < 0 || id > math.MaxInt32 {
				return nil, apperrors.Corrupt("term %q has invalid document id %v", term, id)
			}
			if weight <= 0 {
				return nil, apperrors.Corrupt("term %q has non-positive weight %v for document %v", term, weight, id)
			}
			postings = append(postings, index.Posting{DocID: int(id), Weight: weight})
		}
		terms[term] = postings
	}
	// index.New checks dense ids, kinds and posting references.
	return index.New(file.Documents, terms, file.Analyzer)
}

// Version fingerprints encoded snapshot bytes. Two snapshots share a
// version only if their encodings are identical.
func Version(data []byte) string {
	return strconv.FormatUint(farmhash.Hash64(data), 16)
}
