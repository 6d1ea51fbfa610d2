// Package parser turns raw query text into a QueryPlan using the
// normalizer of the index being searched.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

// QueryPlan holds the distinct normalized terms of a query. Terms keep
// first-seen order.
type QueryPlan struct {
	Terms        []string
	ExcludeTerms []string
	RawQuery     string
}

// Empty reports whether the plan has no positive terms.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// Parse splits query on whitespace and normalizes every word with norm.
// A word prefixed with '-' (or preceded by the keyword NOT) contributes
// exclusion terms instead of search terms. Words that normalize to nothing
// are dropped.
func Parse(query string, norm *tokenizer.Normalizer) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		RawQuery:     query,
	}
	seen := make(map[string]struct{})
	excluded := make(map[string]struct{})
	excludeNext := false
	for _, word := range strings.Fields(query) {
		if word == "NOT" {
			excludeNext = true
			continue
		}
		exclude := excludeNext
		excludeNext = false
		if strings.HasPrefix(word, "-") {
			exclude = true
			word = strings.TrimLeft(word, "-")
		}
		for _, term := range norm.Terms(word) {
			if exclude {
				if _, dup := excluded[term]; !dup {
					excluded[term] = struct{}{}
					plan.ExcludeTerms = append(plan.ExcludeTerms, term)
				}
				continue
			}
			if _, dup := seen[term]; !dup {
				seen[term] = struct{}{}
				plan.Terms = append(plan.Terms, term)
			}
		}
	}
	return plan
}
