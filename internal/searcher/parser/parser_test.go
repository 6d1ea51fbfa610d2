package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
)

func TestParse(t *testing.T) {
	norm := tokenizer.Default()
	tests := []struct {
		query   string
		terms   []string
		exclude []string
	}{
		{"move_to", []string{"move"}, nil},
		{"Mouse  CLICK mouse", []string{"mouse", "click"}, nil},
		{"the is of", nil, nil},
		{"", nil, nil},
		{"click -keyboard", []string{"click"}, []string{"keyboard"}},
		{"click NOT type_string", []string{"click"}, []string{"type", "string"}},
		{"--mouse -", nil, []string{"mouse"}},
		{"-click", nil, []string{"click"}},
		{"NOT", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			plan := Parse(tt.query, norm)
			assert.Equal(t, tt.query, plan.RawQuery)
			if tt.terms == nil {
				assert.Empty(t, plan.Terms)
				assert.True(t, plan.Empty())
			} else {
				assert.Equal(t, tt.terms, plan.Terms)
			}
			if tt.exclude == nil {
				assert.Empty(t, plan.ExcludeTerms)
			} else {
				assert.Equal(t, tt.exclude, plan.ExcludeTerms)
			}
		})
	}
}

func TestParseUsesIndexNormalizer(t *testing.T) {
	stemmed := tokenizer.New(tokenizer.Config{Stem: true})
	assert.Equal(t, []string{"click"}, Parse("clicking", stemmed).Terms)
	assert.Equal(t, []string{"clicking"}, Parse("clicking", tokenizer.Default()).Terms)
}

func BenchmarkParse(b *testing.B) {
	norm := tokenizer.Default()
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "mouse click"},
		{"with_not", "mouse NOT keyboard"},
		{"with_minus", "client -window -pixel"},
		{"long", "client mouse keyboard window pixel spell battle card move_to get_position"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Parse(q.query, norm)
			}
		})
	}
}
