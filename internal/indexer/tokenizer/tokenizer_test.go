package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func terms(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Term
	}
	return out
}

func TestTokenize(t *testing.T) {
	n := Default()
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"underscore splits identifiers", "click move_to get_position", []string{"click", "move", "get", "position"}},
		{"case folded", "Mouse KEYBOARD", []string{"mouse", "keyboard"}},
		{"punctuation stripped", "wizsdk.Mouse.click()", []string{"wizsdk", "mouse", "click"}},
		{"stop words dropped", "the state of the window is active", []string{"state", "window", "active"}},
		{"short tokens dropped", "go to x y hp mana", []string{"mana"}},
		{"digits kept", "wait 1000 ms", []string{"wait", "1000"}},
		{"empty", "", []string{}},
		{"only separators", " _-.,;", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, terms(n.Tokenize(tt.text)))
		})
	}
}

func TestTokenizePositionsAreDense(t *testing.T) {
	tokens := Default().Tokenize("the mouse is over the window")
	assert.Equal(t, []Token{{Term: "mouse", Position: 0}, {Term: "over", Position: 1}, {Term: "window", Position: 2}}, tokens)
}

func TestMinLengthCountsRunes(t *testing.T) {
	n := New(Config{MinLength: 3})
	assert.Equal(t, []string{"été"}, terms(n.Tokenize("été ok")))
}

func TestCustomStopWords(t *testing.T) {
	n := New(Config{MinLength: 2, StopWords: []string{"Mouse"}})
	assert.Equal(t, []string{"to", "click"}, terms(n.Tokenize("mouse to click")))
}

func TestStemming(t *testing.T) {
	n := New(Config{Stem: true})
	assert.Equal(t, []string{"click", "window"}, terms(n.Tokenize("clicking windows")))
	assert.Equal(t, n.Terms("battle"), n.Terms("battles"))
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"mouse", "click"}, Default().Terms("mouse click mouse MOUSE click"))
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := New(Config{MinLength: 4, StopWords: []string{"zeta", "alpha"}, Stem: true}).Config()
	assert.Equal(t, Config{MinLength: 4, StopWords: []string{"alpha", "zeta"}, Stem: true}, cfg)

	again := New(cfg)
	assert.Equal(t, cfg, again.Config())
}

func TestDeterministic(t *testing.T) {
	text := strings.Repeat("Distributed search engines process queries across shards. ", 20)
	a := Default().Tokenize(text)
	b := Default().Tokenize(text)
	assert.Equal(t, a, b)
}
