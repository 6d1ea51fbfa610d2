// Package tokenizer provides the text normalization shared by the index
// builder and the query engine. It lower-cases input, splits on every rune
// that is not a letter or digit (so "move_to" yields "move" and "to"), drops
// short tokens and stop-words, and optionally applies the Snowball English
// stemmer.
package tokenizer

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball/english"
)

// DefaultMinLength is the shortest token kept when Config.MinLength is zero.
const DefaultMinLength = 3

var defaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "can",
	"do", "each", "for", "from", "had", "has", "have", "he", "if", "in",
	"into", "is", "it", "its", "no", "not", "of", "on", "or", "so",
	"such", "that", "the", "their", "then", "there", "these", "they", "this", "to",
	"was", "were", "what", "when", "where", "which", "who", "will", "with",
}

// DefaultStopWords returns a copy of the built-in English stop-word list.
func DefaultStopWords() []string {
	out := make([]string, len(defaultStopWords))
	copy(out, defaultStopWords)
	return out
}

// Config describes a normalization pipeline. It is persisted inside every
// snapshot, so the zero values must keep meaning "use the defaults".
type Config struct {
	MinLength int      `json:"min_length"`
	StopWords []string `json:"stop_words,omitempty"`
	Stem      bool     `json:"stem,omitempty"`
}

// Token is a single normalized term and its position among the kept tokens.
type Token struct {
	Term     string
	Position int
}

// Normalizer tokenizes text according to a Config. It is immutable and safe
// for concurrent use.
type Normalizer struct {
	cfg       Config
	stopWords map[string]struct{}
}

// New builds a Normalizer, filling defaults for zero-valued fields.
func New(cfg Config) *Normalizer {
	cfg = cfg.withDefaults()
	stop := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Normalizer{cfg: cfg, stopWords: stop}
}

// Default returns a Normalizer with MinLength 3, English stop-words and no
// stemming.
func Default() *Normalizer {
	return New(Config{})
}

// Config returns the effective configuration with defaults applied and
// stop-words sorted, suitable for persisting.
func (n *Normalizer) Config() Config {
	out := n.cfg
	out.StopWords = make([]string, 0, len(n.stopWords))
	for w := range n.stopWords {
		out.StopWords = append(out.StopWords, w)
	}
	sort.Strings(out.StopWords)
	return out
}

// Tokenize breaks text into normalized Tokens. Output depends only on text
// and the Normalizer's Config.
func (n *Normalizer) Tokenize(text string) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		term, ok := n.normalizeWord(word)
		if !ok {
			continue
		}
		tokens = append(tokens, Token{
			Term:     term,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms returns the distinct normalized terms of text in first-seen order.
func (n *Normalizer) Terms(text string) []string {
	tokens := n.Tokenize(text)
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, dup := seen[t.Term]; dup {
			continue
		}
		seen[t.Term] = struct{}{}
		terms = append(terms, t.Term)
	}
	return terms
}

// CanProduce reports whether term could be emitted by Tokenize under this
// configuration: lower-case letters and digits only, and when stemming is
// off at least MinLength runes and not a stop-word.
func (n *Normalizer) CanProduce(term string) bool {
	if term == "" {
		return false
	}
	for _, r := range term {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
		if unicode.ToLower(r) != r {
			return false
		}
	}
	if n.cfg.Stem {
		return true
	}
	_, ok := n.normalizeWord(term)
	return ok
}

func (n *Normalizer) normalizeWord(word string) (string, bool) {
	if utf8.RuneCountInString(word) < n.cfg.MinLength {
		return "", false
	}
	if _, isStop := n.stopWords[word]; isStop {
		return "", false
	}
	if n.cfg.Stem {
		word = english.Stem(word, false)
		if word == "" {
			return "", false
		}
	}
	return word, true
}

func (c Config) withDefaults() Config {
	if c.MinLength <= 0 {
		c.MinLength = DefaultMinLength
	}
	if len(c.StopWords) == 0 {
		c.StopWords = DefaultStopWords()
	}
	return c
}
