package index

import (
	"fmt"
	"strings"
)

// Kind classifies the documented object a Document points at.
type Kind string

const (
	KindModule    Kind = "module"
	KindClass     Kind = "class"
	KindMethod    Kind = "method"
	KindFunction  Kind = "function"
	KindAttribute Kind = "attribute"
	// KindPage is a whole documentation page rather than an API object.
	KindPage Kind = "page"
)

var kinds = map[Kind]struct{}{
	KindModule: {}, KindClass: {}, KindMethod: {},
	KindFunction: {}, KindAttribute: {}, KindPage: {},
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// ParseKind converts a case-insensitive name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown kind %q", s)
	}
	return k, nil
}

// Document is one entry of the document table. ID equals its position in
// the table.
type Document struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Anchor string `json:"anchor"`
	Kind   Kind   `json:"kind"`
}

// Posting records that a term occurs in a document with an accumulated
// relevance weight.
type Posting struct {
	DocID  int
	Weight float64
}

type PostingList []Posting
