package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

// Sphinx imports a searchindex.js file written by the Sphinx HTML builder.
// Every documented object becomes a document named by its dotted path and
// every page becomes a page document.
type Sphinx struct {
	path   string
	logger *slog.Logger
}

func NewSphinx(path string) *Sphinx {
	return &Sphinx{
		path:   path,
		logger: slog.Default().With("component", "sphinx-source"),
	}
}

func (s *Sphinx) Read(ctx context.Context) ([]indexer.Source, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	docs, skipped, err := ParseSphinx(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	if skipped > 0 {
		s.logger.Warn("skipped objects with unsupported types", "path", s.path, "skipped", skipped)
	}
	s.logger.Info("sphinx index imported", "path", s.path, "documents", len(docs))
	return docs, nil
}

type sphinxIndex struct {
	docnames   []string
	titles     []string
	objects    map[string]any
	objnames   map[string][]string
	terms      map[string]any
	titleterms map[string]any
}

// ParseSphinx converts the Search.setIndex(...) payload into build
// sources. It returns the number of objects whose type has no matching
// Kind.
func ParseSphinx(data []byte) ([]indexer.Source, int, error) {
	payload, err := unwrapSetIndex(data)
	if err != nil {
		return nil, 0, err
	}
	var raw map[string]any
	if err := json5.Unmarshal(payload, &raw); err != nil {
		return nil, 0, fmt.Errorf("decoding index object: %w", err)
	}
	idx, err := readSphinxIndex(raw)
	if err != nil {
		return nil, 0, err
	}

	pageTitles := make([]string, len(idx.docnames))
	for i := range idx.docnames {
		pageTitles[i] = idx.docnames[i]
		if i < len(idx.titles) && strings.TrimSpace(idx.titles[i]) != "" {
			pageTitles[i] = idx.titles[i]
		}
	}

	docs := pageDocuments(idx, pageTitles)
	objects, skipped, err := objectDocuments(idx, pageTitles)
	if err != nil {
		return nil, 0, err
	}
	return append(docs, objects...), skipped, nil
}

func unwrapSetIndex(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	const prefix = "Search.setIndex("
	if !bytes.HasPrefix(data, []byte(prefix)) {
		return nil, fmt.Errorf("missing %s prefix", prefix)
	}
	data = bytes.TrimSuffix(data, []byte(";"))
	if !bytes.HasSuffix(data, []byte(")")) {
		return nil, fmt.Errorf("unterminated %s call", prefix)
	}
	return data[len(prefix) : len(data)-1], nil
}

func readSphinxIndex(raw map[string]any) (*sphinxIndex, error) {
	idx := &sphinxIndex{
		objnames: make(map[string][]string),
	}
	var err error
	if idx.docnames, err = stringList(raw["docnames"]); err != nil {
		return nil, fmt.Errorf("docnames: %w", err)
	}
	if idx.titles, err = stringList(raw["titles"]); err != nil {
		return nil, fmt.Errorf("titles: %w", err)
	}
	idx.objects, _ = raw["objects"].(map[string]any)
	idx.terms, _ = raw["terms"].(map[string]any)
	idx.titleterms, _ = raw["titleterms"].(map[string]any)
	if names, ok := raw["objnames"].(map[string]any); ok {
		for typ, v := range names {
			parts, err := stringList(v)
			if err != nil {
				return nil, fmt.Errorf("objnames[%s]: %w", typ, err)
			}
			idx.objnames[typ] = parts
		}
	}
	return idx, nil
}

// pageDocuments emits one page document per docname. Its body is the list
// of (already stemmed) terms Sphinx recorded for that page, which the
// normalizer tokenizes again like any other text.
func pageDocuments(idx *sphinxIndex, pageTitles []string) []indexer.Source {
	bodies := make([][]string, len(idx.docnames))
	collect := func(terms map[string]any) {
		keys := make([]string, 0, len(terms))
		for k := range terms {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, term := range keys {
			for _, page := range pageRefs(terms[term]) {
				if page >= 0 && page < len(bodies) {
					bodies[page] = append(bodies[page], term)
				}
			}
		}
	}
	collect(idx.titleterms)
	collect(idx.terms)

	docs := make([]indexer.Source, 0, len(idx.docnames))
	for i, name := range idx.docnames {
		docs = append(docs, indexer.Source{
			Title:  pageTitles[i],
			Body:   strings.Join(bodies[i], " "),
			Anchor: name + ".html",
			Kind:   index.KindPage,
		})
	}
	return docs
}

// pageRefs reads a term value, which is a single page number or a list.
func pageRefs(v any) []int {
	switch t := v.(type) {
	case float64:
		return []int{int(t)}
	case []any:
		out := make([]int, 0, len(t))
		for _, e := range t {
			if f, ok := e.(float64); ok {
				out = append(out, int(f))
			}
		}
		return out
	default:
		return nil
	}
}

type sphinxObject struct {
	fullName string
	page     int
	objType  string
	anchor   string
}

func objectDocuments(idx *sphinxIndex, pageTitles []string) ([]indexer.Source, int, error) {
	var objects []sphinxObject
	for prefix, members := range idx.objects {
		entries, ok := members.(map[string]any)
		if !ok {
			return nil, 0, fmt.Errorf("objects[%q] is not an object", prefix)
		}
		for name, v := range entries {
			entry, ok := v.([]any)
			if !ok || len(entry) < 4 {
				return nil, 0, fmt.Errorf("objects[%q][%q] is malformed", prefix, name)
			}
			page, ok1 := entry[0].(float64)
			typ, ok2 := entry[1].(float64)
			anchor, ok3 := entry[3].(string)
			if !ok1 || !ok2 || !ok3 {
				return nil, 0, fmt.Errorf("objects[%q][%q] is malformed", prefix, name)
			}
			fullName := name
			if prefix != "" {
				fullName = prefix + "." + name
			}
			objects = append(objects, sphinxObject{
				fullName: fullName,
				page:     int(page),
				objType:  strconv.Itoa(int(typ)),
				anchor:   anchor,
			})
		}
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].fullName < objects[j].fullName
	})

	docs := make([]indexer.Source, 0, len(objects))
	skipped := 0
	for _, obj := range objects {
		if obj.page < 0 || obj.page >= len(idx.docnames) {
			return nil, 0, fmt.Errorf("object %q references missing page %d", obj.fullName, obj.page)
		}
		names := idx.objnames[obj.objType]
		if len(names) < 2 {
			return nil, 0, fmt.Errorf("object %q has undeclared type %s", obj.fullName, obj.objType)
		}
		kind, ok := sphinxKind(names[1])
		if !ok {
			skipped++
			continue
		}
		anchor := obj.anchor
		switch anchor {
		case "":
			anchor = obj.fullName
		case "-":
			anchor = names[1] + "-" + obj.fullName
		}
		description := names[len(names)-1]
		docs = append(docs, indexer.Source{
			Title:  obj.fullName,
			Body:   description + " " + pageTitles[obj.page],
			Anchor: idx.docnames[obj.page] + ".html#" + anchor,
			Kind:   kind,
		})
	}
	return docs, skipped, nil
}

func sphinxKind(objName string) (index.Kind, bool) {
	switch objName {
	case "module":
		return index.KindModule, true
	case "class", "exception":
		return index.KindClass, true
	case "method", "classmethod", "staticmethod":
		return index.KindMethod, true
	case "function":
		return index.KindFunction, true
	case "data", "attribute", "property":
		return index.KindAttribute, true
	default:
		return "", false
	}
}

func stringList(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, not a string", i, item)
		}
		out[i] = s
	}
	return out, nil
}
