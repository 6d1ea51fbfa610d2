package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

const maxLineSize = 4 << 20

// JSONLines reads one {"title","body","anchor","kind"} object per line.
// Blank lines are skipped.
type JSONLines struct {
	path string
}

func NewJSONLines(path string) *JSONLines {
	return &JSONLines{path: path}
}

func (j *JSONLines) Read(ctx context.Context) ([]indexer.Source, error) {
	f, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", j.path, err)
	}
	defer f.Close()
	docs, err := ReadJSONLines(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", j.path, err)
	}
	return docs, nil
}

// ReadJSONLines decodes documents from r until EOF.
func ReadJSONLines(ctx context.Context, r io.Reader) ([]indexer.Source, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	var docs []indexer.Source
	line := 0
	for scanner.Scan() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var doc indexer.Source
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if kind, err := index.ParseKind(string(doc.Kind)); err == nil {
			doc.Kind = kind
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
