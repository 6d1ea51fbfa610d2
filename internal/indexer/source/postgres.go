package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Postgres reads documents from a table with title, body, anchor and kind
// text columns. Rows are ordered by anchor so document ids are stable
// across builds of unchanged data.
type Postgres struct {
	client *postgres.Client
	query  string
}

func NewPostgres(client *postgres.Client, table string) (*Postgres, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{
		client: client,
		query: fmt.Sprintf(
			"SELECT title, COALESCE(body, ''), anchor, kind FROM %s ORDER BY anchor",
			quoteTable(table),
		),
	}, nil
}

func quoteTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(name)
	}
	return pq.QuoteIdentifier(table)
}

func (p *Postgres) Read(ctx context.Context) ([]indexer.Source, error) {
	var docs []indexer.Source
	err := p.client.ReadOnlyTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, p.query)
		if err != nil {
			return fmt.Errorf("querying documents: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var doc indexer.Source
			var kind string
			if err := rows.Scan(&doc.Title, &doc.Body, &doc.Anchor, &kind); err != nil {
				return fmt.Errorf("scanning document row: %w", err)
			}
			doc.Kind = index.Kind(kind)
			if parsed, err := index.ParseKind(kind); err == nil {
				doc.Kind = parsed
			}
			docs = append(docs, doc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}
