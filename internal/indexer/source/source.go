// Package source reads build input for the indexer from JSON-lines files,
// a PostgreSQL table or a Sphinx searchindex.js artifact.
package source

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
)

// New returns the reader selected by cfg.Type. pg is only used for the
// postgres type and may be nil otherwise.
func New(cfg config.SourceConfig, pg *postgres.Client) (indexer.DocumentReader, error) {
	switch cfg.Type {
	case "jsonl":
		return NewJSONLines(cfg.Path), nil
	case "sphinx":
		return NewSphinx(cfg.Path), nil
	case "postgres":
		if pg == nil {
			return nil, fmt.Errorf("postgres source requires a database connection")
		}
		return NewPostgres(pg, cfg.Table)
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}

// compile-time checks
var (
	_ indexer.DocumentReader = (*JSONLines)(nil)
	_ indexer.DocumentReader = (*Postgres)(nil)
	_ indexer.DocumentReader = (*Sphinx)(nil)
)
