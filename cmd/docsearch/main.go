// Command docsearch builds and queries snapshot files locally, without any
// of the services.
//
// Usage:
//
//	docsearch build -in docs.jsonl -out site.dsidx
//	docsearch import-sphinx -in searchindex.js -out site.dsidx.gz
//	docsearch search -index site.dsidx [-limit 10] mouse click
//	docsearch stats -index site.dsidx
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

const usage = `usage: docsearch <command> [flags]

commands:
  build          build a snapshot from a JSON lines file
  import-sphinx  build a snapshot from a Sphinx searchindex.js
  search         query a snapshot file
  stats          print the size of a snapshot file
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(context.Background(), os.Args[1], os.Args[2:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "docsearch: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, stdout, stderr io.Writer) error {
	switch cmd {
	case "build":
		return runBuild(ctx, args, stderr, false)
	case "import-sphinx":
		return runBuild(ctx, args, stderr, true)
	case "search":
		return runSearch(ctx, args, stdout, stderr)
	case "stats":
		return runStats(args, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// commonFlags registers the flags every command shares and returns a func
// that loads the configuration once the flags are parsed.
func commonFlags(fs *flag.FlagSet, stderr io.Writer) func() (*config.Config, error) {
	configPath := fs.String("config", "", "optional config file for tokenizer and search settings")
	level := fs.String("log-level", "warn", "log level")
	return func() (*config.Config, error) {
		logger.SetupWriter(stderr, *level, "text")
		return config.Load(*configPath)
	}
}

func runBuild(ctx context.Context, args []string, stderr io.Writer, sphinx bool) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "input file")
	out := fs.String("out", "", "output snapshot path; a .gz suffix enables compression")
	loadConfig := commonFlags(fs, stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("-in and -out are required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var reader indexer.DocumentReader = source.NewJSONLines(*in)
	if sphinx {
		reader = source.NewSphinx(*in)
	}
	docs, err := reader.Read(ctx)
	if err != nil {
		return err
	}
	idx, err := indexer.NewBuilder(cfg.Index).Build(docs)
	if err != nil {
		return err
	}

	compress := strings.HasSuffix(*out, ".gz")
	name := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(*out), ".gz"), segment.Extension)
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	path, version, err := segment.NewWriter(filepath.Dir(*out), compress).Write(name, idx)
	if err != nil {
		return err
	}
	slog.Info("snapshot written", "path", path, "version", version)
	fmt.Fprintf(stderr, "wrote %s: %d documents, %d terms, version %s\n",
		path, idx.NumDocuments(), idx.NumTerms(), version)
	return nil
}

func runSearch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(stderr)
	indexPath := fs.String("index", "", "snapshot file")
	limit := fs.Int("limit", 10, "maximum number of results")
	asJSON := fs.Bool("json", false, "print the raw result as JSON")
	loadConfig := commonFlags(fs, stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *indexPath == "" {
		return fmt.Errorf("-index is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	idx, _, err := segment.ReadFile(*indexPath)
	if err != nil {
		return err
	}

	res, err := executor.New(cfg.Search).Execute(ctx, idx, strings.Join(fs.Args(), " "), *limit)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if len(res.Results) == 0 {
		fmt.Fprintln(stdout, "no results")
		return nil
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tKIND\tTITLE\tANCHOR")
	for _, r := range res.Results {
		fmt.Fprintf(tw, "%.2f\t%s\t%s\t%s\n", r.Score, r.Document.Kind, r.Document.Title, r.Document.Anchor)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if res.Partial {
		fmt.Fprintln(stdout, "(no document matched every term; showing partial matches)")
	}
	return nil
}

func runStats(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	indexPath := fs.String("index", "", "snapshot file")
	loadConfig := commonFlags(fs, stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *indexPath == "" {
		return fmt.Errorf("-index is required")
	}
	if _, err := loadConfig(); err != nil {
		return err
	}
	idx, version, err := segment.ReadFile(*indexPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "version:   %s\ndocuments: %d\nterms:     %d\n", version, idx.NumDocuments(), idx.NumTerms())
	return nil
}
