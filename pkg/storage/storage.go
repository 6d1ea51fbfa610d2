// Package storage persists encoded index snapshots. The indexer publishes a
// snapshot under a unique key and then moves the LATEST pointer to it;
// searchers resolve LATEST and fetch the referenced object.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// LatestKey names the pointer object holding the key of the newest
// snapshot.
const LatestKey = "LATEST"

type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns ErrNotFound for missing keys.
	Get(ctx context.Context, key string) ([]byte, error)
	SetLatest(ctx context.Context, key string) error
	// Latest returns the key most recently passed to SetLatest, or
	// ErrNotFound if nothing was published yet.
	Latest(ctx context.Context) (string, error)
}

// New builds the Store selected by cfg.Type. localDir is used by the fs
// backend.
func New(ctx context.Context, cfg config.StorageConfig, localDir string) (Store, error) {
	switch cfg.Type {
	case "", "fs":
		return NewFileStore(localDir), nil
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func validKey(key string) error {
	if key == "" || key == LatestKey || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return apperrors.InvalidArgument("invalid snapshot key %q", key)
	}
	return nil
}
