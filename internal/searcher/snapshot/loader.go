package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/storage"
)

// LoaderConfig tunes how snapshots are fetched. Zero values get defaults.
type LoaderConfig struct {
	Retry        resilience.RetryConfig
	FetchTimeout time.Duration
	// Debounce delays a watch-triggered reload so a burst of file events
	// results in one reload.
	Debounce time.Duration
	Metrics  *metrics.Metrics
}

// Loader fetches snapshots from a Store and installs them in a Holder.
// Reloads are serialized; readers of the Holder are never blocked.
type Loader struct {
	store  storage.Store
	holder *Holder
	cfg    LoaderConfig
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

func NewLoader(store storage.Store, holder *Holder, cfg LoaderConfig) *Loader {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 200 * time.Millisecond
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = transient
	}
	return &Loader{
		store:  store,
		holder: holder,
		cfg:    cfg,
		logger: slog.Default().With("component", "snapshot-loader"),
		now:    time.Now,
	}
}

// transient reports whether a fetch failure is worth retrying. Missing or
// corrupt snapshots will not fix themselves within a backoff window.
func transient(err error) bool {
	return !errors.Is(err, apperrors.ErrNotFound) &&
		!errors.Is(err, apperrors.ErrCorruptIndex) &&
		!errors.Is(err, apperrors.ErrInvalidArgument)
}

// Reload installs the snapshot LATEST points at. It reports whether the
// active index changed. On error the active snapshot stays in place.
func (l *Loader) Reload(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key, err := fetch(ctx, l, "snapshot-latest", l.store.Latest)
	if err != nil {
		l.cfg.Metrics.SnapshotReload("error", 0, 0)
		return false, fmt.Errorf("resolving latest snapshot: %w", err)
	}
	return l.loadKey(ctx, key)
}

// LoadKey installs the snapshot stored under key.
func (l *Loader) LoadKey(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadKey(ctx, key)
}

// LoadFile installs a snapshot read straight from a local file.
func (l *Loader) LoadFile(path string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, version, err := segment.ReadFile(path)
	if err != nil {
		l.reject(path, err)
		return false, err
	}
	return l.install(path, version, idx), nil
}

func (l *Loader) loadKey(ctx context.Context, key string) (bool, error) {
	if cur := l.holder.Current(); cur != nil && cur.Key == key {
		l.cfg.Metrics.SnapshotReload("unchanged", 0, 0)
		return false, nil
	}

	raw, err := fetch(ctx, l, "snapshot-get", func(ctx context.Context) ([]byte, error) {
		return l.store.Get(ctx, key)
	})
	if err != nil {
		l.cfg.Metrics.SnapshotReload("error", 0, 0)
		return false, fmt.Errorf("fetching snapshot %s: %w", key, err)
	}

	idx, version, err := segment.Load(raw)
	if err != nil {
		l.reject(key, err)
		return false, fmt.Errorf("loading snapshot %s: %w", key, err)
	}
	return l.install(key, version, idx), nil
}

func (l *Loader) reject(key string, err error) {
	status := "error"
	if errors.Is(err, apperrors.ErrCorruptIndex) {
		status = "corrupt"
	}
	l.cfg.Metrics.SnapshotReload(status, 0, 0)
	l.logger.Error("snapshot rejected, keeping active index",
		"key", key,
		"active_version", l.holder.Version(),
		"error", err,
	)
}

// install swaps idx in unless the active snapshot already has the same
// content. Only the key is refreshed in that case.
func (l *Loader) install(key, version string, idx *index.Index) bool {
	cur := l.holder.Current()
	if cur != nil && cur.Version == version {
		l.holder.Swap(&Snapshot{Index: cur.Index, Key: key, Version: version, LoadedAt: cur.LoadedAt})
		l.cfg.Metrics.SnapshotReload("unchanged", 0, 0)
		l.logger.Debug("snapshot content unchanged", "key", key, "version", version)
		return false
	}

	prev := l.holder.Swap(&Snapshot{Index: idx, Key: key, Version: version, LoadedAt: l.now().UTC()})
	l.cfg.Metrics.SnapshotReload("swapped", idx.NumDocuments(), idx.NumTerms())
	attrs := []any{
		"key", key,
		"version", version,
		"documents", idx.NumDocuments(),
		"terms", idx.NumTerms(),
	}
	if prev != nil {
		attrs = append(attrs, "previous_version", prev.Version)
	}
	l.logger.Info("snapshot swapped", attrs...)
	return true
}

// fetch retries fn with a per-attempt FetchTimeout. Only the value of the
// attempt that succeeded is returned; an attempt that overran its deadline
// cannot leak a result into a later one.
func fetch[T any](ctx context.Context, l *Loader, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := resilience.Retry(ctx, name, l.cfg.Retry, func() error {
		v, err := resilience.WithTimeout(ctx, l.cfg.FetchTimeout, name, fn)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (l *Loader) reloadAndLog(ctx context.Context, trigger string) {
	if _, err := l.Reload(ctx); err != nil && ctx.Err() == nil {
		l.logger.Warn("snapshot reload failed", "trigger", trigger, "error", err)
	}
}

// Poll reloads every interval until ctx is cancelled. A non-positive
// interval disables polling.
func (l *Loader) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.reloadAndLog(ctx, "poll")
		}
	}
}

// Watch reloads whenever the LATEST pointer inside dir is created or
// rewritten. It blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	l.logger.Info("watching snapshot directory", "dir", dir)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && filepath.Base(event.Name) == storage.LatestKey {
				debounce = time.After(l.cfg.Debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("watcher error", "error", err)
		case <-debounce:
			debounce = nil
			l.reloadAndLog(ctx, "watch")
		}
	}
}

// HandleSnapshotPublished returns a Kafka MessageHandler that loads the
// snapshot named in each announcement.
func (l *Loader) HandleSnapshotPublished() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[indexer.SnapshotPublished](value)
		if err != nil {
			l.logger.Error("failed to decode snapshot event", "key", string(key), "error", err)
			return nil
		}
		if event.Version != "" && event.Version == l.holder.Version() {
			l.logger.Debug("snapshot already active", "version", event.Version)
			return nil
		}
		if _, err := l.LoadKey(ctx, event.Key); err != nil {
			return fmt.Errorf("loading announced snapshot %s: %w", event.Key, err)
		}
		return nil
	}
}
