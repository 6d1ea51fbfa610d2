package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// FileStore keeps snapshots as files under a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Put(_ context.Context, key string, data []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	return WriteFileAtomic(filepath.Join(s.dir, filepath.FromSlash(key)), data)
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "snapshot %q not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %q: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) SetLatest(_ context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	return WriteFileAtomic(filepath.Join(s.dir, LatestKey), []byte(key+"\n"))
}

func (s *FileStore) Latest(_ context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, LatestKey))
	if errors.Is(err, fs.ErrNotExist) {
		return "", apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, "no snapshot published")
	}
	if err != nil {
		return "", fmt.Errorf("reading latest pointer: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, "latest pointer is empty")
	}
	return key, nil
}

// WriteFileAtomic writes data to a temp file next to path, syncs it and
// renames it into place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
