package segment

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/storage"
)

const (
	Extension           = ".dsidx"
	CompressedExtension = ".dsidx.gz"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Writer stores encoded snapshots under a directory.
type Writer struct {
	dataDir  string
	compress bool
}

// NewWriter creates a Writer for dataDir. With compress set, snapshots are
// gzipped and get the .dsidx.gz suffix.
func NewWriter(dataDir string, compress bool) *Writer {
	return &Writer{dataDir: dataDir, compress: compress}
}

// Write encodes idx and atomically stores it as <name>.dsidx[.gz]. It
// returns the final path and the snapshot version.
func (w *Writer) Write(name string, idx *index.Index) (string, string, error) {
	data, err := Encode(idx)
	if err != nil {
		return "", "", err
	}
	version := Version(data)
	ext := Extension
	if w.compress {
		if data, err = Compress(data); err != nil {
			return "", "", err
		}
		ext = CompressedExtension
	}
	finalPath := filepath.Join(w.dataDir, name+ext)
	if err := storage.WriteFileAtomic(finalPath, data); err != nil {
		return "", "", err
	}
	return finalPath, version, nil
}

// ReadFile loads and decodes a snapshot file, gzipped or not.
func ReadFile(path string) (*index.Index, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading snapshot file: %w", err)
	}
	return Load(raw)
}

// Load decodes raw snapshot bytes as read from disk or object storage and
// returns the index with its version.
func Load(raw []byte) (*index.Index, string, error) {
	data, err := Decompress(raw)
	if err != nil {
		return nil, "", err
	}
	idx, err := Decode(data)
	if err != nil {
		return nil, "", err
	}
	return idx, Version(data), nil
}

func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress returns data unchanged unless it starts with the gzip magic
// bytes. A damaged gzip stream is reported as ErrCorruptIndex.
func Decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Corrupt("opening gzip snapshot: %v", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, apperrors.Corrupt("decompressing snapshot: %v", err)
	}
	return out, nil
}
