// Package snapshot keeps the searcher's active index and replaces it when a
// newer snapshot is published. Readers never block: the active snapshot sits
// behind an atomic pointer and a reload only swaps it after the replacement
// has been fully decoded and validated.
package snapshot

import (
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
)

// Snapshot is one loaded index and where it came from.
type Snapshot struct {
	Index    *index.Index
	Key      string
	Version  string
	LoadedAt time.Time
}

// Stats describes the active snapshot for the stats endpoint.
type Stats struct {
	Loaded    bool      `json:"loaded"`
	Key       string    `json:"key,omitempty"`
	Version   string    `json:"version,omitempty"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// Holder publishes the active snapshot to concurrent readers.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

func NewHolder() *Holder {
	return &Holder{}
}

// Current returns the active snapshot, or nil before the first load.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Index returns the active index, or nil before the first load.
func (h *Holder) Index() *index.Index {
	if s := h.current.Load(); s != nil {
		return s.Index
	}
	return nil
}

// Version returns the active snapshot version, or "" before the first load.
func (h *Holder) Version() string {
	if s := h.current.Load(); s != nil {
		return s.Version
	}
	return ""
}

// Swap installs s and returns the snapshot it replaced.
func (h *Holder) Swap(s *Snapshot) *Snapshot {
	return h.current.Swap(s)
}

func (h *Holder) Stats() Stats {
	s := h.current.Load()
	if s == nil {
		return Stats{}
	}
	return Stats{
		Loaded:    true,
		Key:       s.Key,
		Version:   s.Version,
		Documents: s.Index.NumDocuments(),
		Terms:     s.Index.NumTerms(),
		LoadedAt:  s.LoadedAt,
	}
}
