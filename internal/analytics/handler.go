package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// History reads persisted stats.
type History interface {
	// ListSnapshots returns stats snapshots, newest first.
	ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error)
	// MissingContent returns the most frequent zero-result queries seen
	// since the given time.
	MissingContent(ctx context.Context, since time.Time, limit int) ([]QueryCount, error)
}

type Handler struct {
	aggregator *Aggregator
	history    History
	logger     *slog.Logger
}

// NewHandler serves live stats from aggregator. history may be nil when
// stats are not persisted.
func NewHandler(aggregator *Aggregator, history History) *Handler {
	return &Handler{
		aggregator: aggregator,
		history:    history,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

// History returns up to ?limit= (default 24) persisted snapshots.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "history is not persisted"})
		return
	}
	limit, ok := h.intParam(w, r, "limit", 24, 1000)
	if !ok {
		return
	}
	snapshots, err := h.history.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing analytics history failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	if snapshots == nil {
		snapshots = []AggregatedStats{}
	}
	h.writeJSON(w, http.StatusOK, snapshots)
}

// Missing returns the queries that found nothing over the last ?hours=
// (default 168), up to ?limit= (default 20) of them.
func (h *Handler) Missing(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "history is not persisted"})
		return
	}
	hours, ok := h.intParam(w, r, "hours", 168, 24*366)
	if !ok {
		return
	}
	limit, ok := h.intParam(w, r, "limit", 20, 1000)
	if !ok {
		return
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	queries, err := h.history.MissingContent(r.Context(), since, limit)
	if err != nil {
		h.logger.Error("listing zero-result queries failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"since": since.UTC(), "queries": queries})
}

// intParam reads an optional positive query parameter no larger than upper,
// answering 400 itself when it is malformed.
func (h *Handler) intParam(w http.ResponseWriter, r *http.Request, name string, def, upper int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > upper {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": name + " must be between 1 and " + strconv.Itoa(upper),
		})
		return 0, false
	}
	return n, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
