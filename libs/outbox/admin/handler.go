// Package admin exposes the operator surface for dead-lettered outbox entries.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/propertyhub/libs/httpx"
	"github.com/md-rashed-zaman/propertyhub/libs/outbox"
)

type Handler struct {
	store  outbox.Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store outbox.Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger, now: time.Now}
}

// Register mounts the dead-letter routes on mux.
func (h *Handler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("GET /internal/outbox/dead-letters", wrap(http.HandlerFunc(h.List)))
	mux.Handle("POST /internal/outbox/dead-letters/{id}/requeue", wrap(http.HandlerFunc(h.Requeue)))
}

type deadLetter struct {
	ID            int64      `json:"id"`
	EventID       string     `json:"event_id"`
	StreamID      string     `json:"stream_id"`
	TenantID      string     `json:"tenant_id"`
	EventType     string     `json:"event_type"`
	Destination   string     `json:"destination"`
	RetryCount    int        `json:"retry_count"`
	LastError     string     `json:"last_error"`
	CreatedAt     time.Time  `json:"created_at"`
	DeadAt        *time.Time `json:"dead_at,omitempty"`
	SchemaVersion string     `json:"schema_version"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := h.store.ListDeadLetters(r.Context(), limit)
	if err != nil {
		h.logger.Error("list dead letters failed", "err", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal", "failed to list dead letters")
		return
	}
	out := make([]deadLetter, 0, len(entries))
	for _, e := range entries {
		out = append(out, deadLetter{
			ID:            e.ID,
			EventID:       e.EventID,
			StreamID:      e.StreamID,
			TenantID:      e.TenantID,
			EventType:     e.EventType,
			Destination:   e.Destination,
			RetryCount:    e.RetryCount,
			LastError:     e.LastError,
			CreatedAt:     e.CreatedAt,
			DeadAt:        e.DeadAt,
			SchemaVersion: e.SchemaVersion,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) Requeue(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation", "invalid entry id")
		return
	}
	err = h.store.Requeue(r.Context(), id, h.now().UTC())
	switch {
	case errors.Is(err, outbox.ErrNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "not_found", "outbox entry not found")
		return
	case errors.Is(err, outbox.ErrNotDead):
		httpx.WriteError(w, r, http.StatusConflict, "not_dead", "outbox entry is not dead-lettered")
		return
	case err != nil:
		h.logger.Error("requeue dead letter failed", "err", err, "entry_id", id)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal", "failed to requeue")
		return
	}
	h.logger.Info("dead letter requeued", "entry_id", id)
	w.WriteHeader(http.StatusAccepted)
}
