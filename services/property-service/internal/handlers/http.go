package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/propertyhub/libs/es"
	"github.com/md-rashed-zaman/propertyhub/libs/httpx"
	"github.com/md-rashed-zaman/propertyhub/services/property-service/internal/property"
)

// SyncTrigger queues an out-of-band reference sync.
type SyncTrigger interface {
	Trigger() bool
}

type Handler struct {
	svc    *property.Service
	orgs   property.Organizations
	sync   SyncTrigger
	logger *slog.Logger
}

func New(svc *property.Service, orgs property.Organizations, sync SyncTrigger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, orgs: orgs, sync: sync, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux, internal httpx.Middleware) {
	if internal == nil {
		internal = func(next http.Handler) http.Handler { return next }
	}
	mux.HandleFunc("POST /api/v1/properties", h.Create)
	mux.HandleFunc("GET /api/v1/properties/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/properties/{id}/name", h.Rename)
	mux.HandleFunc("DELETE /api/v1/properties/{id}", h.Archive)
	mux.HandleFunc("GET /api/v1/organizations/{id}/properties", h.ListByOrganization)

	mux.Handle("POST /internal/refs/organizations/sync", internal(http.HandlerFunc(h.TriggerSync)))
	mux.Handle("GET /internal/refs/organizations/{id}", internal(http.HandlerFunc(h.GetReference)))
}

func tenantFromHeader(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := strings.TrimSpace(r.Header.Get(httpx.TenantIDHeader))
	if tenantID == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation", "missing X-Tenant-Id")
		return "", false
	}
	return tenantID, true
}

func expectedVersion(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return es.AnyVersion, true
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation", "If-Match must be an aggregate version")
		return 0, false
	}
	return v, true
}

func writeView(w http.ResponseWriter, status int, v property.View) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(v.Version, 10)))
	httpx.WriteJSON(w, status, v)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error("property request failed", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
	}
	httpx.WriteDomainError(w, r, err)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	var req struct {
		OrganizationID string `json:"organization_id"`
		Name           string `json:"name"`
		Address        string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation", "invalid json body")
		return
	}
	v, err := h.svc.Register(r.Context(), tenantID, req.OrganizationID, req.Name, req.Address)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/properties/"+v.ID)
	writeView(w, http.StatusCreated, v)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Get(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, v)
}

func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation", "invalid json body")
		return
	}
	v, err := h.svc.Rename(r.Context(), tenantID, r.PathValue("id"), version, req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, v)
}

// Archive takes an optional ?reason= and marks the property deleted.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Archive(r.Context(), tenantID, r.PathValue("id"), version, r.URL.Query().Get("reason"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, v)
}

func (h *Handler) ListByOrganization(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListByOrganization(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	queued := h.sync.Trigger()
	h.logger.Info("organization reference sync requested", "queued", queued)
	httpx.WriteJSON(w, http.StatusAccepted, map[string]any{"queued": queued})
}

type reference struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	Fields        map[string]any `json:"fields"`
	SourceVersion int64          `json:"source_version"`
	IsDeleted     bool           `json:"is_deleted"`
	LastUpdatedAt time.Time      `json:"last_updated_at"`
}

func (h *Handler) GetReference(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	rec, found, err := h.orgs.Get(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !found {
		httpx.WriteError(w, r, http.StatusNotFound, "not_found", "organization reference not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reference{
		ID:            rec.ID,
		TenantID:      rec.TenantID,
		Fields:        rec.Fields,
		SourceVersion: rec.SourceVersion,
		IsDeleted:     rec.IsDeleted,
		LastUpdatedAt: rec.LastUpdatedAt,
	})
}
