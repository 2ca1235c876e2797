package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/propertyhub/libs/es"
	"github.com/md-rashed-zaman/propertyhub/libs/httpx"
	"github.com/md-rashed-zaman/propertyhub/services/organization-service/internal/organization"
)

type Handler struct {
	svc    *organization.Service
	logger *slog.Logger
}

func New(svc *organization.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the public API on mux. Internal routes are wrapped with internal,
// which is expected to authenticate the calling service.
func (h *Handler) Register(mux *http.ServeMux, internal httpx.Middleware) {
	if internal == nil {
		internal = func(next http.Handler) http.Handler { return next }
	}
	mux.HandleFunc("POST /api/v1/organizations", h.Create)
	mux.HandleFunc("GET /api/v1/organizations/slug-availability", h.SlugAvailability)
	mux.HandleFunc("GET /api/v1/organizations/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/organizations/{id}/name", h.Rename)
	mux.HandleFunc("POST /api/v1/organizations/{id}/suspend", h.Suspend)
	mux.HandleFunc("POST /api/v1/organizations/{id}/reactivate", h.Reactivate)
	mux.HandleFunc("DELETE /api/v1/organizations/{id}", h.Delete)

	mux.Handle("GET /internal/organizations/snapshot", internal(http.HandlerFunc(h.Snapshot)))
	mux.Handle("POST /internal/organizations/{id}/rebuild", internal(http.HandlerFunc(h.Rebuild)))
}

func tenantFromHeader(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := strings.TrimSpace(r.Header.Get(httpx.TenantIDHeader))
	if tenantID == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation", "missing X-Tenant-Id")
		return "", false
	}
	return tenantID, true
}

// expectedVersion reads If-Match. Without it the command runs against the latest version.
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

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation", "invalid json body")
		return false
	}
	return true
}

func writeView(w http.ResponseWriter, status int, v organization.View) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(v.Version, 10)))
	httpx.WriteJSON(w, status, v)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, _, _ := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("organization request failed", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
	}
	httpx.WriteDomainError(w, r, err)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	if !decode(w, r, &req) {
		return
	}
	v, err := h.svc.Create(r.Context(), tenantID, req.Name, req.Slug)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/organizations/"+v.ID)
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
		Slug string `json:"slug"`
	}
	if !decode(w, r, &req) {
		return
	}
	v, err := h.svc.Rename(r.Context(), tenantID, r.PathValue("id"), version, req.Name, req.Slug)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, v)
}

func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}
	v, err := h.svc.Suspend(r.Context(), tenantID, r.PathValue("id"), version, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, v)
}

func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Reactivate(r.Context(), tenantID, r.PathValue("id"), version)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, v)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Delete(r.Context(), tenantID, r.PathValue("id"), version)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeView(w, http.StatusOK, v)
}

func (h *Handler) SlugAvailability(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	slug := r.URL.Query().Get("slug")
	available, err := h.svc.SlugAvailable(r.Context(), tenantID, slug)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"slug": slug, "available": available})
}

// Snapshot serves every organization of every tenant as a JSON array, deleted ones
// included, for reference synchronizers.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Snapshots(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromHeader(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Rebuild(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("organization snapshot rebuilt", "organization_id", v.ID, "version", v.Version)
	writeView(w, http.StatusOK, v)
}
