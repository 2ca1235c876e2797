package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/propertyhub/libs/auth"
	"github.com/md-rashed-zaman/propertyhub/libs/es"
	"github.com/md-rashed-zaman/propertyhub/libs/es/memstore"
	"github.com/md-rashed-zaman/propertyhub/libs/httpx"
	"github.com/md-rashed-zaman/propertyhub/services/organization-service/internal/organization"
)

const secret = "test-secret"

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	repo := es.NewRepository(organization.Kind, store, es.RepositoryConfig{Logger: logger})
	svc := organization.NewService(repo, store)

	mux := http.NewServeMux()
	New(svc, logger).Register(mux, auth.NewVerifier(secret).RequireService())
	return mux
}

func do(t *testing.T, mux http.Handler, method, path, tenant, ifMatch, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if tenant != "" {
		req.Header.Set("X-Tenant-Id", tenant)
	}
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	return rw
}

func decodeView(t *testing.T, rw *httptest.ResponseRecorder) organization.View {
	t.Helper()
	var v organization.View
	if err := json.Unmarshal(rw.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode view: %v (%s)", err, rw.Body.String())
	}
	return v
}

func errorCode(t *testing.T, rw *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v (%s)", err, rw.Body.String())
	}
	return body.Error.Code
}

func create(t *testing.T, mux http.Handler, tenant, name string) organization.View {
	t.Helper()
	rw := do(t, mux, http.MethodPost, "/api/v1/organizations", tenant, "", `{"name":"`+name+`"}`)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	return decodeView(t, rw)
}

func TestCreateAndGet(t *testing.T) {
	mux := newTestMux(t)
	rw := do(t, mux, http.MethodPost, "/api/v1/organizations", "t-1", "", `{"name":"Acme Holdings"}`)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	if rw.Header().Get("ETag") != `"2"` {
		t.Fatalf("expected ETag \"2\", got %q", rw.Header().Get("ETag"))
	}
	created := decodeView(t, rw)
	if created.Slug != "acme-holdings" || created.Status != es.StatusActive {
		t.Fatalf("unexpected view %+v", created)
	}

	rw = do(t, mux, http.MethodGet, "/api/v1/organizations/"+created.ID, "t-1", "", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if got := decodeView(t, rw); got.ID != created.ID || got.Version != 2 {
		t.Fatalf("unexpected view %+v", got)
	}

	rw = do(t, mux, http.MethodGet, "/api/v1/organizations/"+created.ID, "t-2", "", "")
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 across tenants, got %d", rw.Code)
	}
}

func TestMissingTenantHeader(t *testing.T) {
	rw := do(t, newTestMux(t), http.MethodPost, "/api/v1/organizations", "", "", `{"name":"Acme"}`)
	if rw.Code != http.StatusBadRequest || errorCode(t, rw) != "validation" {
		t.Fatalf("expected 400 validation, got %d %s", rw.Code, rw.Body.String())
	}
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	mux := newTestMux(t)
	org := create(t, mux, "t-1", "Acme")

	rw := do(t, mux, http.MethodPost, "/api/v1/organizations", "t-1", "", `{"name":"Acme"}`)
	if rw.Code != http.StatusUnprocessableEntity || errorCode(t, rw) != "slug_taken" {
		t.Fatalf("expected 422 slug_taken, got %d %s", rw.Code, rw.Body.String())
	}

	rw = do(t, mux, http.MethodPost, "/api/v1/organizations/"+org.ID+"/reactivate", "t-1", "", "")
	if rw.Code != http.StatusUnprocessableEntity || errorCode(t, rw) != "not_suspended" {
		t.Fatalf("expected 422 not_suspended, got %d %s", rw.Code, rw.Body.String())
	}

	rw = do(t, mux, http.MethodPost, "/api/v1/organizations/"+org.ID+"/suspend", "t-1", `"1"`, `{"reason":"unpaid"}`)
	if rw.Code != http.StatusConflict || errorCode(t, rw) != "concurrency_conflict" {
		t.Fatalf("expected 409, got %d %s", rw.Code, rw.Body.String())
	}

	rw = do(t, mux, http.MethodPut, "/api/v1/organizations/"+org.ID+"/name", "t-1", "abc", `{"name":"X"}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad If-Match, got %d", rw.Code)
	}

	rw = do(t, mux, http.MethodDelete, "/api/v1/organizations/missing", "t-1", "", "")
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestLifecycleWithIfMatch(t *testing.T) {
	mux := newTestMux(t)
	org := create(t, mux, "t-1", "Acme")
	base := "/api/v1/organizations/" + org.ID

	rw := do(t, mux, http.MethodPost, base+"/suspend", "t-1", `"2"`, `{"reason":"unpaid"}`)
	if rw.Code != http.StatusOK || rw.Header().Get("ETag") != `"3"` {
		t.Fatalf("suspend: %d %s", rw.Code, rw.Body.String())
	}
	rw = do(t, mux, http.MethodPut, base+"/name", "t-1", `W/"3"`, `{"name":"Acme Two"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("rename: %d %s", rw.Code, rw.Body.String())
	}
	if v := decodeView(t, rw); v.Slug != "acme-two" || v.Status != es.StatusSuspended {
		t.Fatalf("unexpected view %+v", v)
	}
	rw = do(t, mux, http.MethodPost, base+"/reactivate", "t-1", "", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("reactivate: %d %s", rw.Code, rw.Body.String())
	}
	rw = do(t, mux, http.MethodDelete, base, "t-1", `"5"`, "")
	if rw.Code != http.StatusOK || !decodeView(t, rw).IsDeleted {
		t.Fatalf("delete: %d %s", rw.Code, rw.Body.String())
	}
	rw = do(t, mux, http.MethodPut, base+"/name", "t-1", "", `{"name":"Zombie"}`)
	if rw.Code != http.StatusUnprocessableEntity || errorCode(t, rw) != "aggregate_deleted" {
		t.Fatalf("expected aggregate_deleted, got %d %s", rw.Code, rw.Body.String())
	}
}

func TestSlugAvailability(t *testing.T) {
	mux := newTestMux(t)
	create(t, mux, "t-1", "Acme")

	rw := do(t, mux, http.MethodGet, "/api/v1/organizations/slug-availability?slug=acme", "t-1", "", "")
	var body struct {
		Available bool `json:"available"`
	}
	_ = json.Unmarshal(rw.Body.Bytes(), &body)
	if rw.Code != http.StatusOK || body.Available {
		t.Fatalf("expected acme to be taken, got %d %s", rw.Code, rw.Body.String())
	}

	rw = do(t, mux, http.MethodGet, "/api/v1/organizations/slug-availability?slug=Bad%20Slug", "t-1", "", "")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid slug, got %d", rw.Code)
	}
}

func TestSnapshotRequiresServiceToken(t *testing.T) {
	mux := newTestMux(t)
	create(t, mux, "t-1", "Acme")
	create(t, mux, "t-2", "Globex")

	rw := do(t, mux, http.MethodGet, "/internal/organizations/snapshot", "", "", "")
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rw.Code)
	}

	token, err := auth.NewSigner(secret, "property-service", time.Minute).Sign()
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/internal/organizations/snapshot", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw = httptest.NewRecorder()
	httpx.Chain(mux, httpx.WithRequestID).ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rw.Code, rw.Body.String())
	}
	var items []organization.View
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items across tenants, got %d", len(items))
	}
}
