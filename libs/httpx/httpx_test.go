package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/propertyhub/libs/es"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{es.Violation("organization.rename", "slug_taken", "slug is taken"), http.StatusUnprocessableEntity, "slug_taken"},
		{es.Conflict("organization.rename", "o-1", 3, 4), http.StatusConflict, "concurrency_conflict"},
		{es.NotFound("organization.load", "o-1 not found"), http.StatusNotFound, "not_found"},
		{es.Invalid("organization.create", "name is required"), http.StatusBadRequest, "validation"},
		{es.SchemaMismatch("organization.load", "unknown event", nil), http.StatusInternalServerError, "schema_mismatch"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, code, _ := StatusFor(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%v: expected %d/%s, got %d/%s", tc.err, tc.status, tc.code, status, code)
		}
	}
}

func TestWriteDomainErrorIncludesRequestID(t *testing.T) {
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteDomainError(w, r, es.Violation("organization.suspend", "invalid_status_transition", "cannot suspend"))
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "invalid_status_transition" || body.Error.RequestID != "req-1" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRateLimiterFixedWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute, func(r *http.Request) string { return r.Header.Get("X-Caller") })
	rl.now = func() time.Time { return now }

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), rl.Middleware())

	call := func(caller string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Caller", caller)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if call("a") != http.StatusNoContent || call("a") != http.StatusNoContent {
		t.Fatalf("expected first two calls allowed")
	}
	if got := call("a"); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", got)
	}
	if got := call("b"); got != http.StatusNoContent {
		t.Fatalf("expected other caller allowed, got %d", got)
	}
	now = now.Add(time.Minute + time.Second)
	if got := call("a"); got != http.StatusNoContent {
		t.Fatalf("expected window reset, got %d", got)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	if got := ClientIP(req); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %s", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected forwarded client, got %s", got)
	}
}

func TestRequestIDReplacesUnusableHeader(t *testing.T) {
	var gotID, gotTenant string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestIDFromContext(r.Context())
		gotTenant = TenantFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	req.Header.Set(TenantIDHeader, " t-1 ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if gotID == "" || len(gotID) > maxRequestIDLen {
		t.Fatalf("expected a minted request id, got %q", gotID)
	}
	if rec.Header().Get(RequestIDHeader) != gotID {
		t.Fatalf("expected response header %q, got %q", gotID, rec.Header().Get(RequestIDHeader))
	}
	if gotTenant != "t-1" {
		t.Fatalf("expected tenant t-1, got %q", gotTenant)
	}
}

func TestRecoverWritesInternalError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), WithRequestID, WithRecover(logger), WithAccessLog(logger))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/organizations/o-1", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "internal" || body.Error.RequestID == "" {
		t.Fatalf("unexpected body: %+v", body)
	}
}
