package refsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer svc-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"A"},{"id":"B"}]`))
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPSourceConfig{
		URL:   srv.URL,
		Token: func(context.Context) (string, error) { return "svc-token", nil },
	})
	items, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 2 || string(items[0]) != `{"id":"A"}` {
		t.Fatalf("unexpected items: %s", items)
	}

	noAuth := NewHTTPSource(HTTPSourceConfig{URL: srv.URL, RequestsPerSecond: 10})
	if _, err := noAuth.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error on 401")
	}
}
