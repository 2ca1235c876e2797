package refs

import (
	"encoding/json"
	"testing"
)

func TestOrganizationValidator(t *testing.T) {
	v, err := NewOrganizationValidator()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	good := json.RawMessage(`{"id":"org-1","tenant_id":"t-1","version":3,"is_deleted":false,
		"updated_at":"2026-01-02T03:04:05Z","name":"Acme","slug":"acme","status":"suspended","extra":1}`)
	it, err := v.Parse(good)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if it.Fields["status"] != "suspended" || it.Fields["extra"] != float64(1) {
		t.Fatalf("unexpected fields %v", it.Fields)
	}

	for _, raw := range []string{
		`{"id":"org-1","tenant_id":"t-1","version":3,"updated_at":"2026-01-02T03:04:05Z","name":"Acme"}`,
		`{"id":"org-1","tenant_id":"t-1","version":3,"updated_at":"2026-01-02T03:04:05Z","name":"Acme","status":"archived"}`,
		`{"id":"org-1","tenant_id":"t-1","version":0,"updated_at":"2026-01-02T03:04:05Z","name":"Acme","status":"active"}`,
	} {
		if _, err := v.Parse(json.RawMessage(raw)); err == nil {
			t.Fatalf("expected %s to be rejected", raw)
		}
	}
}
