package events

import (
	"testing"
	"time"
)

func TestEnvelopeRoundTripToleratesUnknownFields(t *testing.T) {
	body, err := New("e-1", "organization.renamed.v1", "1.0.0", "t-1", "o-1", 4, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), map[string]any{"id": "o-1"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	env, err := Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.StreamVersion != 4 || string(env.Data) != `{"id":"o-1"}` {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	withExtra := []byte(`{"event_id":"e-2","stream_id":"o-1","data":{"id":"o-1"},"added_in_1_1":true}`)
	if _, err := Decode(withExtra); err != nil {
		t.Fatalf("expected unknown fields tolerated, got %v", err)
	}
	if _, err := Decode([]byte(`{"event_id":"e-3"}`)); err == nil {
		t.Fatalf("expected error for envelope without data")
	}
}
