package kafkax

import (
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestParseTopic(t *testing.T) {
	topic, err := ParseTopic("organization.renamed.v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if topic.Domain != "organization" || topic.Event != "renamed" || topic.Major != 1 {
		t.Fatalf("unexpected topic: %+v", topic)
	}
	if topic.String() != "organization.renamed.v1" {
		t.Fatalf("expected round trip, got %s", topic.String())
	}

	topic, err = ParseTopic("property.owner.changed.v12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if topic.Event != "owner.changed" || topic.Major != 12 {
		t.Fatalf("unexpected topic: %+v", topic)
	}

	for _, bad := range []string{"", "organization", "organization.v1", "organization.renamed.1", "organization.renamed.vx", "organization.renamed."} {
		if _, err := ParseTopic(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestVersionGate(t *testing.T) {
	gate, err := NewVersionGate("^1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v1 := Topic{Domain: "organization", Event: "renamed", Major: 1}

	for _, ok := range []string{"", "1", "1.0.0", "1.4.2"} {
		if err := gate.Check(v1, ok); err != nil {
			t.Fatalf("expected %q accepted, got %v", ok, err)
		}
	}
	if err := gate.Check(v1, "2.0.0"); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion for mismatched major, got %v", err)
	}
	v2 := Topic{Domain: "organization", Event: "renamed", Major: 2}
	if err := gate.Check(v2, ""); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion for v2 topic, got %v", err)
	}
	if err := gate.Check(v1, "garbage"); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion for garbage, got %v", err)
	}
}

func TestEventMetaHeadersRoundTrip(t *testing.T) {
	meta := EventMeta{EventID: "e-1", EventType: "organization.renamed.v1", SchemaVersion: "1.0.0"}
	msg := kafka.Message{Topic: "organization.renamed.v1", Headers: meta.Headers()}
	got := ExtractEventMeta(msg)
	if got != meta {
		t.Fatalf("expected %+v, got %+v", meta, got)
	}
	if len(meta.Headers()) != 3 {
		t.Fatalf("expected empty tenant header to be skipped, got %d headers", len(meta.Headers()))
	}
}
