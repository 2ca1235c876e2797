package config

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("OUTBOX_POLL_EVERY", "750ms")
	d, err := Duration("OUTBOX_POLL_EVERY", time.Second)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %s", d)
	}

	t.Setenv("OUTBOX_POLL_EVERY", "soon")
	if _, err := Duration("OUTBOX_POLL_EVERY", time.Second); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestIntFallbackAndValidation(t *testing.T) {
	n, err := Int("OUTBOX_MAX_RETRIES_UNSET", 3)
	if err != nil || n != 3 {
		t.Fatalf("expected fallback 3, got %d (err=%v)", n, err)
	}

	t.Setenv("OUTBOX_MAX_RETRIES", "-1")
	if _, err := Int("OUTBOX_MAX_RETRIES", 3); err == nil {
		t.Fatal("expected error for negative value")
	}
}

func TestBool(t *testing.T) {
	t.Setenv("REFSYNC_ENABLED", "off")
	if Bool("REFSYNC_ENABLED", true) {
		t.Fatal("expected false")
	}
	t.Setenv("REFSYNC_ENABLED", "maybe")
	if !Bool("REFSYNC_ENABLED", true) {
		t.Fatal("expected fallback true for unknown value")
	}
}

func TestPort(t *testing.T) {
	t.Setenv("PORT", "70000")
	if _, err := Port("PORT", "8080"); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}
