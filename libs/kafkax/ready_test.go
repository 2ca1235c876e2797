package kafkax

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestReadyCheckWithoutBrokers(t *testing.T) {
	if err := ReadyCheck(SplitBrokers(" , "))(context.Background()); err == nil {
		t.Fatalf("expected error for empty broker list")
	}
}

func TestReadyCheckReportsEveryBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := ReadyCheck([]string{"127.0.0.1:1", "127.0.0.1:2"})(ctx)
	if err == nil {
		t.Fatalf("expected unreachable brokers to fail")
	}
	for _, addr := range []string{"127.0.0.1:1", "127.0.0.1:2"} {
		if !strings.Contains(err.Error(), addr) {
			t.Fatalf("expected %s in %v", addr, err)
		}
	}
}
