package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowRefills(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if !l.Allow("bcra", 2, 1) {
			t.Fatalf("token %d should be available", i)
		}
	}
	if l.Allow("bcra", 2, 1) {
		t.Fatalf("bucket should be empty")
	}
	if !l.Allow("bna", 2, 1) {
		t.Fatalf("keys are independent")
	}
	now = now.Add(time.Second)
	if !l.Allow("bcra", 2, 1) {
		t.Fatalf("one token refilled after a second")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New()
	if err := l.Wait(context.Background(), "h", 1, 0.001); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx, "h", 1, 0.001); err == nil {
		t.Fatalf("expected context error while throttled")
	}
}
