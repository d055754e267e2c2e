package http

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two attempts rejected")
	}
	if rl.Allow("a") {
		t.Fatal("third attempt allowed")
	}
	if !rl.Allow("b") {
		t.Fatal("keys are not independent")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("a") {
		t.Fatal("attempt after window rejected")
	}

	now = now.Add(2 * time.Minute)
	rl.Prune()
	if len(rl.history) != 0 {
		t.Fatalf("history not pruned: %v", rl.history)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	var nilLimiter *RateLimiter
	if !nilLimiter.Allow("x") {
		t.Fatal("nil limiter rejected")
	}
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !rl.Allow("x") {
			t.Fatal("zero limit should disable limiting")
		}
	}
}
