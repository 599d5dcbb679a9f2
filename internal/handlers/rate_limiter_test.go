package handlers

import (
	"testing"
	"time"
)

func TestWindowLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newWindowLimiter(2, time.Minute, func() time.Time { return now })

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatalf("first two hits must pass")
	}
	if limiter.Allow("a") {
		t.Fatalf("third hit in window must be rejected")
	}
	if !limiter.Allow("b") {
		t.Fatalf("keys are independent")
	}

	now = now.Add(time.Minute)
	if !limiter.Allow("a") {
		t.Fatalf("window reset must allow again")
	}

	if newWindowLimiter(0, time.Minute, nil) != nil {
		t.Fatalf("zero limit disables the limiter")
	}
}
