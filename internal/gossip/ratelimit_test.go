package gossip

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinBudgetThenBlocks(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Unix(1000, 0)

	for i := 0; i < 3; i++ {
		if !rl.Allow("A", "fee_report", 3, 60, now) {
			t.Fatalf("expected request %d to be allowed within budget", i)
		}
	}
	if rl.Allow("A", "fee_report", 3, 60, now) {
		t.Fatalf("expected 4th request to be rate limited")
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Unix(1000, 0)

	for i := 0; i < 2; i++ {
		rl.Allow("A", "fee_report", 2, 60, now)
	}
	if rl.Allow("A", "fee_report", 2, 60, now) {
		t.Fatalf("expected bucket to be empty")
	}

	later := now.Add(60 * time.Second)
	if !rl.Allow("A", "fee_report", 2, 60, later) {
		t.Fatalf("expected bucket to have refilled after a full window")
	}
}

func TestRateLimiterIsolatedPerSenderAndTopic(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Unix(1000, 0)

	rl.Allow("A", "fee_report", 1, 60, now)
	if !rl.Allow("B", "fee_report", 1, 60, now) {
		t.Fatalf("a different sender must have its own bucket")
	}
	if !rl.Allow("A", "route_probe", 1, 60, now) {
		t.Fatalf("a different topic must have its own bucket")
	}
}
