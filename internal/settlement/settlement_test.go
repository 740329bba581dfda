package settlement

import (
	"testing"
	"time"
)

func TestPeriodForTimeAndBoundsRoundTrip(t *testing.T) {
	jan15, err := time.Parse(time.RFC3339, "2026-01-15T12:00:00Z")
	if err != nil {
		t.Fatalf("bad test fixture time: %v", err)
	}
	period := PeriodForTime(jan15)

	start, end, err := PeriodBounds(period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start >= jan15.Unix() || jan15.Unix() >= end {
		t.Fatalf("period bounds [%d,%d) do not contain %d", start, end, jan15.Unix())
	}
	if end-start != 7*24*3600 {
		t.Fatalf("expected a 7-day period, got %d seconds", end-start)
	}
}

func TestFairShareSumsToOne(t *testing.T) {
	members := []MemberStanding{
		{Pubkey: "A", CapacitySats: 1_000_000, ForwardedSats: 500_000, UptimePct: 1.0},
		{Pubkey: "B", CapacitySats: 500_000, ForwardedSats: 100_000, UptimePct: 0.8},
		{Pubkey: "C", CapacitySats: 0, ForwardedSats: 0, UptimePct: 0.2},
	}
	shares := FairShare(members)

	var sum float64
	for _, s := range shares {
		sum += s
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("expected shares to sum to 1, got %v (%v)", sum, shares)
	}
	if shares["A"] <= shares["C"] {
		t.Fatalf("expected the high-capacity, high-forwarding member to out-earn the idle one")
	}
}

func TestFairShareEmptyMembers(t *testing.T) {
	shares := FairShare(nil)
	if len(shares) != 0 {
		t.Fatalf("expected no shares for an empty member set, got %v", shares)
	}
}

func TestDataHashDeterministicAndOrderIndependent(t *testing.T) {
	a := map[string]int64{"A": 100, "B": 200}
	b := map[string]int64{"B": 200, "A": 100}

	if DataHash("2026-W03", a) != DataHash("2026-W03", b) {
		t.Fatalf("expected map iteration order not to affect the hash")
	}
}

func TestDataHashChangesWithPayout(t *testing.T) {
	a := map[string]int64{"A": 100}
	b := map[string]int64{"A": 101}
	if DataHash("2026-W03", a) == DataHash("2026-W03", b) {
		t.Fatalf("expected differing payouts to produce differing hashes")
	}
}

func TestPayoutsNeverExceedsPool(t *testing.T) {
	members := []MemberStanding{
		{Pubkey: "A", CapacitySats: 1_000_000, ForwardedSats: 500_000, UptimePct: 1.0},
		{Pubkey: "B", CapacitySats: 500_000, ForwardedSats: 100_000, UptimePct: 0.8},
		{Pubkey: "C", CapacitySats: 0, ForwardedSats: 0, UptimePct: 0.2},
	}
	const pool = int64(987_654)
	payouts := Payouts(members, pool)

	var sum int64
	for _, amt := range payouts {
		if amt < 0 {
			t.Fatalf("expected no negative payout, got %v", payouts)
		}
		sum += amt
	}
	if sum > pool {
		t.Fatalf("floor-divided payouts summed to %d, exceeding pool %d", sum, pool)
	}
}
