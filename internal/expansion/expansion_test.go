package expansion

import (
	"context"
	"testing"

	"github.com/lightning-goats/cl-hive-sub000/internal/kerrors"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

func TestNominateRejectsExistingChannel(t *testing.T) {
	m := &Manager{}
	_, err := m.Nominate(context.Background(), "round-1", hivewire.Nomination{
		Nominator:          "02aa",
		HasExistingChannel: true,
	})
	if err == nil {
		t.Fatal("expected rejection for a nominator with an existing channel to the target")
	}
	if !kerrors.IsKind(err, kerrors.InvalidPayload) {
		t.Fatalf("expected InvalidPayload, got %v", err)
	}
}

func TestLiquidityBudgetTakesTightestConstraint(t *testing.T) {
	// reserve leaves 900k, daily budget is 500k, per-channel cap is 100k.
	got := LiquidityBudget(1_000_000, 0.1, 500_000, 0.2)
	want := int64(100_000)
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestLiquidityBudgetNeverNegative(t *testing.T) {
	got := LiquidityBudget(0, 0.5, 100, 0.5)
	if got < 0 {
		t.Fatalf("expected non-negative budget, got %d", got)
	}
}

func TestScoreNominationWeightsSumToOne(t *testing.T) {
	got := ScoreNomination(1, 1, 1, 1)
	if got < 0.999 || got > 1.001 {
		t.Fatalf("expected weights to sum to 1, got %v", got)
	}
}

func TestWithinMarketShareCap(t *testing.T) {
	// member already has 100k of a 1,000,000-sat hive; adding 50k more
	// keeps them at 150k/1,050,000 ~= 14.3%, under a 20% cap.
	if !WithinMarketShareCap(100_000, 50_000, 1_000_000, 0.20) {
		t.Fatalf("expected the open to stay within the market-share cap")
	}
	// Adding 500k would push them to 600k/1,500,000 = 40%, over the cap.
	if WithinMarketShareCap(100_000, 500_000, 1_000_000, 0.20) {
		t.Fatalf("expected the open to exceed the market-share cap")
	}
}
