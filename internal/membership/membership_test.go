package membership

import (
	"context"
	"testing"

	"github.com/lightning-goats/cl-hive-sub000/internal/config"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

func TestClamp01(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-1, 0}, {0, 0}, {0.5, 0.5}, {1, 1}, {2, 1},
	}
	for _, c := range cases {
		if got := clamp01(c.in); got != c.want {
			t.Fatalf("clamp01(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestVouchRejectsSelfVouch(t *testing.T) {
	m := &Manager{}
	err := m.Vouch(context.Background(), hivewire.PromotionVouch{
		RequestID: "r1", Target: "A", Voucher: "A", Timestamp: 1000,
	})
	if err == nil {
		t.Fatalf("expected an error when a candidate vouches for itself")
	}
}

func TestCheckLeechRatioSkipsZeroForwarded(t *testing.T) {
	m := &Manager{}
	cfg := config.Snapshot{LeechBanRatio: 2.0, LeechWindowDays: 7}
	err := m.CheckLeechRatio(context.Background(), "peer1", 0, 500, 1000, cfg)
	if err != nil {
		t.Fatalf("expected no error (and no db access) when forwarded is zero, got %v", err)
	}
}

func TestCheckLeechRatioSkipsBelowThreshold(t *testing.T) {
	m := &Manager{}
	cfg := config.Snapshot{LeechBanRatio: 2.0, LeechWindowDays: 7}
	err := m.CheckLeechRatio(context.Background(), "peer1", 1000, 500, 1000, cfg)
	if err != nil {
		t.Fatalf("expected no error (and no db access) when ratio is within threshold, got %v", err)
	}
}
