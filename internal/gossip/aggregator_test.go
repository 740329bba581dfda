package gossip

import "testing"

func TestMedianOddEven(t *testing.T) {
	if got := median([]float64{1, 3, 2}); got != 2 {
		t.Fatalf("odd median: got %v, want 2", got)
	}
	if got := median([]float64{1, 2, 3, 4}); got != 2.5 {
		t.Fatalf("even median: got %v, want 2.5", got)
	}
}

func TestRejectOutliersKeepsSelf(t *testing.T) {
	vals := []float64{50, 51, 49, 1000}
	selfIndex := 3 // the outlier is our own report
	kept := rejectOutliers(vals, selfIndex, 0.2)

	found := false
	for _, v := range kept {
		if v == 1000 {
			found = true
		}
	}
	if !found {
		t.Fatalf("self report must never be rejected, kept=%v", kept)
	}
}

func TestRejectOutliersDropsFarValue(t *testing.T) {
	vals := []float64{50, 51, 49, 1000}
	kept := rejectOutliers(vals, -1, 0.2)
	for _, v := range kept {
		if v == 1000 {
			t.Fatalf("expected the far outlier to be dropped, kept=%v", kept)
		}
	}
}

func TestRejectOutliersNoopBelowThreeReports(t *testing.T) {
	vals := []float64{1, 1000}
	kept := rejectOutliers(vals, -1, 0.2)
	if len(kept) != 2 {
		t.Fatalf("expected no rejection below 3 reports, kept=%v", kept)
	}
}

func TestConfidenceTier(t *testing.T) {
	cases := []struct {
		count int
		want  string
	}{
		{1, "low"},
		{2, "medium"},
		{3, "high"},
		{10, "high"},
	}
	for _, c := range cases {
		if got := ConfidenceTier(c.count, 3); got != c.want {
			t.Fatalf("ConfidenceTier(%d, 3) = %q, want %q", c.count, got, c.want)
		}
	}
}

func TestWeightedMeanDoubleCountsSelf(t *testing.T) {
	// self=10 counted twice, peer=0 counted once: (10*2 + 0*1) / 3 = 6.67
	got := weightedMean([]float64{0, 10}, 1)
	want := 20.0 / 3.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReputationScoreClampedAndPenalized(t *testing.T) {
	// Zero inputs with heavy penalties should clamp at 0, not go negative.
	got := ReputationScore(0, 0, 0, 10, 10)
	if got != 0 {
		t.Fatalf("expected clamp to 0, got %v", got)
	}

	// No penalties, perfect inputs: 30+30+20 = 80.
	got = ReputationScore(1, 1, 1, 0, 0)
	if got != 80 {
		t.Fatalf("expected 80, got %v", got)
	}
}

func TestQualityScoreWeightsSumToOne(t *testing.T) {
	got := QualityScore(1, 1, 1, 1)
	if got < 0.999 || got > 1.001 {
		t.Fatalf("expected weights to sum to 1, got %v", got)
	}
}
