package gossip

import "sort"

// median returns the middle value of vals (average of the two middle
// values for an even-length slice). vals is not mutated.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// rejectOutliers drops any value deviating from the median by more than
// threshold (as a fraction of the median's magnitude), except the self
// report at selfIndex which is always kept (spec.md §4.7). Outlier
// rejection only applies once at least 3 reports exist; below that every
// report is kept.
func rejectOutliers(vals []float64, selfIndex int, threshold float64) []float64 {
	if len(vals) < 3 {
		return vals
	}
	m := median(vals)
	kept := make([]float64, 0, len(vals))
	for i, v := range vals {
		if i == selfIndex {
			kept = append(kept, v)
			continue
		}
		base := m
		if base == 0 {
			base = 1
		}
		deviation := (v - m) / base
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation <= threshold {
			kept = append(kept, v)
		}
	}
	return kept
}

// ConfidenceTier classifies an aggregation by how many distinct reporters
// contributed: high at minForHigh or more, medium at exactly 2, low at 1.
func ConfidenceTier(reporterCount, minForHigh int) string {
	switch {
	case reporterCount >= minForHigh:
		return "high"
	case reporterCount == 2:
		return "medium"
	default:
		return "low"
	}
}

// weightedMean folds self-weighting (the local node's own observation
// counted 2×) into a simple weighted average.
func weightedMean(vals []float64, selfIndex int) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum, weight float64
	for i, v := range vals {
		w := 1.0
		if i == selfIndex {
			w = 2.0
		}
		sum += v * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

// ReputationScore computes the 0-100 weighted-sum reputation score
// (spec.md §4.7): uptime·30 + HTLC_success·30 + fee_stability·20 −
// min(20, 5·force_closes) − min(10, 2·#distinct_warnings). uptimePct,
// htlcSuccessPct, and feeStability are each expected in [0,1].
func ReputationScore(uptimePct, htlcSuccessPct, feeStability float64, forceCloses, distinctWarnings int) float64 {
	score := uptimePct*30 + htlcSuccessPct*30 + feeStability*20
	forceClosePenalty := 5.0 * float64(forceCloses)
	if forceClosePenalty > 20 {
		forceClosePenalty = 20
	}
	warningPenalty := 2.0 * float64(distinctWarnings)
	if warningPenalty > 10 {
		warningPenalty = 10
	}
	score -= forceClosePenalty + warningPenalty
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Expansion quality-score component weights (spec.md §4.6, §4.7): a
// distinct 0-1 weighted sum from the settlement fair-share weights,
// intentionally not collapsed with them (spec.md §9).
const (
	qualityWeightReliability   = 0.35
	qualityWeightProfitability = 0.25
	qualityWeightRouting       = 0.25
	qualityWeightConsistency   = 0.15
)

// QualityScore computes the 0-1 expansion-candidate quality score from
// normalized component observations.
func QualityScore(reliability, profitability, routing, consistency float64) float64 {
	return qualityWeightReliability*reliability +
		qualityWeightProfitability*profitability +
		qualityWeightRouting*routing +
		qualityWeightConsistency*consistency
}
