package kernel

import (
	"context"
	"log"

	"github.com/lightning-goats/cl-hive-sub000/internal/store"
)

// Recommendation is one decision point's advisor-suggested outcome,
// compared against what the autonomous path would have executed.
// Adapted from the teacher's shadow-mode production/experimental diff:
// here the "production" path is the advisor's recorded recommendation
// and the "shadow" path is the autonomous decision that would have run
// under ModeAutonomous, rather than two heuristic implementations.
type Recommendation struct {
	Component    string
	Decision     string
	Recommended  string
	Autonomous   string
	Detail       map[string]any
}

// DivergenceEvaluator compares advisor recommendations against what the
// kernel's autonomous logic independently computed for the same
// decision, logging and persisting every mismatch for operator review.
type DivergenceEvaluator struct {
	db         *store.Store
	maxLogRows int64
}

// NewDivergenceEvaluator builds an evaluator writing to db's planner log.
func NewDivergenceEvaluator(db *store.Store, maxLogRows int64) *DivergenceEvaluator {
	return &DivergenceEvaluator{db: db, maxLogRows: maxLogRows}
}

// Evaluate records rec and, if the advisor and autonomous outcomes
// diverge, logs it distinctly so a governance-mode review can see where
// the advisor's judgment and the rule-computed decision part ways.
func (d *DivergenceEvaluator) Evaluate(ctx context.Context, rec Recommendation, now int64) error {
	diverged := rec.Recommended != rec.Autonomous
	message := "advisor and autonomous decisions agree"
	if diverged {
		message = "DIVERGENCE: advisor and autonomous decisions differ"
		log.Printf("[Kernel] %s on %s: recommended=%q autonomous=%q",
			message, rec.Component, rec.Recommended, rec.Autonomous)
	}

	detail := map[string]any{
		"decision":    rec.Decision,
		"recommended": rec.Recommended,
		"autonomous":  rec.Autonomous,
		"diverged":    diverged,
		"extra":       rec.Detail,
	}
	return d.db.AppendPlannerLog(ctx, rec.Component, message, detail, now, d.maxLogRows)
}
