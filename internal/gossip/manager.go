// Package gossip implements the five signed report topics (peer events,
// peer reputation, fee intelligence, route probes, liquidity needs):
// identity binding, per-sender rate limiting, persistence, and outlier-
// resistant aggregation into confidence-tiered summaries (spec.md §4.7).
package gossip

import (
	"context"
	"time"

	"github.com/lightning-goats/cl-hive-sub000/internal/codec"
	"github.com/lightning-goats/cl-hive-sub000/internal/config"
	"github.com/lightning-goats/cl-hive-sub000/internal/gateway"
	"github.com/lightning-goats/cl-hive-sub000/internal/kerrors"
	"github.com/lightning-goats/cl-hive-sub000/internal/store"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// Manager ingests, persists, and aggregates gossip reports. Aggregation
// reads back through db rather than keeping a separate in-memory cache,
// so "rebuilt from disk at startup" holds trivially: there is no derived
// state that can diverge from the durable store between restarts.
type Manager struct {
	db      *store.Store
	gw      *gateway.Client
	selfKey string
	limiter *RateLimiter
}

// NewManager builds a gossip manager over db and gw, reporting as selfKey
// for self-weighting purposes.
func NewManager(db *store.Store, gw *gateway.Client, selfKey string) *Manager {
	return &Manager{db: db, gw: gw, selfKey: selfKey, limiter: NewRateLimiter()}
}

// bindIdentity rejects a report whose signed reporter field does not
// match the pubkey that actually transported it — gossip messages are
// only as trustworthy as their signer, and the transport sender must be
// that signer (spec.md §4.7).
func bindIdentity(reporter, transportSender string) error {
	if reporter != transportSender {
		return kerrors.New(kerrors.IdentityMismatch, "reporter does not match transport sender")
	}
	return nil
}

// gate applies the shared per-sender, per-topic rate limit and identity
// check every ingest path shares.
func (m *Manager) gate(topic, reporter, transportSender string, now int64, spec codec.RateLimitSpec) error {
	if err := bindIdentity(reporter, transportSender); err != nil {
		return err
	}
	if !m.limiter.Allow(reporter, topic, spec.Count, spec.WindowSeconds, time.Unix(now, 0)) {
		return kerrors.New(kerrors.RateLimited, "gossip rate limit exceeded for "+topic)
	}
	return nil
}

// IngestPeerEvent validates and persists a signed peer lifecycle report.
// Peer events share the PEER_AVAILABLE message type's rate-limit budget —
// both describe a peer's channel-lifecycle visibility to the reporter.
func (m *Manager) IngestPeerEvent(ctx context.Context, e hivewire.PeerEvent, transportSender string, now int64, cfg config.Snapshot) error {
	spec, _ := codec.RateLimitFor(hivewire.TypePeerAvailable)
	if err := m.gate("peer_event", e.Reporter, transportSender, now, spec); err != nil {
		return err
	}
	if err := m.gw.VerifySigner(ctx, peerEventSigningString(e), e.Signature, e.Reporter); err != nil {
		return err
	}
	return m.db.InsertPeerEvent(ctx, e, cfg.MaxPlannerLogRows)
}

// peerEventSigningString is the canonical signed shape for a PeerEvent
// record, distinct from the PEER_AVAILABLE message it shares a
// rate-limit budget with.
func peerEventSigningString(e hivewire.PeerEvent) string {
	return "hive:peer_event:" + e.Reporter + ":" + e.Subject + ":" + e.Kind
}

// IngestFeeReport validates and persists a signed fee-intelligence report.
func (m *Manager) IngestFeeReport(ctx context.Context, r hivewire.FeeIntelReport, transportSender string, now int64, cfg config.Snapshot) error {
	spec, _ := codec.RateLimitFor(hivewire.TypeFeeReport)
	if err := m.gate("fee_report", r.Reporter, transportSender, now, spec); err != nil {
		return err
	}
	signingString := codec.SigningStringFeeReport(hivewire.FeeReportPayload{
		Reporter: r.Reporter, Subject: r.Subject, BaseFeeMsat: r.BaseFeeMsat, FeePPM: r.FeePPM, Timestamp: r.Timestamp,
	})
	if err := m.gw.VerifySigner(ctx, signingString, r.Signature, r.Reporter); err != nil {
		return err
	}
	return m.db.InsertFeeReport(ctx, r, cfg.MaxPlannerLogRows)
}

// IngestRouteProbe validates and persists a signed route-probe report.
func (m *Manager) IngestRouteProbe(ctx context.Context, p hivewire.RouteProbe, transportSender string, now int64, cfg config.Snapshot) error {
	spec, _ := codec.RateLimitFor(hivewire.TypeRouteProbe)
	if err := m.gate("route_probe", p.Reporter, transportSender, now, spec); err != nil {
		return err
	}
	signingString := codec.SigningStringRouteProbe(hivewire.RouteProbePayload{
		Reporter: p.Reporter, Subject: p.Subject, Success: p.Success, LatencyMs: p.LatencyMs, CostPPM: p.CostPPM, Timestamp: p.Timestamp,
	})
	if err := m.gw.VerifySigner(ctx, signingString, p.Signature, p.Reporter); err != nil {
		return err
	}
	return m.db.InsertRouteProbe(ctx, p, cfg.MaxPlannerLogRows)
}

// IngestLiquidityNeed validates and persists a signed liquidity-need report.
func (m *Manager) IngestLiquidityNeed(ctx context.Context, n hivewire.LiquidityNeed, transportSender string, now int64, cfg config.Snapshot) error {
	spec, _ := codec.RateLimitFor(hivewire.TypeLiquidityNeed)
	if err := m.gate("liquidity_need", n.Reporter, transportSender, now, spec); err != nil {
		return err
	}
	signingString := codec.SigningStringLiquidityNeed(hivewire.LiquidityNeedPayload{
		Reporter: n.Reporter, Subject: n.Subject, Direction: n.Direction, Urgency: n.Urgency, Timestamp: n.Timestamp,
	})
	if err := m.gw.VerifySigner(ctx, signingString, n.Signature, n.Reporter); err != nil {
		return err
	}
	return m.db.InsertLiquidityNeed(ctx, n, cfg.MaxPlannerLogRows)
}

// IngestReputationReport validates and persists a signed peer-reputation
// report.
func (m *Manager) IngestReputationReport(ctx context.Context, r hivewire.ReputationReport, transportSender string, now int64, cfg config.Snapshot) error {
	spec, _ := codec.RateLimitFor(hivewire.TypePeerReputation)
	if err := m.gate("peer_reputation", r.Reporter, transportSender, now, spec); err != nil {
		return err
	}
	signingString := codec.SigningStringPeerReputation(hivewire.PeerReputationPayload{
		Reporter: r.Reporter, Subject: r.Subject, UptimePct: r.UptimePct, HTLCSuccessPct: r.HTLCSuccessPct,
		FeeStability: r.FeeStability, ForceCloses: r.ForceCloses, Warnings: r.Warnings, Timestamp: r.Timestamp,
	})
	if err := m.gw.VerifySigner(ctx, signingString, r.Signature, r.Reporter); err != nil {
		return err
	}
	return m.db.InsertReputationReport(ctx, r, cfg.MaxPlannerLogRows)
}

// ReputationAggregate is the outlier-filtered, confidence-tiered summary
// of a subject's recent reputation reports.
type ReputationAggregate struct {
	Subject          string
	Score            float64
	ReporterCount    int
	ConfidenceTier   string
	ForceCloses      int
	DistinctWarnings int
}

// AggregateReputation folds every recent report on subject into one
// score, dropping statistical outliers (spec.md §4.7): median-deviation
// rejection requires at least 3 reports and never drops the local node's
// own report; the local report counts double in the final mean.
func (m *Manager) AggregateReputation(ctx context.Context, subject string, sinceTs int64, cfg config.Snapshot) (ReputationAggregate, error) {
	reports, err := m.db.ListRecentReputationReports(ctx, subject, sinceTs)
	if err != nil {
		return ReputationAggregate{}, err
	}
	if len(reports) == 0 {
		return ReputationAggregate{Subject: subject, ConfidenceTier: "low"}, nil
	}

	selfIndex := -1
	scores := make([]float64, len(reports))
	warnings := make(map[string]bool)
	var forceCloses int
	for i, r := range reports {
		scores[i] = ReputationScore(r.UptimePct, r.HTLCSuccessPct, r.FeeStability, r.ForceCloses, len(r.Warnings))
		if r.Reporter == m.selfKey {
			selfIndex = i
		}
		forceCloses += r.ForceCloses
		for _, w := range r.Warnings {
			warnings[w] = true
		}
	}

	kept := rejectOutliers(scores, selfIndex, cfg.OutlierDeviationThreshold)
	finalScore := weightedMean(kept, indexOfSelfAmongKept(scores, selfIndex, kept))

	return ReputationAggregate{
		Subject:          subject,
		Score:            finalScore,
		ReporterCount:    len(reports),
		ConfidenceTier:   ConfidenceTier(len(reports), cfg.MinReportersForConfidence),
		ForceCloses:      forceCloses,
		DistinctWarnings: len(warnings),
	}, nil
}

// indexOfSelfAmongKept recomputes the self index within the
// outlier-filtered slice, since rejection may have removed earlier
// entries and shifted positions. The self report is never rejected, so
// it is always present in kept when selfIndex >= 0.
func indexOfSelfAmongKept(original []float64, selfIndex int, kept []float64) int {
	if selfIndex < 0 {
		return -1
	}
	selfVal := original[selfIndex]
	for i, v := range kept {
		if v == selfVal {
			return i
		}
	}
	return -1
}

// FeeAggregate summarizes recent fee-intelligence reports for a subject.
type FeeAggregate struct {
	Subject        string
	BaseFeeMsat    float64
	FeePPM         float64
	ReporterCount  int
	ConfidenceTier string
}

// AggregateFees folds recent fee reports on subject with the same
// outlier-rejection and self-weighting rule as reputation.
func (m *Manager) AggregateFees(ctx context.Context, subject string, sinceTs int64, cfg config.Snapshot) (FeeAggregate, error) {
	reports, err := m.db.ListRecentFeeReports(ctx, subject, sinceTs)
	if err != nil {
		return FeeAggregate{}, err
	}
	if len(reports) == 0 {
		return FeeAggregate{Subject: subject, ConfidenceTier: "low"}, nil
	}

	base := make([]float64, len(reports))
	ppm := make([]float64, len(reports))
	selfIndex := -1
	for i, r := range reports {
		base[i] = float64(r.BaseFeeMsat)
		ppm[i] = float64(r.FeePPM)
		if r.Reporter == m.selfKey {
			selfIndex = i
		}
	}

	keptBase := rejectOutliers(base, selfIndex, cfg.OutlierDeviationThreshold)
	keptPPM := rejectOutliers(ppm, selfIndex, cfg.OutlierDeviationThreshold)

	return FeeAggregate{
		Subject:        subject,
		BaseFeeMsat:    weightedMean(keptBase, indexOfSelfAmongKept(base, selfIndex, keptBase)),
		FeePPM:         weightedMean(keptPPM, indexOfSelfAmongKept(ppm, selfIndex, keptPPM)),
		ReporterCount:  len(reports),
		ConfidenceTier: ConfidenceTier(len(reports), cfg.MinReportersForConfidence),
	}, nil
}

// RouteQuality summarizes recent route-probe reports for a subject.
type RouteQuality struct {
	Subject        string
	SuccessRate    float64
	AvgLatencyMs   float64
	AvgCostPPM     float64
	ReporterCount  int
	ConfidenceTier string
}

// AggregateRouteProbes folds recent route probes on subject.
func (m *Manager) AggregateRouteProbes(ctx context.Context, subject string, sinceTs int64, cfg config.Snapshot) (RouteQuality, error) {
	probes, err := m.db.ListRecentRouteProbes(ctx, subject, sinceTs)
	if err != nil {
		return RouteQuality{}, err
	}
	if len(probes) == 0 {
		return RouteQuality{Subject: subject, ConfidenceTier: "low"}, nil
	}

	var successes int
	latency := make([]float64, len(probes))
	cost := make([]float64, len(probes))
	selfIndex := -1
	for i, p := range probes {
		if p.Success {
			successes++
		}
		latency[i] = float64(p.LatencyMs)
		cost[i] = p.CostPPM
		if p.Reporter == m.selfKey {
			selfIndex = i
		}
	}

	keptLatency := rejectOutliers(latency, selfIndex, cfg.OutlierDeviationThreshold)
	keptCost := rejectOutliers(cost, selfIndex, cfg.OutlierDeviationThreshold)

	return RouteQuality{
		Subject:        subject,
		SuccessRate:    float64(successes) / float64(len(probes)),
		AvgLatencyMs:   weightedMean(keptLatency, indexOfSelfAmongKept(latency, selfIndex, keptLatency)),
		AvgCostPPM:     weightedMean(keptCost, indexOfSelfAmongKept(cost, selfIndex, keptCost)),
		ReporterCount:  len(probes),
		ConfidenceTier: ConfidenceTier(len(probes), cfg.MinReportersForConfidence),
	}, nil
}

// LiquidityPressure summarizes recent liquidity-need reports for a subject.
type LiquidityPressure struct {
	Subject        string
	Direction      string
	Urgency        float64
	ReporterCount  int
	ConfidenceTier string
}

// AggregateLiquidityNeeds folds recent liquidity-need reports, taking the
// direction of the highest-weighted urgency report as the consensus
// direction — a single blended direction would be meaningless.
func (m *Manager) AggregateLiquidityNeeds(ctx context.Context, subject string, sinceTs int64, cfg config.Snapshot) (LiquidityPressure, error) {
	needs, err := m.db.ListRecentLiquidityNeeds(ctx, subject, sinceTs)
	if err != nil {
		return LiquidityPressure{}, err
	}
	if len(needs) == 0 {
		return LiquidityPressure{Subject: subject, ConfidenceTier: "low"}, nil
	}

	urgency := make([]float64, len(needs))
	selfIndex := -1
	for i, n := range needs {
		urgency[i] = n.Urgency
		if n.Reporter == m.selfKey {
			selfIndex = i
		}
	}
	kept := rejectOutliers(urgency, selfIndex, cfg.OutlierDeviationThreshold)
	blended := weightedMean(kept, indexOfSelfAmongKept(urgency, selfIndex, kept))

	var topDirection string
	var topUrgency float64
	first := true
	for _, n := range needs {
		if first || n.Urgency > topUrgency {
			topDirection, topUrgency = n.Direction, n.Urgency
			first = false
		}
	}

	return LiquidityPressure{
		Subject:        subject,
		Direction:      topDirection,
		Urgency:        blended,
		ReporterCount:  len(needs),
		ConfidenceTier: ConfidenceTier(len(needs), cfg.MinReportersForConfidence),
	}, nil
}

// Prune deletes gossip rows older than cutoffTs across every topic — the
// scheduler's periodic age-based sweep, independent of the row-cap
// pruning each Insert* call already performs.
func (m *Manager) Prune(ctx context.Context, cutoffTs int64) error {
	return m.db.PruneStaleGossip(ctx, cutoffTs)
}

// CleanupRateLimits drops idle sender buckets, bounding the limiter's
// memory footprint between scheduler cycles.
func (m *Manager) CleanupRateLimits(idle time.Duration, now time.Time) {
	m.limiter.CleanupIdle(idle, now)
}
