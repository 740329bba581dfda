package store

import (
	"context"
	"encoding/json"

	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// InsertPeerEvent appends a signed peer lifecycle record and prunes the
// table back to MAX_PLANNER_LOG_ROWS-scale retention.
func (s *Store) InsertPeerEvent(ctx context.Context, e hivewire.PeerEvent, maxRows int) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO peer_events (reporter, subject, kind, timestamp, detail, signature) VALUES ($1,$2,$3,$4,$5,$6)`,
		e.Reporter, e.Subject, e.Kind, e.Timestamp, detail, e.Signature)
	if err != nil {
		return err
	}
	return s.pruneToRowCap(ctx, "peer_events", maxRows)
}

// ListRecentPeerEvents returns events for subject newer than sinceTs,
// newest first.
func (s *Store) ListRecentPeerEvents(ctx context.Context, subject string, sinceTs int64) ([]hivewire.PeerEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT reporter, subject, kind, timestamp, detail, signature
		 FROM peer_events WHERE subject = $1 AND timestamp >= $2 ORDER BY timestamp DESC`,
		subject, sinceTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []hivewire.PeerEvent
	for rows.Next() {
		var e hivewire.PeerEvent
		var detail []byte
		if err := rows.Scan(&e.Reporter, &e.Subject, &e.Kind, &e.Timestamp, &detail, &e.Signature); err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertFeeReport appends a signed fee-intelligence observation.
func (s *Store) InsertFeeReport(ctx context.Context, r hivewire.FeeIntelReport, maxRows int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fee_intelligence (reporter, subject, base_fee_msat, fee_ppm, timestamp, signature) VALUES ($1,$2,$3,$4,$5,$6)`,
		r.Reporter, r.Subject, r.BaseFeeMsat, r.FeePPM, r.Timestamp, r.Signature)
	if err != nil {
		return err
	}
	return s.pruneToRowCap(ctx, "fee_intelligence", maxRows)
}

// ListRecentFeeReports returns fee reports for subject newer than sinceTs.
func (s *Store) ListRecentFeeReports(ctx context.Context, subject string, sinceTs int64) ([]hivewire.FeeIntelReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT reporter, subject, base_fee_msat, fee_ppm, timestamp, signature
		 FROM fee_intelligence WHERE subject = $1 AND timestamp >= $2 ORDER BY timestamp DESC`,
		subject, sinceTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []hivewire.FeeIntelReport
	for rows.Next() {
		var r hivewire.FeeIntelReport
		if err := rows.Scan(&r.Reporter, &r.Subject, &r.BaseFeeMsat, &r.FeePPM, &r.Timestamp, &r.Signature); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// InsertRouteProbe appends a signed route-quality observation.
func (s *Store) InsertRouteProbe(ctx context.Context, p hivewire.RouteProbe, maxRows int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO route_probes (reporter, subject, success, latency_ms, cost_ppm, timestamp, signature) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.Reporter, p.Subject, p.Success, p.LatencyMs, p.CostPPM, p.Timestamp, p.Signature)
	if err != nil {
		return err
	}
	return s.pruneToRowCap(ctx, "route_probes", maxRows)
}

// ListRecentRouteProbes returns probes for subject newer than sinceTs.
func (s *Store) ListRecentRouteProbes(ctx context.Context, subject string, sinceTs int64) ([]hivewire.RouteProbe, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT reporter, subject, success, latency_ms, cost_ppm, timestamp, signature
		 FROM route_probes WHERE subject = $1 AND timestamp >= $2 ORDER BY timestamp DESC`,
		subject, sinceTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var probes []hivewire.RouteProbe
	for rows.Next() {
		var p hivewire.RouteProbe
		if err := rows.Scan(&p.Reporter, &p.Subject, &p.Success, &p.LatencyMs, &p.CostPPM, &p.Timestamp, &p.Signature); err != nil {
			return nil, err
		}
		probes = append(probes, p)
	}
	return probes, rows.Err()
}

// InsertLiquidityNeed appends a signed directional-imbalance report.
func (s *Store) InsertLiquidityNeed(ctx context.Context, n hivewire.LiquidityNeed, maxRows int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO liquidity_needs (reporter, subject, direction, urgency, timestamp, signature) VALUES ($1,$2,$3,$4,$5,$6)`,
		n.Reporter, n.Subject, n.Direction, n.Urgency, n.Timestamp, n.Signature)
	if err != nil {
		return err
	}
	return s.pruneToRowCap(ctx, "liquidity_needs", maxRows)
}

// ListRecentLiquidityNeeds returns need reports for subject newer than sinceTs.
func (s *Store) ListRecentLiquidityNeeds(ctx context.Context, subject string, sinceTs int64) ([]hivewire.LiquidityNeed, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT reporter, subject, direction, urgency, timestamp, signature
		 FROM liquidity_needs WHERE subject = $1 AND timestamp >= $2 ORDER BY timestamp DESC`,
		subject, sinceTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var needs []hivewire.LiquidityNeed
	for rows.Next() {
		var n hivewire.LiquidityNeed
		if err := rows.Scan(&n.Reporter, &n.Subject, &n.Direction, &n.Urgency, &n.Timestamp, &n.Signature); err != nil {
			return nil, err
		}
		needs = append(needs, n)
	}
	return needs, rows.Err()
}

// InsertReputationReport appends a signed peer-quality observation.
func (s *Store) InsertReputationReport(ctx context.Context, r hivewire.ReputationReport, maxRows int) error {
	warnings, err := json.Marshal(r.Warnings)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO peer_reputation (reporter, subject, uptime_pct, htlc_success_pct, fee_stability, force_closes, warnings, timestamp, signature)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.Reporter, r.Subject, r.UptimePct, r.HTLCSuccessPct, r.FeeStability, r.ForceCloses, warnings, r.Timestamp, r.Signature)
	if err != nil {
		return err
	}
	return s.pruneToRowCap(ctx, "peer_reputation", maxRows)
}

// ListRecentReputationReports returns reputation reports for subject
// newer than sinceTs.
func (s *Store) ListRecentReputationReports(ctx context.Context, subject string, sinceTs int64) ([]hivewire.ReputationReport, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT reporter, subject, uptime_pct, htlc_success_pct, fee_stability, force_closes, warnings, timestamp, signature
		 FROM peer_reputation WHERE subject = $1 AND timestamp >= $2 ORDER BY timestamp DESC`,
		subject, sinceTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []hivewire.ReputationReport
	for rows.Next() {
		var r hivewire.ReputationReport
		var warnings []byte
		if err := rows.Scan(&r.Reporter, &r.Subject, &r.UptimePct, &r.HTLCSuccessPct, &r.FeeStability,
			&r.ForceCloses, &warnings, &r.Timestamp, &r.Signature); err != nil {
			return nil, err
		}
		if len(warnings) > 0 {
			if err := json.Unmarshal(warnings, &r.Warnings); err != nil {
				return nil, err
			}
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// PruneStaleGossip deletes rows older than cutoffTs across every gossip
// report table, the age-based half of spec.md §4.7's pruning policy (the
// row-cap half is enforced per-insert via pruneToRowCap).
func (s *Store) PruneStaleGossip(ctx context.Context, cutoffTs int64) error {
	tables := []string{"peer_events", "fee_intelligence", "route_probes", "liquidity_needs", "peer_reputation"}
	for _, t := range tables {
		if _, err := s.pool.Exec(ctx, "DELETE FROM "+t+" WHERE timestamp < $1", cutoffTs); err != nil {
			return err
		}
	}
	return nil
}
