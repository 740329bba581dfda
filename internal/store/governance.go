package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// SavePromotionRequest inserts a candidate's signed request.
func (s *Store) SavePromotionRequest(ctx context.Context, r hivewire.PromotionRequest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO promotion_requests (request_id, candidate, created_at, signature) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (request_id) DO NOTHING`,
		r.RequestID, r.Candidate, r.CreatedAt, r.Signature)
	return err
}

// GetPromotionRequest looks up a request by id.
func (s *Store) GetPromotionRequest(ctx context.Context, requestID string) (hivewire.PromotionRequest, bool, error) {
	var r hivewire.PromotionRequest
	err := s.pool.QueryRow(ctx,
		"SELECT request_id, candidate, created_at, signature FROM promotion_requests WHERE request_id = $1", requestID,
	).Scan(&r.RequestID, &r.Candidate, &r.CreatedAt, &r.Signature)
	if errors.Is(err, pgx.ErrNoRows) {
		return hivewire.PromotionRequest{}, false, nil
	}
	return r, err == nil, err
}

// InsertVouch records a member's endorsement of a promotion request.
func (s *Store) InsertVouch(ctx context.Context, v hivewire.PromotionVouch) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO promotion_vouches (request_id, target, voucher, timestamp, signature) VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (request_id, voucher) DO NOTHING`,
		v.RequestID, v.Target, v.Voucher, v.Timestamp, v.Signature)
	return err
}

// CountVouches returns the distinct vouch count for a request.
func (s *Store) CountVouches(ctx context.Context, requestID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM promotion_vouches WHERE request_id = $1", requestID).Scan(&n)
	return n, err
}

// ListVouches returns every vouch recorded for a request.
func (s *Store) ListVouches(ctx context.Context, requestID string) ([]hivewire.PromotionVouch, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT request_id, target, voucher, timestamp, signature FROM promotion_vouches WHERE request_id = $1", requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vouches []hivewire.PromotionVouch
	for rows.Next() {
		var v hivewire.PromotionVouch
		if err := rows.Scan(&v.RequestID, &v.Target, &v.Voucher, &v.Timestamp, &v.Signature); err != nil {
			return nil, err
		}
		vouches = append(vouches, v)
	}
	return vouches, rows.Err()
}

// SaveBanProposal inserts a member's signed ban proposal.
func (s *Store) SaveBanProposal(ctx context.Context, p hivewire.BanProposal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ban_proposals (proposal_id, proposer, target, reason, expires_at, created_at, status, signature)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (proposal_id) DO NOTHING`,
		p.ProposalID, p.Proposer, p.Target, p.Reason, p.ExpiresAt, p.CreatedAt, p.Status, p.Signature)
	return err
}

// UpdateBanProposalStatus transitions a ban proposal's status.
func (s *Store) UpdateBanProposalStatus(ctx context.Context, proposalID, status string) error {
	_, err := s.pool.Exec(ctx, "UPDATE ban_proposals SET status = $1 WHERE proposal_id = $2", status, proposalID)
	return err
}

// InsertBanVote records a member's signed ballot.
func (s *Store) InsertBanVote(ctx context.Context, v hivewire.BanVote) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ban_votes (proposal_id, voter, approve, timestamp, signature) VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (proposal_id, voter) DO NOTHING`,
		v.ProposalID, v.Voter, v.Approve, v.Timestamp, v.Signature)
	return err
}

// CountBanVotes returns approve and reject tallies for a proposal.
func (s *Store) CountBanVotes(ctx context.Context, proposalID string) (approve, reject int, err error) {
	rows, err := s.pool.Query(ctx, "SELECT approve, COUNT(*) FROM ban_votes WHERE proposal_id = $1 GROUP BY approve", proposalID)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()
	for rows.Next() {
		var approveVote bool
		var count int
		if err := rows.Scan(&approveVote, &count); err != nil {
			return 0, 0, err
		}
		if approveVote {
			approve = count
		} else {
			reject = count
		}
	}
	return approve, reject, rows.Err()
}

// InsertHiveBan records an enforced ban.
func (s *Store) InsertHiveBan(ctx context.Context, target, reason string, bannedAt int64, expiresAt *int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO hive_bans (target, reason, banned_at, expires_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (target) DO UPDATE SET reason = EXCLUDED.reason, banned_at = EXCLUDED.banned_at, expires_at = EXCLUDED.expires_at`,
		target, reason, bannedAt, expiresAt)
	return err
}

// IsBanned reports whether target is currently under an unexpired ban.
func (s *Store) IsBanned(ctx context.Context, target string, now int64) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM hive_bans WHERE target = $1 AND (expires_at IS NULL OR expires_at > $2)",
		target, now).Scan(&n)
	return n > 0, err
}

// InsertLeechFlag records an advisory leech-ratio flag (spec.md §9: flag,
// do not autotrigger, unless explicitly configured otherwise).
func (s *Store) InsertLeechFlag(ctx context.Context, peer string, ratio float64, windowDays int, flaggedAt int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO leech_flags (peer, ratio, window_days, flagged_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (peer) DO UPDATE SET ratio = EXCLUDED.ratio, flagged_at = EXCLUDED.flagged_at`,
		peer, ratio, windowDays, flaggedAt)
	return err
}

// CreatePendingAction records an action awaiting operator approval under
// advisor governance mode.
func (s *Store) CreatePendingAction(ctx context.Context, id, kind string, detail any, createdAt int64) error {
	detailBytes, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pending_actions (id, kind, detail, created_at, status) VALUES ($1,$2,$3,$4,'pending')`,
		id, kind, detailBytes, createdAt)
	return err
}

// PendingAction is an operator-facing record awaiting approve/reject.
type PendingAction struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Detail     json.RawMessage `json:"detail"`
	CreatedAt  int64           `json:"created_at"`
	Status     string          `json:"status"`
	ResolvedBy *string         `json:"resolved_by,omitempty"`
	ResolvedAt *int64          `json:"resolved_at,omitempty"`
}

// ListPendingActions returns actions awaiting a decision.
func (s *Store) ListPendingActions(ctx context.Context) ([]PendingAction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, detail, created_at, status, resolved_by, resolved_at
		 FROM pending_actions WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []PendingAction
	for rows.Next() {
		var a PendingAction
		if err := rows.Scan(&a.ID, &a.Kind, &a.Detail, &a.CreatedAt, &a.Status, &a.ResolvedBy, &a.ResolvedAt); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// ResolvePendingAction marks a pending action approved or rejected.
func (s *Store) ResolvePendingAction(ctx context.Context, id, status, resolvedBy string, resolvedAt int64) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE pending_actions SET status = $1, resolved_by = $2, resolved_at = $3 WHERE id = $4",
		status, resolvedBy, resolvedAt, id)
	return err
}

// AppendPlannerLog records one kernel decision for operator visibility.
func (s *Store) AppendPlannerLog(ctx context.Context, component, message string, detail any, timestamp, maxRows int64) error {
	detailBytes, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO hive_planner_log (component, message, detail, timestamp) VALUES ($1,$2,$3,$4)",
		component, message, detailBytes, timestamp)
	if err != nil {
		return err
	}
	return s.pruneToRowCap(ctx, "hive_planner_log", int(maxRows))
}

// PlannerLogEntry is one operator-visible decision record.
type PlannerLogEntry struct {
	Component string          `json:"component"`
	Message   string          `json:"message"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ListRecentPlannerLog returns the newest limit planner-log entries.
func (s *Store) ListRecentPlannerLog(ctx context.Context, limit int) ([]PlannerLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT component, message, detail, timestamp FROM hive_planner_log ORDER BY id DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []PlannerLogEntry
	for rows.Next() {
		var e PlannerLogEntry
		if err := rows.Scan(&e.Component, &e.Message, &e.Detail, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
