package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// SaveSettlementProposal upserts a period's proposed hash.
func (s *Store) SaveSettlementProposal(ctx context.Context, p hivewire.SettlementProposal) error {
	sql := `
		INSERT INTO settlement_proposals (proposal_id, period, proposer, data_hash, total_fees, member_count, created_at, status, signature)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (proposal_id) DO UPDATE SET status = EXCLUDED.status
	`
	_, err := s.pool.Exec(ctx, sql, p.ProposalID, p.Period, p.Proposer, p.DataHash, p.TotalFees,
		p.MemberCount, p.CreatedAt, p.Status, p.Signature)
	return err
}

func scanSettlementProposal(row pgx.Row) (hivewire.SettlementProposal, error) {
	var p hivewire.SettlementProposal
	err := row.Scan(&p.ProposalID, &p.Period, &p.Proposer, &p.DataHash, &p.TotalFees,
		&p.MemberCount, &p.CreatedAt, &p.Status, &p.Signature)
	return p, err
}

const settlementProposalColumns = `proposal_id, period, proposer, data_hash, total_fees, member_count, created_at, status, signature`

// GetSettlementProposal looks up a proposal by id.
func (s *Store) GetSettlementProposal(ctx context.Context, proposalID string) (hivewire.SettlementProposal, bool, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+settlementProposalColumns+" FROM settlement_proposals WHERE proposal_id = $1", proposalID)
	p, err := scanSettlementProposal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return hivewire.SettlementProposal{}, false, nil
	}
	if err != nil {
		return hivewire.SettlementProposal{}, false, err
	}
	return p, true, nil
}

// GetProposalForPeriod returns the active (non-stale) proposal for a
// period, if one was already made — used to avoid double-proposing.
func (s *Store) GetProposalForPeriod(ctx context.Context, period string) (hivewire.SettlementProposal, bool, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+settlementProposalColumns+" FROM settlement_proposals WHERE period = $1 AND status != 'stale' ORDER BY created_at DESC LIMIT 1",
		period)
	p, err := scanSettlementProposal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return hivewire.SettlementProposal{}, false, nil
	}
	if err != nil {
		return hivewire.SettlementProposal{}, false, err
	}
	return p, true, nil
}

// UpdateSettlementStatus transitions a proposal's status.
func (s *Store) UpdateSettlementStatus(ctx context.Context, proposalID, status string) error {
	_, err := s.pool.Exec(ctx, "UPDATE settlement_proposals SET status = $1 WHERE proposal_id = $2", status, proposalID)
	return err
}

// InsertReadyVote records a recipient's hash-agreement confirmation.
func (s *Store) InsertReadyVote(ctx context.Context, v hivewire.SettlementReadyVote) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settlement_ready_votes (proposal_id, voter, timestamp, signature) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (proposal_id, voter) DO NOTHING`,
		v.ProposalID, v.Voter, v.Timestamp, v.Signature)
	return err
}

// CountReadyVotes returns how many distinct members have confirmed hash
// agreement for a proposal.
func (s *Store) CountReadyVotes(ctx context.Context, proposalID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM settlement_ready_votes WHERE proposal_id = $1", proposalID).Scan(&n)
	return n, err
}

// InsertSettlementExecution records one member's completed payout action.
func (s *Store) InsertSettlementExecution(ctx context.Context, e hivewire.SettlementExecution) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settlement_executions (proposal_id, member, payment_hash, amount_paid_sats, timestamp, signature)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (proposal_id, member) DO NOTHING`,
		e.ProposalID, e.Member, e.PaymentHash, e.AmountPaidSats, e.Timestamp, e.Signature)
	return err
}

// CountSettlementExecutions returns how many members have executed their
// payout for a proposal.
func (s *Store) CountSettlementExecutions(ctx context.Context, proposalID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM settlement_executions WHERE proposal_id = $1", proposalID).Scan(&n)
	return n, err
}

// MarkPeriodSettled records a period as permanently closed.
func (s *Store) MarkPeriodSettled(ctx context.Context, period string, totalDistributed, settledAt int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settled_periods (period, total_distributed, settled_at) VALUES ($1,$2,$3)
		 ON CONFLICT (period) DO NOTHING`,
		period, totalDistributed, settledAt)
	return err
}

// IsPeriodSettled reports whether a period has already been closed.
func (s *Store) IsPeriodSettled(ctx context.Context, period string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM settled_periods WHERE period = $1", period).Scan(&n)
	return n > 0, err
}

// AppendContribution records one accounted flow for fair-share computation.
func (s *Store) AppendContribution(ctx context.Context, e hivewire.ContributionLedgerEntry, maxRows int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contribution_ledger (peer, direction, amount_sats, timestamp) VALUES ($1,$2,$3,$4)`,
		e.Peer, e.Direction, e.AmountSat, e.Timestamp)
	if err != nil {
		return err
	}
	return s.pruneToRowCap(ctx, "contribution_ledger", maxRows)
}

// ContributionsForPeriod sums the 'forwarded' ledger amounts per peer
// across [periodStart, periodEnd), feeding the weighted fair-share
// computation.
func (s *Store) ContributionsForPeriod(ctx context.Context, periodStart, periodEnd int64) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT peer, SUM(amount_sats) FROM contribution_ledger
		 WHERE direction = 'forwarded' AND timestamp >= $1 AND timestamp < $2
		 GROUP BY peer`,
		periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var peer string
		var total int64
		if err := rows.Scan(&peer, &total); err != nil {
			return nil, err
		}
		totals[peer] = total
	}
	return totals, rows.Err()
}
