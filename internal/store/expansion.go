package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// SaveExpansionRound upserts a round's full state, including its
// nominations map, as a single JSONB blob — rounds are mutated as one
// unit under the in-process round-map lock, so there is no need for a
// normalized nominations table.
func (s *Store) SaveExpansionRound(ctx context.Context, r hivewire.ExpansionRound) error {
	nominations, err := json.Marshal(r.Nominations)
	if err != nil {
		return err
	}
	sql := `
		INSERT INTO expansion_rounds
			(round_id, target, state, nominations, elected, recommended_size, quality, started_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (round_id) DO UPDATE SET
			state = EXCLUDED.state,
			nominations = EXCLUDED.nominations,
			elected = EXCLUDED.elected,
			recommended_size = EXCLUDED.recommended_size,
			quality = EXCLUDED.quality,
			expires_at = EXCLUDED.expires_at
	`
	var elected any
	if r.Elected != "" {
		elected = r.Elected
	}
	_, err = s.pool.Exec(ctx, sql, r.RoundID, r.Target, r.State, nominations, elected,
		r.RecommendedSize, r.Quality, r.StartedAt, r.ExpiresAt)
	return err
}

func scanRound(row pgx.Row) (hivewire.ExpansionRound, error) {
	var r hivewire.ExpansionRound
	var nominations []byte
	var elected *string
	err := row.Scan(&r.RoundID, &r.Target, &r.State, &nominations, &elected,
		&r.RecommendedSize, &r.Quality, &r.StartedAt, &r.ExpiresAt)
	if err != nil {
		return hivewire.ExpansionRound{}, err
	}
	if elected != nil {
		r.Elected = *elected
	}
	r.Nominations = make(map[string]hivewire.Nomination)
	if len(nominations) > 0 {
		if err := json.Unmarshal(nominations, &r.Nominations); err != nil {
			return hivewire.ExpansionRound{}, err
		}
	}
	return r, nil
}

const roundColumns = `round_id, target, state, nominations, elected, recommended_size, quality, started_at, expires_at`

// GetExpansionRound looks up a round by id.
func (s *Store) GetExpansionRound(ctx context.Context, roundID string) (hivewire.ExpansionRound, bool, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+roundColumns+" FROM expansion_rounds WHERE round_id = $1", roundID)
	r, err := scanRound(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return hivewire.ExpansionRound{}, false, nil
	}
	if err != nil {
		return hivewire.ExpansionRound{}, false, err
	}
	return r, true, nil
}

// ListActiveRoundsForTarget returns every non-terminal round for a target,
// used to detect and merge concurrently-started rounds on the min round_id.
func (s *Store) ListActiveRoundsForTarget(ctx context.Context, target string) ([]hivewire.ExpansionRound, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+roundColumns+" FROM expansion_rounds WHERE target = $1 AND state NOT IN ($2,$3,$4)",
		target, hivewire.RoundCompleted, hivewire.RoundCancelled, hivewire.RoundExpired)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []hivewire.ExpansionRound
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// ListExpiringRounds returns every non-terminal round past its
// expires_at, for the scheduler's round expirer.
func (s *Store) ListExpiringRounds(ctx context.Context, now int64) ([]hivewire.ExpansionRound, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+roundColumns+" FROM expansion_rounds WHERE state NOT IN ($1,$2,$3) AND expires_at <= $4",
		hivewire.RoundCompleted, hivewire.RoundCancelled, hivewire.RoundExpired, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []hivewire.ExpansionRound
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// CountActiveRounds reports the number of non-terminal rounds, enforced
// against MAX_ACTIVE_ROUNDS.
func (s *Store) CountActiveRounds(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM expansion_rounds WHERE state NOT IN ($1,$2,$3)",
		hivewire.RoundCompleted, hivewire.RoundCancelled, hivewire.RoundExpired).Scan(&n)
	return n, err
}

// SaveBudgetHold upserts a hold row.
func (s *Store) SaveBudgetHold(ctx context.Context, h hivewire.BudgetHold) error {
	sql := `
		INSERT INTO budget_holds (hold_id, round_id, peer, amount_sats, created_at, expires_at, status, consumed_by, consumed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (hold_id) DO UPDATE SET
			status = EXCLUDED.status,
			consumed_by = EXCLUDED.consumed_by,
			consumed_at = EXCLUDED.consumed_at
	`
	_, err := s.pool.Exec(ctx, sql, h.HoldID, h.RoundID, h.Peer, h.AmountSats, h.CreatedAt, h.ExpiresAt,
		h.Status, h.ConsumedBy, h.ConsumedAt)
	return err
}

func scanHold(row pgx.Row) (hivewire.BudgetHold, error) {
	var h hivewire.BudgetHold
	err := row.Scan(&h.HoldID, &h.RoundID, &h.Peer, &h.AmountSats, &h.CreatedAt, &h.ExpiresAt,
		&h.Status, &h.ConsumedBy, &h.ConsumedAt)
	return h, err
}

const holdColumns = `hold_id, round_id, peer, amount_sats, created_at, expires_at, status, consumed_by, consumed_at`

// ListActiveBudgetHolds returns every hold still in the active state; the
// caller sums their amounts into outstanding committed budget.
func (s *Store) ListActiveBudgetHolds(ctx context.Context) ([]hivewire.BudgetHold, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+holdColumns+" FROM budget_holds WHERE status = $1", hivewire.HoldActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []hivewire.BudgetHold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}

// ExpireBudgetHolds marks every active hold past its expires_at as
// expired, returning the freed amounts.
func (s *Store) ExpireBudgetHolds(ctx context.Context, now int64) ([]hivewire.BudgetHold, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE budget_holds SET status = $1
		 WHERE status = $2 AND expires_at <= $3
		 RETURNING `+holdColumns,
		hivewire.HoldExpired, hivewire.HoldActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []hivewire.BudgetHold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}
