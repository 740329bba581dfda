package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// InsertIntentLock creates a new intent row, failing if one already
// exists with the same id. Conflict on the (type,target) domain is a
// higher-level check the caller performs via GetActiveIntentForTarget
// before calling this, inside a single handler invocation.
func (s *Store) InsertIntentLock(ctx context.Context, i hivewire.Intent) error {
	sql := `
		INSERT INTO intent_locks (id, type, target, initiator, announced_at, expires_at, status, signature)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`
	_, err := s.pool.Exec(ctx, sql, i.ID, i.Type, i.Target, i.Initiator, i.AnnouncedAt, i.ExpiresAt, i.Status, i.Signature)
	return err
}

func scanIntent(row pgx.Row) (hivewire.Intent, error) {
	var i hivewire.Intent
	err := row.Scan(&i.ID, &i.Type, &i.Target, &i.Initiator, &i.AnnouncedAt, &i.ExpiresAt, &i.Status, &i.Signature)
	return i, err
}

const intentColumns = `id, type, target, initiator, announced_at, expires_at, status, signature`

// GetActiveIntentForTarget returns the single active (pending) intent
// lock on a (type,target) conflict domain, if any — the mutual-exclusion
// check spec.md §4.5 requires before announcing a new one.
func (s *Store) GetActiveIntentForTarget(ctx context.Context, intentType hivewire.IntentType, target string) (hivewire.Intent, bool, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+intentColumns+" FROM intent_locks WHERE type = $1 AND target = $2 AND status = $3",
		intentType, target, hivewire.IntentPending)
	i, err := scanIntent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return hivewire.Intent{}, false, nil
	}
	if err != nil {
		return hivewire.Intent{}, false, err
	}
	return i, true, nil
}

// GetIntent looks up an intent by id.
func (s *Store) GetIntent(ctx context.Context, id string) (hivewire.Intent, bool, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+intentColumns+" FROM intent_locks WHERE id = $1", id)
	i, err := scanIntent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return hivewire.Intent{}, false, nil
	}
	if err != nil {
		return hivewire.Intent{}, false, err
	}
	return i, true, nil
}

// UpdateIntentStatus transitions an intent's status (commit/abort/expire).
func (s *Store) UpdateIntentStatus(ctx context.Context, id string, status hivewire.IntentStatus) error {
	_, err := s.pool.Exec(ctx, "UPDATE intent_locks SET status = $1 WHERE id = $2", status, id)
	return err
}

// ExpirePendingIntents marks every pending intent whose expires_at has
// passed as expired and returns their ids, for the scheduler's reaper.
func (s *Store) ExpirePendingIntents(ctx context.Context, now int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE intent_locks SET status = $1
		 WHERE status = $2 AND expires_at <= $3
		 RETURNING id`,
		hivewire.IntentExpired, hivewire.IntentPending, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
