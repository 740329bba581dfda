package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// UpsertMember inserts or updates a member row.
func (s *Store) UpsertMember(ctx context.Context, m hivewire.Member) error {
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}
	sql := `
		INSERT INTO hive_members
			(pubkey, tier, joined_at, promoted_at, contribution_ratio, uptime_pct,
			 vouch_count, last_seen, online_seconds_roll, window_start,
			 currently_online, last_transition_time, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (pubkey) DO UPDATE SET
			tier = EXCLUDED.tier,
			promoted_at = EXCLUDED.promoted_at,
			contribution_ratio = EXCLUDED.contribution_ratio,
			uptime_pct = EXCLUDED.uptime_pct,
			vouch_count = EXCLUDED.vouch_count,
			last_seen = EXCLUDED.last_seen,
			online_seconds_roll = EXCLUDED.online_seconds_roll,
			window_start = EXCLUDED.window_start,
			currently_online = EXCLUDED.currently_online,
			last_transition_time = EXCLUDED.last_transition_time,
			metadata = EXCLUDED.metadata
	`
	_, err = s.pool.Exec(ctx, sql, m.Pubkey, m.Tier, m.JoinedAt, m.PromotedAt,
		m.ContributionRatio, m.UptimePct, m.VouchCount, m.LastSeen,
		m.OnlineSecondsRoll, m.WindowStart, m.CurrentlyOnline, m.LastTransitionTime, metadata)
	return err
}

func scanMember(row pgx.Row) (hivewire.Member, error) {
	var m hivewire.Member
	var metadata []byte
	err := row.Scan(&m.Pubkey, &m.Tier, &m.JoinedAt, &m.PromotedAt, &m.ContributionRatio,
		&m.UptimePct, &m.VouchCount, &m.LastSeen, &m.OnlineSecondsRoll, &m.WindowStart,
		&m.CurrentlyOnline, &m.LastTransitionTime, &metadata)
	if err != nil {
		return hivewire.Member{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return hivewire.Member{}, err
		}
	}
	return m, nil
}

const memberColumns = `pubkey, tier, joined_at, promoted_at, contribution_ratio, uptime_pct,
	vouch_count, last_seen, online_seconds_roll, window_start, currently_online,
	last_transition_time, metadata`

// GetMember looks up a member by pubkey.
func (s *Store) GetMember(ctx context.Context, pubkey string) (hivewire.Member, bool, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+memberColumns+" FROM hive_members WHERE pubkey = $1", pubkey)
	m, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return hivewire.Member{}, false, nil
	}
	if err != nil {
		return hivewire.Member{}, false, err
	}
	return m, true, nil
}

// ListMembers returns every member, ordered by join time.
func (s *Store) ListMembers(ctx context.Context) ([]hivewire.Member, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+memberColumns+" FROM hive_members ORDER BY joined_at ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []hivewire.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CountMembers returns the current hive size, used to enforce MAX_MEMBERS.
func (s *Store) CountMembers(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM hive_members").Scan(&n)
	return n, err
}

// DeleteMember removes a banned member's row.
func (s *Store) DeleteMember(ctx context.Context, pubkey string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM hive_members WHERE pubkey = $1", pubkey)
	return err
}
