// Package expansion implements the cooperative single-opener election
// (spec.md §4.6): nominate, elect, execute, with budget holds and a
// market-share cap guarding against any one member concentrating new
// capacity.
package expansion

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/lightning-goats/cl-hive-sub000/internal/codec"
	"github.com/lightning-goats/cl-hive-sub000/internal/config"
	"github.com/lightning-goats/cl-hive-sub000/internal/gateway"
	"github.com/lightning-goats/cl-hive-sub000/internal/kerrors"
	"github.com/lightning-goats/cl-hive-sub000/internal/store"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// Manager drives round lifecycle: nominate, elect, execute.
type Manager struct {
	db         *store.Store
	gw         *gateway.Client
	selfPubkey string
}

// NewManager builds an expansion manager over db and gw.
func NewManager(db *store.Store, gw *gateway.Client, selfPubkey string) *Manager {
	return &Manager{db: db, gw: gw, selfPubkey: selfPubkey}
}

func randomRoundID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// LiquidityBudget computes the budget-constrained liquidity available for
// a new channel open, per spec.md §4.6's formula.
func LiquidityBudget(rawOnchainSats int64, reservePct, dailyBudgetSats, maxPerChannelPct float64) int64 {
	afterReserve := float64(rawOnchainSats) * (1 - reservePct)
	perChannelCap := dailyBudgetSats * maxPerChannelPct
	budget := afterReserve
	if dailyBudgetSats < budget {
		budget = dailyBudgetSats
	}
	if perChannelCap < budget {
		budget = perChannelCap
	}
	if budget < 0 {
		return 0
	}
	return int64(budget)
}

// StartRound begins a new round for target if the active-round cap and
// minimum quality score permit it. No per-target cooldown is checked:
// CooldownSeconds is not read, and a target whose last round has just
// ended can start a new round at once. The caller auto-nominates
// itself immediately after if it has no existing channel and sufficient
// budget-constrained liquidity.
func (m *Manager) StartRound(ctx context.Context, target string, quality float64, now int64, cfg config.Snapshot) (hivewire.ExpansionRound, error) {
	if quality < cfg.MinQualityScore {
		return hivewire.ExpansionRound{}, kerrors.New(kerrors.InvalidPayload, "quality score below MIN_QUALITY_SCORE")
	}

	active, err := m.db.CountActiveRounds(ctx)
	if err != nil {
		return hivewire.ExpansionRound{}, err
	}
	if active >= cfg.MaxActiveRounds {
		return hivewire.ExpansionRound{}, kerrors.New(kerrors.RateLimited, "MAX_ACTIVE_ROUNDS reached")
	}

	existingForTarget, err := m.db.ListActiveRoundsForTarget(ctx, target)
	if err != nil {
		return hivewire.ExpansionRound{}, err
	}
	if len(existingForTarget) > 0 {
		return m.MergeOnMinRoundID(ctx, existingForTarget)
	}

	roundID, err := randomRoundID()
	if err != nil {
		return hivewire.ExpansionRound{}, kerrors.Wrap(kerrors.Fatal, "generate round id", err)
	}
	round := hivewire.ExpansionRound{
		RoundID:     roundID,
		Target:      target,
		State:       hivewire.RoundNominating,
		Nominations: make(map[string]hivewire.Nomination),
		Quality:     quality,
		StartedAt:   now,
		ExpiresAt:   now + int64(cfg.RoundExpireSeconds),
	}
	if err := m.db.SaveExpansionRound(ctx, round); err != nil {
		return hivewire.ExpansionRound{}, err
	}
	return round, nil
}

// MergeOnMinRoundID resolves two or more concurrently-started rounds for
// the same target by keeping the one with the lexicographically smaller
// round_id and migrating every nomination onto it (spec.md §4.6).
func (m *Manager) MergeOnMinRoundID(ctx context.Context, rounds []hivewire.ExpansionRound) (hivewire.ExpansionRound, error) {
	winner := rounds[0]
	for _, r := range rounds[1:] {
		if r.RoundID < winner.RoundID {
			winner = r
		}
	}
	for _, r := range rounds {
		if r.RoundID == winner.RoundID {
			continue
		}
		for key, nom := range r.Nominations {
			winner.Nominations[key] = nom
		}
		r.State = hivewire.RoundCancelled
		if err := m.db.SaveExpansionRound(ctx, r); err != nil {
			return hivewire.ExpansionRound{}, err
		}
	}
	if err := m.db.SaveExpansionRound(ctx, winner); err != nil {
		return hivewire.ExpansionRound{}, err
	}
	return winner, nil
}

// Nominate adds nominator's bid to an in-progress round. A nominator that
// already has a channel open to the round's target is rejected outright
// (spec.md §3): it would duplicate rather than expand the hive's reach.
func (m *Manager) Nominate(ctx context.Context, roundID string, nomination hivewire.Nomination) (hivewire.ExpansionRound, error) {
	if nomination.HasExistingChannel {
		return hivewire.ExpansionRound{}, kerrors.New(kerrors.InvalidPayload, "nominator already has a channel to the target")
	}

	round, ok, err := m.db.GetExpansionRound(ctx, roundID)
	if err != nil {
		return hivewire.ExpansionRound{}, err
	}
	if !ok || round.State != hivewire.RoundNominating {
		return hivewire.ExpansionRound{}, kerrors.New(kerrors.Stale, "round not accepting nominations")
	}
	round.Nominations[nomination.Nominator] = nomination
	if err := m.db.SaveExpansionRound(ctx, round); err != nil {
		return hivewire.ExpansionRound{}, err
	}

	// Only broadcast our own nomination. Re-broadcasting one we received
	// from a peer (nominator != self) would amplify it around the hive
	// indefinitely instead of letting Dispatch handle fan-out once.
	if nomination.Nominator == m.selfPubkey {
		signingString := codec.SigningStringNomination(roundID, nomination)
		sig, err := m.gw.Sign(ctx, signingString)
		if err != nil {
			return round, err
		}
		m.broadcast(ctx, hivewire.TypeExpansionNominate, hivewire.ExpansionNominatePayload{
			RoundID: roundID, Nomination: nomination, Signature: sig,
		})
	}
	return round, nil
}

// ScoreWeights are the expansion scoring components (spec.md §4.6).
const (
	weightLiquidity           = 0.25
	weightFewerChannels       = 0.30
	weightRecentOpensFairness = 0.20
	weightQualityAgreement    = 0.25
)

// ScoreNomination computes the weighted expansion score for one
// nomination. liquidityNorm, fewerChannelsNorm, recentOpensFairnessNorm,
// and qualityAgreementNorm are each precomputed in [0,1] by the caller
// (normalized across the round's nominations), keeping this function a
// pure weighted sum.
func ScoreNomination(liquidityNorm, fewerChannelsNorm, recentOpensFairnessNorm, qualityAgreementNorm float64) float64 {
	return weightLiquidity*liquidityNorm +
		weightFewerChannels*fewerChannelsNorm +
		weightRecentOpensFairness*recentOpensFairnessNorm +
		weightQualityAgreement*qualityAgreementNorm
}

// Elect closes nomination and selects the highest-scoring nominator,
// given a precomputed score per nominator (from ScoreNomination across
// the round's candidates).
func (m *Manager) Elect(ctx context.Context, roundID string, scores map[string]float64, now int64) (hivewire.ExpansionRound, string, error) {
	round, ok, err := m.db.GetExpansionRound(ctx, roundID)
	if err != nil {
		return hivewire.ExpansionRound{}, "", err
	}
	if !ok {
		return hivewire.ExpansionRound{}, "", kerrors.New(kerrors.Stale, "unknown round")
	}

	var winner string
	var best float64
	first := true
	for nominator, score := range scores {
		if first || score > best {
			winner, best = nominator, score
			first = false
		}
	}
	if winner == "" {
		round.State = hivewire.RoundCancelled
		_ = m.db.SaveExpansionRound(ctx, round)
		return round, "", kerrors.New(kerrors.InvalidPayload, "no nominations to elect from")
	}

	round.Elected = winner
	round.State = hivewire.RoundElected
	if err := m.db.SaveExpansionRound(ctx, round); err != nil {
		return hivewire.ExpansionRound{}, "", err
	}

	elect := hivewire.ExpansionElectPayload{RoundID: round.RoundID, Target: round.Target, Elected: winner, Timestamp: now}
	signingString := codec.SigningStringExpansionElect(elect)
	sig, err := m.gw.Sign(ctx, signingString)
	if err != nil {
		return round, winner, err
	}
	elect.Signature = sig
	m.broadcast(ctx, hivewire.TypeExpansionElect, elect)

	return round, winner, nil
}

// broadcast fans a signed payload out to every known member.
func (m *Manager) broadcast(ctx context.Context, t hivewire.MessageType, v any) {
	members, err := m.db.ListMembers(ctx)
	if err != nil {
		log.Printf("[Expansion] broadcast %s: list members failed: %v", t, err)
		return
	}
	recipients := make([]string, 0, len(members))
	for _, mem := range members {
		recipients = append(recipients, mem.Pubkey)
	}
	if err := m.gw.Broadcast(ctx, recipients, t, v); err != nil {
		log.Printf("[Expansion] broadcast %s failed: %v", t, err)
	}
}

// WithinMarketShareCap reports whether giving memberOpenedSats more
// capacity to a single member would keep their share of totalHiveSats at
// or below MarketShareCapPct — the anti-monopoly check supplementing the
// plain budget check (SPEC_FULL §5).
func WithinMarketShareCap(memberOpenedSats, newAmountSats, totalHiveSats int64, capPct float64) bool {
	if totalHiveSats+newAmountSats <= 0 {
		return true
	}
	projectedShare := float64(memberOpenedSats+newAmountSats) / float64(totalHiveSats+newAmountSats)
	return projectedShare <= capPct
}

// CreateHold reserves amountSats of future-spend budget for round's
// elected opener.
func (m *Manager) CreateHold(ctx context.Context, holdID, roundID, peer string, amountSats, now, expiresAt int64) error {
	hold := hivewire.BudgetHold{
		HoldID: holdID, RoundID: roundID, Peer: peer, AmountSats: amountSats,
		CreatedAt: now, ExpiresAt: expiresAt, Status: hivewire.HoldActive,
	}
	return m.db.SaveBudgetHold(ctx, hold)
}

// ReleaseHold returns an active hold's budget without consuming it
// (non-winning nominators releasing after EXPANSION_ELECT).
func (m *Manager) ReleaseHold(ctx context.Context, holdID string) error {
	return m.releaseOrConsume(ctx, holdID, hivewire.HoldReleased, "")
}

// ConsumeHold marks a hold as spent once the winner's channel open
// completes.
func (m *Manager) ConsumeHold(ctx context.Context, holdID, consumedBy string) error {
	return m.releaseOrConsume(ctx, holdID, hivewire.HoldConsumed, consumedBy)
}

func (m *Manager) releaseOrConsume(ctx context.Context, holdID string, status hivewire.HoldStatus, consumedBy string) error {
	holds, err := m.db.ListActiveBudgetHolds(ctx)
	if err != nil {
		return err
	}
	for _, h := range holds {
		if h.HoldID != holdID {
			continue
		}
		h.Status = status
		if consumedBy != "" {
			h.ConsumedBy = &consumedBy
		}
		return m.db.SaveBudgetHold(ctx, h)
	}
	return kerrors.New(kerrors.Stale, "hold not found or already resolved")
}

// ExpireRounds transitions every non-terminal round past its ExpiresAt to
// expired, the scheduler's periodic sweep (spec.md §4.6).
func (m *Manager) ExpireRounds(ctx context.Context, now int64) ([]string, error) {
	expiring, err := m.db.ListExpiringRounds(ctx, now)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range expiring {
		r.State = hivewire.RoundExpired
		if err := m.db.SaveExpansionRound(ctx, r); err != nil {
			return ids, err
		}
		ids = append(ids, r.RoundID)
	}
	return ids, nil
}

// ExpireHolds releases every active hold past its ExpiresAt, freeing
// reserved budget back to the pool.
func (m *Manager) ExpireHolds(ctx context.Context, now int64) ([]hivewire.BudgetHold, error) {
	return m.db.ExpireBudgetHolds(ctx, now)
}
