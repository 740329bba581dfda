// Package scheduler runs the kernel's periodic maintenance jobs: intent
// reaping, expansion round/hold expiry, gossip pruning and rate-limit
// cleanup, and the weekly settlement proposal — adapted from the
// teacher's mempool poller's ticker-driven Run(ctx) shape.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/lightning-goats/cl-hive-sub000/internal/config"
	"github.com/lightning-goats/cl-hive-sub000/internal/expansion"
	"github.com/lightning-goats/cl-hive-sub000/internal/gossip"
	"github.com/lightning-goats/cl-hive-sub000/internal/intent"
	"github.com/lightning-goats/cl-hive-sub000/internal/settlement"
	"github.com/lightning-goats/cl-hive-sub000/internal/store"
)

// Scheduler drives every periodic job against a live Config so each tick
// reads the current tunables without requiring a restart.
type Scheduler struct {
	cfg        *config.Config
	db         *store.Store
	intents    *intent.Manager
	expansions *expansion.Manager
	gossipMgr  *gossip.Manager
	settle     *settlement.Manager
	selfPubkey string

	tickInterval time.Duration
}

// New builds a scheduler wired to every manager it sweeps.
func New(cfg *config.Config, db *store.Store, intents *intent.Manager, expansions *expansion.Manager, gossipMgr *gossip.Manager, settle *settlement.Manager, selfPubkey string) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		db:           db,
		intents:      intents,
		expansions:   expansions,
		gossipMgr:    gossipMgr,
		settle:       settle,
		selfPubkey:   selfPubkey,
		tickInterval: 30 * time.Second,
	}
}

// Run drives the periodic jobs off two tickers (maintenance and
// settlement) until ctx is cancelled.
// Each job is independent and a failure in one never blocks the others.
func (s *Scheduler) Run(ctx context.Context) {
	log.Println("[Scheduler] starting maintenance loop")

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	settlementTicker := time.NewTicker(1 * time.Hour)
	defer settlementTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Scheduler] stopping maintenance loop")
			return
		case now := <-ticker.C:
			s.runMaintenanceTick(ctx, now)
		case now := <-settlementTicker.C:
			s.runSettlementTick(ctx, now)
		}
	}
}

func (s *Scheduler) runMaintenanceTick(ctx context.Context, now time.Time) {
	snap := s.cfg.Snapshot()
	ts := now.Unix()

	if reaped, err := s.intents.ReapExpired(ctx, ts); err != nil {
		log.Printf("[Scheduler] intent reap failed: %v", err)
	} else if len(reaped) > 0 {
		log.Printf("[Scheduler] reaped %d expired intents", len(reaped))
	}

	if expired, err := s.expansions.ExpireRounds(ctx, ts); err != nil {
		log.Printf("[Scheduler] round expiry failed: %v", err)
	} else if len(expired) > 0 {
		log.Printf("[Scheduler] expired %d expansion rounds", len(expired))
	}

	if holds, err := s.expansions.ExpireHolds(ctx, ts); err != nil {
		log.Printf("[Scheduler] hold expiry failed: %v", err)
	} else if len(holds) > 0 {
		log.Printf("[Scheduler] released %d expired budget holds", len(holds))
	}

	gossipCutoff := ts - maxGossipAge(snap)
	if err := s.gossipMgr.Prune(ctx, gossipCutoff); err != nil {
		log.Printf("[Scheduler] gossip prune failed: %v", err)
	}
	s.gossipMgr.CleanupRateLimits(1*time.Hour, now)
}

// maxGossipAge is the oldest any gossip report is retained before pruning,
// independent of the per-topic row cap each insert already enforces.
func maxGossipAge(snap config.Snapshot) int64 {
	return int64(snap.HeartbeatInterval) * 288 // ~1 day at the default 5-minute heartbeat
}

func (s *Scheduler) runSettlementTick(ctx context.Context, now time.Time) {
	// The previous ISO week is the most recent period that can have ended.
	period := settlement.PeriodForTime(now.AddDate(0, 0, -7))
	already, err := s.settle.AlreadySettled(ctx, period)
	if err != nil {
		log.Printf("[Scheduler] settlement status check failed: %v", err)
		return
	}
	if already {
		return
	}

	// Only propose once the period has fully elapsed; mid-week ticks are
	// no-ops until the boundary passes.
	_, end, err := settlement.PeriodBounds(period)
	if err != nil {
		log.Printf("[Scheduler] malformed settlement period %q: %v", period, err)
		return
	}
	if now.Unix() < end {
		return
	}

	contributions, err := s.settle.ContributionsForPeriod(ctx, period)
	if err != nil {
		log.Printf("[Scheduler] settlement contribution query failed: %v", err)
		return
	}
	if len(contributions) == 0 {
		return
	}

	members, err := s.db.ListMembers(ctx)
	if err != nil {
		log.Printf("[Scheduler] member list failed: %v", err)
		return
	}

	var totalFees int64
	standings := make([]settlement.MemberStanding, 0, len(members))
	for _, m := range members {
		forwarded := contributions[m.Pubkey]
		totalFees += forwarded
		standings = append(standings, settlement.MemberStanding{
			Pubkey:        m.Pubkey,
			ForwardedSats: forwarded,
			UptimePct:     m.UptimePct,
		})
	}

	proposal, _, err := s.settle.Propose(ctx, period, s.selfPubkey, totalFees, standings, now.Unix())
	if err != nil {
		log.Printf("[Scheduler] settlement proposal failed: %v", err)
		return
	}
	log.Printf("[Scheduler] proposed settlement %s for period %s (%d sats, %d members)",
		proposal.ProposalID, period, totalFees, proposal.MemberCount)
}
