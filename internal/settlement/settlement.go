// Package settlement implements the weekly weighted fair-share payout
// and its hash-agreement protocol: one proposer computes a deterministic
// sha256 digest over the period's contribution ledger, every recipient
// recomputes the same digest independently and votes ready, and only
// once a simple majority agrees does execution proceed (spec.md §4.8).
package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lightning-goats/cl-hive-sub000/internal/codec"
	"github.com/lightning-goats/cl-hive-sub000/internal/gateway"
	"github.com/lightning-goats/cl-hive-sub000/internal/kerrors"
	"github.com/lightning-goats/cl-hive-sub000/internal/store"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// Fair-share weights (spec.md §4.8), fixed rather than operator-tunable:
// changing the split mid-period would make an in-flight period's hash
// unreproducible by nodes still running the old weights.
const (
	weightCapacity = 0.30
	weightForwards = 0.60
	weightUptime   = 0.10
)

// Manager drives settlement-period computation and the hash-agreement
// state machine.
type Manager struct {
	db *store.Store
	gw *gateway.Client
}

// NewManager builds a settlement manager over db and gw.
func NewManager(db *store.Store, gw *gateway.Client) *Manager {
	return &Manager{db: db, gw: gw}
}

// PeriodForTime returns the ISO-8601 year-week identifier (e.g. "2026-W05")
// containing t, the settlement system's period key.
func PeriodForTime(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// PeriodBounds returns the [start, end) unix-second window for an
// ISO-week period string as produced by PeriodForTime.
func PeriodBounds(period string) (start, end int64, err error) {
	var year, week int
	if _, err := fmt.Sscanf(period, "%04d-W%02d", &year, &week); err != nil {
		return 0, 0, fmt.Errorf("malformed period %q: %w", period, err)
	}
	// ISO weeks start on Monday; Jan 4 always falls in week 1.
	jan4 := time.Date(year, 1, 4, 0, 0, 0, 0, time.UTC)
	daysToMonday := int(time.Monday - jan4.Weekday())
	if daysToMonday > 0 {
		daysToMonday -= 7
	}
	week1Monday := jan4.AddDate(0, 0, daysToMonday)
	startDate := week1Monday.AddDate(0, 0, (week-1)*7)
	endDate := startDate.AddDate(0, 0, 7)
	return startDate.Unix(), endDate.Unix(), nil
}

// MemberStanding is one member's inputs to the fair-share formula for a
// period.
type MemberStanding struct {
	Pubkey         string
	CapacitySats   int64
	ForwardedSats  int64
	UptimePct      float64
}

// FairShare computes each member's weighted 0-1 share of the period's
// total distributable fees, normalizing each raw component across the
// member set before applying the fixed weights.
func FairShare(members []MemberStanding) map[string]float64 {
	shares := make(map[string]float64, len(members))
	if len(members) == 0 {
		return shares
	}

	var totalCapacity, totalForwarded int64
	for _, m := range members {
		totalCapacity += m.CapacitySats
		totalForwarded += m.ForwardedSats
	}

	for _, m := range members {
		capNorm := safeRatio(m.CapacitySats, totalCapacity)
		fwdNorm := safeRatio(m.ForwardedSats, totalForwarded)
		shares[m.Pubkey] = weightCapacity*capNorm + weightForwards*fwdNorm + weightUptime*m.UptimePct
	}
	return normalize(shares)
}

func safeRatio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// normalize rescales shares to sum to 1 so rounding in the per-member
// components doesn't leave a residual undistributed.
func normalize(shares map[string]float64) map[string]float64 {
	var sum float64
	for _, v := range shares {
		sum += v
	}
	if sum == 0 {
		return shares
	}
	out := make(map[string]float64, len(shares))
	for k, v := range shares {
		out[k] = v / sum
	}
	return out
}

// Payouts converts fair shares into integer-sat payouts against
// totalFeesSats, floor-dividing so the sum never exceeds the pool.
func Payouts(members []MemberStanding, totalFeesSats int64) map[string]int64 {
	shares := FairShare(members)
	payouts := make(map[string]int64, len(shares))
	for pubkey, share := range shares {
		payouts[pubkey] = int64(share * float64(totalFeesSats))
	}
	return payouts
}

// DataHash computes the deterministic sha256 digest every node must
// reproduce identically: pubkeys sorted, each "pubkey:amount" pair
// colon-joined in that order, so floating-point share computation never
// leaks into the agreed hash (amounts are integer sats).
func DataHash(period string, payouts map[string]int64) string {
	keys := make([]string, 0, len(payouts))
	for k := range payouts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte("hive:settlement:" + period))
	for _, k := range keys {
		h.Write([]byte(fmt.Sprintf(":%s:%d", k, payouts[k])))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Propose computes the period's payouts from its contribution ledger,
// derives the agreement hash, and persists a new signed proposal. Payout
// amounts are the fair share applied to totalFeesSats, floor-divided so
// the sum never exceeds the pool.
func (m *Manager) Propose(ctx context.Context, period, proposer string, totalFeesSats int64, members []MemberStanding, now int64) (hivewire.SettlementProposal, map[string]int64, error) {
	if already, ok, err := m.db.GetProposalForPeriod(ctx, period); err != nil {
		return hivewire.SettlementProposal{}, nil, err
	} else if ok && already.Status != "stale" {
		return hivewire.SettlementProposal{}, nil, kerrors.New(kerrors.ConflictResolved, "period already has an active proposal")
	}

	payouts := Payouts(members, totalFeesSats)

	proposal := hivewire.SettlementProposal{
		ProposalID:  uuid.NewString(),
		Period:      period,
		Proposer:    proposer,
		DataHash:    DataHash(period, payouts),
		TotalFees:   totalFeesSats,
		MemberCount: len(members),
		CreatedAt:   now,
		Status:      "pending",
	}
	signingString := codec.SigningStringSettlementPropose(hivewire.SettlementProposePayload{
		ProposalID: proposal.ProposalID, Period: proposal.Period, Proposer: proposal.Proposer,
		DataHash: proposal.DataHash, TotalFees: proposal.TotalFees, MemberCount: proposal.MemberCount, Timestamp: now,
	})
	sig, err := m.gw.Sign(ctx, signingString)
	if err != nil {
		return hivewire.SettlementProposal{}, nil, err
	}
	proposal.Signature = sig

	if err := m.db.SaveSettlementProposal(ctx, proposal); err != nil {
		return hivewire.SettlementProposal{}, nil, err
	}
	m.broadcast(ctx, hivewire.TypeSettlementPropose, hivewire.SettlementProposePayload{
		ProposalID: proposal.ProposalID, Period: proposal.Period, Proposer: proposal.Proposer,
		DataHash: proposal.DataHash, TotalFees: proposal.TotalFees, MemberCount: proposal.MemberCount,
		Timestamp: proposal.CreatedAt, Signature: proposal.Signature,
	})
	return proposal, payouts, nil
}

// broadcast fans a signed payload out to every known member.
func (m *Manager) broadcast(ctx context.Context, t hivewire.MessageType, v any) {
	members, err := m.db.ListMembers(ctx)
	if err != nil {
		log.Printf("[Settlement] broadcast %s: list members failed: %v", t, err)
		return
	}
	recipients := make([]string, 0, len(members))
	for _, mem := range members {
		recipients = append(recipients, mem.Pubkey)
	}
	if err := m.gw.Broadcast(ctx, recipients, t, v); err != nil {
		log.Printf("[Settlement] broadcast %s failed: %v", t, err)
	}
}

// VerifyAndVoteReady recomputes the proposal's hash from the recipient's
// own view of the period's ledger and, if it matches, records a signed
// ready vote.
func (m *Manager) VerifyAndVoteReady(ctx context.Context, proposal hivewire.SettlementProposal, voter string, members []MemberStanding, now int64) error {
	payouts := Payouts(members, proposal.TotalFees)
	ours := DataHash(proposal.Period, payouts)
	if ours != proposal.DataHash {
		return kerrors.New(kerrors.InvalidPayload, "recomputed settlement hash does not match proposal")
	}

	signingString := codec.SigningStringSettlementPropose(hivewire.SettlementProposePayload{
		ProposalID: proposal.ProposalID, Period: proposal.Period, Proposer: proposal.Proposer,
		DataHash: proposal.DataHash, TotalFees: proposal.TotalFees, MemberCount: proposal.MemberCount,
		Timestamp: proposal.CreatedAt,
	})
	if err := m.gw.VerifySigner(ctx, signingString, proposal.Signature, proposal.Proposer); err != nil {
		return err
	}

	vote := hivewire.SettlementReadyVote{ProposalID: proposal.ProposalID, Voter: voter, Timestamp: now}
	readySigningString := codec.SigningStringSettlementReady(hivewire.SettlementReadyPayload{
		ProposalID: vote.ProposalID, Voter: vote.Voter, Timestamp: now,
	})
	sig, err := m.gw.Sign(ctx, readySigningString)
	if err != nil {
		return err
	}
	vote.Signature = sig
	if err := m.db.InsertReadyVote(ctx, vote); err != nil {
		return err
	}
	m.broadcast(ctx, hivewire.TypeSettlementReady, hivewire.SettlementReadyPayload{
		ProposalID: vote.ProposalID, Voter: vote.Voter, Timestamp: vote.Timestamp, Signature: vote.Signature,
	})
	return nil
}

// MaybeExecute transitions a proposal to ready once a strict majority of
// totalMembers has confirmed hash agreement, then records the caller's
// own execution.
func (m *Manager) MaybeExecute(ctx context.Context, proposalID, selfPubkey string, totalMembers int, amountSats int64, paymentHash *string, now int64) (bool, error) {
	readyVotes, err := m.db.CountReadyVotes(ctx, proposalID)
	if err != nil {
		return false, err
	}
	if readyVotes < totalMembers/2+1 {
		return false, nil
	}
	if err := m.db.UpdateSettlementStatus(ctx, proposalID, "ready"); err != nil {
		return false, err
	}

	execution := hivewire.SettlementExecution{
		ProposalID: proposalID, Member: selfPubkey, PaymentHash: paymentHash, AmountPaidSats: amountSats, Timestamp: now,
	}
	signingString := codec.SigningStringSettlementExecuted(hivewire.SettlementExecutedPayload{
		ProposalID: execution.ProposalID, Member: execution.Member, PaymentHash: execution.PaymentHash,
		AmountPaidSats: execution.AmountPaidSats, Timestamp: now,
	})
	sig, err := m.gw.Sign(ctx, signingString)
	if err != nil {
		return false, err
	}
	execution.Signature = sig
	if err := m.db.InsertSettlementExecution(ctx, execution); err != nil {
		return false, err
	}
	m.broadcast(ctx, hivewire.TypeSettlementExecuted, hivewire.SettlementExecutedPayload{
		ProposalID: execution.ProposalID, Member: execution.Member, PaymentHash: execution.PaymentHash,
		AmountPaidSats: execution.AmountPaidSats, Timestamp: execution.Timestamp, Signature: execution.Signature,
	})
	return true, nil
}

// VerifyAndRecordExecution verifies a peer-claimed SETTLEMENT_EXECUTED and
// persists it under the peer's own signature, the inbound counterpart to
// MaybeExecute's self-signed local record.
func (m *Manager) VerifyAndRecordExecution(ctx context.Context, p hivewire.SettlementExecutedPayload) error {
	signingString := codec.SigningStringSettlementExecuted(p)
	if err := m.gw.VerifySigner(ctx, signingString, p.Signature, p.Member); err != nil {
		return err
	}
	return m.db.InsertSettlementExecution(ctx, hivewire.SettlementExecution{
		ProposalID: p.ProposalID, Member: p.Member, PaymentHash: p.PaymentHash,
		AmountPaidSats: p.AmountPaidSats, Timestamp: p.Timestamp, Signature: p.Signature,
	})
}

// MaybeComplete closes a period once every member has recorded its
// execution, recording the total distributed for the permanent audit
// record.
func (m *Manager) MaybeComplete(ctx context.Context, proposalID, period string, totalMembers int, totalDistributed, now int64) (bool, error) {
	executions, err := m.db.CountSettlementExecutions(ctx, proposalID)
	if err != nil {
		return false, err
	}
	if executions < totalMembers {
		return false, nil
	}
	if err := m.db.UpdateSettlementStatus(ctx, proposalID, "completed"); err != nil {
		return false, err
	}
	if err := m.db.MarkPeriodSettled(ctx, period, totalDistributed, now); err != nil {
		return false, err
	}
	return true, nil
}

// AlreadySettled reports whether period has already closed, guarding the
// scheduler against re-proposing a finished period.
func (m *Manager) AlreadySettled(ctx context.Context, period string) (bool, error) {
	return m.db.IsPeriodSettled(ctx, period)
}

// RecordContribution appends one accounted flow toward the current
// period's fair-share computation.
func (m *Manager) RecordContribution(ctx context.Context, e hivewire.ContributionLedgerEntry, maxRows int) error {
	return m.db.AppendContribution(ctx, e, maxRows)
}

// ContributionsForPeriod aggregates forwarded-sats totals per peer over
// a period's bounds, one of FairShare's raw inputs.
func (m *Manager) ContributionsForPeriod(ctx context.Context, period string) (map[string]int64, error) {
	start, end, err := PeriodBounds(period)
	if err != nil {
		return nil, err
	}
	return m.db.ContributionsForPeriod(ctx, start, end)
}
