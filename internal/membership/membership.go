// Package membership implements tier/eligibility rules, uptime
// accounting, promotion quorum, and ban proposals (spec.md §4.4).
package membership

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/lightning-goats/cl-hive-sub000/internal/codec"
	"github.com/lightning-goats/cl-hive-sub000/internal/config"
	"github.com/lightning-goats/cl-hive-sub000/internal/gateway"
	"github.com/lightning-goats/cl-hive-sub000/internal/kerrors"
	"github.com/lightning-goats/cl-hive-sub000/internal/store"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// Manager owns tier transitions and uptime accounting for the hive.
type Manager struct {
	db *store.Store
	gw *gateway.Client
}

// NewManager builds a membership manager over db and gw.
func NewManager(db *store.Store, gw *gateway.Client) *Manager {
	return &Manager{db: db, gw: gw}
}

// Admit records a freshly welcomed candidate as a neophyte.
func (m *Manager) Admit(ctx context.Context, candidate string, now int64) error {
	if err := codec.ValidatePubkeyFormat(candidate); err != nil {
		return kerrors.Wrap(kerrors.InvalidPayload, "malformed candidate pubkey", err)
	}
	member := hivewire.Member{
		Pubkey:          candidate,
		Tier:            hivewire.TierNeophyte,
		JoinedAt:        now,
		LastSeen:        now,
		WindowStart:     now,
		CurrentlyOnline: true,
	}
	return m.db.UpsertMember(ctx, member)
}

// RecordPresence updates a member's rolling online-seconds accumulator.
// The window resets at WINDOW resolution (spec.md §4.4's uptime
// accounting); transitioning online<->offline is tracked so the reaper
// can flush partial windows at snapshot time.
func (m *Manager) RecordPresence(ctx context.Context, pubkey string, online bool, now int64, windowSeconds int64) error {
	member, ok, err := m.db.GetMember(ctx, pubkey)
	if err != nil {
		return err
	}
	if !ok {
		return kerrors.New(kerrors.NotMember, "presence report for non-member")
	}

	if member.CurrentlyOnline {
		elapsed := now - member.LastTransitionTime
		if elapsed > 0 {
			member.OnlineSecondsRoll += elapsed
		}
	}

	if now-member.WindowStart >= windowSeconds {
		windowLen := now - member.WindowStart
		if windowLen > 0 {
			member.UptimePct = clamp01(float64(member.OnlineSecondsRoll) / float64(windowLen))
		}
		member.OnlineSecondsRoll = 0
		member.WindowStart = now
	}

	member.CurrentlyOnline = online
	member.LastTransitionTime = now
	member.LastSeen = now
	return m.db.UpsertMember(ctx, member)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RequestPromotion begins a neophyte's promotion to member. Eligibility
// requires the neophyte to have served ProbationDays since joining.
func (m *Manager) RequestPromotion(ctx context.Context, candidate string, now int64, cfg config.Snapshot) (hivewire.PromotionRequest, error) {
	member, ok, err := m.db.GetMember(ctx, candidate)
	if err != nil {
		return hivewire.PromotionRequest{}, err
	}
	if !ok || member.Tier != hivewire.TierNeophyte {
		return hivewire.PromotionRequest{}, kerrors.New(kerrors.NotMember, "only neophytes may request promotion")
	}

	probationSeconds := int64(cfg.ProbationDays) * 86400
	if now-member.JoinedAt < probationSeconds {
		return hivewire.PromotionRequest{}, kerrors.New(kerrors.InvalidPayload, "probation period not yet served")
	}

	req := hivewire.PromotionRequest{
		RequestID: uuid.NewString(),
		Candidate: candidate,
		CreatedAt: now,
	}
	signingString := codec.SigningStringPromotionRequest(hivewire.PromotionRequestPayload{
		RequestID: req.RequestID, Candidate: req.Candidate, Timestamp: req.CreatedAt,
	})
	sig, err := m.gw.Sign(ctx, signingString)
	if err != nil {
		return hivewire.PromotionRequest{}, err
	}
	req.Signature = sig

	if err := m.db.SavePromotionRequest(ctx, req); err != nil {
		return hivewire.PromotionRequest{}, err
	}
	return req, nil
}

// Vouch is a voting member's endorsement of an outstanding request. A
// member may only vouch once per request; vouches from non-members or
// from the candidate itself are rejected.
func (m *Manager) Vouch(ctx context.Context, v hivewire.PromotionVouch) error {
	if v.Voucher == v.Target {
		return kerrors.New(kerrors.InvalidPayload, "candidate cannot vouch for itself")
	}
	voucherMember, ok, err := m.db.GetMember(ctx, v.Voucher)
	if err != nil {
		return err
	}
	if !ok || voucherMember.Tier == hivewire.TierNeophyte {
		return kerrors.New(kerrors.NotMember, "only members or admins may vouch")
	}

	signingString := codec.SigningStringVouch(hivewire.VouchPayload{
		RequestID: v.RequestID, Target: v.Target, Voucher: v.Voucher, Timestamp: v.Timestamp,
	})
	if err := m.gw.VerifySigner(ctx, signingString, v.Signature, v.Voucher); err != nil {
		return err
	}
	return m.db.InsertVouch(ctx, v)
}

// MaybePromote checks whether a request has crossed VouchThresholdPct of
// the voting membership (excluding the candidate) and, if so, promotes
// the candidate to member and returns the completed PromotionPayload.
func (m *Manager) MaybePromote(ctx context.Context, requestID string, now int64, cfg config.Snapshot) (hivewire.PromotionPayload, bool, error) {
	req, ok, err := m.db.GetPromotionRequest(ctx, requestID)
	if err != nil || !ok {
		return hivewire.PromotionPayload{}, false, err
	}

	vouches, err := m.db.ListVouches(ctx, requestID)
	if err != nil {
		return hivewire.PromotionPayload{}, false, err
	}
	if len(vouches) < cfg.MinVouchCount {
		return hivewire.PromotionPayload{}, false, nil
	}

	members, err := m.db.ListMembers(ctx)
	if err != nil {
		return hivewire.PromotionPayload{}, false, err
	}
	voters := 0
	for _, mem := range members {
		if mem.Tier != hivewire.TierNeophyte && mem.Pubkey != req.Candidate {
			voters++
		}
	}
	if voters == 0 || float64(len(vouches))/float64(voters) < cfg.VouchThresholdPct {
		return hivewire.PromotionPayload{}, false, nil
	}

	member, ok, err := m.db.GetMember(ctx, req.Candidate)
	if err != nil || !ok {
		return hivewire.PromotionPayload{}, false, err
	}
	member.Tier = hivewire.TierMember
	promotedAt := now
	member.PromotedAt = &promotedAt
	member.VouchCount = len(vouches)
	if err := m.db.UpsertMember(ctx, member); err != nil {
		return hivewire.PromotionPayload{}, false, err
	}

	payload := hivewire.PromotionPayload{RequestID: requestID, Target: req.Candidate, Vouches: vouches, Timestamp: now}
	signingString := codec.SigningStringPromotion(payload)
	sig, err := m.gw.Sign(ctx, signingString)
	if err != nil {
		return hivewire.PromotionPayload{}, false, err
	}
	payload.Signature = sig
	return payload, true, nil
}

// ProposeBan begins a ban vote against target.
func (m *Manager) ProposeBan(ctx context.Context, proposer, target, reason string, now int64) (hivewire.BanProposal, error) {
	proposal := hivewire.BanProposal{
		ProposalID: uuid.NewString(),
		Proposer:   proposer,
		Target:     target,
		Reason:     reason,
		CreatedAt:  now,
		Status:     "pending",
	}
	signingString := codec.SigningStringBanPropose(hivewire.BanProposePayload{
		ProposalID: proposal.ProposalID, Proposer: proposer, Target: target, Reason: reason, Timestamp: now,
	})
	sig, err := m.gw.Sign(ctx, signingString)
	if err != nil {
		return hivewire.BanProposal{}, err
	}
	proposal.Signature = sig
	if err := m.db.SaveBanProposal(ctx, proposal); err != nil {
		return hivewire.BanProposal{}, err
	}
	m.broadcast(ctx, hivewire.TypeBanPropose, hivewire.BanProposePayload{
		ProposalID: proposal.ProposalID, Proposer: proposal.Proposer, Target: proposal.Target,
		Reason: proposal.Reason, ExpiresAt: proposal.ExpiresAt, Timestamp: proposal.CreatedAt, Signature: proposal.Signature,
	})
	return proposal, nil
}

// RecordRemoteBanProposal verifies and persists a peer-originated ban
// proposal under the peer's own ProposalID and Signature. Unlike
// ProposeBan, which mints a fresh ID for a locally-originated proposal,
// this preserves the proposer's ID so every node's CountBanVotes/
// MaybeEnforce quorum tally keys off the same proposal.
func (m *Manager) RecordRemoteBanProposal(ctx context.Context, p hivewire.BanProposePayload) error {
	signingString := codec.SigningStringBanPropose(p)
	if err := m.gw.VerifySigner(ctx, signingString, p.Signature, p.Proposer); err != nil {
		return err
	}
	return m.db.SaveBanProposal(ctx, hivewire.BanProposal{
		ProposalID: p.ProposalID, Proposer: p.Proposer, Target: p.Target, Reason: p.Reason,
		ExpiresAt: p.ExpiresAt, CreatedAt: p.Timestamp, Status: "pending", Signature: p.Signature,
	})
}

// Vote records a member's ballot on a ban proposal.
func (m *Manager) Vote(ctx context.Context, v hivewire.BanVote) error {
	signingString := codec.SigningStringBanVote(hivewire.BanVotePayload{
		ProposalID: v.ProposalID, Voter: v.Voter, Approve: v.Approve, Timestamp: v.Timestamp,
	})
	if err := m.gw.VerifySigner(ctx, signingString, v.Signature, v.Voter); err != nil {
		return err
	}
	return m.db.InsertBanVote(ctx, v)
}

// CastVote signs and persists voter's own ballot on proposalID, then
// broadcasts it so every other member's local tally stays in sync. This
// is the local-origination counterpart to Vote, which records an
// already-signed ballot received from a peer.
func (m *Manager) CastVote(ctx context.Context, proposalID, voter string, approve bool, now int64) (hivewire.BanVote, error) {
	v := hivewire.BanVote{ProposalID: proposalID, Voter: voter, Approve: approve, Timestamp: now}
	signingString := codec.SigningStringBanVote(hivewire.BanVotePayload{
		ProposalID: v.ProposalID, Voter: v.Voter, Approve: v.Approve, Timestamp: v.Timestamp,
	})
	sig, err := m.gw.Sign(ctx, signingString)
	if err != nil {
		return hivewire.BanVote{}, err
	}
	v.Signature = sig
	if err := m.db.InsertBanVote(ctx, v); err != nil {
		return hivewire.BanVote{}, err
	}
	m.broadcast(ctx, hivewire.TypeBanVote, hivewire.BanVotePayload{
		ProposalID: v.ProposalID, Voter: v.Voter, Approve: v.Approve, Timestamp: v.Timestamp, Signature: v.Signature,
	})
	return v, nil
}

// broadcast fans a signed payload out to every known member, of any tier.
func (m *Manager) broadcast(ctx context.Context, t hivewire.MessageType, v any) {
	members, err := m.db.ListMembers(ctx)
	if err != nil {
		log.Printf("[Membership] broadcast %s: list members failed: %v", t, err)
		return
	}
	recipients := make([]string, 0, len(members))
	for _, mem := range members {
		recipients = append(recipients, mem.Pubkey)
	}
	if err := m.gw.Broadcast(ctx, recipients, t, v); err != nil {
		log.Printf("[Membership] broadcast %s failed: %v", t, err)
	}
}

// MaybeEnforce checks a ban proposal's simple-majority quorum over
// current voting members and, if reached, enforces the ban.
func (m *Manager) MaybeEnforce(ctx context.Context, proposalID, target, reason string, now int64) (bool, error) {
	approve, reject, err := m.db.CountBanVotes(ctx, proposalID)
	if err != nil {
		return false, err
	}
	members, err := m.db.ListMembers(ctx)
	if err != nil {
		return false, err
	}
	voters := 0
	for _, mem := range members {
		if mem.Tier != hivewire.TierNeophyte {
			voters++
		}
	}
	if voters == 0 || approve+reject < voters/2+1 {
		return false, nil
	}
	if approve <= reject {
		return false, m.db.UpdateBanProposalStatus(ctx, proposalID, "rejected")
	}

	if err := m.db.UpdateBanProposalStatus(ctx, proposalID, "approved"); err != nil {
		return false, err
	}
	if err := m.db.InsertHiveBan(ctx, target, reason, now, nil); err != nil {
		return false, err
	}
	if err := m.db.DeleteMember(ctx, target); err != nil {
		return false, err
	}
	return true, nil
}

// CheckLeechRatio flags (but does not autotrigger a ban for) a member
// whose received/forwarded ratio over LeechWindowDays exceeds
// LeechBanRatio — spec.md §9: cooperative leech bans default to
// flag-only unless explicitly escalated by configuration.
func (m *Manager) CheckLeechRatio(ctx context.Context, peer string, forwarded, received int64, now int64, cfg config.Snapshot) error {
	if forwarded == 0 {
		return nil
	}
	ratio := float64(received) / float64(forwarded)
	if ratio <= cfg.LeechBanRatio {
		return nil
	}
	return m.db.InsertLeechFlag(ctx, peer, ratio, cfg.LeechWindowDays, now)
}
