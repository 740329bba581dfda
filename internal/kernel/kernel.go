// Package kernel wires every protocol manager behind one dispatch table
// keyed by hivewire.MessageType and runs the per-cycle Config snapshot
// every handler must capture before acting (spec.md §9).
package kernel

import (
	"context"
	"encoding/json"

	"github.com/lightning-goats/cl-hive-sub000/internal/codec"
	"github.com/lightning-goats/cl-hive-sub000/internal/config"
	"github.com/lightning-goats/cl-hive-sub000/internal/expansion"
	"github.com/lightning-goats/cl-hive-sub000/internal/gateway"
	"github.com/lightning-goats/cl-hive-sub000/internal/gossip"
	"github.com/lightning-goats/cl-hive-sub000/internal/handshake"
	"github.com/lightning-goats/cl-hive-sub000/internal/intent"
	"github.com/lightning-goats/cl-hive-sub000/internal/kerrors"
	"github.com/lightning-goats/cl-hive-sub000/internal/membership"
	"github.com/lightning-goats/cl-hive-sub000/internal/settlement"
	"github.com/lightning-goats/cl-hive-sub000/internal/store"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// Kernel owns every protocol manager and the single Dispatch entry point
// the transport layer hands decoded frames to.
type Kernel struct {
	cfg *config.Config
	db  *store.Store
	gw  *gateway.Client

	selfPubkey string

	Handshake  *handshake.Manager
	Membership *membership.Manager
	Intent     *intent.Manager
	Expansion  *expansion.Manager
	Gossip     *gossip.Manager
	Settlement *settlement.Manager
	Divergence *DivergenceEvaluator
}

// New builds a fully wired Kernel over cfg, db, and gw.
func New(cfg *config.Config, db *store.Store, gw *gateway.Client, selfPubkey string) *Kernel {
	return &Kernel{
		cfg:        cfg,
		db:         db,
		gw:         gw,
		selfPubkey: selfPubkey,
		Handshake:  handshake.NewManager(gw, selfPubkey),
		Membership: membership.NewManager(db, gw),
		Intent:     intent.NewManager(db, gw),
		Expansion:  expansion.NewManager(db, gw, selfPubkey),
		Gossip:     gossip.NewManager(db, gw, selfPubkey),
		Settlement: settlement.NewManager(db, gw),
		Divergence: NewDivergenceEvaluator(db, int64(cfg.MaxPlannerLogRows)),
	}
}

// Dispatch decodes frame.Payload per frame.Type and routes it to the
// owning manager. sender is the transport-layer signer of the message,
// independent of whatever "reporter"/"initiator" field the payload
// itself claims — callers that need identity binding (gossip) compare
// the two explicitly.
func (k *Kernel) Dispatch(ctx context.Context, sender string, frame codec.Frame, now int64) error {
	snap := k.cfg.Snapshot()

	switch frame.Type {
	case hivewire.TypeHello:
		var p hivewire.HelloPayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		hasChannel, err := k.hasChannelWith(ctx, p.Pubkey)
		if err != nil {
			return err
		}
		_, err = k.Handshake.HandleHello(ctx, p, hasChannel, int64(snap.IntentExpireSeconds), now)
		return err

	case hivewire.TypeAttest:
		var p hivewire.AttestPayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		if err := k.Handshake.VerifyAttest(ctx, p, now); err != nil {
			return err
		}
		return k.Membership.Admit(ctx, p.Manifest.Pubkey, now)

	case hivewire.TypeIntent:
		var p hivewire.IntentPayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		return k.handleIncomingIntent(ctx, p, now)

	case hivewire.TypeIntentAbort:
		var p hivewire.IntentAbortPayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		return k.Intent.HandleAbort(ctx, p)

	case hivewire.TypeExpansionNominate:
		var p hivewire.ExpansionNominatePayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		signingString := codec.SigningStringNomination(p.RoundID, p.Nomination)
		if err := k.gw.VerifySigner(ctx, signingString, p.Signature, p.Nomination.Nominator); err != nil {
			return err
		}
		_, err := k.Expansion.Nominate(ctx, p.RoundID, p.Nomination)
		return err

	case hivewire.TypePeerAvailable:
		var p hivewire.PeerAvailablePayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		return k.Gossip.IngestPeerEvent(ctx, hivewire.PeerEvent{
			Reporter: p.Reporter, Subject: p.Peer, Kind: "remote_available", Timestamp: p.Timestamp, Signature: p.Signature,
		}, sender, now, snap)

	case hivewire.TypeFeeReport:
		var p hivewire.FeeReportPayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		return k.Gossip.IngestFeeReport(ctx, hivewire.FeeIntelReport{
			Reporter: p.Reporter, Subject: p.Subject, BaseFeeMsat: p.BaseFeeMsat, FeePPM: p.FeePPM, Timestamp: p.Timestamp, Signature: p.Signature,
		}, sender, now, snap)

	case hivewire.TypeLiquidityNeed:
		var p hivewire.LiquidityNeedPayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		return k.Gossip.IngestLiquidityNeed(ctx, hivewire.LiquidityNeed{
			Reporter: p.Reporter, Subject: p.Subject, Direction: p.Direction, Urgency: p.Urgency, Timestamp: p.Timestamp, Signature: p.Signature,
		}, sender, now, snap)

	case hivewire.TypeRouteProbe:
		var p hivewire.RouteProbePayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		return k.Gossip.IngestRouteProbe(ctx, hivewire.RouteProbe{
			Reporter: p.Reporter, Subject: p.Subject, Success: p.Success, LatencyMs: p.LatencyMs, CostPPM: p.CostPPM, Timestamp: p.Timestamp, Signature: p.Signature,
		}, sender, now, snap)

	case hivewire.TypePeerReputation:
		var p hivewire.PeerReputationPayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		return k.Gossip.IngestReputationReport(ctx, hivewire.ReputationReport{
			Reporter: p.Reporter, Subject: p.Subject, UptimePct: p.UptimePct, HTLCSuccessPct: p.HTLCSuccessPct,
			FeeStability: p.FeeStability, ForceCloses: p.ForceCloses, Warnings: p.Warnings, Timestamp: p.Timestamp, Signature: p.Signature,
		}, sender, now, snap)

	case hivewire.TypeBanPropose:
		var p hivewire.BanProposePayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		return k.Membership.RecordRemoteBanProposal(ctx, p)

	case hivewire.TypeBanVote:
		var p hivewire.BanVotePayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		return k.Membership.Vote(ctx, hivewire.BanVote{
			ProposalID: p.ProposalID, Voter: p.Voter, Approve: p.Approve, Timestamp: p.Timestamp, Signature: p.Signature,
		})

	case hivewire.TypePromotionRequest:
		var p hivewire.PromotionRequestPayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		_, err := k.Membership.RequestPromotion(ctx, p.Candidate, now, snap)
		return err

	case hivewire.TypeVouch:
		var p hivewire.VouchPayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		return k.Membership.Vouch(ctx, hivewire.PromotionVouch{
			RequestID: p.RequestID, Target: p.Target, Voucher: p.Voucher, Timestamp: p.Timestamp, Signature: p.Signature,
		})

	case hivewire.TypeSettlementPropose:
		var p hivewire.SettlementProposePayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		proposal := hivewire.SettlementProposal{
			ProposalID: p.ProposalID, Period: p.Period, Proposer: p.Proposer, DataHash: p.DataHash,
			TotalFees: p.TotalFees, MemberCount: p.MemberCount, CreatedAt: p.Timestamp, Status: "pending", Signature: p.Signature,
		}
		standings, err := k.settlementStandings(ctx, proposal.Period)
		if err != nil {
			return err
		}
		return k.Settlement.VerifyAndVoteReady(ctx, proposal, k.selfPubkey, standings, now)

	case hivewire.TypeSettlementReady:
		var p hivewire.SettlementReadyPayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		signingString := codec.SigningStringSettlementReady(p)
		if err := k.gw.VerifySigner(ctx, signingString, p.Signature, p.Voter); err != nil {
			return err
		}
		if err := k.db.InsertReadyVote(ctx, hivewire.SettlementReadyVote{
			ProposalID: p.ProposalID, Voter: p.Voter, Timestamp: p.Timestamp, Signature: p.Signature,
		}); err != nil {
			return err
		}
		return k.maybeExecuteSettlement(ctx, p.ProposalID, now)

	case hivewire.TypeSettlementExecuted:
		var p hivewire.SettlementExecutedPayload
		if err := unmarshal(frame.Payload, &p); err != nil {
			return err
		}
		if err := k.Settlement.VerifyAndRecordExecution(ctx, p); err != nil {
			return err
		}
		return k.maybeCompleteSettlement(ctx, p.ProposalID, now)

	default:
		return kerrors.New(kerrors.InvalidPayload, "no handler registered for message type "+frame.Type.String())
	}
}

func unmarshal(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return kerrors.Wrap(kerrors.InvalidPayload, "malformed payload", err)
	}
	return nil
}

// hasChannelWith reports whether the local node already has a channel
// open to candidate, the fast-track check HandleHello uses to decide
// whether a fresh challenge is even worth issuing.
func (k *Kernel) hasChannelWith(ctx context.Context, candidate string) (bool, error) {
	channels, err := k.gw.ListPeerChannels(ctx)
	if err != nil {
		return false, err
	}
	for _, ch := range channels {
		if ch.PeerID == candidate {
			return true, nil
		}
	}
	return false, nil
}

// handleIncomingIntent resolves a peer's ANNOUNCE against any pending
// intent we hold on the same conflict domain, broadcasting an abort if
// we lose the tiebreak.
func (k *Kernel) handleIncomingIntent(ctx context.Context, theirs hivewire.IntentPayload, now int64) error {
	signingString := codec.SigningStringIntent(theirs)
	if err := k.gw.VerifySigner(ctx, signingString, theirs.Signature, theirs.Initiator); err != nil {
		return err
	}

	ours, ok, err := k.db.GetActiveIntentForTarget(ctx, theirs.Type, theirs.Target)
	if err != nil {
		return err
	}
	if !ok || ours.Initiator == theirs.Initiator {
		return nil
	}
	_, err = k.Intent.ResolveConflict(ctx, ours, theirs, now)
	return err
}

// settlementStandings rebuilds each current member's fair-share inputs for
// period from the local contribution ledger, the same computation a
// proposer and every verifying recipient must reproduce identically.
func (k *Kernel) settlementStandings(ctx context.Context, period string) ([]settlement.MemberStanding, error) {
	contributions, err := k.Settlement.ContributionsForPeriod(ctx, period)
	if err != nil {
		return nil, err
	}
	members, err := k.db.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	standings := make([]settlement.MemberStanding, 0, len(members))
	for _, mem := range members {
		standings = append(standings, settlement.MemberStanding{
			Pubkey:        mem.Pubkey,
			ForwardedSats: contributions[mem.Pubkey],
			UptimePct:     mem.UptimePct,
		})
	}
	return standings, nil
}

// maybeExecuteSettlement checks whether proposalID has reached ready-vote
// quorum and, if so, records and broadcasts our own execution for it.
func (k *Kernel) maybeExecuteSettlement(ctx context.Context, proposalID string, now int64) error {
	proposal, ok, err := k.db.GetSettlementProposal(ctx, proposalID)
	if err != nil || !ok {
		return err
	}
	standings, err := k.settlementStandings(ctx, proposal.Period)
	if err != nil {
		return err
	}
	payouts := settlement.Payouts(standings, proposal.TotalFees)
	_, err = k.Settlement.MaybeExecute(ctx, proposal.ProposalID, k.selfPubkey, len(standings), payouts[k.selfPubkey], nil, now)
	return err
}

// maybeCompleteSettlement checks whether every member has recorded its
// execution for proposalID and, if so, closes the period out.
func (k *Kernel) maybeCompleteSettlement(ctx context.Context, proposalID string, now int64) error {
	proposal, ok, err := k.db.GetSettlementProposal(ctx, proposalID)
	if err != nil || !ok {
		return err
	}
	members, err := k.db.ListMembers(ctx)
	if err != nil {
		return err
	}
	_, err = k.Settlement.MaybeComplete(ctx, proposal.ProposalID, proposal.Period, len(members), proposal.TotalFees, now)
	return err
}

// RecordForward accounts one settled forward's fee as a contribution from
// the peer on the other end of outChannel, fed by the host daemon's
// forward_event notification (see internal/plugin).
func (k *Kernel) RecordForward(ctx context.Context, outChannel string, feeMsat int64, now int64) error {
	peer, err := k.resolveChannelPeer(ctx, outChannel)
	if err != nil {
		return err
	}
	if peer == "" {
		return kerrors.New(kerrors.Stale, "forward_event references an unknown channel")
	}
	return k.Settlement.RecordContribution(ctx, hivewire.ContributionLedgerEntry{
		Peer: peer, Direction: "forwarded", AmountSat: feeMsat / 1000, Timestamp: now,
	}, k.cfg.MaxContributionRows)
}

func (k *Kernel) resolveChannelPeer(ctx context.Context, channelID string) (string, error) {
	channels, err := k.gw.ListPeerChannels(ctx)
	if err != nil {
		return "", err
	}
	for _, ch := range channels {
		if ch.ChannelID == channelID {
			return ch.PeerID, nil
		}
	}
	return "", nil
}
