package codec

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// Signing-string functions produce the exact byte string a signer must
// cover for each message type. Each is a colon-joined, explicitly
// ordered concatenation of a declared field subset — stable across
// struct-field reordering or added JSON fields by construction, rather
// than by sorting map keys at runtime (spec.md §4.1, scenario 1: ATTEST
// signs "hive:attest:A:n1:<ts>").

func join(parts ...string) string {
	return strings.Join(parts, ":")
}

func i64(v int64) string { return strconv.FormatInt(v, 10) }

// SigningStringAttest covers pubkey, nonce, and timestamp.
func SigningStringAttest(pubkey, nonce string, timestamp int64) string {
	return join("hive", "attest", pubkey, nonce, i64(timestamp))
}

// SigningStringHello covers pubkey and timestamp.
func SigningStringHello(p hivewire.HelloPayload) string {
	return join("hive", "hello", p.Pubkey, i64(p.Timestamp))
}

// SigningStringChallenge covers sender, nonce, ttl, timestamp.
func SigningStringChallenge(p hivewire.ChallengePayload) string {
	return join("hive", "challenge", p.Sender, p.Nonce, i64(p.TTL), i64(p.Timestamp))
}

// SigningStringWelcome covers sender, candidate, timestamp.
func SigningStringWelcome(p hivewire.WelcomePayload) string {
	return join("hive", "welcome", p.Sender, p.Candidate, i64(p.Timestamp))
}

// SigningStringIntent covers id, type, target, initiator, timestamp.
func SigningStringIntent(p hivewire.IntentPayload) string {
	return join("hive", "intent", p.ID, string(p.Type), p.Target, p.Initiator, i64(p.Timestamp))
}

// SigningStringIntentAbort covers id, initiator, timestamp.
func SigningStringIntentAbort(p hivewire.IntentAbortPayload) string {
	return join("hive", "intent_abort", p.ID, p.Initiator, i64(p.Timestamp))
}

// SigningStringNomination covers round_id and the nominator's declared fields.
func SigningStringNomination(roundID string, n hivewire.Nomination) string {
	return join("hive", "expansion_nominate", roundID, n.Nominator, n.Target,
		i64(n.Timestamp), i64(n.AvailableLiquiditySats), strconv.FormatBool(n.HasExistingChannel))
}

// SigningStringExpansionElect covers round_id, target, elected, timestamp.
func SigningStringExpansionElect(p hivewire.ExpansionElectPayload) string {
	return join("hive", "expansion_elect", p.RoundID, p.Target, p.Elected, i64(p.Timestamp))
}

// SigningStringExpansionCancelled covers round_id, reason, timestamp.
func SigningStringExpansionCancelled(p hivewire.ExpansionCancelledPayload) string {
	return join("hive", "expansion_cancelled", p.RoundID, p.Reason, i64(p.Timestamp))
}

// SigningStringPeerAvailable covers reporter, peer, reason, timestamp.
func SigningStringPeerAvailable(p hivewire.PeerAvailablePayload) string {
	return join("hive", "peer_available", p.Reporter, p.Peer, p.Reason, i64(p.Timestamp))
}

// SigningStringBanPropose covers proposal_id, proposer, target, reason, timestamp.
func SigningStringBanPropose(p hivewire.BanProposePayload) string {
	return join("hive", "ban_propose", p.ProposalID, p.Proposer, p.Target, p.Reason, i64(p.Timestamp))
}

// SigningStringBanVote covers proposal_id, voter, approve, timestamp.
func SigningStringBanVote(p hivewire.BanVotePayload) string {
	return join("hive", "ban_vote", p.ProposalID, p.Voter, strconv.FormatBool(p.Approve), i64(p.Timestamp))
}

// SigningStringPromotionRequest covers request_id, candidate, timestamp.
func SigningStringPromotionRequest(p hivewire.PromotionRequestPayload) string {
	return join("hive", "promotion_request", p.RequestID, p.Candidate, i64(p.Timestamp))
}

// SigningStringVouch covers target, request_id, voucher, timestamp.
func SigningStringVouch(p hivewire.VouchPayload) string {
	return join("hive", "vouch", p.Target, p.RequestID, p.Voucher, i64(p.Timestamp))
}

// SigningStringPromotion covers request_id, target, vouch count, timestamp.
func SigningStringPromotion(p hivewire.PromotionPayload) string {
	return join("hive", "promotion", p.RequestID, p.Target, strconv.Itoa(len(p.Vouches)), i64(p.Timestamp))
}

// SigningStringFeeReport covers reporter, subject, base fee, ppm, timestamp.
func SigningStringFeeReport(p hivewire.FeeReportPayload) string {
	return join("hive", "fee_report", p.Reporter, p.Subject, i64(p.BaseFeeMsat), i64(p.FeePPM), i64(p.Timestamp))
}

// SigningStringLiquidityNeed covers reporter, subject, direction, urgency, timestamp.
func SigningStringLiquidityNeed(p hivewire.LiquidityNeedPayload) string {
	return join("hive", "liquidity_need", p.Reporter, p.Subject, p.Direction,
		strconv.FormatFloat(p.Urgency, 'f', -1, 64), i64(p.Timestamp))
}

// SigningStringRouteProbe covers reporter, subject, success, latency, cost, timestamp.
func SigningStringRouteProbe(p hivewire.RouteProbePayload) string {
	return join("hive", "route_probe", p.Reporter, p.Subject, strconv.FormatBool(p.Success),
		i64(p.LatencyMs), strconv.FormatFloat(p.CostPPM, 'f', -1, 64), i64(p.Timestamp))
}

// SigningStringPeerReputation covers reporter, subject, core metrics, timestamp.
func SigningStringPeerReputation(p hivewire.PeerReputationPayload) string {
	return join("hive", "peer_reputation", p.Reporter, p.Subject,
		strconv.FormatFloat(p.UptimePct, 'f', -1, 64),
		strconv.FormatFloat(p.HTLCSuccessPct, 'f', -1, 64),
		strconv.FormatFloat(p.FeeStability, 'f', -1, 64),
		strconv.Itoa(p.ForceCloses), i64(p.Timestamp))
}

// SigningStringSettlementPropose covers proposal_id, period, proposer, data_hash, timestamp.
func SigningStringSettlementPropose(p hivewire.SettlementProposePayload) string {
	return join("hive", "settlement_propose", p.ProposalID, p.Period, p.Proposer, p.DataHash, i64(p.Timestamp))
}

// SigningStringSettlementReady covers proposal_id, voter, timestamp.
func SigningStringSettlementReady(p hivewire.SettlementReadyPayload) string {
	return join("hive", "settlement_ready", p.ProposalID, p.Voter, i64(p.Timestamp))
}

// SigningStringSettlementExecuted covers proposal_id, member, amount, timestamp.
func SigningStringSettlementExecuted(p hivewire.SettlementExecutedPayload) string {
	return join("hive", "settlement_executed", p.ProposalID, p.Member, i64(p.AmountPaidSats), i64(p.Timestamp))
}

// RateLimitSpec is the per-sender, per-type budget: Count messages allowed
// per WindowSeconds.
type RateLimitSpec struct {
	Count         int
	WindowSeconds int64
}

// rateLimits is the per-type RateLimitSpec table.
var rateLimits = map[hivewire.MessageType]RateLimitSpec{
	hivewire.TypeHello:               {Count: 5, WindowSeconds: 60},
	hivewire.TypeChallenge:           {Count: 5, WindowSeconds: 60},
	hivewire.TypeAttest:              {Count: 5, WindowSeconds: 60},
	hivewire.TypeWelcome:             {Count: 5, WindowSeconds: 60},
	hivewire.TypePromotionRequest:    {Count: 3, WindowSeconds: 3600},
	hivewire.TypeVouch:               {Count: 20, WindowSeconds: 3600},
	hivewire.TypePromotion:           {Count: 10, WindowSeconds: 3600},
	hivewire.TypeBanPropose:          {Count: 5, WindowSeconds: 3600},
	hivewire.TypeBanVote:             {Count: 20, WindowSeconds: 3600},
	hivewire.TypeIntent:              {Count: 30, WindowSeconds: 60},
	hivewire.TypeIntentAbort:         {Count: 30, WindowSeconds: 60},
	hivewire.TypeExpansionNominate:   {Count: 10, WindowSeconds: 60},
	hivewire.TypeExpansionElect:      {Count: 10, WindowSeconds: 60},
	hivewire.TypeExpansionCancelled:  {Count: 10, WindowSeconds: 60},
	hivewire.TypePeerAvailable:       {Count: 10, WindowSeconds: 60},
	hivewire.TypeFeeReport:           {Count: 60, WindowSeconds: 3600},
	hivewire.TypeLiquidityNeed:       {Count: 60, WindowSeconds: 3600},
	hivewire.TypeRouteProbe:          {Count: 120, WindowSeconds: 3600},
	hivewire.TypePeerReputation:      {Count: 60, WindowSeconds: 3600},
	hivewire.TypeSettlementPropose:   {Count: 2, WindowSeconds: 604800},
	hivewire.TypeSettlementReady:     {Count: 5, WindowSeconds: 604800},
	hivewire.TypeSettlementExecuted:  {Count: 5, WindowSeconds: 604800},
}

// RateLimitFor returns the per-sender rate limit for a message type and
// whether one is defined.
func RateLimitFor(t hivewire.MessageType) (RateLimitSpec, bool) {
	spec, ok := rateLimits[t]
	return spec, ok
}

// maxAges bounds acceptable clock skew / staleness for types that carry
// time-sensitive semantics; absent entries have no codec-level age bound.
var maxAges = map[hivewire.MessageType]int64{
	hivewire.TypeChallenge:      120,
	hivewire.TypeAttest:         120,
	hivewire.TypeIntent:         3600,
	hivewire.TypeVouch:          3600,
	hivewire.TypePeerReputation: 86400,
	hivewire.TypeFeeReport:      86400,
	hivewire.TypeRouteProbe:     86400,
	hivewire.TypeLiquidityNeed:  86400,
}

// MaxAgeFor returns the max-age bound (seconds) for a message type, if any.
func MaxAgeFor(t hivewire.MessageType) (int64, bool) {
	age, ok := maxAges[t]
	return age, ok
}

// ValidateBounds checks the minimal shape/bound predicate shared by every
// signed gossip-style payload: non-empty reporter/subject identity and a
// plausible (non-negative) timestamp. Type-specific numeric bounds (e.g.
// urgency in [0,1]) are checked by the owning aggregator so the codec
// layer doesn't need to know every topic's domain range.
func ValidateBounds(reporter, subject string, timestamp int64) error {
	if reporter == "" {
		return fmt.Errorf("empty reporter")
	}
	if subject == "" {
		return fmt.Errorf("empty subject")
	}
	if timestamp <= 0 {
		return fmt.Errorf("non-positive timestamp")
	}
	return nil
}

// ValidatePubkeyFormat checks that pubkey is a well-formed 33-byte
// compressed secp256k1 public key in hex, the identity format every
// member/peer pubkey in this protocol uses. This rejects malformed
// identity strings before they reach a lexicographic tiebreak or an
// identity-binding comparison, where a garbage string would otherwise
// compare "successfully" against itself.
func ValidatePubkeyFormat(pubkey string) error {
	raw, err := hex.DecodeString(pubkey)
	if err != nil {
		return fmt.Errorf("pubkey is not valid hex: %w", err)
	}
	if _, err := btcec.ParsePubKey(raw); err != nil {
		return fmt.Errorf("pubkey is not a valid compressed secp256k1 point: %w", err)
	}
	return nil
}
