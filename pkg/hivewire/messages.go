package hivewire

// MessageType is the one-byte frame type tag. Values are assigned
// sequentially from 1 and do not reuse the original cl-hive
// BOLT-custom-message IDs, since framing is magic-tagged and
// length-prefixed rather than range-gated.
type MessageType byte

const (
	TypeHello MessageType = iota + 1
	TypeChallenge
	TypeAttest
	TypeWelcome
	TypePromotionRequest
	TypeVouch
	TypePromotion
	TypeBanPropose
	TypeBanVote
	TypeIntent
	TypeIntentAbort
	TypeExpansionNominate
	TypeExpansionElect
	TypeExpansionCancelled
	TypePeerAvailable
	TypeFeeReport
	TypeLiquidityNeed
	TypeRouteProbe
	TypePeerReputation
	TypeSettlementPropose
	TypeSettlementReady
	TypeSettlementExecuted
	TypeSpliceInitRequest
	TypeSpliceInitResponse
	TypeSpliceUpdate
	TypeSpliceSigned
	TypeSpliceAbort
)

// String names a message type for logging; unknown types print
// "UNKNOWN" rather than panicking.
func (t MessageType) String() string {
	switch t {
	case TypeHello:
		return "HELLO"
	case TypeChallenge:
		return "CHALLENGE"
	case TypeAttest:
		return "ATTEST"
	case TypeWelcome:
		return "WELCOME"
	case TypePromotionRequest:
		return "PROMOTION_REQUEST"
	case TypeVouch:
		return "VOUCH"
	case TypePromotion:
		return "PROMOTION"
	case TypeBanPropose:
		return "BAN_PROPOSE"
	case TypeBanVote:
		return "BAN_VOTE"
	case TypeIntent:
		return "INTENT"
	case TypeIntentAbort:
		return "INTENT_ABORT"
	case TypeExpansionNominate:
		return "EXPANSION_NOMINATE"
	case TypeExpansionElect:
		return "EXPANSION_ELECT"
	case TypeExpansionCancelled:
		return "EXPANSION_CANCELLED"
	case TypePeerAvailable:
		return "PEER_AVAILABLE"
	case TypeFeeReport:
		return "FEE_REPORT"
	case TypeLiquidityNeed:
		return "LIQUIDITY_NEED"
	case TypeRouteProbe:
		return "ROUTE_PROBE"
	case TypePeerReputation:
		return "PEER_REPUTATION"
	case TypeSettlementPropose:
		return "SETTLEMENT_PROPOSE"
	case TypeSettlementReady:
		return "SETTLEMENT_READY"
	case TypeSettlementExecuted:
		return "SETTLEMENT_EXECUTED"
	case TypeSpliceInitRequest:
		return "SPLICE_INIT_REQUEST"
	case TypeSpliceInitResponse:
		return "SPLICE_INIT_RESPONSE"
	case TypeSpliceUpdate:
		return "SPLICE_UPDATE"
	case TypeSpliceSigned:
		return "SPLICE_SIGNED"
	case TypeSpliceAbort:
		return "SPLICE_ABORT"
	default:
		return "UNKNOWN"
	}
}

// HelloPayload announces a candidate's pubkey to begin a handshake.
type HelloPayload struct {
	Pubkey    string `json:"pubkey"`
	Timestamp int64  `json:"timestamp"`
}

// ChallengePayload carries a fresh nonce with a TTL for the candidate to sign.
type ChallengePayload struct {
	Sender    string `json:"sender"`
	Nonce     string `json:"nonce"`
	TTL       int64  `json:"ttl"`
	Timestamp int64  `json:"timestamp"`
}

// Manifest is the capability attestation a candidate signs during ATTEST.
type Manifest struct {
	Pubkey       string   `json:"pubkey"`
	Nonce        string   `json:"nonce"`
	Timestamp    int64    `json:"timestamp"`
	Capabilities []string `json:"capabilities"`
}

// AttestPayload carries the signed manifest back to the member.
type AttestPayload struct {
	Sender    string   `json:"sender"`
	Manifest  Manifest `json:"manifest"`
	Signature string   `json:"signature"`
}

// WelcomePayload admits a candidate as a neophyte.
type WelcomePayload struct {
	Sender    string `json:"sender"`
	Candidate string `json:"candidate"`
	Timestamp int64  `json:"timestamp"`
}

// IntentPayload is the signed ANNOUNCE for the Intent protocol.
type IntentPayload struct {
	ID          string     `json:"id"`
	Type        IntentType `json:"type"`
	Target      string     `json:"target"`
	Initiator   string     `json:"initiator"`
	Timestamp   int64      `json:"timestamp"`
	Signature   string     `json:"signature"`
}

// IntentAbortPayload is broadcast by a losing node after tie-break resolution.
type IntentAbortPayload struct {
	ID        string `json:"id"`
	Initiator string `json:"initiator"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// ExpansionNominatePayload carries one member's nomination for a round.
type ExpansionNominatePayload struct {
	RoundID    string     `json:"round_id"`
	Nomination Nomination `json:"nomination"`
	Signature  string     `json:"signature"`
}

// ExpansionElectPayload announces the winner of a round.
type ExpansionElectPayload struct {
	RoundID   string `json:"round_id"`
	Target    string `json:"target"`
	Elected   string `json:"elected"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// ExpansionCancelledPayload cancels an in-flight round.
type ExpansionCancelledPayload struct {
	RoundID   string `json:"round_id"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// PeerAvailablePayload reports that an external peer became reachable
// again (e.g. after a remote close) and is a candidate for expansion.
type PeerAvailablePayload struct {
	Reporter  string `json:"reporter"`
	Peer      string `json:"peer"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// BanProposePayload announces a ban proposal.
type BanProposePayload struct {
	ProposalID string `json:"proposal_id"`
	Proposer   string `json:"proposer"`
	Target     string `json:"target"`
	Reason     string `json:"reason"`
	ExpiresAt  *int64 `json:"expires_at,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Signature  string `json:"signature"`
}

// BanVotePayload is a signed ballot on a ban proposal.
type BanVotePayload struct {
	ProposalID string `json:"proposal_id"`
	Voter      string `json:"voter"`
	Approve    bool   `json:"approve"`
	Timestamp  int64  `json:"timestamp"`
	Signature  string `json:"signature"`
}

// PromotionRequestPayload is a neophyte's request to be promoted.
type PromotionRequestPayload struct {
	RequestID string `json:"request_id"`
	Candidate string `json:"candidate"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// VouchPayload is a member's endorsement bound to (target, request_id, voucher, timestamp).
type VouchPayload struct {
	RequestID string `json:"request_id"`
	Target    string `json:"target"`
	Voucher   string `json:"voucher"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// PromotionPayload carries the accumulated vouches that complete a promotion.
type PromotionPayload struct {
	RequestID string           `json:"request_id"`
	Target    string           `json:"target"`
	Vouches   []PromotionVouch `json:"vouches"`
	Timestamp int64            `json:"timestamp"`
	Signature string           `json:"signature"`
}

// FeeReportPayload is a signed fee-intelligence observation.
type FeeReportPayload struct {
	Reporter    string `json:"reporter"`
	Subject     string `json:"subject"`
	BaseFeeMsat int64  `json:"base_fee_msat"`
	FeePPM      int64  `json:"fee_ppm"`
	Timestamp   int64  `json:"timestamp"`
	Signature   string `json:"signature"`
}

// LiquidityNeedPayload is a signed directional-imbalance report.
type LiquidityNeedPayload struct {
	Reporter  string  `json:"reporter"`
	Subject   string  `json:"subject"`
	Direction string  `json:"direction"`
	Urgency   float64 `json:"urgency"`
	Timestamp int64   `json:"timestamp"`
	Signature string  `json:"signature"`
}

// RouteProbePayload is a signed path-quality observation.
type RouteProbePayload struct {
	Reporter  string  `json:"reporter"`
	Subject   string  `json:"subject"`
	Success   bool    `json:"success"`
	LatencyMs int64   `json:"latency_ms"`
	CostPPM   float64 `json:"cost_ppm"`
	Timestamp int64   `json:"timestamp"`
	Signature string  `json:"signature"`
}

// PeerReputationPayload is a signed peer-quality observation.
type PeerReputationPayload struct {
	Reporter       string   `json:"reporter"`
	Subject        string   `json:"subject"`
	UptimePct      float64  `json:"uptime_pct"`
	HTLCSuccessPct float64  `json:"htlc_success_pct"`
	FeeStability   float64  `json:"fee_stability"`
	ForceCloses    int      `json:"force_closes"`
	Warnings       []string `json:"warnings,omitempty"`
	Timestamp      int64    `json:"timestamp"`
	Signature      string   `json:"signature"`
}

// SettlementProposePayload announces the proposed hash for a period.
type SettlementProposePayload struct {
	ProposalID  string `json:"proposal_id"`
	Period      string `json:"period"`
	Proposer    string `json:"proposer"`
	DataHash    string `json:"data_hash"`
	TotalFees   int64  `json:"total_fees"`
	MemberCount int    `json:"member_count"`
	Timestamp   int64  `json:"timestamp"`
	Signature   string `json:"signature"`
}

// SettlementReadyPayload confirms hash agreement from a recipient.
type SettlementReadyPayload struct {
	ProposalID string `json:"proposal_id"`
	Voter      string `json:"voter"`
	Timestamp  int64  `json:"timestamp"`
	Signature  string `json:"signature"`
}

// SettlementExecutedPayload confirms a member completed its settlement action.
type SettlementExecutedPayload struct {
	ProposalID     string  `json:"proposal_id"`
	Member         string  `json:"member"`
	PaymentHash    *string `json:"payment_hash,omitempty"`
	AmountPaidSats int64   `json:"amount_paid_sats"`
	Timestamp      int64   `json:"timestamp"`
	Signature      string  `json:"signature"`
}
