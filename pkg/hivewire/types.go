// Package hivewire holds the entities and wire messages shared across the
// hive kernel: members, intents, expansion rounds, gossip reports, and the
// settlement records, plus the frame and signing-string conventions every
// message type commits to.
package hivewire

// Tier is a member's membership grade.
type Tier string

const (
	TierNeophyte Tier = "neophyte"
	TierMember   Tier = "member"
	TierAdmin    Tier = "admin"
)

// Member is a node admitted to the hive, keyed by its compressed pubkey.
type Member struct {
	Pubkey             string         `json:"pubkey"`
	Tier               Tier           `json:"tier"`
	JoinedAt           int64          `json:"joined_at"`
	PromotedAt         *int64         `json:"promoted_at,omitempty"`
	ContributionRatio  float64        `json:"contribution_ratio"`
	UptimePct          float64        `json:"uptime_pct"`
	VouchCount         int            `json:"vouch_count"`
	LastSeen           int64          `json:"last_seen"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	OnlineSecondsRoll  int64          `json:"-"`
	WindowStart        int64          `json:"-"`
	CurrentlyOnline    bool           `json:"-"`
	LastTransitionTime int64          `json:"-"`
}

// IntentType enumerates the kinds of mutually-exclusive actions a node
// can announce an intent for.
type IntentType string

const (
	IntentChannelOpen IntentType = "channel_open"
	IntentRebalance   IntentType = "rebalance"
	IntentBanPeer     IntentType = "ban_peer"
)

// IntentStatus is the lifecycle state of a local Intent record.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentCommitted IntentStatus = "committed"
	IntentAborted   IntentStatus = "aborted"
	IntentExpired   IntentStatus = "expired"
)

// Intent is a signed reservation of a cooperative action on a shared target.
type Intent struct {
	ID          string       `json:"id"`
	Type        IntentType   `json:"type"`
	Target      string       `json:"target"`
	Initiator   string       `json:"initiator"`
	AnnouncedAt int64        `json:"announced_at"`
	ExpiresAt   int64        `json:"expires_at"`
	Status      IntentStatus `json:"status"`
	Signature   string       `json:"signature"`
}

// Key identifies the (type, target) conflict domain an intent belongs to.
func (i Intent) Key() string { return string(i.Type) + "|" + i.Target }

// RoundState is the lifecycle state of an Expansion Round.
type RoundState string

const (
	RoundNominating RoundState = "nominating"
	RoundElecting   RoundState = "electing"
	RoundElected    RoundState = "elected"
	RoundCompleted  RoundState = "completed"
	RoundCancelled  RoundState = "cancelled"
	RoundExpired    RoundState = "expired"
)

// Terminal reports whether a round state is absorbing.
func (s RoundState) Terminal() bool {
	switch s {
	case RoundCompleted, RoundCancelled, RoundExpired:
		return true
	}
	return false
}

// Nomination is one member's bid to open a channel to an expansion target.
type Nomination struct {
	Nominator               string  `json:"nominator"`
	Target                  string  `json:"target"`
	Timestamp               int64   `json:"timestamp"`
	AvailableLiquiditySats  int64   `json:"available_liquidity_sats"`
	Quality                 float64 `json:"quality"`
	HasExistingChannel      bool    `json:"has_existing_channel"`
	ChannelCount            int     `json:"channel_count"`
	Reason                  string  `json:"reason,omitempty"`
}

// ExpansionRound is the election state for opening a channel to a newly
// available external peer.
type ExpansionRound struct {
	RoundID         string                `json:"round_id"`
	Target          string                `json:"target"`
	State           RoundState            `json:"state"`
	Nominations     map[string]Nomination `json:"nominations"`
	Elected         string                `json:"elected,omitempty"`
	RecommendedSize int64                 `json:"recommended_size"`
	Quality         float64               `json:"quality"`
	StartedAt       int64                 `json:"started_at"`
	ExpiresAt       int64                 `json:"expires_at"`
}

// HoldStatus is the lifecycle state of a Budget Hold.
type HoldStatus string

const (
	HoldActive   HoldStatus = "active"
	HoldReleased HoldStatus = "released"
	HoldConsumed HoldStatus = "consumed"
	HoldExpired  HoldStatus = "expired"
)

// BudgetHold is a local, time-bounded reservation of future-spend budget.
type BudgetHold struct {
	HoldID     string     `json:"hold_id"`
	RoundID    string     `json:"round_id"`
	Peer       string     `json:"peer"`
	AmountSats int64      `json:"amount_sats"`
	CreatedAt  int64      `json:"created_at"`
	ExpiresAt  int64      `json:"expires_at"`
	Status     HoldStatus `json:"status"`
	ConsumedBy *string    `json:"consumed_by,omitempty"`
	ConsumedAt *int64     `json:"consumed_at,omitempty"`
}

// PeerEvent is a signed, append-only record of a peer-channel lifecycle
// transition (open/close/forward) reported by any member.
type PeerEvent struct {
	Reporter  string         `json:"reporter"`
	Subject   string         `json:"subject"`
	Kind      string         `json:"kind"` // "open", "close", "forward", "remote_close"
	Timestamp int64          `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"`
	Signature string         `json:"signature"`
}

// ReputationReport is one member's signed observation of a peer's behavior.
type ReputationReport struct {
	Reporter       string  `json:"reporter"`
	Subject        string  `json:"subject"`
	Timestamp      int64   `json:"timestamp"`
	UptimePct      float64 `json:"uptime_pct"`
	HTLCSuccessPct float64 `json:"htlc_success_pct"`
	FeeStability   float64 `json:"fee_stability"`
	ForceCloses    int     `json:"force_closes"`
	Warnings       []string `json:"warnings,omitempty"`
	Signature      string  `json:"signature"`
}

// FeeIntelReport is a signed observation of a peer's fee policy.
type FeeIntelReport struct {
	Reporter    string  `json:"reporter"`
	Subject     string  `json:"subject"`
	Timestamp   int64   `json:"timestamp"`
	BaseFeeMsat int64   `json:"base_fee_msat"`
	FeePPM      int64   `json:"fee_ppm"`
	Signature   string  `json:"signature"`
}

// RouteProbe is a signed report of a path's success/latency/cost.
type RouteProbe struct {
	Reporter    string  `json:"reporter"`
	Subject     string  `json:"subject"`
	Timestamp   int64   `json:"timestamp"`
	Success     bool    `json:"success"`
	LatencyMs   int64   `json:"latency_ms"`
	CostPPM     float64 `json:"cost_ppm"`
	Signature   string  `json:"signature"`
}

// LiquidityNeed is a signed report of directional imbalance urgency.
type LiquidityNeed struct {
	Reporter  string  `json:"reporter"`
	Subject   string  `json:"subject"`
	Timestamp int64   `json:"timestamp"`
	Direction string  `json:"direction"` // "inbound" or "outbound"
	Urgency   float64 `json:"urgency"`   // 0..1
	Signature string  `json:"signature"`
}

// BanProposal is a member's signed proposal to ban a peer.
type BanProposal struct {
	ProposalID string `json:"proposal_id"`
	Proposer   string `json:"proposer"`
	Target     string `json:"target"`
	Reason     string `json:"reason"`
	ExpiresAt  *int64 `json:"expires_at,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	Status     string `json:"status"` // pending, approved, rejected, expired
	Signature  string `json:"signature"`
}

// BanVote is a member's signed ballot on a ban proposal.
type BanVote struct {
	ProposalID string `json:"proposal_id"`
	Voter      string `json:"voter"`
	Approve    bool   `json:"approve"`
	Timestamp  int64  `json:"timestamp"`
	Signature  string `json:"signature"`
}

// PromotionRequest is a neophyte's signed request to become a member.
type PromotionRequest struct {
	RequestID string `json:"request_id"`
	Candidate string `json:"candidate"`
	CreatedAt int64  `json:"created_at"`
	Signature string `json:"signature"`
}

// PromotionVouch is a member's signed endorsement of a promotion request.
type PromotionVouch struct {
	RequestID string `json:"request_id"`
	Target    string `json:"target"`
	Voucher   string `json:"voucher"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// ContributionLedgerEntry is one accounted flow of sats to/from a peer.
type ContributionLedgerEntry struct {
	Peer      string `json:"peer"`
	Direction string `json:"direction"` // "forwarded" or "received"
	AmountSat int64  `json:"amount_sats"`
	Timestamp int64  `json:"timestamp"`
}

// SettlementProposal is the proposer's deterministic hash over a period's
// contributions.
type SettlementProposal struct {
	ProposalID  string `json:"proposal_id"`
	Period      string `json:"period"`
	Proposer    string `json:"proposer"`
	DataHash    string `json:"data_hash"`
	TotalFees   int64  `json:"total_fees"`
	MemberCount int    `json:"member_count"`
	CreatedAt   int64  `json:"created_at"`
	Status      string `json:"status"` // pending, ready, completed, stale
	Signature   string `json:"signature"`
}

// SettlementReadyVote is a recipient's signature confirming hash agreement.
type SettlementReadyVote struct {
	ProposalID string `json:"proposal_id"`
	Voter      string `json:"voter"`
	Timestamp  int64  `json:"timestamp"`
	Signature  string `json:"signature"`
}

// SettlementExecution records one member's completed settlement action.
type SettlementExecution struct {
	ProposalID      string  `json:"proposal_id"`
	Member          string  `json:"member"`
	PaymentHash     *string `json:"payment_hash,omitempty"`
	AmountPaidSats  int64   `json:"amount_paid_sats"`
	Timestamp       int64   `json:"timestamp"`
	Signature       string  `json:"signature"`
}

// SettledPeriod marks a period as closed forever.
type SettledPeriod struct {
	Period           string `json:"period"`
	TotalDistributed int64  `json:"total_distributed"`
	SettledAt        int64  `json:"settled_at"`
}

// Contribution is one member's inputs to the fair-share computation for a period.
type Contribution struct {
	Peer         string  `json:"peer"`
	FeesEarned   int64   `json:"fees_earned"`
	CapacitySats int64   `json:"capacity_sats"`
	UptimePct    float64 `json:"uptime_pct"`
}
