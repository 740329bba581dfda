// Package config holds the kernel's tunable parameters and the
// ConfigSnapshot pattern ported from cl-hive's config.py: a mutable
// Config that operators can adjust at runtime, and an immutable Snapshot
// every worker cycle and message handler must capture at the start of
// its unit of work so a concurrent reconfiguration can never tear a
// running decision (spec.md §9 "Global mutable state").
package config

import (
	"fmt"
	"os"
	"strconv"
)

// GovernanceMode gates whether the kernel auto-executes Gateway-affecting
// decisions or only records them for operator approval.
type GovernanceMode string

const (
	ModeAdvisor    GovernanceMode = "advisor"
	ModeAutonomous GovernanceMode = "autonomous"
	ModeOracle     GovernanceMode = "oracle"
)

func validGovernanceMode(m GovernanceMode) bool {
	switch m {
	case ModeAdvisor, ModeAutonomous, ModeOracle:
		return true
	}
	return false
}

// immutableKeys cannot change after the kernel has started.
var immutableKeys = map[string]bool{
	"store_dsn": true,
}

// fieldRanges bounds every numeric tunable; Validate rejects anything
// outside these, mirroring config.py's CONFIG_FIELD_RANGES.
type fRange struct{ min, max float64 }

var fieldRanges = map[string]fRange{
	"neophyte_fee_discount_pct": {0.0, 1.0},
	"probation_days":            {1, 365},
	"vouch_threshold_pct":       {0.0, 1.0},
	"min_vouch_count":           {1, 50},
	"max_members":               {2, 100},
	"market_share_cap_pct":      {0.0, 1.0},
	"intent_hold_seconds":       {10, 600},
	"intent_expire_seconds":     {60, 3600},
	"gossip_threshold_pct":      {0.01, 0.5},
	"heartbeat_interval":        {60, 3600},
}

// Config is the mutable tunable set for one kernel instance.
type Config struct {
	StoreDSN string

	GovernanceMode GovernanceMode

	MembershipEnabled    bool
	AutoVouchEnabled     bool
	AutoPromoteEnabled   bool
	BanAutotriggerEnabled bool

	NeophyteFeeDiscountPct float64
	ProbationDays          int

	VouchThresholdPct float64
	MinVouchCount     int

	MaxMembers         int
	MarketShareCapPct  float64

	IntentHoldSeconds   int
	IntentExpireSeconds int

	GossipThresholdPct float64
	HeartbeatInterval  int

	// Expansion / gossip aggregation tunables (spec.md §4.6, §4.7).
	CooldownSeconds          int
	MaxActiveRounds          int
	MinQualityScore          float64
	NominationWindowSeconds  int
	RoundExpireSeconds       int
	OutlierDeviationThreshold float64
	MinReportersForConfidence int

	// Gateway / Store / Intent bounds (spec.md §6, §8).
	MaxMessageBytes     int
	MaxFailures         int
	ResetTimeoutSeconds int
	MaxContributionRows int
	MaxPlannerLogRows   int
	MinPaymentSats      int64
	LeechBanRatio       float64
	LeechWindowDays     int

	version int
}

// Default returns the teacher's baked-in defaults (config.py's dataclass
// field defaults), ready for environment overrides.
func Default() *Config {
	return &Config{
		StoreDSN:               "",
		GovernanceMode:         ModeAdvisor,
		MembershipEnabled:      true,
		AutoVouchEnabled:       true,
		AutoPromoteEnabled:     true,
		BanAutotriggerEnabled:  false,
		NeophyteFeeDiscountPct: 0.5,
		ProbationDays:          30,
		VouchThresholdPct:      0.51,
		MinVouchCount:          3,
		MaxMembers:             50,
		MarketShareCapPct:      0.20,
		IntentHoldSeconds:      60,
		IntentExpireSeconds:    300,
		GossipThresholdPct:     0.10,
		HeartbeatInterval:      300,

		CooldownSeconds:           3600,
		MaxActiveRounds:           5,
		MinQualityScore:           0.4,
		NominationWindowSeconds:   120,
		RoundExpireSeconds:        900,
		OutlierDeviationThreshold: 0.20,
		MinReportersForConfidence: 3,

		MaxMessageBytes:     65535,
		MaxFailures:         5,
		ResetTimeoutSeconds: 60,
		MaxContributionRows: 100_000,
		MaxPlannerLogRows:   50_000,
		MinPaymentSats:      1000,
		LeechBanRatio:       0.1,
		LeechWindowDays:     30,
	}
}

// FromEnv overlays environment variables onto the default config, the
// same requireEnv/getEnvOrDefault pattern as cmd/agent/main.go: secrets
// (the store DSN) must be set explicitly, non-secret knobs fall back to
// the baked-in default.
func FromEnv() (*Config, error) {
	c := Default()

	dsn := os.Getenv("STORE_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("required environment variable STORE_DSN is not set")
	}
	c.StoreDSN = dsn

	if v := os.Getenv("HIVE_GOVERNANCE_MODE"); v != "" {
		c.GovernanceMode = GovernanceMode(v)
	}
	if v, ok := envBool("HIVE_MEMBERSHIP_ENABLED"); ok {
		c.MembershipEnabled = v
	}
	if v, ok := envBool("HIVE_AUTO_VOUCH_ENABLED"); ok {
		c.AutoVouchEnabled = v
	}
	if v, ok := envBool("HIVE_AUTO_PROMOTE_ENABLED"); ok {
		c.AutoPromoteEnabled = v
	}
	if v, ok := envBool("HIVE_BAN_AUTOTRIGGER_ENABLED"); ok {
		c.BanAutotriggerEnabled = v
	}
	if v, ok := envFloat("HIVE_NEOPHYTE_FEE_DISCOUNT_PCT"); ok {
		c.NeophyteFeeDiscountPct = v
	}
	if v, ok := envInt("HIVE_PROBATION_DAYS"); ok {
		c.ProbationDays = v
	}
	if v, ok := envFloat("HIVE_VOUCH_THRESHOLD_PCT"); ok {
		c.VouchThresholdPct = v
	}
	if v, ok := envInt("HIVE_MIN_VOUCH_COUNT"); ok {
		c.MinVouchCount = v
	}
	if v, ok := envInt("HIVE_MAX_MEMBERS"); ok {
		c.MaxMembers = v
	}
	if v, ok := envFloat("HIVE_MARKET_SHARE_CAP_PCT"); ok {
		c.MarketShareCapPct = v
	}
	if v, ok := envInt("HIVE_INTENT_HOLD_SECONDS"); ok {
		c.IntentHoldSeconds = v
	}
	if v, ok := envInt("HIVE_INTENT_EXPIRE_SECONDS"); ok {
		c.IntentExpireSeconds = v
	}
	if v, ok := envFloat("HIVE_GOSSIP_THRESHOLD_PCT"); ok {
		c.GossipThresholdPct = v
	}
	if v, ok := envInt("HIVE_HEARTBEAT_INTERVAL"); ok {
		c.HeartbeatInterval = v
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Validate checks governance mode and every ranged numeric tunable,
// mirroring config.py's HiveConfig.validate().
func (c *Config) Validate() error {
	if !validGovernanceMode(c.GovernanceMode) {
		return fmt.Errorf("invalid governance_mode: %s", c.GovernanceMode)
	}
	checks := map[string]float64{
		"neophyte_fee_discount_pct": c.NeophyteFeeDiscountPct,
		"probation_days":            float64(c.ProbationDays),
		"vouch_threshold_pct":       c.VouchThresholdPct,
		"min_vouch_count":           float64(c.MinVouchCount),
		"max_members":               float64(c.MaxMembers),
		"market_share_cap_pct":      c.MarketShareCapPct,
		"intent_hold_seconds":       float64(c.IntentHoldSeconds),
		"intent_expire_seconds":     float64(c.IntentExpireSeconds),
		"gossip_threshold_pct":      c.GossipThresholdPct,
		"heartbeat_interval":        float64(c.HeartbeatInterval),
	}
	for key, value := range checks {
		r := fieldRanges[key]
		if value < r.min || value > r.max {
			return fmt.Errorf("config %s=%v out of range [%v, %v]", key, value, r.min, r.max)
		}
	}
	return nil
}

// IsImmutable reports whether key may not be changed after startup.
func IsImmutable(key string) bool { return immutableKeys[key] }

// Snapshot is the frozen view of Config a worker cycle or message handler
// captures once at the start of its unit of work.
type Snapshot struct {
	StoreDSN string

	GovernanceMode GovernanceMode

	MembershipEnabled     bool
	AutoVouchEnabled      bool
	AutoPromoteEnabled    bool
	BanAutotriggerEnabled bool

	NeophyteFeeDiscountPct float64
	ProbationDays          int

	VouchThresholdPct float64
	MinVouchCount     int

	MaxMembers        int
	MarketShareCapPct float64

	IntentHoldSeconds   int
	IntentExpireSeconds int

	GossipThresholdPct float64
	HeartbeatInterval  int

	CooldownSeconds           int
	MaxActiveRounds           int
	MinQualityScore           float64
	NominationWindowSeconds   int
	RoundExpireSeconds        int
	OutlierDeviationThreshold float64
	MinReportersForConfidence int

	MaxMessageBytes     int
	MaxFailures         int
	ResetTimeoutSeconds int
	MaxContributionRows int
	MaxPlannerLogRows   int
	MinPaymentSats      int64
	LeechBanRatio       float64
	LeechWindowDays     int

	Version int
}

// Snapshot takes an immutable copy of c for the duration of one cycle.
func (c *Config) Snapshot() Snapshot {
	return Snapshot{
		StoreDSN:                  c.StoreDSN,
		GovernanceMode:            c.GovernanceMode,
		MembershipEnabled:         c.MembershipEnabled,
		AutoVouchEnabled:          c.AutoVouchEnabled,
		AutoPromoteEnabled:        c.AutoPromoteEnabled,
		BanAutotriggerEnabled:     c.BanAutotriggerEnabled,
		NeophyteFeeDiscountPct:    c.NeophyteFeeDiscountPct,
		ProbationDays:             c.ProbationDays,
		VouchThresholdPct:         c.VouchThresholdPct,
		MinVouchCount:             c.MinVouchCount,
		MaxMembers:                c.MaxMembers,
		MarketShareCapPct:         c.MarketShareCapPct,
		IntentHoldSeconds:         c.IntentHoldSeconds,
		IntentExpireSeconds:       c.IntentExpireSeconds,
		GossipThresholdPct:        c.GossipThresholdPct,
		HeartbeatInterval:         c.HeartbeatInterval,
		CooldownSeconds:           c.CooldownSeconds,
		MaxActiveRounds:           c.MaxActiveRounds,
		MinQualityScore:           c.MinQualityScore,
		NominationWindowSeconds:   c.NominationWindowSeconds,
		RoundExpireSeconds:        c.RoundExpireSeconds,
		OutlierDeviationThreshold: c.OutlierDeviationThreshold,
		MinReportersForConfidence: c.MinReportersForConfidence,
		MaxMessageBytes:           c.MaxMessageBytes,
		MaxFailures:               c.MaxFailures,
		ResetTimeoutSeconds:       c.ResetTimeoutSeconds,
		MaxContributionRows:       c.MaxContributionRows,
		MaxPlannerLogRows:         c.MaxPlannerLogRows,
		MinPaymentSats:            c.MinPaymentSats,
		LeechBanRatio:             c.LeechBanRatio,
		LeechWindowDays:           c.LeechWindowDays,
		Version:                   c.version,
	}
}
