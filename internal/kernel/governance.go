package kernel

import (
	"context"

	"github.com/google/uuid"
	"github.com/lightning-goats/cl-hive-sub000/internal/config"
	"github.com/lightning-goats/cl-hive-sub000/internal/kerrors"
)

// GatedAction is the callback that actually touches the Gateway — opening
// a channel, closing one, sending a payment — gated behind governance
// mode.
type GatedAction func(ctx context.Context) error

// Gate runs action immediately under ModeAutonomous. Under ModeAdvisor
// or ModeOracle it instead records a pending_actions row for an operator
// to approve or reject and returns without touching the Gateway — the
// kernel's only guard against an advisor-mode misconfiguration silently
// becoming autonomous (spec.md §4.9).
func (k *Kernel) Gate(ctx context.Context, snap config.Snapshot, kind string, detail any, now int64, action GatedAction) error {
	if snap.GovernanceMode == config.ModeAutonomous {
		return action(ctx)
	}

	id := uuid.NewString()
	if err := k.db.CreatePendingAction(ctx, id, kind, detail, now); err != nil {
		return err
	}
	return kerrors.New(kerrors.ConflictResolved, "action recorded as pending_action "+id+" under "+string(snap.GovernanceMode)+" governance")
}

// ApprovePendingAction executes a previously gated action now that an
// operator has approved it.
func (k *Kernel) ApprovePendingAction(ctx context.Context, id, resolvedBy string, now int64, action GatedAction) error {
	if err := action(ctx); err != nil {
		return err
	}
	return k.db.ResolvePendingAction(ctx, id, "approved", resolvedBy, now)
}

// RejectPendingAction discards a gated action without ever running it.
func (k *Kernel) RejectPendingAction(ctx context.Context, id, resolvedBy string, now int64) error {
	return k.db.ResolvePendingAction(ctx, id, "rejected", resolvedBy, now)
}
