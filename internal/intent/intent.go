// Package intent implements the distributed mutual-exclusion protocol
// over a shared (type, target) conflict domain: Announce, Wait, then
// Commit or Abort on a lexicographic pubkey tiebreak (spec.md §4.5).
package intent

import (
	"context"
	"log"
	"sort"

	"github.com/google/uuid"
	"github.com/lightning-goats/cl-hive-sub000/internal/codec"
	"github.com/lightning-goats/cl-hive-sub000/internal/gateway"
	"github.com/lightning-goats/cl-hive-sub000/internal/kerrors"
	"github.com/lightning-goats/cl-hive-sub000/internal/store"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// Manager drives the Announce/Wait/Commit state machine.
type Manager struct {
	db *store.Store
	gw *gateway.Client
}

// NewManager builds an intent manager over db and gw.
func NewManager(db *store.Store, gw *gateway.Client) *Manager {
	return &Manager{db: db, gw: gw}
}

// Announce creates and signs a new intent for (intentType, target) if no
// other pending intent holds that conflict domain; if one does, the
// caller's own competing intent is resolved immediately by comparing
// initiator pubkeys lexicographically — the lower pubkey wins, matching
// every other node's local view of the same comparison without a
// coordinator.
func (m *Manager) Announce(ctx context.Context, initiator string, intentType hivewire.IntentType, target string, now, holdSeconds, expireSeconds int64) (hivewire.Intent, error) {
	existing, ok, err := m.db.GetActiveIntentForTarget(ctx, intentType, target)
	if err != nil {
		return hivewire.Intent{}, err
	}
	if ok {
		if initiator < existing.Initiator {
			// Ours wins the tiebreak; the existing one should be aborted by
			// its own initiator on receipt of our ANNOUNCE. We still cannot
			// proceed until that abort lands, so report the conflict.
			return hivewire.Intent{}, kerrors.New(kerrors.ConflictResolved, "existing intent loses tiebreak, awaiting its abort")
		}
		return hivewire.Intent{}, kerrors.New(kerrors.ConflictResolved, "existing intent holds the conflict domain")
	}

	intent := hivewire.Intent{
		ID:          uuid.NewString(),
		Type:        intentType,
		Target:      target,
		Initiator:   initiator,
		AnnouncedAt: now,
		ExpiresAt:   now + holdSeconds + expireSeconds,
		Status:      hivewire.IntentPending,
	}
	signingString := codec.SigningStringIntent(hivewire.IntentPayload{
		ID: intent.ID, Type: intent.Type, Target: intent.Target, Initiator: intent.Initiator, Timestamp: now,
	})
	sig, err := m.gw.Sign(ctx, signingString)
	if err != nil {
		return hivewire.Intent{}, err
	}
	intent.Signature = sig

	if err := m.db.InsertIntentLock(ctx, intent); err != nil {
		return hivewire.Intent{}, err
	}
	m.broadcast(ctx, hivewire.TypeIntent, hivewire.IntentPayload{
		ID: intent.ID, Type: intent.Type, Target: intent.Target,
		Initiator: intent.Initiator, Timestamp: now, Signature: intent.Signature,
	})
	return intent, nil
}

// broadcast fans a signed payload out to every known member. Recipients
// are not filtered against our own pubkey: a self-addressed custom
// message is the host daemon's problem to reject, not ours to predict.
func (m *Manager) broadcast(ctx context.Context, t hivewire.MessageType, v any) {
	members, err := m.db.ListMembers(ctx)
	if err != nil {
		log.Printf("[Intent] broadcast %s: list members failed: %v", t, err)
		return
	}
	recipients := make([]string, 0, len(members))
	for _, mem := range members {
		recipients = append(recipients, mem.Pubkey)
	}
	if err := m.gw.Broadcast(ctx, recipients, t, v); err != nil {
		log.Printf("[Intent] broadcast %s failed: %v", t, err)
	}
}

// ResolveConflict is called upon receiving a peer's ANNOUNCE for a
// conflict domain we also hold a pending intent on. It determines the
// loser by comparing initiator pubkeys lexicographically and, if we
// lose, aborts our own intent and returns the signed INTENT_ABORT to
// broadcast.
func (m *Manager) ResolveConflict(ctx context.Context, ours hivewire.Intent, theirs hivewire.IntentPayload, now int64) (*hivewire.IntentAbortPayload, error) {
	if ours.Initiator < theirs.Initiator {
		return nil, nil // we win; no action
	}

	if err := m.db.UpdateIntentStatus(ctx, ours.ID, hivewire.IntentAborted); err != nil {
		return nil, err
	}

	abort := hivewire.IntentAbortPayload{ID: ours.ID, Initiator: ours.Initiator, Timestamp: now}
	signingString := codec.SigningStringIntentAbort(abort)
	sig, err := m.gw.Sign(ctx, signingString)
	if err != nil {
		return nil, err
	}
	abort.Signature = sig
	m.broadcast(ctx, hivewire.TypeIntentAbort, abort)
	return &abort, nil
}

// Commit transitions an intent from pending to committed once the
// holding node has completed the underlying action.
func (m *Manager) Commit(ctx context.Context, id string) error {
	return m.db.UpdateIntentStatus(ctx, id, hivewire.IntentCommitted)
}

// HandleAbort applies a peer's INTENT_ABORT to our local view.
func (m *Manager) HandleAbort(ctx context.Context, abort hivewire.IntentAbortPayload) error {
	existing, ok, err := m.db.GetIntent(ctx, abort.ID)
	if err != nil {
		return err
	}
	if !ok || existing.Initiator != abort.Initiator {
		return kerrors.New(kerrors.IdentityMismatch, "abort initiator does not match intent initiator")
	}
	signingString := codec.SigningStringIntentAbort(abort)
	if err := m.gw.VerifySigner(ctx, signingString, abort.Signature, abort.Initiator); err != nil {
		return err
	}
	return m.db.UpdateIntentStatus(ctx, abort.ID, hivewire.IntentAborted)
}

// ReapExpired expires every pending intent past its ExpiresAt, the
// scheduler's periodic sweep for intents nobody committed or aborted.
func (m *Manager) ReapExpired(ctx context.Context, now int64) ([]string, error) {
	return m.db.ExpirePendingIntents(ctx, now)
}

// LexicographicWinner returns the lexicographically lowest pubkey among
// candidates — the shared tiebreak rule every node computes identically
// without coordination.
func LexicographicWinner(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	return sorted[0]
}
