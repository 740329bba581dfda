package handshake

import (
	"context"
	"testing"

	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// validPubkey is secp256k1's generator point G in compressed hex form,
// a fixed, known-valid test fixture (not a real member identity).
const validPubkey = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

func newTestManager() *Manager {
	return NewManager(nil, "self-pubkey")
}

func TestHandleHelloRejectsMalformedPubkey(t *testing.T) {
	m := newTestManager()
	_, err := m.HandleHello(context.Background(), hivewire.HelloPayload{Pubkey: "not-a-pubkey"}, true, 60, 1000)
	if err == nil {
		t.Fatalf("expected an error for a malformed pubkey")
	}
}

func TestHandleHelloRejectsWithoutChannel(t *testing.T) {
	m := newTestManager()
	_, err := m.HandleHello(context.Background(), hivewire.HelloPayload{Pubkey: validPubkey}, false, 60, 1000)
	if err == nil {
		t.Fatalf("expected an error when the candidate has no channel with self")
	}
}

func TestHandleHelloIssuesChallengeWithChannel(t *testing.T) {
	m := newTestManager()
	challenge, err := m.HandleHello(context.Background(), hivewire.HelloPayload{Pubkey: validPubkey}, true, 60, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if challenge.Nonce == "" {
		t.Fatalf("expected a non-empty nonce")
	}
	if challenge.Sender != "self-pubkey" {
		t.Fatalf("expected challenge to be sent from self, got %q", challenge.Sender)
	}
}

func TestVerifyAttestRejectsWithoutOutstandingChallenge(t *testing.T) {
	m := newTestManager()
	err := m.VerifyAttest(context.Background(), hivewire.AttestPayload{
		Sender:   "candidate1",
		Manifest: hivewire.Manifest{Pubkey: "candidate1", Nonce: "n1", Timestamp: 1000},
	}, 1000)
	if err == nil {
		t.Fatalf("expected an error for an attest with no matching challenge")
	}
}

func TestVerifyAttestRejectsNonceMismatch(t *testing.T) {
	m := newTestManager()
	if _, err := m.HandleHello(context.Background(), hivewire.HelloPayload{Pubkey: validPubkey}, true, 60, 1000); err != nil {
		t.Fatalf("unexpected error issuing challenge: %v", err)
	}
	err := m.VerifyAttest(context.Background(), hivewire.AttestPayload{
		Sender:   validPubkey,
		Manifest: hivewire.Manifest{Pubkey: validPubkey, Nonce: "wrong-nonce", Timestamp: 1000},
	}, 1000)
	if err == nil {
		t.Fatalf("expected an error for a mismatched nonce")
	}
}

func TestVerifyAttestRejectsExpiredChallenge(t *testing.T) {
	m := newTestManager()
	challenge, err := m.HandleHello(context.Background(), hivewire.HelloPayload{Pubkey: validPubkey}, true, 60, 1000)
	if err != nil {
		t.Fatalf("unexpected error issuing challenge: %v", err)
	}
	err = m.VerifyAttest(context.Background(), hivewire.AttestPayload{
		Sender:   validPubkey,
		Manifest: hivewire.Manifest{Pubkey: validPubkey, Nonce: challenge.Nonce, Timestamp: 1000},
	}, 1000+61)
	if err == nil {
		t.Fatalf("expected an error for a challenge past its TTL")
	}
}

func TestBuildWelcome(t *testing.T) {
	m := newTestManager()
	w := m.BuildWelcome("candidate1", 1000)
	if w.Sender != "self-pubkey" || w.Candidate != "candidate1" || w.Timestamp != 1000 {
		t.Fatalf("unexpected welcome payload: %+v", w)
	}
}

func TestPruneExpiredNoncesDropsStaleEntries(t *testing.T) {
	m := newTestManager()
	m.usedNonces["stale"] = 500
	m.usedNonces["fresh"] = 2000
	m.challenges["stale-candidate"] = pendingChallenge{nonce: "n", issuedAt: 100, ttl: 60, candidate: "stale-candidate"}
	m.challenges["fresh-candidate"] = pendingChallenge{nonce: "n", issuedAt: 990, ttl: 60, candidate: "fresh-candidate"}

	m.PruneExpiredNonces(1000)

	if _, ok := m.usedNonces["stale"]; ok {
		t.Fatalf("expected stale nonce to be pruned")
	}
	if _, ok := m.usedNonces["fresh"]; !ok {
		t.Fatalf("expected fresh nonce to survive")
	}
	if _, ok := m.challenges["stale-candidate"]; ok {
		t.Fatalf("expected expired challenge to be pruned")
	}
	if _, ok := m.challenges["fresh-candidate"]; !ok {
		t.Fatalf("expected unexpired challenge to survive")
	}
}
