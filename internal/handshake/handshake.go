// Package handshake implements the authenticated-join state machine
// (spec.md §4.3): a candidate with an existing channel proves control of
// its node key via a signed nonce challenge before being admitted as a
// neophyte.
package handshake

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/lightning-goats/cl-hive-sub000/internal/codec"
	"github.com/lightning-goats/cl-hive-sub000/internal/gateway"
	"github.com/lightning-goats/cl-hive-sub000/internal/kerrors"
	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

// State is a handshake's position in the join protocol.
type State string

const (
	StateIdle       State = "idle"
	StateHelloSent  State = "hello_sent"
	StateChallenged State = "challenged"
	StateAttested   State = "attested"
	StateWelcomed   State = "welcomed"
)

// pendingChallenge is the member-side record of an outstanding nonce,
// keyed by candidate pubkey; replay is detected through usedNonces.
type pendingChallenge struct {
	nonce     string
	issuedAt  int64
	ttl       int64
	candidate string
}

// Manager tracks in-flight handshakes from the member side and drives
// the candidate side's outbound calls.
type Manager struct {
	gw      *gateway.Client
	selfKey string

	mu         sync.Mutex
	challenges map[string]pendingChallenge // candidate pubkey -> challenge
	usedNonces map[string]int64            // nonce -> expiry, for replay detection
}

// ChannelChecker reports whether a node has an open channel with self,
// the proof-of-stake gate spec.md §4.3 requires before issuing a
// challenge.
type ChannelChecker func(ctx context.Context, pubkey string) (bool, error)

// NewManager builds a handshake manager bound to selfKey's identity.
func NewManager(gw *gateway.Client, selfKey string) *Manager {
	return &Manager{
		gw:         gw,
		selfKey:    selfKey,
		challenges: make(map[string]pendingChallenge),
		usedNonces: make(map[string]int64),
	}
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HandleHello is the member side's response to an inbound HELLO: if
// candidate has a channel with self, issue a fresh CHALLENGE; otherwise
// reject silently (no state stored).
func (m *Manager) HandleHello(ctx context.Context, hello hivewire.HelloPayload, hasChannel bool, ttlSeconds int64, now int64) (hivewire.ChallengePayload, error) {
	if err := codec.ValidatePubkeyFormat(hello.Pubkey); err != nil {
		return hivewire.ChallengePayload{}, kerrors.Wrap(kerrors.InvalidPayload, "malformed candidate pubkey", err)
	}
	if !hasChannel {
		return hivewire.ChallengePayload{}, kerrors.New(kerrors.NotMember, "candidate has no channel with self")
	}

	nonce, err := randomNonce()
	if err != nil {
		return hivewire.ChallengePayload{}, kerrors.Wrap(kerrors.Fatal, "generate nonce", err)
	}

	m.mu.Lock()
	m.challenges[hello.Pubkey] = pendingChallenge{nonce: nonce, issuedAt: now, ttl: ttlSeconds, candidate: hello.Pubkey}
	m.mu.Unlock()

	return hivewire.ChallengePayload{
		Sender:    m.selfKey,
		Nonce:     nonce,
		TTL:       ttlSeconds,
		Timestamp: now,
	}, nil
}

// BuildAttest is the candidate side's response to a CHALLENGE: sign the
// manifest via Gateway and return the ATTEST payload to send back.
func (m *Manager) BuildAttest(ctx context.Context, challenge hivewire.ChallengePayload, capabilities []string, now int64) (hivewire.AttestPayload, error) {
	manifest := hivewire.Manifest{
		Pubkey:       m.selfKey,
		Nonce:        challenge.Nonce,
		Timestamp:    now,
		Capabilities: capabilities,
	}
	signingString := codec.SigningStringAttest(manifest.Pubkey, manifest.Nonce, manifest.Timestamp)
	sig, err := m.gw.Sign(ctx, signingString)
	if err != nil {
		return hivewire.AttestPayload{}, err
	}
	return hivewire.AttestPayload{
		Sender:    m.selfKey,
		Manifest:  manifest,
		Signature: sig,
	}, nil
}

// VerifyAttest is the member side's check of an inbound ATTEST: the
// challenge must still be outstanding and unexpired, the nonce must not
// have been replayed, and the signature must verify for exactly the
// candidate that was challenged (signer == candidate == sender,
// spec.md §4.3).
func (m *Manager) VerifyAttest(ctx context.Context, attest hivewire.AttestPayload, now int64) error {
	m.mu.Lock()
	pending, ok := m.challenges[attest.Manifest.Pubkey]
	m.mu.Unlock()
	if !ok {
		return kerrors.New(kerrors.Stale, "no outstanding challenge for candidate")
	}
	if pending.nonce != attest.Manifest.Nonce {
		return kerrors.New(kerrors.IdentityMismatch, "nonce does not match outstanding challenge")
	}
	if now-pending.issuedAt > pending.ttl {
		return kerrors.New(kerrors.Stale, "challenge expired")
	}

	m.mu.Lock()
	if expiry, used := m.usedNonces[attest.Manifest.Nonce]; used && expiry > now {
		m.mu.Unlock()
		return kerrors.New(kerrors.IdentityMismatch, "nonce already used")
	}
	m.usedNonces[attest.Manifest.Nonce] = now + pending.ttl
	m.mu.Unlock()

	if attest.Sender != attest.Manifest.Pubkey || attest.Sender != pending.candidate {
		return kerrors.New(kerrors.IdentityMismatch, "signer/candidate/sender binding mismatch")
	}

	signingString := codec.SigningStringAttest(attest.Manifest.Pubkey, attest.Manifest.Nonce, attest.Manifest.Timestamp)
	if err := m.gw.VerifySigner(ctx, signingString, attest.Signature, attest.Manifest.Pubkey); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.challenges, attest.Manifest.Pubkey)
	m.mu.Unlock()
	return nil
}

// BuildWelcome constructs the WELCOME payload admitting candidate.
func (m *Manager) BuildWelcome(candidate string, now int64) hivewire.WelcomePayload {
	return hivewire.WelcomePayload{Sender: m.selfKey, Candidate: candidate, Timestamp: now}
}

// PruneExpiredNonces drops replay-protection entries whose TTL window
// has passed, bounding the map's growth.
func (m *Manager) PruneExpiredNonces(now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for nonce, expiry := range m.usedNonces {
		if expiry <= now {
			delete(m.usedNonces, nonce)
		}
	}
	for candidate, pending := range m.challenges {
		if now-pending.issuedAt > pending.ttl {
			delete(m.challenges, candidate)
		}
	}
}
