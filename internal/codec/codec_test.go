package codec

import (
	"bytes"
	"testing"

	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

func TestSigningStringAttestMatchesScenario(t *testing.T) {
	got := SigningStringAttest("A", "n1", 1000)
	want := "hive:attest:A:n1:1000"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSigningStringDeterministic(t *testing.T) {
	p := hivewire.IntentPayload{ID: "i1", Type: hivewire.IntentChannelOpen, Target: "peer1", Initiator: "A", Timestamp: 42}
	a := SigningStringIntent(p)
	b := SigningStringIntent(p)
	if a != b {
		t.Fatalf("signing string not deterministic: %q vs %q", a, b)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte(`{"pubkey":"A"}`)
	frame := Encode(hivewire.TypeHello, payload)

	decoded, ok, kerr := Decode(frame, 65535)
	if kerr != nil {
		t.Fatalf("unexpected error: %v", kerr)
	}
	if !ok {
		t.Fatalf("expected ok=true for a well-formed frame")
	}
	if decoded.Type != hivewire.TypeHello {
		t.Fatalf("type mismatch: got %v", decoded.Type)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload mismatch: got %s", decoded.Payload)
	}
}

func TestDecodeNonHiveFramePassesThrough(t *testing.T) {
	data := []byte("NOPE\x01\x00\x02xx")
	_, ok, kerr := Decode(data, 65535)
	if ok {
		t.Fatalf("expected ok=false for non-hive magic")
	}
	if kerr != nil {
		t.Fatalf("expected no error for pass-through, got %v", kerr)
	}
}

func TestDecodeOversizeFrameFailsClosed(t *testing.T) {
	data := append([]byte{}, Magic[:]...)
	data = append(data, byte(hivewire.TypeHello), 0xFF, 0xFF)
	data = append(data, make([]byte, 10)...)

	_, ok, kerr := Decode(data, 100)
	if !ok {
		t.Fatalf("expected ok=true (frame is hive-tagged)")
	}
	if kerr == nil {
		t.Fatalf("expected an error for a frame exceeding MAX_MESSAGE_BYTES")
	}
}

func TestRateLimitForKnownType(t *testing.T) {
	spec, ok := RateLimitFor(hivewire.TypeIntent)
	if !ok {
		t.Fatalf("expected a rate limit spec for TypeIntent")
	}
	if spec.Count <= 0 || spec.WindowSeconds <= 0 {
		t.Fatalf("expected positive count/window, got %+v", spec)
	}
}

func TestValidateBoundsRejectsEmptyReporter(t *testing.T) {
	if err := ValidateBounds("", "subject", 100); err == nil {
		t.Fatalf("expected error for empty reporter")
	}
}

func TestValidateBoundsRejectsNonPositiveTimestamp(t *testing.T) {
	if err := ValidateBounds("A", "B", 0); err == nil {
		t.Fatalf("expected error for zero timestamp")
	}
}

func TestValidatePubkeyFormatAcceptsCompressedPoint(t *testing.T) {
	// secp256k1's generator point G, compressed hex encoding.
	const g = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	if err := ValidatePubkeyFormat(g); err != nil {
		t.Fatalf("expected a valid compressed point to be accepted, got %v", err)
	}
}

func TestValidatePubkeyFormatRejectsNonHex(t *testing.T) {
	if err := ValidatePubkeyFormat("not-hex!!"); err == nil {
		t.Fatalf("expected an error for non-hex input")
	}
}

func TestValidatePubkeyFormatRejectsWrongLength(t *testing.T) {
	if err := ValidatePubkeyFormat("aabbcc"); err == nil {
		t.Fatalf("expected an error for a too-short byte string")
	}
}
