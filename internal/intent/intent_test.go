package intent

import (
	"context"
	"testing"

	"github.com/lightning-goats/cl-hive-sub000/pkg/hivewire"
)

func TestLexicographicWinnerEmpty(t *testing.T) {
	if got := LexicographicWinner(nil); got != "" {
		t.Fatalf("expected empty string for no candidates, got %q", got)
	}
}

func TestLexicographicWinnerPicksLowest(t *testing.T) {
	got := LexicographicWinner([]string{"C", "A", "B"})
	if got != "A" {
		t.Fatalf("got %q, want %q", got, "A")
	}
}

func TestResolveConflictWeWinTakesNoAction(t *testing.T) {
	m := &Manager{}
	ours := hivewire.Intent{ID: "i1", Initiator: "A"}
	theirs := hivewire.IntentPayload{ID: "i2", Initiator: "B"}

	abort, err := m.ResolveConflict(context.Background(), ours, theirs, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if abort != nil {
		t.Fatalf("expected no abort when our initiator wins the tiebreak, got %+v", abort)
	}
}
