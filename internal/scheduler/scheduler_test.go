package scheduler

import (
	"testing"

	"github.com/lightning-goats/cl-hive-sub000/internal/config"
)

func TestMaxGossipAgeScalesWithHeartbeat(t *testing.T) {
	snap := config.Snapshot{HeartbeatInterval: 300}
	got := maxGossipAge(snap)
	want := int64(300 * 288)
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
	if got != 24*3600 {
		t.Fatalf("expected the default heartbeat to retain roughly one day, got %d seconds", got)
	}
}

func TestMaxGossipAgeZeroHeartbeat(t *testing.T) {
	snap := config.Snapshot{HeartbeatInterval: 0}
	if got := maxGossipAge(snap); got != 0 {
		t.Fatalf("expected zero retention for a zero heartbeat interval, got %d", got)
	}
}
