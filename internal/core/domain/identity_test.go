package domain

import (
	"testing"
	"time"
)

func TestLoginSecurityStateLocksOnThresholdFailure(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var state LoginSecurityState

	for i := 1; i < DefaultLockoutThreshold; i++ {
		if locked := state.RegisterFailure(now, DefaultLockoutThreshold, 15*time.Minute); locked {
			t.Fatalf("failure %d should not lock", i)
		}
	}
	if state.FailedAttempts != DefaultLockoutThreshold-1 {
		t.Fatalf("expected %d failures, got %d", DefaultLockoutThreshold-1, state.FailedAttempts)
	}

	if locked := state.RegisterFailure(now, DefaultLockoutThreshold, 15*time.Minute); !locked {
		t.Fatalf("threshold failure should lock")
	}
	if !state.IsLocked(now.Add(time.Minute)) {
		t.Fatalf("expected account to be locked")
	}
}

func TestLoginSecurityStateIgnoresFailuresWhileLocked(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	until := now.Add(10 * time.Minute)
	state := LoginSecurityState{FailedAttempts: 3, LockedUntil: &until}

	state.RegisterFailure(now.Add(time.Minute), 3, time.Hour)

	if state.FailedAttempts != 3 {
		t.Fatalf("counter must not move while locked, got %d", state.FailedAttempts)
	}
	if !state.LockedUntil.Equal(until) {
		t.Fatalf("lock must not be extended, got %s", state.LockedUntil)
	}
}

func TestLoginSecurityStateRefreshExpiresLock(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)
	state := LoginSecurityState{FailedAttempts: 3, LockedUntil: &until}

	if state.Refresh(now) {
		t.Fatalf("refresh before deadline must not change state")
	}
	if !state.Refresh(until) {
		t.Fatalf("refresh at deadline should expire the lock")
	}
	if state.LockedUntil != nil || state.FailedAttempts != 0 {
		t.Fatalf("expected cleared state, got %+v", state)
	}
}

func TestPrincipalHasCapability(t *testing.T) {
	p := Principal{Capabilities: []string{"changes.approve"}}
	if !p.HasCapability(CapabilityApproveChanges) {
		t.Fatalf("expected approve capability")
	}
	if p.HasCapability(CapabilitySecurityAdmin) {
		t.Fatalf("unexpected admin capability")
	}
}
