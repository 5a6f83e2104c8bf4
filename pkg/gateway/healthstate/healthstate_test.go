package healthstate

import (
	"testing"
	"time"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

func TestTrackAndIsAvailable(t *testing.T) {
	s := New()
	now := time.Now()
	s.Track(types.Endpoint{ID: 1, Enabled: true, Weight: 3})

	if !s.IsAvailable(1, now, false) {
		t.Fatal("expected freshly tracked enabled endpoint to be available")
	}
	if s.Weight(1) != 3 {
		t.Errorf("Weight() = %d, want 3", s.Weight(1))
	}
}

func TestIsAvailableUnknownEndpointDefaultsOpen(t *testing.T) {
	s := New()
	if !s.IsAvailable(999, time.Now(), false) {
		t.Error("an untracked endpoint id should default to available")
	}
}

func TestIsAvailableDisabledEndpoint(t *testing.T) {
	s := New()
	s.Track(types.Endpoint{ID: 1, Enabled: false})
	if s.IsAvailable(1, time.Now(), false) {
		t.Error("disabled endpoint should not be available")
	}
	if s.IsAvailable(1, time.Now(), true) {
		t.Error("disabled endpoint should not be available even in the degraded pass")
	}
}

func TestMarkFailureAppliesCooldown(t *testing.T) {
	s := New()
	now := time.Now()
	s.Track(types.Endpoint{ID: 1, Enabled: true})

	until := s.MarkFailure(1, now, 30*time.Second, true)
	if !until.Equal(now.Add(30 * time.Second)) {
		t.Errorf("MarkFailure returned %v, want %v", until, now.Add(30*time.Second))
	}
	if s.IsAvailable(1, now.Add(time.Second), false) {
		t.Error("endpoint should be unavailable while cooling down")
	}
	if s.IsAvailable(1, now.Add(31*time.Second), false) != true {
		t.Error("endpoint should become available once cooldown elapses")
	}
}

func TestMarkFailureShortCooldownCapsNonFullFailures(t *testing.T) {
	s := New()
	now := time.Now()
	s.Track(types.Endpoint{ID: 1, Enabled: true})

	until := s.MarkFailure(1, now, time.Minute, false)
	if got := until.Sub(now); got != types.ShortCooldownCap {
		t.Errorf("short cooldown = %v, want capped at %v", got, types.ShortCooldownCap)
	}
}

func TestMarkFailureDegradedIgnoresCooldown(t *testing.T) {
	s := New()
	now := time.Now()
	s.Track(types.Endpoint{ID: 1, Enabled: true})
	s.MarkFailure(1, now, time.Minute, true)

	if !s.IsAvailable(1, now.Add(time.Second), true) {
		t.Error("degraded pass should ignore an active cooldown")
	}
}

func TestMarkSuccessClearsCooldownAndSmoothsLatency(t *testing.T) {
	s := New()
	now := time.Now()
	s.Track(types.Endpoint{ID: 1, Enabled: true})
	s.MarkFailure(1, now, time.Minute, true)

	first := s.MarkSuccess(1, 100*time.Millisecond)
	if first != 100 {
		t.Errorf("first MarkSuccess should seed rolling latency, got %v", first)
	}
	if !s.IsAvailable(1, now, false) {
		t.Error("MarkSuccess should clear the cooldown")
	}

	second := s.MarkSuccess(1, 300*time.Millisecond)
	want := types.RollingLatencyAlpha*300 + (1-types.RollingLatencyAlpha)*100
	if second != want {
		t.Errorf("second MarkSuccess rolling latency = %v, want %v", second, want)
	}
}

func TestMinIntervalRateGate(t *testing.T) {
	s := New()
	now := time.Now()
	s.Track(types.Endpoint{ID: 1, Enabled: true, MinIntervalSecs: 5})
	s.MarkAttemptStart(1, now)

	if s.IsAvailable(1, now.Add(time.Second), false) {
		t.Error("endpoint used 1s ago should be rate-gated under a 5s min interval")
	}
	if !s.IsAvailable(1, now.Add(6*time.Second), false) {
		t.Error("endpoint should be available again once the min interval elapses")
	}
}

func TestUntrackRemovesEndpoint(t *testing.T) {
	s := New()
	s.Track(types.Endpoint{ID: 1, Enabled: true})
	s.Untrack(1)

	// Untracked endpoints default open (same as never-seen endpoints).
	if !s.IsAvailable(1, time.Now(), false) {
		t.Error("untracked endpoint should default to available, not stuck disabled")
	}
}

func TestSnapshot(t *testing.T) {
	s := New()
	now := time.Now()
	s.Track(types.Endpoint{ID: 1, Enabled: true})
	s.MarkFailure(1, now, 10*time.Second, true)

	snap := s.Snapshot(1)
	if !snap.HasCooldown {
		t.Error("expected HasCooldown after MarkFailure")
	}
	if !snap.CooldownUntil.Equal(now.Add(10 * time.Second)) {
		t.Errorf("Snapshot.CooldownUntil = %v, want %v", snap.CooldownUntil, now.Add(10*time.Second))
	}
}
