// Package healthstate tracks the live, mutable health of every endpoint:
// cooldown windows, rolling latency and rate gating (§4.2). It is kept
// separate from registry's persisted snapshot because these fields churn
// on every dispatch and don't need the full Registry mutation path.
//
// Grounded on the teacher's pkg/providers/health.go bookkeeping shape
// (atomic counters plus a protected timestamp) generalised to a
// sharded map so unrelated endpoints never contend on the same mutex.
package healthstate

import (
	"sync"
	"time"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

const shardCount = 16

type entry struct {
	mu sync.Mutex

	enabled       bool
	weight        int
	minInterval   time.Duration
	cooldownUntil time.Time
	lastUsed      time.Time
	rollingMs     float64
	hasLatency    bool
}

type shard struct {
	mu      sync.RWMutex
	entries map[int64]*entry
}

// State is the live health table for every known endpoint, keyed by
// endpoint id.
type State struct {
	shards [shardCount]*shard
}

// New creates an empty State.
func New() *State {
	s := &State{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[int64]*entry)}
	}
	return s
}

func (s *State) shardFor(id int64) *shard {
	return s.shards[uint64(id)%shardCount]
}

// Track registers or refreshes the static fields (enabled/weight/min
// interval) for an endpoint, called whenever the Registry's copy changes.
func (s *State) Track(e types.Endpoint) {
	sh := s.shardFor(e.ID)
	sh.mu.Lock()
	en, ok := sh.entries[e.ID]
	if !ok {
		en = &entry{}
		sh.entries[e.ID] = en
	}
	sh.mu.Unlock()

	en.mu.Lock()
	en.enabled = e.Enabled
	en.weight = e.Weight
	en.minInterval = time.Duration(e.MinIntervalSecs) * time.Second
	if e.CooldownUntil != nil {
		en.cooldownUntil = *e.CooldownUntil
	}
	if e.LastUsed != nil {
		en.lastUsed = *e.LastUsed
	}
	en.rollingMs = e.RollingLatencyMs
	en.hasLatency = e.RollingLatencyMs > 0
	en.mu.Unlock()
}

// Untrack drops an endpoint's health entry, called on deletion.
func (s *State) Untrack(id int64) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	delete(sh.entries, id)
	sh.mu.Unlock()
}

func (s *State) get(id int64) (*entry, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	en, ok := sh.entries[id]
	sh.mu.RUnlock()
	return en, ok
}

// IsAvailable reports whether an endpoint is currently eligible for
// selection: enabled, not cooling down and not rate-gated (§4.2).
// degraded, when true, ignores both the cooldown and the rate gate
// (the degraded fallback pass, §4.3).
func (s *State) IsAvailable(id int64, now time.Time, degraded bool) bool {
	en, ok := s.get(id)
	if !ok {
		return true // unknown endpoints default open; Track races are benign
	}

	en.mu.Lock()
	defer en.mu.Unlock()

	if !en.enabled {
		return false
	}
	if degraded {
		return true
	}
	if now.Before(en.cooldownUntil) {
		return false
	}
	if en.minInterval > 0 && !en.lastUsed.IsZero() && now.Sub(en.lastUsed) < en.minInterval {
		return false
	}
	return true
}

// Weight returns the endpoint's selection weight, defaulting to 1.
func (s *State) Weight(id int64) int {
	en, ok := s.get(id)
	if !ok {
		return 1
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	if en.weight <= 0 {
		return 1
	}
	return en.weight
}

// MarkAttemptStart records the time an endpoint was dispatched to, so the
// min-interval rate gate has a reference point even before the outcome is
// known.
func (s *State) MarkAttemptStart(id int64, at time.Time) {
	en, ok := s.get(id)
	if !ok {
		return
	}
	en.mu.Lock()
	en.lastUsed = at
	en.mu.Unlock()
}

// MarkSuccess clears any cooldown, folds latency into the rolling average
// using the exponential smoothing factor RollingLatencyAlpha (§4.2), and
// returns the updated rolling latency for the caller to persist.
func (s *State) MarkSuccess(id int64, latency time.Duration) float64 {
	en, ok := s.get(id)
	if !ok {
		return float64(latency.Milliseconds())
	}

	en.mu.Lock()
	defer en.mu.Unlock()

	ms := float64(latency.Milliseconds())
	if !en.hasLatency {
		en.rollingMs = ms
		en.hasLatency = true
	} else {
		en.rollingMs = types.RollingLatencyAlpha*ms + (1-types.RollingLatencyAlpha)*en.rollingMs
	}
	en.cooldownUntil = time.Time{}
	return en.rollingMs
}

// MarkFailure places an endpoint into cooldown. full selects the pool's
// full cooldown window; when false (a non-retriable client error, §4.2)
// the cooldown is capped at types.ShortCooldownCap so a correctable 4xx
// doesn't poison the pool for as long as a real outage would.
func (s *State) MarkFailure(id int64, now time.Time, cooldown time.Duration, full bool) time.Time {
	if !full && cooldown > types.ShortCooldownCap {
		cooldown = types.ShortCooldownCap
	}

	en, ok := s.get(id)
	if !ok {
		return now.Add(cooldown)
	}

	en.mu.Lock()
	defer en.mu.Unlock()
	en.cooldownUntil = now.Add(cooldown)
	return en.cooldownUntil
}

// Snapshot returns the subset of fields the Registry needs to persist
// after a dispatch outcome, for endpoint id.
type Snapshot struct {
	CooldownUntil time.Time
	HasCooldown   bool
	LastUsed      time.Time
	RollingMs     float64
}

// Snapshot reads back the current live fields for persistence.
func (s *State) Snapshot(id int64) Snapshot {
	en, ok := s.get(id)
	if !ok {
		return Snapshot{}
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	return Snapshot{
		CooldownUntil: en.cooldownUntil,
		HasCooldown:   !en.cooldownUntil.IsZero(),
		LastUsed:      en.lastUsed,
		RollingMs:     en.rollingMs,
	}
}
