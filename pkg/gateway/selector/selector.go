// Package selector implements the two-level endpoint selection algorithm
// (§4.3): round-robin across a pool's providers, then weight-proportional
// random selection across a provider's healthy endpoints, falling back to
// a deterministic degraded pass when every provider is cooling.
//
// Grounded on the teacher's pkg/routing/selector.go for the general
// read-snapshot-then-pick shape; the round-robin cursor and weighted pick
// are hand-built since the teacher has no two-level weighted algorithm.
package selector

import (
	"math/rand"
	"sync"
	"time"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/healthstate"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/registry"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

// Selector produces candidate orderings for a pool on each dispatch.
type Selector struct {
	reg    *registry.Registry
	health *healthstate.State

	cursorMu sync.Mutex
	cursors  map[types.PoolTag]uint64
}

// New creates a Selector over reg and health.
func New(reg *registry.Registry, health *healthstate.State) *Selector {
	return &Selector{
		reg:     reg,
		health:  health,
		cursors: make(map[types.PoolTag]uint64),
	}
}

// nextCursor returns the rotation offset for this dispatch and advances
// the pool's cursor by one, regardless of outcome (§4.3 step 1).
func (s *Selector) nextCursor(pool types.PoolTag) uint64 {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	c := s.cursors[pool]
	s.cursors[pool] = c + 1
	return c
}

// Candidates returns the ordered endpoint ids to try for one dispatch to
// pool, at clock reading now. The sequence never repeats an endpoint id.
func (s *Selector) Candidates(pool types.PoolTag, now time.Time) []int64 {
	order := s.reg.EndpointsByPool(pool)
	n := len(order.ProviderIDs)
	if n == 0 {
		return nil
	}

	offset := s.nextCursor(pool) % uint64(n)

	seen := make(map[int64]bool)
	var out []int64

	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(offset)))

	for i := 0; i < n; i++ {
		pid := order.ProviderIDs[(int(offset)+i)%n]
		if !s.providerEnabled(pid) {
			continue
		}
		eids := order.EndpointsByProvider[pid]

		var available []int64
		var weights []int
		totalWeight := 0
		for _, eid := range eids {
			if seen[eid] {
				continue
			}
			if !s.health.IsAvailable(eid, now, false) {
				continue
			}
			w := s.health.Weight(eid)
			available = append(available, eid)
			weights = append(weights, w)
			totalWeight += w
		}
		if len(available) == 0 {
			continue
		}

		pick := weightedPick(rng, available, weights, totalWeight)
		seen[pick] = true
		out = append(out, pick)
	}

	if len(out) > 0 {
		return out
	}

	// Degraded fallback pass (§4.3 step 3): stable insertion order,
	// ignoring cooldown and the rate gate but still respecting enabled.
	for _, pid := range order.ProviderIDs {
		if !s.providerEnabled(pid) {
			continue
		}
		for _, eid := range order.EndpointsByProvider[pid] {
			if seen[eid] {
				continue
			}
			if !s.health.IsAvailable(eid, now, true) {
				continue
			}
			seen[eid] = true
			out = append(out, eid)
		}
	}
	return out
}

// providerEnabled reports whether pid refers to a currently enabled
// provider. A disabled provider excludes every one of its endpoints from
// both the primary and degraded fallback passes (§3, §8).
func (s *Selector) providerEnabled(pid int64) bool {
	p, ok := s.reg.GetProvider(pid)
	return ok && p.Enabled
}

// weightedPick chooses one id from ids with probability proportional to
// its matching weight.
func weightedPick(rng *rand.Rand, ids []int64, weights []int, total int) int64 {
	if total <= 0 {
		return ids[rng.Intn(len(ids))]
	}
	r := rng.Intn(total)
	cum := 0
	for i, w := range weights {
		cum += w
		if r < cum {
			return ids[i]
		}
	}
	return ids[len(ids)-1]
}
