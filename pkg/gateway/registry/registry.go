// Package registry holds the in-memory authoritative view of providers,
// endpoints and pool configs (§4.1), grounded on the teacher's
// pkg/routing/router_impl.go reader/writer shape and pkg/providers/health.go
// bookkeeping style.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/store"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
	"github.com/xiongxionghk/api-pool-gateway/pkg/telemetry/logging"
)

// index is the secondary pool -> provider -> [endpoint] structure (§4.1),
// rebuilt on every mutation. Insertion order within each slice is the
// round-robin / fallback order.
type index struct {
	// providerIDsByPool preserves insertion order of providers within a pool.
	providerIDsByPool map[types.PoolTag][]int64
	// endpointsByPoolProvider preserves insertion order of endpoints within
	// a provider for a given pool.
	endpointsByPoolProvider map[types.PoolTag]map[int64][]int64
}

func newIndex() *index {
	return &index{
		providerIDsByPool:       make(map[types.PoolTag][]int64),
		endpointsByPoolProvider: make(map[types.PoolTag]map[int64][]int64),
	}
}

// Registry is the in-memory source of truth for providers/endpoints/pool
// configs. Reads are wait-free with respect to each other; mutations are
// serialised under mu and persisted through Store before returning.
type Registry struct {
	mu sync.RWMutex

	providers map[int64]types.Provider
	endpoints map[int64]types.Endpoint
	pools     map[types.PoolTag]types.PoolConfig
	idx       *index

	nextProviderID int64
	nextEndpointID int64

	store  store.Store
	logger *logging.Logger
}

// New creates an empty Registry backed by st.
func New(st store.Store, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		providers: make(map[int64]types.Provider),
		endpoints: make(map[int64]types.Endpoint),
		pools:     make(map[types.PoolTag]types.PoolConfig),
		idx:       newIndex(),
		store:     st,
		logger:    logger.With("component", "registry"),
	}
}

// Load populates the Registry from the Store at startup, seeding default
// pool configs for any pool the store has no row for yet.
func (r *Registry) Load(ctx context.Context, defaults map[types.PoolTag]types.PoolConfig) error {
	providers, endpoints, pools, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load registry state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range providers {
		r.providers[p.ID] = p
		if p.ID > r.nextProviderID {
			r.nextProviderID = p.ID
		}
	}
	for _, e := range endpoints {
		r.endpoints[e.ID] = e
		if e.ID > r.nextEndpointID {
			r.nextEndpointID = e.ID
		}
	}
	for _, c := range pools {
		r.pools[c.Pool] = c
	}
	for tag, def := range defaults {
		if _, ok := r.pools[tag]; !ok {
			r.pools[tag] = def
		}
	}
	r.rebuildIndexLocked()

	r.logger.Info("registry loaded", "providers", len(r.providers), "endpoints", len(r.endpoints))
	return nil
}

func (r *Registry) rebuildIndexLocked() {
	idx := newIndex()

	// The sorted provider ids do not set pool order: a provider's position
	// in a pool is that of its first endpoint there, with endpoints walked
	// in id order below.
	var providerIDs []int64
	for id := range r.providers {
		providerIDs = append(providerIDs, id)
	}
	sortInt64s(providerIDs)

	var endpointIDs []int64
	for id := range r.endpoints {
		endpointIDs = append(endpointIDs, id)
	}
	sortInt64s(endpointIDs)

	for _, pid := range providerIDs {
		p := r.providers[pid]
		_ = p
	}

	for _, pool := range types.AllPools {
		idx.providerIDsByPool[pool] = nil
		idx.endpointsByPoolProvider[pool] = make(map[int64][]int64)
	}

	seenProviderInPool := make(map[types.PoolTag]map[int64]bool)
	for _, pool := range types.AllPools {
		seenProviderInPool[pool] = make(map[int64]bool)
	}

	for _, eid := range endpointIDs {
		e := r.endpoints[eid]
		if _, ok := r.providers[e.ProviderID]; !ok {
			continue
		}
		if !seenProviderInPool[e.Pool][e.ProviderID] {
			seenProviderInPool[e.Pool][e.ProviderID] = true
			idx.providerIDsByPool[e.Pool] = append(idx.providerIDsByPool[e.Pool], e.ProviderID)
		}
		idx.endpointsByPoolProvider[e.Pool][e.ProviderID] = append(idx.endpointsByPoolProvider[e.Pool][e.ProviderID], e.ID)
	}

	r.idx = idx
}

func sortInt64s(s []int64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// --- Read operations ---

// ListProviders returns a snapshot of all providers.
func (r *Registry) ListProviders() []types.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

// GetProvider returns one provider by id.
func (r *Registry) GetProvider(id int64) (types.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ListEndpoints returns a snapshot of endpoints, optionally filtered by pool.
func (r *Registry) ListEndpoints(pool types.PoolTag) []types.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Endpoint, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		if pool != "" && e.Pool != pool {
			continue
		}
		out = append(out, e)
	}
	return out
}

// GetEndpoint returns one endpoint by id.
func (r *Registry) GetEndpoint(id int64) (types.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[id]
	return e, ok
}

// GetPoolConfig returns the config for tag.
func (r *Registry) GetPoolConfig(tag types.PoolTag) (types.PoolConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.pools[tag]
	return c, ok
}

// ListPoolConfigs returns a snapshot of every pool's config.
func (r *Registry) ListPoolConfigs() []types.PoolConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.PoolConfig, 0, len(r.pools))
	for _, c := range r.pools {
		out = append(out, c)
	}
	return out
}

// ResolveVirtualModel maps a client-visible model name to its pool tag
// using each pool's configured virtual_model name (§4.1). Unknown names
// report ok=false.
func (r *Registry) ResolveVirtualModel(model string) (types.PoolTag, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for tag, c := range r.pools {
		if c.VirtualModel == model {
			return tag, true
		}
	}
	return "", false
}

// ProviderOrder is a snapshot of the pool's provider order (round-robin
// order) and each provider's endpoint order (fallback order), taken under
// the read lock and safe to use after it is released (§4.1, §5).
type ProviderOrder struct {
	ProviderIDs        []int64
	EndpointsByProvider map[int64][]int64
}

// EndpointsByPool returns a consistent snapshot of the secondary index for
// pool, to be consulted by the Selector outside the lock.
func (r *Registry) EndpointsByPool(pool types.PoolTag) ProviderOrder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providerIDs := append([]int64(nil), r.idx.providerIDsByPool[pool]...)
	byProvider := make(map[int64][]int64, len(providerIDs))
	for pid, eids := range r.idx.endpointsByPoolProvider[pool] {
		byProvider[pid] = append([]int64(nil), eids...)
	}
	return ProviderOrder{ProviderIDs: providerIDs, EndpointsByProvider: byProvider}
}

// --- Mutating operations ---

// CreateProvider adds a new provider and persists it.
func (r *Registry) CreateProvider(ctx context.Context, p types.Provider) (types.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.providers {
		if existing.Name == p.Name {
			return types.Provider{}, fmt.Errorf("provider name %q already exists", p.Name)
		}
	}

	p.ID = 0
	if err := r.store.SaveProvider(ctx, &p); err != nil {
		return types.Provider{}, err
	}
	r.providers[p.ID] = p
	r.rebuildIndexLocked()
	r.logger.Info("provider created", "id", p.ID, "name", p.Name, "format", p.Format)
	return p, nil
}

// UpdateProvider replaces an existing provider's mutable fields.
func (r *Registry) UpdateProvider(ctx context.Context, p types.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.providers[p.ID]
	if !ok {
		return fmt.Errorf("provider %d not found", p.ID)
	}
	p.Total, p.Success, p.Error = existing.Total, existing.Success, existing.Error
	p.CreatedAt = existing.CreatedAt

	if err := r.store.SaveProvider(ctx, &p); err != nil {
		return err
	}
	r.providers[p.ID] = p
	r.rebuildIndexLocked()
	return nil
}

// DeleteProvider removes a provider and, transactively, its endpoints (§3).
func (r *Registry) DeleteProvider(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[id]; !ok {
		return fmt.Errorf("provider %d not found", id)
	}
	if err := r.store.DeleteProvider(ctx, id); err != nil {
		return err
	}
	delete(r.providers, id)
	for eid, e := range r.endpoints {
		if e.ProviderID == id {
			delete(r.endpoints, eid)
		}
	}
	r.rebuildIndexLocked()
	r.logger.Info("provider deleted", "id", id)
	return nil
}

// CreateEndpoint adds a new endpoint, enforcing the (provider, model, pool)
// uniqueness constraint (§3).
func (r *Registry) CreateEndpoint(ctx context.Context, e types.Endpoint) (types.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[e.ProviderID]; !ok {
		return types.Endpoint{}, fmt.Errorf("provider %d not found", e.ProviderID)
	}
	for _, existing := range r.endpoints {
		if existing.ProviderID == e.ProviderID && existing.UpstreamModelID == e.UpstreamModelID && existing.Pool == e.Pool {
			return types.Endpoint{}, fmt.Errorf("endpoint (%d, %q, %s) already exists", e.ProviderID, e.UpstreamModelID, e.Pool)
		}
	}
	if e.Weight <= 0 {
		e.Weight = 1
	}

	e.ID = 0
	if err := r.store.SaveEndpoint(ctx, &e); err != nil {
		return types.Endpoint{}, err
	}
	r.endpoints[e.ID] = e
	r.rebuildIndexLocked()
	return e, nil
}

// UpdateEndpoint applies an admin edit (enabled/weight/min-interval/priority,
// §4.7); health-state fields are left to healthstate, not this call.
func (r *Registry) UpdateEndpoint(ctx context.Context, e types.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.endpoints[e.ID]
	if !ok {
		return fmt.Errorf("endpoint %d not found", e.ID)
	}
	e.Total, e.Success, e.Error = existing.Total, existing.Success, existing.Error
	e.RollingLatencyMs = existing.RollingLatencyMs
	e.CooldownUntil = existing.CooldownUntil
	e.LastError = existing.LastError
	e.LastUsed = existing.LastUsed
	if e.Weight <= 0 {
		e.Weight = 1
	}

	if err := r.store.SaveEndpoint(ctx, &e); err != nil {
		return err
	}
	r.endpoints[e.ID] = e
	r.rebuildIndexLocked()
	return nil
}

// DeleteEndpoint removes an endpoint.
func (r *Registry) DeleteEndpoint(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.endpoints[id]; !ok {
		return fmt.Errorf("endpoint %d not found", id)
	}
	if err := r.store.DeleteEndpoint(ctx, id); err != nil {
		return err
	}
	delete(r.endpoints, id)
	r.rebuildIndexLocked()
	return nil
}

// UpdateEndpointHealth persists a health-state mutation produced by
// healthstate.State back onto the Registry's copy of the endpoint, without
// going through the full UpdateEndpoint validation path.
func (r *Registry) UpdateEndpointHealth(ctx context.Context, e types.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.endpoints[e.ID]; !ok {
		return fmt.Errorf("endpoint %d not found", e.ID)
	}
	r.endpoints[e.ID] = e
	return r.store.SaveEndpoint(ctx, &e)
}

// RecordProviderOutcome bumps a provider's lifetime counters.
func (r *Registry) RecordProviderOutcome(ctx context.Context, providerID int64, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[providerID]
	if !ok {
		return
	}
	p.Total++
	if success {
		p.Success++
	} else {
		p.Error++
	}
	r.providers[providerID] = p
	_ = r.store.SaveProvider(ctx, &p)
}

// UpdatePoolConfig updates a pool's tunables. Per the resolved open
// question (SPEC_FULL.md §9), this does not retroactively touch any
// endpoint's existing cooldown_until.
func (r *Registry) UpdatePoolConfig(ctx context.Context, c types.PoolConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.SavePoolConfig(ctx, &c); err != nil {
		return err
	}
	r.pools[c.Pool] = c
	return nil
}

