package selector

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/healthstate"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/registry"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

type fakeStore struct {
	mu        sync.Mutex
	nextPID   int64
	nextEID   int64
	providers map[int64]types.Provider
	endpoints map[int64]types.Endpoint
	pools     map[types.PoolTag]types.PoolConfig
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		providers: make(map[int64]types.Provider),
		endpoints: make(map[int64]types.Endpoint),
		pools:     make(map[types.PoolTag]types.PoolConfig),
	}
}

func (f *fakeStore) LoadAll(ctx context.Context) ([]types.Provider, []types.Endpoint, []types.PoolConfig, error) {
	return nil, nil, nil, nil
}

func (f *fakeStore) SaveProvider(ctx context.Context, p *types.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == 0 {
		f.nextPID++
		p.ID = f.nextPID
	}
	f.providers[p.ID] = *p
	return nil
}

func (f *fakeStore) DeleteProvider(ctx context.Context, id int64) error { return nil }

func (f *fakeStore) SaveEndpoint(ctx context.Context, e *types.Endpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.ID == 0 {
		f.nextEID++
		e.ID = f.nextEID
	}
	f.endpoints[e.ID] = *e
	return nil
}

func (f *fakeStore) DeleteEndpoint(ctx context.Context, id int64) error { return nil }
func (f *fakeStore) SavePoolConfig(ctx context.Context, c *types.PoolConfig) error {
	return nil
}
func (f *fakeStore) AppendLog(ctx context.Context, e *types.LogEntry) error { return nil }
func (f *fakeStore) QueryLogs(ctx context.Context, fl types.LogFilter) ([]types.LogEntry, error) {
	return nil, nil
}
func (f *fakeStore) CountLogs(ctx context.Context, fl types.LogFilter) (int64, error) { return 0, nil }
func (f *fakeStore) ClearLogs(ctx context.Context) error                             { return nil }
func (f *fakeStore) PruneLogsOverCap(ctx context.Context, cap int64) (int64, error) {
	return 0, nil
}
func (f *fakeStore) Close() error { return nil }

// fixture builds a registry with n providers, one endpoint per provider in
// PoolTool, and tracks each endpoint in a fresh healthstate.State.
func fixture(t *testing.T, n int, weight int) (*registry.Registry, *healthstate.State, []int64) {
	t.Helper()
	reg := registry.New(newFakeStore(), nil)
	if err := reg.Load(context.Background(), map[types.PoolTag]types.PoolConfig{
		types.PoolTool: {Pool: types.PoolTool, VirtualModel: "haiku", CooldownSeconds: 60, TimeoutSeconds: 30},
	}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	health := healthstate.New()
	var endpointIDs []int64
	for i := 0; i < n; i++ {
		p, err := reg.CreateProvider(context.Background(), types.Provider{
			Name: fmt.Sprintf("provider-%d", i), BaseURL: "https://x", Format: types.WireFormatOpenAI, Enabled: true,
		})
		if err != nil {
			t.Fatalf("CreateProvider: %v", err)
		}
		e, err := reg.CreateEndpoint(context.Background(), types.Endpoint{
			ProviderID: p.ID, UpstreamModelID: "m", Pool: types.PoolTool, Weight: weight, Enabled: true,
		})
		if err != nil {
			t.Fatalf("CreateEndpoint: %v", err)
		}
		health.Track(e)
		endpointIDs = append(endpointIDs, e.ID)
	}
	return reg, health, endpointIDs
}

func TestCandidatesEmptyPoolReturnsNil(t *testing.T) {
	reg := registry.New(newFakeStore(), nil)
	if err := reg.Load(context.Background(), nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sel := New(reg, healthstate.New())
	if got := sel.Candidates(types.PoolTool, time.Now()); got != nil {
		t.Errorf("Candidates() on empty pool = %v, want nil", got)
	}
}

func TestCandidatesRotatesStartOffset(t *testing.T) {
	reg, health, endpointIDs := fixture(t, 3, 1)
	sel := New(reg, health)
	now := time.Now()

	var firstOfEachRound []int64
	for i := 0; i < 3; i++ {
		cands := sel.Candidates(types.PoolTool, now)
		if len(cands) != 3 {
			t.Fatalf("round %d: got %d candidates, want 3", i, len(cands))
		}
		firstOfEachRound = append(firstOfEachRound, cands[0])
	}

	// With 3 providers and 3 rotations, each provider should have led the
	// order exactly once -- the three leaders should be a permutation of
	// the three tracked endpoint ids.
	seen := make(map[int64]bool)
	for _, id := range firstOfEachRound {
		seen[id] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct leading candidates across 3 rotations, got %v", firstOfEachRound)
	}
	for _, id := range firstOfEachRound {
		found := false
		for _, want := range endpointIDs {
			if id == want {
				found = true
			}
		}
		if !found {
			t.Errorf("leading candidate %d is not one of the tracked endpoints %v", id, endpointIDs)
		}
	}
}

func TestCandidatesSkipsCoolingEndpoints(t *testing.T) {
	reg, health, endpointIDs := fixture(t, 3, 1)
	sel := New(reg, health)
	now := time.Now()

	// Cool down two of the three endpoints; the third should still surface.
	health.MarkFailure(endpointIDs[0], now, time.Minute, true)
	health.MarkFailure(endpointIDs[1], now, time.Minute, true)

	cands := sel.Candidates(types.PoolTool, now)
	if len(cands) != 1 || cands[0] != endpointIDs[2] {
		t.Errorf("Candidates() = %v, want only %d", cands, endpointIDs[2])
	}
}

func TestCandidatesDegradedFallbackWhenAllCooling(t *testing.T) {
	reg, health, endpointIDs := fixture(t, 3, 1)
	sel := New(reg, health)
	now := time.Now()

	for _, id := range endpointIDs {
		health.MarkFailure(id, now, time.Minute, true)
	}

	cands := sel.Candidates(types.PoolTool, now)
	if len(cands) != 3 {
		t.Fatalf("degraded fallback: got %d candidates, want 3", len(cands))
	}
	seen := make(map[int64]bool)
	for _, id := range cands {
		seen[id] = true
	}
	for _, id := range endpointIDs {
		if !seen[id] {
			t.Errorf("degraded fallback missing endpoint %d", id)
		}
	}
}

func TestCandidatesDegradedFallbackExcludesDisabled(t *testing.T) {
	reg, health, endpointIDs := fixture(t, 2, 1)
	sel := New(reg, health)
	now := time.Now()

	health.Track(types.Endpoint{ID: endpointIDs[0], Enabled: false})
	for _, id := range endpointIDs {
		health.MarkFailure(id, now, time.Minute, true)
	}

	cands := sel.Candidates(types.PoolTool, now)
	for _, id := range cands {
		if id == endpointIDs[0] {
			t.Errorf("degraded fallback returned disabled endpoint %d", id)
		}
	}
}

func TestCandidatesExcludeDisabledProvider(t *testing.T) {
	reg, health, endpointIDs := fixture(t, 2, 1)
	sel := New(reg, health)
	now := time.Now()

	endpoint, ok := reg.GetEndpoint(endpointIDs[0])
	if !ok {
		t.Fatalf("GetEndpoint(%d): not found", endpointIDs[0])
	}
	provider, ok := reg.GetProvider(endpoint.ProviderID)
	if !ok {
		t.Fatalf("GetProvider(%d): not found", endpoint.ProviderID)
	}
	provider.Enabled = false
	if err := reg.UpdateProvider(context.Background(), provider); err != nil {
		t.Fatalf("UpdateProvider: %v", err)
	}

	cands := sel.Candidates(types.PoolTool, now)
	for _, id := range cands {
		if id == endpointIDs[0] {
			t.Errorf("primary pass returned endpoint %d belonging to a disabled provider", id)
		}
	}
	if len(cands) != 1 || cands[0] != endpointIDs[1] {
		t.Errorf("Candidates() = %v, want only the other provider's endpoint %d", cands, endpointIDs[1])
	}
}

func TestCandidatesDegradedFallbackExcludesDisabledProvider(t *testing.T) {
	reg, health, endpointIDs := fixture(t, 2, 1)
	sel := New(reg, health)
	now := time.Now()

	endpoint, _ := reg.GetEndpoint(endpointIDs[0])
	provider, _ := reg.GetProvider(endpoint.ProviderID)
	provider.Enabled = false
	if err := reg.UpdateProvider(context.Background(), provider); err != nil {
		t.Fatalf("UpdateProvider: %v", err)
	}

	for _, id := range endpointIDs {
		health.MarkFailure(id, now, time.Minute, true)
	}

	cands := sel.Candidates(types.PoolTool, now)
	for _, id := range cands {
		if id == endpointIDs[0] {
			t.Errorf("degraded fallback returned endpoint %d belonging to a disabled provider", id)
		}
	}
}

func TestCandidatesSingleEndpointPool(t *testing.T) {
	reg, health, endpointIDs := fixture(t, 1, 1)
	sel := New(reg, health)
	cands := sel.Candidates(types.PoolTool, time.Now())
	if len(cands) != 1 || cands[0] != endpointIDs[0] {
		t.Errorf("single-endpoint pool: got %v, want [%d]", cands, endpointIDs[0])
	}
}
