package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/healthstate"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/logsink"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/registry"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/upstream"
)

// fakeStore is an in-memory stand-in for store.Store, mirroring
// registry_test.go's fixture since admin needs its own (unexported types
// don't cross package boundaries).
type fakeStore struct {
	mu        sync.Mutex
	nextPID   int64
	nextEID   int64
	providers map[int64]types.Provider
	endpoints map[int64]types.Endpoint
	pools     map[types.PoolTag]types.PoolConfig
	logs      []types.LogEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		providers: make(map[int64]types.Provider),
		endpoints: make(map[int64]types.Endpoint),
		pools:     make(map[types.PoolTag]types.PoolConfig),
	}
}

func (f *fakeStore) LoadAll(ctx context.Context) ([]types.Provider, []types.Endpoint, []types.PoolConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ps []types.Provider
	for _, p := range f.providers {
		ps = append(ps, p)
	}
	var es []types.Endpoint
	for _, e := range f.endpoints {
		es = append(es, e)
	}
	var cs []types.PoolConfig
	for _, c := range f.pools {
		cs = append(cs, c)
	}
	return ps, es, cs, nil
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

func (f *fakeStore) DeleteProvider(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.providers, id)
	return nil
}

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

func (f *fakeStore) DeleteEndpoint(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.endpoints, id)
	return nil
}

func (f *fakeStore) SavePoolConfig(ctx context.Context, c *types.PoolConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pools[c.Pool] = *c
	return nil
}

func (f *fakeStore) AppendLog(ctx context.Context, e *types.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *e)
	return nil
}

func (f *fakeStore) QueryLogs(ctx context.Context, fl types.LogFilter) ([]types.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]types.LogEntry(nil), f.logs...)
	return out, nil
}

func (f *fakeStore) CountLogs(ctx context.Context, fl types.LogFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.logs)), nil
}

func (f *fakeStore) ClearLogs(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = nil
	return nil
}

func (f *fakeStore) PruneLogsOverCap(ctx context.Context, cap int64) (int64, error) { return 0, nil }
func (f *fakeStore) Close() error                                                   { return nil }

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	reg := registry.New(newFakeStore(), nil)
	if err := reg.Load(context.Background(), map[types.PoolTag]types.PoolConfig{
		types.PoolTool:     {Pool: types.PoolTool, VirtualModel: "haiku", CooldownSeconds: 60, TimeoutSeconds: 30},
		types.PoolNormal:   {Pool: types.PoolNormal, VirtualModel: "sonnet", CooldownSeconds: 60, TimeoutSeconds: 60},
		types.PoolAdvanced: {Pool: types.PoolAdvanced, VirtualModel: "opus", CooldownSeconds: 120, TimeoutSeconds: 120},
	}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	health := healthstate.New()
	sink := logsink.New(newFakeStore(), 0, nil)
	up := upstream.NewPool()
	return New(reg, health, sink, up, nil)
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, password string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if password != "" {
		req.Header.Set("Authorization", "Bearer "+password)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func newTestMux(h *Handler, password string) *http.ServeMux {
	mux := http.NewServeMux()
	h.Routes(mux, password)
	return mux
}

func TestRequirePasswordRejectsMissingAndWrongCredentials(t *testing.T) {
	h := newTestHandler(t)
	mux := newTestMux(h, "secret")

	if rec := doRequest(t, mux, "GET", "/admin/providers", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing credentials: status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, mux, "GET", "/admin/providers", "wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d, want 401", rec.Code)
	}
	if rec := doRequest(t, mux, "GET", "/admin/providers", "secret", nil); rec.Code != http.StatusOK {
		t.Errorf("correct password: status = %d, want 200", rec.Code)
	}
}

func TestRequirePasswordAcceptsCookie(t *testing.T) {
	h := newTestHandler(t)
	mux := newTestMux(h, "secret")

	req := httptest.NewRequest("GET", "/admin/providers", nil)
	req.AddCookie(&http.Cookie{Name: "admin_password", Value: "secret"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("cookie auth: status = %d, want 200", rec.Code)
	}
}

func TestCreateProviderValidation(t *testing.T) {
	h := newTestHandler(t)
	mux := newTestMux(h, "secret")

	rec := doRequest(t, mux, "POST", "/admin/providers", "secret", map[string]any{
		"name": "", "base_url": "https://api.openai.com", "format": "openai",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty name: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, mux, "POST", "/admin/providers", "secret", map[string]any{
		"name": "p1", "base_url": "https://api.openai.com", "format": "not-a-format",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad format: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, mux, "POST", "/admin/providers", "secret", map[string]any{
		"name": "p1", "base_url": "https://api.openai.com", "format": "openai", "enabled": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("valid create: status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}

	var created types.Provider
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created provider: %v", err)
	}
	if created.ID == 0 || created.Name != "p1" {
		t.Errorf("created provider = %+v, unexpected", created)
	}
}

func TestCreateEndpointRejectsUnknownProviderAndPool(t *testing.T) {
	h := newTestHandler(t)
	mux := newTestMux(h, "secret")

	providerRec := doRequest(t, mux, "POST", "/admin/providers", "secret", map[string]any{
		"name": "p1", "base_url": "https://api.openai.com", "format": "openai",
	})
	var provider types.Provider
	_ = json.Unmarshal(providerRec.Body.Bytes(), &provider)

	rec := doRequest(t, mux, "POST", "/admin/endpoints", "secret", map[string]any{
		"provider_id": 9999, "upstream_model_id": "gpt-4o-mini", "pool": "tool",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown provider: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, mux, "POST", "/admin/endpoints", "secret", map[string]any{
		"provider_id": provider.ID, "upstream_model_id": "gpt-4o-mini", "pool": "not-a-pool",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid pool: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, mux, "POST", "/admin/endpoints", "secret", map[string]any{
		"provider_id": provider.ID, "upstream_model_id": "gpt-4o-mini", "pool": "tool",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("valid create: status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateEndpointsBatchDeduplicates(t *testing.T) {
	h := newTestHandler(t)
	mux := newTestMux(h, "secret")

	providerRec := doRequest(t, mux, "POST", "/admin/providers", "secret", map[string]any{
		"name": "p1", "base_url": "https://api.openai.com", "format": "openai",
	})
	var provider types.Provider
	_ = json.Unmarshal(providerRec.Body.Bytes(), &provider)

	batch := []map[string]any{
		{"provider_id": provider.ID, "upstream_model_id": "gpt-4o-mini", "pool": "tool"},
		{"provider_id": provider.ID, "upstream_model_id": "gpt-4o", "pool": "normal"},
	}
	rec := doRequest(t, mux, "POST", "/admin/endpoints/batch", "secret", batch)
	if rec.Code != http.StatusCreated {
		t.Fatalf("batch create: status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}

	var created []types.Endpoint
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode batch result: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("got %d endpoints, want 2", len(created))
	}

	// Re-submitting the same (provider, model, pool) pair must fail the
	// uniqueness constraint (§3) instead of silently duplicating it.
	dup := []map[string]any{
		{"provider_id": provider.ID, "upstream_model_id": "gpt-4o-mini", "pool": "tool"},
	}
	rec = doRequest(t, mux, "POST", "/admin/endpoints/batch", "secret", dup)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate batch entry: status = %d, want 400", rec.Code)
	}
}

func TestUpdatePoolConfigValidation(t *testing.T) {
	h := newTestHandler(t)
	mux := newTestMux(h, "secret")

	rec := doRequest(t, mux, "PUT", "/admin/pools/tool/config", "secret", map[string]any{
		"virtual_model": "haiku", "cooldown_seconds": 0, "timeout_seconds": 30,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero cooldown: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, mux, "PUT", "/admin/pools/tool/config", "secret", map[string]any{
		"virtual_model": "haiku", "cooldown_seconds": 30, "timeout_seconds": 15,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid update: status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	poolsRec := doRequest(t, mux, "GET", "/admin/pools", "secret", nil)
	var cfgs []types.PoolConfig
	if err := json.Unmarshal(poolsRec.Body.Bytes(), &cfgs); err != nil {
		t.Fatalf("decode pools: %v", err)
	}
	var found bool
	for _, c := range cfgs {
		if c.Pool == types.PoolTool {
			found = true
			if c.TimeoutSeconds != 15 {
				t.Errorf("TimeoutSeconds = %d, want 15", c.TimeoutSeconds)
			}
		}
	}
	if !found {
		t.Error("tool pool config missing from GET /admin/pools")
	}
}

func TestLogsListAndClear(t *testing.T) {
	h := newTestHandler(t)
	mux := newTestMux(h, "secret")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		h.logs.Append(ctx, &types.LogEntry{Pool: types.PoolTool, RequestedModel: "haiku", Success: i%2 == 0})
	}

	rec := doRequest(t, mux, "GET", "/admin/logs", "secret", nil)
	var resp logsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if resp.Total != 3 || len(resp.Entries) != 3 {
		t.Errorf("logs = %+v, want 3 entries", resp)
	}

	rec = doRequest(t, mux, "DELETE", "/admin/logs", "secret", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("clear logs: status = %d, want 204", rec.Code)
	}

	rec = doRequest(t, mux, "GET", "/admin/logs", "secret", nil)
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 0 {
		t.Errorf("logs after clear = %+v, want empty", resp)
	}
}

func TestStatsAggregatesEndpointCounters(t *testing.T) {
	h := newTestHandler(t)
	mux := newTestMux(h, "secret")

	providerRec := doRequest(t, mux, "POST", "/admin/providers", "secret", map[string]any{
		"name": "p1", "base_url": "https://api.openai.com", "format": "openai", "enabled": true,
	})
	var provider types.Provider
	_ = json.Unmarshal(providerRec.Body.Bytes(), &provider)

	doRequest(t, mux, "POST", "/admin/endpoints", "secret", map[string]any{
		"provider_id": provider.ID, "upstream_model_id": "gpt-4o-mini", "pool": "tool", "enabled": true,
	})

	rec := doRequest(t, mux, "GET", "/admin/stats", "secret", nil)
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if len(resp.Providers) != 1 {
		t.Fatalf("Providers = %d, want 1", len(resp.Providers))
	}
	var toolStats *poolStats
	for i := range resp.Pools {
		if resp.Pools[i].Pool == types.PoolTool {
			toolStats = &resp.Pools[i]
		}
	}
	if toolStats == nil {
		t.Fatal("tool pool missing from stats")
	}
	if toolStats.EndpointCount != 1 {
		t.Errorf("EndpointCount = %d, want 1", toolStats.EndpointCount)
	}
	if toolStats.AvailableCount != 1 {
		t.Errorf("AvailableCount = %d, want 1 (fresh endpoint is healthy)", toolStats.AvailableCount)
	}
}

func TestDeleteProviderCascadesToEndpointHealth(t *testing.T) {
	h := newTestHandler(t)
	mux := newTestMux(h, "secret")

	providerRec := doRequest(t, mux, "POST", "/admin/providers", "secret", map[string]any{
		"name": "p1", "base_url": "https://api.openai.com", "format": "openai",
	})
	var provider types.Provider
	_ = json.Unmarshal(providerRec.Body.Bytes(), &provider)

	endpointRec := doRequest(t, mux, "POST", "/admin/endpoints", "secret", map[string]any{
		"provider_id": provider.ID, "upstream_model_id": "gpt-4o-mini", "pool": "tool",
	})
	var endpoint types.Endpoint
	_ = json.Unmarshal(endpointRec.Body.Bytes(), &endpoint)

	rec := doRequest(t, mux, "DELETE", "/admin/providers/"+itoa(provider.ID), "secret", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete provider: status = %d, want 204", rec.Code)
	}

	if _, ok := h.reg.GetEndpoint(endpoint.ID); ok {
		t.Error("expected endpoint to be cascade-deleted with its provider")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
