package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/registry"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

// Seed is the shape of an optional first-boot bulk-import file (§9):
// a convenience for standing up a gateway without hand-driving the Admin
// API, not a replacement for it. Re-read only on explicit invocation
// ("mercator run --seed path.yaml"), never watched.
type Seed struct {
	Providers []SeedProvider        `yaml:"providers"`
	Endpoints []SeedEndpoint        `yaml:"endpoints"`
	Pools     []types.PoolConfig    `yaml:"pools"`
}

// SeedProvider is one provider entry in a seed file. Name is used to
// resolve Endpoint.ProviderName against the created provider's id.
type SeedProvider struct {
	Name    string           `yaml:"name"`
	BaseURL string           `yaml:"base_url"`
	APIKey  string           `yaml:"api_key"`
	Format  types.WireFormat `yaml:"format"`
	Enabled *bool            `yaml:"enabled"`
}

// SeedEndpoint is one endpoint entry, referencing its provider by name
// rather than id since ids aren't known until the provider is created.
type SeedEndpoint struct {
	ProviderName    string       `yaml:"provider_name"`
	UpstreamModelID string       `yaml:"upstream_model_id"`
	Pool            types.PoolTag `yaml:"pool"`
	Enabled         *bool        `yaml:"enabled"`
	Weight          int          `yaml:"weight"`
	MinIntervalSecs int          `yaml:"min_interval_seconds"`
	Priority        int          `yaml:"priority"`
}

// LoadSeed reads and parses a seed YAML file at path.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &seed, nil
}

// Apply creates every provider/endpoint/pool-config in the seed against
// reg. Endpoints that collide with the uniqueness constraint (§3) are
// skipped rather than aborting the whole import, so a seed file can be
// safely re-applied across restarts.
func (s *Seed) Apply(ctx context.Context, reg *registry.Registry) error {
	idByName := make(map[string]int64, len(s.Providers))

	for _, p := range s.Providers {
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		created, err := reg.CreateProvider(ctx, types.Provider{
			Name:    p.Name,
			BaseURL: p.BaseURL,
			APIKey:  p.APIKey,
			Format:  p.Format,
			Enabled: enabled,
		})
		if err != nil {
			// A provider with this name may already exist from a prior
			// seed run; look it up instead of failing the whole import.
			found := false
			for _, existing := range reg.ListProviders() {
				if existing.Name == p.Name {
					idByName[p.Name] = existing.ID
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("seed provider %q: %w", p.Name, err)
			}
			continue
		}
		idByName[p.Name] = created.ID
	}

	for _, e := range s.Endpoints {
		providerID, ok := idByName[e.ProviderName]
		if !ok {
			return fmt.Errorf("seed endpoint references unknown provider %q", e.ProviderName)
		}
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		weight := e.Weight
		if weight <= 0 {
			weight = 1
		}
		if _, err := reg.CreateEndpoint(ctx, types.Endpoint{
			ProviderID:      providerID,
			UpstreamModelID: e.UpstreamModelID,
			Pool:            e.Pool,
			Enabled:         enabled,
			Weight:          weight,
			MinIntervalSecs: e.MinIntervalSecs,
			Priority:        e.Priority,
		}); err != nil {
			// Duplicate (provider, model, pool) rows are expected on a
			// re-applied seed; anything else is a real failure.
			duplicate := false
			for _, existing := range reg.ListEndpoints(e.Pool) {
				if existing.ProviderID == providerID && existing.UpstreamModelID == e.UpstreamModelID {
					duplicate = true
					break
				}
			}
			if !duplicate {
				return fmt.Errorf("seed endpoint %q: %w", e.UpstreamModelID, err)
			}
			continue
		}
	}

	for _, c := range s.Pools {
		if err := reg.UpdatePoolConfig(ctx, c); err != nil {
			return fmt.Errorf("seed pool config %q: %w", c.Pool, err)
		}
	}

	return nil
}
