// Package config loads the gateway's runtime configuration: a small
// env-var-driven Config struct (§6) plus an optional YAML seed file used
// to bulk-import providers/endpoints/pool configs on first boot.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

// Config is the gateway's runtime configuration, populated entirely from
// the environment table in §6. Unlike the teacher's nested YAML mega
// config, this gateway has no policy engine, evidence backend selection,
// or provider-manager section to configure: provider/endpoint data lives
// in the Registry, not here.
type Config struct {
	// ListenAddress is the address the HTTP server binds to.
	ListenAddress string

	// AdminPassword gates every /admin/* route (§6).
	AdminPassword string

	// DBPath is the SQLite database file backing the Store.
	DBPath string

	// DefaultCooldownSeconds seeds PoolConfig.CooldownSeconds for any pool
	// the store has no row for yet.
	DefaultCooldownSeconds int

	// DefaultTimeoutSeconds seeds PoolConfig.TimeoutSeconds likewise.
	DefaultTimeoutSeconds int

	// VirtualModels maps each pool tag to its client-visible model name
	// (VIRTUAL_MODEL_TOOL/NORMAL/ADVANCED).
	VirtualModels map[types.PoolTag]string

	// LogLevel is the minimum slog level ("debug", "info", "warn", "error").
	LogLevel string

	// LogFormat is the slog handler format ("json" or "text").
	LogFormat string

	// LogPruneCap is the soft eviction cap for the log sink (§4.6).
	LogPruneCap int64

	// LogPruneSchedule is the cron schedule for the log sink's prune sweep.
	LogPruneSchedule string

	// ShutdownTimeout bounds how long graceful shutdown waits for
	// in-flight requests.
	ShutdownTimeout time.Duration
}

// Defaults returns the configuration the spec calls for when no
// environment variable overrides are present (§6).
func Defaults() *Config {
	return &Config{
		ListenAddress:          ":8899",
		AdminPassword:          "admin123",
		DBPath:                 "gateway.db",
		DefaultCooldownSeconds: 60,
		DefaultTimeoutSeconds:  60,
		VirtualModels: map[types.PoolTag]string{
			types.PoolTool:     "haiku",
			types.PoolNormal:   "sonnet",
			types.PoolAdvanced: "opus",
		},
		LogLevel:         "info",
		LogFormat:        "json",
		LogPruneCap:      10000,
		LogPruneSchedule: "0 * * * *",
		ShutdownTimeout:  30 * time.Second,
	}
}

// DefaultPoolConfigs builds the seed PoolConfig rows Registry.Load uses
// for any pool the store has no persisted row for yet.
func (c *Config) DefaultPoolConfigs() map[types.PoolTag]types.PoolConfig {
	out := make(map[types.PoolTag]types.PoolConfig, len(types.AllPools))
	for _, pool := range types.AllPools {
		out[pool] = types.PoolConfig{
			Pool:            pool,
			VirtualModel:    c.VirtualModels[pool],
			CooldownSeconds: c.DefaultCooldownSeconds,
			TimeoutSeconds:  c.DefaultTimeoutSeconds,
		}
	}
	return out
}

// FromEnv loads a Config from the process environment, applying §6's
// defaults for anything unset.
func FromEnv() (*Config, error) {
	cfg := Defaults()

	if v := os.Getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid API_PORT %q: %w", v, err)
		}
		cfg.ListenAddress = fmt.Sprintf(":%d", port)
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.AdminPassword = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DEFAULT_COOLDOWN_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DEFAULT_COOLDOWN_SECONDS %q: %w", v, err)
		}
		cfg.DefaultCooldownSeconds = n
	}
	if v := os.Getenv("VIRTUAL_MODEL_TOOL"); v != "" {
		cfg.VirtualModels[types.PoolTool] = v
	}
	if v := os.Getenv("VIRTUAL_MODEL_NORMAL"); v != "" {
		cfg.VirtualModels[types.PoolNormal] = v
	}
	if v := os.Getenv("VIRTUAL_MODEL_ADVANCED"); v != "" {
		cfg.VirtualModels[types.PoolAdvanced] = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("LOG_CAP"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_CAP %q: %w", v, err)
		}
		cfg.LogPruneCap = n
	}
	if v := os.Getenv("LOG_PRUNE_SCHEDULE"); v != "" {
		cfg.LogPruneSchedule = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first configuration error found, fail-fast at
// startup rather than surfacing a confusing error deep in request
// handling.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.AdminPassword == "" {
		return fmt.Errorf("admin password must not be empty")
	}
	if c.DefaultCooldownSeconds < 0 {
		return fmt.Errorf("default cooldown seconds must not be negative")
	}
	if c.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("default timeout seconds must be positive")
	}
	for _, pool := range types.AllPools {
		if c.VirtualModels[pool] == "" {
			return fmt.Errorf("virtual model for pool %q must not be empty", pool)
		}
	}
	return nil
}
