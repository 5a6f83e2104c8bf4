// Package config loads the gateway's runtime configuration.
//
// Config is populated entirely from the environment table in the
// specification (API_PORT, ADMIN_PASSWORD, DEFAULT_COOLDOWN_SECONDS,
// VIRTUAL_MODEL_TOOL/NORMAL/ADVANCED, ...): a typed struct with explicit
// defaults, validated once at startup, rather than a generic untyped map.
//
// Provider and endpoint data is not configured here: it lives in the
// Registry, created through the Admin API or bulk-imported once from an
// optional YAML seed file (see Seed / LoadSeed / Seed.Apply).
package config
