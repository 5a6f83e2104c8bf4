package store

// schemaVersion is the current database schema version.
const schemaVersion = 1

// schema contains the SQL statements creating the gateway's tables,
// grounded on the teacher's evidence/storage/sqlite_schema.go layout.
const schema = `
CREATE TABLE IF NOT EXISTS providers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    base_url TEXT NOT NULL,
    api_key TEXT NOT NULL,
    format TEXT NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT 1,
    total INTEGER NOT NULL DEFAULT 0,
    success INTEGER NOT NULL DEFAULT 0,
    error INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS endpoints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    provider_id INTEGER NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
    upstream_model_id TEXT NOT NULL,
    pool TEXT NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT 1,
    weight INTEGER NOT NULL DEFAULT 1,
    min_interval_seconds INTEGER NOT NULL DEFAULT 0,
    priority INTEGER NOT NULL DEFAULT 0,
    total INTEGER NOT NULL DEFAULT 0,
    success INTEGER NOT NULL DEFAULT 0,
    error INTEGER NOT NULL DEFAULT 0,
    rolling_latency_ms REAL NOT NULL DEFAULT 0,
    cooldown_until TIMESTAMP,
    last_error TEXT,
    last_used TIMESTAMP,
    UNIQUE(provider_id, upstream_model_id, pool)
);

CREATE TABLE IF NOT EXISTS pool_configs (
    pool TEXT PRIMARY KEY,
    virtual_model TEXT NOT NULL,
    cooldown_seconds INTEGER NOT NULL,
    timeout_seconds INTEGER NOT NULL,
    max_retries INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pool TEXT NOT NULL,
    requested_model TEXT NOT NULL,
    actual_model TEXT NOT NULL,
    provider TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    http_status INTEGER,
    error_message TEXT,
    latency_ms INTEGER NOT NULL,
    input_tokens INTEGER,
    output_tokens INTEGER,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_endpoints_pool ON endpoints(pool);
CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at);
CREATE INDEX IF NOT EXISTS idx_logs_pool ON logs(pool);
CREATE INDEX IF NOT EXISTS idx_logs_provider ON logs(provider);
`

const insertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`
