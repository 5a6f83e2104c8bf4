// Package store persists the Registry and Log Sink to SQLite. Two build-tag
// selected drivers back the same interface: github.com/mattn/go-sqlite3
// (cgo, the default) and modernc.org/sqlite (pure Go, selected with
// CGO_ENABLED=0), grounded on the teacher's evidence/storage/sqlite.go
// (WAL pragma, busy_timeout, schema versioning) and limits/storage/sqlite.go
// (its one other SQLite call site).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

// Config contains configuration for the SQLite storage backend.
type Config struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// BusyTimeout is how long to wait when the database is locked.
	BusyTimeout time.Duration
}

// DefaultConfig returns the default SQLite configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:         "gateway.db",
		MaxOpenConns: 10,
		BusyTimeout:  5 * time.Second,
	}
}

// Store is the persistence interface the Registry and Log Sink depend on.
type Store interface {
	// LoadAll loads the full persisted state at startup.
	LoadAll(ctx context.Context) ([]types.Provider, []types.Endpoint, []types.PoolConfig, error)

	SaveProvider(ctx context.Context, p *types.Provider) error
	DeleteProvider(ctx context.Context, id int64) error

	SaveEndpoint(ctx context.Context, e *types.Endpoint) error
	DeleteEndpoint(ctx context.Context, id int64) error

	SavePoolConfig(ctx context.Context, c *types.PoolConfig) error

	AppendLog(ctx context.Context, e *types.LogEntry) error
	QueryLogs(ctx context.Context, f types.LogFilter) ([]types.LogEntry, error)
	CountLogs(ctx context.Context, f types.LogFilter) (int64, error)
	ClearLogs(ctx context.Context) error
	PruneLogsOverCap(ctx context.Context, cap int64) (int64, error)

	Close() error
}

// SQLiteStore implements Store on top of database/sql; the concrete driver
// is registered by sqlite_cgo.go or sqlite_purego.go depending on build tags.
type SQLiteStore struct {
	db     *sql.DB
	config *Config
}

// Open opens (creating if necessary) the SQLite database at cfg.Path and
// applies the schema.
func Open(cfg *Config) (*SQLiteStore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	db, err := sql.Open(driverName, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	s := &SQLiteStore{db: db, config: cfg}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	busyMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyMs)); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.db.Exec(insertSchemaVersion, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
