package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
)

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]types.Provider, []types.Endpoint, []types.PoolConfig, error) {
	providers, err := s.loadProviders(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	endpoints, err := s.loadEndpoints(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	pools, err := s.loadPoolConfigs(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return providers, endpoints, pools, nil
}

func (s *SQLiteStore) loadProviders(ctx context.Context) ([]types.Provider, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, base_url, api_key, format, enabled, total, success, error, created_at FROM providers`)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	defer rows.Close()

	var out []types.Provider
	for rows.Next() {
		var p types.Provider
		var format string
		if err := rows.Scan(&p.ID, &p.Name, &p.BaseURL, &p.APIKey, &format, &p.Enabled, &p.Total, &p.Success, &p.Error, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		p.Format = types.WireFormat(format)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadEndpoints(ctx context.Context) ([]types.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, provider_id, upstream_model_id, pool, enabled, weight, min_interval_seconds,
		priority, total, success, error, rolling_latency_ms, cooldown_until, last_error, last_used FROM endpoints`)
	if err != nil {
		return nil, fmt.Errorf("load endpoints: %w", err)
	}
	defer rows.Close()

	var out []types.Endpoint
	for rows.Next() {
		var e types.Endpoint
		var pool string
		var cooldownUntil, lastUsed sql.NullTime
		var lastError sql.NullString
		if err := rows.Scan(&e.ID, &e.ProviderID, &e.UpstreamModelID, &pool, &e.Enabled, &e.Weight, &e.MinIntervalSecs,
			&e.Priority, &e.Total, &e.Success, &e.Error, &e.RollingLatencyMs, &cooldownUntil, &lastError, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		e.Pool = types.PoolTag(pool)
		if cooldownUntil.Valid {
			t := cooldownUntil.Time
			e.CooldownUntil = &t
		}
		if lastUsed.Valid {
			t := lastUsed.Time
			e.LastUsed = &t
		}
		e.LastError = lastError.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadPoolConfigs(ctx context.Context) ([]types.PoolConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pool, virtual_model, cooldown_seconds, timeout_seconds, max_retries FROM pool_configs`)
	if err != nil {
		return nil, fmt.Errorf("load pool configs: %w", err)
	}
	defer rows.Close()

	var out []types.PoolConfig
	for rows.Next() {
		var c types.PoolConfig
		var pool string
		if err := rows.Scan(&pool, &c.VirtualModel, &c.CooldownSeconds, &c.TimeoutSeconds, &c.MaxRetries); err != nil {
			return nil, fmt.Errorf("scan pool config: %w", err)
		}
		c.Pool = types.PoolTag(pool)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveProvider(ctx context.Context, p *types.Provider) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.ID == 0 {
		res, err := s.db.ExecContext(ctx, `INSERT INTO providers (name, base_url, api_key, format, enabled, total, success, error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Name, p.BaseURL, p.APIKey, string(p.Format), p.Enabled, p.Total, p.Success, p.Error, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert provider: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("provider last insert id: %w", err)
		}
		p.ID = id
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE providers SET name=?, base_url=?, api_key=?, format=?, enabled=?, total=?, success=?, error=? WHERE id=?`,
		p.Name, p.BaseURL, p.APIKey, string(p.Format), p.Enabled, p.Total, p.Success, p.Error, p.ID)
	if err != nil {
		return fmt.Errorf("update provider: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteProvider(ctx context.Context, id int64) error {
	// Foreign keys are not enabled on these connections, so the provider's
	// endpoints are deleted explicitly in the same transaction.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM endpoints WHERE provider_id=?`, id); err != nil {
		return fmt.Errorf("delete provider endpoints: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM providers WHERE id=?`, id); err != nil {
		return fmt.Errorf("delete provider: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveEndpoint(ctx context.Context, e *types.Endpoint) error {
	if e.ID == 0 {
		res, err := s.db.ExecContext(ctx, `INSERT INTO endpoints (provider_id, upstream_model_id, pool, enabled, weight,
			min_interval_seconds, priority, total, success, error, rolling_latency_ms, cooldown_until, last_error, last_used)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ProviderID, e.UpstreamModelID, string(e.Pool), e.Enabled, e.Weight, e.MinIntervalSecs, e.Priority,
			e.Total, e.Success, e.Error, e.RollingLatencyMs, nullTime(e.CooldownUntil), nullString(e.LastError), nullTime(e.LastUsed))
		if err != nil {
			return fmt.Errorf("insert endpoint: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("endpoint last insert id: %w", err)
		}
		e.ID = id
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE endpoints SET provider_id=?, upstream_model_id=?, pool=?, enabled=?, weight=?,
		min_interval_seconds=?, priority=?, total=?, success=?, error=?, rolling_latency_ms=?, cooldown_until=?, last_error=?, last_used=?
		WHERE id=?`,
		e.ProviderID, e.UpstreamModelID, string(e.Pool), e.Enabled, e.Weight, e.MinIntervalSecs, e.Priority,
		e.Total, e.Success, e.Error, e.RollingLatencyMs, nullTime(e.CooldownUntil), nullString(e.LastError), nullTime(e.LastUsed), e.ID)
	if err != nil {
		return fmt.Errorf("update endpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteEndpoint(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SavePoolConfig(ctx context.Context, c *types.PoolConfig) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO pool_configs (pool, virtual_model, cooldown_seconds, timeout_seconds, max_retries)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pool) DO UPDATE SET virtual_model=excluded.virtual_model, cooldown_seconds=excluded.cooldown_seconds,
			timeout_seconds=excluded.timeout_seconds, max_retries=excluded.max_retries`,
		string(c.Pool), c.VirtualModel, c.CooldownSeconds, c.TimeoutSeconds, c.MaxRetries)
	if err != nil {
		return fmt.Errorf("save pool config: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendLog(ctx context.Context, e *types.LogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO logs (pool, requested_model, actual_model, provider, success, http_status,
		error_message, latency_ms, input_tokens, output_tokens, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Pool), e.RequestedModel, e.ActualModel, e.Provider, e.Success, nullInt(e.HTTPStatus),
		e.ErrorMessage, e.LatencyMs, nullInt64(e.InputTokens), nullInt64(e.OutputTokens), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("log last insert id: %w", err)
	}
	e.ID = id
	return nil
}

// buildWhereClause builds a dynamic WHERE clause from a LogFilter, grounded
// on the teacher's evidence/storage/sqlite.go dynamic filter builder.
func buildWhereClause(f types.LogFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.Pool != "" {
		clauses = append(clauses, "pool = ?")
		args = append(args, string(f.Pool))
	}
	if f.Success != nil {
		clauses = append(clauses, "success = ?")
		args = append(args, *f.Success)
	}
	if f.Provider != "" {
		clauses = append(clauses, "provider = ?")
		args = append(args, f.Provider)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *SQLiteStore) QueryLogs(ctx context.Context, f types.LogFilter) ([]types.LogEntry, error) {
	where, args := buildWhereClause(f)
	query := `SELECT id, pool, requested_model, actual_model, provider, success, http_status, error_message,
		latency_ms, input_tokens, output_tokens, created_at FROM logs` + where + ` ORDER BY id DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var out []types.LogEntry
	for rows.Next() {
		var e types.LogEntry
		var pool string
		var status, inTok, outTok sql.NullInt64
		var errMsg sql.NullString
		if err := rows.Scan(&e.ID, &pool, &e.RequestedModel, &e.ActualModel, &e.Provider, &e.Success, &status,
			&errMsg, &e.LatencyMs, &inTok, &outTok, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Pool = types.PoolTag(pool)
		e.ErrorMessage = errMsg.String
		if status.Valid {
			v := int(status.Int64)
			e.HTTPStatus = &v
		}
		if inTok.Valid {
			v := inTok.Int64
			e.InputTokens = &v
		}
		if outTok.Valid {
			v := outTok.Int64
			e.OutputTokens = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountLogs(ctx context.Context, f types.LogFilter) (int64, error) {
	where, args := buildWhereClause(f)
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count logs: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) ClearLogs(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM logs`)
	if err != nil {
		return fmt.Errorf("clear logs: %w", err)
	}
	return nil
}

// PruneLogsOverCap deletes the oldest logs past cap, mirroring the
// teacher's retention pruner's count-based phase.
func (s *SQLiteStore) PruneLogsOverCap(ctx context.Context, cap int64) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count logs: %w", err)
	}
	if total <= cap {
		return 0, nil
	}
	toDelete := total - cap
	res, err := s.db.ExecContext(ctx, `DELETE FROM logs WHERE id IN (SELECT id FROM logs ORDER BY id ASC LIMIT ?)`, toDelete)
	if err != nil {
		return 0, fmt.Errorf("prune logs: %w", err)
	}
	return res.RowsAffected()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
