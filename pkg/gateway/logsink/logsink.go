// Package logsink is the append-only bounded log store (§4.6): paginated
// reads filtered by pool/success/provider, an atomic clear, and a
// cron-scheduled sweep that evicts the oldest entries past a soft cap.
//
// Grounded on the teacher's pkg/evidence/retention/scheduler.go (the
// robfig/cron wiring around a periodic prune call) and pruner.go (the
// count-based eviction phase); the teacher's age-based phase and
// cryptographic evidence-chain/archival concerns have no home here (the
// spec names only a count cap, §4.6) and are dropped.
package logsink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/store"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/types"
	"github.com/xiongxionghk/api-pool-gateway/pkg/telemetry/logging"
)

// DefaultCap is the soft eviction cap (§4.6).
const DefaultCap = 10000

// DefaultPruneSchedule runs the sweep hourly.
const DefaultPruneSchedule = "0 * * * *"

// Sink appends log entries to store and periodically prunes it back down
// to Cap. Writes are synchronous (there is no queue): Append waits for
// store.AppendLog, and its failures are logged, not surfaced to the caller.
type Sink struct {
	store store.Store
	cap   int64

	cron    *cron.Cron
	mu      sync.Mutex
	running bool

	logger *logging.Logger
}

// New creates a Sink with the given cap (DefaultCap if 0).
func New(st store.Store, cap int64, logger *logging.Logger) *Sink {
	if cap <= 0 {
		cap = DefaultCap
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sink{
		store:  st,
		cap:    cap,
		cron:   cron.New(),
		logger: logger.With("component", "logsink"),
	}
}

// Append records one dispatch attempt. It blocks until the store write
// returns; errors are logged, never returned. Append does not evict; only
// the scheduled Prune does.
func (s *Sink) Append(ctx context.Context, entry *types.LogEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	if err := s.store.AppendLog(ctx, entry); err != nil {
		s.logger.Error("failed to append log entry", "error", err)
	}
}

// Query returns a page of log entries matching f.
func (s *Sink) Query(ctx context.Context, f types.LogFilter) ([]types.LogEntry, int64, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	entries, err := s.store.QueryLogs(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("query logs: %w", err)
	}
	total, err := s.store.CountLogs(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}
	return entries, total, nil
}

// Clear atomically removes every log entry.
func (s *Sink) Clear(ctx context.Context) error {
	return s.store.ClearLogs(ctx)
}

// Prune evicts the oldest entries past the cap, returning how many were
// removed.
func (s *Sink) Prune(ctx context.Context) (int64, error) {
	deleted, err := s.store.PruneLogsOverCap(ctx, s.cap)
	if err != nil {
		return 0, fmt.Errorf("prune logs: %w", err)
	}
	return deleted, nil
}

// StartScheduler runs Prune on schedule (DefaultPruneSchedule if empty)
// until ctx is cancelled.
func (s *Sink) StartScheduler(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.runPrune(ctx) }); err != nil {
		return fmt.Errorf("schedule log pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("log prune scheduler started", "schedule", schedule, "cap", s.cap)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Sink) runPrune(ctx context.Context) {
	deleted, err := s.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled log prune failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("scheduled log prune completed", "deleted", deleted)
	}
}

// Stop halts the scheduler, waiting for any in-flight prune to finish.
func (s *Sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		s.running = false
		s.logger.Info("log prune scheduler stopped")
	}
}
