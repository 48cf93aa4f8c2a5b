/*
scheduler.go - Automated run retention

PURPOSE:
  Periodically prunes stored analysis runs older than the retention window,
  so the history does not grow without bound on a long-lived server.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Deletes runs created before now-MaxAge
  - Always spares the Keep most recent runs, however old
  - A zero MaxAge disables the scheduler

CONFIGURATION ([store] in the TOML config):
  - retention:      MaxAge (e.g. "720h"; empty disables)
  - keep_runs:      Keep
  - prune_interval: CheckInterval (default: 1 hour)

USAGE:
  scheduler := NewRetentionScheduler(store, 30*24*time.Hour, 20, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - store/store.go: RunStore.PruneRuns
  - cmd/recon/serve.go: Starts the scheduler
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/forecast-recon/store"
)

// RetentionScheduler prunes old runs in the background.
type RetentionScheduler struct {
	Store         store.RunStore
	MaxAge        time.Duration
	Keep          int
	CheckInterval time.Duration

	logger *zap.Logger
	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRetentionScheduler creates a scheduler checking once an hour.
func NewRetentionScheduler(runs store.RunStore, maxAge time.Duration, keep int, logger *zap.Logger) *RetentionScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetentionScheduler{
		Store:         runs,
		MaxAge:        maxAge,
		Keep:          keep,
		CheckInterval: time.Hour,
		logger:        logger.Named("retention"),
		now:           time.Now,
	}
}

// Start begins the scheduler. It is a no-op when MaxAge is zero or the
// scheduler is already running.
func (rs *RetentionScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.MaxAge <= 0 {
		rs.logger.Info("retention disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	rs.logger.Info("started",
		zap.Duration("max_age", rs.MaxAge),
		zap.Int("keep", rs.Keep),
		zap.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight prune to finish.
func (rs *RetentionScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.logger.Info("stopped")
	}
}

func (rs *RetentionScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	_, _ = rs.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			_, _ = rs.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow prunes once and returns the number of runs removed.
func (rs *RetentionScheduler) RunNow(ctx context.Context) (int64, error) {
	cutoff := rs.now().Add(-rs.MaxAge)

	removed, err := rs.Store.PruneRuns(ctx, cutoff, rs.Keep)
	if err != nil {
		rs.logger.Error("prune failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, err
	}
	if removed > 0 {
		rs.logger.Info("pruned runs", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}
