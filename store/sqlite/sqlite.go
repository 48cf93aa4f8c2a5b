/*
Package sqlite provides a SQLite-backed history of analysis runs.

PURPOSE:
  Persists every comparison the service performs: the input points of both
  revisions, the per-period statistics and the change log. Stored inputs let
  a run be re-analyzed later with different thresholds.

KEY TABLES:
  runs:           One row per comparison (labels, counts, timestamps)
  run_points:     Input data points of both revisions
  period_stats:   Aggregated statistics, calendar ordered
  change_entries: Classified change log, in log order

DECIMALS:
  Quantities are stored as TEXT through decimal.Decimal's driver.Valuer,
  so values round-trip exactly.

IMMUTABILITY:
  A run is written once in a single transaction and never updated. It can
  only be deleted as a whole (child rows cascade).

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, as SQLite allows one writer.

USAGE:
  store, err := sqlite.New("./data/recon.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  err = store.SaveRun(ctx, run, oldPoints, newPoints)

SEE ALSO:
  - store/store.go: Run and the RunStore contract
  - api/handlers.go: Uses the store
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/forecast-recon/recon"
	"github.com/warp/forecast-recon/store"
)

// Fixed-width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements store.RunStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ store.RunStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each :memory: connection is its own database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		old_source TEXT NOT NULL DEFAULT '',
		new_source TEXT NOT NULL DEFAULT '',
		old_points INTEGER NOT NULL,
		new_points INTEGER NOT NULL,
		record_count INTEGER NOT NULL,
		collisions INTEGER NOT NULL DEFAULT 0,
		epsilon TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at
		ON runs(created_at DESC);

	CREATE TABLE IF NOT EXISTS run_points (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		revision TEXT NOT NULL,
		identity TEXT NOT NULL,
		period TEXT NOT NULL,
		entity TEXT NOT NULL,
		sub_entity TEXT NOT NULL,
		kind TEXT NOT NULL,
		quantity TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS period_stats (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		period TEXT NOT NULL,
		period_index INTEGER NOT NULL,
		old_forecast TEXT NOT NULL,
		new_forecast TEXT NOT NULL,
		old_actual TEXT NOT NULL,
		new_actual TEXT NOT NULL,
		forecast_delta TEXT NOT NULL,
		actual_delta TEXT NOT NULL,
		PRIMARY KEY (run_id, period_index)
	);

	CREATE TABLE IF NOT EXISTS change_entries (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		period TEXT NOT NULL,
		target_period TEXT NOT NULL DEFAULT '',
		entity TEXT NOT NULL,
		sub_entity TEXT NOT NULL,
		old_value TEXT,
		new_value TEXT,
		period_index INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_change_entries_entity
		ON change_entries(entity, sub_entity);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUNS
// =============================================================================

// SaveRun writes a run with its inputs, stats and change log atomically.
func (s *Store) SaveRun(ctx context.Context, run store.Run, oldPoints, newPoints []recon.DataPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, label, old_source, new_source, old_points, new_points,
			record_count, collisions, epsilon, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Label, run.OldSource, run.NewSource,
		len(oldPoints), len(newPoints), run.RecordCount, run.Collisions,
		run.Epsilon, run.CreatedAt.UTC().Format(timeLayout),
	)
	if isPrimaryKeyViolation(err) {
		return fmt.Errorf("%w: %s", store.ErrDuplicateRun, run.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	// The side is the slice a point arrived in, as in recon.Reconcile.
	seq := 0
	for _, set := range []struct {
		side   recon.Revision
		points []recon.DataPoint
	}{{recon.Old, oldPoints}, {recon.New, newPoints}} {
		for _, p := range set.points {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO run_points (run_id, seq, revision, identity, period, entity,
					sub_entity, kind, quantity)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, seq, string(set.side), p.Identity, p.Period, p.Entity,
				p.SubEntity, string(p.Kind), p.Quantity,
			)
			if err != nil {
				return fmt.Errorf("failed to insert point: %w", err)
			}
			seq++
		}
	}

	for _, st := range run.Stats {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO period_stats (run_id, period, period_index, old_forecast, new_forecast,
				old_actual, new_actual, forecast_delta, actual_delta)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, st.Period, st.Index, st.OldForecast, st.NewForecast,
			st.OldActual, st.NewActual, st.ForecastDelta, st.ActualDelta,
		)
		if err != nil {
			return fmt.Errorf("failed to insert period stat: %w", err)
		}
	}

	for i, e := range run.Changes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO change_entries (run_id, seq, kind, period, target_period, entity,
				sub_entity, old_value, new_value, period_index)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, e.Kind.String(), e.Period, e.TargetPeriod, e.Entity,
			e.SubEntity, e.OldValue, e.NewValue, e.PeriodIndex,
		)
		if err != nil {
			return fmt.Errorf("failed to insert change entry: %w", err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, label, old_source, new_source, old_points, new_points,
	record_count, collisions, epsilon, created_at`

func scanRun(scan func(dest ...any) error) (store.Run, error) {
	var r store.Run
	var createdAt string
	err := scan(&r.ID, &r.Label, &r.OldSource, &r.NewSource, &r.OldPoints, &r.NewPoints,
		&r.RecordCount, &r.Collisions, &r.Epsilon, &createdAt)
	if err != nil {
		return r, err
	}
	if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return r, fmt.Errorf("run %s: bad created_at %q: %w", r.ID, createdAt, err)
	}
	return r, nil
}

// GetRun retrieves a run with its stats and change log.
// Returns nil, nil when the run does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := scanRun(s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE id = ?", id,
	).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if run.Stats, err = s.loadStats(ctx, id); err != nil {
		return nil, err
	}
	if run.Changes, err = s.loadChanges(ctx, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs first, without stats and changes.
// A limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and everything attached to it.
// Returns false when there was nothing to delete.
func (s *Store) DeleteRun(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PruneRuns deletes runs created before cutoff, always sparing the keep
// most recent ones. Returns the number of runs removed.
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE created_at < ?
		  AND id NOT IN (SELECT id FROM runs ORDER BY created_at DESC, id DESC LIMIT ?)`,
		cutoff.UTC().Format(timeLayout), keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

// LoadPoints returns the stored inputs of a run in their original order.
func (s *Store) LoadPoints(ctx context.Context, id string) (oldPoints, newPoints []recon.DataPoint, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT revision, identity, period, entity, sub_entity, kind, quantity
		FROM run_points WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p recon.DataPoint
		var rev, kind string
		if err := rows.Scan(&rev, &p.Identity, &p.Period, &p.Entity, &p.SubEntity, &kind, &p.Quantity); err != nil {
			return nil, nil, err
		}
		p.Revision = recon.Revision(rev)
		p.Kind = recon.Measure(kind)
		if p.Revision == recon.Old {
			oldPoints = append(oldPoints, p)
		} else {
			newPoints = append(newPoints, p)
		}
	}
	return oldPoints, newPoints, rows.Err()
}

func (s *Store) loadStats(ctx context.Context, id string) ([]recon.PeriodStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period, period_index, old_forecast, new_forecast, old_actual, new_actual,
			forecast_delta, actual_delta
		FROM period_stats WHERE run_id = ? ORDER BY period_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []recon.PeriodStat
	for rows.Next() {
		var st recon.PeriodStat
		if err := rows.Scan(&st.Period, &st.Index, &st.OldForecast, &st.NewForecast,
			&st.OldActual, &st.NewActual, &st.ForecastDelta, &st.ActualDelta); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *Store) loadChanges(ctx context.Context, id string) ([]recon.ChangeEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, period, target_period, entity, sub_entity, old_value, new_value, period_index
		FROM change_entries WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []recon.ChangeEntry
	for rows.Next() {
		var e recon.ChangeEntry
		var kind string
		if err := rows.Scan(&kind, &e.Period, &e.TargetPeriod, &e.Entity, &e.SubEntity,
			&e.OldValue, &e.NewValue, &e.PeriodIndex); err != nil {
			return nil, err
		}
		if e.Kind, err = recon.ParseChangeKind(kind); err != nil {
			return nil, fmt.Errorf("run %s: %w", id, err)
		}
		changes = append(changes, e)
	}
	return changes, rows.Err()
}

func isPrimaryKeyViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
