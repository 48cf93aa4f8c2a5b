/*
Package store defines persistence of analysis runs.

PURPOSE:
  Defines the interface between the HTTP/CLI layer and the database. A run
  is written once, read many times, and deleted as a whole. There is no
  update: re-analyzing stored inputs produces a new run.

KEY TYPES:
  Run:      One stored comparison with its stats and change log
  RunStore: Persistence operations

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - store/memory: In-memory for testing

SEE ALSO:
  - api/handlers.go: Uses RunStore
  - api/scheduler.go: Retention via PruneRuns
*/
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/forecast-recon/recon"
)

// ErrDuplicateRun is returned by SaveRun when the ID is taken.
var ErrDuplicateRun = errors.New("run already exists")

// Run is one stored comparison.
type Run struct {
	ID          string
	Label       string
	OldSource   string
	NewSource   string
	OldPoints   int
	NewPoints   int
	RecordCount int
	Collisions  int
	Epsilon     decimal.Decimal
	CreatedAt   time.Time

	// Filled by GetRun only; ListRuns leaves them nil.
	Stats   []recon.PeriodStat
	Changes []recon.ChangeEntry
}

// RunStore persists runs together with their input points.
type RunStore interface {
	// SaveRun writes a run and its inputs atomically. OldPoints and
	// NewPoints on run are derived from the slices.
	SaveRun(ctx context.Context, run Run, oldPoints, newPoints []recon.DataPoint) error

	// GetRun returns nil, nil when the run does not exist.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs newest first. A limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// DeleteRun reports whether there was a run to delete.
	DeleteRun(ctx context.Context, id string) (bool, error)

	// LoadPoints returns the inputs of a run in their original order.
	LoadPoints(ctx context.Context, id string) (oldPoints, newPoints []recon.DataPoint, err error)

	// PruneRuns deletes runs created before cutoff, sparing the keep
	// most recent ones.
	PruneRuns(ctx context.Context, cutoff time.Time, keep int) (int64, error)
}
