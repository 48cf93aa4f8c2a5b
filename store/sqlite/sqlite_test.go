package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/forecast-recon/recon"
	"github.com/warp/forecast-recon/store"
	"github.com/warp/forecast-recon/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func point(rev recon.Revision, period, entity, sub string, kind recon.Measure, qty string) recon.DataPoint {
	return recon.DataPoint{
		Identity:  recon.IdentityFor(period, entity, sub),
		Period:    period,
		Entity:    entity,
		SubEntity: sub,
		Kind:      kind,
		Quantity:  decimal.RequireFromString(qty),
		Revision:  rev,
	}
}

func analyzedRun(t *testing.T, id string, created time.Time) (store.Run, []recon.DataPoint, []recon.DataPoint) {
	oldPts := []recon.DataPoint{
		point(recon.Old, "February", "CustA", "ModX", recon.Forecast, "5200"),
		point(recon.Old, "March", "CustC", "ModZ", recon.Forecast, "1500.25"),
	}
	newPts := []recon.DataPoint{
		point(recon.New, "March", "CustA", "ModX", recon.Forecast, "5150"),
		point(recon.New, "March", "CustC", "ModZ", recon.Forecast, "1800"),
	}

	cfg := recon.DefaultConfig()
	a, err := recon.NewAnalyzer(cfg, nil)
	require.NoError(t, err)
	report, err := a.Analyze(context.Background(), oldPts, newPts)
	require.NoError(t, err)

	return store.Run{
		ID:          id,
		Label:       "weekly",
		OldSource:   "old.xlsx",
		NewSource:   "new.xlsx",
		RecordCount: report.RecordCount,
		Epsilon:     cfg.Epsilon,
		CreatedAt:   created,
		Stats:       report.Stats,
		Changes:     report.Changes,
	}, oldPts, newPts
}

// =============================================================================
// RUN PERSISTENCE
// =============================================================================

func TestStore_SaveAndGetRun(t *testing.T) {
	// GIVEN: An analyzed comparison
	// WHEN: Saving and reading it back
	// THEN: Stats and change log round-trip exactly, in order

	db := newTestStore(t)
	ctx := context.Background()

	run, oldPts, newPts := analyzedRun(t, "run-1", time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, db.SaveRun(ctx, run, oldPts, newPts))

	got, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "weekly", got.Label)
	assert.Equal(t, "old.xlsx", got.OldSource)
	assert.Equal(t, 2, got.OldPoints)
	assert.Equal(t, 2, got.NewPoints)
	assert.Equal(t, 3, got.RecordCount)
	assert.True(t, got.Epsilon.Equal(decimal.RequireFromString("0.1")))
	assert.True(t, got.CreatedAt.Equal(run.CreatedAt))

	require.Len(t, got.Stats, len(run.Stats))
	for i := range run.Stats {
		assert.Equal(t, run.Stats[i].Period, got.Stats[i].Period)
		assert.True(t, run.Stats[i].OldForecast.Equal(got.Stats[i].OldForecast))
		assert.True(t, run.Stats[i].ForecastDelta.Equal(got.Stats[i].ForecastDelta))
	}

	require.Len(t, got.Changes, 2)
	assert.Equal(t, recon.Delayed, got.Changes[0].Kind)
	assert.Equal(t, "March", got.Changes[0].TargetPeriod)
	assert.True(t, got.Changes[0].OldValue.Valid)
	assert.False(t, got.Changes[0].NewValue.Valid, "delayed entries carry no new value")

	assert.Equal(t, recon.ForecastModified, got.Changes[1].Kind)
	assert.True(t, got.Changes[1].OldValue.Decimal.Equal(decimal.RequireFromString("1500.25")))
}

func TestStore_GetRun_NotFound(t *testing.T) {
	db := newTestStore(t)

	got, err := db.GetRun(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_LoadPoints_KeepsOrderAndRevision(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	run, oldPts, newPts := analyzedRun(t, "run-1", time.Now().UTC())
	require.NoError(t, db.SaveRun(ctx, run, oldPts, newPts))

	gotOld, gotNew, err := db.LoadPoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, gotOld, 2)
	require.Len(t, gotNew, 2)

	assert.Equal(t, "February_CustA_ModX", gotOld[0].Identity)
	assert.Equal(t, recon.Forecast, gotOld[0].Kind)
	assert.Equal(t, recon.Old, gotOld[0].Revision)
	assert.True(t, gotOld[1].Quantity.Equal(decimal.RequireFromString("1500.25")))
	assert.Equal(t, "March_CustA_ModX", gotNew[0].Identity)
	assert.Equal(t, recon.New, gotNew[0].Revision)
}

func TestStore_ListRuns_NewestFirstWithLimit(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run, o, n := analyzedRun(t, id, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, db.SaveRun(ctx, run, o, n))
	}

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-c", runs[0].ID)
	assert.Equal(t, "run-a", runs[2].ID)
	assert.Nil(t, runs[0].Changes)

	runs, err = db.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStore_DeleteRun_Cascades(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	run, o, n := analyzedRun(t, "run-1", time.Now().UTC())
	require.NoError(t, db.SaveRun(ctx, run, o, n))

	deleted, err := db.DeleteRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := db.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	gotOld, gotNew, err := db.LoadPoints(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, gotOld)
	assert.Empty(t, gotNew)

	deleted, err = db.DeleteRun(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStore_SaveRun_DuplicateIDIsRejectedAtomically(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	run, o, n := analyzedRun(t, "run-1", time.Now().UTC())
	require.NoError(t, db.SaveRun(ctx, run, o, n))
	assert.ErrorIs(t, db.SaveRun(ctx, run, o, n), store.ErrDuplicateRun)

	gotOld, _, err := db.LoadPoints(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, gotOld, 2, "failed save must not add points")
}

func TestStore_PruneRuns(t *testing.T) {
	// GIVEN: Four runs one day apart
	// WHEN: Pruning everything older than the newest, keeping two
	// THEN: Only the two newest survive

	db := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c", "run-d"} {
		run, o, n := analyzedRun(t, id, base.Add(time.Duration(i)*24*time.Hour))
		require.NoError(t, db.SaveRun(ctx, run, o, n))
	}

	removed, err := db.PruneRuns(ctx, base.Add(10*24*time.Hour), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-d", runs[0].ID)
	assert.Equal(t, "run-c", runs[1].ID)

	// Nothing is old enough any more.
	removed, err = db.PruneRuns(ctx, base, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
