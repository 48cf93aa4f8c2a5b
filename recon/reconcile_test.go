package recon_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/forecast-recon/recon"
)

func TestReconcile_MergesBothRevisionsByIdentity(t *testing.T) {
	// GIVEN: Jan CustA/ModX forecast in old, forecast + actual in new
	// WHEN: Reconciling
	// THEN: One record carries all four values

	rec := recon.Reconcile(
		oldRev(pt("January", "CustA", "ModX", recon.Forecast, 5000)),
		newRev(
			pt("January", "CustA", "ModX", recon.Forecast, 4800),
			pt("January", "CustA", "ModX", recon.Actual, 4750),
		),
	)

	require.Len(t, rec.Records, 1)
	r := rec.Records[0]
	assert.Equal(t, "January_CustA_ModX", r.Identity)
	assert.Equal(t, "January", r.Period)
	assert.Equal(t, "CustA", r.Entity)
	assert.Equal(t, "ModX", r.SubEntity)
	assertDec(t, "5000", r.OldForecast, "old forecast")
	assertDec(t, "4800", r.NewForecast, "new forecast")
	assertDec(t, "0", r.OldActual, "old actual")
	assertDec(t, "4750", r.NewActual, "new actual")
	assert.Empty(t, rec.Collisions)
}

func TestReconcile_MissingCounterpartDefaultsToZero(t *testing.T) {
	rec := recon.Reconcile(nil, newRev(pt("March", "CustD", "ModW", recon.Forecast, 900)))

	r, ok := rec.Record("March_CustD_ModW")
	require.True(t, ok)
	assertDec(t, "0", r.OldForecast, "old forecast")
	assertDec(t, "900", r.NewForecast, "new forecast")
	assertDec(t, "0", r.OldActual, "old actual")
	assertDec(t, "0", r.NewActual, "new actual")
}

func TestReconcile_RecordLookup(t *testing.T) {
	rec := recon.Reconcile(demoOld(), demoNew())

	for i, want := range rec.Records {
		got, ok := rec.Record(want.Identity)
		require.True(t, ok, "record %d", i)
		assert.Equal(t, want, got)
	}

	_, ok := rec.Record("April_Nobody_None")
	assert.False(t, ok)
}

func TestReconcile_TracksActivePeriods(t *testing.T) {
	rec := recon.Reconcile(demoOld(), demoNew())

	assert.Len(t, rec.ActivePeriods, 3)
	for _, p := range []string{"January", "February", "March"} {
		assert.Contains(t, rec.ActivePeriods, p)
	}
	assert.Len(t, rec.Records, 6)
}

func TestReconcile_FirstEncounterOrder(t *testing.T) {
	rec := recon.Reconcile(demoOld(), demoNew())

	var ids []string
	for _, r := range rec.Records {
		ids = append(ids, r.Identity)
	}
	assert.Equal(t, []string{
		"January_CustA_ModX",
		"January_CustB_ModY",
		"February_CustA_ModX",
		"March_CustC_ModZ",
		"March_CustA_ModX",
		"March_CustD_ModW",
	}, ids)
}

func TestReconcile_SideComesFromArgumentNotRevisionField(t *testing.T) {
	// A point tagged New but passed as an old point still fills the old slot.
	p := pt("April", "CustA", "ModX", recon.Forecast, 10)
	p.Revision = recon.New

	rec := recon.Reconcile([]recon.DataPoint{p}, nil)

	require.Len(t, rec.Records, 1)
	assertDec(t, "10", rec.Records[0].OldForecast, "old forecast")
	assertDec(t, "0", rec.Records[0].NewForecast, "new forecast")
}

func TestReconcile_DuplicatePointIsLastWriteWinsAndReported(t *testing.T) {
	// GIVEN: The same identity/kind appears twice in the new revision
	// WHEN: Reconciling
	// THEN: The later value is kept and the overwrite is reported

	rec := recon.Reconcile(nil, newRev(
		pt("May", "CustA", "ModX", recon.Actual, 100),
		pt("May", "CustA", "ModX", recon.Actual, 250),
	))

	require.Len(t, rec.Records, 1)
	assertDec(t, "250", rec.Records[0].NewActual, "new actual")

	require.Len(t, rec.Collisions, 1)
	c := rec.Collisions[0]
	assert.Equal(t, "May_CustA_ModX", c.Identity)
	assert.Equal(t, recon.Actual, c.Kind)
	assert.Equal(t, recon.New, c.Revision)
	assertDec(t, "100", c.Previous, "previous")
	assertDec(t, "250", c.Current, "current")
}

func TestReconcile_SameSlotAcrossRevisionsIsNotACollision(t *testing.T) {
	rec := recon.Reconcile(
		oldRev(pt("May", "CustA", "ModX", recon.Actual, 100)),
		newRev(pt("May", "CustA", "ModX", recon.Actual, 100)),
	)
	assert.Empty(t, rec.Collisions)
}

func TestReconcile_InvariantToPermutationWithinRevision(t *testing.T) {
	// GIVEN: The demo inputs shuffled many times
	// WHEN: Reconciling each permutation
	// THEN: The set of records (keyed by identity) never changes

	byIdentity := func(rs []recon.Record) []recon.Record {
		out := append([]recon.Record(nil), rs...)
		sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
		return out
	}
	want := byIdentity(recon.Reconcile(demoOld(), demoNew()).Records)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		o, n := demoOld(), demoNew()
		rng.Shuffle(len(o), func(a, b int) { o[a], o[b] = o[b], o[a] })
		rng.Shuffle(len(n), func(a, b int) { n[a], n[b] = n[b], n[a] })

		got := byIdentity(recon.Reconcile(o, n).Records)
		if diff := cmp.Diff(want, got, decimalEqual); diff != "" {
			t.Fatalf("permutation %d changed records (-want +got):\n%s", i, diff)
		}
	}
}
