/*
Package recon provides the forecast/order reconciliation engine.

PURPOSE:
  Compares two revisions ("old" and "new") of a periodic supply/demand
  report. Data points sharing an identity are merged into comparison
  records, per-period totals are aggregated, and a rule cascade turns the
  record-level deltas into a change log a planner can read.

KEY CONCEPTS IN THIS FILE (types.go):
  - DataPoint: One labeled quantity produced by the ingestion boundary
  - Record: Old/new forecast and actual for one (period, entity, sub-entity)
  - PeriodStat: Per-period sums and deltas
  - ChangeEntry: One classified, business-meaningful change

DESIGN PRINCIPLES:
  1. Precision: Quantities are decimal.Decimal so sums and deltas are exact
  2. Purity: Reconcile, Aggregate and Classify only read their inputs
  3. Injected constants: Calendar and thresholds come from Config
  4. Closed change kinds: ChangeKind is an enum, never a free-text tag

USAGE:
  cfg := recon.DefaultConfig()
  rec := recon.Reconcile(oldPoints, newPoints)
  stats := recon.Aggregate(rec.Records, rec.ActivePeriods, cfg)
  changes := recon.Classify(rec.Records, cfg)

SEE ALSO:
  - reconcile.go: Merging points into records
  - aggregate.go: Period statistics
  - classify.go: Rule cascade and delay matching
  - analyzer.go: Runs the whole pipeline
*/
package recon

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MEASURE / REVISION
// =============================================================================

// Measure is the kind of quantity a data point carries.
type Measure string

const (
	Forecast Measure = "forecast" // Planned demand, not yet confirmed
	Actual   Measure = "actual"   // Confirmed order
)

// ParseMeasure accepts the canonical names and the FCST/ACT column tags
// used in the source reports.
func ParseMeasure(s string) (Measure, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FORECAST", "FCST":
		return Forecast, nil
	case "ACTUAL", "ACT":
		return Actual, nil
	}
	return "", fmt.Errorf("unknown measure %q", s)
}

// Revision says which version of the report a point belongs to.
type Revision string

const (
	Old Revision = "old"
	New Revision = "new"
)

// =============================================================================
// DATA POINT - Ingestion output
// =============================================================================

// DataPoint is one labeled quantity. Identity must be stable across
// revisions for the same period, entity and sub-entity.
type DataPoint struct {
	Identity  string
	Period    string
	Entity    string
	SubEntity string
	Kind      Measure
	Quantity  decimal.Decimal
	Revision  Revision
}

// IdentityFor builds the identity key used by the ingestion boundary.
func IdentityFor(period, entity, subEntity string) string {
	return period + "_" + entity + "_" + subEntity
}

// =============================================================================
// RECORD - Merged comparison of one identity
// =============================================================================

// Record holds the old and new values for one identity. Missing values are
// zero, which means "no data" rather than "zero demand".
type Record struct {
	Identity  string
	Period    string
	Entity    string
	SubEntity string

	OldForecast decimal.Decimal
	NewForecast decimal.Decimal
	OldActual   decimal.Decimal
	NewActual   decimal.Decimal
}

func (r Record) ForecastDelta() decimal.Decimal { return r.NewForecast.Sub(r.OldForecast) }
func (r Record) ActualDelta() decimal.Decimal   { return r.NewActual.Sub(r.OldActual) }

// =============================================================================
// PERIOD STAT
// =============================================================================

type PeriodStat struct {
	Period        string
	Index         int
	OldForecast   decimal.Decimal
	NewForecast   decimal.Decimal
	OldActual     decimal.Decimal
	NewActual     decimal.Decimal
	ForecastDelta decimal.Decimal
	ActualDelta   decimal.Decimal
}

// =============================================================================
// CHANGE ENTRY
// =============================================================================

// ChangeEntry is one line of the change log. OldValue and NewValue are
// invalid (unset) when the kind has no such side: ForecastAdded has no old
// value, ForecastRemoved and Delayed have no new value.
type ChangeEntry struct {
	Kind         ChangeKind
	Period       string
	TargetPeriod string // Delayed only
	Entity       string
	SubEntity    string
	OldValue     decimal.NullDecimal
	NewValue     decimal.NullDecimal
	PeriodIndex  int
}

func value(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// =============================================================================
// COLLISION - Duplicate (identity, kind, revision) in the input
// =============================================================================

// Collision records an input point that overwrote an earlier one with the
// same identity, kind and revision. The later value wins.
type Collision struct {
	Identity string
	Kind     Measure
	Revision Revision
	Previous decimal.Decimal
	Current  decimal.Decimal
}
