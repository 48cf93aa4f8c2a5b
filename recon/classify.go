/*
classify.go - Rule cascade that turns record deltas into a change log

RULES (evaluated per record, in order):
  1. Conversion:   old forecast present and actual increased
                   -> ConvertedToOrder{old forecast, new actual}, record claimed
  2. Order change: otherwise, actual moved by more than epsilon
                   -> ActualAdded (old actual was 0) or ActualModified, claimed
  3. Forecast:     forecast moved by more than epsilon
                   a. appeared (0 -> x)   -> added pool
                   b. vanished (x -> 0)   -> removed pool
                   c. otherwise           -> ForecastModified, unless claimed

  A claim only suppresses 3c. Pools a and b are filled even for claimed
  records (see Config.PoolClaimedForecasts).

DELAY MATCHING (after all records):
  Each removed forecast R looks for the first unmatched added forecast A,
  in pool order, with:
    - A in a strictly later period than R
    - same entity and sub-entity
    - A.new / R.old strictly inside the delay ratio band
  A match yields one Delayed entry and consumes A. An unmatched R yields
  ForecastRemoved; every A left unmatched yields ForecastAdded.

ORDERING:
  Entries are stable-sorted by period index, so within a period the cascade
  entries come before delay/removed/added entries.
*/
package recon

import (
	"sort"

	"github.com/shopspring/decimal"
)

type candidate struct {
	rec   Record
	index int
}

// Classify produces the change log for a set of records. It never fails:
// a record with no significant change produces no entry.
func Classify(records []Record, cfg Config) []ChangeEntry {
	var (
		logs    []ChangeEntry
		added   []candidate
		removed []candidate
	)

	for _, r := range records {
		idx := cfg.periodIndex(r.Period)
		claimed := false

		if r.OldForecast.GreaterThan(cfg.Epsilon) && r.NewActual.GreaterThan(r.OldActual) {
			logs = append(logs, entry(ConvertedToOrder, r, idx, value(r.OldForecast), value(r.NewActual)))
			claimed = true
		} else if cfg.significant(r.ActualDelta()) {
			kind := ActualModified
			if r.OldActual.IsZero() {
				kind = ActualAdded
			}
			logs = append(logs, entry(kind, r, idx, value(r.OldActual), value(r.NewActual)))
			claimed = true
		}

		if !cfg.significant(r.ForecastDelta()) {
			continue
		}
		pool := !claimed || cfg.PoolClaimedForecasts
		switch {
		case r.OldForecast.IsZero() && r.NewForecast.IsPositive():
			if pool {
				added = append(added, candidate{rec: r, index: idx})
			}
		case r.NewForecast.IsZero() && r.OldForecast.IsPositive():
			if pool {
				removed = append(removed, candidate{rec: r, index: idx})
			}
		default:
			if !claimed {
				logs = append(logs, entry(ForecastModified, r, idx, value(r.OldForecast), value(r.NewForecast)))
			}
		}
	}

	logs = append(logs, matchDelays(removed, added, cfg)...)

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].PeriodIndex < logs[j].PeriodIndex
	})
	return logs
}

// matchDelays pairs vanished forecasts with later reappearances.
func matchDelays(removed, added []candidate, cfg Config) []ChangeEntry {
	var logs []ChangeEntry
	matched := make([]bool, len(added))

	for _, rc := range removed {
		r := rc.rec
		m := -1
		for i, ac := range added {
			if matched[i] || ac.index <= rc.index {
				continue
			}
			if ac.rec.Entity != r.Entity || ac.rec.SubEntity != r.SubEntity {
				continue
			}
			// removed candidates have OldForecast > epsilon > 0
			ratio := ac.rec.NewForecast.Div(r.OldForecast)
			if ratio.GreaterThan(cfg.DelayRatioMin) && ratio.LessThan(cfg.DelayRatioMax) {
				m = i
				break
			}
		}

		if m < 0 {
			logs = append(logs, entry(ForecastRemoved, r, rc.index, value(r.OldForecast), decimal.NullDecimal{}))
			continue
		}
		matched[m] = true
		e := entry(Delayed, r, rc.index, value(r.OldForecast), decimal.NullDecimal{})
		e.TargetPeriod = added[m].rec.Period
		logs = append(logs, e)
	}

	for i, ac := range added {
		if !matched[i] {
			logs = append(logs, entry(ForecastAdded, ac.rec, ac.index, decimal.NullDecimal{}, value(ac.rec.NewForecast)))
		}
	}
	return logs
}

func entry(kind ChangeKind, r Record, idx int, oldV, newV decimal.NullDecimal) ChangeEntry {
	return ChangeEntry{
		Kind:        kind,
		Period:      r.Period,
		Entity:      r.Entity,
		SubEntity:   r.SubEntity,
		OldValue:    oldV,
		NewValue:    newV,
		PeriodIndex: idx,
	}
}
