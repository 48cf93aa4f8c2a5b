package recon

import "github.com/shopspring/decimal"

// =============================================================================
// AGGREGATE - Per-period totals
// =============================================================================

// Aggregate sums the four quantities per period. Periods are visited in
// calendar order and restricted to active; a period is reported only if at
// least one of its sums exceeds epsilon in absolute value. Records whose
// period is not in the calendar are not counted.
func Aggregate(records []Record, active map[string]struct{}, cfg Config) []PeriodStat {
	byPeriod := make(map[string][]Record)
	for _, r := range records {
		if label, ok := cfg.Calendar.Normalize(r.Period); ok {
			byPeriod[label] = append(byPeriod[label], r)
		}
	}

	activeCanon := make(map[string]bool, len(active))
	for p := range active {
		if label, ok := cfg.Calendar.Normalize(p); ok {
			activeCanon[label] = true
		}
	}

	var stats []PeriodStat
	for idx, label := range cfg.Calendar.labels {
		if !activeCanon[label] {
			continue
		}
		s := PeriodStat{
			Period:      label,
			Index:       idx,
			OldForecast: decimal.Zero,
			NewForecast: decimal.Zero,
			OldActual:   decimal.Zero,
			NewActual:   decimal.Zero,
		}
		for _, r := range byPeriod[label] {
			s.OldForecast = s.OldForecast.Add(r.OldForecast)
			s.NewForecast = s.NewForecast.Add(r.NewForecast)
			s.OldActual = s.OldActual.Add(r.OldActual)
			s.NewActual = s.NewActual.Add(r.NewActual)
		}
		s.ForecastDelta = s.NewForecast.Sub(s.OldForecast)
		s.ActualDelta = s.NewActual.Sub(s.OldActual)

		if !cfg.significant(s.OldForecast) && !cfg.significant(s.NewForecast) &&
			!cfg.significant(s.OldActual) && !cfg.significant(s.NewActual) {
			continue
		}
		stats = append(stats, s)
	}
	return stats
}
