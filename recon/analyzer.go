package recon

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// ANALYZER - Reconcile, then aggregate and classify in parallel
// =============================================================================

// Report is everything the presentation layer needs from one comparison.
type Report struct {
	Stats       []PeriodStat
	Changes     []ChangeEntry
	RecordCount int
	Collisions  []Collision
	Summary     Summary
}

// Summary condenses a report into headline numbers.
type Summary struct {
	ByKind        map[ChangeKind]int
	ForecastDelta decimal.Decimal
	ActualDelta   decimal.Decimal
}

type Analyzer struct {
	cfg    Config
	logger *zap.Logger
}

// NewAnalyzer validates cfg. A nil logger disables logging.
func NewAnalyzer(cfg Config, logger *zap.Logger) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{cfg: cfg, logger: logger.Named("recon")}, nil
}

func (a *Analyzer) Config() Config { return a.cfg }

// Analyze runs the full comparison. Aggregation and classification only
// read the reconciled records, so they run concurrently.
func (a *Analyzer) Analyze(ctx context.Context, oldPoints, newPoints []DataPoint) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(oldPoints) == 0 && len(newPoints) == 0 {
		return nil, ErrNoData
	}

	rec := Reconcile(oldPoints, newPoints)
	a.logger.Debug("reconciled",
		zap.Int("old_points", len(oldPoints)),
		zap.Int("new_points", len(newPoints)),
		zap.Int("records", len(rec.Records)),
		zap.Int("periods", len(rec.ActivePeriods)))

	for _, c := range rec.Collisions {
		a.logger.Warn("duplicate data point overwritten",
			zap.String("identity", c.Identity),
			zap.String("kind", string(c.Kind)),
			zap.String("revision", string(c.Revision)),
			zap.String("previous", c.Previous.String()),
			zap.String("current", c.Current.String()))
	}

	report := &Report{RecordCount: len(rec.Records), Collisions: rec.Collisions}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report.Stats = Aggregate(rec.Records, rec.ActivePeriods, a.cfg)
		return gctx.Err()
	})
	g.Go(func() error {
		report.Changes = Classify(rec.Records, a.cfg)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	report.Summary = Summarize(report.Stats, report.Changes)
	a.logger.Debug("analyzed",
		zap.Int("stats", len(report.Stats)),
		zap.Int("changes", len(report.Changes)))
	return report, nil
}

// Summarize counts entries per kind and totals the period deltas.
func Summarize(stats []PeriodStat, changes []ChangeEntry) Summary {
	s := Summary{
		ByKind:        make(map[ChangeKind]int, len(ChangeKinds())),
		ForecastDelta: decimal.Zero,
		ActualDelta:   decimal.Zero,
	}
	for _, c := range changes {
		s.ByKind[c.Kind]++
	}
	for _, st := range stats {
		s.ForecastDelta = s.ForecastDelta.Add(st.ForecastDelta)
		s.ActualDelta = s.ActualDelta.Add(st.ActualDelta)
	}
	return s
}
