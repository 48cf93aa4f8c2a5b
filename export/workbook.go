/*
Package export renders an analysis as an xlsx workbook for planners.

SHEETS:
  1. 變動明細        Change log, one row per entry, in log order
  2. 每月數據總覽    Period summary, one column per period
  3. 趨勢圖表數據庫  Per-period series laid out for charting

Periods are printed in the "N月" form using the calendar position, and
absent old/new values are written as 0.

USAGE:
  f, err := export.Workbook(report.Stats, report.Changes)
  if err != nil {
      return err
  }
  defer f.Close()
  err = f.Write(w)

SEE ALSO:
  - api/handlers.go: GET /api/analyses/{id}/export
  - cmd/recon: diff --xlsx
*/
package export

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/forecast-recon/recon"
)

const (
	SheetChanges = "1. 變動明細"
	SheetSummary = "2. 每月數據總覽"
	SheetChart   = "3. 趨勢圖表數據庫"
)

var changeHeader = []any{"變動類型", "發生月份", "客戶名稱", "模組型號", "原數值 (kW)", "新數值 (kW)", "調整後月份"}

var defaultCalendar = recon.DefaultCalendar()

var chartHeader = []any{"月份", "舊需求(FCST Old)", "新需求(FCST New)", "實際訂單(ACT New)", "需求變動", "訂單變動"}

// FileName is the download name for a workbook produced at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("產銷比對完整報表_%s.xlsx", t.Format("2006-01-02"))
}

// Workbook builds the three-sheet report. The caller closes the file.
func Workbook(stats []recon.PeriodStat, changes []recon.ChangeEntry) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetChanges); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetSummary, SheetChart} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := writeChanges(f, changes); err != nil {
		f.Close()
		return nil, fmt.Errorf("export change log: %w", err)
	}
	if err := writeSummary(f, stats); err != nil {
		f.Close()
		return nil, fmt.Errorf("export summary: %w", err)
	}
	if err := writeChart(f, stats); err != nil {
		f.Close()
		return nil, fmt.Errorf("export chart data: %w", err)
	}

	f.SetActiveSheet(0)
	return f, nil
}

func writeChanges(f *excelize.File, changes []recon.ChangeEntry) error {
	if err := setRow(f, SheetChanges, 1, changeHeader); err != nil {
		return err
	}
	for i, c := range changes {
		target := ""
		if c.TargetPeriod != "" {
			target = periodName(c.TargetPeriod, -1)
		}
		row := []any{
			c.Kind.Label(),
			periodName(c.Period, c.PeriodIndex),
			c.Entity,
			c.SubEntity,
			orZero(c.OldValue),
			orZero(c.NewValue),
			target,
		}
		if err := setRow(f, SheetChanges, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, stats []recon.PeriodStat) error {
	header := []any{"數據項目"}
	for _, s := range stats {
		header = append(header, periodName(s.Period, s.Index))
	}

	series := []struct {
		label string
		value func(recon.PeriodStat) decimal.Decimal
	}{
		{"FCST 期初 (舊)", func(s recon.PeriodStat) decimal.Decimal { return s.OldForecast }},
		{"FCST 本期 (新)", func(s recon.PeriodStat) decimal.Decimal { return s.NewForecast }},
		{"FCST 差異值", func(s recon.PeriodStat) decimal.Decimal { return s.ForecastDelta }},
		{"ACT 期初 (舊)", func(s recon.PeriodStat) decimal.Decimal { return s.OldActual }},
		{"ACT 本期 (新)", func(s recon.PeriodStat) decimal.Decimal { return s.NewActual }},
		{"ACT 差異值", func(s recon.PeriodStat) decimal.Decimal { return s.ActualDelta }},
	}

	if err := setRow(f, SheetSummary, 1, header); err != nil {
		return err
	}
	for i, sr := range series {
		row := []any{sr.label}
		for _, s := range stats {
			row = append(row, number(sr.value(s)))
		}
		if err := setRow(f, SheetSummary, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeChart(f *excelize.File, stats []recon.PeriodStat) error {
	if err := setRow(f, SheetChart, 1, chartHeader); err != nil {
		return err
	}
	for i, s := range stats {
		row := []any{
			periodName(s.Period, s.Index),
			number(s.OldForecast),
			number(s.NewForecast),
			number(s.NewActual),
			number(s.ForecastDelta),
			number(s.ActualDelta),
		}
		if err := setRow(f, SheetChart, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// periodName prints "N月" from a calendar position, falling back to the
// default calendar for entries that carry no index, then to the label.
func periodName(label string, idx int) string {
	if idx < 0 {
		idx, _ = defaultCalendar.Index(label)
	}
	if idx < 0 {
		return label
	}
	return fmt.Sprintf("%d月", idx+1)
}

func orZero(v decimal.NullDecimal) float64 {
	if !v.Valid {
		return 0
	}
	return number(v.Decimal)
}

func number(d decimal.Decimal) float64 { return d.InexactFloat64() }
