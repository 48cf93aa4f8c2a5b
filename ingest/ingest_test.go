package ingest_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/forecast-recon/ingest"
	"github.com/warp/forecast-recon/recon"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func workbook(t *testing.T, rows ...[]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { f.Close() })

	for i, r := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := r
		require.NoError(t, f.SetSheetRow("Sheet1", addr, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func point(period, entity, sub string, kind recon.Measure, qty int64, rev recon.Revision) recon.DataPoint {
	return recon.DataPoint{
		Identity:  recon.IdentityFor(period, entity, sub),
		Period:    period,
		Entity:    entity,
		SubEntity: sub,
		Kind:      kind,
		Quantity:  decimal.NewFromInt(qty),
		Revision:  rev,
	}
}

// =============================================================================
// JSON
// =============================================================================

func TestReadJSON_CanonicalFields(t *testing.T) {
	doc := `[
		{"period": "Feb", "entity": "CustA", "sub_entity": "ModX", "kind": "FCST", "quantity": 5200},
		{"period": "3月", "entity": "CustA", "sub_entity": "ModX", "kind": "actual", "quantity": "4750.5"}
	]`

	points, err := ingest.ReadJSON(strings.NewReader(doc), recon.Old, recon.DefaultCalendar())
	require.NoError(t, err)

	want := []recon.DataPoint{
		point("February", "CustA", "ModX", recon.Forecast, 5200, recon.Old),
		{
			Identity: "March_CustA_ModX", Period: "March", Entity: "CustA", SubEntity: "ModX",
			Kind: recon.Actual, Quantity: decimal.RequireFromString("4750.5"), Revision: recon.Old,
		},
	}
	if diff := cmp.Diff(want, points, decimalEqual); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestReadJSON_LegacyFieldNames(t *testing.T) {
	doc := `[{"id": "January_CustA_ModX", "month": "January", "customer": "CustA",
		"module": "ModX", "type": "ACT", "value": 4750, "version": "New"}]`

	points, err := ingest.ReadJSON(strings.NewReader(doc), recon.New, recon.DefaultCalendar())
	require.NoError(t, err)
	require.Len(t, points, 1)

	assert.Equal(t, "January_CustA_ModX", points[0].Identity)
	assert.Equal(t, recon.Actual, points[0].Kind)
	assert.True(t, decimal.NewFromInt(4750).Equal(points[0].Quantity))
	assert.Equal(t, recon.New, points[0].Revision)
}

func TestReadJSON_SkipsZeroAndTotalRows(t *testing.T) {
	doc := `[
		{"period": "May", "entity": "CustA", "kind": "FCST", "quantity": 0},
		{"period": "May", "entity": "Grand Total", "kind": "FCST", "quantity": 900},
		{"period": "May", "entity": "小計", "kind": "FCST", "quantity": 900},
		{"period": "May", "entity": "CustB", "kind": "FCST", "quantity": 10}
	]`

	points, err := ingest.ReadJSON(strings.NewReader(doc), recon.Old, recon.DefaultCalendar())
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "CustB", points[0].Entity)
	assert.Equal(t, "May_CustB_Unknown", points[0].Identity)
	assert.Equal(t, ingest.UnknownSubEntity, points[0].SubEntity)
}

func TestReadJSON_Errors(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		column string
	}{
		{"bad period", `[{"period": "Smarch", "entity": "A", "kind": "FCST", "quantity": 1}]`, "period"},
		{"bad kind", `[{"period": "May", "entity": "A", "kind": "Customer", "quantity": 1}]`, "kind"},
		{"missing entity", `[{"period": "May", "kind": "FCST", "quantity": 1}]`, "entity"},
		{"negative", `[{"period": "May", "entity": "A", "kind": "FCST", "quantity": -5}]`, "quantity"},
		{"missing quantity", `[{"period": "May", "entity": "A", "kind": "FCST"}]`, "quantity"},
		{"misspelled quantity", `[{"period": "May", "entity": "A", "kind": "FCST", "qty": 900}]`, "quantity"},
		{"null quantity", `[{"period": "May", "entity": "A", "kind": "FCST", "quantity": null}]`, "quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingest.ReadJSON(strings.NewReader(tt.doc), recon.Old, recon.DefaultCalendar())
			require.Error(t, err)
			assert.ErrorIs(t, err, ingest.ErrIngestion)

			var rowErr *ingest.RowError
			require.ErrorAs(t, err, &rowErr)
			assert.Equal(t, 1, rowErr.Row)
			assert.Equal(t, tt.column, rowErr.Column)
		})
	}
}

func TestReadJSON_ExplicitZeroIsDropped(t *testing.T) {
	// GIVEN: one point with an explicit zero and one with a zero legacy value
	doc := `[
		{"period": "May", "entity": "A", "kind": "FCST", "quantity": 0},
		{"month": "May", "customer": "B", "type": "FCST", "value": "0"}
	]`

	// WHEN: reading the document
	points, err := ingest.ReadJSON(strings.NewReader(doc), recon.Old, recon.DefaultCalendar())

	// THEN: both are dropped without error
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestReadSheet_MissingSubEntityIsUnknown(t *testing.T) {
	buf := workbook(t,
		[]any{"Period", "Entity", "Sub_Entity", "Kind", "Quantity"},
		[]any{"March", "CustA", "", "FCST", 900},
	)

	points, err := ingest.ReadSheet(buf, recon.Old, recon.DefaultCalendar(), ingest.SheetOptions{})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Unknown", points[0].SubEntity)
	assert.Equal(t, "March_CustA_Unknown", points[0].Identity)
}

func TestReadJSON_MalformedDocument(t *testing.T) {
	_, err := ingest.ReadJSON(strings.NewReader(`{"not": "an array"}`), recon.Old, recon.DefaultCalendar())
	assert.ErrorIs(t, err, ingest.ErrIngestion)
}

// =============================================================================
// SHEET
// =============================================================================

func TestReadSheet_LongFormat(t *testing.T) {
	// GIVEN: A title line, then a header, then data rows with one total line
	// WHEN: Reading the sheet
	// THEN: Points come back normalized, totals and zeros skipped

	buf := workbook(t,
		[]any{"Supply/Demand report", "printed 2025-03-01"},
		[]any{"月份", "客戶", "模組", "Type", "Qty"},
		[]any{"1月", "CustA", "Mod-X", "FCST", 5000},
		[]any{"January", "CustA", "Mod-X", "ACT", "4,750"},
		[]any{},
		[]any{"February", "CustB", "Mod-Y", "FCST", 0},
		[]any{"February", "合計", "", "FCST", 9999},
	)

	points, err := ingest.ReadSheet(buf, recon.New, recon.DefaultCalendar(), ingest.SheetOptions{})
	require.NoError(t, err)

	want := []recon.DataPoint{
		point("January", "CustA", "Mod-X", recon.Forecast, 5000, recon.New),
		point("January", "CustA", "Mod-X", recon.Actual, 4750, recon.New),
	}
	if diff := cmp.Diff(want, points, decimalEqual); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestReadSheet_MissingHeader(t *testing.T) {
	buf := workbook(t,
		[]any{"Customer", "Module"},
		[]any{"CustA", "ModX"},
	)

	_, err := ingest.ReadSheet(buf, recon.Old, recon.DefaultCalendar(), ingest.SheetOptions{})
	assert.ErrorIs(t, err, ingest.ErrIngestion)
}

func TestReadSheet_BadCellReportsRow(t *testing.T) {
	buf := workbook(t,
		[]any{"Period", "Entity", "Kind", "Quantity"},
		[]any{"March", "CustA", "FCST", "lots"},
	)

	_, err := ingest.ReadSheet(buf, recon.Old, recon.DefaultCalendar(), ingest.SheetOptions{})
	var rowErr *ingest.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, "Sheet1", rowErr.Source)
	assert.Equal(t, 2, rowErr.Row)
	assert.Equal(t, "quantity", rowErr.Column)
}

func TestReadSheet_NotAWorkbook(t *testing.T) {
	_, err := ingest.ReadSheet(strings.NewReader("plain text"), recon.Old, recon.DefaultCalendar(), ingest.SheetOptions{})
	assert.ErrorIs(t, err, ingest.ErrIngestion)
}

// =============================================================================
// FILES
// =============================================================================

func TestReadFile_DispatchesByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "old.json")
	require.NoError(t, os.WriteFile(jsonPath,
		[]byte(`[{"period":"March","entity":"CustC","sub_entity":"ModZ","kind":"FCST","quantity":1500}]`), 0o644))

	xlsxPath := filepath.Join(dir, "new.xlsx")
	buf := workbook(t,
		[]any{"Period", "Entity", "Sub_Entity", "Kind", "Quantity"},
		[]any{"March", "CustC", "ModZ", "FCST", 1800},
	)
	require.NoError(t, os.WriteFile(xlsxPath, buf.Bytes(), 0o644))

	cal := recon.DefaultCalendar()
	oldPts, err := ingest.ReadFile(jsonPath, recon.Old, cal)
	require.NoError(t, err)
	newPts, err := ingest.ReadFile(xlsxPath, recon.New, cal)
	require.NoError(t, err)

	require.Len(t, oldPts, 1)
	require.Len(t, newPts, 1)
	assert.Equal(t, oldPts[0].Identity, newPts[0].Identity)

	_, err = ingest.ReadFile(filepath.Join(dir, "report.csv"), recon.Old, cal)
	assert.ErrorIs(t, err, ingest.ErrIngestion)
}
