/*
Package ingest turns report files into recon data points.

PURPOSE:
  The boundary between stored reports and the engine. Two fixed layouts are
  supported:

    JSON:  an array of points
           [{"period":"March","entity":"CustA","sub_entity":"ModX",
             "kind":"FCST","quantity":5150}, ...]

    Sheet: an xlsx sheet in long format, one point per row, with a header
           row naming the columns (see sheet.go for accepted names)

  Free-form report layouts (repeating month blocks, merged headers) must be
  flattened into one of these before they reach this package.

NORMALIZATION:
  - Period labels are mapped to the calendar's canonical label
  - Identity is derived from period, entity and sub-entity when absent
  - A missing sub-entity becomes "Unknown"
  - Zero quantities are dropped, as the report extractor never emits them
  - A JSON point without quantity (or value) is an error, not a zero
  - Rows whose entity is a total/subtotal line are dropped

ERRORS:
  Every failure wraps ErrIngestion, so callers treat a bad document as a
  single failure category. RowError pinpoints the offending row.

SEE ALSO:
  - recon/types.go: DataPoint
  - api/handlers.go: Upload endpoint
*/
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/forecast-recon/recon"
)

// ErrIngestion is wrapped by every error this package returns.
var ErrIngestion = errors.New("ingestion failed")

// RowError reports a row that could not be turned into a data point.
type RowError struct {
	Source string // sheet name or "json"
	Row    int    // 1-based
	Column string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s row %d, column %s: %v", e.Source, e.Row, e.Column, e.Err)
	}
	return fmt.Sprintf("%s row %d: %v", e.Source, e.Row, e.Err)
}

func (e *RowError) Unwrap() []error { return []error{ErrIngestion, e.Err} }

// UnknownSubEntity stands in for a missing sub-entity, as in the report
// extractor.
const UnknownSubEntity = "Unknown"

// totalMarkers flag summary lines that must not be read as customers.
var totalMarkers = []string{"Total", "合計", "小計"}

func isTotalRow(entity string) bool {
	for _, m := range totalMarkers {
		if strings.Contains(entity, m) {
			return true
		}
	}
	return false
}

// row is the layout-independent shape of one input line.
type row struct {
	identity  string
	period    string
	entity    string
	subEntity string
	kind      string
	quantity  string
}

// build validates a raw row. keep is false for rows that are legitimately
// skipped (zero quantity, total lines).
func (r row) build(rev recon.Revision, cal *recon.Calendar) (p recon.DataPoint, keep bool, col string, err error) {
	period, ok := cal.Normalize(r.period)
	if !ok {
		return p, false, "period", fmt.Errorf("unknown period %q", r.period)
	}

	entity := strings.TrimSpace(r.entity)
	if entity == "" {
		return p, false, "entity", errors.New("entity is empty")
	}
	if isTotalRow(entity) {
		return p, false, "", nil
	}
	sub := strings.TrimSpace(r.subEntity)
	if sub == "" {
		sub = UnknownSubEntity
	}

	kind, err := recon.ParseMeasure(r.kind)
	if err != nil {
		return p, false, "kind", err
	}

	qty, err := parseQuantity(r.quantity)
	if err != nil {
		return p, false, "quantity", err
	}
	if qty.IsNegative() {
		return p, false, "quantity", fmt.Errorf("negative quantity %s", qty)
	}
	if qty.IsZero() {
		return p, false, "", nil
	}

	id := strings.TrimSpace(r.identity)
	if id == "" {
		id = recon.IdentityFor(period, entity, sub)
	}

	return recon.DataPoint{
		Identity:  id,
		Period:    period,
		Entity:    entity,
		SubEntity: sub,
		Kind:      kind,
		Quantity:  qty,
		Revision:  rev,
	}, true, "", nil
}

// parseQuantity accepts thousand separators ("5,150") and blank cells.
func parseQuantity(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", s)
	}
	return d, nil
}

// ReadFile picks the reader from the file extension.
func ReadFile(path string, rev recon.Revision, cal *recon.Calendar) ([]recon.DataPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIngestion, err)
	}
	defer f.Close()
	return Read(f, filepath.Base(path), rev, cal)
}

// Read decodes r as the format implied by name's extension, e.g. the file
// name of an upload.
func Read(r io.Reader, name string, rev recon.Revision, cal *recon.Calendar) ([]recon.DataPoint, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".json":
		return ReadJSON(r, rev, cal)
	case ".xlsx", ".xlsm":
		return ReadSheet(r, rev, cal, SheetOptions{})
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrIngestion, ext)
	}
}
