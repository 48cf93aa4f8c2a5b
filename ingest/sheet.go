package ingest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/warp/forecast-recon/recon"
)

// SheetOptions selects where the points live in a workbook.
type SheetOptions struct {
	// Sheet to read; the first sheet when empty.
	Sheet string

	// HeaderScanRows bounds the search for the header row. Title and
	// "printed on" lines above the header are skipped. Default 10.
	HeaderScanRows int
}

type column int

const (
	colPeriod column = iota
	colEntity
	colSubEntity
	colKind
	colQuantity
	colIdentity
)

// headerNames lists the accepted header texts per column, compared after
// trimming and upper-casing.
var headerNames = map[column][]string{
	colPeriod:    {"PERIOD", "MONTH", "月份"},
	colEntity:    {"ENTITY", "CUSTOMER", "客戶", "公司"},
	colSubEntity: {"SUB_ENTITY", "SUBENTITY", "SUB-ENTITY", "MODULE", "模組", "品項", "型號"},
	colKind:      {"KIND", "TYPE", "類型"},
	colQuantity:  {"QUANTITY", "VALUE", "QTY", "數量"},
	colIdentity:  {"ID", "IDENTITY"},
}

var requiredColumns = []column{colPeriod, colEntity, colKind, colQuantity}

func matchHeader(cell string) (column, bool) {
	cell = strings.ToUpper(strings.TrimSpace(cell))
	for col, names := range headerNames {
		for _, n := range names {
			if cell == n {
				return col, true
			}
		}
	}
	return 0, false
}

// locateHeader returns the header row index and column positions.
func locateHeader(rows [][]string, scan int) (int, map[column]int, error) {
	if scan <= 0 {
		scan = 10
	}
	for i := 0; i < len(rows) && i < scan; i++ {
		pos := make(map[column]int)
		for c, cell := range rows[i] {
			if col, ok := matchHeader(cell); ok {
				if _, dup := pos[col]; !dup {
					pos[col] = c
				}
			}
		}
		complete := true
		for _, col := range requiredColumns {
			if _, ok := pos[col]; !ok {
				complete = false
				break
			}
		}
		if complete {
			return i, pos, nil
		}
	}
	return 0, nil, errors.New("no header row with period, entity, kind and quantity columns")
}

// ReadSheet reads one long-format sheet from an xlsx workbook.
func ReadSheet(r io.Reader, rev recon.Revision, cal *recon.Calendar, opts SheetOptions) ([]recon.DataPoint, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrIngestion, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", ErrIngestion)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrIngestion, sheet, err)
	}

	header, pos, err := locateHeader(rows, opts.HeaderScanRows)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrIngestion, sheet, err)
	}

	cell := func(cells []string, col column) string {
		c, ok := pos[col]
		if !ok || c >= len(cells) {
			return ""
		}
		return cells[c]
	}

	var points []recon.DataPoint
	for i := header + 1; i < len(rows); i++ {
		cells := rows[i]
		if blank(cells) {
			continue
		}
		raw := row{
			identity:  cell(cells, colIdentity),
			period:    cell(cells, colPeriod),
			entity:    cell(cells, colEntity),
			subEntity: cell(cells, colSubEntity),
			kind:      cell(cells, colKind),
			quantity:  cell(cells, colQuantity),
		}
		dp, keep, col, err := raw.build(rev, cal)
		if err != nil {
			return nil, &RowError{Source: sheet, Row: i + 1, Column: col, Err: err}
		}
		if keep {
			points = append(points, dp)
		}
	}
	return points, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
