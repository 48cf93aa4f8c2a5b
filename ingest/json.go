package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/warp/forecast-recon/recon"
)

// PointJSON is one point in a JSON document. The month/customer/module/
// type/value spelling written by the older planning tool is also accepted.
// A point must carry quantity or value; only an explicit zero is dropped.
type PointJSON struct {
	ID        string           `json:"id,omitempty"`
	Period    string           `json:"period,omitempty"`
	Entity    string           `json:"entity,omitempty"`
	SubEntity string           `json:"sub_entity,omitempty"`
	Kind      string           `json:"kind,omitempty"`
	Quantity  *decimal.Decimal `json:"quantity,omitempty"`

	Month    string           `json:"month,omitempty"`
	Customer string           `json:"customer,omitempty"`
	Module   string           `json:"module,omitempty"`
	Type     string           `json:"type,omitempty"`
	Value    *decimal.Decimal `json:"value,omitempty"`
}

func (p PointJSON) row() (row, error) {
	r := row{
		identity:  p.ID,
		period:    firstNonEmpty(p.Period, p.Month),
		entity:    firstNonEmpty(p.Entity, p.Customer),
		subEntity: firstNonEmpty(p.SubEntity, p.Module),
		kind:      firstNonEmpty(p.Kind, p.Type),
	}
	switch {
	case p.Value != nil:
		r.quantity = p.Value.String()
	case p.Quantity != nil:
		r.quantity = p.Quantity.String()
	default:
		return r, errMissingQuantity
	}
	return r, nil
}

var errMissingQuantity = errors.New("quantity is missing")

// ReadJSON decodes a JSON array of points.
func ReadJSON(r io.Reader, rev recon.Revision, cal *recon.Calendar) ([]recon.DataPoint, error) {
	var raw []PointJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrIngestion, err)
	}
	return FromJSON(raw, rev, cal)
}

// FromJSON converts already-decoded points, e.g. from an API request body.
func FromJSON(raw []PointJSON, rev recon.Revision, cal *recon.Calendar) ([]recon.DataPoint, error) {
	points := make([]recon.DataPoint, 0, len(raw))
	for i, p := range raw {
		r, err := p.row()
		if err != nil {
			return nil, &RowError{Source: "json", Row: i + 1, Column: "quantity", Err: err}
		}
		dp, keep, col, err := r.build(rev, cal)
		if err != nil {
			return nil, &RowError{Source: "json", Row: i + 1, Column: col, Err: err}
		}
		if keep {
			points = append(points, dp)
		}
	}
	return points, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
