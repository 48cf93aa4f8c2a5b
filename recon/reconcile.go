package recon

import "github.com/shopspring/decimal"

// =============================================================================
// RECONCILE - Merge old and new points into comparison records
// =============================================================================

// Reconciliation is the output of Reconcile. It is never modified after
// Reconcile returns; Aggregate and Classify only read it.
type Reconciliation struct {
	// Records in first-encounter order (old points first, then new).
	Records []Record

	// ActivePeriods holds every period label seen in either revision.
	ActivePeriods map[string]struct{}

	// Collisions lists points that overwrote an earlier point with the same
	// identity, kind and revision.
	Collisions []Collision

	pos map[string]int
}

type slotKey struct {
	identity string
	kind     Measure
	side     Revision
}

// Reconcile folds oldPoints then newPoints into one record per identity.
// The side of a point is given by the slice it arrives in; its Revision
// field is not consulted. Absent counterparts default to zero and are not
// an error. Duplicate (identity, kind, side) points are last-write-wins.
func Reconcile(oldPoints, newPoints []DataPoint) *Reconciliation {
	out := &Reconciliation{
		ActivePeriods: make(map[string]struct{}),
		pos:           make(map[string]int),
	}
	pos := out.pos
	seen := make(map[slotKey]decimal.Decimal)

	fold := func(points []DataPoint, side Revision) {
		for _, p := range points {
			out.ActivePeriods[p.Period] = struct{}{}

			i, ok := pos[p.Identity]
			if !ok {
				i = len(out.Records)
				pos[p.Identity] = i
				out.Records = append(out.Records, Record{
					Identity:    p.Identity,
					Period:      p.Period,
					Entity:      p.Entity,
					SubEntity:   p.SubEntity,
					OldForecast: decimal.Zero,
					NewForecast: decimal.Zero,
					OldActual:   decimal.Zero,
					NewActual:   decimal.Zero,
				})
			}

			k := slotKey{identity: p.Identity, kind: p.Kind, side: side}
			if prev, dup := seen[k]; dup {
				out.Collisions = append(out.Collisions, Collision{
					Identity: p.Identity,
					Kind:     p.Kind,
					Revision: side,
					Previous: prev,
					Current:  p.Quantity,
				})
			}
			seen[k] = p.Quantity

			r := &out.Records[i]
			switch {
			case side == Old && p.Kind == Forecast:
				r.OldForecast = p.Quantity
			case side == Old && p.Kind == Actual:
				r.OldActual = p.Quantity
			case side == New && p.Kind == Forecast:
				r.NewForecast = p.Quantity
			case side == New && p.Kind == Actual:
				r.NewActual = p.Quantity
			}
		}
	}

	fold(oldPoints, Old)
	fold(newPoints, New)
	return out
}

// Record returns the record for an identity.
func (r *Reconciliation) Record(identity string) (Record, bool) {
	i, ok := r.pos[identity]
	if !ok {
		return Record{}, false
	}
	return r.Records[i], true
}
