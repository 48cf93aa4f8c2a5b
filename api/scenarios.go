/*
scenarios.go - Built-in demo comparisons

PURPOSE:

	Provides canned old/new revisions that exercise each classification
	rule, for demos and for checking a deployment end to end.

AVAILABLE SCENARIOS:

	demo:          The sample comparison of the planning tool (all rules)
	conversion:    A forecast turning into a confirmed order
	cancellation:  A forecast removed with no later replacement
	modification:  A forecast changed in place
	delay:         A forecast moved to a later month at a similar quantity
	quiet-period:  A period whose sums are all zero drops from the stats

USAGE VIA API:

	POST /api/scenarios/delay
	POST /api/scenarios/demo?save=true   (also store the run)

ADDING NEW SCENARIOS:
 1. Add an entry to 'scenarios' with ID, name, description and builder
 2. Points are built directly, so zero quantities survive (ingest drops them)

SEE ALSO:
  - handlers.go: analyzeAndRespond
*/
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/forecast-recon/recon"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	build func() (oldPoints, newPoints []recon.DataPoint)
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "demo",
			Name:        "Planning Tool Sample",
			Description: "Conversion, delay, modification and a new forecast across three months",
		},
		build: demoScenario,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "conversion",
			Name:        "Converted To Order",
			Description: "January forecast 5000 becomes an order of 4750",
		},
		build: func() ([]recon.DataPoint, []recon.DataPoint) {
			return revision(recon.Old,
					point("January", "CustA", "ModX", recon.Forecast, 5000),
				), revision(recon.New,
					point("January", "CustA", "ModX", recon.Forecast, 4800),
					point("January", "CustA", "ModX", recon.Actual, 4750),
				)
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "cancellation",
			Name:        "Forecast Cancelled",
			Description: "February forecast 5200 disappears with no later match",
		},
		build: func() ([]recon.DataPoint, []recon.DataPoint) {
			return revision(recon.Old,
				point("February", "CustA", "ModX", recon.Forecast, 5200),
			), nil
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "modification",
			Name:        "Forecast Modified",
			Description: "March forecast revised from 1500 to 1800",
		},
		build: func() ([]recon.DataPoint, []recon.DataPoint) {
			return revision(recon.Old,
					point("March", "CustC", "ModZ", recon.Forecast, 1500),
				), revision(recon.New,
					point("March", "CustC", "ModZ", recon.Forecast, 1800),
				)
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "delay",
			Name:        "Forecast Delayed",
			Description: "February forecast 5200 reappears in March as 5150",
		},
		build: func() ([]recon.DataPoint, []recon.DataPoint) {
			return revision(recon.Old,
					point("February", "CustA", "ModX", recon.Forecast, 5200),
				), revision(recon.New,
					point("March", "CustA", "ModX", recon.Forecast, 5150),
				)
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "quiet-period",
			Name:        "Quiet Period",
			Description: "April carries only zero quantities and is left out of the stats",
		},
		build: func() ([]recon.DataPoint, []recon.DataPoint) {
			return revision(recon.Old,
					point("January", "CustA", "ModX", recon.Forecast, 1000),
					point("April", "CustB", "ModY", recon.Forecast, 0),
				), revision(recon.New,
					point("January", "CustA", "ModX", recon.Forecast, 1000),
					point("April", "CustB", "ModY", recon.Forecast, 0),
				)
		},
	},
}

func demoScenario() ([]recon.DataPoint, []recon.DataPoint) {
	oldPoints := revision(recon.Old,
		point("January", "CustA", "Mod-X", recon.Forecast, 5000),
		point("January", "CustB", "Mod-Y", recon.Forecast, 3200),
		point("February", "CustA", "Mod-X", recon.Forecast, 5200),
		point("March", "CustC", "Mod-Z", recon.Forecast, 1500),
	)
	newPoints := revision(recon.New,
		point("January", "CustA", "Mod-X", recon.Forecast, 4800),
		point("January", "CustA", "Mod-X", recon.Actual, 4750),
		point("January", "CustB", "Mod-Y", recon.Forecast, 3200),
		point("February", "CustA", "Mod-X", recon.Forecast, 0),
		point("March", "CustA", "Mod-X", recon.Forecast, 5150),
		point("March", "CustC", "Mod-Z", recon.Forecast, 1800),
		point("March", "CustD", "Mod-W", recon.Forecast, 900),
	)
	return oldPoints, newPoints
}

func point(period, entity, sub string, kind recon.Measure, qty int64) recon.DataPoint {
	return recon.DataPoint{
		Identity:  recon.IdentityFor(period, entity, sub),
		Period:    period,
		Entity:    entity,
		SubEntity: sub,
		Kind:      kind,
		Quantity:  decimal.NewFromInt(qty),
	}
}

func revision(rev recon.Revision, points ...recon.DataPoint) []recon.DataPoint {
	for i := range points {
		points[i].Revision = rev
	}
	return points
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RunScenario analyzes a scenario, storing it when ?save=true.
// POST /api/scenarios/{id}
func (h *Handler) RunScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var found *scenario
	for i := range scenarios {
		if scenarios[i].ID == id {
			found = &scenarios[i]
			break
		}
	}
	if found == nil {
		writeError(w, http.StatusNotFound, "Unknown scenario: "+id, nil)
		return
	}

	save := false
	if v := r.URL.Query().Get("save"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid save flag", err)
			return
		}
		save = b
	}

	oldPoints, newPoints := found.build()
	h.analyzeAndRespond(w, r, analysisInput{
		label:     found.Name,
		oldSource: "scenario:" + found.ID,
		newSource: "scenario:" + found.ID,
		oldPoints: oldPoints,
		newPoints: newPoints,
		save:      save,
	})
}
