/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. The engine types stay
  free of JSON tags; these types fix the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DECIMALS:
  Quantities are serialized as JSON strings ("5150", "-0.5") so clients
  never see float rounding. Absent change values are null.

TYPES:
  Analysis:
    AnalyzeRequest, AnalysisDTO, PeriodStatDTO, ChangeDTO, SummaryDTO,
    CollisionDTO

  History:
    RunDTO

  Misc:
    CalendarDTO, ScenarioDTO, ErrorResponse

SEE ALSO:
  - handlers.go: Uses these types
  - ingest/json.go: PointJSON, the accepted point shape
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/forecast-recon/ingest"
	"github.com/warp/forecast-recon/recon"
	"github.com/warp/forecast-recon/store"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// AnalyzeRequest compares two inline revisions.
type AnalyzeRequest struct {
	Label string             `json:"label,omitempty"`
	Old   []ingest.PointJSON `json:"old"`
	New   []ingest.PointJSON `json:"new"`
	Save  bool               `json:"save,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// AnalysisDTO is a full comparison result. ID and CreatedAt are set only
// for stored runs.
type AnalysisDTO struct {
	ID          string          `json:"id,omitempty"`
	Label       string          `json:"label,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	RecordCount int             `json:"record_count"`
	Stats       []PeriodStatDTO `json:"stats"`
	Changes     []ChangeDTO     `json:"changes"`
	Summary     SummaryDTO      `json:"summary"`
	Collisions  []CollisionDTO  `json:"collisions,omitempty"`
}

type PeriodStatDTO struct {
	Period        string          `json:"period"`
	Index         int             `json:"index"`
	OldForecast   decimal.Decimal `json:"old_forecast"`
	NewForecast   decimal.Decimal `json:"new_forecast"`
	OldActual     decimal.Decimal `json:"old_actual"`
	NewActual     decimal.Decimal `json:"new_actual"`
	ForecastDelta decimal.Decimal `json:"forecast_delta"`
	ActualDelta   decimal.Decimal `json:"actual_delta"`
}

// ChangeDTO is one change-log entry. Label is the report wording of Kind.
type ChangeDTO struct {
	Kind         recon.ChangeKind    `json:"kind"`
	Label        string              `json:"label"`
	Period       string              `json:"period"`
	TargetPeriod string              `json:"target_period,omitempty"`
	Entity       string              `json:"entity"`
	SubEntity    string              `json:"sub_entity"`
	OldValue     decimal.NullDecimal `json:"old_value"`
	NewValue     decimal.NullDecimal `json:"new_value"`
}

type SummaryDTO struct {
	ByKind        map[string]int  `json:"by_kind"`
	ForecastDelta decimal.Decimal `json:"forecast_delta"`
	ActualDelta   decimal.Decimal `json:"actual_delta"`
}

// CollisionDTO reports an input point that overwrote an earlier one.
type CollisionDTO struct {
	Identity string          `json:"identity"`
	Kind     recon.Measure   `json:"kind"`
	Revision recon.Revision  `json:"revision"`
	Previous decimal.Decimal `json:"previous"`
	Current  decimal.Decimal `json:"current"`
}

// RunDTO is a stored run in listings.
type RunDTO struct {
	ID          string          `json:"id"`
	Label       string          `json:"label"`
	OldSource   string          `json:"old_source,omitempty"`
	NewSource   string          `json:"new_source,omitempty"`
	OldPoints   int             `json:"old_points"`
	NewPoints   int             `json:"new_points"`
	RecordCount int             `json:"record_count"`
	Collisions  int             `json:"collisions"`
	Epsilon     decimal.Decimal `json:"epsilon"`
	CreatedAt   string          `json:"created_at"`
}

// CalendarDTO exposes the engine settings clients need to render results.
type CalendarDTO struct {
	Periods              []string        `json:"periods"`
	Epsilon              decimal.Decimal `json:"epsilon"`
	DelayRatioMin        decimal.Decimal `json:"delay_ratio_min"`
	DelayRatioMax        decimal.Decimal `json:"delay_ratio_max"`
	PoolClaimedForecasts bool            `json:"pool_claimed_forecasts"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toStatDTOs(stats []recon.PeriodStat) []PeriodStatDTO {
	dtos := make([]PeriodStatDTO, len(stats))
	for i, s := range stats {
		dtos[i] = PeriodStatDTO{
			Period:        s.Period,
			Index:         s.Index,
			OldForecast:   s.OldForecast,
			NewForecast:   s.NewForecast,
			OldActual:     s.OldActual,
			NewActual:     s.NewActual,
			ForecastDelta: s.ForecastDelta,
			ActualDelta:   s.ActualDelta,
		}
	}
	return dtos
}

func toChangeDTOs(changes []recon.ChangeEntry) []ChangeDTO {
	dtos := make([]ChangeDTO, len(changes))
	for i, c := range changes {
		dtos[i] = ChangeDTO{
			Kind:         c.Kind,
			Label:        c.Kind.Label(),
			Period:       c.Period,
			TargetPeriod: c.TargetPeriod,
			Entity:       c.Entity,
			SubEntity:    c.SubEntity,
			OldValue:     c.OldValue,
			NewValue:     c.NewValue,
		}
	}
	return dtos
}

func toSummaryDTO(s recon.Summary) SummaryDTO {
	byKind := make(map[string]int, len(s.ByKind))
	for k, n := range s.ByKind {
		byKind[k.String()] = n
	}
	return SummaryDTO{ByKind: byKind, ForecastDelta: s.ForecastDelta, ActualDelta: s.ActualDelta}
}

func toCollisionDTOs(cs []recon.Collision) []CollisionDTO {
	if len(cs) == 0 {
		return nil
	}
	dtos := make([]CollisionDTO, len(cs))
	for i, c := range cs {
		dtos[i] = CollisionDTO{
			Identity: c.Identity,
			Kind:     c.Kind,
			Revision: c.Revision,
			Previous: c.Previous,
			Current:  c.Current,
		}
	}
	return dtos
}

// NewAnalysisDTO converts a fresh report.
func NewAnalysisDTO(r *recon.Report) AnalysisDTO {
	return AnalysisDTO{
		RecordCount: r.RecordCount,
		Stats:       toStatDTOs(r.Stats),
		Changes:     toChangeDTOs(r.Changes),
		Summary:     toSummaryDTO(r.Summary),
		Collisions:  toCollisionDTOs(r.Collisions),
	}
}

func runDTO(r store.Run) RunDTO {
	return RunDTO{
		ID:          r.ID,
		Label:       r.Label,
		OldSource:   r.OldSource,
		NewSource:   r.NewSource,
		OldPoints:   r.OldPoints,
		NewPoints:   r.NewPoints,
		RecordCount: r.RecordCount,
		Collisions:  r.Collisions,
		Epsilon:     r.Epsilon,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
}

// storedAnalysisDTO rebuilds the response for a stored run. Collisions
// are only counted in storage, so the list is omitted.
func storedAnalysisDTO(r *store.Run) AnalysisDTO {
	return AnalysisDTO{
		ID:          r.ID,
		Label:       r.Label,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		RecordCount: r.RecordCount,
		Stats:       toStatDTOs(r.Stats),
		Changes:     toChangeDTOs(r.Changes),
		Summary:     toSummaryDTO(recon.Summarize(r.Stats, r.Changes)),
	}
}
