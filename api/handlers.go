/*
handlers.go - HTTP API handlers for forecast reconciliation

PURPOSE:
  Exposes the analysis engine via REST API. Handles HTTP request/response,
  input decoding and persistence, and delegates the comparison itself to
  recon.Analyzer.

ENDPOINTS:
  Analyses:
    POST   /api/analyses                Compare two inline revisions
    POST   /api/analyses/upload         Compare two uploaded files (xlsx/json)
    GET    /api/analyses                List stored runs, newest first
    GET    /api/analyses/{id}           Stored run with stats and change log
    DELETE /api/analyses/{id}           Delete a stored run
    POST   /api/analyses/{id}/rerun     Re-analyze stored inputs with the
                                        current engine settings
    GET    /api/analyses/{id}/export    Stored run as an xlsx workbook

  Scenarios:
    GET    /api/scenarios               List demo scenarios
    POST   /api/scenarios/{id}          Run a demo scenario

  Engine:
    GET    /api/calendar                Periods and thresholds in use

REQUEST FLOW:
  1. Decode input (JSON body or multipart files) through package ingest
  2. Run the Analyzer
  3. Persist when asked (inline: "save": true; uploads: always unless
     save=false)
  4. Serialize the report

ERROR HANDLING:
  Errors are returned as JSON {error, details} with HTTP status:
  - 400: Unreadable input, unknown periods/kinds, empty comparison
  - 404: Run or scenario not found
  - 500: Storage failures

SECURITY NOTE:
  No authentication. Uploads are bounded by maxUploadBytes.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenarios
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/forecast-recon/export"
	"github.com/warp/forecast-recon/ingest"
	"github.com/warp/forecast-recon/recon"
	"github.com/warp/forecast-recon/store"
)

const maxUploadBytes = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    store.RunStore
	Analyzer *recon.Analyzer

	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewHandler creates a handler. A nil logger disables logging.
func NewHandler(runs store.RunStore, analyzer *recon.Analyzer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:    runs,
		Analyzer: analyzer,
		logger:   logger.Named("api"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
}

func (h *Handler) calendar() *recon.Calendar { return h.Analyzer.Config().Calendar }

// =============================================================================
// ANALYSIS HANDLERS
// =============================================================================

// Analyze compares two revisions given inline.
// POST /api/analyses
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	oldPoints, err := ingest.FromJSON(req.Old, recon.Old, h.calendar())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid old revision", err)
		return
	}
	newPoints, err := ingest.FromJSON(req.New, recon.New, h.calendar())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid new revision", err)
		return
	}

	h.analyzeAndRespond(w, r, analysisInput{
		label:     req.Label,
		oldSource: "inline",
		newSource: "inline",
		oldPoints: oldPoints,
		newPoints: newPoints,
		save:      req.Save,
	})
}

// Upload compares two uploaded report files.
// POST /api/analyses/upload (multipart: old, new, label, save)
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}

	save := true
	if v := r.FormValue("save"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid save flag", err)
			return
		}
		save = b
	}

	in := analysisInput{label: r.FormValue("label"), save: save}
	for _, side := range []struct {
		field  string
		rev    recon.Revision
		points *[]recon.DataPoint
		source *string
	}{
		{"old", recon.Old, &in.oldPoints, &in.oldSource},
		{"new", recon.New, &in.newPoints, &in.newSource},
	} {
		file, header, err := r.FormFile(side.field)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Missing %q file", side.field), err)
			return
		}
		points, err := ingest.Read(file, header.Filename, side.rev, h.calendar())
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Cannot read %q file", side.field), err)
			return
		}
		*side.points = points
		*side.source = header.Filename
	}

	h.analyzeAndRespond(w, r, in)
}

// ListAnalyses returns stored runs, newest first.
// GET /api/analyses?limit=N
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list analyses", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = runDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAnalysis returns one stored run.
// GET /api/analyses/{id}
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, storedAnalysisDTO(run))
}

// DeleteAnalysis removes a stored run.
// DELETE /api/analyses/{id}
func (h *Handler) DeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.Store.DeleteRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete analysis", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Analysis not found", nil)
		return
	}

	h.logger.Info("analysis deleted", zap.String("run_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// RerunAnalysis re-analyzes the stored inputs of a run with the current
// engine settings and stores the result as a new run.
// POST /api/analyses/{id}/rerun
func (h *Handler) RerunAnalysis(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	oldPoints, newPoints, err := h.Store.LoadPoints(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load inputs", err)
		return
	}

	h.analyzeAndRespond(w, r, analysisInput{
		label:     "rerun of " + run.ID,
		oldSource: run.OldSource,
		newSource: run.NewSource,
		oldPoints: oldPoints,
		newPoints: newPoints,
		save:      true,
	})
}

// ExportAnalysis streams a stored run as an xlsx workbook.
// GET /api/analyses/{id}/export
func (h *Handler) ExportAnalysis(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	f, err := export.Workbook(run.Stats, run.Changes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build workbook", err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(export.FileName(run.CreatedAt))))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		h.logger.Error("export write failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// GetCalendar returns the periods and thresholds the engine uses.
// GET /api/calendar
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	cfg := h.Analyzer.Config()
	writeJSON(w, http.StatusOK, CalendarDTO{
		Periods:              cfg.Calendar.Labels(),
		Epsilon:              cfg.Epsilon,
		DelayRatioMin:        cfg.DelayRatioMin,
		DelayRatioMax:        cfg.DelayRatioMax,
		PoolClaimedForecasts: cfg.PoolClaimedForecasts,
	})
}

// =============================================================================
// SHARED
// =============================================================================

type analysisInput struct {
	label                string
	oldSource, newSource string
	oldPoints, newPoints []recon.DataPoint
	save                 bool
}

// analyzeAndRespond runs the engine, stores the run when asked and writes
// the report. Stored runs answer 201, transient ones 200.
func (h *Handler) analyzeAndRespond(w http.ResponseWriter, r *http.Request, in analysisInput) {
	ctx := r.Context()

	report, err := h.Analyzer.Analyze(ctx, in.oldPoints, in.newPoints)
	if err != nil {
		if recon.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Cannot analyze input", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Analysis failed", err)
		return
	}

	dto := NewAnalysisDTO(report)
	dto.Label = in.label

	logFields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.Int("records", report.RecordCount),
		zap.Int("changes", len(report.Changes)),
		zap.Int("collisions", len(report.Collisions)),
	}

	if !in.save {
		h.logger.Info("analysis completed", logFields...)
		writeJSON(w, http.StatusOK, dto)
		return
	}

	run := store.Run{
		ID:          h.newID(),
		Label:       in.label,
		OldSource:   in.oldSource,
		NewSource:   in.newSource,
		RecordCount: report.RecordCount,
		Collisions:  len(report.Collisions),
		Epsilon:     h.Analyzer.Config().Epsilon,
		CreatedAt:   h.now(),
		Stats:       report.Stats,
		Changes:     report.Changes,
	}
	if err := h.Store.SaveRun(ctx, run, in.oldPoints, in.newPoints); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save analysis", err)
		return
	}

	dto.ID = run.ID
	dto.CreatedAt = run.CreatedAt.Format(time.RFC3339)
	h.logger.Info("analysis stored", append(logFields, zap.String("run_id", run.ID))...)
	writeJSON(w, http.StatusCreated, dto)
}

// loadRun fetches the {id} run, writing 404/500 itself when it cannot.
func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*store.Run, bool) {
	id := chi.URLParam(r, "id")

	run, err := h.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get analysis", err)
		return nil, false
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "Analysis not found", nil)
		return nil, false
	}
	return run, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
