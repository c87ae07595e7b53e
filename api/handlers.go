/*
handlers.go - HTTP API handlers for the waterfall engine

PURPOSE:
  Exposes the simulation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the group
  orchestrator and the run store.

ENDPOINTS:
  Scenarios:
    GET    /api/scenarios              List built-in scenarios
    GET    /api/scenarios/{id}         Full scenario definition
    POST   /api/scenarios/{id}/run     Run a built-in scenario

  Runs:
    POST   /api/runs                   Run an ad-hoc scenario (JSON body)
    GET    /api/runs                   List stored runs
    GET    /api/runs/{id}              Run metadata
    GET    /api/runs/{id}/entities/{entityID}  One entity's full result
    GET    /api/runs/{id}/consolidated Holding-level view

  Admin:
    POST   /api/reset                  Drop all stored runs (dev only)
    GET    /api/health                 Liveness probe

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed scenario configuration
  - 404: Unknown scenario, run, or entity
  - 422: The scenario ran but failed a reconciliation check (balance
         sheet identity, intercompany symmetry)
  - 500: Storage errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Response data structures
  - scenarios.go: Built-in scenario definitions
  - server.go: Router setup and middleware
*/
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian/waterfall-engine/config"
	"github.com/meridian/waterfall-engine/engine"
	"github.com/meridian/waterfall-engine/group"
	"github.com/meridian/waterfall-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store *sqlite.Store
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{Store: store}
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the built-in scenario catalog.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ListBuiltinScenarios())
}

// GetScenario returns one built-in scenario's full definition.
func (h *Handler) GetScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	file, ok := BuiltinScenario(id)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown scenario: "+id)
		return
	}
	respondJSON(w, http.StatusOK, file)
}

// RunScenario runs a built-in scenario and persists the result.
func (h *Handler) RunScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	file, ok := BuiltinScenario(id)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown scenario: "+id)
		return
	}
	h.runAndStore(w, r, file)
}

// CreateRun runs an ad-hoc scenario supplied in the request body.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var file config.ScenarioFile
	if err := json.NewDecoder(r.Body).Decode(&file); err != nil {
		respondError(w, http.StatusBadRequest, "invalid scenario body: "+err.Error())
		return
	}
	h.runAndStore(w, r, file)
}

func (h *Handler) runAndStore(w http.ResponseWriter, r *http.Request, file config.ScenarioFile) {
	cfg, err := config.Build(file)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	result, err := group.Run(cfg)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	rec := sqlite.RunRecord{
		ID:           uuid.NewString(),
		ScenarioName: cfg.Name,
		Periods:      cfg.Entities[0].Periods,
		CreatedAt:    time.Now().UTC(),
	}
	for _, id := range result.Order {
		rec.EntityIDs = append(rec.EntityIDs, string(id))
	}

	if err := h.Store.SaveRun(r.Context(), rec, result); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to persist run: "+err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, toRunSummary(rec))
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns stored run metadata, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListRuns(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]RunSummaryDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, toRunSummary(rec))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetRun returns one run's metadata.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.Store.GetRun(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "unknown run: "+id)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toRunSummary(rec))
}

// GetRunEntity returns one entity's full stored result for a run.
func (h *Handler) GetRunEntity(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	entityID := engine.EntityID(chi.URLParam(r, "entityID"))

	result, err := h.Store.GetEntityResult(r.Context(), runID, entityID)
	if errors.Is(err, engine.ErrEntityNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toEntityResult(result))
}

// GetRunConsolidated returns a run's holding-level view.
func (h *Handler) GetRunConsolidated(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	result, err := h.Store.GetConsolidated(r.Context(), runID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "no consolidated result for run: "+runID)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toConsolidated(result))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetDatabase drops all stored runs. Dev/demo only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondEngineError maps the engine's error taxonomy onto HTTP status
// codes: malformed configuration is the caller's fault; a reconciliation
// failure means the scenario is internally inconsistent.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidConfig):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrIdentityViolation),
		errors.Is(err, engine.ErrIntercompanyAsymmetry):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, engine.ErrEntityNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
