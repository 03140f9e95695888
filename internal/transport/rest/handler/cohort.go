package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/PAIR-code/deliberate-lab/internal/cache"
	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/service"
)

// CohortHandler handles cohort endpoints
type CohortHandler struct {
	cohortSvc     *service.CohortService
	progressCache cache.ProgressCache
}

// NewCohortHandler creates a new cohort handler
func NewCohortHandler(cohortSvc *service.CohortService, progressCache cache.ProgressCache) *CohortHandler {
	return &CohortHandler{
		cohortSvc:     cohortSvc,
		progressCache: progressCache,
	}
}

// CreateCohortRequest is the request body for creating a cohort
type CreateCohortRequest struct {
	Name         string                        `json:"name"`
	Participants model.CohortParticipantConfig `json:"participantConfig"`
}

// Create handles POST /v1/experiments/{experimentId}/cohorts
func (h *CohortHandler) Create(w http.ResponseWriter, r *http.Request) {
	experimentID := mux.Vars(r)["experimentId"]

	var req CreateCohortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cohort, err := h.cohortSvc.CreateCohort(r.Context(), experimentID, req.Name, req.Participants)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, cohort)
}

// List handles GET /v1/experiments/{experimentId}/cohorts
func (h *CohortHandler) List(w http.ResponseWriter, r *http.Request) {
	experimentID := mux.Vars(r)["experimentId"]

	cohorts, err := h.cohortSvc.ListCohorts(r.Context(), experimentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"cohorts": cohorts})
}

// Get handles GET /v1/cohorts/{cohortId}
func (h *CohortHandler) Get(w http.ResponseWriter, r *http.Request) {
	cohortID := mux.Vars(r)["cohortId"]

	cohort, err := h.cohortSvc.GetCohort(r.Context(), cohortID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cohort == nil {
		writeError(w, http.StatusNotFound, "cohort not found")
		return
	}

	writeJSON(w, http.StatusOK, cohort)
}

// UpdateCohortRequest is the request body for updating a cohort
type UpdateCohortRequest struct {
	Name         string                        `json:"name,omitempty"`
	Description  string                        `json:"description,omitempty"`
	Participants model.CohortParticipantConfig `json:"participantConfig"`
}

// Update handles PUT /v1/cohorts/{cohortId}
func (h *CohortHandler) Update(w http.ResponseWriter, r *http.Request) {
	cohortID := mux.Vars(r)["cohortId"]

	var req UpdateCohortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cohort, err := h.cohortSvc.UpdateCohort(r.Context(), cohortID, req.Name, req.Description, req.Participants)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if cohort == nil {
		writeError(w, http.StatusNotFound, "cohort not found")
		return
	}

	writeJSON(w, http.StatusOK, cohort)
}

// Delete handles DELETE /v1/cohorts/{cohortId}
func (h *CohortHandler) Delete(w http.ResponseWriter, r *http.Request) {
	cohortID := mux.Vars(r)["cohortId"]

	if err := h.cohortSvc.DeleteCohort(r.Context(), cohortID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Progress handles GET /v1/cohorts/{cohortId}/progress. The board comes
// straight from Redis; no database read.
func (h *CohortHandler) Progress(w http.ResponseWriter, r *http.Request) {
	cohortID := mux.Vars(r)["cohortId"]

	limit := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}

	board, err := h.progressCache.GetBoard(r.Context(), cohortID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"progress": board})
}
