package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/service"
	"github.com/PAIR-code/deliberate-lab/internal/transport/rest/middleware"
)

// ExperimentHandler handles experiment authoring endpoints
type ExperimentHandler struct {
	experimentSvc *service.ExperimentService
}

// NewExperimentHandler creates a new experiment handler
func NewExperimentHandler(experimentSvc *service.ExperimentService) *ExperimentHandler {
	return &ExperimentHandler{experimentSvc: experimentSvc}
}

// CreateExperimentRequest is the request body for creating an experiment
type CreateExperimentRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Stages      []*model.StageConfig   `json:"stages"`
	Variables   []model.VariableConfig `json:"variables,omitempty"`
}

// Create handles POST /v1/experiments
func (h *ExperimentHandler) Create(w http.ResponseWriter, r *http.Request) {
	experimenterID := middleware.GetExperimenterID(r.Context())

	var req CreateExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	experiment, err := h.experimentSvc.CreateExperiment(r.Context(), experimenterID, req.Name, req.Description, req.Stages, req.Variables)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, experiment)
}

// List handles GET /v1/experiments
func (h *ExperimentHandler) List(w http.ResponseWriter, r *http.Request) {
	experimenterID := middleware.GetExperimenterID(r.Context())

	experiments, err := h.experimentSvc.ListExperiments(r.Context(), experimenterID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"experiments": experiments})
}

// Get handles GET /v1/experiments/{experimentId}
func (h *ExperimentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["experimentId"]

	experiment, err := h.experimentSvc.GetExperiment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if experiment == nil {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}

	writeJSON(w, http.StatusOK, experiment)
}

// GetStages handles GET /v1/experiments/{experimentId}/stages
func (h *ExperimentHandler) GetStages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["experimentId"]

	stages, err := h.experimentSvc.GetStages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stages == nil {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"stages": stages})
}

// UpdateExperimentRequest is the request body for updating an experiment
type UpdateExperimentRequest struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	StageIDs    []string `json:"stageIds,omitempty"`
}

// Update handles PUT /v1/experiments/{experimentId}
func (h *ExperimentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["experimentId"]

	var req UpdateExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	experiment, err := h.experimentSvc.UpdateExperiment(r.Context(), id, req.Name, req.Description, req.StageIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if experiment == nil {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}

	writeJSON(w, http.StatusOK, experiment)
}

// Delete handles DELETE /v1/experiments/{experimentId}
func (h *ExperimentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["experimentId"]

	if err := h.experimentSvc.DeleteExperiment(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Fork handles POST /v1/experiments/{experimentId}/fork
func (h *ExperimentHandler) Fork(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["experimentId"]
	experimenterID := middleware.GetExperimenterID(r.Context())

	experiment, err := h.experimentSvc.ForkExperiment(r.Context(), id, experimenterID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if experiment == nil {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}

	writeJSON(w, http.StatusCreated, experiment)
}

// Export handles GET /v1/experiments/{experimentId}/export
func (h *ExperimentHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["experimentId"]

	export, err := h.experimentSvc.ExportExperiment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if export == nil {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}

	writeJSON(w, http.StatusOK, export)
}

// LockCohortRequest is the request body for locking a cohort
type LockCohortRequest struct {
	Locked bool `json:"locked"`
}

// LockCohort handles POST /v1/experiments/{experimentId}/cohorts/{cohortId}/lock
func (h *ExperimentHandler) LockCohort(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req LockCohortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	experiment, err := h.experimentSvc.SetCohortLock(r.Context(), vars["experimentId"], vars["cohortId"], req.Locked)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if experiment == nil {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}

	writeJSON(w, http.StatusOK, experiment)
}
