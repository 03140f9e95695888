package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/service"
	"github.com/PAIR-code/deliberate-lab/internal/transport/rest/middleware"
)

// ParticipantHandler handles participant lifecycle and stage answer endpoints
type ParticipantHandler struct {
	participantSvc *service.ParticipantService
	transferSvc    *service.TransferService
	answerSvc      *service.AnswerService
}

// NewParticipantHandler creates a new participant handler
func NewParticipantHandler(participantSvc *service.ParticipantService, transferSvc *service.TransferService, answerSvc *service.AnswerService) *ParticipantHandler {
	return &ParticipantHandler{
		participantSvc: participantSvc,
		transferSvc:    transferSvc,
		answerSvc:      answerSvc,
	}
}

// JoinRequest is the request body for joining a cohort
type JoinRequest struct {
	AgentConfig *model.AgentConfig `json:"agentConfig,omitempty"`
}

// Join handles POST /v1/experiments/{experimentId}/cohorts/{cohortId}/join
func (h *ParticipantHandler) Join(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req JoinRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	resp, err := h.participantSvc.CreateParticipant(r.Context(), vars["experimentId"], vars["cohortId"], req.AgentConfig)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Me handles GET /v1/participants/me
func (h *ParticipantHandler) Me(w http.ResponseWriter, r *http.Request) {
	participant, ok := h.self(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, participant)
}

// AcceptTOS handles POST /v1/participants/me/tos
func (h *ParticipantHandler) AcceptTOS(w http.ResponseWriter, r *http.Request) {
	h.selfUpdate(w, r, h.participantSvc.AcceptTOS)
}

// Start handles POST /v1/participants/me/start
func (h *ParticipantHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.selfUpdate(w, r, h.participantSvc.AcceptExperimentStart)
}

// UpdateProfileRequest is the request body for the profile stage
type UpdateProfileRequest struct {
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	Pronouns string `json:"pronouns,omitempty"`
}

// UpdateProfile handles PUT /v1/participants/me/profile
func (h *ParticipantHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	privateID := middleware.GetParticipantID(r.Context())

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	participant, err := h.participantSvc.UpdateProfile(r.Context(), privateID, req.Name, req.Avatar, req.Pronouns)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if participant == nil {
		writeError(w, http.StatusNotFound, "participant not found")
		return
	}

	writeJSON(w, http.StatusOK, participant)
}

// Advance handles POST /v1/participants/me/advance
func (h *ParticipantHandler) Advance(w http.ResponseWriter, r *http.Request) {
	privateID := middleware.GetParticipantID(r.Context())

	participant, err := h.participantSvc.UpdateToNextStage(r.Context(), privateID)
	if err != nil {
		if errors.Is(err, service.ErrStageNotInExperiment) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, participant)
}

// AcceptCheck handles POST /v1/participants/me/check/accept
func (h *ParticipantHandler) AcceptCheck(w http.ResponseWriter, r *http.Request) {
	h.selfUpdate(w, r, h.participantSvc.AcceptCheck)
}

// AcceptTransfer handles POST /v1/participants/me/transfer/accept.
// Accepting without a pending transfer is a no-op, so retries succeed.
func (h *ParticipantHandler) AcceptTransfer(w http.ResponseWriter, r *http.Request) {
	privateID := middleware.GetParticipantID(r.Context())

	participant, err := h.transferSvc.AcceptTransfer(r.Context(), privateID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, participant)
}

// RejectTransfer handles POST /v1/participants/me/transfer/reject
func (h *ParticipantHandler) RejectTransfer(w http.ResponseWriter, r *http.Request) {
	privateID := middleware.GetParticipantID(r.Context())

	participant, err := h.transferSvc.RejectTransfer(r.Context(), privateID)
	if err != nil {
		if errors.Is(err, service.ErrNoPendingTransfer) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if participant == nil {
		writeError(w, http.StatusNotFound, "participant not found")
		return
	}

	writeJSON(w, http.StatusOK, participant)
}

// SubmitSurveyRequest is the request body for survey answers
type SubmitSurveyRequest struct {
	Answers map[string]model.SurveyAnswer `json:"answers"`
}

// SubmitSurvey handles POST /v1/stages/{stageId}/survey
func (h *ParticipantHandler) SubmitSurvey(w http.ResponseWriter, r *http.Request) {
	privateID := middleware.GetParticipantID(r.Context())
	stageID := mux.Vars(r)["stageId"]

	var req SubmitSurveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Answers) == 0 {
		writeError(w, http.StatusBadRequest, "answers are required")
		return
	}

	answer, err := h.answerSvc.SubmitSurveyAnswers(r.Context(), privateID, stageID, req.Answers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// SubmitRankingRequest is the request body for ranking answers
type SubmitRankingRequest struct {
	RankedIDs []string `json:"rankedIds"`
}

// SubmitRanking handles POST /v1/stages/{stageId}/ranking
func (h *ParticipantHandler) SubmitRanking(w http.ResponseWriter, r *http.Request) {
	privateID := middleware.GetParticipantID(r.Context())
	stageID := mux.Vars(r)["stageId"]

	var req SubmitRankingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := h.answerSvc.SubmitRankingAnswer(r.Context(), privateID, stageID, req.RankedIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// SubmitChipOffer handles POST /v1/stages/{stageId}/chip/offer
func (h *ParticipantHandler) SubmitChipOffer(w http.ResponseWriter, r *http.Request) {
	privateID := middleware.GetParticipantID(r.Context())
	stageID := mux.Vars(r)["stageId"]

	var offer model.ChipOffer
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	data, err := h.answerSvc.SubmitChipOffer(r.Context(), privateID, stageID, offer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, data)
}

// PostChatRequest is the request body for a chat message
type PostChatRequest struct {
	Content string `json:"content"`
}

// PostChat handles POST /v1/stages/{stageId}/chat
func (h *ParticipantHandler) PostChat(w http.ResponseWriter, r *http.Request) {
	privateID := middleware.GetParticipantID(r.Context())
	stageID := mux.Vars(r)["stageId"]

	var req PostChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := h.answerSvc.PostChatMessage(r.Context(), privateID, stageID, req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, message)
}

// GetChat handles GET /v1/stages/{stageId}/chat
func (h *ParticipantHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	stageID := mux.Vars(r)["stageId"]

	participant, ok := h.self(w, r)
	if !ok {
		return
	}

	messages, err := h.answerSvc.GetChatMessages(r.Context(), participant.CurrentCohortID, stageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// GetPublicData handles GET /v1/stages/{stageId}/public
func (h *ParticipantHandler) GetPublicData(w http.ResponseWriter, r *http.Request) {
	stageID := mux.Vars(r)["stageId"]

	participant, ok := h.self(w, r)
	if !ok {
		return
	}

	data, err := h.answerSvc.GetPublicData(r.Context(), participant.CurrentCohortID, stageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if data == nil {
		writeError(w, http.StatusNotFound, "no public data for stage")
		return
	}

	writeJSON(w, http.StatusOK, data)
}

// AssignRoles handles POST /v1/stages/{stageId}/roles/assign
func (h *ParticipantHandler) AssignRoles(w http.ResponseWriter, r *http.Request) {
	stageID := mux.Vars(r)["stageId"]

	participant, ok := h.self(w, r)
	if !ok {
		return
	}

	assignments, err := h.participantSvc.AssignRoles(r.Context(), participant.ExperimentID, participant.CurrentCohortID, stageID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"assignments": assignments})
}

// Experimenter-facing participant endpoints

// ListByCohort handles GET /v1/cohorts/{cohortId}/participants
func (h *ParticipantHandler) ListByCohort(w http.ResponseWriter, r *http.Request) {
	cohortID := mux.Vars(r)["cohortId"]

	participants, err := h.participantSvc.ListByCohort(r.Context(), cohortID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"participants": participants})
}

// InitiateTransferRequest is the request body for starting a transfer
type InitiateTransferRequest struct {
	CohortID string `json:"cohortId"`
}

// InitiateTransfer handles POST /v1/participants/{privateId}/transfer
func (h *ParticipantHandler) InitiateTransfer(w http.ResponseWriter, r *http.Request) {
	privateID := mux.Vars(r)["privateId"]

	var req InitiateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CohortID == "" {
		writeError(w, http.StatusBadRequest, "cohortId is required")
		return
	}

	participant, err := h.transferSvc.InitiateTransfer(r.Context(), privateID, req.CohortID)
	if err != nil {
		if errors.Is(err, service.ErrTransferConflict) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if participant == nil {
		writeError(w, http.StatusNotFound, "participant not found")
		return
	}

	writeJSON(w, http.StatusOK, participant)
}

// SendCheck handles POST /v1/participants/{privateId}/check
func (h *ParticipantHandler) SendCheck(w http.ResponseWriter, r *http.Request) {
	privateID := mux.Vars(r)["privateId"]

	participant, err := h.participantSvc.SendCheck(r.Context(), privateID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if participant == nil {
		writeError(w, http.StatusNotFound, "participant not found")
		return
	}

	writeJSON(w, http.StatusOK, participant)
}

// Boot handles POST /v1/participants/{privateId}/boot
func (h *ParticipantHandler) Boot(w http.ResponseWriter, r *http.Request) {
	privateID := mux.Vars(r)["privateId"]

	participant, err := h.participantSvc.BootParticipant(r.Context(), privateID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if participant == nil {
		writeError(w, http.StatusNotFound, "participant not found")
		return
	}

	writeJSON(w, http.StatusOK, participant)
}

// self loads the authenticated participant, writing the error response on
// failure
func (h *ParticipantHandler) self(w http.ResponseWriter, r *http.Request) (*model.ParticipantProfile, bool) {
	privateID := middleware.GetParticipantID(r.Context())

	participant, err := h.participantSvc.GetParticipant(r.Context(), privateID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if participant == nil {
		writeError(w, http.StatusNotFound, "participant not found")
		return nil, false
	}
	return participant, true
}

func (h *ParticipantHandler) selfUpdate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, privateID string) (*model.ParticipantProfile, error)) {
	privateID := middleware.GetParticipantID(r.Context())

	participant, err := fn(r.Context(), privateID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if participant == nil {
		writeError(w, http.StatusNotFound, "participant not found")
		return
	}

	writeJSON(w, http.StatusOK, participant)
}
