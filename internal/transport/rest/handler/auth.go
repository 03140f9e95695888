package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/service"
	"github.com/PAIR-code/deliberate-lab/internal/transport/rest/middleware"
)

// AuthHandler handles authentication and API key endpoints
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.authSvc.Login(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateAPIKeyRequest is the request body for minting an API key
type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

// CreateAPIKey handles POST /v1/apikeys. The raw key appears in this
// response only; afterwards only the prefix is retrievable.
func (h *AuthHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	experimenterID := middleware.GetExperimenterID(r.Context())

	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	key, rawKey, err := h.authSvc.CreateAPIKey(r.Context(), experimenterID, req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"key":    key,
		"rawKey": rawKey,
	})
}

// ListAPIKeys handles GET /v1/apikeys
func (h *AuthHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	experimenterID := middleware.GetExperimenterID(r.Context())

	keys, err := h.authSvc.ListAPIKeys(r.Context(), experimenterID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"keys": keys})
}

// RevokeAPIKey handles DELETE /v1/apikeys/{keyId}
func (h *AuthHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	experimenterID := middleware.GetExperimenterID(r.Context())
	keyID := mux.Vars(r)["keyId"]

	if err := h.authSvc.RevokeAPIKey(r.Context(), keyID, experimenterID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
