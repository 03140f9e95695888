package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/PAIR-code/deliberate-lab/internal/service"
)

type contextKey string

const (
	ExperimenterIDKey contextKey = "experimenterId"
	ParticipantIDKey  contextKey = "participantId"
	ExperimentIDKey   contextKey = "experimentId"
	CohortIDKey       contextKey = "cohortId"
)

// AuthMiddleware provides JWT and API key authentication middleware
type AuthMiddleware struct {
	authSvc *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequireExperimenter validates an experimenter JWT from the Authorization
// header, or an API key from X-Api-Key. Either grants the same access.
func (m *AuthMiddleware) RequireExperimenter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get("X-Api-Key"); apiKey != "" {
			key, err := m.authSvc.ValidateAPIKey(r.Context(), apiKey)
			if err != nil {
				http.Error(w, `{"error":"invalid or revoked API key"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ExperimenterIDKey, key.ExperimenterID)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
			return
		}
		claims, err := m.authSvc.ValidateExperimenterToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ExperimenterIDKey, claims.ExperimenterID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireParticipant validates a participant JWT from the Authorization
// header or the token query param
func (m *AuthMiddleware) RequireParticipant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			http.Error(w, `{"error":"missing authorization"}`, http.StatusUnauthorized)
			return
		}

		claims, err := m.authSvc.ValidateParticipantToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, ParticipantIDKey, claims.ParticipantPrivateID)
		ctx = context.WithValue(ctx, ExperimentIDKey, claims.ExperimentID)
		ctx = context.WithValue(ctx, CohortIDKey, claims.CohortID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetExperimenterID extracts the experimenter ID from context
func GetExperimenterID(ctx context.Context) string {
	if v := ctx.Value(ExperimenterIDKey); v != nil {
		return v.(string)
	}
	return ""
}

// GetParticipantID extracts the participant private ID from context
func GetParticipantID(ctx context.Context) string {
	if v := ctx.Value(ParticipantIDKey); v != nil {
		return v.(string)
	}
	return ""
}

// GetExperimentID extracts the experiment ID from context
func GetExperimentID(ctx context.Context) string {
	if v := ctx.Value(ExperimentIDKey); v != nil {
		return v.(string)
	}
	return ""
}

// GetCohortID extracts the cohort ID from context
func GetCohortID(ctx context.Context) string {
	if v := ctx.Value(CohortIDKey); v != nil {
		return v.(string)
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
