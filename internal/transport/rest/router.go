package rest

import (
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PAIR-code/deliberate-lab/internal/cache"
	"github.com/PAIR-code/deliberate-lab/internal/service"
	"github.com/PAIR-code/deliberate-lab/internal/transport/rest/handler"
	"github.com/PAIR-code/deliberate-lab/internal/transport/rest/middleware"
	"github.com/PAIR-code/deliberate-lab/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService        *service.AuthService
	ExperimentService  *service.ExperimentService
	CohortService      *service.CohortService
	ParticipantService *service.ParticipantService
	TransferService    *service.TransferService
	AnswerService      *service.AnswerService
	ProgressCache      cache.ProgressCache
	WSHub              *ws.Hub
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	experimentHandler := handler.NewExperimentHandler(c.ExperimentService)
	cohortHandler := handler.NewCohortHandler(c.CohortService, c.ProgressCache)
	participantHandler := handler.NewParticipantHandler(c.ParticipantService, c.TransferService, c.AnswerService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.ParticipantService)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)
	rateLimiter := middleware.NewRateLimiter(100, 15*time.Minute)

	r.Use(corsMiddleware)
	r.Use(middleware.Metrics)
	r.Use(rateLimiter.Middleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	v1.HandleFunc("/experiments/{experimentId}/cohorts/{cohortId}/join", participantHandler.Join).Methods("POST", "OPTIONS")

	// WebSocket routes (token in query param)
	v1.HandleFunc("/ws/cohorts/{cohortId}/dashboard", wsHandler.DashboardWS).Methods("GET")
	v1.HandleFunc("/ws/cohorts/{cohortId}/participant", wsHandler.ParticipantWS).Methods("GET")

	// Health check and metrics
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Experimenter routes (JWT or API key)
	expRoutes := v1.NewRoute().Subrouter()
	expRoutes.Use(authMW.RequireExperimenter)

	expRoutes.HandleFunc("/experiments", experimentHandler.Create).Methods("POST", "OPTIONS")
	expRoutes.HandleFunc("/experiments", experimentHandler.List).Methods("GET", "OPTIONS")
	expRoutes.HandleFunc("/experiments/{experimentId}", experimentHandler.Get).Methods("GET", "OPTIONS")
	expRoutes.HandleFunc("/experiments/{experimentId}", experimentHandler.Update).Methods("PUT", "OPTIONS")
	expRoutes.HandleFunc("/experiments/{experimentId}", experimentHandler.Delete).Methods("DELETE", "OPTIONS")
	expRoutes.HandleFunc("/experiments/{experimentId}/stages", experimentHandler.GetStages).Methods("GET", "OPTIONS")
	expRoutes.HandleFunc("/experiments/{experimentId}/fork", experimentHandler.Fork).Methods("POST", "OPTIONS")
	expRoutes.HandleFunc("/experiments/{experimentId}/export", experimentHandler.Export).Methods("GET", "OPTIONS")
	expRoutes.HandleFunc("/experiments/{experimentId}/cohorts", cohortHandler.Create).Methods("POST", "OPTIONS")
	expRoutes.HandleFunc("/experiments/{experimentId}/cohorts", cohortHandler.List).Methods("GET", "OPTIONS")
	expRoutes.HandleFunc("/experiments/{experimentId}/cohorts/{cohortId}/lock", experimentHandler.LockCohort).Methods("POST", "OPTIONS")
	expRoutes.HandleFunc("/cohorts/{cohortId}", cohortHandler.Get).Methods("GET", "OPTIONS")
	expRoutes.HandleFunc("/cohorts/{cohortId}", cohortHandler.Update).Methods("PUT", "OPTIONS")
	expRoutes.HandleFunc("/cohorts/{cohortId}", cohortHandler.Delete).Methods("DELETE", "OPTIONS")
	expRoutes.HandleFunc("/cohorts/{cohortId}/progress", cohortHandler.Progress).Methods("GET", "OPTIONS")
	expRoutes.HandleFunc("/cohorts/{cohortId}/participants", participantHandler.ListByCohort).Methods("GET", "OPTIONS")
	expRoutes.HandleFunc("/participants/{privateId}/transfer", participantHandler.InitiateTransfer).Methods("POST", "OPTIONS")
	expRoutes.HandleFunc("/participants/{privateId}/check", participantHandler.SendCheck).Methods("POST", "OPTIONS")
	expRoutes.HandleFunc("/participants/{privateId}/boot", participantHandler.Boot).Methods("POST", "OPTIONS")
	expRoutes.HandleFunc("/apikeys", authHandler.CreateAPIKey).Methods("POST", "OPTIONS")
	expRoutes.HandleFunc("/apikeys", authHandler.ListAPIKeys).Methods("GET", "OPTIONS")
	expRoutes.HandleFunc("/apikeys/{keyId}", authHandler.RevokeAPIKey).Methods("DELETE", "OPTIONS")

	// Participant routes (participant JWT)
	partRoutes := v1.NewRoute().Subrouter()
	partRoutes.Use(authMW.RequireParticipant)

	partRoutes.HandleFunc("/participants/me", participantHandler.Me).Methods("GET", "OPTIONS")
	partRoutes.HandleFunc("/participants/me/tos", participantHandler.AcceptTOS).Methods("POST", "OPTIONS")
	partRoutes.HandleFunc("/participants/me/start", participantHandler.Start).Methods("POST", "OPTIONS")
	partRoutes.HandleFunc("/participants/me/profile", participantHandler.UpdateProfile).Methods("PUT", "OPTIONS")
	partRoutes.HandleFunc("/participants/me/advance", participantHandler.Advance).Methods("POST", "OPTIONS")
	partRoutes.HandleFunc("/participants/me/check/accept", participantHandler.AcceptCheck).Methods("POST", "OPTIONS")
	partRoutes.HandleFunc("/participants/me/transfer/accept", participantHandler.AcceptTransfer).Methods("POST", "OPTIONS")
	partRoutes.HandleFunc("/participants/me/transfer/reject", participantHandler.RejectTransfer).Methods("POST", "OPTIONS")
	partRoutes.HandleFunc("/stages/{stageId}/survey", participantHandler.SubmitSurvey).Methods("POST", "OPTIONS")
	partRoutes.HandleFunc("/stages/{stageId}/ranking", participantHandler.SubmitRanking).Methods("POST", "OPTIONS")
	partRoutes.HandleFunc("/stages/{stageId}/chip/offer", participantHandler.SubmitChipOffer).Methods("POST", "OPTIONS")
	partRoutes.HandleFunc("/stages/{stageId}/chat", participantHandler.PostChat).Methods("POST", "OPTIONS")
	partRoutes.HandleFunc("/stages/{stageId}/chat", participantHandler.GetChat).Methods("GET", "OPTIONS")
	partRoutes.HandleFunc("/stages/{stageId}/public", participantHandler.GetPublicData).Methods("GET", "OPTIONS")
	partRoutes.HandleFunc("/stages/{stageId}/roles/assign", participantHandler.AssignRoles).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization, X-Api-Key"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
