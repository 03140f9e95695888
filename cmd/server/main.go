package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/PAIR-code/deliberate-lab/config"
	"github.com/PAIR-code/deliberate-lab/internal/cache"
	"github.com/PAIR-code/deliberate-lab/internal/events"
	"github.com/PAIR-code/deliberate-lab/internal/repository"
	"github.com/PAIR-code/deliberate-lab/internal/service"
	"github.com/PAIR-code/deliberate-lab/internal/transport/rest"
	"github.com/PAIR-code/deliberate-lab/internal/transport/ws"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	cfg := config.Load()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDB)

	// Redis connection
	redisAddr := cfg.RedisAddr
	if len(redisAddr) > 8 && redisAddr[:8] == "redis://" {
		redisAddr = redisAddr[8:]
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer rdb.Close()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// WebSocket hub and participant event bus
	wsHub := ws.NewHub()
	bus := events.NewBus(256)
	defer bus.Close()
	log.Println("WebSocket hub started")

	// Repositories
	experimentRepo := repository.NewExperimentRepo(db)
	stageRepo := repository.NewStageRepo(db)
	cohortRepo := repository.NewCohortRepo(db)
	participantRepo := repository.NewParticipantRepo(db)
	answerRepo := repository.NewAnswerRepo(db)
	publicDataRepo := repository.NewPublicDataRepo(db)
	chatRepo := repository.NewChatRepo(db)
	apiKeyRepo := repository.NewAPIKeyRepo(db)
	txn := repository.NewTxnRunner(mongoClient)

	// Caches
	cohortCache := cache.NewCohortCache(rdb)
	presenceCache := cache.NewPresenceCache(rdb)
	progressCache := cache.NewProgressCache(rdb)

	// Services
	authSvc := service.NewAuthService(apiKeyRepo)
	variableSvc := service.NewVariableService(participantRepo)
	experimentSvc := service.NewExperimentService(experimentRepo, stageRepo, cohortRepo, participantRepo, answerRepo, publicDataRepo, chatRepo, variableSvc, txn)
	cohortSvc := service.NewCohortService(cohortRepo, participantRepo, stageRepo, experimentRepo, cohortCache, txn, bus)
	participantSvc := service.NewParticipantService(participantRepo, experimentRepo, stageRepo, publicDataRepo, cohortCache, presenceCache, progressCache, cohortSvc, authSvc, variableSvc, txn, bus)
	transferSvc := service.NewTransferService(participantRepo, experimentRepo, cohortRepo, stageRepo, publicDataRepo, cohortCache, progressCache, cohortSvc, txn, bus)
	answerSvc := service.NewAnswerService(answerRepo, publicDataRepo, chatRepo, participantRepo, stageRepo, txn)
	agentSvc := service.NewAgentService(participantRepo, stageRepo, cohortCache, cohortSvc, participantSvc, answerSvc, transferSvc)

	// Inject broadcaster (wsHub implements service.Broadcaster)
	cohortSvc.SetBroadcaster(wsHub)
	participantSvc.SetBroadcaster(wsHub)
	transferSvc.SetBroadcaster(wsHub)
	answerSvc.SetBroadcaster(wsHub)

	// Background workers
	agentSvc.Start(bus)
	defer agentSvc.Stop()

	sweeper := service.NewSweeper(participantRepo, stageRepo, participantSvc, cohortSvc, cfg.AttentionGracePeriod)
	sweeper.Start()
	defer sweeper.Stop()

	// Create router with container
	container := &rest.Container{
		AuthService:        authSvc,
		ExperimentService:  experimentSvc,
		CohortService:      cohortSvc,
		ParticipantService: participantSvc,
		TransferService:    transferSvc,
		AnswerService:      answerSvc,
		ProgressCache:      progressCache,
		WSHub:              wsHub,
	}
	router := rest.NewRouter(container)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.HTTPPort)
		log.Println("Endpoints:")
		log.Println("  POST /v1/auth/login")
		log.Println("  POST/GET /v1/experiments")
		log.Println("  POST/GET /v1/experiments/{experimentId}/cohorts")
		log.Println("  POST /v1/experiments/{experimentId}/cohorts/{cohortId}/join")
		log.Println("  POST /v1/participants/me/advance")
		log.Println("  GET  /v1/cohorts/{cohortId}/progress")
		log.Println("  WS  /v1/ws/cohorts/{cohortId}/dashboard")
		log.Println("  WS  /v1/ws/cohorts/{cohortId}/participant")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
