package service

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/repository"
)

// Sweeper periodically times out stuck participants: unanswered attention
// checks and transfers parked past their stage's deadline. Each timeout
// re-runs the unlock gate because the participant stops counting toward it.
type Sweeper struct {
	participantRepo repository.ParticipantRepo
	stageRepo       repository.StageRepo
	participantSvc  *ParticipantService
	cohortSvc       *CohortService
	gracePeriod     time.Duration
	cron            *cron.Cron
}

// NewSweeper creates a sweeper with the given attention-check grace period
func NewSweeper(
	participantRepo repository.ParticipantRepo,
	stageRepo repository.StageRepo,
	participantSvc *ParticipantService,
	cohortSvc *CohortService,
	gracePeriod time.Duration,
) *Sweeper {
	return &Sweeper{
		participantRepo: participantRepo,
		stageRepo:       stageRepo,
		participantSvc:  participantSvc,
		cohortSvc:       cohortSvc,
		gracePeriod:     gracePeriod,
	}
}

// Start schedules the sweep every minute
func (s *Sweeper) Start() {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@every 1m", s.sweep); err != nil {
		log.Printf("Failed to schedule sweeper: %v", err)
		return
	}
	s.cron.Start()
	log.Println("Timeout sweeper started")
}

// Stop halts scheduling and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s.sweepAttentionChecks(ctx)
	s.sweepTransfers(ctx)
}

func (s *Sweeper) sweepAttentionChecks(ctx context.Context) {
	pending, err := s.participantRepo.GetByStatus(ctx, model.StatusAttentionCheck)
	if err != nil {
		log.Printf("Attention sweep failed: %v", err)
		return
	}
	now := time.Now()
	for _, p := range pending {
		if p.AttentionCheckSentAt == nil || now.Sub(*p.AttentionCheckSentAt) < s.gracePeriod {
			continue
		}
		if _, err := s.participantSvc.UpdateFailure(ctx, p.PrivateID, model.StatusAttentionTimeout); err != nil {
			log.Printf("Failed to time out attention check for %s: %v", p.PublicID, err)
			continue
		}
		log.Printf("Participant %s timed out on attention check", p.PublicID)
		s.recheckGate(ctx, p, p.CurrentCohortID)
	}
}

// sweepTransfers expires TRANSFER_PENDING participants parked in a transfer
// stage longer than the stage's deadline. Stages without a deadline wait
// indefinitely.
func (s *Sweeper) sweepTransfers(ctx context.Context) {
	pending, err := s.participantRepo.GetByStatus(ctx, model.StatusTransferPending)
	if err != nil {
		log.Printf("Transfer sweep failed: %v", err)
		return
	}
	now := time.Now()
	for _, p := range pending {
		if p.CurrentStageID == "" {
			continue
		}
		stage, err := s.stageRepo.GetByID(ctx, p.ExperimentID, p.CurrentStageID)
		if err != nil || stage == nil || stage.Kind != model.StageKindTransfer {
			continue
		}
		if stage.Transfer == nil || stage.Transfer.TimeoutSeconds <= 0 {
			continue
		}
		ready, ok := p.Timestamps.ReadyStages[p.CurrentStageID]
		if !ok {
			continue
		}
		deadline := ready.Time().Add(time.Duration(stage.Transfer.TimeoutSeconds) * time.Second)
		if now.Before(deadline) {
			continue
		}
		destCohortID := p.TransferCohortID
		if _, err := s.participantSvc.UpdateFailure(ctx, p.PrivateID, model.StatusTransferTimeout); err != nil {
			log.Printf("Failed to time out transfer for %s: %v", p.PublicID, err)
			continue
		}
		log.Printf("Participant %s timed out waiting for transfer", p.PublicID)
		s.recheckGate(ctx, p, p.CurrentCohortID)
		// The destination cohort counted this pending transfer.
		s.recheckGate(ctx, p, destCohortID)
	}
}

func (s *Sweeper) recheckGate(ctx context.Context, p *model.ParticipantProfile, cohortID string) {
	if p.CurrentStageID == "" || cohortID == "" {
		return
	}
	if err := s.cohortSvc.UpdateStageUnlocked(ctx, p.ExperimentID, cohortID, p.CurrentStageID, ""); err != nil {
		log.Printf("Gate re-check after timeout failed for %s: %v", p.PublicID, err)
	}
}
