package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/PAIR-code/deliberate-lab/internal/cache"
	"github.com/PAIR-code/deliberate-lab/internal/events"
	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/repository"
)

// CohortService handles cohort lifecycle and the stage unlock gate
type CohortService struct {
	cohortRepo      repository.CohortRepo
	participantRepo repository.ParticipantRepo
	stageRepo       repository.StageRepo
	experimentRepo  repository.ExperimentRepo
	cohortCache     cache.CohortCache
	txn             repository.TxnRunner
	bus             *events.Bus
	broadcaster     Broadcaster
}

// NewCohortService creates a new cohort service
func NewCohortService(
	cohortRepo repository.CohortRepo,
	participantRepo repository.ParticipantRepo,
	stageRepo repository.StageRepo,
	experimentRepo repository.ExperimentRepo,
	cohortCache cache.CohortCache,
	txn repository.TxnRunner,
	bus *events.Bus,
) *CohortService {
	return &CohortService{
		cohortRepo:      cohortRepo,
		participantRepo: participantRepo,
		stageRepo:       stageRepo,
		experimentRepo:  experimentRepo,
		cohortCache:     cohortCache,
		txn:             txn,
		bus:             bus,
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *CohortService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// CreateCohort creates a cohort for an experiment and runs the unlock gate
// for the first stage, so stages with no minimum open immediately.
func (s *CohortService) CreateCohort(ctx context.Context, experimentID, name string, participants model.CohortParticipantConfig) (*model.CohortConfig, error) {
	experiment, err := s.experimentRepo.GetByID(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	if experiment == nil {
		return nil, fmt.Errorf("experiment not found")
	}

	unlockMap := make(map[string]bool, len(experiment.StageIDs))
	for _, stageID := range experiment.StageIDs {
		unlockMap[stageID] = false
	}

	cohort := &model.CohortConfig{
		ID:             "c_" + uuid.New().String()[:8],
		ExperimentID:   experimentID,
		Name:           name,
		StageUnlockMap: unlockMap,
		Participants:   participants,
		VariableMap:    make(map[string]string),
	}

	if err := s.cohortRepo.Create(ctx, cohort); err != nil {
		return nil, fmt.Errorf("failed to create cohort: %w", err)
	}

	if err := s.cacheMeta(ctx, cohort); err != nil {
		return nil, fmt.Errorf("failed to cache cohort: %w", err)
	}

	if len(experiment.StageIDs) > 0 {
		if err := s.UpdateStageUnlocked(ctx, experimentID, cohort.ID, experiment.StageIDs[0], ""); err != nil {
			return nil, err
		}
	}

	return s.cohortRepo.GetByID(ctx, cohort.ID)
}

// GetCohort retrieves a cohort by ID
func (s *CohortService) GetCohort(ctx context.Context, cohortID string) (*model.CohortConfig, error) {
	return s.cohortRepo.GetByID(ctx, cohortID)
}

// ListCohorts returns all cohorts for an experiment
func (s *CohortService) ListCohorts(ctx context.Context, experimentID string) ([]*model.CohortConfig, error) {
	return s.cohortRepo.GetByExperimentID(ctx, experimentID)
}

// UpdateCohort updates name, description and participant bounds. The unlock
// map is owned by the gate and is never overwritten here.
func (s *CohortService) UpdateCohort(ctx context.Context, cohortID, name, description string, participants model.CohortParticipantConfig) (*model.CohortConfig, error) {
	cohort, err := s.cohortRepo.GetByID(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	if cohort == nil {
		return nil, nil
	}

	cohort.Name = name
	cohort.Description = description
	cohort.Participants = participants

	if err := s.cohortRepo.Update(ctx, cohort); err != nil {
		return nil, err
	}
	if err := s.cacheMeta(ctx, cohort); err != nil {
		return nil, err
	}
	return cohort, nil
}

// DeleteCohort removes a cohort, its cache entries and its connections
func (s *CohortService) DeleteCohort(ctx context.Context, cohortID string) error {
	if err := s.cohortRepo.Delete(ctx, cohortID); err != nil {
		return err
	}
	if err := s.cohortCache.Delete(ctx, cohortID); err != nil {
		return err
	}
	if s.broadcaster != nil {
		s.broadcaster.DisconnectCohort(cohortID)
	}
	return nil
}

// UpdateStageUnlocked runs the cohort unlock gate for one stage inside its
// own transaction. The active set is cohort members whose status is
// IN_PROGRESS, COMPLETED or ATTENTION_CHECK, plus participants pending
// transfer into the cohort. The gate unlocks when the member count meets
// the stage minimum and the readiness predicate holds. callerID, when
// non-empty, is treated as trivially ready: the caller has just stamped its
// own ready timestamp and may not see that write reflected in the query.
// Re-invocation after unlock is a no-op.
func (s *CohortService) UpdateStageUnlocked(ctx context.Context, experimentID, cohortID, stageID, callerID string) error {
	unlocked := false

	err := s.txn.WithTransaction(ctx, func(txCtx context.Context) error {
		cohort, err := s.cohortRepo.GetByID(txCtx, cohortID)
		if err != nil {
			return err
		}
		if cohort == nil {
			return nil
		}
		if cohort.StageUnlockMap[stageID] {
			return nil
		}

		stage, err := s.stageRepo.GetByID(txCtx, experimentID, stageID)
		if err != nil {
			return err
		}
		if stage == nil {
			return nil
		}

		members, err := s.participantRepo.GetByCohortID(txCtx, cohortID)
		if err != nil {
			return err
		}
		incoming, err := s.participantRepo.GetPendingTransfersTo(txCtx, cohortID)
		if err != nil {
			return err
		}

		var gated []*model.ParticipantProfile
		for _, p := range members {
			if p.IsActive() {
				gated = append(gated, p)
			}
		}
		gated = append(gated, incoming...)

		if len(gated) < stage.Progress.MinParticipants {
			return nil
		}

		readyCount := 0
		allReady := true
		for _, p := range gated {
			if p.PrivateID == callerID || p.ReadyForStage(stageID) {
				readyCount++
			} else {
				allReady = false
			}
		}

		if stage.Progress.WaitForAllParticipants {
			if !allReady {
				return nil
			}
		} else if readyCount < stage.Progress.MinParticipants {
			return nil
		}

		if err := s.cohortRepo.SetStageUnlocked(txCtx, cohortID, stageID); err != nil {
			return err
		}
		unlocked = true
		return nil
	})
	if err != nil {
		return err
	}
	if !unlocked {
		return nil
	}

	stagesUnlocked.Inc()
	log.Printf("Stage %s unlocked for cohort %s", stageID, cohortID)

	// Mirror and notify outside the transaction; both are safe to repeat.
	if err := s.cohortCache.SetStageUnlocked(ctx, cohortID, stageID); err != nil {
		log.Printf("Failed to mirror unlock for cohort %s: %v", cohortID, err)
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToCohort(cohortID, "stage_unlocked", map[string]string{
			"stageId": stageID,
		})
		s.broadcaster.BroadcastToDashboard(cohortID, "stage_unlocked", map[string]string{
			"stageId": stageID,
		})
	}

	s.wakeParkedAgents(ctx, cohortID, stageID)
	return nil
}

// wakeParkedAgents re-announces agents sitting on a freshly unlocked stage.
// The agent driver holds every action until the stage is unlocked, and the
// bus otherwise only carries participant writes, so without this nudge a
// gated agent would never run.
func (s *CohortService) wakeParkedAgents(ctx context.Context, cohortID, stageID string) {
	if s.bus == nil {
		return
	}
	members, err := s.participantRepo.GetByCohortID(ctx, cohortID)
	if err != nil {
		log.Printf("Failed to load cohort %s for agent wake-up: %v", cohortID, err)
		return
	}
	for _, p := range members {
		if p.IsAgent() && p.CurrentStatus == model.StatusInProgress && p.CurrentStageID == stageID {
			s.bus.Publish(events.ParticipantEvent{Before: nil, After: p})
		}
	}
}

// IsStageUnlocked answers from the Redis mirror, falling back to Mongo
func (s *CohortService) IsStageUnlocked(ctx context.Context, cohortID, stageID string) (bool, error) {
	unlocked, err := s.cohortCache.IsStageUnlocked(ctx, cohortID, stageID)
	if err == nil && unlocked {
		return true, nil
	}

	cohort, err := s.cohortRepo.GetByID(ctx, cohortID)
	if err != nil {
		return false, err
	}
	if cohort == nil {
		return false, nil
	}
	return cohort.IsStageUnlocked(stageID), nil
}

func (s *CohortService) cacheMeta(ctx context.Context, cohort *model.CohortConfig) error {
	return s.cohortCache.SetMeta(ctx, cohort.ID, &model.CohortMeta{
		ExperimentID:    cohort.ExperimentID,
		Name:            cohort.Name,
		StageUnlockMap:  cohort.StageUnlockMap,
		MaxParticipants: cohort.Participants.MaxParticipants,
		CreatedAt:       cohort.CreatedAt,
	})
}
