package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/PAIR-code/deliberate-lab/internal/cache"
	"github.com/PAIR-code/deliberate-lab/internal/events"
	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/repository"
)

var (
	ErrNoPendingTransfer = errors.New("participant has no pending transfer")
	ErrTransferConflict  = errors.New("participant already has a pending transfer")
)

// migrationFn copies one participant's records for a single stage from the
// source cohort's public data into the destination's. Both documents may be
// nil when no one has produced data for the stage yet.
type migrationFn func(p *model.ParticipantProfile, src, dst *model.StagePublicData)

// TransferService moves participants between cohorts. Stage kinds with a
// registered migration carry the participant's public records along; other
// kinds keep their data in the source cohort.
type TransferService struct {
	participantRepo repository.ParticipantRepo
	experimentRepo  repository.ExperimentRepo
	cohortRepo      repository.CohortRepo
	stageRepo       repository.StageRepo
	publicDataRepo  repository.PublicDataRepo
	cohortCache     cache.CohortCache
	progressCache   cache.ProgressCache
	cohortSvc       *CohortService
	txn             repository.TxnRunner
	bus             *events.Bus
	broadcaster     Broadcaster

	migrations map[model.StageKind]migrationFn
}

// NewTransferService creates a new transfer service
func NewTransferService(
	participantRepo repository.ParticipantRepo,
	experimentRepo repository.ExperimentRepo,
	cohortRepo repository.CohortRepo,
	stageRepo repository.StageRepo,
	publicDataRepo repository.PublicDataRepo,
	cohortCache cache.CohortCache,
	progressCache cache.ProgressCache,
	cohortSvc *CohortService,
	txn repository.TxnRunner,
	bus *events.Bus,
) *TransferService {
	s := &TransferService{
		participantRepo: participantRepo,
		experimentRepo:  experimentRepo,
		cohortRepo:      cohortRepo,
		stageRepo:       stageRepo,
		publicDataRepo:  publicDataRepo,
		cohortCache:     cohortCache,
		progressCache:   progressCache,
		cohortSvc:       cohortSvc,
		txn:             txn,
		bus:             bus,
	}
	s.migrations = map[model.StageKind]migrationFn{
		model.StageKindSurvey: migrateSurvey,
		model.StageKindChip:   migrateChip,
		model.StageKindRole:   migrateRole,
	}
	return s
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *TransferService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// InitiateTransfer marks a participant for transfer into another cohort of
// the same experiment. The participant stays in the source cohort until
// they accept; with TRANSFER_PENDING status they no longer hold the source
// cohort's gates but do count toward the destination's.
func (s *TransferService) InitiateTransfer(ctx context.Context, privateID, destCohortID string) (*model.ParticipantProfile, error) {
	participant, err := s.participantRepo.GetByPrivateID(ctx, privateID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, nil
	}
	if participant.TransferCohortID != "" {
		return nil, ErrTransferConflict
	}

	dest, err := s.cohortRepo.GetByID(ctx, destCohortID)
	if err != nil {
		return nil, err
	}
	if dest == nil {
		return nil, fmt.Errorf("destination cohort not found")
	}
	if dest.ExperimentID != participant.ExperimentID {
		return nil, fmt.Errorf("destination cohort belongs to a different experiment")
	}

	snapshot := *participant
	participant.TransferCohortID = destCohortID
	participant.CurrentStatus = model.StatusTransferPending
	if err := s.participantRepo.Update(ctx, participant); err != nil {
		return nil, err
	}

	s.publish(&snapshot, participant)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToParticipant(privateID, "transfer_offered", map[string]string{
			"cohortId": destCohortID,
		})
	}
	return participant, nil
}

// AcceptTransfer completes a pending transfer. Inside one transaction the
// participant switches cohorts, every migration-kind stage they touched has
// their public records copied into the destination cohort's documents, and
// a participant parked on a transfer stage advances off it. The source
// cohort keeps its copies; history there stays readable. Accepting with no
// transfer pending returns the participant unchanged, so retries are
// harmless.
func (s *TransferService) AcceptTransfer(ctx context.Context, privateID string) (*model.ParticipantProfile, error) {
	var before, after *model.ParticipantProfile
	var experiment *model.Experiment
	var sourceCohortID string
	var noop bool

	err := s.txn.WithTransaction(ctx, func(txCtx context.Context) error {
		participant, err := s.participantRepo.GetByPrivateID(txCtx, privateID)
		if err != nil {
			return err
		}
		if participant == nil {
			return fmt.Errorf("participant not found")
		}
		if participant.CurrentStatus != model.StatusTransferPending || participant.TransferCohortID == "" {
			after = participant
			noop = true
			return nil
		}

		experiment, err = s.experimentRepo.GetByID(txCtx, participant.ExperimentID)
		if err != nil {
			return err
		}
		if experiment == nil {
			return fmt.Errorf("experiment not found")
		}

		snapshot := *participant
		before = &snapshot
		sourceCohortID = participant.CurrentCohortID
		destCohortID := participant.TransferCohortID

		if err := s.migratePublicData(txCtx, participant, destCohortID); err != nil {
			return err
		}

		participant.CurrentCohortID = destCohortID
		participant.TransferCohortID = ""
		participant.CurrentStatus = model.StatusInProgress
		participant.Timestamps.CohortTransfers[destCohortID] = model.ToUnifiedTimestamp(time.Now())

		// A transfer stage is done the moment the transfer completes; the
		// participant keeps moving in the destination cohort.
		if participant.CurrentStageID != "" {
			stage, err := s.stageRepo.GetByID(txCtx, participant.ExperimentID, participant.CurrentStageID)
			if err != nil {
				return err
			}
			if stage != nil && stage.Kind == model.StageKindTransfer {
				if _, err := AdvanceToNextStage(participant, experiment.StageIDs); err != nil {
					return err
				}
			}
		}

		if err := s.participantRepo.Update(txCtx, participant); err != nil {
			return err
		}
		after = participant
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noop {
		return after, nil
	}
	transfersAccepted.Inc()

	if err := s.progressCache.Remove(ctx, sourceCohortID, after.PublicID); err != nil {
		log.Printf("Failed to remove %s from source progress board: %v", after.PublicID, err)
	}
	s.seedProgressBoard(ctx, experiment, after)
	if after.CurrentStageID != "" {
		if err := s.cohortSvc.UpdateStageUnlocked(ctx, after.ExperimentID, after.CurrentCohortID, after.CurrentStageID, privateID); err != nil {
			return nil, err
		}
	}

	s.publish(before, after)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToDashboard(after.CurrentCohortID, "transfer_accepted", map[string]string{
			"publicId": after.PublicID,
		})
	}
	return after, nil
}

// RejectTransfer declines a pending transfer. The participant drops out of
// the run with TRANSFER_TIMEOUT; declining is terminal, same as expiring.
func (s *TransferService) RejectTransfer(ctx context.Context, privateID string) (*model.ParticipantProfile, error) {
	participant, err := s.participantRepo.GetByPrivateID(ctx, privateID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, nil
	}
	if participant.CurrentStatus != model.StatusTransferPending {
		return nil, ErrNoPendingTransfer
	}

	snapshot := *participant
	destCohortID := participant.TransferCohortID
	participant.TransferCohortID = ""
	participant.CurrentStatus = model.StatusTransferTimeout
	if err := s.participantRepo.Update(ctx, participant); err != nil {
		return nil, err
	}

	s.publish(&snapshot, participant)

	// The destination cohort counted this pending transfer; re-check its gate.
	if destCohortID != "" && participant.CurrentStageID != "" {
		if err := s.cohortSvc.UpdateStageUnlocked(ctx, participant.ExperimentID, destCohortID, participant.CurrentStageID, ""); err != nil {
			log.Printf("Gate re-check after transfer reject failed: %v", err)
		}
	}
	return participant, nil
}

// migratePublicData copies the participant's entries for every
// migration-kind stage from the source cohort's public data into the
// destination's. Runs inside the accept transaction.
func (s *TransferService) migratePublicData(ctx context.Context, p *model.ParticipantProfile, destCohortID string) error {
	stages, err := s.stageRepo.GetByExperimentID(ctx, p.ExperimentID)
	if err != nil {
		return err
	}

	for _, stage := range stages {
		if !model.StageKindRequiresTransferMigration[stage.Kind] {
			continue
		}
		migrate, ok := s.migrations[stage.Kind]
		if !ok {
			continue
		}

		src, err := s.publicDataRepo.GetByCohortAndStage(ctx, p.CurrentCohortID, stage.ID)
		if err != nil {
			return err
		}
		if src == nil {
			continue
		}

		dst, err := s.publicDataRepo.GetByCohortAndStage(ctx, destCohortID, stage.ID)
		if err != nil {
			return err
		}
		if dst == nil {
			dst = &model.StagePublicData{
				ExperimentID: p.ExperimentID,
				CohortID:     destCohortID,
				StageID:      stage.ID,
				Kind:         stage.Kind,
			}
		}

		migrate(p, src, dst)
		if err := s.publicDataRepo.Upsert(ctx, dst); err != nil {
			return fmt.Errorf("failed to migrate %s data for stage %s: %w", stage.Kind, stage.ID, err)
		}
	}
	return nil
}

func migrateSurvey(p *model.ParticipantProfile, src, dst *model.StagePublicData) {
	answers, ok := src.SurveyAnswers[p.PublicID]
	if !ok {
		return
	}
	if dst.SurveyAnswers == nil {
		dst.SurveyAnswers = make(map[string]map[string]model.SurveyAnswer)
	}
	dst.SurveyAnswers[p.PublicID] = answers
}

func migrateChip(p *model.ParticipantProfile, src, dst *model.StagePublicData) {
	holdings, ok := src.ChipHoldings[p.PublicID]
	if !ok {
		return
	}
	if dst.ChipHoldings == nil {
		dst.ChipHoldings = make(map[string]map[string]int)
	}
	dst.ChipHoldings[p.PublicID] = holdings
}

func migrateRole(p *model.ParticipantProfile, src, dst *model.StagePublicData) {
	role, ok := src.RoleAssignments[p.PublicID]
	if !ok {
		return
	}
	if dst.RoleAssignments == nil {
		dst.RoleAssignments = make(map[string]string)
	}
	dst.RoleAssignments[p.PublicID] = role
}

// seedProgressBoard puts the freshly transferred participant on their new
// cohort's progress board.
func (s *TransferService) seedProgressBoard(ctx context.Context, experiment *model.Experiment, p *model.ParticipantProfile) {
	index := len(experiment.StageIDs)
	if p.CurrentStageID != "" {
		index = experiment.StageIndex(p.CurrentStageID)
		if index < 0 {
			return
		}
	}
	if err := s.progressCache.SetStageIndex(ctx, p.CurrentCohortID, p.PublicID, index); err != nil {
		log.Printf("Failed to seed progress for %s: %v", p.PublicID, err)
	}
}

func (s *TransferService) publish(before, after *model.ParticipantProfile) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.ParticipantEvent{Before: before, After: after})
}
