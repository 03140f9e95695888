package service

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/PAIR-code/deliberate-lab/internal/cache"
	"github.com/PAIR-code/deliberate-lab/internal/events"
	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/repository"
)

// transferRevalidateDelay is how long a reconnecting participant's pending
// transfer sits before being re-validated against current cohort state.
const transferRevalidateDelay = 10 * time.Second

// ParticipantService handles participant lifecycle: joining, progression,
// attention checks, booting and status changes.
type ParticipantService struct {
	participantRepo repository.ParticipantRepo
	experimentRepo  repository.ExperimentRepo
	stageRepo       repository.StageRepo
	publicDataRepo  repository.PublicDataRepo
	cohortCache     cache.CohortCache
	presenceCache   cache.PresenceCache
	progressCache   cache.ProgressCache
	cohortSvc       *CohortService
	authSvc         *AuthService
	variableSvc     *VariableService
	txn             repository.TxnRunner
	bus             *events.Bus
	broadcaster     Broadcaster
}

// NewParticipantService creates a new participant service
func NewParticipantService(
	participantRepo repository.ParticipantRepo,
	experimentRepo repository.ExperimentRepo,
	stageRepo repository.StageRepo,
	publicDataRepo repository.PublicDataRepo,
	cohortCache cache.CohortCache,
	presenceCache cache.PresenceCache,
	progressCache cache.ProgressCache,
	cohortSvc *CohortService,
	authSvc *AuthService,
	variableSvc *VariableService,
	txn repository.TxnRunner,
	bus *events.Bus,
) *ParticipantService {
	return &ParticipantService{
		participantRepo: participantRepo,
		experimentRepo:  experimentRepo,
		stageRepo:       stageRepo,
		publicDataRepo:  publicDataRepo,
		cohortCache:     cohortCache,
		presenceCache:   presenceCache,
		progressCache:   progressCache,
		cohortSvc:       cohortSvc,
		authSvc:         authSvc,
		variableSvc:     variableSvc,
		txn:             txn,
		bus:             bus,
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *ParticipantService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// CreateParticipantResponse is returned when a participant joins a cohort
type CreateParticipantResponse struct {
	Participant *model.ParticipantProfile `json:"participant"`
	Token       string                    `json:"token"`
}

// CreateParticipant joins a participant (human, or agent when agentConfig
// is non-nil) to a cohort. The capacity check is best-effort: two
// simultaneous joins can both pass it. A short random delay spreads
// concurrent arrivals; the max-participant bound stays advisory rather
// than paying for a serialized join path.
func (s *ParticipantService) CreateParticipant(ctx context.Context, experimentID, cohortID string, agentConfig *model.AgentConfig) (*CreateParticipantResponse, error) {
	time.Sleep(time.Duration(rand.Intn(200)+50) * time.Millisecond)

	experiment, err := s.experimentRepo.GetByID(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	if experiment == nil {
		return nil, fmt.Errorf("experiment not found")
	}
	if experiment.CohortLockMap[cohortID] {
		return nil, fmt.Errorf("cohort is locked to new participants")
	}

	meta, err := s.cohortCache.GetMeta(ctx, cohortID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cohort: %w", err)
	}
	if meta == nil {
		cohort, err := s.cohortSvc.GetCohort(ctx, cohortID)
		if err != nil {
			return nil, err
		}
		if cohort == nil {
			return nil, fmt.Errorf("cohort not found")
		}
		meta = &model.CohortMeta{
			ExperimentID:    cohort.ExperimentID,
			Name:            cohort.Name,
			StageUnlockMap:  cohort.StageUnlockMap,
			MaxParticipants: cohort.Participants.MaxParticipants,
		}
	}
	if meta.ExperimentID != experimentID {
		return nil, fmt.Errorf("cohort does not belong to experiment")
	}

	if meta.MaxParticipants > 0 {
		count, err := s.participantRepo.CountByCohortID(ctx, cohortID)
		if err != nil {
			return nil, err
		}
		if count >= int64(meta.MaxParticipants) {
			return nil, fmt.Errorf("cohort is full")
		}
	}

	privateID := "p_" + uuid.New().String()[:13]
	publicID := "participant-" + uuid.New().String()[:8]

	variables, err := s.variableSvc.GenerateVariablesForScope(ctx, experiment.VariableConfigs, VariableContext{
		Scope:         model.ScopeParticipant,
		ExperimentID:  experimentID,
		CohortID:      cohortID,
		ParticipantID: privateID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve variables: %w", err)
	}

	participant := &model.ParticipantProfile{
		PrivateID:       privateID,
		PublicID:        publicID,
		ExperimentID:    experimentID,
		CurrentCohortID: cohortID,
		CurrentStatus:   model.StatusInProgress,
		Timestamps:      model.NewProgressTimestamps(),
		AgentConfig:     agentConfig,
		VariableMap:     variables,
		JoinedAt:        time.Now(),
	}
	if len(experiment.StageIDs) > 0 {
		first := experiment.StageIDs[0]
		participant.CurrentStageID = first
		participant.Timestamps.ReadyStages[first] = model.ToUnifiedTimestamp(participant.JoinedAt)
	}

	if err := s.participantRepo.Create(ctx, participant); err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}
	participantsCreated.Inc()

	if err := s.progressCache.SetStageIndex(ctx, cohortID, publicID, 0); err != nil {
		log.Printf("Failed to init progress for %s: %v", publicID, err)
	}

	token, err := s.authSvc.GenerateParticipantToken(experimentID, cohortID, privateID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	if participant.CurrentStageID != "" {
		if err := s.cohortSvc.UpdateStageUnlocked(ctx, experimentID, cohortID, participant.CurrentStageID, privateID); err != nil {
			return nil, err
		}
	}

	s.publish(nil, participant)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToDashboard(cohortID, "participant_joined", map[string]string{
			"publicId": publicID,
		})
	}

	return &CreateParticipantResponse{Participant: participant, Token: token}, nil
}

// GetParticipant retrieves a participant by private ID
func (s *ParticipantService) GetParticipant(ctx context.Context, privateID string) (*model.ParticipantProfile, error) {
	return s.participantRepo.GetByPrivateID(ctx, privateID)
}

// ListByCohort returns every participant currently in a cohort
func (s *ParticipantService) ListByCohort(ctx context.Context, cohortID string) ([]*model.ParticipantProfile, error) {
	return s.participantRepo.GetByCohortID(ctx, cohortID)
}

// AcceptTOS stamps the terms-of-service acceptance time
func (s *ParticipantService) AcceptTOS(ctx context.Context, privateID string) (*model.ParticipantProfile, error) {
	return s.mutate(ctx, privateID, func(p *model.ParticipantProfile) error {
		now := model.ToUnifiedTimestamp(time.Now())
		p.Timestamps.AcceptedTOS = &now
		return nil
	})
}

// AcceptExperimentStart stamps the experiment start time
func (s *ParticipantService) AcceptExperimentStart(ctx context.Context, privateID string) (*model.ParticipantProfile, error) {
	return s.mutate(ctx, privateID, func(p *model.ParticipantProfile) error {
		now := model.ToUnifiedTimestamp(time.Now())
		p.Timestamps.StartExperiment = &now
		return nil
	})
}

// UpdateProfile sets the participant's display identity
func (s *ParticipantService) UpdateProfile(ctx context.Context, privateID, name, avatar, pronouns string) (*model.ParticipantProfile, error) {
	return s.mutate(ctx, privateID, func(p *model.ParticipantProfile) error {
		p.Name = name
		p.Avatar = avatar
		p.Pronouns = pronouns
		return nil
	})
}

// UpdateToNextStage completes the current stage and advances the pointer,
// then runs the unlock gate for the stage just entered. Runs inside a
// transaction so a concurrent gate check sees either the old or the fully
// advanced profile.
func (s *ParticipantService) UpdateToNextStage(ctx context.Context, privateID string) (*model.ParticipantProfile, error) {
	var before, after *model.ParticipantProfile
	var result AdvanceResult

	err := s.txn.WithTransaction(ctx, func(txCtx context.Context) error {
		participant, err := s.participantRepo.GetByPrivateID(txCtx, privateID)
		if err != nil {
			return err
		}
		if participant == nil {
			return fmt.Errorf("participant not found")
		}
		experiment, err := s.experimentRepo.GetByID(txCtx, participant.ExperimentID)
		if err != nil {
			return err
		}
		if experiment == nil {
			return fmt.Errorf("experiment not found")
		}

		snapshot := *participant
		before = &snapshot

		result, err = AdvanceToNextStage(participant, experiment.StageIDs)
		if err != nil {
			return err
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

	if result.NextStageID != "" {
		if err := s.cohortSvc.UpdateStageUnlocked(ctx, after.ExperimentID, after.CurrentCohortID, result.NextStageID, privateID); err != nil {
			return nil, err
		}
	}

	s.updateProgressBoard(ctx, after)
	s.publish(before, after)
	return after, nil
}

// SendCheck puts a participant into ATTENTION_CHECK and notifies them
func (s *ParticipantService) SendCheck(ctx context.Context, privateID string) (*model.ParticipantProfile, error) {
	participant, err := s.mutate(ctx, privateID, func(p *model.ParticipantProfile) error {
		now := time.Now()
		p.CurrentStatus = model.StatusAttentionCheck
		p.AttentionCheckSentAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if participant != nil && s.broadcaster != nil {
		s.broadcaster.BroadcastToParticipant(privateID, "attention_check", map[string]string{})
	}
	return participant, nil
}

// AcceptCheck acknowledges a pending attention check
func (s *ParticipantService) AcceptCheck(ctx context.Context, privateID string) (*model.ParticipantProfile, error) {
	return s.mutate(ctx, privateID, func(p *model.ParticipantProfile) error {
		if p.CurrentStatus != model.StatusAttentionCheck {
			return nil
		}
		p.CurrentStatus = model.StatusInProgress
		p.AttentionCheckSentAt = nil
		return nil
	})
}

// BootParticipant removes a participant from the run
func (s *ParticipantService) BootParticipant(ctx context.Context, privateID string) (*model.ParticipantProfile, error) {
	participant, err := s.mutate(ctx, privateID, func(p *model.ParticipantProfile) error {
		p.CurrentStatus = model.StatusBootedOut
		return nil
	})
	if err != nil || participant == nil {
		return participant, err
	}

	// A booted participant no longer holds the gate; re-check their stage.
	if participant.CurrentStageID != "" {
		if err := s.cohortSvc.UpdateStageUnlocked(ctx, participant.ExperimentID, participant.CurrentCohortID, participant.CurrentStageID, ""); err != nil {
			log.Printf("Gate re-check after boot failed: %v", err)
		}
	}
	if err := s.progressCache.Remove(ctx, participant.CurrentCohortID, participant.PublicID); err != nil {
		log.Printf("Failed to remove %s from progress board: %v", participant.PublicID, err)
	}
	return participant, nil
}

// UpdateFailure records a terminal failure status (timeouts, boots). A
// failure ends any pending transfer with it; the transfer target only
// exists while the status is TRANSFER_PENDING.
func (s *ParticipantService) UpdateFailure(ctx context.Context, privateID string, status model.ParticipantStatus) (*model.ParticipantProfile, error) {
	switch status {
	case model.StatusTransferTimeout, model.StatusAttentionTimeout, model.StatusBootedOut:
	default:
		return nil, fmt.Errorf("status %s is not a failure status", status)
	}
	return s.mutate(ctx, privateID, func(p *model.ParticipantProfile) error {
		p.CurrentStatus = status
		p.TransferCohortID = ""
		return nil
	})
}

// UpdateWaiting records connection state. A reconnect while a transfer is
// pending re-validates the transfer after a fixed delay: the destination
// cohort may have filled or been deleted while the participant was away.
func (s *ParticipantService) UpdateWaiting(ctx context.Context, privateID string, connected bool) error {
	if !connected {
		return s.presenceCache.SetDisconnected(ctx, privateID)
	}
	if err := s.presenceCache.SetConnected(ctx, privateID); err != nil {
		return err
	}

	participant, err := s.participantRepo.GetByPrivateID(ctx, privateID)
	if err != nil || participant == nil {
		return err
	}
	if participant.CurrentStatus == model.StatusTransferPending {
		go s.revalidateTransferLater(privateID)
	}
	return nil
}

func (s *ParticipantService) revalidateTransferLater(privateID string) {
	time.Sleep(transferRevalidateDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	participant, err := s.participantRepo.GetByPrivateID(ctx, privateID)
	if err != nil || participant == nil {
		return
	}
	if participant.CurrentStatus != model.StatusTransferPending {
		return
	}

	cohort, err := s.cohortSvc.GetCohort(ctx, participant.TransferCohortID)
	if err != nil {
		log.Printf("Transfer re-validation for %s failed: %v", privateID, err)
		return
	}
	if cohort == nil {
		if _, err := s.mutate(ctx, privateID, func(p *model.ParticipantProfile) error {
			p.CurrentStatus = model.StatusTransferTimeout
			p.TransferCohortID = ""
			return nil
		}); err != nil {
			log.Printf("Failed to time out transfer for %s: %v", privateID, err)
		}
	}
}

// AssignRoles deterministically assigns the stage's roles across active
// cohort members and publishes the map as the stage's public data. The
// order is seeded by cohort and stage so re-invocation is stable.
func (s *ParticipantService) AssignRoles(ctx context.Context, experimentID, cohortID, stageID string) (map[string]string, error) {
	stage, err := s.stageRepo.GetByID(ctx, experimentID, stageID)
	if err != nil {
		return nil, err
	}
	if stage == nil || stage.Kind != model.StageKindRole || stage.Role == nil {
		return nil, fmt.Errorf("stage %s is not a role stage", stageID)
	}

	existing, err := s.publicDataRepo.GetByCohortAndStage(ctx, cohortID, stageID)
	if err != nil {
		return nil, err
	}
	if existing != nil && len(existing.RoleAssignments) > 0 {
		return existing.RoleAssignments, nil
	}

	members, err := s.participantRepo.GetByCohortID(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	var active []*model.ParticipantProfile
	for _, p := range members {
		if p.IsActive() {
			active = append(active, p)
		}
	}

	rng := rand.New(rand.NewSource(int64(hashSeed(cohortID + ":" + stageID))))
	rng.Shuffle(len(active), func(i, j int) {
		active[i], active[j] = active[j], active[i]
	})

	assignments := make(map[string]string, len(active))
	roles := stage.Role.Roles
	for i, p := range active {
		if len(roles) == 0 {
			break
		}
		assignments[p.PublicID] = roles[i%len(roles)]
	}

	data := &model.StagePublicData{
		ExperimentID:    experimentID,
		CohortID:        cohortID,
		StageID:         stageID,
		Kind:            model.StageKindRole,
		RoleAssignments: assignments,
	}
	if existing != nil {
		data.ID = existing.ID
	}
	if err := s.publicDataRepo.Upsert(ctx, data); err != nil {
		return nil, err
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToCohort(cohortID, "roles_assigned", assignments)
	}
	return assignments, nil
}

// mutate loads, applies and persists a profile change, publishing the
// before/after pair on the bus. Returns (nil, nil) when the participant
// does not exist.
func (s *ParticipantService) mutate(ctx context.Context, privateID string, fn func(*model.ParticipantProfile) error) (*model.ParticipantProfile, error) {
	participant, err := s.participantRepo.GetByPrivateID(ctx, privateID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, nil
	}

	snapshot := *participant
	if err := fn(participant); err != nil {
		return nil, err
	}
	if err := s.participantRepo.Update(ctx, participant); err != nil {
		return nil, err
	}

	s.publish(&snapshot, participant)
	return participant, nil
}

func (s *ParticipantService) updateProgressBoard(ctx context.Context, p *model.ParticipantProfile) {
	experiment, err := s.experimentRepo.GetByID(ctx, p.ExperimentID)
	if err != nil || experiment == nil {
		return
	}
	index := len(experiment.StageIDs)
	if p.CurrentStageID != "" {
		index = experiment.StageIndex(p.CurrentStageID)
		if index < 0 {
			return
		}
	}
	if err := s.progressCache.SetStageIndex(ctx, p.CurrentCohortID, p.PublicID, index); err != nil {
		log.Printf("Failed to update progress for %s: %v", p.PublicID, err)
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToDashboard(p.CurrentCohortID, "participant_progress_update", map[string]interface{}{
			"publicId":   p.PublicID,
			"stageIndex": index,
		})
	}
}

func (s *ParticipantService) publish(before, after *model.ParticipantProfile) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.ParticipantEvent{Before: before, After: after})
}
