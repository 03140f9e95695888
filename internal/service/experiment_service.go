package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/repository"
)

// ExperimentService handles experiment authoring: the experiment document,
// its stage sequence and experiment-scope variables.
type ExperimentService struct {
	experimentRepo  repository.ExperimentRepo
	stageRepo       repository.StageRepo
	cohortRepo      repository.CohortRepo
	participantRepo repository.ParticipantRepo
	answerRepo      repository.AnswerRepo
	publicDataRepo  repository.PublicDataRepo
	chatRepo        repository.ChatRepo
	variableSvc     *VariableService
	txn             repository.TxnRunner
}

// NewExperimentService creates a new experiment service
func NewExperimentService(
	experimentRepo repository.ExperimentRepo,
	stageRepo repository.StageRepo,
	cohortRepo repository.CohortRepo,
	participantRepo repository.ParticipantRepo,
	answerRepo repository.AnswerRepo,
	publicDataRepo repository.PublicDataRepo,
	chatRepo repository.ChatRepo,
	variableSvc *VariableService,
	txn repository.TxnRunner,
) *ExperimentService {
	return &ExperimentService{
		experimentRepo:  experimentRepo,
		stageRepo:       stageRepo,
		cohortRepo:      cohortRepo,
		participantRepo: participantRepo,
		answerRepo:      answerRepo,
		publicDataRepo:  publicDataRepo,
		chatRepo:        chatRepo,
		variableSvc:     variableSvc,
		txn:             txn,
	}
}

// CreateExperiment writes the experiment and its stage documents together.
// Experiment-scope variables are resolved once, at creation.
func (s *ExperimentService) CreateExperiment(ctx context.Context, experimenterID, name, description string, stages []*model.StageConfig, variables []model.VariableConfig) (*model.Experiment, error) {
	if name == "" {
		return nil, fmt.Errorf("experiment name is required")
	}

	experimentID := "e_" + uuid.New().String()[:8]
	now := time.Now()

	stageIDs := make([]string, len(stages))
	for i, stage := range stages {
		if stage.ID == "" {
			stage.ID = "s_" + uuid.New().String()[:8]
		}
		stage.ExperimentID = experimentID
		stageIDs[i] = stage.ID
	}

	experiment := &model.Experiment{
		ID:              experimentID,
		ExperimenterID:  experimenterID,
		Name:            name,
		Description:     description,
		StageIDs:        stageIDs,
		VariableConfigs: variables,
		CohortLockMap:   make(map[string]bool),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	resolved, err := s.variableSvc.GenerateVariablesForScope(ctx, variables, VariableContext{
		Scope:        model.ScopeExperiment,
		ExperimentID: experimentID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve experiment variables: %w", err)
	}
	experiment.VariableMap = resolved

	err = s.txn.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.experimentRepo.Create(txCtx, experiment); err != nil {
			return err
		}
		if len(stages) > 0 {
			if err := s.stageRepo.CreateMany(txCtx, stages); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return experiment, nil
}

// GetExperiment retrieves an experiment by ID
func (s *ExperimentService) GetExperiment(ctx context.Context, id string) (*model.Experiment, error) {
	return s.experimentRepo.GetByID(ctx, id)
}

// ListExperiments returns an experimenter's experiments
func (s *ExperimentService) ListExperiments(ctx context.Context, experimenterID string) ([]*model.Experiment, error) {
	return s.experimentRepo.GetByExperimenterID(ctx, experimenterID)
}

// GetStages returns an experiment's stage documents in progression order
func (s *ExperimentService) GetStages(ctx context.Context, experimentID string) ([]*model.StageConfig, error) {
	experiment, err := s.experimentRepo.GetByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if experiment == nil {
		return nil, nil
	}
	stages, err := s.stageRepo.GetByExperimentID(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.StageConfig, len(stages))
	for _, stage := range stages {
		byID[stage.ID] = stage
	}
	ordered := make([]*model.StageConfig, 0, len(experiment.StageIDs))
	for _, id := range experiment.StageIDs {
		if stage, ok := byID[id]; ok {
			ordered = append(ordered, stage)
		}
	}
	return ordered, nil
}

// UpdateExperiment updates name, description and stage order. The stage
// list may only be reordered or extended while participants are running;
// removing a stage someone points at would strand them.
func (s *ExperimentService) UpdateExperiment(ctx context.Context, id, name, description string, stageIDs []string) (*model.Experiment, error) {
	experiment, err := s.experimentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if experiment == nil {
		return nil, nil
	}

	if stageIDs != nil {
		kept := make(map[string]bool, len(stageIDs))
		for _, sid := range stageIDs {
			kept[sid] = true
		}
		participants, err := s.participantRepo.GetByExperimentID(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, p := range participants {
			if p.CurrentStageID != "" && !kept[p.CurrentStageID] {
				return nil, fmt.Errorf("cannot remove stage %s: participant %s is on it", p.CurrentStageID, p.PublicID)
			}
		}
		experiment.StageIDs = stageIDs
	}
	if name != "" {
		experiment.Name = name
	}
	experiment.Description = description
	experiment.UpdatedAt = time.Now()

	if err := s.experimentRepo.Update(ctx, experiment); err != nil {
		return nil, err
	}
	return experiment, nil
}

// SetCohortLock marks a cohort open or closed to new joins
func (s *ExperimentService) SetCohortLock(ctx context.Context, experimentID, cohortID string, locked bool) (*model.Experiment, error) {
	experiment, err := s.experimentRepo.GetByID(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if experiment == nil {
		return nil, nil
	}
	if experiment.CohortLockMap == nil {
		experiment.CohortLockMap = make(map[string]bool)
	}
	experiment.CohortLockMap[cohortID] = locked
	experiment.UpdatedAt = time.Now()
	if err := s.experimentRepo.Update(ctx, experiment); err != nil {
		return nil, err
	}
	return experiment, nil
}

// ForkExperiment copies an experiment's configuration (stages, variables)
// into a fresh experiment with no cohorts or participants.
func (s *ExperimentService) ForkExperiment(ctx context.Context, id, experimenterID string) (*model.Experiment, error) {
	original, err := s.experimentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, nil
	}
	stages, err := s.GetStages(ctx, id)
	if err != nil {
		return nil, err
	}

	copies := make([]*model.StageConfig, len(stages))
	for i, stage := range stages {
		c := *stage
		c.ID = ""
		copies[i] = &c
	}
	return s.CreateExperiment(ctx, experimenterID, original.Name+" (copy)", original.Description, copies, original.VariableConfigs)
}

// ExportExperiment collects the full document tree for offline analysis
func (s *ExperimentService) ExportExperiment(ctx context.Context, id string) (*model.ExperimentExport, error) {
	experiment, err := s.experimentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if experiment == nil {
		return nil, nil
	}

	stages, err := s.GetStages(ctx, id)
	if err != nil {
		return nil, err
	}
	cohorts, err := s.cohortRepo.GetByExperimentID(ctx, id)
	if err != nil {
		return nil, err
	}
	participants, err := s.participantRepo.GetByExperimentID(ctx, id)
	if err != nil {
		return nil, err
	}
	answers, err := s.answerRepo.GetByExperimentID(ctx, id)
	if err != nil {
		return nil, err
	}
	publicData, err := s.publicDataRepo.GetByExperimentID(ctx, id)
	if err != nil {
		return nil, err
	}

	return &model.ExperimentExport{
		Experiment:   experiment,
		Stages:       stages,
		Cohorts:      cohorts,
		Participants: participants,
		Answers:      answers,
		PublicData:   publicData,
		ExportedAt:   model.ToUnifiedTimestamp(time.Now()),
	}, nil
}

// DeleteExperiment removes the experiment and every document under it
func (s *ExperimentService) DeleteExperiment(ctx context.Context, id string) error {
	return s.txn.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.chatRepo.DeleteByExperimentID(txCtx, id); err != nil {
			return err
		}
		if err := s.publicDataRepo.DeleteByExperimentID(txCtx, id); err != nil {
			return err
		}
		if err := s.answerRepo.DeleteByExperimentID(txCtx, id); err != nil {
			return err
		}
		if err := s.participantRepo.DeleteByExperimentID(txCtx, id); err != nil {
			return err
		}
		if err := s.cohortRepo.DeleteByExperimentID(txCtx, id); err != nil {
			return err
		}
		if err := s.stageRepo.DeleteByExperimentID(txCtx, id); err != nil {
			return err
		}
		return s.experimentRepo.Delete(txCtx, id)
	})
}
