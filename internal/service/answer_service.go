package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/repository"
)

// AnswerService records stage answers and chat messages. Private answers
// are keyed by private ID; the public mirror is merged under the public ID
// so transfers can carry it between cohorts.
type AnswerService struct {
	answerRepo      repository.AnswerRepo
	publicDataRepo  repository.PublicDataRepo
	chatRepo        repository.ChatRepo
	participantRepo repository.ParticipantRepo
	stageRepo       repository.StageRepo
	txn             repository.TxnRunner
	broadcaster     Broadcaster
}

// NewAnswerService creates a new answer service
func NewAnswerService(
	answerRepo repository.AnswerRepo,
	publicDataRepo repository.PublicDataRepo,
	chatRepo repository.ChatRepo,
	participantRepo repository.ParticipantRepo,
	stageRepo repository.StageRepo,
	txn repository.TxnRunner,
) *AnswerService {
	return &AnswerService{
		answerRepo:      answerRepo,
		publicDataRepo:  publicDataRepo,
		chatRepo:        chatRepo,
		participantRepo: participantRepo,
		stageRepo:       stageRepo,
		txn:             txn,
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *AnswerService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SubmitSurveyAnswers writes a participant's answers for a survey stage and
// merges them into the cohort's public data in the same transaction.
// Re-submission replaces only the keys present in the request.
func (s *AnswerService) SubmitSurveyAnswers(ctx context.Context, privateID, stageID string, answers map[string]model.SurveyAnswer) (*model.StageParticipantAnswer, error) {
	participant, err := s.participantRepo.GetByPrivateID(ctx, privateID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, fmt.Errorf("participant not found")
	}

	stage, err := s.stageRepo.GetByID(ctx, participant.ExperimentID, stageID)
	if err != nil {
		return nil, err
	}
	if stage == nil || stage.Kind != model.StageKindSurvey {
		return nil, fmt.Errorf("stage %s is not a survey stage", stageID)
	}
	if err := validateSurveyAnswers(stage.Survey, answers); err != nil {
		return nil, err
	}

	var saved *model.StageParticipantAnswer
	err = s.txn.WithTransaction(ctx, func(txCtx context.Context) error {
		answer, err := s.answerRepo.GetByParticipantAndStage(txCtx, privateID, stageID)
		if err != nil {
			return err
		}
		if answer == nil {
			answer = &model.StageParticipantAnswer{
				ExperimentID:         participant.ExperimentID,
				CohortID:             participant.CurrentCohortID,
				StageID:              stageID,
				ParticipantPrivateID: privateID,
				ParticipantPublicID:  participant.PublicID,
				Kind:                 model.StageKindSurvey,
				Survey:               make(map[string]model.SurveyAnswer),
			}
		}
		if answer.Survey == nil {
			answer.Survey = make(map[string]model.SurveyAnswer)
		}
		for key, a := range answers {
			a.QuestionKey = key
			answer.Survey[key] = a
		}
		if err := s.answerRepo.Upsert(txCtx, answer); err != nil {
			return err
		}

		data, err := s.publicDataRepo.GetByCohortAndStage(txCtx, participant.CurrentCohortID, stageID)
		if err != nil {
			return err
		}
		if data == nil {
			data = &model.StagePublicData{
				ExperimentID: participant.ExperimentID,
				CohortID:     participant.CurrentCohortID,
				StageID:      stageID,
				Kind:         model.StageKindSurvey,
			}
		}
		if data.SurveyAnswers == nil {
			data.SurveyAnswers = make(map[string]map[string]model.SurveyAnswer)
		}
		data.SurveyAnswers[participant.PublicID] = answer.Survey
		if err := s.publicDataRepo.Upsert(txCtx, data); err != nil {
			return err
		}

		saved = answer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// SubmitRankingAnswer writes a participant's ranking for a ranking stage
func (s *AnswerService) SubmitRankingAnswer(ctx context.Context, privateID, stageID string, rankedIDs []string) (*model.StageParticipantAnswer, error) {
	participant, err := s.participantRepo.GetByPrivateID(ctx, privateID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, fmt.Errorf("participant not found")
	}

	stage, err := s.stageRepo.GetByID(ctx, participant.ExperimentID, stageID)
	if err != nil {
		return nil, err
	}
	if stage == nil || stage.Kind != model.StageKindRanking {
		return nil, fmt.Errorf("stage %s is not a ranking stage", stageID)
	}

	answer, err := s.answerRepo.GetByParticipantAndStage(ctx, privateID, stageID)
	if err != nil {
		return nil, err
	}
	if answer == nil {
		answer = &model.StageParticipantAnswer{
			ExperimentID:         participant.ExperimentID,
			CohortID:             participant.CurrentCohortID,
			StageID:              stageID,
			ParticipantPrivateID: privateID,
			ParticipantPublicID:  participant.PublicID,
			Kind:                 model.StageKindRanking,
		}
	}
	answer.Ranking = &model.RankingAnswer{RankedIDs: rankedIDs}
	if err := s.answerRepo.Upsert(ctx, answer); err != nil {
		return nil, err
	}
	return answer, nil
}

// SubmitChipOffer appends a trade offer to the stage's public data. When
// the offer is accepted, holdings for both sides are adjusted in the same
// transaction.
func (s *AnswerService) SubmitChipOffer(ctx context.Context, privateID, stageID string, offer model.ChipOffer) (*model.StagePublicData, error) {
	participant, err := s.participantRepo.GetByPrivateID(ctx, privateID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, fmt.Errorf("participant not found")
	}

	stage, err := s.stageRepo.GetByID(ctx, participant.ExperimentID, stageID)
	if err != nil {
		return nil, err
	}
	if stage == nil || stage.Kind != model.StageKindChip {
		return nil, fmt.Errorf("stage %s is not a chip stage", stageID)
	}

	offer.SenderID = participant.PublicID

	var result *model.StagePublicData
	err = s.txn.WithTransaction(ctx, func(txCtx context.Context) error {
		data, err := s.publicDataRepo.GetByCohortAndStage(txCtx, participant.CurrentCohortID, stageID)
		if err != nil {
			return err
		}
		if data == nil {
			data = &model.StagePublicData{
				ExperimentID: participant.ExperimentID,
				CohortID:     participant.CurrentCohortID,
				StageID:      stageID,
				Kind:         model.StageKindChip,
				ChipHoldings: make(map[string]map[string]int),
			}
		}
		if data.ChipHoldings == nil {
			data.ChipHoldings = make(map[string]map[string]int)
		}
		if _, ok := data.ChipHoldings[participant.PublicID]; !ok && stage.Chip != nil {
			holdings := make(map[string]int, len(stage.Chip.StartingChips))
			for chip, qty := range stage.Chip.StartingChips {
				holdings[chip] = qty
			}
			data.ChipHoldings[participant.PublicID] = holdings
		}

		data.ChipOffers = append(data.ChipOffers, offer)
		if err := s.publicDataRepo.Upsert(txCtx, data); err != nil {
			return err
		}
		result = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToCohort(participant.CurrentCohortID, "chip_offer", offer)
	}
	return result, nil
}

// PostChatMessage records a chat message and fans it out to the cohort
func (s *AnswerService) PostChatMessage(ctx context.Context, privateID, stageID, content string) (*model.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("message content is empty")
	}

	participant, err := s.participantRepo.GetByPrivateID(ctx, privateID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, fmt.Errorf("participant not found")
	}

	stage, err := s.stageRepo.GetByID(ctx, participant.ExperimentID, stageID)
	if err != nil {
		return nil, err
	}
	if stage == nil || !stage.Kind.IsChatStage() {
		return nil, fmt.Errorf("stage %s is not a chat stage", stageID)
	}

	message := &model.ChatMessage{
		ExperimentID:   participant.ExperimentID,
		CohortID:       participant.CurrentCohortID,
		StageID:        stageID,
		SenderPublicID: participant.PublicID,
		SenderName:     participant.Name,
		FromAgent:      participant.IsAgent(),
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := s.chatRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToCohort(participant.CurrentCohortID, "chat_message", message)
	}
	return message, nil
}

// GetChatMessages returns a stage's transcript for the participant's cohort
func (s *AnswerService) GetChatMessages(ctx context.Context, cohortID, stageID string) ([]*model.ChatMessage, error) {
	return s.chatRepo.GetByCohortAndStage(ctx, cohortID, stageID)
}

// GetPublicData returns the shared view of a stage for a cohort
func (s *AnswerService) GetPublicData(ctx context.Context, cohortID, stageID string) (*model.StagePublicData, error) {
	return s.publicDataRepo.GetByCohortAndStage(ctx, cohortID, stageID)
}

// GetAnswers returns every private answer a participant has written
func (s *AnswerService) GetAnswers(ctx context.Context, privateID string) ([]*model.StageParticipantAnswer, error) {
	return s.answerRepo.GetByParticipantID(ctx, privateID)
}

func validateSurveyAnswers(config *model.SurveyStageConfig, answers map[string]model.SurveyAnswer) error {
	if config == nil {
		return nil
	}
	questions := make(map[string]model.SurveyQuestion, len(config.Questions))
	for _, q := range config.Questions {
		questions[q.Key] = q
	}
	for key, a := range answers {
		q, ok := questions[key]
		if !ok {
			return fmt.Errorf("unknown question key %q", key)
		}
		if q.Kind == model.SurveyQuestionScale && (a.Scale < q.ScaleMin || a.Scale > q.ScaleMax) {
			return fmt.Errorf("scale answer for %q out of range", key)
		}
	}
	return nil
}
