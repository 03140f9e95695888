package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/PAIR-code/deliberate-lab/internal/cache"
	"github.com/PAIR-code/deliberate-lab/internal/events"
	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/repository"
)

// AgentService drives agent participants through experiments. It listens
// on the participant event bus and reacts when an agent reaches a new
// stage; what it does depends entirely on the stage kind. Every action is
// an idempotent re-check against current state, so a dropped bus event is
// recovered the next time anything touches the participant.
type AgentService struct {
	participantRepo repository.ParticipantRepo
	stageRepo       repository.StageRepo
	cohortCache     cache.CohortCache
	cohortSvc       *CohortService
	participantSvc  *ParticipantService
	answerSvc       *AnswerService
	transferSvc     *TransferService

	wg   sync.WaitGroup
	stop chan struct{}
}

// NewAgentService creates a new agent driver
func NewAgentService(
	participantRepo repository.ParticipantRepo,
	stageRepo repository.StageRepo,
	cohortCache cache.CohortCache,
	cohortSvc *CohortService,
	participantSvc *ParticipantService,
	answerSvc *AnswerService,
	transferSvc *TransferService,
) *AgentService {
	return &AgentService{
		participantRepo: participantRepo,
		stageRepo:       stageRepo,
		cohortCache:     cohortCache,
		cohortSvc:       cohortSvc,
		participantSvc:  participantSvc,
		answerSvc:       answerSvc,
		transferSvc:     transferSvc,
		stop:            make(chan struct{}),
	}
}

// Start consumes participant events until Stop is called
func (s *AgentService) Start(bus *events.Bus) {
	ch := bus.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				s.handle(ev)
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop shuts the driver down and waits for in-flight handling to finish
func (s *AgentService) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *AgentService) handle(ev events.ParticipantEvent) {
	if ev.After == nil || !ev.After.IsAgent() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p := ev.After

	// Agents never sit on attention checks; acknowledge immediately.
	if p.CurrentStatus == model.StatusAttentionCheck {
		if _, err := s.participantSvc.AcceptCheck(ctx, p.PrivateID); err != nil {
			log.Printf("Agent %s failed to accept attention check: %v", p.PublicID, err)
		}
		return
	}

	if p.CurrentStatus == model.StatusTransferPending {
		if _, err := s.transferSvc.AcceptTransfer(ctx, p.PrivateID); err != nil {
			log.Printf("Agent %s failed to accept transfer: %v", p.PublicID, err)
		}
		return
	}

	if !ev.StageChanged() || p.CurrentStageID == "" || p.CurrentStatus != model.StatusInProgress {
		return
	}
	s.actOnStage(ctx, p)
}

// actOnStage performs the agent's move for the stage it just reached
func (s *AgentService) actOnStage(ctx context.Context, p *model.ParticipantProfile) {
	stage, err := s.stageRepo.GetByID(ctx, p.ExperimentID, p.CurrentStageID)
	if err != nil || stage == nil {
		if err != nil {
			log.Printf("Agent %s failed to load stage %s: %v", p.PublicID, p.CurrentStageID, err)
		}
		return
	}

	// An agent holds at a locked stage like a human waiting for the cohort.
	// The gate re-announces parked agents when the stage unlocks.
	unlocked, err := s.cohortSvc.IsStageUnlocked(ctx, p.CurrentCohortID, stage.ID)
	if err != nil {
		log.Printf("Agent %s failed to check unlock for stage %s: %v", p.PublicID, stage.ID, err)
		return
	}
	if !unlocked {
		return
	}

	switch {
	case stage.Kind == model.StageKindProfile:
		s.completeProfile(ctx, p)
		s.advance(ctx, p, stage.Kind)

	case stage.Kind == model.StageKindRole:
		if _, err := s.participantSvc.AssignRoles(ctx, p.ExperimentID, p.CurrentCohortID, stage.ID); err != nil {
			log.Printf("Agent %s failed to assign roles: %v", p.PublicID, err)
			return
		}
		s.advance(ctx, p, stage.Kind)

	case stage.Kind == model.StageKindTransfer:
		// Park until an experimenter (or timeout sweep) moves the agent.
		return

	case stage.Kind.IsChatStage():
		// Chat stages end when the conversation does, not when the agent
		// arrives. Post configured opening messages exactly once per stage.
		s.fireInitialMessages(ctx, p, stage)
		return

	default:
		s.advance(ctx, p, stage.Kind)
	}
}

func (s *AgentService) completeProfile(ctx context.Context, p *model.ParticipantProfile) {
	name := "Agent " + p.PublicID
	if p.AgentConfig != nil && p.AgentConfig.AgentID != "" {
		name = p.AgentConfig.AgentID
	}
	if _, err := s.participantSvc.UpdateProfile(ctx, p.PrivateID, name, "robot", "it/its"); err != nil {
		log.Printf("Agent %s failed to complete profile: %v", p.PublicID, err)
	}
}

func (s *AgentService) fireInitialMessages(ctx context.Context, p *model.ParticipantProfile, stage *model.StageConfig) {
	if stage.Chat == nil || len(stage.Chat.InitialMessages) == 0 {
		return
	}
	first, err := s.cohortCache.MarkChatFired(ctx, p.CurrentCohortID, stage.ID, p.PublicID)
	if err != nil {
		log.Printf("Agent %s failed to mark chat fired: %v", p.PublicID, err)
		return
	}
	if !first {
		return
	}
	for _, msg := range stage.Chat.InitialMessages {
		if _, err := s.answerSvc.PostChatMessage(ctx, p.PrivateID, stage.ID, msg); err != nil {
			log.Printf("Agent %s failed to post initial message: %v", p.PublicID, err)
			return
		}
	}
	agentActions.WithLabelValues(string(stage.Kind)).Inc()
}

func (s *AgentService) advance(ctx context.Context, p *model.ParticipantProfile, kind model.StageKind) {
	if _, err := s.participantSvc.UpdateToNextStage(ctx, p.PrivateID); err != nil {
		log.Printf("Agent %s failed to advance past %s stage: %v", p.PublicID, kind, err)
		return
	}
	agentActions.WithLabelValues(string(kind)).Inc()
}
