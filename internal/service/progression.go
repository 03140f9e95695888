package service

import (
	"errors"
	"time"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

var ErrStageNotInExperiment = errors.New("participant's current stage is not in the experiment stage list")

// AdvanceResult reports what AdvanceToNextStage did to the profile
type AdvanceResult struct {
	// CompletedStageID is the stage that was just marked completed
	CompletedStageID string
	// NextStageID is empty when the participant finished the last stage
	NextStageID string
	// EndedExperiment is true when the final stage was completed
	EndedExperiment bool
}

// AdvanceToNextStage marks the participant's current stage completed and
// moves the pointer to the next stage in order, or ends the experiment if
// the current stage is the last. Mutates the profile in memory only; the
// caller persists it, inside a transaction, and runs the unlock gate for
// NextStageID. Stages are never skipped or revisited: a stage already
// marked completed is left untouched and the pointer only ever moves to
// index+1.
func AdvanceToNextStage(participant *model.ParticipantProfile, stageIDs []string) (AdvanceResult, error) {
	index := -1
	for i, id := range stageIDs {
		if id == participant.CurrentStageID {
			index = i
			break
		}
	}
	if index < 0 {
		return AdvanceResult{}, ErrStageNotInExperiment
	}

	now := model.ToUnifiedTimestamp(time.Now())
	completed := participant.CurrentStageID
	if _, done := participant.Timestamps.CompletedStages[completed]; !done {
		participant.Timestamps.CompletedStages[completed] = now
	}

	if index == len(stageIDs)-1 {
		participant.Timestamps.EndExperiment = &now
		participant.CurrentStatus = model.StatusSuccess
		participant.CurrentStageID = ""
		return AdvanceResult{
			CompletedStageID: completed,
			EndedExperiment:  true,
		}, nil
	}

	next := stageIDs[index+1]
	participant.CurrentStageID = next
	if _, ready := participant.Timestamps.ReadyStages[next]; !ready {
		participant.Timestamps.ReadyStages[next] = now
	}

	return AdvanceResult{
		CompletedStageID: completed,
		NextStageID:      next,
	}, nil
}
