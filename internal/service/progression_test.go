package service

import (
	"testing"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

func newProfileAt(stageID string) *model.ParticipantProfile {
	p := &model.ParticipantProfile{
		PrivateID:      "p_1",
		PublicID:       "pub-1",
		CurrentStageID: stageID,
		CurrentStatus:  model.StatusInProgress,
		Timestamps:     model.NewProgressTimestamps(),
	}
	p.Timestamps.ReadyStages[stageID] = model.ToUnifiedTimestamp(p.JoinedAt)
	return p
}

func TestAdvanceToNextStage(t *testing.T) {
	stageIDs := []string{"s_1", "s_2", "s_3"}
	p := newProfileAt("s_1")

	result, err := AdvanceToNextStage(p, stageIDs)
	if err != nil {
		t.Fatalf("AdvanceToNextStage() error = %v", err)
	}
	if result.CompletedStageID != "s_1" {
		t.Errorf("CompletedStageID = %q, want %q", result.CompletedStageID, "s_1")
	}
	if result.NextStageID != "s_2" {
		t.Errorf("NextStageID = %q, want %q", result.NextStageID, "s_2")
	}
	if result.EndedExperiment {
		t.Error("EndedExperiment = true, want false")
	}
	if p.CurrentStageID != "s_2" {
		t.Errorf("CurrentStageID = %q, want %q", p.CurrentStageID, "s_2")
	}
	if _, ok := p.Timestamps.CompletedStages["s_1"]; !ok {
		t.Error("completed timestamp for s_1 not stamped")
	}
	if _, ok := p.Timestamps.ReadyStages["s_2"]; !ok {
		t.Error("ready timestamp for s_2 not stamped")
	}
}

func TestAdvanceToNextStageWalksWholeList(t *testing.T) {
	stageIDs := []string{"s_1", "s_2", "s_3"}
	p := newProfileAt("s_1")

	for i := 0; i < len(stageIDs); i++ {
		if _, err := AdvanceToNextStage(p, stageIDs); err != nil {
			t.Fatalf("advance %d: error = %v", i, err)
		}
	}

	if p.CurrentStatus != model.StatusSuccess {
		t.Errorf("CurrentStatus = %q, want %q", p.CurrentStatus, model.StatusSuccess)
	}
	if p.CurrentStageID != "" {
		t.Errorf("CurrentStageID = %q, want empty", p.CurrentStageID)
	}
	if p.Timestamps.EndExperiment == nil {
		t.Error("EndExperiment not stamped")
	}
	for _, id := range stageIDs {
		if _, ok := p.Timestamps.CompletedStages[id]; !ok {
			t.Errorf("stage %s missing completed timestamp", id)
		}
	}
}

func TestAdvanceToNextStageLastStage(t *testing.T) {
	p := newProfileAt("s_only")

	result, err := AdvanceToNextStage(p, []string{"s_only"})
	if err != nil {
		t.Fatalf("AdvanceToNextStage() error = %v", err)
	}
	if !result.EndedExperiment {
		t.Error("EndedExperiment = false, want true")
	}
	if result.NextStageID != "" {
		t.Errorf("NextStageID = %q, want empty", result.NextStageID)
	}
	if p.CurrentStatus != model.StatusSuccess {
		t.Errorf("CurrentStatus = %q, want %q", p.CurrentStatus, model.StatusSuccess)
	}
}

func TestAdvanceToNextStageUnknownStage(t *testing.T) {
	p := newProfileAt("s_gone")

	_, err := AdvanceToNextStage(p, []string{"s_1", "s_2"})
	if err != ErrStageNotInExperiment {
		t.Errorf("error = %v, want %v", err, ErrStageNotInExperiment)
	}
	if p.CurrentStageID != "s_gone" {
		t.Errorf("CurrentStageID = %q, want unchanged %q", p.CurrentStageID, "s_gone")
	}
}

func TestAdvanceToNextStageKeepsFirstCompletionTimestamp(t *testing.T) {
	stageIDs := []string{"s_1", "s_2"}
	p := newProfileAt("s_1")

	first := model.UnifiedTimestamp{Seconds: 100}
	p.Timestamps.CompletedStages["s_1"] = first

	if _, err := AdvanceToNextStage(p, stageIDs); err != nil {
		t.Fatalf("AdvanceToNextStage() error = %v", err)
	}
	if got := p.Timestamps.CompletedStages["s_1"]; got != first {
		t.Errorf("completed timestamp overwritten: got %v, want %v", got, first)
	}
}
