package service

import (
	"context"
	"testing"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

func TestCreateParticipant(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.seedExperiment("e_1", []*model.StageConfig{
		{ID: "s_1", Kind: model.StageKindTOS, Name: "Terms"},
		{ID: "s_2", Kind: model.StageKindSurvey, Name: "Survey"},
	}, []model.VariableConfig{{
		Name:     "condition",
		Scope:    model.ScopeParticipant,
		Kind:     model.VariableBalancedAssignment,
		Values:   []string{"control", "treatment"},
		Strategy: model.StrategyRoundRobin,
	}})
	env.seedCohort("c_1", "e_1", []string{"s_1", "s_2"})

	resp, err := env.participantSvc.CreateParticipant(ctx, "e_1", "c_1", nil)
	if err != nil {
		t.Fatalf("CreateParticipant() error = %v", err)
	}
	p := resp.Participant
	if p.CurrentStageID != "s_1" {
		t.Errorf("CurrentStageID = %q, want %q", p.CurrentStageID, "s_1")
	}
	if p.CurrentStatus != model.StatusInProgress {
		t.Errorf("CurrentStatus = %q, want %q", p.CurrentStatus, model.StatusInProgress)
	}
	if !p.ReadyForStage("s_1") {
		t.Error("ready timestamp for first stage not stamped")
	}
	if p.VariableMap["condition"] != "control" {
		t.Errorf("condition = %q, want %q", p.VariableMap["condition"], "control")
	}
	if resp.Token == "" {
		t.Error("no participant token issued")
	}

	claims, err := env.authSvc.ValidateParticipantToken(resp.Token)
	if err != nil {
		t.Fatalf("ValidateParticipantToken() error = %v", err)
	}
	if claims.ParticipantPrivateID != p.PrivateID {
		t.Errorf("token subject = %q, want %q", claims.ParticipantPrivateID, p.PrivateID)
	}

	// First stage has no minimum; joining unlocks it.
	cohort, _ := env.cohortRepo.GetByID(ctx, "c_1")
	if !cohort.StageUnlockMap["s_1"] {
		t.Error("first stage not unlocked after join")
	}
}

func TestCreateParticipantRejectsLockedCohort(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	experiment := env.seedExperiment("e_1", []*model.StageConfig{
		{ID: "s_1", Kind: model.StageKindTOS, Name: "Terms"},
	}, nil)
	env.seedCohort("c_1", "e_1", []string{"s_1"})
	experiment.CohortLockMap["c_1"] = true

	if _, err := env.participantSvc.CreateParticipant(ctx, "e_1", "c_1", nil); err == nil {
		t.Error("CreateParticipant() joined a locked cohort")
	}
}

func TestCreateParticipantRejectsFullCohort(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.seedExperiment("e_1", []*model.StageConfig{
		{ID: "s_1", Kind: model.StageKindTOS, Name: "Terms"},
	}, nil)
	cohort := env.seedCohort("c_1", "e_1", []string{"s_1"})
	cohort.Participants.MaxParticipants = 1
	env.seedParticipant("p_existing", "e_1", "c_1", "s_1")

	if _, err := env.participantSvc.CreateParticipant(ctx, "e_1", "c_1", nil); err == nil {
		t.Error("CreateParticipant() joined a full cohort")
	}
}

func TestUpdateToNextStageAdvancesAndGates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.seedExperiment("e_1", []*model.StageConfig{
		{ID: "s_1", Kind: model.StageKindTOS, Name: "Terms"},
		{ID: "s_2", Kind: model.StageKindSurvey, Name: "Survey"},
	}, nil)
	env.seedCohort("c_1", "e_1", []string{"s_1", "s_2"})
	env.seedParticipant("p_1", "e_1", "c_1", "s_1")

	advanced, err := env.participantSvc.UpdateToNextStage(ctx, "p_1")
	if err != nil {
		t.Fatalf("UpdateToNextStage() error = %v", err)
	}
	if advanced.CurrentStageID != "s_2" {
		t.Errorf("CurrentStageID = %q, want %q", advanced.CurrentStageID, "s_2")
	}

	// The caller counts as ready; the next stage has no minimum, so it opens.
	cohort, _ := env.cohortRepo.GetByID(ctx, "c_1")
	if !cohort.StageUnlockMap["s_2"] {
		t.Error("next stage not unlocked after advance")
	}

	board, _ := env.progressCache.GetBoard(ctx, "c_1", 10)
	if len(board) != 1 || board[0].StageIndex != 1 {
		t.Errorf("progress board = %+v, want one entry at index 1", board)
	}
}

func TestAttentionCheckRoundTrip(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.seedExperiment("e_1", []*model.StageConfig{
		{ID: "s_1", Kind: model.StageKindSurvey, Name: "Survey"},
	}, nil)
	env.seedCohort("c_1", "e_1", []string{"s_1"})
	env.seedParticipant("p_1", "e_1", "c_1", "s_1")

	checked, err := env.participantSvc.SendCheck(ctx, "p_1")
	if err != nil {
		t.Fatalf("SendCheck() error = %v", err)
	}
	if checked.CurrentStatus != model.StatusAttentionCheck {
		t.Errorf("CurrentStatus = %q, want %q", checked.CurrentStatus, model.StatusAttentionCheck)
	}
	if checked.AttentionCheckSentAt == nil {
		t.Error("AttentionCheckSentAt not stamped")
	}

	accepted, err := env.participantSvc.AcceptCheck(ctx, "p_1")
	if err != nil {
		t.Fatalf("AcceptCheck() error = %v", err)
	}
	if accepted.CurrentStatus != model.StatusInProgress {
		t.Errorf("CurrentStatus = %q, want %q", accepted.CurrentStatus, model.StatusInProgress)
	}
	if accepted.AttentionCheckSentAt != nil {
		t.Error("AttentionCheckSentAt not cleared")
	}
}

func TestAcceptCheckWithoutPendingIsNoop(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.seedExperiment("e_1", []*model.StageConfig{
		{ID: "s_1", Kind: model.StageKindSurvey, Name: "Survey"},
	}, nil)
	env.seedCohort("c_1", "e_1", []string{"s_1"})
	env.seedParticipant("p_1", "e_1", "c_1", "s_1")

	p, err := env.participantSvc.AcceptCheck(ctx, "p_1")
	if err != nil {
		t.Fatalf("AcceptCheck() error = %v", err)
	}
	if p.CurrentStatus != model.StatusInProgress {
		t.Errorf("CurrentStatus = %q, want unchanged %q", p.CurrentStatus, model.StatusInProgress)
	}
}

func TestUpdateFailureValidatesStatus(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.seedExperiment("e_1", []*model.StageConfig{
		{ID: "s_1", Kind: model.StageKindSurvey, Name: "Survey"},
	}, nil)
	env.seedCohort("c_1", "e_1", []string{"s_1"})
	env.seedParticipant("p_1", "e_1", "c_1", "s_1")

	if _, err := env.participantSvc.UpdateFailure(ctx, "p_1", model.StatusSuccess); err == nil {
		t.Error("UpdateFailure() accepted SUCCESS as a failure status")
	}

	p, err := env.participantSvc.UpdateFailure(ctx, "p_1", model.StatusAttentionTimeout)
	if err != nil {
		t.Fatalf("UpdateFailure() error = %v", err)
	}
	if p.CurrentStatus != model.StatusAttentionTimeout {
		t.Errorf("CurrentStatus = %q, want %q", p.CurrentStatus, model.StatusAttentionTimeout)
	}
}

func TestUpdateFailureClearsTransferTarget(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.seedExperiment("e_1", []*model.StageConfig{
		{ID: "s_1", Kind: model.StageKindTransfer, Name: "Lobby"},
	}, nil)
	env.seedCohort("c_1", "e_1", []string{"s_1"})
	env.seedCohort("c_2", "e_1", []string{"s_1"})
	pending := env.seedParticipant("p_1", "e_1", "c_1", "s_1")
	pending.CurrentStatus = model.StatusTransferPending
	pending.TransferCohortID = "c_2"

	p, err := env.participantSvc.UpdateFailure(ctx, "p_1", model.StatusTransferTimeout)
	if err != nil {
		t.Fatalf("UpdateFailure() error = %v", err)
	}
	if p.TransferCohortID != "" {
		t.Errorf("TransferCohortID = %q, want empty", p.TransferCohortID)
	}
}

func TestBootParticipantReleasesGate(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.seedExperiment("e_1", []*model.StageConfig{
		{ID: "s_1", Kind: model.StageKindChat, Name: "Discussion",
			Progress: model.StageProgressConfig{MinParticipants: 1, WaitForAllParticipants: true}},
	}, nil)
	env.seedCohort("c_1", "e_1", []string{"s_1"})

	ready := env.seedParticipant("p_a", "e_1", "c_1", "s_1")
	laggard := env.seedParticipant("p_b", "e_1", "c_1", "s_1")
	delete(laggard.Timestamps.ReadyStages, "s_1")

	if err := env.cohortSvc.UpdateStageUnlocked(ctx, "e_1", "c_1", "s_1", ready.PrivateID); err != nil {
		t.Fatalf("UpdateStageUnlocked() error = %v", err)
	}
	cohort, _ := env.cohortRepo.GetByID(ctx, "c_1")
	if cohort.StageUnlockMap["s_1"] {
		t.Fatal("stage unlocked while a member was not ready")
	}

	// Booting the unready member re-runs the gate and opens the stage.
	if _, err := env.participantSvc.BootParticipant(ctx, "p_b"); err != nil {
		t.Fatalf("BootParticipant() error = %v", err)
	}
	cohort, _ = env.cohortRepo.GetByID(ctx, "c_1")
	if !cohort.StageUnlockMap["s_1"] {
		t.Error("stage locked after the only unready member was booted")
	}
}

func TestAssignRolesIsStable(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.seedExperiment("e_1", []*model.StageConfig{
		{ID: "s_role", Kind: model.StageKindRole, Name: "Roles",
			Role: &model.RoleStageConfig{Roles: []string{"moderator", "advocate"}}},
	}, nil)
	env.seedCohort("c_1", "e_1", []string{"s_role"})
	env.seedParticipant("p_a", "e_1", "c_1", "s_role")
	env.seedParticipant("p_b", "e_1", "c_1", "s_role")
	env.seedParticipant("p_c", "e_1", "c_1", "s_role")

	first, err := env.participantSvc.AssignRoles(ctx, "e_1", "c_1", "s_role")
	if err != nil {
		t.Fatalf("AssignRoles() error = %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("assigned %d participants, want 3", len(first))
	}
	counts := map[string]int{}
	for _, role := range first {
		counts[role]++
	}
	if counts["moderator"] != 2 || counts["advocate"] != 1 {
		t.Errorf("role distribution = %v, want moderator x2 advocate x1", counts)
	}

	second, err := env.participantSvc.AssignRoles(ctx, "e_1", "c_1", "s_role")
	if err != nil {
		t.Fatalf("second AssignRoles() error = %v", err)
	}
	for publicID, role := range first {
		if second[publicID] != role {
			t.Errorf("re-invocation changed %s from %q to %q", publicID, role, second[publicID])
		}
	}
}

func TestAssignRolesRejectsNonRoleStage(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.seedExperiment("e_1", []*model.StageConfig{
		{ID: "s_1", Kind: model.StageKindSurvey, Name: "Survey"},
	}, nil)
	env.seedCohort("c_1", "e_1", []string{"s_1"})

	if _, err := env.participantSvc.AssignRoles(ctx, "e_1", "c_1", "s_1"); err == nil {
		t.Error("AssignRoles() accepted a survey stage")
	}
}
