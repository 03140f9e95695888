package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

// Seeds a complete example experiment: consent, profile, survey, group
// chat with an agent opener, role assignment, transfer hand-off and a
// payout stage, plus one open cohort.
func main() {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "deliberate_lab"
	}
	db := client.Database(dbName)

	experimenterID := "exp_seed0001"
	experimentID := "e_seed0001"
	now := time.Now()

	stages := []interface{}{
		&model.StageConfig{
			ID:           "s_tos",
			ExperimentID: experimentID,
			Kind:         model.StageKindTOS,
			Name:         "Consent",
			Description:  "Terms of service and study consent",
		},
		&model.StageConfig{
			ID:           "s_profile",
			ExperimentID: experimentID,
			Kind:         model.StageKindProfile,
			Name:         "Profile",
		},
		&model.StageConfig{
			ID:           "s_survey",
			ExperimentID: experimentID,
			Kind:         model.StageKindSurvey,
			Name:         "Opinion Survey",
			Progress: model.StageProgressConfig{
				MinParticipants: 2,
			},
			Survey: &model.SurveyStageConfig{
				Questions: []model.SurveyQuestion{
					{
						Key:      "q_stance",
						Kind:     model.SurveyQuestionMultiple,
						Prompt:   "Which policy option do you initially prefer?",
						Options:  []string{"Option A", "Option B", "Undecided"},
						Required: true,
					},
					{
						Key:      "q_confidence",
						Kind:     model.SurveyQuestionScale,
						Prompt:   "How confident are you in that preference?",
						ScaleMin: 1,
						ScaleMax: 7,
						Required: true,
					},
					{
						Key:    "q_reasoning",
						Kind:   model.SurveyQuestionText,
						Prompt: "Briefly explain your reasoning.",
					},
				},
			},
		},
		&model.StageConfig{
			ID:           "s_chat",
			ExperimentID: experimentID,
			Kind:         model.StageKindChat,
			Name:         "Group Discussion",
			Progress: model.StageProgressConfig{
				MinParticipants:        2,
				WaitForAllParticipants: true,
			},
			Chat: &model.ChatStageConfig{
				InitialMessages: []string{
					"Welcome! Please share which option you preferred and why.",
				},
				MaxTurns: 40,
			},
		},
		&model.StageConfig{
			ID:           "s_role",
			ExperimentID: experimentID,
			Kind:         model.StageKindRole,
			Name:         "Role Assignment",
			Role: &model.RoleStageConfig{
				Roles: []string{"moderator", "advocate", "skeptic"},
			},
		},
		&model.StageConfig{
			ID:           "s_transfer",
			ExperimentID: experimentID,
			Kind:         model.StageKindTransfer,
			Name:         "Group Hand-off",
			Transfer: &model.TransferStageConfig{
				TimeoutSeconds: 600,
			},
		},
		&model.StageConfig{
			ID:           "s_payout",
			ExperimentID: experimentID,
			Kind:         model.StageKindPayout,
			Name:         "Payout",
		},
	}

	experiment := &model.Experiment{
		ID:             experimentID,
		ExperimenterID: experimenterID,
		Name:           "Policy Deliberation Study",
		Description:    "Two-phase deliberation with survey, discussion and regrouping",
		StageIDs:       []string{"s_tos", "s_profile", "s_survey", "s_chat", "s_role", "s_transfer", "s_payout"},
		VariableConfigs: []model.VariableConfig{
			{
				Name:     "condition",
				Scope:    model.ScopeParticipant,
				Kind:     model.VariableBalancedAssignment,
				Values:   []string{"control", "treatment"},
				Strategy: model.StrategyRoundRobin,
			},
			{
				Name:  "topic",
				Scope: model.ScopeExperiment,
				Kind:  model.VariableStatic,
				Value: "municipal budget allocation",
			},
		},
		VariableMap:   map[string]string{"topic": "municipal budget allocation"},
		CohortLockMap: make(map[string]bool),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	cohort := &model.CohortConfig{
		ID:           "c_seed0001",
		ExperimentID: experimentID,
		Name:         "Pilot Cohort",
		StageUnlockMap: map[string]bool{
			"s_tos":      true,
			"s_profile":  false,
			"s_survey":   false,
			"s_chat":     false,
			"s_role":     false,
			"s_transfer": false,
			"s_payout":   false,
		},
		Participants: model.CohortParticipantConfig{
			MinParticipants: 2,
			MaxParticipants: 6,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := db.Collection("experiments").InsertOne(ctx, experiment); err != nil {
		log.Fatalf("Failed to insert experiment: %v", err)
	}
	if _, err := db.Collection("stages").InsertMany(ctx, stages); err != nil {
		log.Fatalf("Failed to insert stages: %v", err)
	}
	if _, err := db.Collection("cohorts").InsertOne(ctx, cohort); err != nil {
		log.Fatalf("Failed to insert cohort: %v", err)
	}

	fmt.Printf("Seeded experiment %q (%s) with cohort %s\n", experiment.Name, experimentID, cohort.ID)
}
