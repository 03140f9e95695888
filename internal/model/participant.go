package model

import "time"

// ParticipantStatus tracks where a participant is in the experiment lifecycle
type ParticipantStatus string

const (
	StatusInProgress       ParticipantStatus = "IN_PROGRESS"
	StatusCompleted        ParticipantStatus = "COMPLETED"
	StatusTransferPending  ParticipantStatus = "TRANSFER_PENDING"
	StatusTransferTimeout  ParticipantStatus = "TRANSFER_TIMEOUT"
	StatusAttentionCheck   ParticipantStatus = "ATTENTION_CHECK"
	StatusAttentionTimeout ParticipantStatus = "ATTENTION_TIMEOUT"
	StatusBootedOut        ParticipantStatus = "BOOTED_OUT"
	StatusSuccess          ParticipantStatus = "SUCCESS"
)

// ActiveStatuses are the statuses counted by the cohort unlock gate.
// Everyone else (booted, timed out, transferred away) no longer holds the
// cohort back.
var ActiveStatuses = map[ParticipantStatus]bool{
	StatusInProgress:     true,
	StatusCompleted:      true,
	StatusAttentionCheck: true,
}

// ProgressTimestamps records when a participant reached and finished each
// stage, plus experiment-level milestones.
type ProgressTimestamps struct {
	AcceptedTOS     *UnifiedTimestamp            `json:"acceptedTOS,omitempty" bson:"acceptedTOS,omitempty"`
	StartExperiment *UnifiedTimestamp            `json:"startExperiment,omitempty" bson:"startExperiment,omitempty"`
	EndExperiment   *UnifiedTimestamp            `json:"endExperiment,omitempty" bson:"endExperiment,omitempty"`
	ReadyStages     map[string]UnifiedTimestamp  `json:"readyStages" bson:"readyStages"`
	CompletedStages map[string]UnifiedTimestamp  `json:"completedStages" bson:"completedStages"`
	CohortTransfers map[string]UnifiedTimestamp  `json:"cohortTransfers" bson:"cohortTransfers"`
}

// NewProgressTimestamps returns an empty, fully initialized timestamp record
func NewProgressTimestamps() ProgressTimestamps {
	return ProgressTimestamps{
		ReadyStages:     make(map[string]UnifiedTimestamp),
		CompletedStages: make(map[string]UnifiedTimestamp),
		CohortTransfers: make(map[string]UnifiedTimestamp),
	}
}

// AgentConfig marks a participant as automated. A nil AgentConfig means the
// participant is human.
type AgentConfig struct {
	AgentID       string `json:"agentId" bson:"agentId"`
	PromptContext string `json:"promptContext,omitempty" bson:"promptContext,omitempty"`
}

// ParticipantProfile is the per-participant record. PrivateID is the
// document key and auth subject; PublicID is what other cohort members see.
type ParticipantProfile struct {
	PrivateID        string            `json:"privateId" bson:"_id"`
	PublicID         string            `json:"publicId" bson:"publicId"`
	ExperimentID     string            `json:"experimentId" bson:"experimentId"`
	CurrentCohortID  string            `json:"currentCohortId" bson:"currentCohortId"`
	CurrentStageID   string            `json:"currentStageId" bson:"currentStageId"`
	TransferCohortID string            `json:"transferCohortId,omitempty" bson:"transferCohortId,omitempty"`
	CurrentStatus    ParticipantStatus `json:"currentStatus" bson:"currentStatus"`

	Name   string `json:"name,omitempty" bson:"name,omitempty"`
	Avatar string `json:"avatar,omitempty" bson:"avatar,omitempty"`
	Pronouns string `json:"pronouns,omitempty" bson:"pronouns,omitempty"`

	Timestamps  ProgressTimestamps `json:"timestamps" bson:"timestamps"`
	AgentConfig *AgentConfig       `json:"agentConfig,omitempty" bson:"agentConfig,omitempty"`
	VariableMap map[string]string  `json:"variableMap" bson:"variableMap"`

	// Set when an attention check is sent, cleared on acknowledgment.
	AttentionCheckSentAt *time.Time `json:"attentionCheckSentAt,omitempty" bson:"attentionCheckSentAt,omitempty"`

	JoinedAt time.Time `json:"joinedAt" bson:"joinedAt"`
}

// IsAgent reports whether the participant is automated
func (p *ParticipantProfile) IsAgent() bool {
	return p.AgentConfig != nil
}

// IsActive reports whether the participant counts toward cohort gating
func (p *ParticipantProfile) IsActive() bool {
	return ActiveStatuses[p.CurrentStatus]
}

// ReadyForStage reports whether the participant has reached the given stage
func (p *ParticipantProfile) ReadyForStage(stageID string) bool {
	_, ok := p.Timestamps.ReadyStages[stageID]
	return ok
}
