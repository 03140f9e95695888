package model

import "time"

// CohortParticipantConfig bounds cohort membership
type CohortParticipantConfig struct {
	MinParticipants int `json:"minParticipants" bson:"minParticipants"`
	// Zero means unbounded
	MaxParticipants int `json:"maxParticipants" bson:"maxParticipants"`
}

// CohortConfig groups participants running an experiment together. The
// unlock map is the shared gate state: entries flip false to true exactly
// once and are never reset.
type CohortConfig struct {
	ID             string                  `json:"id" bson:"_id"`
	ExperimentID   string                  `json:"experimentId" bson:"experimentId"`
	Name           string                  `json:"name" bson:"name"`
	Description    string                  `json:"description,omitempty" bson:"description,omitempty"`
	StageUnlockMap map[string]bool         `json:"stageUnlockMap" bson:"stageUnlockMap"`
	Participants   CohortParticipantConfig `json:"participantConfig" bson:"participantConfig"`
	VariableMap    map[string]string       `json:"variableMap" bson:"variableMap"`
	CreatedAt      time.Time               `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time               `json:"updatedAt" bson:"updatedAt"`
}

// IsStageUnlocked reports whether the stage is open for this cohort
func (c *CohortConfig) IsStageUnlocked(stageID string) bool {
	return c.StageUnlockMap[stageID]
}

// CohortMeta is the Redis-cached view of a cohort used on hot paths
// (joins, gate reads, WebSocket fan-out) without a database round trip.
type CohortMeta struct {
	ExperimentID   string          `json:"experimentId"`
	Name           string          `json:"name"`
	StageUnlockMap map[string]bool `json:"stageUnlockMap"`
	MaxParticipants int            `json:"maxParticipants"`
	CreatedAt      time.Time       `json:"createdAt"`
}
