package model

import "time"

// Experiment is the top-level document an experimenter authors: an ordered
// stage sequence plus variable declarations. StageIDs is the single source
// of truth for progression order.
type Experiment struct {
	ID             string            `json:"id" bson:"_id"`
	ExperimenterID string            `json:"experimenterId" bson:"experimenterId"`
	Name           string            `json:"name" bson:"name"`
	Description    string            `json:"description,omitempty" bson:"description,omitempty"`
	StageIDs       []string          `json:"stageIds" bson:"stageIds"`
	VariableConfigs []VariableConfig `json:"variableConfigs" bson:"variableConfigs"`
	// Resolved experiment-scope variables
	VariableMap map[string]string `json:"variableMap" bson:"variableMap"`
	// Cohort ID -> locked by experimenter (prevents new joins)
	CohortLockMap map[string]bool `json:"cohortLockMap" bson:"cohortLockMap"`
	CreatedAt     time.Time       `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt" bson:"updatedAt"`
}

// StageIndex returns the position of a stage in the ordered list, or -1
func (e *Experiment) StageIndex(stageID string) int {
	for i, id := range e.StageIDs {
		if id == stageID {
			return i
		}
	}
	return -1
}

// ExperimentExport is the full document tree returned by the export endpoint
type ExperimentExport struct {
	Experiment   *Experiment               `json:"experiment"`
	Stages       []*StageConfig            `json:"stages"`
	Cohorts      []*CohortConfig           `json:"cohorts"`
	Participants []*ParticipantProfile     `json:"participants"`
	Answers      []*StageParticipantAnswer `json:"answers"`
	PublicData   []*StagePublicData        `json:"publicData"`
	ExportedAt   UnifiedTimestamp          `json:"exportedAt"`
}
