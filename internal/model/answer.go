package model

import "time"

// SurveyAnswer is a participant's response to a single survey question
type SurveyAnswer struct {
	QuestionKey     string   `json:"questionKey" bson:"questionKey"`
	Text            string   `json:"text,omitempty" bson:"text,omitempty"`
	Checked         bool     `json:"checked,omitempty" bson:"checked,omitempty"`
	SelectedOption  string   `json:"selectedOption,omitempty" bson:"selectedOption,omitempty"`
	SelectedOptions []string `json:"selectedOptions,omitempty" bson:"selectedOptions,omitempty"`
	Scale           int      `json:"scale,omitempty" bson:"scale,omitempty"`
}

// ChipOffer is one proposed or executed trade in a chip negotiation
type ChipOffer struct {
	Round    int            `json:"round" bson:"round"`
	SenderID string         `json:"senderId" bson:"senderId"`
	Give     map[string]int `json:"give" bson:"give"`
	Get      map[string]int `json:"get" bson:"get"`
	Accepted bool           `json:"accepted" bson:"accepted"`
}

// RankingAnswer is an ordered list of item or participant IDs
type RankingAnswer struct {
	RankedIDs []string `json:"rankedIds" bson:"rankedIds"`
}

// StageParticipantAnswer is a participant's private answer document for one
// stage. Created lazily on first write; the populated payload field matches
// Kind.
type StageParticipantAnswer struct {
	ID                   string    `json:"id" bson:"_id,omitempty"`
	ExperimentID         string    `json:"experimentId" bson:"experimentId"`
	CohortID             string    `json:"cohortId" bson:"cohortId"`
	StageID              string    `json:"stageId" bson:"stageId"`
	ParticipantPrivateID string    `json:"participantPrivateId" bson:"participantPrivateId"`
	ParticipantPublicID  string    `json:"participantPublicId" bson:"participantPublicId"`
	Kind                 StageKind `json:"kind" bson:"kind"`

	Survey  map[string]SurveyAnswer `json:"survey,omitempty" bson:"survey,omitempty"`
	Ranking *RankingAnswer          `json:"ranking,omitempty" bson:"ranking,omitempty"`

	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// StagePublicData is the per-cohort shared view of one stage: what other
// cohort members may see. Keyed by participant public ID throughout so
// transfers can merge records across cohorts.
type StagePublicData struct {
	ID           string    `json:"id" bson:"_id,omitempty"`
	ExperimentID string    `json:"experimentId" bson:"experimentId"`
	CohortID     string    `json:"cohortId" bson:"cohortId"`
	StageID      string    `json:"stageId" bson:"stageId"`
	Kind         StageKind `json:"kind" bson:"kind"`

	// SURVEY: public ID -> question key -> answer
	SurveyAnswers map[string]map[string]SurveyAnswer `json:"surveyAnswers,omitempty" bson:"surveyAnswers,omitempty"`
	// CHIP: public ID -> chip type -> quantity, plus the trade log
	ChipHoldings map[string]map[string]int `json:"chipHoldings,omitempty" bson:"chipHoldings,omitempty"`
	ChipOffers   []ChipOffer               `json:"chipOffers,omitempty" bson:"chipOffers,omitempty"`
	// ROLE: public ID -> assigned role
	RoleAssignments map[string]string `json:"roleAssignments,omitempty" bson:"roleAssignments,omitempty"`

	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}
