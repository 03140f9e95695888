package model

import "time"

// ChatMessage is one message in a cohort's chat transcript for a stage
type ChatMessage struct {
	ID             string    `json:"id" bson:"_id,omitempty"`
	ExperimentID   string    `json:"experimentId" bson:"experimentId"`
	CohortID       string    `json:"cohortId" bson:"cohortId"`
	StageID        string    `json:"stageId" bson:"stageId"`
	SenderPublicID string    `json:"senderPublicId" bson:"senderPublicId"`
	SenderName     string    `json:"senderName,omitempty" bson:"senderName,omitempty"`
	FromAgent      bool      `json:"fromAgent" bson:"fromAgent"`
	Content        string    `json:"content" bson:"content"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
}
