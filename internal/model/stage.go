package model

// StageKind discriminates stage config variants
type StageKind string

const (
	StageKindTOS         StageKind = "TOS"
	StageKindInfo        StageKind = "INFO"
	StageKindProfile     StageKind = "PROFILE"
	StageKindSurvey      StageKind = "SURVEY"
	StageKindChat        StageKind = "CHAT"
	StageKindPrivateChat StageKind = "PRIVATE_CHAT"
	StageKindSalesperson StageKind = "SALESPERSON"
	StageKindTransfer    StageKind = "TRANSFER"
	StageKindRole        StageKind = "ROLE"
	StageKindChip        StageKind = "CHIP"
	StageKindRanking     StageKind = "RANKING"
	StageKindReveal      StageKind = "REVEAL"
	StageKindPayout      StageKind = "PAYOUT"
)

// StageKindRequiresTransferMigration lists the stage kinds whose public
// data must be copied into the destination cohort when a participant
// transfers. Each kind has a dedicated merge handler in the transfer service.
var StageKindRequiresTransferMigration = map[StageKind]bool{
	StageKindSurvey: true,
	StageKindChip:   true,
	StageKindRole:   true,
}

// IsChatStage reports whether a kind hosts a conversation. Chat stages are
// never auto-advanced by the agent driver; completion is decided by the
// chat flow itself.
func (k StageKind) IsChatStage() bool {
	return k == StageKindChat || k == StageKindPrivateChat || k == StageKindSalesperson
}

// StageProgressConfig gates when a stage unlocks for a cohort
type StageProgressConfig struct {
	MinParticipants        int  `json:"minParticipants" bson:"minParticipants"`
	WaitForAllParticipants bool `json:"waitForAllParticipants" bson:"waitForAllParticipants"`
	ShowParticipantProgress bool `json:"showParticipantProgress" bson:"showParticipantProgress"`
}

// SurveyQuestionKind defines the type of survey question
type SurveyQuestionKind string

const (
	SurveyQuestionText     SurveyQuestionKind = "TEXT"
	SurveyQuestionCheck    SurveyQuestionKind = "CHECK"
	SurveyQuestionMultiple SurveyQuestionKind = "MULTIPLE_CHOICE"
	SurveyQuestionScale    SurveyQuestionKind = "SCALE"
)

// SurveyQuestion is one question inside a survey stage
type SurveyQuestion struct {
	Key      string             `json:"key" bson:"key"`
	Kind     SurveyQuestionKind `json:"kind" bson:"kind"`
	Prompt   string             `json:"prompt" bson:"prompt"`
	Options  []string           `json:"options,omitempty" bson:"options,omitempty"`
	ScaleMin int                `json:"scaleMin,omitempty" bson:"scaleMin,omitempty"`
	ScaleMax int                `json:"scaleMax,omitempty" bson:"scaleMax,omitempty"`
	Required bool               `json:"required" bson:"required"`
}

// SurveyStageConfig configures a SURVEY stage
type SurveyStageConfig struct {
	Questions []SurveyQuestion `json:"questions" bson:"questions"`
}

// ChatStageConfig configures CHAT, PRIVATE_CHAT and SALESPERSON stages
type ChatStageConfig struct {
	// Initial messages an agent participant posts when the stage unlocks
	InitialMessages []string `json:"initialMessages,omitempty" bson:"initialMessages,omitempty"`
	MaxTurns        int      `json:"maxTurns,omitempty" bson:"maxTurns,omitempty"`
}

// ChipStageConfig configures a CHIP negotiation stage
type ChipStageConfig struct {
	// Chip type -> starting quantity handed to each participant
	StartingChips map[string]int `json:"startingChips" bson:"startingChips"`
	NumRounds     int            `json:"numRounds" bson:"numRounds"`
}

// RoleStageConfig configures a ROLE assignment stage
type RoleStageConfig struct {
	Roles []string `json:"roles" bson:"roles"`
}

// TransferStageConfig configures a TRANSFER holding stage
type TransferStageConfig struct {
	// Participants parked longer than this are moved to TRANSFER_TIMEOUT.
	// Zero means no timeout.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty" bson:"timeoutSeconds,omitempty"`
}

// StageConfig describes a single step of an experiment. Kind selects which
// of the optional payloads applies; the rest stay nil.
type StageConfig struct {
	ID           string              `json:"id" bson:"_id"`
	ExperimentID string              `json:"experimentId" bson:"experimentId"`
	Kind         StageKind           `json:"kind" bson:"kind"`
	Name         string              `json:"name" bson:"name"`
	Description  string              `json:"description,omitempty" bson:"description,omitempty"`
	Progress     StageProgressConfig `json:"progress" bson:"progress"`

	Survey   *SurveyStageConfig   `json:"survey,omitempty" bson:"survey,omitempty"`
	Chat     *ChatStageConfig     `json:"chat,omitempty" bson:"chat,omitempty"`
	Chip     *ChipStageConfig     `json:"chip,omitempty" bson:"chip,omitempty"`
	Role     *RoleStageConfig     `json:"role,omitempty" bson:"role,omitempty"`
	Transfer *TransferStageConfig `json:"transfer,omitempty" bson:"transfer,omitempty"`
}
