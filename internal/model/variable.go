package model

// VariableScope says which entity a variable is resolved against
type VariableScope string

const (
	ScopeExperiment  VariableScope = "EXPERIMENT"
	ScopeCohort      VariableScope = "COHORT"
	ScopeParticipant VariableScope = "PARTICIPANT"
)

// VariableKind selects the resolution strategy for a variable
type VariableKind string

const (
	VariableStatic             VariableKind = "STATIC"
	VariableRandomPermutation  VariableKind = "RANDOM_PERMUTATION"
	VariableBalancedAssignment VariableKind = "BALANCED_ASSIGNMENT"
)

// BalancedStrategy picks how BALANCED_ASSIGNMENT distributes values
type BalancedStrategy string

const (
	StrategyRoundRobin BalancedStrategy = "ROUND_ROBIN"
	StrategyLeastUsed  BalancedStrategy = "LEAST_USED"
	StrategyRandom     BalancedStrategy = "RANDOM"
)

// VariableConfig declares one template variable. Which fields apply depends
// on Kind: STATIC uses Value; RANDOM_PERMUTATION uses Values, Count and
// Seed; BALANCED_ASSIGNMENT uses Values and Strategy and is only valid at
// participant scope.
type VariableConfig struct {
	Name     string           `json:"name" bson:"name"`
	Scope    VariableScope    `json:"scope" bson:"scope"`
	Kind     VariableKind     `json:"kind" bson:"kind"`
	Value    string           `json:"value,omitempty" bson:"value,omitempty"`
	Values   []string         `json:"values,omitempty" bson:"values,omitempty"`
	Count    int              `json:"count,omitempty" bson:"count,omitempty"`
	Seed     string           `json:"seed,omitempty" bson:"seed,omitempty"`
	Strategy BalancedStrategy `json:"strategy,omitempty" bson:"strategy,omitempty"`
}
