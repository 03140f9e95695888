package service

import (
	"context"
	"hash/fnv"
	"log"
	"math/rand"

	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/repository"
)

// VariableContext identifies the entity variables are being resolved for
type VariableContext struct {
	Scope        model.VariableScope
	ExperimentID string
	CohortID     string
	// ParticipantID is the private ID; required for participant scope
	ParticipantID string
}

// scopeID returns the identifier that seeds deterministic resolution
func (c VariableContext) scopeID() string {
	switch c.Scope {
	case model.ScopeCohort:
		return c.CohortID
	case model.ScopeParticipant:
		return c.ParticipantID
	default:
		return c.ExperimentID
	}
}

// VariableService resolves template variables for a scope
type VariableService struct {
	participantRepo repository.ParticipantRepo
}

// NewVariableService creates a new variable service
func NewVariableService(participantRepo repository.ParticipantRepo) *VariableService {
	return &VariableService{participantRepo: participantRepo}
}

// GenerateVariablesForScope resolves every config matching the requested
// scope into a flat name -> value map. STATIC copies the value.
// RANDOM_PERMUTATION shuffles deterministically, seeded by the config seed
// and the scope's own ID, and takes the first Count values (all of them
// when Count is zero). BALANCED_ASSIGNMENT is participant-scope only;
// configs requesting it at other scopes are skipped with a warning.
//
// The count reads behind ROUND_ROBIN and LEAST_USED are not serialized
// against concurrent joins: two participants arriving together can observe
// the same counts and receive the same value. Join paths add a small random
// delay before calling in, which spreads arrivals but does not close the
// window. This is a deliberate trade; see DESIGN.md.
func (s *VariableService) GenerateVariablesForScope(ctx context.Context, configs []model.VariableConfig, vctx VariableContext) (map[string]string, error) {
	out := make(map[string]string)

	for _, cfg := range configs {
		if cfg.Scope != vctx.Scope {
			continue
		}

		switch cfg.Kind {
		case model.VariableStatic:
			out[cfg.Name] = cfg.Value

		case model.VariableRandomPermutation:
			out[cfg.Name] = resolvePermutation(cfg, vctx.scopeID())

		case model.VariableBalancedAssignment:
			if vctx.Scope != model.ScopeParticipant {
				log.Printf("Warning: balanced assignment %q requested at %s scope; skipping", cfg.Name, vctx.Scope)
				continue
			}
			value, err := s.resolveBalanced(ctx, cfg, vctx)
			if err != nil {
				return nil, err
			}
			out[cfg.Name] = value
		}
	}

	return out, nil
}

func resolvePermutation(cfg model.VariableConfig, scopeID string) string {
	if len(cfg.Values) == 0 {
		return ""
	}

	shuffled := make([]string, len(cfg.Values))
	copy(shuffled, cfg.Values)

	rng := rand.New(rand.NewSource(int64(hashSeed(cfg.Seed + ":" + scopeID))))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	count := cfg.Count
	if count <= 0 || count > len(shuffled) {
		count = len(shuffled)
	}
	if count == 1 {
		return shuffled[0]
	}

	// Multiple selections join on commas, matching the template syntax.
	result := shuffled[0]
	for _, v := range shuffled[1:count] {
		result += "," + v
	}
	return result
}

func (s *VariableService) resolveBalanced(ctx context.Context, cfg model.VariableConfig, vctx VariableContext) (string, error) {
	if len(cfg.Values) == 0 {
		return "", nil
	}

	switch cfg.Strategy {
	case model.StrategyLeastUsed:
		best := cfg.Values[0]
		var bestCount int64 = -1
		for _, v := range cfg.Values {
			n, err := s.participantRepo.CountByVariableValue(ctx, vctx.ExperimentID, cfg.Name, v)
			if err != nil {
				return "", err
			}
			if bestCount < 0 || n < bestCount {
				best = v
				bestCount = n
			}
		}
		return best, nil

	case model.StrategyRandom:
		rng := rand.New(rand.NewSource(int64(hashSeed(cfg.Name + ":" + vctx.ParticipantID))))
		return cfg.Values[rng.Intn(len(cfg.Values))], nil

	default: // ROUND_ROBIN
		total := int64(0)
		for _, v := range cfg.Values {
			n, err := s.participantRepo.CountByVariableValue(ctx, vctx.ExperimentID, cfg.Name, v)
			if err != nil {
				return "", err
			}
			total += n
		}
		return cfg.Values[total%int64(len(cfg.Values))], nil
	}
}

func hashSeed(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
