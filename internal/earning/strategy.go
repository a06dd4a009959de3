// Package earning manages the revenue strategies the agent can deploy
// and allocates episodes across them by realized performance.
package earning

import (
	"context"
	"math"

	"github.com/reflexcoder/autoagent/internal/models"
)

// Strategy proposes one action for the current observation.
type Strategy interface {
	Name() string
	Propose(ctx context.Context, obs models.Observation) (models.Action, float64, error)
}

// Feature indexes produced by the environment's observation builder.
const (
	featLastReturn = 0
	featMomentum   = 1
	featVolatility = 2
	featSentiment  = 3
	featPosition   = 4
)

// MomentumStrategy follows the trend: buy strength, sell weakness.
type MomentumStrategy struct {
	Threshold float64
}

func NewMomentumStrategy() *MomentumStrategy {
	return &MomentumStrategy{Threshold: 0.01}
}

func (s *MomentumStrategy) Name() string { return "momentum" }

func (s *MomentumStrategy) Propose(_ context.Context, obs models.Observation) (models.Action, float64, error) {
	momentum := feature(obs, featMomentum)
	confidence := clamp01(math.Abs(momentum) / (2 * s.Threshold))

	switch {
	case momentum > s.Threshold:
		return models.Buy, confidence, nil
	case momentum < -s.Threshold && obs.HasPosition():
		return models.Sell, confidence, nil
	default:
		return models.Hold, 1 - confidence, nil
	}
}

// MeanReversionStrategy fades the trend: buy dips, sell rallies.
type MeanReversionStrategy struct {
	Threshold float64
}

func NewMeanReversionStrategy() *MeanReversionStrategy {
	return &MeanReversionStrategy{Threshold: 0.02}
}

func (s *MeanReversionStrategy) Name() string { return "mean-reversion" }

func (s *MeanReversionStrategy) Propose(_ context.Context, obs models.Observation) (models.Action, float64, error) {
	momentum := feature(obs, featMomentum)
	confidence := clamp01(math.Abs(momentum) / (2 * s.Threshold))

	switch {
	case momentum < -s.Threshold:
		return models.Buy, confidence, nil
	case momentum > s.Threshold && obs.HasPosition():
		return models.Sell, confidence, nil
	default:
		return models.Hold, 1 - confidence, nil
	}
}

// Policy adapts a learned policy into a Strategy.
type Policy interface {
	GreedyAction(state string) models.Action
	QValues(state string) []float64
}

// StateMapper turns an observation into the policy's state key.
type StateMapper interface {
	StateKey(obs models.Observation) string
}

// PolicyStrategy wraps the reinforcement learner as a strategy, so the
// bandit can weigh the learned policy against the rule-based ones.
type PolicyStrategy struct {
	policy Policy
	mapper StateMapper
}

func NewPolicyStrategy(policy Policy, mapper StateMapper) *PolicyStrategy {
	return &PolicyStrategy{policy: policy, mapper: mapper}
}

func (s *PolicyStrategy) Name() string { return "q-learning" }

func (s *PolicyStrategy) Propose(_ context.Context, obs models.Observation) (models.Action, float64, error) {
	state := s.mapper.StateKey(obs)
	action := s.policy.GreedyAction(state)

	// Confidence from the gap between the chosen value and the runner-up.
	values := s.policy.QValues(state)
	best, second := math.Inf(-1), math.Inf(-1)
	for _, v := range values {
		if v > best {
			second = best
			best = v
		} else if v > second {
			second = v
		}
	}
	confidence := 0.5
	if !math.IsInf(second, -1) && best != second {
		confidence = clamp01(0.5 + (best-second)/(math.Abs(best)+math.Abs(second)))
	}
	return action, confidence, nil
}

func feature(obs models.Observation, idx int) float64 {
	if idx < 0 || idx >= len(obs.Features) {
		return 0
	}
	return obs.Features[idx]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
