// Package autoagent is an autonomous AI agent framework with
// reinforcement learning: a self-improving agent system that learns to
// earn autonomously through various strategies and revenue streams.
//
// The package surface re-exports the four building blocks:
// AutonomousAgent drives the perception, decision, action loop;
// MarketEnvironment is the world it acts in; EarningManager allocates
// episodes across revenue strategies; ReinforcementLearner holds the
// learned policy. Everything else lives under internal/.
package autoagent

import (
	"context"

	"github.com/reflexcoder/autoagent/internal/agent"
	"github.com/reflexcoder/autoagent/internal/config"
	"github.com/reflexcoder/autoagent/internal/earning"
	"github.com/reflexcoder/autoagent/internal/env"
	"github.com/reflexcoder/autoagent/internal/rl"
	"github.com/reflexcoder/autoagent/internal/service"
	"github.com/reflexcoder/autoagent/internal/version"
)

const (
	Version = version.Version
	Author  = version.Author
)

// AutonomousAgent runs train and run sessions over a market environment.
type AutonomousAgent = agent.AutonomousAgent

// MarketEnvironment steps the agent through a bar series with decimal
// portfolio accounting.
type MarketEnvironment = env.MarketEnvironment

// EarningManager allocates episodes across earning strategies and keeps
// the realized revenue scorecard.
type EarningManager = earning.Manager

// ReinforcementLearner is the tabular Q-learning policy.
type ReinforcementLearner = rl.Learner

// Config configures a full agent assembly.
type Config = config.Config

// DefaultConfig returns the default configuration with environment
// overrides applied.
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// Session is a fully wired agent with its backing stores.
type Session = service.Session

// New assembles a ready-to-run agent session from the configuration.
// Mode is "train" or "run".
func New(ctx context.Context, cfg *Config, mode string) (*Session, error) {
	return service.NewSession(ctx, cfg, mode)
}
