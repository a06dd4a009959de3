// Package service assembles a fully wired agent from configuration.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reflexcoder/autoagent/internal/advisor"
	"github.com/reflexcoder/autoagent/internal/agent"
	"github.com/reflexcoder/autoagent/internal/config"
	"github.com/reflexcoder/autoagent/internal/dataflows"
	"github.com/reflexcoder/autoagent/internal/earning"
	"github.com/reflexcoder/autoagent/internal/env"
	"github.com/reflexcoder/autoagent/internal/log"
	"github.com/reflexcoder/autoagent/internal/models"
	"github.com/reflexcoder/autoagent/internal/rl"
	"github.com/reflexcoder/autoagent/internal/storage"
)

// banditEpsilon is the exploration rate of the strategy allocator.
const banditEpsilon = 0.1

// Session owns everything a running agent session needs and knows how
// to tear it down.
type Session struct {
	Agent *agent.AutonomousAgent
	Store *storage.Store

	checkpoints *rl.CheckpointStore
	flows       *dataflows.DataFlowInterface
}

// Close releases the stores. The recorder is flushed by the agent's
// session finish, so Close only runs after RunSession returns.
func (s *Session) Close() {
	logger := log.WithComponent("service")
	if s.checkpoints != nil {
		if err := s.checkpoints.Close(); err != nil {
			logger.Error().Err(err).Msg("close checkpoint store")
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			logger.Error().Err(err).Msg("close store")
		}
	}
	if s.flows != nil {
		s.flows.Close()
	}
}

// NewSession wires environment, learner, strategies, persistence and
// the optional advisor for one train/run session.
func NewSession(ctx context.Context, cfg *config.Config, mode string) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	initialCash, err := decimal.NewFromString(cfg.InitialCash)
	if err != nil {
		return nil, fmt.Errorf("parse initial_cash: %w", err)
	}
	feeRate, err := decimal.NewFromString(cfg.FeeRate)
	if err != nil {
		return nil, fmt.Errorf("parse fee_rate: %w", err)
	}

	var (
		source      env.BarSource
		flows       *dataflows.DataFlowInterface
		checkpoints *rl.CheckpointStore
		store       *storage.Store
		recorder    *storage.Recorder
	)
	// fail tears down whatever has been wired so far, marking the
	// session row errored when it already exists.
	fail := func(err error) (*Session, error) {
		if recorder != nil {
			recorder.Finish(err)
		}
		if store != nil {
			store.Close()
		}
		if checkpoints != nil {
			checkpoints.Close()
		}
		if flows != nil {
			flows.Close()
		}
		return nil, err
	}

	switch cfg.MarketSource {
	case "replay":
		flows = dataflows.NewDataFlowInterface(cfg)
		source = env.NewReplaySource(flows)
	default:
		source = env.NewSyntheticSource(cfg.Drift, cfg.Volatility, cfg.Seed)
	}

	envOpts := env.Options{
		Symbol:        cfg.Symbol,
		WindowSize:    cfg.WindowSize,
		MaxSteps:      cfg.MaxSteps,
		InitialCash:   initialCash,
		FeeRate:       feeRate,
		OrderFraction: decimal.NewFromFloat(cfg.OrderFraction),
	}
	// The news sentiment feature needs network access.
	if flows != nil && cfg.OnlineTools {
		envOpts.Sentiment = flows
	}
	market, err := env.NewMarketEnvironment(envOpts, source)
	if err != nil {
		return fail(fmt.Errorf("build environment: %w", err))
	}

	learner, err := rl.NewLearner(rl.Params{
		Alpha:        cfg.Alpha,
		Gamma:        cfg.Gamma,
		Epsilon:      cfg.Epsilon,
		EpsilonMin:   cfg.EpsilonMin,
		EpsilonDecay: cfg.EpsilonDecay,
		Seed:         cfg.Seed,
	})
	if err != nil {
		return fail(fmt.Errorf("build learner: %w", err))
	}

	logger := log.WithComponent("service")

	checkpoints, err = rl.OpenCheckpointStore(cfg.CheckpointDir)
	if err != nil {
		return fail(fmt.Errorf("open checkpoint store: %w", err))
	}
	if err := checkpoints.Load(cfg.Symbol, learner); err != nil {
		if !errors.Is(err, rl.ErrNoCheckpoint) {
			return fail(fmt.Errorf("load checkpoint: %w", err))
		}
		if mode == agent.ModeRun {
			logger.Warn().Str("symbol", cfg.Symbol).Msg("no checkpoint found, running with an untrained policy")
		}
	} else {
		logger.Info().Str("symbol", cfg.Symbol).Msg("restored learner from checkpoint")
	}

	discretizer := rl.NewDiscretizer()

	manager := earning.NewManager(banditEpsilon, cfg.Seed)
	manager.Register(earning.NewMomentumStrategy())
	manager.Register(earning.NewMeanReversionStrategy())
	manager.Register(earning.NewPolicyStrategy(learner, discretizer))

	store, err = storage.Open(cfg.DBPath)
	if err != nil {
		return fail(fmt.Errorf("open store: %w", err))
	}

	recorder, err = storage.NewRecorder(ctx, store, models.SessionRecord{
		ID:     uuid.NewString(),
		Mode:   mode,
		Symbol: cfg.Symbol,
	})
	if err != nil {
		return fail(fmt.Errorf("start recorder: %w", err))
	}

	adv, err := advisor.New(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("advisor unavailable, continuing without it")
		adv = nil
	}

	opts := agent.Options{
		Mode:          mode,
		Symbol:        cfg.Symbol,
		Episodes:      cfg.Episodes,
		ReplayBatch:   cfg.ReplayBatch,
		CheckpointKey: cfg.Symbol,
	}
	if cfg.EarningTarget != "" {
		target, err := decimal.NewFromString(cfg.EarningTarget)
		if err != nil {
			return fail(fmt.Errorf("parse earning_target: %w", err))
		}
		opts.EarningTarget = target
		opts.HasTarget = true
	}

	ag, err := agent.New(opts, agent.Deps{
		Env:         market,
		Learner:     learner,
		Discretizer: discretizer,
		Replay:      rl.NewReplayBuffer(cfg.ReplayCapacity),
		Manager:     manager,
		Recorder:    recorder,
		Advisor:     adv,
		Checkpoints: checkpoints,
	})
	if err != nil {
		return fail(fmt.Errorf("build agent: %w", err))
	}

	return &Session{
		Agent:       ag,
		Store:       store,
		checkpoints: checkpoints,
		flows:       flows,
	}, nil
}
