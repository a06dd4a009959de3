// Package agent runs the perception, decision, action loop over a
// market environment, with the learner and the earning manager deciding
// what to do on each step.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/reflexcoder/autoagent/internal/advisor"
	"github.com/reflexcoder/autoagent/internal/earning"
	"github.com/reflexcoder/autoagent/internal/env"
	"github.com/reflexcoder/autoagent/internal/log"
	"github.com/reflexcoder/autoagent/internal/metrics"
	"github.com/reflexcoder/autoagent/internal/models"
	"github.com/reflexcoder/autoagent/internal/rl"
	"github.com/reflexcoder/autoagent/internal/storage"
)

const (
	ModeTrain = "train"
	ModeRun   = "run"
)

// Options controls one agent session.
type Options struct {
	Mode        string
	Symbol      string
	Episodes    int
	ReplayBatch int

	// EarningTarget stops the session early once cumulative net
	// reaches it. Disabled when HasTarget is false.
	EarningTarget decimal.Decimal
	HasTarget     bool

	// CheckpointKey enables Q-table checkpointing when non-empty.
	CheckpointKey string
}

// Deps are the collaborators the agent drives. Recorder, Advisor and
// Checkpoints are optional.
type Deps struct {
	Env         *env.MarketEnvironment
	Learner     *rl.Learner
	Discretizer *rl.Discretizer
	Replay      *rl.ReplayBuffer
	Manager     *earning.Manager
	Recorder    *storage.Recorder
	Advisor     *advisor.Advisor
	Checkpoints *rl.CheckpointStore
}

// EpisodeResult summarizes one finished episode.
type EpisodeResult struct {
	Episode     int
	Steps       int
	Reward      float64
	StartEquity decimal.Decimal
	EndEquity   decimal.Decimal
	Net         decimal.Decimal
	Strategy    string
	Epsilon     float64
	Commentary  string
}

// SessionResult is what a full session hands back to the caller.
type SessionResult struct {
	SessionID     string
	Mode          string
	Symbol        string
	Episodes      []EpisodeResult
	TotalNet      decimal.Decimal
	TargetReached bool
	Report        earning.Report
}

// AutonomousAgent ties the environment, the learner and the earning
// manager into a self-improving loop.
type AutonomousAgent struct {
	opts   Options
	deps   Deps
	logger zerolog.Logger
}

func New(opts Options, deps Deps) (*AutonomousAgent, error) {
	if opts.Mode != ModeTrain && opts.Mode != ModeRun {
		return nil, fmt.Errorf("mode must be %q or %q, got %q", ModeTrain, ModeRun, opts.Mode)
	}
	if opts.Symbol == "" {
		return nil, errors.New("symbol is required")
	}
	if opts.Episodes <= 0 {
		return nil, fmt.Errorf("episodes must be positive, got %d", opts.Episodes)
	}
	if deps.Env == nil {
		return nil, errors.New("environment is required")
	}
	if deps.Learner == nil {
		return nil, errors.New("learner is required")
	}
	if deps.Discretizer == nil {
		deps.Discretizer = rl.NewDiscretizer()
	}
	if deps.Replay == nil {
		deps.Replay = rl.NewReplayBuffer(1)
	}
	if deps.Manager == nil {
		return nil, errors.New("earning manager is required")
	}

	return &AutonomousAgent{
		opts:   opts,
		deps:   deps,
		logger: log.WithComponent("agent"),
	}, nil
}

// RunSession executes the configured number of episodes, stopping early
// when the earning target is reached or the context is canceled.
func (a *AutonomousAgent) RunSession(ctx context.Context) (*SessionResult, error) {
	result := &SessionResult{
		Mode:     a.opts.Mode,
		Symbol:   a.opts.Symbol,
		TotalNet: decimal.Zero,
	}
	if a.deps.Recorder != nil {
		result.SessionID = a.deps.Recorder.SessionID()
	}

	var runErr error
	for episode := 1; episode <= a.opts.Episodes; episode++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		if a.targetReached(result.TotalNet) {
			result.TargetReached = true
			// A target satisfied before any work still yields one
			// recorded zero-step episode.
			if episode == 1 {
				zero, err := a.zeroStepEpisode(ctx, episode)
				if err != nil {
					runErr = err
					break
				}
				a.finishEpisode(result, zero)
			}
			break
		}

		strategy, err := a.deps.Manager.Pick()
		if err != nil {
			runErr = fmt.Errorf("pick strategy: %w", err)
			break
		}

		ep, err := a.runEpisode(ctx, episode, strategy)
		if err != nil {
			runErr = fmt.Errorf("episode %d: %w", episode, err)
			break
		}

		a.deps.Manager.RecordResult(ep.Strategy, ep.Net)
		a.finishEpisode(result, ep)

		a.logger.Info().
			Int("episode", ep.Episode).
			Int("steps", ep.Steps).
			Float64("reward", ep.Reward).
			Str("strategy", ep.Strategy).
			Str("net", ep.Net.String()).
			Msg("episode done")
	}

	if a.targetReached(result.TotalNet) {
		result.TargetReached = true
	}
	result.Report = a.deps.Manager.Report()
	for _, sr := range result.Report.Strategies {
		metrics.SetNetEarnings(sr.Name, sr.Net)
	}

	if a.opts.Mode == ModeTrain && a.deps.Checkpoints != nil && a.opts.CheckpointKey != "" {
		if err := a.deps.Checkpoints.Save(a.opts.CheckpointKey, a.deps.Learner); err != nil {
			a.logger.Error().Err(err).Msg("save checkpoint")
		}
	}

	if a.deps.Recorder != nil {
		a.deps.Recorder.Finish(runErr)
	}
	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

func (a *AutonomousAgent) targetReached(totalNet decimal.Decimal) bool {
	return a.opts.HasTarget && totalNet.GreaterThanOrEqual(a.opts.EarningTarget)
}

func (a *AutonomousAgent) finishEpisode(result *SessionResult, ep EpisodeResult) {
	result.Episodes = append(result.Episodes, ep)
	result.TotalNet = result.TotalNet.Add(ep.Net)
	metrics.ObserveEpisode(a.opts.Mode, a.opts.Symbol, ep.Reward)
	metrics.QTableStates.Set(float64(a.deps.Learner.States()))

	if a.deps.Recorder != nil {
		a.deps.Recorder.RecordEpisode(models.EpisodeRecord{
			Episode:     ep.Episode,
			Steps:       ep.Steps,
			Reward:      ep.Reward,
			StartEquity: ep.StartEquity,
			EndEquity:   ep.EndEquity,
			Net:         ep.Net,
			Strategy:    ep.Strategy,
			Epsilon:     ep.Epsilon,
			Commentary:  ep.Commentary,
		})
		if !ep.Net.IsZero() {
			gross := ep.Net.Add(a.deps.Env.FeesPaid())
			a.deps.Recorder.RecordEarning(models.EarningRecord{
				Strategy: ep.Strategy,
				Symbol:   a.opts.Symbol,
				Gross:    gross,
				Fees:     a.deps.Env.FeesPaid(),
				Net:      ep.Net,
			})
		}
	}
}

func (a *AutonomousAgent) zeroStepEpisode(ctx context.Context, episode int) (EpisodeResult, error) {
	obs, err := a.deps.Env.Reset(ctx)
	if err != nil {
		return EpisodeResult{}, fmt.Errorf("reset: %w", err)
	}
	return EpisodeResult{
		Episode:     episode,
		StartEquity: obs.Equity,
		EndEquity:   obs.Equity,
		Net:         decimal.Zero,
		Strategy:    "none",
		Epsilon:     a.deps.Learner.Epsilon(),
	}, nil
}

func (a *AutonomousAgent) runEpisode(ctx context.Context, episode int, strategy earning.Strategy) (EpisodeResult, error) {
	obs, err := a.deps.Env.Reset(ctx)
	if err != nil {
		return EpisodeResult{}, fmt.Errorf("reset: %w", err)
	}

	startEquity := obs.Equity
	state := a.deps.Discretizer.StateKey(obs)
	training := a.opts.Mode == ModeTrain

	var (
		totalReward float64
		steps       int
	)
	for {
		if err := ctx.Err(); err != nil {
			return EpisodeResult{}, err
		}

		action, confidence := a.chooseAction(ctx, strategy, obs, state)

		nextObs, reward, done, err := a.deps.Env.Step(ctx, action)
		if err != nil {
			return EpisodeResult{}, fmt.Errorf("step: %w", err)
		}
		nextState := a.deps.Discretizer.StateKey(nextObs)

		if training {
			a.deps.Learner.Update(state, action, reward, nextState, done)
			a.deps.Replay.Add(rl.Experience{
				State:     state,
				Action:    action,
				Reward:    reward,
				NextState: nextState,
				Done:      done,
			})
		}

		if a.deps.Recorder != nil {
			a.deps.Recorder.RecordDecision(models.DecisionRecord{
				Episode:    episode,
				Step:       steps,
				Action:     action.String(),
				Strategy:   strategy.Name(),
				Price:      obs.Price,
				Confidence: confidence,
				Reward:     reward,
			})
		}
		metrics.ObserveStep(action.String())

		totalReward += reward
		steps++
		obs, state = nextObs, nextState

		if done {
			break
		}
	}

	if training {
		a.deps.Learner.Replay(a.deps.Replay, a.opts.ReplayBatch)
		metrics.Epsilon.Set(a.deps.Learner.DecayEpsilon())
	}

	ep := EpisodeResult{
		Episode:     episode,
		Steps:       steps,
		Reward:      totalReward,
		StartEquity: startEquity,
		EndEquity:   a.deps.Env.Equity(),
		Net:         a.deps.Env.Net(),
		Strategy:    strategy.Name(),
		Epsilon:     a.deps.Learner.Epsilon(),
	}

	if a.deps.Advisor != nil {
		commentary, err := a.deps.Advisor.Review(ctx, a.opts.Symbol, models.EpisodeRecord{
			Episode:     ep.Episode,
			Steps:       ep.Steps,
			Reward:      ep.Reward,
			StartEquity: ep.StartEquity,
			EndEquity:   ep.EndEquity,
			Net:         ep.Net,
			Strategy:    ep.Strategy,
			Epsilon:     ep.Epsilon,
		})
		if err != nil {
			a.logger.Warn().Err(err).Msg("advisor review failed")
		} else {
			ep.Commentary = commentary
		}
	}

	return ep, nil
}

// chooseAction routes through the learner's epsilon-greedy selection
// when training the learned policy, and through the strategy otherwise.
func (a *AutonomousAgent) chooseAction(ctx context.Context, strategy earning.Strategy, obs models.Observation, state string) (models.Action, float64) {
	if a.opts.Mode == ModeTrain {
		if _, ok := strategy.(*earning.PolicyStrategy); ok {
			action, explore := a.deps.Learner.SelectAction(state)
			confidence := 1 - a.deps.Learner.Epsilon()
			if explore {
				confidence = 0
			}
			return action, confidence
		}
	}

	action, confidence, err := strategy.Propose(ctx, obs)
	if err != nil {
		a.logger.Warn().Err(err).Str("strategy", strategy.Name()).Msg("strategy propose failed, holding")
		return models.Hold, 0
	}
	return action, confidence
}
