package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/reflexcoder/autoagent/internal/earning"
	"github.com/reflexcoder/autoagent/internal/env"
	"github.com/reflexcoder/autoagent/internal/models"
	"github.com/reflexcoder/autoagent/internal/rl"
	"github.com/reflexcoder/autoagent/internal/storage"
)

func testEnv(t *testing.T, maxSteps int) *env.MarketEnvironment {
	t.Helper()
	market, err := env.NewMarketEnvironment(env.Options{
		Symbol:        "TEST",
		WindowSize:    3,
		MaxSteps:      maxSteps,
		InitialCash:   decimal.NewFromInt(10000),
		FeeRate:       decimal.RequireFromString("0.001"),
		OrderFraction: decimal.RequireFromString("0.5"),
	}, env.NewSyntheticSource(0.0005, 0.02, 42))
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	return market
}

func testLearner(t *testing.T) *rl.Learner {
	t.Helper()
	learner, err := rl.NewLearner(rl.Params{
		Alpha:        0.1,
		Gamma:        0.95,
		Epsilon:      0.5,
		EpsilonMin:   0.05,
		EpsilonDecay: 0.9,
		Seed:         42,
	})
	if err != nil {
		t.Fatalf("new learner: %v", err)
	}
	return learner
}

func testManager(learner *rl.Learner) *earning.Manager {
	m := earning.NewManager(0.1, 42)
	m.Register(earning.NewMomentumStrategy())
	m.Register(earning.NewMeanReversionStrategy())
	m.Register(earning.NewPolicyStrategy(learner, rl.NewDiscretizer()))
	return m
}

func TestNewValidation(t *testing.T) {
	learner := testLearner(t)
	deps := Deps{
		Env:     testEnv(t, 10),
		Learner: learner,
		Manager: testManager(learner),
	}

	if _, err := New(Options{Mode: "invalid", Symbol: "TEST", Episodes: 1}, deps); err == nil {
		t.Error("expected error for bad mode")
	}
	if _, err := New(Options{Mode: ModeTrain, Episodes: 1}, deps); err == nil {
		t.Error("expected error for missing symbol")
	}
	if _, err := New(Options{Mode: ModeTrain, Symbol: "TEST", Episodes: 0}, deps); err == nil {
		t.Error("expected error for zero episodes")
	}
}

func TestTrainSession(t *testing.T) {
	learner := testLearner(t)
	agent, err := New(Options{
		Mode:        ModeTrain,
		Symbol:      "TEST",
		Episodes:    5,
		ReplayBatch: 16,
	}, Deps{
		Env:         testEnv(t, 20),
		Learner:     learner,
		Discretizer: rl.NewDiscretizer(),
		Replay:      rl.NewReplayBuffer(500),
		Manager:     testManager(learner),
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	result, err := agent.RunSession(context.Background())
	if err != nil {
		t.Fatalf("run session: %v", err)
	}

	if len(result.Episodes) != 5 {
		t.Fatalf("episodes = %d, want 5", len(result.Episodes))
	}
	for i, ep := range result.Episodes {
		if ep.Episode != i+1 {
			t.Errorf("episode %d numbered %d", i, ep.Episode)
		}
		if ep.Steps != 20 {
			t.Errorf("episode %d steps = %d, want 20", i, ep.Steps)
		}
		if ep.Strategy == "" {
			t.Errorf("episode %d has no strategy", i)
		}
	}

	if learner.Epsilon() >= 0.5 {
		t.Errorf("epsilon = %v, want decayed below 0.5", learner.Epsilon())
	}
	if learner.States() == 0 {
		t.Error("learner saw no states during training")
	}
	if len(result.Report.Strategies) != 3 {
		t.Errorf("report strategies = %d, want 3", len(result.Report.Strategies))
	}
}

func TestRunModeFreezesLearning(t *testing.T) {
	learner := testLearner(t)
	agent, err := New(Options{
		Mode:     ModeRun,
		Symbol:   "TEST",
		Episodes: 3,
	}, Deps{
		Env:     testEnv(t, 15),
		Learner: learner,
		Manager: testManager(learner),
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	before := learner.Epsilon()
	if _, err := agent.RunSession(context.Background()); err != nil {
		t.Fatalf("run session: %v", err)
	}
	if got := learner.Epsilon(); got != before {
		t.Errorf("epsilon changed in run mode: %v -> %v", before, got)
	}
	if learner.States() != 0 {
		t.Errorf("q-table grew in run mode: %d states", learner.States())
	}
}

func TestTargetAlreadyMetRecordsZeroStepEpisode(t *testing.T) {
	learner := testLearner(t)
	agent, err := New(Options{
		Mode:          ModeTrain,
		Symbol:        "TEST",
		Episodes:      10,
		EarningTarget: decimal.Zero,
		HasTarget:     true,
	}, Deps{
		Env:     testEnv(t, 20),
		Learner: learner,
		Manager: testManager(learner),
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	result, err := agent.RunSession(context.Background())
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	if !result.TargetReached {
		t.Error("expected target reached")
	}
	if len(result.Episodes) != 1 {
		t.Fatalf("episodes = %d, want single zero-step episode", len(result.Episodes))
	}
	if result.Episodes[0].Steps != 0 {
		t.Errorf("steps = %d, want 0", result.Episodes[0].Steps)
	}
}

func TestSessionPersistsThroughRecorder(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	recorder, err := storage.NewRecorder(ctx, store, models.SessionRecord{
		ID: "sess-1", Mode: ModeTrain, Symbol: "TEST",
	})
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	learner := testLearner(t)
	agent, err := New(Options{
		Mode:        ModeTrain,
		Symbol:      "TEST",
		Episodes:    3,
		ReplayBatch: 8,
	}, Deps{
		Env:      testEnv(t, 10),
		Learner:  learner,
		Replay:   rl.NewReplayBuffer(200),
		Manager:  testManager(learner),
		Recorder: recorder,
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	result, err := agent.RunSession(ctx)
	if err != nil {
		t.Fatalf("run session: %v", err)
	}
	if result.SessionID != "sess-1" {
		t.Errorf("session id = %q, want sess-1", result.SessionID)
	}

	episodes, err := store.ListEpisodes(ctx, "sess-1", 50)
	if err != nil {
		t.Fatalf("list episodes: %v", err)
	}
	if len(episodes) != 3 {
		t.Errorf("persisted episodes = %d, want 3", len(episodes))
	}

	session, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.Status != storage.StatusDone {
		t.Errorf("session status = %q, want done", session.Status)
	}
}

func TestSessionCanceled(t *testing.T) {
	learner := testLearner(t)
	agent, err := New(Options{
		Mode:     ModeTrain,
		Symbol:   "TEST",
		Episodes: 100,
	}, Deps{
		Env:     testEnv(t, 20),
		Learner: learner,
		Manager: testManager(learner),
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := agent.RunSession(ctx); err == nil {
		t.Error("expected error for canceled context")
	}
}
