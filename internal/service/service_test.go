package service

import (
	"context"
	"testing"

	"github.com/reflexcoder/autoagent/internal/agent"
	"github.com/reflexcoder/autoagent/internal/config"
	"github.com/reflexcoder/autoagent/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.Episodes = 3
	cfg.MaxSteps = 15
	cfg.WindowSize = 5
	cfg.MarketSource = "synthetic"
	cfg.Seed = 7
	cfg.OnlineTools = false
	cfg.AdvisorEnabled = false
	return cfg
}

func TestNewSessionTrainEndToEnd(t *testing.T) {
	cfg := testConfig(t)

	sess, err := NewSession(context.Background(), cfg, agent.ModeTrain)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	result, err := sess.Agent.RunSession(context.Background())
	if err != nil {
		t.Fatalf("RunSession: %v", err)
	}
	if len(result.Episodes) != cfg.Episodes {
		t.Fatalf("episodes = %d, want %d", len(result.Episodes), cfg.Episodes)
	}

	rec, err := sess.Store.GetSession(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if rec == nil {
		t.Fatal("session row not persisted")
	}
	if rec.Status != storage.StatusDone {
		t.Fatalf("status = %q, want %q", rec.Status, storage.StatusDone)
	}
}

func TestNewSessionRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Episodes = 0

	if _, err := NewSession(context.Background(), cfg, agent.ModeTrain); err == nil {
		t.Fatal("expected error for zero episodes")
	}
}

func TestFailedWiringMarksSessionErrored(t *testing.T) {
	cfg := testConfig(t)
	cfg.EarningTarget = "not-a-number"

	if _, err := NewSession(context.Background(), cfg, agent.ModeTrain); err == nil {
		t.Fatal("expected error for unparsable earning target")
	}

	// The session row was created before the failure and must not be
	// left dangling in the running state.
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()

	sessions, err := store.ListSessions(context.Background(), 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	if sessions[0].Status != storage.StatusError {
		t.Errorf("status = %q, want %q", sessions[0].Status, storage.StatusError)
	}
}

func TestRunModeLoadsTrainedCheckpoint(t *testing.T) {
	cfg := testConfig(t)

	train, err := NewSession(context.Background(), cfg, agent.ModeTrain)
	if err != nil {
		t.Fatalf("NewSession train: %v", err)
	}
	if _, err := train.Agent.RunSession(context.Background()); err != nil {
		train.Close()
		t.Fatalf("train RunSession: %v", err)
	}
	train.Close()

	run, err := NewSession(context.Background(), cfg, agent.ModeRun)
	if err != nil {
		t.Fatalf("NewSession run: %v", err)
	}
	defer run.Close()

	if _, err := run.Agent.RunSession(context.Background()); err != nil {
		t.Fatalf("run RunSession: %v", err)
	}
}
