package earning

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/reflexcoder/autoagent/internal/models"
)

func obsWithMomentum(momentum float64, hasPosition bool) models.Observation {
	pos := decimal.Zero
	if hasPosition {
		pos = decimal.NewFromInt(10)
	}
	return models.Observation{
		Symbol:   "TEST",
		Position: pos,
		Features: []float64{0, momentum, 0.01, 0, boolFlag(hasPosition)},
	}
}

func boolFlag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func TestMomentumStrategy(t *testing.T) {
	s := NewMomentumStrategy()
	ctx := context.Background()

	action, _, err := s.Propose(ctx, obsWithMomentum(0.05, false))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if action != models.Buy {
		t.Errorf("strong uptrend → %v, want buy", action)
	}

	action, _, _ = s.Propose(ctx, obsWithMomentum(-0.05, true))
	if action != models.Sell {
		t.Errorf("downtrend with position → %v, want sell", action)
	}

	// No position to sell: downtrend degrades to hold.
	action, _, _ = s.Propose(ctx, obsWithMomentum(-0.05, false))
	if action != models.Hold {
		t.Errorf("downtrend without position → %v, want hold", action)
	}

	action, _, _ = s.Propose(ctx, obsWithMomentum(0, false))
	if action != models.Hold {
		t.Errorf("flat → %v, want hold", action)
	}
}

func TestMeanReversionStrategy(t *testing.T) {
	s := NewMeanReversionStrategy()
	ctx := context.Background()

	action, _, err := s.Propose(ctx, obsWithMomentum(-0.05, false))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if action != models.Buy {
		t.Errorf("dip → %v, want buy", action)
	}

	action, _, _ = s.Propose(ctx, obsWithMomentum(0.05, true))
	if action != models.Sell {
		t.Errorf("rally with position → %v, want sell", action)
	}
}

type stubPolicy struct {
	action models.Action
	values []float64
}

func (p *stubPolicy) GreedyAction(string) models.Action { return p.action }
func (p *stubPolicy) QValues(string) []float64          { return p.values }

type stubMapper struct{}

func (stubMapper) StateKey(models.Observation) string { return "s" }

func TestPolicyStrategy(t *testing.T) {
	s := NewPolicyStrategy(&stubPolicy{action: models.Buy, values: []float64{0, 10, 2}}, stubMapper{})

	action, confidence, err := s.Propose(context.Background(), obsWithMomentum(0, false))
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if action != models.Buy {
		t.Errorf("action = %v, want buy", action)
	}
	if confidence <= 0.5 {
		t.Errorf("confidence = %v, want above 0.5 with a clear Q gap", confidence)
	}
}

func TestManagerPickEmpty(t *testing.T) {
	m := NewManager(0.1, 1)
	if _, err := m.Pick(); err != ErrNoStrategies {
		t.Errorf("err = %v, want ErrNoStrategies", err)
	}
}

func TestManagerExploresUntriedFirst(t *testing.T) {
	m := NewManager(0, 1)
	m.Register(NewMomentumStrategy())
	m.Register(NewMeanReversionStrategy())

	m.RecordResult("momentum", decimal.NewFromInt(100))

	// mean-reversion is untried, so it must be picked regardless of scores.
	s, err := m.Pick()
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if s.Name() != "mean-reversion" {
		t.Errorf("picked %q, want untried mean-reversion", s.Name())
	}
}

func TestManagerGreedyPicksBestMean(t *testing.T) {
	m := NewManager(0, 1)
	m.Register(NewMomentumStrategy())
	m.Register(NewMeanReversionStrategy())

	m.RecordResult("momentum", decimal.NewFromInt(10))
	m.RecordResult("mean-reversion", decimal.NewFromInt(-5))

	for i := 0; i < 10; i++ {
		s, err := m.Pick()
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		if s.Name() != "momentum" {
			t.Fatalf("picked %q, want greedy momentum", s.Name())
		}
	}
}

func TestManagerRegisterReplacesByName(t *testing.T) {
	m := NewManager(0.1, 1)
	m.Register(NewMomentumStrategy())
	m.Register(&MomentumStrategy{Threshold: 0.5})

	if got := len(m.Strategies()); got != 1 {
		t.Errorf("strategies = %d, want 1 after replace", got)
	}
}

func TestManagerReport(t *testing.T) {
	m := NewManager(0.1, 1)
	m.Register(NewMomentumStrategy())
	m.Register(NewMeanReversionStrategy())

	m.RecordResult("momentum", decimal.NewFromInt(100))
	m.RecordResult("momentum", decimal.NewFromInt(-40))
	m.RecordResult("mean-reversion", decimal.NewFromInt(25))

	report := m.Report()
	if !report.Total.Equal(decimal.NewFromInt(85)) {
		t.Errorf("total = %s, want 85", report.Total)
	}
	if len(report.Strategies) != 2 {
		t.Fatalf("strategies = %d, want 2", len(report.Strategies))
	}

	momentum := report.Strategies[0]
	if momentum.Name != "momentum" {
		t.Fatalf("first strategy = %q, want registration order", momentum.Name)
	}
	if momentum.Plays != 2 || !momentum.Net.Equal(decimal.NewFromInt(60)) {
		t.Errorf("momentum report = %+v", momentum)
	}
	if momentum.WinRate != 0.5 {
		t.Errorf("momentum win rate = %v, want 0.5", momentum.WinRate)
	}
}
