package earning

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoStrategies is returned when the manager has nothing to allocate.
var ErrNoStrategies = errors.New("no strategies registered")

type scorecard struct {
	plays int
	wins  int
	net   decimal.Decimal
}

// Manager allocates episodes across strategies with an epsilon-greedy
// bandit scored by realized net return, and keeps the revenue totals.
type Manager struct {
	mu         sync.Mutex
	strategies []Strategy
	scores     map[string]*scorecard
	epsilon    float64
	rng        *rand.Rand
}

func NewManager(epsilon float64, seed int64) *Manager {
	if epsilon < 0 {
		epsilon = 0
	}
	if epsilon > 1 {
		epsilon = 1
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Manager{
		scores:  make(map[string]*scorecard),
		epsilon: epsilon,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Register adds a strategy; a strategy with a duplicate name replaces
// the earlier one.
func (m *Manager) Register(s Strategy) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.strategies {
		if existing.Name() == s.Name() {
			m.strategies[i] = s
			return
		}
	}
	m.strategies = append(m.strategies, s)
	if _, ok := m.scores[s.Name()]; !ok {
		m.scores[s.Name()] = &scorecard{}
	}
}

func (m *Manager) Strategies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.strategies))
	for _, s := range m.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Pick chooses the strategy for the next episode. Untried strategies
// are explored first; otherwise the epsilon branch picks at random and
// the greedy branch takes the best mean net per play.
func (m *Manager) Pick() (Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.strategies) == 0 {
		return nil, ErrNoStrategies
	}

	var untried []Strategy
	for _, s := range m.strategies {
		if m.scores[s.Name()].plays == 0 {
			untried = append(untried, s)
		}
	}
	if len(untried) > 0 {
		return untried[m.rng.Intn(len(untried))], nil
	}

	if m.rng.Float64() < m.epsilon {
		return m.strategies[m.rng.Intn(len(m.strategies))], nil
	}

	best := m.strategies[0]
	bestMean := m.meanNet(best.Name())
	for _, s := range m.strategies[1:] {
		if mean := m.meanNet(s.Name()); mean.GreaterThan(bestMean) {
			best = s
			bestMean = mean
		}
	}
	return best, nil
}

func (m *Manager) meanNet(name string) decimal.Decimal {
	sc := m.scores[name]
	if sc == nil || sc.plays == 0 {
		return decimal.Zero
	}
	return sc.net.DivRound(decimal.NewFromInt(int64(sc.plays)), 8)
}

// RecordResult feeds one episode's realized net back into the scorecard.
func (m *Manager) RecordResult(name string, net decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc, ok := m.scores[name]
	if !ok {
		sc = &scorecard{}
		m.scores[name] = sc
	}
	sc.plays++
	sc.net = sc.net.Add(net)
	if net.IsPositive() {
		sc.wins++
	}
}

// StrategyReport summarizes one strategy's realized results.
type StrategyReport struct {
	Name    string          `json:"name"`
	Plays   int             `json:"plays"`
	Net     decimal.Decimal `json:"net"`
	WinRate float64         `json:"win_rate"`
}

// Report aggregates the scorecards, in registration order.
type Report struct {
	Total      decimal.Decimal  `json:"total"`
	Strategies []StrategyReport `json:"strategies"`
}

func (m *Manager) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := Report{Total: decimal.Zero}
	for _, s := range m.strategies {
		sc := m.scores[s.Name()]
		if sc == nil {
			sc = &scorecard{}
		}
		winRate := 0.0
		if sc.plays > 0 {
			winRate = float64(sc.wins) / float64(sc.plays)
		}
		report.Strategies = append(report.Strategies, StrategyReport{
			Name:    s.Name(),
			Plays:   sc.plays,
			Net:     sc.net,
			WinRate: winRate,
		})
		report.Total = report.Total.Add(sc.net)
	}
	return report
}
