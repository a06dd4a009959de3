// Package rl implements a tabular Q-learning policy with epsilon-greedy
// exploration, experience replay and Badger-backed checkpoints.
package rl

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/reflexcoder/autoagent/internal/models"
)

// Params tunes the learner.
type Params struct {
	Alpha        float64
	Gamma        float64
	Epsilon      float64
	EpsilonMin   float64
	EpsilonDecay float64
	Seed         int64
}

// Learner holds the Q-table and the exploration schedule. Safe for
// concurrent use.
type Learner struct {
	mu      sync.Mutex
	params  Params
	epsilon float64
	qtable  map[string][]float64
	rng     *rand.Rand
}

func NewLearner(params Params) (*Learner, error) {
	if params.Alpha <= 0 || params.Alpha > 1 {
		return nil, fmt.Errorf("alpha must be in (0, 1], got %v", params.Alpha)
	}
	if params.Gamma < 0 || params.Gamma > 1 {
		return nil, fmt.Errorf("gamma must be in [0, 1], got %v", params.Gamma)
	}
	if params.Epsilon < 0 || params.Epsilon > 1 {
		return nil, fmt.Errorf("epsilon must be in [0, 1], got %v", params.Epsilon)
	}
	if params.EpsilonMin < 0 || params.EpsilonMin > params.Epsilon {
		return nil, fmt.Errorf("epsilon_min must be in [0, epsilon], got %v", params.EpsilonMin)
	}
	if params.EpsilonDecay <= 0 || params.EpsilonDecay > 1 {
		return nil, fmt.Errorf("epsilon_decay must be in (0, 1], got %v", params.EpsilonDecay)
	}

	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Learner{
		params:  params,
		epsilon: params.Epsilon,
		qtable:  make(map[string][]float64),
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// SelectAction picks epsilon-greedily; explore reports whether the
// action came from the random branch.
func (l *Learner) SelectAction(state string) (action models.Action, explore bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rng.Float64() < l.epsilon {
		return models.Actions[l.rng.Intn(len(models.Actions))], true
	}
	return l.greedyLocked(state), false
}

// GreedyAction picks the best known action with exploration disabled.
func (l *Learner) GreedyAction(state string) models.Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.greedyLocked(state)
}

// greedyLocked breaks ties by action order, so an all-zero row yields Hold.
func (l *Learner) greedyLocked(state string) models.Action {
	values := l.readRowLocked(state)
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return models.Actions[best]
}

// Update applies one Q-learning step for the (state, action) pair.
func (l *Learner) Update(state string, action models.Action, reward float64, nextState string, done bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updateLocked(state, action, reward, nextState, done)
}

func (l *Learner) updateLocked(state string, action models.Action, reward float64, nextState string, done bool) {
	row := l.rowLocked(state)

	target := reward
	if !done {
		next := l.readRowLocked(nextState)
		best := next[0]
		for _, v := range next[1:] {
			if v > best {
				best = v
			}
		}
		target += l.params.Gamma * best
	}

	row[action] += l.params.Alpha * (target - row[action])
}

// rowLocked materializes the row, used on the update path only so
// reads never grow the table.
func (l *Learner) rowLocked(state string) []float64 {
	row, ok := l.qtable[state]
	if !ok {
		row = make([]float64, len(models.Actions))
		l.qtable[state] = row
	}
	return row
}

var zeroRow = make([]float64, len(models.Actions))

func (l *Learner) readRowLocked(state string) []float64 {
	if row, ok := l.qtable[state]; ok {
		return row
	}
	return zeroRow
}

// Replay samples a mini-batch from the buffer and replays it into
// Q-updates.
func (l *Learner) Replay(buffer *ReplayBuffer, batch int) {
	if buffer == nil || batch <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, exp := range buffer.Sample(batch, l.rng) {
		l.updateLocked(exp.State, exp.Action, exp.Reward, exp.NextState, exp.Done)
	}
}

// DecayEpsilon shrinks epsilon multiplicatively down to EpsilonMin.
func (l *Learner) DecayEpsilon() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.epsilon *= l.params.EpsilonDecay
	if l.epsilon < l.params.EpsilonMin {
		l.epsilon = l.params.EpsilonMin
	}
	return l.epsilon
}

func (l *Learner) Epsilon() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epsilon
}

// QValues returns a copy of the row for state, zeros if unseen.
func (l *Learner) QValues(state string) []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := l.readRowLocked(state)
	out := make([]float64, len(row))
	copy(out, row)
	return out
}

// States reports the number of distinct states seen so far.
func (l *Learner) States() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.qtable)
}

// snapshot and restore serialize learner state for checkpoints.
type snapshot struct {
	Epsilon float64              `json:"epsilon"`
	QTable  map[string][]float64 `json:"q_table"`
}

func (l *Learner) snapshot() snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	table := make(map[string][]float64, len(l.qtable))
	for state, row := range l.qtable {
		cp := make([]float64, len(row))
		copy(cp, row)
		table[state] = cp
	}
	return snapshot{Epsilon: l.epsilon, QTable: table}
}

func (l *Learner) restore(s snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.epsilon = s.Epsilon
	if l.epsilon < l.params.EpsilonMin {
		l.epsilon = l.params.EpsilonMin
	}
	if l.epsilon > 1 {
		l.epsilon = 1
	}

	l.qtable = make(map[string][]float64, len(s.QTable))
	for state, row := range s.QTable {
		cp := make([]float64, len(models.Actions))
		copy(cp, row)
		l.qtable[state] = cp
	}
}
