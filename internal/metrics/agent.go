// Package metrics exposes Prometheus instrumentation for the agent loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	// EpisodesTotal counts completed episodes by mode and symbol.
	EpisodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoagent_episodes_total",
		Help: "Total number of completed episodes by mode and symbol",
	}, []string{"mode", "symbol"})

	// StepsTotal counts environment steps by action taken.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoagent_steps_total",
		Help: "Total number of environment steps by action",
	}, []string{"action"})

	// EpisodeReward tracks the distribution of per-episode reward.
	EpisodeReward = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autoagent_episode_reward",
		Help:    "Total reward collected per episode",
		Buckets: []float64{-500, -100, -50, -10, 0, 10, 50, 100, 500, 1000},
	}, []string{"symbol"})

	// Epsilon reports the learner's current exploration rate.
	Epsilon = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autoagent_epsilon",
		Help: "Current epsilon-greedy exploration rate",
	})

	// NetEarnings reports cumulative realized net earnings per strategy.
	NetEarnings = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autoagent_net_earnings",
		Help: "Cumulative realized net earnings by strategy",
	}, []string{"strategy"})

	// QTableStates reports the number of distinct states the learner has seen.
	QTableStates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autoagent_qtable_states",
		Help: "Number of distinct states in the Q-table",
	})
)

// ObserveEpisode records one finished episode.
func ObserveEpisode(mode, symbol string, reward float64) {
	EpisodesTotal.WithLabelValues(mode, symbol).Inc()
	EpisodeReward.WithLabelValues(symbol).Observe(reward)
}

// ObserveStep records one environment step.
func ObserveStep(action string) {
	StepsTotal.WithLabelValues(action).Inc()
}

// SetNetEarnings publishes a strategy's cumulative net.
func SetNetEarnings(strategy string, net decimal.Decimal) {
	v, _ := net.Float64()
	NetEarnings.WithLabelValues(strategy).Set(v)
}
