package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionRecord tracks one train/run/backtest invocation.
type SessionRecord struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Symbol    string    `json:"symbol"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EpisodeRecord summarizes one completed episode inside a session.
type EpisodeRecord struct {
	RowID       int64           `json:"row_id"`
	SessionID   string          `json:"session_id"`
	Episode     int             `json:"episode"`
	Steps       int             `json:"steps"`
	Reward      float64         `json:"reward"`
	StartEquity decimal.Decimal `json:"start_equity"`
	EndEquity   decimal.Decimal `json:"end_equity"`
	Net         decimal.Decimal `json:"net"`
	Strategy    string          `json:"strategy"`
	Epsilon     float64         `json:"epsilon"`
	Commentary  string          `json:"commentary,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DecisionRecord captures a single action taken during an episode.
type DecisionRecord struct {
	SessionID  string          `json:"session_id"`
	Episode    int             `json:"episode"`
	Step       int             `json:"step"`
	Action     string          `json:"action"`
	Strategy   string          `json:"strategy"`
	Price      decimal.Decimal `json:"price"`
	Confidence float64         `json:"confidence"`
	Reward     float64         `json:"reward"`
}

// EarningRecord is one append-only row in the revenue ledger.
type EarningRecord struct {
	SessionID string          `json:"session_id"`
	Strategy  string          `json:"strategy"`
	Symbol    string          `json:"symbol"`
	Gross     decimal.Decimal `json:"gross"`
	Fees      decimal.Decimal `json:"fees"`
	Net       decimal.Decimal `json:"net"`
	At        time.Time       `json:"at"`
}
