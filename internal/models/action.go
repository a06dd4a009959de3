package models

import "github.com/shopspring/decimal"

// Action is one of the three moves the agent can make on a step.
type Action int

const (
	Hold Action = iota
	Buy
	Sell
)

// Actions lists the full action space in selection order.
var Actions = []Action{Hold, Buy, Sell}

func (a Action) String() string {
	switch a {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "hold"
	}
}

// ParseAction maps a stored action string back to its Action value.
// Unknown strings fall back to Hold.
func ParseAction(s string) Action {
	switch s {
	case "buy":
		return Buy
	case "sell":
		return Sell
	default:
		return Hold
	}
}

// Observation is what the environment hands the agent on every step.
// Features is the learner-facing view; the decimal fields keep exact
// portfolio accounting for the earning ledger.
type Observation struct {
	Symbol   string
	Step     int
	Price    decimal.Decimal
	Cash     decimal.Decimal
	Position decimal.Decimal
	Equity   decimal.Decimal
	Features []float64
}

// HasPosition reports whether the agent currently holds any quantity.
func (o Observation) HasPosition() bool {
	return o.Position.IsPositive()
}
