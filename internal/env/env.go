// Package env implements the market environment the agent acts in:
// a bar-by-bar walk over a price series with decimal portfolio
// accounting for cash, position and fees.
package env

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/reflexcoder/autoagent/internal/models"
)

// ErrEpisodeDone is returned by Step once the episode has ended.
var ErrEpisodeDone = errors.New("episode is done, call Reset")

// Options configures a MarketEnvironment.
type Options struct {
	Symbol        string
	WindowSize    int
	MaxSteps      int
	InitialCash   decimal.Decimal
	FeeRate       decimal.Decimal
	OrderFraction decimal.Decimal

	// Sentiment optionally feeds a news sentiment score into the
	// observation. Nil leaves the feature at zero.
	Sentiment SentimentSource
}

// MarketEnvironment walks a bar series one step at a time. Buys spend a
// fixed fraction of cash, sells release a fixed fraction of the
// position, and every fill pays fees. Cash and position never go
// negative: unaffordable buys are clipped, sells without a position
// degrade to holds.
type MarketEnvironment struct {
	opts   Options
	source BarSource

	bars  []models.MarketData
	idx   int
	steps int
	done  bool

	cash     decimal.Decimal
	position decimal.Decimal
	feesPaid decimal.Decimal

	sentiment float64
}

func NewMarketEnvironment(opts Options, source BarSource) (*MarketEnvironment, error) {
	if source == nil {
		return nil, fmt.Errorf("bar source is required")
	}
	if opts.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if opts.WindowSize < 2 {
		return nil, fmt.Errorf("window size must be at least 2, got %d", opts.WindowSize)
	}
	if opts.MaxSteps <= 0 {
		return nil, fmt.Errorf("max steps must be positive, got %d", opts.MaxSteps)
	}
	if !opts.InitialCash.IsPositive() {
		return nil, fmt.Errorf("initial cash must be positive, got %s", opts.InitialCash)
	}
	if opts.FeeRate.IsNegative() {
		return nil, fmt.Errorf("fee rate must not be negative, got %s", opts.FeeRate)
	}
	if !opts.OrderFraction.IsPositive() || opts.OrderFraction.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("order fraction must be in (0, 1], got %s", opts.OrderFraction)
	}
	return &MarketEnvironment{opts: opts, source: source, done: true}, nil
}

// Reset loads a fresh bar series and restores the starting portfolio.
func (e *MarketEnvironment) Reset(ctx context.Context) (models.Observation, error) {
	count := e.opts.WindowSize + e.opts.MaxSteps + 1
	bars, err := e.source.Bars(ctx, e.opts.Symbol, count)
	if err != nil {
		return models.Observation{}, fmt.Errorf("load bars: %w", err)
	}
	if len(bars) <= e.opts.WindowSize {
		return models.Observation{}, fmt.Errorf("need more than %d bars for %s, got %d",
			e.opts.WindowSize, e.opts.Symbol, len(bars))
	}

	e.bars = bars
	e.idx = e.opts.WindowSize
	e.steps = 0
	e.done = false
	e.cash = e.opts.InitialCash
	e.position = decimal.Zero
	e.feesPaid = decimal.Zero

	// Sentiment is advisory: a failed fetch leaves the feature at zero
	// rather than aborting the episode.
	e.sentiment = 0
	if e.opts.Sentiment != nil {
		if score, err := e.opts.Sentiment.Sentiment(ctx, e.opts.Symbol); err == nil {
			e.sentiment = score
		}
	}

	return e.observe(), nil
}

// Step applies an action at the current bar's close, advances to the
// next bar and rewards the change in portfolio equity.
func (e *MarketEnvironment) Step(_ context.Context, action models.Action) (models.Observation, float64, bool, error) {
	if e.done {
		return models.Observation{}, 0, true, ErrEpisodeDone
	}

	price := e.bars[e.idx].Close
	equityBefore := e.equityAt(price)

	switch action {
	case models.Buy:
		e.buy(price)
	case models.Sell:
		e.sell(price)
	}

	e.idx++
	e.steps++
	if e.idx >= len(e.bars) || e.steps >= e.opts.MaxSteps {
		e.done = true
		if e.idx >= len(e.bars) {
			e.idx = len(e.bars) - 1
		}
	}

	equityAfter := e.equityAt(e.bars[e.idx].Close)
	reward, _ := equityAfter.Sub(equityBefore).Float64()

	return e.observe(), reward, e.done, nil
}

func (e *MarketEnvironment) buy(price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	budget := e.cash.Mul(e.opts.OrderFraction)
	one := decimal.NewFromInt(1)
	// Fees come out of the budget, and the quantity is truncated so
	// cash cannot go negative.
	qty := budget.Div(price.Mul(one.Add(e.opts.FeeRate))).Truncate(8)
	if !qty.IsPositive() {
		return
	}
	cost := qty.Mul(price)
	fee := cost.Mul(e.opts.FeeRate)
	e.cash = e.cash.Sub(cost).Sub(fee)
	e.position = e.position.Add(qty)
	e.feesPaid = e.feesPaid.Add(fee)
}

func (e *MarketEnvironment) sell(price decimal.Decimal) {
	if !e.position.IsPositive() || !price.IsPositive() {
		return
	}
	qty := e.position.Mul(e.opts.OrderFraction)
	if qty.GreaterThan(e.position) {
		qty = e.position
	}
	proceeds := qty.Mul(price)
	fee := proceeds.Mul(e.opts.FeeRate)
	e.cash = e.cash.Add(proceeds).Sub(fee)
	e.position = e.position.Sub(qty)
	e.feesPaid = e.feesPaid.Add(fee)
}

func (e *MarketEnvironment) equityAt(price decimal.Decimal) decimal.Decimal {
	return e.cash.Add(e.position.Mul(price))
}

// Equity values the portfolio at the current bar.
func (e *MarketEnvironment) Equity() decimal.Decimal {
	if len(e.bars) == 0 {
		return e.opts.InitialCash
	}
	return e.equityAt(e.bars[e.idx].Close)
}

// Net is equity minus starting cash.
func (e *MarketEnvironment) Net() decimal.Decimal {
	return e.Equity().Sub(e.opts.InitialCash)
}

func (e *MarketEnvironment) Cash() decimal.Decimal     { return e.cash }
func (e *MarketEnvironment) Position() decimal.Decimal { return e.position }
func (e *MarketEnvironment) FeesPaid() decimal.Decimal { return e.feesPaid }
func (e *MarketEnvironment) Done() bool                { return e.done }
func (e *MarketEnvironment) Steps() int                { return e.steps }

func (e *MarketEnvironment) observe() models.Observation {
	price := e.bars[e.idx].Close
	return models.Observation{
		Symbol:   e.opts.Symbol,
		Step:     e.steps,
		Price:    price,
		Cash:     e.cash,
		Position: e.position,
		Equity:   e.equityAt(price),
		Features: e.features(),
	}
}

// features summarizes the lookback window: last return, momentum over
// the window, return volatility, the episode's news sentiment score
// and a position flag. The position flag stays last, the discretizer
// treats it as a binary feature.
func (e *MarketEnvironment) features() []float64 {
	w := e.opts.WindowSize
	window := e.bars[e.idx-w : e.idx+1]

	returns := make([]float64, 0, w)
	for i := 1; i < len(window); i++ {
		prev, _ := window[i-1].Close.Float64()
		cur, _ := window[i].Close.Float64()
		if prev <= 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, cur/prev-1)
	}

	lastReturn := 0.0
	if len(returns) > 0 {
		lastReturn = returns[len(returns)-1]
	}

	first, _ := window[0].Close.Float64()
	last, _ := window[len(window)-1].Close.Float64()
	momentum := 0.0
	if first > 0 {
		momentum = last/first - 1
	}

	positionFlag := 0.0
	if e.position.IsPositive() {
		positionFlag = 1
	}

	return []float64{lastReturn, momentum, stddev(returns), e.sentiment, positionFlag}
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	variance := 0.0
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs) - 1)
	return math.Sqrt(variance)
}
