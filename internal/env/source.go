package env

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reflexcoder/autoagent/internal/models"
)

// BarSource produces the daily bar series an environment episode runs over.
type BarSource interface {
	Name() string
	Bars(ctx context.Context, symbol string, count int) ([]models.MarketData, error)
}

// BarProvider is the slice of the dataflows interface the replay source needs.
type BarProvider interface {
	GetBarsWindow(symbol string, days int) ([]*models.MarketData, error)
}

// SentimentSource supplies an aggregate news sentiment score for a
// symbol, roughly in [-1, 1]. Fetches happen on Reset, so
// implementations are expected to cache.
type SentimentSource interface {
	Sentiment(ctx context.Context, symbol string) (float64, error)
}

// ReplaySource replays historical bars fetched through dataflows.
type ReplaySource struct {
	provider BarProvider
}

func NewReplaySource(provider BarProvider) *ReplaySource {
	return &ReplaySource{provider: provider}
}

func (s *ReplaySource) Name() string { return "replay" }

func (s *ReplaySource) Bars(_ context.Context, symbol string, count int) ([]models.MarketData, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("replay source has no data provider")
	}
	// Calendar days outnumber trading days, fetch with headroom.
	days := count*7/5 + 10
	raw, err := s.provider.GetBarsWindow(symbol, days)
	if err != nil {
		return nil, fmt.Errorf("replay bars for %s: %w", symbol, err)
	}

	bars := make([]models.MarketData, 0, len(raw))
	for _, bar := range raw {
		if bar == nil {
			continue
		}
		bars = append(bars, *bar)
	}
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return bars, nil
}

// SyntheticSource generates bars from a geometric Brownian motion walk.
// A fixed seed makes the series reproducible.
type SyntheticSource struct {
	Drift      float64
	Volatility float64
	Seed       int64
	BasePrice  float64
}

func NewSyntheticSource(drift, volatility float64, seed int64) *SyntheticSource {
	return &SyntheticSource{
		Drift:      drift,
		Volatility: volatility,
		Seed:       seed,
		BasePrice:  100,
	}
}

func (s *SyntheticSource) Name() string { return "synthetic" }

func (s *SyntheticSource) Bars(_ context.Context, symbol string, count int) ([]models.MarketData, error) {
	if count <= 0 {
		return nil, fmt.Errorf("bar count must be positive, got %d", count)
	}

	seed := s.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	base := s.BasePrice
	if base <= 0 {
		base = 100
	}

	bars := make([]models.MarketData, 0, count)
	price := base
	day := time.Now().UTC().AddDate(0, 0, -count)
	for i := 0; i < count; i++ {
		ret := math.Exp((s.Drift-0.5*s.Volatility*s.Volatility) + s.Volatility*rng.NormFloat64())
		next := price * ret

		open := decimal.NewFromFloat(price).Round(4)
		closePx := decimal.NewFromFloat(next).Round(4)
		high := decimal.Max(open, closePx).Mul(decimal.NewFromFloat(1 + 0.002*rng.Float64())).Round(4)
		low := decimal.Min(open, closePx).Mul(decimal.NewFromFloat(1 - 0.002*rng.Float64())).Round(4)

		bars = append(bars, models.MarketData{
			Symbol:    symbol,
			Date:      day,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			AdjClose:  closePx,
			Volume:    1_000_000 + rng.Int63n(9_000_000),
			Timestamp: time.Now().UTC(),
		})

		price = next
		day = day.AddDate(0, 0, 1)
	}
	return bars, nil
}
