package env

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reflexcoder/autoagent/internal/models"
)

type fixedSource struct {
	bars []models.MarketData
	err  error
}

func (s *fixedSource) Name() string { return "fixed" }

func (s *fixedSource) Bars(_ context.Context, _ string, _ int) ([]models.MarketData, error) {
	return s.bars, s.err
}

func flatBars(n int, price string) []models.MarketData {
	px := decimal.RequireFromString(price)
	bars := make([]models.MarketData, n)
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.MarketData{
			Symbol: "TEST", Date: day.AddDate(0, 0, i),
			Open: px, High: px, Low: px, Close: px, AdjClose: px,
			Volume: 1000,
		}
	}
	return bars
}

func testOptions() Options {
	return Options{
		Symbol:        "TEST",
		WindowSize:    3,
		MaxSteps:      10,
		InitialCash:   decimal.NewFromInt(10000),
		FeeRate:       decimal.RequireFromString("0.001"),
		OrderFraction: decimal.RequireFromString("0.5"),
	}
}

func TestResetRequiresEnoughBars(t *testing.T) {
	envr, err := NewMarketEnvironment(testOptions(), &fixedSource{bars: flatBars(2, "100")})
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	if _, err := envr.Reset(context.Background()); err == nil {
		t.Fatal("expected error for short bar series")
	}
}

func TestStepAfterDone(t *testing.T) {
	opts := testOptions()
	opts.MaxSteps = 1
	envr, err := NewMarketEnvironment(opts, &fixedSource{bars: flatBars(20, "100")})
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	ctx := context.Background()
	if _, err := envr.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	_, _, done, err := envr.Step(ctx, models.Hold)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !done {
		t.Fatal("expected done after max steps")
	}

	if _, _, _, err := envr.Step(ctx, models.Hold); !errors.Is(err, ErrEpisodeDone) {
		t.Errorf("step after done: err = %v, want ErrEpisodeDone", err)
	}
}

func TestBuyPaysFeesAndKeepsCashNonNegative(t *testing.T) {
	opts := testOptions()
	opts.OrderFraction = decimal.NewFromInt(1)
	envr, err := NewMarketEnvironment(opts, &fixedSource{bars: flatBars(20, "100")})
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	ctx := context.Background()
	if _, err := envr.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	obs, reward, _, err := envr.Step(ctx, models.Buy)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if envr.Cash().IsNegative() {
		t.Errorf("cash went negative: %s", envr.Cash())
	}
	if !obs.HasPosition() {
		t.Error("expected a position after buy")
	}
	if !envr.FeesPaid().IsPositive() {
		t.Errorf("expected fees paid, got %s", envr.FeesPaid())
	}
	// Flat prices: the only equity change is the buy fee.
	if reward >= 0 {
		t.Errorf("reward = %v, want negative (fee drag)", reward)
	}
}

func TestSellWithoutPositionIsHold(t *testing.T) {
	envr, err := NewMarketEnvironment(testOptions(), &fixedSource{bars: flatBars(20, "100")})
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	ctx := context.Background()
	if _, err := envr.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	_, reward, _, err := envr.Step(ctx, models.Sell)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if reward != 0 {
		t.Errorf("reward = %v, want 0 for ignored sell on flat prices", reward)
	}
	if !envr.Position().IsZero() {
		t.Errorf("position = %s, want zero (no shorting)", envr.Position())
	}
	if !envr.Cash().Equal(decimal.NewFromInt(10000)) {
		t.Errorf("cash = %s, want untouched 10000", envr.Cash())
	}
}

func TestRoundTripBuySell(t *testing.T) {
	opts := testOptions()
	opts.OrderFraction = decimal.NewFromInt(1)
	envr, err := NewMarketEnvironment(opts, &fixedSource{bars: flatBars(20, "100")})
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	ctx := context.Background()
	if _, err := envr.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, _, _, err := envr.Step(ctx, models.Buy); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, _, _, err := envr.Step(ctx, models.Sell); err != nil {
		t.Fatalf("sell: %v", err)
	}

	if !envr.Position().IsZero() {
		t.Errorf("position = %s, want zero after full sell", envr.Position())
	}
	// Flat prices, so the round trip loses exactly the fees.
	wantEquity := decimal.NewFromInt(10000).Sub(envr.FeesPaid())
	if !envr.Equity().Equal(wantEquity) {
		t.Errorf("equity = %s, want %s", envr.Equity(), wantEquity)
	}
	if envr.Net().IsPositive() {
		t.Errorf("net = %s, want non-positive after fee-only round trip", envr.Net())
	}
}

func TestObservationFeatures(t *testing.T) {
	envr, err := NewMarketEnvironment(testOptions(), &fixedSource{bars: flatBars(20, "100")})
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	obs, err := envr.Reset(context.Background())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(obs.Features) != 5 {
		t.Fatalf("feature count = %d, want 5", len(obs.Features))
	}
	for i, f := range obs.Features {
		if f != 0 {
			t.Errorf("feature[%d] = %v, want 0 on flat series", i, f)
		}
	}
	if !obs.Equity.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("equity = %s, want 10000", obs.Equity)
	}
}

type fixedSentiment struct {
	score float64
	err   error
	calls int
}

func (s *fixedSentiment) Sentiment(context.Context, string) (float64, error) {
	s.calls++
	return s.score, s.err
}

func TestSentimentFeedsObservation(t *testing.T) {
	opts := testOptions()
	sentiment := &fixedSentiment{score: 0.4}
	opts.Sentiment = sentiment

	envr, err := NewMarketEnvironment(opts, &fixedSource{bars: flatBars(20, "100")})
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	ctx := context.Background()
	obs, err := envr.Reset(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	if got := obs.Features[len(obs.Features)-2]; got != 0.4 {
		t.Errorf("sentiment feature = %v, want 0.4", got)
	}
	if got := obs.Features[len(obs.Features)-1]; got != 0 {
		t.Errorf("position flag = %v, want 0", got)
	}

	// One fetch per episode, steps reuse the score.
	if _, _, _, err := envr.Step(ctx, models.Hold); err != nil {
		t.Fatalf("step: %v", err)
	}
	if sentiment.calls != 1 {
		t.Errorf("sentiment calls = %d, want 1", sentiment.calls)
	}
}

func TestSentimentFetchFailureIsZero(t *testing.T) {
	opts := testOptions()
	opts.Sentiment = &fixedSentiment{score: 0.9, err: errors.New("feed down")}

	envr, err := NewMarketEnvironment(opts, &fixedSource{bars: flatBars(20, "100")})
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	obs, err := envr.Reset(context.Background())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := obs.Features[len(obs.Features)-2]; got != 0 {
		t.Errorf("sentiment feature = %v, want 0 when the fetch fails", got)
	}
}

func TestSyntheticSourceDeterministic(t *testing.T) {
	a := NewSyntheticSource(0.0002, 0.02, 42)
	b := NewSyntheticSource(0.0002, 0.02, 42)

	ctx := context.Background()
	barsA, err := a.Bars(ctx, "SYN", 50)
	if err != nil {
		t.Fatalf("bars a: %v", err)
	}
	barsB, err := b.Bars(ctx, "SYN", 50)
	if err != nil {
		t.Fatalf("bars b: %v", err)
	}
	if len(barsA) != 50 || len(barsB) != 50 {
		t.Fatalf("lengths = %d, %d, want 50", len(barsA), len(barsB))
	}
	for i := range barsA {
		if !barsA[i].Close.Equal(barsB[i].Close) {
			t.Fatalf("bar %d close differs: %s vs %s", i, barsA[i].Close, barsB[i].Close)
		}
	}
	for _, bar := range barsA {
		if !bar.Close.IsPositive() {
			t.Fatalf("non-positive close %s", bar.Close)
		}
		if bar.High.LessThan(bar.Low) {
			t.Fatalf("high %s below low %s", bar.High, bar.Low)
		}
	}
}

func TestSyntheticEpisodeRuns(t *testing.T) {
	opts := testOptions()
	opts.MaxSteps = 30
	envr, err := NewMarketEnvironment(opts, NewSyntheticSource(0.0002, 0.02, 7))
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	ctx := context.Background()
	if _, err := envr.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	actions := []models.Action{models.Buy, models.Hold, models.Sell}
	steps := 0
	for {
		_, _, done, err := envr.Step(ctx, actions[steps%len(actions)])
		if err != nil {
			t.Fatalf("step %d: %v", steps, err)
		}
		steps++
		if done {
			break
		}
		if steps > opts.MaxSteps {
			t.Fatal("episode did not terminate")
		}
	}
	if envr.Cash().IsNegative() || envr.Position().IsNegative() {
		t.Errorf("invariant broken: cash=%s position=%s", envr.Cash(), envr.Position())
	}
}
