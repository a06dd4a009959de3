package dataflows

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reflexcoder/autoagent/internal/config"
	"github.com/reflexcoder/autoagent/internal/models"
)

func testInterfaceConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.OnlineTools = true
	cfg.CacheEnabled = true
	cfg.RedisEnabled = false
	return cfg
}

func TestQuoteServedFromHotCache(t *testing.T) {
	dfi := NewDataFlowInterface(testInterfaceConfig(t))
	defer dfi.Close()

	px := decimal.NewFromInt(187)
	dfi.hot.Set("quote:TEST", &models.MarketData{Symbol: "TEST", Close: px}, time.Minute)

	q, err := dfi.GetQuote("TEST")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if !q.Close.Equal(px) {
		t.Errorf("close = %s, want %s", q.Close, px)
	}
	if dfi.hot.Stats().Hits != 1 {
		t.Errorf("hot cache hits = %d, want 1", dfi.hot.Stats().Hits)
	}
}

func TestSentimentServedFromHotCache(t *testing.T) {
	dfi := NewDataFlowInterface(testInterfaceConfig(t))
	defer dfi.Close()

	dfi.hot.Set("sentiment:TEST:7", 0.25, time.Minute)

	score, _, err := dfi.GetNewsSentiment("TEST", 7)
	if err != nil {
		t.Fatalf("GetNewsSentiment: %v", err)
	}
	if score != 0.25 {
		t.Errorf("score = %v, want 0.25", score)
	}

	// The environment's sentiment feed goes through the same cache.
	score, err = dfi.Sentiment(context.Background(), "TEST")
	if err != nil {
		t.Fatalf("Sentiment: %v", err)
	}
	if score != 0.25 {
		t.Errorf("score = %v, want 0.25", score)
	}
}

func TestSentimentRequiresOnlineTools(t *testing.T) {
	cfg := testInterfaceConfig(t)
	cfg.OnlineTools = false
	dfi := NewDataFlowInterface(cfg)
	defer dfi.Close()

	if _, err := dfi.Sentiment(context.Background(), "TEST"); err == nil {
		t.Fatal("expected error with online tools disabled")
	}
}

func TestSymbolInfoWithoutCredentials(t *testing.T) {
	cfg := testInterfaceConfig(t)
	cfg.LongportAppKey = ""
	dfi := NewDataFlowInterface(cfg)
	defer dfi.Close()

	if _, err := dfi.GetSymbolInfo(context.Background(), "700.HK"); err == nil {
		t.Fatal("expected error without broker credentials")
	}
}

func TestLongportSymbolDetection(t *testing.T) {
	cases := map[string]bool{
		"700.HK":    true,
		"600519.SH": true,
		"000001.SZ": true,
		"AAPL":      false,
		"BRK.B":     false,
	}
	for symbol, want := range cases {
		if got := isLongportSymbol(symbol); got != want {
			t.Errorf("isLongportSymbol(%q) = %t, want %t", symbol, got, want)
		}
	}
}
