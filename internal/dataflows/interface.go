package dataflows

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/reflexcoder/autoagent/internal/cache"
	"github.com/reflexcoder/autoagent/internal/config"
	"github.com/reflexcoder/autoagent/internal/log"
	"github.com/reflexcoder/autoagent/internal/models"
)

const (
	quoteTTL     = time.Minute
	sentimentTTL = 15 * time.Minute

	// sentimentDays is the headline lookback for the environment's
	// sentiment feature.
	sentimentDays = 7
)

// DataFlowInterface provides high-level access to all data sources.
// Reads are offline-first: saved files win over network fetches, and
// bar series pass through the two-tier market cache.
type DataFlowInterface struct {
	yahooFinance *YahooFinanceClient
	longport     *LongportClient
	news         *NewsClient
	bars         *cache.MarketDataCache
	hot          cache.Cache
	cfg          *config.Config
}

func NewDataFlowInterface(cfg *config.Config) *DataFlowInterface {
	dfi := &DataFlowInterface{
		yahooFinance: NewYahooFinanceClient(cfg),
		news:         NewNewsClient(cfg),
		cfg:          cfg,
	}

	// HK/CN symbols get the Longport feed when credentials are present.
	if lpc, err := NewLongportClient(cfg); err == nil {
		dfi.longport = lpc
	}

	if cfg.CacheEnabled {
		dfi.bars = cache.NewMarketDataCache(filepath.Join(cfg.DataDir, "market_data", "price_data"))
		dfi.hot = newHotCache(cfg)
	}
	return dfi
}

// Close releases the broker connection and the hot cache.
func (dfi *DataFlowInterface) Close() {
	if dfi.longport != nil {
		dfi.longport.Close()
	}
	switch c := dfi.hot.(type) {
	case *cache.MemoryCache:
		c.Stop()
	case *cache.RedisCache:
		_ = c.Close()
	}
}

// Sentiment adapts the cached news sentiment score to the environment's
// sentiment feed.
func (dfi *DataFlowInterface) Sentiment(_ context.Context, symbol string) (float64, error) {
	score, _, err := dfi.GetNewsSentiment(symbol, sentimentDays)
	return score, err
}

// SymbolInfo describes a listed instrument.
type SymbolInfo struct {
	Symbol   string
	Name     string
	Exchange string
	Currency string
	LotSize  int
}

// GetSymbolInfo returns exchange metadata for a Longport-listed symbol.
func (dfi *DataFlowInterface) GetSymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error) {
	if dfi.longport == nil {
		return nil, fmt.Errorf("longport credentials not configured")
	}
	infos, err := dfi.longport.GetStaticInfo(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, fmt.Errorf("no static info for %s", symbol)
	}

	info := infos[0]
	name := info.NameEn
	if name == "" {
		name = info.NameCn
	}
	return &SymbolInfo{
		Symbol:   info.Symbol,
		Name:     name,
		Exchange: info.Exchange,
		Currency: info.Currency,
		LotSize:  int(info.LotSize),
	}, nil
}

// isLongportSymbol reports whether the symbol is listed on an exchange
// served by Longport.
func isLongportSymbol(symbol string) bool {
	for _, suffix := range []string{".HK", ".SH", ".SZ"} {
		if strings.HasSuffix(strings.ToUpper(symbol), suffix) {
			return true
		}
	}
	return false
}

// newHotCache prefers Redis when configured, falling back to memory so
// a missing Redis never blocks data access.
func newHotCache(cfg *config.Config) cache.Cache {
	logger := log.WithComponent("dataflows")
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err == nil {
			return redisCache
		}
		logger.Warn().Err(err).Msg("redis unavailable, using memory cache")
	}
	return cache.NewMemoryCache(5 * time.Minute)
}

// GetBars gets historical daily bars (offline first).
func (dfi *DataFlowInterface) GetBars(symbol string, start, end time.Time) ([]*models.MarketData, error) {
	if data, err := dfi.yahooFinance.GetOfflineData(symbol, start, end, dfi.cfg); err == nil {
		return data, nil
	}

	if dfi.cfg.OnlineTools {
		return dfi.yahooFinance.GetHistoricalData(symbol, start, end)
	}

	return nil, fmt.Errorf("offline data not available for %s and online tools disabled", symbol)
}

// GetBarsWindow gets bars for a rolling window of days.
func (dfi *DataFlowInterface) GetBarsWindow(symbol string, days int) ([]*models.MarketData, error) {
	ctx := context.Background()
	if dfi.bars != nil {
		if data, ok := dfi.bars.Get(ctx, symbol, days); ok {
			return data, nil
		}
	}

	var (
		data []*models.MarketData
		err  error
	)
	if dfi.cfg.OnlineTools && dfi.longport != nil && isLongportSymbol(symbol) {
		data, err = dfi.longport.GetDailyBars(ctx, symbol, days)
	} else if dfi.cfg.OnlineTools {
		data, err = dfi.yahooFinance.GetHistoricalDataWindow(symbol, days)
	} else {
		end := time.Now()
		start := end.AddDate(0, 0, -days)
		data, err = dfi.yahooFinance.GetOfflineData(symbol, start, end, dfi.cfg)
	}
	if err != nil {
		return nil, err
	}

	if dfi.bars != nil && len(data) > 0 {
		dfi.bars.Set(ctx, symbol, days, data)
	}
	return data, nil
}

// GetQuote gets a real-time quote.
func (dfi *DataFlowInterface) GetQuote(symbol string) (*models.MarketData, error) {
	if !dfi.cfg.OnlineTools {
		return nil, fmt.Errorf("online tools are disabled")
	}

	key := "quote:" + symbol
	if dfi.hot != nil {
		if v, ok := dfi.hot.Get(key); ok {
			if q, ok := v.(*models.MarketData); ok {
				return q, nil
			}
		}
	}

	q, err := dfi.yahooFinance.GetQuote(symbol)
	if err != nil {
		return nil, err
	}
	if dfi.hot != nil {
		dfi.hot.Set(key, q, quoteTTL)
	}
	return q, nil
}

// GetNewsSentiment fetches recent headlines for symbol and returns the
// aggregate sentiment score with the articles.
func (dfi *DataFlowInterface) GetNewsSentiment(symbol string, days int) (float64, []*models.NewsArticle, error) {
	if !dfi.cfg.OnlineTools {
		return 0, nil, fmt.Errorf("online tools are disabled")
	}

	key := fmt.Sprintf("sentiment:%s:%d", symbol, days)
	if dfi.hot != nil {
		if v, ok := dfi.hot.Get(key); ok {
			if score, ok := v.(float64); ok {
				return score, nil, nil
			}
		}
	}

	end := time.Now()
	params := NewsParams{
		Query:      symbol + " stock",
		StartDate:  end.AddDate(0, 0, -days),
		EndDate:    end,
		MaxResults: 25,
	}
	articles, err := dfi.news.GetHeadlines(params, dfi.cfg)
	if err != nil {
		return 0, nil, err
	}

	score := SentimentScore(articles)
	if dfi.hot != nil {
		dfi.hot.Set(key, score, sentimentTTL)
	}
	return score, articles, nil
}
