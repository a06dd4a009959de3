package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/reflexcoder/autoagent/internal/log"
	"github.com/reflexcoder/autoagent/internal/models"
	"github.com/reflexcoder/autoagent/internal/utils"
)

const (
	memoryTTL = 5 * time.Minute
	csvTTL    = 30 * time.Minute
)

// MarketDataCache keeps bar series in two tiers: a memory map for hot
// reads and CSV files so data survives restarts.
type MarketDataCache struct {
	memoryCache map[string]*cachedBars
	csvManager  *utils.CSVManager
	mu          sync.RWMutex
	basePath    string
}

type cachedBars struct {
	Data      []*models.MarketData
	Symbol    string
	Count     int
	Timestamp time.Time
	TTL       time.Duration
}

func NewMarketDataCache(basePath string) *MarketDataCache {
	return &MarketDataCache{
		memoryCache: make(map[string]*cachedBars),
		csvManager:  utils.NewCSVManager(basePath),
		basePath:    basePath,
	}
}

// Get returns up to count bars for symbol, memory tier first, then CSV.
func (c *MarketDataCache) Get(ctx context.Context, symbol string, count int) ([]*models.MarketData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := log.WithComponent("market_cache")
	key := fmt.Sprintf("%s-%d", symbol, count)

	if cached, exists := c.memoryCache[key]; exists {
		if time.Since(cached.Timestamp) <= cached.TTL {
			return cached.Data, true
		}
		delete(c.memoryCache, key)
	}

	csvFile, err := c.csvManager.FindLatestCSV(symbol, count)
	if err != nil {
		return nil, false
	}

	data, fileTime, err := c.csvManager.ReadMarketDataFromCSV(csvFile)
	if err != nil {
		logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to read CSV cache")
		return nil, false
	}
	if time.Since(fileTime) > csvTTL || len(data) < count {
		return nil, false
	}

	logger.Debug().
		Str("symbol", symbol).
		Str("file", filepath.Base(csvFile)).
		Msg("using CSV cache")

	if count > len(data) {
		count = len(data)
	}
	c.memoryCache[key] = &cachedBars{
		Data:      data[:count],
		Symbol:    symbol,
		Count:     count,
		Timestamp: fileTime,
		TTL:       memoryTTL,
	}
	return data[:count], true
}

// Set stores bars in memory and asynchronously in a CSV file.
func (c *MarketDataCache) Set(ctx context.Context, symbol string, count int, data []*models.MarketData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := fmt.Sprintf("%s-%d", symbol, count)
	c.memoryCache[key] = &cachedBars{
		Data:      data,
		Symbol:    symbol,
		Count:     count,
		Timestamp: time.Now(),
		TTL:       memoryTTL,
	}

	go func() {
		if err := c.csvManager.WriteMarketDataToCSV(symbol, data); err != nil {
			logger := log.WithComponent("market_cache")
			logger.Warn().
				Err(err).
				Str("symbol", symbol).
				Msg("failed to write bars to CSV")
		}
	}()
}

func (c *MarketDataCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memoryCache = make(map[string]*cachedBars)
}

// CleanExpiredFiles removes CSV cache files older than maxAge.
func (c *MarketDataCache) CleanExpiredFiles(maxAge time.Duration) error {
	return c.csvManager.CleanOldCSVFiles(maxAge)
}
