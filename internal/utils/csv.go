package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reflexcoder/autoagent/internal/models"
)

// CSVManager persists bar series as CSV files under a base directory so
// cached market data survives restarts.
type CSVManager struct {
	basePath string
}

func NewCSVManager(basePath string) *CSVManager {
	return &CSVManager{basePath: basePath}
}

// WriteMarketDataToCSV writes a bar series to a timestamped CSV file.
func (c *CSVManager) WriteMarketDataToCSV(symbol string, data []*models.MarketData) error {
	dirPath := filepath.Join(c.basePath, "csv", "market", symbol)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	filename := fmt.Sprintf("%s_market_data_%d_records_%s.csv",
		symbol, len(data), time.Now().Format("20060102_150405"))
	filePath := filepath.Join(dirPath, filename)

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	headers := []string{
		"Symbol", "Date", "Open", "High", "Low", "Close", "AdjClose", "Volume",
		"Timestamp", // used for cache expiry checks
	}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	timestamp := time.Now().Unix()
	for _, record := range data {
		row := []string{
			record.Symbol,
			record.Date.Format("2006-01-02"),
			record.Open.String(),
			record.High.String(),
			record.Low.String(),
			record.Close.String(),
			record.AdjClose.String(),
			strconv.FormatInt(record.Volume, 10),
			strconv.FormatInt(timestamp, 10),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}

// ReadMarketDataFromCSV loads a bar series plus the write timestamp
// recorded in the file.
func (c *CSVManager) ReadMarketDataFromCSV(filePath string) ([]*models.MarketData, time.Time, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, time.Time{}, fmt.Errorf("no data in CSV file")
	}

	var marketData []*models.MarketData
	var fileTimestamp time.Time

	for i, record := range records[1:] {
		if len(record) < 9 {
			continue
		}

		date, err := time.Parse("2006-01-02", record[1])
		if err != nil {
			continue
		}
		open, err := decimal.NewFromString(record[2])
		if err != nil {
			continue
		}
		high, _ := decimal.NewFromString(record[3])
		low, _ := decimal.NewFromString(record[4])
		closePx, _ := decimal.NewFromString(record[5])
		adjClose, _ := decimal.NewFromString(record[6])
		volume, _ := strconv.ParseInt(record[7], 10, 64)

		if i == 0 {
			if ts, err := strconv.ParseInt(record[8], 10, 64); err == nil {
				fileTimestamp = time.Unix(ts, 0)
			}
		}

		marketData = append(marketData, &models.MarketData{
			Symbol:   record[0],
			Date:     date,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePx,
			AdjClose: adjClose,
			Volume:   volume,
		})
	}

	return marketData, fileTimestamp, nil
}

// FindLatestCSV returns the newest CSV file for symbol holding at least
// minRecords rows.
func (c *CSVManager) FindLatestCSV(symbol string, minRecords int) (string, error) {
	dirPath := filepath.Join(c.basePath, "csv", "market", symbol)

	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return "", fmt.Errorf("no CSV directory for symbol %s", symbol)
	}

	files, err := filepath.Glob(filepath.Join(dirPath, fmt.Sprintf("%s_market_data_*_records_*.csv", symbol)))
	if err != nil {
		return "", fmt.Errorf("failed to search CSV files: %w", err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no CSV files found for symbol %s", symbol)
	}

	var bestFile string
	var latestTime time.Time

	for _, file := range files {
		// File names look like SYMBOL_market_data_COUNT_records_TIMESTAMP.csv.
		parts := strings.Split(filepath.Base(file), "_")
		if len(parts) < 4 {
			continue
		}
		recordCount, err := strconv.Atoi(parts[3])
		if err != nil || recordCount < minRecords {
			continue
		}

		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			bestFile = file
		}
	}

	if bestFile == "" {
		return "", fmt.Errorf("no suitable CSV file found for symbol %s with at least %d records", symbol, minRecords)
	}
	return bestFile, nil
}

// CleanOldCSVFiles removes cached CSV files older than maxAge.
func (c *CSVManager) CleanOldCSVFiles(maxAge time.Duration) error {
	root := filepath.Join(c.basePath, "csv")
	cutoff := time.Now().Add(-maxAge)

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".csv") {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			return os.Remove(path)
		}
		return nil
	})
}
