package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ProjectDir    string `json:"project_dir"`
	ResultsDir    string `json:"results_dir"`
	DataDir       string `json:"data_dir"`
	DataCacheDir  string `json:"data_cache_dir"`
	CheckpointDir string `json:"checkpoint_dir"`
	DBPath        string `json:"db_path"`

	// Agent defaults
	Symbol        string  `json:"symbol"`
	Episodes      int     `json:"episodes"`
	MaxSteps      int     `json:"max_steps"`
	WindowSize    int     `json:"window_size"`
	InitialCash   string  `json:"initial_cash"`
	FeeRate       string  `json:"fee_rate"`
	OrderFraction float64 `json:"order_fraction"`
	EarningTarget string  `json:"earning_target"`

	// Learner
	Alpha          float64 `json:"alpha"`
	Gamma          float64 `json:"gamma"`
	Epsilon        float64 `json:"epsilon"`
	EpsilonMin     float64 `json:"epsilon_min"`
	EpsilonDecay   float64 `json:"epsilon_decay"`
	ReplayCapacity int     `json:"replay_capacity"`
	ReplayBatch    int     `json:"replay_batch"`

	// Market source
	MarketSource string  `json:"market_source"` // "replay" or "synthetic"
	Drift        float64 `json:"drift"`
	Volatility   float64 `json:"volatility"`
	Seed         int64   `json:"seed"`
	OnlineTools  bool    `json:"online_tools"`
	CacheEnabled bool    `json:"cache_enabled"`

	// Redis-backed cache (falls back to memory when disabled)
	RedisEnabled  bool   `json:"redis_enabled"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// Status API
	ListenAddr string `json:"listen_addr"`

	// LLM advisor configuration
	AdvisorEnabled bool   `json:"advisor_enabled"`
	LLMProvider    string `json:"llm_provider"`
	LLMModel       string `json:"llm_model"`
	BackendURL     string `json:"backend_url"`
	OpenAIAPIKey   string `json:"openai_api_key"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`

	// Longport API Configuration
	LongportAppKey      string `json:"longport_app_key"`
	LongportAppSecret   string `json:"longport_app_secret"`
	LongportAccessToken string `json:"longport_access_token"`

	LogLevel string `json:"log_level"`
	Debug    bool   `json:"debug"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	return DefaultConfigWithRoot(currentDir)
}

func DefaultConfigWithRoot(root string) *Config {
	cfg := &Config{
		ProjectDir:    root,
		ResultsDir:    filepath.Join(root, "results"),
		DataDir:       filepath.Join(root, "data"),
		DataCacheDir:  filepath.Join(root, "data", "cache"),
		CheckpointDir: filepath.Join(root, "data", "checkpoints"),
		DBPath:        filepath.Join(root, "data", "autoagent.db"),

		Symbol:        "AAPL",
		Episodes:      50,
		MaxSteps:      250,
		WindowSize:    10,
		InitialCash:   "10000",
		FeeRate:       "0.001",
		OrderFraction: 0.5,
		EarningTarget: "",

		Alpha:          0.1,
		Gamma:          0.95,
		Epsilon:        1.0,
		EpsilonMin:     0.05,
		EpsilonDecay:   0.995,
		ReplayCapacity: 10000,
		ReplayBatch:    32,

		MarketSource: "synthetic",
		Drift:        0.0002,
		Volatility:   0.02,
		Seed:         0,
		OnlineTools:  true,
		CacheEnabled: true,

		RedisEnabled: false,
		RedisAddr:    "localhost:6379",

		ListenAddr: ":8787",

		AdvisorEnabled: false,
		LLMProvider:    "deepseek",
		LLMModel:       "deepseek-chat",
		BackendURL:     "",

		LogLevel: "info",
		Debug:    false,
	}

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()
	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" {
		c.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" {
		c.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" {
		c.LongportAccessToken = val
	}
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.RedisAddr = val
		c.RedisEnabled = true
	}
	if val := os.Getenv("ONLINE_TOOLS"); val != "" {
		if online, err := strconv.ParseBool(val); err == nil {
			c.OnlineTools = online
		}
	}
	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
}

func (c *Config) Validate() error {
	if c.Episodes <= 0 {
		return fmt.Errorf("episodes must be positive, got %d", c.Episodes)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.WindowSize < 2 {
		return fmt.Errorf("window_size must be at least 2, got %d", c.WindowSize)
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0, 1], got %v", c.Alpha)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("gamma must be in [0, 1], got %v", c.Gamma)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("epsilon must be in [0, 1], got %v", c.Epsilon)
	}
	if c.EpsilonMin < 0 || c.EpsilonMin > c.Epsilon {
		return fmt.Errorf("epsilon_min must be in [0, epsilon], got %v", c.EpsilonMin)
	}
	if c.EpsilonDecay <= 0 || c.EpsilonDecay > 1 {
		return fmt.Errorf("epsilon_decay must be in (0, 1], got %v", c.EpsilonDecay)
	}
	if c.OrderFraction <= 0 || c.OrderFraction > 1 {
		return fmt.Errorf("order_fraction must be in (0, 1], got %v", c.OrderFraction)
	}
	if c.MarketSource != "replay" && c.MarketSource != "synthetic" {
		return fmt.Errorf("market_source must be replay or synthetic, got %q", c.MarketSource)
	}
	if cash, err := strconv.ParseFloat(c.InitialCash, 64); err != nil {
		return fmt.Errorf("initial_cash is not a number: %q", c.InitialCash)
	} else if cash <= 0 {
		return fmt.Errorf("initial_cash must be positive, got %q", c.InitialCash)
	}
	if fee, err := strconv.ParseFloat(c.FeeRate, 64); err != nil {
		return fmt.Errorf("fee_rate is not a number: %q", c.FeeRate)
	} else if fee < 0 {
		return fmt.Errorf("fee_rate must not be negative, got %q", c.FeeRate)
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.ResultsDir,
		c.DataDir,
		c.DataCacheDir,
		c.CheckpointDir,
		filepath.Join(c.DataDir, "market_data", "price_data"),
		filepath.Join(c.DataDir, "news_data"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
