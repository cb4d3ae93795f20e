package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"cryptoRiskEngine/internal/adapters/logger" // Import the logger package for LogLevel
	"cryptoRiskEngine/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Execution mode
	PaperTrading      bool
	PaperForced       bool // Paper mode was forced because exchange credentials are missing
	UseExchangePrices bool // Resolve missing reference prices from the exchange in paper mode

	// Risk limits (percent units, 1.0 means 1%)
	MaxRiskPerTrade        float64
	MaxDailyLoss           float64
	MaxDrawdown            float64
	MaxOpenPositions       int
	MaxTradesPerDay        int
	AllowMultiplePositions bool
	StartingCapital        float64
	RiskConfigPath         string // Optional YAML risk profile overriding the env limits

	// Execution
	ExecutionTimeout    time.Duration
	ExecutionMaxRetries int
	ExecutionRetryBase  time.Duration
	PaperFeeRate        float64
	PaperSlippageBps    float64
	LiveFeeRate         float64

	// Circuit breaker and exchange reconciliation
	MaxConsecutiveFailures   int     // Execution failures in a row that halt trading, 0 disables
	BalanceMismatchTolerance float64 // Allowed exchange balance drift, percent of equity
	BalanceAsset             string  // Quote asset reconciled against the ledger

	// Trading day
	DailyResetLocation *time.Location

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// HTTP surface
	HTTPAddr       string
	ClientAPIKey   string // Expected X-API-Key value; empty accepts any non-empty key
	AdminToken     string // Expected X-Admin-Token value; empty disables admin routes
	WSPushInterval time.Duration

	// Event stream
	RedisAddr   string
	RedisStream string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Execution mode. Live trading without credentials is never attempted.
	cfg.PaperTrading = getEnvAsBool("PAPER_TRADING", true)
	if !cfg.PaperTrading && (cfg.APIKey == "" || cfg.SecretKey == "") {
		cfg.PaperTrading = true
		cfg.PaperForced = true
	}
	cfg.UseExchangePrices = getEnvAsBool("USE_EXCHANGE_PRICES", false)

	// Risk limits
	cfg.MaxRiskPerTrade, err = getEnvAsFloatRequired("MAX_RISK_PER_TRADE", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_RISK_PER_TRADE: %v", err))
	} else if cfg.MaxRiskPerTrade <= 0 || cfg.MaxRiskPerTrade > 100 {
		errs = append(errs, "MAX_RISK_PER_TRADE must be between 0 and 100")
	}

	cfg.MaxDailyLoss, err = getEnvAsFloatRequired("MAX_DAILY_LOSS", 3.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DAILY_LOSS: %v", err))
	} else if cfg.MaxDailyLoss <= 0 || cfg.MaxDailyLoss > 100 {
		errs = append(errs, "MAX_DAILY_LOSS must be between 0 and 100")
	}

	cfg.MaxDrawdown, err = getEnvAsFloatRequired("MAX_DRAWDOWN", 10.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DRAWDOWN: %v", err))
	} else if cfg.MaxDrawdown <= 0 || cfg.MaxDrawdown > 100 {
		errs = append(errs, "MAX_DRAWDOWN must be between 0 and 100")
	}

	cfg.MaxOpenPositions, err = getEnvAsIntRequired("MAX_OPEN_POSITIONS", 2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_OPEN_POSITIONS: %v", err))
	} else if cfg.MaxOpenPositions < 1 {
		errs = append(errs, "MAX_OPEN_POSITIONS must be at least 1")
	}

	cfg.MaxTradesPerDay, err = getEnvAsIntRequired("MAX_TRADES_PER_DAY", 6)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_TRADES_PER_DAY: %v", err))
	} else if cfg.MaxTradesPerDay < 1 {
		errs = append(errs, "MAX_TRADES_PER_DAY must be at least 1")
	}

	cfg.AllowMultiplePositions = getEnvAsBool("ALLOW_MULTIPLE_POSITIONS", false)

	cfg.StartingCapital, err = getEnvAsFloatRequired("STARTING_CAPITAL", 10000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STARTING_CAPITAL: %v", err))
	} else if cfg.StartingCapital <= 0 {
		errs = append(errs, "STARTING_CAPITAL must be positive")
	}

	cfg.RiskConfigPath = getEnv("RISK_CONFIG_PATH", "")

	// Execution
	timeoutSeconds := getEnvAsInt("EXECUTION_TIMEOUT_SECONDS", 10)
	if timeoutSeconds <= 0 {
		errs = append(errs, "EXECUTION_TIMEOUT_SECONDS must be positive")
	}
	cfg.ExecutionTimeout = time.Duration(timeoutSeconds) * time.Second

	cfg.ExecutionMaxRetries = getEnvAsInt("EXECUTION_MAX_RETRIES", 3)
	if cfg.ExecutionMaxRetries < 1 {
		errs = append(errs, "EXECUTION_MAX_RETRIES must be at least 1")
	}

	retryBaseMs := getEnvAsInt("EXECUTION_RETRY_BASE_MS", 200)
	if retryBaseMs <= 0 {
		errs = append(errs, "EXECUTION_RETRY_BASE_MS must be positive")
	}
	cfg.ExecutionRetryBase = time.Duration(retryBaseMs) * time.Millisecond

	cfg.PaperFeeRate, err = getEnvAsFloatRequired("PAPER_FEE_RATE", 0.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_FEE_RATE: %v", err))
	} else if cfg.PaperFeeRate < 0 || cfg.PaperFeeRate >= 1 {
		errs = append(errs, "PAPER_FEE_RATE must be in [0, 1)")
	}

	cfg.PaperSlippageBps, err = getEnvAsFloatRequired("PAPER_SLIPPAGE_BPS", 0.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_SLIPPAGE_BPS: %v", err))
	} else if cfg.PaperSlippageBps < 0 {
		errs = append(errs, "PAPER_SLIPPAGE_BPS cannot be negative")
	}

	cfg.LiveFeeRate, err = getEnvAsFloatRequired("LIVE_FEE_RATE", 0.0004)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LIVE_FEE_RATE: %v", err))
	} else if cfg.LiveFeeRate < 0 || cfg.LiveFeeRate >= 1 {
		errs = append(errs, "LIVE_FEE_RATE must be in [0, 1)")
	}

	// Circuit breaker and exchange reconciliation
	cfg.MaxConsecutiveFailures, err = getEnvAsIntRequired("MAX_CONSECUTIVE_FAILURES", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_CONSECUTIVE_FAILURES: %v", err))
	} else if cfg.MaxConsecutiveFailures < 0 {
		errs = append(errs, "MAX_CONSECUTIVE_FAILURES cannot be negative")
	}

	cfg.BalanceMismatchTolerance, err = getEnvAsFloatRequired("BALANCE_MISMATCH_TOLERANCE_PERCENT", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BALANCE_MISMATCH_TOLERANCE_PERCENT: %v", err))
	} else if cfg.BalanceMismatchTolerance < 0 || cfg.BalanceMismatchTolerance > 100 {
		errs = append(errs, "BALANCE_MISMATCH_TOLERANCE_PERCENT must be between 0 and 100")
	}

	cfg.BalanceAsset = getEnv("BALANCE_ASSET", "USDT")

	// Trading day
	tz := getEnv("DAILY_RESET_TIMEZONE", "UTC")
	cfg.DailyResetLocation, err = time.LoadLocation(tz)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DAILY_RESET_TIMEZONE %q: %v", tz, err))
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/risk_engine.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// HTTP surface
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.ClientAPIKey = getEnv("API_KEY", "")
	if !cfg.PaperTrading && cfg.ClientAPIKey == "" {
		errs = append(errs, "API_KEY must be set for live trading")
	}
	cfg.AdminToken = getEnv("ADMIN_TOKEN", "")

	wsSeconds := getEnvAsInt("WS_PUSH_INTERVAL_SECONDS", 5)
	if wsSeconds <= 0 {
		errs = append(errs, "WS_PUSH_INTERVAL_SECONDS must be positive")
	}
	cfg.WSPushInterval = time.Duration(wsSeconds) * time.Second

	// Event stream
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisStream = getEnv("REDIS_STREAM", "risk-engine:events")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// RiskConfig returns the env risk limits as an immutable domain value.
func (c *Config) RiskConfig() domain.RiskConfig {
	return domain.RiskConfig{
		MaxRiskPerTradePercent: decimal.NewFromFloat(c.MaxRiskPerTrade),
		MaxDailyLossPercent:    decimal.NewFromFloat(c.MaxDailyLoss),
		MaxDrawdownPercent:     decimal.NewFromFloat(c.MaxDrawdown),
		MaxOpenPositions:       c.MaxOpenPositions,
		MaxTradesPerDay:        c.MaxTradesPerDay,
	}
}

// EffectiveRiskConfig applies the optional YAML risk profile on top of the env limits.
func (c *Config) EffectiveRiskConfig() (domain.RiskConfig, error) {
	if c.RiskConfigPath == "" {
		return c.RiskConfig(), nil
	}
	return LoadRiskConfig(c.RiskConfigPath, c.RiskConfig())
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
