package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"cryptosim/internal/adapters/logger"
	"cryptosim/internal/domain"
)

// defaultSymbols is the ticker subscription list used when SYMBOLS is unset.
var defaultSymbols = []string{
	"BTC/USD",
	"ETH/USD",
	"USDT/USD",
	"ADA/USD",
	"SOL/USD",
	"XRP/USD",
	"DOT/USD",
	"DOGE/USD",
	"LTC/USD",
	"LINK/USD",
	"AVAX/USD",
	"SHIB/USD",
	"TRX/USD",
	"USDC/USD",
	"DAI/USD",
	"ATOM/USD",
	"UNI/USD",
	"BCH/USD",
	"ALGO/USD",
	"XTZ/USD",
	"FIL/USD",
	"ETC/USD",
	"XLM/USD",
}

// Config holds all application configuration.
type Config struct {
	// Market Data Feed
	KrakenWSURL     string
	Symbols         []string
	FeedDialTimeout time.Duration

	// Simulation Parameters
	StartingBalance decimal.Decimal // Fiat balance granted to newly created accounts
	DefaultUser     string          // Account provisioned at startup

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
	LogFile  string // Optional JSON log file; empty disables file logging
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Market Data Feed
	cfg.KrakenWSURL = getEnv("KRAKEN_WS_URL", "wss://ws.kraken.com/v2")
	if cfg.KrakenWSURL == "" {
		errs = append(errs, "KRAKEN_WS_URL must be set")
	}

	cfg.Symbols = getEnvAsList("SYMBOLS", defaultSymbols)
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one trading pair")
	}

	dialTimeoutSeconds := getEnvAsInt("FEED_DIAL_TIMEOUT_SECONDS", 10)
	if dialTimeoutSeconds <= 0 {
		errs = append(errs, "FEED_DIAL_TIMEOUT_SECONDS must be positive")
	}
	cfg.FeedDialTimeout = time.Duration(dialTimeoutSeconds) * time.Second

	// Simulation Parameters
	startingBalance, err := getEnvAsDecimal("STARTING_BALANCE", "10000.00")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STARTING_BALANCE: %v", err))
	} else {
		// Accounts only ever hold cent-scale balances; normalize before the
		// value seeds anything.
		startingBalance = domain.RoundFiat(startingBalance)
		if !startingBalance.IsPositive() {
			errs = append(errs, "STARTING_BALANCE must be positive")
		}
	}
	cfg.StartingBalance = startingBalance

	cfg.DefaultUser = getEnv("DEFAULT_USER", "default")
	if cfg.DefaultUser == "" {
		errs = append(errs, "DEFAULT_USER must be set")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/cryptosim.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr)
	cfg.LogFile = getEnv("LOG_FILE", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
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

// getEnvAsList splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return append([]string(nil), defaultValue...)
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
