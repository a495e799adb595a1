package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cryptoBiasBot/internal/adapters/logger" // Import the logger package for LogLevel
	"cryptoBiasBot/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Engine
	EvalInterval      time.Duration
	FetchTimeout      time.Duration
	CandleLimit       int
	HigherCandleLimit int
	QuoteAsset        string
	MaxCloseAttempts  int

	// Per-symbol presets seeded into the config repository at startup
	PresetsDir string

	// Market data
	BookDepthLimit       int
	BookWindowSize       int
	LiquidationRetention time.Duration

	// Database
	DBPath string

	// Telegram (optional; notifications disabled when token is empty)
	TelegramToken  string
	TelegramChatID int64

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // "json" (zerolog) or "text" (standard)

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Engine
	evalIntervalSeconds := getEnvAsInt("EVAL_INTERVAL_SECONDS", 60)
	if evalIntervalSeconds <= 0 {
		errs = append(errs, "EVAL_INTERVAL_SECONDS must be positive")
	}
	cfg.EvalInterval = time.Duration(evalIntervalSeconds) * time.Second

	fetchTimeoutSeconds := getEnvAsInt("FETCH_TIMEOUT_SECONDS", 10)
	if fetchTimeoutSeconds <= 0 {
		errs = append(errs, "FETCH_TIMEOUT_SECONDS must be positive")
	}
	cfg.FetchTimeout = time.Duration(fetchTimeoutSeconds) * time.Second

	cfg.CandleLimit = getEnvAsInt("CANDLE_LIMIT", 300)
	if cfg.CandleLimit <= 0 {
		errs = append(errs, "CANDLE_LIMIT must be positive")
	}
	cfg.HigherCandleLimit = getEnvAsInt("HIGHER_CANDLE_LIMIT", 250)

	cfg.QuoteAsset = getEnv("QUOTE_ASSET", "USDT")
	if cfg.QuoteAsset == "" {
		errs = append(errs, "QUOTE_ASSET must be set")
	}

	cfg.MaxCloseAttempts = getEnvAsInt("MAX_CLOSE_ATTEMPTS", 5)
	if cfg.MaxCloseAttempts <= 0 {
		errs = append(errs, "MAX_CLOSE_ATTEMPTS must be positive")
	}

	cfg.PresetsDir = getEnv("PRESETS_DIR", "./presets")

	// Market data
	cfg.BookDepthLimit = getEnvAsInt("BOOK_DEPTH_LIMIT", 20)
	cfg.BookWindowSize = getEnvAsInt("BOOK_WINDOW_SIZE", 5)
	liqRetentionMinutes := getEnvAsInt("LIQUIDATION_RETENTION_MINUTES", 120)
	if liqRetentionMinutes <= 0 {
		errs = append(errs, "LIQUIDATION_RETENTION_MINUTES must be positive")
	}
	cfg.LiquidationRetention = time.Duration(liqRetentionMinutes) * time.Minute

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/bias_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Telegram
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramChatID = int64(getEnvAsInt("TELEGRAM_CHAT_ID", 0))
	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		errs = append(errs, "TELEGRAM_CHAT_ID must be set when TELEGRAM_BOT_TOKEN is set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "json"))
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		errs = append(errs, "LOG_FORMAT must be 'json' or 'text'")
	}

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// LoadPresets reads all per-symbol YAML presets from dir. Each file holds one
// CoinConfig document; every preset must pass domain validation. A missing
// directory is not an error, it just yields no presets.
func LoadPresets(dir string) ([]*domain.CoinConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read presets directory %q: %w", dir, err)
	}

	var presets []*domain.CoinConfig
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read preset %q: %w", path, err)
		}
		preset := &domain.CoinConfig{}
		if err := yaml.Unmarshal(data, preset); err != nil {
			return nil, fmt.Errorf("failed to parse preset %q: %w", path, err)
		}
		if err := preset.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", path, err)
		}
		presets = append(presets, preset)
	}
	return presets, nil
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
