package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the terminal
type Config struct {
	Provider   ProviderConfig
	Sync       SyncConfig
	Retry      RetryProfilesConfig
	PaperTrade PaperTradeConfig
	Storage    StorageConfig
	Bridge     BridgeConfig
	Logging    LoggingConfig
	Series     []SeriesConfig   `validate:"dive"`
	Strategies []StrategyConfig `validate:"dive"`
}

// ProviderConfig holds market data provider settings
type ProviderConfig struct {
	BaseURL   string        `validate:"required,url"`
	StreamURL string        `validate:"omitempty,url"`
	Timeout   time.Duration `validate:"gt=0"`
	UseStream bool
}

// SyncConfig holds synchronization policy settings
type SyncConfig struct {
	PageSize          int           `validate:"gt=0,lte=1000"`
	StaleCandles      int           `validate:"gt=0"`
	BatchDelay        time.Duration `validate:"gte=0"`
	MissingDataPeriod time.Duration `validate:"gt=0"`
	LiveTickPeriod    time.Duration `validate:"gt=0"`
}

// RetryProfilesConfig holds the retry profiles used for provider calls
type RetryProfilesConfig struct {
	Interactive RetryConfig
	Background  RetryConfig
}

// RetryConfig holds one retry-with-backoff profile
type RetryConfig struct {
	MaxAttempts       int           `validate:"gt=0"`
	InitialDelay      time.Duration `validate:"gt=0"`
	BackoffMultiplier float64       `validate:"gte=1"`
	MaxDelay          time.Duration `validate:"gt=0"`
}

// PaperTradeConfig holds simulated trading settings
type PaperTradeConfig struct {
	Enabled        bool
	InitialBalance float64 `validate:"gte=0"`
}

// StorageConfig holds local persistence settings
type StorageConfig struct {
	DataDir string `validate:"required"`
}

// BridgeConfig holds the localhost UI bridge server settings
type BridgeConfig struct {
	Enabled      bool
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// SeriesConfig describes one chart series registered at startup
type SeriesConfig struct {
	Symbol    string `validate:"required"`
	Timeframe string `validate:"required,oneof=1m 5m 15m 30m 1h 4h 1d 1w"`
	Active    bool
}

// StrategyConfig binds one strategy instance to a series at startup. Tag and
// params are handed to the strategy registry for reconstruction.
type StrategyConfig struct {
	Symbol    string  `validate:"required"`
	Timeframe string  `validate:"required,oneof=1m 5m 15m 30m 1h 4h 1d 1w"`
	Tag       string  `validate:"required"`
	Quantity  float64 `validate:"gt=0"`
	Params    map[string]float64
}

// LoadConfig loads the configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Read from environment variables
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Provider defaults
	v.SetDefault("provider.baseURL", "https://api.binance.com/api/v3")
	v.SetDefault("provider.streamURL", "wss://stream.binance.com:9443/ws")
	v.SetDefault("provider.timeout", "30s")
	v.SetDefault("provider.useStream", false)

	// Sync defaults
	v.SetDefault("sync.pageSize", 1000)
	v.SetDefault("sync.staleCandles", 3)
	v.SetDefault("sync.batchDelay", "200ms")
	v.SetDefault("sync.missingDataPeriod", "1m")
	v.SetDefault("sync.liveTickPeriod", "2s")

	// Retry profile defaults
	v.SetDefault("retry.interactive.maxAttempts", 5)
	v.SetDefault("retry.interactive.initialDelay", "200ms")
	v.SetDefault("retry.interactive.backoffMultiplier", 2.0)
	v.SetDefault("retry.interactive.maxDelay", "5s")
	v.SetDefault("retry.background.maxAttempts", 3)
	v.SetDefault("retry.background.initialDelay", "1s")
	v.SetDefault("retry.background.backoffMultiplier", 2.0)
	v.SetDefault("retry.background.maxDelay", "30s")

	// Paper trading defaults
	v.SetDefault("paperTrade.enabled", true)
	v.SetDefault("paperTrade.initialBalance", 10000.0)

	// Storage defaults
	v.SetDefault("storage.dataDir", "data")

	// Bridge defaults
	v.SetDefault("bridge.enabled", true)
	v.SetDefault("bridge.port", "8972")
	v.SetDefault("bridge.readTimeout", "10s")
	v.SetDefault("bridge.writeTimeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
