// Package config provides centralized configuration management for the price sync service.
// Configuration is assembled from defaults, an optional JSON file and environment
// variables (highest priority), then validated as a whole.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Application metadata
	AppName    string `json:"app_name" env:"APP_NAME"`
	Version    string `json:"version" env:"VERSION"`
	ConfigPath string `json:"-" env:"CONFIG_PATH"`

	Storage  StorageConfig  `json:"storage"`
	Provider ProviderConfig `json:"provider"`
	Fetcher  FetcherConfig  `json:"fetcher"`
	Sync     SyncConfig     `json:"sync"`
	Refresh  RefreshConfig  `json:"refresh"`
	Logging  LoggingConfig  `json:"logging"`
	Server   ServerConfig   `json:"server"`
}

// StorageConfig configures the bar store backend
type StorageConfig struct {
	Type        string `json:"type" env:"STORAGE_TYPE"`         // "file", "duckdb", "memory"
	DataDir     string `json:"data_dir" env:"DATA_DIR"`         // Root directory of the file store
	Format      string `json:"format" env:"STORAGE_FORMAT"`     // File store tabular format: "csv", "parquet"
	DatabaseURL string `json:"database_url" env:"DATABASE_URL"` // DuckDB path or ":memory:"
}

// ProviderConfig configures the external time-series provider
type ProviderConfig struct {
	Type       string `json:"type" env:"PROVIDER_TYPE"`             // "yahoo"
	BaseURL    string `json:"base_url" env:"PROVIDER_BASE_URL"`     // Chart API base URL
	Timeout    string `json:"timeout" env:"YAHOO_API_TIMEOUT"`      // Per-request HTTP timeout
	RateLimit  int    `json:"rate_limit" env:"PROVIDER_RATE_LIMIT"` // Requests per second
	UserAgent  string `json:"user_agent" env:"PROVIDER_USER_AGENT"`
	SourceName string `json:"source_name" env:"PROVIDER_SOURCE_NAME"` // Recorded in coverage metadata
}

// FetcherConfig configures retries, chunking and alias fallback
type FetcherConfig struct {
	MaxRetries        int               `json:"max_retries" env:"YAHOO_MAX_RETRIES"`
	RetryDelay        string            `json:"retry_delay" env:"RETRY_DELAY"`
	MaxDaysPerRequest int               `json:"max_days_per_request" env:"MAX_DAYS_PER_REQUEST"`
	ChunkPause        string            `json:"chunk_pause" env:"CHUNK_PAUSE"`
	MaxAliases        int               `json:"max_aliases" env:"MAX_ALIASES"`
	Aliases           map[string]string `json:"aliases" env:"SYMBOL_ALIASES"`        // Static equivalent-ticker table
	StripSuffixes     []string          `json:"strip_suffixes" env:"STRIP_SUFFIXES"` // Suffixes removed to build aliases
}

// SyncConfig configures the sync coordinator
type SyncConfig struct {
	APITimeout            string `json:"api_timeout" env:"API_TIMEOUT"` // Whole-operation timeout
	Workers               int    `json:"workers" env:"SYNC_WORKERS"`    // GetMultiple concurrency
	MinuteMaxSpanDays     int    `json:"minute_max_span_days" env:"MINUTE_MAX_SPAN_DAYS"`
	MinuteMaxLookbackDays int    `json:"minute_max_lookback_days" env:"MINUTE_MAX_LOOKBACK_DAYS"`
	MarketOpen            string `json:"market_open" env:"MARKET_OPEN"`
	MarketClose           string `json:"market_close" env:"MARKET_CLOSE"`
}

// RefreshConfig configures the background refresh of a symbol watchlist
type RefreshConfig struct {
	Symbols           []string `json:"symbols" env:"REFRESH_SYMBOLS"`     // Watchlist; empty disables the refresher
	Intervals         []string `json:"intervals" env:"REFRESH_INTERVALS"` // "1d", "1m"
	Frequency         string   `json:"frequency" env:"REFRESH_FREQUENCY"` // Time between refresh passes
	LookbackDays      int      `json:"lookback_days" env:"REFRESH_LOOKBACK_DAYS"`
	MaxConcurrentJobs int      `json:"max_concurrent_jobs" env:"REFRESH_MAX_CONCURRENT_JOBS"`
	JobTimeout        string   `json:"job_timeout" env:"REFRESH_JOB_TIMEOUT"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level         string            `json:"level" env:"LOG_LEVEL"`             // Log level: debug, info, warn, error
	Format        string            `json:"format" env:"LOG_FORMAT"`           // Log format: json, text
	Output        string            `json:"output" env:"LOG_OUTPUT"`           // Output: stdout, stderr, file
	FilePath      string            `json:"file_path" env:"LOG_FILE_PATH"`     // Log file path
	MaxSize       int               `json:"max_size" env:"LOG_MAX_SIZE"`       // Maximum log file size in MB
	MaxBackups    int               `json:"max_backups" env:"LOG_MAX_BACKUPS"` // Maximum log file backups
	MaxAge        int               `json:"max_age" env:"LOG_MAX_AGE"`         // Maximum log file age in days
	Compress      bool              `json:"compress" env:"LOG_COMPRESS"`       // Compress old log files
	ContextFields map[string]string `json:"context_fields"`                    // Additional context fields
}

// ServerConfig configures the HTTP glue layer
type ServerConfig struct {
	Addr           string   `json:"addr" env:"SERVER_ADDR"`
	AllowedOrigins []string `json:"allowed_origins" env:"ALLOWED_ORIGINS"`
	ReadTimeout    string   `json:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout   string   `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
}

// ConfigManager handles configuration loading and validation
type ConfigManager struct {
	config     *AppConfig
	configPath string
	logger     *slog.Logger
	environ    func() []string
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(configPath string, logger *slog.Logger) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigManager{
		configPath: configPath,
		logger:     logger,
		environ:    os.Environ,
	}
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
func (cm *ConfigManager) LoadConfig(ctx context.Context) (*AppConfig, error) {
	config := DefaultConfig()

	if cm.configPath != "" {
		if err := cm.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := cm.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.config = config
	cm.logger.Info("configuration loaded successfully",
		"config_path", cm.configPath,
		"storage_type", config.Storage.Type,
		"provider_type", config.Provider.Type,
		"log_level", config.Logging.Level)

	return config, nil
}

// loadFromFile loads configuration from a JSON file
func (cm *ConfigManager) loadFromFile(config *AppConfig) error {
	if _, err := os.Stat(cm.configPath); os.IsNotExist(err) {
		cm.logger.Debug("config file does not exist, using defaults", "path", cm.configPath)
		return nil
	}

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cm.configPath, err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cm.configPath, err)
	}

	cm.logger.Debug("loaded configuration from file", "path", cm.configPath)
	return nil
}

// loadFromEnv overlays environment variables onto config using the env struct
// tags. Unset variables leave the current value untouched.
func (cm *ConfigManager) loadFromEnv(config *AppConfig) error {
	if err := env.ParseWithOptions(config, env.Options{Environment: env.ToMap(cm.environ())}); err != nil {
		return err
	}

	cm.logger.Debug("loaded configuration from environment variables")
	return nil
}

// validateConfig validates the configuration for consistency and required fields
func (cm *ConfigManager) validateConfig(config *AppConfig) error {
	var errors []string

	switch config.Storage.Type {
	case "file":
		if config.Storage.DataDir == "" {
			errors = append(errors, "storage.data_dir is required for file storage")
		}
		if config.Storage.Format != "csv" && config.Storage.Format != "parquet" {
			errors = append(errors, "storage.format must be one of: csv, parquet")
		}
	case "duckdb":
		if config.Storage.DatabaseURL == "" {
			errors = append(errors, "storage.database_url is required for DuckDB storage")
		}
	case "memory":
	case "":
		errors = append(errors, "storage.type is required")
	default:
		errors = append(errors, "storage.type must be one of: file, duckdb, memory")
	}

	if config.Provider.Type == "" {
		errors = append(errors, "provider.type is required")
	}
	if config.Provider.RateLimit <= 0 {
		errors = append(errors, "provider.rate_limit must be greater than 0")
	}
	errors = appendDurationError(errors, "provider.timeout", config.Provider.Timeout)

	if config.Fetcher.MaxRetries <= 0 {
		errors = append(errors, "fetcher.max_retries must be greater than 0")
	}
	if config.Fetcher.MaxDaysPerRequest <= 0 {
		errors = append(errors, "fetcher.max_days_per_request must be greater than 0")
	}
	if config.Fetcher.MaxAliases < 0 {
		errors = append(errors, "fetcher.max_aliases must not be negative")
	}
	errors = appendDurationError(errors, "fetcher.retry_delay", config.Fetcher.RetryDelay)
	errors = appendDurationError(errors, "fetcher.chunk_pause", config.Fetcher.ChunkPause)

	if config.Sync.Workers <= 0 {
		errors = append(errors, "sync.workers must be greater than 0")
	}
	if config.Sync.MinuteMaxSpanDays <= 0 {
		errors = append(errors, "sync.minute_max_span_days must be greater than 0")
	}
	if config.Sync.MinuteMaxLookbackDays <= 0 {
		errors = append(errors, "sync.minute_max_lookback_days must be greater than 0")
	}
	errors = appendDurationError(errors, "sync.api_timeout", config.Sync.APITimeout)
	if _, err := time.Parse("15:04", config.Sync.MarketOpen); err != nil {
		errors = append(errors, "sync.market_open must be HH:MM")
	}
	if _, err := time.Parse("15:04", config.Sync.MarketClose); err != nil {
		errors = append(errors, "sync.market_close must be HH:MM")
	}

	errors = appendDurationError(errors, "refresh.frequency", config.Refresh.Frequency)
	errors = appendDurationError(errors, "refresh.job_timeout", config.Refresh.JobTimeout)
	if config.Refresh.LookbackDays <= 0 {
		errors = append(errors, "refresh.lookback_days must be greater than 0")
	}
	if config.Refresh.MaxConcurrentJobs <= 0 {
		errors = append(errors, "refresh.max_concurrent_jobs must be greater than 0")
	}
	for _, interval := range config.Refresh.Intervals {
		if interval != "1d" && interval != "1m" {
			errors = append(errors, fmt.Sprintf("refresh.intervals contains unsupported interval %q", interval))
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		errors = append(errors, "logging.level must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[config.Logging.Format] {
		errors = append(errors, "logging.format must be one of: json, text")
	}
	if config.Logging.Output == "file" && config.Logging.FilePath == "" {
		errors = append(errors, "logging.file_path is required when output is file")
	}

	if config.Server.Addr == "" {
		errors = append(errors, "server.addr is required")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func appendDurationError(errors []string, field, value string) []string {
	if _, err := time.ParseDuration(value); err != nil {
		return append(errors, fmt.Sprintf("%s is not a valid duration: %v", field, err))
	}
	return errors
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.config
}

// SaveConfig writes the current configuration to the config file
func (cm *ConfigManager) SaveConfig(ctx context.Context) error {
	if cm.configPath == "" {
		return fmt.Errorf("no config path specified")
	}
	if cm.config == nil {
		return fmt.Errorf("no configuration loaded")
	}

	if err := os.MkdirAll(filepath.Dir(cm.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	cm.logger.Info("configuration saved", "path", cm.configPath)
	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "price-sync",
		Version: "1.0.0",
		Storage: StorageConfig{
			Type:        "file",
			DataDir:     "resources/data/price",
			Format:      "csv",
			DatabaseURL: "./data/prices.db",
		},
		Provider: ProviderConfig{
			Type:       "yahoo",
			BaseURL:    "https://query1.finance.yahoo.com",
			Timeout:    "20s",
			RateLimit:  5,
			UserAgent:  "Mozilla/5.0 (compatible; go-price-sync/1.0)",
			SourceName: "yahoo_finance",
		},
		Fetcher: FetcherConfig{
			MaxRetries:        3,
			RetryDelay:        "2s",
			MaxDaysPerRequest: 7,
			ChunkPause:        "1s",
			MaxAliases:        3,
			Aliases: map[string]string{
				"BRK.B": "BRK-B",
				"BRK.A": "BRK-A",
				"BF.B":  "BF-B",
				"GOOGL": "GOOG",
			},
			StripSuffixes: []string{".US", ".O", ".N", ".OQ"},
		},
		Sync: SyncConfig{
			APITimeout:            "30s",
			Workers:               4,
			MinuteMaxSpanDays:     30,
			MinuteMaxLookbackDays: 30,
			MarketOpen:            "09:30",
			MarketClose:           "16:00",
		},
		Refresh: RefreshConfig{
			Symbols:           []string{},
			Intervals:         []string{"1d"},
			Frequency:         "1h",
			LookbackDays:      5,
			MaxConcurrentJobs: 2,
			JobTimeout:        "5m",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
			Compress:   true,
			ContextFields: map[string]string{
				"service": "price-sync",
				"version": "1.0.0",
			},
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			ReadTimeout:    "10s",
			WriteTimeout:   "60s",
		},
	}
}

// Duration parses a duration field, falling back when it is empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// String returns an indented JSON representation of the configuration
func (c *AppConfig) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
