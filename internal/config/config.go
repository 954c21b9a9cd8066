// Package config provides configuration management for the trading
// orchestrator: a main config.toml plus a separate credentials.toml,
// loaded with viper and overridable by environment variables (§6).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Store         StoreConfig        `mapstructure:"store"`
	Security      SecurityConfig     `mapstructure:"security"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Credentials   Credentials        `mapstructure:"-"` // loaded separately, never logged
}

// LoggingConfig controls internal/logging's console/file output and the
// lumberjack rotation policy on the file sink.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SchedulerConfig holds scheduler defaults (§4.7).
type SchedulerConfig struct {
	DefaultIntervalMinutes int           `mapstructure:"default_interval_minutes"`
	PendingSweepInterval   time.Duration `mapstructure:"pending_sweep_interval"`
	ExchangeTimeout        time.Duration `mapstructure:"exchange_timeout"`
	AIDeciderTimeout       time.Duration `mapstructure:"ai_decider_timeout"`
}

// StoreConfig holds storage configuration.
type StoreConfig struct {
	DataDir  string `mapstructure:"data_dir"`
	Filename string `mapstructure:"filename"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	EncryptCredentials bool `mapstructure:"encrypt_credentials"`
	AuditEnabled       bool `mapstructure:"audit_enabled"`
	StrictValidation   bool `mapstructure:"strict_validation"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"` // all, trades_only, incidents_only
}

// Credentials holds process-wide API credentials. Per-model exchange
// credentials (testnet/mainnet) live in the store (§9); these are the
// operator's fallback/default and the AI provider key.
type Credentials struct {
	OpenAI  OpenAICredentials  `mapstructure:"openai"`
	Binance BinanceCredentials `mapstructure:"binance"`
	// MasterPassword encrypts/decrypts per-model exchange credentials at
	// rest (internal/security) when security.encrypt_credentials is set.
	// It is never read from config.toml, only CRYPTOTRADER_MASTER_PASSWORD.
	MasterPassword string `mapstructure:"-"`
}

// OpenAICredentials holds the AIDecider's LLM backend credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// BinanceCredentials are the default exchange credentials used when a
// model has none of its own stored.
type BinanceCredentials struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/cryptotrader"
	}
	return filepath.Join(home, ".config", "cryptotrader")
}

// Load loads configuration from the specified directory. If configDir is
// empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("scheduler.default_interval_minutes", 60)
	v.SetDefault("scheduler.pending_sweep_interval", time.Minute)
	v.SetDefault("scheduler.exchange_timeout", 30*time.Second)
	v.SetDefault("scheduler.ai_decider_timeout", 60*time.Second)
	v.SetDefault("store.data_dir", filepath.Join(configDir, "data"))
	v.SetDefault("store.filename", "cryptotrader.db")
	v.SetDefault("security.encrypt_credentials", true)
	v.SetDefault("security.audit_enabled", true)
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.level", "all")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "cryptotrader.log"))
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age_days", 30)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Credentials.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Credentials.Binance.APISecret = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("CRYPTOTRADER_DATA_DIR"); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv("CRYPTOTRADER_MASTER_PASSWORD"); v != "" {
		cfg.Credentials.MasterPassword = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Scheduler.DefaultIntervalMinutes < 5 || c.Scheduler.DefaultIntervalMinutes > 1440 {
		return fmt.Errorf("scheduler.default_interval_minutes must be between 5 and 1440")
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir must not be empty")
	}
	return nil
}
