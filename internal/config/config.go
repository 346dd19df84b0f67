// Package config defines the top-level configuration for the trading bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADEPILOT_* environment variables.
//
// Config covers infrastructure and credentials only. The trading profile
// (risk percent, leverage, stop levels) lives in the settings catalog in
// Postgres and is re-read every cycle; see domain.Settings.
type Config struct {
	Database    DatabaseConfig    `toml:"database"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Bybit       BybitConfig       `toml:"bybit"`
	DeepSeek    DeepSeekConfig    `toml:"deepseek"`
	Notify      NotifyConfig      `toml:"notify"`
	Credentials CredentialsConfig `toml:"credentials"`
	Trading     TradingConfig     `toml:"trading"`
	Archive     ArchiveConfig     `toml:"archive"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for trade archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// BybitConfig holds Bybit API endpoints.
type BybitConfig struct {
	RestHost  string   `toml:"rest_host"`
	WsHost    string   `toml:"ws_host"`
	Category  string   `toml:"category"`
	Timeout   duration `toml:"timeout"`
	Testnet   bool     `toml:"testnet"`
	WsEnabled bool     `toml:"ws_enabled"`
}

// DeepSeekConfig holds the AI signal provider endpoint and credentials.
type DeepSeekConfig struct {
	BaseURL     string   `toml:"base_url"`
	ApiKey      string   `toml:"api_key"`
	Model       string   `toml:"model"`
	Timeout     duration `toml:"timeout"`
	Temperature float64  `toml:"temperature"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// CredentialsConfig points at the encrypted exchange-credentials file used in
// live mode. Virtual mode needs no exchange keys.
type CredentialsConfig struct {
	EncryptedPath string `toml:"encrypted_path"`
	Password      string `toml:"password"`
}

// TradingConfig holds boot-time trading parameters. InitialBalance only
// seeds the settings catalog on first start; the catalog value wins after
// that and can be edited at runtime.
type TradingConfig struct {
	InitialBalance float64  `toml:"initial_balance"`
	PriceCacheTTL  duration `toml:"price_cache_ttl"`
}

// ArchiveConfig controls the S3 trade archiver.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "tradepilot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradepilot-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Bybit: BybitConfig{
			RestHost:  "https://api.bybit.com",
			WsHost:    "wss://stream.bybit.com/v5/public/linear",
			Category:  "linear",
			Timeout:   duration{10 * time.Second},
			Testnet:   false,
			WsEnabled: false,
		},
		DeepSeek: DeepSeekConfig{
			BaseURL:     "https://api.deepseek.com",
			Model:       "deepseek-chat",
			Timeout:     duration{60 * time.Second},
			Temperature: 0.3,
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "position_reversed", "error"},
		},
		Trading: TradingConfig{
			InitialBalance: 10000.0,
			PriceCacheTTL:  duration{2 * time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 3 * * *",
			RetentionDays: 90,
		},
		Mode:     "virtual",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"virtual": true,
	"live":    true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: virtual, live, monitor)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Bybit
	if c.Bybit.RestHost == "" {
		errs = append(errs, "bybit: rest_host must not be empty")
	}
	if c.Bybit.WsEnabled && c.Bybit.WsHost == "" {
		errs = append(errs, "bybit: ws_host must not be empty when ws_enabled is set")
	}
	if c.Bybit.Timeout.Duration <= 0 {
		errs = append(errs, "bybit: timeout must be positive")
	}

	// DeepSeek is required for modes that generate signals.
	needsSignals := c.Mode == "virtual" || c.Mode == "live"
	if needsSignals {
		if c.DeepSeek.ApiKey == "" {
			errs = append(errs, "deepseek: api_key is required for mode "+c.Mode)
		}
		if c.DeepSeek.BaseURL == "" {
			errs = append(errs, "deepseek: base_url must not be empty")
		}
	}

	// Credentials. Only live mode places real orders, so only live mode
	// needs the encrypted key file.
	if c.Mode == "live" {
		if c.Credentials.EncryptedPath == "" {
			errs = append(errs, "credentials: encrypted_path is required for live mode")
		}
		if c.Credentials.EncryptedPath != "" && c.Credentials.Password == "" {
			errs = append(errs, "credentials: password is required when encrypted_path is set")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Trading
	if c.Trading.InitialBalance <= 0 {
		errs = append(errs, "trading: initial_balance must be > 0")
	}
	if c.Trading.PriceCacheTTL.Duration <= 0 {
		errs = append(errs, "trading: price_cache_ttl must be positive")
	}

	// Notify: token and chat id come together or not at all.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
