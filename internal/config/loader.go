package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEPILOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEPILOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "TRADEPILOT_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "TRADEPILOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "TRADEPILOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "TRADEPILOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "TRADEPILOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "TRADEPILOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "TRADEPILOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "TRADEPILOT_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "TRADEPILOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "TRADEPILOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "TRADEPILOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEPILOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEPILOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEPILOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEPILOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEPILOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEPILOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADEPILOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEPILOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEPILOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEPILOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEPILOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEPILOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEPILOT_S3_FORCE_PATH_STYLE")

	// ── Bybit ──
	setStr(&cfg.Bybit.RestHost, "TRADEPILOT_BYBIT_REST_HOST")
	setStr(&cfg.Bybit.WsHost, "TRADEPILOT_BYBIT_WS_HOST")
	setStr(&cfg.Bybit.Category, "TRADEPILOT_BYBIT_CATEGORY")
	setDuration(&cfg.Bybit.Timeout, "TRADEPILOT_BYBIT_TIMEOUT")
	setBool(&cfg.Bybit.Testnet, "TRADEPILOT_BYBIT_TESTNET")
	setBool(&cfg.Bybit.WsEnabled, "TRADEPILOT_BYBIT_WS_ENABLED")

	// ── DeepSeek ──
	setStr(&cfg.DeepSeek.BaseURL, "TRADEPILOT_DEEPSEEK_BASE_URL")
	setStr(&cfg.DeepSeek.ApiKey, "TRADEPILOT_DEEPSEEK_API_KEY")
	setStr(&cfg.DeepSeek.ApiKey, "DEEPSEEK_API_KEY") // compatibility alias
	setStr(&cfg.DeepSeek.Model, "TRADEPILOT_DEEPSEEK_MODEL")
	setDuration(&cfg.DeepSeek.Timeout, "TRADEPILOT_DEEPSEEK_TIMEOUT")
	setFloat64(&cfg.DeepSeek.Temperature, "TRADEPILOT_DEEPSEEK_TEMPERATURE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEPILOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEPILOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEPILOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEPILOT_NOTIFY_EVENTS")

	// ── Credentials ──
	setStr(&cfg.Credentials.EncryptedPath, "TRADEPILOT_CREDENTIALS_ENCRYPTED_PATH")
	setStr(&cfg.Credentials.Password, "TRADEPILOT_CREDENTIALS_PASSWORD")

	// ── Trading ──
	setFloat64(&cfg.Trading.InitialBalance, "TRADEPILOT_TRADING_INITIAL_BALANCE")
	setDuration(&cfg.Trading.PriceCacheTTL, "TRADEPILOT_TRADING_PRICE_CACHE_TTL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRADEPILOT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "TRADEPILOT_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "TRADEPILOT_ARCHIVE_RETENTION_DAYS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADEPILOT_MODE")
	setStr(&cfg.LogLevel, "TRADEPILOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
