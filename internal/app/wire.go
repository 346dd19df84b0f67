package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/mkoval/tradepilot/internal/blob/s3"
	"github.com/mkoval/tradepilot/internal/cache/redis"
	"github.com/mkoval/tradepilot/internal/config"
	"github.com/mkoval/tradepilot/internal/domain"
	"github.com/mkoval/tradepilot/internal/engine"
	"github.com/mkoval/tradepilot/internal/market"
	"github.com/mkoval/tradepilot/internal/notify"
	"github.com/mkoval/tradepilot/internal/platform/bybit"
	"github.com/mkoval/tradepilot/internal/platform/deepseek"
	"github.com/mkoval/tradepilot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Positions domain.PositionStore
	Settings  domain.SettingsStore
	Equity    domain.EquityStore
	TradeLog  domain.TradeLogStore

	// Caches and coordination
	PriceCache  domain.PriceCache
	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Exchange and AI clients
	Bybit   *bybit.Client
	Market  domain.MarketProvider
	Signals domain.SignalProvider

	// Ledger over the position store
	Ledger *engine.Ledger

	// Blob storage (nil unless archiving is enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Positions = postgres.NewPositionStore(pool)
	deps.Settings = postgres.NewSettingsStore(pool)
	deps.Equity = postgres.NewEquityStore(pool)
	deps.TradeLog = postgres.NewTradeLogStore(pool)

	// Seed the settings catalog so the first cycle has a complete set of
	// keys. The configured initial balance only seeds the catalog; after
	// first start the catalog value wins.
	seed := domain.DefaultSettings()
	if cfg.Trading.InitialBalance > 0 {
		seed.InitialBalance = cfg.Trading.InitialBalance
	}
	if err := deps.Settings.Seed(ctx, seed); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: seed settings: %w", err)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- Exchange and AI clients ---
	deps.Bybit = bybit.NewClient(cfg.Bybit.RestHost, cfg.Bybit.Category, cfg.Bybit.Timeout.Duration)
	deps.Market = market.NewProvider(
		deps.Bybit,
		deps.PriceCache,
		deps.RateLimiter,
		cfg.Trading.PriceCacheTTL.Duration,
		logger,
	)
	deps.Signals = deepseek.NewClient(deepseek.Config{
		BaseURL:     cfg.DeepSeek.BaseURL,
		ApiKey:      cfg.DeepSeek.ApiKey,
		Model:       cfg.DeepSeek.Model,
		Timeout:     cfg.DeepSeek.Timeout.Duration,
		Temperature: cfg.DeepSeek.Temperature,
		Limiter:     deps.RateLimiter,
	})

	deps.Ledger = engine.NewLedger(deps.Positions, deps.Equity, deps.Settings)

	// --- S3 blob storage (only when archiving is enabled) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.BlobReader,
			deps.Positions,
			deps.Equity,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
