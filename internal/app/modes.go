package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mkoval/tradepilot/internal/crypto"
	"github.com/mkoval/tradepilot/internal/engine"
	"github.com/mkoval/tradepilot/internal/executor"
	"github.com/mkoval/tradepilot/internal/feed"
	"github.com/mkoval/tradepilot/internal/notify"
)

// VirtualMode runs the full trading cycle against the virtual position store.
// No exchange orders are placed; fills are simulated at the fetched mark
// price.
func (a *App) VirtualMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting virtual mode")

	g, ctx := errgroup.WithContext(ctx)

	eng := engine.New(engine.Config{
		Positions: deps.Positions,
		Settings:  deps.Settings,
		TradeLog:  deps.TradeLog,
		Market:    deps.Market,
		Signals:   deps.Signals,
		Bus:       deps.SignalBus,
		Locks:     deps.LockManager,
		Ledger:    deps.Ledger,
		Logger:    a.logger,
	})
	g.Go(func() error {
		return eng.Run(ctx)
	})

	a.startCommon(ctx, g, deps)

	return g.Wait()
}

// LiveMode runs the same cycle as virtual mode but mirrors every open, close,
// and reversal to the exchange through the order executor. Exchange
// credentials are decrypted from the configured file at startup.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	creds, err := crypto.LoadCredentials(a.cfg.Credentials.EncryptedPath, a.cfg.Credentials.Password)
	if err != nil {
		return fmt.Errorf("live mode: load credentials: %w", err)
	}
	deps.Bybit.SetAuth(crypto.HMACAuth{Key: creds.ApiKey, Secret: creds.ApiSecret})

	g, ctx := errgroup.WithContext(ctx)

	exec := executor.New(deps.Bybit, a.logger)
	eng := engine.New(engine.Config{
		Positions: deps.Positions,
		Settings:  deps.Settings,
		TradeLog:  deps.TradeLog,
		Market:    deps.Market,
		Signals:   deps.Signals,
		Bus:       deps.SignalBus,
		Locks:     deps.LockManager,
		Orders:    exec,
		Ledger:    deps.Ledger,
		Logger:    a.logger,
	})
	g.Go(func() error {
		return eng.Run(ctx)
	})

	a.startCommon(ctx, g, deps)

	return g.Wait()
}

// MonitorMode observes without trading: it keeps the price cache warm, relays
// bus events to notification channels, and periodically logs the account
// state marked at the cached prices. Positions are never mutated.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startCommon(ctx, g, deps)

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				account, err := deps.Ledger.Account(ctx)
				if err != nil {
					a.logger.WarnContext(ctx, "monitor: account state unavailable",
						slog.String("error", err.Error()))
					continue
				}
				a.logger.InfoContext(ctx, "account state",
					slog.Float64("balance", account.Balance),
					slog.Float64("equity", account.Equity),
					slog.Float64("unrealized_pnl", account.UnrealizedPnL),
					slog.Int("open_positions", account.OpenPositions),
				)
			}
		}
	})

	return g.Wait()
}

// startCommon starts the goroutines shared by every mode: the notification
// consumer, the Bybit ticker feed when enabled, and the archive scheduler
// when archiving is configured.
func (a *App) startCommon(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	// Notification consumer: relay bus events to Telegram/Discord.
	consumer := notify.NewConsumer(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return consumer.Run(ctx)
	})

	// Ticker feed: stream Bybit tickers into the price cache so cycles hit
	// the cache instead of the REST endpoint.
	if a.cfg.Bybit.WsEnabled {
		symbols := a.feedSymbols(ctx, deps)
		if len(symbols) > 0 {
			tickerFeed := feed.NewTickerFeed(
				a.cfg.Bybit.WsHost,
				symbols,
				deps.PriceCache,
				a.cfg.Trading.PriceCacheTTL.Duration,
				a.logger,
			)
			g.Go(func() error {
				defer tickerFeed.Close()
				return tickerFeed.Run(ctx)
			})
		}
	}

	// Archive scheduler.
	if deps.Archiver != nil {
		a.startArchiveCron(ctx, g, deps)
	}
}

// feedSymbols returns the symbols to subscribe the ticker feed to, read from
// the settings catalog at startup.
func (a *App) feedSymbols(ctx context.Context, deps *Dependencies) []string {
	settings, err := deps.Settings.Load(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "feed symbols: settings load failed, feed disabled",
			slog.String("error", err.Error()))
		return nil
	}
	return settings.TradingSymbols
}

// startArchiveCron schedules the S3 archiver on the configured cron
// expression. Each run exports closed positions and equity history, then
// prunes archives past the retention window.
func (a *App) startArchiveCron(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(a.cfg.Archive.Cron, func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		if _, err := deps.Archiver.ArchiveClosedPositions(runCtx, 10_000); err != nil {
			a.logger.Error("archive: positions export failed", slog.String("error", err.Error()))
		}
		if _, err := deps.Archiver.ArchiveEquityHistory(runCtx, time.Now().UTC().AddDate(0, -1, 0)); err != nil {
			a.logger.Error("archive: equity export failed", slog.String("error", err.Error()))
		}
		if _, err := deps.Archiver.Prune(runCtx, a.cfg.Archive.RetentionDays); err != nil {
			a.logger.Error("archive: prune failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		a.logger.Warn("archive: invalid cron expression, archiver disabled",
			slog.String("cron", a.cfg.Archive.Cron),
			slog.String("error", err.Error()))
		return
	}

	scheduler.Start()
	g.Go(func() error {
		<-ctx.Done()
		stopCtx := scheduler.Stop()
		<-stopCtx.Done()
		return ctx.Err()
	})
}
