// Package feed streams live market data into the price cache.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mkoval/tradepilot/internal/domain"
	"github.com/mkoval/tradepilot/internal/platform/bybit"
)

// TickerFeed connects to the exchange public ticker stream and writes every
// update into the price cache. It is optional: the engine falls back to REST
// when the cache misses, so a dead feed degrades latency, not correctness.
type TickerFeed struct {
	wsURL     string
	symbols   []string
	cache     domain.PriceCache
	ttl       time.Duration
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewTickerFeed creates a feed for the given symbols.
func NewTickerFeed(wsURL string, symbols []string, cache domain.PriceCache, ttl time.Duration, logger *slog.Logger) *TickerFeed {
	return &TickerFeed{
		wsURL:   wsURL,
		symbols: symbols,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "ticker_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects, subscribes to tickers for the configured symbols, and runs
// until ctx is cancelled. Reconnects with a fixed delay on disconnect.
func (f *TickerFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("ticker stream disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *TickerFeed) runConnection(ctx context.Context) error {
	client := bybit.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnTicker(func(md domain.MarketData) {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := f.cache.SetPrice(cacheCtx, md.Symbol, md, f.ttl); err != nil {
			f.logger.Warn("cache ticker update failed",
				slog.String("symbol", md.Symbol), slog.String("error", err.Error()))
		}
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe(ctx, f.symbols); err != nil {
		return err
	}
	f.logger.Info("ticker stream subscribed", slog.Int("symbols", len(f.symbols)))

	<-ctx.Done()
	return ctx.Err()
}

// Close stops the feed.
func (f *TickerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
