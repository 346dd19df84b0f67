// Package market provides the read-through market data provider used by the
// engine.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkoval/tradepilot/internal/domain"
	"github.com/mkoval/tradepilot/internal/platform/bybit"
)

// bybitRateKey buckets all REST ticker calls under one shared budget.
const bybitRateKey = "bybit:tickers"

// Provider serves mark prices cache-first: a fresh entry in the price cache
// is returned as-is, a miss falls through to the exchange REST API (behind
// the shared rate limiter) and re-primes the cache.
type Provider struct {
	client  *bybit.Client
	cache   domain.PriceCache
	limiter domain.RateLimiter
	ttl     time.Duration
	logger  *slog.Logger
}

// NewProvider creates a Provider. limiter may be nil, in which case REST
// calls are not throttled.
func NewProvider(client *bybit.Client, cache domain.PriceCache, limiter domain.RateLimiter, ttl time.Duration, logger *slog.Logger) *Provider {
	return &Provider{
		client:  client,
		cache:   cache,
		limiter: limiter,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "market_provider")),
	}
}

var _ domain.MarketProvider = (*Provider)(nil)

// Snapshot returns the current market snapshot for a symbol.
func (p *Provider) Snapshot(ctx context.Context, symbol string) (*domain.MarketData, error) {
	md, err := p.cache.GetPrice(ctx, symbol)
	if err == nil {
		return md, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		// A broken cache should not take market data down with it.
		p.logger.Warn("price cache read failed",
			slog.String("symbol", symbol), slog.String("error", err.Error()))
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, bybitRateKey); err != nil {
			return nil, fmt.Errorf("market: rate limit wait for %s: %w", symbol, err)
		}
	}

	md, err = p.client.GetTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if cacheErr := p.cache.SetPrice(ctx, symbol, *md, p.ttl); cacheErr != nil {
		p.logger.Warn("price cache write failed",
			slog.String("symbol", symbol), slog.String("error", cacheErr.Error()))
	}
	return md, nil
}
