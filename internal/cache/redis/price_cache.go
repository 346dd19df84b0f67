package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkoval/tradepilot/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each symbol's snapshot is stored as a hash at key "price:{symbol}" with an
// expiry, so a stale price disappears rather than silently feeding decisions.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(symbol string) string {
	return "price:" + symbol
}

// SetPrice stores the market snapshot for a symbol with the given TTL.
func (pc *PriceCache) SetPrice(ctx context.Context, symbol string, md domain.MarketData, ttl time.Duration) error {
	key := priceKey(symbol)
	fields := map[string]interface{}{
		"price":      strconv.FormatFloat(md.Price, 'f', -1, 64),
		"change_24h": strconv.FormatFloat(md.Change24hPct, 'f', -1, 64),
		"high_24h":   strconv.FormatFloat(md.High24h, 'f', -1, 64),
		"low_24h":    strconv.FormatFloat(md.Low24h, 'f', -1, 64),
		"volume_24h": strconv.FormatFloat(md.Volume24h, 'f', -1, 64),
		"funding":    strconv.FormatFloat(md.FundingRate, 'f', -1, 64),
		"ts":         strconv.FormatInt(md.Timestamp.UnixNano(), 10),
	}

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", symbol, err)
	}
	return nil
}

// GetPrice retrieves the cached snapshot for a symbol.
// It returns domain.ErrNotFound when the key does not exist or has expired.
func (pc *PriceCache) GetPrice(ctx context.Context, symbol string) (*domain.MarketData, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(symbol)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrNotFound
	}

	md := domain.MarketData{Symbol: symbol}
	md.Price, err = parseField(vals, "price", symbol)
	if err != nil {
		return nil, err
	}
	md.Change24hPct, _ = parseOptional(vals, "change_24h")
	md.High24h, _ = parseOptional(vals, "high_24h")
	md.Low24h, _ = parseOptional(vals, "low_24h")
	md.Volume24h, _ = parseOptional(vals, "volume_24h")
	md.FundingRate, _ = parseOptional(vals, "funding")

	if tsStr, ok := vals["ts"]; ok {
		if tsNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			md.Timestamp = time.Unix(0, tsNano)
		}
	}

	return &md, nil
}

// Invalidate drops the cached snapshot for a symbol.
func (pc *PriceCache) Invalidate(ctx context.Context, symbol string) error {
	if err := pc.rdb.Del(ctx, priceKey(symbol)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate price %s: %w", symbol, err)
	}
	return nil
}

func parseField(vals map[string]string, field, symbol string) (float64, error) {
	raw, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse %s for %s: %w", field, symbol, err)
	}
	return f, nil
}

func parseOptional(vals map[string]string, field string) (float64, bool) {
	raw, ok := vals[field]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
