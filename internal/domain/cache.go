package domain

import (
	"context"
	"time"
)

// PriceCache holds the per-cycle mark prices. The engine fetches each symbol
// at most once per cycle; everything downstream reads the cached value so a
// whole cycle sees one consistent price per symbol.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, md MarketData, ttl time.Duration) error
	GetPrice(ctx context.Context, symbol string) (*MarketData, error)
	Invalidate(ctx context.Context, symbol string) error
}

// SignalBus fans engine events out to notification consumers.
type SignalBus interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(ctx context.Context, topics ...string) (<-chan BusMessage, error)
	Close() error
}

// BusMessage is one delivery from the signal bus.
type BusMessage struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// LockManager provides distributed mutual exclusion. The engine takes a lock
// per cycle so that only one instance trades even when replicas are deployed.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned function
	// releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles outbound API calls across instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
