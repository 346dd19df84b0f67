package domain

import (
	"context"
	"time"
)

// PositionStore is the single source of truth for positions. The engine holds
// no in-memory position state; every decision re-reads the store.
type PositionStore interface {
	// GetOpenPositions returns all OPEN positions, optionally filtered to one
	// symbol. Results are ordered by creation time.
	GetOpenPositions(ctx context.Context, symbol string) ([]Position, error)

	// GetPosition returns a position by id, ErrNotFound if absent.
	GetPosition(ctx context.Context, id int64) (*Position, error)

	// CreatePosition validates the spec and persists a new OPEN position.
	// Invalid specs fail with ErrValidation; a second OPEN position on the
	// same symbol fails with ErrValidation as well.
	CreatePosition(ctx context.Context, spec PositionSpec) (*Position, error)

	// UpdateMark refreshes the mark price and derived unrealized PnL of an
	// open position. A position that is absent or no longer open fails
	// with ErrNotFound.
	UpdateMark(ctx context.Context, id int64, price float64) error

	// UpdateStopLoss tightens the protective stop of an open position.
	UpdateStopLoss(ctx context.Context, id int64, stop float64) error

	// ClosePosition settles an open position at the given price. It is
	// idempotent at the caller level: a position that is already closed
	// returns ErrAlreadyClosed and no row changes.
	ClosePosition(ctx context.Context, id int64, exitPrice float64, reason CloseReason) (*Position, error)

	// ReplacePosition atomically closes an open position and opens its
	// replacement in a single transaction. Either both happen or neither.
	ReplacePosition(ctx context.Context, closeID int64, exitPrice float64, spec PositionSpec) (*Position, *Position, error)

	// GetClosedPositions returns closed positions newest first, up to limit.
	GetClosedPositions(ctx context.Context, limit int) ([]Position, error)

	// GetStats aggregates trade counters since the given time.
	GetStats(ctx context.Context, since time.Time) (*PositionStats, error)
}

// SettingsStore persists the trading profile as a key/value catalog.
type SettingsStore interface {
	// Load returns all settings rows merged over defaults.
	Load(ctx context.Context) (Settings, error)

	// Seed writes the default catalog for keys that do not exist yet.
	Seed(ctx context.Context, s Settings) error

	// Put upserts a single key.
	Put(ctx context.Context, key, value string) error
}

// EquityStore records the balance ledger history.
type EquityStore interface {
	// RecordSnapshot appends one equity row.
	RecordSnapshot(ctx context.Context, snap EquitySnapshot) error

	// LatestSnapshot returns the most recent row, ErrNotFound when the
	// ledger is empty.
	LatestSnapshot(ctx context.Context) (*EquitySnapshot, error)

	// History returns snapshots since the given time, oldest first.
	History(ctx context.Context, since time.Time) ([]EquitySnapshot, error)
}

// TradeLogStore is the append-only audit trail of engine decisions.
type TradeLogStore interface {
	Append(ctx context.Context, entry TradeLogEntry) error
	Recent(ctx context.Context, limit int) ([]TradeLogEntry, error)
}
