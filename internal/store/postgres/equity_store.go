package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkoval/tradepilot/internal/domain"
)

// EquityStore implements domain.EquityStore using PostgreSQL.
type EquityStore struct {
	pool *pgxpool.Pool
}

// NewEquityStore creates a new EquityStore backed by the given connection pool.
func NewEquityStore(pool *pgxpool.Pool) *EquityStore {
	return &EquityStore{pool: pool}
}

var _ domain.EquityStore = (*EquityStore)(nil)

// RecordSnapshot appends one equity row.
func (s *EquityStore) RecordSnapshot(ctx context.Context, snap domain.EquitySnapshot) error {
	const query = `
		INSERT INTO equity_history (balance, equity, unrealized_pnl, margin_used, available_funds, open_positions, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	recordedAt := snap.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		snap.Balance, snap.Equity, snap.UnrealizedPnL,
		snap.MarginUsed, snap.AvailableFunds, snap.OpenPositions, recordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record equity snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent ledger row.
func (s *EquityStore) LatestSnapshot(ctx context.Context) (*domain.EquitySnapshot, error) {
	const query = `
		SELECT id, balance, equity, unrealized_pnl, margin_used, available_funds, open_positions, recorded_at
		FROM equity_history
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1`

	var snap domain.EquitySnapshot
	err := s.pool.QueryRow(ctx, query).Scan(
		&snap.ID, &snap.Balance, &snap.Equity, &snap.UnrealizedPnL,
		&snap.MarginUsed, &snap.AvailableFunds, &snap.OpenPositions, &snap.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: equity history is empty: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: latest equity snapshot: %w", err)
	}
	return &snap, nil
}

// History returns snapshots since the given time, oldest first.
func (s *EquityStore) History(ctx context.Context, since time.Time) ([]domain.EquitySnapshot, error) {
	const query = `
		SELECT id, balance, equity, unrealized_pnl, margin_used, available_funds, open_positions, recorded_at
		FROM equity_history
		WHERE recorded_at >= $1
		ORDER BY recorded_at`

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: equity history: %w", err)
	}
	defer rows.Close()

	var out []domain.EquitySnapshot
	for rows.Next() {
		var snap domain.EquitySnapshot
		if err := rows.Scan(
			&snap.ID, &snap.Balance, &snap.Equity, &snap.UnrealizedPnL,
			&snap.MarginUsed, &snap.AvailableFunds, &snap.OpenPositions, &snap.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan equity row: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
