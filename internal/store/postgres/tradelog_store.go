package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkoval/tradepilot/internal/domain"
)

// TradeLogStore implements domain.TradeLogStore using PostgreSQL.
type TradeLogStore struct {
	pool *pgxpool.Pool
}

// NewTradeLogStore creates a new TradeLogStore backed by the given connection pool.
func NewTradeLogStore(pool *pgxpool.Pool) *TradeLogStore {
	return &TradeLogStore{pool: pool}
}

var _ domain.TradeLogStore = (*TradeLogStore)(nil)

// Append writes one audit entry. A zero entry ID gets a fresh UUID.
func (s *TradeLogStore) Append(ctx context.Context, entry domain.TradeLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO trade_log (id, cycle_id, symbol, action, detail, position_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		entry.ID, entry.CycleID, entry.Symbol, entry.Action,
		entry.Detail, entry.PositionID, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append trade log entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, up to limit.
func (s *TradeLogStore) Recent(ctx context.Context, limit int) ([]domain.TradeLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, cycle_id, symbol, action, detail, position_id, created_at
		FROM trade_log
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent trade log: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeLogEntry
	for rows.Next() {
		var e domain.TradeLogEntry
		if err := rows.Scan(
			&e.ID, &e.CycleID, &e.Symbol, &e.Action,
			&e.Detail, &e.PositionID, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
