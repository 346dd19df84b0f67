package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkoval/tradepilot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
//
// Open/close state lives entirely in the positions table; a partial unique
// index guarantees at most one OPEN row per symbol, so concurrent opens
// race safely at the database rather than in application code.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

var _ domain.PositionStore = (*PositionStore)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const positionSelectCols = `id, symbol, side, size, entry_price, current_price,
	exit_price, stop_loss, take_profit, leverage, status,
	unrealized_pnl, realized_pnl, pnl_percent, close_reason,
	created_at, updated_at, closed_at`

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var side, status string
	var reason *string

	err := row.Scan(
		&p.ID, &p.Symbol, &side, &p.Size, &p.EntryPrice, &p.CurrentPrice,
		&p.ExitPrice, &p.StopLoss, &p.TakeProfit, &p.Leverage, &status,
		&p.UnrealizedPnL, &p.RealizedPnL, &p.PnLPercent, &reason,
		&p.CreatedAt, &p.UpdatedAt, &p.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	if reason != nil {
		cr := domain.CloseReason(*reason)
		p.CloseReason = &cr
	}
	return &p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// validateSpec rejects specs that must never reach the table. The database
// constraints back these checks up, but a typed error is what callers need.
func validateSpec(spec domain.PositionSpec) error {
	if spec.Symbol == "" {
		return fmt.Errorf("postgres: position symbol is empty: %w", domain.ErrValidation)
	}
	if spec.Side != domain.SideLong && spec.Side != domain.SideShort {
		return fmt.Errorf("postgres: position side %q is invalid: %w", spec.Side, domain.ErrValidation)
	}
	if spec.Size <= 0 {
		return fmt.Errorf("postgres: position size %.8f must be positive: %w", spec.Size, domain.ErrValidation)
	}
	if spec.EntryPrice <= 0 {
		return fmt.Errorf("postgres: entry price %.8f must be positive: %w", spec.EntryPrice, domain.ErrValidation)
	}
	if spec.Leverage < 1 || spec.Leverage > 125 {
		return fmt.Errorf("postgres: leverage %d out of range [1,125]: %w", spec.Leverage, domain.ErrValidation)
	}
	// Protective levels must sit on the correct side of the entry.
	if spec.Side == domain.SideLong {
		if spec.StopLoss != nil && *spec.StopLoss >= spec.EntryPrice {
			return fmt.Errorf("postgres: long stop loss %.8f must be below entry %.8f: %w",
				*spec.StopLoss, spec.EntryPrice, domain.ErrValidation)
		}
		if spec.TakeProfit != nil && *spec.TakeProfit <= spec.EntryPrice {
			return fmt.Errorf("postgres: long take profit %.8f must be above entry %.8f: %w",
				*spec.TakeProfit, spec.EntryPrice, domain.ErrValidation)
		}
	} else {
		if spec.StopLoss != nil && *spec.StopLoss <= spec.EntryPrice {
			return fmt.Errorf("postgres: short stop loss %.8f must be above entry %.8f: %w",
				*spec.StopLoss, spec.EntryPrice, domain.ErrValidation)
		}
		if spec.TakeProfit != nil && *spec.TakeProfit >= spec.EntryPrice {
			return fmt.Errorf("postgres: short take profit %.8f must be below entry %.8f: %w",
				*spec.TakeProfit, spec.EntryPrice, domain.ErrValidation)
		}
	}
	return nil
}

func insertPosition(ctx context.Context, q querier, spec domain.PositionSpec) (*domain.Position, error) {
	const query = `
		INSERT INTO positions (
			symbol, side, size, entry_price, current_price,
			stop_loss, take_profit, leverage, status
		) VALUES ($1, $2, $3, $4, $4, $5, $6, $7, 'OPEN')
		RETURNING ` + positionSelectCols

	row := q.QueryRow(ctx, query,
		spec.Symbol, string(spec.Side), spec.Size, spec.EntryPrice,
		spec.StopLoss, spec.TakeProfit, spec.Leverage,
	)
	p, err := scanPosition(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("postgres: open position already exists for %s: %w",
				spec.Symbol, domain.ErrValidation)
		}
		return nil, fmt.Errorf("postgres: create position %s: %w", spec.Symbol, err)
	}
	return p, nil
}

// CreatePosition validates the spec and inserts a new OPEN position.
func (s *PositionStore) CreatePosition(ctx context.Context, spec domain.PositionSpec) (*domain.Position, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}
	return insertPosition(ctx, s.pool, spec)
}

// GetOpenPositions returns all OPEN positions, optionally filtered to one symbol.
func (s *PositionStore) GetOpenPositions(ctx context.Context, symbol string) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE status = 'OPEN'`
	args := []any{}
	if symbol != "" {
		query += ` AND symbol = $1`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: get open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// GetPosition retrieves a single position by its ID.
func (s *PositionStore) GetPosition(ctx context.Context, id int64) (*domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: position %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get position %d: %w", id, err)
	}
	return p, nil
}

// UpdateMark refreshes the mark price and unrealized PnL of an open position.
// A position that is absent or no longer open fails with ErrNotFound.
func (s *PositionStore) UpdateMark(ctx context.Context, id int64, price float64) error {
	const query = `
		UPDATE positions SET
			current_price  = $2,
			unrealized_pnl = CASE WHEN side = 'LONG'
				THEN ($2 - entry_price) * size
				ELSE (entry_price - $2) * size END,
			pnl_percent = CASE WHEN side = 'LONG'
				THEN ($2 - entry_price) / entry_price * 100
				ELSE (entry_price - $2) / entry_price * 100 END,
			updated_at = NOW()
		WHERE id = $1 AND status = 'OPEN'`

	tag, err := s.pool.Exec(ctx, query, id, price)
	if err != nil {
		return fmt.Errorf("postgres: update mark for position %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.checkExists(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("postgres: position %d is not open: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpdateStopLoss moves the protective stop of an open position.
func (s *PositionStore) UpdateStopLoss(ctx context.Context, id int64, stop float64) error {
	const query = `
		UPDATE positions SET stop_loss = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'OPEN'`

	tag, err := s.pool.Exec(ctx, query, id, stop)
	if err != nil {
		return fmt.Errorf("postgres: update stop loss for position %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.checkExists(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("postgres: position %d: %w", id, domain.ErrAlreadyClosed)
	}
	return nil
}

// checkExists maps a zero-row update to ErrNotFound when the row is missing.
func (s *PositionStore) checkExists(ctx context.Context, id int64) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM positions WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check position %d: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("postgres: position %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// closeLocked settles a position inside an open transaction. The row is
// locked FOR UPDATE so a concurrent close observes CLOSED and backs off.
func closeLocked(ctx context.Context, tx pgx.Tx, id int64, exitPrice float64, reason domain.CloseReason) (*domain.Position, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1 FOR UPDATE`, id)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres: position %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: lock position %d: %w", id, err)
	}
	if p.Status == domain.PositionStatusClosed {
		return nil, fmt.Errorf("postgres: position %d: %w", id, domain.ErrAlreadyClosed)
	}

	realized := p.GrossPnL(exitPrice)
	pnlPct := p.PnLPercentAt(exitPrice)

	const query = `
		UPDATE positions SET
			status         = 'CLOSED',
			exit_price     = $2,
			current_price  = $2,
			realized_pnl   = $3,
			unrealized_pnl = 0,
			pnl_percent    = $4,
			close_reason   = $5,
			closed_at      = NOW(),
			updated_at     = NOW()
		WHERE id = $1
		RETURNING ` + positionSelectCols

	closed, err := scanPosition(tx.QueryRow(ctx, query, id, exitPrice, realized, pnlPct, string(reason)))
	if err != nil {
		return nil, fmt.Errorf("postgres: close position %d: %w", id, err)
	}
	return closed, nil
}

// ClosePosition settles an open position at the given exit price. Closing an
// already-closed position returns ErrAlreadyClosed and changes nothing.
func (s *PositionStore) ClosePosition(ctx context.Context, id int64, exitPrice float64, reason domain.CloseReason) (*domain.Position, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin close tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	closed, err := closeLocked(ctx, tx, id, exitPrice, reason)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit close of position %d: %w", id, err)
	}
	return closed, nil
}

// ReplacePosition atomically closes one position and opens its replacement.
// If either step fails the transaction rolls back and neither change lands.
func (s *PositionStore) ReplacePosition(ctx context.Context, closeID int64, exitPrice float64, spec domain.PositionSpec) (*domain.Position, *domain.Position, error) {
	if err := validateSpec(spec); err != nil {
		return nil, nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	closed, err := closeLocked(ctx, tx, closeID, exitPrice, domain.CloseReasonReversal)
	if err != nil {
		return nil, nil, err
	}

	opened, err := insertPosition(ctx, tx, spec)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("postgres: commit replace of position %d: %w", closeID, err)
	}
	return closed, opened, nil
}

// GetClosedPositions returns closed positions newest first, up to limit.
func (s *PositionStore) GetClosedPositions(ctx context.Context, limit int) ([]domain.Position, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'CLOSED'
		 ORDER BY closed_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: get closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// GetStats aggregates trade counters since the given time.
func (s *PositionStore) GetStats(ctx context.Context, since time.Time) (*domain.PositionStats, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'CLOSED'),
			COUNT(*) FILTER (WHERE status = 'OPEN'),
			COUNT(*) FILTER (WHERE status = 'CLOSED' AND realized_pnl > 0),
			COUNT(*) FILTER (WHERE status = 'CLOSED' AND realized_pnl < 0),
			COALESCE(SUM(realized_pnl) FILTER (WHERE status = 'CLOSED'), 0),
			COALESCE(SUM(unrealized_pnl) FILTER (WHERE status = 'OPEN'), 0),
			COALESCE(AVG(pnl_percent) FILTER (WHERE status = 'CLOSED'), 0)
		FROM positions
		WHERE created_at >= $1`

	var st domain.PositionStats
	err := s.pool.QueryRow(ctx, query, since).Scan(
		&st.TotalTrades, &st.ClosedTrades, &st.OpenTrades,
		&st.WinningTrades, &st.LosingTrades,
		&st.TotalRealizedPnL, &st.TotalUnrealizedPnL, &st.AvgPnLPercent,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: get position stats: %w", err)
	}
	return &st, nil
}
