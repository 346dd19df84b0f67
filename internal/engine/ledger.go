package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mkoval/tradepilot/internal/domain"
)

// Ledger derives the account state from the position store. Balance is never
// stored as a running total: it is recomputed as initial balance plus the sum
// of realized PnL, so the store stays the single source of truth. The initial
// balance itself comes from the settings catalog, so an operator edit is
// honored at the next computation.
type Ledger struct {
	positions domain.PositionStore
	equity    domain.EquityStore
	settings  domain.SettingsStore
}

// NewLedger creates a Ledger over the given stores.
func NewLedger(positions domain.PositionStore, equity domain.EquityStore, settings domain.SettingsStore) *Ledger {
	return &Ledger{
		positions: positions,
		equity:    equity,
		settings:  settings,
	}
}

// Account computes the current account state.
func (l *Ledger) Account(ctx context.Context) (domain.AccountState, error) {
	s, err := l.settings.Load(ctx)
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("engine: ledger settings: %w", err)
	}

	stats, err := l.positions.GetStats(ctx, time.Time{})
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("engine: ledger stats: %w", err)
	}

	open, err := l.positions.GetOpenPositions(ctx, "")
	if err != nil {
		return domain.AccountState{}, fmt.Errorf("engine: ledger open positions: %w", err)
	}

	var unrealized, marginUsed float64
	for _, p := range open {
		unrealized += p.UnrealizedPnL
		marginUsed += p.MarginUsed()
	}

	balance := s.InitialBalance + stats.TotalRealizedPnL
	equity := balance + unrealized
	state := domain.AccountState{
		Balance:        balance,
		Equity:         equity,
		UnrealizedPnL:  unrealized,
		MarginUsed:     marginUsed,
		AvailableFunds: equity - marginUsed,
		OpenPositions:  len(open),
	}
	return state, nil
}

// Snapshot computes the account state and appends it to the equity history.
func (l *Ledger) Snapshot(ctx context.Context) (domain.AccountState, error) {
	state, err := l.Account(ctx)
	if err != nil {
		return domain.AccountState{}, err
	}

	snap := domain.EquitySnapshot{
		Balance:        state.Balance,
		Equity:         state.Equity,
		UnrealizedPnL:  state.UnrealizedPnL,
		MarginUsed:     state.MarginUsed,
		AvailableFunds: state.AvailableFunds,
		OpenPositions:  state.OpenPositions,
		RecordedAt:     time.Now().UTC(),
	}
	if err := l.equity.RecordSnapshot(ctx, snap); err != nil {
		return domain.AccountState{}, fmt.Errorf("engine: record equity snapshot: %w", err)
	}
	return state, nil
}
