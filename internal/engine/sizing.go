package engine

import (
	"fmt"

	"github.com/mkoval/tradepilot/internal/domain"
)

// Sizing is the computed order plan for a new position.
type Sizing struct {
	// Size is the position quantity in base units.
	Size float64
	// Margin is the account margin committed, in quote units.
	Margin float64
	// Notional is Margin multiplied by leverage.
	Notional float64
	// StopLoss and TakeProfit are the protective levels derived from the
	// entry price and the configured percentages.
	StopLoss   float64
	TakeProfit float64
}

// ComputeSizing derives the position size from the account balance and the
// risk settings. It is a pure function of its inputs.
//
// The committed margin is the smallest of balance*risk%, the per-position
// cap balance*max_position%, and the headroom left under the total exposure
// cap balance*max_total% minus the margin already in use. A plan whose
// leveraged notional falls below the minimum trade size, or one with no
// exposure headroom left, fails with ErrInsufficientMargin.
func ComputeSizing(balance, price float64, side domain.PositionSide, marginInUse float64, s domain.Settings) (Sizing, error) {
	if price <= 0 {
		return Sizing{}, fmt.Errorf("engine: sizing price %.8f must be positive: %w", price, domain.ErrValidation)
	}
	if balance <= 0 {
		return Sizing{}, fmt.Errorf("engine: balance %.2f exhausted: %w", balance, domain.ErrInsufficientMargin)
	}

	margin := balance * s.RiskPercent / 100
	if perPosition := balance * s.MaxPositionPercent / 100; margin > perPosition {
		margin = perPosition
	}
	if headroom := balance*s.MaxTotalPositionPct/100 - marginInUse; margin > headroom {
		margin = headroom
	}
	if margin <= 0 {
		return Sizing{}, fmt.Errorf("engine: total exposure cap exhausted (in use %.2f): %w",
			marginInUse, domain.ErrInsufficientMargin)
	}

	notional := margin * float64(s.Leverage)
	if notional < s.MinTradeUSDT {
		return Sizing{}, fmt.Errorf("engine: notional %.2f below minimum trade %.2f: %w",
			notional, s.MinTradeUSDT, domain.ErrInsufficientMargin)
	}
	size := notional / price

	plan := Sizing{
		Size:     size,
		Margin:   margin,
		Notional: notional,
	}

	if side == domain.SideLong {
		plan.StopLoss = price * (1 - s.StopLossPercent/100)
		plan.TakeProfit = price * (1 + s.TakeProfitPercent/100)
	} else {
		plan.StopLoss = price * (1 + s.StopLossPercent/100)
		plan.TakeProfit = price * (1 - s.TakeProfitPercent/100)
	}

	return plan, nil
}

// SpecFor turns a sizing plan into the store-level position spec.
func (sz Sizing) SpecFor(symbol string, side domain.PositionSide, price float64, leverage int) domain.PositionSpec {
	sl := sz.StopLoss
	tp := sz.TakeProfit
	return domain.PositionSpec{
		Symbol:     symbol,
		Side:       side,
		Size:       sz.Size,
		EntryPrice: price,
		StopLoss:   &sl,
		TakeProfit: &tp,
		Leverage:   leverage,
	}
}
