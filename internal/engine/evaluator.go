package engine

import (
	"fmt"

	"github.com/mkoval/tradepilot/internal/domain"
)

// Verdict is the outcome of evaluating one open position against the current
// mark price. At most one of Close / NewStop is acted on per cycle: a closing
// position never gets its stop moved.
type Verdict struct {
	Close  bool
	Reason domain.CloseReason

	// NewStop, when non-nil, is a tightened trailing stop to persist.
	NewStop *float64

	// Diagnostic is set when the position's protective levels contradict
	// each other. The evaluator takes no action in that case; the caller
	// logs the inconsistency and leaves the position untouched.
	Diagnostic error
}

// Evaluate applies the protective-level rules to an open position.
//
// Order of checks:
//  1. Inverted levels fail closed: no exit, no stop move, only a
//     diagnostic. A position that cannot be managed safely is left alone
//     rather than guessed at.
//  2. Stop loss, checked before take profit: when a price move satisfies
//     both levels in one cycle, the loss side wins.
//  3. Take profit.
//  4. Trailing-stop ratchet, which only ever tightens the stop.
func Evaluate(p domain.Position, price float64, s domain.Settings) Verdict {
	if invertedLevels(p) {
		return Verdict{Diagnostic: fmt.Errorf(
			"engine: position %d %s %s has inverted levels (stop %.6f, take %.6f): %w",
			p.ID, p.Side, p.Symbol, *p.StopLoss, *p.TakeProfit, domain.ErrConfigInconsistent)}
	}

	if p.StopLoss != nil && stopHit(p, price) {
		reason := domain.CloseReasonStopLoss
		if stopInProfit(p) {
			reason = domain.CloseReasonTrailingStop
		}
		return Verdict{Close: true, Reason: reason}
	}

	if p.TakeProfit != nil && takeProfitHit(p, price) {
		return Verdict{Close: true, Reason: domain.CloseReasonTakeProfit}
	}

	if s.TrailingStopEnabled {
		if stop := ratchetStop(p, price, s); stop != nil {
			return Verdict{NewStop: stop}
		}
	}

	return Verdict{}
}

// invertedLevels reports whether the protective levels contradict the
// position's direction.
func invertedLevels(p domain.Position) bool {
	if p.StopLoss == nil || p.TakeProfit == nil {
		return false
	}
	if p.IsLong() {
		return *p.StopLoss >= *p.TakeProfit
	}
	return *p.StopLoss <= *p.TakeProfit
}

func stopHit(p domain.Position, price float64) bool {
	if p.IsLong() {
		return price <= *p.StopLoss
	}
	return price >= *p.StopLoss
}

func takeProfitHit(p domain.Position, price float64) bool {
	if p.IsLong() {
		return price >= *p.TakeProfit
	}
	return price <= *p.TakeProfit
}

// stopInProfit reports whether the stop has been ratcheted past the entry,
// which means a stop-out locks in profit rather than a loss.
func stopInProfit(p domain.Position) bool {
	if p.StopLoss == nil {
		return false
	}
	if p.IsLong() {
		return *p.StopLoss > p.EntryPrice
	}
	return *p.StopLoss < p.EntryPrice
}

// ratchetStop computes a tightened trailing stop, or nil when the position is
// not profitable enough or the candidate would loosen the current stop.
func ratchetStop(p domain.Position, price float64, s domain.Settings) *float64 {
	if p.PnLPercentAt(price) < s.TrailingActivationPercent {
		return nil
	}

	var candidate float64
	if p.IsLong() {
		candidate = price * (1 - s.TrailingDistancePercent/100)
		if p.StopLoss != nil && candidate <= *p.StopLoss {
			return nil
		}
	} else {
		candidate = price * (1 + s.TrailingDistancePercent/100)
		if p.StopLoss != nil && candidate >= *p.StopLoss {
			return nil
		}
	}
	return &candidate
}
