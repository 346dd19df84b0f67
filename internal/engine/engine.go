// Package engine implements the trading cycle: position management, signal
// evaluation, risk sizing, and the balance ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkoval/tradepilot/internal/domain"
)

// cycleLockKey is the distributed lock taken for the duration of each cycle.
const cycleLockKey = "cycle"

// Engine drives the trading loop. Every tick it re-reads the settings
// catalog, fetches one price per symbol, manages open positions against that
// price, and only then considers new entries. All position state lives in the
// store; the engine deliberately holds nothing across cycles.
type Engine struct {
	positions domain.PositionStore
	settings  domain.SettingsStore
	tradeLog  domain.TradeLogStore
	market    domain.MarketProvider
	signals   domain.SignalProvider
	bus       domain.SignalBus
	locks     domain.LockManager
	orders    domain.OrderPlacer // nil in virtual mode
	ledger    *Ledger
	logger    *slog.Logger
}

// Config collects the engine's collaborators.
type Config struct {
	Positions domain.PositionStore
	Settings  domain.SettingsStore
	TradeLog  domain.TradeLogStore
	Market    domain.MarketProvider
	Signals   domain.SignalProvider
	Bus       domain.SignalBus
	Locks     domain.LockManager
	Orders    domain.OrderPlacer
	Ledger    *Ledger
	Logger    *slog.Logger
}

// New creates an Engine.
func New(cfg Config) *Engine {
	return &Engine{
		positions: cfg.Positions,
		settings:  cfg.Settings,
		tradeLog:  cfg.TradeLog,
		market:    cfg.Market,
		signals:   cfg.Signals,
		bus:       cfg.Bus,
		locks:     cfg.Locks,
		orders:    cfg.Orders,
		ledger:    cfg.Ledger,
		logger:    cfg.Logger.With(slog.String("component", "engine")),
	}
}

// Run executes trading cycles until ctx is cancelled. Cycles never overlap:
// the next tick is scheduled only after the current cycle finishes, using the
// interval from the settings read at the top of that cycle.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started")
	defer e.logger.Info("engine stopped")

	for {
		interval := e.runCycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce executes a single cycle. Used by the monitor mode and tests.
func (e *Engine) RunOnce(ctx context.Context) error {
	e.runCycle(ctx)
	return ctx.Err()
}

// runCycle executes one full cycle and returns the interval until the next.
func (e *Engine) runCycle(ctx context.Context) time.Duration {
	const fallbackInterval = time.Minute

	settings, err := e.settings.Load(ctx)
	if err != nil {
		e.logger.Error("load settings", slog.String("error", err.Error()))
		return fallbackInterval
	}
	interval := time.Duration(settings.IntervalMin) * time.Minute

	if err := settings.Validate(); err != nil {
		e.logger.Error("settings rejected, skipping cycle", slog.String("error", err.Error()))
		return interval
	}
	if !settings.TradingEnabled {
		e.logger.Debug("trading disabled, skipping cycle")
		return interval
	}

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, cycleLockKey, interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				e.logger.Info("cycle lock held elsewhere, skipping tick")
			} else {
				e.logger.Error("acquire cycle lock", slog.String("error", err.Error()))
			}
			return interval
		}
		defer unlock()
	}

	cycleID := uuid.New()
	started := time.Now()
	e.logger.Info("cycle started",
		slog.String("cycle_id", cycleID.String()),
		slog.Int("symbols", len(settings.TradingSymbols)))

	// One price per symbol per cycle. Every decision downstream sees the
	// same mark, and a symbol whose price cannot be fetched is skipped
	// without touching its positions.
	prices := make(map[string]*domain.MarketData, len(settings.TradingSymbols))
	for _, symbol := range settings.TradingSymbols {
		md, err := e.market.Snapshot(ctx, symbol)
		if err != nil {
			e.logger.Warn("price fetch failed, skipping symbol",
				slog.String("symbol", symbol), slog.String("error", err.Error()))
			continue
		}
		prices[symbol] = md
	}

	for _, symbol := range settings.TradingSymbols {
		md, ok := prices[symbol]
		if !ok {
			continue
		}
		// Per-symbol error boundary: one symbol's failure never stops the
		// rest of the cycle.
		if err := e.processSymbol(ctx, cycleID, *md, settings); err != nil {
			if ctx.Err() != nil {
				return interval
			}
			e.logger.Error("symbol processing failed",
				slog.String("symbol", symbol), slog.String("error", err.Error()))
			e.audit(ctx, settings, cycleID, symbol, "error", err.Error(), nil)
		}
	}

	state, err := e.ledger.Snapshot(ctx)
	if err != nil {
		e.logger.Error("equity snapshot failed", slog.String("error", err.Error()))
	} else {
		e.publish(ctx, domain.TopicEquityUpdated, domain.EquityEvent{
			Topic:         domain.TopicEquityUpdated,
			Balance:       state.Balance,
			Equity:        state.Equity,
			UnrealizedPnL: state.UnrealizedPnL,
			OpenPositions: state.OpenPositions,
			Timestamp:     time.Now().UTC(),
		})
	}

	e.logger.Info("cycle completed",
		slog.String("cycle_id", cycleID.String()),
		slog.Duration("took", time.Since(started)))
	return interval
}

// processSymbol manages existing positions against the cycle price and then
// considers a new entry.
func (e *Engine) processSymbol(ctx context.Context, cycleID uuid.UUID, md domain.MarketData, settings domain.Settings) error {
	symbol := md.Symbol
	price := md.Price

	open, err := e.positions.GetOpenPositions(ctx, symbol)
	if err != nil {
		return fmt.Errorf("engine: open positions for %s: %w", symbol, err)
	}

	for _, p := range open {
		if err := e.managePosition(ctx, cycleID, p, price, settings); err != nil {
			return err
		}
	}

	// Management may have closed the position; the store decides what is
	// still open, not the slice we iterated above.
	open, err = e.positions.GetOpenPositions(ctx, symbol)
	if err != nil {
		return fmt.Errorf("engine: re-read open positions for %s: %w", symbol, err)
	}

	signal, err := e.signals.GetSignal(ctx, md, open)
	if err != nil {
		return fmt.Errorf("engine: signal for %s: %w", symbol, err)
	}

	return e.actOnSignal(ctx, cycleID, signal, price, open, settings)
}

// managePosition marks one open position and applies the evaluator verdict.
func (e *Engine) managePosition(ctx context.Context, cycleID uuid.UUID, p domain.Position, price float64, settings domain.Settings) error {
	if err := e.positions.UpdateMark(ctx, p.ID, price); err != nil {
		// Another replica may have closed the position since we read it.
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("engine: mark position %d: %w", p.ID, err)
	}

	verdict := Evaluate(p, price, settings)

	if verdict.Diagnostic != nil {
		// Contradictory protective levels: do not act, surface the problem.
		e.logger.Error("position has inconsistent protective levels, leaving it untouched",
			slog.String("symbol", p.Symbol),
			slog.Int64("position_id", p.ID),
			slog.String("error", verdict.Diagnostic.Error()))
		e.audit(ctx, settings, cycleID, p.Symbol, "config_inconsistent",
			verdict.Diagnostic.Error(), &p.ID)
		return nil
	}

	if verdict.NewStop != nil {
		if err := e.positions.UpdateStopLoss(ctx, p.ID, *verdict.NewStop); err != nil {
			if errors.Is(err, domain.ErrAlreadyClosed) {
				return nil
			}
			return fmt.Errorf("engine: trail stop on position %d: %w", p.ID, err)
		}
		e.logger.Info("trailing stop tightened",
			slog.String("symbol", p.Symbol),
			slog.Int64("position_id", p.ID),
			slog.Float64("stop", *verdict.NewStop))
		e.audit(ctx, settings, cycleID, p.Symbol, "trail_stop",
			fmt.Sprintf("stop moved to %.6f", *verdict.NewStop), &p.ID)
		return nil
	}

	if !verdict.Close {
		return nil
	}

	closed, err := e.positions.ClosePosition(ctx, p.ID, price, verdict.Reason)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyClosed) {
			return nil
		}
		return fmt.Errorf("engine: close position %d: %w", p.ID, err)
	}

	if e.orders != nil {
		if err := e.orders.PlaceMarketOrder(ctx, p.Symbol, oppositeSide(p.Side), p.Size, nil, nil, true); err != nil {
			e.logger.Error("exchange close order failed",
				slog.Int64("position_id", p.ID), slog.String("error", err.Error()))
		}
	}

	e.logger.Info("position closed",
		slog.String("symbol", closed.Symbol),
		slog.Int64("position_id", closed.ID),
		slog.String("reason", string(verdict.Reason)),
		slog.Float64("realized_pnl", closed.RealizedPnL))
	e.audit(ctx, settings, cycleID, closed.Symbol, "close",
		fmt.Sprintf("%s at %.6f, pnl %.2f", verdict.Reason, price, closed.RealizedPnL), &closed.ID)
	e.publishPosition(ctx, domain.TopicPositionClosed, *closed)
	return nil
}

// actOnSignal opens, reverses, or holds based on the signal and what is
// already open.
func (e *Engine) actOnSignal(ctx context.Context, cycleID uuid.UUID, signal domain.Signal, price float64, open []domain.Position, settings domain.Settings) error {
	symbol := signal.Symbol

	// Confidence must clear the threshold strictly; exactly at it holds.
	if !signal.Actionable() || signal.Confidence <= settings.MinConfidence {
		e.logger.Debug("holding",
			slog.String("symbol", symbol),
			slog.String("action", string(signal.Action)),
			slog.Float64("confidence", signal.Confidence))
		return nil
	}

	side := signal.Side()
	if side == domain.SideLong && !settings.AllowLong {
		return nil
	}
	if side == domain.SideShort && !settings.AllowShort {
		return nil
	}

	if len(open) > 0 {
		current := open[0]
		if current.Side == side {
			// Already positioned the right way.
			return nil
		}
		if !settings.AutoPositionReversal {
			return nil
		}
		return e.reverse(ctx, cycleID, current, side, price, settings, signal)
	}

	return e.open(ctx, cycleID, symbol, side, price, settings, signal)
}

func (e *Engine) open(ctx context.Context, cycleID uuid.UUID, symbol string, side domain.PositionSide, price float64, settings domain.Settings, signal domain.Signal) error {
	state, err := e.ledger.Account(ctx)
	if err != nil {
		return fmt.Errorf("engine: account state for %s: %w", symbol, err)
	}

	plan, err := ComputeSizing(state.Balance, price, side, state.MarginUsed, settings)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientMargin) {
			e.logger.Info("entry skipped",
				slog.String("symbol", symbol), slog.String("error", err.Error()))
			e.audit(ctx, settings, cycleID, symbol, "skip", err.Error(), nil)
			return nil
		}
		return err
	}

	spec := plan.SpecFor(symbol, side, price, settings.Leverage)
	pos, err := e.positions.CreatePosition(ctx, spec)
	if err != nil {
		return fmt.Errorf("engine: open %s %s: %w", side, symbol, err)
	}

	if e.orders != nil {
		if err := e.orders.PlaceMarketOrder(ctx, symbol, side, plan.Size, spec.StopLoss, spec.TakeProfit, false); err != nil {
			e.logger.Error("exchange open order failed",
				slog.Int64("position_id", pos.ID), slog.String("error", err.Error()))
		}
	}

	e.logger.Info("position opened",
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.Int64("position_id", pos.ID),
		slog.Float64("size", plan.Size),
		slog.Float64("entry", price),
		slog.Float64("confidence", signal.Confidence))
	e.audit(ctx, settings, cycleID, symbol, "open",
		fmt.Sprintf("%s %.6f at %.6f (%s)", side, plan.Size, price, signal.Reason), &pos.ID)
	e.publishPosition(ctx, domain.TopicPositionOpened, *pos)
	return nil
}

// reverse atomically swaps an open position for one in the opposite
// direction. The close and the open land in one store transaction.
func (e *Engine) reverse(ctx context.Context, cycleID uuid.UUID, current domain.Position, side domain.PositionSide, price float64, settings domain.Settings, signal domain.Signal) error {
	state, err := e.ledger.Account(ctx)
	if err != nil {
		return fmt.Errorf("engine: account state for %s: %w", current.Symbol, err)
	}

	// The reversal frees the old position's margin; size the new leg
	// against the balance as it will be after the close.
	freedMargin := current.MarginUsed()
	balanceAfter := state.Balance + current.GrossPnL(price)

	plan, err := ComputeSizing(balanceAfter, price, side, state.MarginUsed-freedMargin, settings)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientMargin) {
			e.logger.Info("reversal skipped",
				slog.String("symbol", current.Symbol), slog.String("error", err.Error()))
			e.audit(ctx, settings, cycleID, current.Symbol, "skip", err.Error(), nil)
			return nil
		}
		return err
	}

	spec := plan.SpecFor(current.Symbol, side, price, settings.Leverage)
	closed, opened, err := e.positions.ReplacePosition(ctx, current.ID, price, spec)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyClosed) {
			return nil
		}
		return fmt.Errorf("engine: reverse %s: %w", current.Symbol, err)
	}

	if e.orders != nil {
		if err := e.orders.PlaceMarketOrder(ctx, current.Symbol, oppositeSide(current.Side), current.Size, nil, nil, true); err != nil {
			e.logger.Error("exchange close order failed",
				slog.Int64("position_id", closed.ID), slog.String("error", err.Error()))
		}
		if err := e.orders.PlaceMarketOrder(ctx, current.Symbol, side, plan.Size, spec.StopLoss, spec.TakeProfit, false); err != nil {
			e.logger.Error("exchange open order failed",
				slog.Int64("position_id", opened.ID), slog.String("error", err.Error()))
		}
	}

	e.logger.Info("position reversed",
		slog.String("symbol", current.Symbol),
		slog.String("from", string(current.Side)),
		slog.String("to", string(side)),
		slog.Int64("closed_id", closed.ID),
		slog.Int64("opened_id", opened.ID),
		slog.Float64("realized_pnl", closed.RealizedPnL))
	e.audit(ctx, settings, cycleID, current.Symbol, "reverse",
		fmt.Sprintf("%s -> %s at %.6f (%s)", current.Side, side, price, signal.Reason), &opened.ID)

	e.publishPosition(ctx, domain.TopicPositionClosed, *closed)
	e.publishPosition(ctx, domain.TopicPositionReversed, *opened)
	return nil
}

func (e *Engine) audit(ctx context.Context, settings domain.Settings, cycleID uuid.UUID, symbol, action, detail string, positionID *int64) {
	if !settings.EnableTradeLogging || e.tradeLog == nil {
		return
	}
	entry := domain.TradeLogEntry{
		ID:         uuid.New(),
		CycleID:    cycleID,
		Symbol:     symbol,
		Action:     action,
		Detail:     detail,
		PositionID: positionID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.tradeLog.Append(ctx, entry); err != nil {
		e.logger.Warn("trade log append failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) publishPosition(ctx context.Context, topic string, p domain.Position) {
	ev := domain.PositionEvent{
		Topic:      topic,
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Size:       p.Size,
		EntryPrice: p.EntryPrice,
		Timestamp:  time.Now().UTC(),
	}
	if p.Status == domain.PositionStatusClosed {
		ev.ExitPrice = p.ExitPrice
		pnl := p.RealizedPnL
		pct := p.PnLPercent
		ev.RealizedPnL = &pnl
		ev.PnLPercent = &pct
		ev.CloseReason = p.CloseReason
	}
	e.publish(ctx, topic, ev)
}

func (e *Engine) publish(ctx context.Context, topic string, payload any) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, topic, payload); err != nil {
		e.logger.Warn("event publish failed",
			slog.String("topic", topic), slog.String("error", err.Error()))
	}
}

func oppositeSide(s domain.PositionSide) domain.PositionSide {
	if s == domain.SideLong {
		return domain.SideShort
	}
	return domain.SideLong
}
