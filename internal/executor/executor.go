// Package executor mirrors engine decisions to the exchange in live mode.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/mkoval/tradepilot/internal/domain"
	"github.com/mkoval/tradepilot/internal/platform/bybit"
)

// Executor implements domain.OrderPlacer against the Bybit v5 order API.
// The virtual ledger remains authoritative either way: an exchange rejection
// is logged and surfaced, but it never rolls back the store.
type Executor struct {
	client *bybit.Client
	logger *slog.Logger
}

// New creates an Executor over an authenticated Bybit client.
func New(client *bybit.Client, logger *slog.Logger) *Executor {
	return &Executor{
		client: client,
		logger: logger.With(slog.String("component", "executor")),
	}
}

var _ domain.OrderPlacer = (*Executor)(nil)

// PlaceMarketOrder submits a market order matching an engine decision.
func (e *Executor) PlaceMarketOrder(ctx context.Context, symbol string, side domain.PositionSide, size float64, stopLoss, takeProfit *float64, reduceOnly bool) error {
	req := bybit.OrderRequest{
		Symbol:      symbol,
		Side:        orderSide(side),
		OrderType:   "Market",
		Qty:         strconv.FormatFloat(size, 'f', -1, 64),
		ReduceOnly:  reduceOnly,
		OrderLinkID: uuid.New().String(),
	}
	if stopLoss != nil {
		req.StopLoss = strconv.FormatFloat(*stopLoss, 'f', -1, 64)
	}
	if takeProfit != nil {
		req.TakeProfit = strconv.FormatFloat(*takeProfit, 'f', -1, 64)
	}

	result, err := e.client.PlaceOrder(ctx, req)
	if err != nil {
		return fmt.Errorf("executor: market order %s %s: %w", req.Side, symbol, err)
	}

	e.logger.Info("order placed",
		slog.String("symbol", symbol),
		slog.String("side", req.Side),
		slog.Float64("size", size),
		slog.Bool("reduce_only", reduceOnly),
		slog.String("order_id", result.OrderID))
	return nil
}

func orderSide(side domain.PositionSide) string {
	if side == domain.SideLong {
		return "Buy"
	}
	return "Sell"
}
