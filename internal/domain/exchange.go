package domain

import "context"

// MarketProvider supplies the mark price snapshot for a symbol. The concrete
// implementation reads through the price cache before touching the exchange.
type MarketProvider interface {
	Snapshot(ctx context.Context, symbol string) (*MarketData, error)
}

// SignalProvider produces a directional signal for a symbol given the current
// market snapshot and the open positions on that symbol.
type SignalProvider interface {
	GetSignal(ctx context.Context, md MarketData, open []Position) (Signal, error)
}

// OrderPlacer mirrors engine decisions to a real exchange account. Virtual
// mode runs without one; live mode wires the exchange client in.
type OrderPlacer interface {
	// PlaceMarketOrder submits a market order. reduceOnly marks closes so a
	// close can never flip into a fresh exchange position.
	PlaceMarketOrder(ctx context.Context, symbol string, side PositionSide, size float64, stopLoss, takeProfit *float64, reduceOnly bool) error
}
