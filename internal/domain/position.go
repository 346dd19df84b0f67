package domain

import "time"

// PositionSide is the direction of a position.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss     CloseReason = "stop_loss"
	CloseReasonTakeProfit   CloseReason = "take_profit"
	CloseReasonTrailingStop CloseReason = "trailing_stop"
	CloseReasonReversal     CloseReason = "reversal"
	CloseReasonManual       CloseReason = "manual"
)

// Position is the central ledger entity. Only the PositionStore constructs
// Position values; the engine re-reads them from the store at every decision
// point and never holds one across cycles.
type Position struct {
	ID            int64
	Symbol        string
	Side          PositionSide
	Size          float64
	EntryPrice    float64
	CurrentPrice  float64
	ExitPrice     *float64
	StopLoss      *float64
	TakeProfit    *float64
	Leverage      int
	Status        PositionStatus
	UnrealizedPnL float64
	RealizedPnL   float64
	PnLPercent    float64
	CloseReason   *CloseReason
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
}

// PositionSpec carries the fields needed to open a position. Validation
// happens in the store so that no invalid position is ever persisted.
type PositionSpec struct {
	Symbol     string
	Side       PositionSide
	Size       float64
	EntryPrice float64
	StopLoss   *float64
	TakeProfit *float64
	Leverage   int
}

// IsLong reports whether the position is a LONG.
func (p *Position) IsLong() bool {
	return p.Side == SideLong
}

// GrossPnL returns the gross profit or loss at the given price.
func (p *Position) GrossPnL(price float64) float64 {
	if p.IsLong() {
		return (price - p.EntryPrice) * p.Size
	}
	return (p.EntryPrice - price) * p.Size
}

// PnLPercentAt returns the PnL relative to the entry notional, in percent.
func (p *Position) PnLPercentAt(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.IsLong() {
		return (price - p.EntryPrice) / p.EntryPrice * 100
	}
	return (p.EntryPrice - price) / p.EntryPrice * 100
}

// MarginUsed returns the margin locked by the position.
func (p *Position) MarginUsed() float64 {
	lev := p.Leverage
	if lev < 1 {
		lev = 1
	}
	return p.Size * p.EntryPrice / float64(lev)
}

// Notional returns the position value at its entry price.
func (p *Position) Notional() float64 {
	return p.Size * p.EntryPrice
}

// PositionStats aggregates closed/open trade counters over a window.
type PositionStats struct {
	TotalTrades        int
	ClosedTrades       int
	OpenTrades         int
	WinningTrades      int
	LosingTrades       int
	TotalRealizedPnL   float64
	TotalUnrealizedPnL float64
	AvgPnLPercent      float64
}
