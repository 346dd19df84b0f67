package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event topics published on the signal bus.
const (
	TopicPositionOpened   = "position.opened"
	TopicPositionClosed   = "position.closed"
	TopicPositionReversed = "position.reversed"
	TopicEquityUpdated    = "equity.updated"
	TopicCycleCompleted   = "cycle.completed"
)

// PositionEvent is the bus payload for open/close/reverse notifications.
type PositionEvent struct {
	Topic       string       `json:"topic"`
	PositionID  int64        `json:"position_id"`
	Symbol      string       `json:"symbol"`
	Side        PositionSide `json:"side"`
	Size        float64      `json:"size"`
	EntryPrice  float64      `json:"entry_price"`
	ExitPrice   *float64     `json:"exit_price,omitempty"`
	RealizedPnL *float64     `json:"realized_pnl,omitempty"`
	PnLPercent  *float64     `json:"pnl_percent,omitempty"`
	CloseReason *CloseReason `json:"close_reason,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// EquityEvent is published after the ledger snapshot at the end of each cycle.
type EquityEvent struct {
	Topic         string    `json:"topic"`
	Balance       float64   `json:"balance"`
	Equity        float64   `json:"equity"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	OpenPositions int       `json:"open_positions"`
	Timestamp     time.Time `json:"timestamp"`
}

// TradeLogEntry is one row of the decision audit trail. Entries are keyed by
// UUID so external consumers can deduplicate replays.
type TradeLogEntry struct {
	ID         uuid.UUID
	CycleID    uuid.UUID
	Symbol     string
	Action     string
	Detail     string
	PositionID *int64
	CreatedAt  time.Time
}
