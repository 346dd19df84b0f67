package domain

import "time"

// SignalAction is the advisory output of a signal provider.
type SignalAction string

const (
	SignalBuy  SignalAction = "BUY"
	SignalSell SignalAction = "SELL"
	SignalHold SignalAction = "HOLD"
)

// Signal is a directional recommendation for a symbol. Confidence is a
// probability-like score in [0,1]; the engine gates entries on a minimum
// confidence threshold from settings.
type Signal struct {
	Symbol     string
	Action     SignalAction
	Confidence float64
	Reason     string
	IssuedAt   time.Time
}

// Actionable reports whether the signal proposes a trade at all.
func (s Signal) Actionable() bool {
	return s.Action == SignalBuy || s.Action == SignalSell
}

// Side maps a BUY/SELL signal to a position side. Calling Side on a HOLD
// signal is a programming error; callers must check Actionable first.
func (s Signal) Side() PositionSide {
	if s.Action == SignalSell {
		return SideShort
	}
	return SideLong
}
