package domain

import (
	"math"
	"testing"
)

func TestPositionPnL(t *testing.T) {
	tests := []struct {
		name    string
		side    PositionSide
		entry   float64
		size    float64
		price   float64
		wantPnL float64
		wantPct float64
	}{
		{"long profit", SideLong, 50000, 0.01, 51000, 10, 2},
		{"long loss", SideLong, 50000, 0.01, 48900, -11, -2.2},
		{"short profit", SideShort, 3000, 0.5, 2940, 30, 2},
		{"short loss", SideShort, 3000, 0.5, 3030, -15, -1},
		{"flat", SideLong, 50000, 0.01, 50000, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Position{Side: tt.side, EntryPrice: tt.entry, Size: tt.size}
			if got := p.GrossPnL(tt.price); math.Abs(got-tt.wantPnL) > 1e-9 {
				t.Errorf("GrossPnL = %.6f, want %.6f", got, tt.wantPnL)
			}
			if got := p.PnLPercentAt(tt.price); math.Abs(got-tt.wantPct) > 1e-9 {
				t.Errorf("PnLPercentAt = %.6f, want %.6f", got, tt.wantPct)
			}
		})
	}
}

func TestPositionPnLPercentZeroEntry(t *testing.T) {
	p := Position{Side: SideLong, EntryPrice: 0, Size: 1}
	if got := p.PnLPercentAt(100); got != 0 {
		t.Errorf("PnLPercentAt with zero entry = %v, want 0", got)
	}
}

func TestPositionMarginAndNotional(t *testing.T) {
	p := Position{Side: SideLong, EntryPrice: 3000, Size: 0.5, Leverage: 5}
	if got := p.Notional(); math.Abs(got-1500) > 1e-9 {
		t.Errorf("Notional = %.4f, want 1500", got)
	}
	if got := p.MarginUsed(); math.Abs(got-300) > 1e-9 {
		t.Errorf("MarginUsed = %.4f, want 300", got)
	}

	// Leverage below one is clamped so margin never exceeds notional.
	p.Leverage = 0
	if got := p.MarginUsed(); math.Abs(got-1500) > 1e-9 {
		t.Errorf("MarginUsed with clamped leverage = %.4f, want 1500", got)
	}
}
