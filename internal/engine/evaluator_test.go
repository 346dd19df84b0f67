package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/mkoval/tradepilot/internal/domain"
)

func fptr(v float64) *float64 { return &v }

func trailingSettings() domain.Settings {
	s := domain.DefaultSettings()
	s.TrailingStopEnabled = true
	s.TrailingActivationPercent = 0.5
	s.TrailingDistancePercent = 0.3
	return s
}

func TestEvaluateStopAndTakeProfit(t *testing.T) {
	tests := []struct {
		name       string
		side       domain.PositionSide
		entry      float64
		stop       *float64
		take       *float64
		price      float64
		wantClose  bool
		wantReason domain.CloseReason
	}{
		{
			name:       "long stop hit",
			side:       domain.SideLong,
			entry:      50000,
			stop:       fptr(49000),
			take:       fptr(52000),
			price:      48900,
			wantClose:  true,
			wantReason: domain.CloseReasonStopLoss,
		},
		{
			name:       "long take profit hit",
			side:       domain.SideLong,
			entry:      50000,
			stop:       fptr(49000),
			take:       fptr(52000),
			price:      52100,
			wantClose:  true,
			wantReason: domain.CloseReasonTakeProfit,
		},
		{
			name:      "long neither level hit",
			side:      domain.SideLong,
			entry:     50000,
			stop:      fptr(49000),
			take:      fptr(52000),
			price:     50100,
			wantClose: false,
		},
		{
			name:       "short stop hit",
			side:       domain.SideShort,
			entry:      3000,
			stop:       fptr(3060),
			take:       fptr(2880),
			price:      3061,
			wantClose:  true,
			wantReason: domain.CloseReasonStopLoss,
		},
		{
			name:       "short take profit hit",
			side:       domain.SideShort,
			entry:      3000,
			stop:       fptr(3060),
			take:       fptr(2880),
			price:      2879,
			wantClose:  true,
			wantReason: domain.CloseReasonTakeProfit,
		},
		{
			name:       "stop exactly at price counts as hit",
			side:       domain.SideLong,
			entry:      50000,
			stop:       fptr(49000),
			take:       fptr(52000),
			price:      49000,
			wantClose:  true,
			wantReason: domain.CloseReasonStopLoss,
		},
		{
			name:      "no levels set never closes",
			side:      domain.SideLong,
			entry:     50000,
			price:     10,
			wantClose: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := domain.Position{
				Symbol:     "BTCUSDT",
				Side:       tt.side,
				Size:       0.01,
				EntryPrice: tt.entry,
				StopLoss:   tt.stop,
				TakeProfit: tt.take,
				Status:     domain.PositionStatusOpen,
			}
			s := domain.DefaultSettings()
			s.TrailingStopEnabled = false

			v := Evaluate(p, tt.price, s)
			if v.Close != tt.wantClose {
				t.Fatalf("Close = %v, want %v", v.Close, tt.wantClose)
			}
			if tt.wantClose && v.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", v.Reason, tt.wantReason)
			}
		})
	}
}

func TestEvaluateStopWinsOverTakeProfit(t *testing.T) {
	// A gap so large both levels are satisfied in the same cycle. The loss
	// side must win.
	p := domain.Position{
		Symbol:     "ETHUSDT",
		Side:       domain.SideShort,
		Size:       1,
		EntryPrice: 3000,
		StopLoss:   fptr(2000),
		TakeProfit: fptr(2900),
		Status:     domain.PositionStatusOpen,
	}

	v := Evaluate(p, 2500, domain.DefaultSettings())
	if !v.Close {
		t.Fatal("expected position to close")
	}
	if v.Reason != domain.CloseReasonStopLoss {
		t.Errorf("Reason = %q, want %q", v.Reason, domain.CloseReasonStopLoss)
	}
}

func TestEvaluateInvertedLevelsFailClosed(t *testing.T) {
	tests := []struct {
		name string
		side domain.PositionSide
		stop float64
		take float64
	}{
		{name: "long stop above take", side: domain.SideLong, stop: 52000, take: 51000},
		{name: "long stop equals take", side: domain.SideLong, stop: 51000, take: 51000},
		{name: "short stop below take", side: domain.SideShort, stop: 2800, take: 2900},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := domain.Position{
				Symbol:     "BTCUSDT",
				Side:       tt.side,
				Size:       0.01,
				EntryPrice: 50000,
				StopLoss:   fptr(tt.stop),
				TakeProfit: fptr(tt.take),
				Status:     domain.PositionStatusOpen,
			}

			// Even at a price where a level would otherwise fire, the
			// evaluator must refuse to act on contradictory levels.
			v := Evaluate(p, 50000, domain.DefaultSettings())
			if v.Close {
				t.Fatal("inverted levels must never trigger an exit")
			}
			if v.NewStop != nil {
				t.Errorf("NewStop = %v, want nil", *v.NewStop)
			}
			if !errors.Is(v.Diagnostic, domain.ErrConfigInconsistent) {
				t.Errorf("Diagnostic = %v, want ErrConfigInconsistent", v.Diagnostic)
			}
		})
	}
}

func TestEvaluateTrailingRatchet(t *testing.T) {
	s := trailingSettings()

	t.Run("activates once profit threshold crossed", func(t *testing.T) {
		p := domain.Position{
			Side:       domain.SideLong,
			Size:       0.01,
			EntryPrice: 50000,
			StopLoss:   fptr(49000),
			TakeProfit: fptr(52000),
			Status:     domain.PositionStatusOpen,
		}

		// +1% is past the 0.5% activation threshold.
		price := 50500.0
		v := Evaluate(p, price, s)
		if v.Close {
			t.Fatal("position should stay open")
		}
		if v.NewStop == nil {
			t.Fatal("expected a tightened stop")
		}
		want := price * (1 - s.TrailingDistancePercent/100)
		if math.Abs(*v.NewStop-want) > 1e-9 {
			t.Errorf("NewStop = %.4f, want %.4f", *v.NewStop, want)
		}
	})

	t.Run("no ratchet below activation threshold", func(t *testing.T) {
		p := domain.Position{
			Side:       domain.SideLong,
			Size:       0.01,
			EntryPrice: 50000,
			StopLoss:   fptr(49000),
			Status:     domain.PositionStatusOpen,
		}

		// +0.2% is below the 0.5% activation threshold.
		v := Evaluate(p, 50100, s)
		if v.NewStop != nil {
			t.Errorf("NewStop = %.4f, want nil", *v.NewStop)
		}
	})

	t.Run("never loosens the stop", func(t *testing.T) {
		// Stop already ratcheted to 50400 on an earlier, higher price. The
		// price has since pulled back but remains above activation; the
		// candidate stop would be lower and must be discarded.
		p := domain.Position{
			Side:       domain.SideLong,
			Size:       0.01,
			EntryPrice: 50000,
			StopLoss:   fptr(50400),
			Status:     domain.PositionStatusOpen,
		}

		v := Evaluate(p, 50450, s)
		if v.Close {
			t.Fatal("price above stop, position should stay open")
		}
		if v.NewStop != nil {
			t.Errorf("NewStop = %.4f, want nil (would loosen 50400)", *v.NewStop)
		}
	})

	t.Run("short ratchet moves stop down", func(t *testing.T) {
		p := domain.Position{
			Side:       domain.SideShort,
			Size:       1,
			EntryPrice: 3000,
			StopLoss:   fptr(3060),
			Status:     domain.PositionStatusOpen,
		}

		price := 2970.0 // +1% for a short
		v := Evaluate(p, price, s)
		if v.NewStop == nil {
			t.Fatal("expected a tightened stop")
		}
		want := price * (1 + s.TrailingDistancePercent/100)
		if math.Abs(*v.NewStop-want) > 1e-9 {
			t.Errorf("NewStop = %.4f, want %.4f", *v.NewStop, want)
		}
		if *v.NewStop >= 3060 {
			t.Errorf("NewStop = %.4f did not tighten below 3060", *v.NewStop)
		}
	})

	t.Run("disabled trailing never moves the stop", func(t *testing.T) {
		off := trailingSettings()
		off.TrailingStopEnabled = false
		p := domain.Position{
			Side:       domain.SideLong,
			Size:       0.01,
			EntryPrice: 50000,
			StopLoss:   fptr(49000),
			Status:     domain.PositionStatusOpen,
		}

		v := Evaluate(p, 51000, off)
		if v.NewStop != nil {
			t.Errorf("NewStop = %.4f, want nil", *v.NewStop)
		}
	})
}

func TestEvaluateTrailingStopCloseReason(t *testing.T) {
	// Stop ratcheted above entry: a stop-out locks in profit and must be
	// reported as a trailing stop, not a stop loss.
	p := domain.Position{
		Side:       domain.SideLong,
		Size:       0.01,
		EntryPrice: 50000,
		StopLoss:   fptr(50350),
		TakeProfit: fptr(52000),
		Status:     domain.PositionStatusOpen,
	}

	v := Evaluate(p, 50300, trailingSettings())
	if !v.Close {
		t.Fatal("expected position to close")
	}
	if v.Reason != domain.CloseReasonTrailingStop {
		t.Errorf("Reason = %q, want %q", v.Reason, domain.CloseReasonTrailingStop)
	}
}
