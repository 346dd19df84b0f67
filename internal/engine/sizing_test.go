package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/mkoval/tradepilot/internal/domain"
)

func TestComputeSizing(t *testing.T) {
	s := domain.DefaultSettings() // risk 2%, max position 20%, max total 30%, min trade 10, leverage 5

	t.Run("long plan", func(t *testing.T) {
		plan, err := ComputeSizing(10000, 50000, domain.SideLong, 0, s)
		if err != nil {
			t.Fatalf("ComputeSizing: %v", err)
		}

		// margin = 10000 * 2% = 200, notional = 200 * 5 = 1000, size = 0.02
		if math.Abs(plan.Margin-200) > 1e-9 {
			t.Errorf("Margin = %.4f, want 200", plan.Margin)
		}
		if math.Abs(plan.Notional-1000) > 1e-9 {
			t.Errorf("Notional = %.4f, want 1000", plan.Notional)
		}
		if math.Abs(plan.Size-0.02) > 1e-9 {
			t.Errorf("Size = %.6f, want 0.02", plan.Size)
		}
		if math.Abs(plan.StopLoss-49000) > 1e-6 {
			t.Errorf("StopLoss = %.4f, want 49000", plan.StopLoss)
		}
		if math.Abs(plan.TakeProfit-52000) > 1e-6 {
			t.Errorf("TakeProfit = %.4f, want 52000", plan.TakeProfit)
		}
	})

	t.Run("short plan mirrors levels", func(t *testing.T) {
		plan, err := ComputeSizing(10000, 3000, domain.SideShort, 0, s)
		if err != nil {
			t.Fatalf("ComputeSizing: %v", err)
		}
		if math.Abs(plan.StopLoss-3060) > 1e-6 {
			t.Errorf("StopLoss = %.4f, want 3060", plan.StopLoss)
		}
		if math.Abs(plan.TakeProfit-2880) > 1e-6 {
			t.Errorf("TakeProfit = %.4f, want 2880", plan.TakeProfit)
		}
	})

	t.Run("risk capped at per-position maximum", func(t *testing.T) {
		hot := s
		hot.RiskPercent = 50
		hot.MaxPositionPercent = 20
		hot.MaxTotalPositionPct = 100

		plan, err := ComputeSizing(10000, 50000, domain.SideLong, 0, hot)
		if err != nil {
			t.Fatalf("ComputeSizing: %v", err)
		}
		if math.Abs(plan.Margin-2000) > 1e-9 {
			t.Errorf("Margin = %.4f, want 2000 (capped)", plan.Margin)
		}
	})

	t.Run("minimum trade compares leveraged notional", func(t *testing.T) {
		// margin 100 * 2% = 2 would fall under the 10 USDT floor on its
		// own, but notional 2 * 10 = 20 clears it.
		tight := s
		tight.Leverage = 10
		plan, err := ComputeSizing(100, 50000, domain.SideLong, 0, tight)
		if err != nil {
			t.Fatalf("ComputeSizing: %v", err)
		}
		if math.Abs(plan.Margin-2) > 1e-9 {
			t.Errorf("Margin = %.4f, want 2", plan.Margin)
		}
		if math.Abs(plan.Notional-20) > 1e-9 {
			t.Errorf("Notional = %.4f, want 20", plan.Notional)
		}
	})

	t.Run("notional below minimum trade rejected", func(t *testing.T) {
		flat := s
		flat.Leverage = 1
		// margin 400 * 2% = 8, notional 8 < 10.
		_, err := ComputeSizing(400, 50000, domain.SideLong, 0, flat)
		if !errors.Is(err, domain.ErrInsufficientMargin) {
			t.Fatalf("err = %v, want ErrInsufficientMargin", err)
		}
	})

	t.Run("total exposure clamps to headroom", func(t *testing.T) {
		// total cap = 3000; 2900 in use leaves 100 of headroom, so the
		// desired 200 margin shrinks instead of failing.
		plan, err := ComputeSizing(10000, 50000, domain.SideLong, 2900, s)
		if err != nil {
			t.Fatalf("ComputeSizing: %v", err)
		}
		if math.Abs(plan.Margin-100) > 1e-9 {
			t.Errorf("Margin = %.4f, want 100 (clamped to headroom)", plan.Margin)
		}
		if math.Abs(plan.Notional-500) > 1e-9 {
			t.Errorf("Notional = %.4f, want 500", plan.Notional)
		}
	})

	t.Run("headroom caps a large risk slice", func(t *testing.T) {
		wide := s
		wide.RiskPercent = 20
		wide.MaxPositionPercent = 20
		wide.MaxTotalPositionPct = 30
		// risk slice 2000, per-position cap 2000, headroom 3000-2000 = 1000.
		plan, err := ComputeSizing(10000, 50000, domain.SideLong, 2000, wide)
		if err != nil {
			t.Fatalf("ComputeSizing: %v", err)
		}
		if math.Abs(plan.Margin-1000) > 1e-9 {
			t.Errorf("Margin = %.4f, want 1000", plan.Margin)
		}
	})

	t.Run("exhausted exposure cap rejected", func(t *testing.T) {
		// 3000 in use leaves zero headroom.
		_, err := ComputeSizing(10000, 50000, domain.SideLong, 3000, s)
		if !errors.Is(err, domain.ErrInsufficientMargin) {
			t.Fatalf("err = %v, want ErrInsufficientMargin", err)
		}
	})

	t.Run("exhausted balance rejected", func(t *testing.T) {
		_, err := ComputeSizing(0, 50000, domain.SideLong, 0, s)
		if !errors.Is(err, domain.ErrInsufficientMargin) {
			t.Fatalf("err = %v, want ErrInsufficientMargin", err)
		}
	})

	t.Run("non-positive price rejected", func(t *testing.T) {
		_, err := ComputeSizing(10000, 0, domain.SideLong, 0, s)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("err = %v, want ErrValidation", err)
		}
	})
}

func TestSizingSpecFor(t *testing.T) {
	s := domain.DefaultSettings()
	plan, err := ComputeSizing(10000, 50000, domain.SideLong, 0, s)
	if err != nil {
		t.Fatalf("ComputeSizing: %v", err)
	}

	spec := plan.SpecFor("BTCUSDT", domain.SideLong, 50000, s.Leverage)
	if spec.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q", spec.Symbol)
	}
	if spec.Side != domain.SideLong {
		t.Errorf("Side = %q", spec.Side)
	}
	if spec.EntryPrice != 50000 {
		t.Errorf("EntryPrice = %.2f", spec.EntryPrice)
	}
	if spec.Leverage != 5 {
		t.Errorf("Leverage = %d", spec.Leverage)
	}
	if spec.StopLoss == nil || spec.TakeProfit == nil {
		t.Fatal("protective levels must be set")
	}
	if *spec.StopLoss >= spec.EntryPrice || *spec.TakeProfit <= spec.EntryPrice {
		t.Errorf("levels SL %.2f / TP %.2f inconsistent with long entry %.2f",
			*spec.StopLoss, *spec.TakeProfit, spec.EntryPrice)
	}
}
