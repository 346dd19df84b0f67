package engine

import (
	"context"
	"math"
	"testing"

	"github.com/mkoval/tradepilot/internal/domain"
)

func TestLedgerAccountDerivesFromStore(t *testing.T) {
	ctx := context.Background()
	store := newMemPositions()
	settings := &settingsStub{s: domain.DefaultSettings()}
	ledger := NewLedger(store, &equityStub{}, settings)

	// A closed winner: +50 realized.
	pos, err := store.CreatePosition(ctx, domain.PositionSpec{
		Symbol: "BTCUSDT", Side: domain.SideLong, Size: 0.01, EntryPrice: 50000, Leverage: 5,
	})
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	if _, err := store.ClosePosition(ctx, pos.ID, 55000, domain.CloseReasonTakeProfit); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}

	// An open position marked at a 10 USDT loss, margin 300.
	open, err := store.CreatePosition(ctx, domain.PositionSpec{
		Symbol: "ETHUSDT", Side: domain.SideLong, Size: 0.5, EntryPrice: 3000, Leverage: 5,
	})
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}
	if err := store.UpdateMark(ctx, open.ID, 2980); err != nil {
		t.Fatalf("UpdateMark: %v", err)
	}

	state, err := ledger.Account(ctx)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}

	if math.Abs(state.Balance-10050) > 1e-9 {
		t.Errorf("Balance = %.4f, want 10050 (initial + realized)", state.Balance)
	}
	if math.Abs(state.UnrealizedPnL-(-10)) > 1e-9 {
		t.Errorf("UnrealizedPnL = %.4f, want -10", state.UnrealizedPnL)
	}
	if math.Abs(state.Equity-10040) > 1e-9 {
		t.Errorf("Equity = %.4f, want 10040", state.Equity)
	}
	if math.Abs(state.MarginUsed-300) > 1e-9 {
		t.Errorf("MarginUsed = %.4f, want 300 (0.5*3000/5)", state.MarginUsed)
	}
	if math.Abs(state.AvailableFunds-9740) > 1e-9 {
		t.Errorf("AvailableFunds = %.4f, want 9740 (equity - margin in use)", state.AvailableFunds)
	}
	if state.OpenPositions != 1 {
		t.Errorf("OpenPositions = %d, want 1", state.OpenPositions)
	}
}

func TestLedgerBalanceNeverARunningTotal(t *testing.T) {
	// Closing and reopening the same realized history must always produce the
	// same balance: the ledger recomputes from the store on every call.
	ctx := context.Background()
	store := newMemPositions()
	ledger := NewLedger(store, &equityStub{}, &settingsStub{s: domain.DefaultSettings()})

	for i := 0; i < 3; i++ {
		pos, err := store.CreatePosition(ctx, domain.PositionSpec{
			Symbol: "BTCUSDT", Side: domain.SideLong, Size: 0.01, EntryPrice: 50000, Leverage: 5,
		})
		if err != nil {
			t.Fatalf("CreatePosition: %v", err)
		}
		if _, err := store.ClosePosition(ctx, pos.ID, 51000, domain.CloseReasonTakeProfit); err != nil {
			t.Fatalf("ClosePosition: %v", err)
		}
	}

	first, err := ledger.Account(ctx)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	second, err := ledger.Account(ctx)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if first.Balance != second.Balance {
		t.Errorf("Balance drifted between reads: %.4f then %.4f", first.Balance, second.Balance)
	}
	// 3 wins of (51000-50000)*0.01 = 10 each.
	if math.Abs(first.Balance-10030) > 1e-9 {
		t.Errorf("Balance = %.4f, want 10030", first.Balance)
	}
}

func TestLedgerSnapshotRecordsHistory(t *testing.T) {
	ctx := context.Background()
	store := newMemPositions()
	equity := &equityStub{}
	seed := domain.DefaultSettings()
	seed.InitialBalance = 5000
	ledger := NewLedger(store, equity, &settingsStub{s: seed})

	state, err := ledger.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if state.Balance != 5000 {
		t.Errorf("Balance = %.2f, want 5000", state.Balance)
	}

	latest, err := equity.LatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest.Balance != 5000 || latest.OpenPositions != 0 {
		t.Errorf("snapshot = %+v, want balance 5000 and no open positions", latest)
	}
	if latest.AvailableFunds != 5000 {
		t.Errorf("AvailableFunds = %.2f, want 5000 persisted with the snapshot", latest.AvailableFunds)
	}
	if latest.RecordedAt.IsZero() {
		t.Error("RecordedAt must be set")
	}
}

func TestLedgerHonorsEditedInitialBalance(t *testing.T) {
	ctx := context.Background()
	store := newMemPositions()
	settings := &settingsStub{s: domain.DefaultSettings()}
	ledger := NewLedger(store, &equityStub{}, settings)

	first, err := ledger.Account(ctx)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if first.Balance != settings.s.InitialBalance {
		t.Fatalf("Balance = %.2f, want %.2f", first.Balance, settings.s.InitialBalance)
	}

	// An operator edit to the catalog takes effect on the next computation.
	settings.s.InitialBalance = 25000
	second, err := ledger.Account(ctx)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if second.Balance != 25000 {
		t.Errorf("Balance = %.2f, want 25000 after the catalog edit", second.Balance)
	}
}
