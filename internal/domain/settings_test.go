package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestDefaultSettingsValid(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"leverage zero", func(s *Settings) { s.Leverage = 0 }},
		{"leverage above max", func(s *Settings) { s.Leverage = 126 }},
		{"confidence above one", func(s *Settings) { s.MinConfidence = 1.1 }},
		{"negative confidence", func(s *Settings) { s.MinConfidence = -0.1 }},
		{"zero risk", func(s *Settings) { s.RiskPercent = 0 }},
		{"zero initial balance", func(s *Settings) { s.InitialBalance = 0 }},
		{"negative initial balance", func(s *Settings) { s.InitialBalance = -100 }},
		{"total below per position", func(s *Settings) { s.MaxTotalPositionPct = 10; s.MaxPositionPercent = 20 }},
		{"zero stop loss", func(s *Settings) { s.StopLossPercent = 0 }},
		{"zero take profit", func(s *Settings) { s.TakeProfitPercent = 0 }},
		{"trailing enabled without distance", func(s *Settings) { s.TrailingStopEnabled = true; s.TrailingDistancePercent = 0 }},
		{"zero interval", func(s *Settings) { s.IntervalMin = 0 }},
		{"no symbols", func(s *Settings) { s.TradingSymbols = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrConfigInconsistent) {
				t.Errorf("err = %v, want ErrConfigInconsistent", err)
			}
		})
	}
}

func TestSettingsKVRoundTrip(t *testing.T) {
	s := DefaultSettings()
	s.TradingEnabled = false
	s.TradingSymbols = []string{"BTCUSDT", "DOGEUSDT"}
	s.Leverage = 10
	s.MinConfidence = 0.75
	s.TrailingDistancePercent = 0.45
	s.InitialBalance = 2500

	got, err := SettingsFromKV(s.KV())
	if err != nil {
		t.Fatalf("SettingsFromKV: %v", err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, s)
	}
}

func TestSettingsFromKV(t *testing.T) {
	t.Run("missing keys keep defaults", func(t *testing.T) {
		got, err := SettingsFromKV(map[string]string{"leverage": "10"})
		if err != nil {
			t.Fatalf("SettingsFromKV: %v", err)
		}
		if got.Leverage != 10 {
			t.Errorf("Leverage = %d, want 10", got.Leverage)
		}
		if got.MinConfidence != 0.68 {
			t.Errorf("MinConfidence = %v, want default 0.68", got.MinConfidence)
		}
		if len(got.TradingSymbols) != 3 {
			t.Errorf("TradingSymbols = %v, want the default three", got.TradingSymbols)
		}
	})

	t.Run("unknown keys ignored", func(t *testing.T) {
		got, err := SettingsFromKV(map[string]string{"some_future_key": "whatever"})
		if err != nil {
			t.Fatalf("SettingsFromKV: %v", err)
		}
		if !reflect.DeepEqual(got, DefaultSettings()) {
			t.Error("unknown keys must not disturb the profile")
		}
	})

	t.Run("bad value rejected", func(t *testing.T) {
		_, err := SettingsFromKV(map[string]string{"leverage": "lots"})
		if !errors.Is(err, ErrConfigInconsistent) {
			t.Errorf("err = %v, want ErrConfigInconsistent", err)
		}
	})

	t.Run("symbols normalised", func(t *testing.T) {
		got, err := SettingsFromKV(map[string]string{"trading_symbols": " btcusdt , ethusdt ,, "})
		if err != nil {
			t.Fatalf("SettingsFromKV: %v", err)
		}
		want := []string{"BTCUSDT", "ETHUSDT"}
		if !reflect.DeepEqual(got.TradingSymbols, want) {
			t.Errorf("TradingSymbols = %v, want %v", got.TradingSymbols, want)
		}
	})
}
