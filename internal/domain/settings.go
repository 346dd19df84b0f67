package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Settings is the tunable trading profile. It is persisted as a key/value
// catalog in the settings store and re-read at the top of every cycle, so an
// operator edit takes effect at the next tick without a restart.
type Settings struct {
	TradingEnabled bool
	TradingSymbols []string
	IntervalMin    int

	MinConfidence float64
	Leverage      int

	InitialBalance      float64
	RiskPercent         float64
	MaxPositionPercent  float64
	MaxTotalPositionPct float64
	MinTradeUSDT        float64

	StopLossPercent   float64
	TakeProfitPercent float64

	TrailingStopEnabled       bool
	TrailingActivationPercent float64
	TrailingDistancePercent   float64

	AllowLong            bool
	AllowShort           bool
	AutoPositionReversal bool

	EnableNotifications bool
	EnableTradeLogging  bool
}

// DefaultSettings returns the baseline profile used to seed the settings
// catalog on first start.
func DefaultSettings() Settings {
	return Settings{
		TradingEnabled: true,
		TradingSymbols: []string{"ETHUSDT", "BTCUSDT", "SOLUSDT"},
		IntervalMin:    15,

		MinConfidence: 0.68,
		Leverage:      5,

		InitialBalance:      10000.0,
		RiskPercent:         2.0,
		MaxPositionPercent:  20.0,
		MaxTotalPositionPct: 30.0,
		MinTradeUSDT:        10.0,

		StopLossPercent:   2.0,
		TakeProfitPercent: 4.0,

		TrailingStopEnabled:       true,
		TrailingActivationPercent: 0.5,
		TrailingDistancePercent:   0.3,

		AllowLong:            true,
		AllowShort:           true,
		AutoPositionReversal: true,

		EnableNotifications: true,
		EnableTradeLogging:  true,
	}
}

// Validate rejects profiles the engine must not run with. A settings row can
// be edited out-of-band, so every cycle re-validates before acting.
func (s Settings) Validate() error {
	if s.Leverage < 1 || s.Leverage > 125 {
		return fmt.Errorf("settings: leverage %d out of range [1,125]: %w", s.Leverage, ErrConfigInconsistent)
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return fmt.Errorf("settings: min confidence %.2f out of range [0,1]: %w", s.MinConfidence, ErrConfigInconsistent)
	}
	if s.InitialBalance <= 0 {
		return fmt.Errorf("settings: initial balance must be positive: %w", ErrConfigInconsistent)
	}
	if s.RiskPercent <= 0 || s.RiskPercent > 100 {
		return fmt.Errorf("settings: risk percent %.2f out of range (0,100]: %w", s.RiskPercent, ErrConfigInconsistent)
	}
	if s.MaxPositionPercent <= 0 || s.MaxPositionPercent > 100 {
		return fmt.Errorf("settings: max position percent %.2f out of range (0,100]: %w", s.MaxPositionPercent, ErrConfigInconsistent)
	}
	if s.MaxTotalPositionPct < s.MaxPositionPercent {
		return fmt.Errorf("settings: max total position %.2f below per-position cap %.2f: %w",
			s.MaxTotalPositionPct, s.MaxPositionPercent, ErrConfigInconsistent)
	}
	if s.StopLossPercent <= 0 {
		return fmt.Errorf("settings: stop loss percent must be positive: %w", ErrConfigInconsistent)
	}
	if s.TakeProfitPercent <= 0 {
		return fmt.Errorf("settings: take profit percent must be positive: %w", ErrConfigInconsistent)
	}
	if s.TrailingStopEnabled && s.TrailingDistancePercent <= 0 {
		return fmt.Errorf("settings: trailing distance must be positive when trailing is enabled: %w", ErrConfigInconsistent)
	}
	if s.IntervalMin < 1 {
		return fmt.Errorf("settings: trading interval must be at least one minute: %w", ErrConfigInconsistent)
	}
	if len(s.TradingSymbols) == 0 {
		return fmt.Errorf("settings: no trading symbols configured: %w", ErrConfigInconsistent)
	}
	return nil
}

// SettingsFromKV builds a Settings from the raw catalog rows, starting from
// defaults so a missing key never zeroes a field. Unknown keys are ignored.
func SettingsFromKV(kv map[string]string) (Settings, error) {
	s := DefaultSettings()
	for key, raw := range kv {
		if err := s.apply(key, raw); err != nil {
			return Settings{}, err
		}
	}
	return s, nil
}

// KV flattens the settings into the catalog representation.
func (s Settings) KV() map[string]string {
	return map[string]string{
		"trading_enabled":                  strconv.FormatBool(s.TradingEnabled),
		"trading_symbols":                  strings.Join(s.TradingSymbols, ","),
		"trading_interval_minutes":         strconv.Itoa(s.IntervalMin),
		"min_confidence":                   formatFloat(s.MinConfidence),
		"leverage":                         strconv.Itoa(s.Leverage),
		"initial_balance":                  formatFloat(s.InitialBalance),
		"risk_percent":                     formatFloat(s.RiskPercent),
		"max_position_percent":             formatFloat(s.MaxPositionPercent),
		"max_total_position_percent":       formatFloat(s.MaxTotalPositionPct),
		"min_trade_usdt":                   formatFloat(s.MinTradeUSDT),
		"stop_loss_percent":                formatFloat(s.StopLossPercent),
		"take_profit_percent":              formatFloat(s.TakeProfitPercent),
		"trailing_stop_enabled":            strconv.FormatBool(s.TrailingStopEnabled),
		"trailing_stop_activation_percent": formatFloat(s.TrailingActivationPercent),
		"trailing_stop_distance_percent":   formatFloat(s.TrailingDistancePercent),
		"allow_long_positions":             strconv.FormatBool(s.AllowLong),
		"allow_short_positions":            strconv.FormatBool(s.AllowShort),
		"auto_position_reversal":           strconv.FormatBool(s.AutoPositionReversal),
		"enable_notifications":             strconv.FormatBool(s.EnableNotifications),
		"enable_trade_logging":             strconv.FormatBool(s.EnableTradeLogging),
	}
}

func (s *Settings) apply(key, raw string) error {
	var err error
	switch key {
	case "trading_enabled":
		s.TradingEnabled, err = strconv.ParseBool(raw)
	case "trading_symbols":
		s.TradingSymbols = splitSymbols(raw)
	case "trading_interval_minutes":
		s.IntervalMin, err = strconv.Atoi(raw)
	case "min_confidence":
		s.MinConfidence, err = strconv.ParseFloat(raw, 64)
	case "leverage":
		s.Leverage, err = strconv.Atoi(raw)
	case "initial_balance":
		s.InitialBalance, err = strconv.ParseFloat(raw, 64)
	case "risk_percent":
		s.RiskPercent, err = strconv.ParseFloat(raw, 64)
	case "max_position_percent":
		s.MaxPositionPercent, err = strconv.ParseFloat(raw, 64)
	case "max_total_position_percent":
		s.MaxTotalPositionPct, err = strconv.ParseFloat(raw, 64)
	case "min_trade_usdt":
		s.MinTradeUSDT, err = strconv.ParseFloat(raw, 64)
	case "stop_loss_percent":
		s.StopLossPercent, err = strconv.ParseFloat(raw, 64)
	case "take_profit_percent":
		s.TakeProfitPercent, err = strconv.ParseFloat(raw, 64)
	case "trailing_stop_enabled":
		s.TrailingStopEnabled, err = strconv.ParseBool(raw)
	case "trailing_stop_activation_percent":
		s.TrailingActivationPercent, err = strconv.ParseFloat(raw, 64)
	case "trailing_stop_distance_percent":
		s.TrailingDistancePercent, err = strconv.ParseFloat(raw, 64)
	case "allow_long_positions":
		s.AllowLong, err = strconv.ParseBool(raw)
	case "allow_short_positions":
		s.AllowShort, err = strconv.ParseBool(raw)
	case "auto_position_reversal":
		s.AutoPositionReversal, err = strconv.ParseBool(raw)
	case "enable_notifications":
		s.EnableNotifications, err = strconv.ParseBool(raw)
	case "enable_trade_logging":
		s.EnableTradeLogging, err = strconv.ParseBool(raw)
	}
	if err != nil {
		return fmt.Errorf("settings: bad value %q for %s: %w", raw, key, ErrConfigInconsistent)
	}
	return nil
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
