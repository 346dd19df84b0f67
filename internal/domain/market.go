package domain

import "time"

// MarketData is a point-in-time snapshot for one symbol.
type MarketData struct {
	Symbol       string
	Price        float64
	Change24hPct float64
	High24h      float64
	Low24h       float64
	Volume24h    float64
	Turnover24h  float64
	FundingRate  float64
	OpenInterest float64
	Timestamp    time.Time
}

// EquitySnapshot is one row of the balance ledger history.
type EquitySnapshot struct {
	ID             int64
	Balance        float64
	Equity         float64
	UnrealizedPnL  float64
	MarginUsed     float64
	AvailableFunds float64
	OpenPositions  int
	RecordedAt     time.Time
}

// AccountState is the derived view the engine works from each cycle:
// realized balance plus the mark-to-market of everything open.
type AccountState struct {
	Balance        float64
	Equity         float64
	UnrealizedPnL  float64
	MarginUsed     float64
	AvailableFunds float64
	OpenPositions  int
}
