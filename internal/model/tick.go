package model

import "time"

// Tick represents a single market data quote update for one instrument.
// Prices are stored as int64 in paise (1 INR = 100 paise) to avoid float drift.
// Ticks are transient: consumed by the analysis engine and never retained.
type Tick struct {
	InstrumentKey string    `json:"instrument_key"`
	Price         int64     `json:"price"`     // paise (LTP)
	Qty           int64     `json:"qty"`       // last traded quantity
	AvgTradePrice int64     `json:"avg_price"` // paise, exchange-computed running average
	OpenInterest  int64     `json:"oi"`
	ImpliedVol    float64   `json:"iv"`        // percent, 0 for non-options
	PrevClose     int64     `json:"prev_close"` // paise, prior-day close
	DayHigh       int64     `json:"day_high"`   // paise
	DayLow        int64     `json:"day_low"`    // paise
	TradeTS       time.Time `json:"trade_ts"`   // exchange trade timestamp (UTC)
}
