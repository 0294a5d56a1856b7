package model

import (
	"encoding/json"
	"time"
)

// Candle represents an OHLCV candle for one instrument at a fixed timeframe.
// TF is the timeframe duration in seconds (e.g., 60 = 1 minute).
// All prices are in paise (int64) to avoid floating-point drift; Vwap is the
// exchange running average trade price captured at the last merged tick.
type Candle struct {
	InstrumentKey string    `json:"instrument_key"`
	TF            int       `json:"tf"`     // timeframe in seconds
	TS            time.Time `json:"ts"`     // bucket start time (UTC, TF-aligned)
	Open          int64     `json:"open"`   // paise
	High          int64     `json:"high"`   // paise
	Low           int64     `json:"low"`    // paise
	Close         int64     `json:"close"`  // paise
	Volume        int64     `json:"volume"` // cumulative quantity in this bucket
	OpenInterest  int64     `json:"oi"`     // last observed open interest
	Vwap          int64     `json:"vwap"`   // paise
	TicksCount    int       `json:"ticks_count"`
}

// StreamKey returns the Redis stream key: "candle:{TF}s:{instrumentKey}".
func (c *Candle) StreamKey() string {
	return "candle:" + Itoa(c.TF) + "s:" + c.InstrumentKey
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Body returns the absolute open-close distance in paise.
func (c *Candle) Body() int64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns the high-low distance in paise.
func (c *Candle) Range() int64 { return c.High - c.Low }

// Bullish reports whether the candle closed above its open.
func (c *Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the candle closed below its open.
func (c *Candle) Bearish() bool { return c.Close < c.Open }
