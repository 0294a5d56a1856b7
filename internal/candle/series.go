// Package candle aggregates raw ticks into fixed-interval OHLCV candles.
// One Series exists per (instrument, timeframe); the owning registry
// serializes access, so Series itself is not locked.
package candle

import (
	"time"

	"tradepulse/internal/model"
)

// maxClosed bounds retained closed candles. A full NSE session is 375
// one-minute candles, so the cap never truncates intraday history.
const maxClosed = 500

// Series owns the developing candle and the closed history for one
// (instrument, timeframe) pair.
type Series struct {
	instrumentKey string
	tf            int // seconds
	interval      time.Duration

	current *model.Candle
	closed  []model.Candle
}

func NewSeries(instrumentKey string, tf int) *Series {
	return &Series{
		instrumentKey: instrumentKey,
		tf:            tf,
		interval:      time.Duration(tf) * time.Second,
	}
}

// Timeframe returns the series interval in seconds.
func (s *Series) Timeframe() int { return s.tf }

// bucket truncates a trade timestamp to its interval boundary.
func (s *Series) bucket(ts time.Time) time.Time {
	return ts.Truncate(s.interval)
}

// Apply folds one tick into the series. When the tick opens a new interval
// the previous candle is closed, appended to history and returned; otherwise
// nil. Ticks are assumed to arrive in timestamp order per instrument.
func (s *Series) Apply(t model.Tick) *model.Candle {
	b := s.bucket(t.TradeTS)

	if s.current == nil {
		s.current = s.open(b, t)
		return nil
	}

	if b.After(s.current.TS) {
		done := *s.current
		s.append(done)
		s.current = s.open(b, t)
		return &done
	}

	c := s.current
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume += t.Qty
	c.OpenInterest = t.OpenInterest
	c.Vwap = t.AvgTradePrice
	c.TicksCount++
	return nil
}

func (s *Series) open(bucket time.Time, t model.Tick) *model.Candle {
	return &model.Candle{
		InstrumentKey: s.instrumentKey,
		TF:            s.tf,
		TS:            bucket,
		Open:          t.Price,
		High:          t.Price,
		Low:           t.Price,
		Close:         t.Price,
		Volume:        t.Qty,
		OpenInterest:  t.OpenInterest,
		Vwap:          t.AvgTradePrice,
		TicksCount:    1,
	}
}

func (s *Series) append(c model.Candle) {
	if len(s.closed) == maxClosed {
		copy(s.closed, s.closed[1:])
		s.closed = s.closed[:maxClosed-1]
	}
	s.closed = append(s.closed, c)
}

// Preload seeds the closed history from backfilled candles, oldest first.
// Only candles older than the current developing bucket are accepted.
func (s *Series) Preload(candles []model.Candle) {
	for _, c := range candles {
		if s.current != nil && !c.TS.Before(s.current.TS) {
			continue
		}
		c.InstrumentKey = s.instrumentKey
		c.TF = s.tf
		s.append(c)
	}
}

// Current returns the developing candle, or nil before the first tick.
func (s *Series) Current() *model.Candle { return s.current }

// ClosedCount returns how many candles have closed.
func (s *Series) ClosedCount() int { return len(s.closed) }

// Closed returns up to the last n closed candles, oldest first.
func (s *Series) Closed(n int) []model.Candle {
	if n > len(s.closed) {
		n = len(s.closed)
	}
	return s.closed[len(s.closed)-n:]
}

// Recent returns up to the last n candles including the developing one,
// oldest first. Signal classifiers that want the live candle use this.
func (s *Series) Recent(n int) []model.Candle {
	if s.current == nil {
		return s.Closed(n)
	}
	if n <= 1 {
		return []model.Candle{*s.current}
	}
	out := make([]model.Candle, 0, n)
	out = append(out, s.Closed(n-1)...)
	return append(out, *s.current)
}

// Extract maps the last n closed candles through f, oldest first. Used to
// feed price lows/highs into divergence detection.
func (s *Series) Extract(n int, f func(model.Candle) float64) []float64 {
	cs := s.Closed(n)
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = f(c)
	}
	return out
}
