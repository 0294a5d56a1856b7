package signal

import (
	"math"
	"time"
)

// VWAP is an incremental volume-weighted average price accumulator with the
// running second moment needed for standard-deviation bands. One instance
// tracks the full session; additional anchored instances can start at any
// event (e.g. an IB breakout) and weight only ticks from that anchor on.
type VWAP struct {
	anchor time.Time
	sumPV  float64
	sumP2V float64
	sumV   float64
}

// NewVWAP returns an accumulator anchored at the given time. Ticks older
// than the anchor are ignored.
func NewVWAP(anchor time.Time) *VWAP {
	return &VWAP{anchor: anchor}
}

// Update folds one trade into the accumulator. price is in paise.
func (w *VWAP) Update(ts time.Time, price, qty int64) {
	if qty <= 0 || ts.Before(w.anchor) {
		return
	}
	p := float64(price)
	q := float64(qty)
	w.sumPV += p * q
	w.sumP2V += p * p * q
	w.sumV += q
}

// Value returns the current VWAP in paise, or 0 before any trade.
func (w *VWAP) Value() int64 {
	if w.sumV == 0 {
		return 0
	}
	return int64(w.sumPV/w.sumV + 0.5)
}

// Bands returns the VWAP ± mult×σ band edges in paise, where σ is the
// volume-weighted standard deviation of traded prices.
func (w *VWAP) Bands(mult float64) (upper, lower int64) {
	if w.sumV == 0 {
		return 0, 0
	}
	mean := w.sumPV / w.sumV
	variance := w.sumP2V/w.sumV - mean*mean
	if variance < 0 {
		variance = 0
	}
	sigma := math.Sqrt(variance)
	return int64(mean + mult*sigma + 0.5), int64(mean - mult*sigma + 0.5)
}
