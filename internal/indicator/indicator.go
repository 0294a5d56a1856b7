// Package indicator provides incremental technical indicator calculations
// over candle data. Every indicator advances in O(1) per finalized candle and
// keeps only its minimal recurrence state plus a bounded rolling history —
// never the full candle series. Indicators that lack enough history report
// neutral sentinel values instead of failing.
package indicator

import "tradepulse/internal/model"

// Neutral sentinel strings shared across indicators.
const (
	SignalBuilding = "Building History..."
	SignalNA       = "N/A"
	SignalNeutral  = "Neutral"
)

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA_9_21", "RSI_14").
	Name() string

	// Update feeds a new finalized candle and recalculates.
	Update(candle model.Candle)

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// window is a bounded rolling history of float64 values. Pushing past the cap
// discards the oldest value. Used for divergence detection and
// volatility-regime comparison; caps are small (≤50) by design.
type window struct {
	vals []float64
	cap  int
}

func newWindow(cap int) window {
	return window{vals: make([]float64, 0, cap), cap: cap}
}

func (w *window) push(v float64) {
	if len(w.vals) == w.cap {
		copy(w.vals, w.vals[1:])
		w.vals[len(w.vals)-1] = v
		return
	}
	w.vals = append(w.vals, v)
}

func (w *window) len() int { return len(w.vals) }

// last returns the n most recent values (fewer if history is shorter).
func (w *window) last(n int) []float64 {
	if n >= len(w.vals) {
		return w.vals
	}
	return w.vals[len(w.vals)-n:]
}

// avgLast returns the mean of the n most recent values, 0 when empty.
func (w *window) avgLast(n int) float64 {
	vs := w.last(n)
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
