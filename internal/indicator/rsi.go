package indicator

import "tradepulse/internal/model"

// rsiHistoryCap bounds the rolling RSI history used for divergence detection.
const rsiHistoryCap = 50

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// Update is O(1) per candle — no history scans. A bounded rolling window of
// RSI values is retained for divergence detection.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
	history   window
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period, history: newWindow(rsiHistoryCap)}
}

func (r *RSI) Name() string { return "RSI_" + model.Itoa(r.period) }

func (r *RSI) Update(candle model.Candle) {
	price := float64(candle.Close) / 100.0 // paise → rupees
	r.count++

	if r.count == 1 {
		// First candle — just record price, no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.recompute()
		}
		return
	}

	// Wilder's smoothing: avgGain = (prevAvgGain * (period-1) + gain) / period
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.recompute()
}

func (r *RSI) recompute() {
	if r.avgLoss == 0 {
		r.current = 100.0
	} else {
		rs := r.avgGain / r.avgLoss
		r.current = 100.0 - (100.0 / (1.0 + rs))
	}
	r.history.push(r.current)
}

// Value returns the current RSI, or 0 before warm-up.
func (r *RSI) Value() float64 { return r.current }

func (r *RSI) Ready() bool { return r.count > r.period }

// History returns the n most recent RSI values for divergence detection.
func (r *RSI) History(n int) []float64 { return r.history.last(n) }

// HistoryLen returns how many RSI values have been retained (≤ 50).
func (r *RSI) HistoryLen() int { return r.history.len() }

// Snapshot serializes the RSI state for checkpoint persistence.
// The rolling history is deliberately not persisted: divergence detection
// rebuilds it from live candles and a partially restored window would pair
// stale oscillator values with fresh price extremes.
func (r *RSI) Snapshot() Snapshot {
	return Snapshot{
		Type:      TypeRsi,
		Period:    r.period,
		Count:     r.count,
		PrevClose: r.prevClose,
		AvgGain:   r.avgGain,
		AvgLoss:   r.avgLoss,
		Current:   r.current,
	}
}

// Restore rebuilds the RSI recurrence state from a checkpoint.
func (r *RSI) Restore(snap Snapshot) {
	r.count = snap.Count
	r.prevClose = snap.PrevClose
	r.avgGain = snap.AvgGain
	r.avgLoss = snap.AvgLoss
	r.current = snap.Current
}
