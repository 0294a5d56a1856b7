package indicator

import (
	"math"

	"tradepulse/internal/model"
)

// atrHistoryCap bounds the rolling ATR history kept for regime comparison.
const atrHistoryCap = 20

// Volatility regime thresholds: current ATR vs trailing 10-period average.
const (
	regimeLookback      = 10
	regimeExpandRatio   = 1.5
	regimeContractRatio = 0.7
)

// ATR calculates the Average True Range using Wilder's smoothing.
// A bounded rolling window of ATR values is retained so the current reading
// can be compared against its own trailing average for regime classification.
type ATR struct {
	period    int
	count     int
	prevClose float64
	sumTR     float64
	current   float64
	history   window
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period, history: newWindow(atrHistoryCap)}
}

func (a *ATR) Name() string { return "ATR_" + model.Itoa(a.period) }

func (a *ATR) Update(candle model.Candle) {
	high := float64(candle.High) / 100.0
	low := float64(candle.Low) / 100.0
	close := float64(candle.Close) / 100.0
	a.count++

	if a.count == 1 {
		// No previous close — the first true range is just high-low
		a.prevClose = close
		a.sumTR += high - low
		return
	}

	tr := math.Max(high-low, math.Max(math.Abs(high-a.prevClose), math.Abs(low-a.prevClose)))
	a.prevClose = close

	if a.count <= a.period {
		// Accumulation phase: build the SMA seed
		a.sumTR += tr
		if a.count == a.period {
			a.current = a.sumTR / float64(a.period)
			a.history.push(a.current)
		}
		return
	}

	p := float64(a.period)
	a.current = (a.current*(p-1) + tr) / p
	a.history.push(a.current)
}

// Value returns the current ATR in rupees, or 0 before warm-up.
func (a *ATR) Value() float64 { return a.current }

func (a *ATR) Ready() bool { return a.count >= a.period }

// HistoryLen returns how many ATR values have been retained (≤ 20).
func (a *ATR) HistoryLen() int { return a.history.len() }

// Regime classifies the volatility environment by comparing the current ATR
// against its trailing 10-period average. Returns "Calculating..." until
// enough ATR history exists.
func (a *ATR) Regime() string {
	if a.history.len() < regimeLookback {
		return "Calculating..."
	}
	avg := a.history.avgLast(regimeLookback)
	switch {
	case avg > 0 && a.current > avg*regimeExpandRatio:
		return "High Volatility"
	case avg > 0 && a.current < avg*regimeContractRatio:
		return "Low Volatility"
	default:
		return "Normal Volatility"
	}
}

// Contracting reports whether the latest ATR reading fell below the prior one.
func (a *ATR) Contracting() bool {
	n := a.history.len()
	if n < 2 {
		return false
	}
	vs := a.history.last(2)
	return vs[1] < vs[0]
}

// Snapshot serializes the ATR state for checkpoint persistence.
func (a *ATR) Snapshot() Snapshot {
	return Snapshot{
		Type:      TypeAtr,
		Period:    a.period,
		Count:     a.count,
		PrevClose: a.prevClose,
		Sum:       a.sumTR,
		Current:   a.current,
	}
}

// Restore rebuilds the ATR recurrence state from a checkpoint.
func (a *ATR) Restore(snap Snapshot) {
	a.count = snap.Count
	a.prevClose = snap.PrevClose
	a.sumTR = snap.Sum
	a.current = snap.Current
}
