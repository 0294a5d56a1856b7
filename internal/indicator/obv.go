package indicator

import "tradepulse/internal/model"

const obvHistoryCap = 50

// OBV maintains the cumulative On-Balance Volume: volume is added on
// up-closes, subtracted on down-closes and ignored on unchanged closes.
// A bounded history of OBV values is kept for divergence detection.
type OBV struct {
	count     int
	prevClose int64
	current   float64
	history   window
}

func NewOBV() *OBV {
	return &OBV{history: newWindow(obvHistoryCap)}
}

func (o *OBV) Name() string { return "OBV" }

func (o *OBV) Update(candle model.Candle) {
	o.count++
	if o.count == 1 {
		o.prevClose = candle.Close
		o.history.push(o.current)
		return
	}
	switch {
	case candle.Close > o.prevClose:
		o.current += float64(candle.Volume)
	case candle.Close < o.prevClose:
		o.current -= float64(candle.Volume)
	}
	o.prevClose = candle.Close
	o.history.push(o.current)
}

func (o *OBV) Value() float64 { return o.current }

// Ready is true once two candles have been seen, the minimum for a
// direction to exist.
func (o *OBV) Ready() bool { return o.count >= 2 }

// History returns the most recent n OBV values, oldest first.
func (o *OBV) History(n int) []float64 { return o.history.last(n) }

func (o *OBV) HistoryLen() int { return o.history.len() }

func (o *OBV) Snapshot() Snapshot {
	return Snapshot{
		Type:          TypeObv,
		Count:         o.count,
		PrevClosePaise: o.prevClose,
		Current:       o.current,
	}
}

func (o *OBV) Restore(snap Snapshot) {
	o.count = snap.Count
	o.prevClose = snap.PrevClosePaise
	o.current = snap.Current
}
