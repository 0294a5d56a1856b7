package signal

import "tradepulse/internal/model"

// Open-interest buildup classifications from the price × OI direction matrix.
const (
	OILongBuildup   = "Long Buildup"
	OIShortCovering = "Short Covering"
	OIShortBuildup  = "Short Buildup"
	OILongUnwinding = "Long Unwinding"
)

// OpenInterest classifies the futures positioning from the two most recent
// 3-minute candles. Rising price with rising OI means fresh longs; falling
// price with rising OI means fresh shorts; falling OI unwinds whichever side
// price direction implies.
func OpenInterest(candles []model.Candle) string {
	if len(candles) < 2 {
		return NA
	}
	prev, cur := candles[len(candles)-2], candles[len(candles)-1]
	if prev.OpenInterest == 0 || cur.OpenInterest == 0 {
		return NA
	}
	priceUp := cur.Close > prev.Close
	priceDown := cur.Close < prev.Close
	oiUp := cur.OpenInterest > prev.OpenInterest
	oiDown := cur.OpenInterest < prev.OpenInterest

	switch {
	case priceUp && oiUp:
		return OILongBuildup
	case priceUp && oiDown:
		return OIShortCovering
	case priceDown && oiUp:
		return OIShortBuildup
	case priceDown && oiDown:
		return OILongUnwinding
	default:
		return Neutral
	}
}

// VolumeBurst reports whether the current interval's volume exceeds the
// trailing average by the configured multiplier. Returns the signal along
// with the trailing average for display.
func VolumeBurst(candles []model.Candle, historyLen int, multiplier float64) (string, int64) {
	if len(candles) < 2 {
		return Neutral, 0
	}
	cur := candles[len(candles)-1]
	hist := candles[:len(candles)-1]
	if len(hist) > historyLen {
		hist = hist[len(hist)-historyLen:]
	}
	var sum int64
	for _, c := range hist {
		sum += c.Volume
	}
	avg := sum / int64(len(hist))
	if avg == 0 {
		return Neutral, 0
	}
	if float64(cur.Volume) > float64(avg)*multiplier {
		if cur.Close >= cur.Open {
			return "Volume Burst (Buying)", avg
		}
		return "Volume Burst (Selling)", avg
	}
	return Neutral, avg
}
