package indicator

// Divergence outcomes. The detector distinguishes "not enough history"
// from "looked and found nothing" so the UI can show a warm-up state.
const (
	DivergenceNA      = "N/A"
	DivergenceNone    = "No Divergence"
	DivergenceBullish = "Bullish Divergence"
	DivergenceBearish = "Bearish Divergence"
)

// DetectDivergence compares price extremes against an oscillator (RSI or
// OBV) over the trailing lookback window. A bullish divergence requires the
// most recent bar to print the lowest low of the window while the oscillator
// holds above its reading at the prior swing low; bearish is the mirror on
// highs. The extremum must be the LAST bar — a divergence that formed
// mid-window has already been acted on or invalidated.
//
// lows, highs and osc are aligned oldest-first and must be the same length.
func DetectDivergence(lows, highs, osc []float64, lookback int) string {
	if len(lows) < lookback || len(highs) < lookback || len(osc) < lookback {
		return DivergenceNA
	}
	lows = lows[len(lows)-lookback:]
	highs = highs[len(highs)-lookback:]
	osc = osc[len(osc)-lookback:]
	last := lookback - 1

	// Bullish: new price low, oscillator refuses to confirm.
	if idx := minIndex(lows); idx == last {
		prior := minIndex(lows[:last])
		if lows[last] < lows[prior] && osc[last] > osc[prior] {
			return DivergenceBullish
		}
	}

	// Bearish: new price high, oscillator rolls over.
	if idx := maxIndex(highs); idx == last {
		prior := maxIndex(highs[:last])
		if highs[last] > highs[prior] && osc[last] < osc[prior] {
			return DivergenceBearish
		}
	}

	return DivergenceNone
}

func minIndex(vs []float64) int {
	idx := 0
	for i, v := range vs {
		if v < vs[idx] {
			idx = i
		}
	}
	return idx
}

func maxIndex(vs []float64) int {
	idx := 0
	for i, v := range vs {
		if v > vs[idx] {
			idx = i
		}
	}
	return idx
}
