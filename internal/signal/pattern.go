package signal

import "tradepulse/internal/model"

// Candlestick pattern names. The recognizer is an ordered decision table:
// the FIRST matching rule wins, so single-candle shapes (doji, hammer)
// outrank multi-candle formations. Reordering the table changes behavior.
const (
	PatternNone          = "No Pattern"
	PatternDoji          = "Doji"
	PatternHammer        = "Hammer (Bullish)"
	PatternHangingMan    = "Hanging Man (Bearish)"
	PatternInvHammer     = "Inverted Hammer (Bullish)"
	PatternShootingStar  = "Shooting Star (Bearish)"
	PatternBullMarubozu  = "Bullish Marubozu"
	PatternBearMarubozu  = "Bearish Marubozu"
	PatternBullEngulfing = "Bullish Engulfing"
	PatternBearEngulfing = "Bearish Engulfing"
	PatternPiercing      = "Piercing Line (Bullish)"
	PatternDarkCloud     = "Dark Cloud Cover (Bearish)"
	PatternMorningStar   = "Morning Star (Bullish)"
	PatternEveningStar   = "Evening Star (Bearish)"
	PatternThreeSoldiers = "Three White Soldiers (Bullish)"
	PatternThreeCrows    = "Three Black Crows (Bearish)"
)

// Shape thresholds relative to the candle's full range.
const (
	dojiBodyMax     = 0.1
	marubozuBodyMin = 0.9
	shadowDominance = 2.0
)

// CandlePattern runs the decision table over the most recent candles
// (oldest first). At least one closed candle is required; rules that need
// two or three candles are skipped when history is shorter.
func CandlePattern(candles []model.Candle) string {
	n := len(candles)
	if n == 0 {
		return NA
	}
	cur := candles[n-1]
	rng := float64(cur.Range())
	if rng == 0 {
		return PatternNone
	}
	body := float64(cur.Body())
	upper := float64(cur.High - max64(cur.Open, cur.Close))
	lower := float64(min64(cur.Open, cur.Close) - cur.Low)

	var prev model.Candle
	if n >= 2 {
		prev = candles[n-2]
	}

	// 1. Doji
	if body <= rng*dojiBodyMax {
		return PatternDoji
	}

	// 2. Hammer / Hanging Man: long lower shadow, small upper. The prior
	// candle's direction decides which name applies.
	if lower >= body*shadowDominance && upper <= body {
		if n >= 2 && prev.Bullish() {
			return PatternHangingMan
		}
		return PatternHammer
	}

	// 3. Inverted Hammer / Shooting Star: the mirror shape.
	if upper >= body*shadowDominance && lower <= body {
		if n >= 2 && prev.Bullish() {
			return PatternShootingStar
		}
		return PatternInvHammer
	}

	// 4. Marubozu
	if body >= rng*marubozuBodyMin {
		if cur.Bullish() {
			return PatternBullMarubozu
		}
		return PatternBearMarubozu
	}

	if n >= 2 {
		// 5. Engulfing: opposite colors, current body swallows prior body.
		if cur.Bullish() && prev.Bearish() &&
			cur.Open <= prev.Close && cur.Close >= prev.Open {
			return PatternBullEngulfing
		}
		if cur.Bearish() && prev.Bullish() &&
			cur.Open >= prev.Close && cur.Close <= prev.Open {
			return PatternBearEngulfing
		}

		// 6. Piercing / Dark Cloud: close retakes the prior midpoint.
		prevMid := (prev.Open + prev.Close) / 2
		if cur.Bullish() && prev.Bearish() &&
			cur.Open < prev.Close && cur.Close > prevMid && cur.Close < prev.Open {
			return PatternPiercing
		}
		if cur.Bearish() && prev.Bullish() &&
			cur.Open > prev.Close && cur.Close < prevMid && cur.Close > prev.Open {
			return PatternDarkCloud
		}
	}

	if n >= 3 {
		first := candles[n-3]
		firstMid := (first.Open + first.Close) / 2

		// 7. Morning / Evening Star: a small middle body then a reversal
		// closing beyond the first candle's midpoint.
		smallMid := prev.Range() > 0 && float64(prev.Body()) <= float64(prev.Range())*0.3
		if first.Bearish() && smallMid && cur.Bullish() && cur.Close > firstMid {
			return PatternMorningStar
		}
		if first.Bullish() && smallMid && cur.Bearish() && cur.Close < firstMid {
			return PatternEveningStar
		}

		// 8. Three soldiers / crows: three full-bodied candles marching.
		if first.Bullish() && prev.Bullish() && cur.Bullish() &&
			prev.Close > first.Close && cur.Close > prev.Close &&
			solidBody(first) && solidBody(prev) && solidBody(cur) {
			return PatternThreeSoldiers
		}
		if first.Bearish() && prev.Bearish() && cur.Bearish() &&
			prev.Close < first.Close && cur.Close < prev.Close &&
			solidBody(first) && solidBody(prev) && solidBody(cur) {
			return PatternThreeCrows
		}
	}

	return PatternNone
}

func solidBody(c model.Candle) bool {
	return c.Range() > 0 && float64(c.Body()) >= float64(c.Range())*0.6
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
