// Package signal holds the stateless per-tick classifiers: each function
// reads current candles, indicator values or profile levels and returns a
// discrete signal string. Insufficient history always yields a neutral or
// "N/A" sentinel, never an error.
package signal

import "tradepulse/internal/model"

const (
	Neutral = "Neutral"
	NA      = "N/A"
)

// PriceVsVwap classifies the last traded price against the session VWAP.
func PriceVsVwap(ltp, vwap int64) string {
	switch {
	case vwap == 0:
		return Neutral
	case ltp > vwap:
		return "Above VWAP"
	case ltp < vwap:
		return "Below VWAP"
	default:
		return Neutral
	}
}

// PriceVsClose classifies the last traded price against the prior-day close.
func PriceVsClose(ltp, prevClose int64) string {
	switch {
	case prevClose == 0:
		return Neutral
	case ltp > prevClose:
		return "Above Prev Close"
	case ltp < prevClose:
		return "Below Prev Close"
	default:
		return Neutral
	}
}

// DayRange places the price inside the day's range. The top and bottom 20%
// of the range count as "near" the extreme.
func DayRange(ltp, dayHigh, dayLow int64) string {
	if dayHigh <= dayLow {
		return Neutral
	}
	pos := float64(ltp-dayLow) / float64(dayHigh-dayLow)
	switch {
	case pos >= 0.8:
		return "Near Day High"
	case pos <= 0.2:
		return "Near Day Low"
	default:
		return "Mid Range"
	}
}

// CustomLevel checks the price against user-set support/resistance levels.
// tolerance is in paise; a zero level means the side is unset.
func CustomLevel(ltp, support, resistance, tolerance int64) string {
	if support == 0 && resistance == 0 {
		return NA
	}
	if support > 0 && abs64(ltp-support) <= tolerance {
		return "At Support"
	}
	if resistance > 0 && abs64(ltp-resistance) <= tolerance {
		return "At Resistance"
	}
	return Neutral
}

// VwapBand classifies the price against the VWAP standard-deviation bands.
func VwapBand(ltp, upper, lower int64) string {
	switch {
	case upper == 0 && lower == 0:
		return NA
	case ltp > upper:
		return "Above Upper Band"
	case ltp < lower:
		return "Below Lower Band"
	default:
		return "Inside Bands"
	}
}

// ProfileRelation places the price relative to a value area (developing or
// historical). label is interpolated into the result, e.g. "Value" or
// "Yesterday's Value".
func ProfileRelation(ltp, val, vah int64, label string) string {
	switch {
	case val == 0 && vah == 0:
		return NA
	case ltp > vah:
		return "Above " + label
	case ltp < val:
		return "Below " + label
	default:
		return "Inside " + label
	}
}

// DailyBias derives the opening bias from where the session opened relative
// to the previous session's value area.
func DailyBias(sessionOpen, prevVal, prevVah int64) string {
	switch {
	case prevVal == 0 && prevVah == 0:
		return "Insufficient History"
	case sessionOpen > prevVah:
		return "Bullish Bias (Open Above Value)"
	case sessionOpen < prevVal:
		return "Bearish Bias (Open Below Value)"
	default:
		return "Neutral Bias (Open In Value)"
	}
}

// OpenType classifies the opening auction from the first half hour of
// 1-minute candles. A drive never trades back through the session open; an
// auction rotates around it.
func OpenType(candles []model.Candle) string {
	if len(candles) == 0 {
		return "Analyzing Open..."
	}
	open := candles[0].Open
	tradedAbove, tradedBelow := false, false
	for _, c := range candles {
		if c.High > open {
			tradedAbove = true
		}
		if c.Low < open {
			tradedBelow = true
		}
	}
	last := candles[len(candles)-1].Close
	switch {
	case tradedAbove && !tradedBelow && last > open:
		return "Open Drive (Bullish)"
	case tradedBelow && !tradedAbove && last < open:
		return "Open Drive (Bearish)"
	case len(candles) < 5:
		return "Analyzing Open..."
	case last > open:
		return "Open Test Drive (Bullish)"
	case last < open:
		return "Open Test Drive (Bearish)"
	default:
		return "Open Auction (Rotational)"
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
