package indicator

import "tradepulse/internal/model"

// EMAPair tracks a short and a long Exponential Moving Average over one price
// source and classifies their relation as a cross signal. Two pairs are kept
// per timeframe: one over close price, one over candle VWAP.
// O(1) per update — no window storage needed.
type EMAPair struct {
	shortPeriod int
	longPeriod  int
	shortMult   float64
	longMult    float64
	useVwap     bool

	shortEma float64
	longEma  float64
	count    int
	shortSum float64
	longSum  float64
}

// NewEMAPair creates an EMA pair with the given periods (typically 9/21).
// When useVwap is true the pair tracks candle VWAP instead of close.
func NewEMAPair(shortPeriod, longPeriod int, useVwap bool) *EMAPair {
	return &EMAPair{
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		shortMult:   2.0 / float64(shortPeriod+1),
		longMult:    2.0 / float64(longPeriod+1),
		useVwap:     useVwap,
	}
}

func (e *EMAPair) Name() string {
	base := "EMA_"
	if e.useVwap {
		base = "VWAP_EMA_"
	}
	return base + model.Itoa(e.shortPeriod) + "_" + model.Itoa(e.longPeriod)
}

func (e *EMAPair) price(c model.Candle) float64 {
	if e.useVwap {
		return float64(c.Vwap) / 100.0 // paise → rupees
	}
	return float64(c.Close) / 100.0
}

func (e *EMAPair) Update(candle model.Candle) {
	price := e.price(candle)
	e.count++

	// Accumulate for initial SMA seeds
	if e.count <= e.shortPeriod {
		e.shortSum += price
		if e.count == e.shortPeriod {
			e.shortEma = e.shortSum / float64(e.shortPeriod)
		}
	} else {
		e.shortEma = (price-e.shortEma)*e.shortMult + e.shortEma
	}

	if e.count <= e.longPeriod {
		e.longSum += price
		if e.count == e.longPeriod {
			e.longEma = e.longSum / float64(e.longPeriod)
		}
	} else {
		e.longEma = (price-e.longEma)*e.longMult + e.longEma
	}
}

func (e *EMAPair) Ready() bool { return e.count >= e.longPeriod }

// Short returns the current short EMA value (rupees).
func (e *EMAPair) Short() float64 { return e.shortEma }

// Long returns the current long EMA value (rupees).
func (e *EMAPair) Long() float64 { return e.longEma }

// Signal classifies the current EMA relation.
// Returns "Building History..." until the long EMA has its seed.
func (e *EMAPair) Signal() string {
	if !e.Ready() {
		return SignalBuilding
	}
	if e.shortEma > e.longEma {
		return "Bullish Cross"
	}
	if e.shortEma < e.longEma {
		return "Bearish Cross"
	}
	return SignalNeutral
}

// Snapshot serializes the EMA pair state for checkpoint persistence.
func (e *EMAPair) Snapshot() Snapshot {
	return Snapshot{
		Type:        TypeEmaPair,
		ShortPeriod: e.shortPeriod,
		LongPeriod:  e.longPeriod,
		UseVwap:     e.useVwap,
		ShortEma:    e.shortEma,
		LongEma:     e.longEma,
		Count:       e.count,
		ShortSum:    e.shortSum,
		LongSum:     e.longSum,
	}
}

// Restore rebuilds the EMA pair state from a checkpoint.
func (e *EMAPair) Restore(snap Snapshot) {
	e.shortEma = snap.ShortEma
	e.longEma = snap.LongEma
	e.count = snap.Count
	e.shortSum = snap.ShortSum
	e.longSum = snap.LongSum
}
