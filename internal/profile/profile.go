// Package profile implements an intraday TPO (Time-Price-Opportunity) and
// volume market profile per instrument. Price levels are quantized to a tick
// size and kept as int64 paise so levels are exact map keys. The profile is
// rebuilt from 1-minute candle closes and yields the auction-theory derived
// levels: Point of Control, 70% Value Area, Volume POC and Initial Balance.
package profile

import (
	"sort"
	"time"

	"tradepulse/internal/model"
)

const (
	// tpoPeriod is the duration covered by one TPO letter.
	tpoPeriod = 30 * time.Minute

	// initialBalanceWindow is the opening range duration after which the
	// IB high/low freeze.
	initialBalanceWindow = 60 * time.Minute

	// valueAreaPct is the share of total TPO count the value area absorbs.
	valueAreaPct = 0.70
)

// IB relation strings reported by IBStatus.
const (
	IBForming     = "IB Forming"
	IBInside      = "Inside IB"
	IBBreakout    = "IB Breakout"
	IBBreakdown   = "IB Breakdown"
	IBExtensionUp = "IB Extension Up"
	IBExtensionDn = "IB Extension Down"
)

// Profile is the live intraday market profile for one instrument. Not safe
// for concurrent use; the owning registry serializes access.
type Profile struct {
	instrumentKey string
	tickSize      int64
	sessionStart  time.Time

	tpo    map[int64]map[byte]struct{}
	volume map[int64]int64

	ibHigh int64
	ibLow  int64
	ibSet  bool

	brokeOut  bool
	brokeDown bool

	// Derived levels, recomputed after every AddCandle.
	poc        int64
	vah        int64
	val        int64
	volumePoc  int64
	totalTPO   int
}

// New creates an empty profile anchored at sessionStart. tickSize is the
// quantization step in paise (e.g. 5 for ₹0.05 instruments).
func New(instrumentKey string, tickSize int64, sessionStart time.Time) *Profile {
	if tickSize <= 0 {
		tickSize = 5
	}
	return &Profile{
		instrumentKey: instrumentKey,
		tickSize:      tickSize,
		sessionStart:  sessionStart,
		tpo:           make(map[int64]map[byte]struct{}),
		volume:        make(map[int64]int64),
	}
}

// Quantize snaps a paise price to the nearest tick-size multiple.
func (p *Profile) Quantize(price int64) int64 {
	half := p.tickSize / 2
	if price >= 0 {
		return ((price + half) / p.tickSize) * p.tickSize
	}
	return ((price - half) / p.tickSize) * p.tickSize
}

// letter maps a candle timestamp to its 30-minute TPO period letter.
func (p *Profile) letter(ts time.Time) byte {
	idx := int(ts.Sub(p.sessionStart) / tpoPeriod)
	if idx < 0 {
		idx = 0
	}
	if idx > 25 {
		idx = 25
	}
	return byte('A' + idx)
}

// AddCandle stamps a closed 1-minute candle into the profile: every
// quantized level between low and high gets the current period letter
// (idempotent within a period) and an even share of the candle's volume.
// Initial Balance widens while the candle falls inside the first hour and
// freezes the first time a candle past the window is seen.
func (p *Profile) AddCandle(c model.Candle) {
	lo := p.Quantize(c.Low)
	hi := p.Quantize(c.High)
	if hi < lo {
		lo, hi = hi, lo
	}
	lt := p.letter(c.TS)

	levels := int((hi-lo)/p.tickSize) + 1
	per := c.Volume / int64(levels)
	rem := c.Volume % int64(levels)

	for i, price := 0, lo; price <= hi; i, price = i+1, price+p.tickSize {
		set, ok := p.tpo[price]
		if !ok {
			set = make(map[byte]struct{})
			p.tpo[price] = set
		}
		set[lt] = struct{}{}

		v := per
		if int64(i) < rem {
			v++
		}
		p.volume[price] += v
	}

	p.updateInitialBalance(c)
	p.recompute()
}

func (p *Profile) updateInitialBalance(c model.Candle) {
	if p.ibSet {
		return
	}
	if c.TS.Sub(p.sessionStart) >= initialBalanceWindow {
		p.ibSet = true
		return
	}
	if p.ibLow == 0 || c.Low < p.ibLow {
		p.ibLow = c.Low
	}
	if c.High > p.ibHigh {
		p.ibHigh = c.High
	}
}

// recompute rebuilds POC, Value Area and Volume POC from the level maps.
// Levels are walked price-ascending so ties resolve deterministically.
func (p *Profile) recompute() {
	if len(p.tpo) == 0 {
		return
	}
	prices := make([]int64, 0, len(p.tpo))
	for price := range p.tpo {
		prices = append(prices, price)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })

	counts := make([]int, len(prices))
	total := 0
	pocIdx := 0
	for i, price := range prices {
		counts[i] = len(p.tpo[price])
		total += counts[i]
		if counts[i] > counts[pocIdx] {
			pocIdx = i
		}
	}
	p.poc = prices[pocIdx]
	p.totalTPO = total

	// Value area: expand outward from the POC, absorbing the richer
	// neighbor each step; equal counts take the upper level.
	target := int(float64(total)*valueAreaPct + 0.5)
	absorbed := counts[pocIdx]
	lower, upper := pocIdx-1, pocIdx+1
	for absorbed < target && (lower >= 0 || upper < len(prices)) {
		upperTpos, lowerTpos := -1, -1
		if upper < len(prices) {
			upperTpos = counts[upper]
		}
		if lower >= 0 {
			lowerTpos = counts[lower]
		}
		if upperTpos >= lowerTpos {
			absorbed += upperTpos
			upper++
		} else {
			absorbed += lowerTpos
			lower--
		}
	}
	p.val = prices[lower+1]
	p.vah = prices[upper-1]

	// Volume POC is ranked independently of the TPO POC.
	vIdx := 0
	for i, price := range prices {
		if p.volume[price] > p.volume[prices[vIdx]] {
			vIdx = i
		}
	}
	p.volumePoc = prices[vIdx]
}

// POC returns the Point of Control price in paise (0 before any candle).
func (p *Profile) POC() int64 { return p.poc }

// ValueArea returns the current Value Area low and high in paise.
func (p *Profile) ValueArea() (val, vah int64) { return p.val, p.vah }

// VolumePOC returns the price level with the most accumulated volume.
func (p *Profile) VolumePOC() int64 { return p.volumePoc }

// InitialBalance returns the IB low/high and whether the window has closed.
func (p *Profile) InitialBalance() (low, high int64, set bool) {
	return p.ibLow, p.ibHigh, p.ibSet
}

// IBStatus classifies the given price against the Initial Balance and
// advances the one-shot breakout/breakdown latches. The first excursion
// beyond either bound reports a breakout/breakdown; later excursions on the
// same side report an extension.
func (p *Profile) IBStatus(price int64) string {
	if !p.ibSet {
		return IBForming
	}
	switch {
	case price > p.ibHigh:
		if !p.brokeOut {
			p.brokeOut = true
			return IBBreakout
		}
		return IBExtensionUp
	case price < p.ibLow:
		if !p.brokeDown {
			p.brokeDown = true
			return IBBreakdown
		}
		return IBExtensionDn
	default:
		return IBInside
	}
}

// LevelCount returns how many distinct price levels the profile holds.
func (p *Profile) LevelCount() int { return len(p.tpo) }

// TPOCount returns the letter count at a quantized price level.
func (p *Profile) TPOCount(price int64) int { return len(p.tpo[price]) }
