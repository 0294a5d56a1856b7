// Package thesis turns the per-instrument signal set into a market thesis,
// a dominant-player read and an integer conviction score. The synthesizer is
// a pure function over an AnalysisResult plus the session phase; debounce
// state for outbound transitions lives in Debouncer.
package thesis

import (
	"fmt"
	"math"
	"strings"

	"tradepulse/internal/model"
	"tradepulse/internal/profile"
)

// Playbook labels on the filtered conviction score.
const (
	PlayStrongBullish   = "Strong Bullish"
	PlayModerateBullish = "Moderate Bullish"
	PlayStrongBearish   = "Strong Bearish"
	PlayModerateBearish = "Moderate Bearish"
	PlayNeutral         = "Neutral / Observe"
	PlayChoppy          = "Choppy / Stand Aside"
)

const (
	strongThreshold   = 7
	moderateThreshold = 3
)

// Config carries the tunable synthesizer constants.
type Config struct {
	OpeningDamping float64 // conviction multiplier during the opening phase
}

// Synthesizer scores signal confluence into a thesis and conviction.
type Synthesizer struct {
	cfg Config
}

func New(cfg Config) *Synthesizer {
	if cfg.OpeningDamping == 0 {
		cfg.OpeningDamping = 0.5
	}
	return &Synthesizer{cfg: cfg}
}

// Synthesize reads the populated signal fields of r and writes the thesis,
// dominant player, conviction score, drivers, playbook signal and primary
// signal back into r. phase dampens conviction during the open.
func (s *Synthesizer) Synthesize(r *model.AnalysisResult, phase model.MarketPhase) {
	var bullish, bearish []string

	structure := scoreStructure(r, &bullish, &bearish)
	momentum := scoreMomentum(r, &bullish, &bearish)
	confirmation := scoreConfirmation(r, &bullish, &bearish)
	volatility := scoreVolatility(r, momentum, &bullish, &bearish)

	score := structure + momentum + confirmation + volatility

	choppy := isChoppy(structure, momentum)
	player := dominantPlayer(r)

	if phase == model.PhaseOpening {
		score = int(math.Round(float64(score) * s.cfg.OpeningDamping))
	}
	score = applyTrendFilter(r, score, &bullish, &bearish)

	r.DominantPlayer = player
	r.ConvictionScore = score
	r.BullishDrivers = bullish
	r.BearishDrivers = bearish

	if choppy {
		r.MarketThesis = model.ThesisChoppy
		r.FinalTradeSignal = PlayChoppy
		r.PrimarySignal = "Neutral"
	} else {
		r.MarketThesis = classify(r.MarketStructure, player)
		r.FinalTradeSignal = playbook(score)
		r.PrimarySignal = primary(score)
	}
	r.MarketNarrative = narrative(r)
}

// scoreStructure: ±3 for the multi-day trend read, ±2 for positioning
// against yesterday's value area.
func scoreStructure(r *model.AnalysisResult, bull, bear *[]string) int {
	score := 0
	switch r.MarketStructure {
	case profile.StructureTrendingUp:
		score += 3
		*bull = append(*bull, "Multi-day structure trending up (+3)")
	case profile.StructureTrendingDown:
		score -= 3
		*bear = append(*bear, "Multi-day structure trending down (-3)")
	}
	if strings.HasPrefix(r.YesterdayProfile, "Above") {
		score += 2
		*bull = append(*bull, "Trading above yesterday's value (+2)")
	} else if strings.HasPrefix(r.YesterdayProfile, "Below") {
		score -= 2
		*bear = append(*bear, "Trading below yesterday's value (-2)")
	}
	return score
}

// scoreMomentum: ±2 VWAP relation, ±2 5-minute EMA cross, ±1 candle pattern.
func scoreMomentum(r *model.AnalysisResult, bull, bear *[]string) int {
	score := 0
	switch r.PriceVsVwapSignal {
	case "Above VWAP":
		score += 2
		*bull = append(*bull, "Price above VWAP (+2)")
	case "Below VWAP":
		score -= 2
		*bear = append(*bear, "Price below VWAP (-2)")
	}
	switch r.EmaSignal5Min {
	case "Bullish Cross":
		score += 2
		*bull = append(*bull, "5m EMA bullish cross (+2)")
	case "Bearish Cross":
		score -= 2
		*bear = append(*bear, "5m EMA bearish cross (-2)")
	}
	if strings.Contains(r.CandleSignal5Min, "Bullish") {
		score++
		*bull = append(*bull, "Bullish 5m candle pattern (+1)")
	} else if strings.Contains(r.CandleSignal5Min, "Bearish") {
		score--
		*bear = append(*bear, "Bearish 5m candle pattern (-1)")
	}
	return score
}

// scoreConfirmation: ±2 volume burst aligned with the VWAP side, ±2 OI
// buildup direction.
func scoreConfirmation(r *model.AnalysisResult, bull, bear *[]string) int {
	score := 0
	if r.VolumeSignal == "Volume Burst (Buying)" && r.PriceVsVwapSignal == "Above VWAP" {
		score += 2
		*bull = append(*bull, "Buying volume burst above VWAP (+2)")
	} else if r.VolumeSignal == "Volume Burst (Selling)" && r.PriceVsVwapSignal == "Below VWAP" {
		score -= 2
		*bear = append(*bear, "Selling volume burst below VWAP (-2)")
	}
	switch r.OiSignal {
	case "Long Buildup":
		score += 2
		*bull = append(*bull, "OI long buildup (+2)")
	case "Short Buildup":
		score -= 2
		*bear = append(*bear, "OI short buildup (-2)")
	}
	return score
}

// scoreVolatility: ±3 when a gamma skew lines up with the momentum sign,
// +1 on an upward IV spike.
func scoreVolatility(r *model.AnalysisResult, momentum int, bull, bear *[]string) int {
	score := 0
	if r.GammaSignal == "High Gamma (Call Skew)" && momentum > 0 {
		score += 3
		*bull = append(*bull, "Call gamma skew with bullish momentum (+3)")
	} else if r.GammaSignal == "High Gamma (Put Skew)" && momentum < 0 {
		score -= 3
		*bear = append(*bear, "Put gamma skew with bearish momentum (-3)")
	}
	if r.IvSpikeSignal == "IV Spike Up" {
		score++
		*bull = append(*bull, "IV spiking up (+1)")
	}
	return score
}

// isChoppy: both legs weak, or strongly contradictory.
func isChoppy(structure, momentum int) bool {
	weak := abs(structure) < 2 && abs(momentum) < 2
	conflict := (structure > 2 && momentum < -2) || (structure < -2 && momentum > 2)
	return weak || conflict
}

// dominantPlayer takes the majority of three binary votes: VWAP side,
// 5-minute EMA cross, and OI buildup direction. A tie is Balance.
func dominantPlayer(r *model.AnalysisResult) model.DominantPlayer {
	votes := 0
	switch r.PriceVsVwapSignal {
	case "Above VWAP":
		votes++
	case "Below VWAP":
		votes--
	}
	switch r.EmaSignal5Min {
	case "Bullish Cross":
		votes++
	case "Bearish Cross":
		votes--
	}
	switch r.OiSignal {
	case "Long Buildup", "Short Covering":
		votes++
	case "Short Buildup", "Long Unwinding":
		votes--
	}
	switch {
	case votes > 0:
		return model.PlayerBuyers
	case votes < 0:
		return model.PlayerSellers
	default:
		return model.PlayerBalance
	}
}

// applyTrendFilter is the final gate. A counter-trend score is vetoed to
// exactly 0; a with-trend score at a recognized pullback location earns a
// ±2 bonus. No filter applies in balance.
func applyTrendFilter(r *model.AnalysisResult, score int, bull, bear *[]string) int {
	atSupport := r.CustomLevelSignal == "At Support" ||
		r.DayRangeSignal == "Near Day Low" ||
		r.VwapBandSignal == "Below Lower Band"
	atResistance := r.CustomLevelSignal == "At Resistance" ||
		r.DayRangeSignal == "Near Day High" ||
		r.VwapBandSignal == "Above Upper Band"

	switch r.MarketStructure {
	case profile.StructureTrendingUp:
		if score < 0 {
			*bear = append(*bear, "Counter-trend signal vetoed by uptrend filter")
			return 0
		}
		if score > 0 && atSupport {
			*bull = append(*bull, "Long at support in uptrend (+2)")
			return score + 2
		}
	case profile.StructureTrendingDown:
		if score > 0 {
			*bull = append(*bull, "Counter-trend signal vetoed by downtrend filter")
			return 0
		}
		if score < 0 && atResistance {
			*bear = append(*bear, "Short at resistance in downtrend (-2)")
			return score - 2
		}
	}
	return score
}

// classify maps structure × dominant player onto the thesis states.
func classify(structure string, player model.DominantPlayer) model.MarketThesis {
	switch structure {
	case profile.StructureTrendingUp:
		switch player {
		case model.PlayerBuyers:
			return model.ThesisBullishTrend
		case model.PlayerSellers:
			return model.ThesisBearishReversalAttempt
		default:
			return model.ThesisBullishRotation
		}
	case profile.StructureTrendingDown:
		switch player {
		case model.PlayerSellers:
			return model.ThesisBearishTrend
		case model.PlayerBuyers:
			return model.ThesisBullishReversalAttempt
		default:
			return model.ThesisBearishRotation
		}
	case profile.StructureBalancing:
		switch player {
		case model.PlayerBuyers:
			return model.ThesisBullishRotation
		case model.PlayerSellers:
			return model.ThesisBearishRotation
		default:
			return model.ThesisBalancing
		}
	default:
		return model.ThesisIndeterminate
	}
}

func playbook(score int) string {
	switch {
	case score >= strongThreshold:
		return PlayStrongBullish
	case score >= moderateThreshold:
		return PlayModerateBullish
	case score <= -strongThreshold:
		return PlayStrongBearish
	case score <= -moderateThreshold:
		return PlayModerateBearish
	default:
		return PlayNeutral
	}
}

func primary(score int) string {
	switch {
	case score >= moderateThreshold:
		return "Bullish"
	case score <= -moderateThreshold:
		return "Bearish"
	default:
		return "Neutral"
	}
}

func narrative(r *model.AnalysisResult) string {
	lead := "balance"
	switch r.DominantPlayer {
	case model.PlayerBuyers:
		lead = "buyers in control"
	case model.PlayerSellers:
		lead = "sellers in control"
	}
	top := ""
	if r.ConvictionScore > 0 && len(r.BullishDrivers) > 0 {
		top = " Key driver: " + r.BullishDrivers[0] + "."
	} else if r.ConvictionScore < 0 && len(r.BearishDrivers) > 0 {
		top = " Key driver: " + r.BearishDrivers[0] + "."
	}
	return fmt.Sprintf("%s: %s, %s, conviction %+d.%s",
		r.Symbol, r.MarketThesis, lead, r.ConvictionScore, top)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
