package engine

import (
	"tradepulse/internal/indicator"
	"tradepulse/internal/model"
	"tradepulse/internal/profile"
	"tradepulse/internal/registry"
	"tradepulse/internal/signal"
)

// Timeframes the signal layer reads directly. The engine tolerates any of
// them being absent from the configured set.
const (
	tf1m  = 60
	tf3m  = 180
	tf5m  = 300
	tf15m = 900
)

// deriveSignals refreshes every per-tick signal field on the instrument's
// live result. Runs under the instrument lock.
func (e *Engine) deriveSignals(st *registry.State, t model.Tick, phase model.MarketPhase) {
	r := st.Result
	r.LTP = t.Price

	if t.PrevClose != 0 {
		r.PriceChange = t.Price - t.PrevClose
		r.PriceChangePercent = float64(r.PriceChange) / float64(t.PrevClose) * 100.0
	}

	// Session VWAP and bands
	r.Vwap = st.SessionVwap.Value()
	upper, _ := st.SessionVwap.Bands(e.cfg.VwapUpperBandMult)
	_, lower := st.SessionVwap.Bands(e.cfg.VwapLowerBandMult)
	r.VwapUpperBand, r.VwapLowerBand = upper, lower
	if st.AnchoredVwap != nil {
		r.AnchoredVwap = st.AnchoredVwap.Value()
	}

	r.PriceVsVwapSignal = signal.PriceVsVwap(t.Price, r.Vwap)
	r.PriceVsCloseSignal = signal.PriceVsClose(t.Price, t.PrevClose)
	r.DayRangeSignal = signal.DayRange(t.Price, t.DayHigh, t.DayLow)
	r.CustomLevelSignal = signal.CustomLevel(t.Price, st.Support, st.Resistance, t.Price/1000)
	r.VwapBandSignal = signal.VwapBand(t.Price, upper, lower)

	// Opening classification: derived from the first half hour of
	// 1-minute candles and frozen once the opening phase ends.
	if s1 := seriesFor(st, tf1m); s1 != nil {
		if phase == model.PhaseOpening || r.OpenTypeSignal == "Analyzing Open..." {
			r.OpenTypeSignal = signal.OpenType(s1.Closed(30))
		}
		r.VolumeSignal, r.AvgVolume = signal.VolumeBurst(
			s1.Recent(e.cfg.VolumeHistoryLength+1), e.cfg.VolumeHistoryLength,
			e.cfg.VolumeBurstMultiplier)
		if c := s1.Current(); c != nil {
			r.CurrentVolume = c.Volume
		}
		r.CandleSignal1Min = signal.CandlePattern(s1.Closed(patternLookback))
	}

	if s3 := seriesFor(st, tf3m); s3 != nil {
		r.OiSignal = signal.OpenInterest(s3.Recent(2))
	}

	e.deriveIndicatorSignals(st)

	// Market profile
	r.InitialBalanceSignal = st.Profile.IBStatus(t.Price)
	r.InitialBalanceLow, r.InitialBalanceHigh, _ = st.Profile.InitialBalance()
	r.DevelopingPoc = st.Profile.POC()
	r.DevelopingVal, r.DevelopingVah = st.Profile.ValueArea()
	r.DevelopingVpoc = st.Profile.VolumePOC()
	r.MarketProfileSignal = signal.ProfileRelation(t.Price, r.DevelopingVal, r.DevelopingVah, "Value")

	if y, ok := st.Yesterday(); ok {
		r.YesterdayProfile = signal.ProfileRelation(t.Price, y.VAL, y.VAH, "Yesterday's Value")
		r.DailyBias = signal.DailyBias(st.SessionOpen, y.VAL, y.VAH)
	}
	r.MarketStructure = profile.ClassifyStructure(st.Historical)

	// Volatility and options
	r.CurrentIv = t.ImpliedVol
	r.IvSpikeSignal, r.AvgIv = signal.IVSpike(t.ImpliedVol, st.IvHistory, e.cfg.IvSpikeThreshold)
	r.GammaSignal = signal.GammaSkew(st.Chain, t.Price, e.cfg.GammaThreshold)
}

// deriveIndicatorSignals copies indicator values and divergence reads onto
// the result for the timeframes the consumers display.
func (e *Engine) deriveIndicatorSignals(st *registry.State) {
	r := st.Result
	look := e.cfg.RsiDivergenceLookback

	if i1 := st.Indicators[tf1m]; i1 != nil {
		r.EmaSignal1Min = i1.Ema.Signal()
		r.VwapEmaSignal1Min = i1.VwapEma.Signal()
		r.RsiValue1Min = i1.Rsi.Value()
		r.Atr1Min = i1.Atr.Value()
		r.ObvValue1Min = i1.Obv.Value()

		if s1 := seriesFor(st, tf1m); s1 != nil {
			lows := s1.Extract(look, func(c model.Candle) float64 { return float64(c.Low) })
			highs := s1.Extract(look, func(c model.Candle) float64 { return float64(c.High) })
			r.RsiSignal1Min = indicator.DetectDivergence(lows, highs, i1.Rsi.History(look), look)
			r.ObvDivergence1Min = indicator.DetectDivergence(lows, highs, i1.Obv.History(look), look)
		}
	}

	if i5 := st.Indicators[tf5m]; i5 != nil {
		r.EmaSignal5Min = i5.Ema.Signal()
		r.VwapEmaSignal5Min = i5.VwapEma.Signal()
		r.RsiValue5Min = i5.Rsi.Value()
		r.Atr5Min = i5.Atr.Value()
		r.ObvValue5Min = i5.Obv.Value()
		r.MarketRegime = i5.Atr.Regime()
		r.VolatilityState = r.MarketRegime
		if i5.Atr.Ready() {
			if i5.Atr.Contracting() {
				r.AtrSignal5Min = "ATR Contracting"
			} else {
				r.AtrSignal5Min = "ATR Expanding"
			}
		}

		if s5 := seriesFor(st, tf5m); s5 != nil {
			lows := s5.Extract(look, func(c model.Candle) float64 { return float64(c.Low) })
			highs := s5.Extract(look, func(c model.Candle) float64 { return float64(c.High) })
			r.RsiSignal5Min = indicator.DetectDivergence(lows, highs, i5.Rsi.History(look), look)
			r.ObvDivergence5Min = indicator.DetectDivergence(lows, highs, i5.Obv.History(look), look)
			r.CandleSignal5Min = signal.CandlePattern(s5.Closed(patternLookback))
		}
	}

	if i15 := st.Indicators[tf15m]; i15 != nil {
		r.EmaSignal15Min = i15.Ema.Signal()
		r.VwapEmaSignal15Min = i15.VwapEma.Signal()
	}
}
