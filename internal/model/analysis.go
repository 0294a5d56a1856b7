package model

import (
	"encoding/json"
	"time"
)

// MarketThesis is the discrete classification of the current market regime.
type MarketThesis string

const (
	ThesisBullishTrend           MarketThesis = "Bullish_Trend"
	ThesisBullishRotation        MarketThesis = "Bullish_Rotation"
	ThesisBullishReversalAttempt MarketThesis = "Bullish_Reversal_Attempt"
	ThesisBearishTrend           MarketThesis = "Bearish_Trend"
	ThesisBearishRotation        MarketThesis = "Bearish_Rotation"
	ThesisBearishReversalAttempt MarketThesis = "Bearish_Reversal_Attempt"
	ThesisBalancing              MarketThesis = "Balancing"
	ThesisChoppy                 MarketThesis = "Choppy"
	ThesisIndeterminate          MarketThesis = "Indeterminate"
)

// DominantPlayer is the side currently controlling the auction.
type DominantPlayer string

const (
	PlayerBuyers  DominantPlayer = "Buyers"
	PlayerSellers DominantPlayer = "Sellers"
	PlayerBalance DominantPlayer = "Balance"
)

// MarketPhase is the process-wide session phase, derived from wall-clock time.
type MarketPhase string

const (
	PhasePreOpen MarketPhase = "PreOpen"
	PhaseOpening MarketPhase = "Opening" // first 30 minutes, conviction is damped
	PhaseNormal  MarketPhase = "Normal"
	PhaseClosing MarketPhase = "Closing"
)

// AnalysisResult is the aggregate per-instrument output of the analysis
// pipeline: every derived signal, the market thesis, and the conviction score.
// One live instance per instrument, replaced field-by-field each update cycle.
type AnalysisResult struct {
	InstrumentKey string    `json:"instrument_key"`
	Symbol        string    `json:"symbol"`
	UpdatedAt     time.Time `json:"updated_at"`

	LTP                int64   `json:"ltp"`  // paise
	Vwap               int64   `json:"vwap"` // paise, session VWAP
	AnchoredVwap       int64   `json:"anchored_vwap"`
	PriceChange        int64   `json:"price_change"`
	PriceChangePercent float64 `json:"price_change_pct"`

	// Price action
	PriceVsVwapSignal  string `json:"price_vs_vwap"`
	PriceVsCloseSignal string `json:"price_vs_close"`
	DayRangeSignal     string `json:"day_range"`
	CustomLevelSignal  string `json:"custom_level"`
	VwapBandSignal     string `json:"vwap_band"`
	VwapUpperBand      int64  `json:"vwap_upper_band"`
	VwapLowerBand      int64  `json:"vwap_lower_band"`
	OpenTypeSignal     string `json:"open_type"`

	// Volume and open interest
	VolumeSignal  string `json:"volume_signal"`
	CurrentVolume int64  `json:"current_volume"`
	AvgVolume     int64  `json:"avg_volume"`
	OiSignal      string `json:"oi_signal"`

	// Indicators per timeframe
	EmaSignal1Min      string  `json:"ema_1m"`
	EmaSignal5Min      string  `json:"ema_5m"`
	EmaSignal15Min     string  `json:"ema_15m"`
	VwapEmaSignal1Min  string  `json:"vwap_ema_1m"`
	VwapEmaSignal5Min  string  `json:"vwap_ema_5m"`
	VwapEmaSignal15Min string  `json:"vwap_ema_15m"`
	RsiValue1Min       float64 `json:"rsi_1m"`
	RsiSignal1Min      string  `json:"rsi_div_1m"`
	RsiValue5Min       float64 `json:"rsi_5m"`
	RsiSignal5Min      string  `json:"rsi_div_5m"`
	Atr1Min            float64 `json:"atr_1m"`
	Atr5Min            float64 `json:"atr_5m"`
	AtrSignal5Min      string  `json:"atr_signal_5m"`
	ObvValue1Min       float64 `json:"obv_1m"`
	ObvDivergence1Min  string  `json:"obv_div_1m"`
	ObvValue5Min       float64 `json:"obv_5m"`
	ObvDivergence5Min  string  `json:"obv_div_5m"`
	MarketRegime       string  `json:"market_regime"`

	// Candlestick patterns
	CandleSignal1Min string `json:"candle_1m"`
	CandleSignal5Min string `json:"candle_5m"`

	// Market profile
	InitialBalanceSignal string `json:"ib_signal"`
	InitialBalanceHigh   int64  `json:"ib_high"`
	InitialBalanceLow    int64  `json:"ib_low"`
	DevelopingPoc        int64  `json:"developing_poc"`
	DevelopingVah        int64  `json:"developing_vah"`
	DevelopingVal        int64  `json:"developing_val"`
	DevelopingVpoc       int64  `json:"developing_vpoc"`
	MarketProfileSignal  string `json:"market_profile_signal"`
	YesterdayProfile     string `json:"yesterday_profile"`
	MarketStructure      string `json:"market_structure"`
	DailyBias            string `json:"daily_bias"`

	// Volatility / options
	CurrentIv       float64 `json:"current_iv"`
	AvgIv           float64 `json:"avg_iv"`
	IvSpikeSignal   string  `json:"iv_spike"`
	GammaSignal     string  `json:"gamma_signal"`
	VolatilityState string  `json:"volatility_state"`

	// Synthesis
	MarketThesis     MarketThesis   `json:"market_thesis"`
	DominantPlayer   DominantPlayer `json:"dominant_player"`
	ConvictionScore  int            `json:"conviction_score"`
	BullishDrivers   []string       `json:"bullish_drivers"`
	BearishDrivers   []string       `json:"bearish_drivers"`
	PrimarySignal    string         `json:"primary_signal"`
	FinalTradeSignal string         `json:"final_trade_signal"`
	MarketNarrative  string         `json:"market_narrative"`
}

// NewAnalysisResult returns a result with every signal at its neutral sentinel.
func NewAnalysisResult(instrumentKey, symbol string) *AnalysisResult {
	return &AnalysisResult{
		InstrumentKey:        instrumentKey,
		Symbol:               symbol,
		PriceVsVwapSignal:    "Neutral",
		PriceVsCloseSignal:   "Neutral",
		DayRangeSignal:       "Neutral",
		CustomLevelSignal:    "N/A",
		VwapBandSignal:       "N/A",
		OpenTypeSignal:       "Analyzing Open...",
		VolumeSignal:         "Neutral",
		OiSignal:             "N/A",
		EmaSignal1Min:        "N/A",
		EmaSignal5Min:        "N/A",
		EmaSignal15Min:       "N/A",
		VwapEmaSignal1Min:    "N/A",
		VwapEmaSignal5Min:    "N/A",
		VwapEmaSignal15Min:   "N/A",
		RsiSignal1Min:        "N/A",
		RsiSignal5Min:        "N/A",
		AtrSignal5Min:        "N/A",
		ObvDivergence1Min:    "N/A",
		ObvDivergence5Min:    "N/A",
		MarketRegime:         "Calculating...",
		CandleSignal1Min:     "N/A",
		CandleSignal5Min:     "N/A",
		InitialBalanceSignal: "IB Forming",
		MarketProfileSignal:  "Awaiting Previous Day Data",
		YesterdayProfile:     "N/A",
		MarketStructure:      "Unknown",
		DailyBias:            "Insufficient History",
		IvSpikeSignal:        "N/A",
		GammaSignal:          "N/A",
		VolatilityState:      "Normal Volatility",
		MarketThesis:         ThesisIndeterminate,
		DominantPlayer:       PlayerBalance,
		PrimarySignal:        "Initializing",
		FinalTradeSignal:     "Neutral / Observe",
	}
}

// StreamKey returns the Redis pubsub channel for this instrument's results.
func (r *AnalysisResult) StreamKey() string {
	return "analysis:" + r.InstrumentKey
}

// JSON returns the JSON-encoded result.
func (r *AnalysisResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// Clone returns a deep copy safe to hand to consumers outside the
// instrument lock. Driver slices are copied, not shared.
func (r *AnalysisResult) Clone() *AnalysisResult {
	cp := *r
	cp.BullishDrivers = append([]string(nil), r.BullishDrivers...)
	cp.BearishDrivers = append([]string(nil), r.BearishDrivers...)
	return &cp
}
