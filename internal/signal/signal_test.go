package signal

import (
	"testing"
	"time"

	"tradepulse/internal/model"
)

func oiCandle(close, oi int64) model.Candle {
	return model.Candle{Close: close, OpenInterest: oi}
}

func TestOpenInterest(t *testing.T) {
	tests := []struct {
		name    string
		candles []model.Candle
		want    string
	}{
		{"no history", nil, NA},
		{"single candle", []model.Candle{oiCandle(100, 10)}, NA},
		{"zero oi", []model.Candle{oiCandle(100, 0), oiCandle(101, 10)}, NA},
		{"price up oi up", []model.Candle{oiCandle(100, 10), oiCandle(101, 12)}, OILongBuildup},
		{"price up oi down", []model.Candle{oiCandle(100, 12), oiCandle(101, 10)}, OIShortCovering},
		{"price down oi up", []model.Candle{oiCandle(101, 10), oiCandle(100, 12)}, OIShortBuildup},
		{"price down oi down", []model.Candle{oiCandle(101, 12), oiCandle(100, 10)}, OILongUnwinding},
		{"flat price", []model.Candle{oiCandle(100, 10), oiCandle(100, 12)}, Neutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OpenInterest(tt.candles); got != tt.want {
				t.Errorf("OpenInterest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVolumeBurst(t *testing.T) {
	base := []model.Candle{
		{Open: 100, Close: 101, Volume: 1000},
		{Open: 101, Close: 102, Volume: 1000},
		{Open: 102, Close: 103, Volume: 1000},
	}
	buy := append(append([]model.Candle(nil), base...),
		model.Candle{Open: 103, Close: 105, Volume: 5000})
	sig, avg := VolumeBurst(buy, 10, 2.5)
	if sig != "Volume Burst (Buying)" || avg != 1000 {
		t.Errorf("buying burst = (%q, %d), want (Volume Burst (Buying), 1000)", sig, avg)
	}

	sell := append(append([]model.Candle(nil), base...),
		model.Candle{Open: 105, Close: 103, Volume: 5000})
	if sig, _ := VolumeBurst(sell, 10, 2.5); sig != "Volume Burst (Selling)" {
		t.Errorf("selling burst = %q", sig)
	}

	quiet := append(append([]model.Candle(nil), base...),
		model.Candle{Open: 103, Close: 104, Volume: 1500})
	if sig, _ := VolumeBurst(quiet, 10, 2.5); sig != Neutral {
		t.Errorf("quiet interval = %q, want %q", sig, Neutral)
	}

	if sig, _ := VolumeBurst(base[:1], 10, 2.5); sig != Neutral {
		t.Errorf("single candle = %q, want %q", sig, Neutral)
	}
}

func TestCandlePattern(t *testing.T) {
	// Helper candles in paise; shapes derive from O/H/L/C only.
	bull := model.Candle{Open: 1000, High: 1105, Low: 995, Close: 1100}
	bear := model.Candle{Open: 1100, High: 1105, Low: 995, Close: 1000}

	tests := []struct {
		name    string
		candles []model.Candle
		want    string
	}{
		{"no candles", nil, NA},
		{"zero range", []model.Candle{{Open: 100, High: 100, Low: 100, Close: 100}}, PatternNone},
		{
			"doji",
			[]model.Candle{{Open: 1000, High: 1050, Low: 950, Close: 1002}},
			PatternDoji,
		},
		{
			"hammer after bear candle",
			[]model.Candle{bear, {Open: 1000, High: 1012, Low: 920, Close: 1010}},
			PatternHammer,
		},
		{
			"hanging man after bull candle",
			[]model.Candle{bull, {Open: 1000, High: 1012, Low: 920, Close: 1010}},
			PatternHangingMan,
		},
		{
			"inverted hammer after bear candle",
			[]model.Candle{bear, {Open: 1000, High: 1090, Low: 998, Close: 1010}},
			PatternInvHammer,
		},
		{
			"shooting star after bull candle",
			[]model.Candle{bull, {Open: 1000, High: 1090, Low: 998, Close: 1010}},
			PatternShootingStar,
		},
		{
			"bullish marubozu",
			[]model.Candle{{Open: 1000, High: 1101, Low: 999, Close: 1100}},
			PatternBullMarubozu,
		},
		{
			"bearish marubozu",
			[]model.Candle{{Open: 1100, High: 1101, Low: 999, Close: 1000}},
			PatternBearMarubozu,
		},
		{
			"bullish engulfing",
			[]model.Candle{
				{Open: 1060, High: 1070, Low: 1010, Close: 1020},
				{Open: 1015, High: 1090, Low: 1000, Close: 1070},
			},
			PatternBullEngulfing,
		},
		{
			"bearish engulfing",
			[]model.Candle{
				{Open: 1020, High: 1070, Low: 1010, Close: 1060},
				{Open: 1070, High: 1080, Low: 1000, Close: 1015},
			},
			PatternBearEngulfing,
		},
		{
			"piercing line",
			[]model.Candle{
				{Open: 1100, High: 1110, Low: 990, Close: 1000},
				{Open: 995, High: 1080, Low: 985, Close: 1060},
			},
			PatternPiercing,
		},
		{
			"dark cloud cover",
			[]model.Candle{
				{Open: 1000, High: 1110, Low: 990, Close: 1100},
				{Open: 1105, High: 1115, Low: 1020, Close: 1040},
			},
			PatternDarkCloud,
		},
		{
			"morning star",
			[]model.Candle{
				{Open: 1100, High: 1110, Low: 990, Close: 1000},
				{Open: 1000, High: 1030, Low: 970, Close: 1005},
				{Open: 1005, High: 1090, Low: 1000, Close: 1080},
			},
			PatternMorningStar,
		},
		{
			"evening star",
			[]model.Candle{
				{Open: 1000, High: 1110, Low: 990, Close: 1100},
				{Open: 1100, High: 1130, Low: 1070, Close: 1095},
				{Open: 1095, High: 1100, Low: 1000, Close: 1010},
			},
			PatternEveningStar,
		},
		{
			"three white soldiers",
			[]model.Candle{
				{Open: 1000, High: 1045, Low: 995, Close: 1040},
				{Open: 1030, High: 1075, Low: 1025, Close: 1070},
				{Open: 1060, High: 1105, Low: 1055, Close: 1100},
			},
			PatternThreeSoldiers,
		},
		{
			"three black crows",
			[]model.Candle{
				{Open: 1100, High: 1105, Low: 1055, Close: 1060},
				{Open: 1070, High: 1075, Low: 1025, Close: 1030},
				{Open: 1040, High: 1045, Low: 995, Close: 1000},
			},
			PatternThreeCrows,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CandlePattern(tt.candles); got != tt.want {
				t.Errorf("CandlePattern() = %q, want %q", got, tt.want)
			}
		})
	}
}

// The recognizer is an ordered table: a doji that is also engulfed must
// still read as a doji.
func TestCandlePatternOrder(t *testing.T) {
	candles := []model.Candle{
		{Open: 1060, High: 1070, Low: 1010, Close: 1020},
		{Open: 1002, High: 1090, Low: 1000, Close: 1005},
	}
	if got := CandlePattern(candles); got != PatternDoji {
		t.Errorf("CandlePattern() = %q, want %q (single-candle rules first)", got, PatternDoji)
	}
}

func TestGammaSkew(t *testing.T) {
	row := func(strike int64, cg, pg float64) model.OptionChainRow {
		return model.OptionChainRow{StrikePrice: strike, CallGamma: cg, PutGamma: pg}
	}
	tests := []struct {
		name  string
		chain []model.OptionChainRow
		spot  int64
		want  string
	}{
		{"empty chain", nil, 2200000, NA},
		{"zero spot", []model.OptionChainRow{row(2200000, 1, 1)}, 0, NA},
		{
			"balanced",
			[]model.OptionChainRow{
				row(2190000, 0, 1.0), row(2195000, 0, 1.1),
				row(2205000, 1.0, 0), row(2210000, 1.1, 0),
			},
			2200000,
			"Balanced Gamma",
		},
		{
			"call heavy",
			[]model.OptionChainRow{
				row(2190000, 0, 0.1), row(2195000, 0, 0.1),
				row(2205000, 2.0, 0), row(2210000, 2.0, 0),
			},
			2200000,
			"High Gamma (Call Skew)",
		},
		{
			"put heavy",
			[]model.OptionChainRow{
				row(2190000, 0, 2.0), row(2195000, 0, 2.0),
				row(2205000, 0.1, 0), row(2210000, 0.1, 0),
			},
			2200000,
			"High Gamma (Put Skew)",
		},
		{
			"no gamma at all",
			[]model.OptionChainRow{row(2190000, 0, 0), row(2210000, 0, 0)},
			2200000,
			NA,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GammaSkew(tt.chain, tt.spot, 0.5); got != tt.want {
				t.Errorf("GammaSkew() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGammaSkewNearestStrikesOnly(t *testing.T) {
	// A massive call gamma parked five strikes away must not count: only
	// the four nearest OTM strikes per side contribute.
	chain := []model.OptionChainRow{
		{StrikePrice: 2205000, CallGamma: 0.1},
		{StrikePrice: 2210000, CallGamma: 0.1},
		{StrikePrice: 2215000, CallGamma: 0.1},
		{StrikePrice: 2220000, CallGamma: 0.1},
		{StrikePrice: 2225000, CallGamma: 99.0},
		{StrikePrice: 2195000, PutGamma: 0.4},
	}
	if got := GammaSkew(chain, 2200000, 0.5); got != "Balanced Gamma" {
		t.Errorf("GammaSkew() = %q, want Balanced Gamma", got)
	}
}

func TestGammaSkewThreshold(t *testing.T) {
	// Call-heavy chain with imbalance ratio (4.2-0.2)/4.4 ~= 0.91: skewed
	// at the default cutoff, balanced when the cutoff is raised above it.
	chain := []model.OptionChainRow{
		{StrikePrice: 2195000, PutGamma: 0.2},
		{StrikePrice: 2205000, CallGamma: 2.1},
		{StrikePrice: 2210000, CallGamma: 2.1},
	}
	if got := GammaSkew(chain, 2200000, 0.5); got != "High Gamma (Call Skew)" {
		t.Errorf("GammaSkew(0.5) = %q, want High Gamma (Call Skew)", got)
	}
	if got := GammaSkew(chain, 2200000, 0.95); got != "Balanced Gamma" {
		t.Errorf("GammaSkew(0.95) = %q, want Balanced Gamma", got)
	}
}

func TestIVSpike(t *testing.T) {
	hist := make([]float64, 10)
	for i := range hist {
		hist[i] = 0.12
	}
	tests := []struct {
		name    string
		current float64
		history []float64
		want    string
	}{
		{"no current", 0, hist, NA},
		{"short history", 0.20, hist[:9], NA},
		{"spike up", 0.15, hist, "IV Spike Up"},
		{"spike down", 0.09, hist, "IV Spike Down"},
		{"stable", 0.125, hist, "IV Stable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := IVSpike(tt.current, tt.history, 0.02)
			if got != tt.want {
				t.Errorf("IVSpike() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVWAP(t *testing.T) {
	anchor := time.Date(2026, 8, 28, 9, 15, 0, 0, time.UTC)
	w := NewVWAP(anchor)
	if w.Value() != 0 {
		t.Fatal("empty VWAP should be 0")
	}

	w.Update(anchor.Add(-time.Minute), 9999999, 100) // before anchor: ignored
	w.Update(anchor, 10000, 100)
	w.Update(anchor.Add(time.Second), 10200, 100)
	w.Update(anchor.Add(2*time.Second), 10100, 0) // zero qty: ignored

	if got := w.Value(); got != 10100 {
		t.Errorf("Value() = %d, want 10100", got)
	}
	upper, lower := w.Bands(1.0)
	// Two equal-weight prices 100 paise either side of the mean: σ = 100.
	if upper != 10200 || lower != 10000 {
		t.Errorf("Bands(1.0) = (%d, %d), want (10200, 10000)", upper, lower)
	}
}

func TestPriceClassifiers(t *testing.T) {
	if got := PriceVsVwap(10100, 10000); got != "Above VWAP" {
		t.Errorf("PriceVsVwap = %q", got)
	}
	if got := PriceVsVwap(9900, 10000); got != "Below VWAP" {
		t.Errorf("PriceVsVwap = %q", got)
	}
	if got := PriceVsVwap(10100, 0); got != Neutral {
		t.Errorf("PriceVsVwap with zero vwap = %q", got)
	}
	if got := PriceVsClose(10100, 10000); got != "Above Prev Close" {
		t.Errorf("PriceVsClose = %q", got)
	}

	if got := DayRange(10190, 10200, 10000); got != "Near Day High" {
		t.Errorf("DayRange = %q", got)
	}
	if got := DayRange(10010, 10200, 10000); got != "Near Day Low" {
		t.Errorf("DayRange = %q", got)
	}
	if got := DayRange(10100, 10200, 10000); got != "Mid Range" {
		t.Errorf("DayRange = %q", got)
	}
	if got := DayRange(10100, 10000, 10000); got != Neutral {
		t.Errorf("DayRange with no range = %q", got)
	}

	if got := CustomLevel(10005, 10000, 0, 10); got != "At Support" {
		t.Errorf("CustomLevel = %q", got)
	}
	if got := CustomLevel(10995, 0, 11000, 10); got != "At Resistance" {
		t.Errorf("CustomLevel = %q", got)
	}
	if got := CustomLevel(10500, 10000, 11000, 10); got != Neutral {
		t.Errorf("CustomLevel = %q", got)
	}
	if got := CustomLevel(10500, 0, 0, 10); got != NA {
		t.Errorf("CustomLevel unset = %q", got)
	}

	if got := VwapBand(10300, 10200, 10000); got != "Above Upper Band" {
		t.Errorf("VwapBand = %q", got)
	}
	if got := VwapBand(10100, 10200, 10000); got != "Inside Bands" {
		t.Errorf("VwapBand = %q", got)
	}
	if got := VwapBand(10100, 0, 0); got != NA {
		t.Errorf("VwapBand unset = %q", got)
	}

	if got := ProfileRelation(10300, 10000, 10200, "Value"); got != "Above Value" {
		t.Errorf("ProfileRelation = %q", got)
	}
	if got := ProfileRelation(9900, 10000, 10200, "Yesterday's Value"); got != "Below Yesterday's Value" {
		t.Errorf("ProfileRelation = %q", got)
	}

	if got := DailyBias(10300, 10000, 10200); got != "Bullish Bias (Open Above Value)" {
		t.Errorf("DailyBias = %q", got)
	}
	if got := DailyBias(9900, 10000, 10200); got != "Bearish Bias (Open Below Value)" {
		t.Errorf("DailyBias = %q", got)
	}
	if got := DailyBias(10100, 0, 0); got != "Insufficient History" {
		t.Errorf("DailyBias = %q", got)
	}
}

func TestOpenType(t *testing.T) {
	mk := func(open, high, low, close int64) model.Candle {
		return model.Candle{Open: open, High: high, Low: low, Close: close}
	}
	tests := []struct {
		name    string
		candles []model.Candle
		want    string
	}{
		{"no candles", nil, "Analyzing Open..."},
		{
			"bullish drive never trades below open",
			[]model.Candle{
				mk(10000, 10050, 10000, 10040),
				mk(10040, 10090, 10030, 10080),
				mk(10080, 10130, 10070, 10120),
			},
			"Open Drive (Bullish)",
		},
		{
			"bearish drive never trades above open",
			[]model.Candle{
				mk(10000, 10000, 9950, 9960),
				mk(9960, 9970, 9910, 9920),
				mk(9920, 9930, 9870, 9880),
			},
			"Open Drive (Bearish)",
		},
		{
			"both sides traded, too early",
			[]model.Candle{
				mk(10000, 10050, 9950, 10020),
				mk(10020, 10060, 9990, 10030),
			},
			"Analyzing Open...",
		},
		{
			"test drive bullish",
			[]model.Candle{
				mk(10000, 10050, 9950, 10020),
				mk(10020, 10060, 9990, 10030),
				mk(10030, 10060, 10010, 10040),
				mk(10040, 10070, 10020, 10050),
				mk(10050, 10080, 10030, 10060),
			},
			"Open Test Drive (Bullish)",
		},
		{
			"rotational auction",
			[]model.Candle{
				mk(10000, 10050, 9950, 10020),
				mk(10020, 10060, 9990, 9980),
				mk(9980, 10030, 9960, 10010),
				mk(10010, 10040, 9970, 9990),
				mk(9990, 10020, 9960, 10000),
			},
			"Open Auction (Rotational)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OpenType(tt.candles); got != tt.want {
				t.Errorf("OpenType() = %q, want %q", got, tt.want)
			}
		})
	}
}
