package signal

import (
	"math"
	"sort"

	"tradepulse/internal/model"
)

// otmStrikesPerSide is how many out-of-the-money strikes contribute to the
// gamma skew on each side of the spot.
const otmStrikesPerSide = 4

// GammaSkew compares summed call gamma on the nearest OTM call strikes
// against summed put gamma on the nearest OTM put strikes. An imbalance
// ratio above threshold flags a lopsided gamma environment that tends to
// accelerate moves toward the heavy side.
func GammaSkew(chain []model.OptionChainRow, spot int64, threshold float64) string {
	if len(chain) == 0 || spot == 0 {
		return NA
	}
	sorted := make([]model.OptionChainRow, len(chain))
	copy(sorted, chain)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StrikePrice < sorted[j].StrikePrice
	})

	var callGamma, putGamma float64
	calls, puts := 0, 0
	for _, row := range sorted {
		if row.StrikePrice > spot && calls < otmStrikesPerSide {
			callGamma += row.CallGamma
			calls++
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].StrikePrice < spot && puts < otmStrikesPerSide {
			putGamma += sorted[i].PutGamma
			puts++
		}
	}
	total := callGamma + putGamma
	if total == 0 {
		return NA
	}
	ratio := math.Abs(callGamma-putGamma) / total
	if ratio <= threshold {
		return "Balanced Gamma"
	}
	if callGamma > putGamma {
		return "High Gamma (Call Skew)"
	}
	return "High Gamma (Put Skew)"
}

// ivHistoryMin is how many IV readings the rolling mean needs before a
// spike reading is trustworthy.
const ivHistoryMin = 10

// IVSpike compares the current implied volatility against a rolling mean of
// recent readings. threshold is the absolute IV delta (in vol points, e.g.
// 0.02 = 2%) that counts as a spike.
func IVSpike(current float64, history []float64, threshold float64) (string, float64) {
	if current == 0 || len(history) < ivHistoryMin {
		return NA, 0
	}
	var sum float64
	for _, v := range history {
		sum += v
	}
	avg := sum / float64(len(history))
	switch {
	case current-avg >= threshold:
		return "IV Spike Up", avg
	case avg-current >= threshold:
		return "IV Spike Down", avg
	default:
		return "IV Stable", avg
	}
}
