package feed

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"tradepulse/internal/model"
)

// greekRow is one leg of the broker's option greek response. All numeric
// fields arrive as strings.
type greekRow struct {
	StrikePrice       string `json:"strikePrice"`
	OptionType        string `json:"optionType"` // "CE" or "PE"
	Gamma             string `json:"gamma"`
	ImpliedVolatility string `json:"impliedVolatility"`
}

// OptionChain fetches greeks for the given underlying and expiry
// (e.g. "NIFTY", "25MAR2026") and folds the CE/PE legs into one row per
// strike, sorted ascending. Strikes are converted to paise.
func (c *Client) OptionChain(ctx context.Context, name, expiry string) ([]model.OptionChainRow, error) {
	body := map[string]string{
		"name":       name,
		"expirydate": expiry,
	}
	var legs []greekRow
	if err := c.post(ctx, "optionGreek", body, &legs); err != nil {
		return nil, fmt.Errorf("feed: option greeks %s %s: %w", name, expiry, err)
	}

	byStrike := make(map[int64]*model.OptionChainRow)
	for _, leg := range legs {
		strike, err := strconv.ParseFloat(leg.StrikePrice, 64)
		if err != nil || strike <= 0 {
			continue
		}
		k := int64(math.Round(strike * 100))
		row := byStrike[k]
		if row == nil {
			row = &model.OptionChainRow{StrikePrice: k}
			byStrike[k] = row
		}
		gamma, _ := strconv.ParseFloat(leg.Gamma, 64)
		iv, _ := strconv.ParseFloat(leg.ImpliedVolatility, 64)
		switch leg.OptionType {
		case "CE":
			row.CallGamma = gamma
			row.CallIV = iv
		case "PE":
			row.PutGamma = gamma
			row.PutIV = iv
		}
	}

	rows := make([]model.OptionChainRow, 0, len(byStrike))
	for _, row := range byStrike {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StrikePrice < rows[j].StrikePrice })
	return rows, nil
}
