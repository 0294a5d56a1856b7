package feed

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"tradepulse/internal/markethours"
	"tradepulse/internal/model"
)

// candleTimeLayout is what the candle-data endpoint accepts and returns.
const candleTimeLayout = "2006-01-02 15:04"

// Bars fetches 1-minute bars for one trading day. The instrument key is
// "EXCHANGE:token" (e.g. "NSE:26000"), the date is "2006-01-02". Prices come
// back from the API in rupees and are converted to paise.
//
// Satisfies the engine's HistoryProvider.
func (c *Client) Bars(ctx context.Context, instrumentKey, date string) ([]model.Bar, error) {
	exchange, token, err := SplitKey(instrumentKey)
	if err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation("2006-01-02", date, markethours.IST)
	if err != nil {
		return nil, fmt.Errorf("feed: bad date %q: %w", date, err)
	}

	body := map[string]string{
		"exchange":    exchange,
		"symboltoken": token,
		"interval":    "ONE_MINUTE",
		"fromdate":    markethours.SessionStart(day).Format(candleTimeLayout),
		"todate":      markethours.TodayClose(day).Format(candleTimeLayout),
	}

	// Rows are [timestamp, open, high, low, close, volume].
	var rows [][]any
	if err := c.post(ctx, "candleData", body, &rows); err != nil {
		return nil, fmt.Errorf("feed: candle data %s %s: %w", instrumentKey, date, err)
	}

	bars := make([]model.Bar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ts, ok := row[0].(string)
		if !ok {
			continue
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		bars = append(bars, model.Bar{
			TS:     t.Unix(),
			Open:   rupeesToPaise(row[1]),
			High:   rupeesToPaise(row[2]),
			Low:    rupeesToPaise(row[3]),
			Close:  rupeesToPaise(row[4]),
			Volume: asInt64(row[5]),
		})
	}
	return bars, nil
}

// SplitKey parses "EXCHANGE:token" into its parts.
func SplitKey(instrumentKey string) (exchange, token string, err error) {
	i := strings.IndexByte(instrumentKey, ':')
	if i <= 0 || i == len(instrumentKey)-1 {
		return "", "", fmt.Errorf("feed: bad instrument key %q, want EXCHANGE:token", instrumentKey)
	}
	return instrumentKey[:i], instrumentKey[i+1:], nil
}

func rupeesToPaise(v any) int64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int64(math.Round(f * 100))
}

func asInt64(v any) int64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int64(f)
}
