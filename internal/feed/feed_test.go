package feed

import (
	"encoding/binary"
	"sort"
	"testing"
	"time"
)

// buildFrame assembles a snap-quote binary frame with the given fields.
func buildFrame(exType byte, token string, tsMs int64, ltp, qty, atp, high, low, prevClose, oi int64) []byte {
	b := make([]byte, 139)
	b[0] = modeSnapQuote
	b[1] = exType
	copy(b[2:27], token)
	binary.LittleEndian.PutUint64(b[35:43], uint64(tsMs))
	binary.LittleEndian.PutUint64(b[43:51], uint64(ltp))
	binary.LittleEndian.PutUint64(b[51:59], uint64(qty))
	binary.LittleEndian.PutUint64(b[59:67], uint64(atp))
	binary.LittleEndian.PutUint64(b[99:107], uint64(high))
	binary.LittleEndian.PutUint64(b[107:115], uint64(low))
	binary.LittleEndian.PutUint64(b[115:123], uint64(prevClose))
	binary.LittleEndian.PutUint64(b[131:139], uint64(oi))
	return b
}

func TestParseQuote(t *testing.T) {
	tsMs := time.Date(2026, 8, 28, 5, 30, 0, 0, time.UTC).UnixMilli()
	frame := buildFrame(ExchangeNSE, "26000", tsMs, 2200050, 75, 2199980, 2210000, 2190000, 2195000, 123456)

	tick, err := parseQuote(frame)
	if err != nil {
		t.Fatalf("parseQuote: %v", err)
	}
	if tick.InstrumentKey != "NSE:26000" {
		t.Errorf("InstrumentKey = %q", tick.InstrumentKey)
	}
	if tick.Price != 2200050 || tick.Qty != 75 || tick.AvgTradePrice != 2199980 {
		t.Errorf("price fields = %d/%d/%d", tick.Price, tick.Qty, tick.AvgTradePrice)
	}
	if tick.DayHigh != 2210000 || tick.DayLow != 2190000 || tick.PrevClose != 2195000 {
		t.Errorf("day fields = %d/%d/%d", tick.DayHigh, tick.DayLow, tick.PrevClose)
	}
	if tick.OpenInterest != 123456 {
		t.Errorf("OpenInterest = %d", tick.OpenInterest)
	}
	if !tick.TradeTS.Equal(time.UnixMilli(tsMs).UTC()) {
		t.Errorf("TradeTS = %v", tick.TradeTS)
	}
}

func TestParseQuoteLTPOnlyFrame(t *testing.T) {
	// A 51-byte LTP frame carries no quote or OI fields.
	frame := buildFrame(ExchangeNFO, "43125", 0, 105050, 0, 0, 0, 0, 0, 0)[:51]
	tick, err := parseQuote(frame)
	if err != nil {
		t.Fatalf("parseQuote: %v", err)
	}
	if tick.InstrumentKey != "NFO:43125" || tick.Price != 105050 {
		t.Errorf("tick = %+v", tick)
	}
	if tick.Qty != 0 || tick.OpenInterest != 0 {
		t.Errorf("quote fields set on LTP frame: %+v", tick)
	}
	if tick.TradeTS.IsZero() {
		t.Error("zero exchange timestamp must fall back to wall clock")
	}
}

func TestParseQuoteErrors(t *testing.T) {
	if _, err := parseQuote(make([]byte, 40)); err == nil {
		t.Error("short frame accepted")
	}
	empty := buildFrame(ExchangeNSE, "", 0, 100, 0, 0, 0, 0, 0, 0)
	if _, err := parseQuote(empty); err == nil {
		t.Error("empty token accepted")
	}
}

func TestParseQuoteUnknownExchange(t *testing.T) {
	frame := buildFrame(99, "777", 0, 100, 0, 0, 0, 0, 0, 0)
	tick, err := parseQuote(frame)
	if err != nil {
		t.Fatalf("parseQuote: %v", err)
	}
	if tick.InstrumentKey != "EX_99:777" {
		t.Errorf("InstrumentKey = %q", tick.InstrumentKey)
	}
}

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key      string
		exchange string
		token    string
		wantErr  bool
	}{
		{"NSE:26000", "NSE", "26000", false},
		{"NFO:43125", "NFO", "43125", false},
		{"26000", "", "", true},
		{":26000", "", "", true},
		{"NSE:", "", "", true},
	}
	for _, tt := range tests {
		exchange, token, err := SplitKey(tt.key)
		if (err != nil) != tt.wantErr {
			t.Errorf("SplitKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			continue
		}
		if exchange != tt.exchange || token != tt.token {
			t.Errorf("SplitKey(%q) = (%q, %q)", tt.key, exchange, token)
		}
	}
}

func TestTokenGroups(t *testing.T) {
	groups, err := TokenGroups([]string{"NSE:26000", "NSE:99926009", "NFO:43125"})
	if err != nil {
		t.Fatalf("TokenGroups: %v", err)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ExchangeType < groups[j].ExchangeType })
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if groups[0].ExchangeType != ExchangeNSE || len(groups[0].Tokens) != 2 {
		t.Errorf("NSE group = %+v", groups[0])
	}
	if groups[1].ExchangeType != ExchangeNFO || groups[1].Tokens[0] != "43125" {
		t.Errorf("NFO group = %+v", groups[1])
	}

	if _, err := TokenGroups([]string{"XXX:1"}); err == nil {
		t.Error("unknown exchange accepted")
	}
	if _, err := TokenGroups([]string{"nokey"}); err == nil {
		t.Error("malformed key accepted")
	}
}

func TestRupeesToPaise(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{22000.50, 2200050},
		{22000.505, 2200051}, // rounds, not truncates
		{0.0, 0},
		{"not a number", 0},
	}
	for _, tt := range tests {
		if got := rupeesToPaise(tt.in); got != tt.want {
			t.Errorf("rupeesToPaise(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewStreamValidation(t *testing.T) {
	_, err := NewStream(StreamConfig{})
	if err == nil {
		t.Error("empty config accepted")
	}
	s, err := NewStream(StreamConfig{
		AuthToken:  "jwt",
		APIKey:     "key",
		ClientCode: "C123",
		FeedToken:  "feed",
		Tokens:     []TokenGroup{{ExchangeType: ExchangeNSE, Tokens: []string{"26000"}}},
	})
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if s.cfg.URL != defaultStreamURL {
		t.Errorf("URL default = %q", s.cfg.URL)
	}
	if s.cfg.RetryDelay != 2*time.Second || s.cfg.MaxRetryDelay != 30*time.Second {
		t.Errorf("backoff defaults = %v/%v", s.cfg.RetryDelay, s.cfg.MaxRetryDelay)
	}
}
