package registry

import (
	"sync"
	"testing"
	"time"

	"tradepulse/internal/model"
	"tradepulse/internal/profile"
)

var sessionStart = time.Date(2026, 8, 28, 9, 15, 0, 0, time.UTC)

func testSettings() Settings {
	return Settings{
		TFs:       []int{60, 300},
		ShortEma:  9,
		LongEma:   21,
		RsiPeriod: 14,
		AtrPeriod: 14,
		TickSize:  5,
	}
}

func TestGetOrCreate(t *testing.T) {
	r := New(testSettings())
	if r.Get("NSE:26000") != nil {
		t.Fatal("Get returned state before creation")
	}

	st, created := r.GetOrCreate("NSE:26000", "NIFTY 50", sessionStart)
	if !created {
		t.Fatal("first GetOrCreate did not report created")
	}
	if st.Key != "NSE:26000" || st.Symbol != "NIFTY 50" {
		t.Errorf("state identity = %q/%q", st.Key, st.Symbol)
	}
	for _, tf := range []int{60, 300} {
		if st.Series[tf] == nil {
			t.Errorf("no candle series for tf %d", tf)
		}
		inds := st.Indicators[tf]
		if inds == nil || inds.Ema == nil || inds.VwapEma == nil ||
			inds.Rsi == nil || inds.Atr == nil || inds.Obv == nil {
			t.Errorf("incomplete indicator set for tf %d", tf)
		}
	}
	if st.Profile == nil || st.Result == nil || st.SessionVwap == nil {
		t.Error("profile, result or session vwap missing")
	}
	if st.Result.PrimarySignal != "Initializing" {
		t.Errorf("fresh result primary = %q", st.Result.PrimarySignal)
	}

	again, created := r.GetOrCreate("NSE:26000", "NIFTY 50", sessionStart)
	if created || again != st {
		t.Error("second GetOrCreate must return the same state uncreated")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	r := New(testSettings())
	var wg sync.WaitGroup
	states := make([]*State, 16)
	createdCount := make([]bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			states[i], createdCount[i] = r.GetOrCreate("NSE:26000", "NIFTY 50", sessionStart)
		}(i)
	}
	wg.Wait()

	creations := 0
	for i := 1; i < 16; i++ {
		if states[i] != states[0] {
			t.Fatal("racing GetOrCreate returned different states")
		}
	}
	for _, c := range createdCount {
		if c {
			creations++
		}
	}
	if creations != 1 {
		t.Errorf("created reported %d times, want exactly 1", creations)
	}
}

func TestStartBackfillOnce(t *testing.T) {
	r := New(testSettings())
	st, _ := r.GetOrCreate("NSE:26000", "NIFTY 50", sessionStart)

	if !st.StartBackfill() {
		t.Fatal("first StartBackfill must win")
	}
	if st.StartBackfill() {
		t.Fatal("second StartBackfill must lose")
	}
	if st.Backfilled() {
		t.Fatal("backfilled before FinishBackfill")
	}

	sessions := []profile.HistoricalProfile{{Date: "2026-08-27", POC: 10100}}
	st.FinishBackfill(sessions)
	if !st.Backfilled() {
		t.Fatal("not backfilled after FinishBackfill")
	}
	y, ok := st.Yesterday()
	if !ok || y.POC != 10100 {
		t.Errorf("Yesterday = (%+v, %v)", y, ok)
	}
}

func TestFinishBackfillEmptyKeepsCold(t *testing.T) {
	r := New(testSettings())
	st, _ := r.GetOrCreate("NSE:26000", "NIFTY 50", sessionStart)
	st.FinishBackfill(nil)
	if !st.Backfilled() {
		t.Fatal("empty backfill must still complete")
	}
	if _, ok := st.Yesterday(); ok {
		t.Error("cold state must have no yesterday")
	}
}

func TestIndicatorsWarm(t *testing.T) {
	r := New(testSettings())
	st, _ := r.GetOrCreate("NSE:26000", "NIFTY 50", sessionStart)
	if st.IndicatorsWarm(60) {
		t.Fatal("warm with no candles")
	}
	// Two ticks in different buckets close one candle.
	st.Series[60].Apply(model.Tick{Price: 10000, Qty: 1, TradeTS: sessionStart})
	st.Series[60].Apply(model.Tick{Price: 10100, Qty: 1, TradeTS: sessionStart.Add(time.Minute)})
	if !st.IndicatorsWarm(60) {
		t.Error("not warm after a closed candle")
	}
	if st.IndicatorsWarm(300) {
		t.Error("5m warm without a closed 5m candle")
	}
	if st.IndicatorsWarm(999) {
		t.Error("unknown timeframe reported warm")
	}
}

func TestPushIVBounded(t *testing.T) {
	st := &State{}
	st.PushIV(0) // ignored
	for i := 0; i < ivHistoryCap+10; i++ {
		st.PushIV(0.10 + float64(i)/1000)
	}
	if len(st.IvHistory) != ivHistoryCap {
		t.Errorf("IvHistory len = %d, want %d", len(st.IvHistory), ivHistoryCap)
	}
	newest := st.IvHistory[len(st.IvHistory)-1]
	if newest != 0.10+float64(ivHistoryCap+9)/1000 {
		t.Errorf("newest IV = %v", newest)
	}
}

func TestForEachAndKeys(t *testing.T) {
	r := New(testSettings())
	r.GetOrCreate("NSE:26000", "NIFTY 50", sessionStart)
	r.GetOrCreate("NSE:11536", "BANKNIFTY", sessionStart)

	seen := map[string]bool{}
	r.ForEach(func(st *State) { seen[st.Key] = true })
	if len(seen) != 2 || !seen["NSE:26000"] || !seen["NSE:11536"] {
		t.Errorf("ForEach visited %v", seen)
	}
	if got := len(r.Keys()); got != 2 {
		t.Errorf("Keys len = %d", got)
	}
}

func TestDefaultTimeframes(t *testing.T) {
	r := New(Settings{ShortEma: 9, LongEma: 21, RsiPeriod: 14, AtrPeriod: 14, TickSize: 5})
	st, _ := r.GetOrCreate("NSE:26000", "NIFTY 50", sessionStart)
	for _, tf := range []int{60, 180, 300, 900} {
		if st.Series[tf] == nil {
			t.Errorf("default tf %d missing", tf)
		}
	}
}
