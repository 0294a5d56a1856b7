package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tradepulse/config"
	"tradepulse/internal/indicator"
	"tradepulse/internal/markethours"
	"tradepulse/internal/model"
	"tradepulse/internal/profile"
	"tradepulse/internal/signal"
)

// Friday 2026-08-28, 10:00 IST: inside the session, past the opening phase.
var engT0 = time.Date(2026, 8, 28, 10, 0, 0, 0, time.FixedZone("IST", 5*3600+30*60))

func testConfig() *config.Config {
	return &config.Config{
		EnabledTFs:            "60,180,300",
		ShortEmaLength:        9,
		LongEmaLength:         21,
		RsiPeriod:             14,
		RsiDivergenceLookback: 14,
		AtrPeriod:             14,
		VolumeHistoryLength:   20,
		VolumeBurstMultiplier: 2.0,
		IvSpikeThreshold:      0.02,
		VwapUpperBandMult:     2.0,
		VwapLowerBandMult:     2.0,
		SignalDebounce:        60 * time.Second,
		OpeningDamping:        0.5,
		TickStaleness:         15 * time.Second,
		ProfileTickSize:       5,
		BackfillDays:          3,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu        sync.Mutex
	profiles  []profile.HistoricalProfile // returned by LoadProfiles
	saved     []profile.HistoricalProfile
	snapshots map[string][]indicator.Snapshot // "key/tf"
}

func newFakeStore() *fakeStore {
	return &fakeStore{snapshots: make(map[string][]indicator.Snapshot)}
}

func (f *fakeStore) SaveProfile(_ context.Context, h profile.HistoricalProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, h)
	return nil
}

func (f *fakeStore) LoadProfiles(_ context.Context, _ string, _ int) ([]profile.HistoricalProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles, nil
}

func (f *fakeStore) SaveSnapshots(_ context.Context, key string, tf int, snaps []indicator.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[key+"/"+model.Itoa(tf)] = snaps
	return nil
}

func (f *fakeStore) LoadSnapshots(_ context.Context, key string, tf int) ([]indicator.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[key+"/"+model.Itoa(tf)], nil
}

func (f *fakeStore) savedProfiles() []profile.HistoricalProfile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]profile.HistoricalProfile(nil), f.saved...)
}

func engTick(ts time.Time, price, qty, oi int64) model.Tick {
	return model.Tick{
		InstrumentKey: "NSE:26000",
		Price:         price,
		Qty:           qty,
		AvgTradePrice: price,
		OpenInterest:  oi,
		TradeTS:       ts,
	}
}

func TestOnTickRisingMarket(t *testing.T) {
	now := engT0
	eng := New(testConfig(), testLogger(), Options{
		Now:                 func() time.Time { return now },
		SkipMarketHoursGate: true,
	})

	candleCloses := map[int]int{}
	type transition struct{ prev, cur string }
	var transitions []transition
	eng.opts.Hooks = Hooks{
		OnCandleClose: func(c model.Candle) { candleCloses[c.TF]++ },
		OnTransition: func(r *model.AnalysisResult, prev string) {
			transitions = append(transitions, transition{prev, r.PrimarySignal})
		},
	}

	ctx := context.Background()
	var last *model.AnalysisResult
	for i := 0; i < 40; i++ {
		now = engT0.Add(time.Duration(i) * time.Minute)
		res := eng.OnTick(ctx, engTick(now, int64(2200000+i*100), 100, int64(100000+i*500)))
		if res == nil {
			t.Fatalf("tick %d gated out", i)
		}
		last = res
	}

	if candleCloses[60] != 39 || candleCloses[180] != 13 || candleCloses[300] != 7 {
		t.Errorf("candle closes = %v, want 39/13/7", candleCloses)
	}
	if last.EmaSignal1Min != "Bullish Cross" {
		t.Errorf("EmaSignal1Min = %q", last.EmaSignal1Min)
	}
	if last.PriceVsVwapSignal != "Above VWAP" {
		t.Errorf("PriceVsVwapSignal = %q", last.PriceVsVwapSignal)
	}
	if last.OiSignal != "Long Buildup" {
		t.Errorf("OiSignal = %q", last.OiSignal)
	}
	if last.RsiValue1Min < 70 {
		t.Errorf("RsiValue1Min = %v, want overbought in a monotonic rise", last.RsiValue1Min)
	}
	if last.PrimarySignal != "Bullish" {
		t.Errorf("PrimarySignal = %q", last.PrimarySignal)
	}
	if last.ConvictionScore < 3 {
		t.Errorf("ConvictionScore = %d, want >= 3", last.ConvictionScore)
	}
	if len(transitions) == 0 {
		t.Fatal("no transitions fired")
	}
	if transitions[0].prev != "Neutral" || transitions[0].cur != "Bullish" {
		t.Errorf("first transition = %+v", transitions[0])
	}
	if last.LTP != 2200000+39*100 {
		t.Errorf("LTP = %d", last.LTP)
	}
}

func TestOnTickRecoveredPanicReleasesLock(t *testing.T) {
	now := engT0
	eng := New(testConfig(), testLogger(), Options{
		Now:                 func() time.Time { return now },
		SkipMarketHoursGate: true,
	})
	ctx := context.Background()

	if res := eng.OnTick(ctx, engTick(now, 2200000, 100, 100000)); res == nil {
		t.Fatal("first tick gated out")
	}

	st := eng.Registry().Get("NSE:26000")
	st.Lock()
	st.SessionVwap = nil // forces a nil deref inside the tick chain
	st.Unlock()

	now = engT0.Add(time.Second)
	if res := eng.OnTick(ctx, engTick(now, 2200100, 100, 100000)); res != nil {
		t.Fatalf("panicking tick returned a result: %+v", res)
	}

	st.Lock()
	st.SessionVwap = signal.NewVWAP(markethours.SessionStart(now))
	st.Unlock()

	now = engT0.Add(2 * time.Second)
	done := make(chan *model.AnalysisResult, 1)
	go func() {
		done <- eng.OnTick(ctx, engTick(now, 2200200, 100, 100000))
	}()
	select {
	case res := <-done:
		if res == nil {
			t.Fatal("instrument unprocessable after recovered panic")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("instrument mutex still held after recovered panic")
	}
}

func TestOnTickStaleDropped(t *testing.T) {
	now := engT0
	eng := New(testConfig(), testLogger(), Options{
		Now:                 func() time.Time { return now },
		SkipMarketHoursGate: true,
	})
	res := eng.OnTick(context.Background(), engTick(now.Add(-20*time.Second), 2200000, 10, 0))
	if res != nil {
		t.Error("stale tick processed")
	}
	if eng.Registry().Len() != 0 {
		t.Error("stale tick created instrument state")
	}
}

func TestOnTickMarketClosedGate(t *testing.T) {
	sunday := time.Date(2026, 8, 30, 11, 0, 0, 0, time.FixedZone("IST", 5*3600+30*60))
	eng := New(testConfig(), testLogger(), Options{
		Now: func() time.Time { return sunday },
	})
	if res := eng.OnTick(context.Background(), engTick(sunday, 2200000, 10, 0)); res != nil {
		t.Error("tick processed outside market hours")
	}
}

func TestBackfillInstallsHistory(t *testing.T) {
	store := newFakeStore()
	// Prior trading days from Friday 2026-08-28: 27th, 26th, 25th. Ascending
	// disjoint value areas read as a multi-day uptrend.
	store.profiles = []profile.HistoricalProfile{
		{InstrumentKey: "NSE:26000", Date: "2026-08-25", VAL: 2100000, VAH: 2120000, POC: 2110000},
		{InstrumentKey: "NSE:26000", Date: "2026-08-26", VAL: 2140000, VAH: 2160000, POC: 2150000},
		{InstrumentKey: "NSE:26000", Date: "2026-08-27", VAL: 2180000, VAH: 2195000, POC: 2190000},
	}

	now := engT0
	eng := New(testConfig(), testLogger(), Options{
		Profiles:            store,
		Now:                 func() time.Time { return now },
		SkipMarketHoursGate: true,
	})
	ctx := context.Background()

	eng.OnTick(ctx, engTick(now, 2200000, 100, 0))
	st := eng.Registry().Get("NSE:26000")
	if st == nil {
		t.Fatal("state not created")
	}
	deadline := time.Now().Add(2 * time.Second)
	for !st.Backfilled() {
		if time.Now().After(deadline) {
			t.Fatal("backfill never completed")
		}
		time.Sleep(time.Millisecond)
	}

	now = now.Add(10 * time.Second)
	res := eng.OnTick(ctx, engTick(now, 2200000, 100, 0))
	if res.MarketStructure != profile.StructureTrendingUp {
		t.Errorf("MarketStructure = %q, want %q", res.MarketStructure, profile.StructureTrendingUp)
	}
	if res.YesterdayProfile != "Above Yesterday's Value" {
		t.Errorf("YesterdayProfile = %q", res.YesterdayProfile)
	}
	if res.DailyBias != "Bullish Bias (Open Above Value)" {
		t.Errorf("DailyBias = %q", res.DailyBias)
	}
}

type fakeHistory struct {
	bars map[string][]model.Bar
}

func (f *fakeHistory) Bars(_ context.Context, _, date string) ([]model.Bar, error) {
	return f.bars[date], nil
}

func TestBackfillPreloadsIntradayBars(t *testing.T) {
	// Ten 1-minute bars from the session open: a process starting at 10:00
	// must pick up the morning tape instead of analyzing from cold.
	sessionOpen := time.Date(2026, 8, 28, 9, 15, 0, 0, engT0.Location())
	bars := make([]model.Bar, 10)
	for i := range bars {
		px := int64(2190000 + i*100)
		bars[i] = model.Bar{
			TS:     sessionOpen.Add(time.Duration(i) * time.Minute).Unix(),
			Open:   px,
			High:   px + 50,
			Low:    px - 50,
			Close:  px,
			Volume: 100,
		}
	}
	hist := &fakeHistory{bars: map[string][]model.Bar{"2026-08-28": bars}}

	now := engT0
	eng := New(testConfig(), testLogger(), Options{
		History:             hist,
		Now:                 func() time.Time { return now },
		SkipMarketHoursGate: true,
	})
	ctx := context.Background()
	eng.OnTick(ctx, engTick(now, 2200000, 100, 0))

	st := eng.Registry().Get("NSE:26000")
	deadline := time.Now().Add(2 * time.Second)
	for {
		st.Lock()
		n := st.Series[60].ClosedCount()
		st.Unlock()
		if n == len(bars) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("1m series never seeded, closed = %d", n)
		}
		time.Sleep(time.Millisecond)
	}

	st.Lock()
	levels := st.Profile.LevelCount()
	warm := st.IndicatorsWarm(60)
	st.Unlock()
	if levels == 0 {
		t.Error("profile empty after intraday preload")
	}
	if !warm {
		t.Error("1m indicators cold after intraday preload")
	}

	now = now.Add(10 * time.Second)
	res := eng.OnTick(ctx, engTick(now, 2200000, 100, 0))
	if res.AvgVolume != 100 {
		t.Errorf("AvgVolume = %d, want 100 from the preloaded tape", res.AvgVolume)
	}
}

func TestCustomLevelsAndOptionChain(t *testing.T) {
	now := engT0
	eng := New(testConfig(), testLogger(), Options{
		Now:                 func() time.Time { return now },
		SkipMarketHoursGate: true,
	})
	ctx := context.Background()
	eng.OnTick(ctx, engTick(now, 2200000, 100, 0))

	eng.SetCustomLevels("NSE:26000", 2200000, 0)
	eng.UpdateOptionChain("NSE:26000", []model.OptionChainRow{
		{StrikePrice: 2190000, PutGamma: 0.1},
		{StrikePrice: 2210000, CallGamma: 2.0},
	})

	now = now.Add(time.Second)
	res := eng.OnTick(ctx, engTick(now, 2200000, 100, 0))
	if res.CustomLevelSignal != "At Support" {
		t.Errorf("CustomLevelSignal = %q", res.CustomLevelSignal)
	}
	if res.GammaSignal != "High Gamma (Call Skew)" {
		t.Errorf("GammaSignal = %q", res.GammaSignal)
	}
}

func TestResultUnknownInstrument(t *testing.T) {
	eng := New(testConfig(), testLogger(), Options{SkipMarketHoursGate: true})
	if eng.Result("NSE:404") != nil {
		t.Error("Result for unknown instrument not nil")
	}
}

func TestFinalizeSession(t *testing.T) {
	store := newFakeStore()
	now := engT0
	eng := New(testConfig(), testLogger(), Options{
		Profiles:            store,
		Snapshots:           store,
		Now:                 func() time.Time { return now },
		SkipMarketHoursGate: true,
	})
	ctx := context.Background()

	// Two ticks a minute apart close one 1m candle, populating the profile.
	eng.OnTick(ctx, engTick(now, 2200000, 100, 0))
	now = now.Add(time.Minute)
	eng.OnTick(ctx, engTick(now, 2200100, 100, 0))

	eng.FinalizeSession(ctx)

	saved := store.savedProfiles()
	if len(saved) != 1 {
		t.Fatalf("saved profiles = %d, want 1", len(saved))
	}
	if saved[0].InstrumentKey != "NSE:26000" || saved[0].Date != "2026-08-28" {
		t.Errorf("saved profile = %+v", saved[0])
	}
	for _, tf := range []int{60, 180, 300} {
		snaps, _ := store.LoadSnapshots(ctx, "NSE:26000", tf)
		if len(snaps) != 5 {
			t.Errorf("tf %d checkpoint count = %d, want 5", tf, len(snaps))
		}
	}
}
