// Package engine wires the analysis pipeline: every tick flows through the
// candle aggregator, market profile, indicators, signal derivation and the
// thesis synthesizer for its instrument, under that instrument's lock.
// Different instruments progress concurrently; one instrument's panic never
// touches another's state.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"tradepulse/config"
	"tradepulse/internal/candle"
	"tradepulse/internal/indicator"
	"tradepulse/internal/markethours"
	"tradepulse/internal/model"
	"tradepulse/internal/profile"
	"tradepulse/internal/registry"
	"tradepulse/internal/signal"
	"tradepulse/internal/thesis"
)

// patternLookback is how many closed candles feed pattern recognition.
const patternLookback = 3

// HistoryProvider fetches prior-session 1-minute bars for backfill.
type HistoryProvider interface {
	Bars(ctx context.Context, instrumentKey, date string) ([]model.Bar, error)
}

// ProfileStore persists finalized session profiles keyed by (instrument, date).
type ProfileStore interface {
	SaveProfile(ctx context.Context, h profile.HistoricalProfile) error
	LoadProfiles(ctx context.Context, instrumentKey string, limit int) ([]profile.HistoricalProfile, error)
}

// SnapshotStore persists minimal indicator recurrence state per
// (instrument, timeframe) across restarts.
type SnapshotStore interface {
	SaveSnapshots(ctx context.Context, instrumentKey string, tf int, snaps []indicator.Snapshot) error
	LoadSnapshots(ctx context.Context, instrumentKey string, tf int) ([]indicator.Snapshot, error)
}

// Hooks are the engine's outbound callbacks. All are optional and must be
// fast; they run outside the instrument lock.
type Hooks struct {
	// OnCandleClose fires for every closed timeframe candle.
	OnCandleClose func(model.Candle)
	// OnTransition fires for debounce-passing primary-signal transitions,
	// carrying the full result and the previous primary signal.
	OnTransition func(result *model.AnalysisResult, previous string)
	// OnResult fires after every processed tick with the updated result.
	OnResult func(result *model.AnalysisResult)
}

// Metrics are the engine's instrumentation hooks, satisfied by the metrics
// package; nil-safe via the noop implementation.
type Metrics interface {
	TickProcessed()
	TickStale()
	TickPanic()
	CandleClosed(tf int)
	Transition()
	TransitionDebounced()
	BackfillDone(ok bool)
	Conviction(instrumentKey string, score int)
}

type noopMetrics struct{}

func (noopMetrics) TickProcessed()            {}
func (noopMetrics) TickStale()                {}
func (noopMetrics) TickPanic()                {}
func (noopMetrics) CandleClosed(int)          {}
func (noopMetrics) Transition()               {}
func (noopMetrics) TransitionDebounced()      {}
func (noopMetrics) BackfillDone(bool)         {}
func (noopMetrics) Conviction(string, int)    {}

// Options configure engine construction.
type Options struct {
	History   HistoryProvider // nil disables backfill
	Profiles  ProfileStore    // nil disables profile persistence
	Snapshots SnapshotStore   // nil disables indicator checkpoints
	Hooks     Hooks
	Metrics   Metrics
	Now       func() time.Time // injectable clock, nil = wall clock
	// SkipMarketHoursGate admits ticks outside NSE session hours.
	// Replay and tests set this.
	SkipMarketHoursGate bool
}

// Engine is the per-tick orchestrator.
type Engine struct {
	cfg   *config.Config
	reg   *registry.Registry
	synth *thesis.Synthesizer
	deb   *thesis.Debouncer
	opts  Options
	tfs   []int
	now   func() time.Time
	met   Metrics
	log   *slog.Logger
}

func New(cfg *config.Config, log *slog.Logger, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	met := opts.Metrics
	if met == nil {
		met = noopMetrics{}
	}
	tfs := cfg.ParseTFs()
	sort.Ints(tfs)

	markethours.AddHolidays(cfg.ParseHolidays())
	markethours.SetSessionBounds(cfg.MarketOpen, cfg.MarketClose)

	return &Engine{
		cfg: cfg,
		reg: registry.New(registry.Settings{
			TFs:       tfs,
			ShortEma:  cfg.ShortEmaLength,
			LongEma:   cfg.LongEmaLength,
			RsiPeriod: cfg.RsiPeriod,
			AtrPeriod: cfg.AtrPeriod,
			TickSize:  int64(cfg.ProfileTickSize),
		}),
		synth: thesis.New(thesis.Config{OpeningDamping: cfg.OpeningDamping}),
		deb:   thesis.NewDebouncer(cfg.SignalDebounce, now),
		opts:  opts,
		tfs:   tfs,
		now:   now,
		met:   met,
		log:   log,
	}
}

// Registry exposes the instrument registry to collaborators (gateway, replay).
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Result returns a safe copy of the live analysis result for an instrument,
// or nil if the instrument is unknown.
func (e *Engine) Result(instrumentKey string) *model.AnalysisResult {
	st := e.reg.Get(instrumentKey)
	if st == nil {
		return nil
	}
	st.Lock()
	defer st.Unlock()
	return st.Result.Clone()
}

// OnTick is the pipeline entry point. It returns the updated analysis
// result, or nil when the tick was gated out (market closed, stale) — the
// instrument's state is untouched in that case.
func (e *Engine) OnTick(ctx context.Context, t model.Tick) (res *model.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			e.met.TickPanic()
			e.log.Error("tick pipeline panic",
				"instrument", t.InstrumentKey, "panic", r)
			res = nil
		}
	}()

	now := e.now()
	if !e.opts.SkipMarketHoursGate && !markethours.IsMarketOpen(now) {
		return nil
	}
	if now.Sub(t.TradeTS) > e.cfg.TickStaleness {
		e.met.TickStale()
		e.log.Debug("stale tick dropped",
			"instrument", t.InstrumentKey,
			"age", now.Sub(t.TradeTS).String())
		return nil
	}

	st, created := e.reg.GetOrCreate(t.InstrumentKey, t.InstrumentKey,
		markethours.SessionStart(t.TradeTS))
	if created {
		e.startBackfill(ctx, st, t.TradeTS)
	}

	phase := markethours.Phase(now)

	closed, transition, prevPrimary, res := e.process(st, t, phase, now)

	e.met.TickProcessed()
	e.met.Conviction(t.InstrumentKey, res.ConvictionScore)

	for _, c := range closed {
		e.met.CandleClosed(c.TF)
		if e.opts.Hooks.OnCandleClose != nil {
			e.opts.Hooks.OnCandleClose(c)
		}
	}
	if transition != nil && e.opts.Hooks.OnTransition != nil {
		e.opts.Hooks.OnTransition(transition, prevPrimary)
	}
	if e.opts.Hooks.OnResult != nil {
		e.opts.Hooks.OnResult(res)
	}
	return res
}

// process holds the instrument lock for the synchronous chain. The deferred
// unlock keeps the instrument usable even when the chain panics; the
// recover in OnTick then drops only this tick.
func (e *Engine) process(st *registry.State, t model.Tick, phase model.MarketPhase, now time.Time) (
	closed []model.Candle, transition *model.AnalysisResult, prevPrimary string, res *model.AnalysisResult) {
	st.Lock()
	defer st.Unlock()
	closed = e.advance(st, t, phase, now)
	if tr, prev := e.detectTransition(st); tr != nil {
		transition, prevPrimary = tr, prev
	}
	res = st.Result.Clone()
	return closed, transition, prevPrimary, res
}

// advance runs the synchronous per-tick chain under the instrument lock and
// returns the candles that closed on this tick.
func (e *Engine) advance(st *registry.State, t model.Tick, phase model.MarketPhase, now time.Time) []model.Candle {
	if st.SessionOpen == 0 {
		st.SessionOpen = t.Price
	}
	st.SessionVwap.Update(t.TradeTS, t.Price, t.Qty)
	if st.AnchoredVwap != nil {
		st.AnchoredVwap.Update(t.TradeTS, t.Price, t.Qty)
	}
	st.PushIV(t.ImpliedVol)

	var closed []model.Candle
	for _, tf := range e.tfs {
		if c := st.Series[tf].Apply(t); c != nil {
			closed = append(closed, *c)
			e.onClose(st, *c)
		}
	}

	e.deriveSignals(st, t, phase)
	if len(closed) > 0 {
		e.synth.Synthesize(st.Result, phase)
	}
	st.Result.UpdatedAt = now
	return closed
}

// onClose feeds a freshly closed candle into the profile (1-minute only)
// and the timeframe's indicator set.
func (e *Engine) onClose(st *registry.State, c model.Candle) {
	if c.TF == 60 {
		st.Profile.AddCandle(c)
	}
	inds := st.Indicators[c.TF]
	if inds == nil {
		return
	}
	inds.Ema.Update(c)
	inds.VwapEma.Update(c)
	inds.Rsi.Update(c)
	inds.Atr.Update(c)
	inds.Obv.Update(c)
}

// detectTransition compares the current primary signal against the last
// propagated one; returns a result copy when a debounce-passing transition
// occurred.
func (e *Engine) detectTransition(st *registry.State) (*model.AnalysisResult, string) {
	cur := st.Result.PrimarySignal
	if cur == st.LastPrimary || cur == "Initializing" {
		return nil, ""
	}
	prev := st.LastPrimary
	st.LastPrimary = cur
	if prev == "" {
		// First computed signal is not a transition.
		return nil, ""
	}
	if !e.deb.Allow(st.Key) {
		e.met.TransitionDebounced()
		return nil, ""
	}
	e.met.Transition()
	return st.Result.Clone(), prev
}

// UpdateOptionChain replaces the cached option chain rows used by the gamma
// skew signal.
func (e *Engine) UpdateOptionChain(instrumentKey string, rows []model.OptionChainRow) {
	st := e.reg.Get(instrumentKey)
	if st == nil {
		return
	}
	st.Lock()
	st.Chain = append(st.Chain[:0], rows...)
	st.Unlock()
}

// SetCustomLevels installs user-defined support/resistance for an instrument.
func (e *Engine) SetCustomLevels(instrumentKey string, support, resistance int64) {
	st := e.reg.Get(instrumentKey)
	if st == nil {
		return
	}
	st.Lock()
	st.Support, st.Resistance = support, resistance
	st.Unlock()
}

// AnchorVwap starts an anchored VWAP for the instrument at the given time.
func (e *Engine) AnchorVwap(instrumentKey string, anchor time.Time) {
	st := e.reg.Get(instrumentKey)
	if st == nil {
		return
	}
	st.Lock()
	st.AnchoredVwap = signal.NewVWAP(anchor)
	st.Unlock()
}

// FinalizeSession snapshots every live profile into the historical store and
// checkpoints indicator state. Called at session end or shutdown.
func (e *Engine) FinalizeSession(ctx context.Context) {
	date := e.now().Format("2006-01-02")
	e.reg.ForEach(func(st *registry.State) {
		st.Lock()
		var snap *profile.HistoricalProfile
		if st.Profile.LevelCount() > 0 {
			s := st.Profile.Snapshot(date)
			snap = &s
		}
		byTF := make(map[int][]indicator.Snapshot, len(st.Indicators))
		for tf, inds := range st.Indicators {
			byTF[tf] = []indicator.Snapshot{
				inds.Ema.Snapshot(), inds.VwapEma.Snapshot(),
				inds.Rsi.Snapshot(), inds.Atr.Snapshot(), inds.Obv.Snapshot(),
			}
		}
		key := st.Key
		st.Unlock()

		if snap != nil && e.opts.Profiles != nil {
			if err := e.opts.Profiles.SaveProfile(ctx, *snap); err != nil {
				e.log.Error("profile snapshot save failed", "instrument", key, "err", err)
			}
		}
		if e.opts.Snapshots != nil {
			for tf, snaps := range byTF {
				if err := e.opts.Snapshots.SaveSnapshots(ctx, key, tf, snaps); err != nil {
					e.log.Error("indicator checkpoint failed",
						"instrument", key, "tf", tf, "err", err)
				}
			}
		}
	})
	e.log.Info("session finalized", "instruments", e.reg.Len(), "date", date)
}

// seriesFor returns the series for a timeframe, nil when the timeframe is
// not in the configured set.
func seriesFor(st *registry.State, tf int) *candle.Series {
	return st.Series[tf]
}
