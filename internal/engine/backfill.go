package engine

import (
	"context"
	"time"

	"tradepulse/internal/indicator"
	"tradepulse/internal/markethours"
	"tradepulse/internal/model"
	"tradepulse/internal/profile"
	"tradepulse/internal/registry"
)

// startBackfill launches the async historical-context fetch for a newly
// seen instrument. It runs exactly once per instrument and never touches
// the live profile: fetch failures leave the instrument on cold state and
// live processing continues with "Building History" outputs.
func (e *Engine) startBackfill(ctx context.Context, st *registry.State, ref time.Time) {
	if !st.StartBackfill() {
		return
	}
	key := st.Key
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("backfill panic", "instrument", key, "panic", r)
				st.FinishBackfill(nil)
				e.met.BackfillDone(false)
			}
		}()
		sessions := e.fetchSessions(ctx, key, ref)
		st.FinishBackfill(sessions)
		e.restoreIndicators(ctx, st)
		e.preloadIntraday(ctx, st, ref)
		e.met.BackfillDone(len(sessions) > 0)
		e.log.Info("backfill complete", "instrument", key, "sessions", len(sessions))
	}()
}

// restoreIndicators warms the instrument's indicator recurrences from the
// last persisted checkpoint. Wilder-smoothed state carries across sessions,
// so a restored RSI/ATR is meaningful from the first closed candle.
func (e *Engine) restoreIndicators(ctx context.Context, st *registry.State) {
	if e.opts.Snapshots == nil {
		return
	}
	for _, tf := range e.tfs {
		snaps, err := e.opts.Snapshots.LoadSnapshots(ctx, st.Key, tf)
		if err != nil {
			e.log.Warn("indicator checkpoint load failed",
				"instrument", st.Key, "tf", tf, "err", err)
			continue
		}
		if len(snaps) == 0 {
			continue
		}
		st.Lock()
		inds := st.Indicators[tf]
		if inds != nil && !st.IndicatorsWarm(tf) {
			for _, snap := range snaps {
				switch snap.Type {
				case indicator.TypeEmaPair:
					if snap.UseVwap {
						inds.VwapEma.Restore(snap)
					} else {
						inds.Ema.Restore(snap)
					}
				case indicator.TypeRsi:
					inds.Rsi.Restore(snap)
				case indicator.TypeAtr:
					inds.Atr.Restore(snap)
				case indicator.TypeObv:
					inds.Obv.Restore(snap)
				}
			}
		}
		st.Unlock()
	}
}

// preloadIntraday seeds the 1-minute series, the live profile and the
// 1-minute indicators from the current session's earlier bars, so a
// mid-session start does not analyze from a cold tape. Skipped once the
// live tape has closed a candle: mixing fetched bars into a running
// sequence would feed indicators out of order.
func (e *Engine) preloadIntraday(ctx context.Context, st *registry.State, ref time.Time) {
	if e.opts.History == nil {
		return
	}
	date := ref.In(markethours.IST).Format("2006-01-02")
	bars, err := e.opts.History.Bars(ctx, st.Key, date)
	if err != nil {
		e.log.Warn("intraday bars fetch failed", "instrument", st.Key, "err", err)
		return
	}
	if len(bars) == 0 {
		return
	}

	st.Lock()
	defer st.Unlock()
	ser := st.Series[60]
	if ser == nil || ser.ClosedCount() > 0 {
		return
	}
	cur := ser.Current()
	candles := make([]model.Candle, 0, len(bars))
	for _, b := range bars {
		ts := time.Unix(b.TS, 0)
		if cur != nil && !ts.Before(cur.TS) {
			continue
		}
		candles = append(candles, model.Candle{
			InstrumentKey: st.Key,
			TF:            60,
			TS:            ts,
			Open:          b.Open,
			High:          b.High,
			Low:           b.Low,
			Close:         b.Close,
			Volume:        b.Volume,
			OpenInterest:  b.OpenInterest,
		})
	}
	ser.Preload(candles)
	for _, c := range candles {
		e.onClose(st, c)
	}
	e.log.Info("intraday preload", "instrument", st.Key, "candles", len(candles))
}

// fetchSessions assembles the last BackfillDays finalized profiles, oldest
// first. The persisted store is tried per date before falling back to
// rebuilding from raw 1-minute bars; rebuilt profiles are saved back.
func (e *Engine) fetchSessions(ctx context.Context, key string, ref time.Time) []profile.HistoricalProfile {
	days := e.cfg.BackfillDays
	if days <= 0 {
		days = 3
	}

	dates := make([]string, 0, days)
	d := ref
	for i := 0; i < days; i++ {
		d = markethours.PreviousTradingDay(d)
		dates = append(dates, d.Format("2006-01-02"))
	}

	stored := make(map[string]profile.HistoricalProfile)
	if e.opts.Profiles != nil {
		if hist, err := e.opts.Profiles.LoadProfiles(ctx, key, days); err != nil {
			e.log.Warn("historical profile load failed", "instrument", key, "err", err)
		} else {
			for _, h := range hist {
				stored[h.Date] = h
			}
		}
	}

	// dates is newest-first; build the result oldest-first.
	sessions := make([]profile.HistoricalProfile, 0, days)
	for i := len(dates) - 1; i >= 0; i-- {
		date := dates[i]
		if h, ok := stored[date]; ok {
			sessions = append(sessions, h)
			continue
		}
		if e.opts.History == nil {
			continue
		}
		bars, err := e.opts.History.Bars(ctx, key, date)
		if err != nil {
			e.log.Warn("historical bars fetch failed",
				"instrument", key, "date", date, "err", err)
			continue
		}
		if len(bars) == 0 {
			continue
		}
		h := profile.BuildFromBars(key, int64(e.cfg.ProfileTickSize), date, bars)
		sessions = append(sessions, h)
		if e.opts.Profiles != nil {
			if err := e.opts.Profiles.SaveProfile(ctx, h); err != nil {
				e.log.Warn("rebuilt profile save failed",
					"instrument", key, "date", date, "err", err)
			}
		}
	}
	return sessions
}
