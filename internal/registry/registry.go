// Package registry owns all per-instrument analysis state. Every candle
// series, indicator instance, profile and analysis result lives behind one
// State keyed by instrument; a per-instrument mutex serializes the tick
// chain while letting different instruments progress concurrently.
package registry

import (
	"sync"
	"time"

	"tradepulse/internal/candle"
	"tradepulse/internal/indicator"
	"tradepulse/internal/model"
	"tradepulse/internal/profile"
	"tradepulse/internal/signal"
)

const ivHistoryCap = 50

// Settings are the per-instrument construction parameters, sourced from the
// process configuration.
type Settings struct {
	TFs       []int // timeframe durations in seconds
	ShortEma  int
	LongEma   int
	RsiPeriod int
	AtrPeriod int
	TickSize  int64 // profile quantization step in paise
}

// TFIndicators is the indicator set maintained per timeframe.
type TFIndicators struct {
	Ema     *indicator.EMAPair
	VwapEma *indicator.EMAPair
	Rsi     *indicator.RSI
	Atr     *indicator.ATR
	Obv     *indicator.OBV
}

// State is everything the pipeline knows about one instrument. All fields
// are guarded by the embedded mutex; callers hold it across the whole tick
// chain so no partial update is ever observable.
type State struct {
	mu sync.Mutex

	Key    string
	Symbol string

	Series     map[int]*candle.Series
	Indicators map[int]*TFIndicators
	Profile    *profile.Profile
	Historical []profile.HistoricalProfile

	Result *model.AnalysisResult

	SessionVwap  *signal.VWAP
	AnchoredVwap *signal.VWAP

	SessionOpen int64
	Support     int64
	Resistance  int64

	IvHistory []float64
	Chain     []model.OptionChainRow

	LastPrimary string

	backfillStarted bool
	backfilled      bool
}

func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// StartBackfill marks the backfill task as launched. Returns false if it was
// already started, guaranteeing the async fetch runs exactly once.
func (s *State) StartBackfill() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backfillStarted {
		return false
	}
	s.backfillStarted = true
	return true
}

// FinishBackfill records completion and installs the fetched history.
func (s *State) FinishBackfill(sessions []profile.HistoricalProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(sessions) > 0 {
		s.Historical = sessions
	}
	s.backfilled = true
}

// Backfilled reports whether historical context has been loaded (or the
// attempt completed and the instrument runs on cold state).
func (s *State) Backfilled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backfilled
}

// Yesterday returns the most recent historical session, if any.
func (s *State) Yesterday() (profile.HistoricalProfile, bool) {
	if len(s.Historical) == 0 {
		return profile.HistoricalProfile{}, false
	}
	return s.Historical[len(s.Historical)-1], true
}

// IndicatorsWarm reports whether the timeframe's indicators have already
// consumed live candles this session, in which case a checkpoint restore
// would clobber fresher state. Caller must hold the state lock.
func (s *State) IndicatorsWarm(tf int) bool {
	ser := s.Series[tf]
	return ser != nil && ser.ClosedCount() > 0
}

// PushIV appends an implied-vol reading to the bounded history.
func (s *State) PushIV(iv float64) {
	if iv == 0 {
		return
	}
	if len(s.IvHistory) == ivHistoryCap {
		copy(s.IvHistory, s.IvHistory[1:])
		s.IvHistory = s.IvHistory[:ivHistoryCap-1]
	}
	s.IvHistory = append(s.IvHistory, iv)
}

// Registry maps instrument keys to their State.
type Registry struct {
	mu       sync.RWMutex
	settings Settings
	states   map[string]*State
}

func New(settings Settings) *Registry {
	if len(settings.TFs) == 0 {
		settings.TFs = []int{60, 180, 300, 900}
	}
	return &Registry{
		settings: settings,
		states:   make(map[string]*State),
	}
}

// Get returns the state for an instrument, or nil if never seen.
func (r *Registry) Get(key string) *State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.states[key]
}

// GetOrCreate returns the instrument's state, building the full candle
// series and indicator set on first sight. created reports whether this
// call initialized it.
func (r *Registry) GetOrCreate(key, symbol string, sessionStart time.Time) (st *State, created bool) {
	r.mu.RLock()
	st = r.states[key]
	r.mu.RUnlock()
	if st != nil {
		return st, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st = r.states[key]; st != nil {
		return st, false
	}

	st = &State{
		Key:         key,
		Symbol:      symbol,
		Series:      make(map[int]*candle.Series, len(r.settings.TFs)),
		Indicators:  make(map[int]*TFIndicators, len(r.settings.TFs)),
		Profile:     profile.New(key, r.settings.TickSize, sessionStart),
		Result:      model.NewAnalysisResult(key, symbol),
		SessionVwap: signal.NewVWAP(sessionStart),
	}
	for _, tf := range r.settings.TFs {
		st.Series[tf] = candle.NewSeries(key, tf)
		st.Indicators[tf] = &TFIndicators{
			Ema:     indicator.NewEMAPair(r.settings.ShortEma, r.settings.LongEma, false),
			VwapEma: indicator.NewEMAPair(r.settings.ShortEma, r.settings.LongEma, true),
			Rsi:     indicator.NewRSI(r.settings.RsiPeriod),
			Atr:     indicator.NewATR(r.settings.AtrPeriod),
			Obv:     indicator.NewOBV(),
		}
	}
	r.states[key] = st
	return st, true
}

// Keys returns a snapshot of all registered instrument keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.states))
	for k := range r.states {
		keys = append(keys, k)
	}
	return keys
}

// ForEach runs f for every registered instrument. f must do its own
// per-instrument locking.
func (r *Registry) ForEach(f func(*State)) {
	r.mu.RLock()
	states := make([]*State, 0, len(r.states))
	for _, st := range r.states {
		states = append(states, st)
	}
	r.mu.RUnlock()
	for _, st := range states {
		f(st)
	}
}

// Len returns the number of registered instruments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}
