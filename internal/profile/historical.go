package profile

import (
	"encoding/json"
	"time"

	"tradepulse/internal/model"
)

// Market structure classifications derived from recent sessions.
const (
	StructureTrendingUp   = "Trending Up"
	StructureTrendingDown = "Trending Down"
	StructureBalancing    = "Balancing"
	StructureUnknown      = "Analyzing..."
)

// HistoricalProfile is the immutable end-of-session snapshot of a Profile,
// keyed by (instrument, date) in the store.
type HistoricalProfile struct {
	InstrumentKey string          `json:"instrument_key"`
	Date          string          `json:"date"` // 2006-01-02
	POC           int64           `json:"poc"`
	VAH           int64           `json:"vah"`
	VAL           int64           `json:"val"`
	VolumePOC     int64           `json:"volume_poc"`
	IBHigh        int64           `json:"ib_high"`
	IBLow         int64           `json:"ib_low"`
	TPOCounts     map[int64]int   `json:"tpo_counts"`
	Volume        map[int64]int64 `json:"volume"`
}

// Snapshot freezes the live profile into a historical record for the given
// session date.
func (p *Profile) Snapshot(date string) HistoricalProfile {
	counts := make(map[int64]int, len(p.tpo))
	for price, set := range p.tpo {
		counts[price] = len(set)
	}
	vols := make(map[int64]int64, len(p.volume))
	for price, v := range p.volume {
		vols[price] = v
	}
	return HistoricalProfile{
		InstrumentKey: p.instrumentKey,
		Date:          date,
		POC:           p.poc,
		VAH:           p.vah,
		VAL:           p.val,
		VolumePOC:     p.volumePoc,
		IBHigh:        p.ibHigh,
		IBLow:         p.ibLow,
		TPOCounts:     counts,
		Volume:        vols,
	}
}

func (h HistoricalProfile) Marshal() ([]byte, error) { return json.Marshal(h) }

func UnmarshalHistorical(data []byte) (HistoricalProfile, error) {
	var h HistoricalProfile
	err := json.Unmarshal(data, &h)
	return h, err
}

// BuildFromBars replays a prior session's 1-minute bars into a fresh profile
// and snapshots it. The replay is fully deterministic: the same bar set
// always yields the same POC and Value Area.
func BuildFromBars(instrumentKey string, tickSize int64, date string, bars []model.Bar) HistoricalProfile {
	if len(bars) == 0 {
		return HistoricalProfile{InstrumentKey: instrumentKey, Date: date}
	}
	p := New(instrumentKey, tickSize, time.Unix(bars[0].TS, 0))
	for _, b := range bars {
		p.AddCandle(model.Candle{
			InstrumentKey: instrumentKey,
			TS:            time.Unix(b.TS, 0),
			Open:          b.Open,
			High:          b.High,
			Low:           b.Low,
			Close:         b.Close,
			Volume:        b.Volume,
			OpenInterest:  b.OpenInterest,
		})
	}
	return p.Snapshot(date)
}

func (h HistoricalProfile) mid() int64 { return (h.VAH + h.VAL) / 2 }

func (h HistoricalProfile) width() int64 {
	w := h.VAH - h.VAL
	if w < 0 {
		return 0
	}
	return w
}

func vaOverlap(a, b HistoricalProfile) int64 {
	lo := a.VAL
	if b.VAL > lo {
		lo = b.VAL
	}
	hi := a.VAH
	if b.VAH < hi {
		hi = b.VAH
	}
	if hi <= lo {
		return 0
	}
	return hi - lo
}

// ClassifyStructure labels the multi-day auction state from the last three
// sessions (oldest first). Two consecutive value-area migrations in the same
// direction, each overlapping the prior session by less than half of it,
// read as a trend; anything else is balance.
func ClassifyStructure(sessions []HistoricalProfile) string {
	if len(sessions) < 3 {
		return StructureUnknown
	}
	s := sessions[len(sessions)-3:]

	up, down := 0, 0
	for i := 1; i < 3; i++ {
		prev, cur := s[i-1], s[i]
		migrating := vaOverlap(prev, cur)*2 < prev.width() || prev.width() == 0
		switch {
		case cur.mid() > prev.mid() && migrating:
			up++
		case cur.mid() < prev.mid() && migrating:
			down++
		}
	}
	switch {
	case up == 2:
		return StructureTrendingUp
	case down == 2:
		return StructureTrendingDown
	default:
		return StructureBalancing
	}
}
