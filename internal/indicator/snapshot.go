package indicator

import "encoding/json"

// Snapshot type discriminators.
const (
	TypeEmaPair = "EMA_PAIR"
	TypeRsi     = "RSI"
	TypeAtr     = "ATR"
	TypeObv     = "OBV"
)

// Snapshot is the flat checkpoint record shared by all indicators. The Type
// field discriminates which subset of fields is meaningful; zero values in
// the rest are harmless. Kept flat so a single SQLite column and JSON codec
// serve every indicator.
type Snapshot struct {
	Type string `json:"type"`

	// EMA pair
	ShortPeriod int     `json:"short_period,omitempty"`
	LongPeriod  int     `json:"long_period,omitempty"`
	UseVwap     bool    `json:"use_vwap,omitempty"`
	ShortEma    float64 `json:"short_ema,omitempty"`
	LongEma     float64 `json:"long_ema,omitempty"`
	ShortSum    float64 `json:"short_sum,omitempty"`
	LongSum     float64 `json:"long_sum,omitempty"`

	// RSI / ATR
	Period    int     `json:"period,omitempty"`
	PrevClose float64 `json:"prev_close,omitempty"`
	AvgGain   float64 `json:"avg_gain,omitempty"`
	AvgLoss   float64 `json:"avg_loss,omitempty"`
	Sum       float64 `json:"sum,omitempty"`

	// OBV
	PrevClosePaise int64 `json:"prev_close_paise,omitempty"`

	Count   int     `json:"count"`
	Current float64 `json:"current"`
}

// Marshal encodes the snapshot for the checkpoint store.
func (s Snapshot) Marshal() ([]byte, error) { return json.Marshal(s) }

// UnmarshalSnapshot decodes a stored checkpoint record.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	err := json.Unmarshal(data, &s)
	return s, err
}
