package model

// OptionChainRow holds one strike of an option chain with the greeks the
// gamma-skew analysis needs. Rows are supplied by the option-chain
// collaborator and replaced wholesale on each refresh.
type OptionChainRow struct {
	StrikePrice int64   `json:"strike"` // paise
	CallGamma   float64 `json:"call_gamma"`
	PutGamma    float64 `json:"put_gamma"`
	CallIV      float64 `json:"call_iv"`
	PutIV       float64 `json:"put_iv"`
}

// Bar is a single historical OHLCV bar returned by the historical-data
// collaborator (1-minute granularity), used for backfill and previous-session
// profile construction.
type Bar struct {
	TS           int64 `json:"ts"` // Unix seconds
	Open         int64 `json:"open"`
	High         int64 `json:"high"`
	Low          int64 `json:"low"`
	Close        int64 `json:"close"`
	Volume       int64 `json:"volume"`
	OpenInterest int64 `json:"oi"`
}
