package models

// MCandle is one completed bucket for the selected timeframe.
// Prices are carried exactly as the upstream formatted them.
type MCandle struct {
	Time  int64  `json:"time"` // open time, unix ms
	Open  string `json:"open"`
	High  string `json:"high"`
	Low   string `json:"low"`
	Close string `json:"close"`
}
