package models

// -----------------------------------------------------------------------------
// Push Message (server -> viewer)
// -----------------------------------------------------------------------------

// MMarketSnapshot is the combined candle window and order book pushed on every refresh.
type MMarketSnapshot struct {
	Candlestick []MCandle  `json:"candlestick"`
	OrderBook   MOrderBook `json:"orderBook"`
}

// -----------------------------------------------------------------------------
// Control Message (viewer -> server)
// -----------------------------------------------------------------------------

const ControlSetTimeframe = "setTimeframe"

type MControlMessage struct {
	Type      string `json:"type"`
	Timeframe string `json:"timeframe"`
}
