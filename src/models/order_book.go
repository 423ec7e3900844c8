package models

// MOrderBookEntry is a single price level.
type MOrderBookEntry struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// MOrderBook holds both sides of a depth snapshot, best level first.
type MOrderBook struct {
	Bids []MOrderBookEntry `json:"bids"`
	Asks []MOrderBookEntry `json:"asks"`
}
