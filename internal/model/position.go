package model

import "time"

// Position is the net quantity held in one instrument as of a date.
// Positions are derived on demand from the matcher's lot state and are never
// persisted as mutable running totals.
type Position struct {
	Instrument     string         `json:"instrument"`
	InstrumentType InstrumentType `json:"instrumentType"`
	Quantity       float64        `json:"quantity"`
	Currency       string         `json:"currency"`
	AsOf           time.Time      `json:"asOf"`
	Institution    string         `json:"institution,omitempty"`
}

// ValuedPosition is a position with its market value expressed in the
// settlement currency. An unpriceable position carries a zero value with
// Priced false instead of being dropped.
type ValuedPosition struct {
	Position
	MarketValue float64 `json:"marketValue"`
	Priced      bool    `json:"priced"`
}
