package model

import "time"

// Side marks whether an open lot represents long or short inventory.
type Side string

// Inventory sides.
const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Lot is an open inventory slice created by one opening transaction.
// Remaining is always positive regardless of side and is reduced only by the
// matcher closing quantity against it; the lot leaves the open set when
// Remaining reaches zero.
type Lot struct {
	Instrument     string         `json:"instrument"`
	InstrumentType InstrumentType `json:"instrumentType"`
	Side           Side           `json:"side"`
	Remaining      float64        `json:"remaining"`
	OpenQuantity   float64        `json:"openQuantity"`
	OpenPrice      float64        `json:"openPrice"`
	OpenFee        float64        `json:"openFee"`
	Currency       string         `json:"currency"`
	OpenTimestamp  time.Time      `json:"openTimestamp"`
	Institution    string         `json:"institution"`
	Expiry         *time.Time     `json:"expiry,omitempty"`
}

// MatchedClose is the immutable record of one (lot, closing transaction)
// pairing produced by the FIFO matcher. RealizedGain is the price delta times
// matched quantity in the trade currency, gross of FeesAllocated.
type MatchedClose struct {
	Instrument     string         `json:"instrument"`
	InstrumentType InstrumentType `json:"instrumentType"`
	Side           Side           `json:"side"`
	Quantity       float64        `json:"quantity"`
	OpenPrice      float64        `json:"openPrice"`
	ClosePrice     float64        `json:"closePrice"`
	OpenTimestamp  time.Time      `json:"openTimestamp"`
	CloseTimestamp time.Time      `json:"closeTimestamp"`
	Currency       string         `json:"currency"`
	RealizedGain   float64        `json:"realizedGain"`
	FeesAllocated  float64        `json:"feesAllocated"`

	// Synthetic marks closes the matcher generated itself, e.g. an option
	// expiring with no closing transaction in the history.
	Synthetic bool `json:"synthetic,omitempty"`
}

// OrphanedClose records the portion of a closing transaction that exceeded
// all open inventory for its instrument. Surfaced as a warning so a manual
// backfill record can supply the missing opening trade.
type OrphanedClose struct {
	Instrument  string    `json:"instrument"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	Timestamp   time.Time `json:"timestamp"`
	Institution string    `json:"institution"`
}
