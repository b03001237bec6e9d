package model

import "time"

// PriceQuote is a provider-confirmed closing price for one instrument and
// date. A quote is either present or explicitly absent; a failed lookup is
// never represented as a quote.
type PriceQuote struct {
	ID         string    `json:"id,omitempty"`
	Instrument string    `json:"instrument"`
	Date       time.Time `json:"date"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	Source     string    `json:"source"`
}

// RateTiming selects which FX rate convention a caller needs.
type RateTiming string

// Rate timing conventions.
const (
	// TimingPeriodEnd uses the end-of-period close, matching the
	// granularity of priced positions in the performance series.
	TimingPeriodEnd RateTiming = "period_end"

	// TimingLatest uses the most recent available quote, for live
	// valuation contexts.
	TimingLatest RateTiming = "latest"
)

// ExchangeRate is a currency exchange rate for a specific date and timing
// convention. The settlement currency's own rate is always exactly 1.0.
type ExchangeRate struct {
	ID           string     `json:"id,omitempty"`
	FromCurrency string     `json:"fromCurrency"`
	ToCurrency   string     `json:"toCurrency"`
	Rate         float64    `json:"rate"`
	Date         time.Time  `json:"date"`
	Timing       RateTiming `json:"timing"`
}
