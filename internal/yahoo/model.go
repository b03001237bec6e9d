package yahoo

import "time"

// Response represents the raw JSON response structure from Yahoo Finance API.
// This type maps directly to the Yahoo Finance chart API response format,
// containing nested structures for metadata, timestamps, and price indicators.
//
// Close values are pointers because Yahoo emits null for days without a
// numeric close (holidays, halted instruments); the parser skips those.
type Response struct {
	Chart Chart `json:"chart"`
}

// Chart is the envelope around results and the optional API error.
type Chart struct {
	Result []Result `json:"result"`
	Error  *string  `json:"error"`
}

// Result is one chart result: symbol metadata plus parallel arrays of
// timestamps and quote values.
type Result struct {
	Meta       Meta                `json:"meta"`
	Timestamp  []int64             `json:"timestamp"`
	Indicators IndicatorsContainer `json:"indicators"`
}

// Meta carries symbol metadata from the chart response.
type Meta struct {
	Currency         string `json:"currency"`
	Symbol           string `json:"symbol"`
	ExchangeName     string `json:"exchangeName"`
	FullExchangeName string `json:"fullExchangeName"`
	LongName         string `json:"longName"`
	Shortname        string `json:"shortName"`
}

// IndicatorsContainer wraps the quote array.
type IndicatorsContainer struct {
	Quote []Quote `json:"quote"`
}

// Quote holds the OHLCV arrays, index-aligned with Result.Timestamp.
type Quote struct {
	Open   []*float64 `json:"open"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
}

// ClosePoint is one parsed daily close: the trading date truncated to
// midnight UTC, the numeric close, and the quote currency.
type ClosePoint struct {
	Date     time.Time
	Close    float64
	Currency string
}
