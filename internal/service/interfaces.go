package service

import (
	"context"
	"time"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// PriceProvider is one adapter in the price resolver's ordered fallback
// chain. Implementations declare which instrument classes they can quote so
// the resolver never wastes a call on an unsupported class.
type PriceProvider interface {
	// Name identifies the provider in quotes, warnings, and logs.
	Name() string

	// Supports reports whether the provider can quote the instrument class.
	Supports(t model.InstrumentType) bool

	// FetchHistoricalClose fetches daily closing prices within the
	// inclusive date range. An answer with no numeric values is an error,
	// never an empty success.
	FetchHistoricalClose(ctx context.Context, instrument string, start, end time.Time) ([]model.PriceQuote, error)
}

// FXProvider resolves an exchange rate for a currency pair such as "GBPUSD"
// on a date, under a timing convention.
type FXProvider interface {
	FetchRate(ctx context.Context, pair string, date time.Time, timing model.RateTiming) (float64, error)
}

// TransactionSource streams one institution's raw activity records for
// normalization. A transient source failure degrades ingestion with a
// warning; it never aborts the other sources.
type TransactionSource interface {
	Institution() string
	Fetch(ctx context.Context, since time.Time) ([]model.SourceRecord, error)
}
