package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// MockPriceProvider is a configurable price provider for testing the
// resolver's fallback chain and caching behavior without network access.
//
// Example usage:
//
//	provider := testutil.NewMockPriceProvider("primary").
//	    WithQuote("AAPL", testutil.Day(5), 12.5, "USD")
//	// provider.QueryCount tracks upstream calls
type MockPriceProvider struct {
	mu sync.Mutex

	// QueryCount tracks the number of FetchHistoricalClose calls made.
	QueryCount int

	name       string
	supports   func(t model.InstrumentType) bool
	series     map[string][]model.PriceQuote
	err        error
	perCallErr []error
}

// NewMockPriceProvider creates a mock provider that supports every
// instrument class and answers with whatever quotes were configured.
func NewMockPriceProvider(name string) *MockPriceProvider {
	return &MockPriceProvider{
		name:     name,
		supports: func(model.InstrumentType) bool { return true },
		series:   make(map[string][]model.PriceQuote),
	}
}

// WithQuote adds one closing price for an instrument.
func (m *MockPriceProvider) WithQuote(instrument string, date time.Time, price float64, currency string) *MockPriceProvider {
	m.series[instrument] = append(m.series[instrument], model.PriceQuote{
		Instrument: instrument,
		Date:       date.UTC().Truncate(24 * time.Hour),
		Price:      price,
		Currency:   currency,
		Source:     m.name,
	})
	return m
}

// WithError makes every call fail with the given error.
func (m *MockPriceProvider) WithError(err error) *MockPriceProvider {
	m.err = err
	return m
}

// WithErrorSequence makes successive calls fail with the given errors in
// order; calls beyond the sequence fall back to the configured quotes.
func (m *MockPriceProvider) WithErrorSequence(errs ...error) *MockPriceProvider {
	m.perCallErr = errs
	return m
}

// SupportsOnly restricts the provider to the given instrument classes.
func (m *MockPriceProvider) SupportsOnly(types ...model.InstrumentType) *MockPriceProvider {
	allowed := make(map[model.InstrumentType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	m.supports = func(t model.InstrumentType) bool { return allowed[t] }
	return m
}

// Name identifies the provider in quotes and warnings.
func (m *MockPriceProvider) Name() string {
	return m.name
}

// Supports reports whether the provider quotes the instrument class.
func (m *MockPriceProvider) Supports(t model.InstrumentType) bool {
	return m.supports(t)
}

// FetchHistoricalClose returns the configured quotes falling within the
// inclusive date range.
func (m *MockPriceProvider) FetchHistoricalClose(_ context.Context, instrument string, start, end time.Time) ([]model.PriceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.QueryCount
	m.QueryCount++

	if call < len(m.perCallErr) && m.perCallErr[call] != nil {
		return nil, m.perCallErr[call]
	}
	if m.err != nil {
		return nil, m.err
	}

	var quotes []model.PriceQuote
	for _, quote := range m.series[instrument] {
		if quote.Date.Before(start.UTC().Truncate(24*time.Hour)) || quote.Date.After(end.UTC().Truncate(24*time.Hour)) {
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

// MockFXProvider is a configurable exchange rate provider. Rates are keyed
// by pair only; the same rate answers any date.
type MockFXProvider struct {
	mu sync.Mutex

	// CallCount tracks the number of FetchRate calls made.
	CallCount int

	rates map[string]float64
	err   error
}

// NewMockFXProvider creates a mock FX provider with no rates configured.
func NewMockFXProvider() *MockFXProvider {
	return &MockFXProvider{
		rates: make(map[string]float64),
	}
}

// WithRate configures the rate returned for a pair such as "GBPUSD".
func (m *MockFXProvider) WithRate(pair string, rate float64) *MockFXProvider {
	m.rates[pair] = rate
	return m
}

// WithError makes every call fail with the given error.
func (m *MockFXProvider) WithError(err error) *MockFXProvider {
	m.err = err
	return m
}

// FetchRate returns the configured rate for the pair, or zero when the pair
// is unknown.
func (m *MockFXProvider) FetchRate(_ context.Context, pair string, _ time.Time, _ model.RateTiming) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	if m.err != nil {
		return 0, m.err
	}
	return m.rates[pair], nil
}

// MockSource is a configurable transaction source for ingestion tests.
type MockSource struct {
	// FetchCount tracks the number of Fetch calls made.
	FetchCount int

	// LastSince records the since argument of the most recent Fetch call.
	LastSince time.Time

	institution string
	records     []model.SourceRecord
	err         error
}

// NewMockSource creates a mock source returning the given records.
func NewMockSource(institution string, records ...model.SourceRecord) *MockSource {
	return &MockSource{
		institution: institution,
		records:     records,
	}
}

// WithError makes every Fetch fail with the given error.
func (m *MockSource) WithError(err error) *MockSource {
	m.err = err
	return m
}

// Institution returns the source's institution name.
func (m *MockSource) Institution() string {
	return m.institution
}

// Fetch returns the configured records.
func (m *MockSource) Fetch(_ context.Context, since time.Time) ([]model.SourceRecord, error) {
	m.FetchCount++
	m.LastSince = since
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}
