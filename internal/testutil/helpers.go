package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/repository"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/service"
)

// Default tuning for test-scoped services. Small enough that tests never
// wait on a real timeout, large enough that nothing expires mid-test.
const (
	TestCacheTTL        = time.Minute
	TestCacheVersion    = 1
	TestWorkerLimit     = 4
	TestProviderTimeout = 5 * time.Second
)

func NewTestPriceService(t *testing.T, db *sql.DB, providers ...service.PriceProvider) *service.PriceService {
	t.Helper()

	quoteRepo := repository.NewQuoteRepository(db)

	return service.NewPriceService(
		providers,
		quoteRepo,
		TestCacheTTL,
		TestCacheVersion,
		TestWorkerLimit,
		TestProviderTimeout,
	)
}

func NewTestFXService(t *testing.T, db *sql.DB, provider service.FXProvider, settlementCurrency string) *service.FXService {
	t.Helper()

	quoteRepo := repository.NewQuoteRepository(db)

	return service.NewFXService(provider, quoteRepo, settlementCurrency, TestCacheTTL)
}

func NewTestTransactionService(t *testing.T, db *sql.DB) *service.TransactionService {
	t.Helper()

	return service.NewTransactionService(repository.NewTransactionRepository(db))
}

func NewTestIngestService(t *testing.T, db *sql.DB, sources ...service.TransactionSource) *service.IngestService {
	t.Helper()

	return service.NewIngestService(
		sources,
		service.NewNormalizerService(),
		repository.NewTransactionRepository(db),
	)
}

// NewTestPerformanceService wires a full aggregation stack against the test
// database, with mock providers standing in for the network adapters.
func NewTestPerformanceService(t *testing.T, db *sql.DB, priceProvider service.PriceProvider, fxProvider service.FXProvider, settlementCurrency string) *service.PerformanceService {
	t.Helper()

	matcher := service.NewMatcherService()
	timeline := service.NewTimelineService(matcher)
	prices := NewTestPriceService(t, db, priceProvider)
	fx := NewTestFXService(t, db, fxProvider, settlementCurrency)

	return service.NewPerformanceService(
		matcher,
		timeline,
		prices,
		fx,
		repository.NewTransactionRepository(db),
	)
}

// MakeID generates a UUID string for use in tests.
//
// Example usage:
//
//	id := testutil.MakeID()
//	// Returns: "550e8400-e29b-41d4-a716-446655440000"
func MakeID() string {
	return uuid.New().String()
}
