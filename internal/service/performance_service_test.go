package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/repository"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/testutil"
)

// TestPerformanceService_ComputeRealizedPerformance tests the end-to-end
// pipeline from canonical transactions to an aggregated performance result.
//
// WHY: The aggregator composes every other service. These tests pin the
// composed numbers (NAV, cost basis, realized gains, income, coverage) to
// hand-computed values over small histories.
func TestPerformanceService_ComputeRealizedPerformance(t *testing.T) {
	ctx := context.Background()

	t.Run("values a partial close history day by day", func(t *testing.T) {
		// Setup: buy 100 @ 10 on day 1, sell 40 @ 15 on day 5
		db := testutil.SetupTestDB(t)
		priceProvider := testutil.NewMockPriceProvider("primary").
			WithQuote("AAPL", testutil.Day(1), 10, "USD").
			WithQuote("AAPL", testutil.Day(5), 15, "USD")
		fxProvider := testutil.NewMockFXProvider()
		performance := testutil.NewTestPerformanceService(t, db, priceProvider, fxProvider, "USD")

		transactions := []model.Transaction{
			testutil.NewTransaction().WithQuantity(100).WithPrice(10).OnDay(1).Build(),
			testutil.NewTransaction().WithQuantity(-40).WithPrice(15).OnDay(5).WithSeqNo(1).Build(),
		}

		// Execute
		result, err := performance.ComputeRealizedPerformance(ctx, transactions, nil,
			model.PerformanceFilter{To: testutil.Day(5)})
		if err != nil {
			t.Fatalf("ComputeRealizedPerformance failed: %v", err)
		}

		// Assert: one NAV point per day from the first event
		if len(result.NAVSeries) != 5 {
			t.Fatalf("Expected 5 NAV points, got %d", len(result.NAVSeries))
		}
		first := result.NAVSeries[0]
		if first.Value != 1000 || first.Cost != 1000 || first.TotalGainLoss != 0 {
			t.Errorf("Day 1: expected value 1000, cost 1000, total 0; got %+v", first)
		}
		last := result.NAVSeries[4]
		if last.Value != 900 {
			t.Errorf("Day 5: expected value 60*15 = 900, got %v", last.Value)
		}
		if last.Cost != 600 {
			t.Errorf("Day 5: expected cost 600 after the close, got %v", last.Cost)
		}
		if last.RealizedGain != 200 {
			t.Errorf("Day 5: expected realized 200, got %v", last.RealizedGain)
		}
		if last.TotalGainLoss != 500 {
			t.Errorf("Day 5: expected total 500, got %v", last.TotalGainLoss)
		}
		if result.RealizedGainsTotal != 200 {
			t.Errorf("Expected realized total 200, got %v", result.RealizedGainsTotal)
		}
		if result.SimpleReturn != 0.8333 {
			t.Errorf("Expected simple return 0.8333, got %v", result.SimpleReturn)
		}
		if result.Coverage.Ratio != 1.0 {
			t.Errorf("Expected full coverage, got %v", result.Coverage.Ratio)
		}
		if result.SettlementCurrency != "USD" {
			t.Errorf("Expected settlement USD, got %s", result.SettlementCurrency)
		}
	})

	t.Run("institution filter narrows inventory before matching", func(t *testing.T) {
		// Setup: two institutions, only one requested
		db := testutil.SetupTestDB(t)
		priceProvider := testutil.NewMockPriceProvider("primary").
			WithQuote("AAPL", testutil.Day(1), 10, "USD").
			WithQuote("MSFT", testutil.Day(1), 50, "USD")
		fxProvider := testutil.NewMockFXProvider()
		performance := testutil.NewTestPerformanceService(t, db, priceProvider, fxProvider, "USD")

		transactions := []model.Transaction{
			testutil.NewTransaction().WithQuantity(100).WithPrice(10).WithInstitution("ibkr").OnDay(1).Build(),
			testutil.NewTransaction().WithQuantity(-40).WithPrice(15).WithInstitution("ibkr").OnDay(2).WithSeqNo(1).Build(),
			testutil.NewTransaction().WithInstrument("MSFT").WithQuantity(10).WithPrice(50).WithInstitution("degiro").OnDay(1).WithSeqNo(2).Build(),
		}

		// Execute
		result, err := performance.ComputeRealizedPerformance(ctx, transactions, nil,
			model.PerformanceFilter{Institution: "ibkr", To: testutil.Day(2)})
		if err != nil {
			t.Fatalf("ComputeRealizedPerformance failed: %v", err)
		}

		// Assert: the other institution's holdings never enter the result
		if result.RealizedGainsTotal != 200 {
			t.Errorf("Expected realized 200 from the filtered institution, got %v", result.RealizedGainsTotal)
		}
		if result.Coverage.PositionsTotal != 1 {
			t.Errorf("Expected 1 position (AAPL only), got %d", result.Coverage.PositionsTotal)
		}
	})

	t.Run("dividends accumulate as income", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		priceProvider := testutil.NewMockPriceProvider("primary").
			WithQuote("AAPL", testutil.Day(1), 10, "USD")
		fxProvider := testutil.NewMockFXProvider()
		performance := testutil.NewTestPerformanceService(t, db, priceProvider, fxProvider, "USD")

		transactions := []model.Transaction{
			testutil.NewTransaction().WithQuantity(100).WithPrice(10).OnDay(1).Build(),
			testutil.NewTransaction().AsDividend(50).OnDay(3).WithSeqNo(1).Build(),
		}

		// Execute
		result, err := performance.ComputeRealizedPerformance(ctx, transactions, nil,
			model.PerformanceFilter{To: testutil.Day(5)})
		if err != nil {
			t.Fatalf("ComputeRealizedPerformance failed: %v", err)
		}

		// Assert
		if result.IncomeTotal != 50 {
			t.Errorf("Expected income 50, got %v", result.IncomeTotal)
		}
		last := result.NAVSeries[len(result.NAVSeries)-1]
		if last.Income != 50 {
			t.Errorf("Expected cumulative income 50 on the last point, got %v", last.Income)
		}
		if last.TotalGainLoss != 50 {
			t.Errorf("Expected total 50 (flat price, dividend only), got %v", last.TotalGainLoss)
		}
	})

	t.Run("fees total across both trade sides", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		priceProvider := testutil.NewMockPriceProvider("primary").
			WithQuote("AAPL", testutil.Day(1), 10, "USD")
		fxProvider := testutil.NewMockFXProvider()
		performance := testutil.NewTestPerformanceService(t, db, priceProvider, fxProvider, "USD")

		transactions := []model.Transaction{
			testutil.NewTransaction().WithQuantity(100).WithPrice(10).WithFee(10).OnDay(1).Build(),
			testutil.NewTransaction().WithQuantity(-40).WithPrice(15).WithFee(4).OnDay(2).WithSeqNo(1).Build(),
		}

		// Execute
		result, err := performance.ComputeRealizedPerformance(ctx, transactions, nil,
			model.PerformanceFilter{To: testutil.Day(2)})
		if err != nil {
			t.Fatalf("ComputeRealizedPerformance failed: %v", err)
		}

		// Assert: gains stay gross, fees report separately
		if result.FeesTotal != 14 {
			t.Errorf("Expected fees 14, got %v", result.FeesTotal)
		}
		if result.RealizedGainsTotal != 200 {
			t.Errorf("Expected gross realized 200, got %v", result.RealizedGainsTotal)
		}
	})

	t.Run("orphaned remainder never corrupts held quantity", func(t *testing.T) {
		// Setup: 20 held, 30 sold
		db := testutil.SetupTestDB(t)
		priceProvider := testutil.NewMockPriceProvider("primary").
			WithQuote("AAPL", testutil.Day(1), 10, "USD").
			WithQuote("AAPL", testutil.Day(2), 12, "USD")
		fxProvider := testutil.NewMockFXProvider()
		performance := testutil.NewTestPerformanceService(t, db, priceProvider, fxProvider, "USD")

		transactions := []model.Transaction{
			testutil.NewTransaction().WithQuantity(20).WithPrice(10).OnDay(1).Build(),
			testutil.NewTransaction().WithQuantity(-30).WithPrice(12).OnDay(2).WithSeqNo(1).Build(),
		}

		// Execute
		result, err := performance.ComputeRealizedPerformance(ctx, transactions, nil,
			model.PerformanceFilter{To: testutil.Day(2)})
		if err != nil {
			t.Fatalf("ComputeRealizedPerformance failed: %v", err)
		}

		// Assert: only the matched 20 realize; the position nets to zero
		// rather than going negative
		if result.RealizedGainsTotal != 40 {
			t.Errorf("Expected realized (12-10)*20 = 40, got %v", result.RealizedGainsTotal)
		}
		last := result.NAVSeries[len(result.NAVSeries)-1]
		if last.Value != 0 {
			t.Errorf("Expected zero value after the full close, got %v", last.Value)
		}
		if last.Cost != 0 {
			t.Errorf("Expected zero cost after the full close, got %v", last.Cost)
		}
		if !hasWarning(result.Warnings, model.WarningOrphanedClose) {
			t.Error("Expected an orphaned_close warning")
		}
	})

	t.Run("zero transactions with a snapshot is a valid run", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		priceProvider := testutil.NewMockPriceProvider("primary").
			WithQuote("VWRL", testutil.Day(1), 10, "USD")
		fxProvider := testutil.NewMockFXProvider()
		performance := testutil.NewTestPerformanceService(t, db, priceProvider, fxProvider, "USD")

		snapshot := []model.Position{
			{Instrument: "VWRL", InstrumentType: model.InstrumentEquity, Quantity: 10, Currency: "USD"},
		}

		// Execute
		result, err := performance.ComputeRealizedPerformance(ctx, nil, snapshot,
			model.PerformanceFilter{From: testutil.Day(1), To: testutil.Day(3)})
		if err != nil {
			t.Fatalf("ComputeRealizedPerformance failed: %v", err)
		}

		// Assert: snapshot valued over the window, nothing realized
		if len(result.NAVSeries) != 3 {
			t.Fatalf("Expected 3 NAV points, got %d", len(result.NAVSeries))
		}
		if result.NAVSeries[0].Value != 100 {
			t.Errorf("Expected value 100, got %v", result.NAVSeries[0].Value)
		}
		if result.RealizedGainsTotal != 0 {
			t.Errorf("Expected no realized gains, got %v", result.RealizedGainsTotal)
		}
		if result.Coverage.PositionsTotal != 1 || result.Coverage.PositionsPriced != 1 {
			t.Errorf("Expected 1/1 coverage, got %+v", result.Coverage)
		}
	})

	t.Run("date window slices presentation without changing totals", func(t *testing.T) {
		// Setup: history starts before the requested window
		db := testutil.SetupTestDB(t)
		priceProvider := testutil.NewMockPriceProvider("primary").
			WithQuote("AAPL", testutil.Day(1), 10, "USD")
		fxProvider := testutil.NewMockFXProvider()
		performance := testutil.NewTestPerformanceService(t, db, priceProvider, fxProvider, "USD")

		transactions := []model.Transaction{
			testutil.NewTransaction().WithQuantity(100).WithPrice(10).OnDay(1).Build(),
		}

		// Execute
		result, err := performance.ComputeRealizedPerformance(ctx, transactions, nil,
			model.PerformanceFilter{From: testutil.Day(3), To: testutil.Day(5)})
		if err != nil {
			t.Fatalf("ComputeRealizedPerformance failed: %v", err)
		}

		// Assert: series starts at the window, cost basis still includes the
		// day-1 buy
		if len(result.NAVSeries) != 3 {
			t.Fatalf("Expected 3 NAV points in the window, got %d", len(result.NAVSeries))
		}
		if result.NAVSeries[0].Date != testutil.Day(3).Format("2006-01-02") {
			t.Errorf("Expected the window start, got %s", result.NAVSeries[0].Date)
		}
		if result.NAVSeries[0].Cost != 1000 {
			t.Errorf("Expected full cost basis 1000, got %v", result.NAVSeries[0].Cost)
		}
	})

	t.Run("unpriceable positions degrade coverage with warnings", func(t *testing.T) {
		// Setup: no provider has the instrument
		db := testutil.SetupTestDB(t)
		priceProvider := testutil.NewMockPriceProvider("primary")
		fxProvider := testutil.NewMockFXProvider()
		performance := testutil.NewTestPerformanceService(t, db, priceProvider, fxProvider, "USD")

		transactions := []model.Transaction{
			testutil.NewTransaction().WithInstrument("GHOST").WithQuantity(10).WithPrice(5).OnDay(1).Build(),
		}

		// Execute
		result, err := performance.ComputeRealizedPerformance(ctx, transactions, nil,
			model.PerformanceFilter{To: testutil.Day(2)})
		if err != nil {
			t.Fatalf("ComputeRealizedPerformance failed: %v", err)
		}

		// Assert: the run succeeds, the position values at zero
		if result.Coverage.PositionsPriced != 0 {
			t.Errorf("Expected 0 priced positions, got %d", result.Coverage.PositionsPriced)
		}
		if result.Coverage.Ratio != 0 {
			t.Errorf("Expected coverage 0, got %v", result.Coverage.Ratio)
		}
		if !hasWarning(result.Warnings, model.WarningProvidersExhausted) {
			t.Error("Expected a providers_exhausted warning")
		}
		if !hasWarning(result.Warnings, model.WarningPriceMissing) {
			t.Error("Expected a price_missing warning")
		}
		last := result.NAVSeries[len(result.NAVSeries)-1]
		if last.Value != 0 {
			t.Errorf("Expected zero value without a price, got %v", last.Value)
		}
	})

	t.Run("flagged transactions surface as warnings", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		priceProvider := testutil.NewMockPriceProvider("primary")
		fxProvider := testutil.NewMockFXProvider()
		performance := testutil.NewTestPerformanceService(t, db, priceProvider, fxProvider, "USD")

		transactions := []model.Transaction{
			testutil.NewTransaction().WithQuantity(10).WithPrice(5).OnDay(1).
				Flagged("no resolvable instrument identity").Build(),
		}

		// Execute
		result, err := performance.ComputeRealizedPerformance(ctx, transactions, nil,
			model.PerformanceFilter{To: testutil.Day(2)})
		if err != nil {
			t.Fatalf("ComputeRealizedPerformance failed: %v", err)
		}

		// Assert
		if !hasWarning(result.Warnings, model.WarningUnresolvedInstrument) {
			t.Error("Expected an unresolved_instrument warning")
		}
		if result.Coverage.PositionsTotal != 0 {
			t.Errorf("Expected no positions from flagged records, got %d", result.Coverage.PositionsTotal)
		}
	})

	t.Run("converts foreign amounts at period-end rates", func(t *testing.T) {
		// Setup: a GBP history settling in USD
		db := testutil.SetupTestDB(t)
		priceProvider := testutil.NewMockPriceProvider("primary").
			WithQuote("VOD", testutil.Day(1), 10, "GBP")
		fxProvider := testutil.NewMockFXProvider().WithRate("GBPUSD", 1.25)
		performance := testutil.NewTestPerformanceService(t, db, priceProvider, fxProvider, "USD")

		transactions := []model.Transaction{
			testutil.NewTransaction().WithInstrument("VOD").WithQuantity(100).WithPrice(10).
				WithCurrency("GBP").OnDay(1).Build(),
		}

		// Execute
		result, err := performance.ComputeRealizedPerformance(ctx, transactions, nil,
			model.PerformanceFilter{To: testutil.Day(1)})
		if err != nil {
			t.Fatalf("ComputeRealizedPerformance failed: %v", err)
		}

		// Assert: 100 * 10 GBP * 1.25 = 1250 USD
		if len(result.NAVSeries) != 1 {
			t.Fatalf("Expected 1 NAV point, got %d", len(result.NAVSeries))
		}
		if result.NAVSeries[0].Value != 1250 {
			t.Errorf("Expected 1250 USD, got %v", result.NAVSeries[0].Value)
		}
		if result.NAVSeries[0].Cost != 1250 {
			t.Errorf("Expected cost 1250 USD, got %v", result.NAVSeries[0].Cost)
		}
	})
}

// TestPerformanceService_ValuePositions tests live-holdings valuation.
//
// WHY: The positions endpoint values holdings with the most recent rates
// rather than the period-end series, and an instrument no provider can price
// must surface as an unpriced zero, never a dropped row.
func TestPerformanceService_ValuePositions(t *testing.T) {
	ctx := context.Background()

	t.Run("values holdings at the latest rate in the settlement currency", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		priceProvider := testutil.NewMockPriceProvider("primary").
			WithQuote("VOD", testutil.Day(5), 10, "GBP")
		fxProvider := testutil.NewMockFXProvider().WithRate("GBPUSD", 1.25)
		performance := testutil.NewTestPerformanceService(t, db, priceProvider, fxProvider, "USD")

		positions := []model.Position{{
			Instrument:     "VOD",
			InstrumentType: model.InstrumentEquity,
			Quantity:       100,
			Currency:       "GBP",
			AsOf:           testutil.Day(5),
		}}

		// Execute
		valued, warnings := performance.ValuePositions(ctx, positions, testutil.Day(5))

		// Assert: 100 * 10 GBP * 1.25 = 1250 USD
		if len(warnings) != 0 {
			t.Errorf("Expected no warnings, got %+v", warnings)
		}
		if len(valued) != 1 {
			t.Fatalf("Expected 1 valued position, got %d", len(valued))
		}
		if !valued[0].Priced || valued[0].MarketValue != 1250 {
			t.Errorf("Expected priced 1250 USD, got %+v", valued[0])
		}

		// The rate was resolved and stored under the live timing convention.
		today := time.Now().UTC().Truncate(24 * time.Hour)
		rate, err := repository.NewQuoteRepository(db).GetRate("GBP", "USD", today, model.TimingLatest)
		if err != nil {
			t.Fatalf("Expected a stored live rate: %v", err)
		}
		if rate.Rate != 1.25 {
			t.Errorf("Expected rate 1.25, got %v", rate.Rate)
		}
	})

	t.Run("an unpriceable holding degrades to an unpriced zero", func(t *testing.T) {
		// Setup: no provider knows the instrument
		db := testutil.SetupTestDB(t)
		performance := testutil.NewTestPerformanceService(t, db,
			testutil.NewMockPriceProvider("primary"),
			testutil.NewMockFXProvider(),
			"USD",
		)

		positions := []model.Position{{
			Instrument:     "GHOST",
			InstrumentType: model.InstrumentEquity,
			Quantity:       50,
			Currency:       "USD",
			AsOf:           testutil.Day(5),
		}}

		// Execute
		valued, warnings := performance.ValuePositions(ctx, positions, testutil.Day(5))

		// Assert
		if len(valued) != 1 {
			t.Fatalf("Expected the position kept, got %d", len(valued))
		}
		if valued[0].Priced || valued[0].MarketValue != 0 {
			t.Errorf("Expected an unpriced zero, got %+v", valued[0])
		}
		if !hasWarning(warnings, model.WarningPriceMissing) {
			t.Error("Expected a price_missing warning")
		}
	})
}
