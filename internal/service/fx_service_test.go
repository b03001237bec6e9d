package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/testutil"
)

// TestFXService_Rate tests exchange rate resolution into the settlement
// currency.
//
// WHY: Every monetary figure in a performance result passes through this
// conversion. The settlement identity in particular must be exact: even a
// fourth-decimal deviation would visibly corrupt single-currency portfolios.
func TestFXService_Rate(t *testing.T) {
	ctx := context.Background()
	day := testutil.Day(5)

	t.Run("settlement currency is exactly 1.0 without a lookup", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockFXProvider().WithRate("USDUSD", 999)
		fx := testutil.NewTestFXService(t, db, provider, "USD")

		// Execute
		rate, warnings := fx.Rate(ctx, "USD", day, model.TimingPeriodEnd)

		// Assert: exact identity, provider never consulted
		if rate != 1.0 {
			t.Errorf("Expected exactly 1.0, got %v", rate)
		}
		if len(warnings) != 0 {
			t.Errorf("Expected no warnings, got %d", len(warnings))
		}
		if provider.CallCount != 0 {
			t.Errorf("Expected zero provider calls, got %d", provider.CallCount)
		}
	})

	t.Run("resolves the market-quoted pair direction", func(t *testing.T) {
		// Setup: GBP outranks USD, so the market quotes GBPUSD directly
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockFXProvider().WithRate("GBPUSD", 1.25)
		fx := testutil.NewTestFXService(t, db, provider, "USD")

		// Execute
		rate, warnings := fx.Rate(ctx, "GBP", day, model.TimingPeriodEnd)

		// Assert
		if rate != 1.25 {
			t.Errorf("Expected 1.25, got %v", rate)
		}
		if len(warnings) != 0 {
			t.Errorf("Expected no warnings, got %d", len(warnings))
		}
	})

	t.Run("inverts when the market quotes the other direction", func(t *testing.T) {
		// Setup: JPY ranks below USD, so only USDJPY is quoted
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockFXProvider().WithRate("USDJPY", 150)
		fx := testutil.NewTestFXService(t, db, provider, "USD")

		// Execute
		rate, warnings := fx.Rate(ctx, "JPY", day, model.TimingPeriodEnd)

		// Assert: the reciprocal of the quoted rate
		if rate != 1.0/150.0 {
			t.Errorf("Expected 1/150, got %v", rate)
		}
		if len(warnings) != 0 {
			t.Errorf("Expected no warnings, got %d", len(warnings))
		}
	})

	t.Run("missing pair degrades to 1.0 with a warning", func(t *testing.T) {
		// Setup: provider knows no rates
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockFXProvider()
		fx := testutil.NewTestFXService(t, db, provider, "USD")

		// Execute
		rate, warnings := fx.Rate(ctx, "SEK", day, model.TimingPeriodEnd)

		// Assert
		if rate != 1.0 {
			t.Errorf("Expected degraded rate 1.0, got %v", rate)
		}
		if !hasWarning(warnings, model.WarningFXRateMissing) {
			t.Error("Expected an fx_rate_missing warning")
		}
	})

	t.Run("provider failure degrades to 1.0 with a warning", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockFXProvider().WithError(errors.New("upstream unavailable"))
		fx := testutil.NewTestFXService(t, db, provider, "USD")

		// Execute
		rate, warnings := fx.Rate(ctx, "EUR", day, model.TimingPeriodEnd)

		// Assert
		if rate != 1.0 {
			t.Errorf("Expected degraded rate 1.0, got %v", rate)
		}
		if !hasWarning(warnings, model.WarningFXRateMissing) {
			t.Error("Expected an fx_rate_missing warning")
		}
	})

	t.Run("missing currency code warns as unmapped", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockFXProvider()
		fx := testutil.NewTestFXService(t, db, provider, "USD")

		// Execute
		rate, warnings := fx.Rate(ctx, "", day, model.TimingPeriodEnd)

		// Assert
		if rate != 1.0 {
			t.Errorf("Expected rate 1.0, got %v", rate)
		}
		if !hasWarning(warnings, model.WarningUnmappedCurrency) {
			t.Error("Expected an unmapped_currency warning")
		}
		if provider.CallCount != 0 {
			t.Errorf("Expected zero provider calls, got %d", provider.CallCount)
		}
	})

	t.Run("resolved rates are cached and persisted", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockFXProvider().WithRate("EURUSD", 1.08)
		fx := testutil.NewTestFXService(t, db, provider, "USD")

		// Execute: twice through the same service, then through a fresh one
		// sharing only the database
		fx.Rate(ctx, "EUR", day, model.TimingPeriodEnd)
		fx.Rate(ctx, "EUR", day, model.TimingPeriodEnd)

		secondProvider := testutil.NewMockFXProvider().WithRate("EURUSD", 1.08)
		rebuilt := testutil.NewTestFXService(t, db, secondProvider, "USD")
		rate, warnings := rebuilt.Rate(ctx, "EUR", day, model.TimingPeriodEnd)

		// Assert: one upstream call ever
		if provider.CallCount != 1 {
			t.Errorf("Expected 1 provider call, got %d", provider.CallCount)
		}
		if secondProvider.CallCount != 0 {
			t.Errorf("Expected the persisted rate to answer, got %d provider calls", secondProvider.CallCount)
		}
		if rate != 1.08 {
			t.Errorf("Expected 1.08, got %v", rate)
		}
		if len(warnings) != 0 {
			t.Errorf("Expected no warnings, got %d", len(warnings))
		}
	})

	t.Run("failed lookups are never cached", func(t *testing.T) {
		// Setup: first call fails, then the rate appears
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockFXProvider()
		fx := testutil.NewTestFXService(t, db, provider, "USD")

		// Execute
		_, firstWarnings := fx.Rate(ctx, "EUR", day, model.TimingPeriodEnd)
		provider.WithRate("EURUSD", 1.08)
		rate, secondWarnings := fx.Rate(ctx, "EUR", day, model.TimingPeriodEnd)

		// Assert: the retry reached the provider and succeeded
		if !hasWarning(firstWarnings, model.WarningFXRateMissing) {
			t.Error("Expected the first lookup to warn")
		}
		if rate != 1.08 {
			t.Errorf("Expected the retry to resolve 1.08, got %v", rate)
		}
		if len(secondWarnings) != 0 {
			t.Errorf("Expected no warnings on retry, got %d", len(secondWarnings))
		}
		if provider.CallCount != 2 {
			t.Errorf("Expected 2 provider calls, got %d", provider.CallCount)
		}
	})
}

// TestFXService_Convert tests amount conversion including minor-unit
// rescaling.
//
// WHY: UK and South African listings quote in pence and cents. Skipping the
// rescale inflates a position's value a hundredfold, which is the single
// most damaging FX mistake this pipeline can make.
func TestFXService_Convert(t *testing.T) {
	ctx := context.Background()
	day := testutil.Day(5)

	t.Run("rescales pence to pounds before the rate lookup", func(t *testing.T) {
		// Setup: 1500 GBp = 15 GBP, then 15 * 1.25 = 18.75 USD
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockFXProvider().WithRate("GBPUSD", 1.25)
		fx := testutil.NewTestFXService(t, db, provider, "USD")

		// Execute
		converted, warnings := fx.Convert(ctx, 1500, "GBp", day, model.TimingPeriodEnd)

		// Assert
		if converted != 18.75 {
			t.Errorf("Expected 18.75, got %v", converted)
		}
		if len(warnings) != 0 {
			t.Errorf("Expected no warnings, got %d", len(warnings))
		}
	})

	t.Run("GBX quotes rescale the same as GBp", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockFXProvider().WithRate("GBPUSD", 1.25)
		fx := testutil.NewTestFXService(t, db, provider, "USD")

		// Execute
		converted, _ := fx.Convert(ctx, 1500, "GBX", day, model.TimingPeriodEnd)

		// Assert
		if converted != 18.75 {
			t.Errorf("Expected 18.75, got %v", converted)
		}
	})

	t.Run("pence into a GBP settlement needs no rate at all", func(t *testing.T) {
		// Setup: the rescaled major unit is the settlement currency
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockFXProvider()
		fx := testutil.NewTestFXService(t, db, provider, "GBP")

		// Execute
		converted, warnings := fx.Convert(ctx, 1500, "GBp", day, model.TimingPeriodEnd)

		// Assert
		if converted != 15 {
			t.Errorf("Expected 15, got %v", converted)
		}
		if len(warnings) != 0 {
			t.Errorf("Expected no warnings, got %d", len(warnings))
		}
		if provider.CallCount != 0 {
			t.Errorf("Expected zero provider calls, got %d", provider.CallCount)
		}
	})

	t.Run("major-unit amounts pass through unscaled", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		provider := testutil.NewMockFXProvider().WithRate("EURUSD", 1.5)
		fx := testutil.NewTestFXService(t, db, provider, "USD")

		// Execute
		converted, _ := fx.Convert(ctx, 100, "EUR", day, model.TimingPeriodEnd)

		// Assert
		if converted != 150 {
			t.Errorf("Expected 150, got %v", converted)
		}
	})
}
