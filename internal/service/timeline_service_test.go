package service_test

import (
	"testing"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/service"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/testutil"
)

// TestTimelineService_PositionsAsOf tests point-in-time position
// reconstruction.
//
// WHY: Positions are always derived from the lot state rather than a
// maintained running total. These tests pin that derivation to known
// histories at different cutoff dates.
func TestTimelineService_PositionsAsOf(t *testing.T) {
	timeline := service.NewTimelineService(service.NewMatcherService())

	transactions := []model.Transaction{
		testutil.NewTransaction().WithQuantity(100).WithPrice(10).OnDay(1).Build(),
		testutil.NewTransaction().WithQuantity(-40).WithPrice(15).OnDay(5).WithSeqNo(1).Build(),
		testutil.NewTransaction().WithInstrument("MSFT").WithQuantity(-30).WithPrice(50).OnDay(6).WithSeqNo(2).Build(),
	}

	t.Run("reconstructs holdings before the partial close", func(t *testing.T) {
		// Execute
		positions, _, err := timeline.PositionsAsOf(transactions, testutil.Day(3))
		if err != nil {
			t.Fatalf("PositionsAsOf failed: %v", err)
		}

		// Assert: only the day-1 buy counts
		if len(positions) != 1 {
			t.Fatalf("Expected 1 position, got %d", len(positions))
		}
		if positions[0].Instrument != "AAPL" || positions[0].Quantity != 100 {
			t.Errorf("Expected AAPL 100, got %s %v", positions[0].Instrument, positions[0].Quantity)
		}
	})

	t.Run("reflects closes and shorts after the cutoff advances", func(t *testing.T) {
		// Execute
		positions, _, err := timeline.PositionsAsOf(transactions, testutil.Day(10))
		if err != nil {
			t.Fatalf("PositionsAsOf failed: %v", err)
		}

		// Assert: AAPL netted to 60, MSFT short shows as negative
		if len(positions) != 2 {
			t.Fatalf("Expected 2 positions, got %d", len(positions))
		}
		if positions[0].Instrument != "AAPL" || positions[0].Quantity != 60 {
			t.Errorf("Expected AAPL 60, got %s %v", positions[0].Instrument, positions[0].Quantity)
		}
		if positions[1].Instrument != "MSFT" || positions[1].Quantity != -30 {
			t.Errorf("Expected MSFT -30, got %s %v", positions[1].Instrument, positions[1].Quantity)
		}
	})

	t.Run("fully closed instruments drop out", func(t *testing.T) {
		// Setup
		closedOut := []model.Transaction{
			testutil.NewTransaction().WithQuantity(100).WithPrice(10).OnDay(1).Build(),
			testutil.NewTransaction().WithQuantity(-100).WithPrice(12).OnDay(2).WithSeqNo(1).Build(),
		}

		// Execute
		positions, _, err := timeline.PositionsAsOf(closedOut, testutil.Day(5))
		if err != nil {
			t.Fatalf("PositionsAsOf failed: %v", err)
		}

		// Assert
		if len(positions) != 0 {
			t.Errorf("Expected no positions, got %d", len(positions))
		}
	})
}

// TestTimelineService_CurrentPositions tests merging replayed holdings with a
// current-holdings snapshot.
//
// WHY: A broker snapshot can know instruments the transaction history never
// mentions (transfers in) and can lag recent trades. The merge rules decide
// which source wins and when to warn.
func TestTimelineService_CurrentPositions(t *testing.T) {
	timeline := service.NewTimelineService(service.NewMatcherService())
	asOf := testutil.Day(10)

	transactions := []model.Transaction{
		testutil.NewTransaction().WithQuantity(100).WithPrice(10).OnDay(1).Build(),
	}

	t.Run("snapshot-only instruments are appended", func(t *testing.T) {
		// Setup
		snapshot := []model.Position{
			{Instrument: "VWRL", InstrumentType: model.InstrumentEquity, Quantity: 25, Currency: "EUR"},
		}

		// Execute
		positions, warnings, err := timeline.CurrentPositions(transactions, snapshot, asOf)
		if err != nil {
			t.Fatalf("CurrentPositions failed: %v", err)
		}

		// Assert: both instruments present, sorted, no divergence
		if len(positions) != 2 {
			t.Fatalf("Expected 2 positions, got %d", len(positions))
		}
		if positions[0].Instrument != "AAPL" || positions[1].Instrument != "VWRL" {
			t.Errorf("Expected sorted AAPL, VWRL; got %s, %s", positions[0].Instrument, positions[1].Instrument)
		}
		if positions[1].Quantity != 25 {
			t.Errorf("Expected snapshot quantity 25, got %v", positions[1].Quantity)
		}
		if hasWarning(warnings, model.WarningSnapshotDivergence) {
			t.Error("Expected no divergence warning")
		}
	})

	t.Run("replayed quantity wins and divergence warns", func(t *testing.T) {
		// Setup: snapshot lags the transaction history
		snapshot := []model.Position{
			{Instrument: "AAPL", InstrumentType: model.InstrumentEquity, Quantity: 80, Currency: "USD"},
		}

		// Execute
		positions, warnings, err := timeline.CurrentPositions(transactions, snapshot, asOf)
		if err != nil {
			t.Fatalf("CurrentPositions failed: %v", err)
		}

		// Assert
		if len(positions) != 1 {
			t.Fatalf("Expected 1 position, got %d", len(positions))
		}
		if positions[0].Quantity != 100 {
			t.Errorf("Expected replayed quantity 100 to win, got %v", positions[0].Quantity)
		}
		if !hasWarning(warnings, model.WarningSnapshotDivergence) {
			t.Error("Expected a snapshot_divergence warning")
		}
	})

	t.Run("agreeing snapshot stays silent", func(t *testing.T) {
		// Setup
		snapshot := []model.Position{
			{Instrument: "AAPL", InstrumentType: model.InstrumentEquity, Quantity: 100, Currency: "USD"},
		}

		// Execute
		_, warnings, err := timeline.CurrentPositions(transactions, snapshot, asOf)
		if err != nil {
			t.Fatalf("CurrentPositions failed: %v", err)
		}

		// Assert
		if hasWarning(warnings, model.WarningSnapshotDivergence) {
			t.Error("Expected no divergence warning when quantities agree")
		}
	})
}
