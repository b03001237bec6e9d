package ibkr_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/ibkr"
)

// stubClient returns a canned statement without touching the network.
type stubClient struct {
	report ibkr.FlexQueryResponse
	err    error
}

func (c *stubClient) RequestFlexReport(_ context.Context, _ string, _ int) (ibkr.FlexQueryResponse, []byte, error) {
	return c.report, nil, c.err
}

func sampleStatement() ibkr.FlexQueryResponse {
	var report ibkr.FlexQueryResponse
	report.FlexStatements.FlexStatement.Trades.Trade = []ibkr.FlexTrade{
		{
			TransactionID: 1001,
			AssetCategory: "STK",
			Symbol:        "AAPL",
			Quantity:      10,
			TradePrice:    150,
			IbCommission:  -1.25,
			Currency:      "USD",
			TradeDate:     "20240105",
		},
		{
			TransactionID: 1002,
			AssetCategory: "OPT",
			Symbol:        "AAPL 240119C00150000",
			Quantity:      -1,
			TradePrice:    2.5,
			IbCommission:  -0.65,
			Currency:      "USD",
			TradeDate:     "20240110",
			Expiry:        "20240119",
		},
	}
	report.FlexStatements.FlexStatement.CashTransactions.CashTransaction = []ibkr.FlexCashTransaction{
		{
			TransactionID: 2001,
			Type:          "Dividends",
			Symbol:        "AAPL",
			Amount:        24.50,
			Currency:      "USD",
			DateTime:      "20240112;143000",
		},
		{
			TransactionID: 2002,
			Type:          "Withholding Tax",
			Symbol:        "AAPL",
			Amount:        -3.68,
			Currency:      "USD",
			DateTime:      "20240112;143000",
		},
	}
	return report
}

// TestSource_Fetch tests Flex statement conversion into source records.
//
// WHY: The conversion decides what the rest of the pipeline ever sees of an
// IBKR account: commissions must become positive fees, option expiries must
// survive, and only dividend cash rows may pass through.
func TestSource_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("converts trades and dividends", func(t *testing.T) {
		// Setup
		source := ibkr.NewSource(&stubClient{report: sampleStatement()}, "ibkr", "token", 1)

		// Execute
		records, err := source.Fetch(ctx, time.Time{})
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}

		// Assert: two trades plus the dividend; withholding tax filtered out
		if len(records) != 3 {
			t.Fatalf("Expected 3 records, got %d", len(records))
		}

		stock := records[0]
		if stock.ExternalID != "1001" || stock.RecordType != "STK" {
			t.Errorf("Unexpected stock record: %+v", stock)
		}
		if stock.Fee != 1.25 {
			t.Errorf("Expected the commission as a positive fee, got %v", stock.Fee)
		}
		if !stock.Timestamp.Equal(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("Unexpected trade date: %v", stock.Timestamp)
		}

		option := records[1]
		if option.Expiry == nil || !option.Expiry.Equal(time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("Expected expiry 2024-01-19, got %v", option.Expiry)
		}

		dividend := records[2]
		if dividend.RecordType != "DIV" || dividend.Amount != 24.50 {
			t.Errorf("Unexpected dividend record: %+v", dividend)
		}
		if dividend.Timestamp.Hour() != 14 || dividend.Timestamp.Minute() != 30 {
			t.Errorf("Expected the statement time kept, got %v", dividend.Timestamp)
		}
	})

	t.Run("filters rows older than the watermark", func(t *testing.T) {
		// Setup: only the option trade and the dividend are newer
		source := ibkr.NewSource(&stubClient{report: sampleStatement()}, "ibkr", "token", 1)
		since := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

		// Execute
		records, err := source.Fetch(ctx, since)
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}

		// Assert
		if len(records) != 2 {
			t.Fatalf("Expected 2 records after the watermark, got %d", len(records))
		}
		if records[0].ExternalID != "1002" {
			t.Errorf("Expected the option trade first, got %s", records[0].ExternalID)
		}
	})

	t.Run("propagates client failures", func(t *testing.T) {
		// Setup
		wantErr := errors.New("statement service down")
		source := ibkr.NewSource(&stubClient{err: wantErr}, "ibkr", "token", 1)

		// Execute
		_, err := source.Fetch(ctx, time.Time{})

		// Assert
		if !errors.Is(err, wantErr) {
			t.Errorf("Expected the client error propagated, got %v", err)
		}
	})

	t.Run("stamps the configured institution", func(t *testing.T) {
		// Setup
		source := ibkr.NewSource(&stubClient{report: sampleStatement()}, "ibkr-margin", "token", 1)

		// Execute
		records, err := source.Fetch(ctx, time.Time{})
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}

		// Assert
		if source.Institution() != "ibkr-margin" {
			t.Errorf("Expected institution ibkr-margin, got %s", source.Institution())
		}
		for _, record := range records {
			if record.Institution != "ibkr-margin" {
				t.Errorf("Expected every record stamped, got %s", record.Institution)
			}
		}
	})
}
