package validation_test

import (
	"testing"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/api/request"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/validation"
)

// TestValidateManualRecord tests backfill record validation.
func TestValidateManualRecord(t *testing.T) {
	valid := request.ManualRecordRequest{
		Symbol:    "AAPL",
		Quantity:  100,
		Price:     10,
		Currency:  "USD",
		Timestamp: "2024-01-01",
	}

	t.Run("converts a valid record", func(t *testing.T) {
		// Execute
		record, err := validation.ValidateManualRecord(valid)
		if err != nil {
			t.Fatalf("Validation failed: %v", err)
		}

		// Assert
		if record.Symbol != "AAPL" || record.Quantity != 100 {
			t.Errorf("Unexpected record: %+v", record)
		}
		if record.Timestamp.IsZero() {
			t.Error("Expected a parsed timestamp")
		}
	})

	t.Run("parses an optional expiry", func(t *testing.T) {
		// Setup
		req := valid
		expiry := "2024-03-15"
		req.Expiry = &expiry

		// Execute
		record, err := validation.ValidateManualRecord(req)
		if err != nil {
			t.Fatalf("Validation failed: %v", err)
		}

		// Assert
		if record.Expiry == nil || record.Expiry.Format("2006-01-02") != "2024-03-15" {
			t.Errorf("Expected expiry parsed, got %v", record.Expiry)
		}
	})

	t.Run("dividend amounts satisfy the quantity requirement", func(t *testing.T) {
		// Setup
		req := request.ManualRecordRequest{
			Symbol:     "AAPL",
			RecordType: "DIV",
			Amount:     24.5,
			Currency:   "USD",
			Timestamp:  "2024-01-01",
		}

		// Execute
		_, err := validation.ValidateManualRecord(req)

		// Assert
		if err != nil {
			t.Errorf("Expected a dividend record to validate, got %v", err)
		}
	})

	t.Run("collects field errors", func(t *testing.T) {
		// Execute
		_, err := validation.ValidateManualRecord(request.ManualRecordRequest{Timestamp: "bad"})

		// Assert
		if err == nil {
			t.Fatal("Expected validation errors")
		}
		verr, ok := err.(*validation.Error)
		if !ok {
			t.Fatalf("Expected *validation.Error, got %T", err)
		}
		for _, field := range []string{"symbol", "quantity", "currency", "timestamp"} {
			if _, present := verr.Fields[field]; !present {
				t.Errorf("Expected a %s field error", field)
			}
		}
	})
}

// TestValidateGatewayConfig tests Flex credential validation.
func TestValidateGatewayConfig(t *testing.T) {
	t.Run("accepts complete credentials", func(t *testing.T) {
		// Execute
		err := validation.ValidateGatewayConfig(request.GatewayConfigRequest{
			Institution: "ibkr",
			FlexToken:   "123456789012345678901234",
			FlexQueryID: 987654,
		})

		// Assert
		if err != nil {
			t.Errorf("Expected valid credentials, got %v", err)
		}
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		// Execute
		err := validation.ValidateGatewayConfig(request.GatewayConfigRequest{})

		// Assert
		if err == nil {
			t.Fatal("Expected validation errors")
		}
		verr, ok := err.(*validation.Error)
		if !ok {
			t.Fatalf("Expected *validation.Error, got %T", err)
		}
		if len(verr.Fields) != 3 {
			t.Errorf("Expected 3 field errors, got %d", len(verr.Fields))
		}
	})
}
