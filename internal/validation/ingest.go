package validation

import (
	"strings"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/api/request"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// ValidateManualRecord validates and converts one manually entered backfill
// record into a source record ready for normalization.
func ValidateManualRecord(req request.ManualRecordRequest) (model.SourceRecord, error) {
	errors := make(map[string]string)

	if strings.TrimSpace(req.Symbol) == "" {
		errors["symbol"] = "symbol is required"
	}
	if req.Quantity == 0 && req.Amount == 0 {
		errors["quantity"] = "quantity or amount is required"
	}
	if strings.TrimSpace(req.Currency) == "" {
		errors["currency"] = "currency is required"
	}

	timestamp, err := ParseTime(req.Timestamp)
	if err != nil {
		errors["timestamp"] = "must be a date in 2006-01-02 or RFC3339 format"
	}

	record := model.SourceRecord{
		Institution: req.Institution,
		Symbol:      strings.TrimSpace(req.Symbol),
		RecordType:  req.RecordType,
		Quantity:    req.Quantity,
		Price:       req.Price,
		Amount:      req.Amount,
		Fee:         req.Fee,
		Currency:    strings.TrimSpace(req.Currency),
		Timestamp:   timestamp,
		Description: req.Description,
	}

	if req.Expiry != nil {
		expiry, err := ParseTime(*req.Expiry)
		if err != nil {
			errors["expiry"] = "must be a date in 2006-01-02 or RFC3339 format"
		}
		record.Expiry = &expiry
	}

	if len(errors) > 0 {
		return model.SourceRecord{}, &Error{Fields: errors}
	}
	return record, nil
}

// ValidateGatewayConfig validates Flex credential input.
func ValidateGatewayConfig(req request.GatewayConfigRequest) error {
	errors := make(map[string]string)

	if strings.TrimSpace(req.Institution) == "" {
		errors["institution"] = "institution is required"
	}
	if strings.TrimSpace(req.FlexToken) == "" {
		errors["flexToken"] = "flexToken is required"
	}
	if req.FlexQueryID == 0 {
		errors["flexQueryId"] = "flexQueryId is required"
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}
