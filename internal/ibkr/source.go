package ibkr

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// Source adapts the Flex Web Service into a stream of provider-agnostic
// activity records. Trades keep their asset category as the record type;
// dividend cash transactions come through as DIV records with the gross
// amount.
type Source struct {
	client      Client
	institution string
	token       string
	queryID     int
}

// NewSource creates a transaction source for one IBKR account.
func NewSource(client Client, institution, token string, queryID int) *Source {
	return &Source{
		client:      client,
		institution: institution,
		token:       token,
		queryID:     queryID,
	}
}

// Institution returns the institution label stamped on every record.
func (s *Source) Institution() string {
	return s.institution
}

// Fetch requests a Flex statement and converts it into source records. The
// since parameter is a lower bound applied client-side: the Flex query
// period is configured on the IBKR side, so older rows may still arrive and
// are filtered here.
func (s *Source) Fetch(ctx context.Context, since time.Time) ([]model.SourceRecord, error) {
	report, _, err := s.client.RequestFlexReport(ctx, s.token, s.queryID)
	if err != nil {
		return nil, err
	}
	return s.convert(report, since)
}

func (s *Source) convert(report FlexQueryResponse, since time.Time) ([]model.SourceRecord, error) {
	statement := report.FlexStatements.FlexStatement

	records := make([]model.SourceRecord, 0, len(statement.Trades.Trade)+len(statement.CashTransactions.CashTransaction))

	for _, trade := range statement.Trades.Trade {
		timestamp, err := parseFlexDate(trade.TradeDate)
		if err != nil {
			return nil, fmt.Errorf("trade %d: %w", trade.TransactionID, err)
		}
		if timestamp.Before(since) {
			continue
		}

		record := model.SourceRecord{
			ExternalID:  fmt.Sprintf("%d", trade.TransactionID),
			Institution: s.institution,
			Symbol:      trade.Symbol,
			Description: trade.Description,
			RecordType:  trade.AssetCategory,
			Quantity:    trade.Quantity,
			Price:       trade.TradePrice,
			Fee:         math.Abs(trade.IbCommission),
			Currency:    trade.Currency,
			Timestamp:   timestamp,
		}

		if trade.Expiry != "" {
			expiry, err := parseFlexDate(trade.Expiry)
			if err != nil {
				return nil, fmt.Errorf("trade %d expiry: %w", trade.TransactionID, err)
			}
			record.Expiry = &expiry
		}

		records = append(records, record)
	}

	for _, cash := range statement.CashTransactions.CashTransaction {
		if !strings.Contains(cash.Type, "Dividend") {
			continue
		}

		timestamp, err := parseFlexDateTime(cash.DateTime)
		if err != nil {
			return nil, fmt.Errorf("cash transaction %d: %w", cash.TransactionID, err)
		}
		if timestamp.Before(since) {
			continue
		}

		records = append(records, model.SourceRecord{
			ExternalID:  fmt.Sprintf("%d", cash.TransactionID),
			Institution: s.institution,
			Symbol:      cash.Symbol,
			Description: cash.Description,
			RecordType:  "DIV",
			Amount:      cash.Amount,
			Currency:    cash.Currency,
			Timestamp:   timestamp,
		})
	}

	return records, nil
}

// parseFlexDate parses the yyyyMMdd date format used by Flex statements.
func parseFlexDate(value string) (time.Time, error) {
	t, err := time.Parse("20060102", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid flex date %q: %w", value, err)
	}
	return t.UTC(), nil
}

// parseFlexDateTime parses the yyyyMMdd;HHmmss timestamp format, falling
// back to a bare date when the time part is absent.
func parseFlexDateTime(value string) (time.Time, error) {
	if t, err := time.Parse("20060102;150405", value); err == nil {
		return t.UTC(), nil
	}
	return parseFlexDate(value)
}
