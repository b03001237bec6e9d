package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// TransactionBuilder provides a fluent interface for creating test
// transactions.
//
// Example usage:
//
//	// Simple buy with defaults
//	txn := testutil.NewTransaction().Build()
//
//	// Customized sell
//	txn := testutil.NewTransaction().
//	    WithInstrument("MSFT").
//	    WithQuantity(-40).
//	    WithPrice(15).
//	    OnDay(5).
//	    Build()
type TransactionBuilder struct {
	transaction model.Transaction
}

// BaseDay is the reference date test transactions are placed relative to.
var BaseDay = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewTransaction creates a TransactionBuilder with sensible defaults: a buy
// of 100 AAPL at 10 USD on day 1.
func NewTransaction() *TransactionBuilder {
	return &TransactionBuilder{
		transaction: model.Transaction{
			ID:             uuid.New().String(),
			Instrument:     "AAPL",
			InstrumentType: model.InstrumentEquity,
			Kind:           model.KindTrade,
			Quantity:       100,
			Price:          10,
			Currency:       "USD",
			Timestamp:      BaseDay,
			Institution:    "testbroker",
		},
	}
}

// WithInstrument sets the instrument symbol.
func (b *TransactionBuilder) WithInstrument(instrument string) *TransactionBuilder {
	b.transaction.Instrument = instrument
	return b
}

// WithType sets the instrument classification.
func (b *TransactionBuilder) WithType(t model.InstrumentType) *TransactionBuilder {
	b.transaction.InstrumentType = t
	return b
}

// WithQuantity sets the signed quantity.
func (b *TransactionBuilder) WithQuantity(quantity float64) *TransactionBuilder {
	b.transaction.Quantity = quantity
	return b
}

// WithPrice sets the fill price.
func (b *TransactionBuilder) WithPrice(price float64) *TransactionBuilder {
	b.transaction.Price = price
	return b
}

// WithFee sets the transaction fee.
func (b *TransactionBuilder) WithFee(fee float64) *TransactionBuilder {
	b.transaction.Fee = fee
	return b
}

// WithCurrency sets the trade currency.
func (b *TransactionBuilder) WithCurrency(currency string) *TransactionBuilder {
	b.transaction.Currency = currency
	return b
}

// WithInstitution sets the source institution.
func (b *TransactionBuilder) WithInstitution(institution string) *TransactionBuilder {
	b.transaction.Institution = institution
	return b
}

// WithExternalID sets the provider's external id.
func (b *TransactionBuilder) WithExternalID(id string) *TransactionBuilder {
	b.transaction.ExternalID = id
	return b
}

// WithExpiry sets the option expiry date.
func (b *TransactionBuilder) WithExpiry(expiry time.Time) *TransactionBuilder {
	b.transaction.Expiry = &expiry
	return b
}

// WithSeqNo sets the ingestion sequence number.
func (b *TransactionBuilder) WithSeqNo(seq int) *TransactionBuilder {
	b.transaction.SeqNo = seq
	return b
}

// AsDividend marks the record as a dividend carrying the given gross amount.
func (b *TransactionBuilder) AsDividend(amount float64) *TransactionBuilder {
	b.transaction.Kind = model.KindDividend
	b.transaction.Quantity = 0
	b.transaction.Price = amount
	return b
}

// Flagged marks the record as excluded from matching.
func (b *TransactionBuilder) Flagged(reason string) *TransactionBuilder {
	b.transaction.FlagReason = reason
	return b
}

// OnDay places the transaction on the given day relative to BaseDay.
func (b *TransactionBuilder) OnDay(day int) *TransactionBuilder {
	b.transaction.Timestamp = BaseDay.AddDate(0, 0, day-1)
	return b
}

// At places the transaction at an absolute timestamp.
func (b *TransactionBuilder) At(timestamp time.Time) *TransactionBuilder {
	b.transaction.Timestamp = timestamp
	return b
}

// Build returns the constructed transaction.
func (b *TransactionBuilder) Build() model.Transaction {
	return b.transaction
}

// Day returns the date `day` days after BaseDay's day 1.
func Day(day int) time.Time {
	return BaseDay.AddDate(0, 0, day-1)
}
