package model

import (
	"fmt"
	"time"
)

// InstrumentType classifies a transaction's instrument for filtering and
// pricing-route selection.
type InstrumentType string

// Instrument classifications assigned by the normalizer.
const (
	InstrumentEquity     InstrumentType = "equity"
	InstrumentOption     InstrumentType = "option"
	InstrumentFuture     InstrumentType = "future"
	InstrumentFXArtifact InstrumentType = "fx"
	InstrumentUnknown    InstrumentType = "unknown"
)

// Derivative reports whether the instrument class is routed to the
// exchange-gateway pricing fallback.
func (t InstrumentType) Derivative() bool {
	return t == InstrumentOption || t == InstrumentFuture
}

// TransactionKind distinguishes inventory-affecting trades from cash events.
type TransactionKind string

// Canonical transaction kinds. Dividend records carry the gross cash amount
// in Price with Quantity zero.
const (
	KindTrade    TransactionKind = "trade"
	KindDividend TransactionKind = "dividend"
)

// Transaction is the canonical record every provider-native activity record is
// normalized into. Immutable once ingested; quantity sign encodes buy/sell.
type Transaction struct {
	ID             string          `json:"id"`
	ExternalID     string          `json:"externalId"`
	Instrument     string          `json:"instrument"`
	InstrumentType InstrumentType  `json:"instrumentType"`
	Kind           TransactionKind `json:"kind"`
	Quantity       float64         `json:"quantity"`
	Price          float64         `json:"price"`
	Fee            float64         `json:"fee"`
	Currency       string          `json:"currency"`
	Timestamp      time.Time       `json:"timestamp"`
	Institution    string          `json:"institution"`
	Expiry         *time.Time      `json:"expiry,omitempty"`
	Description    string          `json:"description,omitempty"`

	// SeqNo preserves ingestion order so that transactions sharing a
	// timestamp are always replayed in the same order.
	SeqNo int `json:"seqNo"`

	// FlagReason is set when the record lacks a resolvable instrument
	// identity. Flagged records are excluded from matching, not dropped.
	FlagReason string `json:"flagReason,omitempty"`
}

// Flagged reports whether the record was flagged during normalization.
func (t Transaction) Flagged() bool {
	return t.FlagReason != ""
}

// DedupKey returns the cross-provider deduplication key: the provider's
// external id when present, otherwise a composite of the fields that identify
// a fill uniquely enough for manual backfill records.
func (t Transaction) DedupKey() string {
	if t.ExternalID != "" {
		return t.Institution + "|" + t.ExternalID
	}
	return fmt.Sprintf("%s|%s|%s|%g|%g",
		t.Institution, t.Timestamp.UTC().Format(time.RFC3339), t.Instrument, t.Quantity, t.Price)
}

// SourceRecord is the provider-agnostic raw activity record handed to the
// normalizer by a TransactionSource. RecordType carries the provider's native
// classification (e.g. IBKR asset categories STK/OPT/FUT/CASH, or DIV for
// dividend cash events, whose gross amount lands in Amount).
type SourceRecord struct {
	ExternalID  string
	Institution string
	Symbol      string
	Description string
	RecordType  string
	Quantity    float64
	Price       float64
	Amount      float64
	Fee         float64
	Currency    string
	Timestamp   time.Time
	Expiry      *time.Time
}
