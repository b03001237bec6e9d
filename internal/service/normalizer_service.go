package service

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// NormalizerService converts provider-native activity records into canonical
// transactions. Classification is the only side effect: the normalizer never
// calls pricing providers and never drops a record. Records without a
// resolvable instrument identity are flagged so later stages can exclude
// them explicitly and report why.
type NormalizerService struct{}

// NewNormalizerService creates a new NormalizerService.
func NewNormalizerService() *NormalizerService {
	return &NormalizerService{}
}

// Normalize converts raw source records into canonical transactions,
// deduplicated within the batch and sorted into canonical replay order
// (timestamp, then arrival order for equal timestamps).
//
// Parameters:
//   - records: raw provider records, any order, any mix of institutions
//
// Returns the canonical transaction list. Flagged records are included with
// FlagReason set.
func (s *NormalizerService) Normalize(records []model.SourceRecord) []model.Transaction {
	transactions := make([]model.Transaction, 0, len(records))
	seen := make(map[string]bool, len(records))

	for i, record := range records {
		t := model.Transaction{
			ID:          uuid.New().String(),
			ExternalID:  record.ExternalID,
			Instrument:  strings.TrimSpace(record.Symbol),
			Kind:        classifyKind(record.RecordType),
			Quantity:    record.Quantity,
			Price:       record.Price,
			Fee:         record.Fee,
			// Currency case is preserved: minor-unit codes like GBp are
			// distinguished from their major unit by case.
			Currency:    strings.TrimSpace(record.Currency),
			Timestamp:   record.Timestamp.UTC(),
			Institution: record.Institution,
			Description: record.Description,
			Expiry:      record.Expiry,

			// SeqNo preserves batch arrival order until persistence
			// assigns the durable sequence.
			SeqNo: i,
		}

		t.InstrumentType = classifyInstrument(record)

		if t.Kind == model.KindDividend {
			// Dividend cash events carry the gross amount in Price.
			t.Quantity = 0
			t.Price = record.Amount
		}

		if t.Instrument == "" && t.InstrumentType != model.InstrumentFXArtifact {
			t.FlagReason = "no resolvable instrument identity"
		}

		key := t.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true

		transactions = append(transactions, t)
	}

	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Timestamp.Before(transactions[j].Timestamp)
	})

	return transactions
}

// classifyKind maps a provider record type onto the canonical transaction
// kind.
func classifyKind(recordType string) model.TransactionKind {
	if strings.EqualFold(recordType, "DIV") {
		return model.KindDividend
	}
	return model.KindTrade
}

// classifyInstrument maps provider-native asset categories onto the
// canonical instrument classes used for filtering and pricing-route
// selection. Unknown categories fall back to heuristics on the symbol shape
// before giving up.
func classifyInstrument(record model.SourceRecord) model.InstrumentType {
	switch strings.ToUpper(strings.TrimSpace(record.RecordType)) {
	case "STK", "DIV":
		return model.InstrumentEquity
	case "OPT":
		return model.InstrumentOption
	case "FUT":
		return model.InstrumentFuture
	case "CASH", "FX":
		return model.InstrumentFXArtifact
	}

	// Option symbols carry an expiry; currency-pair symbols look like
	// EUR.USD. Anything else without a recognizable category is unknown.
	if record.Expiry != nil {
		return model.InstrumentOption
	}
	if len(record.Symbol) == 7 && strings.Count(record.Symbol, ".") == 1 {
		return model.InstrumentFXArtifact
	}
	if record.Symbol != "" {
		return model.InstrumentEquity
	}
	return model.InstrumentUnknown
}
