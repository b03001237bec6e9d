package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/apperrors"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// MatchResult is the complete output of one matching pass. It is built fresh
// per invocation and owns no shared mutable state.
type MatchResult struct {
	// Closes are the matched (lot, closing transaction) pairings in the
	// order they were produced.
	Closes []model.MatchedClose

	// Opens records every lot opened during the pass with its original
	// quantity, including lots that were later fully closed. Together with
	// Closes this reconstructs the quantity held at any intermediate point.
	Opens []model.Lot

	// OpenLots is the surviving open inventory, FIFO order per instrument.
	OpenLots []model.Lot

	// Orphans are closing quantities that exceeded all open inventory.
	Orphans []model.OrphanedClose

	Warnings []model.Warning
}

// MatcherService pairs opening and closing transactions under strict
// chronological FIFO accounting, handling long and short inventories,
// partial fills, pro-rata fee allocation, orphaned closes, and option
// expiry. Its state lives for a single Match call; concurrent pipeline runs
// never share lot queues.
type MatcherService struct{}

// NewMatcherService creates a new MatcherService.
func NewMatcherService() *MatcherService {
	return &MatcherService{}
}

// lotState is a mutable open lot inside one matching pass.
type lotState struct {
	lot model.Lot
}

// Match replays transactions in chronological order and produces matched
// closes, surviving open lots, and orphan records. Transactions sharing a
// timestamp are processed in ingestion order, never reordered, so repeated
// runs over the same input yield identical output.
//
// Parameters:
//   - transactions: canonical transactions; flagged records, cash/FX
//     artifacts, and dividends are skipped
//   - asOf: cutoff for option expiry synthesis; expired unclosed option
//     lots are terminally closed as of their expiry date
//
// Returns an error only on an inventory invariant violation, which
// indicates a correctness bug rather than sparse data.
func (s *MatcherService) Match(transactions []model.Transaction, asOf time.Time) (MatchResult, error) {
	ordered := make([]model.Transaction, len(transactions))
	copy(ordered, transactions)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].SeqNo < ordered[j].SeqNo
		}
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	result := MatchResult{
		Closes:   []model.MatchedClose{},
		Opens:    []model.Lot{},
		OpenLots: []model.Lot{},
		Orphans:  []model.OrphanedClose{},
		Warnings: []model.Warning{},
	}

	queues := make(map[string][]*lotState)
	lastTradePrice := make(map[string]float64)

	for _, t := range ordered {
		if !matchable(t) {
			continue
		}

		if t.Price > 0 {
			lastTradePrice[t.Instrument] = t.Price
		}

		side := model.SideLong
		if t.Quantity < 0 {
			side = model.SideShort
		}

		queue := queues[t.Instrument]

		if len(queue) == 0 || queue[0].lot.Side == side {
			lot := openLot(t, side)
			queues[t.Instrument] = append(queue, &lotState{lot: lot})
			result.Opens = append(result.Opens, lot)
			continue
		}

		if err := s.closeAgainst(&result, queues, t); err != nil {
			return MatchResult{}, err
		}
	}

	if err := s.expireOptions(&result, queues, lastTradePrice, asOf); err != nil {
		return MatchResult{}, err
	}

	// Surviving inventory, instrument-sorted for reproducible output.
	instruments := make([]string, 0, len(queues))
	for instrument := range queues {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)
	for _, instrument := range instruments {
		for _, state := range queues[instrument] {
			result.OpenLots = append(result.OpenLots, state.lot)
		}
	}

	return result, nil
}

// matchable reports whether a transaction participates in lot matching.
func matchable(t model.Transaction) bool {
	if t.Flagged() || t.Kind != model.KindTrade || t.Quantity == 0 {
		return false
	}
	switch t.InstrumentType {
	case model.InstrumentFXArtifact, model.InstrumentUnknown:
		return false
	}
	return true
}

// openLot builds a new inventory slice from an opening transaction.
// Remaining and OpenQuantity are magnitudes; direction lives in Side.
func openLot(t model.Transaction, side model.Side) model.Lot {
	quantity := math.Abs(t.Quantity)
	return model.Lot{
		Instrument:     t.Instrument,
		InstrumentType: t.InstrumentType,
		Side:           side,
		Remaining:      quantity,
		OpenQuantity:   quantity,
		OpenPrice:      t.Price,
		OpenFee:        t.Fee,
		Currency:       t.Currency,
		OpenTimestamp:  t.Timestamp,
		Institution:    t.Institution,
		Expiry:         t.Expiry,
	}
}

// closeAgainst consumes the oldest open lots first until either the closing
// transaction or the inventory is exhausted. A remainder beyond all open
// inventory becomes an orphaned close, never a position flip.
func (s *MatcherService) closeAgainst(result *MatchResult, queues map[string][]*lotState, t model.Transaction) error {
	queue := queues[t.Instrument]
	closeQuantity := math.Abs(t.Quantity)
	remaining := closeQuantity

	for remaining > 0 && len(queue) > 0 {
		head := queue[0]
		matched := math.Min(remaining, head.lot.Remaining)
		if matched <= 0 || matched > head.lot.Remaining {
			return fmt.Errorf("instrument %s: matched %f against lot remaining %f: %w",
				t.Instrument, matched, head.lot.Remaining, apperrors.ErrInventoryInvariant)
		}

		result.Closes = append(result.Closes, matchedClose(head.lot, t, matched, closeQuantity, false))

		head.lot.Remaining -= matched
		remaining -= matched
		if head.lot.Remaining < 0 {
			return fmt.Errorf("instrument %s: negative lot remaining: %w", t.Instrument, apperrors.ErrInventoryInvariant)
		}
		if head.lot.Remaining == 0 {
			queue = queue[1:]
		}
	}
	queues[t.Instrument] = queue

	if remaining > 0 {
		result.Orphans = append(result.Orphans, model.OrphanedClose{
			Instrument:  t.Instrument,
			Quantity:    remaining,
			Price:       t.Price,
			Currency:    t.Currency,
			Timestamp:   t.Timestamp,
			Institution: t.Institution,
		})
		result.Warnings = append(result.Warnings, model.Warning{
			Code:       model.WarningOrphanedClose,
			Message:    fmt.Sprintf("close of %g %s exceeds open inventory by %g; missing opening history", closeQuantity, t.Instrument, remaining),
			Instrument: t.Instrument,
			Date:       t.Timestamp.UTC().Format("2006-01-02"),
		})
	}

	return nil
}

// matchedClose builds the immutable record for one (lot, transaction)
// pairing. Realized gain is the price delta times matched quantity in the
// trade currency, gross of fees; fees from both sides are allocated
// pro-rata to the matched quantity.
func matchedClose(lot model.Lot, t model.Transaction, matched, closeQuantity float64, synthetic bool) model.MatchedClose {
	gain := (t.Price - lot.OpenPrice) * matched
	if lot.Side == model.SideShort {
		gain = (lot.OpenPrice - t.Price) * matched
	}

	fees := lot.OpenFee * (matched / lot.OpenQuantity)
	if closeQuantity > 0 {
		fees += t.Fee * (matched / closeQuantity)
	}

	return model.MatchedClose{
		Instrument:     lot.Instrument,
		InstrumentType: lot.InstrumentType,
		Side:           lot.Side,
		Quantity:       matched,
		OpenPrice:      lot.OpenPrice,
		ClosePrice:     t.Price,
		OpenTimestamp:  lot.OpenTimestamp,
		CloseTimestamp: t.Timestamp,
		Currency:       lot.Currency,
		RealizedGain:   gain,
		FeesAllocated:  fees,
		Synthetic:      synthetic,
	}
}

// expireOptions synthesizes terminal closes for option lots whose expiry has
// passed without a closing transaction. The close price is the contract's
// last-known trade price when one exists; otherwise the conservative $0
// terminal value with an explicit warning.
func (s *MatcherService) expireOptions(result *MatchResult, queues map[string][]*lotState, lastTradePrice map[string]float64, asOf time.Time) error {
	instruments := make([]string, 0, len(queues))
	for instrument := range queues {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)

	for _, instrument := range instruments {
		queue := queues[instrument]
		surviving := queue[:0]

		for _, state := range queue {
			lot := state.lot
			if lot.Expiry == nil || !lot.Expiry.Before(asOf) {
				surviving = append(surviving, state)
				continue
			}

			price := lastTradePrice[instrument]
			if price == 0 {
				result.Warnings = append(result.Warnings, model.Warning{
					Code:       model.WarningOptionExpiredNoPrice,
					Message:    fmt.Sprintf("option %s expired with no known trade price; closed at terminal value 0", instrument),
					Instrument: instrument,
					Date:       lot.Expiry.UTC().Format("2006-01-02"),
				})
			}

			terminal := model.Transaction{
				Instrument: instrument,
				Price:      price,
				Timestamp:  *lot.Expiry,
				Currency:   lot.Currency,
			}
			result.Closes = append(result.Closes, matchedClose(lot, terminal, lot.Remaining, 0, true))
		}

		if len(surviving) == 0 {
			delete(queues, instrument)
		} else {
			queues[instrument] = surviving
		}
	}

	return nil
}
