package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// TimelineService reconstructs the instrument inventory held at any point in
// time. Quantities always derive from the matcher's lot state rather than a
// separately maintained running total, so the two can never diverge.
type TimelineService struct {
	matcher *MatcherService
}

// NewTimelineService creates a new TimelineService.
func NewTimelineService(matcher *MatcherService) *TimelineService {
	return &TimelineService{matcher: matcher}
}

// PositionsAsOf replays all transactions up to and including the target date
// and nets the surviving lot quantities per instrument.
//
// Parameters:
//   - transactions: canonical transactions, any order
//   - asOf: inclusive cutoff date
//
// Returns positions sorted by instrument, plus any matcher warnings
// encountered during the replay. Sparse history degrades to warnings; only
// an inventory invariant violation returns an error.
func (s *TimelineService) PositionsAsOf(transactions []model.Transaction, asOf time.Time) ([]model.Position, []model.Warning, error) {
	upTo := make([]model.Transaction, 0, len(transactions))
	for _, t := range transactions {
		if !t.Timestamp.After(asOf) {
			upTo = append(upTo, t)
		}
	}

	result, err := s.matcher.Match(upTo, asOf)
	if err != nil {
		return nil, nil, err
	}

	return positionsFromLots(result.OpenLots, asOf), result.Warnings, nil
}

// CurrentPositions produces the live holdings set: the full-history lot
// state merged with an optional current-holdings snapshot, deduplicated by
// instrument. When both know an instrument, the replayed lot state wins and
// a divergence between the two is surfaced as a warning, since the snapshot
// may lag transactions not yet reflected in it.
func (s *TimelineService) CurrentPositions(transactions []model.Transaction, snapshot []model.Position, asOf time.Time) ([]model.Position, []model.Warning, error) {
	derived, warnings, err := s.PositionsAsOf(transactions, asOf)
	if err != nil {
		return nil, nil, err
	}

	byInstrument := make(map[string]model.Position, len(derived))
	for _, p := range derived {
		byInstrument[p.Instrument] = p
	}

	merged := make([]model.Position, len(derived))
	copy(merged, derived)

	for _, snap := range snapshot {
		existing, ok := byInstrument[snap.Instrument]
		if !ok {
			snap.AsOf = asOf
			merged = append(merged, snap)
			byInstrument[snap.Instrument] = snap
			continue
		}
		if existing.Quantity != snap.Quantity {
			warnings = append(warnings, model.Warning{
				Code:       model.WarningSnapshotDivergence,
				Message:    fmt.Sprintf("snapshot quantity %g for %s diverges from replayed quantity %g", snap.Quantity, snap.Instrument, existing.Quantity),
				Instrument: snap.Instrument,
				Date:       asOf.UTC().Format("2006-01-02"),
			})
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Instrument < merged[j].Instrument
	})

	return merged, warnings, nil
}

// positionsFromLots nets open lots into signed per-instrument quantities.
// Long inventory counts positive, short negative; instruments netting to
// zero are dropped.
func positionsFromLots(lots []model.Lot, asOf time.Time) []model.Position {
	byInstrument := make(map[string]*model.Position)

	for _, lot := range lots {
		quantity := lot.Remaining
		if lot.Side == model.SideShort {
			quantity = -quantity
		}

		if p, ok := byInstrument[lot.Instrument]; ok {
			p.Quantity += quantity
			continue
		}
		byInstrument[lot.Instrument] = &model.Position{
			Instrument:     lot.Instrument,
			InstrumentType: lot.InstrumentType,
			Quantity:       quantity,
			Currency:       lot.Currency,
			AsOf:           asOf,
		}
	}

	positions := make([]model.Position, 0, len(byInstrument))
	for _, p := range byInstrument {
		if p.Quantity == 0 {
			continue
		}
		positions = append(positions, *p)
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Instrument < positions[j].Instrument
	})

	return positions
}
