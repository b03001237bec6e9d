package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/repository"
)

// PerformanceService runs the full transaction-to-performance pipeline:
// match lots, build the position timeline, resolve prices, normalize
// currencies, and aggregate a NAV series with realized gains, income,
// coverage, and structured warnings.
//
// A run can succeed with warnings; only caller cancellation and inventory
// invariant violations surface as errors.
type PerformanceService struct {
	matcher      *MatcherService
	timeline     *TimelineService
	prices       *PriceService
	fx           *FXService
	transactions *repository.TransactionRepository
}

// NewPerformanceService creates a new PerformanceService.
func NewPerformanceService(matcher *MatcherService, timeline *TimelineService, prices *PriceService, fx *FXService, transactions *repository.TransactionRepository) *PerformanceService {
	return &PerformanceService{
		matcher:      matcher,
		timeline:     timeline,
		prices:       prices,
		fx:           fx,
		transactions: transactions,
	}
}

// quantityEvent is one dated inventory change derived from the matcher's
// output: lot opens add quantity and cost, matched closes remove the matched
// quantity at its open price.
type quantityEvent struct {
	date       time.Time
	instrument string
	iType      model.InstrumentType
	quantity   float64
	cost       float64 // in currency
	currency   string
}

// cashEvent is one dated realized-gain or income amount in its trade
// currency.
type cashEvent struct {
	date     time.Time
	amount   float64
	currency string
}

// ComputeFromStore loads the stored transaction history and computes
// performance over it.
func (s *PerformanceService) ComputeFromStore(ctx context.Context, snapshot []model.Position, filter model.PerformanceFilter) (model.PerformanceResult, error) {
	transactions, err := s.transactions.GetTransactions(filter.Institution, time.Time{})
	if err != nil {
		return model.PerformanceResult{}, err
	}
	return s.ComputeRealizedPerformance(ctx, transactions, snapshot, filter)
}

// ComputeRealizedPerformance is the single pipeline entry point.
//
// The institution filter changes matchable inventory, so it is applied to
// the transaction set before lot matching. The date window is
// presentational and sliced off the already-built NAV series. Zero matched
// transactions is a valid state: a snapshot-only result is produced with
// coverage noting those positions' price status.
//
// Parameters:
//   - transactions: canonical transaction history
//   - snapshot: optional current-holdings snapshot merged into the live set
//   - filter: institution and date-range filters
//
// Returns a freshly built result; it owns no shared mutable state.
func (s *PerformanceService) ComputeRealizedPerformance(ctx context.Context, transactions []model.Transaction, snapshot []model.Position, filter model.PerformanceFilter) (model.PerformanceResult, error) {
	filtered := filterByInstitution(transactions, filter.Institution)
	snapshotFiltered := filterPositionsByInstitution(snapshot, filter.Institution)

	asOf := filter.To
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	asOf = asOf.UTC().Truncate(24 * time.Hour)

	warnings := []model.Warning{}
	for _, t := range filtered {
		if t.Flagged() {
			warnings = append(warnings, model.Warning{
				Code:       model.WarningUnresolvedInstrument,
				Message:    fmt.Sprintf("transaction %s excluded from matching: %s", t.ID, t.FlagReason),
				Instrument: t.Instrument,
				Date:       t.Timestamp.UTC().Format("2006-01-02"),
			})
		}
	}

	matched, err := s.matcher.Match(filtered, asOf)
	if err != nil {
		return model.PerformanceResult{}, err
	}
	warnings = append(warnings, matched.Warnings...)

	positions, timelineWarnings, err := s.timeline.CurrentPositions(filtered, snapshotFiltered, asOf)
	if err != nil {
		return model.PerformanceResult{}, err
	}
	warnings = append(warnings, timelineWarnings...)

	quantityEvents, realizedEvents, incomeEvents, feesTotalEvents := buildEvents(matched, filtered)

	seriesStart := firstEventDate(quantityEvents, incomeEvents)
	if seriesStart.IsZero() {
		// No history at all: value the snapshot over the requested window.
		seriesStart = filter.From.UTC().Truncate(24 * time.Hour)
		if seriesStart.IsZero() {
			seriesStart = asOf
		}
		for _, p := range snapshotFiltered {
			quantityEvents = append(quantityEvents, quantityEvent{
				date:       seriesStart,
				instrument: p.Instrument,
				iType:      p.InstrumentType,
				quantity:   p.Quantity,
				currency:   p.Currency,
			})
		}
	}

	requests := buildQuoteRequests(quantityEvents, positions, seriesStart, asOf)
	priceSeries, priceWarnings, err := s.prices.ResolveAll(ctx, requests)
	if err != nil {
		return model.PerformanceResult{}, err
	}
	warnings = append(warnings, priceWarnings...)

	// In-flight lookups are done; do not publish a partial series for a
	// cancelled caller.
	if err := ctx.Err(); err != nil {
		return model.PerformanceResult{}, err
	}

	navSeries, navWarnings := s.buildNAVSeries(ctx, seriesStart, asOf, quantityEvents, realizedEvents, incomeEvents, priceSeries)
	warnings = append(warnings, navWarnings...)

	feesTotal := 0.0
	for _, fee := range feesTotalEvents {
		converted, w := s.fx.Convert(ctx, fee.amount, fee.currency, fee.date, model.TimingPeriodEnd)
		warnings = append(warnings, w...)
		feesTotal += converted
	}

	result := model.PerformanceResult{
		NAVSeries:          sliceWindow(navSeries, filter.From, filter.To),
		SettlementCurrency: s.fx.SettlementCurrency(),
		FeesTotal:          round(feesTotal),
		Warnings:           warnings,
	}

	if len(navSeries) > 0 {
		last := navSeries[len(navSeries)-1]
		result.RealizedGainsTotal = last.RealizedGain
		result.IncomeTotal = last.Income
		if last.Cost > 0 {
			result.SimpleReturn = roundRatio(last.TotalGainLoss / last.Cost)
		}
	}

	result.Coverage = s.coverage(positions, priceSeries, asOf)

	return result, nil
}

// SettlementCurrency returns the currency every valuation is expressed in.
func (s *PerformanceService) SettlementCurrency() string {
	return s.fx.SettlementCurrency()
}

// ValuePositions prices live holdings and converts each market value into
// the settlement currency at the latest available rate. An unpriceable
// position degrades to a zero value with a warning rather than failing the
// valuation.
func (s *PerformanceService) ValuePositions(ctx context.Context, positions []model.Position, asOf time.Time) ([]model.ValuedPosition, []model.Warning) {
	warnings := []model.Warning{}
	valued := make([]model.ValuedPosition, 0, len(positions))

	for _, p := range positions {
		vp := model.ValuedPosition{Position: p}

		quote, err := s.prices.Resolve(ctx, p.Instrument, p.InstrumentType, asOf)
		if err != nil {
			warnings = append(warnings, model.Warning{
				Code:       model.WarningPriceMissing,
				Message:    fmt.Sprintf("no confirmed price for %s; position valued at zero", p.Instrument),
				Instrument: p.Instrument,
				Date:       asOf.UTC().Format("2006-01-02"),
			})
			valued = append(valued, vp)
			continue
		}

		converted, w := s.fx.Convert(ctx, p.Quantity*quote.Price, quote.Currency, asOf, model.TimingLatest)
		warnings = append(warnings, w...)
		vp.MarketValue = round(converted)
		vp.Priced = true
		valued = append(valued, vp)
	}

	return valued, warnings
}

// buildEvents derives dated inventory, realized-gain, income, and fee
// events from the matcher output and the raw transactions.
func buildEvents(matched MatchResult, transactions []model.Transaction) (quantity []quantityEvent, realized, income, fees []cashEvent) {
	for _, lot := range matched.Opens {
		signed := lot.OpenQuantity
		if lot.Side == model.SideShort {
			signed = -signed
		}
		quantity = append(quantity, quantityEvent{
			date:       lot.OpenTimestamp.UTC().Truncate(24 * time.Hour),
			instrument: lot.Instrument,
			iType:      lot.InstrumentType,
			quantity:   signed,
			cost:       lot.OpenQuantity * lot.OpenPrice,
			currency:   lot.Currency,
		})
	}

	for _, mc := range matched.Closes {
		signed := -mc.Quantity
		if mc.Side == model.SideShort {
			signed = mc.Quantity
		}
		quantity = append(quantity, quantityEvent{
			date:       mc.CloseTimestamp.UTC().Truncate(24 * time.Hour),
			instrument: mc.Instrument,
			iType:      mc.InstrumentType,
			quantity:   signed,
			cost:       -mc.Quantity * mc.OpenPrice,
			currency:   mc.Currency,
		})
		realized = append(realized, cashEvent{
			date:     mc.CloseTimestamp.UTC().Truncate(24 * time.Hour),
			amount:   mc.RealizedGain,
			currency: mc.Currency,
		})
	}

	for _, t := range transactions {
		if t.Flagged() {
			continue
		}
		if t.Kind == model.KindDividend {
			income = append(income, cashEvent{
				date:     t.Timestamp.UTC().Truncate(24 * time.Hour),
				amount:   t.Price,
				currency: t.Currency,
			})
		}
		if t.Fee != 0 {
			fees = append(fees, cashEvent{
				date:     t.Timestamp.UTC().Truncate(24 * time.Hour),
				amount:   t.Fee,
				currency: t.Currency,
			})
		}
	}

	sort.SliceStable(quantity, func(i, j int) bool { return quantity[i].date.Before(quantity[j].date) })
	sort.SliceStable(realized, func(i, j int) bool { return realized[i].date.Before(realized[j].date) })
	sort.SliceStable(income, func(i, j int) bool { return income[i].date.Before(income[j].date) })

	return quantity, realized, income, fees
}

// buildQuoteRequests collects the distinct instruments the series needs
// priced and the range each must cover.
func buildQuoteRequests(events []quantityEvent, positions []model.Position, start, end time.Time) []QuoteRequest {
	needed := make(map[string]QuoteRequest)

	for _, e := range events {
		if existing, ok := needed[e.instrument]; ok {
			if e.date.Before(existing.Start) {
				existing.Start = e.date
				needed[e.instrument] = existing
			}
			continue
		}
		needed[e.instrument] = QuoteRequest{
			Instrument: e.instrument,
			Type:       e.iType,
			Start:      e.date,
			End:        end,
		}
	}

	for _, p := range positions {
		if _, ok := needed[p.Instrument]; !ok {
			needed[p.Instrument] = QuoteRequest{
				Instrument: p.Instrument,
				Type:       p.InstrumentType,
				Start:      start,
				End:        end,
			}
		}
	}

	requests := make([]QuoteRequest, 0, len(needed))
	for _, request := range needed {
		requests = append(requests, request)
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].Instrument < requests[j].Instrument })

	return requests
}

// instrumentState is the running valuation state for one instrument inside
// the daily replay.
type instrumentState struct {
	iType    model.InstrumentType
	quantity float64
	cursor   int // index into the instrument's ascending price series
}

// buildNAVSeries replays the events day by day from the series start to the
// valuation date, valuing held quantities with the last confirmed price on
// or before each day and converting everything into the settlement currency
// at period-end rates.
func (s *PerformanceService) buildNAVSeries(ctx context.Context, start, end time.Time, quantityEvents []quantityEvent, realizedEvents, incomeEvents []cashEvent, priceSeries map[string][]model.PriceQuote) ([]model.NAVPoint, []model.Warning) {
	warnings := []model.Warning{}
	series := []model.NAVPoint{}

	states := make(map[string]*instrumentState)
	priceMissing := make(map[string]bool)

	costTotal := 0.0
	realizedTotal := 0.0
	incomeTotal := 0.0

	qi, ri, ii := 0, 0, 0

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		for qi < len(quantityEvents) && !quantityEvents[qi].date.After(day) {
			e := quantityEvents[qi]
			state, ok := states[e.instrument]
			if !ok {
				state = &instrumentState{iType: e.iType}
				states[e.instrument] = state
			}
			state.quantity += e.quantity

			converted, w := s.fx.Convert(ctx, e.cost, e.currency, e.date, model.TimingPeriodEnd)
			warnings = append(warnings, w...)
			costTotal += converted
			qi++
		}

		for ri < len(realizedEvents) && !realizedEvents[ri].date.After(day) {
			e := realizedEvents[ri]
			converted, w := s.fx.Convert(ctx, e.amount, e.currency, e.date, model.TimingPeriodEnd)
			warnings = append(warnings, w...)
			realizedTotal += converted
			ri++
		}

		for ii < len(incomeEvents) && !incomeEvents[ii].date.After(day) {
			e := incomeEvents[ii]
			converted, w := s.fx.Convert(ctx, e.amount, e.currency, e.date, model.TimingPeriodEnd)
			warnings = append(warnings, w...)
			incomeTotal += converted
			ii++
		}

		value := 0.0
		instruments := make([]string, 0, len(states))
		for instrument := range states {
			instruments = append(instruments, instrument)
		}
		sort.Strings(instruments)

		for _, instrument := range instruments {
			state := states[instrument]
			if state.quantity == 0 {
				continue
			}

			quotes := priceSeries[instrument]
			for state.cursor+1 < len(quotes) && !quotes[state.cursor+1].Date.After(day) {
				state.cursor++
			}

			if len(quotes) == 0 || quotes[state.cursor].Date.After(day) {
				// No confirmed price yet: the held quantity values as
				// zero and coverage is degraded.
				if !priceMissing[instrument] {
					priceMissing[instrument] = true
					warnings = append(warnings, model.Warning{
						Code:       model.WarningPriceMissing,
						Message:    fmt.Sprintf("no confirmed price for %s; position valued at zero until one resolves", instrument),
						Instrument: instrument,
						Date:       day.Format("2006-01-02"),
					})
				}
				continue
			}

			quote := quotes[state.cursor]
			converted, w := s.fx.Convert(ctx, state.quantity*quote.Price, quote.Currency, day, model.TimingPeriodEnd)
			warnings = append(warnings, w...)
			value += converted
		}

		point := model.NAVPoint{
			Date:         day.Format("2006-01-02"),
			Value:        round(value),
			Cost:         round(costTotal),
			RealizedGain: round(realizedTotal),
			Income:       round(incomeTotal),
		}
		point.UnrealizedGain = round(value - costTotal)
		point.TotalGainLoss = round(value - costTotal + realizedTotal + incomeTotal)
		series = append(series, point)
	}

	return series, warnings
}

// coverage reports how many of the final positions a confirmed price was
// resolved for as of the valuation date.
func (s *PerformanceService) coverage(positions []model.Position, priceSeries map[string][]model.PriceQuote, asOf time.Time) model.CoverageStats {
	stats := model.CoverageStats{
		PositionsTotal: len(positions),
		Ratio:          1.0,
	}

	for _, p := range positions {
		if _, ok := lastOnOrBefore(priceSeries[p.Instrument], asOf); ok {
			stats.PositionsPriced++
		}
	}

	if stats.PositionsTotal > 0 {
		stats.Ratio = float64(stats.PositionsPriced) / float64(stats.PositionsTotal)
	}

	return stats
}

// sliceWindow applies the presentational date window to the built series.
func sliceWindow(series []model.NAVPoint, from, to time.Time) []model.NAVPoint {
	if from.IsZero() && to.IsZero() {
		return series
	}

	windowed := make([]model.NAVPoint, 0, len(series))
	for _, point := range series {
		day, err := time.Parse("2006-01-02", point.Date)
		if err != nil {
			continue
		}
		if !from.IsZero() && day.Before(from.UTC().Truncate(24*time.Hour)) {
			continue
		}
		if !to.IsZero() && day.After(to.UTC().Truncate(24*time.Hour)) {
			continue
		}
		windowed = append(windowed, point)
	}
	return windowed
}

// firstEventDate returns the earliest dated event across both slices, or the
// zero time when there are none.
func firstEventDate(quantity []quantityEvent, income []cashEvent) time.Time {
	var first time.Time
	if len(quantity) > 0 {
		first = quantity[0].date
	}
	if len(income) > 0 && (first.IsZero() || income[0].date.Before(first)) {
		first = income[0].date
	}
	return first
}

// filterByInstitution narrows the transaction set; an empty filter keeps
// everything.
func filterByInstitution(transactions []model.Transaction, institution string) []model.Transaction {
	if institution == "" {
		return transactions
	}
	filtered := make([]model.Transaction, 0, len(transactions))
	for _, t := range transactions {
		if t.Institution == institution {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func filterPositionsByInstitution(positions []model.Position, institution string) []model.Position {
	if institution == "" {
		return positions
	}
	filtered := make([]model.Position, 0, len(positions))
	for _, p := range positions {
		if p.Institution == institution || p.Institution == "" {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// roundRatio rounds return ratios to four decimal places, finer than
// monetary rounding.
func roundRatio(value float64) float64 {
	return math.Round(value*10000) / 10000
}
