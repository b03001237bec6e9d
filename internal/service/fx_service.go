package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/repository"
)

// minorUnit describes a minor-unit quoting convention: the major currency it
// rescales to and the divisor.
type minorUnit struct {
	Major   string
	Divisor float64
}

// minorUnits maps minor-unit currency codes to their major-unit form.
// Prices quoted in these must be rescaled before any rate lookup.
var minorUnits = map[string]minorUnit{
	"GBX": {Major: "GBP", Divisor: 100},
	"ZAC": {Major: "ZAR", Divisor: 100},
	"ILA": {Major: "ILS", Divisor: 100},
}

// conventionRank orders currencies by market base-currency precedence: the
// lower-ranked currency of a pair is the quote base. Currencies not listed
// rank between USD and CAD, which makes them USD-quoted (USDXXX).
var conventionRank = map[string]int{
	"EUR": 0,
	"GBP": 1,
	"AUD": 2,
	"NZD": 3,
	"USD": 4,
	"CAD": 6,
	"CHF": 7,
	"JPY": 8,
}

const unrankedConvention = 5

// FXService converts non-settlement-currency amounts into the settlement
// currency. Two timing conventions share one resolution path: period-end
// (performance series) and latest (live valuation). The settlement currency
// itself always short-circuits to exactly 1.0 without any lookup, and a
// missing pair degrades to 1.0 with a warning rather than failing the run.
type FXService struct {
	provider   FXProvider
	quotes     *repository.QuoteRepository
	settlement string
	memory     *cache.Cache
}

// NewFXService creates a new FXService.
func NewFXService(provider FXProvider, quotes *repository.QuoteRepository, settlementCurrency string, cacheTTL time.Duration) *FXService {
	return &FXService{
		provider:   provider,
		quotes:     quotes,
		settlement: settlementCurrency,
		memory:     cache.New(cacheTTL, 2*cacheTTL),
	}
}

// SettlementCurrency returns the configured settlement currency code.
func (s *FXService) SettlementCurrency() string {
	return s.settlement
}

// Convert converts an amount in any supported currency into the settlement
// currency. Minor-unit currencies are rescaled to their major unit before
// the rate lookup. Degraded conversions return the amount at rate 1.0
// alongside an explanatory warning.
func (s *FXService) Convert(ctx context.Context, amount float64, currency string, date time.Time, timing model.RateTiming) (float64, []model.Warning) {
	major, rescaled := rescaleMinorUnit(amount, currency)

	rate, warnings := s.Rate(ctx, major, date, timing)
	return rescaled * rate, warnings
}

// Rate resolves the exchange rate from a major-unit currency into the
// settlement currency for a date and timing convention.
//
// The settlement currency itself returns exactly 1.0 without invoking the
// provider. Missing or unmapped pairs degrade to 1.0 with a warning.
func (s *FXService) Rate(ctx context.Context, currency string, date time.Time, timing model.RateTiming) (float64, []model.Warning) {
	if currency == s.settlement {
		return 1.0, nil
	}

	day := date.UTC().Truncate(24 * time.Hour)
	if timing == model.TimingLatest {
		day = time.Now().UTC().Truncate(24 * time.Hour)
	}

	if currency == "" {
		return 1.0, []model.Warning{{
			Code:    model.WarningUnmappedCurrency,
			Message: "amount without a currency; converted at rate 1.0",
			Date:    day.Format("2006-01-02"),
		}}
	}

	memoryKey := currency + "|" + day.Format("2006-01-02") + "|" + string(timing)
	if hit, ok := s.memory.Get(memoryKey); ok {
		return hit.(float64), nil
	}

	if stored, err := s.quotes.GetRate(currency, s.settlement, day, timing); err == nil {
		s.memory.Set(memoryKey, stored.Rate, cache.DefaultExpiration)
		return stored.Rate, nil
	}

	pair, inverted := quotablePair(currency, s.settlement)

	fetched, err := s.provider.FetchRate(ctx, pair, day, timing)
	if err != nil || fetched == 0 {
		log.Printf("fx rate %s on %s unavailable: %v", pair, day.Format("2006-01-02"), err)
		return 1.0, []model.Warning{{
			Code:    model.WarningFXRateMissing,
			Message: fmt.Sprintf("no %s rate for %s; converted at rate 1.0", pair, day.Format("2006-01-02")),
			Date:    day.Format("2006-01-02"),
		}}
	}

	rate := fetched
	if inverted {
		rate = 1 / fetched
	}

	if err := s.quotes.SaveRate(model.ExchangeRate{
		FromCurrency: currency,
		ToCurrency:   s.settlement,
		Rate:         rate,
		Date:         day,
		Timing:       timing,
	}); err != nil {
		log.Printf("failed to persist fx rate %s: %v", pair, err)
	}
	s.memory.Set(memoryKey, rate, cache.DefaultExpiration)

	return rate, nil
}

// rescaleMinorUnit normalizes a minor-unit quote (pence, cents variants) to
// its major currency before any rate lookup. Unrecognized codes pass
// through unchanged.
func rescaleMinorUnit(amount float64, currency string) (string, float64) {
	if unit, ok := minorUnits[normalizeMinorCode(currency)]; ok {
		return unit.Major, amount / unit.Divisor
	}
	return currency, amount
}

// normalizeMinorCode folds the case variants providers use for minor-unit
// codes ("GBX", "GBp") onto the lookup key.
func normalizeMinorCode(currency string) string {
	if currency == "GBp" {
		return "GBX"
	}
	if currency == "ZAc" {
		return "ZAC"
	}
	return currency
}

// quotablePair resolves which direction of a currency pair the market
// actually quotes, and whether the caller must apply the reciprocal.
func quotablePair(from, to string) (pair string, inverted bool) {
	if rankOf(from) <= rankOf(to) {
		return from + to, false
	}
	return to + from, true
}

func rankOf(currency string) int {
	if rank, ok := conventionRank[currency]; ok {
		return rank
	}
	return unrankedConvention
}
