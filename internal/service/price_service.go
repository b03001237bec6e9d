package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/apperrors"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/repository"
)

// quoteKey identifies one (instrument, date) lookup. Kept as a value type
// rather than a formatted string so lock keys can never collide through
// formatting differences.
type quoteKey struct {
	Instrument string
	Date       time.Time
}

func newQuoteKey(instrument string, date time.Time) quoteKey {
	return quoteKey{Instrument: instrument, Date: date.UTC().Truncate(24 * time.Hour)}
}

// memoryKey is the string form used only for the in-memory cache tier.
func (k quoteKey) memoryKey() string {
	return k.Instrument + "|" + k.Date.Format("2006-01-02")
}

// QuoteRequest asks the resolver for one instrument's price series over an
// inclusive date range.
type QuoteRequest struct {
	Instrument string
	Type       model.InstrumentType
	Start      time.Time
	End        time.Time
}

// PriceService resolves confirmed closing prices through an ordered provider
// chain behind two cache tiers: an in-memory TTL cache and the persistent
// quote store. A quote is only ever cached on confirmed success; a failed
// lookup is explicit absence, never a cached error, so retries stay
// possible within the same run and across runs.
//
// Concurrent lookups for the same (instrument, date) serialize on a per-key
// lock so only one upstream call is made; unrelated keys proceed in
// parallel.
type PriceService struct {
	providers []PriceProvider
	quotes    *repository.QuoteRepository

	memory       *cache.Cache
	cacheVersion int

	locksMu sync.Mutex
	locks   map[quoteKey]*sync.Mutex

	workerLimit     int
	providerTimeout time.Duration
}

// NewPriceService creates a new PriceService.
//
// Parameters:
//   - providers: ordered fallback chain; the first supporting provider that
//     answers wins
//   - quotes: persistent quote store
//   - cacheTTL: in-memory cache lifetime for resolved quotes
//   - cacheVersion: version stored quotes must carry to be visible; bumping
//     it invalidates the persistent tier without deleting rows
//   - workerLimit: bound on concurrent instrument resolutions
//   - providerTimeout: per-upstream-call timeout; expiry triggers fallback,
//     not pipeline failure
func NewPriceService(providers []PriceProvider, quotes *repository.QuoteRepository, cacheTTL time.Duration, cacheVersion, workerLimit int, providerTimeout time.Duration) *PriceService {
	return &PriceService{
		providers:       providers,
		quotes:          quotes,
		memory:          cache.New(cacheTTL, 2*cacheTTL),
		cacheVersion:    cacheVersion,
		locks:           make(map[quoteKey]*sync.Mutex),
		workerLimit:     workerLimit,
		providerTimeout: providerTimeout,
	}
}

// lockFor returns the serialization lock for one lookup key, creating it on
// first use. Locks persist for the service lifetime; the key space is
// bounded by the distinct lookups a process makes.
func (s *PriceService) lockFor(key quoteKey) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// Resolve returns the confirmed closing price for an instrument on a date.
//
// Returns apperrors.ErrQuoteNotFound when every eligible provider was
// exhausted; that absence is never written to either cache tier.
func (s *PriceService) Resolve(ctx context.Context, instrument string, instrumentType model.InstrumentType, date time.Time) (model.PriceQuote, error) {
	key := newQuoteKey(instrument, date)

	if quote, ok := s.cached(key); ok {
		return quote, nil
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	// Whoever held the lock first may have populated the caches.
	if quote, ok := s.cached(key); ok {
		return quote, nil
	}

	quote, err := s.resolveUpstream(ctx, key, instrumentType)
	if err != nil {
		return model.PriceQuote{}, err
	}

	s.memory.Set(key.memoryKey(), quote, cache.DefaultExpiration)
	return quote, nil
}

// cached checks the memory tier, then the persistent store, promoting store
// hits into memory.
func (s *PriceService) cached(key quoteKey) (model.PriceQuote, bool) {
	if hit, ok := s.memory.Get(key.memoryKey()); ok {
		return hit.(model.PriceQuote), true
	}

	quote, err := s.quotes.GetQuote(key.Instrument, key.Date, s.cacheVersion)
	if err == nil {
		s.memory.Set(key.memoryKey(), quote, cache.DefaultExpiration)
		return quote, true
	}

	return model.PriceQuote{}, false
}

// resolveUpstream walks the provider chain for one lookup. In-flight calls
// run detached from the caller's cancellation so a caller aborting mid-run
// cannot leave a half-resolved lookup uncached.
func (s *PriceService) resolveUpstream(ctx context.Context, key quoteKey, instrumentType model.InstrumentType) (model.PriceQuote, error) {
	// A week of lookback tolerates weekends and market holidays.
	start := key.Date.AddDate(0, 0, -7)

	var lastErr error
	for _, provider := range s.providers {
		if !provider.Supports(instrumentType) {
			continue
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.providerTimeout)
		series, err := provider.FetchHistoricalClose(callCtx, key.Instrument, start, key.Date)
		cancel()
		if err != nil {
			log.Printf("price lookup %s@%s via %s failed: %v", key.Instrument, key.Date.Format("2006-01-02"), provider.Name(), err)
			lastErr = err
			continue
		}

		quote, ok := lastOnOrBefore(series, key.Date)
		if !ok {
			lastErr = fmt.Errorf("%s returned no usable close: %w", provider.Name(), apperrors.ErrNoNumericData)
			continue
		}

		if err := s.quotes.SaveQuotes(series, s.cacheVersion); err != nil {
			// The quote is still valid for this run; persistence is
			// best-effort.
			log.Printf("failed to persist quotes for %s: %v", key.Instrument, err)
		}

		return quote, nil
	}

	if lastErr != nil {
		return model.PriceQuote{}, fmt.Errorf("%w: %w", apperrors.ErrQuoteNotFound, lastErr)
	}
	return model.PriceQuote{}, fmt.Errorf("no provider supports instrument class %s: %w", instrumentType, apperrors.ErrQuoteNotFound)
}

// ResolveRange returns the instrument's price series over an inclusive date
// range, fetching from providers only when the stored series does not reach
// near the end of the range. staleTolerance covers weekends and holidays at
// the range tail.
func (s *PriceService) ResolveRange(ctx context.Context, request QuoteRequest) ([]model.PriceQuote, error) {
	const staleTolerance = 4 * 24 * time.Hour

	start := request.Start.UTC().Truncate(24 * time.Hour)
	end := request.End.UTC().Truncate(24 * time.Hour)

	stored, err := s.quotes.GetQuoteRange(request.Instrument, start, end, s.cacheVersion)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 && end.Sub(stored[len(stored)-1].Date) <= staleTolerance {
		return stored, nil
	}

	lock := s.lockFor(newQuoteKey(request.Instrument, end))
	lock.Lock()
	defer lock.Unlock()

	stored, err = s.quotes.GetQuoteRange(request.Instrument, start, end, s.cacheVersion)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 && end.Sub(stored[len(stored)-1].Date) <= staleTolerance {
		return stored, nil
	}

	fetched, err := s.fetchRangeUpstream(ctx, request, start, end)
	if err != nil {
		if len(stored) > 0 {
			// Degraded but usable: the stale stored series still prices
			// most of the range.
			log.Printf("range fetch for %s failed, using %d stored quotes: %v", request.Instrument, len(stored), err)
			return stored, nil
		}
		return nil, err
	}

	if err := s.quotes.SaveQuotes(fetched, s.cacheVersion); err != nil {
		log.Printf("failed to persist quotes for %s: %v", request.Instrument, err)
	}

	return mergeQuotes(stored, fetched), nil
}

// fetchRangeUpstream walks the provider chain for a whole-range fetch.
func (s *PriceService) fetchRangeUpstream(ctx context.Context, request QuoteRequest, start, end time.Time) ([]model.PriceQuote, error) {
	var lastErr error
	for _, provider := range s.providers {
		if !provider.Supports(request.Type) {
			continue
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.providerTimeout)
		series, err := provider.FetchHistoricalClose(callCtx, request.Instrument, start, end)
		cancel()
		if err != nil {
			log.Printf("range lookup %s via %s failed: %v", request.Instrument, provider.Name(), err)
			lastErr = err
			continue
		}
		if len(series) == 0 {
			lastErr = fmt.Errorf("%s returned empty series: %w", provider.Name(), apperrors.ErrNoNumericData)
			continue
		}
		return series, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrQuoteNotFound, lastErr)
	}
	return nil, fmt.Errorf("no provider supports instrument class %s: %w", request.Type, apperrors.ErrQuoteNotFound)
}

// ResolveAll resolves many instrument ranges in parallel, bounded by the
// worker limit. Per-instrument absence degrades to a warning; the only
// error returned is caller cancellation, checked after in-flight lookups
// complete so no partial result set is published.
func (s *PriceService) ResolveAll(ctx context.Context, requests []QuoteRequest) (map[string][]model.PriceQuote, []model.Warning, error) {
	series := make([][]model.PriceQuote, len(requests))
	failures := make([]error, len(requests))

	g := &errgroup.Group{}
	g.SetLimit(s.workerLimit)

	for i, request := range requests {
		i, request := i, request
		g.Go(func() error {
			quotes, err := s.ResolveRange(ctx, request)
			if err != nil {
				failures[i] = err
				return nil
			}
			series[i] = quotes
			return nil
		})
	}

	// ResolveRange never returns a group error; Wait only joins the workers.
	_ = g.Wait()

	// In-flight lookups have completed and populated the caches. Only now
	// honor cancellation, abandoning aggregation without a partial result.
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	results := make(map[string][]model.PriceQuote, len(requests))
	warnings := []model.Warning{}
	for i, request := range requests {
		if failures[i] != nil {
			warnings = append(warnings, model.Warning{
				Code:       model.WarningProvidersExhausted,
				Message:    fmt.Sprintf("no provider could price %s: %v", request.Instrument, failures[i]),
				Instrument: request.Instrument,
				Date:       request.End.UTC().Format("2006-01-02"),
			})
			continue
		}
		results[request.Instrument] = series[i]
	}

	return results, warnings, nil
}

// lastOnOrBefore returns the latest quote dated on or before the cutoff.
func lastOnOrBefore(series []model.PriceQuote, cutoff time.Time) (model.PriceQuote, bool) {
	var best model.PriceQuote
	found := false
	for _, quote := range series {
		if quote.Date.After(cutoff) {
			continue
		}
		if !found || quote.Date.After(best.Date) {
			best = quote
			found = true
		}
	}
	return best, found
}

// mergeQuotes combines two series, preferring a on date collisions, sorted
// by date ascending.
func mergeQuotes(a, b []model.PriceQuote) []model.PriceQuote {
	byDate := make(map[time.Time]model.PriceQuote, len(a)+len(b))
	for _, quote := range b {
		byDate[quote.Date] = quote
	}
	for _, quote := range a {
		byDate[quote.Date] = quote
	}

	merged := make([]model.PriceQuote, 0, len(byDate))
	for _, quote := range byDate {
		merged = append(merged, quote)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date.Before(merged[j].Date)
	})
	return merged
}
