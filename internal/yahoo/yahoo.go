package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/apperrors"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// ProviderName identifies this provider in quotes and logs.
const ProviderName = "yahoo"

// FinanceClient fetches historical closes and FX rates from the Yahoo Finance
// chart API. It is the primary pricing provider: it quotes equities and FX
// pairs but gates derivatives behind a market-data subscription, which the
// resolver handles by falling back to the exchange gateway.
type FinanceClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// NewFinanceClient creates a new Yahoo Finance client with default HTTP
// settings and a conservative request rate limit.
func NewFinanceClient() *FinanceClient {
	return &FinanceClient{
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
		baseURL:    "https://query1.finance.yahoo.com",
	}
}

// NewFinanceClientWithBaseURL creates a client pointed at an alternate
// endpoint. Used by tests to target a local mock server.
func NewFinanceClientWithBaseURL(baseURL string) *FinanceClient {
	c := NewFinanceClient()
	c.baseURL = baseURL
	return c
}

// Name returns the provider identifier recorded on resolved quotes.
func (c *FinanceClient) Name() string {
	return ProviderName
}

// Supports reports whether this provider can quote the instrument class.
// Derivatives are rejected up front with a subscription-gating error rather
// than a wasted upstream call.
func (c *FinanceClient) Supports(t model.InstrumentType) bool {
	return !t.Derivative()
}

// FetchHistoricalClose fetches daily closing prices for a symbol within the
// date range (inclusive). Days without a numeric close are skipped; a
// response in which every close is non-numeric is an error, not an empty
// success, so the resolver can fall back.
func (c *FinanceClient) FetchHistoricalClose(ctx context.Context, instrument string, start, end time.Time) ([]model.PriceQuote, error) {
	points, err := c.queryChart(ctx, instrument, start, end)
	if err != nil {
		return nil, err
	}

	quotes := make([]model.PriceQuote, len(points))
	for i, p := range points {
		quotes[i] = model.PriceQuote{
			Instrument: instrument,
			Date:       p.Date,
			Price:      p.Close,
			Currency:   p.Currency,
			Source:     ProviderName,
		}
	}
	return quotes, nil
}

// FetchRate fetches the exchange rate for a currency pair such as "GBPUSD".
// Period-end timing returns the close on or before the requested date; latest
// timing returns the most recent close available.
func (c *FinanceClient) FetchRate(ctx context.Context, pair string, date time.Time, timing model.RateTiming) (float64, error) {
	symbol := pair + "=X"

	var start, end time.Time
	if timing == model.TimingLatest {
		end = time.Now().UTC()
		start = end.AddDate(0, 0, -7)
	} else {
		end = date
		start = date.AddDate(0, 0, -7)
	}

	points, err := c.queryChart(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}

	// Points are chronological; the last one on or before the cutoff wins.
	cutoff := end.UTC().Truncate(24 * time.Hour)
	best := 0.0
	for _, p := range points {
		if p.Date.After(cutoff) {
			break
		}
		best = p.Close
	}
	if best == 0 {
		return 0, fmt.Errorf("no rate for %s on or before %s: %w", pair, cutoff.Format("2006-01-02"), apperrors.ErrNoNumericData)
	}
	return best, nil
}

// queryChart executes a chart query and parses it into chronological close
// points with dates truncated to midnight UTC.
func (c *FinanceClient) queryChart(ctx context.Context, symbol string, start, end time.Time) ([]ClosePoint, error) {
	// End is inclusive: the chart API treats period2 as exclusive.
	url := fmt.Sprintf(
		"%s/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d",
		c.baseURL,
		symbol,
		start.Unix(),
		end.AddDate(0, 0, 1).Unix(),
	)

	response, err := c.queryYahoo(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(response.Chart.Result) == 0 {
		return nil, fmt.Errorf("no results returned for symbol %s", symbol)
	}

	return parseClosePoints(response.Chart.Result[0])
}

// parseClosePoints extracts (date, close) pairs from one chart result,
// skipping null closes.
func parseClosePoints(result Result) ([]ClosePoint, error) {
	if len(result.Timestamp) == 0 {
		return nil, fmt.Errorf("no price data returned")
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no close prices returned")
	}

	closes := result.Indicators.Quote[0].Close
	if len(closes) != len(result.Timestamp) {
		return nil, fmt.Errorf("mismatched data lengths")
	}

	points := make([]ClosePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if closes[i] == nil {
			continue
		}
		points = append(points, ClosePoint{
			Date:     time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Close:    *closes[i],
			Currency: result.Meta.Currency,
		})
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("symbol %s: %w", result.Meta.Symbol, apperrors.ErrNoNumericData)
	}
	return points, nil
}

// queryYahoo executes an HTTP request against the chart API, honoring the
// client rate limit and the request context.
func (c *FinanceClient) queryYahoo(ctx context.Context, url string) (Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, err
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Response{}, apperrors.ErrProviderThrottled
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}

	var response Response
	if err := json.Unmarshal(data, &response); err != nil {
		return Response{}, err
	}

	if response.Chart.Error != nil {
		return response, fmt.Errorf("yahoo error: %s", *response.Chart.Error)
	}

	return response, nil
}
