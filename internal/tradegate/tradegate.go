package tradegate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/apperrors"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// ProviderName identifies this provider in quotes and logs.
const ProviderName = "tradegate"

// emptyQuoteSentinel is how the Tradegate feed marks an absent last trade.
const emptyQuoteSentinel = "./."

// Client fetches quotes from the Tradegate exchange feed. It serves as the
// fallback pricing provider for derivatives, which the primary provider
// gates behind a market-data subscription.
//
// The feed only exposes the current order book, so historical requests are
// answered with a single quote dated to the requested end of range. Values
// arrive in EUR regardless of the instrument's trading currency.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// NewClient creates a new Tradegate client with default HTTP settings.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		baseURL:    "https://www.tradegate.de",
	}
}

// NewClientWithBaseURL creates a client pointed at an alternate endpoint.
// Used by tests to target a local mock server.
func NewClientWithBaseURL(baseURL string) *Client {
	c := NewClient()
	c.baseURL = baseURL
	return c
}

// Name returns the provider identifier recorded on resolved quotes.
func (c *Client) Name() string {
	return ProviderName
}

// Supports reports whether this provider can quote the instrument class.
// The fallback is deliberately scoped to derivatives so equity pricing never
// silently switches venue.
func (c *Client) Supports(t model.InstrumentType) bool {
	return t.Derivative()
}

// FetchHistoricalClose returns the most recent traded price for the
// instrument as a single quote dated to the end of the requested range.
func (c *Client) FetchHistoricalClose(ctx context.Context, instrument string, start, end time.Time) ([]model.PriceQuote, error) {
	price, err := c.fetchLast(ctx, instrument)
	if err != nil {
		return nil, err
	}

	return []model.PriceQuote{{
		Instrument: instrument,
		Date:       end.UTC().Truncate(24 * time.Hour),
		Price:      price,
		Currency:   "EUR",
		Source:     ProviderName,
	}}, nil
}

// fetchLast retrieves the last traded price for an instrument, falling back
// to the bid when no trade has printed yet.
func (c *Client) fetchLast(ctx context.Context, instrument string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/refresh.php?isin=%s", c.baseURL, instrument)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, apperrors.ErrProviderThrottled
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("tradegate returned status %d for %s", resp.StatusCode, instrument)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var book map[string]any
	if err := json.Unmarshal(data, &book); err != nil {
		return 0, fmt.Errorf("failed to parse order book for %s: %w", instrument, err)
	}

	return parseLast(instrument, book)
}

// parseLast extracts a usable price from the order book. The last trade is
// preferred over the bid; the feed marks an empty last with a "./." sentinel
// and sometimes encodes numbers as comma-decimal strings.
func parseLast(instrument string, book map[string]any) (float64, error) {
	value := book["last"]
	if s, ok := value.(string); ok && s == emptyQuoteSentinel {
		value = book["bid"]
	}

	price, err := parseNumber(value)
	if err != nil {
		return 0, fmt.Errorf("instrument %s: %w", instrument, err)
	}
	if price == 0 {
		// An empty bid comes back as 0, which is no quote at all.
		return 0, fmt.Errorf("instrument %s: empty order book: %w", instrument, apperrors.ErrNoNumericData)
	}
	return price, nil
}

// parseNumber reads a feed value that is either a JSON number or a
// German-formatted decimal string such as "1.234,56".
func parseNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case string:
		s := strings.ReplaceAll(v, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
		s = strings.ReplaceAll(s, " ", "")
		price, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid price string %q: %w", v, apperrors.ErrNoNumericData)
		}
		return price, nil
	default:
		return 0, fmt.Errorf("missing price value: %w", apperrors.ErrNoNumericData)
	}
}
