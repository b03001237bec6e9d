package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/apperrors"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// QuoteRepository provides data access methods for the price_quote and
// exchange_rate tables. Quotes are keyed by cache version: bumping the
// configured version makes every previously stored row invisible without
// deleting it, which is how full cache invalidation works.
type QuoteRepository struct {
	db *sql.DB
}

// NewQuoteRepository creates a new QuoteRepository with the provided database connection.
func NewQuoteRepository(db *sql.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// GetQuote retrieves the stored quote for an instrument on a specific date
// under the given cache version.
//
// Returns apperrors.ErrQuoteNotFound when no matching row exists.
func (s *QuoteRepository) GetQuote(instrument string, date time.Time, cacheVersion int) (model.PriceQuote, error) {
	query := `
		SELECT id, instrument, date, price, currency, source
		FROM price_quote
		WHERE instrument = ? AND date = ? AND cache_version = ?
	`

	var q model.PriceQuote
	var dateStr string

	err := s.db.QueryRow(query, instrument, date.UTC().Format("2006-01-02"), cacheVersion).Scan(
		&q.ID,
		&q.Instrument,
		&dateStr,
		&q.Price,
		&q.Currency,
		&q.Source,
	)
	if err == sql.ErrNoRows {
		return model.PriceQuote{}, apperrors.ErrQuoteNotFound
	}
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("failed to scan price_quote results: %w", err)
	}

	q.Date, err = ParseTime(dateStr)
	if err != nil || q.Date.IsZero() {
		return model.PriceQuote{}, fmt.Errorf("failed to parse date: %w", err)
	}

	return q, nil
}

// GetQuoteRange retrieves all stored quotes for an instrument within the
// inclusive date range under the given cache version, ordered by date
// ascending. An empty result is not an error; callers decide which dates
// still need resolving.
func (s *QuoteRepository) GetQuoteRange(instrument string, start, end time.Time, cacheVersion int) ([]model.PriceQuote, error) {
	query := `
		SELECT id, instrument, date, price, currency, source
		FROM price_quote
		WHERE instrument = ?
		AND date >= ?
		AND date <= ?
		AND cache_version = ?
		ORDER BY date ASC
	`

	rows, err := s.db.Query(query,
		instrument,
		start.UTC().Format("2006-01-02"),
		end.UTC().Format("2006-01-02"),
		cacheVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query price_quote table: %w", err)
	}
	defer rows.Close()

	quotes := []model.PriceQuote{}

	for rows.Next() {
		var q model.PriceQuote
		var dateStr string

		err := rows.Scan(&q.ID, &q.Instrument, &dateStr, &q.Price, &q.Currency, &q.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price_quote results: %w", err)
		}

		q.Date, err = ParseTime(dateStr)
		if err != nil || q.Date.IsZero() {
			return nil, fmt.Errorf("failed to parse date: %w", err)
		}

		quotes = append(quotes, q)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price_quote table: %w", err)
	}

	return quotes, nil
}

// SaveQuotes persists resolved quotes under the given cache version. Only
// successful resolutions reach this method; a duplicate (instrument, date,
// version) row is skipped, keeping the first write.
func (s *QuoteRepository) SaveQuotes(quotes []model.PriceQuote, cacheVersion int) error {
	if len(quotes) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO price_quote (id, instrument, date, price, currency, source, cache_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instrument, date, cache_version) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, q := range quotes {
		id := q.ID
		if id == "" {
			id = uuid.New().String()
		}

		_, err := stmt.Exec(
			id,
			q.Instrument,
			q.Date.UTC().Format("2006-01-02"),
			q.Price,
			q.Currency,
			q.Source,
			cacheVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to insert price quote: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price quotes: %w", err)
	}

	return nil
}

// GetRate retrieves the stored exchange rate for a currency pair on a date
// with the given timing.
//
// Returns apperrors.ErrRateNotFound when no matching row exists.
func (s *QuoteRepository) GetRate(from, to string, date time.Time, timing model.RateTiming) (model.ExchangeRate, error) {
	query := `
		SELECT id, from_currency, to_currency, rate, date, timing
		FROM exchange_rate
		WHERE from_currency = ? AND to_currency = ? AND date = ? AND timing = ?
	`

	var r model.ExchangeRate
	var dateStr, timingStr string

	err := s.db.QueryRow(query, from, to, date.UTC().Format("2006-01-02"), string(timing)).Scan(
		&r.ID,
		&r.FromCurrency,
		&r.ToCurrency,
		&r.Rate,
		&dateStr,
		&timingStr,
	)
	if err == sql.ErrNoRows {
		return model.ExchangeRate{}, apperrors.ErrRateNotFound
	}
	if err != nil {
		return model.ExchangeRate{}, fmt.Errorf("failed to scan exchange_rate results: %w", err)
	}

	r.Date, err = ParseTime(dateStr)
	if err != nil || r.Date.IsZero() {
		return model.ExchangeRate{}, fmt.Errorf("failed to parse date: %w", err)
	}
	r.Timing = model.RateTiming(timingStr)

	return r, nil
}

// SaveRate persists one resolved exchange rate. A duplicate (pair, date,
// timing) row is skipped, keeping the first write.
func (s *QuoteRepository) SaveRate(rate model.ExchangeRate) error {
	id := rate.ID
	if id == "" {
		id = uuid.New().String()
	}

	_, err := s.db.Exec(`
		INSERT INTO exchange_rate (id, from_currency, to_currency, rate, date, timing)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_currency, to_currency, date, timing) DO NOTHING
	`,
		id,
		rate.FromCurrency,
		rate.ToCurrency,
		rate.Rate,
		rate.Date.UTC().Format("2006-01-02"),
		string(rate.Timing),
	)
	if err != nil {
		return fmt.Errorf("failed to insert exchange rate: %w", err)
	}

	return nil
}
