package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// TransactionRepository provides data access methods for the transaction table.
// It handles persisting normalized transactions with cross-import deduplication
// and retrieving the ordered event stream for replay.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository creates a new TransactionRepository with the provided database connection.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// SaveTransactions inserts normalized transactions, silently skipping any
// whose deduplication key is already present. Re-importing an overlapping
// statement is therefore a no-op for the overlap.
//
// Parameters:
//   - transactions: normalized records to persist; IDs are assigned here if empty
//
// Returns the number of rows actually inserted.
func (s *TransactionRepository) SaveTransactions(transactions []model.Transaction) (int, error) {
	if len(transactions) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO "transaction"
			(id, dedup_key, external_id, instrument, instrument_type, kind,
			 quantity, price, fee, currency, timestamp, institution, expiry,
			 description, seq_no, flag_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedup_key) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	nextSeq, err := s.nextSeqNo(tx)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, t := range transactions {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}

		var expiry any
		if t.Expiry != nil {
			expiry = t.Expiry.UTC().Format("2006-01-02")
		}

		result, err := stmt.Exec(
			t.ID,
			t.DedupKey(),
			t.ExternalID,
			t.Instrument,
			string(t.InstrumentType),
			string(t.Kind),
			t.Quantity,
			t.Price,
			t.Fee,
			t.Currency,
			t.Timestamp.UTC().Format(time.RFC3339),
			t.Institution,
			expiry,
			t.Description,
			nextSeq,
			t.FlagReason,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read insert result: %w", err)
		}
		if affected > 0 {
			inserted++
			nextSeq++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}

	return inserted, nil
}

// nextSeqNo returns the next free ingestion sequence number within the open
// database transaction.
func (s *TransactionRepository) nextSeqNo(tx *sql.Tx) (int, error) {
	var maxSeq sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(seq_no) FROM "transaction"`).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("failed to query sequence number: %w", err)
	}
	if !maxSeq.Valid {
		return 1, nil
	}
	return int(maxSeq.Int64) + 1, nil
}

// GetTransactions retrieves transactions ordered by timestamp then ingestion
// sequence, so replays of equal-timestamp events are deterministic.
//
// Parameters:
//   - institution: optional filter; empty string returns all institutions
//   - since: optional lower bound on timestamp; zero value disables it
//
// Returns transactions in canonical replay order.
func (s *TransactionRepository) GetTransactions(institution string, since time.Time) ([]model.Transaction, error) {
	query := `
		SELECT id, external_id, instrument, instrument_type, kind, quantity,
		       price, fee, currency, timestamp, institution, expiry,
		       description, seq_no, flag_reason
		FROM "transaction"
		WHERE 1=1
	`

	var args []any
	if institution != "" {
		query += ` AND institution = ?`
		args = append(args, institution)
	}
	if !since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY timestamp ASC, seq_no ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction table: %w", err)
	}
	defer rows.Close()

	transactions := []model.Transaction{}

	for rows.Next() {
		var t model.Transaction
		var timestampStr string
		var instrumentType, kind string
		var expiryStr, externalID, instrument, description, flagReason sql.NullString

		err := rows.Scan(
			&t.ID,
			&externalID,
			&instrument,
			&instrumentType,
			&kind,
			&t.Quantity,
			&t.Price,
			&t.Fee,
			&t.Currency,
			&timestampStr,
			&t.Institution,
			&expiryStr,
			&description,
			&t.SeqNo,
			&flagReason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction table results: %w", err)
		}

		t.Timestamp, err = ParseTime(timestampStr)
		if err != nil || t.Timestamp.IsZero() {
			return nil, fmt.Errorf("failed to parse date: %w", err)
		}

		t.InstrumentType = model.InstrumentType(instrumentType)
		t.Kind = model.TransactionKind(kind)
		t.ExternalID = externalID.String
		t.Instrument = instrument.String
		t.Description = description.String
		t.FlagReason = flagReason.String

		if expiryStr.Valid && expiryStr.String != "" {
			expiry, err := ParseTime(expiryStr.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse expiry: %w", err)
			}
			t.Expiry = &expiry
		}

		transactions = append(transactions, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction table: %w", err)
	}

	return transactions, nil
}

// GetInstitutions returns the distinct institutions present in the
// transaction table, sorted alphabetically.
func (s *TransactionRepository) GetInstitutions() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT institution FROM "transaction" ORDER BY institution ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query institutions: %w", err)
	}
	defer rows.Close()

	institutions := []string{}
	for rows.Next() {
		var institution string
		if err := rows.Scan(&institution); err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		institutions = append(institutions, institution)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating institutions: %w", err)
	}

	return institutions, nil
}
