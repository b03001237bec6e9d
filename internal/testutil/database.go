package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite" // Test Package
)

// SetupTestDB creates an in-memory SQLite database for testing.
// The database is automatically cleaned up when the test completes.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//	    // db is ready to use with schema created
//	}
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// In-memory database (destroyed when connection closes)
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Every pool connection to ":memory:" would open its own empty
	// database; a single connection keeps the schema visible everywhere.
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	// Configure SQLite for testing
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA timezone = 'UTC'",
		"PRAGMA journal_mode = MEMORY", // Faster for tests
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			t.Fatalf("Failed to set pragma: %v", err)
		}
	}

	// Create schema
	if err := createTestSchema(db); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	// Cleanup when test ends
	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// createTestSchema creates all database tables for testing.
// Schema is synchronized with the production migrations.
func createTestSchema(db *sql.DB) error {
	schema := `
		-- Canonical transaction table (quoted because transaction is a reserved keyword)
		CREATE TABLE IF NOT EXISTS "transaction" (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			dedup_key VARCHAR(255) NOT NULL UNIQUE,
			external_id VARCHAR(100),
			instrument VARCHAR(40),
			instrument_type VARCHAR(10) NOT NULL,
			kind VARCHAR(10) NOT NULL,
			quantity FLOAT NOT NULL,
			price FLOAT NOT NULL,
			fee FLOAT NOT NULL,
			currency VARCHAR(3) NOT NULL,
			timestamp DATETIME NOT NULL,
			institution VARCHAR(50) NOT NULL,
			expiry DATE,
			description TEXT,
			seq_no INTEGER NOT NULL,
			flag_reason VARCHAR(100),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		-- Persistent quote store
		CREATE TABLE IF NOT EXISTS price_quote (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			instrument VARCHAR(40) NOT NULL,
			date DATE NOT NULL,
			price FLOAT NOT NULL,
			currency VARCHAR(3) NOT NULL,
			source VARCHAR(30) NOT NULL,
			cache_version INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT unique_price_quote UNIQUE (instrument, date, cache_version)
		);

		-- Exchange rate table
		CREATE TABLE IF NOT EXISTS exchange_rate (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			from_currency VARCHAR(3) NOT NULL,
			to_currency VARCHAR(3) NOT NULL,
			rate FLOAT NOT NULL,
			date DATE NOT NULL,
			timing VARCHAR(10) NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT unique_exchange_rate UNIQUE (from_currency, to_currency, date, timing)
		);

		-- Gateway credential table
		CREATE TABLE IF NOT EXISTS gateway_config (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			institution VARCHAR(50) NOT NULL UNIQUE,
			flex_token VARCHAR(500) NOT NULL,
			flex_query_id VARCHAR(100) NOT NULL,
			auto_import_enabled BOOLEAN NOT NULL,
			created_at DATETIME DEFAULT (CURRENT_TIMESTAMP),
			updated_at DATETIME DEFAULT (CURRENT_TIMESTAMP)
		);
	`

	_, err := db.Exec(schema)
	return err
}
