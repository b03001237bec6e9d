package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/google/uuid"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/apperrors"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/model"
)

// GatewayConfigRepository provides data access methods for the gateway_config
// table, which holds per-institution Flex Web Service credentials. Tokens are
// stored fernet-encrypted and only decrypted on read.
type GatewayConfigRepository struct {
	db  *sql.DB
	key *fernet.Key
}

// NewGatewayConfigRepository creates a new GatewayConfigRepository.
//
// Parameters:
//   - db: database connection
//   - encryptionKey: base64 fernet key used to encrypt stored tokens
func NewGatewayConfigRepository(db *sql.DB, encryptionKey string) (*GatewayConfigRepository, error) {
	key, err := fernet.DecodeKey(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode gateway encryption key: %w", err)
	}
	return &GatewayConfigRepository{db: db, key: key}, nil
}

// GetConfig retrieves and decrypts the gateway credentials for an institution.
//
// Returns apperrors.ErrGatewayNotConfigured when the institution has no
// stored credentials.
func (s *GatewayConfigRepository) GetConfig(institution string) (model.GatewayConfig, error) {
	query := `
		SELECT id, institution, flex_token, flex_query_id, auto_import_enabled
		FROM gateway_config
		WHERE institution = ?
	`

	var c model.GatewayConfig
	var encryptedToken string

	err := s.db.QueryRow(query, institution).Scan(
		&c.ID,
		&c.Institution,
		&encryptedToken,
		&c.FlexQueryID,
		&c.AutoImportEnabled,
	)
	if err == sql.ErrNoRows {
		return model.GatewayConfig{}, apperrors.ErrGatewayNotConfigured
	}
	if err != nil {
		return model.GatewayConfig{}, fmt.Errorf("failed to scan gateway_config results: %w", err)
	}

	token := fernet.VerifyAndDecrypt([]byte(encryptedToken), 0, []*fernet.Key{s.key})
	if token == nil {
		return model.GatewayConfig{}, fmt.Errorf("failed to decrypt gateway token for %s", institution)
	}
	c.FlexToken = string(token)

	return c, nil
}

// SaveConfig encrypts and stores gateway credentials for an institution,
// replacing any existing row.
func (s *GatewayConfigRepository) SaveConfig(config model.GatewayConfig) error {
	encryptedToken, err := fernet.EncryptAndSign([]byte(config.FlexToken), s.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt gateway token: %w", err)
	}

	id := config.ID
	if id == "" {
		id = uuid.New().String()
	}

	_, err = s.db.Exec(`
		INSERT INTO gateway_config (id, institution, flex_token, flex_query_id, auto_import_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(institution) DO UPDATE SET
			flex_token = excluded.flex_token,
			flex_query_id = excluded.flex_query_id,
			auto_import_enabled = excluded.auto_import_enabled,
			updated_at = excluded.updated_at
	`,
		id,
		config.Institution,
		string(encryptedToken),
		config.FlexQueryID,
		config.AutoImportEnabled,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save gateway config: %w", err)
	}

	return nil
}

// ListAutoImport returns the configs with automatic import enabled, with
// tokens decrypted. Used by the scheduled refresh job.
func (s *GatewayConfigRepository) ListAutoImport() ([]model.GatewayConfig, error) {
	rows, err := s.db.Query(`
		SELECT id, institution, flex_token, flex_query_id, auto_import_enabled
		FROM gateway_config
		WHERE auto_import_enabled = 1
		ORDER BY institution ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query gateway_config table: %w", err)
	}
	defer rows.Close()

	configs := []model.GatewayConfig{}

	for rows.Next() {
		var c model.GatewayConfig
		var encryptedToken string

		err := rows.Scan(&c.ID, &c.Institution, &encryptedToken, &c.FlexQueryID, &c.AutoImportEnabled)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gateway_config results: %w", err)
		}

		token := fernet.VerifyAndDecrypt([]byte(encryptedToken), 0, []*fernet.Key{s.key})
		if token == nil {
			return nil, fmt.Errorf("failed to decrypt gateway token for %s", c.Institution)
		}
		c.FlexToken = string(token)

		configs = append(configs, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gateway_config table: %w", err)
	}

	return configs, nil
}
