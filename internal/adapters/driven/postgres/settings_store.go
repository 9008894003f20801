package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SettingsStore = (*SettingsStore)(nil)

// SettingsStore implements driven.SettingsStore using PostgreSQL. The client
// secret is encrypted at rest.
type SettingsStore struct {
	db        *DB
	encryptor *SecretEncryptor
}

// NewSettingsStore creates a new SettingsStore
func NewSettingsStore(db *DB, encryptor *SecretEncryptor) *SettingsStore {
	return &SettingsStore{db: db, encryptor: encryptor}
}

// GetProviderCredentials retrieves the provider app credentials for an
// organization. Returns an empty struct when nothing is configured yet.
func (s *SettingsStore) GetProviderCredentials(ctx context.Context, orgID string) (*domain.ProviderCredentials, error) {
	query := `
		SELECT client_id, secret_blob, redirect_uri, scopes, updated_at
		FROM provider_settings
		WHERE org_id = $1
	`

	var creds domain.ProviderCredentials
	var secretBlob []byte
	var scopes pq.StringArray

	err := s.db.QueryRowContext(ctx, query, orgID).Scan(
		&creds.ClientID,
		&secretBlob,
		&creds.RedirectURI,
		&scopes,
		&creds.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return &domain.ProviderCredentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load provider settings: %w", err)
	}

	if len(secretBlob) > 0 {
		secret, err := s.encryptor.DecryptString(secretBlob)
		if err != nil {
			return nil, fmt.Errorf("decrypt client secret: %w", err)
		}
		creds.ClientSecret = secret
	}
	creds.Scopes = scopes

	return &creds, nil
}

// SaveProviderCredentials upserts the provider app credentials.
func (s *SettingsStore) SaveProviderCredentials(ctx context.Context, orgID string, creds *domain.ProviderCredentials) error {
	var secretBlob []byte
	if creds.ClientSecret != "" {
		var err error
		secretBlob, err = s.encryptor.EncryptString(creds.ClientSecret)
		if err != nil {
			return fmt.Errorf("encrypt client secret: %w", err)
		}
	}

	if creds.UpdatedAt.IsZero() {
		creds.UpdatedAt = time.Now()
	}

	scopes := creds.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	query := `
		INSERT INTO provider_settings (org_id, client_id, secret_blob, redirect_uri, scopes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (org_id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			secret_blob = EXCLUDED.secret_blob,
			redirect_uri = EXCLUDED.redirect_uri,
			scopes = EXCLUDED.scopes,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		orgID,
		creds.ClientID,
		secretBlob,
		creds.RedirectURI,
		pq.StringArray(scopes),
		creds.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save provider settings: %w", err)
	}
	return nil
}
