package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ConnectionStore = (*ConnectionStore)(nil)

// tokenPair is the encrypted payload stored in token_blob.
type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ConnectionStore implements driven.ConnectionStore using PostgreSQL.
// Tokens are encrypted at rest; Save is a compare-and-swap on the version
// column so concurrent writers cannot interleave.
type ConnectionStore struct {
	db        *DB
	encryptor *SecretEncryptor
}

// NewConnectionStore creates a new ConnectionStore
func NewConnectionStore(db *DB, encryptor *SecretEncryptor) *ConnectionStore {
	return &ConnectionStore{db: db, encryptor: encryptor}
}

// Load returns the stored record, or a default disconnected record when the
// organization has never connected.
func (s *ConnectionStore) Load(ctx context.Context, orgID string) (*domain.ConnectionState, error) {
	query := `
		SELECT id, status, token_blob, token_expiry,
			   tenant_id, tenant_name, tenant_type, tenant_count,
			   demo_mode, last_synced_at, last_error, version, updated_at
		FROM connection_states
		WHERE org_id = $1
	`

	state := domain.ConnectionState{OrgID: orgID}
	var (
		tokenBlob    []byte
		tokenExpiry  sql.NullTime
		lastSyncedAt sql.NullTime
		lastError    []byte
	)

	err := s.db.QueryRowContext(ctx, query, orgID).Scan(
		&state.ID,
		&state.Status,
		&tokenBlob,
		&tokenExpiry,
		&state.TenantID,
		&state.TenantName,
		&state.TenantType,
		&state.TenantCount,
		&state.DemoMode,
		&lastSyncedAt,
		&lastError,
		&state.Version,
		&state.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.NewDisconnectedState(orgID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load connection state: %w", err)
	}

	state.TokenExpiry = TimePtr(tokenExpiry)
	state.LastSyncedAt = TimePtr(lastSyncedAt)

	if len(tokenBlob) > 0 {
		var pair tokenPair
		if err := s.encryptor.Decrypt(tokenBlob, &pair); err != nil {
			return nil, fmt.Errorf("decrypt token blob: %w", err)
		}
		state.AccessToken = pair.AccessToken
		state.RefreshToken = pair.RefreshToken
	}
	if len(lastError) > 0 {
		var failure domain.Failure
		if err := json.Unmarshal(lastError, &failure); err != nil {
			return nil, fmt.Errorf("unmarshal last error: %w", err)
		}
		state.LastError = &failure
	}

	return &state, nil
}

// Save upserts the record, requiring the state's Version to match the stored
// one. On success the state's Version is bumped to the persisted value.
func (s *ConnectionStore) Save(ctx context.Context, state *domain.ConnectionState) error {
	var tokenBlob []byte
	if state.AccessToken != "" || state.RefreshToken != "" {
		var err error
		tokenBlob, err = s.encryptor.Encrypt(tokenPair{
			AccessToken:  state.AccessToken,
			RefreshToken: state.RefreshToken,
		})
		if err != nil {
			return fmt.Errorf("encrypt token blob: %w", err)
		}
	}

	var lastError []byte
	if state.LastError != nil {
		var err error
		lastError, err = json.Marshal(state.LastError)
		if err != nil {
			return fmt.Errorf("marshal last error: %w", err)
		}
	}

	if state.ID == "" {
		state.ID = uuid.NewString()
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}

	if state.Version == 0 {
		// First save for this org: insert unless a row snuck in.
		query := `
			INSERT INTO connection_states (org_id, id, status, token_blob, token_expiry,
										   tenant_id, tenant_name, tenant_type, tenant_count,
										   demo_mode, last_synced_at, last_error, version, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13)
			ON CONFLICT (org_id) DO NOTHING
		`
		result, err := s.db.ExecContext(ctx, query,
			state.OrgID, state.ID, string(state.Status), tokenBlob, NullTime(state.TokenExpiry),
			state.TenantID, state.TenantName, state.TenantType, state.TenantCount,
			state.DemoMode, NullTime(state.LastSyncedAt), lastError, state.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert connection state: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if rows == 0 {
			return domain.ErrVersionConflict
		}
		state.Version = 1
		return nil
	}

	query := `
		UPDATE connection_states
		SET status = $3, token_blob = $4, token_expiry = $5,
			tenant_id = $6, tenant_name = $7, tenant_type = $8, tenant_count = $9,
			demo_mode = $10, last_synced_at = $11, last_error = $12,
			version = version + 1, updated_at = $13
		WHERE org_id = $1 AND version = $2
	`
	result, err := s.db.ExecContext(ctx, query,
		state.OrgID, state.Version, string(state.Status), tokenBlob, NullTime(state.TokenExpiry),
		state.TenantID, state.TenantName, state.TenantType, state.TenantCount,
		state.DemoMode, NullTime(state.LastSyncedAt), lastError, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update connection state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrVersionConflict
	}
	state.Version++
	return nil
}

// Reset returns the record to disconnected, clearing tokens and tenant
// identity while preserving last_error for diagnostics. Idempotent.
func (s *ConnectionStore) Reset(ctx context.Context, orgID string) error {
	query := `
		UPDATE connection_states
		SET status = 'disconnected', token_blob = NULL, token_expiry = NULL,
			tenant_id = '', tenant_name = '', tenant_type = '', tenant_count = 0,
			demo_mode = FALSE, last_synced_at = NULL,
			version = version + 1, updated_at = NOW()
		WHERE org_id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, orgID); err != nil {
		return fmt.Errorf("reset connection state: %w", err)
	}
	return nil
}
