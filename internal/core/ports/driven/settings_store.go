package driven

import (
	"context"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
)

// SettingsStore holds the provider app credentials. The connector reads
// them on every flow start; the settings API writes them.
type SettingsStore interface {
	// GetProviderCredentials returns the configured credentials. Never nil
	// on success - an empty struct means nothing is configured yet.
	GetProviderCredentials(ctx context.Context, orgID string) (*domain.ProviderCredentials, error)

	// SaveProviderCredentials upserts the credentials for an organization.
	SaveProviderCredentials(ctx context.Context, orgID string, creds *domain.ProviderCredentials) error
}
