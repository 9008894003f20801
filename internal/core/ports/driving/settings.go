package driving

import (
	"context"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
)

// SettingsService manages the provider app registration.
type SettingsService interface {
	// GetProviderSettings returns the secret-free credentials summary.
	GetProviderSettings(ctx context.Context) (*domain.CredentialsSummary, error)

	// UpdateProviderSettings saves new app credentials. An empty
	// ClientSecret in the request keeps the stored secret.
	UpdateProviderSettings(ctx context.Context, req UpdateProviderSettingsRequest) (*domain.CredentialsSummary, error)
}

// UpdateProviderSettingsRequest carries new provider app credentials.
// @Description Provider app registration update
type UpdateProviderSettingsRequest struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	RedirectURI  string   `json:"redirect_uri,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}
