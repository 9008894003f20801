package domain

import "time"

// DemoClientID is the sandbox credential marker. An admin who configures
// this literal client ID gets the demo flow: synthetic authorization URL,
// fabricated tokens, and a demo tenant - no live provider traffic.
const DemoClientID = "demo"

// ProviderCredentials holds the OAuth2 app registration for the accounting
// provider. Owned by configuration (settings store or environment) and
// read-only to the connector.
type ProviderCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"` // Never serialize
	RedirectURI  string `json:"redirect_uri"`

	// Scopes requested during authorization. Empty means DefaultScopes.
	Scopes []string `json:"scopes,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the secret-free view served by the settings API.
func (c *ProviderCredentials) Summary() *CredentialsSummary {
	return &CredentialsSummary{
		ClientID:    c.ClientID,
		HasSecret:   c.ClientSecret != "",
		RedirectURI: c.RedirectURI,
		Scopes:      c.Scopes,
		UpdatedAt:   c.UpdatedAt,
	}
}

// DefaultScopes is the minimal claim set for reading financial data plus
// offline_access so a refresh token is issued.
func DefaultScopes() []string {
	return []string{
		"openid",
		"offline_access",
		"accounting.transactions.read",
		"accounting.contacts.read",
		"accounting.settings.read",
	}
}

// Complete reports whether both client ID and secret are present. An
// authorization URL must never be issued from incomplete credentials.
func (c *ProviderCredentials) Complete() bool {
	return c != nil && c.ClientID != "" && c.ClientSecret != ""
}

// Demo reports whether the sandbox marker is configured.
func (c *ProviderCredentials) Demo() bool {
	return c != nil && c.ClientID == DemoClientID
}

// EffectiveScopes returns the configured scopes, falling back to defaults.
func (c *ProviderCredentials) EffectiveScopes() []string {
	if c != nil && len(c.Scopes) > 0 {
		return c.Scopes
	}
	return DefaultScopes()
}

// CredentialsSummary is a safe view of the provider credentials for the
// settings API - no secret, just enough to show what is configured.
type CredentialsSummary struct {
	ClientID    string    `json:"client_id"`
	HasSecret   bool      `json:"has_secret"`
	RedirectURI string    `json:"redirect_uri"`
	Scopes      []string  `json:"scopes,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
