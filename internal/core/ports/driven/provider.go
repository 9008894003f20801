package driven

import (
	"context"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
)

// ProviderClient performs the accounting provider's OAuth2 network calls.
// Implementations are stateless wrappers over the provider's HTTP endpoints:
// no retries here - retry policy belongs to the state machine. Every error
// returned wraps a *domain.Failure; raw HTTP status codes never escape.
type ProviderClient interface {
	// ExchangeCode redeems an authorization code for tokens.
	// Classified failures: provider_unreachable, invalid_grant,
	// unauthorized_client, provider_error.
	ExchangeCode(ctx context.Context, creds *domain.ProviderCredentials, code string) (*TokenSet, error)

	// Refresh redeems a refresh token for a new token set.
	// Classified failures: provider_unreachable, invalid_grant,
	// unauthorized_client, provider_error.
	Refresh(ctx context.Context, creds *domain.ProviderCredentials, refreshToken string) (*TokenSet, error)

	// Connections lists the tenants (remote organizations) the access token
	// grants access to. Classified failures: provider_unreachable,
	// token_rejected, provider_error.
	Connections(ctx context.Context, accessToken string) ([]domain.Tenant, error)

	// Revoke invalidates a refresh token at the provider. Best-effort:
	// callers must not let a revocation failure block local disconnect.
	Revoke(ctx context.Context, creds *domain.ProviderCredentials, refreshToken string) error
}

// TokenSet is the provider's token endpoint response.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string // Usually "Bearer"
	Scope        string // Space-separated scopes
	ExpiresIn    int    // Seconds until expiry
}
