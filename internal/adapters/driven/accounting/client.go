package accounting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driven"
)

// Ensure Client implements ProviderClient
var _ driven.ProviderClient = (*Client)(nil)

// Default endpoints for the accounting provider's identity service.
const (
	DefaultTokenURL       = "https://identity.xero.com/connect/token"
	DefaultConnectionsURL = "https://api.xero.com/connections"
	DefaultRevokeURL      = "https://identity.xero.com/connect/revocation"
)

// ClientConfig holds configuration for the provider client.
type ClientConfig struct {
	// TokenURL, ConnectionsURL, and RevokeURL override the provider
	// defaults, mainly for tests.
	TokenURL       string
	ConnectionsURL string
	RevokeURL      string

	// Timeout bounds each provider call. Zero means 10s.
	Timeout time.Duration
}

// Client calls the accounting provider's OAuth2 and connections endpoints.
// Stateless: retry policy and persistence belong to the caller. Every error
// it returns wraps a *domain.Failure so callers never see raw status codes.
type Client struct {
	httpClient     *http.Client
	tokenURL       string
	connectionsURL string
	revokeURL      string
}

// NewClient creates a new provider client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.ConnectionsURL == "" {
		cfg.ConnectionsURL = DefaultConnectionsURL
	}
	if cfg.RevokeURL == "" {
		cfg.RevokeURL = DefaultRevokeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		tokenURL:       cfg.TokenURL,
		connectionsURL: cfg.ConnectionsURL,
		revokeURL:      cfg.RevokeURL,
	}
}

// ExchangeCode redeems an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, creds *domain.ProviderCredentials, code string) (*driven.TokenSet, error) {
	params := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {creds.RedirectURI},
	}
	return c.tokenRequest(ctx, creds, params)
}

// Refresh redeems a refresh token for a new token set.
func (c *Client) Refresh(ctx context.Context, creds *domain.ProviderCredentials, refreshToken string) (*driven.TokenSet, error) {
	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.tokenRequest(ctx, creds, params)
}

// Connections lists the tenants the access token grants access to.
func (c *Client) Connections(ctx context.Context, accessToken string) ([]domain.Tenant, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.connectionsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unreachable(err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.NewFailure(domain.FailureTokenRejected,
			"provider rejected the access token")
	default:
		return nil, domain.NewFailure(domain.FailureProviderError,
			fmt.Sprintf("connections request failed with status %d", resp.StatusCode))
	}

	var raw []struct {
		TenantID   string `json:"tenantId"`
		TenantName string `json:"tenantName"`
		TenantType string `json:"tenantType"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domain.NewFailure(domain.FailureProviderError,
			"provider returned a malformed connections response")
	}

	tenants := make([]domain.Tenant, 0, len(raw))
	for _, conn := range raw {
		tenants = append(tenants, domain.Tenant{
			ID:   conn.TenantID,
			Name: conn.TenantName,
			Type: conn.TenantType,
		})
	}
	return tenants, nil
}

// Revoke invalidates a refresh token at the provider (RFC 7009).
func (c *Client) Revoke(ctx context.Context, creds *domain.ProviderCredentials, refreshToken string) error {
	params := url.Values{"token": {refreshToken}}

	req, err := http.NewRequestWithContext(ctx, "POST", c.revokeURL, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unreachable(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return domain.NewFailure(domain.FailureProviderError,
			fmt.Sprintf("revocation failed with status %d", resp.StatusCode))
	}
	return nil
}

// tokenRequest posts to the token endpoint with client basic auth and maps
// the response into the failure taxonomy.
func (c *Client) tokenRequest(ctx context.Context, creds *domain.ProviderCredentials, params url.Values) (*driven.TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.tokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unreachable(err)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
		ExpiresIn    int    `json:"expires_in"`
		Error        string `json:"error"`
		ErrorDesc    string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil && resp.StatusCode == http.StatusOK {
		return nil, domain.NewFailure(domain.FailureProviderError,
			"provider returned a malformed token response")
	}

	if resp.StatusCode != http.StatusOK || tokenResp.Error != "" {
		return nil, classifyTokenError(resp.StatusCode, tokenResp.Error, tokenResp.ErrorDesc)
	}

	return &driven.TokenSet{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
		Scope:        tokenResp.Scope,
		ExpiresIn:    tokenResp.ExpiresIn,
	}, nil
}

// classifyTokenError maps a token endpoint error response onto the failure
// taxonomy. The OAuth error code wins over the HTTP status.
func classifyTokenError(status int, oauthError, description string) *domain.Failure {
	message := description
	if message == "" && oauthError != "" {
		message = "provider returned " + oauthError
	}
	if message == "" {
		message = fmt.Sprintf("token request failed with status %d", status)
	}

	switch oauthError {
	case "invalid_grant":
		return domain.NewFailure(domain.FailureInvalidGrant, message)
	case "unauthorized_client", "invalid_client":
		return domain.NewFailure(domain.FailureUnauthorizedClient, message)
	}
	// Without an OAuth error code there is nothing to pin the failure on the
	// app registration, so even a 401 stays a generic provider error.
	return domain.NewFailure(domain.FailureProviderError, message)
}

// unreachable wraps a transport-level error.
func unreachable(err error) *domain.Failure {
	return domain.NewFailure(domain.FailureProviderUnreachable, err.Error())
}
