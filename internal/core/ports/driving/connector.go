package driving

import (
	"context"
	"time"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
)

// ConnectorService drives the accounting provider connection lifecycle:
// authorization-code flow, token refresh, status projection, disconnect.
type ConnectorService interface {
	// BeginAuthorization starts the authorization-code flow. The result is
	// tagged: OK carries a live authorization URL, Demo carries a synthetic
	// one, SetupNeeded carries a remediation message instead of a URL.
	// SetupNeeded is a result, not an error - the UI renders it as guidance.
	BeginAuthorization(ctx context.Context) (*AuthorizationStart, error)

	// CompleteAuthorization handles the provider callback: validates the
	// state token, exchanges the code, resolves the tenant, and persists
	// the connected state. Failures are classified *domain.Failure values.
	CompleteAuthorization(ctx context.Context, req CallbackRequest) (*domain.ConnectionState, error)

	// Disconnect resets the connection. Idempotent - never fails because
	// the connection was already gone. Token revocation at the provider is
	// attempted best-effort and never blocks the local reset.
	Disconnect(ctx context.Context) (domain.StatusView, error)

	// Status projects the client-facing status view. Read-only, except
	// that discovering an expired token triggers at most one refresh
	// attempt (not one per poll).
	Status(ctx context.Context) (domain.StatusView, error)

	// RefreshIfNeeded renews the access token when it is within the
	// refresh margin of expiry. On refresh failure the connection
	// transitions to error (refresh_failed) rather than staying nominally
	// connected with a stale token.
	RefreshIfNeeded(ctx context.Context) (*domain.ConnectionState, error)

	// GetValidAccessToken is the boundary for downstream synchronization
	// jobs: refreshes if needed and returns a usable token, or
	// domain.ErrReauthorizationRequired.
	GetValidAccessToken(ctx context.Context) (string, error)
}

// StartKind tags a BeginAuthorization result.
type StartKind string

const (
	// StartOK - live authorization URL, redirect the user to it.
	StartOK StartKind = "ok"

	// StartDemo - sandbox marker configured; the URL short-circuits back to
	// the callback without touching the real provider.
	StartDemo StartKind = "demo"

	// StartSetupNeeded - credentials incomplete; Message says what to fix.
	StartSetupNeeded StartKind = "setup_needed"
)

// AuthorizationStart is the tagged result of BeginAuthorization.
// @Description Result of starting the authorization flow
type AuthorizationStart struct {
	Kind StartKind `json:"kind"`

	// URL is the authorization URL (absent for setup_needed).
	URL string `json:"url,omitempty"`

	// State is the CSRF token embedded in the URL, for reference.
	State string `json:"state,omitempty"`

	// ExpiresAt is when the pending authorization stops being redeemable.
	ExpiresAt time.Time `json:"expires_at,omitzero"`

	// Message carries remediation guidance for setup_needed.
	Message string `json:"message,omitempty"`
}

// CallbackRequest carries the provider redirect's query parameters.
// @Description OAuth callback parameters from the provider redirect
type CallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`

	// Error and ErrorDescription are set when the provider redirected back
	// with an OAuth error instead of a code.
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}
