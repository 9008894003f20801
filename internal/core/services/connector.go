package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driven"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driving"
)

// Ensure connectorService implements ConnectorService
var _ driving.ConnectorService = (*connectorService)(nil)

// callbackPath is where the provider redirects after authorization.
const callbackPath = "/api/v1/connector/callback"

// writerLockName is the distributed lock guarding connection mutations.
const writerLockName = "connector:writer"

// Demo flow constants, matching the sandbox responses the original service
// returned when no live app registration was configured.
const (
	demoAccessToken  = "mock_access_token"
	demoRefreshToken = "mock_refresh_token"
	demoExpiresIn    = 3600
	demoTenantID     = "demo-tenant"
	demoTenantName   = "Demo Company"
	demoTenantType   = "ORGANISATION"
)

// ConnectorServiceConfig holds configuration for the connector service.
type ConnectorServiceConfig struct {
	// SettingsStore supplies the provider app credentials.
	SettingsStore driven.SettingsStore

	// ConnectionStore persists the connection record.
	ConnectionStore driven.ConnectionStore

	// PendingStore holds in-flight authorizations.
	PendingStore driven.PendingAuthStore

	// Provider performs the OAuth2 network calls.
	Provider driven.ProviderClient

	// Lock serializes mutations across instances. Optional - nil means a
	// single-instance deployment relying on the process mutex and the
	// store's version check.
	Lock driven.DistributedLock

	// OrgID scopes the connection record.
	OrgID string

	// BaseURL is the application base URL used to derive the callback
	// redirect URI when the credentials don't carry one.
	BaseURL string

	// AuthorizeEndpoint is the provider's authorization endpoint.
	AuthorizeEndpoint string

	// PendingTTL bounds how long a state token stays redeemable.
	// Zero means driven.DefaultPendingTTL.
	PendingTTL time.Duration

	// RefreshRetries bounds refresh attempts for transient failures.
	// Zero means 3.
	RefreshRetries int

	// RefreshBackoff is the base delay between refresh retries, doubled
	// per attempt. Zero means 1s.
	RefreshBackoff time.Duration

	Logger *slog.Logger
}

// connectorService implements the ConnectorService interface.
type connectorService struct {
	settings       driven.SettingsStore
	connections    driven.ConnectionStore
	pending        driven.PendingAuthStore
	provider       driven.ProviderClient
	lock           driven.DistributedLock
	orgID          string
	baseURL        string
	authorizeURL   string
	pendingTTL     time.Duration
	refreshRetries int
	refreshBackoff time.Duration
	logger         *slog.Logger

	// mu enforces single-writer discipline: CompleteAuthorization,
	// RefreshIfNeeded, and Disconnect never run concurrently in-process.
	// BeginAuthorization does not take it - pending authorizations are
	// independent, keyed by state.
	mu sync.Mutex

	// pollMu guards the status-poll refresh cooldown so a burst of polls
	// against an expired token triggers at most one refresh attempt.
	pollMu           sync.Mutex
	pollRefreshAfter time.Time
	pollRefreshEvery time.Duration
}

// NewConnectorService creates a new connector service.
func NewConnectorService(cfg ConnectorServiceConfig) driving.ConnectorService {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = driven.DefaultPendingTTL
	}
	if cfg.RefreshRetries <= 0 {
		cfg.RefreshRetries = 3
	}
	if cfg.RefreshBackoff <= 0 {
		cfg.RefreshBackoff = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &connectorService{
		settings:         cfg.SettingsStore,
		connections:      cfg.ConnectionStore,
		pending:          cfg.PendingStore,
		provider:         cfg.Provider,
		lock:             cfg.Lock,
		orgID:            cfg.OrgID,
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		authorizeURL:     cfg.AuthorizeEndpoint,
		pendingTTL:       cfg.PendingTTL,
		refreshRetries:   cfg.RefreshRetries,
		refreshBackoff:   cfg.RefreshBackoff,
		logger:           cfg.Logger,
		pollRefreshEvery: 30 * time.Second,
	}
}

// BeginAuthorization starts the authorization-code flow.
func (s *connectorService) BeginAuthorization(ctx context.Context) (*driving.AuthorizationStart, error) {
	creds, err := s.settings.GetProviderCredentials(ctx, s.orgID)
	if err != nil {
		return nil, fmt.Errorf("get provider credentials: %w", err)
	}

	if !creds.Complete() && !creds.Demo() {
		// A result, not an error: the UI renders remediation guidance.
		return &driving.AuthorizationStart{
			Kind:    driving.StartSetupNeeded,
			Message: "provider app credentials are not configured; set the client ID and client secret before connecting",
		}, nil
	}

	state, err := generateStateToken()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	now := time.Now()
	pending := &driven.PendingAuthorization{
		State:     state,
		OrgID:     s.orgID,
		Demo:      creds.Demo(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.pendingTTL),
	}

	// Put replaces any earlier pending authorization for this org, so a
	// stale state token from a superseded Begin can no longer be redeemed.
	if err := s.pending.Put(ctx, pending); err != nil {
		return nil, fmt.Errorf("save pending authorization: %w", err)
	}

	if err := s.transitionToPending(ctx); err != nil {
		s.logger.Warn("pending transition not persisted", "error", err)
	}

	if pending.Demo {
		// Synthetic URL: short-circuits straight back to the callback so
		// the UI can demo the flow without live credentials.
		return &driving.AuthorizationStart{
			Kind:      driving.StartDemo,
			URL:       s.redirectURI(creds) + "?code=demo-code&state=" + url.QueryEscape(state),
			State:     state,
			ExpiresAt: pending.ExpiresAt,
		}, nil
	}

	return &driving.AuthorizationStart{
		Kind:      driving.StartOK,
		URL:       s.buildAuthorizationURL(creds, state),
		State:     state,
		ExpiresAt: pending.ExpiresAt,
	}, nil
}

// CompleteAuthorization handles the provider callback.
func (s *connectorService) CompleteAuthorization(ctx context.Context, req driving.CallbackRequest) (*domain.ConnectionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.acquireWriter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	// Validate and consume the state token first - single-use regardless
	// of whether the rest of the exchange succeeds.
	pending, err := s.pending.Take(ctx, req.State)
	if err != nil {
		return nil, fmt.Errorf("take pending authorization: %w", err)
	}
	if pending == nil || pending.Expired() {
		return nil, domain.NewFailure(domain.FailureInvalidState, "state token is unknown, expired, or already used")
	}

	if req.Error != "" {
		failure := classifyCallbackError(req.Error, req.ErrorDescription)
		return nil, s.failConnection(ctx, failure)
	}

	creds, err := s.settings.GetProviderCredentials(ctx, s.orgID)
	if err != nil {
		return nil, fmt.Errorf("get provider credentials: %w", err)
	}

	var (
		tokens  *driven.TokenSet
		tenants []domain.Tenant
	)
	if pending.Demo {
		tokens = &driven.TokenSet{
			AccessToken:  demoAccessToken,
			RefreshToken: demoRefreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    demoExpiresIn,
		}
		tenants = []domain.Tenant{{ID: demoTenantID, Name: demoTenantName, Type: demoTenantType}}
	} else {
		tokens, err = s.provider.ExchangeCode(ctx, creds, req.Code)
		if err != nil {
			return nil, s.failConnection(ctx, asFailure(err, domain.FailureProviderError))
		}

		tenants, err = s.provider.Connections(ctx, tokens.AccessToken)
		if err != nil {
			return nil, s.failConnection(ctx, asFailure(err, domain.FailureProviderError))
		}
	}

	if len(tenants) == 0 {
		// A valid token with no usable organization is not "connected".
		return nil, s.failConnection(ctx, domain.NewFailure(domain.FailureNoTenants,
			"the authorized account grants access to no organization"))
	}
	if len(tenants) > 1 {
		s.logger.Warn("multiple tenants returned, selecting first",
			"count", len(tenants), "selected", tenants[0].ID)
	}

	expiry := time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	now := time.Now()
	state, err := s.saveTransition(ctx, func(cur *domain.ConnectionState) {
		cur.Status = domain.StatusConnected
		cur.AccessToken = tokens.AccessToken
		cur.RefreshToken = tokens.RefreshToken
		cur.TokenExpiry = &expiry
		cur.TenantID = tenants[0].ID
		cur.TenantName = tenants[0].Name
		cur.TenantType = tenants[0].Type
		cur.TenantCount = len(tenants)
		cur.DemoMode = pending.Demo
		cur.LastSyncedAt = &now
		cur.LastError = nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist connected state: %w", err)
	}

	s.logger.Info("connected to accounting provider",
		"tenant_id", state.TenantID, "tenant_name", state.TenantName, "demo", state.DemoMode)
	return state, nil
}

// Disconnect resets the connection. Idempotent.
func (s *connectorService) Disconnect(ctx context.Context) (domain.StatusView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.acquireWriter(ctx)
	if err != nil {
		return domain.StatusView{}, err
	}
	defer release()

	state, err := s.connections.Load(ctx, s.orgID)
	if err != nil {
		return domain.StatusView{}, fmt.Errorf("load connection: %w", err)
	}
	creds, err := s.settings.GetProviderCredentials(ctx, s.orgID)
	if err != nil {
		return domain.StatusView{}, fmt.Errorf("get provider credentials: %w", err)
	}

	// Best-effort revocation at the provider. Its failure never blocks the
	// local disconnect.
	if state.RefreshToken != "" && !state.DemoMode && creds.Complete() {
		revokeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := s.provider.Revoke(revokeCtx, creds, state.RefreshToken); err != nil {
			s.logger.Warn("token revocation failed, disconnecting anyway", "error", err)
		}
		cancel()
	}

	if err := s.connections.Reset(ctx, s.orgID); err != nil {
		return domain.StatusView{}, fmt.Errorf("reset connection: %w", err)
	}

	state, err = s.connections.Load(ctx, s.orgID)
	if err != nil {
		return domain.StatusView{}, fmt.Errorf("load connection: %w", err)
	}
	return domain.ProjectStatus(state, creds), nil
}

// Status projects the client-facing view.
func (s *connectorService) Status(ctx context.Context) (domain.StatusView, error) {
	creds, err := s.settings.GetProviderCredentials(ctx, s.orgID)
	if err != nil {
		return domain.StatusView{}, fmt.Errorf("get provider credentials: %w", err)
	}

	state, err := s.connections.Load(ctx, s.orgID)
	if err != nil {
		return domain.StatusView{}, fmt.Errorf("load connection: %w", err)
	}

	// A poll that discovers an expired token triggers at most one refresh
	// attempt per cooldown window, never one per poll.
	if state.Status == domain.StatusConnected && state.IsExpired() && s.allowPollRefresh() {
		if refreshed, err := s.RefreshIfNeeded(ctx); err == nil {
			state = refreshed
		} else {
			state, err = s.connections.Load(ctx, s.orgID)
			if err != nil {
				return domain.StatusView{}, fmt.Errorf("load connection: %w", err)
			}
		}
	}

	return domain.ProjectStatus(state, creds), nil
}

// RefreshIfNeeded renews the access token when within the refresh margin.
func (s *connectorService) RefreshIfNeeded(ctx context.Context) (*domain.ConnectionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.acquireWriter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := s.connections.Load(ctx, s.orgID)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}

	if state.Status != domain.StatusConnected || !state.NeedsRefresh() {
		return state, nil
	}

	if state.DemoMode {
		// Demo connections renew locally with the same fabricated tokens.
		expiry := time.Now().Add(demoExpiresIn * time.Second)
		now := time.Now()
		return s.saveTransition(ctx, func(cur *domain.ConnectionState) {
			cur.TokenExpiry = &expiry
			cur.LastSyncedAt = &now
		})
	}

	if state.RefreshToken == "" {
		failure := domain.NewFailure(domain.FailureRefreshFailed, "no refresh token available")
		return nil, s.failConnection(ctx, failure)
	}

	creds, err := s.settings.GetProviderCredentials(ctx, s.orgID)
	if err != nil {
		return nil, fmt.Errorf("get provider credentials: %w", err)
	}

	tokens, err := s.refreshWithBackoff(ctx, creds, state.RefreshToken)
	if err != nil {
		underlying := asFailure(err, domain.FailureProviderError)
		failure := domain.NewFailure(domain.FailureRefreshFailed,
			fmt.Sprintf("token refresh failed (%s): %s", underlying.Kind, underlying.Message))
		return nil, s.failConnection(ctx, failure)
	}

	expiry := time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
	now := time.Now()
	return s.saveTransition(ctx, func(cur *domain.ConnectionState) {
		cur.AccessToken = tokens.AccessToken
		if tokens.RefreshToken != "" {
			cur.RefreshToken = tokens.RefreshToken
		}
		cur.TokenExpiry = &expiry
		cur.LastSyncedAt = &now
		cur.LastError = nil
	})
}

// GetValidAccessToken is the boundary consumed by downstream sync jobs.
func (s *connectorService) GetValidAccessToken(ctx context.Context) (string, error) {
	state, err := s.RefreshIfNeeded(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrReauthorizationRequired, err)
	}
	if !state.Usable() || state.IsExpired() {
		return "", domain.ErrReauthorizationRequired
	}
	return state.AccessToken, nil
}

// refreshWithBackoff retries the refresh call with exponential backoff, but
// only for transient (provider_unreachable) failures.
func (s *connectorService) refreshWithBackoff(ctx context.Context, creds *domain.ProviderCredentials, refreshToken string) (*driven.TokenSet, error) {
	var lastErr error
	delay := s.refreshBackoff
	for attempt := 0; attempt < s.refreshRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		tokens, err := s.provider.Refresh(ctx, creds, refreshToken)
		if err == nil {
			return tokens, nil
		}
		lastErr = err

		failure := asFailure(err, domain.FailureProviderError)
		if !failure.Kind.Retryable() {
			return nil, err
		}
		s.logger.Warn("refresh attempt failed, retrying", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// transitionToPending moves a disconnected or errored connection into
// pending. A connected record keeps its status during reauthorization.
func (s *connectorService) transitionToPending(ctx context.Context) error {
	state, err := s.connections.Load(ctx, s.orgID)
	if err != nil {
		return err
	}
	if state.Status == domain.StatusConnected || state.Status == domain.StatusPending {
		return nil
	}
	_, err = s.saveTransition(ctx, func(cur *domain.ConnectionState) {
		if cur.Status == domain.StatusDisconnected || cur.Status == domain.StatusError {
			cur.Status = domain.StatusPending
		}
	})
	return err
}

// failConnection persists an error transition and returns the failure so
// the caller surfaces the same classification it stored.
func (s *connectorService) failConnection(ctx context.Context, failure *domain.Failure) error {
	_, err := s.saveTransition(ctx, func(cur *domain.ConnectionState) {
		cur.Status = domain.StatusError
		cur.AccessToken = ""
		cur.RefreshToken = ""
		cur.TokenExpiry = nil
		cur.LastError = failure
	})
	if err != nil {
		s.logger.Error("persist error transition failed", "kind", failure.Kind, "error", err)
	}
	return failure
}

// saveTransition loads the current record, applies the mutation, and saves
// with the store's version check. A conflicting concurrent save triggers a
// reload and reapply, bounded to three rounds.
func (s *connectorService) saveTransition(ctx context.Context, mutate func(*domain.ConnectionState)) (*domain.ConnectionState, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		state, err := s.connections.Load(ctx, s.orgID)
		if err != nil {
			return nil, err
		}
		next := state.Clone()
		if next.ID == "" {
			next.ID = uuid.NewString()
		}
		mutate(next)
		next.UpdatedAt = time.Now()

		if err := s.connections.Save(ctx, next); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return next, nil
	}
	return nil, lastErr
}

// acquireWriter takes the cross-instance writer lock when one is configured.
// The caller must already hold s.mu.
func (s *connectorService) acquireWriter(ctx context.Context) (func(), error) {
	if s.lock == nil {
		return func() {}, nil
	}
	ok, err := s.lock.Acquire(ctx, writerLockName, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("acquire writer lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("connection is being modified elsewhere: %w", domain.ErrVersionConflict)
	}
	return func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), writerLockName); err != nil {
			s.logger.Warn("release writer lock failed", "error", err)
		}
	}, nil
}

// allowPollRefresh rate-limits status-poll-triggered refresh attempts.
func (s *connectorService) allowPollRefresh() bool {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()
	now := time.Now()
	if now.Before(s.pollRefreshAfter) {
		return false
	}
	s.pollRefreshAfter = now.Add(s.pollRefreshEvery)
	return true
}

// redirectURI returns the callback URI registered with the provider.
func (s *connectorService) redirectURI(creds *domain.ProviderCredentials) string {
	if creds.RedirectURI != "" {
		return creds.RedirectURI
	}
	return s.baseURL + callbackPath
}

// buildAuthorizationURL constructs the provider authorization URL.
func (s *connectorService) buildAuthorizationURL(creds *domain.ProviderCredentials, state string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {creds.ClientID},
		"redirect_uri":  {s.redirectURI(creds)},
		"scope":         {strings.Join(creds.EffectiveScopes(), " ")},
		"state":         {state},
	}
	return s.authorizeURL + "?" + params.Encode()
}

// classifyCallbackError maps an OAuth error parameter from the provider
// redirect into the failure taxonomy.
func classifyCallbackError(code, description string) *domain.Failure {
	message := description
	if message == "" {
		message = "provider returned " + code
	}
	switch code {
	case "unauthorized_client":
		return domain.NewFailure(domain.FailureUnauthorizedClient, message)
	case "invalid_grant":
		return domain.NewFailure(domain.FailureInvalidGrant, message)
	default:
		return domain.NewFailure(domain.FailureProviderError, message)
	}
}

// asFailure extracts a classified failure, falling back to the given kind
// for errors that escaped classification.
func asFailure(err error, fallback domain.FailureKind) *domain.Failure {
	if f, ok := domain.AsFailure(err); ok {
		return f
	}
	return domain.NewFailure(fallback, err.Error())
}

// generateStateToken generates a cryptographically secure random state.
func generateStateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
