package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driven"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driving"
)

// Ensure settingsService implements SettingsService
var _ driving.SettingsService = (*settingsService)(nil)

// settingsService implements the SettingsService interface.
type settingsService struct {
	store  driven.SettingsStore
	orgID  string
	logger *slog.Logger
}

// NewSettingsService creates a new settings service.
func NewSettingsService(store driven.SettingsStore, orgID string, logger *slog.Logger) driving.SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &settingsService{store: store, orgID: orgID, logger: logger}
}

// GetProviderSettings returns the secret-free credentials summary.
func (s *settingsService) GetProviderSettings(ctx context.Context) (*domain.CredentialsSummary, error) {
	creds, err := s.store.GetProviderCredentials(ctx, s.orgID)
	if err != nil {
		return nil, fmt.Errorf("get provider credentials: %w", err)
	}
	return creds.Summary(), nil
}

// UpdateProviderSettings saves new app credentials. An empty ClientSecret in
// the request keeps the stored secret so the UI never has to echo it back.
func (s *settingsService) UpdateProviderSettings(ctx context.Context, req driving.UpdateProviderSettingsRequest) (*domain.CredentialsSummary, error) {
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: client_id is required", domain.ErrInvalidInput)
	}
	if req.RedirectURI != "" {
		if _, err := url.ParseRequestURI(req.RedirectURI); err != nil {
			return nil, fmt.Errorf("%w: redirect_uri is not a valid URL", domain.ErrInvalidInput)
		}
	}

	current, err := s.store.GetProviderCredentials(ctx, s.orgID)
	if err != nil {
		return nil, fmt.Errorf("get provider credentials: %w", err)
	}

	secret := req.ClientSecret
	if secret == "" {
		secret = current.ClientSecret
	}
	if secret == "" && clientID != domain.DemoClientID {
		return nil, fmt.Errorf("%w: client_secret is required for a live client ID", domain.ErrInvalidInput)
	}

	next := &domain.ProviderCredentials{
		ClientID:     clientID,
		ClientSecret: secret,
		RedirectURI:  req.RedirectURI,
		Scopes:       req.Scopes,
		UpdatedAt:    time.Now(),
	}
	if err := s.store.SaveProviderCredentials(ctx, s.orgID, next); err != nil {
		return nil, fmt.Errorf("save provider credentials: %w", err)
	}

	s.logger.Info("provider credentials updated",
		"client_id", next.ClientID, "demo", next.Demo(), "scopes", len(next.EffectiveScopes()))
	return next.Summary(), nil
}
