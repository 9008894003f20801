package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driven"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driving"
)

// Ensure authService implements AuthService
var _ driving.AuthService = (*authService)(nil)

// DefaultTokenTTL is how long an issued admin token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// AuthServiceConfig holds configuration for the auth service.
type AuthServiceConfig struct {
	Auth driven.AuthAdapter

	// AdminEmail and AdminPasswordHash identify the single admin account.
	// The hash is a bcrypt hash, typically supplied via environment.
	AdminEmail        string
	AdminPasswordHash string

	// TokenTTL overrides DefaultTokenTTL when positive.
	TokenTTL time.Duration

	Logger *slog.Logger
}

// authService implements the AuthService interface against a single
// environment-configured admin account.
type authService struct {
	auth         driven.AuthAdapter
	adminEmail   string
	passwordHash string
	tokenTTL     time.Duration
	logger       *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(cfg AuthServiceConfig) driving.AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &authService{
		auth:         cfg.Auth,
		adminEmail:   strings.ToLower(cfg.AdminEmail),
		passwordHash: cfg.AdminPasswordHash,
		tokenTTL:     cfg.TokenTTL,
		logger:       cfg.Logger,
	}
}

// Login exchanges admin credentials for a bearer token.
func (s *authService) Login(ctx context.Context, req driving.LoginRequest) (*driving.LoginResponse, error) {
	if s.adminEmail == "" || s.passwordHash == "" {
		return nil, fmt.Errorf("%w: admin account is not configured", domain.ErrUnauthorized)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != s.adminEmail || !s.auth.VerifyPassword(req.Password, s.passwordHash) {
		s.logger.Warn("failed login attempt", "email", email)
		return nil, domain.ErrInvalidCredentials
	}

	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)
	token, err := s.auth.GenerateToken(&domain.TokenClaims{
		Subject:   "admin",
		Email:     email,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &driving.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// ValidateToken verifies a bearer token and returns its subject.
func (s *authService) ValidateToken(ctx context.Context, token string) (string, error) {
	claims, err := s.auth.ParseToken(token)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrUnauthorized, err)
	}
	if time.Now().Unix() >= claims.ExpiresAt {
		return "", fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	}
	return claims.Subject, nil
}
