package driving

import "context"

// AuthService authenticates the admin UI against the service.
type AuthService interface {
	// Login exchanges admin credentials for a bearer token.
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)

	// ValidateToken verifies a bearer token and returns its subject.
	ValidateToken(ctx context.Context, token string) (string, error)
}

// LoginRequest carries admin credentials.
// @Description Login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
// @Description Login result
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}
