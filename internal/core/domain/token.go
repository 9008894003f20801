package domain

// TokenClaims are the claims carried by an admin bearer token.
type TokenClaims struct {
	Subject   string `json:"subject"`
	Email     string `json:"email"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}
