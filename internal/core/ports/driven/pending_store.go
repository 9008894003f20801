package driven

import (
	"context"
	"time"
)

// DefaultPendingTTL is how long an authorization state token stays
// redeemable before the callback rejects it.
const DefaultPendingTTL = 10 * time.Minute

// PendingAuthorization is the ephemeral record for an in-flight
// authorization, keyed by the random state token sent to the provider.
type PendingAuthorization struct {
	State          string    `json:"state"`
	OrgID          string    `json:"org_id"`
	RedirectTarget string    `json:"redirect_target,omitempty"`
	Demo           bool      `json:"demo,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the state token is past its TTL.
func (p *PendingAuthorization) Expired() bool {
	return time.Now().After(p.ExpiresAt)
}

// PendingAuthStore holds in-flight authorizations. State tokens are
// single-use: Take consumes. At most one pending authorization exists per
// organization - Put replaces any earlier one for the same org, so a stale
// state token from a superseded Begin is rejected.
type PendingAuthStore interface {
	// Put stores a pending authorization, replacing any existing one for
	// the same organization.
	Put(ctx context.Context, pending *PendingAuthorization) error

	// Take atomically retrieves and deletes the pending authorization for
	// a state token. Returns nil (no error) when absent or expired.
	Take(ctx context.Context, state string) (*PendingAuthorization, error)

	// Cleanup removes expired entries. Called by the background janitor;
	// stores with native TTL may make this a no-op.
	Cleanup(ctx context.Context) error
}
