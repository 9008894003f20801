package domain

import "time"

// ConnectionStatus is the connector lifecycle state.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusPending      ConnectionStatus = "pending"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// RefreshMargin is how close to expiry a token may get before it is
// proactively renewed.
const RefreshMargin = 5 * time.Minute

// ConnectionState is the single persisted connection record per organization
// scope. It is created implicitly (disconnected) on first access, mutated
// only by the connector state machine, and never hard-deleted - disconnect
// resets it in place.
type ConnectionState struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`

	Status ConnectionStatus `json:"status"`

	// Tokens are opaque secrets, present only while connected.
	// Encrypted at rest, never serialized to API responses.
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`

	TokenExpiry *time.Time `json:"token_expiry,omitempty"`

	// Identity of the remote organization the tokens operate against.
	TenantID   string `json:"tenant_id,omitempty"`
	TenantName string `json:"tenant_name,omitempty"`
	TenantType string `json:"tenant_type,omitempty"`

	// TenantCount records how many tenants the provider reported during
	// authorization. The first is selected; a count above one is surfaced
	// on the status view so the UI can warn about the implicit choice.
	TenantCount int `json:"tenant_count,omitempty"`

	// DemoMode marks a connection fabricated by the sandbox flow.
	DemoMode bool `json:"demo_mode,omitempty"`

	// LastSyncedAt is the last successful status confirmation.
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	// LastError is the classified failure from the most recent error
	// transition. Preserved across disconnect for diagnostics.
	LastError *Failure `json:"last_error,omitempty"`

	// Version guards saves with optimistic concurrency. Incremented by the
	// store on every successful save.
	Version int64 `json:"version"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewDisconnectedState returns the default record for an organization that
// has never connected.
func NewDisconnectedState(orgID string) *ConnectionState {
	return &ConnectionState{
		OrgID:  orgID,
		Status: StatusDisconnected,
	}
}

// NeedsRefresh reports whether the access token is within the refresh
// margin of expiry.
func (s *ConnectionState) NeedsRefresh() bool {
	if s.TokenExpiry == nil {
		return false
	}
	return time.Until(*s.TokenExpiry) < RefreshMargin
}

// IsExpired reports whether the access token has expired outright.
func (s *ConnectionState) IsExpired() bool {
	if s.TokenExpiry == nil {
		return false
	}
	return time.Now().After(*s.TokenExpiry)
}

// Usable reports whether the connection can serve an access token now or
// after a refresh: connected with either an unexpired token or a refresh
// token to redeem.
func (s *ConnectionState) Usable() bool {
	if s.Status != StatusConnected {
		return false
	}
	return !s.IsExpired() || s.RefreshToken != ""
}

// Clone returns a deep copy so callers can build the next state without
// mutating the loaded record.
func (s *ConnectionState) Clone() *ConnectionState {
	next := *s
	if s.TokenExpiry != nil {
		t := *s.TokenExpiry
		next.TokenExpiry = &t
	}
	if s.LastSyncedAt != nil {
		t := *s.LastSyncedAt
		next.LastSyncedAt = &t
	}
	if s.LastError != nil {
		f := *s.LastError
		next.LastError = &f
	}
	return &next
}
