package domain

import "time"

// StatusView is the client-facing projection of the connection state.
// @Description Connector status as shown to the UI
type StatusView struct {
	IsAuthenticated bool       `json:"is_authenticated"`
	TenantID        string     `json:"tenant_id,omitempty"`
	TenantName      string     `json:"tenant_name,omitempty"`
	TenantCount     int        `json:"tenant_count,omitempty"`
	TokenExpiry     *time.Time `json:"token_expiry,omitempty"`
	LastSync        *time.Time `json:"last_sync,omitempty"`

	// SetupNeeded distinguishes "admin must fix the app registration" from
	// a transient failure - the UI renders a different call-to-action.
	SetupNeeded bool `json:"setup_needed"`

	IsDemoMode bool `json:"is_demo_mode,omitempty"`

	ErrorKind    string `json:"error,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ProjectStatus derives the status view from the stored connection state and
// the configured credentials. Pure - no I/O, no clock beyond the state's own
// fields, deterministic for a given input.
func ProjectStatus(state *ConnectionState, creds *ProviderCredentials) StatusView {
	view := StatusView{
		SetupNeeded: !creds.Complete() && !creds.Demo(),
	}
	if state == nil {
		return view
	}

	view.IsAuthenticated = state.Status == StatusConnected
	view.IsDemoMode = state.DemoMode || creds.Demo()

	if view.IsAuthenticated {
		view.TenantID = state.TenantID
		view.TenantName = state.TenantName
		view.TenantCount = state.TenantCount
		view.TokenExpiry = state.TokenExpiry
		view.LastSync = state.LastSyncedAt
	}

	if state.LastError != nil {
		view.ErrorKind = string(state.LastError.Kind)
		view.ErrorMessage = state.LastError.Message
		if state.LastError.Kind == FailureUnauthorizedClient {
			view.SetupNeeded = true
		}
	}

	return view
}
