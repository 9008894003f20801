package domain

import "errors"

// FailureKind classifies a connector failure. Raw provider HTTP status codes
// never cross out of the accounting adapter - every failure is mapped to one
// of these kinds before it reaches the state machine or its callers.
type FailureKind string

const (
	// FailureInvalidState - callback state token absent, expired, or replayed
	FailureInvalidState FailureKind = "invalid_state"

	// FailureInvalidGrant - authorization code stale or already used
	FailureInvalidGrant FailureKind = "invalid_grant"

	// FailureUnauthorizedClient - provider app not registered or not approved
	FailureUnauthorizedClient FailureKind = "unauthorized_client"

	// FailureProviderUnreachable - network error or timeout talking to the provider
	FailureProviderUnreachable FailureKind = "provider_unreachable"

	// FailureProviderError - provider returned an unclassified non-2xx response
	FailureProviderError FailureKind = "provider_error"

	// FailureTokenRejected - provider rejected the access token (401)
	FailureTokenRejected FailureKind = "token_rejected"

	// FailureRefreshFailed - refresh token could not be redeemed
	FailureRefreshFailed FailureKind = "refresh_failed"

	// FailureNoTenants - token exchange succeeded but the credentials grant
	// access to no organization
	FailureNoTenants FailureKind = "no_tenants_available"
)

// Failure is a classified connector error with a human-readable message.
// It is both the persisted last_error on a ConnectionState and the error
// value surfaced to callers.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// NewFailure creates a classified failure.
func NewFailure(kind FailureKind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return string(f.Kind) + ": " + f.Message
	}
	return string(f.Kind)
}

// AsFailure extracts a classified failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Retryable reports whether the failure is safe to retry with backoff.
// Only applies to token refresh - authorization codes are single-use and
// must never be retried.
func (k FailureKind) Retryable() bool {
	return k == FailureProviderUnreachable
}

// ForcesReauthorization reports whether the failure invalidates the stored
// connection, requiring the admin to run the authorization flow again.
func (k FailureKind) ForcesReauthorization() bool {
	switch k {
	case FailureTokenRejected, FailureRefreshFailed:
		return true
	default:
		return false
	}
}
