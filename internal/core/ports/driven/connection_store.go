package driven

import (
	"context"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
)

// ConnectionStore persists the single connection record per organization
// scope. Implementations must make Save an atomic compare-and-swap on the
// record's version so two writers cannot interleave.
type ConnectionStore interface {
	// Load returns the stored record, or a default disconnected record if
	// none has been persisted yet. Never returns nil on success.
	Load(ctx context.Context, orgID string) (*domain.ConnectionState, error)

	// Save atomically replaces the record. The state's Version must match
	// the stored version; on mismatch Save returns domain.ErrVersionConflict
	// and the caller reloads. On success the state's Version is bumped.
	Save(ctx context.Context, state *domain.ConnectionState) error

	// Reset returns the record to disconnected: tokens and tenant cleared,
	// last_error preserved for diagnostics. Idempotent.
	Reset(ctx context.Context, orgID string) error
}
