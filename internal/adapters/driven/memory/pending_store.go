package memory

import (
	"context"
	"sync"

	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PendingAuthStore = (*PendingAuthStore)(nil)

// PendingAuthStore is an in-process PendingAuthStore for single-instance
// deployments without Redis. Expired entries are dropped lazily on Take and
// swept by Cleanup.
type PendingAuthStore struct {
	mu      sync.Mutex
	byState map[string]*driven.PendingAuthorization
	byOrg   map[string]string
}

// NewPendingAuthStore creates a new in-memory PendingAuthStore
func NewPendingAuthStore() *PendingAuthStore {
	return &PendingAuthStore{
		byState: make(map[string]*driven.PendingAuthorization),
		byOrg:   make(map[string]string),
	}
}

// Put stores a pending authorization, replacing any existing one for the
// same organization.
func (s *PendingAuthStore) Put(ctx context.Context, pending *driven.PendingAuthorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byOrg[pending.OrgID]; ok {
		delete(s.byState, prev)
	}
	copied := *pending
	s.byState[pending.State] = &copied
	s.byOrg[pending.OrgID] = pending.State
	return nil
}

// Take atomically retrieves and deletes the pending authorization for a
// state token. Returns nil (no error) when absent or expired.
func (s *PendingAuthStore) Take(ctx context.Context, state string) (*driven.PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.byState[state]
	if !ok {
		return nil, nil
	}
	delete(s.byState, state)
	delete(s.byOrg, pending.OrgID)

	if pending.Expired() {
		return nil, nil
	}
	copied := *pending
	return &copied, nil
}

// Cleanup removes expired entries.
func (s *PendingAuthStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for state, pending := range s.byState {
		if pending.Expired() {
			delete(s.byState, state)
			delete(s.byOrg, pending.OrgID)
		}
	}
	return nil
}
