package memory

import (
	"context"
	"testing"
	"time"

	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driven"
)

func testPending(state, orgID string, ttl time.Duration) *driven.PendingAuthorization {
	now := time.Now()
	return &driven.PendingAuthorization{
		State:     state,
		OrgID:     orgID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestPendingAuthStore_PutTake(t *testing.T) {
	store := NewPendingAuthStore()
	ctx := context.Background()

	if err := store.Put(ctx, testPending("state-1", "org-1", time.Minute)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	pending, err := store.Take(ctx, "state-1")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if pending == nil || pending.OrgID != "org-1" {
		t.Fatalf("Take() = %+v, want pending for org-1", pending)
	}

	if again, _ := store.Take(ctx, "state-1"); again != nil {
		t.Error("second Take() returned a value - state tokens must be single-use")
	}
}

func TestPendingAuthStore_ReplacesSameOrg(t *testing.T) {
	store := NewPendingAuthStore()
	ctx := context.Background()

	store.Put(ctx, testPending("state-old", "org-1", time.Minute))
	store.Put(ctx, testPending("state-new", "org-1", time.Minute))

	if old, _ := store.Take(ctx, "state-old"); old != nil {
		t.Error("superseded state token redeemed")
	}
	if current, _ := store.Take(ctx, "state-new"); current == nil {
		t.Error("current state token rejected")
	}
}

func TestPendingAuthStore_ExpiredEntryNotReturned(t *testing.T) {
	store := NewPendingAuthStore()
	ctx := context.Background()

	store.Put(ctx, testPending("state-1", "org-1", -time.Minute))

	if pending, _ := store.Take(ctx, "state-1"); pending != nil {
		t.Errorf("Take() = %+v, want nil for expired entry", pending)
	}
}

func TestPendingAuthStore_Cleanup(t *testing.T) {
	store := NewPendingAuthStore()
	ctx := context.Background()

	store.Put(ctx, testPending("state-live", "org-live", time.Minute))
	store.Put(ctx, testPending("state-dead", "org-dead", -time.Minute))

	if err := store.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	store.mu.Lock()
	_, liveOK := store.byState["state-live"]
	_, deadOK := store.byState["state-dead"]
	store.mu.Unlock()

	if !liveOK {
		t.Error("live entry swept")
	}
	if deadOK {
		t.Error("expired entry survived cleanup")
	}
}
