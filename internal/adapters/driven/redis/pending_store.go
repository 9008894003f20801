package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PendingAuthStore = (*PendingAuthStore)(nil)

const (
	// Key prefixes for Redis
	pendingStatePrefix = "finvoice:pending:state:"
	pendingOrgPrefix   = "finvoice:pending:org:"
)

// PendingAuthStore implements driven.PendingAuthStore using Redis. Entries
// expire through native TTL, and an org index enforces at most one pending
// authorization per organization.
type PendingAuthStore struct {
	client *redis.Client
}

// NewPendingAuthStore creates a new Redis-backed PendingAuthStore
func NewPendingAuthStore(client *redis.Client) *PendingAuthStore {
	return &PendingAuthStore{client: client}
}

// putScript is a Lua script that swaps the org's pending authorization in a
// single atomic step: drop the superseded state entry named by the org index,
// then write the new state entry and repoint the index. Without the script a
// concurrent Put could leave a stale state token redeemable until its TTL.
var putScript = redis.NewScript(`
	local prev = redis.call("get", KEYS[2])
	if prev and prev ~= ARGV[3] then
		redis.call("del", ARGV[4] .. prev)
	end
	redis.call("set", KEYS[1], ARGV[1], "px", ARGV[2])
	redis.call("set", KEYS[2], ARGV[3], "px", ARGV[2])
	return 1
`)

// Put stores a pending authorization, replacing any existing one for the
// same organization so the superseded state token can no longer redeem.
func (s *PendingAuthStore) Put(ctx context.Context, pending *driven.PendingAuthorization) error {
	ttl := time.Until(pending.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	ttlMillis := ttl.Milliseconds()
	if ttlMillis < 1 {
		ttlMillis = 1
	}

	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending authorization: %w", err)
	}

	keys := []string{pendingStatePrefix + pending.State, pendingOrgPrefix + pending.OrgID}
	err = putScript.Run(ctx, s.client, keys, data, ttlMillis, pending.State, pendingStatePrefix).Err()
	if err != nil {
		return fmt.Errorf("failed to save pending authorization: %w", err)
	}
	return nil
}

// Take atomically retrieves and deletes the pending authorization for a
// state token. Returns nil (no error) when absent or expired - native TTL
// already removed expired entries.
func (s *PendingAuthStore) Take(ctx context.Context, state string) (*driven.PendingAuthorization, error) {
	data, err := s.client.GetDel(ctx, pendingStatePrefix+state).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take pending authorization: %w", err)
	}

	var pending driven.PendingAuthorization
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending authorization: %w", err)
	}

	// Clean the org index; ignore a mismatch from a racing Put.
	current, err := s.client.Get(ctx, pendingOrgPrefix+pending.OrgID).Result()
	if err == nil && current == state {
		s.client.Del(ctx, pendingOrgPrefix+pending.OrgID)
	}

	if pending.Expired() {
		return nil, nil
	}
	return &pending, nil
}

// Cleanup is a no-op: Redis TTL expires entries natively.
func (s *PendingAuthStore) Cleanup(ctx context.Context) error {
	return nil
}

// Ping checks if the Redis backend is healthy.
func (s *PendingAuthStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
