package driven

import (
	"context"
	"time"
)

// DistributedLock serializes connection mutations across service instances.
// A single instance already serializes them with a process mutex; the lock
// matters only when several replicas share one connection record.
type DistributedLock interface {
	// Acquire attempts to take a named lock with a TTL.
	// Returns true if acquired, false if held elsewhere.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release releases a named lock if held by this instance.
	// Safe to call when the lock is not held or has expired.
	Release(ctx context.Context, name string) error
}
