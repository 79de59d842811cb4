package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that matched nothing.
var ErrNotFound = errors.New("not found")

// RunLockRepository serialises crawls per city across processes.
type RunLockRepository interface {
	// Acquire takes the lock for key unless someone else holds it. The lock
	// expires after ttl so a crashed holder cannot block forever.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops the lock for key.
	Release(ctx context.Context, key string) error
}
