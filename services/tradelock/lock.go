// Package tradelock serializes trade execution per (user, exchange, pair).
// The lock lives in the cache tier: acquisition is an atomic
// create-if-absent, release is a conditional delete guarded by an
// ownership token, and the TTL is the safety net against crashed holders.
package tradelock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coinsignals/services/cache"
)

// Manager hands out per-(user, exchange, pair) trade locks
type Manager struct {
	store cache.Store
}

// NewManager creates a lock manager over the shared cache tier
func NewManager(store cache.Store) *Manager {
	return &Manager{store: store}
}

func lockKey(userID uint, exchange, pair string) string {
	return fmt.Sprintf("tradelock:%d:%s:%s", userID, exchange, pair)
}

// Acquire attempts to take the lock for (userID, exchange, pair). It never
// blocks: contention reports acquired=false immediately. On success the
// returned token must be passed back to Release.
func (m *Manager) Acquire(ctx context.Context, userID uint, exchange, pair string, ttl time.Duration) (token string, acquired bool, err error) {
	token = uuid.NewString()
	acquired, err = m.store.SetNX(ctx, lockKey(userID, exchange, pair), token, ttl)
	if err != nil {
		return "", false, fmt.Errorf("acquire trade lock: %w", err)
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if token still owns it. Releasing a lock that
// has already expired, or that a newer holder owns, is a no-op.
func (m *Manager) Release(ctx context.Context, userID uint, exchange, pair, token string) error {
	return m.store.CompareAndDelete(ctx, lockKey(userID, exchange, pair), token)
}
