package local

import (
	"context"
	"sync"
	"time"

	"github.com/auctionhaus/marketd/internal/domain"
)

// LockManager is an in-process domain.LockManager with the same
// contract as the Redis one: Acquire fails with ErrLockHeld when the
// key is taken, and unlock is safe to call more than once.
type LockManager struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]struct{})}
}

// Acquire takes the lock for key. The TTL is ignored; in-process locks
// die with the process.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if _, taken := lm.held[key]; taken {
		return nil, domain.ErrLockHeld
	}
	lm.held[key] = struct{}{}

	released := false
	unlock := func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(lm.held, key)
	}
	return unlock, nil
}
