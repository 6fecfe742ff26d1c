package local

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/auctionhaus/marketd/internal/domain"
)

// RateLimiter is an in-process sliding-window domain.RateLimiter with
// the same semantics as the Redis one.
type RateLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// WithClock overrides the time source for deterministic tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-window)
	kept := rl.events[key][:0]
	for _, t := range rl.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rl.events[key] = kept

	if len(kept) >= limit {
		return false, nil
	}
	rl.events[key] = append(kept, now)
	return true, nil
}

func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		allowed, err := rl.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		timer := time.NewTimer(10 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// PriceCache is an in-process domain.PriceCache with TTL expiry.
type PriceCache struct {
	mu      sync.Mutex
	entries map[domain.Key]priceEntry
	now     func() time.Time
}

type priceEntry struct {
	price   string
	expires time.Time
}

var _ domain.PriceCache = (*PriceCache)(nil)

// NewPriceCache creates a PriceCache.
func NewPriceCache() *PriceCache {
	return &PriceCache{
		entries: make(map[domain.Key]priceEntry),
		now:     time.Now,
	}
}

// WithClock overrides the time source for deterministic tests.
func (pc *PriceCache) WithClock(now func() time.Time) *PriceCache {
	pc.now = now
	return pc
}

func (pc *PriceCache) SetPrice(ctx context.Context, key domain.Key, price *big.Int, ttl time.Duration) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.entries[key] = priceEntry{price: price.String(), expires: pc.now().Add(ttl)}
	return nil
}

func (pc *PriceCache) GetPrice(ctx context.Context, key domain.Key) (*big.Int, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	entry, ok := pc.entries[key]
	if !ok || pc.now().After(entry.expires) {
		delete(pc.entries, key)
		return nil, domain.ErrNotFound
	}
	price, ok := new(big.Int).SetString(entry.price, 10)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return price, nil
}
