package domain

import (
	"context"
	"math/big"
	"time"
)

// PriceCache serves the decayed Dutch asking price without a store
// round trip. Entries are short-lived; a miss falls back to computing
// from the listing.
type PriceCache interface {
	SetPrice(ctx context.Context, key Key, price *big.Int, ttl time.Duration) error
	GetPrice(ctx context.Context, key Key) (*big.Int, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides mutual exclusion per asset key. Every state
// transition on a listing runs under its lock so settlement never races
// a concurrent bid or cancel.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
