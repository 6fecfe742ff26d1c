package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/auctionhaus/marketd/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PriceCache implements domain.PriceCache using plain Redis strings.
// The decayed Dutch asking price for an asset is stored in decimal form
// at key "price:{asset}" with a short TTL; readers that miss recompute
// from the listing.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(key domain.Key) string {
	return "price:" + key.String()
}

// SetPrice caches the current asking price for an asset with the given
// TTL.
func (pc *PriceCache) SetPrice(ctx context.Context, key domain.Key, price *big.Int, ttl time.Duration) error {
	if err := pc.rdb.Set(ctx, priceKey(key), price.String(), ttl).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", key, err)
	}
	return nil
}

// GetPrice retrieves the cached asking price for an asset. It returns
// domain.ErrNotFound when the key does not exist or has expired.
func (pc *PriceCache) GetPrice(ctx context.Context, key domain.Key) (*big.Int, error) {
	val, err := pc.rdb.Get(ctx, priceKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get price %s: %w", key, err)
	}
	price, ok := new(big.Int).SetString(val, 10)
	if !ok {
		return nil, fmt.Errorf("redis: malformed cached price %q for %s", val, key)
	}
	return price, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
