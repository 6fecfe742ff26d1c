package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auctionhaus/marketd/internal/domain"
)

// CancellationStore implements domain.CancellationStore using
// PostgreSQL. Markers are sticky: an insert for an already-marked
// listing is a no-op.
type CancellationStore struct {
	pool *pgxpool.Pool
}

var _ domain.CancellationStore = (*CancellationStore)(nil)

// NewCancellationStore creates a new CancellationStore backed by the
// given connection pool.
func NewCancellationStore(pool *pgxpool.Pool) *CancellationStore {
	return &CancellationStore{pool: pool}
}

// Insert records a cancellation marker.
func (s *CancellationStore) Insert(ctx context.Context, c domain.Cancellation) error {
	const query = `
		INSERT INTO cancellations (collection, token_id, modality, seller, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, token_id, modality) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		c.Key.Collection.Hex(), int64(c.Key.TokenID),
		string(c.Modality), c.Seller.Hex(), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert cancellation %s: %w", c.Key, err)
	}
	return nil
}

// Get retrieves the marker for an asset and modality.
func (s *CancellationStore) Get(ctx context.Context, key domain.Key, modality domain.Modality) (domain.Cancellation, error) {
	const query = `
		SELECT collection, token_id, modality, seller, created_at
		FROM cancellations
		WHERE collection = $1 AND token_id = $2 AND modality = $3`

	var c domain.Cancellation
	var collection, mod, seller string
	var tokenID int64
	err := s.pool.QueryRow(ctx, query,
		key.Collection.Hex(), int64(key.TokenID), string(modality),
	).Scan(&collection, &tokenID, &mod, &seller, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Cancellation{}, domain.ErrNotFound
		}
		return domain.Cancellation{}, fmt.Errorf("postgres: get cancellation %s: %w", key, err)
	}
	c.Key = domain.Key{Collection: common.HexToAddress(collection), TokenID: uint64(tokenID)}
	c.Modality = domain.Modality(mod)
	c.Seller = common.HexToAddress(seller)
	return c, nil
}
