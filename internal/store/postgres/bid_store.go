package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auctionhaus/marketd/internal/domain"
)

// BidStore implements domain.BidStore using PostgreSQL. Bids for one
// auction share the asset key; seq orders them, highest seq leading.
type BidStore struct {
	pool *pgxpool.Pool
}

var _ domain.BidStore = (*BidStore)(nil)

// NewBidStore creates a new BidStore backed by the given connection pool.
func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

// Push appends a bid as the new leader.
func (s *BidStore) Push(ctx context.Context, bid domain.Bid) error {
	const query = `
		INSERT INTO bids (collection, token_id, seq, bidder, amount, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)`

	_, err := s.pool.Exec(ctx, query,
		bid.Key.Collection.Hex(), int64(bid.Key.TokenID), bid.Seq,
		bid.Bidder.Hex(), bid.Amount.String(), bid.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: push bid %s seq %d: %w", bid.Key, bid.Seq, err)
	}
	return nil
}

// State returns every escrowed bid for the auction: the highest seq row
// leads, the rest are superseded in arrival order.
func (s *BidStore) State(ctx context.Context, key domain.Key) (domain.BidState, error) {
	const query = `
		SELECT seq, bidder, amount::TEXT, created_at
		FROM bids
		WHERE collection = $1 AND token_id = $2
		ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query, key.Collection.Hex(), int64(key.TokenID))
	if err != nil {
		return domain.BidState{}, fmt.Errorf("postgres: bid state %s: %w", key, err)
	}
	defer rows.Close()

	var all []domain.Bid
	for rows.Next() {
		var b domain.Bid
		var bidder, amount string
		if err := rows.Scan(&b.Seq, &bidder, &amount, &b.CreatedAt); err != nil {
			return domain.BidState{}, fmt.Errorf("postgres: scan bid: %w", err)
		}
		b.Key = key
		b.Bidder = common.HexToAddress(bidder)
		if b.Amount, err = parseBig(amount); err != nil {
			return domain.BidState{}, err
		}
		all = append(all, b)
	}
	if err := rows.Err(); err != nil {
		return domain.BidState{}, fmt.Errorf("postgres: bid state rows %s: %w", key, err)
	}

	if len(all) == 0 {
		return domain.BidState{}, nil
	}
	return domain.BidState{
		Highest:    &all[len(all)-1],
		Superseded: all[:len(all)-1],
	}, nil
}

// Clear removes every bid for an auction after settlement refunded them.
func (s *BidStore) Clear(ctx context.Context, key domain.Key) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM bids WHERE collection = $1 AND token_id = $2`,
		key.Collection.Hex(), int64(key.TokenID))
	if err != nil {
		return fmt.Errorf("postgres: clear bids %s: %w", key, err)
	}
	return nil
}
