package badgerdb

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/auctionhaus/marketd/internal/domain"
)

const bidsPrefix = "bids:"

// BidStore implements domain.BidStore on Badger. The whole escrow state
// of one auction lives in a single JSON blob; callers already serialize
// writes through the per-asset lock.
type BidStore struct {
	db *badger.DB
}

var _ domain.BidStore = (*BidStore)(nil)

// NewBidStore creates a BidStore on the shared client.
func NewBidStore(c *Client) *BidStore {
	return &BidStore{db: c.db}
}

func (s *BidStore) Push(ctx context.Context, bid domain.Bid) error {
	state, err := s.State(ctx, bid.Key)
	if err != nil {
		return err
	}
	if state.Highest != nil {
		state.Superseded = append(state.Superseded, *state.Highest)
	}
	state.Highest = &bid
	if err := setJSON(s.db, bidsPrefix+bid.Key.String(), state); err != nil {
		return fmt.Errorf("badgerdb: push bid %s seq %d: %w", bid.Key, bid.Seq, err)
	}
	return nil
}

func (s *BidStore) State(ctx context.Context, key domain.Key) (domain.BidState, error) {
	var state domain.BidState
	err := getJSON(s.db, bidsPrefix+key.String(), &state)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.BidState{}, nil
	}
	if err != nil {
		return domain.BidState{}, fmt.Errorf("badgerdb: bid state %s: %w", key, err)
	}
	return state, nil
}

func (s *BidStore) Clear(ctx context.Context, key domain.Key) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(bidsPrefix + key.String()))
	})
	if err != nil {
		return fmt.Errorf("badgerdb: clear bids %s: %w", key, err)
	}
	return nil
}
