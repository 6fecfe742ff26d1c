package badgerdb

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/auctionhaus/marketd/internal/domain"
)

var (
	testCollection = common.HexToAddress("0x00000000000000000000000000000000c0ffee")
	testSeller     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testBuyer      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(ClientConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func key(tokenID uint64) domain.Key {
	return domain.Key{Collection: testCollection, TokenID: tokenID}
}

func fixedListing(tokenID uint64, createdAt time.Time) domain.FixedListing {
	return domain.FixedListing{
		Key:       key(tokenID),
		Seller:    testSeller,
		Price:     big.NewInt(100),
		Status:    domain.ListingStatusActive,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestFixedStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewFixedStore(newTestClient(t))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := fixedListing(7, now)
	require.NoError(t, store.Create(ctx, l))

	got, err := store.Get(ctx, key(7))
	require.NoError(t, err)
	require.Equal(t, l.Key, got.Key)
	require.Equal(t, 0, l.Price.Cmp(got.Price))
	require.Equal(t, domain.ListingStatusActive, got.Status)

	_, err = store.Get(ctx, key(99))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFixedStoreRejectsActiveDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewFixedStore(newTestClient(t))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, fixedListing(7, now)))
	require.ErrorIs(t, store.Create(ctx, fixedListing(7, now)), domain.ErrAlreadyListed)
}

func TestFixedStoreRelistAfterCancel(t *testing.T) {
	ctx := context.Background()
	store := NewFixedStore(newTestClient(t))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := fixedListing(7, now)
	require.NoError(t, store.Create(ctx, l))

	l.Status = domain.ListingStatusCancelled
	require.NoError(t, store.Update(ctx, l))

	// A finished listing no longer blocks a fresh one under the same key.
	relist := fixedListing(7, now.Add(time.Minute))
	relist.Price = big.NewInt(250)
	require.NoError(t, store.Create(ctx, relist))

	got, err := store.Get(ctx, key(7))
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusActive, got.Status)
	require.Equal(t, 0, big.NewInt(250).Cmp(got.Price))
}

func TestFixedStoreUpdateMissing(t *testing.T) {
	ctx := context.Background()
	store := NewFixedStore(newTestClient(t))

	l := fixedListing(7, time.Now().UTC())
	require.ErrorIs(t, store.Update(ctx, l), domain.ErrNotFound)
}

func TestFixedStoreListActivePagination(t *testing.T) {
	ctx := context.Background()
	store := NewFixedStore(newTestClient(t))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := uint64(0); i < 5; i++ {
		require.NoError(t, store.Create(ctx, fixedListing(10+i, base.Add(time.Duration(i)*time.Second))))
	}

	cancelled := fixedListing(20, base.Add(time.Hour))
	require.NoError(t, store.Create(ctx, cancelled))
	cancelled.Status = domain.ListingStatusCancelled
	require.NoError(t, store.Update(ctx, cancelled))

	// Newest first, cancelled excluded.
	all, err := store.ListActive(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, uint64(14), all[0].Key.TokenID)
	require.Equal(t, uint64(10), all[4].Key.TokenID)

	page, err := store.ListActive(ctx, domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, uint64(13), page[0].Key.TokenID)
	require.Equal(t, uint64(12), page[1].Key.TokenID)

	since := base.Add(3 * time.Second)
	recent, err := store.ListActive(ctx, domain.ListOpts{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestEnglishStoreListExpired(t *testing.T) {
	ctx := context.Background()
	store := NewEnglishStore(newTestClient(t))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	open := func(tokenID uint64, endAt time.Time) domain.EnglishListing {
		return domain.EnglishListing{
			Key:        key(tokenID),
			Seller:     testSeller,
			StartPrice: big.NewInt(100),
			StartAt:    base,
			EndAt:      endAt,
			Status:     domain.ListingStatusActive,
			CreatedAt:  base,
			UpdatedAt:  base,
		}
	}
	require.NoError(t, store.Create(ctx, open(1, base.Add(time.Hour))))
	require.NoError(t, store.Create(ctx, open(2, base.Add(30*time.Minute))))
	require.NoError(t, store.Create(ctx, open(3, base.Add(2*time.Hour))))

	sold := open(4, base.Add(time.Minute))
	require.NoError(t, store.Create(ctx, sold))
	sold.Status = domain.ListingStatusSold
	require.NoError(t, store.Update(ctx, sold))

	// An auction is expired once EndAt has been reached; earliest
	// deadlines come back first and finished auctions are skipped.
	expired, err := store.ListExpired(ctx, base.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	require.Equal(t, uint64(2), expired[0].Key.TokenID)
	require.Equal(t, uint64(1), expired[1].Key.TokenID)

	capped, err := store.ListExpired(ctx, base.Add(3*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, capped, 1)
	require.Equal(t, uint64(2), capped[0].Key.TokenID)
}

func TestBidStorePushSupersedes(t *testing.T) {
	ctx := context.Background()
	store := NewBidStore(newTestClient(t))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bid := func(seq int64, bidder common.Address, amount int64) domain.Bid {
		return domain.Bid{
			Key:       key(7),
			Seq:       seq,
			Bidder:    bidder,
			Amount:    big.NewInt(amount),
			CreatedAt: base.Add(time.Duration(seq) * time.Second),
		}
	}

	require.NoError(t, store.Push(ctx, bid(1, testBuyer, 150)))
	require.NoError(t, store.Push(ctx, bid(2, testSeller, 160)))
	require.NoError(t, store.Push(ctx, bid(3, testBuyer, 180)))

	state, err := store.State(ctx, key(7))
	require.NoError(t, err)
	require.NotNil(t, state.Highest)
	require.Equal(t, int64(3), state.Highest.Seq)
	require.Equal(t, 0, big.NewInt(180).Cmp(state.Highest.Amount))

	// Superseded bids keep arrival order, oldest first.
	require.Len(t, state.Superseded, 2)
	require.Equal(t, int64(1), state.Superseded[0].Seq)
	require.Equal(t, int64(2), state.Superseded[1].Seq)
	require.Equal(t, "490", state.Escrowed().String())
}

func TestBidStoreStateEmptyWhenMissing(t *testing.T) {
	ctx := context.Background()
	store := NewBidStore(newTestClient(t))

	state, err := store.State(ctx, key(7))
	require.NoError(t, err)
	require.Nil(t, state.Highest)
	require.Empty(t, state.Superseded)
}

func TestBidStoreClear(t *testing.T) {
	ctx := context.Background()
	store := NewBidStore(newTestClient(t))

	require.NoError(t, store.Push(ctx, domain.Bid{
		Key: key(7), Seq: 1, Bidder: testBuyer, Amount: big.NewInt(150), CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.Clear(ctx, key(7)))

	state, err := store.State(ctx, key(7))
	require.NoError(t, err)
	require.Nil(t, state.Highest)

	// Clearing an empty key is a no-op.
	require.NoError(t, store.Clear(ctx, key(7)))
}

func TestSaleStoreInsertAndQuery(t *testing.T) {
	ctx := context.Background()
	store := NewSaleStore(newTestClient(t))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sale := func(id string, tokenID uint64, at time.Time) domain.Sale {
		return domain.Sale{
			ID:        id,
			Key:       key(tokenID),
			Modality:  domain.ModalityFixed,
			Seller:    testSeller,
			Buyer:     testBuyer,
			Price:     big.NewInt(100),
			CreatedAt: at,
		}
	}
	require.NoError(t, store.Insert(ctx, sale("s1", 7, base)))
	require.NoError(t, store.Insert(ctx, sale("s2", 7, base.Add(time.Hour))))
	require.NoError(t, store.Insert(ctx, sale("s3", 8, base.Add(2*time.Hour))))

	got, err := store.GetByID(ctx, "s2")
	require.NoError(t, err)
	require.Equal(t, key(7), got.Key)
	require.Equal(t, 0, big.NewInt(100).Cmp(got.Price))

	_, err = store.GetByID(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	byKey, err := store.ListByKey(ctx, key(7), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, byKey, 2)
	require.Equal(t, "s2", byKey[0].ID)
	require.Equal(t, "s1", byKey[1].ID)

	all, err := store.List(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "s3", all[0].ID)

	old, err := store.ListBefore(ctx, base.Add(90*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, old, 2)
}

func TestCancellationStoreFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	store := NewCancellationStore(newTestClient(t))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := domain.Cancellation{
		Key:       key(7),
		Modality:  domain.ModalityEnglish,
		Seller:    testSeller,
		CreatedAt: base,
	}
	require.NoError(t, store.Insert(ctx, first))

	later := first
	later.CreatedAt = base.Add(time.Hour)
	require.NoError(t, store.Insert(ctx, later))

	got, err := store.Get(ctx, key(7), domain.ModalityEnglish)
	require.NoError(t, err)
	require.True(t, got.CreatedAt.Equal(base))

	// Markers are scoped per modality.
	_, err = store.Get(ctx, key(7), domain.ModalityFixed)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuditStoreAppendAndResume(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	store, err := NewAuditStore(client)
	require.NoError(t, err)

	require.NoError(t, store.Log(ctx, "listing_created", map[string]any{"key": key(7).String()}))
	require.NoError(t, store.Log(ctx, "bid_placed", map[string]any{"amount": "150"}))
	require.NoError(t, store.Log(ctx, "sale_settled", nil))

	entries, err := store.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, int64(3), entries[0].ID)
	require.Equal(t, "sale_settled", entries[0].Event)
	require.Equal(t, "listing_created", entries[2].Event)

	// A fresh store on the same database resumes the counter instead
	// of reusing IDs.
	resumed, err := NewAuditStore(client)
	require.NoError(t, err)
	require.NoError(t, resumed.Log(ctx, "listing_cancelled", nil))

	entries, err = resumed.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(4), entries[0].ID)

	old, err := resumed.ListBefore(ctx, time.Now().UTC().Add(time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, old, 2)
}
