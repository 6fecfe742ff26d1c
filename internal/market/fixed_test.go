package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auctionhaus/marketd/internal/domain"
)

func TestFixedListAndBuy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 1, alice)

	listing, err := f.fixed.List(ctx, key, alice, amt(100))
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusActive, listing.Status)

	sale, err := f.fixed.Buy(ctx, key, bob, amt(100))
	require.NoError(t, err)
	require.NotEmpty(t, sale.ID)
	require.Equal(t, domain.ModalityFixed, sale.Modality)
	require.Equal(t, "100", sale.Price.String())

	owner, err := f.registry.OwnerOf(ctx, key)
	require.NoError(t, err)
	require.Equal(t, bob, owner)
	require.Equal(t, "100", f.funds.Balance(alice).String())

	got, err := f.fixed.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusSold, got.Status)
}

func TestFixedOverpaymentStaysWithSeller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 2, alice)

	_, err := f.fixed.List(ctx, key, alice, amt(100))
	require.NoError(t, err)

	// The full payment is the agreed price; nothing flows back.
	sale, err := f.fixed.Buy(ctx, key, bob, amt(130))
	require.NoError(t, err)
	require.Equal(t, "130", sale.Price.String())
	require.Equal(t, "130", f.funds.Balance(alice).String())
	require.Equal(t, "0", f.funds.Balance(bob).String())
}

func TestFixedBuyBelowAskingPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 3, alice)

	_, err := f.fixed.List(ctx, key, alice, amt(100))
	require.NoError(t, err)

	_, err = f.fixed.Buy(ctx, key, bob, amt(99))
	require.ErrorIs(t, err, domain.ErrPriceNotMet)

	got, err := f.fixed.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusActive, got.Status)
}

func TestFixedListRejectsNonOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 4, alice)

	_, err := f.fixed.List(ctx, key, bob, amt(100))
	require.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestFixedListRequiresApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := domain.Key{Collection: collection, TokenID: 5}
	f.registry.Mint(key, alice)

	_, err := f.fixed.List(ctx, key, alice, amt(100))
	require.ErrorIs(t, err, domain.ErrNotApprovedForMarketplace)
}

func TestFixedListRejectsZeroPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 6, alice)

	_, err := f.fixed.List(ctx, key, alice, amt(0))
	require.ErrorIs(t, err, domain.ErrPriceMustBeAboveZero)
}

func TestFixedCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 7, alice)

	_, err := f.fixed.List(ctx, key, alice, amt(100))
	require.NoError(t, err)

	require.ErrorIs(t, f.fixed.Cancel(ctx, key, bob), domain.ErrNotOwner)
	require.NoError(t, f.fixed.Cancel(ctx, key, alice))

	_, err = f.fixed.Buy(ctx, key, bob, amt(100))
	require.ErrorIs(t, err, domain.ErrNotListed)

	// A cancelled listing does not block a fresh one.
	_, err = f.fixed.List(ctx, key, alice, amt(120))
	require.NoError(t, err)
}

func TestFixedBuyRevokedApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 8, alice)

	_, err := f.fixed.List(ctx, key, alice, amt(100))
	require.NoError(t, err)

	// Seller revokes marketplace approval after listing.
	require.NoError(t, f.registry.Approve(key, operator, false))

	_, err = f.fixed.Buy(ctx, key, bob, amt(100))
	require.ErrorIs(t, err, domain.ErrNotApprovedForMarketplace)
}

func TestFixedBuyCompensatesFailedTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 9, alice)

	_, err := f.fixed.List(ctx, key, alice, amt(100))
	require.NoError(t, err)

	f.registry.FailTransfers(errors.New("registry down"))
	_, err = f.fixed.Buy(ctx, key, bob, amt(100))
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	// The listing rolled back and no funds moved.
	got, err := f.fixed.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusActive, got.Status)
	require.Equal(t, "0", f.funds.Total().String())

	// Recovery: the same listing sells once the registry is back.
	f.registry.FailTransfers(nil)
	_, err = f.fixed.Buy(ctx, key, bob, amt(100))
	require.NoError(t, err)
}

func TestFixedListActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := uint64(10); i < 13; i++ {
		key := f.mint(t, i, alice)
		_, err := f.fixed.List(ctx, key, alice, amt(int64(i)))
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	listings, err := f.fixed.ListActive(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, listings, 2)
	// Newest first.
	require.Equal(t, uint64(12), listings[0].Key.TokenID)
}
