package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auctionhaus/marketd/internal/domain"
)

// openDutch opens a descending auction decaying 100 -> 20 at one unit
// per second over a ten minute window starting now.
func openDutch(t *testing.T, f *fixture, key domain.Key) domain.DutchListing {
	t.Helper()
	now := f.clock.Now()
	listing, err := f.dutch.List(context.Background(), key, alice, amt(100), amt(20), amt(1), now, now.Add(10*time.Minute))
	require.NoError(t, err)
	return listing
}

func TestDutchPriceFloorAfterShortWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 39, alice)

	// The window closes at 50s, before the one-per-second decay can
	// walk 100 down to 20.
	now := f.clock.Now()
	_, err := f.dutch.List(ctx, key, alice, amt(100), amt(20), amt(1), now, now.Add(50*time.Second))
	require.NoError(t, err)

	f.clock.Advance(49 * time.Second)
	price, err := f.dutch.Price(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "51", price.String())

	// Past the close the quote drops straight to the floor.
	f.clock.Advance(11 * time.Second)
	price, err = f.dutch.Price(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "20", price.String())
}

func TestDutchPriceDecay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 40, alice)
	openDutch(t, f, key)

	price, err := f.dutch.Price(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "100", price.String())

	f.clock.Advance(30 * time.Second)
	price, err = f.dutch.Price(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "70", price.String())

	// Decay clamps at the floor.
	f.clock.Advance(5 * time.Minute)
	price, err = f.dutch.Price(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "20", price.String())
}

func TestDutchPriceServedFromCacheWithinTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 41, alice)
	openDutch(t, f, key)

	f.clock.Advance(10 * time.Second)
	price, err := f.dutch.Price(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "90", price.String())

	// Within the one second TTL the cached value is returned even
	// though the true price kept decaying.
	f.clock.Advance(500 * time.Millisecond)
	price, err = f.dutch.Price(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "90", price.String())
}

func TestDutchBuyRefundsOverpay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 42, alice)
	openDutch(t, f, key)

	f.clock.Advance(30 * time.Second)
	sale, err := f.dutch.Buy(ctx, key, bob, amt(100))
	require.NoError(t, err)
	require.Equal(t, "70", sale.Price.String())

	// Seller receives the decayed price, buyer the difference.
	require.Equal(t, "70", f.funds.Balance(alice).String())
	require.Equal(t, "30", f.funds.Balance(bob).String())

	owner, err := f.registry.OwnerOf(ctx, key)
	require.NoError(t, err)
	require.Equal(t, bob, owner)
}

func TestDutchBuyBelowCurrentPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 43, alice)
	openDutch(t, f, key)

	f.clock.Advance(30 * time.Second)
	_, err := f.dutch.Buy(ctx, key, bob, amt(69))
	require.ErrorIs(t, err, domain.ErrPriceNotMet)

	got, err := f.dutch.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusActive, got.Status)
}

func TestDutchBuyOutsideWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 44, alice)
	openDutch(t, f, key)

	f.clock.Advance(11 * time.Minute)
	_, err := f.dutch.Buy(ctx, key, bob, amt(100))
	require.ErrorIs(t, err, domain.ErrAuctionWindowViolation)
}

func TestDutchBuyCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 45, alice)
	openDutch(t, f, key)

	require.ErrorIs(t, f.dutch.Cancel(ctx, key, bob), domain.ErrNotOwner)
	require.NoError(t, f.dutch.Cancel(ctx, key, alice))

	_, err := f.dutch.Buy(ctx, key, bob, amt(100))
	require.ErrorIs(t, err, domain.ErrAuctionCancelled)
}

func TestDutchListValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 46, alice)
	now := f.clock.Now()

	// Floor above the start price.
	_, err := f.dutch.List(ctx, key, alice, amt(20), amt(100), amt(1), now, now.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrPriceMustBeAboveZero)

	// Zero decay rate.
	_, err = f.dutch.List(ctx, key, alice, amt(100), amt(20), amt(0), now, now.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrPriceMustBeAboveZero)

	// Inverted window.
	_, err = f.dutch.List(ctx, key, alice, amt(100), amt(20), amt(1), now.Add(time.Minute), now)
	require.ErrorIs(t, err, domain.ErrAuctionWindowViolation)
}

func TestDutchExactPaymentNoRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 47, alice)
	openDutch(t, f, key)

	f.clock.Advance(time.Minute)
	sale, err := f.dutch.Buy(ctx, key, bob, amt(40))
	require.NoError(t, err)
	require.Equal(t, "40", sale.Price.String())
	require.Equal(t, "40", f.funds.Balance(alice).String())
	require.Equal(t, "0", f.funds.Balance(bob).String())
}
