package market

import (
	"context"
	"math/big"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auctionhaus/marketd/internal/domain"
)

// openEnglish opens an auction for key over a one hour window starting
// now and advances the clock just inside it.
func openEnglish(t *testing.T, f *fixture, key domain.Key, startPrice int64) domain.EnglishListing {
	t.Helper()
	now := f.clock.Now()
	listing, err := f.english.List(context.Background(), key, alice, amt(startPrice), now, now.Add(time.Hour))
	require.NoError(t, err)
	return listing
}

func TestEnglishBidOrderingAndSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 20, alice)
	openEnglish(t, f, key, 100)

	_, err := f.english.Bid(ctx, key, bob, amt(150))
	require.NoError(t, err)
	_, err = f.english.Bid(ctx, key, carol, amt(160))
	require.NoError(t, err)
	_, err = f.english.Bid(ctx, key, dave, amt(180))
	require.NoError(t, err)

	state, err := f.english.Bids(ctx, key)
	require.NoError(t, err)
	require.Equal(t, dave, state.Highest.Bidder)
	require.Len(t, state.Superseded, 2)
	require.Equal(t, bob, state.Superseded[0].Bidder)
	require.Equal(t, carol, state.Superseded[1].Bidder)

	f.clock.Advance(2 * time.Hour)
	sale, err := f.english.End(ctx, key, alice)
	require.NoError(t, err)
	require.Equal(t, dave, sale.Buyer)
	require.Equal(t, "180", sale.Price.String())

	owner, err := f.registry.OwnerOf(ctx, key)
	require.NoError(t, err)
	require.Equal(t, dave, owner)

	// Winner pays, losers get their escrow back.
	require.Equal(t, "180", f.funds.Balance(alice).String())
	require.Equal(t, "150", f.funds.Balance(bob).String())
	require.Equal(t, "160", f.funds.Balance(carol).String())
	require.Equal(t, "0", f.funds.Balance(dave).String())

	// Escrow is drained after settlement.
	state, err = f.english.Bids(ctx, key)
	require.NoError(t, err)
	require.Nil(t, state.Highest)
	require.Empty(t, state.Superseded)
}

func TestEnglishBidMustExceedHighest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 21, alice)
	openEnglish(t, f, key, 100)

	// First bid must strictly exceed the start price.
	_, err := f.english.Bid(ctx, key, bob, amt(100))
	require.ErrorIs(t, err, domain.ErrBidTooLow)

	_, err = f.english.Bid(ctx, key, bob, amt(101))
	require.NoError(t, err)

	// Matching the leader is not enough.
	_, err = f.english.Bid(ctx, key, carol, amt(101))
	require.ErrorIs(t, err, domain.ErrBidTooLow)
}

func TestEnglishBidOutsideWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 22, alice)

	now := f.clock.Now()
	_, err := f.english.List(ctx, key, alice, amt(100), now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)

	_, err = f.english.Bid(ctx, key, bob, amt(150))
	require.ErrorIs(t, err, domain.ErrAuctionWindowViolation)

	f.clock.Advance(3 * time.Hour)
	_, err = f.english.Bid(ctx, key, bob, amt(150))
	require.ErrorIs(t, err, domain.ErrAuctionWindowViolation)
}

func TestEnglishCancelClosesBiddingAndRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 23, alice)
	openEnglish(t, f, key, 100)

	_, err := f.english.Bid(ctx, key, bob, amt(150))
	require.NoError(t, err)
	_, err = f.english.Bid(ctx, key, carol, amt(160))
	require.NoError(t, err)

	require.ErrorIs(t, f.english.Cancel(ctx, key, bob), domain.ErrNotOwner)
	require.NoError(t, f.english.Cancel(ctx, key, alice))

	// Cancelling refunds every escrowed bid immediately and drains the
	// ledger; nothing waits for End.
	require.Equal(t, "150", f.funds.Balance(bob).String())
	require.Equal(t, "160", f.funds.Balance(carol).String())
	require.Equal(t, "0", f.funds.Balance(alice).String())

	state, err := f.english.Bids(ctx, key)
	require.NoError(t, err)
	require.Nil(t, state.Highest)
	require.Empty(t, state.Superseded)

	_, err = f.english.Bid(ctx, key, dave, amt(200))
	require.ErrorIs(t, err, domain.ErrAuctionCancelled)

	// A cancelled auction is still endable immediately; it closes
	// without a sale and moves no funds.
	sale, err := f.english.End(ctx, key, alice)
	require.NoError(t, err)
	require.Empty(t, sale.ID)
	require.Equal(t, "150", f.funds.Balance(bob).String())
	require.Equal(t, "160", f.funds.Balance(carol).String())

	owner, err := f.registry.OwnerOf(ctx, key)
	require.NoError(t, err)
	require.Equal(t, alice, owner)
}

func TestEnglishRelistAfterCancelStartsFresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 29, alice)
	openEnglish(t, f, key, 100)

	_, err := f.english.Bid(ctx, key, bob, amt(150))
	require.NoError(t, err)
	require.NoError(t, f.english.Cancel(ctx, key, alice))

	// Relisting the same asset opens a brand new auction with an empty
	// bid ledger; the old leader carries nothing over.
	openEnglish(t, f, key, 200)

	state, err := f.english.Bids(ctx, key)
	require.NoError(t, err)
	require.Nil(t, state.Highest)
	require.Empty(t, state.Superseded)

	// The first-bid floor is the new start price, not the stale bid.
	_, err = f.english.Bid(ctx, key, carol, amt(180))
	require.ErrorIs(t, err, domain.ErrBidTooLow)

	bid, err := f.english.Bid(ctx, key, carol, amt(250))
	require.NoError(t, err)
	require.Equal(t, int64(1), bid.Seq)

	f.clock.Advance(2 * time.Hour)
	sale, err := f.english.End(ctx, key, alice)
	require.NoError(t, err)
	require.Equal(t, carol, sale.Buyer)
	require.Equal(t, "250", sale.Price.String())

	owner, err := f.registry.OwnerOf(ctx, key)
	require.NoError(t, err)
	require.Equal(t, carol, owner)

	// Bob keeps only the refund of the cancelled auction's bid.
	require.Equal(t, "150", f.funds.Balance(bob).String())
	require.Equal(t, "250", f.funds.Balance(alice).String())
}

func TestEnglishEndWithoutBids(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 24, alice)
	openEnglish(t, f, key, 100)

	f.clock.Advance(2 * time.Hour)
	sale, err := f.english.End(ctx, key, alice)
	require.NoError(t, err)
	require.Empty(t, sale.ID)

	got, err := f.english.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusCancelled, got.Status)
	require.Equal(t, "0", f.funds.Total().String())
}

func TestEnglishEndSellerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 25, alice)
	openEnglish(t, f, key, 100)

	f.clock.Advance(2 * time.Hour)
	_, err := f.english.End(ctx, key, bob)
	require.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestEnglishEndBeforeClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 26, alice)
	openEnglish(t, f, key, 100)

	_, err := f.english.End(ctx, key, alice)
	require.ErrorIs(t, err, domain.ErrAuctionWindowViolation)
}

func TestEnglishListWindowMustBeOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 27, alice)

	now := f.clock.Now()
	_, err := f.english.List(ctx, key, alice, amt(100), now.Add(time.Hour), now)
	require.ErrorIs(t, err, domain.ErrAuctionWindowViolation)
}

func TestEnglishSweepSettlesExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 28, alice)
	openEnglish(t, f, key, 100)

	_, err := f.english.Bid(ctx, key, bob, amt(150))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.english.Sweep(ctx, 10))

	got, err := f.english.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusSold, got.Status)

	owner, err := f.registry.OwnerOf(ctx, key)
	require.NoError(t, err)
	require.Equal(t, bob, owner)
	require.Equal(t, "150", f.funds.Balance(alice).String())
}

func TestEnglishBidRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 29, alice)
	openEnglish(t, f, key, 100)

	// The fixture allows 100 bids per second per bidder.
	for i := int64(0); i < 100; i++ {
		_, err := f.english.Bid(ctx, key, bob, amt(101+i))
		require.NoError(t, err)
	}
	_, err := f.english.Bid(ctx, key, bob, amt(500))
	require.ErrorIs(t, err, domain.ErrRateLimited)

	// The window slides; a second later bidding resumes.
	f.clock.Advance(2 * time.Second)
	_, err = f.english.Bid(ctx, key, bob, amt(500))
	require.NoError(t, err)
}

// Every unit escrowed must leave the marketplace at settlement: the
// winning amount to the seller and each superseded amount back to its
// bidder.
func TestEnglishEscrowConservation(t *testing.T) {
	prop := func(increments []uint8) bool {
		f := newFixture(t)
		ctx := context.Background()
		key := f.mint(t, 30, alice)
		openEnglish(t, f, key, 100)

		escrowed := new(big.Int)
		current := int64(100)
		for i, inc := range increments {
			if i >= 16 {
				break
			}
			current += int64(inc) + 1
			bidder := bob
			switch i % 3 {
			case 1:
				bidder = carol
			case 2:
				bidder = dave
			}
			if _, err := f.english.Bid(ctx, key, bidder, amt(current)); err != nil {
				return false
			}
			escrowed.Add(escrowed, amt(current))
		}

		f.clock.Advance(2 * time.Hour)
		if _, err := f.english.End(ctx, key, alice); err != nil {
			return false
		}
		return f.funds.Total().Cmp(escrowed) == 0
	}
	require.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 25}))
}
