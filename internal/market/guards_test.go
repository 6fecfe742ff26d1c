package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auctionhaus/marketd/internal/domain"
)

func TestGuardsCrossModalityExclusion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 60, alice)
	now := f.clock.Now()

	_, err := f.fixed.List(ctx, key, alice, amt(100))
	require.NoError(t, err)

	// One live listing per asset, regardless of modality.
	_, err = f.english.List(ctx, key, alice, amt(100), now, now.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrAlreadyListed)
	_, err = f.dutch.List(ctx, key, alice, amt(100), amt(20), amt(1), now, now.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrAlreadyListed)
	_, err = f.fixed.List(ctx, key, alice, amt(200))
	require.ErrorIs(t, err, domain.ErrAlreadyListed)

	// Cancelling frees the asset for any modality.
	require.NoError(t, f.fixed.Cancel(ctx, key, alice))
	_, err = f.english.List(ctx, key, alice, amt(100), now, now.Add(time.Hour))
	require.NoError(t, err)
}

func TestGuardsRelistAfterSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.mint(t, 61, alice)

	_, err := f.fixed.List(ctx, key, alice, amt(100))
	require.NoError(t, err)
	_, err = f.fixed.Buy(ctx, key, bob, amt(100))
	require.NoError(t, err)

	// The new owner can list once they re-approve the marketplace.
	_, err = f.fixed.List(ctx, key, bob, amt(150))
	require.ErrorIs(t, err, domain.ErrNotApprovedForMarketplace)

	require.NoError(t, f.registry.Approve(key, operator, true))
	_, err = f.fixed.List(ctx, key, bob, amt(150))
	require.NoError(t, err)

	// The previous owner no longer qualifies.
	require.NoError(t, f.fixed.Cancel(ctx, key, bob))
	_, err = f.fixed.List(ctx, key, alice, amt(100))
	require.ErrorIs(t, err, domain.ErrNotOwner)
}
