// Package market implements the three sale modalities over a shared
// asset registry: fixed-price listings, English ascending auctions and
// Dutch descending auctions, plus the settlement engine that moves
// funds and assets together at the end of each sale.
package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/auctionhaus/marketd/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Guards centralises the checks every listing operation runs before
// touching state: the seller must own the asset, the marketplace must
// be approved to move it, and an asset can be live in at most one
// modality at a time.
type Guards struct {
	registry domain.AssetRegistry
	operator common.Address
	fixed    domain.FixedStore
	english  domain.EnglishStore
	dutch    domain.DutchStore
}

// NewGuards creates a Guards helper. operator is the marketplace
// address that must hold transfer approval on listed assets.
func NewGuards(
	registry domain.AssetRegistry,
	operator common.Address,
	fixed domain.FixedStore,
	english domain.EnglishStore,
	dutch domain.DutchStore,
) *Guards {
	return &Guards{
		registry: registry,
		operator: operator,
		fixed:    fixed,
		english:  english,
		dutch:    dutch,
	}
}

// Operator returns the marketplace address used for approval checks.
func (g *Guards) Operator() common.Address {
	return g.operator
}

// EnsureSellable verifies that seller owns the asset and that the
// marketplace is approved to transfer it.
func (g *Guards) EnsureSellable(ctx context.Context, key domain.Key, seller common.Address) error {
	owner, err := g.registry.OwnerOf(ctx, key)
	if err != nil {
		return fmt.Errorf("market: owner lookup for %s: %w", key, err)
	}
	if owner != seller {
		return domain.ErrNotOwner
	}
	approved, err := g.registry.IsApproved(ctx, key, g.operator)
	if err != nil {
		return fmt.Errorf("market: approval lookup for %s: %w", key, err)
	}
	if !approved {
		return domain.ErrNotApprovedForMarketplace
	}
	return nil
}

// EnsureUnlisted verifies that the asset has no active listing in any
// modality. Sold and cancelled listings do not block a relist.
func (g *Guards) EnsureUnlisted(ctx context.Context, key domain.Key) error {
	if live, err := g.fixedLive(ctx, key); err != nil {
		return err
	} else if live {
		return domain.ErrAlreadyListed
	}
	if live, err := g.englishLive(ctx, key); err != nil {
		return err
	} else if live {
		return domain.ErrAlreadyListed
	}
	if live, err := g.dutchLive(ctx, key); err != nil {
		return err
	} else if live {
		return domain.ErrAlreadyListed
	}
	return nil
}

func (g *Guards) fixedLive(ctx context.Context, key domain.Key) (bool, error) {
	l, err := g.fixed.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("market: fixed listing lookup for %s: %w", key, err)
	}
	return l.Status == domain.ListingStatusActive, nil
}

func (g *Guards) englishLive(ctx context.Context, key domain.Key) (bool, error) {
	l, err := g.english.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("market: english listing lookup for %s: %w", key, err)
	}
	return l.Status == domain.ListingStatusActive, nil
}

func (g *Guards) dutchLive(ctx context.Context, key domain.Key) (bool, error) {
	l, err := g.dutch.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("market: dutch listing lookup for %s: %w", key, err)
	}
	return l.Status == domain.ListingStatusActive, nil
}
