package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/auctionhaus/marketd/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// FixedService handles buy-it-now listings: list, cancel, and a single
// atomic purchase that settles funds and asset together.
type FixedService struct {
	store   domain.FixedStore
	cancels domain.CancellationStore
	guards  *Guards
	locks   domain.LockManager
	settle  *Settlement
	bus     domain.SignalBus
	audit   domain.AuditStore
	logger  *slog.Logger
	lockTTL time.Duration
	now     func() time.Time
}

// NewFixedService creates a FixedService with all required dependencies.
func NewFixedService(
	store domain.FixedStore,
	cancels domain.CancellationStore,
	guards *Guards,
	locks domain.LockManager,
	settle *Settlement,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
	lockTTL time.Duration,
) *FixedService {
	return &FixedService{
		store:   store,
		cancels: cancels,
		guards:  guards,
		locks:   locks,
		settle:  settle,
		bus:     bus,
		audit:   audit,
		logger:  logger,
		lockTTL: lockTTL,
		now:     time.Now,
	}
}

// WithClock overrides the time source for deterministic tests.
func (s *FixedService) WithClock(now func() time.Time) *FixedService {
	s.now = now
	return s
}

// List puts an asset up for sale at a fixed asking price. The seller
// must own the asset, the marketplace must be approved to move it, and
// the asset must not be live in any modality.
func (s *FixedService) List(ctx context.Context, key domain.Key, seller common.Address, price *big.Int) (domain.FixedListing, error) {
	listing := domain.FixedListing{
		Key:    key,
		Seller: seller,
		Price:  price,
		Status: domain.ListingStatusActive,
	}
	if err := listing.Validate(); err != nil {
		return domain.FixedListing{}, err
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(key), s.lockTTL)
	if err != nil {
		return domain.FixedListing{}, fmt.Errorf("fixed: acquire lock for %s: %w", key, err)
	}
	defer unlock()

	if err := s.guards.EnsureSellable(ctx, key, seller); err != nil {
		return domain.FixedListing{}, err
	}
	if err := s.guards.EnsureUnlisted(ctx, key); err != nil {
		return domain.FixedListing{}, err
	}

	now := s.now().UTC()
	listing.CreatedAt = now
	listing.UpdatedAt = now
	if err := s.store.Create(ctx, listing); err != nil {
		return domain.FixedListing{}, fmt.Errorf("fixed: create listing %s: %w", key, err)
	}

	s.publish(ctx, map[string]string{
		"event":    "listing_created",
		"modality": string(domain.ModalityFixed),
		"key":      key.String(),
		"seller":   seller.Hex(),
		"price":    price.String(),
	})
	s.auditEvent(ctx, "listing_created", map[string]any{
		"modality": string(domain.ModalityFixed),
		"key":      key.String(),
		"seller":   seller.Hex(),
		"price":    price.String(),
	})

	s.logger.InfoContext(ctx, "fixed: listed",
		slog.String("key", key.String()),
		slog.String("seller", seller.Hex()),
		slog.String("price", price.String()),
	)

	return listing, nil
}

// Cancel withdraws an active listing. Only the seller may cancel; the
// listing keeps its row with a cancelled status plus a sticky
// cancellation marker.
func (s *FixedService) Cancel(ctx context.Context, key domain.Key, caller common.Address) error {
	unlock, err := s.locks.Acquire(ctx, lockKey(key), s.lockTTL)
	if err != nil {
		return fmt.Errorf("fixed: acquire lock for %s: %w", key, err)
	}
	defer unlock()

	listing, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("fixed: get listing %s: %w", key, err)
	}
	if listing.Status != domain.ListingStatusActive {
		return domain.ErrNotListed
	}
	if listing.Seller != caller {
		return domain.ErrNotOwner
	}

	listing.Status = domain.ListingStatusCancelled
	listing.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, listing); err != nil {
		return fmt.Errorf("fixed: cancel listing %s: %w", key, err)
	}
	if err := s.cancels.Insert(ctx, domain.Cancellation{
		Key:       key,
		Modality:  domain.ModalityFixed,
		Seller:    listing.Seller,
		CreatedAt: listing.UpdatedAt,
	}); err != nil {
		s.logger.WarnContext(ctx, "fixed: cancellation marker insert failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, map[string]string{
		"event":    "listing_cancelled",
		"modality": string(domain.ModalityFixed),
		"key":      key.String(),
	})
	s.auditEvent(ctx, "listing_cancelled", map[string]any{
		"modality": string(domain.ModalityFixed),
		"key":      key.String(),
		"seller":   listing.Seller.Hex(),
	})

	s.logger.InfoContext(ctx, "fixed: cancelled",
		slog.String("key", key.String()),
	)

	return nil
}

// Buy purchases an active listing. Payment must meet the asking price;
// any excess stays with the seller, matching the original sale terms.
// The status flips to sold before any external transfer so a reentrant
// call observes a dead listing.
func (s *FixedService) Buy(ctx context.Context, key domain.Key, buyer common.Address, payment *big.Int) (domain.Sale, error) {
	unlock, err := s.locks.Acquire(ctx, lockKey(key), s.lockTTL)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("fixed: acquire lock for %s: %w", key, err)
	}
	defer unlock()

	listing, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("fixed: get listing %s: %w", key, err)
	}
	if listing.Status != domain.ListingStatusActive {
		return domain.Sale{}, domain.ErrNotListed
	}
	if payment == nil || payment.Cmp(listing.Price) < 0 {
		return domain.Sale{}, domain.ErrPriceNotMet
	}
	// The seller may have moved or revoked the asset since listing.
	if err := s.guards.EnsureSellable(ctx, key, listing.Seller); err != nil {
		return domain.Sale{}, err
	}

	prev := listing
	listing.Status = domain.ListingStatusSold
	listing.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, listing); err != nil {
		return domain.Sale{}, fmt.Errorf("fixed: mark sold %s: %w", key, err)
	}

	sale, err := s.settle.Run(ctx, Plan{
		Key:      key,
		Modality: domain.ModalityFixed,
		Seller:   listing.Seller,
		Buyer:    buyer,
		Price:    payment,
		Compensate: func(ctx context.Context) error {
			return s.store.Update(ctx, prev)
		},
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.publish(ctx, map[string]string{
		"event":    "sale_settled",
		"modality": string(domain.ModalityFixed),
		"key":      key.String(),
		"sale_id":  sale.ID,
		"buyer":    buyer.Hex(),
		"price":    sale.Price.String(),
	})

	s.logger.InfoContext(ctx, "fixed: sold",
		slog.String("key", key.String()),
		slog.String("sale_id", sale.ID),
		slog.String("buyer", buyer.Hex()),
		slog.String("price", sale.Price.String()),
	)

	return sale, nil
}

// Get retrieves a single listing by asset key.
func (s *FixedService) Get(ctx context.Context, key domain.Key) (domain.FixedListing, error) {
	listing, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.FixedListing{}, fmt.Errorf("fixed: get listing %s: %w", key, err)
	}
	return listing, nil
}

// ListActive returns active listings with pagination.
func (s *FixedService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.FixedListing, error) {
	listings, err := s.store.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("fixed: list active: %w", err)
	}
	return listings, nil
}

func (s *FixedService) publish(ctx context.Context, payload map[string]string) {
	evt, _ := json.Marshal(payload)
	channel := "listings"
	if payload["event"] == "sale_settled" {
		channel = "sales"
	}
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "fixed: publish event failed",
			slog.String("event", payload["event"]),
			slog.String("error", err.Error()),
		)
	}
}

func (s *FixedService) auditEvent(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "fixed: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// lockKey derives the per-asset lock key shared by every modality so
// cross-modality races on one asset serialize on a single lock.
func lockKey(key domain.Key) string {
	return "settle:" + key.String()
}
