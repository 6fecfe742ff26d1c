package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/auctionhaus/marketd/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// DutchService handles descending auctions: the asking price decays
// linearly toward a floor and the first payment at or above the current
// price wins. Overpay against the decayed price is refunded.
type DutchService struct {
	store    domain.DutchStore
	cancels  domain.CancellationStore
	guards   *Guards
	locks    domain.LockManager
	settle   *Settlement
	prices   domain.PriceCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	logger   *slog.Logger
	lockTTL  time.Duration
	priceTTL time.Duration
	now      func() time.Time
}

// NewDutchService creates a DutchService with all required dependencies.
func NewDutchService(
	store domain.DutchStore,
	cancels domain.CancellationStore,
	guards *Guards,
	locks domain.LockManager,
	settle *Settlement,
	prices domain.PriceCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
	lockTTL time.Duration,
	priceTTL time.Duration,
) *DutchService {
	return &DutchService{
		store:    store,
		cancels:  cancels,
		guards:   guards,
		locks:    locks,
		settle:   settle,
		prices:   prices,
		bus:      bus,
		audit:    audit,
		logger:   logger,
		lockTTL:  lockTTL,
		priceTTL: priceTTL,
		now:      time.Now,
	}
}

// WithClock overrides the time source for deterministic tests.
func (s *DutchService) WithClock(now func() time.Time) *DutchService {
	s.now = now
	return s
}

// List opens a descending auction. The price decays from startPrice by
// discountRate per second, clamped at endPrice, over the given window.
func (s *DutchService) List(ctx context.Context, key domain.Key, seller common.Address, startPrice, endPrice, discountRate *big.Int, startAt, endAt time.Time) (domain.DutchListing, error) {
	listing := domain.DutchListing{
		Key:          key,
		Seller:       seller,
		StartPrice:   startPrice,
		EndPrice:     endPrice,
		DiscountRate: discountRate,
		StartAt:      startAt,
		EndAt:        endAt,
		Status:       domain.ListingStatusActive,
	}
	if err := listing.Validate(); err != nil {
		return domain.DutchListing{}, err
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(key), s.lockTTL)
	if err != nil {
		return domain.DutchListing{}, fmt.Errorf("dutch: acquire lock for %s: %w", key, err)
	}
	defer unlock()

	if err := s.guards.EnsureSellable(ctx, key, seller); err != nil {
		return domain.DutchListing{}, err
	}
	if err := s.guards.EnsureUnlisted(ctx, key); err != nil {
		return domain.DutchListing{}, err
	}

	now := s.now().UTC()
	listing.CreatedAt = now
	listing.UpdatedAt = now
	if err := s.store.Create(ctx, listing); err != nil {
		return domain.DutchListing{}, fmt.Errorf("dutch: create auction %s: %w", key, err)
	}

	s.publish(ctx, "listings", map[string]string{
		"event":       "listing_created",
		"modality":    string(domain.ModalityDutch),
		"key":         key.String(),
		"seller":      seller.Hex(),
		"start_price": startPrice.String(),
		"end_price":   endPrice.String(),
	})
	s.auditEvent(ctx, "listing_created", map[string]any{
		"modality":    string(domain.ModalityDutch),
		"key":         key.String(),
		"seller":      seller.Hex(),
		"start_price": startPrice.String(),
		"end_price":   endPrice.String(),
	})

	s.logger.InfoContext(ctx, "dutch: auction opened",
		slog.String("key", key.String()),
		slog.String("seller", seller.Hex()),
		slog.String("start_price", startPrice.String()),
		slog.String("end_price", endPrice.String()),
	)

	return listing, nil
}

// Price returns the current asking price. The decayed value is cached
// briefly; a cache miss recomputes from the listing.
func (s *DutchService) Price(ctx context.Context, key domain.Key) (*big.Int, error) {
	if cached, err := s.prices.GetPrice(ctx, key); err == nil {
		return cached, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "dutch: price cache read failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	}

	listing, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dutch: get auction %s: %w", key, err)
	}
	if listing.Status != domain.ListingStatusActive {
		return nil, domain.ErrNotListed
	}

	price := listing.PriceAt(s.now().UTC())
	if err := s.prices.SetPrice(ctx, key, price, s.priceTTL); err != nil {
		s.logger.WarnContext(ctx, "dutch: price cache write failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	}
	return price, nil
}

// Buy purchases at the current decayed price. The price is always
// recomputed from the listing under the lock, never trusted from the
// cache, and any payment above it is refunded at settlement.
func (s *DutchService) Buy(ctx context.Context, key domain.Key, buyer common.Address, payment *big.Int) (domain.Sale, error) {
	unlock, err := s.locks.Acquire(ctx, lockKey(key), s.lockTTL)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("dutch: acquire lock for %s: %w", key, err)
	}
	defer unlock()

	listing, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("dutch: get auction %s: %w", key, err)
	}
	if listing.Status == domain.ListingStatusCancelled {
		return domain.Sale{}, domain.ErrAuctionCancelled
	}
	if listing.Status != domain.ListingStatusActive {
		return domain.Sale{}, domain.ErrNotListed
	}
	now := s.now().UTC()
	if !listing.Open(now) {
		return domain.Sale{}, domain.ErrAuctionWindowViolation
	}

	price := listing.PriceAt(now)
	if payment == nil || payment.Cmp(price) < 0 {
		return domain.Sale{}, domain.ErrPriceNotMet
	}
	if err := s.guards.EnsureSellable(ctx, key, listing.Seller); err != nil {
		return domain.Sale{}, err
	}

	prev := listing
	listing.Status = domain.ListingStatusSold
	listing.UpdatedAt = now
	if err := s.store.Update(ctx, listing); err != nil {
		return domain.Sale{}, fmt.Errorf("dutch: mark sold %s: %w", key, err)
	}

	overpay := new(big.Int).Sub(payment, price)
	sale, err := s.settle.Run(ctx, Plan{
		Key:         key,
		Modality:    domain.ModalityDutch,
		Seller:      listing.Seller,
		Buyer:       buyer,
		Price:       price,
		BuyerRefund: overpay,
		Compensate: func(ctx context.Context) error {
			return s.store.Update(ctx, prev)
		},
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.publish(ctx, "sales", map[string]string{
		"event":    "sale_settled",
		"modality": string(domain.ModalityDutch),
		"key":      key.String(),
		"sale_id":  sale.ID,
		"buyer":    buyer.Hex(),
		"price":    sale.Price.String(),
	})

	s.logger.InfoContext(ctx, "dutch: sold",
		slog.String("key", key.String()),
		slog.String("sale_id", sale.ID),
		slog.String("buyer", buyer.Hex()),
		slog.String("price", sale.Price.String()),
		slog.String("refund", overpay.String()),
	)

	return sale, nil
}

// Cancel withdraws an active auction. Only the seller may cancel.
func (s *DutchService) Cancel(ctx context.Context, key domain.Key, caller common.Address) error {
	unlock, err := s.locks.Acquire(ctx, lockKey(key), s.lockTTL)
	if err != nil {
		return fmt.Errorf("dutch: acquire lock for %s: %w", key, err)
	}
	defer unlock()

	listing, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("dutch: get auction %s: %w", key, err)
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
		return fmt.Errorf("dutch: cancel auction %s: %w", key, err)
	}
	if err := s.cancels.Insert(ctx, domain.Cancellation{
		Key:       key,
		Modality:  domain.ModalityDutch,
		Seller:    listing.Seller,
		CreatedAt: listing.UpdatedAt,
	}); err != nil {
		s.logger.WarnContext(ctx, "dutch: cancellation marker insert failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, "auctions", map[string]string{
		"event":    "listing_cancelled",
		"modality": string(domain.ModalityDutch),
		"key":      key.String(),
	})
	s.auditEvent(ctx, "listing_cancelled", map[string]any{
		"modality": string(domain.ModalityDutch),
		"key":      key.String(),
		"seller":   listing.Seller.Hex(),
	})

	s.logger.InfoContext(ctx, "dutch: cancelled",
		slog.String("key", key.String()),
	)

	return nil
}

// Get retrieves a single auction by asset key.
func (s *DutchService) Get(ctx context.Context, key domain.Key) (domain.DutchListing, error) {
	listing, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.DutchListing{}, fmt.Errorf("dutch: get auction %s: %w", key, err)
	}
	return listing, nil
}

// ListActive returns active auctions with pagination.
func (s *DutchService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.DutchListing, error) {
	listings, err := s.store.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dutch: list active: %w", err)
	}
	return listings, nil
}

func (s *DutchService) publish(ctx context.Context, channel string, payload map[string]string) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "dutch: publish event failed",
			slog.String("event", payload["event"]),
			slog.String("error", err.Error()),
		)
	}
}

func (s *DutchService) auditEvent(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "dutch: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
