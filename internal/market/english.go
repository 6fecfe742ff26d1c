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

// EnglishService handles ascending auctions: bids escrow with the
// marketplace, each new leader supersedes the last, and settlement at
// the end pays the seller and refunds every superseded bid in arrival
// order.
type EnglishService struct {
	store     domain.EnglishStore
	bids      domain.BidStore
	cancels   domain.CancellationStore
	guards    *Guards
	locks     domain.LockManager
	limiter   domain.RateLimiter
	settle    *Settlement
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
	lockTTL   time.Duration
	bidLimit  int
	bidWindow time.Duration
	now       func() time.Time
}

// NewEnglishService creates an EnglishService with all required
// dependencies.
func NewEnglishService(
	store domain.EnglishStore,
	bids domain.BidStore,
	cancels domain.CancellationStore,
	guards *Guards,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	settle *Settlement,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
	lockTTL time.Duration,
	bidLimit int,
	bidWindow time.Duration,
) *EnglishService {
	return &EnglishService{
		store:     store,
		bids:      bids,
		cancels:   cancels,
		guards:    guards,
		locks:     locks,
		limiter:   limiter,
		settle:    settle,
		bus:       bus,
		audit:     audit,
		logger:    logger,
		lockTTL:   lockTTL,
		bidLimit:  bidLimit,
		bidWindow: bidWindow,
		now:       time.Now,
	}
}

// WithClock overrides the time source for deterministic tests.
func (s *EnglishService) WithClock(now func() time.Time) *EnglishService {
	s.now = now
	return s
}

// List opens an ascending auction over the given window. The first bid
// must strictly exceed startPrice.
func (s *EnglishService) List(ctx context.Context, key domain.Key, seller common.Address, startPrice *big.Int, startAt, endAt time.Time) (domain.EnglishListing, error) {
	listing := domain.EnglishListing{
		Key:        key,
		Seller:     seller,
		StartPrice: startPrice,
		StartAt:    startAt,
		EndAt:      endAt,
		Status:     domain.ListingStatusActive,
	}
	if err := listing.Validate(); err != nil {
		return domain.EnglishListing{}, err
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(key), s.lockTTL)
	if err != nil {
		return domain.EnglishListing{}, fmt.Errorf("english: acquire lock for %s: %w", key, err)
	}
	defer unlock()

	if err := s.guards.EnsureSellable(ctx, key, seller); err != nil {
		return domain.EnglishListing{}, err
	}
	if err := s.guards.EnsureUnlisted(ctx, key); err != nil {
		return domain.EnglishListing{}, err
	}

	now := s.now().UTC()
	listing.CreatedAt = now
	listing.UpdatedAt = now
	if err := s.store.Create(ctx, listing); err != nil {
		return domain.EnglishListing{}, fmt.Errorf("english: create auction %s: %w", key, err)
	}

	s.publish(ctx, "listings", map[string]string{
		"event":       "listing_created",
		"modality":    string(domain.ModalityEnglish),
		"key":         key.String(),
		"seller":      seller.Hex(),
		"start_price": startPrice.String(),
		"end_at":      endAt.UTC().Format(time.RFC3339),
	})
	s.auditEvent(ctx, "listing_created", map[string]any{
		"modality":    string(domain.ModalityEnglish),
		"key":         key.String(),
		"seller":      seller.Hex(),
		"start_price": startPrice.String(),
	})

	s.logger.InfoContext(ctx, "english: auction opened",
		slog.String("key", key.String()),
		slog.String("seller", seller.Hex()),
		slog.String("start_price", startPrice.String()),
		slog.Time("end_at", endAt),
	)

	return listing, nil
}

// Bid places an escrowed bid. The amount must strictly exceed the
// current highest bid, or the start price when no bid exists yet. The
// superseded leader stays escrowed until settlement refunds it.
func (s *EnglishService) Bid(ctx context.Context, key domain.Key, bidder common.Address, amount *big.Int) (domain.Bid, error) {
	allowed, err := s.limiter.Allow(ctx, "bids:"+bidder.Hex(), s.bidLimit, s.bidWindow)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("english: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Bid{}, domain.ErrRateLimited
	}
	if amount == nil || amount.Sign() <= 0 {
		return domain.Bid{}, domain.ErrBidTooLow
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(key), s.lockTTL)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("english: acquire lock for %s: %w", key, err)
	}
	defer unlock()

	listing, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("english: get auction %s: %w", key, err)
	}
	if listing.Status == domain.ListingStatusCancelled {
		return domain.Bid{}, domain.ErrAuctionCancelled
	}
	if listing.Status != domain.ListingStatusActive {
		return domain.Bid{}, domain.ErrNotListed
	}
	now := s.now().UTC()
	if !listing.Open(now) {
		return domain.Bid{}, domain.ErrAuctionWindowViolation
	}

	state, err := s.bids.State(ctx, key)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("english: bid state for %s: %w", key, err)
	}
	floor := listing.StartPrice
	seq := int64(1)
	if state.Highest != nil {
		floor = state.Highest.Amount
		seq = state.Highest.Seq + 1
	}
	if amount.Cmp(floor) <= 0 {
		return domain.Bid{}, domain.ErrBidTooLow
	}

	bid := domain.Bid{
		Key:       key,
		Seq:       seq,
		Bidder:    bidder,
		Amount:    new(big.Int).Set(amount),
		CreatedAt: now,
	}
	if err := s.bids.Push(ctx, bid); err != nil {
		return domain.Bid{}, fmt.Errorf("english: push bid for %s: %w", key, err)
	}

	s.publish(ctx, "bids", map[string]string{
		"event":  "bid_placed",
		"key":    key.String(),
		"bidder": bidder.Hex(),
		"amount": amount.String(),
	})
	s.auditEvent(ctx, "bid_placed", map[string]any{
		"key":    key.String(),
		"bidder": bidder.Hex(),
		"amount": amount.String(),
		"seq":    seq,
	})

	s.logger.InfoContext(ctx, "english: bid placed",
		slog.String("key", key.String()),
		slog.String("bidder", bidder.Hex()),
		slog.String("amount", amount.String()),
		slog.Int64("seq", seq),
	)

	return bid, nil
}

// Cancel withdraws an active auction: bidding closes and every
// escrowed bid is refunded on the spot, so a later relist of the same
// asset starts from an empty ledger. If a refund push fails the escrow
// stays recorded and End remains available as the retry path.
func (s *EnglishService) Cancel(ctx context.Context, key domain.Key, caller common.Address) error {
	unlock, err := s.locks.Acquire(ctx, lockKey(key), s.lockTTL)
	if err != nil {
		return fmt.Errorf("english: acquire lock for %s: %w", key, err)
	}
	defer unlock()

	listing, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("english: get auction %s: %w", key, err)
	}
	if listing.Status != domain.ListingStatusActive {
		return domain.ErrNotListed
	}
	if listing.Seller != caller {
		return domain.ErrNotOwner
	}

	state, err := s.bids.State(ctx, key)
	if err != nil {
		return fmt.Errorf("english: bid state for %s: %w", key, err)
	}

	listing.Status = domain.ListingStatusCancelled
	listing.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, listing); err != nil {
		return fmt.Errorf("english: cancel auction %s: %w", key, err)
	}

	if err := s.settle.RefundAll(ctx, key, state); err != nil {
		return err
	}
	if err := s.bids.Clear(ctx, key); err != nil {
		return fmt.Errorf("english: clear bids for %s: %w", key, err)
	}

	if err := s.cancels.Insert(ctx, domain.Cancellation{
		Key:       key,
		Modality:  domain.ModalityEnglish,
		Seller:    listing.Seller,
		CreatedAt: listing.UpdatedAt,
	}); err != nil {
		s.logger.WarnContext(ctx, "english: cancellation marker insert failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, "auctions", map[string]string{
		"event":    "listing_cancelled",
		"modality": string(domain.ModalityEnglish),
		"key":      key.String(),
	})
	s.auditEvent(ctx, "listing_cancelled", map[string]any{
		"modality": string(domain.ModalityEnglish),
		"key":      key.String(),
		"seller":   listing.Seller.Hex(),
	})

	s.logger.InfoContext(ctx, "english: cancelled",
		slog.String("key", key.String()),
	)

	return nil
}

// End settles an auction once its window has closed or it was
// cancelled. Only the seller may trigger it by hand; the background
// sweep ends expired auctions on the seller's behalf. With a winner the
// asset and proceeds change hands and every superseded bid is refunded;
// without one the auction closes cancelled and all escrow flows back.
func (s *EnglishService) End(ctx context.Context, key domain.Key, caller common.Address) (domain.Sale, error) {
	unlock, err := s.locks.Acquire(ctx, lockKey(key), s.lockTTL)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("english: acquire lock for %s: %w", key, err)
	}
	defer unlock()

	listing, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("english: get auction %s: %w", key, err)
	}
	if listing.Seller != caller {
		return domain.Sale{}, domain.ErrNotOwner
	}
	return s.end(ctx, listing)
}

// end settles a locked auction. Callers hold the asset lock.
func (s *EnglishService) end(ctx context.Context, listing domain.EnglishListing) (domain.Sale, error) {
	if listing.Status == domain.ListingStatusSold {
		return domain.Sale{}, domain.ErrNotListed
	}
	now := s.now().UTC()
	if !listing.Endable(now) {
		return domain.Sale{}, domain.ErrAuctionWindowViolation
	}

	state, err := s.bids.State(ctx, listing.Key)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("english: bid state for %s: %w", listing.Key, err)
	}

	// Cancelled, or expired without a single bid: release escrow and
	// close the auction without a sale.
	if listing.Status == domain.ListingStatusCancelled || state.Highest == nil {
		if err := s.settle.RefundAll(ctx, listing.Key, state); err != nil {
			return domain.Sale{}, err
		}
		if err := s.bids.Clear(ctx, listing.Key); err != nil {
			return domain.Sale{}, fmt.Errorf("english: clear bids for %s: %w", listing.Key, err)
		}
		if listing.Status != domain.ListingStatusCancelled {
			listing.Status = domain.ListingStatusCancelled
			listing.UpdatedAt = now
			if err := s.store.Update(ctx, listing); err != nil {
				return domain.Sale{}, fmt.Errorf("english: close auction %s: %w", listing.Key, err)
			}
		}
		s.publish(ctx, "auctions", map[string]string{
			"event":    "auction_ended",
			"modality": string(domain.ModalityEnglish),
			"key":      listing.Key.String(),
			"outcome":  "no_sale",
		})
		s.auditEvent(ctx, "auction_ended", map[string]any{
			"key":     listing.Key.String(),
			"outcome": "no_sale",
			"refunds": len(state.Superseded) + boolToInt(state.Highest != nil),
		})
		s.logger.InfoContext(ctx, "english: auction ended without sale",
			slog.String("key", listing.Key.String()),
		)
		return domain.Sale{}, nil
	}

	prev := listing
	listing.Status = domain.ListingStatusSold
	listing.UpdatedAt = now
	if err := s.store.Update(ctx, listing); err != nil {
		return domain.Sale{}, fmt.Errorf("english: mark sold %s: %w", listing.Key, err)
	}

	sale, err := s.settle.Run(ctx, Plan{
		Key:      listing.Key,
		Modality: domain.ModalityEnglish,
		Seller:   listing.Seller,
		Buyer:    state.Highest.Bidder,
		Price:    state.Highest.Amount,
		Refunds:  state.Superseded,
		Compensate: func(ctx context.Context) error {
			return s.store.Update(ctx, prev)
		},
	})
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.bids.Clear(ctx, listing.Key); err != nil {
		s.logger.ErrorContext(ctx, "english: clear bids after settlement failed",
			slog.String("key", listing.Key.String()),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, "auctions", map[string]string{
		"event":    "auction_ended",
		"modality": string(domain.ModalityEnglish),
		"key":      listing.Key.String(),
		"outcome":  "sold",
		"sale_id":  sale.ID,
		"buyer":    sale.Buyer.Hex(),
		"price":    sale.Price.String(),
	})

	s.logger.InfoContext(ctx, "english: auction ended",
		slog.String("key", listing.Key.String()),
		slog.String("sale_id", sale.ID),
		slog.String("buyer", sale.Buyer.Hex()),
		slog.String("price", sale.Price.String()),
	)

	return sale, nil
}

// Sweep settles up to limit expired auctions. The app runs it on a
// timer so auctions settle without waiting for the seller.
func (s *EnglishService) Sweep(ctx context.Context, limit int) error {
	expired, err := s.store.ListExpired(ctx, s.now().UTC(), limit)
	if err != nil {
		return fmt.Errorf("english: list expired: %w", err)
	}

	var firstErr error
	for _, listing := range expired {
		if err := s.sweepOne(ctx, listing.Key); err != nil {
			s.logger.ErrorContext(ctx, "english: sweep settle failed",
				slog.String("key", listing.Key.String()),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return fmt.Errorf("english: sweep: %w", firstErr)
	}
	return nil
}

func (s *EnglishService) sweepOne(ctx context.Context, key domain.Key) error {
	unlock, err := s.locks.Acquire(ctx, lockKey(key), s.lockTTL)
	if err != nil {
		return fmt.Errorf("english: acquire lock for %s: %w", key, err)
	}
	defer unlock()

	// Re-read under the lock; a seller End may have raced the sweep.
	listing, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("english: get auction %s: %w", key, err)
	}
	if listing.Status == domain.ListingStatusSold {
		return nil
	}
	_, err = s.end(ctx, listing)
	return err
}

// Get retrieves a single auction by asset key.
func (s *EnglishService) Get(ctx context.Context, key domain.Key) (domain.EnglishListing, error) {
	listing, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.EnglishListing{}, fmt.Errorf("english: get auction %s: %w", key, err)
	}
	return listing, nil
}

// Bids returns the current escrow state for an auction.
func (s *EnglishService) Bids(ctx context.Context, key domain.Key) (domain.BidState, error) {
	state, err := s.bids.State(ctx, key)
	if err != nil {
		return domain.BidState{}, fmt.Errorf("english: bid state for %s: %w", key, err)
	}
	return state, nil
}

// ListActive returns active auctions with pagination.
func (s *EnglishService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.EnglishListing, error) {
	listings, err := s.store.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("english: list active: %w", err)
	}
	return listings, nil
}

func (s *EnglishService) publish(ctx context.Context, channel string, payload map[string]string) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "english: publish event failed",
			slog.String("event", payload["event"]),
			slog.String("error", err.Error()),
		)
	}
}

func (s *EnglishService) auditEvent(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "english: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
