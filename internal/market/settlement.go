package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/auctionhaus/marketd/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Plan describes one settlement: who gets the asset, who gets paid, and
// which escrowed amounts flow back out. Refunds are paid oldest first.
// Compensate restores the listing to its pre-settlement state and is
// invoked only when the asset transfer itself fails, before any funds
// have moved.
type Plan struct {
	Key         domain.Key
	Modality    domain.Modality
	Seller      common.Address
	Buyer       common.Address
	Price       *big.Int
	BuyerRefund *big.Int
	Refunds     []domain.Bid
	Compensate  func(ctx context.Context) error
}

// Settlement executes plans against the external registry and fund
// pusher. Callers persist the Sold state transition first, then hand
// the plan over; the asset moves before any funds so a transfer failure
// can still be unwound. Fund pushes after that point are irreversible,
// so push failures are recorded in the audit log rather than unwound.
type Settlement struct {
	registry domain.AssetRegistry
	funds    domain.FundPusher
	sales    domain.SaleStore
	audit    domain.AuditStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewSettlement creates a Settlement engine.
func NewSettlement(
	registry domain.AssetRegistry,
	funds domain.FundPusher,
	sales domain.SaleStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *Settlement {
	return &Settlement{
		registry: registry,
		funds:    funds,
		sales:    sales,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source, used by tests for deterministic
// sale timestamps.
func (s *Settlement) WithClock(now func() time.Time) *Settlement {
	s.now = now
	return s
}

// Run executes the plan: asset to buyer, then overpay back to buyer,
// proceeds to seller, and superseded-bid refunds in arrival order.
// On success it records and returns the Sale.
func (s *Settlement) Run(ctx context.Context, plan Plan) (domain.Sale, error) {
	// Asset first. Nothing irreversible has happened yet, so a failure
	// here rolls the listing back via Compensate.
	if err := s.registry.Transfer(ctx, plan.Key, plan.Seller, plan.Buyer); err != nil {
		s.logger.ErrorContext(ctx, "settlement: asset transfer failed",
			slog.String("key", plan.Key.String()),
			slog.String("buyer", plan.Buyer.Hex()),
			slog.String("error", err.Error()),
		)
		if plan.Compensate != nil {
			if compErr := plan.Compensate(ctx); compErr != nil {
				s.auditEvent(ctx, "settlement.compensation_failed", map[string]any{
					"key":   plan.Key.String(),
					"error": compErr.Error(),
				})
			}
		}
		return domain.Sale{}, fmt.Errorf("settlement: asset transfer for %s: %w", plan.Key, domain.ErrTransferFailed)
	}

	// Fund pushes. The asset has moved, so failures here cannot be
	// unwound; they are audited and surfaced while the remaining pushes
	// still run.
	var firstErr error
	push := func(label string, to common.Address, amount *big.Int) {
		if amount == nil || amount.Sign() <= 0 {
			return
		}
		if err := s.funds.Push(ctx, to, amount); err != nil {
			s.logger.ErrorContext(ctx, "settlement: fund push failed",
				slog.String("key", plan.Key.String()),
				slog.String("kind", label),
				slog.String("to", to.Hex()),
				slog.String("amount", amount.String()),
				slog.String("error", err.Error()),
			)
			s.auditEvent(ctx, "settlement.push_failed", map[string]any{
				"key":    plan.Key.String(),
				"kind":   label,
				"to":     to.Hex(),
				"amount": amount.String(),
				"error":  err.Error(),
			})
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	push("buyer_refund", plan.Buyer, plan.BuyerRefund)
	push("proceeds", plan.Seller, plan.Price)
	for _, bid := range plan.Refunds {
		push("bid_refund", bid.Bidder, bid.Amount)
	}

	if firstErr != nil {
		return domain.Sale{}, fmt.Errorf("settlement: fund push for %s: %w", plan.Key, firstErr)
	}

	sale := domain.Sale{
		ID:        uuid.NewString(),
		Key:       plan.Key,
		Modality:  plan.Modality,
		Seller:    plan.Seller,
		Buyer:     plan.Buyer,
		Price:     new(big.Int).Set(plan.Price),
		CreatedAt: s.now().UTC(),
	}
	if err := s.sales.Insert(ctx, sale); err != nil {
		// The exchange already happened; a missing sale row is a
		// bookkeeping gap, not a failed settlement.
		s.logger.ErrorContext(ctx, "settlement: sale insert failed",
			slog.String("sale_id", sale.ID),
			slog.String("key", plan.Key.String()),
			slog.String("error", err.Error()),
		)
		s.auditEvent(ctx, "settlement.sale_insert_failed", map[string]any{
			"sale_id": sale.ID,
			"key":     plan.Key.String(),
			"error":   err.Error(),
		})
	}

	s.auditEvent(ctx, "sale_settled", map[string]any{
		"sale_id":  sale.ID,
		"key":      plan.Key.String(),
		"modality": string(plan.Modality),
		"seller":   plan.Seller.Hex(),
		"buyer":    plan.Buyer.Hex(),
		"price":    plan.Price.String(),
		"refunds":  len(plan.Refunds),
	})

	s.logger.InfoContext(ctx, "settlement: sale settled",
		slog.String("sale_id", sale.ID),
		slog.String("key", plan.Key.String()),
		slog.String("modality", string(plan.Modality)),
		slog.String("price", plan.Price.String()),
	)

	return sale, nil
}

// RefundAll pushes every escrowed bid back to its bidder, oldest first.
// Used when an auction ends cancelled or without a winner.
func (s *Settlement) RefundAll(ctx context.Context, key domain.Key, state domain.BidState) error {
	var firstErr error
	refund := func(bid domain.Bid) {
		if err := s.funds.Push(ctx, bid.Bidder, bid.Amount); err != nil {
			s.logger.ErrorContext(ctx, "settlement: bid refund failed",
				slog.String("key", key.String()),
				slog.String("bidder", bid.Bidder.Hex()),
				slog.String("amount", bid.Amount.String()),
				slog.String("error", err.Error()),
			)
			s.auditEvent(ctx, "settlement.push_failed", map[string]any{
				"key":    key.String(),
				"kind":   "bid_refund",
				"to":     bid.Bidder.Hex(),
				"amount": bid.Amount.String(),
				"error":  err.Error(),
			})
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	for _, bid := range state.Superseded {
		refund(bid)
	}
	if state.Highest != nil {
		refund(*state.Highest)
	}

	if firstErr != nil {
		return fmt.Errorf("settlement: refund escrow for %s: %w", key, firstErr)
	}
	return nil
}

func (s *Settlement) auditEvent(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "settlement: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
