package market

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/auctionhaus/marketd/internal/domain"
	"github.com/auctionhaus/marketd/internal/platform/local"
	"github.com/auctionhaus/marketd/internal/store/badgerdb"
)

// pushRecorder records fund pushes in call order.
type pushRecorder struct {
	mu     sync.Mutex
	pushes []push
}

type push struct {
	to     common.Address
	amount *big.Int
}

func (r *pushRecorder) Push(ctx context.Context, to common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, push{to: to, amount: new(big.Int).Set(amount)})
	return nil
}

func newSettlementUnderTest(t *testing.T, funds domain.FundPusher) (*Settlement, *local.Registry, domain.AuditStore) {
	t.Helper()
	client, err := badgerdb.New(badgerdb.ClientConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	audit, err := badgerdb.NewAuditStore(client)
	require.NoError(t, err)
	registry := local.NewRegistry()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	settle := NewSettlement(registry, funds, badgerdb.NewSaleStore(client), audit, logger)
	return settle, registry, audit
}

func TestSettlementPushOrder(t *testing.T) {
	recorder := &pushRecorder{}
	settle, registry, _ := newSettlementUnderTest(t, recorder)
	ctx := context.Background()

	key := domain.Key{Collection: collection, TokenID: 70}
	registry.Mint(key, alice)

	older := domain.Bid{Key: key, Seq: 1, Bidder: bob, Amount: amt(150)}
	newer := domain.Bid{Key: key, Seq: 2, Bidder: carol, Amount: amt(160)}

	sale, err := settle.Run(ctx, Plan{
		Key:         key,
		Modality:    domain.ModalityEnglish,
		Seller:      alice,
		Buyer:       dave,
		Price:       amt(180),
		BuyerRefund: amt(5),
		Refunds:     []domain.Bid{older, newer},
	})
	require.NoError(t, err)
	require.NotEmpty(t, sale.ID)

	// Buyer refund first, then proceeds, then superseded bids oldest
	// first.
	require.Len(t, recorder.pushes, 4)
	require.Equal(t, dave, recorder.pushes[0].to)
	require.Equal(t, "5", recorder.pushes[0].amount.String())
	require.Equal(t, alice, recorder.pushes[1].to)
	require.Equal(t, "180", recorder.pushes[1].amount.String())
	require.Equal(t, bob, recorder.pushes[2].to)
	require.Equal(t, carol, recorder.pushes[3].to)
}

func TestSettlementSkipsZeroRefund(t *testing.T) {
	recorder := &pushRecorder{}
	settle, registry, _ := newSettlementUnderTest(t, recorder)
	ctx := context.Background()

	key := domain.Key{Collection: collection, TokenID: 71}
	registry.Mint(key, alice)

	_, err := settle.Run(ctx, Plan{
		Key:         key,
		Modality:    domain.ModalityDutch,
		Seller:      alice,
		Buyer:       bob,
		Price:       amt(70),
		BuyerRefund: amt(0),
	})
	require.NoError(t, err)
	require.Len(t, recorder.pushes, 1)
	require.Equal(t, alice, recorder.pushes[0].to)
}

func TestSettlementCompensatesFailedTransfer(t *testing.T) {
	funds := local.NewFunds()
	settle, registry, _ := newSettlementUnderTest(t, funds)
	ctx := context.Background()

	key := domain.Key{Collection: collection, TokenID: 72}
	registry.Mint(key, alice)
	registry.FailTransfers(errors.New("registry down"))

	compensated := false
	_, err := settle.Run(ctx, Plan{
		Key:      key,
		Modality: domain.ModalityFixed,
		Seller:   alice,
		Buyer:    bob,
		Price:    amt(100),
		Compensate: func(ctx context.Context) error {
			compensated = true
			return nil
		},
	})
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	require.True(t, compensated)
	require.Equal(t, "0", funds.Total().String())
}

func TestSettlementAuditsFailedPushes(t *testing.T) {
	funds := local.NewFunds()
	settle, registry, audit := newSettlementUnderTest(t, funds)
	ctx := context.Background()

	key := domain.Key{Collection: collection, TokenID: 73}
	registry.Mint(key, alice)
	funds.FailPushes(errors.New("bank closed"))

	_, err := settle.Run(ctx, Plan{
		Key:      key,
		Modality: domain.ModalityFixed,
		Seller:   alice,
		Buyer:    bob,
		Price:    amt(100),
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrTransferFailed)

	// The asset moved; the failed push is on the audit trail, not
	// unwound.
	owner, err := registry.OwnerOf(ctx, key)
	require.NoError(t, err)
	require.Equal(t, bob, owner)

	entries, err := audit.List(ctx, domain.ListOpts{Limit: 50})
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if e.Event == "settlement.push_failed" {
			found = true
		}
	}
	require.True(t, found)
}

func TestRefundAllReturnsEveryEscrowedBid(t *testing.T) {
	funds := local.NewFunds()
	settle, _, _ := newSettlementUnderTest(t, funds)
	ctx := context.Background()

	key := domain.Key{Collection: collection, TokenID: 74}
	highest := domain.Bid{Key: key, Seq: 3, Bidder: dave, Amount: amt(180), CreatedAt: time.Now()}
	state := domain.BidState{
		Highest: &highest,
		Superseded: []domain.Bid{
			{Key: key, Seq: 1, Bidder: bob, Amount: amt(150)},
			{Key: key, Seq: 2, Bidder: carol, Amount: amt(160)},
		},
	}

	require.NoError(t, settle.RefundAll(ctx, key, state))
	require.Equal(t, "150", funds.Balance(bob).String())
	require.Equal(t, "160", funds.Balance(carol).String())
	require.Equal(t, "180", funds.Balance(dave).String())
	require.Equal(t, state.Escrowed().String(), funds.Total().String())
}
