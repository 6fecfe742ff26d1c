package local

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/auctionhaus/marketd/internal/domain"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	buyer    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	market   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	assetKey = domain.Key{
		Collection: common.HexToAddress("0x0000000000000000000000000000000000c0ffee"),
		TokenID:    1,
	}
)

func TestRegistryTransferClearsApprovals(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	r.Mint(assetKey, owner)
	require.NoError(t, r.Approve(assetKey, market, true))

	approved, err := r.IsApproved(ctx, assetKey, market)
	require.NoError(t, err)
	require.True(t, approved)

	require.NoError(t, r.Transfer(ctx, assetKey, owner, buyer))

	got, err := r.OwnerOf(ctx, assetKey)
	require.NoError(t, err)
	require.Equal(t, buyer, got)

	approved, err = r.IsApproved(ctx, assetKey, market)
	require.NoError(t, err)
	require.False(t, approved)
}

func TestRegistryTransferWrongOwner(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	r.Mint(assetKey, owner)

	require.ErrorIs(t, r.Transfer(ctx, assetKey, buyer, market), domain.ErrNotOwner)
	require.ErrorIs(t, r.Transfer(ctx, domain.Key{TokenID: 99}, owner, buyer), domain.ErrNotFound)
}

func TestFundsAccumulate(t *testing.T) {
	ctx := context.Background()
	f := NewFunds()
	require.NoError(t, f.Push(ctx, owner, big.NewInt(70)))
	require.NoError(t, f.Push(ctx, owner, big.NewInt(30)))
	require.NoError(t, f.Push(ctx, buyer, big.NewInt(5)))

	require.Equal(t, "100", f.Balance(owner).String())
	require.Equal(t, "105", f.Total().String())
}

func TestLockManagerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager()

	unlock, err := lm.Acquire(ctx, "settle:x", time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "settle:x", time.Second)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	// A different key is independent.
	other, err := lm.Acquire(ctx, "settle:y", time.Second)
	require.NoError(t, err)
	other()

	unlock()
	unlock() // double release is a no-op

	unlock2, err := lm.Acquire(ctx, "settle:x", time.Second)
	require.NoError(t, err)
	unlock2()
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	rl := NewRateLimiter().WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "k", 3, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "k", 3, time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	ok, err = rl.Allow(ctx, "k", 3, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPriceCacheTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	pc := NewPriceCache().WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})

	_, err := pc.GetPrice(ctx, assetKey)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, pc.SetPrice(ctx, assetKey, big.NewInt(70), time.Second))
	price, err := pc.GetPrice(ctx, assetKey)
	require.NoError(t, err)
	require.Equal(t, "70", price.String())

	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	_, err = pc.GetPrice(ctx, assetKey)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBusPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewBus()

	ch, err := b.Subscribe(ctx, "sales")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "sales", []byte(`{"event":"sale_settled"}`)))
	require.NoError(t, b.Publish(ctx, "listings", []byte(`{"event":"listing_created"}`)))

	select {
	case msg := <-ch:
		require.JSONEq(t, `{"event":"sale_settled"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("expected a sales message")
	}

	// Nothing from the channel we did not subscribe to.
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %s", msg)
	default:
	}
}

func TestBusStream(t *testing.T) {
	ctx := context.Background()
	b := NewBus()

	require.NoError(t, b.StreamAppend(ctx, "audit", []byte("one")))
	require.NoError(t, b.StreamAppend(ctx, "audit", []byte("two")))

	msgs, err := b.StreamRead(ctx, "audit", "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	msgs, err = b.StreamRead(ctx, "audit", msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "two", string(msgs[0].Payload))
}
