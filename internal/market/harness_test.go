package market

import (
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

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	dave     = common.HexToAddress("0x00000000000000000000000000000000000000d1")

	collection = common.HexToAddress("0x0000000000000000000000000000000000c0ffee")
)

// clock is a manual time source shared by the services under test.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(start time.Time) *clock {
	return &clock{t: start}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fixture wires the three services against the in-process registry and
// an in-memory Badger store.
type fixture struct {
	clock    *clock
	registry *local.Registry
	funds    *local.Funds
	bus      *local.Bus
	audit    domain.AuditStore

	fixed   *FixedService
	english *EnglishService
	dutch   *DutchService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	client, err := badgerdb.New(badgerdb.ClientConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	fixedStore := badgerdb.NewFixedStore(client)
	englishStore := badgerdb.NewEnglishStore(client)
	dutchStore := badgerdb.NewDutchStore(client)
	bidStore := badgerdb.NewBidStore(client)
	saleStore := badgerdb.NewSaleStore(client)
	cancelStore := badgerdb.NewCancellationStore(client)
	auditStore, err := badgerdb.NewAuditStore(client)
	require.NoError(t, err)

	clk := newClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	registry := local.NewRegistry()
	funds := local.NewFunds()
	bus := local.NewBus()
	locks := local.NewLockManager()
	limiter := local.NewRateLimiter().WithClock(clk.Now)
	prices := local.NewPriceCache().WithClock(clk.Now)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	guards := NewGuards(registry, operator, fixedStore, englishStore, dutchStore)
	settle := NewSettlement(registry, funds, saleStore, auditStore, logger).WithClock(clk.Now)

	return &fixture{
		clock:    clk,
		registry: registry,
		funds:    funds,
		bus:      bus,
		audit:    auditStore,
		fixed: NewFixedService(
			fixedStore, cancelStore, guards, locks, settle, bus, auditStore,
			logger, time.Second,
		).WithClock(clk.Now),
		english: NewEnglishService(
			englishStore, bidStore, cancelStore, guards, locks, limiter,
			settle, bus, auditStore, logger, time.Second, 100, time.Second,
		).WithClock(clk.Now),
		dutch: NewDutchService(
			dutchStore, cancelStore, guards, locks, settle, prices, bus,
			auditStore, logger, time.Second, time.Second,
		).WithClock(clk.Now),
	}
}

// mint creates an asset owned by owner with marketplace approval.
func (f *fixture) mint(t *testing.T, tokenID uint64, owner common.Address) domain.Key {
	t.Helper()
	key := domain.Key{Collection: collection, TokenID: tokenID}
	f.registry.Mint(key, owner)
	require.NoError(t, f.registry.Approve(key, operator, true))
	return key
}

func amt(n int64) *big.Int {
	return big.NewInt(n)
}
