package local

import (
	"context"
	"math/big"
	"sync"

	"github.com/auctionhaus/marketd/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Funds is an in-memory ledger implementing domain.FundPusher. Pushed
// amounts accumulate per recipient so tests can assert conservation.
type Funds struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	failErr  error
}

var _ domain.FundPusher = (*Funds)(nil)

// NewFunds creates an empty ledger.
func NewFunds() *Funds {
	return &Funds{balances: make(map[common.Address]*big.Int)}
}

// FailPushes makes every subsequent Push return err. Pass nil to
// restore normal behaviour.
func (f *Funds) FailPushes(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

func (f *Funds) Push(ctx context.Context, to common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	bal, ok := f.balances[to]
	if !ok {
		bal = new(big.Int)
		f.balances[to] = bal
	}
	bal.Add(bal, amount)
	return nil
}

// Balance returns the total pushed to an address so far.
func (f *Funds) Balance(addr common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[addr]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(bal)
}

// Total returns the sum pushed across all recipients.
func (f *Funds) Total() *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := new(big.Int)
	for _, bal := range f.balances {
		total.Add(total, bal)
	}
	return total
}
