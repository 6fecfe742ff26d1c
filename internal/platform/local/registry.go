// Package local provides in-process implementations of the external
// collaborators: the asset registry, the fund pusher, the lock manager
// and the signal bus. They back the "local" registry mode for
// development and give tests deterministic collaborators without Redis
// or an RPC endpoint.
package local

import (
	"context"
	"sync"

	"github.com/auctionhaus/marketd/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

type asset struct {
	owner     common.Address
	approvals map[common.Address]bool
}

// Registry is an in-memory ownership ledger implementing
// domain.AssetRegistry. Transfers clear approvals, matching ERC-721
// semantics.
type Registry struct {
	mu      sync.RWMutex
	assets  map[domain.Key]*asset
	failErr error
}

var _ domain.AssetRegistry = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{assets: make(map[domain.Key]*asset)}
}

// Mint records a new asset owned by owner.
func (r *Registry) Mint(key domain.Key, owner common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[key] = &asset{owner: owner, approvals: make(map[common.Address]bool)}
}

// Approve grants or revokes operator transfer rights on an asset.
func (r *Registry) Approve(key domain.Key, operator common.Address, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[key]
	if !ok {
		return domain.ErrNotFound
	}
	a.approvals[operator] = approved
	return nil
}

// FailTransfers makes every subsequent Transfer return err. Pass nil to
// restore normal behaviour. Used by tests to exercise compensation.
func (r *Registry) FailTransfers(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

func (r *Registry) OwnerOf(ctx context.Context, key domain.Key) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[key]
	if !ok {
		return common.Address{}, domain.ErrNotFound
	}
	return a.owner, nil
}

func (r *Registry) IsApproved(ctx context.Context, key domain.Key, operator common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[key]
	if !ok {
		return false, domain.ErrNotFound
	}
	return a.approvals[operator], nil
}

func (r *Registry) Transfer(ctx context.Context, key domain.Key, from, to common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	a, ok := r.assets[key]
	if !ok {
		return domain.ErrNotFound
	}
	if a.owner != from {
		return domain.ErrNotOwner
	}
	a.owner = to
	a.approvals = make(map[common.Address]bool)
	return nil
}
