package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetRegistry is the external ownership ledger for assets. The
// marketplace never custodies assets; it checks ownership and approval
// up front and moves the asset only at settlement.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, key Key) (common.Address, error)
	IsApproved(ctx context.Context, key Key, operator common.Address) (bool, error)
	Transfer(ctx context.Context, key Key, from, to common.Address) error
}

// FundPusher moves escrowed funds out to a recipient. Pushes are
// external effects: once one succeeds it cannot be clawed back, so
// settlement sequences pushes after all state transitions.
type FundPusher interface {
	Push(ctx context.Context, to common.Address, amount *big.Int) error
}
