// Package chain backs the asset registry and fund pushes with an
// Ethereum-compatible node. Asset collections are ERC-721 contracts and
// proceeds move as native-coin transfers signed by the operator key.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/auctionhaus/marketd/internal/crypto"
	"github.com/auctionhaus/marketd/internal/domain"
)

// erc721ABI covers the subset of ERC-721 the marketplace calls.
const erc721ABI = `[
	{
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"name": "ownerOf",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"name": "getApproved",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "operator", "type": "address"}
		],
		"name": "isApprovedForAll",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "from", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "safeTransferFrom",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// Registry is a domain.AssetRegistry backed by ERC-721 collection
// contracts. Transfers are sent as transactions signed with the
// operator key and waited on until mined.
type Registry struct {
	client *ethclient.Client
	signer *crypto.Signer
	abi    abi.ABI
}

var _ domain.AssetRegistry = (*Registry)(nil)

// NewRegistry dials the RPC node and prepares the ERC-721 ABI.
func NewRegistry(rpcURL string, signer *crypto.Signer) (*Registry, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dialing RPC node: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc721ABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parsing ERC-721 ABI: %w", err)
	}

	return &Registry{
		client: client,
		signer: signer,
		abi:    parsed,
	}, nil
}

// Close releases the underlying RPC connection.
func (r *Registry) Close() {
	r.client.Close()
}

// OwnerOf returns the current owner of the asset.
func (r *Registry) OwnerOf(ctx context.Context, key domain.Key) (common.Address, error) {
	data, err := r.abi.Pack("ownerOf", new(big.Int).SetUint64(key.TokenID))
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: packing ownerOf: %w", err)
	}

	result, err := r.client.CallContract(ctx, ethereum.CallMsg{
		To:   &key.Collection,
		Data: data,
	}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: calling ownerOf for %s: %w", key, err)
	}

	var owner common.Address
	if err := r.abi.UnpackIntoInterface(&owner, "ownerOf", result); err != nil {
		return common.Address{}, fmt.Errorf("chain: unpacking ownerOf result: %w", err)
	}
	return owner, nil
}

// IsApproved reports whether operator may move the asset, either via a
// per-token approval or an operator-wide one.
func (r *Registry) IsApproved(ctx context.Context, key domain.Key, operator common.Address) (bool, error) {
	data, err := r.abi.Pack("getApproved", new(big.Int).SetUint64(key.TokenID))
	if err != nil {
		return false, fmt.Errorf("chain: packing getApproved: %w", err)
	}

	result, err := r.client.CallContract(ctx, ethereum.CallMsg{
		To:   &key.Collection,
		Data: data,
	}, nil)
	if err != nil {
		return false, fmt.Errorf("chain: calling getApproved for %s: %w", key, err)
	}

	var approved common.Address
	if err := r.abi.UnpackIntoInterface(&approved, "getApproved", result); err != nil {
		return false, fmt.Errorf("chain: unpacking getApproved result: %w", err)
	}
	if approved == operator {
		return true, nil
	}

	owner, err := r.OwnerOf(ctx, key)
	if err != nil {
		return false, err
	}

	data, err = r.abi.Pack("isApprovedForAll", owner, operator)
	if err != nil {
		return false, fmt.Errorf("chain: packing isApprovedForAll: %w", err)
	}

	result, err = r.client.CallContract(ctx, ethereum.CallMsg{
		To:   &key.Collection,
		Data: data,
	}, nil)
	if err != nil {
		return false, fmt.Errorf("chain: calling isApprovedForAll for %s: %w", key, err)
	}

	var all bool
	if err := r.abi.UnpackIntoInterface(&all, "isApprovedForAll", result); err != nil {
		return false, fmt.Errorf("chain: unpacking isApprovedForAll result: %w", err)
	}
	return all, nil
}

// Transfer moves the asset from seller to buyer via safeTransferFrom
// and blocks until the transaction is mined. A reverted transaction is
// reported as an error so settlement can compensate.
func (r *Registry) Transfer(ctx context.Context, key domain.Key, from, to common.Address) error {
	data, err := r.abi.Pack("safeTransferFrom", from, to, new(big.Int).SetUint64(key.TokenID))
	if err != nil {
		return fmt.Errorf("chain: packing safeTransferFrom: %w", err)
	}

	tx, err := r.buildTx(ctx, key.Collection, big.NewInt(0), data)
	if err != nil {
		return err
	}

	signed, err := r.signer.SignTx(tx)
	if err != nil {
		return fmt.Errorf("chain: signing transfer for %s: %w", key, err)
	}

	if err := r.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("chain: sending transfer for %s: %w", key, err)
	}

	receipt, err := waitMined(ctx, r.client, signed.Hash())
	if err != nil {
		return fmt.Errorf("chain: waiting for transfer of %s: %w", key, err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("chain: transfer of %s reverted in tx %s", key, signed.Hash())
	}
	return nil
}

// buildTx assembles an unsigned legacy transaction with a fresh nonce,
// the node's suggested gas price, and an estimated gas limit.
func (r *Registry) buildTx(ctx context.Context, to common.Address, value *big.Int, data []byte) (*ethtypes.Transaction, error) {
	from := r.signer.Address()

	nonce, err := r.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("chain: fetching nonce: %w", err)
	}

	gasPrice, err := r.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: fetching gas price: %w", err)
	}

	gasLimit, err := r.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("chain: estimating gas: %w", err)
	}

	return ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data), nil
}
