package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/auctionhaus/marketd/internal/crypto"
	"github.com/auctionhaus/marketd/internal/domain"
)

// receiptPollInterval is how often waitMined asks the node for a receipt.
const receiptPollInterval = 500 * time.Millisecond

// Funds is a domain.FundPusher that pays recipients in the chain's
// native coin from the operator account. Sends are serialized so
// concurrent settlements do not race on the operator nonce.
type Funds struct {
	client *ethclient.Client
	signer *crypto.Signer
	mu     sync.Mutex
}

var _ domain.FundPusher = (*Funds)(nil)

// NewFunds dials the RPC node for fund pushes.
func NewFunds(rpcURL string, signer *crypto.Signer) (*Funds, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dialing RPC node: %w", err)
	}
	return &Funds{client: client, signer: signer}, nil
}

// Close releases the underlying RPC connection.
func (f *Funds) Close() {
	f.client.Close()
}

// Push sends amount to the recipient and blocks until the transaction
// is mined.
func (f *Funds) Push(ctx context.Context, to common.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	from := f.signer.Address()

	nonce, err := f.client.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("chain: fetching nonce: %w", err)
	}

	gasPrice, err := f.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("chain: fetching gas price: %w", err)
	}

	gasLimit, err := f.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: amount,
	})
	if err != nil {
		return fmt.Errorf("chain: estimating gas: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, to, amount, gasLimit, gasPrice, nil)

	signed, err := f.signer.SignTx(tx)
	if err != nil {
		return fmt.Errorf("chain: signing push to %s: %w", to, err)
	}

	if err := f.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("chain: sending push to %s: %w", to, err)
	}

	receipt, err := waitMined(ctx, f.client, signed.Hash())
	if err != nil {
		return fmt.Errorf("chain: waiting for push to %s: %w", to, err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("chain: push to %s reverted in tx %s", to, signed.Hash())
	}
	return nil
}

// waitMined polls for the transaction receipt until it appears or the
// context ends.
func waitMined(ctx context.Context, client *ethclient.Client, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
