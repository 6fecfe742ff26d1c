package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Bid is a single escrowed bid on an English auction. Seq orders bids
// within one auction: the highest Seq is the current leader, lower Seq
// rows are superseded bids awaiting refund at settlement.
type Bid struct {
	Key       Key
	Seq       int64
	Bidder    common.Address
	Amount    *big.Int
	CreatedAt time.Time
}

// BidState is the full escrow picture for one auction: the leading bid
// plus every superseded bid, oldest first, that settlement must refund.
type BidState struct {
	Highest    *Bid
	Superseded []Bid
}

// Escrowed sums every amount currently held for the auction.
func (s BidState) Escrowed() *big.Int {
	total := new(big.Int)
	if s.Highest != nil {
		total.Add(total, s.Highest.Amount)
	}
	for _, b := range s.Superseded {
		total.Add(total, b.Amount)
	}
	return total
}
