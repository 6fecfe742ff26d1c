package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Sale records one completed settlement: the asset, who sold, who
// bought, the modality that produced the match and the clearing price.
type Sale struct {
	ID        string
	Key       Key
	Modality  Modality
	Seller    common.Address
	Buyer     common.Address
	Price     *big.Int
	CreatedAt time.Time
}

// Cancellation is the sticky audit marker left behind when a listing is
// withdrawn. It never flips back; listing status is what callers check
// for liveness.
type Cancellation struct {
	Key       Key
	Modality  Modality
	Seller    common.Address
	CreatedAt time.Time
}
