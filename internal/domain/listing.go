package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Modality selects which sale mechanism a listing uses.
type Modality string

const (
	ModalityFixed   Modality = "fixed"
	ModalityEnglish Modality = "english"
	ModalityDutch   Modality = "dutch"
)

// ListingStatus tracks the listing lifecycle. The status field is
// authoritative; a cancellation record is only an audit marker.
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusCancelled ListingStatus = "cancelled"
)

// FixedListing is a buy-it-now listing at a fixed asking price.
type FixedListing struct {
	Key       Key
	Seller    common.Address
	Price     *big.Int
	Status    ListingStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks listing parameters before persistence.
func (l FixedListing) Validate() error {
	if l.Price == nil || l.Price.Sign() <= 0 {
		return ErrPriceMustBeAboveZero
	}
	return nil
}

// EnglishListing is an ascending auction over a fixed time window.
// Bids must strictly exceed the current highest; the first bid must
// strictly exceed StartPrice.
type EnglishListing struct {
	Key        Key
	Seller     common.Address
	StartPrice *big.Int
	StartAt    time.Time
	EndAt      time.Time
	Status     ListingStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks auction parameters before persistence.
func (l EnglishListing) Validate() error {
	if l.StartPrice == nil || l.StartPrice.Sign() <= 0 {
		return ErrPriceMustBeAboveZero
	}
	if !l.StartAt.Before(l.EndAt) {
		return ErrAuctionWindowViolation
	}
	return nil
}

// Open reports whether the auction accepts bids at the given instant.
// The window is half-open: bids land at StartAt <= now < EndAt.
func (l EnglishListing) Open(now time.Time) bool {
	return !now.Before(l.StartAt) && now.Before(l.EndAt)
}

// Endable reports whether the auction may be settled at the given
// instant. A cancelled auction is always endable so escrowed funds can
// be released.
func (l EnglishListing) Endable(now time.Time) bool {
	return l.Status == ListingStatusCancelled || !now.Before(l.EndAt)
}

// DutchListing is a descending auction: the price decays linearly from
// StartPrice by DiscountRate per second, never dropping below EndPrice.
// The first buyer at or above the current price wins.
type DutchListing struct {
	Key          Key
	Seller       common.Address
	StartPrice   *big.Int
	EndPrice     *big.Int
	DiscountRate *big.Int // price units shed per second
	StartAt      time.Time
	EndAt        time.Time
	Status       ListingStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks auction parameters before persistence.
func (l DutchListing) Validate() error {
	if l.StartPrice == nil || l.StartPrice.Sign() <= 0 {
		return ErrPriceMustBeAboveZero
	}
	if l.DiscountRate == nil || l.DiscountRate.Sign() <= 0 {
		return ErrPriceMustBeAboveZero
	}
	if l.EndPrice == nil || l.EndPrice.Sign() < 0 {
		return ErrPriceMustBeAboveZero
	}
	if l.StartPrice.Cmp(l.EndPrice) < 0 {
		return ErrPriceMustBeAboveZero
	}
	if !l.StartAt.Before(l.EndAt) {
		return ErrAuctionWindowViolation
	}
	return nil
}

// Open reports whether the auction accepts purchases at the given
// instant.
func (l DutchListing) Open(now time.Time) bool {
	return !now.Before(l.StartAt) && now.Before(l.EndAt)
}

// PriceAt computes the asking price at the given instant. Before the
// window opens it returns StartPrice; once the window has closed it
// returns EndPrice even if the linear decay never reached it; in
// between the decayed price is clamped to the EndPrice floor.
func (l DutchListing) PriceAt(now time.Time) *big.Int {
	if now.Before(l.StartAt) {
		return new(big.Int).Set(l.StartPrice)
	}
	if !now.Before(l.EndAt) {
		return new(big.Int).Set(l.EndPrice)
	}
	elapsed := new(big.Int).SetInt64(int64(now.Sub(l.StartAt) / time.Second))
	discount := new(big.Int).Mul(l.DiscountRate, elapsed)
	price := new(big.Int).Sub(l.StartPrice, discount)
	if price.Cmp(l.EndPrice) < 0 {
		return new(big.Int).Set(l.EndPrice)
	}
	return price
}
