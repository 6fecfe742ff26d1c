package domain

import "errors"

var (
	ErrNotFound                  = errors.New("not found")
	ErrAlreadyListed             = errors.New("asset already listed")
	ErrNotListed                 = errors.New("asset not listed")
	ErrNotOwner                  = errors.New("caller does not own asset")
	ErrNotApprovedForMarketplace = errors.New("marketplace not approved for asset")
	ErrPriceMustBeAboveZero      = errors.New("price must be above zero")
	ErrPriceNotMet               = errors.New("payment below asking price")
	ErrBidTooLow                 = errors.New("bid does not exceed current highest")
	ErrAuctionWindowViolation    = errors.New("outside auction time window")
	ErrAuctionCancelled          = errors.New("auction cancelled")
	ErrTransferFailed            = errors.New("transfer failed")
	ErrRateLimited               = errors.New("rate limited")
	ErrUnauthorized              = errors.New("unauthorized")
	ErrLockHeld                  = errors.New("lock already held")
)
