package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionhaus/marketd/internal/domain"
)

// DutchService defines the methods the Dutch-auction handler requires
// from the service layer.
type DutchService interface {
	List(ctx context.Context, key domain.Key, seller common.Address, startPrice, endPrice, discountRate *big.Int, startAt, endAt time.Time) (domain.DutchListing, error)
	Price(ctx context.Context, key domain.Key) (*big.Int, error)
	Buy(ctx context.Context, key domain.Key, buyer common.Address, payment *big.Int) (domain.Sale, error)
	Cancel(ctx context.Context, key domain.Key, caller common.Address) error
	Get(ctx context.Context, key domain.Key) (domain.DutchListing, error)
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.DutchListing, error)
}

// DutchHandler serves Dutch (descending) auction endpoints.
type DutchHandler struct {
	svc    DutchService
	logger *slog.Logger
}

// NewDutchHandler creates a DutchHandler with the given service and logger.
func NewDutchHandler(svc DutchService, logger *slog.Logger) *DutchHandler {
	return &DutchHandler{svc: svc, logger: logger}
}

// createDutchRequest is the JSON body for opening a descending auction.
type createDutchRequest struct {
	Collection   string    `json:"collection"`
	TokenID      string    `json:"token_id"`
	Seller       string    `json:"seller"`
	StartPrice   string    `json:"start_price"`
	EndPrice     string    `json:"end_price"`
	DiscountRate string    `json:"discount_rate"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
}

// listDutchResponse wraps the list endpoint output with its paging.
type listDutchResponse struct {
	Listings []domain.DutchListing `json:"listings"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

// priceResponse reports the current decayed asking price.
type priceResponse struct {
	Key   string `json:"key"`
	Price string `json:"price"`
}

// Create opens a descending auction.
// POST /api/auctions/dutch
func (h *DutchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDutchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	key, err := domain.ParseKey(req.Collection + "/" + req.TokenID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	seller, ok := parseAddress(req.Seller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid seller address")
		return
	}
	startPrice, ok := parseAmount(req.StartPrice)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid start price")
		return
	}
	endPrice, ok := parseAmount(req.EndPrice)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid end price")
		return
	}
	discountRate, ok := parseAmount(req.DiscountRate)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid discount rate")
		return
	}

	listing, err := h.svc.List(r.Context(), key, seller, startPrice, endPrice, discountRate, req.StartAt, req.EndAt)
	if err != nil {
		writeDomainError(w, r, h.logger, "create dutch auction", err)
		return
	}

	writeJSON(w, http.StatusCreated, listing)
}

// List returns active descending auctions with pagination.
// GET /api/auctions/dutch?limit=50&offset=0
func (h *DutchHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	listings, err := h.svc.ListActive(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list dutch auctions", err)
		return
	}
	if listings == nil {
		listings = []domain.DutchListing{}
	}

	writeJSON(w, http.StatusOK, listDutchResponse{
		Listings: listings,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// Get returns a single descending auction.
// GET /api/auctions/dutch/{collection}/{token}
func (h *DutchHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.svc.Get(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, "get dutch auction", err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

// Price returns the current decayed asking price.
// GET /api/auctions/dutch/{collection}/{token}/price
func (h *DutchHandler) Price(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	price, err := h.svc.Price(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, "price dutch auction", err)
		return
	}

	writeJSON(w, http.StatusOK, priceResponse{
		Key:   key.String(),
		Price: price.String(),
	})
}

// Buy purchases at the current decayed price. Overpayment above the
// instantaneous price is refunded during settlement.
// POST /api/auctions/dutch/{collection}/{token}/buy
func (h *DutchHandler) Buy(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	buyer, ok := parseAddress(req.Buyer)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid buyer address")
		return
	}
	payment, ok := parseAmount(req.Payment)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid payment")
		return
	}

	sale, err := h.svc.Buy(r.Context(), key, buyer, payment)
	if err != nil {
		writeDomainError(w, r, h.logger, "buy dutch auction", err)
		return
	}

	writeJSON(w, http.StatusCreated, sale)
}

// Cancel delists a descending auction. Only the seller may cancel.
// DELETE /api/auctions/dutch/{collection}/{token}
func (h *DutchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req callerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	if err := h.svc.Cancel(r.Context(), key, caller); err != nil {
		writeDomainError(w, r, h.logger, "cancel dutch auction", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancelled",
		"key":    key.String(),
	})
}
