package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/auctionhaus/marketd/internal/domain"
)

// FixedService defines the methods the fixed-price handler requires from
// the service layer. It is declared locally so the handler package does
// not depend on the concrete service implementation.
type FixedService interface {
	List(ctx context.Context, key domain.Key, seller common.Address, price *big.Int) (domain.FixedListing, error)
	Cancel(ctx context.Context, key domain.Key, caller common.Address) error
	Buy(ctx context.Context, key domain.Key, buyer common.Address, payment *big.Int) (domain.Sale, error)
	Get(ctx context.Context, key domain.Key) (domain.FixedListing, error)
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.FixedListing, error)
}

// FixedHandler serves fixed-price listing endpoints.
type FixedHandler struct {
	svc    FixedService
	logger *slog.Logger
}

// NewFixedHandler creates a FixedHandler with the given service and logger.
func NewFixedHandler(svc FixedService, logger *slog.Logger) *FixedHandler {
	return &FixedHandler{svc: svc, logger: logger}
}

// createFixedRequest is the JSON body for creating a fixed-price listing.
// Amounts travel as base-10 strings so precision never depends on JSON
// number handling.
type createFixedRequest struct {
	Collection string `json:"collection"`
	TokenID    string `json:"token_id"`
	Seller     string `json:"seller"`
	Price      string `json:"price"`
}

// buyRequest is the JSON body for purchase endpoints.
type buyRequest struct {
	Buyer   string `json:"buyer"`
	Payment string `json:"payment"`
}

// callerRequest carries the caller address for cancel and end endpoints.
type callerRequest struct {
	Caller string `json:"caller"`
}

// listFixedResponse wraps the list endpoint output with its paging.
type listFixedResponse struct {
	Listings []domain.FixedListing `json:"listings"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

// Create lists an asset at a fixed price.
// POST /api/listings/fixed
func (h *FixedHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFixedRequest
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
	price, ok := parseAmount(req.Price)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}

	listing, err := h.svc.List(r.Context(), key, seller, price)
	if err != nil {
		writeDomainError(w, r, h.logger, "create fixed listing", err)
		return
	}

	writeJSON(w, http.StatusCreated, listing)
}

// List returns active fixed-price listings with pagination.
// GET /api/listings/fixed?limit=50&offset=0
func (h *FixedHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	listings, err := h.svc.ListActive(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list fixed listings", err)
		return
	}
	if listings == nil {
		listings = []domain.FixedListing{}
	}

	writeJSON(w, http.StatusOK, listFixedResponse{
		Listings: listings,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// Get returns a single fixed-price listing.
// GET /api/listings/fixed/{collection}/{token}
func (h *FixedHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.svc.Get(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, "get fixed listing", err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

// Cancel delists an asset. Only the seller may cancel.
// DELETE /api/listings/fixed/{collection}/{token}
func (h *FixedHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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
		writeDomainError(w, r, h.logger, "cancel fixed listing", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancelled",
		"key":    key.String(),
	})
}

// Buy purchases a fixed-price listing outright.
// POST /api/listings/fixed/{collection}/{token}/buy
func (h *FixedHandler) Buy(w http.ResponseWriter, r *http.Request) {
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
		writeDomainError(w, r, h.logger, "buy fixed listing", err)
		return
	}

	writeJSON(w, http.StatusCreated, sale)
}
