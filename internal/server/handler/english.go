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

// EnglishService defines the methods the English-auction handler
// requires from the service layer.
type EnglishService interface {
	List(ctx context.Context, key domain.Key, seller common.Address, startPrice *big.Int, startAt, endAt time.Time) (domain.EnglishListing, error)
	Bid(ctx context.Context, key domain.Key, bidder common.Address, amount *big.Int) (domain.Bid, error)
	Cancel(ctx context.Context, key domain.Key, caller common.Address) error
	End(ctx context.Context, key domain.Key, caller common.Address) (domain.Sale, error)
	Get(ctx context.Context, key domain.Key) (domain.EnglishListing, error)
	Bids(ctx context.Context, key domain.Key) (domain.BidState, error)
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.EnglishListing, error)
}

// EnglishHandler serves English (ascending) auction endpoints.
type EnglishHandler struct {
	svc    EnglishService
	logger *slog.Logger
}

// NewEnglishHandler creates an EnglishHandler with the given service and
// logger.
func NewEnglishHandler(svc EnglishService, logger *slog.Logger) *EnglishHandler {
	return &EnglishHandler{svc: svc, logger: logger}
}

// createEnglishRequest is the JSON body for opening an ascending auction.
type createEnglishRequest struct {
	Collection string    `json:"collection"`
	TokenID    string    `json:"token_id"`
	Seller     string    `json:"seller"`
	StartPrice string    `json:"start_price"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
}

// bidRequest is the JSON body for placing a bid.
type bidRequest struct {
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
}

// listEnglishResponse wraps the list endpoint output with its paging.
type listEnglishResponse struct {
	Listings []domain.EnglishListing `json:"listings"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
}

// Create opens an ascending auction over a time window.
// POST /api/auctions/english
func (h *EnglishHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEnglishRequest
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

	listing, err := h.svc.List(r.Context(), key, seller, startPrice, req.StartAt, req.EndAt)
	if err != nil {
		writeDomainError(w, r, h.logger, "create english auction", err)
		return
	}

	writeJSON(w, http.StatusCreated, listing)
}

// List returns active ascending auctions with pagination.
// GET /api/auctions/english?limit=50&offset=0
func (h *EnglishHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	listings, err := h.svc.ListActive(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list english auctions", err)
		return
	}
	if listings == nil {
		listings = []domain.EnglishListing{}
	}

	writeJSON(w, http.StatusOK, listEnglishResponse{
		Listings: listings,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// Get returns a single ascending auction.
// GET /api/auctions/english/{collection}/{token}
func (h *EnglishHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.svc.Get(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, "get english auction", err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

// Bid places a bid. The bid amount is escrowed until the auction ends.
// POST /api/auctions/english/{collection}/{token}/bids
func (h *EnglishHandler) Bid(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req bidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	bidder, ok := parseAddress(req.Bidder)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid bidder address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	bid, err := h.svc.Bid(r.Context(), key, bidder, amount)
	if err != nil {
		writeDomainError(w, r, h.logger, "place bid", err)
		return
	}

	writeJSON(w, http.StatusCreated, bid)
}

// Bids returns the current bid ledger for an auction.
// GET /api/auctions/english/{collection}/{token}/bids
func (h *EnglishHandler) Bids(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.svc.Bids(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, "list bids", err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// Cancel closes bidding on an auction. Escrowed bids are refunded when
// the auction is ended.
// DELETE /api/auctions/english/{collection}/{token}
func (h *EnglishHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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
		writeDomainError(w, r, h.logger, "cancel english auction", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancelled",
		"key":    key.String(),
	})
}

// End settles an ended auction: the highest bid wins, everyone else is
// refunded. Only the seller may call this.
// POST /api/auctions/english/{collection}/{token}/end
func (h *EnglishHandler) End(w http.ResponseWriter, r *http.Request) {
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

	sale, err := h.svc.End(r.Context(), key, caller)
	if err != nil {
		writeDomainError(w, r, h.logger, "end english auction", err)
		return
	}

	if sale.ID == "" {
		// Cancelled or bidless auctions end without a sale.
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "no_sale",
			"key":    key.String(),
		})
		return
	}

	writeJSON(w, http.StatusOK, sale)
}
