package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/auctionhaus/marketd/internal/domain"
)

// SaleReader defines the read methods the sale handler requires from the
// sale store.
type SaleReader interface {
	GetByID(ctx context.Context, id string) (domain.Sale, error)
	ListByKey(ctx context.Context, key domain.Key, opts domain.ListOpts) ([]domain.Sale, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Sale, error)
}

// SaleHandler serves settled-sale query endpoints.
type SaleHandler struct {
	sales  SaleReader
	logger *slog.Logger
}

// NewSaleHandler creates a SaleHandler with the given store and logger.
func NewSaleHandler(sales SaleReader, logger *slog.Logger) *SaleHandler {
	return &SaleHandler{sales: sales, logger: logger}
}

// listSalesResponse wraps the list endpoint output with its paging.
type listSalesResponse struct {
	Sales  []domain.Sale `json:"sales"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// List returns settled sales, newest first.
// GET /api/sales?limit=50&offset=0&since=...&until=...
func (h *SaleHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	sales, err := h.sales.List(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list sales", err)
		return
	}
	if sales == nil {
		sales = []domain.Sale{}
	}

	writeJSON(w, http.StatusOK, listSalesResponse{
		Sales:  sales,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// Get returns a single sale by its ID.
// GET /api/sales/{id}
func (h *SaleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing sale id")
		return
	}

	sale, err := h.sales.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get sale", err)
		return
	}

	writeJSON(w, http.StatusOK, sale)
}

// ListByAsset returns the sale history of one asset.
// GET /api/sales/assets/{collection}/{token}
func (h *SaleHandler) ListByAsset(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := parseListOpts(r)

	sales, err := h.sales.ListByKey(r.Context(), key, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list sales by asset", err)
		return
	}
	if sales == nil {
		sales = []domain.Sale{}
	}

	writeJSON(w, http.StatusOK, listSalesResponse{
		Sales:  sales,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
