package handler

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/auctionhaus/marketd/internal/domain"
)

// stubFixedService lets each test script the service layer responses.
type stubFixedService struct {
	listErr   error
	buyErr    error
	cancelErr error
	listing   domain.FixedListing
	sale      domain.Sale
	active    []domain.FixedListing
}

func (s *stubFixedService) List(ctx context.Context, key domain.Key, seller common.Address, price *big.Int) (domain.FixedListing, error) {
	if s.listErr != nil {
		return domain.FixedListing{}, s.listErr
	}
	return domain.FixedListing{
		Key: key, Seller: seller, Price: price,
		Status: domain.ListingStatusActive, CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *stubFixedService) Cancel(ctx context.Context, key domain.Key, caller common.Address) error {
	return s.cancelErr
}

func (s *stubFixedService) Buy(ctx context.Context, key domain.Key, buyer common.Address, payment *big.Int) (domain.Sale, error) {
	if s.buyErr != nil {
		return domain.Sale{}, s.buyErr
	}
	return s.sale, nil
}

func (s *stubFixedService) Get(ctx context.Context, key domain.Key) (domain.FixedListing, error) {
	return s.listing, nil
}

func (s *stubFixedService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.FixedListing, error) {
	return s.active, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func fixedMux(svc FixedService) *http.ServeMux {
	h := NewFixedHandler(svc, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/listings/fixed", h.Create)
	mux.HandleFunc("GET /api/listings/fixed", h.List)
	mux.HandleFunc("POST /api/listings/fixed/{collection}/{token}/buy", h.Buy)
	mux.HandleFunc("DELETE /api/listings/fixed/{collection}/{token}", h.Cancel)
	return mux
}

const testCollectionHex = "0x00000000000000000000000000000000C0FfEe00"

func TestFixedCreate(t *testing.T) {
	mux := fixedMux(&stubFixedService{})

	body := `{"collection":"` + testCollectionHex + `","token_id":"7","seller":"0x00000000000000000000000000000000000000A1","price":"100"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/listings/fixed", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), "/7")
}

func TestFixedCreateValidation(t *testing.T) {
	mux := fixedMux(&stubFixedService{})

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"bad collection", `{"collection":"nope","token_id":"7","seller":"` + testCollectionHex + `","price":"100"}`},
		{"bad seller", `{"collection":"` + testCollectionHex + `","token_id":"7","seller":"nope","price":"100"}`},
		{"bad price", `{"collection":"` + testCollectionHex + `","token_id":"7","seller":"` + testCollectionHex + `","price":"-5"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/listings/fixed", strings.NewReader(tc.body)))
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestFixedBuyStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotListed, http.StatusNotFound},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrPriceNotMet, http.StatusConflict},
		{domain.ErrNotApprovedForMarketplace, http.StatusConflict},
		{domain.ErrLockHeld, http.StatusConflict},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrNotOwner, http.StatusForbidden},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			mux := fixedMux(&stubFixedService{buyErr: tc.err})
			body := `{"buyer":"0x00000000000000000000000000000000000000B1","payment":"100"}`
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
				"/api/listings/fixed/"+testCollectionHex+"/7/buy", strings.NewReader(body)))
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestFixedBuyInternalErrorIsOpaque(t *testing.T) {
	mux := fixedMux(&stubFixedService{buyErr: io.ErrUnexpectedEOF})
	body := `{"buyer":"0x00000000000000000000000000000000000000B1","payment":"100"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/listings/fixed/"+testCollectionHex+"/7/buy", strings.NewReader(body)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "unexpected EOF")
}

func TestFixedListEmptyIsJSONArray(t *testing.T) {
	mux := fixedMux(&stubFixedService{})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/listings/fixed?limit=2000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"listings":[]`)
	// Oversized limits clamp to the cap.
	require.Contains(t, rec.Body.String(), `"limit":500`)
}

func TestFixedCancel(t *testing.T) {
	mux := fixedMux(&stubFixedService{})
	body := `{"caller":"0x00000000000000000000000000000000000000A1"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/api/listings/fixed/"+testCollectionHex+"/7", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"cancelled"`)
}
